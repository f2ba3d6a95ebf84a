package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") returned error: %v", err)
	}
	if cfg.SparqlQueryEndpoint != "" {
		t.Errorf("SparqlQueryEndpoint = %q, want empty", cfg.SparqlQueryEndpoint)
	}

	if _, err := cfg.RequireSparqlQueryEndpoint(); err == nil {
		t.Error("RequireSparqlQueryEndpoint() should fail when unset")
	}
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "baselib.yaml")
	contents := "sparql:\n  query:\n    endpoint: http://kb.example/query\n  update:\n    endpoint: http://kb.example/update\ndb:\n  url: jdbc:postgresql://localhost/ts\n  user: postgres\n  password: secret\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load(%q) returned error: %v", path, err)
	}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"SparqlQueryEndpoint", cfg.SparqlQueryEndpoint, "http://kb.example/query"},
		{"SparqlUpdateEndpoint", cfg.SparqlUpdateEndpoint, "http://kb.example/update"},
		{"DBURL", cfg.DBURL, "jdbc:postgresql://localhost/ts"},
		{"DBUser", cfg.DBUser, "postgres"},
		{"DBPassword", cfg.DBPassword, "secret"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}

func TestLoad_MissingFileIsNotAnError(t *testing.T) {
	if _, err := Load("/nonexistent/baselib.yaml"); err != nil {
		t.Errorf("Load() with missing file returned error: %v", err)
	}
}

func TestRequireAccessors(t *testing.T) {
	cfg := &Config{}
	accessors := map[string]func() (string, error){
		"sparql.query.endpoint":  cfg.RequireSparqlQueryEndpoint,
		"sparql.update.endpoint": cfg.RequireSparqlUpdateEndpoint,
		"db.url":                 cfg.RequireDBURL,
		"db.user":                cfg.RequireDBUser,
		"db.password":            cfg.RequireDBPassword,
	}
	for option, fn := range accessors {
		if _, err := fn(); err == nil {
			t.Errorf("expected ConfigError for unset %s", option)
		} else if ce, ok := err.(*ConfigError); !ok {
			t.Errorf("expected *ConfigError for unset %s, got %T", option, err)
		} else if ce.Option != option {
			t.Errorf("ConfigError.Option = %q, want %q", ce.Option, option)
		}
	}
}
