// Command baselib-demo wires the Time-Series Coordinator and the Derived-Quantity
// Engine behind an HTTP API, the composition root a host application would otherwise
// write for itself.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/TheWorldAvatar/BaseLib/agentcaller"
	"github.com/TheWorldAvatar/BaseLib/api"
	"github.com/TheWorldAvatar/BaseLib/config"
	"github.com/TheWorldAvatar/BaseLib/derivation"
	"github.com/TheWorldAvatar/BaseLib/internal/logger"
	"github.com/TheWorldAvatar/BaseLib/rdb"
	"github.com/TheWorldAvatar/BaseLib/sparql"
	"github.com/TheWorldAvatar/BaseLib/timeseries"
)

func main() {
	configPath := flag.String("config", "", "path to a .properties/.yaml/.json/.toml configuration file")
	logLevel := flag.String("log-level", "info", "debug|info|warn|error")
	port := flag.Int("port", 8080, "HTTP listen port")
	sqlitePath := flag.String("sqlite", ":memory:", "path to the SQLite database backing time-series data, or :memory:")
	flag.Parse()

	logger.Setup(*logLevel, "console")

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	queryEndpoint, err := cfg.RequireSparqlQueryEndpoint()
	if err != nil {
		log.Fatal().Err(err).Msg("sparql.query.endpoint is required")
	}
	updateEndpoint, err := cfg.RequireSparqlUpdateEndpoint()
	if err != nil {
		log.Fatal().Err(err).Msg("sparql.update.endpoint is required")
	}
	gateway := sparql.NewHTTPGateway(queryEndpoint, updateEndpoint)

	db, err := rdb.OpenSQLite(ctx, *sqlitePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open the relational store")
	}
	defer db.Close()

	tsMetadata := timeseries.NewMetadata(gateway)
	tsStorage := timeseries.NewStorage[int64](timeseries.DialectSQLite, timeseries.Int64Codec{})
	coordinator := timeseries.NewCoordinator[int64](tsMetadata, tsStorage)

	derivationMetadata := derivation.NewMetadata(gateway)
	caller := agentcaller.NewHTTPCaller(nil)
	engine := derivation.NewEngine(derivationMetadata, caller)

	server := api.NewServer(&api.ServerConfig{Port: *port}, log.Logger)
	api.NewTimeSeriesHandler(coordinator, db, log.Logger).RegisterRoutes(server.App())
	api.NewDerivationHandler(engine, log.Logger).RegisterRoutes(server.App())

	if err := server.Listen(); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
