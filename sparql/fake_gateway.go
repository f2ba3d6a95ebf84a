package sparql

import (
	"context"
	"fmt"
	"sync"
)

// FakeGateway is an in-memory triple store implementing Gateway. It ships alongside the
// package for use by timeseries and derivation tests, so they can exercise real
// compensation and rollback logic without a live triple store.
type FakeGateway struct {
	mu      sync.Mutex
	triples []Triple
}

// NewFakeGateway returns an empty in-memory store.
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{}
}

var _ Gateway = (*FakeGateway)(nil)

// Triples returns a snapshot of every triple currently held, for test assertions.
func (g *FakeGateway) Triples() []Triple {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Triple, len(g.triples))
	copy(out, g.triples)
	return out
}

func (g *FakeGateway) AssertTriples(ctx context.Context, triples []Triple) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.triples = append(g.triples, triples...)
	return nil
}

func (g *FakeGateway) RemoveTriplesAbout(ctx context.Context, iri string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	kept := g.triples[:0]
	for _, t := range g.triples {
		if t.Subject == iri || (!t.Literal && t.Object == iri) {
			continue
		}
		kept = append(kept, t)
	}
	g.triples = kept
	return nil
}

func (g *FakeGateway) RemoveTriple(ctx context.Context, subject, predicate string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	kept := g.triples[:0]
	for _, t := range g.triples {
		if t.Subject == subject && t.Predicate == predicate {
			continue
		}
		kept = append(kept, t)
	}
	g.triples = kept
	return nil
}

func (g *FakeGateway) ReplaceObject(ctx context.Context, subject, predicate string, replacement Triple) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	kept := g.triples[:0]
	for _, t := range g.triples {
		if t.Subject == subject && t.Predicate == predicate {
			continue
		}
		kept = append(kept, t)
	}
	replacement.Subject = subject
	replacement.Predicate = predicate
	g.triples = append(kept, replacement)
	return nil
}

func (g *FakeGateway) Ask(ctx context.Context, subject, predicate, object string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, t := range g.triples {
		if t.Subject != subject || t.Predicate != predicate {
			continue
		}
		if object == "" || t.Object == object {
			return true, nil
		}
	}
	return false, nil
}

func (g *FakeGateway) Objects(ctx context.Context, subject, predicate string) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []string
	for _, t := range g.triples {
		if t.Subject == subject && t.Predicate == predicate {
			out = append(out, t.Object)
		}
	}
	return out, nil
}

func (g *FakeGateway) Subjects(ctx context.Context, predicate, object string) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []string
	for _, t := range g.triples {
		if t.Predicate == predicate && t.Object == object {
			out = append(out, t.Subject)
		}
	}
	return out, nil
}

func (g *FakeGateway) SubjectsOfType(ctx context.Context, class string) ([]string, error) {
	return g.Subjects(ctx, RDFType, class)
}

func (g *FakeGateway) CountOfType(ctx context.Context, class string) (int, error) {
	subjects, err := g.SubjectsOfType(ctx, class)
	if err != nil {
		return 0, err
	}
	return len(subjects), nil
}

func (g *FakeGateway) TriplesAbout(ctx context.Context, iri string) ([]Triple, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []Triple
	for _, t := range g.triples {
		if t.Subject == iri || (!t.Literal && t.Object == iri) {
			out = append(out, t)
		}
	}
	return out, nil
}

// Dump renders the store as N-Triples-like lines, useful when a failing test needs to
// show what state a scenario left behind.
func (g *FakeGateway) Dump() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := ""
	for _, t := range g.triples {
		obj := "<" + t.Object + ">"
		if t.Literal {
			obj = fmt.Sprintf("%q", t.Object)
		}
		out += fmt.Sprintf("<%s> <%s> %s .\n", t.Subject, t.Predicate, obj)
	}
	return out
}
