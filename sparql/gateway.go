// Package sparql is the Triple-Store Gateway collaborator. It exposes query
// (select/ask) and update (insert/delete) capability as a small set of typed,
// vocabulary-agnostic triple operations rather than a raw string-in/JSON-out transport:
// HTTPGateway translates each operation into real SPARQL 1.1 sent to an endpoint, while a
// FakeGateway used in tests needs no SPARQL parser at all. Implementing a SPARQL engine is
// explicitly out of scope; this package implements neither a parser nor a query planner.
package sparql

import "context"

// Triple is one RDF statement. Object is an IRI unless Literal is set, in which case it
// is serialised as a plain literal.
type Triple struct {
	Subject   string
	Predicate string
	Object    string
	Literal   bool
}

// IRI constructs a Triple whose object is an IRI.
func IRI(subject, predicate, object string) Triple {
	return Triple{Subject: subject, Predicate: predicate, Object: object}
}

// Lit constructs a Triple whose object is a plain literal.
func Lit(subject, predicate, object string) Triple {
	return Triple{Subject: subject, Predicate: predicate, Object: object, Literal: true}
}

// Gateway is the interface the timeseries and derivation packages depend on.
type Gateway interface {
	// AssertTriples inserts every triple in one atomic update.
	AssertTriples(ctx context.Context, triples []Triple) error

	// RemoveTriplesAbout deletes every triple in which iri appears as subject or object.
	RemoveTriplesAbout(ctx context.Context, iri string) error

	// RemoveTriple deletes every triple matching (subject, predicate, *).
	RemoveTriple(ctx context.Context, subject, predicate string) error

	// ReplaceObject atomically removes any (subject, predicate, *) triple and inserts
	// the given replacement, in one update.
	ReplaceObject(ctx context.Context, subject, predicate string, replacement Triple) error

	// Ask reports whether a triple matching (subject, predicate, object) exists. An
	// empty object matches any object, i.e. a predicate-existence check.
	Ask(ctx context.Context, subject, predicate, object string) (bool, error)

	// Objects returns every object bound to (subject, predicate).
	Objects(ctx context.Context, subject, predicate string) ([]string, error)

	// Subjects returns every subject bound to (predicate, object).
	Subjects(ctx context.Context, predicate, object string) ([]string, error)

	// SubjectsOfType returns every subject whose rdf:type is class.
	SubjectsOfType(ctx context.Context, class string) ([]string, error)

	// CountOfType returns the number of subjects whose rdf:type is class.
	CountOfType(ctx context.Context, class string) (int, error)

	// TriplesAbout returns every triple in which iri appears as subject or object,
	// needed by operations (such as a bulk identifier rename) that must read a node's
	// statements before removing it.
	TriplesAbout(ctx context.Context, iri string) ([]Triple, error)
}

// RDFType is the well-known rdf:type predicate used for class membership checks.
const RDFType = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"
