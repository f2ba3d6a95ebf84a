package sparql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/TheWorldAvatar/BaseLib/internal/logger"
)

// HTTPGateway talks to a remote SPARQL 1.1 endpoint over HTTP: build a request with
// http.NewRequestWithContext, set the content type, decode the response body, log with
// zerolog. Query and update traffic can be routed to different endpoints, matching a
// triple store that separates a read replica from its writer.
type HTTPGateway struct {
	queryEndpoint  string
	updateEndpoint string
	httpClient     *http.Client
	logger         zerolog.Logger
}

// NewHTTPGateway constructs a gateway against the given query and update endpoints.
func NewHTTPGateway(queryEndpoint, updateEndpoint string) *HTTPGateway {
	return &HTTPGateway{
		queryEndpoint:  queryEndpoint,
		updateEndpoint: updateEndpoint,
		httpClient:     &http.Client{},
		logger:         logger.Get("sparql"),
	}
}

var _ Gateway = (*HTTPGateway)(nil)

func term(value string, literal bool) string {
	if literal {
		return `"` + strings.ReplaceAll(value, `"`, `\"`) + `"`
	}
	return "<" + value + ">"
}

func (g *HTTPGateway) AssertTriples(ctx context.Context, triples []Triple) error {
	if len(triples) == 0 {
		return nil
	}
	var b strings.Builder
	b.WriteString("INSERT DATA {\n")
	for _, t := range triples {
		fmt.Fprintf(&b, "  <%s> <%s> %s .\n", t.Subject, t.Predicate, term(t.Object, t.Literal))
	}
	b.WriteString("}")
	return g.update(ctx, b.String())
}

func (g *HTTPGateway) RemoveTriplesAbout(ctx context.Context, iri string) error {
	query := fmt.Sprintf(`DELETE { ?s ?p ?o }
WHERE {
  { BIND(<%s> AS ?s) . ?s ?p ?o }
  UNION
  { BIND(<%s> AS ?o) . ?s ?p ?o }
}`, iri, iri)
	return g.update(ctx, query)
}

func (g *HTTPGateway) RemoveTriple(ctx context.Context, subject, predicate string) error {
	query := fmt.Sprintf(`DELETE WHERE { <%s> <%s> ?o }`, subject, predicate)
	return g.update(ctx, query)
}

func (g *HTTPGateway) ReplaceObject(ctx context.Context, subject, predicate string, replacement Triple) error {
	query := fmt.Sprintf(`DELETE { <%s> <%s> ?o }
INSERT { <%s> <%s> %s }
WHERE { OPTIONAL { <%s> <%s> ?o } }`,
		subject, predicate,
		subject, predicate, term(replacement.Object, replacement.Literal),
		subject, predicate)
	return g.update(ctx, query)
}

func (g *HTTPGateway) Ask(ctx context.Context, subject, predicate, object string) (bool, error) {
	var query string
	if object == "" {
		query = fmt.Sprintf(`ASK { <%s> <%s> ?o }`, subject, predicate)
	} else {
		query = fmt.Sprintf(`ASK { <%s> <%s> <%s> }`, subject, predicate, object)
	}
	results, err := g.query(ctx, query)
	if err != nil {
		return false, err
	}
	if results.Boolean == nil {
		return false, fmt.Errorf("sparql: ASK query did not return a boolean result")
	}
	return *results.Boolean, nil
}

func (g *HTTPGateway) Objects(ctx context.Context, subject, predicate string) ([]string, error) {
	query := fmt.Sprintf(`SELECT ?o WHERE { <%s> <%s> ?o }`, subject, predicate)
	results, err := g.query(ctx, query)
	if err != nil {
		return nil, err
	}
	return column(results, "o"), nil
}

func (g *HTTPGateway) Subjects(ctx context.Context, predicate, object string) ([]string, error) {
	query := fmt.Sprintf(`SELECT ?s WHERE { ?s <%s> <%s> }`, predicate, object)
	results, err := g.query(ctx, query)
	if err != nil {
		return nil, err
	}
	return column(results, "s"), nil
}

func (g *HTTPGateway) SubjectsOfType(ctx context.Context, class string) ([]string, error) {
	return g.Subjects(ctx, RDFType, class)
}

func (g *HTTPGateway) CountOfType(ctx context.Context, class string) (int, error) {
	query := fmt.Sprintf(`SELECT (COUNT(?s) AS ?n) WHERE { ?s a <%s> }`, class)
	results, err := g.query(ctx, query)
	if err != nil {
		return 0, err
	}
	values := column(results, "n")
	if len(values) == 0 {
		return 0, nil
	}
	n, err := strconv.Atoi(values[0])
	if err != nil {
		return 0, fmt.Errorf("sparql: non-numeric count result %q: %w", values[0], err)
	}
	return n, nil
}

func (g *HTTPGateway) TriplesAbout(ctx context.Context, iri string) ([]Triple, error) {
	outgoing, err := g.query(ctx, fmt.Sprintf(`SELECT ?p ?o WHERE { <%s> ?p ?o }`, iri))
	if err != nil {
		return nil, err
	}
	incoming, err := g.query(ctx, fmt.Sprintf(`SELECT ?s ?p WHERE { ?s ?p <%s> }`, iri))
	if err != nil {
		return nil, err
	}

	var triples []Triple
	for _, binding := range outgoing.Results.Bindings {
		obj := binding["o"]
		triples = append(triples, Triple{Subject: iri, Predicate: binding["p"].Value, Object: obj.Value, Literal: obj.Type == "literal"})
	}
	for _, binding := range incoming.Results.Bindings {
		triples = append(triples, Triple{Subject: binding["s"].Value, Predicate: binding["p"].Value, Object: iri})
	}
	return triples, nil
}

func column(results *sparqlJSONResults, variable string) []string {
	values := make([]string, 0, len(results.Results.Bindings))
	for _, binding := range results.Results.Bindings {
		if v, ok := binding[variable]; ok {
			values = append(values, v.Value)
		}
	}
	return values
}

type sparqlJSONResults struct {
	Head struct {
		Vars []string `json:"vars"`
	} `json:"head"`
	Results struct {
		Bindings []map[string]sparqlJSONBinding `json:"bindings"`
	} `json:"results"`
	Boolean *bool `json:"boolean"`
}

type sparqlJSONBinding struct {
	Value string `json:"value"`
	Type  string `json:"type"` // "uri" or "literal"
}

func (g *HTTPGateway) query(ctx context.Context, query string) (*sparqlJSONResults, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.queryEndpoint, bytes.NewBufferString(query))
	if err != nil {
		return nil, fmt.Errorf("sparql: failed to build query request: %w", err)
	}
	req.Header.Set("Content-Type", "application/sparql-query")
	req.Header.Set("Accept", "application/sparql-results+json")

	g.logger.Debug().Str("query", query).Msg("executing SPARQL query")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sparql: query request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("sparql: failed to read query response: %w", err)
	}
	if resp.StatusCode >= 300 {
		g.logger.Error().Int("status", resp.StatusCode).Bytes("body", body).Msg("SPARQL query rejected")
		return nil, fmt.Errorf("sparql: query rejected with status %d: %s", resp.StatusCode, body)
	}

	var results sparqlJSONResults
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("sparql: failed to decode query response: %w", err)
	}
	return &results, nil
}

func (g *HTTPGateway) update(ctx context.Context, update string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.updateEndpoint, bytes.NewBufferString(update))
	if err != nil {
		return fmt.Errorf("sparql: failed to build update request: %w", err)
	}
	req.Header.Set("Content-Type", "application/sparql-update")

	g.logger.Debug().Str("update", update).Msg("executing SPARQL update")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sparql: update request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		g.logger.Error().Int("status", resp.StatusCode).Bytes("body", body).Msg("SPARQL update rejected")
		return fmt.Errorf("sparql: update rejected with status %d: %s", resp.StatusCode, body)
	}
	return nil
}
