// Package server exposes a search index over HTTP. It is an embedding
// of the execution engine: queries are parsed, executed against a
// single index source and the matched documents returned as JSON.
package server

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/andy-wagner/Trinity/exec"
	"github.com/andy-wagner/Trinity/index"
	"github.com/andy-wagner/Trinity/query"
)

func writeResponse(w http.ResponseWriter, status int, response interface{}) {
	body, err := json.Marshal(response)
	if err != nil {
		log.Printf("error while serializing JSON response (%v)", err)
		writeErrorResponse(w, http.StatusInternalServerError, "JSON serialization error")
		return
	}
	body = append(body, '\n')
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	w.Write(body)
}

func writeErrorResponse(w http.ResponseWriter, status int, message string) {
	writeResponse(w, status, map[string]string{"message": message})
}

// MatchedTerm is one captured query term of a matched document.
type MatchedTerm struct {
	Token     string   `json:"token"`
	Positions []uint16 `json:"positions,omitempty"`
}

// SearchHit is one matched document.
type SearchHit struct {
	DocID uint32        `json:"docid"`
	Terms []MatchedTerm `json:"terms"`
}

// SearchResponse is the body of a /search reply.
type SearchResponse struct {
	Total   int         `json:"total"`
	Hits    []SearchHit `json:"hits"`
	Elapsed string      `json:"elapsed"`
}

// Server serves queries against one index source.
type Server struct {
	src    index.Source
	masked index.MaskedDocumentsRegistry
	cfg    *Config
}

func NewServer(src index.Source, masked index.MaskedDocumentsRegistry, cfg *Config) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Server{src: src, masked: masked, cfg: cfg}
}

// collectingFilter gathers matched documents up to a limit, then
// aborts the query.
type collectingFilter struct {
	hits  []SearchHit
	limit int
}

func (f *collectingFilter) Consider(doc *index.MatchedDocument, dws *index.DocWordsSpace) index.ConsiderResponse {
	hit := SearchHit{DocID: doc.ID, Terms: make([]MatchedTerm, 0, len(doc.Terms))}
	for _, mt := range doc.Terms {
		term := MatchedTerm{Token: mt.Instances.Token}
		for _, h := range mt.Hits.Hits {
			if h.Pos != 0 {
				term.Positions = append(term.Positions, h.Pos)
			}
		}
		hit.Terms = append(hit.Terms, term)
	}
	f.hits = append(f.hits, hit)
	if f.limit > 0 && len(f.hits) >= f.limit {
		return index.Abort
	}
	return index.Continue
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	input := r.URL.Query().Get("q")
	if input == "" {
		queriesTotal.WithLabelValues("bad_request").Inc()
		writeErrorResponse(w, http.StatusBadRequest, "missing query parameter 'q'")
		return
	}

	q, err := query.Parse(input)
	if err != nil {
		queriesTotal.WithLabelValues("bad_request").Inc()
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	filter := &collectingFilter{limit: s.cfg.MaxResults}
	started := time.Now()
	err = exec.Exec(q, s.src, s.masked, filter)
	elapsed := time.Since(started)
	if err != nil {
		log.Printf("query %q failed (%v)", input, err)
		queriesTotal.WithLabelValues("error").Inc()
		writeErrorResponse(w, http.StatusInternalServerError, "query execution failed")
		return
	}

	queriesTotal.WithLabelValues("ok").Inc()
	queryDuration.Observe(elapsed.Seconds())
	matchedDocuments.Add(float64(len(filter.hits)))

	writeResponse(w, http.StatusOK, &SearchResponse{
		Total:   len(filter.hits),
		Hits:    filter.hits,
		Elapsed: elapsed.String(),
	})
}

type statsResponse struct {
	NumDocs  int `json:"ndocs"`
	NumTerms int `json:"nterms"`
}

// Stats is implemented by sources that can report their size; the
// bundled segment does.
type Stats interface {
	NumDocs() int
	NumTerms() int
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	var response statsResponse
	if stats, ok := s.src.(Stats); ok {
		response.NumDocs = stats.NumDocs()
		response.NumTerms = stats.NumTerms()
	}
	writeResponse(w, http.StatusOK, &response)
}

// Handler builds the HTTP routing table.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Path("/search").Methods("GET").HandlerFunc(s.handleSearch)
	r.Path("/stats").Methods("GET").HandlerFunc(s.handleStats)
	r.Path("/metrics").Methods("GET").Handler(promhttp.Handler())
	return r
}

// ListenAndServe runs the server until the listener fails.
func (s *Server) ListenAndServe() error {
	log.Printf("listening on %v", s.cfg.Listen)
	return http.ListenAndServe(s.cfg.Listen, s.Handler())
}
