// Package server exposes the catalog over a JSON HTTP API.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Sternrassler/game-catalog/pkg/cache"
	"github.com/Sternrassler/game-catalog/pkg/catalog"
	"github.com/Sternrassler/game-catalog/pkg/metrics"
	"github.com/Sternrassler/game-catalog/pkg/query"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// MaxRandom caps the n parameter of /games/random.
const MaxRandom = 50

// Server serves catalog queries from a cache.Manager.
type Server struct {
	Manager *cache.Manager
	Log     zerolog.Logger
}

// New creates a server.
func New(manager *cache.Manager, logger zerolog.Logger) *Server {
	if manager == nil {
		panic("cache manager cannot be nil")
	}
	return &Server{Manager: manager, Log: logger}
}

// Handler returns the complete HTTP handler with middleware and /metrics.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(requestLogger(s.Log))

	r.Handle("/metrics", metrics.Handler())
	r.Mount("/", s.Routes())
	return r
}

// Routes returns the API routes without middleware.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", s.ready)

	r.Get("/games", s.listGames)
	r.Get("/games/random", s.randomGames)
	r.Get("/games/{id}", s.getGame)
	r.Get("/categories", s.listCategories)
	r.Post("/refresh", s.refresh)

	return r
}

// ready succeeds once a non-empty catalog is held in memory.
func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	if snap := s.Manager.Current(); snap == nil || snap.Len() == 0 {
		writeError(w, r, http.StatusServiceUnavailable, "not ready", nil)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// catalogInfo describes the snapshot a response was served from.
type catalogInfo struct {
	FetchedAt time.Time   `json:"fetched_at"`
	Source    cache.Layer `json:"source"`
	Stale     bool        `json:"stale"`
}

type gamesResponse struct {
	query.Page
	Category string      `json:"category,omitempty"`
	Query    string      `json:"q,omitempty"`
	Catalog  catalogInfo `json:"catalog"`
}

type randomResponse struct {
	Items   []catalog.Entry `json:"items"`
	Catalog catalogInfo     `json:"catalog"`
}

type gameResponse struct {
	Game     catalog.Entry   `json:"game"`
	Related  []catalog.Entry `json:"related"`
	Trending []catalog.Entry `json:"trending"`
	More     []catalog.Entry `json:"more"`
	Catalog  catalogInfo     `json:"catalog"`
}

type categoryCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type refreshResponse struct {
	Entries int         `json:"entries"`
	Catalog catalogInfo `json:"catalog"`
}

// snapshot loads the catalog or writes the 503 reply. ok is false when the
// reply has been written.
func (s *Server) snapshot(w http.ResponseWriter, r *http.Request) (*cache.Snapshot, catalogInfo, bool) {
	snap, err := s.Manager.GetCatalog(r.Context())
	if err != nil {
		s.unavailable(w, r, err)
		return nil, catalogInfo{}, false
	}
	return snap, s.info(snap), true
}

func (s *Server) info(snap *cache.Snapshot) catalogInfo {
	return catalogInfo{
		FetchedAt: snap.FetchedAt,
		Source:    snap.Source,
		Stale:     s.Manager.IsStale(snap),
	}
}

func (s *Server) unavailable(w http.ResponseWriter, r *http.Request, err error) {
	s.Log.Error().
		Err(err).
		Str("request_id", chimw.GetReqID(r.Context())).
		Msg("Catalog unavailable")
	writeError(w, r, http.StatusServiceUnavailable, "catalog unavailable", map[string]any{"reason": err.Error()})
}

func (s *Server) listGames(w http.ResponseWriter, r *http.Request) {
	snap, info, ok := s.snapshot(w, r)
	if !ok {
		return
	}

	params := r.URL.Query()
	category := params.Get("category")

	entries := []catalog.Entry(snap.Catalog)
	if category != "" {
		entries = snap.Index.ByCategory(category)
	}
	q := params.Get("q")
	entries = query.Filter(entries, q)

	switch params.Get("sort") {
	case "", "catalog":
	case "name":
		entries = query.SortByName(entries)
	default:
		writeError(w, r, http.StatusBadRequest, "invalid sort", map[string]any{"sort": params.Get("sort"), "allowed": []string{"catalog", "name"}})
		return
	}

	page := query.Paginate(entries, intParam(params.Get("page"), 1), intParam(params.Get("size"), query.DefaultPageSize))
	writeJSON(w, http.StatusOK, gamesResponse{
		Page:     page,
		Category: category,
		Query:    q,
		Catalog:  info,
	})
}

func (s *Server) randomGames(w http.ResponseWriter, r *http.Request) {
	snap, info, ok := s.snapshot(w, r)
	if !ok {
		return
	}

	params := r.URL.Query()
	n := intParam(params.Get("n"), 1)
	if n < 1 {
		n = 1
	}
	if n > MaxRandom {
		n = MaxRandom
	}

	entries := []catalog.Entry(snap.Catalog)
	if category := params.Get("category"); category != "" {
		entries = snap.Index.ByCategory(category)
	}

	writeJSON(w, http.StatusOK, randomResponse{
		Items:   query.PickRandom(entries, n, nil),
		Catalog: info,
	})
}

func (s *Server) getGame(w http.ResponseWriter, r *http.Request) {
	snap, info, ok := s.snapshot(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	game, found := snap.Catalog.Find(id)
	if !found {
		writeError(w, r, http.StatusNotFound, "not found", map[string]any{"id": id})
		return
	}

	writeJSON(w, http.StatusOK, gameResponse{
		Game:     game,
		Related:  query.Similar(snap.Catalog, game, query.SimilarCount, nil),
		Trending: query.Trending(snap.Catalog, query.TrendingCount, nil),
		More:     query.Related(snap.Catalog, id, nil),
		Catalog:  info,
	})
}

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	snap, _, ok := s.snapshot(w, r)
	if !ok {
		return
	}

	counts := snap.Index.Counts()
	out := make([]categoryCount, 0, len(counts))
	for _, name := range snap.Index.Categories() {
		out = append(out, categoryCount{Name: name, Count: counts[name]})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	snap, err := s.Manager.Refresh(r.Context())
	switch {
	case errors.Is(err, cache.ErrCatalogUnavailable):
		s.unavailable(w, r, err)
		return
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, r, http.StatusGatewayTimeout, "refresh timed out", map[string]any{"reason": err.Error()})
		return
	case err != nil:
		s.Log.Warn().Err(err).Msg("Manual refresh failed, previous catalog kept")
		writeError(w, r, http.StatusBadGateway, "refresh failed", map[string]any{
			"reason":  err.Error(),
			"entries": snap.Len(),
			"catalog": s.info(snap),
		})
		return
	}

	writeJSON(w, http.StatusOK, refreshResponse{
		Entries: snap.Len(),
		Catalog: s.info(snap),
	})
}

// intParam parses a positive query parameter. Missing or malformed values
// yield def; range clamping is left to the caller.
func intParam(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
