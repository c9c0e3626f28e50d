package web

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"todocal/internal/config"
	"todocal/internal/ics"
	appLog "todocal/internal/log"
	"todocal/internal/model"
	"todocal/internal/recur"
	"todocal/internal/store"
)

// Server exposes the stored calendar as a read-only JSON API.
type Server struct {
	cfg      *config.Config
	store    *store.Store
	expander recur.Expander
	now      func() time.Time
	mux      *http.ServeMux
}

// NewServer constructs a new Server. loc is the zone occurrences are
// expanded and reported in.
func NewServer(cfg *config.Config, st *store.Store, loc *time.Location) *Server {
	if loc == nil {
		loc = time.UTC
	}
	s := &Server{
		cfg:      cfg,
		store:    st,
		expander: recur.Expander{Location: loc},
		now:      time.Now,
		mux:      http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// An empty username or password disables auth.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="todocal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// ListenAndServe serves the API on cfg.Listen until ctx is done, then
// shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/occurrences", s.handleOccurrences)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("GET /api/events/{id}", s.handleEvent)
	s.mux.HandleFunc("GET /api/todos", s.handleTodos)
	s.mux.HandleFunc("GET /calendar.ics", s.handleICS)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// occurrencesResponse is the JSON response shape for /api/occurrences.
type occurrencesResponse struct {
	Occurrences     []occurrenceDTO `json:"occurrences"`
	RangeStart      time.Time       `json:"range_start"`
	RangeEnd        time.Time       `json:"range_end"`
	DisplayTimeZone string          `json:"display_timezone"`
}

// occurrenceDTO is a JSON-friendly view of model.Occurrence.
type occurrenceDTO struct {
	EventID     model.ID     `json:"event_id"`
	InstanceKey string       `json:"instance_key"`
	Title       string       `json:"title"`
	Color       string       `json:"color"`
	Icon        model.Icon   `json:"icon"`
	Repeat      model.Repeat `json:"repeat"`
	Source      string       `json:"source"`
	Start       time.Time    `json:"start"`
	End         time.Time    `json:"end"`
}

// handleOccurrences returns expanded occurrences of the stored events
// within a window.
//
// GET /api/occurrences?from=RFC3339&to=RFC3339
// GET /api/occurrences?days=7&backfill=1
//   - from/to take precedence when both are given.
//   - days defaults to 7, backfill (days before now) to 1.
//   - google=1 also includes the imported Google calendar events.
func (s *Server) handleOccurrences(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	loc := s.expander.Location

	var from, to time.Time
	if q.Get("from") != "" || q.Get("to") != "" {
		var err error
		if from, err = time.Parse(time.RFC3339, q.Get("from")); err != nil {
			writeError(w, http.StatusBadRequest, "invalid from: want RFC3339")
			return
		}
		if to, err = time.Parse(time.RFC3339, q.Get("to")); err != nil {
			writeError(w, http.StatusBadRequest, "invalid to: want RFC3339")
			return
		}
		from, to = from.In(loc), to.In(loc)
	} else {
		days := parseIntDefault(q.Get("days"), 7)
		if days <= 0 {
			days = 7
		}
		backfill := parseIntDefault(q.Get("backfill"), 1)
		if backfill < 0 {
			backfill = 0
		}
		now := s.now().In(loc)
		from = now.AddDate(0, 0, -backfill)
		to = now.AddDate(0, 0, days)
	}
	if !from.Before(to) {
		writeError(w, http.StatusBadRequest, "from must be before to")
		return
	}

	events, err := s.store.Events.All(ctx)
	if err != nil {
		s.storeError(w, "api occurrences: load events", err)
		return
	}
	dtos := toDTOs(s.expander.ExpandAll(events, from, to), "local")

	if q.Get("google") == "1" {
		gevents, err := s.store.GoogleEvents.All(ctx)
		if err != nil {
			s.storeError(w, "api occurrences: load google events", err)
			return
		}
		dtos = mergeByStart(dtos, toDTOs(s.expander.ExpandAll(gevents, from, to), "google"))
	}

	appLog.Debug("api occurrences request",
		"range_start", from.Format(time.RFC3339),
		"range_end", to.Format(time.RFC3339),
		"count", len(dtos),
	)

	writeJSON(w, http.StatusOK, occurrencesResponse{
		Occurrences:     dtos,
		RangeStart:      from,
		RangeEnd:        to,
		DisplayTimeZone: loc.String(),
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.store.Events.All(r.Context())
	if err != nil {
		s.storeError(w, "api events", err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := s.store.Events.Get(r.Context(), model.ID(r.PathValue("id")))
	if err != nil {
		s.storeError(w, "api event", err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleTodos(w http.ResponseWriter, r *http.Request) {
	todos, err := s.store.Todos.All(r.Context())
	if err != nil {
		s.storeError(w, "api todos", err)
		return
	}
	writeJSON(w, http.StatusOK, todos)
}

// handleICS serves the stored events as an iCalendar subscription feed.
func (s *Server) handleICS(w http.ResponseWriter, r *http.Request) {
	events, err := s.store.Events.All(r.Context())
	if err != nil {
		s.storeError(w, "api ics", err)
		return
	}
	var buf bytes.Buffer
	if err := ics.Encode(&buf, events); err != nil {
		appLog.Error("api ics: encode failed", err)
		writeError(w, http.StatusInternalServerError, "failed to encode calendar")
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) storeError(w http.ResponseWriter, msg string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	appLog.Error(msg, err)
	writeError(w, http.StatusInternalServerError, "storage unavailable")
}

func toDTOs(occs []model.Occurrence, source string) []occurrenceDTO {
	out := make([]occurrenceDTO, 0, len(occs))
	for _, o := range occs {
		out = append(out, occurrenceDTO{
			EventID:     o.EventID,
			InstanceKey: o.InstanceKey,
			Title:       o.Title,
			Color:       o.Color,
			Icon:        o.Icon,
			Repeat:      o.Repeat,
			Source:      source,
			Start:       o.Start,
			End:         o.End,
		})
	}
	return out
}

// mergeByStart merges two start-ordered lists, keeping a before b on ties.
func mergeByStart(a, b []occurrenceDTO) []occurrenceDTO {
	out := make([]occurrenceDTO, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if b[j].Start.Before(a[i].Start) {
			out = append(out, b[j])
			j++
			continue
		}
		out = append(out, a[i])
		i++
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
