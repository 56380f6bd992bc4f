package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"modelardb-sim/internal/logging"
	"modelardb-sim/internal/query"
	"modelardb-sim/internal/ratio"
	"modelardb-sim/internal/registry"
	"modelardb-sim/internal/sim"
)

// FaultInjector takes simulated nodes offline.
type FaultInjector interface {
	SetOffline(url string, offline bool) error
	Offline() []string
}

// Server is the HTTP command boundary of the simulator.
type Server struct {
	Sim    *sim.Simulator
	Query  query.Engine
	Faults FaultInjector
	Ratio  *ratio.Tracker

	upgrader websocket.Upgrader
	mux      *http.ServeMux
}

// NewServer wires the routes. q, faults, and tracker may be nil; their routes
// then answer 501.
func NewServer(s *sim.Simulator, q query.Engine, faults FaultInjector, tracker *ratio.Tracker) *Server {
	srv := &Server{
		Sim:    s,
		Query:  q,
		Faults: faults,
		Ratio:  tracker,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		mux: http.NewServeMux(),
	}
	srv.routes()
	return srv
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /commands/create-tables", s.handleCreateTables)
	s.mux.HandleFunc("POST /commands/ingest", s.handleIngest)
	s.mux.HandleFunc("POST /commands/flush", s.handleFlush)
	s.mux.HandleFunc("POST /commands/monitor", s.handleMonitor)
	s.mux.HandleFunc("POST /commands/monitor-remote-object-stores", s.handleMonitor)
	s.mux.HandleFunc("POST /commands/reset", s.handleReset)
	s.mux.HandleFunc("GET /snapshot", s.handleSnapshot)
	s.mux.HandleFunc("GET /tables", s.handleTables)
	s.mux.HandleFunc("GET /nodes", s.handleNodes)
	s.mux.HandleFunc("POST /nodes/offline", s.handleOffline)
	s.mux.HandleFunc("POST /client/query", s.handleClientQuery)
	s.mux.HandleFunc("GET /client/tables", s.handleClientTables)
	s.mux.HandleFunc("GET /ratio", s.handleRatio)
	s.mux.HandleFunc("GET /events", s.handleEvents)
	s.mux.Handle("GET /metrics", promhttp.Handler())
}

// Handler returns the route multiplexer.
func (s *Server) Handler() http.Handler { return s.mux }

// Start serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	hs := &http.Server{Addr: addr, Handler: s.mux, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- hs.ListenAndServe() }()
	logging.FromContext(ctx).Info("admin server listening", "addr", addr)
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return hs.Shutdown(shutdownCtx)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var qerr *query.Error
	switch {
	case errors.Is(err, sim.ErrUnknownTable), errors.Is(err, sim.ErrInvalidInterval), errors.Is(err, sim.ErrInvalidTicks), errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, sim.ErrNotRunning):
		status = http.StatusConflict
	case errors.Is(err, sim.ErrClosed):
		status = http.StatusServiceUnavailable
	case errors.As(err, &qerr):
		writeJSON(w, http.StatusUnprocessableEntity, qerr)
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

var errBadRequest = errors.New("bad request")

func decode(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Join(errBadRequest, err)
	}
	return nil
}

// intervalRequest carries an interval in seconds. Fractions are accepted.
type intervalRequest struct {
	IntervalSeconds float64 `json:"interval_seconds"`
}

func (r intervalRequest) duration() time.Duration {
	return time.Duration(r.IntervalSeconds * float64(time.Second))
}

type ingestRequest struct {
	TableName string `json:"table_name"`
	Count     uint32 `json:"count"`
	Ticks     int    `json:"ticks"`
}

func (s *Server) handleCreateTables(w http.ResponseWriter, r *http.Request) {
	if err := s.Sim.CreateTables(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	if s.Ratio != nil {
		s.Ratio.Reset()
	}
	writeJSON(w, http.StatusOK, s.Sim.Snapshot())
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.Sim.IngestIntoTable(req.TableName, req.Count, req.Ticks); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	var req intervalRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.Sim.FlushNodes(req.duration()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleMonitor(w http.ResponseWriter, r *http.Request) {
	var req intervalRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.Sim.MonitorRemoteObjectStores(req.duration()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.Sim.ResetState()
	if s.Ratio != nil {
		s.Ratio.Reset()
	}
	writeJSON(w, http.StatusOK, s.Sim.Snapshot())
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Sim.Snapshot())
}

type tableView struct {
	Name        string   `json:"name"`
	ErrorBound  string   `json:"error_bound"`
	BytesPerRow uint64   `json:"bytes_per_row"`
	Tags        []string `json:"tags"`
	Fields      []string `json:"fields"`
}

func (s *Server) handleTables(w http.ResponseWriter, r *http.Request) {
	var out []tableView
	for _, t := range s.Sim.Registry().Tables() {
		out = append(out, tableView{
			Name:        t.Name,
			ErrorBound:  t.ErrorBound.String(),
			BytesPerRow: t.BytesPerRow(),
			Tags:        t.Tags,
			Fields:      t.Fields,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type nodeView struct {
	Type       registry.DeploymentType `json:"type"`
	URL        string                  `json:"url,omitempty"`
	ServerMode registry.ServerMode     `json:"server_mode"`
	Bucket     string                  `json:"bucket,omitempty"`
	Latitude   float64                 `json:"latitude"`
	Longitude  float64                 `json:"longitude"`
	Offline    bool                    `json:"offline"`
}

func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	offline := map[string]bool{}
	if s.Faults != nil {
		for _, url := range s.Faults.Offline() {
			offline[url] = true
		}
	}
	var out []nodeView
	for _, n := range s.Sim.Registry().Nodes() {
		out = append(out, nodeView{
			Type:       n.Type,
			URL:        n.URL,
			ServerMode: n.Mode,
			Bucket:     n.Bucket,
			Latitude:   n.Position.Latitude,
			Longitude:  n.Position.Longitude,
			Offline:    offline[n.URL],
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleOffline(w http.ResponseWriter, r *http.Request) {
	if s.Faults == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "fault injection needs the simulated backend"})
		return
	}
	var req struct {
		URL     string `json:"url"`
		Offline bool   `json:"offline"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.Faults.SetOffline(req.URL, req.Offline); err != nil {
		writeError(w, errors.Join(errBadRequest, err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClientQuery(w http.ResponseWriter, r *http.Request) {
	if s.Query == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "no query engine"})
		return
	}
	var req struct {
		URL   string `json:"url"`
		Query string `json:"query"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := s.Query.Query(r.Context(), req.URL, req.Query)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleClientTables(w http.ResponseWriter, r *http.Request) {
	if s.Query == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "no query engine"})
		return
	}
	tables, err := s.Query.Tables(r.Context(), r.URL.Query().Get("url"))
	if err != nil {
		writeError(w, err)
		return
	}
	if tables == nil {
		tables = []query.TableSchema{}
	}
	writeJSON(w, http.StatusOK, tables)
}

func (s *Server) handleRatio(w http.ResponseWriter, r *http.Request) {
	if s.Ratio == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "ratio tracking disabled"})
		return
	}
	out := make([]ratio.Summary, 0, len(registry.DeploymentTypes))
	for _, t := range registry.DeploymentTypes {
		out = append(out, s.Ratio.Summary(string(t)))
	}
	writeJSON(w, http.StatusOK, out)
}
