package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/playsight/go-playsight/session"
	"github.com/playsight/go-playsight/stats"
)

const apiWriteTimeout = 10 * time.Second

type ApiEventType string

const (
	ApiEventTypeStageChange  ApiEventType = "stage_change"
	ApiEventTypeSessionEnded ApiEventType = "session_ended"
)

type ApiEvent struct {
	Type ApiEventType `json:"type"`
	Data any          `json:"data,omitempty"`
}

type ApiEventDataStageChange struct {
	Stage         string `json:"stage"`
	PreviousStage string `json:"previous_stage"`
}

// ApiServer is the in-process debug and snapshot surface: it serves the
// session record, the latest quality snapshot, startup latency aggregates
// and Prometheus metrics, and pushes stage changes to websocket clients.
type ApiServer struct {
	allowOrigin string

	listener net.Listener
	server   *http.Server

	bindings *Bindings
	stats    *stats.StartupStats

	// snapshotLock guards the latest published session record
	snapshotLock sync.RWMutex
	snapshot     *session.Snapshot

	clients     []*websocket.Conn
	clientsLock sync.RWMutex
}

func NewApiServer(address, allowOrigin string, bindings *Bindings, startupStats *stats.StartupStats, metricsHandler http.Handler) (*ApiServer, error) {
	s := &ApiServer{
		allowOrigin: allowOrigin,
		bindings:    bindings,
		stats:       startupStats,
	}

	var err error
	s.listener, err = net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}

	router := chi.NewRouter()
	router.Get("/session", s.handleSession)
	router.Get("/quality", s.handleQuality)
	router.Get("/startup/stats", s.handleStartupStats)
	router.Get("/events", s.handleEvents)
	router.Method(http.MethodGet, "/metrics", metricsHandler)

	var handler http.Handler = router
	if s.allowOrigin != "" {
		handler = cors.New(cors.Options{
			AllowedOrigins: []string{s.allowOrigin},
			AllowedMethods: []string{http.MethodGet},
		}).Handler(handler)
	}

	s.server = &http.Server{Handler: handler}

	go func() {
		if err := s.server.Serve(s.listener); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Errorf("api server failed")
		}
	}()

	log.Infof("api server listening on %s", s.listener.Addr())
	return s, nil
}

// PublishSessionSnapshot is the session machine's snapshot sink.
func (s *ApiServer) PublishSessionSnapshot(snapshot *session.Snapshot) {
	s.snapshotLock.Lock()
	s.snapshot = snapshot
	s.snapshotLock.Unlock()
}

// LastSessionSnapshot returns the most recently published record, for
// persisting exit diagnostics on shutdown.
func (s *ApiServer) LastSessionSnapshot() *session.Snapshot {
	s.snapshotLock.RLock()
	defer s.snapshotLock.RUnlock()
	return s.snapshot
}

// OnStageChange implements session.Listener, pushing effective transitions
// to every connected client.
func (s *ApiServer) OnStageChange(newStage, previousStage session.Stage) {
	s.emitEvent(&ApiEvent{
		Type: ApiEventTypeStageChange,
		Data: ApiEventDataStageChange{
			Stage:         newStage.String(),
			PreviousStage: previousStage.String(),
		},
	})
}

// OnSessionEnded implements session.Listener.
func (s *ApiServer) OnSessionEnded() {
	s.emitEvent(&ApiEvent{Type: ApiEventTypeSessionEnded})
}

func (s *ApiServer) emitEvent(event *ApiEvent) {
	s.clientsLock.RLock()
	defer s.clientsLock.RUnlock()

	for _, client := range s.clients {
		ctx, cancel := context.WithTimeout(context.Background(), apiWriteTimeout)
		if err := wsjson.Write(ctx, client, event); err != nil {
			log.WithError(err).Debugf("failed sending event to client")
		}
		cancel()
	}
}

func (s *ApiServer) handleSession(w http.ResponseWriter, r *http.Request) {
	s.snapshotLock.RLock()
	snapshot := s.snapshot
	s.snapshotLock.RUnlock()

	if snapshot == nil {
		http.Error(w, "no session", http.StatusNotFound)
		return
	}

	s.writeJson(w, snapshot)
}

func (s *ApiServer) handleQuality(w http.ResponseWriter, r *http.Request) {
	quality, ok := s.bindings.QualitySnapshot()
	if !ok {
		http.Error(w, "no live session", http.StatusNotFound)
		return
	}

	s.writeJson(w, quality)
}

func (s *ApiServer) handleStartupStats(w http.ResponseWriter, r *http.Request) {
	s.writeJson(w, s.stats.Summary())
}

// acceptOptions returns nil when no origin is configured, keeping the
// default same-origin check instead of matching against an empty pattern.
func (s *ApiServer) acceptOptions() *websocket.AcceptOptions {
	if s.allowOrigin == "" {
		return nil
	}
	return &websocket.AcceptOptions{OriginPatterns: []string{s.allowOrigin}}
}

func (s *ApiServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, s.acceptOptions())
	if err != nil {
		log.WithError(err).Errorf("failed accepting events client")
		return
	}

	s.clientsLock.Lock()
	s.clients = append(s.clients, conn)
	s.clientsLock.Unlock()

	log.Debugf("events client connected")

	// drain until the client goes away
	ctx := r.Context()
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			break
		}
	}

	s.clientsLock.Lock()
	for i, client := range s.clients {
		if client == conn {
			s.clients = append(s.clients[:i], s.clients[i+1:]...)
			break
		}
	}
	s.clientsLock.Unlock()

	_ = conn.CloseNow()
}

func (s *ApiServer) writeJson(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Debugf("failed writing response")
	}
}

func (s *ApiServer) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), apiWriteTimeout)
	defer cancel()
	_ = s.server.Shutdown(ctx)
}
