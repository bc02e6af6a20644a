// Package server exposes the crisis backend over HTTP: run control,
// pipeline log polling, decision snapshots and the SSE post stream.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"crisiswatch/internal/crew"
	"crisiswatch/internal/domain"
	"crisiswatch/internal/feed"
)

const heartbeatInterval = 15 * time.Second

type PostStore interface {
	SavePost(ctx context.Context, post domain.Post) error
}

type Server struct {
	crew   *crew.Service
	feed   *feed.Simulator
	posts  PostStore
	logger logrus.FieldLogger
}

func New(crewSvc *crew.Service, feedSim *feed.Simulator, posts PostStore, logger logrus.FieldLogger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Server{
		crew:   crewSvc,
		feed:   feedSim,
		posts:  posts,
		logger: logger,
	}
}

// Start launches the post persistence subscriber. Stream delivery to
// clients is unaffected by persistence failures.
func (s *Server) Start(ctx context.Context) {
	if s.posts == nil {
		return
	}
	id, ch := s.feed.Subscribe()
	go func() {
		defer s.feed.Unsubscribe(id)
		for {
			select {
			case <-ctx.Done():
				return
			case post, ok := <-ch:
				if !ok {
					return
				}
				if err := s.posts.SavePost(ctx, post); err != nil {
					s.logger.WithError(err).Warn("persist post failed")
				}
			}
		}
	}()
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/events", s.handleEvents)
	mux.HandleFunc("/decisions", s.handleDecisions)
	mux.HandleFunc("/logs", s.handleLogs)
	mux.HandleFunc("/run", s.handleRun)
	mux.HandleFunc("/inject-crisis/", s.handleInjectCrisis)
	mux.HandleFunc("/tweets/", s.handleTweets)
	mux.HandleFunc("/stream", s.handleStream)
	return s.loggingMiddleware(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": s.crew.Status()})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	events := s.crew.Events()
	if events == nil {
		events = []domain.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.crew.Decisions())
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": s.crew.Logs()})
}

// handleRun executes the pipeline synchronously: the response is sent
// when the run has finished, and pollers observe progress via /status
// and /events in the meantime.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	output, err := s.crew.Run(r.Context())
	if err != nil {
		if errors.Is(err, crew.ErrRunInProgress) {
			writeError(w, http.StatusConflict, err)
			return
		}
		s.logger.WithError(err).Error("crew run failed")
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"status":  domain.RunStatusError,
			"message": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       domain.RunStatusCompleted,
		"final_output": output,
		"events":       s.crew.Events(),
	})
}

func (s *Server) handleInjectCrisis(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	wave, err := wavePathParam(r.URL.Path, "/inject-crisis/")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	count, err := s.feed.InjectWave(wave)
	if err != nil {
		if errors.Is(err, feed.ErrWaveNotFound) {
			writeError(w, http.StatusNotFound, fmt.Errorf("wave %d not found", wave))
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.crew.SetWave(wave)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "injected",
		"wave":   wave,
		"count":  count,
	})
}

func (s *Server) handleTweets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	wave, err := wavePathParam(r.URL.Path, "/tweets/")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	loaded, err := s.feed.LoadWave(wave)
	if err != nil {
		if errors.Is(err, feed.ErrWaveNotFound) {
			writeError(w, http.StatusNotFound, fmt.Errorf("wave %d not found", wave))
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, loaded)
}

// handleStream serves the live post feed as server-sent events. Each
// emitted post becomes an `event: tweet` frame; comment heartbeats keep
// idle connections open.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	id, ch := s.feed.Subscribe()
	defer s.feed.Unsubscribe(id)

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case post, ok := <-ch:
			if !ok {
				return
			}
			payload, err := json.Marshal(post)
			if err != nil {
				s.logger.WithError(err).Warn("encode stream post failed")
				continue
			}
			if _, err := fmt.Fprintf(w, "event: tweet\ndata: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start).String(),
		}).Debug("request")
	})
}

func wavePathParam(path, prefix string) (int, error) {
	raw := strings.TrimPrefix(path, prefix)
	raw = strings.TrimSuffix(raw, "/")
	if raw == "" {
		return 0, fmt.Errorf("wave number is required")
	}
	wave, err := strconv.Atoi(raw)
	if err != nil || wave <= 0 {
		return 0, fmt.Errorf("invalid wave number %q", raw)
	}
	return wave, nil
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]any{
		"error": err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
