// Package crew runs the scripted crisis-response pipeline: five stages
// (monitor, severity, strategy, copywriter, sentiment) executed
// sequentially over the flagged feed. Stage outputs are deterministic
// functions of the posts, so repeated runs over the same feed agree.
package crew

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"crisiswatch/internal/domain"
)

var ErrRunInProgress = errors.New("a run is already in progress")

type Feed interface {
	LoadWave(wave int) (domain.Wave, error)
}

type Store interface {
	CreateRun(ctx context.Context, run domain.Run) error
	FinishRun(ctx context.Context, runID string, status domain.RunStatus, finalOutput string) error
	AppendEvent(ctx context.Context, runID string, ev domain.Event) error
	SaveDecisions(ctx context.Context, runID string, d domain.Decisions) error
	SaveResponse(ctx context.Context, runID string, r domain.Response) error
}

type Service struct {
	feed   Feed
	store  Store
	logger logrus.FieldLogger

	mu        sync.Mutex
	runID     string
	status    domain.RunStatus
	events    []domain.Event
	decisions domain.Decisions
	logLines  []string
	wave      int
}

func New(feed Feed, store Store, logger logrus.FieldLogger) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		feed:   feed,
		store:  store,
		logger: logger,
		status: domain.RunStatusIdle,
		wave:   1,
	}
}

// SetWave points the next run at a later crisis wave. Wave numbers are
// non-decreasing; stale injections are ignored.
func (s *Service) SetWave(wave int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if wave > s.wave {
		s.wave = wave
	}
}

func (s *Service) Status() domain.RunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Events returns a copy of the current run's full event log.
func (s *Service) Events() []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Event, len(s.events))
	copy(out, s.events)
	return out
}

func (s *Service) Decisions() domain.Decisions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.decisions
}

// Logs returns the free-text crisis log drafted by the copywriter stage.
func (s *Service) Logs() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.logLines) == 0 {
		return "No responses drafted yet."
	}
	return strings.Join(s.logLines, "\n")
}

// Run executes the pipeline synchronously and returns the final output.
// A second Run while one is in flight fails with ErrRunInProgress.
func (s *Service) Run(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.status == domain.RunStatusRunning {
		s.mu.Unlock()
		return "", ErrRunInProgress
	}
	runID := uuid.NewString()
	wave := s.wave
	s.runID = runID
	s.status = domain.RunStatusRunning
	s.events = nil
	s.decisions = domain.Decisions{}
	s.logLines = nil
	s.mu.Unlock()

	if err := s.store.CreateRun(ctx, domain.Run{
		ID:        runID,
		Status:    domain.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}); err != nil {
		s.logger.WithError(err).Warn("persist run start failed")
	}

	s.record(ctx, domain.AgentSystem, domain.EventTypeSystem, "Crisis crew triggered")

	output, err := s.runStages(ctx, wave)
	if err != nil {
		s.record(ctx, domain.AgentSystem, domain.EventTypeError, "Error: "+err.Error())
		s.setFinal(ctx, domain.RunStatusError, err.Error())
		return "", err
	}

	s.record(ctx, domain.AgentSystem, domain.EventTypeSystem, "Crew completed successfully")
	s.setFinal(ctx, domain.RunStatusCompleted, output)
	return output, nil
}

func (s *Service) runStages(ctx context.Context, wave int) (string, error) {
	posts, err := s.monitorStage(ctx, wave)
	if err != nil {
		return "", err
	}
	severity := s.severityStage(ctx, posts)
	strategy := s.strategyStage(ctx, severity)
	responses := s.copywriterStage(ctx, posts, strategy)
	recommendation := s.sentimentStage(ctx, severity, responses)

	return fmt.Sprintf(
		"Processed %d mentions. Severity: %s. Action: %s (%s tone). Drafted %d replies. Recommendation: %s.",
		len(posts), severity.Level, strategy.Action, strategy.Tone, len(responses), recommendation.Status,
	), nil
}

func (s *Service) setFinal(ctx context.Context, status domain.RunStatus, output string) {
	s.mu.Lock()
	s.status = status
	runID := s.runID
	s.mu.Unlock()
	if err := s.store.FinishRun(ctx, runID, status, output); err != nil {
		s.logger.WithError(err).Warn("persist run finish failed")
	}
}

// record appends an event to the in-memory log and persists it
// best-effort. Event ids are monotonically increasing per run.
func (s *Service) record(ctx context.Context, agent string, kind domain.EventType, message string) {
	s.mu.Lock()
	ev := domain.Event{
		ID:        len(s.events) + 1,
		Agent:     agent,
		Type:      kind,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
	s.events = append(s.events, ev)
	runID := s.runID
	s.mu.Unlock()

	if err := s.store.AppendEvent(ctx, runID, ev); err != nil {
		s.logger.WithError(err).Warn("persist event failed")
	}
}

func (s *Service) saveDecisions(ctx context.Context, mutate func(*domain.Decisions)) {
	s.mu.Lock()
	mutate(&s.decisions)
	d := s.decisions
	runID := s.runID
	s.mu.Unlock()

	if err := s.store.SaveDecisions(ctx, runID, d); err != nil {
		s.logger.WithError(err).Warn("persist decisions failed")
	}
}

func (s *Service) appendLog(lines ...string) {
	s.mu.Lock()
	s.logLines = append(s.logLines, lines...)
	s.mu.Unlock()
}
