// Package feed emits mock social-media posts at a steady cadence,
// mimicking a live firehose. Wave files live in the data directory
// (tweets.json, tweets_wave2.json, ...) and additional waves can be
// injected into a running stream without restarting it.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"crisiswatch/internal/domain"
)

var ErrWaveNotFound = errors.New("wave file not found")

const subscriberBuffer = 64

type Simulator struct {
	dataDir     string
	delay       time.Duration
	initialWave int
	logger      logrus.FieldLogger

	mu      sync.Mutex
	queue   []domain.Post
	subs    map[string]chan domain.Post
	wake    chan struct{}
	running bool
}

func New(dataDir string, delay time.Duration, initialWave int, logger logrus.FieldLogger) *Simulator {
	if delay <= 0 {
		delay = 3 * time.Second
	}
	if initialWave <= 0 {
		initialWave = 1
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Simulator{
		dataDir:     dataDir,
		delay:       delay,
		initialWave: initialWave,
		logger:      logger,
		subs:        make(map[string]chan domain.Post),
		wake:        make(chan struct{}, 1),
	}
}

// Start seeds the initial wave and begins emitting posts until the
// context is canceled. It is a no-op when already running.
func (s *Simulator) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	if _, err := s.InjectWave(s.initialWave); err != nil {
		s.logger.WithError(err).Warnf("seed wave %d failed", s.initialWave)
	}

	go s.emitLoop(ctx)
}

func (s *Simulator) emitLoop(ctx context.Context) {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	for {
		post, ok := s.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-s.wake:
			case <-time.After(time.Second):
			}
			continue
		}

		s.publish(post)

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.delay):
		}
	}
}

func (s *Simulator) pop() (domain.Post, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return domain.Post{}, false
	}
	post := s.queue[0]
	s.queue = s.queue[1:]
	return post, true
}

func (s *Simulator) publish(post domain.Post) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.subs {
		select {
		case ch <- post:
		default:
			s.logger.Warnf("subscriber %s is slow, dropping post %s", id, post.ID)
		}
	}
}

// Subscribe registers a listener for emitted posts. The returned id is
// passed to Unsubscribe when the listener goes away.
func (s *Simulator) Subscribe() (string, <-chan domain.Post) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	ch := make(chan domain.Post, subscriberBuffer)
	s.subs[id] = ch
	return id, ch
}

func (s *Simulator) Unsubscribe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.subs[id]
	if !ok {
		return
	}
	delete(s.subs, id)
	close(ch)
}

// Inject pushes a single post into the live stream.
func (s *Simulator) Inject(post domain.Post) {
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	s.mu.Lock()
	s.queue = append(s.queue, post)
	s.mu.Unlock()
	s.notify()
}

// InjectWave loads a wave file and appends its posts to the live queue.
// It returns the number of posts enqueued.
func (s *Simulator) InjectWave(wave int) (int, error) {
	loaded, err := s.LoadWave(wave)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	s.queue = append(s.queue, loaded.Tweets...)
	s.mu.Unlock()
	s.notify()
	return len(loaded.Tweets), nil
}

// LoadWave reads a wave file without touching the stream. Posts are
// stamped with the wave number from the file, falling back to the
// requested one.
func (s *Simulator) LoadWave(wave int) (domain.Wave, error) {
	path := filepath.Join(s.dataDir, waveFilename(wave))
	bytes, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.Wave{}, fmt.Errorf("%w: %s", ErrWaveNotFound, path)
		}
		return domain.Wave{}, fmt.Errorf("read wave file %s: %w", path, err)
	}
	var loaded domain.Wave
	if err := json.Unmarshal(bytes, &loaded); err != nil {
		return domain.Wave{}, fmt.Errorf("decode wave file %s: %w", path, err)
	}
	if loaded.Wave <= 0 {
		loaded.Wave = wave
	}
	for i := range loaded.Tweets {
		if loaded.Tweets[i].ID == "" {
			loaded.Tweets[i].ID = uuid.NewString()
		}
		loaded.Tweets[i].Wave = loaded.Wave
	}
	return loaded, nil
}

func (s *Simulator) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func waveFilename(wave int) string {
	if wave <= 1 {
		return "tweets.json"
	}
	return fmt.Sprintf("tweets_wave%d.json", wave)
}
