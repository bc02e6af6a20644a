package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"crisiswatch/internal/domain"
)

// fakeBackend is a minimal in-memory stand-in for the crisis server,
// serving just enough of the HTTP contract for the reconciler.
type fakeBackend struct {
	mu          sync.Mutex
	status      domain.RunStatus
	events      []domain.Event
	decisions   domain.Decisions
	logs        string
	waves       map[int]domain.Wave
	injected    []int
	statusCalls int
	runFails    bool
	runDelay    time.Duration

	streamPosts   []domain.Post
	activeStreams int32
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		status: domain.RunStatusIdle,
		waves:  map[int]domain.Wave{},
	}
}

func (b *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.statusCalls++
		status := b.status
		b.mu.Unlock()
		writeTestJSON(w, map[string]any{"status": status})
	})
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		events := append([]domain.Event(nil), b.events...)
		b.mu.Unlock()
		writeTestJSON(w, map[string]any{"events": events})
	})
	mux.HandleFunc("/decisions", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		decisions := b.decisions
		b.mu.Unlock()
		writeTestJSON(w, decisions)
	})
	mux.HandleFunc("/logs", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		logs := b.logs
		b.mu.Unlock()
		writeTestJSON(w, map[string]any{"logs": logs})
	})
	mux.HandleFunc("/run", func(w http.ResponseWriter, r *http.Request) {
		if b.runFails {
			http.Error(w, "pipeline exploded", http.StatusInternalServerError)
			return
		}
		b.mu.Lock()
		b.status = domain.RunStatusRunning
		b.mu.Unlock()
		time.Sleep(b.runDelay)
		b.mu.Lock()
		b.status = domain.RunStatusCompleted
		b.mu.Unlock()
		writeTestJSON(w, map[string]any{"status": domain.RunStatusCompleted})
	})
	mux.HandleFunc("/inject-crisis/", func(w http.ResponseWriter, r *http.Request) {
		wave, err := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/inject-crisis/"))
		if err != nil {
			http.Error(w, "bad wave", http.StatusBadRequest)
			return
		}
		b.mu.Lock()
		b.injected = append(b.injected, wave)
		b.mu.Unlock()
		writeTestJSON(w, map[string]any{"injected": wave})
	})
	mux.HandleFunc("/tweets/", func(w http.ResponseWriter, r *http.Request) {
		wave, err := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/tweets/"))
		if err != nil {
			http.Error(w, "bad wave", http.StatusBadRequest)
			return
		}
		b.mu.Lock()
		payload, ok := b.waves[wave]
		b.mu.Unlock()
		if !ok {
			http.Error(w, "wave not found", http.StatusNotFound)
			return
		}
		writeTestJSON(w, payload)
	})
	mux.HandleFunc("/stream", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&b.activeStreams, 1)
		defer atomic.AddInt32(&b.activeStreams, -1)

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "no flush", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		b.mu.Lock()
		posts := append([]domain.Post(nil), b.streamPosts...)
		b.mu.Unlock()
		for _, post := range posts {
			data, _ := json.Marshal(post)
			fmt.Fprintf(w, "event: tweet\ndata: %s\n\n", data)
		}
		flusher.Flush()
		<-r.Context().Done()
	})
	return mux
}

func (b *fakeBackend) finishRunWith(events []domain.Event, decisions domain.Decisions, logs string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = events
	b.decisions = decisions
	b.logs = logs
}

func (b *fakeBackend) injectedWaves() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]int(nil), b.injected...)
}

func writeTestJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func testLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

func TestReconcilerRunLifecycle(t *testing.T) {
	backend := newFakeBackend()
	backend.runDelay = 60 * time.Millisecond
	backend.waves[1] = domain.Wave{Wave: 1, Tweets: []domain.Post{
		{ID: "1", User: "@angrybrewfan", Likes: 100, Retweets: 20, Wave: 1},
		{ID: "2", User: "@coffee_karen", Likes: 50, Retweets: 10, Wave: 1},
	}}
	backend.finishRunWith(
		[]domain.Event{
			{ID: 1, Agent: domain.AgentSystem, Type: domain.EventTypeSystem, Message: "Crisis crew triggered"},
			{ID: 2, Agent: domain.AgentCopywriter, Type: domain.EventTypeAgentComplete, Message: "done"},
		},
		domain.Decisions{Severity: &domain.SeverityVerdict{Level: domain.SeverityModerate, Reasoning: "spreading"}},
		"## Crisis Response Log\n\nTWEET 1 (@angrybrewfan): We hear you and we are on it\n",
	)

	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	store := NewStore()
	rec := NewReconciler(NewClient(srv.URL), store, testLogger(), Options{
		PollInterval:   20 * time.Millisecond,
		RefetchDelay:   10 * time.Millisecond,
		FollowUpWave:   2,
		StreamDisabled: true,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer rec.Stop()

	rec.Reset(ctx)
	st := store.Snapshot()
	if st.PostCount != 2 {
		t.Fatalf("post count=%d want=2", st.PostCount)
	}
	if st.Reach != 180 {
		t.Fatalf("reach=%d want=180", st.Reach)
	}

	rec.StartRun(ctx)
	if got := store.Snapshot().Status; got != domain.RunStatusRunning {
		t.Fatalf("status=%s want=running right after start", got)
	}

	waitFor(t, 2*time.Second, func() bool {
		st := store.Snapshot()
		return st.Status == domain.RunStatusCompleted && len(st.Responses) == 1
	})

	st = store.Snapshot()
	if st.Responses[0].User != "@angrybrewfan" || st.Responses[0].ID != "1" {
		t.Fatalf("unexpected response: %+v", st.Responses[0])
	}
	if st.Decisions.Severity == nil || st.Decisions.Severity.Level != domain.SeverityModerate {
		t.Fatalf("decisions not merged: %+v", st.Decisions)
	}
	if len(st.Events) != 2 {
		t.Fatalf("events=%d want=2", len(st.Events))
	}

	waitFor(t, 2*time.Second, func() bool {
		waves := backend.injectedWaves()
		return len(waves) == 1 && waves[0] == 2
	})

	// Polling must have stopped on the terminal transition.
	time.Sleep(100 * time.Millisecond)
	backend.mu.Lock()
	before := backend.statusCalls
	backend.mu.Unlock()
	time.Sleep(150 * time.Millisecond)
	backend.mu.Lock()
	after := backend.statusCalls
	backend.mu.Unlock()
	if after != before {
		t.Fatalf("status polled %d more times after completion", after-before)
	}
}

func TestReconcilerRunFailure(t *testing.T) {
	backend := newFakeBackend()
	backend.runFails = true

	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	store := NewStore()
	rec := NewReconciler(NewClient(srv.URL), store, testLogger(), Options{
		PollInterval:   20 * time.Millisecond,
		StreamDisabled: true,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer rec.Stop()

	rec.StartRun(ctx)
	waitFor(t, 2*time.Second, func() bool {
		return store.Snapshot().Status == domain.RunStatusError
	})
	if waves := backend.injectedWaves(); len(waves) != 0 {
		t.Fatalf("follow-up wave injected after a failed run: %v", waves)
	}
}

func TestReconcilerSingleStream(t *testing.T) {
	backend := newFakeBackend()
	backend.streamPosts = []domain.Post{
		{ID: "1", User: "@angrybrewfan", Likes: 5, Retweets: 1, Wave: 1},
	}

	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	store := NewStore()
	rec := NewReconciler(NewClient(srv.URL), store, testLogger(), Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Repeated subscriptions must leave exactly one live connection, and
	// every reconnect resets the counters before replaying posts.
	for i := 0; i < 3; i++ {
		rec.Subscribe(ctx)
		time.Sleep(20 * time.Millisecond)
	}

	waitFor(t, 2*time.Second, func() bool {
		return atomic.LoadInt32(&backend.activeStreams) == 1
	})
	waitFor(t, 2*time.Second, func() bool {
		st := store.Snapshot()
		return st.PostCount == 1 && st.Reach == 6
	})

	rec.Stop()
	waitFor(t, 2*time.Second, func() bool {
		return atomic.LoadInt32(&backend.activeStreams) == 0
	})
}
