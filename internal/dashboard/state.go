// Package dashboard holds the client-side logic of the crisis dashboard:
// a state container fed by one reducer action per external event, the
// poll/stream reconciler that drives it, and pure view-model builders
// over the resulting state.
package dashboard

import (
	"sync"

	"crisiswatch/internal/domain"
)

// State is everything the dashboard knows, reconstructed from the most
// recent data fetched. View models are pure functions of a State value.
type State struct {
	Posts     []domain.Post
	PostCount int
	Reach     int

	Events    []domain.Event
	Status    domain.RunStatus
	Decisions domain.Decisions
	Responses []domain.Response
}

// Store owns the state. All mutation goes through reducer methods; the
// reconciler's goroutines are the only writers, renderers read
// snapshots.
type Store struct {
	mu       sync.Mutex
	state    State
	onChange func()
}

func NewStore() *Store {
	return &Store{state: State{Status: domain.RunStatusIdle}}
}

// OnChange registers a callback fired after every reducer action,
// typically a UI redraw request.
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Snapshot returns a copy of the current state safe to read concurrently
// with further mutation.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	st.Posts = append([]domain.Post(nil), s.state.Posts...)
	st.Events = append([]domain.Event(nil), s.state.Events...)
	st.Responses = append([]domain.Response(nil), s.state.Responses...)
	return st
}

// ResetPosts clears the post list and counters. Called when a stream
// (re-)connects or the first wave is re-loaded.
func (s *Store) ResetPosts() {
	s.update(func(st *State) {
		st.Posts = nil
		st.PostCount = 0
		st.Reach = 0
	})
}

// AddPost appends one received post and advances the counters. Reach
// accumulates likes+retweets identically for streamed and bulk posts.
func (s *Store) AddPost(post domain.Post) {
	s.update(func(st *State) {
		st.Posts = append(st.Posts, post)
		st.PostCount++
		st.Reach += post.Reach()
	})
}

// SetEvents replaces the event list wholesale with the latest fetch.
func (s *Store) SetEvents(events []domain.Event) {
	s.update(func(st *State) {
		st.Events = events
	})
}

func (s *Store) SetStatus(status domain.RunStatus) {
	s.update(func(st *State) {
		st.Status = status
	})
}

// MergeDecisions folds a fetched snapshot into the state. Sub-records
// absent from the fetch keep their prior values so a transient fetch
// failure never reverts a shown metric; severity and recommendation
// additionally require a non-empty value to overwrite.
func (s *Store) MergeDecisions(d domain.Decisions) {
	s.update(func(st *State) {
		if d.Monitor != nil {
			st.Decisions.Monitor = d.Monitor
		}
		if d.Severity != nil && d.Severity.Level != "" {
			st.Decisions.Severity = d.Severity
		}
		if d.Strategy != nil {
			st.Decisions.Strategy = d.Strategy
		}
		if d.Recommendation != nil && d.Recommendation.Status != "" {
			st.Decisions.Recommendation = d.Recommendation
		}
	})
}

// SetResponses replaces the drafted replies, keeping at most one per
// user handle. The last occurrence wins; display order follows the
// first occurrence of each handle.
func (s *Store) SetResponses(responses []domain.Response) {
	s.update(func(st *State) {
		index := map[string]int{}
		var deduped []domain.Response
		for _, r := range responses {
			if at, ok := index[r.User]; ok {
				deduped[at] = r
				continue
			}
			index[r.User] = len(deduped)
			deduped = append(deduped, r)
		}
		st.Responses = deduped
	})
}

// StartRun clears all transient run state before any new data arrives:
// events, responses, decisions (severity back to neutral) and marks the
// run as running. Posts and counters survive.
func (s *Store) StartRun() {
	s.update(func(st *State) {
		st.Events = nil
		st.Responses = nil
		st.Decisions = domain.Decisions{}
		st.Status = domain.RunStatusRunning
	})
}

// ResetAll returns the dashboard to its initial state for a fresh
// crisis injection.
func (s *Store) ResetAll() {
	s.update(func(st *State) {
		*st = State{Status: domain.RunStatusIdle}
	})
}

func (s *Store) update(mutate func(*State)) {
	s.mu.Lock()
	mutate(&s.state)
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}
