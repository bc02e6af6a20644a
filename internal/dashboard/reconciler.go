package dashboard

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"crisiswatch/internal/domain"
)

type Options struct {
	PollInterval   time.Duration
	RefetchDelay   time.Duration
	FollowUpWave   int
	StreamDisabled bool
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = 1200 * time.Millisecond
	}
	if o.RefetchDelay <= 0 {
		o.RefetchDelay = 800 * time.Millisecond
	}
	if o.FollowUpWave <= 0 {
		o.FollowUpWave = 2
	}
	return o
}

// Reconciler keeps the dashboard state consistent with the backend
// under two transports: a push stream for posts and pull polling for
// everything else. At most one stream subscription and one polling loop
// are alive at any time; starting a new one tears down the old first.
type Reconciler struct {
	client *Client
	store  *Store
	logger logrus.FieldLogger
	opts   Options

	mu           sync.Mutex
	streamCancel context.CancelFunc
	pollCancel   context.CancelFunc
	finishOnce   *sync.Once
}

func NewReconciler(client *Client, store *Store, logger logrus.FieldLogger, opts Options) *Reconciler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Reconciler{
		client: client,
		store:  store,
		logger: logger,
		opts:   opts.withDefaults(),
	}
}

// Subscribe (re-)establishes the post stream. Each successful
// connection resets the local post list and counters before new posts
// arrive; transport errors keep already-received posts.
func (r *Reconciler) Subscribe(ctx context.Context) {
	r.mu.Lock()
	if r.streamCancel != nil {
		r.streamCancel()
	}
	streamCtx, cancel := context.WithCancel(ctx)
	r.streamCancel = cancel
	r.mu.Unlock()

	go streamPosts(streamCtx, r.client.baseURL, r.logger, r.store.ResetPosts, r.store.AddPost)
}

// StartRun clears transient run state, begins polling and issues the
// run request. The request may block until the backend pipeline
// finishes, so a final synchronous poll follows its resolution, plus a
// delayed best-effort decisions re-fetch to cover a backend write race.
func (r *Reconciler) StartRun(ctx context.Context) {
	r.store.StartRun()
	r.startPolling(ctx)

	go func() {
		if err := r.client.Run(ctx); err != nil {
			r.logger.WithError(err).Error("run request failed")
			r.store.SetStatus(domain.RunStatusError)
			r.stopPolling()
			return
		}
		r.pollOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(r.opts.RefetchDelay):
		}
		r.fetchDecisions(ctx)
	}()
}

// Reset stops polling, clears all derived and transient state and
// reloads the first wave, either by re-subscribing the stream or by a
// bulk fetch when streaming is disabled.
func (r *Reconciler) Reset(ctx context.Context) {
	r.stopPolling()
	r.store.ResetAll()

	if !r.opts.StreamDisabled {
		r.Subscribe(ctx)
		return
	}
	r.stopStream()
	wave, err := r.client.GetTweets(ctx, 1)
	if err != nil {
		r.logger.WithError(err).Warn("bulk wave fetch failed")
		return
	}
	r.store.ResetPosts()
	for _, post := range wave.Tweets {
		r.store.AddPost(post)
	}
}

// Stop tears down the stream and the polling loop. Safe to call twice.
func (r *Reconciler) Stop() {
	r.stopPolling()
	r.stopStream()
}

func (r *Reconciler) startPolling(ctx context.Context) {
	r.mu.Lock()
	if r.pollCancel != nil {
		r.pollCancel()
	}
	pollCtx, cancel := context.WithCancel(ctx)
	r.pollCancel = cancel
	r.finishOnce = &sync.Once{}
	r.mu.Unlock()

	go func() {
		ticker := time.NewTicker(r.opts.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-pollCtx.Done():
				return
			case <-ticker.C:
				r.pollOnce(pollCtx)
			}
		}
	}()
}

func (r *Reconciler) stopPolling() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pollCancel != nil {
		r.pollCancel()
		r.pollCancel = nil
	}
}

func (r *Reconciler) stopStream() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.streamCancel != nil {
		r.streamCancel()
		r.streamCancel = nil
	}
}

// pollOnce fetches events and status in parallel, awaits both, then
// makes a best-effort decisions fetch. Stale data is retained on any
// fetch failure.
func (r *Reconciler) pollOnce(ctx context.Context) {
	var (
		events    []domain.Event
		eventsErr error
		status    domain.RunStatus
		statusErr error
	)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		events, eventsErr = r.client.GetEvents(ctx)
	}()
	go func() {
		defer wg.Done()
		status, statusErr = r.client.GetStatus(ctx)
	}()
	wg.Wait()

	if eventsErr != nil {
		r.logger.WithError(eventsErr).Warn("events fetch failed")
	} else {
		r.store.SetEvents(events)
	}
	if statusErr != nil {
		r.logger.WithError(statusErr).Warn("status fetch failed")
		return
	}
	r.store.SetStatus(status)

	r.fetchDecisions(ctx)

	if status == domain.RunStatusCompleted || status == domain.RunStatusError {
		r.finishRun(ctx, status)
	}
}

func (r *Reconciler) fetchDecisions(ctx context.Context) {
	decisions, err := r.client.GetDecisions(ctx)
	if err != nil {
		r.logger.WithError(err).Warn("decisions fetch failed")
		return
	}
	r.store.MergeDecisions(decisions)
}

// finishRun runs the completion sequence exactly once per polling
// session: derive response drafts from the free-text log, re-fetch
// decisions, request the follow-up wave fire-and-forget, and stop the
// polling loop.
func (r *Reconciler) finishRun(ctx context.Context, status domain.RunStatus) {
	r.mu.Lock()
	once := r.finishOnce
	r.mu.Unlock()
	if once == nil {
		return
	}

	once.Do(func() {
		if status == domain.RunStatusCompleted {
			logs, err := r.client.GetLogs(ctx)
			if err != nil {
				r.logger.WithError(err).Warn("logs fetch failed")
			} else {
				r.store.SetResponses(ParseResponses(logs))
			}
			r.fetchDecisions(ctx)

			// Detached from the poll context, which is about to be
			// canceled below.
			go func() {
				if err := r.client.InjectCrisis(context.Background(), r.opts.FollowUpWave); err != nil {
					r.logger.WithError(err).Warn("follow-up wave injection failed")
				}
			}()
		}
		r.stopPolling()
	})
}
