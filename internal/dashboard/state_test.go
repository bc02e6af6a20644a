package dashboard

import (
	"testing"

	"crisiswatch/internal/domain"
)

func TestReachAccumulates(t *testing.T) {
	store := NewStore()
	store.AddPost(domain.Post{ID: "1", User: "@a", Likes: 100, Retweets: 20})
	store.AddPost(domain.Post{ID: "2", User: "@b", Likes: 50, Retweets: 10})

	st := store.Snapshot()
	if st.PostCount != 2 {
		t.Fatalf("post count=%d want=2", st.PostCount)
	}
	if st.Reach != 180 {
		t.Fatalf("reach=%d want=180", st.Reach)
	}
}

func TestResetPostsClearsCounters(t *testing.T) {
	store := NewStore()
	store.AddPost(domain.Post{ID: "1", Likes: 5})
	store.ResetPosts()

	st := store.Snapshot()
	if st.PostCount != 0 || st.Reach != 0 || len(st.Posts) != 0 {
		t.Fatalf("expected empty post state, got %+v", st)
	}
}

func TestStartRunResetsTransientState(t *testing.T) {
	store := NewStore()
	store.AddPost(domain.Post{ID: "1", Likes: 10})
	store.SetEvents([]domain.Event{{ID: 1, Agent: domain.AgentSystem}})
	store.SetResponses([]domain.Response{{ID: "1", User: "@a", Text: "hi"}})
	store.MergeDecisions(domain.Decisions{
		Severity:       &domain.SeverityVerdict{Level: domain.SeverityCritical},
		Recommendation: &domain.Recommendation{Status: domain.RecommendationEscalate},
	})

	store.StartRun()

	st := store.Snapshot()
	if st.Status != domain.RunStatusRunning {
		t.Fatalf("status=%s want=running", st.Status)
	}
	if len(st.Events) != 0 || len(st.Responses) != 0 {
		t.Fatalf("expected transient state cleared, got %+v", st)
	}
	if st.Decisions.Severity != nil || st.Decisions.Recommendation != nil {
		t.Fatalf("expected decisions reset, got %+v", st.Decisions)
	}
	if st.PostCount != 1 {
		t.Fatalf("posts must survive a run start, count=%d", st.PostCount)
	}
}

func TestMergeDecisionsKeepsPriorValues(t *testing.T) {
	store := NewStore()
	store.MergeDecisions(domain.Decisions{
		Severity: &domain.SeverityVerdict{Level: domain.SeverityModerate, Reasoning: "spreading"},
		Monitor:  &domain.MonitorSummary{Flagged: 3, Engagement: 400},
	})

	// A later fetch missing sub-records must not revert shown values.
	store.MergeDecisions(domain.Decisions{})
	st := store.Snapshot()
	if st.Decisions.Severity == nil || st.Decisions.Severity.Level != domain.SeverityModerate {
		t.Fatalf("severity reverted: %+v", st.Decisions)
	}
	if st.Decisions.Monitor == nil || st.Decisions.Monitor.Flagged != 3 {
		t.Fatalf("monitor summary reverted: %+v", st.Decisions)
	}

	// Present but empty severity must not overwrite either.
	store.MergeDecisions(domain.Decisions{Severity: &domain.SeverityVerdict{}})
	st = store.Snapshot()
	if st.Decisions.Severity.Level != domain.SeverityModerate {
		t.Fatalf("empty severity overwrote prior value: %+v", st.Decisions)
	}
}

func TestSetResponsesLastWriteWinsPerUser(t *testing.T) {
	store := NewStore()
	store.SetResponses([]domain.Response{
		{ID: "1", User: "@a", Text: "first"},
		{ID: "2", User: "@b", Text: "other"},
		{ID: "3", User: "@a", Text: "second"},
	})

	st := store.Snapshot()
	if len(st.Responses) != 2 {
		t.Fatalf("responses=%d want=2: %+v", len(st.Responses), st.Responses)
	}
	if st.Responses[0].User != "@a" || st.Responses[0].Text != "second" {
		t.Fatalf("expected last write to win for @a, got %+v", st.Responses[0])
	}
	if st.Responses[1].User != "@b" {
		t.Fatalf("unexpected order: %+v", st.Responses)
	}
}

func TestOnChangeFires(t *testing.T) {
	store := NewStore()
	fired := 0
	store.OnChange(func() { fired++ })
	store.AddPost(domain.Post{ID: "1"})
	store.SetStatus(domain.RunStatusRunning)
	if fired != 2 {
		t.Fatalf("onChange fired %d times, want 2", fired)
	}
}
