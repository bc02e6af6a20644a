package dashboard

import (
	"testing"
	"time"

	"crisiswatch/internal/domain"
)

func TestPipelineProgress(t *testing.T) {
	events := []domain.Event{
		{ID: 1, Agent: domain.AgentMonitor, Type: domain.EventTypeAgentStart},
		{ID: 2, Agent: domain.AgentMonitor, Type: domain.EventTypeAgentComplete},
		{ID: 3, Agent: domain.AgentSeverity, Type: domain.EventTypeAgentStart},
	}

	stages := PipelineProgress(events, domain.RunStatusRunning)
	if len(stages) != 5 {
		t.Fatalf("stages=%d want=5", len(stages))
	}
	if stages[0].Status != StageDone {
		t.Fatalf("monitor stage=%s want=done", stages[0].Status)
	}
	if stages[1].Status != StageActive {
		t.Fatalf("severity stage=%s want=active", stages[1].Status)
	}
	for _, stage := range stages[2:] {
		if stage.Status != StagePending {
			t.Fatalf("%s stage=%s want=pending", stage.Agent, stage.Status)
		}
	}
}

func TestPipelineProgressDoneSurvivesReordering(t *testing.T) {
	// Completion decides done regardless of where the event sits in the
	// list or whether a matching start ever arrived.
	events := []domain.Event{
		{ID: 2, Agent: domain.AgentSeverity, Type: domain.EventTypeAgentComplete},
		{ID: 1, Agent: domain.AgentMonitor, Type: domain.EventTypeAgentStart},
	}
	stages := PipelineProgress(events, domain.RunStatusRunning)
	if stages[1].Status != StageDone {
		t.Fatalf("severity stage=%s want=done", stages[1].Status)
	}
	if stages[0].Status != StageActive {
		t.Fatalf("monitor stage=%s want=active", stages[0].Status)
	}
}

func TestPipelineProgressNoActiveWhenNotRunning(t *testing.T) {
	events := []domain.Event{
		{ID: 1, Agent: domain.AgentMonitor, Type: domain.EventTypeAgentStart},
	}
	stages := PipelineProgress(events, domain.RunStatusCompleted)
	if stages[0].Status != StagePending {
		t.Fatalf("monitor stage=%s want=pending after the run ended", stages[0].Status)
	}
}

func TestSeverityGaugeFallback(t *testing.T) {
	if got := SeverityGauge(domain.Decisions{}); got.Level != domain.SeverityStandby {
		t.Fatalf("absent severity gauge=%+v want=standby", got)
	}
	unknown := domain.Decisions{Severity: &domain.SeverityVerdict{Level: "apocalyptic"}}
	if got := SeverityGauge(unknown); got.Level != domain.SeverityStandby {
		t.Fatalf("unknown severity gauge=%+v want=standby", got)
	}
	critical := domain.Decisions{Severity: &domain.SeverityVerdict{Level: domain.SeverityCritical}}
	if got := SeverityGauge(critical); got.Percent != 95 || got.Color != "red" {
		t.Fatalf("critical gauge=%+v", got)
	}
}

func TestRecommendationBanner(t *testing.T) {
	for _, status := range []domain.RecommendationStatus{
		domain.RecommendationEscalate,
		domain.RecommendationFollowUp,
		domain.RecommendationResolved,
	} {
		d := domain.Decisions{Recommendation: &domain.Recommendation{Status: status}}
		banner, ok := RecommendationBanner(d)
		if !ok || banner.Status != status {
			t.Fatalf("no banner for %s", status)
		}
	}

	if _, ok := RecommendationBanner(domain.Decisions{}); ok {
		t.Fatal("banner shown without a recommendation")
	}
	odd := domain.Decisions{Recommendation: &domain.Recommendation{Status: "PANIC"}}
	if _, ok := RecommendationBanner(odd); ok {
		t.Fatal("banner shown for an unknown status")
	}
}

func TestTimelineLandmarks(t *testing.T) {
	now := time.Now()
	st := State{
		Posts: []domain.Post{
			{ID: "1", User: "@angrybrewfan", Timestamp: now, Wave: 1},
			{ID: "2", User: "@dailygrindnews", Timestamp: now.Add(time.Minute), Wave: 1},
			{ID: "3", User: "@coffee_karen", Timestamp: now.Add(2 * time.Minute), Wave: 2},
		},
		Events: []domain.Event{
			{ID: 1, Agent: domain.AgentSystem, Type: domain.EventTypeSystem, Message: "Crisis crew triggered"},
		},
		Status: domain.RunStatusCompleted,
	}

	got := Timeline(st)
	wantKinds := []string{"first_post", "media_pickup", "crew_activated", "second_wave", "run_completed"}
	if len(got) != len(wantKinds) {
		t.Fatalf("milestones=%d want=%d: %+v", len(got), len(wantKinds), got)
	}
	for i, kind := range wantKinds {
		if got[i].Kind != kind {
			t.Fatalf("milestone[%d]=%s want=%s", i, got[i].Kind, kind)
		}
	}
	if !got[1].At.Equal(now.Add(time.Minute)) {
		t.Fatalf("media pickup timestamp=%v", got[1].At)
	}
}

func TestTimelineAbsentLandmarks(t *testing.T) {
	if got := Timeline(State{Status: domain.RunStatusIdle}); len(got) != 0 {
		t.Fatalf("expected empty timeline, got %+v", got)
	}

	st := State{
		Posts:  []domain.Post{{ID: "1", User: "@plainuser", Wave: 1}},
		Status: domain.RunStatusRunning,
	}
	got := Timeline(st)
	if len(got) != 1 || got[0].Kind != "first_post" {
		t.Fatalf("expected only first_post, got %+v", got)
	}
}
