package dashboard

import (
	"strings"
	"time"

	"crisiswatch/internal/domain"
)

type StageStatus string

const (
	StagePending StageStatus = "pending"
	StageActive  StageStatus = "active"
	StageDone    StageStatus = "done"
)

type StageView struct {
	Agent  string
	Status StageStatus
}

// PipelineProgress derives the five-stage progress bar. A stage is done
// once any completion event names its agent, active when the most
// recent start event names it while the run is still going, otherwise
// pending. Stage order is fixed regardless of event arrival order.
func PipelineProgress(events []domain.Event, status domain.RunStatus) []StageView {
	done := map[string]bool{}
	lastStarted := ""
	for _, ev := range events {
		switch ev.Type {
		case domain.EventTypeAgentComplete:
			done[ev.Agent] = true
		case domain.EventTypeAgentStart:
			lastStarted = ev.Agent
		}
	}

	out := make([]StageView, 0, len(domain.PipelineAgents))
	for _, agent := range domain.PipelineAgents {
		view := StageView{Agent: agent, Status: StagePending}
		switch {
		case done[agent]:
			view.Status = StageDone
		case agent == lastStarted && status == domain.RunStatusRunning:
			view.Status = StageActive
		}
		out = append(out, view)
	}
	return out
}

type GaugeView struct {
	Level   domain.SeverityLevel
	Label   string
	Color   string
	Percent int
}

var severityGauges = map[domain.SeverityLevel]GaugeView{
	domain.SeverityStandby:  {Level: domain.SeverityStandby, Label: "Standby", Color: "gray", Percent: 10},
	domain.SeverityLow:      {Level: domain.SeverityLow, Label: "Low", Color: "green", Percent: 35},
	domain.SeverityModerate: {Level: domain.SeverityModerate, Label: "Moderate", Color: "orange", Percent: 65},
	domain.SeverityCritical: {Level: domain.SeverityCritical, Label: "Critical", Color: "red", Percent: 95},
}

// SeverityGauge maps the current severity to its gauge entry; unknown
// or absent values fall back to the neutral standby entry.
func SeverityGauge(d domain.Decisions) GaugeView {
	if d.Severity == nil {
		return severityGauges[domain.SeverityStandby]
	}
	gauge, ok := severityGauges[d.Severity.Level]
	if !ok {
		return severityGauges[domain.SeverityStandby]
	}
	return gauge
}

type BannerView struct {
	Status domain.RecommendationStatus
	Color  string
	Icon   string
	Text   string
}

var recommendationBanners = map[domain.RecommendationStatus]BannerView{
	domain.RecommendationEscalate: {
		Status: domain.RecommendationEscalate,
		Color:  "red",
		Icon:   "!!",
		Text:   "Escalate to the human crisis team",
	},
	domain.RecommendationFollowUp: {
		Status: domain.RecommendationFollowUp,
		Color:  "yellow",
		Icon:   "~",
		Text:   "Follow up after the next sentiment check",
	},
	domain.RecommendationResolved: {
		Status: domain.RecommendationResolved,
		Color:  "green",
		Icon:   "ok",
		Text:   "Crisis resolved, back to standby",
	},
}

// RecommendationBanner returns the banner for the terminal-stage
// verdict. Absent or unknown statuses render no banner.
func RecommendationBanner(d domain.Decisions) (BannerView, bool) {
	if d.Recommendation == nil {
		return BannerView{}, false
	}
	banner, ok := recommendationBanners[d.Recommendation.Status]
	if !ok {
		return BannerView{}, false
	}
	return banner, true
}

type Milestone struct {
	Kind  string
	Label string
	At    time.Time
}

// activationMarker identifies the system event that brackets a run
// start in the pipeline log.
const activationMarker = "Crisis crew triggered"

var mediaHandleHints = []string{"news", "daily", "press", "report"}

// Timeline derives the landmark entries: each present landmark
// contributes exactly one entry, in fixed order; absent landmarks
// contribute nothing.
func Timeline(st State) []Milestone {
	var out []Milestone

	if len(st.Posts) > 0 {
		first := st.Posts[0]
		out = append(out, Milestone{Kind: "first_post", Label: "First mention received", At: first.Timestamp})
	}
	for _, p := range st.Posts {
		if isMediaHandle(p.User) {
			out = append(out, Milestone{Kind: "media_pickup", Label: "Media outlet picked up the story", At: p.Timestamp})
			break
		}
	}
	for _, ev := range st.Events {
		if ev.Type == domain.EventTypeSystem && strings.Contains(ev.Message, activationMarker) {
			out = append(out, Milestone{Kind: "crew_activated", Label: "Crisis crew activated", At: ev.Timestamp})
			break
		}
	}
	for _, p := range st.Posts {
		if p.Wave >= 2 {
			out = append(out, Milestone{Kind: "second_wave", Label: "Second crisis wave hit", At: p.Timestamp})
			break
		}
	}
	if st.Status == domain.RunStatusCompleted {
		out = append(out, Milestone{Kind: "run_completed", Label: "Response pipeline completed"})
	}
	return out
}

func isMediaHandle(handle string) bool {
	lower := strings.ToLower(handle)
	for _, hint := range mediaHandleHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}
