package crew

import (
	"context"
	"fmt"
	"sort"

	"crisiswatch/internal/domain"
)

// Engagement thresholds separating severity levels.
const (
	criticalEngagement = 500
	moderateEngagement = 200
	lowEngagement      = 50
)

// maxDrafts caps how many replies the copywriter produces per run.
const maxDrafts = 3

func (s *Service) monitorStage(ctx context.Context, wave int) ([]domain.Post, error) {
	s.record(ctx, domain.AgentMonitor, domain.EventTypeAgentStart, "Agent started")
	s.record(ctx, domain.AgentMonitor, domain.EventTypeTaskStart, "Scanning incoming mentions...")
	s.record(ctx, domain.AgentMonitor, domain.EventTypeToolCall, fmt.Sprintf("Reading tweet feed (wave=%d)", wave))

	loaded, err := s.feed.LoadWave(wave)
	if err != nil {
		s.record(ctx, domain.AgentMonitor, domain.EventTypeError, "Feed read failed: "+err.Error())
		return nil, fmt.Errorf("monitor stage: %w", err)
	}
	posts := loaded.Tweets

	engagement := 0
	for _, p := range posts {
		engagement += p.Reach()
	}

	s.record(ctx, domain.AgentMonitor, domain.EventTypeToolResult, fmt.Sprintf("Feed returned %d mentions", len(posts)))
	s.record(ctx, domain.AgentMonitor, domain.EventTypeThought,
		fmt.Sprintf("Flagged %d brand mentions with combined engagement of %d", len(posts), engagement))
	s.record(ctx, domain.AgentMonitor, domain.EventTypeFinalAnswer,
		fmt.Sprintf("%d mentions flagged for review, total engagement %d", len(posts), engagement))

	s.saveDecisions(ctx, func(d *domain.Decisions) {
		d.Monitor = &domain.MonitorSummary{Flagged: len(posts), Engagement: engagement}
	})
	s.record(ctx, domain.AgentMonitor, domain.EventTypeAgentComplete, "Task completed")
	return posts, nil
}

func (s *Service) severityStage(ctx context.Context, posts []domain.Post) domain.SeverityVerdict {
	s.record(ctx, domain.AgentSeverity, domain.EventTypeAgentStart, "Agent started")
	s.record(ctx, domain.AgentSeverity, domain.EventTypeTaskStart, "Classifying crisis severity...")

	engagement := 0
	for _, p := range posts {
		engagement += p.Reach()
	}

	verdict := domain.SeverityVerdict{Level: domain.SeverityStandby}
	switch {
	case engagement >= criticalEngagement:
		verdict.Level = domain.SeverityCritical
		verdict.Reasoning = fmt.Sprintf(
			"Engagement of %d across %d mentions indicates a fast-spreading reputational threat.",
			engagement, len(posts))
	case engagement >= moderateEngagement:
		verdict.Level = domain.SeverityModerate
		verdict.Reasoning = fmt.Sprintf(
			"Engagement of %d is significant but contained to %d mentions.",
			engagement, len(posts))
	case engagement >= lowEngagement:
		verdict.Level = domain.SeverityLow
		verdict.Reasoning = fmt.Sprintf(
			"Low engagement of %d; the conversation has not gained traction yet.", engagement)
	default:
		verdict.Reasoning = "Negligible engagement; continue monitoring."
	}

	s.record(ctx, domain.AgentSeverity, domain.EventTypeThought, verdict.Reasoning)
	s.record(ctx, domain.AgentSeverity, domain.EventTypeFinalAnswer, fmt.Sprintf("Severity: %s", verdict.Level))
	s.saveDecisions(ctx, func(d *domain.Decisions) {
		v := verdict
		d.Severity = &v
	})
	s.record(ctx, domain.AgentSeverity, domain.EventTypeAgentComplete, "Task completed")
	return verdict
}

func (s *Service) strategyStage(ctx context.Context, severity domain.SeverityVerdict) domain.Strategy {
	s.record(ctx, domain.AgentStrategist, domain.EventTypeAgentStart, "Agent started")
	s.record(ctx, domain.AgentStrategist, domain.EventTypeTaskStart, "Choosing response posture...")

	var strategy domain.Strategy
	switch severity.Level {
	case domain.SeverityCritical:
		strategy = domain.Strategy{Action: domain.ActionRespondAndEscalate, Tone: domain.ToneApologetic, Escalate: true}
	case domain.SeverityModerate:
		strategy = domain.Strategy{Action: domain.ActionRespondPublicly, Tone: domain.ToneReassuring}
	case domain.SeverityLow:
		strategy = domain.Strategy{Action: domain.ActionRespondPublicly, Tone: domain.ToneInvestigative}
	default:
		strategy = domain.Strategy{Action: domain.ActionMonitorOnly, Tone: domain.ToneReassuring}
	}

	s.record(ctx, domain.AgentStrategist, domain.EventTypeThought,
		fmt.Sprintf("Posture %s with %s tone fits a %s severity crisis", strategy.Action, strategy.Tone, severity.Level))
	s.record(ctx, domain.AgentStrategist, domain.EventTypeFinalAnswer,
		fmt.Sprintf("Action: %s, tone: %s, escalate: %t", strategy.Action, strategy.Tone, strategy.Escalate))
	s.saveDecisions(ctx, func(d *domain.Decisions) {
		st := strategy
		d.Strategy = &st
	})
	s.record(ctx, domain.AgentStrategist, domain.EventTypeAgentComplete, "Task completed")
	return strategy
}

func (s *Service) copywriterStage(ctx context.Context, posts []domain.Post, strategy domain.Strategy) []domain.Response {
	s.record(ctx, domain.AgentCopywriter, domain.EventTypeAgentStart, "Agent started")
	s.record(ctx, domain.AgentCopywriter, domain.EventTypeTaskStart, "Drafting public replies...")

	if strategy.Action == domain.ActionMonitorOnly {
		s.record(ctx, domain.AgentCopywriter, domain.EventTypeFinalAnswer, "Monitor-only posture, no replies drafted")
		s.record(ctx, domain.AgentCopywriter, domain.EventTypeAgentComplete, "Task completed")
		return nil
	}

	ranked := make([]domain.Post, len(posts))
	copy(ranked, posts)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Reach() > ranked[j].Reach()
	})
	if len(ranked) > maxDrafts {
		ranked = ranked[:maxDrafts]
	}

	s.appendLog("## Crisis Response Log", "")
	var responses []domain.Response
	seen := map[string]bool{}
	for _, p := range ranked {
		if seen[p.User] {
			continue
		}
		seen[p.User] = true
		r := domain.Response{
			ID:   p.ID,
			User: p.User,
			Text: draftReply(strategy.Tone),
		}
		responses = append(responses, r)
		s.appendLog(fmt.Sprintf("TWEET %s (%s): %s", r.ID, r.User, r.Text))
		s.record(ctx, domain.AgentCopywriter, domain.EventTypeThought,
			fmt.Sprintf("Drafted reply to %s (reach %d)", p.User, p.Reach()))
		if err := s.store.SaveResponse(ctx, s.currentRunID(), r); err != nil {
			s.logger.WithError(err).Warn("persist response failed")
		}
	}

	s.record(ctx, domain.AgentCopywriter, domain.EventTypeFinalAnswer,
		fmt.Sprintf("Drafted %d replies", len(responses)))
	s.record(ctx, domain.AgentCopywriter, domain.EventTypeAgentComplete, "Task completed")
	return responses
}

func (s *Service) sentimentStage(ctx context.Context, severity domain.SeverityVerdict, responses []domain.Response) domain.Recommendation {
	s.record(ctx, domain.AgentSentiment, domain.EventTypeAgentStart, "Agent started")
	s.record(ctx, domain.AgentSentiment, domain.EventTypeTaskStart, "Evaluating post-response sentiment...")

	var rec domain.Recommendation
	switch {
	case severity.Level == domain.SeverityCritical:
		rec = domain.Recommendation{
			Status: domain.RecommendationEscalate,
			Reason: "Critical severity requires human review before further public statements.",
		}
	case severity.Level == domain.SeverityModerate:
		rec = domain.Recommendation{
			Status: domain.RecommendationFollowUp,
			Reason: fmt.Sprintf("%d replies posted; re-check sentiment after the next wave.", len(responses)),
		}
	default:
		rec = domain.Recommendation{
			Status: domain.RecommendationResolved,
			Reason: "Engagement is low and drafted replies cover the flagged mentions.",
		}
	}

	s.record(ctx, domain.AgentSentiment, domain.EventTypeThought, rec.Reason)
	s.record(ctx, domain.AgentSentiment, domain.EventTypeFinalAnswer, fmt.Sprintf("Recommendation: %s", rec.Status))
	s.saveDecisions(ctx, func(d *domain.Decisions) {
		r := rec
		d.Recommendation = &r
	})
	s.record(ctx, domain.AgentSentiment, domain.EventTypeAgentComplete, "Task completed")
	return rec
}

func (s *Service) currentRunID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runID
}

func draftReply(tone domain.StrategyTone) string {
	switch tone {
	case domain.ToneApologetic:
		return "We're truly sorry about your experience. Our team is on it and we'll make this right. Please DM us your order details."
	case domain.ToneInvestigative:
		return "Thanks for flagging this. We're looking into what happened. Could you DM us more details so we can dig in?"
	default:
		return "Thanks for reaching out. We hear you and our team is already reviewing this. Updates to follow shortly."
	}
}
