package domain

import "time"

type RunStatus string

const (
	RunStatusIdle      RunStatus = "idle"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusError     RunStatus = "error"
)

type EventType string

const (
	EventTypeAgentStart    EventType = "agent_start"
	EventTypeTaskStart     EventType = "task_start"
	EventTypeAgentComplete EventType = "agent_complete"
	EventTypeToolCall      EventType = "tool_call"
	EventTypeToolResult    EventType = "tool_result"
	EventTypeThought       EventType = "thought"
	EventTypeFinalAnswer   EventType = "final_answer"
	EventTypeSystem        EventType = "system"
	EventTypeError         EventType = "error"
)

// AgentSystem is the sentinel agent name for events that do not belong
// to one of the five pipeline stages.
const AgentSystem = "System"

const (
	AgentMonitor    = "Social Media Monitor"
	AgentSeverity   = "Crisis Severity Classifier"
	AgentStrategist = "Brand Response Strategist"
	AgentCopywriter = "PR Response Copywriter"
	AgentSentiment  = "Post-Response Sentiment Monitor"
)

// PipelineAgents lists the five stages in display order.
var PipelineAgents = []string{
	AgentMonitor,
	AgentSeverity,
	AgentStrategist,
	AgentCopywriter,
	AgentSentiment,
}

type SeverityLevel string

const (
	SeverityStandby  SeverityLevel = "standby"
	SeverityLow      SeverityLevel = "low"
	SeverityModerate SeverityLevel = "moderate"
	SeverityCritical SeverityLevel = "critical"
)

type StrategyAction string

const (
	ActionMonitorOnly        StrategyAction = "monitor-only"
	ActionRespondPublicly    StrategyAction = "respond-publicly"
	ActionRespondAndEscalate StrategyAction = "respond-and-escalate"
)

type StrategyTone string

const (
	ToneApologetic    StrategyTone = "apologetic"
	ToneInvestigative StrategyTone = "investigative"
	ToneReassuring    StrategyTone = "reassuring"
)

type RecommendationStatus string

const (
	RecommendationEscalate RecommendationStatus = "ESCALATE"
	RecommendationFollowUp RecommendationStatus = "FOLLOW UP"
	RecommendationResolved RecommendationStatus = "RESOLVED"
)

// Post is a single social-media mention. Posts are immutable once
// received; arrival order is insertion order.
type Post struct {
	ID        string    `json:"id"`
	User      string    `json:"user"`
	Text      string    `json:"text"`
	Likes     int       `json:"likes"`
	Retweets  int       `json:"retweets"`
	Timestamp time.Time `json:"timestamp"`
	Wave      int       `json:"wave"`
}

// Reach is the engagement weight of a single post.
func (p Post) Reach() int {
	return p.Likes + p.Retweets
}

// Event is one entry of the agent pipeline log.
type Event struct {
	ID        int       `json:"id"`
	Agent     string    `json:"agent"`
	Type      EventType `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Response is a drafted reply recovered from the free-text crisis log.
type Response struct {
	ID   string `json:"id"`
	User string `json:"user"`
	Text string `json:"text"`
}

type MonitorSummary struct {
	Flagged    int `json:"flagged"`
	Engagement int `json:"engagement"`
}

type SeverityVerdict struct {
	Level     SeverityLevel `json:"level"`
	Reasoning string        `json:"reasoning"`
}

type Strategy struct {
	Action   StrategyAction `json:"action"`
	Tone     StrategyTone   `json:"tone"`
	Escalate bool           `json:"escalate"`
}

type Recommendation struct {
	Status RecommendationStatus `json:"status"`
	Reason string               `json:"reason"`
}

// Decisions is the snapshot of everything the pipeline has decided so
// far. Absent sub-records mean the owning stage has not finished yet.
type Decisions struct {
	Monitor        *MonitorSummary  `json:"monitor,omitempty"`
	Severity       *SeverityVerdict `json:"severity,omitempty"`
	Strategy       *Strategy        `json:"strategy,omitempty"`
	Recommendation *Recommendation  `json:"recommendation,omitempty"`
}

// Run records a single pipeline execution.
type Run struct {
	ID          string    `json:"id"`
	Status      RunStatus `json:"status"`
	FinalOutput string    `json:"final_output,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at,omitempty"`
}

// Wave is a bulk payload of posts belonging to one injected crisis phase.
type Wave struct {
	Wave   int    `json:"wave"`
	Tweets []Post `json:"tweets"`
}
