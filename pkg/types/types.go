// Package types defines the shared domain records for the memory substrate:
// sessions, conversations, messages, learned patterns, and the composite
// context object returned to agents.
package types

import (
	"time"
)

// StateTree is a session's structured state, partitioned by namespace prefix
// ("user:", "email:", "calendar:") plus the reserved subtrees "agent_states",
// "conversation_history" and "session_metadata". Mutations are expressed as
// partial-key deltas merged into the tree, never as full replacement.
type StateTree = map[string]any

// Reserved state-tree keys and namespace prefixes.
const (
	StateKeyAgentStates         = "agent_states"
	StateKeyConversationHistory = "conversation_history"
	StateKeySessionMetadata     = "session_metadata"

	StatePrefixUser     = "user:"
	StatePrefixEmail    = "email:"
	StatePrefixCalendar = "calendar:"
)

// Session is the durable per-(user, session) state record. Exactly one exists
// per identifier pair.
type Session struct {
	UserID       string    `json:"user_id"`
	SessionID    string    `json:"session_id"`
	State        StateTree `json:"state"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

// SessionEvent is one appended delta in a session's event log.
type SessionEvent struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id"`
	Seq       int64     `json:"seq"`
	Delta     StateTree `json:"delta"`
	CreatedAt time.Time `json:"created_at"`
}

// MessageType tags the origin of a stored message.
type MessageType string

const (
	MessageTypeUserVoice     MessageType = "user_voice"
	MessageTypeAgentResponse MessageType = "agent_response"
	MessageTypeSystem        MessageType = "system"
	MessageTypeSummary       MessageType = "summary"
)

// Valid reports whether t is a known message type. The empty string is valid
// as a filter meaning "all types".
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeUserVoice, MessageTypeAgentResponse, MessageTypeSystem, MessageTypeSummary:
		return true
	default:
		return false
	}
}

// Conversation is a permanent record of one assistant conversation.
// MessageCount always equals the number of stored messages referencing it;
// it is maintained by recount-on-write, not increment.
type Conversation struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	SessionID     string     `json:"session_id"`
	Title         string     `json:"title"`
	MessageCount  int        `json:"message_count"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Message is a single immutable conversation entry.
type Message struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	Type           MessageType    `json:"message_type"`
	Content        string         `json:"content"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// PatternType identifies one learned behavioral signal.
type PatternType string

const (
	PatternEmailFrequency    PatternType = "email_frequency"
	PatternVoiceCommands     PatternType = "voice_commands"
	PatternActionPreference  PatternType = "action_preference"
	PatternResponseStyle     PatternType = "response_style"
	PatternSummaryPreference PatternType = "summary_preference"
)

// Pattern is an aggregated, confidence-scored summary of a recurring user
// behavior, keyed by (user_id, pattern_type). Confidence is in [0,1] and only
// increases under consistent observations; it never decreases except via an
// explicit reset.
type Pattern struct {
	UserID      string         `json:"user_id"`
	Type        PatternType    `json:"pattern_type"`
	Data        map[string]any `json:"pattern_data"`
	Confidence  float64        `json:"confidence"`
	LastUpdated time.Time      `json:"last_updated"`
}

// Suggestion is one ranked proactive recommendation.
type Suggestion struct {
	Type       string  `json:"type"`
	Message    string  `json:"message"`
	Confidence float64 `json:"confidence"`
	Action     string  `json:"action"`
}

// ResponseSettings is the adaptive formatting profile derived from learned
// patterns, applied when rendering agent responses.
type ResponseSettings struct {
	Verbosity     string `json:"verbosity"`    // brief, normal, detailed
	DetailLevel   string `json:"detail_level"` // low, medium, high
	Format        string `json:"format"`       // plain, structured
	MaxSummaryLen int    `json:"max_summary_len"`
}

// DefaultResponseSettings returns the profile used before any patterns
// accumulate.
func DefaultResponseSettings() ResponseSettings {
	return ResponseSettings{
		Verbosity:     "normal",
		DetailLevel:   "medium",
		Format:        "plain",
		MaxSummaryLen: 300,
	}
}

// EmailSummary is one cached email list entry. The cache tier stores the
// rendered list; Gmail API access lives outside this module.
type EmailSummary struct {
	ID         string    `json:"id"`
	From       string    `json:"from"`
	Subject    string    `json:"subject"`
	Snippet    string    `json:"snippet,omitempty"`
	Unread     bool      `json:"unread"`
	ReceivedAt time.Time `json:"received_at"`
}

// CacheStatus reports which parts of a composite read were served from cache.
type CacheStatus struct {
	EmailsCached  bool `json:"emails_cached"`
	SessionCached bool `json:"session_cached"`
}

// ConversationRef is the lightweight pointer kept in the session's bounded
// conversation_history list.
type ConversationRef struct {
	ConversationID string      `json:"conversation_id"`
	MessageID      string      `json:"message_id"`
	Type           MessageType `json:"message_type"`
	Preview        string      `json:"preview"`
	At             time.Time   `json:"at"`
}

// SessionContext is the merged view returned to agents: authoritative session
// state plus cached hot data, recent history, and learned patterns.
type SessionContext struct {
	UserID         string                  `json:"user_id"`
	SessionID      string                  `json:"session_id"`
	State          StateTree               `json:"state"`
	RecentMessages []*Message              `json:"recent_messages,omitempty"`
	Patterns       map[string]*Pattern     `json:"patterns,omitempty"`
	Settings       ResponseSettings        `json:"settings"`
	CacheStatus    CacheStatus             `json:"cache_status"`
	Suggestions    []Suggestion            `json:"suggestions,omitempty"`
}

// EmailContext is the composite result of the cache-first email read path.
type EmailContext struct {
	Emails []EmailSummary `json:"emails"`

	// EmailState carries the session's email:* state subtree. It is read
	// from the session store, so it survives cache outages.
	EmailState  StateTree        `json:"email_state,omitempty"`
	Settings    ResponseSettings `json:"settings"`
	CacheStatus CacheStatus      `json:"cache_status"`
	FetchedAt   time.Time        `json:"fetched_at"`
}

// HealthStatus is the tri-state tier health classification.
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusDegraded  HealthStatus = "degraded"
	StatusUnhealthy HealthStatus = "unhealthy"
)

// TierHealth is one tier's probe result: status plus itemized boolean checks
// and the measured round-trip time.
type TierHealth struct {
	Status       HealthStatus    `json:"status"`
	Checks       map[string]bool `json:"checks"`
	ResponseTime time.Duration   `json:"response_time"`
	Error        string          `json:"error,omitempty"`
}

// HealthReport aggregates all tier probes.
type HealthReport struct {
	Status    HealthStatus           `json:"status"`
	Tiers     map[string]*TierHealth `json:"tiers"`
	CheckedAt time.Time              `json:"checked_at"`
}

// LearningEvent is the unit forwarded asynchronously to the pattern engine.
type LearningEvent struct {
	UserID    string         `json:"user_id"`
	EventType string         `json:"event_type"`
	EventData map[string]any `json:"event_data"`
	Context   map[string]any `json:"context,omitempty"`
	At        time.Time      `json:"at"`
}

// Learning event types recognized by the pattern engine.
const (
	EventEmailCheck        = "email_check"
	EventVoiceCommand      = "voice_command"
	EventEmailAction       = "email_action"
	EventResponseGenerated = "response_generated"
	EventSummaryRequested  = "summary_requested"
)
