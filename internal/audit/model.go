package audit

import "time"

// Actions recorded by the platform.
const (
	ActionUserRegistered        = "USER_REGISTERED"
	ActionUserLogin             = "USER_LOGIN"
	ActionGroupCreated          = "GROUP_CREATED"
	ActionGroupJoined           = "GROUP_JOINED"
	ActionContributionAmountSet = "CONTRIBUTION_AMOUNT_SET"
	ActionContributionMarked    = "CONTRIBUTION_MARKED"
	ActionTurnReceived          = "TURN_RECEIVED"
	ActionTurnAdvanced          = "TURN_ADVANCED"
	ActionGroupClosed           = "GROUP_CLOSED"
	ActionKYCSubmitted          = "KYC_SUBMITTED"
	ActionKYCVerified           = "KYC_VERIFIED"
	ActionKYCRejected           = "KYC_REJECTED"
	ActionAdminAction           = "ADMIN_ACTION"
)

// Event is emitted from domain logic to capture key actions. It stays
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	GroupID   string         `json:"group_id,omitempty"`
	Action    string         `json:"action"`
	Details   string         `json:"details,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	IPAddress string         `json:"ip_address,omitempty"`
	UserAgent string         `json:"user_agent,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Page bounds list queries.
type Page struct {
	Limit int
	Skip  int
}

// ActionCount is one row of the per-action breakdown.
type ActionCount struct {
	Action string `json:"action"`
	Count  int64  `json:"count"`
}

// Stats summarises the audit trail.
type Stats struct {
	TotalLogs      int64         `json:"total_logs"`
	ActionCounts   []ActionCount `json:"action_counts"`
	RecentActivity []Event       `json:"recent_activity"`
}

const (
	defaultLimit = 50
	maxLimit     = 500
	recentLimit  = 10
)

// Normalize clamps the page to sane bounds.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	if p.Skip < 0 {
		p.Skip = 0
	}
	return p
}
