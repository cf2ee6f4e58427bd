package dispatch

// Event names shared with the external job executor
const (
	EventEmailAnalysis = "email-analysis"
	EventScheduledSend = "scheduled-send-process"
	EventBackfill      = "email-analysis-account-backfill"
)

// EmailAnalysisData carries either a single message id or a list of ids.
type EmailAnalysisData struct {
	MessageID  string   `json:"messageId,omitempty"`
	MessageIDs []string `json:"messageIds,omitempty"`
}

// ScheduledSendData identifies one scheduled send to execute.
type ScheduledSendData struct {
	ScheduledSendID string `json:"scheduledSendId"`
}

// BackfillData asks for enrichment of an account's unprocessed messages.
type BackfillData struct {
	AccountID string `json:"accountId"`
	Limit     int    `json:"limit,omitempty"`
}
