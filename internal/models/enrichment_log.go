package models

import "time"

// EnrichmentLog is the audit record of one enrichment attempt. It is written
// as pending when the attempt starts and finished exactly once.
type EnrichmentLog struct {
	ID               int64          `json:"id"`
	EventID          int64          `json:"event_id"`
	Mode             EnrichmentMode `json:"mode"`
	Prompt           string         `json:"prompt"`
	Response         *string        `json:"response,omitempty"`
	Status           LogStatus      `json:"status"`
	TokensPrompt     *int           `json:"tokens_prompt,omitempty"`
	TokensCompletion *int           `json:"tokens_completion,omitempty"`
	DurationMs       *int           `json:"duration_ms,omitempty"`
	Error            *string        `json:"error,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// EnrichmentMode selects how derived fields are produced. Logs only ever
// record ai or rules; hybrid is a configuration value.
type EnrichmentMode string

const (
	EnrichmentModeAI     EnrichmentMode = "ai"
	EnrichmentModeRules  EnrichmentMode = "rules"
	EnrichmentModeHybrid EnrichmentMode = "hybrid"
)

// Valid reports whether m is a known mode.
func (m EnrichmentMode) Valid() bool {
	switch m {
	case EnrichmentModeAI, EnrichmentModeRules, EnrichmentModeHybrid:
		return true
	}
	return false
}

// LogStatus is the state of an enrichment log entry.
type LogStatus string

const (
	LogStatusPending  LogStatus = "pending"
	LogStatusSuccess  LogStatus = "success"
	LogStatusFallback LogStatus = "fallback"
	LogStatusFailed   LogStatus = "failed"
)

// Terminal reports whether the status can no longer change.
func (s LogStatus) Terminal() bool {
	return s != LogStatusPending
}

// LogOutcome carries the fields written when an attempt finishes.
type LogOutcome struct {
	Status           LogStatus
	Response         *string
	TokensPrompt     *int
	TokensCompletion *int
	DurationMs       *int
	Error            *string
}
