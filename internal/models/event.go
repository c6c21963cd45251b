package models

import "time"

// Outcome classifies how a relay request ended.
type Outcome string

const (
	OutcomeForwarded     Outcome = "forwarded"
	OutcomeInvalid       Outcome = "invalid"
	OutcomeNotConfigured Outcome = "not_configured"
	OutcomeUpstreamError Outcome = "upstream_error"
	OutcomeMalformed     Outcome = "malformed"
)

// ConnectionTestEvent records one relay request. It carries no credentials.
// RequestID is generated by the server; CorrelationID is the caller's
// X-Request-ID and may repeat.
type ConnectionTestEvent struct {
	RequestID     string    `json:"request_id" db:"request_id"`
	CorrelationID string    `json:"correlation_id" db:"correlation_id"`
	BankID     string    `json:"bank_id" db:"bank_id"`
	Outcome    Outcome   `json:"outcome" db:"outcome"`
	Success    bool      `json:"success" db:"success"`
	Message    string    `json:"message" db:"message"`
	DurationMS int64     `json:"duration_ms" db:"duration_ms"`
	OccurredAt time.Time `json:"occurred_at" db:"occurred_at"`
}

// Stats aggregates relay requests across instances.
type Stats struct {
	TotalRequests         int64            `json:"total_requests"`
	SuccessfulValidations int64            `json:"successful_validations"`
	FailedValidations     int64            `json:"failed_validations"`
	Errors                int64            `json:"errors"`
	Rejected              int64            `json:"rejected"`
	AverageExecutionTime  float64          `json:"average_execution_time"`
	SuccessRate           float64          `json:"success_rate"`
	RequestsByHour        map[string]int64 `json:"requests_by_hour"`
}
