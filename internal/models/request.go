package models

import (
	"encoding/json"
	"fmt"
)

// IncomingRequest is the credential payload posted by the frontend. Field
// values are kept as decoded so they are forwarded unchanged; only their
// truthiness is checked. It is never stored.
type IncomingRequest struct {
	// Identifier of the bank careers site (credit_agricole, societe_generale, ...)
	BankID interface{} `json:"bank_id" validate:"truthy" example:"credit_agricole"`
	// Login used on the bank careers site
	Email interface{} `json:"email" validate:"truthy" example:"user@example.com"`
	// Password used on the bank careers site
	Password interface{} `json:"password" validate:"truthy" example:"motdepasse123"`
}

// BankLabel renders the bank id for logs, stats and events.
func (r IncomingRequest) BankLabel() string {
	switch v := r.BankID.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		if b, err := json.Marshal(v); err == nil {
			return string(b)
		}
		return fmt.Sprint(v)
	}
}

// Envelope is the normalized response returned for every relay request.
// Success and Message hold whatever the external service replied; envelopes
// built by the relay itself carry a bool and a string.
type Envelope struct {
	// True when the external service reported a working connection
	Success interface{} `json:"success,omitempty" example:"false"`
	// Human readable outcome
	Message interface{} `json:"message,omitempty" example:"bank_id, email et password requis"`
	// Optional payload passed through from the external service
	Details interface{} `json:"details,omitempty"`
}
