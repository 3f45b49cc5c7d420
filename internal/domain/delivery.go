package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// DetailsKind tags the variant held by DeliveryDetails.
type DetailsKind string

const (
	DetailsNone      DetailsKind = ""
	DetailsSent      DetailsKind = "sent"
	DetailsTransient DetailsKind = "transient"
	DetailsPermanent DetailsKind = "permanent"
)

// FailureKind classifies a failed delivery attempt.
type FailureKind string

const (
	FailureTransient FailureKind = "transient"
	FailurePermanent FailureKind = "permanent"
)

// maxErrorHistory bounds DeliveryDetails.Errors.
const maxErrorHistory = 20

// DeliveryDetails is the diagnostic record folded from delivery attempts.
// Kind decides which of the remaining fields are meaningful:
// sent carries ReceiptID, transient carries LastError and RetryCount,
// permanent carries LastError and MaxRetriesReached.
type DeliveryDetails struct {
	Kind              DetailsKind `json:"kind,omitempty"`
	LastError         string      `json:"lastError,omitempty"`
	RetryCount        int         `json:"retryCount,omitempty"`
	MaxRetriesReached bool        `json:"maxRetriesReached,omitempty"`
	ReceiptID         string      `json:"receiptId,omitempty"`
	Errors            []string    `json:"errors,omitempty"`
}

func SentDetails(prev DeliveryDetails, receiptID string) DeliveryDetails {
	return DeliveryDetails{
		Kind:       DetailsSent,
		ReceiptID:  receiptID,
		RetryCount: prev.RetryCount,
		Errors:     prev.Errors,
	}
}

func TransientDetails(prev DeliveryDetails, errMsg string, retryCount int) DeliveryDetails {
	return DeliveryDetails{
		Kind:       DetailsTransient,
		LastError:  errMsg,
		RetryCount: retryCount,
		Errors:     appendError(prev.Errors, errMsg),
	}
}

func PermanentDetails(prev DeliveryDetails, errMsg string, retryCount int, maxRetriesReached bool) DeliveryDetails {
	return DeliveryDetails{
		Kind:              DetailsPermanent,
		LastError:         errMsg,
		RetryCount:        retryCount,
		MaxRetriesReached: maxRetriesReached,
		Errors:            appendError(prev.Errors, errMsg),
	}
}

func appendError(history []string, errMsg string) []string {
	out := make([]string, 0, len(history)+1)
	out = append(out, history...)
	out = append(out, errMsg)
	if len(out) > maxErrorHistory {
		out = out[len(out)-maxErrorHistory:]
	}
	return out
}

func (d DeliveryDetails) Value() (driver.Value, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (d *DeliveryDetails) Scan(src any) error {
	return scanJSON(src, d)
}

// Metadata is a free-form map attached to a reminder (e.g. provenance).
type Metadata map[string]any

const (
	MetadataSource          = "source"
	MetadataSourceAIParsing = "ai_parsing"
)

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]any(m))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *Metadata) Scan(src any) error {
	return scanJSON(src, m)
}

func scanJSON(src any, dst any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported json column type %T", src)
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

// AttemptOutcome is the result of a single delivery attempt.
type AttemptOutcome string

const (
	AttemptSuccess AttemptOutcome = "success"
	AttemptFailure AttemptOutcome = "failure"
)

// DeliveryAttempt records one dispatch try in the append-only audit log.
type DeliveryAttempt struct {
	ID            string
	ReminderID    string
	Channel       Channel
	AttemptNumber int
	Outcome       AttemptOutcome
	FailureKind   *FailureKind
	Error         *string
	ReceiptID     *string
	CreatedAt     time.Time
}

// Outcome is the atomic update of delivery fields written by the dispatch engine.
type Outcome struct {
	Sent           bool
	SentAt         *time.Time
	DeliveryStatus DeliveryStatus
	Details        DeliveryDetails
	RetryCount     int
	// ScheduledAt is set only when the reminder is rescheduled for a retry.
	ScheduledAt *time.Time
	Attempt     DeliveryAttempt
}
