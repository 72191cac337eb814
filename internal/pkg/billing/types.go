package billing

import (
	"encoding/json"
	"strconv"
	"strings"
)

// PaymentResult is the closed internal vocabulary a gateway result string is
// mapped into. Anything outside the mapping table becomes ResultUnknown.
type PaymentResult string

const (
	ResultSuccess  PaymentResult = "success"
	ResultFailed   PaymentResult = "failed"
	ResultCanceled PaymentResult = "canceled"
	ResultUnknown  PaymentResult = "unknown"
)

// ClaimStatus is the outcome of claiming a webhook delivery for processing.
type ClaimStatus int

const (
	// ClaimOwned means this request inserted the dedup row and owns processing.
	ClaimOwned ClaimStatus = iota
	// ClaimDuplicate means a row for the track id already existed (gateway retry).
	ClaimDuplicate
	// ClaimRaceLost means a concurrent request inserted the row between our
	// existence check and our insert; the winner owns processing.
	ClaimRaceLost
)

// WebhookPayload is the decoded gateway webhook body.
type WebhookPayload struct {
	OrderID      string      `json:"order_id"`
	TrackID      string      `json:"track_id"`
	PaymentID    string      `json:"payment_id"`
	TranID       string      `json:"tran_id"`
	Result       string      `json:"result"`
	PaymentType  string      `json:"payment_type"`
	Amount       json.Number `json:"amount"`
	CardToken    string      `json:"card_token,omitempty"`
	CardLastFour string      `json:"card_last_four,omitempty"`
}

// AmountKWD returns the payload amount as a float, tolerating both numeric
// and string encodings from the gateway.
func (p WebhookPayload) AmountKWD() float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(p.Amount.String()), 64)
	if err != nil {
		return 0
	}
	return v
}

// Outcome is the processing result surfaced to the HTTP handler. Any outcome
// is answered with HTTP 200 so the gateway stops retrying; Success reports
// whether side effects were applied, Duplicate marks replayed deliveries.
// CreditsAllocated carries the period allocation for metrics and
// notifications; UserID is set whenever the originating transaction was found.
type Outcome struct {
	Success          bool
	Duplicate        bool
	Status           string
	UserID           uint
	CreditsAllocated int
}
