package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/binsaleem99/kwapps-sub001/internal/pkg/env"
)

const defaultUPaymentsAPIBaseURL = "https://api.upayments.com/api/v1"

// gatewayResultMap is the closed, auditable mapping from the gateway's result
// vocabulary to the internal tri-state. KNET reports captures and declines in
// several spellings; all of them are enumerated here rather than matched by
// substring.
var gatewayResultMap = map[string]PaymentResult{
	"CAPTURED":     ResultSuccess,
	"NOT CAPTURED": ResultFailed,
	"NOT_CAPTURED": ResultFailed,
	"DECLINED":     ResultFailed,
	"FAILED":       ResultFailed,
	"CANCELED":     ResultCanceled,
	"CANCELLED":    ResultCanceled,
	"VOIDED":       ResultCanceled,
}

// MapGatewayResult resolves a raw gateway result string against the mapping
// table. Unlisted values map to ResultUnknown.
func MapGatewayResult(result string) PaymentResult {
	if r, ok := gatewayResultMap[strings.ToUpper(strings.TrimSpace(result))]; ok {
		return r
	}
	return ResultUnknown
}

// SupportedGatewayResults lists the accepted gateway result values, sorted,
// for the webhook health endpoint.
func SupportedGatewayResults() []string {
	results := make([]string, 0, len(gatewayResultMap))
	for k := range gatewayResultMap {
		results = append(results, k)
	}
	sort.Strings(results)
	return results
}

// ParseWebhookPayload decodes the gateway webhook body. Signature
// verification must already have happened on the raw bytes.
func ParseWebhookPayload(raw []byte) (WebhookPayload, error) {
	var p WebhookPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("failed to parse webhook payload: %w", err)
	}
	if strings.TrimSpace(p.TrackID) == "" {
		return p, errors.New("webhook payload is missing track_id")
	}
	if strings.TrimSpace(p.OrderID) == "" {
		return p, errors.New("webhook payload is missing order_id")
	}
	return p, nil
}

// UPaymentsClient talks to the UPayments charge API.
type UPaymentsClient struct {
	APIBaseURL string
	APIToken   string

	HTTPClient *http.Client
}

// NewUPaymentsClientFromEnv builds a client from UPAYMENTS_* env vars.
func NewUPaymentsClientFromEnv() *UPaymentsClient {
	return &UPaymentsClient{
		APIBaseURL: env.GetEnv("UPAYMENTS_API_URL", defaultUPaymentsAPIBaseURL),
		APIToken:   env.GetEnv("UPAYMENTS_API_TOKEN", ""),
		HTTPClient: &http.Client{Timeout: 20 * time.Second},
	}
}

// ChargeRequest describes a hosted-checkout charge creation.
type ChargeRequest struct {
	OrderID       string  `json:"order_id"`
	Amount        float64 `json:"amount"`
	CustomerName  string  `json:"customer_name"`
	CustomerEmail string  `json:"customer_email"`
	ProductName   string  `json:"product_name"`
	ReturnURL     string  `json:"return_url"`
	CancelURL     string  `json:"cancel_url"`
	NotifyURL     string  `json:"notify_url"`
}

type chargeResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Link    string `json:"link"`
		TrackID string `json:"track_id"`
	} `json:"data"`
}

// CreateCharge creates a hosted payment page for the given order and returns
// the payment link the user is redirected to.
func (c *UPaymentsClient) CreateCharge(ctx context.Context, req ChargeRequest) (string, error) {
	if strings.TrimSpace(c.APIToken) == "" {
		return "", errors.New("upayments is not configured")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal charge request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIBaseURL+"/charge", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.APIToken)

	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("charge request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read charge response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("charge request returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed chargeResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse charge response: %w", err)
	}
	if !parsed.Status || parsed.Data.Link == "" {
		return "", fmt.Errorf("charge was not accepted by gateway: %s", parsed.Message)
	}

	return parsed.Data.Link, nil
}
