package billing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapGatewayResult(t *testing.T) {
	tests := []struct {
		name   string
		result string
		want   PaymentResult
	}{
		{"Captured", "CAPTURED", ResultSuccess},
		{"CapturedLowercase", "captured", ResultSuccess},
		{"CapturedWhitespace", "  CAPTURED  ", ResultSuccess},
		{"NotCaptured", "NOT CAPTURED", ResultFailed},
		{"NotCapturedUnderscore", "NOT_CAPTURED", ResultFailed},
		{"Declined", "DECLINED", ResultFailed},
		{"Failed", "FAILED", ResultFailed},
		{"Canceled", "CANCELED", ResultCanceled},
		{"CancelledBritish", "CANCELLED", ResultCanceled},
		{"Voided", "VOIDED", ResultCanceled},
		{"UnknownValue", "PENDING_REVIEW", ResultUnknown},
		{"Empty", "", ResultUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MapGatewayResult(tt.result))
		})
	}
}

func TestSupportedGatewayResults(t *testing.T) {
	results := SupportedGatewayResults()
	assert.Len(t, results, len(gatewayResultMap))
	assert.Contains(t, results, "CAPTURED")
	for i := 1; i < len(results); i++ {
		assert.Less(t, results[i-1], results[i])
	}
}

func TestParseWebhookPayload(t *testing.T) {
	t.Run("FullPayload", func(t *testing.T) {
		raw := []byte(`{"order_id":"kwapps-1","track_id":"TRK1","payment_id":"PAY1","tran_id":"TX1","result":"CAPTURED","payment_type":"knet","amount":"12.500"}`)
		p, err := ParseWebhookPayload(raw)
		require.NoError(t, err)
		assert.Equal(t, "kwapps-1", p.OrderID)
		assert.Equal(t, "TRK1", p.TrackID)
		assert.Equal(t, "CAPTURED", p.Result)
		assert.InDelta(t, 12.5, p.AmountKWD(), 0.0001)
	})

	t.Run("NumericAmount", func(t *testing.T) {
		raw := []byte(`{"order_id":"kwapps-1","track_id":"TRK1","result":"CAPTURED","amount":9.9}`)
		p, err := ParseWebhookPayload(raw)
		require.NoError(t, err)
		assert.InDelta(t, 9.9, p.AmountKWD(), 0.0001)
	})

	t.Run("MissingTrackID", func(t *testing.T) {
		_, err := ParseWebhookPayload([]byte(`{"order_id":"kwapps-1","result":"CAPTURED"}`))
		assert.ErrorContains(t, err, "track_id")
	})

	t.Run("MissingOrderID", func(t *testing.T) {
		_, err := ParseWebhookPayload([]byte(`{"track_id":"TRK1","result":"CAPTURED"}`))
		assert.ErrorContains(t, err, "order_id")
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		_, err := ParseWebhookPayload([]byte(`{not json`))
		assert.Error(t, err)
	})
}

func TestUPaymentsClientCreateCharge(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/charge", r.URL.Path)
			assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":true,"data":{"link":"https://pay.example.com/p/123","track_id":"TRK9"}}`))
		}))
		defer srv.Close()

		client := &UPaymentsClient{APIBaseURL: srv.URL, APIToken: "test-token", HTTPClient: srv.Client()}
		link, err := client.CreateCharge(context.Background(), ChargeRequest{OrderID: "kwapps-1", Amount: 5})
		require.NoError(t, err)
		assert.Equal(t, "https://pay.example.com/p/123", link)
	})

	t.Run("GatewayRejects", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"status":false,"message":"invalid merchant"}`))
		}))
		defer srv.Close()

		client := &UPaymentsClient{APIBaseURL: srv.URL, APIToken: "test-token", HTTPClient: srv.Client()}
		_, err := client.CreateCharge(context.Background(), ChargeRequest{OrderID: "kwapps-1"})
		assert.ErrorContains(t, err, "invalid merchant")
	})

	t.Run("HTTPError", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "upstream down", http.StatusBadGateway)
		}))
		defer srv.Close()

		client := &UPaymentsClient{APIBaseURL: srv.URL, APIToken: "test-token", HTTPClient: srv.Client()}
		_, err := client.CreateCharge(context.Background(), ChargeRequest{OrderID: "kwapps-1"})
		assert.ErrorContains(t, err, "502")
	})

	t.Run("MissingToken", func(t *testing.T) {
		client := &UPaymentsClient{APIBaseURL: "http://localhost:0"}
		_, err := client.CreateCharge(context.Background(), ChargeRequest{OrderID: "kwapps-1"})
		assert.ErrorContains(t, err, "not configured")
	})
}
