package zbpay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
)

func TestInitiate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/payments/initiate-transaction" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "key" || r.Header.Get("x-api-secret") != "secret" {
			t.Fatal("expected api credentials in headers")
		}
		var payload map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decoding payload: %v", err)
		}
		if payload["orderReference"] != "ORD-1-abc" {
			t.Fatalf("unexpected orderReference %v", payload["orderReference"])
		}
		json.NewEncoder(w).Encode(map[string]string{"paymentUrl": "https://zbpay.example/checkout/abc"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "key", "secret")
	resp, err := client.Initiate(context.Background(), InitiateRequest{
		Amount:         decimal.RequireFromString("200"),
		CurrencyCode:   840,
		OrderReference: "ORD-1-abc",
		TransactionID:  "TXN-1-abc",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.PaymentURL != "https://zbpay.example/checkout/abc" {
		t.Fatalf("unexpected payment url %q", resp.PaymentURL)
	}
}

func TestInitiateGatewayRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"invalid currency"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "key", "secret")
	_, err := client.Initiate(context.Background(), InitiateRequest{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("unexpected status %d", apiErr.StatusCode)
	}
}

func TestInitiateMissingPaymentURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"error": "limit exceeded"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "key", "secret")
	_, err := client.Initiate(context.Background(), InitiateRequest{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError for 2xx without paymentUrl, got %v", err)
	}
}

func TestQueryStatus(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"status field", `{"status":"PAID","amount":200}`, "PAID"},
		{"paymentStatus field", `{"paymentStatus":"FAILED"}`, "FAILED"},
		{"empty body fields", `{}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/payments/transaction/ORD-1-abc/status/check" {
					t.Fatalf("unexpected path %s", r.URL.Path)
				}
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(server.URL, "key", "secret")
			result, err := client.QueryStatus(context.Background(), "ORD-1-abc")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.RawStatus != tt.want {
				t.Fatalf("expected status %q, got %q", tt.want, result.RawStatus)
			}
			if string(result.RawPayload) != tt.body {
				t.Fatalf("expected raw payload to be preserved, got %s", result.RawPayload)
			}
		})
	}
}

func TestQueryStatusGatewayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, "key", "secret")
	_, err := client.QueryStatus(context.Background(), "ORD-1-abc")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
}
