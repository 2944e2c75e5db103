package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mhs/fees-service/internal/app"
	"github.com/mhs/fees-service/internal/domain"
	"github.com/mhs/fees-service/internal/store"
	"github.com/mhs/fees-service/pkg/zbpay"
)

type stubGateway struct {
	initiateResp *zbpay.InitiateResponse
	initiateErr  error
	statusResult *zbpay.StatusResult
	statusErr    error
}

func (s *stubGateway) Initiate(_ context.Context, _ zbpay.InitiateRequest) (*zbpay.InitiateResponse, error) {
	return s.initiateResp, s.initiateErr
}

func (s *stubGateway) QueryStatus(_ context.Context, _ string) (*zbpay.StatusResult, error) {
	return s.statusResult, s.statusErr
}

func newTestRouter(t *testing.T, mem *store.Memory, gateway app.GatewayClient) http.Handler {
	t.Helper()
	svc := app.NewService(mem, gateway, app.NewNotifier(mem, nil))
	h := NewHandlers(svc, "student123", "https://portal.example/return", "https://portal.example/result")
	return NewRouter(h)
}

func seedStudent(t *testing.T, mem *store.Memory, id string, fee, paid string) {
	t.Helper()
	f := decimal.RequireFromString(fee)
	p := decimal.RequireFromString(paid)
	terms := map[string]domain.TermBalance{
		"2026_Term_1": {Fee: f, Paid: p},
	}
	err := mem.Apply(context.Background(), store.LedgerWrite{NewStudent: &domain.Student{
		ID:            id,
		Name:          "Tatenda",
		Surname:       "Moyo",
		StudentNumber: "SN-" + id,
		StudentType:   domain.StudentTypeDayScholar,
		GradeCategory: domain.GradeCategoryOLevel,
		Grade:         "Form 3",
		Financials: domain.Financials{
			Balance: app.RecomputeBalance(terms),
			Terms:   terms,
		},
		Version:   1,
		CreatedAt: time.Now().UTC(),
	}})
	if err != nil {
		t.Fatalf("seeding student: %v", err)
	}
}

func postJSON(t *testing.T, router http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshaling request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(t, store.NewMemory(), &stubGateway{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestCashPaymentEndpoint(t *testing.T) {
	mem := store.NewMemory()
	seedStudent(t, mem, "MHS-200001", "500", "100")
	router := newTestRouter(t, mem, &stubGateway{})

	rec := postJSON(t, router, "/api/payments/cash", map[string]interface{}{
		"studentId":      "MHS-200001",
		"termKey":        "2026_Term_1",
		"amount":         "150",
		"bursarId":       "bursar-1",
		"bursarUsername": "bursar",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["receiptNumber"] == "" {
		t.Fatal("expected a receipt number")
	}
	if body["newBalance"] != "250" {
		t.Fatalf("expected newBalance 250, got %v", body["newBalance"])
	}
}

func TestCashPaymentExceedsBalanceResponse(t *testing.T) {
	mem := store.NewMemory()
	seedStudent(t, mem, "MHS-200002", "500", "450")
	router := newTestRouter(t, mem, &stubGateway{})

	rec := postJSON(t, router, "/api/payments/cash", map[string]interface{}{
		"studentId":      "MHS-200002",
		"termKey":        "2026_Term_1",
		"amount":         "100",
		"bursarId":       "bursar-1",
		"bursarUsername": "bursar",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["remainingBalance"] != "50" {
		t.Fatalf("expected remainingBalance 50, got %v", body["remainingBalance"])
	}
}

func TestCashPaymentUnknownStudent(t *testing.T) {
	router := newTestRouter(t, store.NewMemory(), &stubGateway{})
	rec := postJSON(t, router, "/api/payments/cash", map[string]interface{}{
		"studentId":      "missing",
		"termKey":        "2026_Term_1",
		"amount":         "10",
		"bursarId":       "bursar-1",
		"bursarUsername": "bursar",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCashPaymentRequiresBursarFields(t *testing.T) {
	mem := store.NewMemory()
	seedStudent(t, mem, "MHS-200005", "500", "0")
	router := newTestRouter(t, mem, &stubGateway{})

	rec := postJSON(t, router, "/api/payments/cash", map[string]interface{}{
		"studentId": "MHS-200005",
		"termKey":   "2026_Term_1",
		"amount":    "100",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing bursar fields, got %d: %s", rec.Code, rec.Body.String())
	}
	if decodeBody(t, rec)["success"] != false {
		t.Fatal("expected success false on validation failure")
	}
}

func TestAdjustmentEndpointRejectsBadType(t *testing.T) {
	mem := store.NewMemory()
	seedStudent(t, mem, "MHS-200003", "500", "0")
	router := newTestRouter(t, mem, &stubGateway{})

	rec := postJSON(t, router, "/api/adjustments", map[string]interface{}{
		"studentId":        "MHS-200003",
		"termKey":          "2026_Term_1",
		"adjustmentAmount": "-50",
		"reason":           "Bursary",
		"adjustmentType":   "Refund",
		"adminId":          "admin-1",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAdjustmentEndpoint(t *testing.T) {
	mem := store.NewMemory()
	seedStudent(t, mem, "MHS-200006", "500", "0")
	router := newTestRouter(t, mem, &stubGateway{})

	rec := postJSON(t, router, "/api/adjustments", map[string]interface{}{
		"studentId":        "MHS-200006",
		"termKey":          "2026_Term_1",
		"adjustmentAmount": "-50",
		"reason":           "Bursary",
		"adjustmentType":   "Credit",
		"adminId":          "admin-1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	student, err := mem.FindStudentByID(context.Background(), "MHS-200006")
	if err != nil {
		t.Fatalf("loading student: %v", err)
	}
	if !student.Financials.Terms["2026_Term_1"].Fee.Equal(decimal.RequireFromString("450")) {
		t.Fatalf("expected fee 450, got %s", student.Financials.Terms["2026_Term_1"].Fee)
	}

	// The admin id is mandatory.
	rec = postJSON(t, router, "/api/adjustments", map[string]interface{}{
		"studentId":        "MHS-200006",
		"termKey":          "2026_Term_1",
		"adjustmentAmount": "-50",
		"reason":           "Bursary",
		"adjustmentType":   "Credit",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing adminId, got %d", rec.Code)
	}
}

func TestWebhookEndpoint(t *testing.T) {
	mem := store.NewMemory()
	seedStudent(t, mem, "MHS-200004", "500", "0")
	gateway := &stubGateway{initiateResp: &zbpay.InitiateResponse{PaymentURL: "https://zbpay.example/checkout"}}
	router := newTestRouter(t, mem, gateway)

	rec := postJSON(t, router, "/api/payments/zbpay/initiate", map[string]interface{}{
		"studentId": "MHS-200004",
		"termKey":   "2026_Term_1",
		"amount":    "200",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("initiate failed: %d %s", rec.Code, rec.Body.String())
	}
	orderRef, _ := decodeBody(t, rec)["orderReference"].(string)
	if orderRef == "" {
		t.Fatal("expected an order reference")
	}

	rec = postJSON(t, router, "/api/payments/zbpay/webhook", map[string]interface{}{
		"orderReference": orderRef,
		"status":         "PAID",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	// Redelivered webhooks are acknowledged, not retried.
	rec = postJSON(t, router, "/api/payments/zbpay/webhook", map[string]interface{}{
		"orderReference": orderRef,
		"status":         "PAID",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on redelivery, got %d", rec.Code)
	}
	if msg := decodeBody(t, rec)["message"]; msg != "Already processed" {
		t.Fatalf("expected already-processed acknowledgement, got %v", msg)
	}

	student, err := mem.FindStudentByID(context.Background(), "MHS-200004")
	if err != nil {
		t.Fatalf("loading student: %v", err)
	}
	if !student.Financials.Terms["2026_Term_1"].Paid.Equal(decimal.RequireFromString("200")) {
		t.Fatalf("expected paid 200, got %s", student.Financials.Terms["2026_Term_1"].Paid)
	}
}

func TestStatusEndpointAcceptsShortFieldNames(t *testing.T) {
	mem := store.NewMemory()
	seedStudent(t, mem, "MHS-200007", "500", "0")
	gateway := &stubGateway{
		initiateResp: &zbpay.InitiateResponse{PaymentURL: "https://zbpay.example/checkout"},
		statusResult: &zbpay.StatusResult{RawStatus: "PAID", RawPayload: json.RawMessage(`{"status":"PAID"}`)},
	}
	router := newTestRouter(t, mem, gateway)

	rec := postJSON(t, router, "/api/payments/zbpay/initiate", map[string]interface{}{
		"studentId": "MHS-200007",
		"termKey":   "2026_Term_1",
		"amount":    "200",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("initiate failed: %d %s", rec.Code, rec.Body.String())
	}
	initBody := decodeBody(t, rec)
	orderRef, _ := initBody["orderReference"].(string)
	txID, _ := initBody["transactionId"].(string)

	// Clients poll with the short field names.
	rec = postJSON(t, router, "/api/payments/zbpay/status", map[string]interface{}{
		"orderRef": orderRef,
		"txId":     txID,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["status"] != "PAID" {
		t.Fatalf("expected status PAID, got %v", body["status"])
	}
	if body["settled"] != true {
		t.Fatalf("expected settled true, got %v", body["settled"])
	}

	// Both identifiers are still required.
	rec = postJSON(t, router, "/api/payments/zbpay/status", map[string]interface{}{
		"orderRef": orderRef,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing txId, got %d", rec.Code)
	}
}

func TestUpdateConfigEndpoint(t *testing.T) {
	mem := store.NewMemory()
	router := newTestRouter(t, mem, &stubGateway{})

	rec := postJSON(t, router, "/api/config", map[string]interface{}{
		"configUpdates": map[string]interface{}{
			"activeTerms": []string{"2026_Term_1"},
			"fees": map[string]interface{}{
				"dayScholar": map[string]interface{}{"oLevel": "200"},
			},
		},
		"adminId": "admin-1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	cfg, err := mem.GetConfig(context.Background())
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}
	if len(cfg.ActiveTerms) != 1 || cfg.ActiveTerms[0] != "2026_Term_1" {
		t.Fatalf("expected active terms persisted, got %v", cfg.ActiveTerms)
	}

	// The envelope and admin id are mandatory.
	rec = postJSON(t, router, "/api/config", map[string]interface{}{
		"configUpdates": map[string]interface{}{"activeTerms": []string{"2026_Term_2"}},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing adminId, got %d", rec.Code)
	}
	rec = postJSON(t, router, "/api/config", map[string]interface{}{
		"adminId": "admin-1",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing configUpdates, got %d", rec.Code)
	}
}

func TestWebhookEndpointValidation(t *testing.T) {
	router := newTestRouter(t, store.NewMemory(), &stubGateway{})

	rec := postJSON(t, router, "/api/payments/zbpay/webhook", map[string]interface{}{
		"status": "PAID",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing orderReference, got %d", rec.Code)
	}

	rec = postJSON(t, router, "/api/payments/zbpay/webhook", map[string]interface{}{
		"orderReference": "ORD-0-zzzzzz",
		"status":         "PAID",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown order, got %d", rec.Code)
	}
}

func TestCreateStudentEndpoint(t *testing.T) {
	mem := store.NewMemory()
	if err := mem.SaveConfig(context.Background(), &domain.SchoolConfig{
		CurrencyCode: 840,
		ActiveTerms:  []string{"2026_Term_1"},
		Fees: domain.FeeTable{
			DayScholar: domain.RateCard{OLevel: decimal.RequireFromString("200")},
		},
	}); err != nil {
		t.Fatalf("seeding config: %v", err)
	}
	router := newTestRouter(t, mem, &stubGateway{})

	rec := postJSON(t, router, "/api/students", map[string]interface{}{
		"name":          "Rudo",
		"surname":       "Chikafu",
		"studentNumber": "R1001",
		"studentType":   "Day Scholar",
		"gradeCategory": "OLevel",
		"grade":         "Form 2",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["success"] != true {
		t.Fatalf("expected success flag, got %v", body)
	}
	if id, _ := body["studentId"].(string); id == "" {
		t.Fatalf("expected studentId in response, got %v", body)
	}

	// Duplicate student numbers are rejected.
	rec = postJSON(t, router, "/api/students", map[string]interface{}{
		"name":          "Other",
		"surname":       "Person",
		"studentNumber": "R1001",
		"studentType":   "Day Scholar",
		"gradeCategory": "OLevel",
		"grade":         "Form 2",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for duplicate, got %d", rec.Code)
	}
}
