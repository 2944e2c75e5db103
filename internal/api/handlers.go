/**
 * @description
 * This file contains the HTTP handlers for the fees-service. Handlers decode
 * and validate request bodies, delegate to the ledger service, and map the
 * service's error taxonomy onto HTTP status codes. The exceeds-balance
 * rejection carries the remaining balance so the frontend can correct the
 * amount without a second round trip.
 *
 * @dependencies
 * - encoding/json, errors, io, net/http: Standard Go libraries.
 * - github.com/shopspring/decimal: Exact decimal arithmetic for money.
 * - internal/app, internal/domain, internal/store, pkg/zbpay.
 */

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/mhs/fees-service/internal/app"
	"github.com/mhs/fees-service/internal/domain"
	"github.com/mhs/fees-service/internal/store"
	"github.com/mhs/fees-service/pkg/zbpay"
)

// Handlers holds the dependencies for the HTTP handlers.
type Handlers struct {
	service                *app.Service
	defaultStudentPassword string
	paymentReturnURL       string
	paymentResultURL       string
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service *app.Service, defaultStudentPassword, paymentReturnURL, paymentResultURL string) *Handlers {
	return &Handlers{
		service:                service,
		defaultStudentPassword: defaultStudentPassword,
		paymentReturnURL:       paymentReturnURL,
		paymentResultURL:       paymentResultURL,
	}
}

// writeJSON is a helper for writing JSON responses.
func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]interface{}{"success": false, "error": message})
}

// writeServiceError maps the ledger service's error taxonomy to HTTP codes.
func (h *Handlers) writeServiceError(w http.ResponseWriter, err error) {
	var validationErr *app.ValidationError
	var exceedsErr *app.ExceedsBalanceError
	var apiErr *zbpay.APIError

	switch {
	case errors.As(err, &validationErr):
		h.writeError(w, http.StatusBadRequest, validationErr.Msg)
	case errors.As(err, &exceedsErr):
		h.writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success":          false,
			"error":            exceedsErr.Error(),
			"remainingBalance": exceedsErr.RemainingBalance,
		})
	case errors.Is(err, app.ErrInvalidAmount),
		errors.Is(err, store.ErrDuplicateStudentNumber),
		errors.Is(err, app.ErrWrongPassword):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &apiErr):
		h.writeError(w, http.StatusBadRequest, "Payment gateway rejected the request")
	case errors.Is(err, app.ErrTermNotFound),
		errors.Is(err, store.ErrStudentNotFound),
		errors.Is(err, store.ErrTransactionNotFound),
		errors.Is(err, store.ErrUserNotFound),
		errors.Is(err, store.ErrConfigNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrConflict):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrGatewayUnavailable):
		h.writeError(w, http.StatusBadGateway, err.Error())
	default:
		h.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

type createStudentRequest struct {
	Name                string `json:"name"`
	Surname             string `json:"surname"`
	StudentNumber       string `json:"studentNumber"`
	StudentType         string `json:"studentType"`
	GradeCategory       string `json:"gradeCategory"`
	Grade               string `json:"grade"`
	GuardianPhoneNumber string `json:"guardianPhoneNumber"`
}

// CreateStudentHandler provisions a new student and their login credential.
func (h *Handlers) CreateStudentHandler(w http.ResponseWriter, r *http.Request) {
	var req createStudentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	student, err := h.service.CreateStudent(r.Context(), app.CreateStudentInput{
		Name:                req.Name,
		Surname:             req.Surname,
		StudentNumber:       req.StudentNumber,
		StudentType:         domain.StudentType(req.StudentType),
		GradeCategory:       domain.GradeCategory(req.GradeCategory),
		Grade:               req.Grade,
		GuardianPhoneNumber: req.GuardianPhoneNumber,
	}, h.defaultStudentPassword)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success":   true,
		"studentId": student.ID,
		"student":   student,
	})
}

type cashPaymentRequest struct {
	StudentID      string          `json:"studentId"`
	TermKey        string          `json:"termKey"`
	Amount         decimal.Decimal `json:"amount"`
	BursarID       string          `json:"bursarId"`
	BursarUsername string          `json:"bursarUsername"`
}

// CashPaymentHandler records a bursar-entered cash payment.
func (h *Handlers) CashPaymentHandler(w http.ResponseWriter, r *http.Request) {
	var req cashPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.StudentID == "" || req.TermKey == "" || req.BursarID == "" || req.BursarUsername == "" {
		h.writeError(w, http.StatusBadRequest, "studentId, termKey, bursarId and bursarUsername are required")
		return
	}

	result, err := h.service.ApplyCashPayment(r.Context(), app.CashPaymentInput{
		StudentID:      req.StudentID,
		TermKey:        req.TermKey,
		Amount:         req.Amount,
		BursarID:       req.BursarID,
		BursarUsername: req.BursarUsername,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":       true,
		"receiptNumber": result.ReceiptNumber,
		"transactionId": result.TransactionID,
		"newBalance":    result.NewBalance,
	})
}

type feeAdjustmentRequest struct {
	StudentID        string          `json:"studentId"`
	TermKey          string          `json:"termKey"`
	AdjustmentAmount decimal.Decimal `json:"adjustmentAmount"`
	Reason           string          `json:"reason"`
	AdjustmentType   string          `json:"adjustmentType"`
	AdminID          string          `json:"adminId"`
}

// FeeAdjustmentHandler applies an admin fee correction to one term.
func (h *Handlers) FeeAdjustmentHandler(w http.ResponseWriter, r *http.Request) {
	var req feeAdjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.StudentID == "" || req.TermKey == "" || req.Reason == "" || req.AdminID == "" {
		h.writeError(w, http.StatusBadRequest, "studentId, termKey, reason and adminId are required")
		return
	}
	adjType := domain.AdjustmentType(req.AdjustmentType)
	if !adjType.Valid() {
		h.writeError(w, http.StatusBadRequest, "adjustmentType must be Credit or Debit")
		return
	}

	result, err := h.service.ApplyFeeAdjustment(r.Context(), app.FeeAdjustmentInput{
		StudentID:      req.StudentID,
		TermKey:        req.TermKey,
		Amount:         req.AdjustmentAmount,
		Reason:         req.Reason,
		AdjustmentType: adjType,
		AdminID:        req.AdminID,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":       true,
		"adjustmentId":  result.AdjustmentID,
		"transactionId": result.TransactionID,
		"newBalance":    result.NewBalance,
	})
}

// UpdateConfigHandler applies a partial update to the school configuration.
// The update travels inside a configUpdates envelope alongside the acting
// admin's id.
func (h *Handlers) UpdateConfigHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConfigUpdates *domain.ConfigUpdate `json:"configUpdates"`
		AdminID       string               `json:"adminId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ConfigUpdates == nil || req.AdminID == "" {
		h.writeError(w, http.StatusBadRequest, "configUpdates and adminId are required")
		return
	}

	err := h.service.UpdateConfig(r.Context(), *req.ConfigUpdates, req.AdminID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

type initiatePaymentRequest struct {
	StudentID string          `json:"studentId"`
	TermKey   string          `json:"termKey"`
	Amount    decimal.Decimal `json:"amount"`
	ReturnURL string          `json:"returnUrl"`
	ResultURL string          `json:"resultUrl"`
}

// InitiateZbPayHandler starts a hosted-checkout gateway payment.
func (h *Handlers) InitiateZbPayHandler(w http.ResponseWriter, r *http.Request) {
	var req initiatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.StudentID == "" || req.TermKey == "" {
		h.writeError(w, http.StatusBadRequest, "studentId and termKey are required")
		return
	}

	returnURL := req.ReturnURL
	if returnURL == "" {
		returnURL = h.paymentReturnURL
	}
	resultURL := req.ResultURL
	if resultURL == "" {
		resultURL = h.paymentResultURL
	}

	result, err := h.service.InitiateGatewayPayment(r.Context(), app.InitiatePaymentInput{
		StudentID: req.StudentID,
		TermKey:   req.TermKey,
		Amount:    req.Amount,
		ReturnURL: returnURL,
		ResultURL: resultURL,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":        true,
		"paymentUrl":     result.PaymentURL,
		"transactionId":  result.TransactionID,
		"orderReference": result.OrderReference,
	})
}

// statusCheckRequest accepts both the short field names the frontend sends
// and the long forms used elsewhere in the API.
type statusCheckRequest struct {
	OrderRef       string `json:"orderRef"`
	TxID           string `json:"txId"`
	OrderReference string `json:"orderReference"`
	TransactionID  string `json:"transactionId"`
}

func (r statusCheckRequest) orderReference() string {
	if r.OrderRef != "" {
		return r.OrderRef
	}
	return r.OrderReference
}

func (r statusCheckRequest) transactionID() string {
	if r.TxID != "" {
		return r.TxID
	}
	return r.TransactionID
}

// CheckZbPayStatusHandler resolves the current state of a gateway payment for
// the polling frontend.
func (h *Handlers) CheckZbPayStatusHandler(w http.ResponseWriter, r *http.Request) {
	var req statusCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	orderRef, txID := req.orderReference(), req.transactionID()
	if orderRef == "" || txID == "" {
		h.writeError(w, http.StatusBadRequest, "orderRef and txId are required")
		return
	}

	result, err := h.service.CheckStatus(r.Context(), orderRef, txID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"status":      result.Status,
		"settled":     result.Settled,
		"message":     result.Message,
		"transaction": result.Transaction,
	})
}

// ZbPayWebhookHandler processes the gateway's asynchronous confirmation
// callback. Business-level no-ops (already processed, unknown status words)
// are acknowledged with 200 so the gateway stops redelivering.
func (h *Handlers) ZbPayWebhookHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Unable to read request body")
		return
	}

	var payload struct {
		OrderReference string `json:"orderReference"`
		Status         string `json:"status"`
		PaymentStatus  string `json:"paymentStatus"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid webhook payload")
		return
	}
	if payload.OrderReference == "" {
		h.writeError(w, http.StatusBadRequest, "orderReference is required")
		return
	}
	status := payload.Status
	if status == "" {
		status = payload.PaymentStatus
	}

	result, err := h.service.HandleWebhook(r.Context(), payload.OrderReference, status, body)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"message": result.Message})
}

type changePasswordRequest struct {
	UserID          string `json:"userId"`
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// ChangePasswordHandler replaces a user's password after verifying the
// current one.
func (h *Handlers) ChangePasswordHandler(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID == "" {
		h.writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	if err := h.service.ChangePassword(r.Context(), req.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": "Password updated"})
}
