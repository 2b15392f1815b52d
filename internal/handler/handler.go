// Package handler содержит HTTP-обработчики API бэк-офиса.
package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/agency-backoffice/internal/middleware"
	"github.com/mmeshcher/agency-backoffice/internal/model"
	"github.com/mmeshcher/agency-backoffice/internal/payment"
	"github.com/mmeshcher/agency-backoffice/internal/repository"
	"github.com/mmeshcher/agency-backoffice/internal/service"
	"github.com/mmeshcher/agency-backoffice/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterAdmin(ctx context.Context, login, password string) (int64, error)
	AuthenticateAdmin(ctx context.Context, login, password string) (int64, error)
	CreatePayer(ctx context.Context, p model.Payer) (int64, error)
	GetPayer(ctx context.Context, id int64) (*model.Payer, error)
	ListPayers(ctx context.Context) ([]model.Payer, error)
	RecordPayment(ctx context.Context, payerID int64, e model.PaymentEvent, createdBy string) (*service.PaymentOutcome, error)
	ForcePaymentStatus(ctx context.Context, payerID int64, target payment.TargetStatus) (*model.PaymentStatus, error)
	ListTransactions(ctx context.Context) ([]model.AccountingTransaction, error)
	ListTransactionsByPayer(ctx context.Context, payerID int64) ([]model.AccountingTransaction, error)
	UploadPayerPhoto(ctx context.Context, payerID int64, image []byte, name string) (string, error)
}

// Handler реализует HTTP-обработчики API бэк-офиса.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

type credentialsRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// Register обрабатывает регистрацию нового администратора.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	adminID, err := h.service.RegisterAdmin(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrAdminExists) {
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
			return
		}
		h.logger.Error("register admin error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, adminID)
	w.WriteHeader(http.StatusOK)
}

// Login выполняет аутентификацию администратора и установку cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	adminID, err := h.service.AuthenticateAdmin(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrAdminNotFound) || err.Error() == "invalid credentials" {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error("login admin error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, adminID)
	w.WriteHeader(http.StatusOK)
}

func payerIDFromRequest(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "payerID"), 10, 64)
}

func createdByFromContext(ctx context.Context) string {
	adminID, ok := middleware.GetAdminIDFromContext(ctx)
	if !ok {
		return "admin:unknown"
	}
	return "admin:" + strconv.FormatInt(adminID, 10)
}

type payerRequest struct {
	FullName string `json:"full_name"`
	Track    string `json:"track"`
	Phone    string `json:"phone"`
}

// CreatePayer создаёт нового плательщика.
func (h *Handler) CreatePayer(w http.ResponseWriter, r *http.Request) {
	var req payerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.FullName == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	id, err := h.service.CreatePayer(r.Context(), model.Payer{
		FullName: req.FullName,
		Track:    model.Track(req.Track),
		Phone:    req.Phone,
	})
	if err != nil {
		if errors.Is(err, service.ErrUnknownTrack) {
			http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
			return
		}
		h.logger.Error("create payer error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]int64{"id": id})
}

type payerResponse struct {
	ID        int64               `json:"id"`
	FullName  string              `json:"full_name"`
	Track     string              `json:"track"`
	Phone     string              `json:"phone,omitempty"`
	PhotoURL  string              `json:"photo_url,omitempty"`
	Status    model.PaymentStatus `json:"payment_status"`
	CreatedAt string              `json:"created_at"`
}

func toPayerResponse(p model.Payer) payerResponse {
	return payerResponse{
		ID:        p.ID,
		FullName:  p.FullName,
		Track:     string(p.Track),
		Phone:     p.Phone,
		PhotoURL:  p.PhotoURL,
		Status:    p.Status,
		CreatedAt: p.CreatedAt.Format(time.RFC3339),
	}
}

// ListPayers возвращает список всех плательщиков.
func (h *Handler) ListPayers(w http.ResponseWriter, r *http.Request) {
	payers, err := h.service.ListPayers(r.Context())
	if err != nil {
		h.logger.Error("list payers error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(payers) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]payerResponse, 0, len(payers))
	for _, p := range payers {
		resp = append(resp, toPayerResponse(p))
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

// GetPayer возвращает одного плательщика.
func (h *Handler) GetPayer(w http.ResponseWriter, r *http.Request) {
	payerID, err := payerIDFromRequest(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	p, err := h.service.GetPayer(r.Context(), payerID)
	if err != nil {
		if errors.Is(err, repository.ErrPayerNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get payer error", zap.Error(err), zap.Int64("payerID", payerID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(toPayerResponse(*p)); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

type paymentRequest struct {
	PaymentType   string          `json:"payment_type"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency,omitempty"`
	PaymentMethod string          `json:"payment_method,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	Description   string          `json:"description,omitempty"`
	OccurredAt    string          `json:"occurred_at,omitempty"`
}

type transactionResponse struct {
	ID          int64           `json:"id"`
	Reference   string          `json:"reference"`
	Date        string          `json:"date"`
	Category    string          `json:"category"`
	Subcategory string          `json:"subcategory"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Method      string          `json:"payment_method,omitempty"`
	Description string          `json:"description"`
	Notes       string          `json:"notes,omitempty"`
	PayerID     int64           `json:"payer_id"`
	PayerName   string          `json:"payer_name"`
	CreatedBy   string          `json:"created_by"`
	CreatedAt   string          `json:"created_at"`
}

func toTransactionResponse(t model.AccountingTransaction) transactionResponse {
	return transactionResponse{
		ID:          t.ID,
		Reference:   t.Reference,
		Date:        t.Date.Format("2006-01-02"),
		Category:    t.Category,
		Subcategory: t.Subcategory,
		Amount:      t.Amount,
		Currency:    t.Currency,
		Method:      t.Method,
		Description: t.Description,
		Notes:       t.Notes,
		PayerID:     t.PayerID,
		PayerName:   t.PayerName,
		CreatedBy:   t.CreatedBy,
		CreatedAt:   t.CreatedAt.Format(time.RFC3339),
	}
}

type paymentResponse struct {
	Accepted    bool                 `json:"accepted"`
	Reason      string               `json:"reason,omitempty"`
	Status      *model.PaymentStatus `json:"payment_status,omitempty"`
	Transaction *transactionResponse `json:"transaction,omitempty"`
}

// RecordPayment применяет платёжное событие к плательщику.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	payerID, err := payerIDFromRequest(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	kind, err := payment.ParseEventKind(req.PaymentType)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	if !req.Amount.IsPositive() {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	if req.PaymentMethod != "" && !validation.IsValidPaymentMethod(req.PaymentMethod) {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	if req.Currency != "" && !validation.IsValidCurrencyCode(req.Currency) {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	occurredAt := time.Now()
	if req.OccurredAt != "" {
		occurredAt, err = time.Parse(time.RFC3339, req.OccurredAt)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
			return
		}
	}

	event := model.PaymentEvent{
		Kind:        kind,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Method:      model.PaymentMethod(req.PaymentMethod),
		Notes:       req.Notes,
		Description: req.Description,
		OccurredAt:  occurredAt,
	}

	outcome, err := h.service.RecordPayment(r.Context(), payerID, event, createdByFromContext(r.Context()))
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrPayerNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, payment.ErrInvalidTransaction):
			http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		default:
			h.logger.Error("record payment error", zap.Error(err), zap.Int64("payerID", payerID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if !outcome.Accepted {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(paymentResponse{
			Accepted: false,
			Reason:   outcome.Reason.Error(),
		})
		return
	}

	txnResp := toTransactionResponse(*outcome.Transaction)
	_ = json.NewEncoder(w).Encode(paymentResponse{
		Accepted:    true,
		Status:      &outcome.Status,
		Transaction: &txnResp,
	})
}

type forceStatusRequest struct {
	Status string `json:"status"`
}

type forceStatusResponse struct {
	Status  model.PaymentStatus `json:"payment_status"`
	Warning string              `json:"warning"`
}

// ForceStatus выставляет платёжное состояние плательщика напрямую.
func (h *Handler) ForceStatus(w http.ResponseWriter, r *http.Request) {
	payerID, err := payerIDFromRequest(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req forceStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	target, err := payment.ParseTargetStatus(req.Status)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	st, err := h.service.ForcePaymentStatus(r.Context(), payerID, target)
	if err != nil {
		if errors.Is(err, repository.ErrPayerNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("force status error", zap.Error(err), zap.Int64("payerID", payerID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(forceStatusResponse{
		Status:  *st,
		Warning: "no accounting record created for manual override",
	})
}

func (h *Handler) writeTransactions(w http.ResponseWriter, transactions []model.AccountingTransaction) {
	if len(transactions) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]transactionResponse, 0, len(transactions))
	for _, t := range transactions {
		resp = append(resp, toTransactionResponse(t))
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

// ListTransactions возвращает все записи журнала.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	transactions, err := h.service.ListTransactions(r.Context())
	if err != nil {
		h.logger.Error("list transactions error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeTransactions(w, transactions)
}

// ListPayerTransactions возвращает записи журнала одного плательщика.
func (h *Handler) ListPayerTransactions(w http.ResponseWriter, r *http.Request) {
	payerID, err := payerIDFromRequest(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	transactions, err := h.service.ListTransactionsByPayer(r.Context(), payerID)
	if err != nil {
		h.logger.Error("list payer transactions error", zap.Error(err), zap.Int64("payerID", payerID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeTransactions(w, transactions)
}

type uploadPhotoRequest struct {
	Image string `json:"image"`
	Name  string `json:"name,omitempty"`
}

// UploadPhoto загружает фотографию плательщика на внешний фотохостинг.
func (h *Handler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	payerID, err := payerIDFromRequest(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req uploadPhotoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	image, err := base64.StdEncoding.DecodeString(req.Image)
	if err != nil || len(image) == 0 {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	url, err := h.service.UploadPayerPhoto(r.Context(), payerID, image, req.Name)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrPayerNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, service.ErrImageHostUnavailable):
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		default:
			h.logger.Error("upload photo error", zap.Error(err), zap.Int64("payerID", payerID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"url": url})
}
