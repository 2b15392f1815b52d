package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/agency-backoffice/internal/middleware"
	"github.com/mmeshcher/agency-backoffice/internal/model"
	"github.com/mmeshcher/agency-backoffice/internal/payment"
	"github.com/mmeshcher/agency-backoffice/internal/repository"
	"github.com/mmeshcher/agency-backoffice/internal/service"
)

type stubService struct {
	registerAdminID int64
	registerErr     error

	authAdminID int64
	authErr     error

	createPayerID  int64
	createPayerErr error

	payerResp *model.Payer
	payerErr  error

	payersResp []model.Payer
	payersErr  error

	outcome    *service.PaymentOutcome
	outcomeErr error

	forcedStatus *model.PaymentStatus
	forceErr     error

	transactionsResp []model.AccountingTransaction
	transactionsErr  error

	uploadURL string
	uploadErr error
}

func (s *stubService) RegisterAdmin(ctx context.Context, login, password string) (int64, error) {
	return s.registerAdminID, s.registerErr
}

func (s *stubService) AuthenticateAdmin(ctx context.Context, login, password string) (int64, error) {
	return s.authAdminID, s.authErr
}

func (s *stubService) CreatePayer(ctx context.Context, p model.Payer) (int64, error) {
	return s.createPayerID, s.createPayerErr
}

func (s *stubService) GetPayer(ctx context.Context, id int64) (*model.Payer, error) {
	return s.payerResp, s.payerErr
}

func (s *stubService) ListPayers(ctx context.Context) ([]model.Payer, error) {
	return s.payersResp, s.payersErr
}

func (s *stubService) RecordPayment(ctx context.Context, payerID int64, e model.PaymentEvent, createdBy string) (*service.PaymentOutcome, error) {
	return s.outcome, s.outcomeErr
}

func (s *stubService) ForcePaymentStatus(ctx context.Context, payerID int64, target payment.TargetStatus) (*model.PaymentStatus, error) {
	return s.forcedStatus, s.forceErr
}

func (s *stubService) ListTransactions(ctx context.Context) ([]model.AccountingTransaction, error) {
	return s.transactionsResp, s.transactionsErr
}

func (s *stubService) ListTransactionsByPayer(ctx context.Context, payerID int64) ([]model.AccountingTransaction, error) {
	return s.transactionsResp, s.transactionsErr
}

func (s *stubService) UploadPayerPhoto(ctx context.Context, payerID int64, image []byte, name string) (string, error) {
	return s.uploadURL, s.uploadErr
}

func newTestHandler(t *testing.T, svc Service) *Handler {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	auth := middleware.NewAuthMiddleware("test-secret")

	return NewHandler(svc, logger, auth)
}

// authedRequest готовит запрос с cookie администратора и параметром payerID в маршруте.
func authedRequest(t *testing.T, h *Handler, method, target, payerID string, body []byte) *http.Request {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)

	rec := httptest.NewRecorder()
	h.authMiddleware.SetAuthCookie(rec, 1)
	req.AddCookie(rec.Result().Cookies()[0])

	if payerID != "" {
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("payerID", payerID)
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	}

	return req
}

func TestRegister_Success(t *testing.T) {
	svc := &stubService{
		registerAdminID: 42,
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(credentialsRequest{
		Login:    "admin",
		Password: "pass",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/admin/register", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Register(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
}

func TestLogin_UnauthorizedOnError(t *testing.T) {
	svc := &stubService{
		authErr: context.DeadlineExceeded,
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(credentialsRequest{
		Login:    "admin",
		Password: "pass",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/admin/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Login(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnauthorized)
	}
}

func TestRecordPayment_Accepted(t *testing.T) {
	now := time.Now().UTC()
	svc := &stubService{
		outcome: &service.PaymentOutcome{
			Accepted: true,
			Status: model.PaymentStatus{
				CotisationPaid: true,
				IsUpToDate:     true,
			},
			Transaction: &model.AccountingTransaction{
				ID:          77,
				Reference:   "ref-1",
				Date:        now,
				Category:    payment.CategoryRevenue,
				Subcategory: payment.SubcategoryMonthlyDues,
				Amount:      decimal.NewFromInt(1500),
				Currency:    model.DefaultCurrency,
				PayerID:     1,
				PayerName:   "M1",
				CreatedBy:   "admin:1",
				CreatedAt:   now,
			},
		},
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(paymentRequest{
		PaymentType: "cotisation",
		Amount:      decimal.NewFromInt(1500),
	})

	req := authedRequest(t, h, http.MethodPost, "/api/admin/payers/1/payments", "1", body)
	rec := httptest.NewRecorder()

	h.authMiddleware.Middleware(http.HandlerFunc(h.RecordPayment)).ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var resp paymentResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Accepted {
		t.Fatalf("accepted = false, want true")
	}
	if resp.Transaction == nil || resp.Transaction.Subcategory != payment.SubcategoryMonthlyDues {
		t.Fatalf("unexpected transaction: %+v", resp.Transaction)
	}
}

func TestRecordPayment_DuplicateConflict(t *testing.T) {
	svc := &stubService{
		outcome: &service.PaymentOutcome{
			Accepted: false,
			Reason:   payment.ErrDuplicateMonthlyDues,
		},
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(paymentRequest{
		PaymentType: "monthly_dues",
		Amount:      decimal.NewFromInt(1500),
	})

	req := authedRequest(t, h, http.MethodPost, "/api/admin/payers/1/payments", "1", body)
	rec := httptest.NewRecorder()

	h.authMiddleware.Middleware(http.HandlerFunc(h.RecordPayment)).ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusConflict)
	}

	var resp paymentResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Accepted {
		t.Fatalf("accepted = true, want false")
	}
	if !strings.Contains(resp.Reason, "already paid") {
		t.Fatalf("reason = %q", resp.Reason)
	}
}

func TestRecordPayment_UnknownType(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	body, _ := json.Marshal(paymentRequest{
		PaymentType: "refund",
		Amount:      decimal.NewFromInt(1500),
	})

	req := authedRequest(t, h, http.MethodPost, "/api/admin/payers/1/payments", "1", body)
	rec := httptest.NewRecorder()

	h.authMiddleware.Middleware(http.HandlerFunc(h.RecordPayment)).ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnprocessableEntity)
	}
}

func TestRecordPayment_NonPositiveAmount(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	body, _ := json.Marshal(paymentRequest{
		PaymentType: "cotisation",
		Amount:      decimal.Zero,
	})

	req := authedRequest(t, h, http.MethodPost, "/api/admin/payers/1/payments", "1", body)
	rec := httptest.NewRecorder()

	h.authMiddleware.Middleware(http.HandlerFunc(h.RecordPayment)).ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnprocessableEntity)
	}
}

func TestForceStatus_OK(t *testing.T) {
	svc := &stubService{
		forcedStatus: &model.PaymentStatus{
			InscriptionPaid: true,
			CotisationPaid:  true,
			IsUpToDate:      true,
		},
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(forceStatusRequest{Status: "complete"})

	req := authedRequest(t, h, http.MethodPost, "/api/admin/payers/1/status", "1", body)
	rec := httptest.NewRecorder()

	h.authMiddleware.Middleware(http.HandlerFunc(h.ForceStatus)).ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var resp forceStatusResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Status.IsUpToDate {
		t.Fatalf("unexpected status: %+v", resp.Status)
	}
	if resp.Warning == "" {
		t.Fatalf("warning about missing accounting record must be present")
	}
}

func TestForceStatus_UnknownTarget(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	body, _ := json.Marshal(forceStatusRequest{Status: "done"})

	req := authedRequest(t, h, http.MethodPost, "/api/admin/payers/1/status", "1", body)
	rec := httptest.NewRecorder()

	h.authMiddleware.Middleware(http.HandlerFunc(h.ForceStatus)).ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnprocessableEntity)
	}
}

func TestListPayers_NoContent(t *testing.T) {
	svc := &stubService{
		payersResp: []model.Payer{},
	}
	h := newTestHandler(t, svc)

	req := authedRequest(t, h, http.MethodGet, "/api/admin/payers", "", nil)
	rec := httptest.NewRecorder()

	h.authMiddleware.Middleware(http.HandlerFunc(h.ListPayers)).ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusNoContent)
	}
}

func TestListTransactions_JSONResponse(t *testing.T) {
	now := time.Now().UTC()
	svc := &stubService{
		transactionsResp: []model.AccountingTransaction{
			{
				ID:          1,
				Reference:   "ref-1",
				Date:        now,
				Category:    payment.CategoryRevenue,
				Subcategory: payment.SubcategoryEnrollment,
				Amount:      decimal.NewFromInt(5000),
				Currency:    model.DefaultCurrency,
				PayerID:     1,
				PayerName:   "M1",
				CreatedBy:   "admin:1",
				CreatedAt:   now,
			},
		},
	}
	h := newTestHandler(t, svc)

	req := authedRequest(t, h, http.MethodGet, "/api/admin/transactions", "", nil)
	rec := httptest.NewRecorder()

	h.authMiddleware.Middleware(http.HandlerFunc(h.ListTransactions)).ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if ct := res.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type = %q, want application/json", ct)
	}

	var resp []transactionResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp) != 1 || resp[0].Subcategory != payment.SubcategoryEnrollment {
		t.Fatalf("unexpected transactions: %+v", resp)
	}
}

func TestGetPayer_NotFound(t *testing.T) {
	svc := &stubService{
		payerErr: repository.ErrPayerNotFound,
	}
	h := newTestHandler(t, svc)

	req := authedRequest(t, h, http.MethodGet, "/api/admin/payers/9", "9", nil)
	rec := httptest.NewRecorder()

	h.authMiddleware.Middleware(http.HandlerFunc(h.GetPayer)).ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusNotFound)
	}
}
