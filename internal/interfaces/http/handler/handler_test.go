package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	appfinance "github.com/fleetbill/backend/internal/application/finance"
	"github.com/fleetbill/backend/internal/domain/shared/valueobject"
	"github.com/fleetbill/backend/internal/infrastructure/event"
	"github.com/fleetbill/backend/internal/infrastructure/persistence"
	"github.com/fleetbill/backend/internal/infrastructure/persistence/models"
	"github.com/fleetbill/backend/internal/interfaces/http/dto"
	"github.com/fleetbill/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
	os.Exit(m.Run())
}

type testServer struct {
	engine    *gin.Engine
	contactID uuid.UUID
	invoiceA  uuid.UUID
	invoiceB  uuid.UUID
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

// newTestServer wires the handlers over sqlite and registers two invoices
// for one contact: INV-A (50.00, due 2024-01-10) and INV-B (30.00, due 2024-02-15).
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db := newTestDB(t)

	contacts := persistence.NewGormContactRepository(db)
	invoices := persistence.NewGormInvoiceRepository(db)
	payments := persistence.NewGormPaymentRepository(db)
	ledger := persistence.NewGormPaymentLedger(db, event.NewOutboxWriter(event.NewFinanceEventSerializer()))

	balanceSvc := appfinance.NewBalanceService(contacts, invoices)
	reporter := appfinance.NewReconciliationReporter(balanceSvc, valueobject.EUR)
	applier := appfinance.NewPaymentApplier(invoices, payments, ledger)
	paymentSvc := appfinance.NewPaymentService(balanceSvc, payments, applier, reporter, appfinance.DefaultConflictAttempts)
	invoiceSvc := appfinance.NewInvoiceService(contacts, invoices)

	engine := gin.New()
	engine.Use(middleware.RequestID())
	NewSystemHandler("lettrage", "test", stubPinger{}).RegisterProbes(engine)
	api := engine.Group("/api/v1")
	NewBalanceHandler(balanceSvc, valueobject.EUR).RegisterRoutes(api)
	NewPaymentHandler(paymentSvc).RegisterRoutes(api)
	NewInvoiceHandler(invoiceSvc).RegisterRoutes(api)

	s := &testServer{engine: engine, contactID: uuid.New()}
	s.invoiceA = s.registerInvoice(t, "INV-A", 5000, "2023-12-10", "2024-01-10")
	s.invoiceB = s.registerInvoice(t, "INV-B", 3000, "2024-01-15", "2024-02-15")
	return s
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func (s *testServer) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func (s *testServer) registerInvoice(t *testing.T, number string, total int64, issued, due string) uuid.UUID {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/invoices", map[string]any{
		"contactId":   s.contactID,
		"contactName": "Acme",
		"number":      number,
		"totalAmount": total,
		"issuedAt":    issued + "T00:00:00Z",
		"dueDate":     due + "T00:00:00Z",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var inv appfinance.InvoiceResponse
	decodeData(t, w, &inv)
	return inv.ID
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.True(t, envelope.Success, w.Body.String())
	require.NoError(t, json.Unmarshal(envelope.Data, out))
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) dto.ErrorInfo {
	t.Helper()
	var resp struct {
		Success bool          `json:"success"`
		Error   dto.ErrorInfo `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	return resp.Error
}

func TestPaymentHandler_ApplyPayment(t *testing.T) {
	t.Run("partial payment settles the oldest invoice first", func(t *testing.T) {
		s := newTestServer(t)
		w := s.do(t, http.MethodPost, "/api/v1/payments", map[string]any{
			"contactId":      s.contactID,
			"amount":         6000,
			"idempotencyKey": "pay-1",
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		var report appfinance.PaymentReport
		decodeData(t, w, &report)
		assert.Equal(t, "EUR", report.Currency)
		assert.Equal(t, "60.00", report.AmountDisplay)
		assert.Equal(t, "AUTO", report.Strategy)
		require.Len(t, report.Allocations, 2)
		assert.Equal(t, s.invoiceA, report.Allocations[0].InvoiceID)
		assert.Equal(t, int64(5000), report.Allocations[0].AppliedAmount)
		assert.Equal(t, "PAID", report.Allocations[0].ResultingStatus)
		assert.Equal(t, int64(1000), report.Allocations[1].AppliedAmount)
		assert.Equal(t, "PARTIALLY_PAID", report.Allocations[1].ResultingStatus)
		assert.Equal(t, int64(0), report.RemainingCredit)
		require.NotNil(t, report.Balance)
		assert.Equal(t, int64(2000), report.Balance.TotalOutstanding)
	})

	t.Run("overpayment keeps the surplus as credit", func(t *testing.T) {
		s := newTestServer(t)
		w := s.do(t, http.MethodPost, "/api/v1/payments", map[string]any{
			"contactId":      s.contactID,
			"amount":         10000,
			"idempotencyKey": "pay-over",
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		var report appfinance.PaymentReport
		decodeData(t, w, &report)
		assert.Equal(t, int64(2000), report.RemainingCredit)
		assert.Equal(t, "20.00", report.RemainingCreditDisplay)
		assert.Equal(t, int64(0), report.Balance.TotalOutstanding)
	})

	t.Run("replay via header answers 200 with the stored result", func(t *testing.T) {
		s := newTestServer(t)
		body := map[string]any{"contactId": s.contactID, "amount": 6000}

		first := s.do(t, http.MethodPost, "/api/v1/payments", body, middleware.IdempotencyKeyHeader, "hdr-1")
		require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
		second := s.do(t, http.MethodPost, "/api/v1/payments", body, middleware.IdempotencyKeyHeader, "hdr-1")
		require.Equal(t, http.StatusOK, second.Code, second.Body.String())

		var a, b appfinance.PaymentReport
		decodeData(t, first, &a)
		decodeData(t, second, &b)
		assert.Equal(t, a.PaymentID, b.PaymentID)
		assert.False(t, a.Replayed)
		assert.True(t, b.Replayed)
		assert.Equal(t, int64(2000), b.Balance.TotalOutstanding)
	})

	t.Run("manual allocation", func(t *testing.T) {
		s := newTestServer(t)
		w := s.do(t, http.MethodPost, "/api/v1/payments", map[string]any{
			"contactId":      s.contactID,
			"amount":         3000,
			"strategy":       "MANUAL",
			"idempotencyKey": "pay-manual",
			"allocations": []map[string]any{
				{"invoiceId": s.invoiceB, "amount": 3000},
			},
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		var report appfinance.PaymentReport
		decodeData(t, w, &report)
		require.Len(t, report.Allocations, 1)
		assert.Equal(t, s.invoiceB, report.Allocations[0].InvoiceID)
		assert.Equal(t, "PAID", report.Allocations[0].ResultingStatus)
	})

	t.Run("manual over-allocation is unprocessable", func(t *testing.T) {
		s := newTestServer(t)
		w := s.do(t, http.MethodPost, "/api/v1/payments", map[string]any{
			"contactId":      s.contactID,
			"amount":         4000,
			"strategy":       "MANUAL",
			"idempotencyKey": "pay-bad",
			"allocations": []map[string]any{
				{"invoiceId": s.invoiceB, "amount": 4000},
			},
		})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, dto.ErrCodeInvalidAllocation, decodeError(t, w).Code)
	})

	t.Run("non-positive amount", func(t *testing.T) {
		s := newTestServer(t)
		w := s.do(t, http.MethodPost, "/api/v1/payments", map[string]any{
			"contactId":      s.contactID,
			"amount":         0,
			"idempotencyKey": "pay-zero",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeInvalidAmount, decodeError(t, w).Code)
	})

	t.Run("unknown strategy fails validation", func(t *testing.T) {
		s := newTestServer(t)
		w := s.do(t, http.MethodPost, "/api/v1/payments", map[string]any{
			"contactId":      s.contactID,
			"amount":         100,
			"strategy":       "FIFO",
			"idempotencyKey": "pay-fifo",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		info := decodeError(t, w)
		assert.Equal(t, dto.ErrCodeValidation, info.Code)
		require.Len(t, info.Details, 1)
		assert.Equal(t, "strategy", info.Details[0].Field)
	})

	t.Run("header and body keys must agree", func(t *testing.T) {
		s := newTestServer(t)
		w := s.do(t, http.MethodPost, "/api/v1/payments", map[string]any{
			"contactId":      s.contactID,
			"amount":         100,
			"idempotencyKey": "body-key",
		}, middleware.IdempotencyKeyHeader, "header-key")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeInvalidInput, decodeError(t, w).Code)
	})

	t.Run("missing idempotency key", func(t *testing.T) {
		s := newTestServer(t)
		w := s.do(t, http.MethodPost, "/api/v1/payments", map[string]any{
			"contactId": s.contactID,
			"amount":    100,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeInvalidInput, decodeError(t, w).Code)
	})

	t.Run("unknown contact", func(t *testing.T) {
		s := newTestServer(t)
		w := s.do(t, http.MethodPost, "/api/v1/payments", map[string]any{
			"contactId":      uuid.New(),
			"amount":         100,
			"idempotencyKey": "pay-ghost",
		})
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, dto.ErrCodeNotFound, decodeError(t, w).Code)
	})

	t.Run("empty body", func(t *testing.T) {
		s := newTestServer(t)
		w := s.do(t, http.MethodPost, "/api/v1/payments", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeBadRequest, decodeError(t, w).Code)
	})
}

func TestPaymentHandler_PreviewAndGet(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/payments/preview", map[string]any{
		"contactId": s.contactID,
		"amount":    5500,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var plan appfinance.PlanResponse
	decodeData(t, w, &plan)
	assert.Equal(t, int64(5500), plan.Allocated)
	require.Len(t, plan.Allocations, 2)
	assert.Equal(t, int64(500), plan.Allocations[1].AppliedAmount)

	// preview does not commit anything
	w = s.do(t, http.MethodGet, "/api/v1/contacts/"+s.contactID.String()+"/balance", nil)
	var balance appfinance.BalanceResponse
	decodeData(t, w, &balance)
	assert.Equal(t, int64(8000), balance.TotalOutstanding)

	w = s.do(t, http.MethodPost, "/api/v1/payments", map[string]any{
		"contactId":      s.contactID,
		"amount":         5500,
		"idempotencyKey": "pay-get",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created appfinance.PaymentReport
	decodeData(t, w, &created)

	w = s.do(t, http.MethodGet, "/api/v1/payments/"+created.PaymentID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var fetched appfinance.PaymentReport
	decodeData(t, w, &fetched)
	assert.Equal(t, created.PaymentID, fetched.PaymentID)
	assert.Len(t, fetched.Allocations, 2)
	assert.Nil(t, fetched.Balance)

	w = s.do(t, http.MethodGet, "/api/v1/payments/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/payments/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBalanceHandler_GetBalance(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/v1/contacts/"+s.contactID.String()+"/balance", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var balance appfinance.BalanceResponse
	decodeData(t, w, &balance)
	assert.Equal(t, s.contactID, balance.ContactID)
	assert.Equal(t, int64(8000), balance.TotalOutstanding)
	assert.Equal(t, "80.00", balance.TotalOutstandingDisplay)
	require.Len(t, balance.Invoices, 2)
	assert.Equal(t, "INV-A", balance.Invoices[0].Number)
	assert.Equal(t, "INV-B", balance.Invoices[1].Number)

	w = s.do(t, http.MethodGet, "/api/v1/contacts/"+uuid.NewString()+"/balance", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	info := decodeError(t, w)
	assert.Equal(t, dto.ErrCodeNotFound, info.Code)
	assert.NotEmpty(t, info.RequestID)
}

func TestInvoiceHandler(t *testing.T) {
	s := newTestServer(t)

	t.Run("get", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/invoices/"+s.invoiceA.String(), nil)
		require.Equal(t, http.StatusOK, w.Code)
		var inv appfinance.InvoiceResponse
		decodeData(t, w, &inv)
		assert.Equal(t, "INV-A", inv.Number)
		assert.Equal(t, "UNPAID", inv.Status)
		assert.Equal(t, int64(5000), inv.Outstanding)
	})

	t.Run("duplicate number conflicts", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/invoices", map[string]any{
			"contactId":   s.contactID,
			"number":      "INV-A",
			"totalAmount": 100,
			"issuedAt":    "2024-01-01T00:00:00Z",
			"dueDate":     "2024-01-31T00:00:00Z",
		})
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, dto.ErrCodeAlreadyExists, decodeError(t, w).Code)
	})

	t.Run("missing number fails validation", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/invoices", map[string]any{
			"contactId":   s.contactID,
			"totalAmount": 100,
			"issuedAt":    "2024-01-01T00:00:00Z",
			"dueDate":     "2024-01-31T00:00:00Z",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeValidation, decodeError(t, w).Code)
	})

	t.Run("cancel removes the invoice from the balance", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/invoices/"+s.invoiceB.String()+"/cancel", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var inv appfinance.InvoiceResponse
		decodeData(t, w, &inv)
		assert.Equal(t, "CANCELLED", inv.Status)

		w = s.do(t, http.MethodGet, "/api/v1/contacts/"+s.contactID.String()+"/balance", nil)
		var balance appfinance.BalanceResponse
		decodeData(t, w, &balance)
		assert.Equal(t, int64(5000), balance.TotalOutstanding)
	})

	t.Run("cancel of a partly paid invoice is rejected", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/payments", map[string]any{
			"contactId":      s.contactID,
			"amount":         100,
			"idempotencyKey": "pay-partial",
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		w = s.do(t, http.MethodPost, "/api/v1/invoices/"+s.invoiceA.String()+"/cancel", nil)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, dto.ErrCodeInvalidState, decodeError(t, w).Code)
	})
}

func TestSystemHandler(t *testing.T) {
	t.Run("health", func(t *testing.T) {
		s := newTestServer(t)
		w := s.do(t, http.MethodGet, "/health", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	})

	t.Run("ready", func(t *testing.T) {
		s := newTestServer(t)
		w := s.do(t, http.MethodGet, "/ready", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("not ready when the database is down", func(t *testing.T) {
		r := gin.New()
		NewSystemHandler("lettrage", "test", stubPinger{err: errors.New("connection refused")}).RegisterProbes(r)
		req := httptest.NewRequest(http.MethodGet, "/ready", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, dto.ErrCodeNotReady, decodeError(t, w).Code)
	})
}

func TestBaseHandler_HandleError(t *testing.T) {
	r := gin.New()
	h := &BaseHandler{}
	r.GET("/plain", func(c *gin.Context) { h.HandleError(c, errors.New("boom")) })

	req := httptest.NewRequest(http.MethodGet, "/plain", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	info := decodeError(t, w)
	assert.Equal(t, dto.ErrCodeInternal, info.Code)
	assert.NotContains(t, info.Message, "boom")
}
