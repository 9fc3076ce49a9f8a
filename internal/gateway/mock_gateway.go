package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/hezron-sketch/cafe-backend/internal/domain"
	"github.com/sirupsen/logrus"
)

// MockPaymentGateway stands in for Daraja in local runs and tests.
// Charges stay processing until Resolve is called for them.
type MockPaymentGateway struct {
	FailureRate float64 // 0.0 - 1.0 initiation failure rate

	mu      sync.Mutex
	charges map[string]*StatusResponse
	calls   int
}

func NewMockPaymentGateway(failureRate float64) *MockPaymentGateway {
	return &MockPaymentGateway{
		FailureRate: failureRate,
		charges:     make(map[string]*StatusResponse),
	}
}

func (m *MockPaymentGateway) InitiateCharge(ctx context.Context, request ChargeRequest) (*ChargeResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.GatewayError(err, "payment request aborted")
	}

	phone, err := domain.NormalizePhone(request.Phone)
	if err != nil {
		return nil, domain.GatewayError(err, "invalid payer phone number")
	}

	logrus.WithFields(logrus.Fields{
		"phone":     phone,
		"amount":    request.Amount,
		"reference": request.AccountReference,
	}).Info("Mock gateway: initiating charge")

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	if m.FailureRate > 0 && rand.Float64() < m.FailureRate {
		return nil, domain.GatewayError(nil, "payment provider unavailable")
	}

	id := uuid.New().String()
	checkoutID := "ws_CO_" + strings.ReplaceAll(id, "-", "")[:20]
	m.charges[checkoutID] = &StatusResponse{CheckoutRequestID: checkoutID, Processing: true}

	return &ChargeResponse{
		CheckoutRequestID:   checkoutID,
		MerchantRequestID:   fmt.Sprintf("mr_%s", id[:8]),
		ResponseDescription: "Success. Request accepted for processing",
		CustomerMessage:     "Success. Request accepted for processing",
	}, nil
}

func (m *MockPaymentGateway) QueryStatus(ctx context.Context, checkoutRequestID string) (*StatusResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.GatewayError(err, "payment status query aborted")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	status, ok := m.charges[checkoutRequestID]
	if !ok {
		return nil, domain.GatewayError(nil, "unknown checkout request %s", checkoutRequestID)
	}
	copied := *status
	return &copied, nil
}

// Resolve records the payer's answer for a pending charge.
func (m *MockPaymentGateway) Resolve(checkoutRequestID string, resultCode int, resultDesc string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.charges[checkoutRequestID] = &StatusResponse{
		CheckoutRequestID: checkoutRequestID,
		ResultCode:        resultCode,
		ResultDesc:        resultDesc,
	}
}

// Calls returns how many charges were attempted.
func (m *MockPaymentGateway) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
