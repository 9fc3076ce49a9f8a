package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/hezron-sketch/cafe-backend/internal/domain"
	"github.com/hezron-sketch/cafe-backend/internal/gateway"
	"github.com/sirupsen/logrus"
)

const (
	defaultCASRetries = 3
	defaultPageSize   = 20
	maxPageSize       = 100
)

type OrderStore interface {
	CreateOrder(ctx context.Context, order *domain.Order) error
	UpdateOrder(ctx context.Context, order *domain.Order) error
	GetOrderByID(ctx context.Context, orderID uuid.UUID) (*domain.Order, error)
	GetOrderByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*domain.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, ownerID, key string) (*domain.Order, error)
	GetOrdersByOwnerID(ctx context.Context, ownerID string, limit, offset int) ([]*domain.Order, int, error)
	GetOrdersByStatus(ctx context.Context, status domain.OrderStatus) ([]*domain.Order, error)
	GetStatusHistory(ctx context.Context, orderID uuid.UUID) ([]domain.StatusChange, error)
}

type Catalog interface {
	GetMenuItem(ctx context.Context, id string) (*domain.MenuItem, error)
}

// Notifier is fire-and-forget; implementations must not block or fail
// the calling operation.
type Notifier interface {
	OrderCreated(order *domain.Order)
	StatusChanged(order *domain.Order, change domain.StatusChange)
	PaymentSettled(order *domain.Order)
}

type Options struct {
	Pricing         domain.Pricing
	ReverifyCatalog bool
	CASRetries      int
}

type OrderService struct {
	orders   OrderStore
	catalog  Catalog
	payments gateway.PaymentGateway
	notifier Notifier
	opts     Options
}

func NewOrderService(orders OrderStore, catalog Catalog, payments gateway.PaymentGateway, notifier Notifier, opts Options) *OrderService {
	if opts.CASRetries < 1 {
		opts.CASRetries = defaultCASRetries
	}
	return &OrderService{
		orders:   orders,
		catalog:  catalog,
		payments: payments,
		notifier: notifier,
		opts:     opts,
	}
}

func (s *OrderService) CreateOrder(ctx context.Context, req domain.OrderRequest) (*domain.Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" {
		existing, err := s.orders.GetOrderByIdempotencyKey(ctx, req.OwnerID, req.IdempotencyKey)
		if err == nil {
			logrus.WithFields(logrus.Fields{
				"order_id": existing.ID,
				"owner_id": req.OwnerID,
			}).Info("Idempotent replay of create order")
			return existing, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("idempotency lookup error: %w", err)
		}
	}

	if s.opts.ReverifyCatalog && s.catalog != nil {
		if err := s.verifyItems(ctx, req.Items); err != nil {
			return nil, err
		}
	}

	totals, err := s.opts.Pricing.Quote(req.Items, req.ServiceType, req.PromoCode)
	if err != nil {
		return nil, err
	}
	if req.PaymentMethod == domain.PaymentMethodMpesa && math.Round(totals.Total) < 1 {
		return nil, domain.ValidationError("order total is too low to pay by M-Pesa")
	}

	order := domain.NewOrder(req, totals)
	if err := s.orders.CreateOrder(ctx, order); err != nil {
		if errors.Is(err, domain.ErrConflict) && req.IdempotencyKey != "" {
			if existing, lookupErr := s.orders.GetOrderByIdempotencyKey(ctx, req.OwnerID, req.IdempotencyKey); lookupErr == nil {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("order creation error: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"order_id":       order.ID,
		"owner_id":       order.OwnerID,
		"total":          order.TotalAmount,
		"payment_method": order.PaymentMethod,
	}).Info("Order created")

	if order.PaymentMethod == domain.PaymentMethodMpesa {
		order, err = s.initiatePayment(ctx, order)
		if err != nil {
			return nil, err
		}
	}

	s.notifier.OrderCreated(order)
	return order, nil
}

func (s *OrderService) verifyItems(ctx context.Context, items []domain.OrderItem) error {
	for i := range items {
		menuItem, err := s.catalog.GetMenuItem(ctx, items[i].MenuItemID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ValidationError("menu item %s does not exist", items[i].MenuItemID)
			}
			return fmt.Errorf("menu item lookup error: %w", err)
		}
		if !menuItem.Available {
			return domain.ValidationError("%s is currently unavailable", menuItem.Name)
		}
		items[i].Name = menuItem.Name
		items[i].Price = menuItem.Price
	}
	return nil
}

// initiatePayment starts the STK push. A start that fails, or whose
// checkout id cannot be stored, is compensated by marking the order failed
// before the gateway error is returned.
func (s *OrderService) initiatePayment(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	resp, err := s.payments.InitiateCharge(ctx, gateway.ChargeRequest{
		Phone:            order.MpesaPhone,
		Amount:           order.TotalAmount,
		AccountReference: order.AccountReference(),
		Description:      "Cafe order " + order.AccountReference(),
	})
	if err != nil {
		logrus.WithError(err).WithField("order_id", order.ID).Error("Payment initiation failed")
		return nil, s.failInitiation(ctx, order.ID, err)
	}

	attached, _, err := s.mutate(ctx, order.ID, func(o *domain.Order) (bool, error) {
		return true, o.AttachCheckout(resp.CheckoutRequestID, resp.MerchantRequestID)
	})
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"order_id":            order.ID,
			"checkout_request_id": resp.CheckoutRequestID,
		}).Error("Checkout attach failed after payment start")
		return nil, s.failInitiation(ctx, order.ID, err)
	}

	logrus.WithFields(logrus.Fields{
		"order_id":            attached.ID,
		"checkout_request_id": attached.CheckoutRequestID,
	}).Info("Payment initiated")
	return attached, nil
}

// failInitiation marks a pending_payment order failed and returns cause as
// a gateway error. The write runs without the request's cancellation so a
// timed-out request still leaves the order settled.
func (s *OrderService) failInitiation(ctx context.Context, orderID uuid.UUID, cause error) error {
	if !errors.Is(cause, domain.ErrGateway) {
		cause = domain.GatewayError(cause, "payment initiation failed")
	}
	reason := domain.PublicMessage(cause, "payment initiation failed")

	failed, changes, err := s.mutate(context.WithoutCancel(ctx), orderID, func(o *domain.Order) (bool, error) {
		if o.Status != domain.OrderStatusPendingPayment {
			return false, nil
		}
		o.FailInitiation(reason)
		return true, nil
	})
	if err != nil {
		logrus.WithError(err).WithField("order_id", orderID).Error("Order failed status update error")
	} else {
		s.notifyChanges(failed, changes)
	}
	return cause
}

// ApplyPaymentResult settles a mobile money payment. Settled payments are
// left untouched and the current order is returned.
func (s *OrderService) ApplyPaymentResult(ctx context.Context, result domain.PaymentResult) (*domain.Order, error) {
	order, _, err := s.SettlePayment(ctx, result)
	return order, err
}

// SettlePayment is ApplyPaymentResult that also reports whether this call
// settled the payment; false means a replay of an already settled result.
func (s *OrderService) SettlePayment(ctx context.Context, result domain.PaymentResult) (*domain.Order, bool, error) {
	if result.CheckoutRequestID == "" {
		return nil, false, domain.ValidationError("checkout request id is required")
	}

	current, err := s.orders.GetOrderByCheckoutRequestID(ctx, result.CheckoutRequestID)
	if err != nil {
		return nil, false, err
	}

	settled := false
	order, changes, err := s.mutate(ctx, current.ID, func(o *domain.Order) (bool, error) {
		settled = o.ApplyPayment(result)
		return settled, nil
	})
	if err != nil {
		return nil, false, err
	}

	if !settled {
		logrus.WithFields(logrus.Fields{
			"order_id":       order.ID,
			"payment_status": order.PaymentStatus,
		}).Info("Payment already settled, ignoring result")
		return order, false, nil
	}

	entry := logrus.WithFields(logrus.Fields{
		"order_id":       order.ID,
		"result_code":    result.ResultCode,
		"status":         order.Status,
		"payment_status": order.PaymentStatus,
	})
	if order.RefundRequired {
		entry.Warn("Payment settled on a cancelled order, refund required")
	} else {
		entry.Info("Payment settled")
	}

	s.notifier.PaymentSettled(order)
	s.notifyChanges(order, changes)
	return order, true, nil
}

func (s *OrderService) TransitionStatus(ctx context.Context, orderID uuid.UUID, newStatus domain.OrderStatus, actor domain.Actor) (*domain.Order, error) {
	order, changes, err := s.mutate(ctx, orderID, func(o *domain.Order) (bool, error) {
		return true, o.Transition(newStatus, actor)
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"order_id": order.ID,
		"status":   order.Status,
		"actor":    actor.ID,
	}).Info("Order status updated")

	s.notifyChanges(order, changes)
	return order, nil
}

func (s *OrderService) CancelOrder(ctx context.Context, orderID uuid.UUID, actor domain.Actor, reason string) (*domain.Order, error) {
	order, changes, err := s.mutate(ctx, orderID, func(o *domain.Order) (bool, error) {
		return true, o.Cancel(actor, reason)
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"order_id":        order.ID,
		"actor":           actor.ID,
		"refund_required": order.RefundRequired,
	}).Info("Order cancelled")

	s.notifyChanges(order, changes)
	return order, nil
}

func (s *OrderService) RateOrder(ctx context.Context, orderID uuid.UUID, actor domain.Actor, rating int, review string) (*domain.Order, error) {
	order, _, err := s.mutate(ctx, orderID, func(o *domain.Order) (bool, error) {
		return true, o.Rate(actor, rating, review)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *OrderService) AssignOrder(ctx context.Context, orderID uuid.UUID, staffID string, actor domain.Actor) (*domain.Order, error) {
	order, _, err := s.mutate(ctx, orderID, func(o *domain.Order) (bool, error) {
		return true, o.Assign(staffID, actor)
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"order_id":    order.ID,
		"assigned_to": order.AssignedTo,
	}).Info("Order assigned")
	return order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderID uuid.UUID, actor domain.Actor) (*domain.Order, error) {
	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.CanBeViewedBy(actor) {
		return nil, domain.ForbiddenError("you do not have access to this order")
	}
	return order, nil
}

func (s *OrderService) GetOrderHistory(ctx context.Context, orderID uuid.UUID, actor domain.Actor) ([]domain.StatusChange, error) {
	if _, err := s.GetOrder(ctx, orderID, actor); err != nil {
		return nil, err
	}
	history, err := s.orders.GetStatusHistory(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("status history receive error: %w", err)
	}
	return history, nil
}

// ListOwnerOrders returns one page of the caller's orders, newest first,
// with the total count. page starts at 1.
func (s *OrderService) ListOwnerOrders(ctx context.Context, actor domain.Actor, page, limit int) ([]*domain.Order, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	orders, total, err := s.orders.GetOrdersByOwnerID(ctx, actor.ID, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("orders receive error: %w", err)
	}
	return orders, total, nil
}

// ListOrdersByStatus is the kitchen queue, oldest first.
func (s *OrderService) ListOrdersByStatus(ctx context.Context, status domain.OrderStatus, actor domain.Actor) ([]*domain.Order, error) {
	if !actor.IsStaff() {
		return nil, domain.ForbiddenError("only staff or admin can view the order queue")
	}
	if !status.Valid() {
		return nil, domain.ValidationError("unknown order status: %s", status)
	}

	orders, err := s.orders.GetOrdersByStatus(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("orders receive error: %w", err)
	}
	return orders, nil
}

// CheckPaymentStatus polls the gateway for an unsettled mobile money
// payment and applies a definitive answer.
func (s *OrderService) CheckPaymentStatus(ctx context.Context, orderID uuid.UUID, actor domain.Actor) (*domain.PaymentCheck, error) {
	order, err := s.GetOrder(ctx, orderID, actor)
	if err != nil {
		return nil, err
	}
	if order.PaymentMethod != domain.PaymentMethodMpesa {
		return nil, domain.ValidationError("order is not paid by M-Pesa")
	}
	if order.PaymentStatus.IsSettled() || order.CheckoutRequestID == "" {
		return paymentCheck(order, false, order.PaymentResultDesc), nil
	}

	status, err := s.payments.QueryStatus(ctx, order.CheckoutRequestID)
	if err != nil {
		if !errors.Is(err, domain.ErrGateway) {
			err = domain.GatewayError(err, "payment status query failed")
		}
		return nil, err
	}
	if status.Processing {
		return paymentCheck(order, true, status.ResultDesc), nil
	}

	updated, err := s.ApplyPaymentResult(ctx, domain.PaymentResult{
		CheckoutRequestID: order.CheckoutRequestID,
		ResultCode:        status.ResultCode,
		ResultDesc:        status.ResultDesc,
	})
	if err != nil {
		return nil, err
	}

	check := paymentCheck(updated, false, status.ResultDesc)
	check.ResultCode = status.ResultCode
	return check, nil
}

func paymentCheck(order *domain.Order, processing bool, desc string) *domain.PaymentCheck {
	check := &domain.PaymentCheck{
		ResultDesc:  desc,
		Processing:  processing,
		OrderStatus: string(order.Status),
		Payment:     string(order.PaymentStatus),
	}
	if order.PaymentResultCode != nil {
		check.ResultCode = *order.PaymentResultCode
	}
	return check
}

// mutate loads the order, applies fn and writes it back with a version
// check. On a lost race the order is re-read and fn re-evaluated.
// fn reports false when there is nothing to write.
func (s *OrderService) mutate(ctx context.Context, orderID uuid.UUID, fn func(*domain.Order) (bool, error)) (*domain.Order, []domain.StatusChange, error) {
	for attempt := 1; attempt <= s.opts.CASRetries; attempt++ {
		order, err := s.orders.GetOrderByID(ctx, orderID)
		if err != nil {
			return nil, nil, err
		}

		changed, err := fn(order)
		if err != nil {
			return nil, nil, err
		}
		if !changed {
			return order, nil, nil
		}

		changes := append([]domain.StatusChange(nil), order.Changes...)
		err = s.orders.UpdateOrder(ctx, order)
		if err == nil {
			return order, changes, nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			return nil, nil, fmt.Errorf("order update error: %w", err)
		}

		logrus.WithFields(logrus.Fields{
			"order_id": orderID,
			"attempt":  attempt,
		}).Debug("Concurrent order update, retrying")
	}

	return nil, nil, domain.ConflictError("order %s was modified concurrently, please retry", orderID)
}

func (s *OrderService) notifyChanges(order *domain.Order, changes []domain.StatusChange) {
	for _, change := range changes {
		s.notifier.StatusChanged(order, change)
	}
}
