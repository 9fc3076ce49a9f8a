package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	ResultCodeSuccess         = 0
	ResultCodeCancelledByUser = 1032

	maxReviewLength = 1000
	actorGateway    = "payment-gateway"
)

// now is swapped in tests that need a fixed clock.
var now = time.Now

type OrderItem struct {
	MenuItemID string  `json:"menu_item_id"`
	Name       string  `json:"name"`
	Price      float64 `json:"price"`
	Quantity   int     `json:"quantity"`
	Note       string  `json:"note,omitempty"`
}

// StatusChange is one row of an order's status history.
type StatusChange struct {
	From  OrderStatus `json:"from"`
	To    OrderStatus `json:"to"`
	Actor string      `json:"actor"`
	Note  string      `json:"note,omitempty"`
	At    time.Time   `json:"at"`
}

type Order struct {
	ID                 uuid.UUID     `json:"id" db:"id"`
	OwnerID            string        `json:"owner_id" db:"owner_id"`
	Items              []OrderItem   `json:"items" db:"items"`
	Subtotal           float64       `json:"subtotal" db:"subtotal"`
	DeliveryFee        float64       `json:"delivery_fee" db:"delivery_fee"`
	Discount           float64       `json:"discount" db:"discount"`
	TotalAmount        float64       `json:"total_amount" db:"total_amount"`
	PromoCode          string        `json:"promo_code,omitempty" db:"promo_code"`
	ServiceType        ServiceType   `json:"service_type" db:"service_type"`
	DeliveryAddress    string        `json:"delivery_address,omitempty" db:"delivery_address"`
	PaymentMethod      PaymentMethod `json:"payment_method" db:"payment_method"`
	MpesaPhone         string        `json:"mpesa_phone,omitempty" db:"mpesa_phone"`
	CheckoutRequestID  string        `json:"checkout_request_id,omitempty" db:"checkout_request_id"`
	MerchantRequestID  string        `json:"merchant_request_id,omitempty" db:"merchant_request_id"`
	Status             OrderStatus   `json:"status" db:"status"`
	PaymentStatus      PaymentStatus `json:"payment_status" db:"payment_status"`
	TransactionID      string        `json:"transaction_id,omitempty" db:"transaction_id"`
	PaymentResultCode  *int          `json:"payment_result_code,omitempty" db:"payment_result_code"`
	PaymentResultDesc  string        `json:"payment_result_desc,omitempty" db:"payment_result_desc"`
	RefundRequired     bool          `json:"refund_required" db:"refund_required"`
	ReconciliationNote string        `json:"reconciliation_note,omitempty" db:"reconciliation_note"`
	AssignedTo         string        `json:"assigned_to,omitempty" db:"assigned_to"`
	Rating             int           `json:"rating,omitempty" db:"rating"`
	Review             string        `json:"review,omitempty" db:"review"`
	IdempotencyKey     string        `json:"-" db:"idempotency_key"`
	Version            int           `json:"version" db:"version"`
	CreatedAt          time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at" db:"updated_at"`

	// Changes holds status changes not yet written to the history table.
	Changes []StatusChange `json:"-"`
}

// OrderRequest is a create-order call after authentication.
type OrderRequest struct {
	OwnerID         string
	Items           []OrderItem
	ServiceType     ServiceType
	DeliveryAddress string
	PaymentMethod   PaymentMethod
	MpesaPhone      string
	PromoCode       string
	IdempotencyKey  string
}

// Validate checks the request and normalizes the phone number and
// address in place.
func (r *OrderRequest) Validate() error {
	if strings.TrimSpace(r.OwnerID) == "" {
		return ValidationError("owner is required")
	}
	if len(r.Items) == 0 {
		return ValidationError("at least one item is required")
	}
	for i, item := range r.Items {
		if strings.TrimSpace(item.MenuItemID) == "" {
			return ValidationError("item %d: menu_item_id is required", i)
		}
		if item.Quantity < 1 {
			return ValidationError("item %d: quantity must be at least 1", i)
		}
		if item.Price < 0 {
			return ValidationError("item %d: price must not be negative", i)
		}
	}

	if !r.ServiceType.Valid() {
		return ValidationError("service type must be one of delivery, takeaway, dine-in")
	}
	r.DeliveryAddress = strings.TrimSpace(r.DeliveryAddress)
	if r.ServiceType == ServiceTypeDelivery {
		if r.DeliveryAddress == "" {
			return ValidationError("delivery address is required for delivery orders")
		}
	} else {
		r.DeliveryAddress = ""
	}

	if !r.PaymentMethod.Valid() {
		return ValidationError("payment method must be one of mpesa, card, cash")
	}
	if r.PaymentMethod == PaymentMethodMpesa {
		if strings.TrimSpace(r.MpesaPhone) == "" {
			return ValidationError("M-Pesa phone number is required for M-Pesa payments")
		}
		phone, err := NormalizePhone(r.MpesaPhone)
		if err != nil {
			return err
		}
		r.MpesaPhone = phone
	} else {
		r.MpesaPhone = ""
	}

	return nil
}

// NewOrder builds an order from a validated request. Mobile money orders
// start in pending_payment, everything else in pending.
func NewOrder(req OrderRequest, totals Totals) *Order {
	status := OrderStatusPending
	if req.PaymentMethod == PaymentMethodMpesa {
		status = OrderStatusPendingPayment
	}

	items := make([]OrderItem, len(req.Items))
	copy(items, req.Items)

	t := now()
	return &Order{
		ID:              uuid.New(),
		OwnerID:         req.OwnerID,
		Items:           items,
		Subtotal:        totals.Subtotal,
		DeliveryFee:     totals.DeliveryFee,
		Discount:        totals.Discount,
		TotalAmount:     totals.Total,
		PromoCode:       strings.ToUpper(strings.TrimSpace(req.PromoCode)),
		ServiceType:     req.ServiceType,
		DeliveryAddress: req.DeliveryAddress,
		PaymentMethod:   req.PaymentMethod,
		MpesaPhone:      req.MpesaPhone,
		Status:          status,
		PaymentStatus:   PaymentStatusPending,
		IdempotencyKey:  req.IdempotencyKey,
		Version:         1,
		CreatedAt:       t,
		UpdatedAt:       t,
	}
}

// AccountReference is the reference shown to the payer on the STK prompt.
func (o *Order) AccountReference() string {
	return "ORDER_" + strings.ToUpper(o.ID.String()[:8])
}

func (o *Order) IsOwnedBy(actor Actor) bool {
	return o.OwnerID == actor.ID
}

// CanBeViewedBy allows the owner and any staff member.
func (o *Order) CanBeViewedBy(actor Actor) bool {
	return o.IsOwnedBy(actor) || actor.IsStaff()
}

// AttachCheckout records the gateway correlation id. It can be set once.
func (o *Order) AttachCheckout(checkoutRequestID, merchantRequestID string) error {
	if o.CheckoutRequestID != "" {
		return ConflictError("payment already initiated for order %s", o.ID)
	}
	if checkoutRequestID == "" {
		return GatewayError(nil, "payment gateway returned no checkout request id")
	}
	o.CheckoutRequestID = checkoutRequestID
	o.MerchantRequestID = merchantRequestID
	o.touch()
	return nil
}

// FailInitiation marks a mobile money order whose charge never started.
func (o *Order) FailInitiation(reason string) {
	o.PaymentStatus = PaymentStatusFailed
	o.ReconciliationNote = reason
	o.setStatus(OrderStatusFailed, actorGateway, reason)
}

// ApplyPayment folds a gateway result into the order. It returns false
// when the payment was already settled and nothing changed.
func (o *Order) ApplyPayment(result PaymentResult) bool {
	if o.PaymentStatus.IsSettled() {
		return false
	}

	code := result.ResultCode
	o.PaymentResultCode = &code
	o.PaymentResultDesc = result.ResultDesc

	if result.Succeeded() {
		o.PaymentStatus = PaymentStatusCompleted
		o.TransactionID = result.TransactionID
		switch o.Status {
		case OrderStatusPendingPayment:
			o.setStatus(OrderStatusPending, actorGateway, "payment confirmed")
		case OrderStatusCancelled:
			o.RefundRequired = true
			o.ReconciliationNote = "payment confirmed after cancellation, refund required"
			o.touch()
		default:
			o.touch()
		}
		return true
	}

	o.PaymentStatus = PaymentStatusFailed
	if o.Status == OrderStatusPendingPayment {
		o.setStatus(OrderStatusCancelled, actorGateway, result.ResultDesc)
	} else {
		o.touch()
	}
	return true
}

// Transition applies a staff/admin status update.
func (o *Order) Transition(to OrderStatus, actor Actor) error {
	if !actor.IsStaff() {
		return ForbiddenError("only staff or admin can update order status")
	}
	if !to.Valid() {
		return ValidationError("unknown order status: %s", to)
	}
	if !CanTransition(o.Status, to, o.ServiceType) {
		return InvalidTransitionError(o.Status, to)
	}
	if to == OrderStatusCancelled {
		o.flagRefund()
	}
	o.setStatus(to, actor.ID, "")
	return nil
}

// Cancel is the owner/admin cancel action.
func (o *Order) Cancel(actor Actor, reason string) error {
	if !o.IsOwnedBy(actor) && !actor.IsAdmin() {
		return ForbiddenError("only the order owner or an admin can cancel this order")
	}
	if !Cancellable(o.Status) {
		return InvalidTransitionError(o.Status, OrderStatusCancelled)
	}
	o.flagRefund()
	o.setStatus(OrderStatusCancelled, actor.ID, strings.TrimSpace(reason))
	return nil
}

func (o *Order) Rate(actor Actor, rating int, review string) error {
	if !o.IsOwnedBy(actor) {
		return ForbiddenError("only the order owner can rate this order")
	}
	if rating < 1 || rating > 5 {
		return ValidationError("rating must be an integer between 1 and 5")
	}
	review = strings.TrimSpace(review)
	if len(review) > maxReviewLength {
		return ValidationError("review must be at most %d characters", maxReviewLength)
	}
	if !o.Status.Rateable() {
		return newError(ErrInvalidTransition, nil, "order can only be rated once delivered or completed, current status: %s", o.Status)
	}
	o.Rating = rating
	o.Review = review
	o.touch()
	return nil
}

func (o *Order) Assign(staffID string, actor Actor) error {
	if !actor.IsAdmin() {
		return ForbiddenError("only an admin can assign orders")
	}
	staffID = strings.TrimSpace(staffID)
	if staffID == "" {
		return ValidationError("staff id is required")
	}
	if o.Status.IsTerminal() {
		return newError(ErrInvalidTransition, nil, "cannot assign a %s order", o.Status)
	}
	o.AssignedTo = staffID
	o.touch()
	return nil
}

func (o *Order) flagRefund() {
	if o.PaymentStatus == PaymentStatusCompleted {
		o.RefundRequired = true
		o.ReconciliationNote = "order cancelled after payment, refund required"
	}
}

func (o *Order) setStatus(to OrderStatus, actor, note string) {
	from := o.Status
	o.Status = to
	o.touch()
	o.Changes = append(o.Changes, StatusChange{
		From:  from,
		To:    to,
		Actor: actor,
		Note:  note,
		At:    o.UpdatedAt,
	})
}

// touch bumps UpdatedAt without ever moving it backwards.
func (o *Order) touch() {
	t := now()
	if t.Before(o.UpdatedAt) {
		t = o.UpdatedAt
	}
	o.UpdatedAt = t
}

// Clone returns a deep copy safe to mutate independently.
func (o *Order) Clone() *Order {
	c := *o
	c.Items = append([]OrderItem(nil), o.Items...)
	c.Changes = append([]StatusChange(nil), o.Changes...)
	if o.PaymentResultCode != nil {
		code := *o.PaymentResultCode
		c.PaymentResultCode = &code
	}
	return &c
}
