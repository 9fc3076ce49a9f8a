package domain

type OrderStatus string

const (
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	OrderStatusPending        OrderStatus = "pending"
	OrderStatusConfirmed      OrderStatus = "confirmed"
	OrderStatusPreparing      OrderStatus = "preparing"
	OrderStatusOutForDelivery OrderStatus = "out-for-delivery"
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusCompleted      OrderStatus = "completed"
	OrderStatusCancelled      OrderStatus = "cancelled"
	OrderStatusFailed         OrderStatus = "failed"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

type ServiceType string

const (
	ServiceTypeDelivery ServiceType = "delivery"
	ServiceTypeTakeaway ServiceType = "takeaway"
	ServiceTypeDineIn   ServiceType = "dine-in"
)

type PaymentMethod string

const (
	PaymentMethodMpesa PaymentMethod = "mpesa"
	PaymentMethodCard  PaymentMethod = "card"
	PaymentMethodCash  PaymentMethod = "cash"
)

func (s ServiceType) Valid() bool {
	switch s {
	case ServiceTypeDelivery, ServiceTypeTakeaway, ServiceTypeDineIn:
		return true
	}
	return false
}

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodMpesa, PaymentMethodCard, PaymentMethodCash:
		return true
	}
	return false
}

func (s OrderStatus) Valid() bool {
	_, ok := staffEdges[s]
	return ok || s.IsTerminal()
}

// IsTerminal reports whether no further transition may leave s.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusDelivered, OrderStatusCompleted, OrderStatusCancelled, OrderStatusFailed:
		return true
	}
	return false
}

// IsSettled reports whether the payment already reached a final outcome.
func (p PaymentStatus) IsSettled() bool {
	return p == PaymentStatusCompleted || p == PaymentStatusFailed
}

// staffEdges is the forward table used by staff/admin status updates.
// pending_payment is only left through a payment result or a cancel.
var staffEdges = map[OrderStatus][]OrderStatus{
	OrderStatusPendingPayment: nil,
	OrderStatusPending:        {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed:      {OrderStatusPreparing, OrderStatusCancelled},
	OrderStatusPreparing:      {OrderStatusOutForDelivery, OrderStatusCompleted, OrderStatusCancelled},
	OrderStatusOutForDelivery: {OrderStatusDelivered},
}

// CanTransition reports whether staff may move an order of the given
// service type from one status to another.
func CanTransition(from, to OrderStatus, serviceType ServiceType) bool {
	// counter/table hand-over only makes sense without a courier
	if to == OrderStatusCompleted && serviceType == ServiceTypeDelivery {
		return false
	}
	for _, next := range staffEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Cancellable reports whether an explicit cancel is allowed from s.
func Cancellable(s OrderStatus) bool {
	switch s {
	case OrderStatusPendingPayment, OrderStatusPending, OrderStatusConfirmed, OrderStatusPreparing:
		return true
	}
	return false
}

func (s OrderStatus) Rateable() bool {
	return s == OrderStatusDelivered || s == OrderStatusCompleted
}
