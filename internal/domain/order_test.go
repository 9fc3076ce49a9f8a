package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	owner    = Actor{ID: "user-1", Role: RoleCustomer}
	stranger = Actor{ID: "user-2", Role: RoleCustomer}
	staff    = Actor{ID: "staff-1", Role: RoleStaff}
	admin    = Actor{ID: "admin-1", Role: RoleAdmin}
)

func validRequest() OrderRequest {
	return OrderRequest{
		OwnerID: owner.ID,
		Items: []OrderItem{
			{MenuItemID: "latte", Name: "Latte", Price: 3.5, Quantity: 1},
			{MenuItemID: "muffin", Name: "Muffin", Price: 4.5, Quantity: 2},
		},
		ServiceType:     ServiceTypeDelivery,
		DeliveryAddress: "Moi Avenue 12, Nairobi",
		PaymentMethod:   PaymentMethodMpesa,
		MpesaPhone:      "0712345678",
	}
}

func newTestOrder(t *testing.T, mutate func(*OrderRequest)) *Order {
	t.Helper()
	req := validRequest()
	if mutate != nil {
		mutate(&req)
	}
	require.NoError(t, req.Validate())
	totals, err := NewPricing(200, nil).Quote(req.Items, req.ServiceType, req.PromoCode)
	require.NoError(t, err)
	return NewOrder(req, totals)
}

func TestOrderRequest_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*OrderRequest)
		want   string
	}{
		{"no items", func(r *OrderRequest) { r.Items = nil }, "at least one item"},
		{"zero quantity", func(r *OrderRequest) { r.Items[0].Quantity = 0 }, "quantity must be at least 1"},
		{"negative price", func(r *OrderRequest) { r.Items[1].Price = -1 }, "price must not be negative"},
		{"missing menu item", func(r *OrderRequest) { r.Items[0].MenuItemID = " " }, "menu_item_id is required"},
		{"delivery without address", func(r *OrderRequest) { r.DeliveryAddress = "  " }, "delivery address is required"},
		{"unknown service", func(r *OrderRequest) { r.ServiceType = "drone" }, "service type"},
		{"unknown payment", func(r *OrderRequest) { r.PaymentMethod = "bitcoin" }, "payment method"},
		{"mpesa without phone", func(r *OrderRequest) { r.MpesaPhone = "" }, "phone number is required"},
		{"mpesa bad phone", func(r *OrderRequest) { r.MpesaPhone = "0812345678" }, "invalid phone number"},
		{"no owner", func(r *OrderRequest) { r.OwnerID = "" }, "owner is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)

			err := req.Validate()

			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrValidation))
			assert.Contains(t, PublicMessage(err, ""), tt.want)
		})
	}
}

func TestOrderRequest_Validate_Normalizes(t *testing.T) {
	req := validRequest()
	req.MpesaPhone = "+254 712 345 678"
	require.NoError(t, req.Validate())
	assert.Equal(t, "254712345678", req.MpesaPhone)

	req = validRequest()
	req.ServiceType = ServiceTypeTakeaway
	req.PaymentMethod = PaymentMethodCash
	require.NoError(t, req.Validate())
	assert.Empty(t, req.DeliveryAddress, "non-delivery orders drop the address")
	assert.Empty(t, req.MpesaPhone)
}

func TestNewOrder_InitialStatus(t *testing.T) {
	mpesa := newTestOrder(t, nil)
	assert.Equal(t, OrderStatusPendingPayment, mpesa.Status)
	assert.Equal(t, PaymentStatusPending, mpesa.PaymentStatus)
	assert.Equal(t, 12.5, mpesa.Subtotal)
	assert.Equal(t, 200.0, mpesa.DeliveryFee)
	assert.Equal(t, 212.5, mpesa.TotalAmount)

	cash := newTestOrder(t, func(r *OrderRequest) { r.PaymentMethod = PaymentMethodCash })
	assert.Equal(t, OrderStatusPending, cash.Status)
	assert.Equal(t, PaymentStatusPending, cash.PaymentStatus)
}

func TestOrder_AttachCheckout_OnlyOnce(t *testing.T) {
	o := newTestOrder(t, nil)

	require.NoError(t, o.AttachCheckout("ws_CO_1", "mr_1"))
	err := o.AttachCheckout("ws_CO_2", "mr_2")

	assert.True(t, errors.Is(err, ErrConflict))
	assert.Equal(t, "ws_CO_1", o.CheckoutRequestID)
}

func TestOrder_ApplyPayment(t *testing.T) {
	t.Run("success moves to pending", func(t *testing.T) {
		o := newTestOrder(t, nil)

		changed := o.ApplyPayment(PaymentResult{ResultCode: 0, ResultDesc: "ok", TransactionID: "QK123"})

		assert.True(t, changed)
		assert.Equal(t, OrderStatusPending, o.Status)
		assert.Equal(t, PaymentStatusCompleted, o.PaymentStatus)
		assert.Equal(t, "QK123", o.TransactionID)
		require.Len(t, o.Changes, 1)
		assert.Equal(t, OrderStatusPendingPayment, o.Changes[0].From)
	})

	t.Run("user cancel moves to cancelled", func(t *testing.T) {
		o := newTestOrder(t, nil)

		o.ApplyPayment(PaymentResult{ResultCode: ResultCodeCancelledByUser, ResultDesc: "Request cancelled by user"})

		assert.Equal(t, OrderStatusCancelled, o.Status)
		assert.Equal(t, PaymentStatusFailed, o.PaymentStatus)
	})

	t.Run("replay is a no-op", func(t *testing.T) {
		o := newTestOrder(t, nil)
		o.ApplyPayment(PaymentResult{ResultCode: 0, TransactionID: "QK123"})
		before := o.Clone()

		changed := o.ApplyPayment(PaymentResult{ResultCode: 1, ResultDesc: "late failure"})

		assert.False(t, changed)
		assert.Equal(t, before.Status, o.Status)
		assert.Equal(t, before.PaymentStatus, o.PaymentStatus)
		assert.Equal(t, before.UpdatedAt, o.UpdatedAt)
	})

	t.Run("success after cancel records refund", func(t *testing.T) {
		o := newTestOrder(t, nil)
		require.NoError(t, o.Cancel(owner, "changed my mind"))

		o.ApplyPayment(PaymentResult{ResultCode: 0, TransactionID: "QK123"})

		assert.Equal(t, OrderStatusCancelled, o.Status)
		assert.Equal(t, PaymentStatusCompleted, o.PaymentStatus)
		assert.True(t, o.RefundRequired)
		assert.NotEmpty(t, o.ReconciliationNote)
	})
}

func TestOrder_Transition(t *testing.T) {
	o := newTestOrder(t, func(r *OrderRequest) { r.PaymentMethod = PaymentMethodCash })

	for _, next := range []OrderStatus{OrderStatusConfirmed, OrderStatusPreparing, OrderStatusOutForDelivery, OrderStatusDelivered} {
		require.NoError(t, o.Transition(next, staff))
	}
	assert.Equal(t, OrderStatusDelivered, o.Status)
	assert.Len(t, o.Changes, 4)

	err := o.Transition(OrderStatusCancelled, admin)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Contains(t, PublicMessage(err, ""), "delivered to cancelled")

	err = o.Cancel(owner, "")
	assert.True(t, errors.Is(err, ErrInvalidTransition))
}

func TestOrder_Transition_Rules(t *testing.T) {
	t.Run("customers are forbidden", func(t *testing.T) {
		o := newTestOrder(t, func(r *OrderRequest) { r.PaymentMethod = PaymentMethodCash })
		err := o.Transition(OrderStatusConfirmed, owner)
		assert.True(t, errors.Is(err, ErrForbidden))
	})

	t.Run("no skipping", func(t *testing.T) {
		o := newTestOrder(t, func(r *OrderRequest) { r.PaymentMethod = PaymentMethodCash })
		err := o.Transition(OrderStatusDelivered, staff)
		assert.True(t, errors.Is(err, ErrInvalidTransition))
	})

	t.Run("pending_payment cannot be moved by staff", func(t *testing.T) {
		o := newTestOrder(t, nil)
		err := o.Transition(OrderStatusCancelled, staff)
		assert.True(t, errors.Is(err, ErrInvalidTransition))
	})

	t.Run("takeaway completes at the counter", func(t *testing.T) {
		o := newTestOrder(t, func(r *OrderRequest) {
			r.PaymentMethod = PaymentMethodCash
			r.ServiceType = ServiceTypeTakeaway
		})
		require.NoError(t, o.Transition(OrderStatusConfirmed, staff))
		require.NoError(t, o.Transition(OrderStatusPreparing, staff))
		require.NoError(t, o.Transition(OrderStatusCompleted, staff))
		assert.True(t, o.Status.IsTerminal())
	})

	t.Run("delivery cannot complete at the counter", func(t *testing.T) {
		o := newTestOrder(t, func(r *OrderRequest) { r.PaymentMethod = PaymentMethodCash })
		require.NoError(t, o.Transition(OrderStatusConfirmed, staff))
		require.NoError(t, o.Transition(OrderStatusPreparing, staff))
		err := o.Transition(OrderStatusCompleted, staff)
		assert.True(t, errors.Is(err, ErrInvalidTransition))
	})

	t.Run("unknown status", func(t *testing.T) {
		o := newTestOrder(t, nil)
		err := o.Transition("lost", staff)
		assert.True(t, errors.Is(err, ErrValidation))
	})
}

func TestOrder_Cancel(t *testing.T) {
	t.Run("stranger is forbidden", func(t *testing.T) {
		o := newTestOrder(t, nil)
		assert.True(t, errors.Is(o.Cancel(stranger, ""), ErrForbidden))
		assert.True(t, errors.Is(o.Cancel(staff, ""), ErrForbidden))
	})

	t.Run("admin may cancel", func(t *testing.T) {
		o := newTestOrder(t, nil)
		require.NoError(t, o.Cancel(admin, "duplicate"))
		assert.Equal(t, OrderStatusCancelled, o.Status)
		assert.False(t, o.RefundRequired)
	})

	t.Run("cancelling a paid order flags a refund", func(t *testing.T) {
		o := newTestOrder(t, nil)
		o.ApplyPayment(PaymentResult{ResultCode: 0, TransactionID: "QK1"})
		require.NoError(t, o.Cancel(owner, ""))
		assert.True(t, o.RefundRequired)
	})

	t.Run("out for delivery cannot be cancelled", func(t *testing.T) {
		o := newTestOrder(t, func(r *OrderRequest) { r.PaymentMethod = PaymentMethodCash })
		require.NoError(t, o.Transition(OrderStatusConfirmed, staff))
		require.NoError(t, o.Transition(OrderStatusPreparing, staff))
		require.NoError(t, o.Transition(OrderStatusOutForDelivery, staff))
		assert.True(t, errors.Is(o.Cancel(owner, ""), ErrInvalidTransition))
	})
}

func TestOrder_Rate(t *testing.T) {
	delivered := func(t *testing.T) *Order {
		o := newTestOrder(t, func(r *OrderRequest) { r.PaymentMethod = PaymentMethodCash })
		for _, next := range []OrderStatus{OrderStatusConfirmed, OrderStatusPreparing, OrderStatusOutForDelivery, OrderStatusDelivered} {
			require.NoError(t, o.Transition(next, staff))
		}
		return o
	}

	t.Run("accepted once delivered", func(t *testing.T) {
		o := delivered(t)
		require.NoError(t, o.Rate(owner, 5, " great coffee "))
		assert.Equal(t, 5, o.Rating)
		assert.Equal(t, "great coffee", o.Review)
	})

	t.Run("out of range", func(t *testing.T) {
		o := delivered(t)
		assert.True(t, errors.Is(o.Rate(owner, 0, ""), ErrValidation))
		assert.True(t, errors.Is(o.Rate(owner, 6, ""), ErrValidation))
	})

	t.Run("not yet delivered", func(t *testing.T) {
		o := newTestOrder(t, nil)
		assert.True(t, errors.Is(o.Rate(owner, 4, ""), ErrInvalidTransition))
	})

	t.Run("only the owner", func(t *testing.T) {
		o := delivered(t)
		assert.True(t, errors.Is(o.Rate(admin, 4, ""), ErrForbidden))
	})
}

func TestOrder_Assign(t *testing.T) {
	o := newTestOrder(t, func(r *OrderRequest) { r.PaymentMethod = PaymentMethodCard })

	assert.True(t, errors.Is(o.Assign("staff-1", staff), ErrForbidden))
	assert.True(t, errors.Is(o.Assign(" ", admin), ErrValidation))
	require.NoError(t, o.Assign("staff-1", admin))
	assert.Equal(t, "staff-1", o.AssignedTo)
}

func TestOrder_UpdatedAtNeverMovesBack(t *testing.T) {
	o := newTestOrder(t, nil)
	future := o.UpdatedAt.Add(time.Hour)
	o.UpdatedAt = future

	o.ApplyPayment(PaymentResult{ResultCode: 0})

	assert.Equal(t, future, o.UpdatedAt)
}

func TestOrder_CloneIsDeep(t *testing.T) {
	o := newTestOrder(t, nil)
	o.ApplyPayment(PaymentResult{ResultCode: 0})

	c := o.Clone()
	c.Items[0].Name = "changed"
	*c.PaymentResultCode = 99

	assert.Equal(t, "Latte", o.Items[0].Name)
	assert.Equal(t, 0, *o.PaymentResultCode)
}
