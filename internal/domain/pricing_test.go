package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPricing_Quote(t *testing.T) {
	pricing := NewPricing(200, map[string]float64{"welcome10": 10, "bigdeal": 1000})
	items := []OrderItem{
		{MenuItemID: "a", Price: 3.5, Quantity: 1},
		{MenuItemID: "b", Price: 4.5, Quantity: 2},
	}

	tests := []struct {
		name        string
		serviceType ServiceType
		promo       string
		want        Totals
	}{
		{"delivery", ServiceTypeDelivery, "", Totals{Subtotal: 12.5, DeliveryFee: 200, Total: 212.5}},
		{"takeaway", ServiceTypeTakeaway, "", Totals{Subtotal: 12.5, Total: 12.5}},
		{"promo", ServiceTypeDineIn, "WELCOME10", Totals{Subtotal: 12.5, Discount: 10, Total: 2.5}},
		{"promo capped at subtotal", ServiceTypeDelivery, "bigdeal", Totals{Subtotal: 12.5, DeliveryFee: 200, Discount: 12.5, Total: 200}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := pricing.Quote(items, tt.serviceType, tt.promo)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got.Subtotal+got.DeliveryFee-got.Discount, got.Total)
		})
	}
}

func TestPricing_Quote_NoFloatDrift(t *testing.T) {
	items := []OrderItem{{MenuItemID: "a", Price: 0.1, Quantity: 3}}

	got, err := NewPricing(0, nil).Quote(items, ServiceTypeTakeaway, "")

	require.NoError(t, err)
	assert.Equal(t, 0.3, got.Total)
}

func TestPricing_Quote_UnknownPromo(t *testing.T) {
	_, err := NewPricing(200, nil).Quote([]OrderItem{{Price: 1, Quantity: 1}}, ServiceTypeTakeaway, "nope")
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestNormalizePhone(t *testing.T) {
	for _, in := range []string{"0712345678", "254712345678", "+254712345678", "712345678"} {
		got, err := NormalizePhone(in)
		require.NoError(t, err, in)
		assert.Equal(t, "254712345678", got)
	}

	got, err := NormalizePhone("0110123456")
	require.NoError(t, err)
	assert.Equal(t, "254110123456", got)

	for _, in := range []string{"", "0812345678", "07123", "phone"} {
		_, err := NormalizePhone(in)
		assert.True(t, errors.Is(err, ErrValidation), in)
	}
}
