package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Pricing is the single fee/discount policy applied to every new order.
type Pricing struct {
	DeliveryFee decimal.Decimal
	PromoCodes  map[string]decimal.Decimal
}

type Totals struct {
	Subtotal    float64 `json:"subtotal"`
	DeliveryFee float64 `json:"delivery_fee"`
	Discount    float64 `json:"discount"`
	Total       float64 `json:"total"`
}

func NewPricing(deliveryFee float64, promoCodes map[string]float64) Pricing {
	codes := make(map[string]decimal.Decimal, len(promoCodes))
	for code, amount := range promoCodes {
		codes[strings.ToUpper(code)] = decimal.NewFromFloat(amount)
	}
	return Pricing{
		DeliveryFee: decimal.NewFromFloat(deliveryFee),
		PromoCodes:  codes,
	}
}

// Quote recomputes the amounts from the line items alone; client-supplied
// totals are never consulted.
func (p Pricing) Quote(items []OrderItem, serviceType ServiceType, promoCode string) (Totals, error) {
	subtotal := decimal.Zero
	for _, item := range items {
		line := decimal.NewFromFloat(item.Price).Mul(decimal.NewFromInt(int64(item.Quantity)))
		subtotal = subtotal.Add(line)
	}

	fee := decimal.Zero
	if serviceType == ServiceTypeDelivery {
		fee = p.DeliveryFee
	}

	discount := decimal.Zero
	if code := strings.ToUpper(strings.TrimSpace(promoCode)); code != "" {
		amount, ok := p.PromoCodes[code]
		if !ok {
			return Totals{}, ValidationError("unknown promo code: %s", promoCode)
		}
		discount = decimal.Min(amount, subtotal)
	}

	total := subtotal.Add(fee).Sub(discount)

	return Totals{
		Subtotal:    toFloat(subtotal),
		DeliveryFee: toFloat(fee),
		Discount:    toFloat(discount),
		Total:       toFloat(total),
	}, nil
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}
