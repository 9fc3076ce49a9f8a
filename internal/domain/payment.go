package domain

import "time"

// PaymentResult is a gateway outcome for one checkout request, whether it
// arrived by webhook or by status query.
type PaymentResult struct {
	CheckoutRequestID string     `json:"checkout_request_id"`
	MerchantRequestID string     `json:"merchant_request_id,omitempty"`
	ResultCode        int        `json:"result_code"`
	ResultDesc        string     `json:"result_desc"`
	TransactionID     string     `json:"transaction_id,omitempty"`
	Amount            float64    `json:"amount,omitempty"`
	Phone             string     `json:"phone,omitempty"`
	TransactionDate   *time.Time `json:"transaction_date,omitempty"`
}

func (r PaymentResult) Succeeded() bool {
	return r.ResultCode == ResultCodeSuccess
}

// PaymentCheck is what a synchronous status poll reports back.
type PaymentCheck struct {
	ResultCode  int    `json:"result_code"`
	ResultDesc  string `json:"result_desc"`
	Processing  bool   `json:"processing"`
	OrderStatus string `json:"order_status"`
	Payment     string `json:"payment_status"`
}
