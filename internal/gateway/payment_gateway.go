package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// PaymentGateway external mobile money provider interface
type PaymentGateway interface {
	InitiateCharge(ctx context.Context, request ChargeRequest) (*ChargeResponse, error)
	QueryStatus(ctx context.Context, checkoutRequestID string) (*StatusResponse, error)
}

type ChargeRequest struct {
	Phone            string  `json:"phone"`
	Amount           float64 `json:"amount"`
	AccountReference string  `json:"account_reference"`
	Description      string  `json:"description"`
}

type ChargeResponse struct {
	CheckoutRequestID   string `json:"checkout_request_id"`
	MerchantRequestID   string `json:"merchant_request_id"`
	ResponseDescription string `json:"response_description"`
	CustomerMessage     string `json:"customer_message"`
}

// StatusResponse is a poll result. Processing means the payer has not
// answered the prompt yet and ResultCode carries no outcome.
type StatusResponse struct {
	CheckoutRequestID string `json:"checkout_request_id"`
	ResultCode        int    `json:"result_code"`
	ResultDesc        string `json:"result_desc"`
	Processing        bool   `json:"processing"`
}

// flexInt accepts both 0 and "0"; Daraja is not consistent.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	if raw == "" || raw == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		var asFloat float64
		if jsonErr := json.Unmarshal([]byte(raw), &asFloat); jsonErr != nil {
			return fmt.Errorf("invalid integer %s", data)
		}
		v = int(asFloat)
	}
	*f = flexInt(v)
	return nil
}
