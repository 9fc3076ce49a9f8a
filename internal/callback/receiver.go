package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/hezron-sketch/cafe-backend/internal/domain"
	"github.com/sirupsen/logrus"
)

var ErrMalformed = errors.New("malformed payment callback")

const transactionDateLayout = "20060102150405"

var eastAfrica = time.FixedZone("EAT", 3*60*60)

type envelope struct {
	Body *struct {
		StkCallback *stkCallback `json:"stkCallback"`
	} `json:"Body"`
}

type stkCallback struct {
	MerchantRequestID string       `json:"MerchantRequestID"`
	CheckoutRequestID string       `json:"CheckoutRequestID"`
	ResultCode        *json.Number `json:"ResultCode"`
	ResultDesc        string       `json:"ResultDesc"`
	CallbackMetadata  *struct {
		Item []metadataItem `json:"Item"`
	} `json:"CallbackMetadata"`
}

type metadataItem struct {
	Name  string      `json:"Name"`
	Value interface{} `json:"Value"`
}

type valueKind int

const (
	kindNumber valueKind = iota + 1
	kindText
)

// metaValue is one CallbackMetadata entry. Daraja sends numbers for
// phone and date, so every field is read through here.
type metaValue struct {
	kind   valueKind
	number json.Number
	text   string
}

func (v metaValue) String() string {
	if v.kind == kindNumber {
		return v.number.String()
	}
	return v.text
}

func (v metaValue) Float() (float64, bool) {
	switch v.kind {
	case kindNumber:
		f, err := v.number.Float64()
		return f, err == nil
	case kindText:
		f, err := json.Number(strings.TrimSpace(v.text)).Float64()
		return f, err == nil
	}
	return 0, false
}

func foldMetadata(items []metadataItem) map[string]metaValue {
	table := make(map[string]metaValue, len(items))
	for _, item := range items {
		switch value := item.Value.(type) {
		case json.Number:
			table[item.Name] = metaValue{kind: kindNumber, number: value}
		case string:
			table[item.Name] = metaValue{kind: kindText, text: value}
		}
	}
	return table
}

// Parse turns a raw STK callback body into a PaymentResult. Structural
// problems are reported as ErrMalformed.
func Parse(body []byte) (domain.PaymentResult, error) {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()

	var env envelope
	if err := decoder.Decode(&env); err != nil {
		return domain.PaymentResult{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Body == nil || env.Body.StkCallback == nil {
		return domain.PaymentResult{}, fmt.Errorf("%w: missing Body.stkCallback", ErrMalformed)
	}

	cb := env.Body.StkCallback
	if cb.CheckoutRequestID == "" {
		return domain.PaymentResult{}, fmt.Errorf("%w: missing CheckoutRequestID", ErrMalformed)
	}
	if cb.ResultCode == nil {
		return domain.PaymentResult{}, fmt.Errorf("%w: missing ResultCode", ErrMalformed)
	}
	code, err := cb.ResultCode.Int64()
	if err != nil {
		return domain.PaymentResult{}, fmt.Errorf("%w: ResultCode %q is not an integer", ErrMalformed, cb.ResultCode.String())
	}

	result := domain.PaymentResult{
		CheckoutRequestID: cb.CheckoutRequestID,
		MerchantRequestID: cb.MerchantRequestID,
		ResultCode:        int(code),
		ResultDesc:        cb.ResultDesc,
	}

	var meta map[string]metaValue
	if cb.CallbackMetadata != nil {
		meta = foldMetadata(cb.CallbackMetadata.Item)
	}

	if receipt, ok := meta["MpesaReceiptNumber"]; ok {
		result.TransactionID = receipt.String()
	}
	if result.Succeeded() && result.TransactionID == "" {
		return domain.PaymentResult{}, fmt.Errorf("%w: successful callback without MpesaReceiptNumber", ErrMalformed)
	}

	if amount, ok := meta["Amount"]; ok {
		if f, ok := amount.Float(); ok {
			result.Amount = f
		}
	}
	if phone, ok := meta["PhoneNumber"]; ok {
		result.Phone = phone.String()
	}
	if date, ok := meta["TransactionDate"]; ok {
		if at, err := time.ParseInLocation(transactionDateLayout, date.String(), eastAfrica); err == nil {
			at = at.UTC()
			result.TransactionDate = &at
		}
	}

	return result, nil
}

// PaymentApplier applies a provider result to its order and reports
// whether the result settled it or was a replay.
type PaymentApplier interface {
	SettlePayment(ctx context.Context, result domain.PaymentResult) (*domain.Order, bool, error)
}

// Receiver handles provider callbacks. It never fails the request: every
// problem is handed to the AnomalyRecorder and the caller acknowledges.
type Receiver struct {
	applier   PaymentApplier
	anomalies AnomalyRecorder
}

func NewReceiver(applier PaymentApplier, anomalies AnomalyRecorder) *Receiver {
	return &Receiver{applier: applier, anomalies: anomalies}
}

func (r *Receiver) Handle(ctx context.Context, body []byte) (*domain.Order, error) {
	result, err := Parse(body)
	if err != nil {
		r.anomalies.Record(ctx, Anomaly{Reason: ReasonMalformed, Err: err, Body: body})
		return nil, err
	}

	order, settled, err := r.applier.SettlePayment(ctx, result)
	if err != nil {
		reason := ReasonApplyFailed
		if errors.Is(err, domain.ErrNotFound) {
			reason = ReasonUnknownCheckout
		}
		r.anomalies.Record(ctx, Anomaly{
			Reason:            reason,
			CheckoutRequestID: result.CheckoutRequestID,
			Err:               err,
			Body:              body,
		})
		return nil, err
	}

	if settled && result.Succeeded() && result.Amount > 0 && result.Amount != math.Round(order.TotalAmount) {
		r.anomalies.Record(ctx, Anomaly{
			Reason:            ReasonAmountMismatch,
			CheckoutRequestID: result.CheckoutRequestID,
			Err:               fmt.Errorf("paid %.2f, order total %.2f", result.Amount, order.TotalAmount),
		})
	}

	logrus.WithFields(logrus.Fields{
		"order_id":            order.ID,
		"checkout_request_id": result.CheckoutRequestID,
		"result_code":         result.ResultCode,
		"status":              order.Status,
		"payment_status":      order.PaymentStatus,
		"replay":              !settled,
	}).Info("Payment callback applied")

	return order, nil
}
