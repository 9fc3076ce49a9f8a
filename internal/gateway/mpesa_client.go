package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/hezron-sketch/cafe-backend/internal/domain"
	"github.com/sirupsen/logrus"
)

const (
	tokenPath = "/oauth/v1/generate?grant_type=client_credentials"
	stkPath   = "/mpesa/stkpush/v1/processrequest"
	queryPath = "/mpesa/stkpushquery/v1/query"

	transactionType = "CustomerPayBillOnline"
	timestampLayout = "20060102150405"

	// stillProcessingCode is returned by the query endpoint while the
	// payer has not answered the prompt.
	stillProcessingCode = "500.001.1001"

	tokenRefreshMargin = 60 * time.Second
	maxAccountRefLen   = 12
)

var eastAfrica = time.FixedZone("EAT", 3*60*60)

type MpesaConfig struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	Passkey        string
	CallbackURL    string
	Timeout        time.Duration
}

// MpesaClient talks to the Safaricom Daraja STK push API.
type MpesaClient struct {
	cfg MpesaConfig
	now func() time.Time

	mu        sync.RWMutex
	token     string
	expiresAt time.Time
}

func NewMpesaClient(cfg MpesaConfig) *MpesaClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &MpesaClient{cfg: cfg, now: time.Now}
}

type tokenResponse struct {
	AccessToken string  `json:"access_token"`
	ExpiresIn   flexInt `json:"expires_in"`
}

type darajaError struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

type stkQueryRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

type stkQueryResponse struct {
	ResponseCode      string  `json:"ResponseCode"`
	CheckoutRequestID string  `json:"CheckoutRequestID"`
	ResultCode        flexInt `json:"ResultCode"`
	ResultDesc        string  `json:"ResultDesc"`
}

func (c *MpesaClient) InitiateCharge(ctx context.Context, request ChargeRequest) (*ChargeResponse, error) {
	amount := int64(math.Round(request.Amount))
	if amount < 1 {
		return nil, domain.GatewayError(nil, "amount %.2f is below the minimum charge", request.Amount)
	}
	phone, err := domain.NormalizePhone(request.Phone)
	if err != nil {
		return nil, domain.GatewayError(err, "invalid payer phone number")
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	password, timestamp := c.password()
	reference := request.AccountReference
	if len(reference) > maxAccountRefLen {
		reference = reference[:maxAccountRefLen]
	}
	description := request.Description
	if description == "" {
		description = "Cafe order payment"
	}

	payload := stkPushRequest{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          password,
		Timestamp:         timestamp,
		TransactionType:   transactionType,
		Amount:            amount,
		PartyA:            phone,
		PartyB:            c.cfg.ShortCode,
		PhoneNumber:       phone,
		CallBackURL:       c.cfg.CallbackURL,
		AccountReference:  reference,
		TransactionDesc:   description,
	}

	code, body, err := c.post(ctx, stkPath, token, payload)
	if err != nil {
		return nil, domain.GatewayError(err, "payment request failed")
	}
	if code != fiber.StatusOK {
		derr := parseDarajaError(body)
		logrus.WithFields(logrus.Fields{
			"status":     code,
			"error_code": derr.ErrorCode,
			"reference":  reference,
		}).Warn("STK push rejected")
		return nil, domain.GatewayError(fmt.Errorf("status %d: %s", code, derr.ErrorMessage), "payment request rejected")
	}

	var resp stkPushResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domain.GatewayError(err, "unreadable payment response")
	}
	if resp.ResponseCode != "0" {
		return nil, domain.GatewayError(fmt.Errorf("response code %s: %s", resp.ResponseCode, resp.ResponseDescription), "payment request rejected")
	}
	if resp.CheckoutRequestID == "" {
		return nil, domain.GatewayError(nil, "payment gateway returned no checkout request id")
	}

	logrus.WithFields(logrus.Fields{
		"checkout_request_id": resp.CheckoutRequestID,
		"reference":           reference,
		"amount":              amount,
	}).Info("STK push accepted")

	return &ChargeResponse{
		CheckoutRequestID:   resp.CheckoutRequestID,
		MerchantRequestID:   resp.MerchantRequestID,
		ResponseDescription: resp.ResponseDescription,
		CustomerMessage:     resp.CustomerMessage,
	}, nil
}

func (c *MpesaClient) QueryStatus(ctx context.Context, checkoutRequestID string) (*StatusResponse, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	password, timestamp := c.password()
	payload := stkQueryRequest{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          password,
		Timestamp:         timestamp,
		CheckoutRequestID: checkoutRequestID,
	}

	code, body, err := c.post(ctx, queryPath, token, payload)
	if err != nil {
		return nil, domain.GatewayError(err, "payment status query failed")
	}
	if code != fiber.StatusOK {
		derr := parseDarajaError(body)
		if derr.ErrorCode == stillProcessingCode {
			return &StatusResponse{
				CheckoutRequestID: checkoutRequestID,
				ResultDesc:        derr.ErrorMessage,
				Processing:        true,
			}, nil
		}
		return nil, domain.GatewayError(fmt.Errorf("status %d: %s", code, derr.ErrorMessage), "payment status query rejected")
	}

	var resp stkQueryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domain.GatewayError(err, "unreadable payment status response")
	}

	return &StatusResponse{
		CheckoutRequestID: checkoutRequestID,
		ResultCode:        int(resp.ResultCode),
		ResultDesc:        resp.ResultDesc,
	}, nil
}

// accessToken returns the cached OAuth token, refreshing it shortly
// before expiry. Concurrent refreshes are harmless.
func (c *MpesaClient) accessToken(ctx context.Context) (string, error) {
	c.mu.RLock()
	token, expiresAt := c.token, c.expiresAt
	c.mu.RUnlock()

	if token != "" && c.now().Before(expiresAt) {
		return token, nil
	}
	if err := ctx.Err(); err != nil {
		return "", domain.GatewayError(err, "payment request aborted")
	}

	agent := fiber.Get(c.cfg.BaseURL + tokenPath)
	agent.BasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)
	agent.Timeout(c.cfg.Timeout)

	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return "", domain.GatewayError(errs[0], "payment provider authentication failed")
	}
	if code != fiber.StatusOK {
		return "", domain.GatewayError(fmt.Errorf("status %d", code), "payment provider authentication failed")
	}

	var resp tokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", domain.GatewayError(err, "payment provider authentication failed")
	}
	if resp.AccessToken == "" {
		return "", domain.GatewayError(nil, "payment provider returned an empty token")
	}

	lifetime := time.Duration(resp.ExpiresIn) * time.Second
	c.mu.Lock()
	c.token = resp.AccessToken
	c.expiresAt = c.now().Add(lifetime - tokenRefreshMargin)
	c.mu.Unlock()

	return resp.AccessToken, nil
}

func (c *MpesaClient) password() (string, string) {
	timestamp := c.now().In(eastAfrica).Format(timestampLayout)
	raw := c.cfg.ShortCode + c.cfg.Passkey + timestamp
	return base64.StdEncoding.EncodeToString([]byte(raw)), timestamp
}

func (c *MpesaClient) post(ctx context.Context, path, token string, payload interface{}) (int, []byte, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("encode request: %w", err)
	}

	agent := fiber.Post(c.cfg.BaseURL + path)
	agent.Set(fiber.HeaderAuthorization, "Bearer "+token)
	agent.ContentType(fiber.MIMEApplicationJSON)
	agent.Body(data)
	agent.Timeout(c.cfg.Timeout)

	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return 0, nil, errs[0]
	}
	return code, body, nil
}

func parseDarajaError(body []byte) darajaError {
	var derr darajaError
	if err := json.Unmarshal(body, &derr); err != nil || derr.ErrorMessage == "" {
		derr.ErrorMessage = string(body)
	}
	return derr
}
