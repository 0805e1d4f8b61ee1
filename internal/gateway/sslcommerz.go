package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/easypay/payment-gateway/pkg/logger"
	"github.com/easypay/payment-gateway/pkg/prom"
	"github.com/shopspring/decimal"
	"github.com/valyala/fasthttp"
)

var (
	// ErrSessionRejected is returned when the gateway answers the session
	// creation call with a non-SUCCESS status. The raw payload is kept on
	// the response for diagnostics.
	ErrSessionRejected = errors.New("gateway rejected session creation")
)

const (
	sandboxBaseURL = "https://sandbox.sslcommerz.com"
	liveBaseURL    = "https://securepay.sslcommerz.com"

	sessionPath   = "/gwprocess/v4/api.php"
	validatorPath = "/validator/api/validationserverAPI.php"
)

// ValidationStatus is the normalized outcome of a validation call.
type ValidationStatus string

const (
	ValidationValid          ValidationStatus = "VALID"
	ValidationInvalid        ValidationStatus = "INVALID"
	ValidationTransportError ValidationStatus = "TRANSPORT_ERROR"
)

type Config struct {
	StoreID       string
	StorePassword string
	Live          bool
	Timeout       time.Duration
	MaxConns      int
}

// SessionRequest is the deterministic field mapping sent to the gateway when
// a checkout session is created. Total and product amount are always equal,
// shipping/category/profile are fixed for this deployment.
type SessionRequest struct {
	TranID        string
	Amount        decimal.Decimal
	Currency      string
	ProductName   string
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	SuccessURL    string
	FailURL       string
	CancelURL     string
	IPNURL        string
}

type SessionResponse struct {
	Status         string `json:"status"`
	GatewayPageURL string `json:"GatewayPageURL"`
	SessionKey     string `json:"sessionkey"`
	FailedReason   string `json:"failedreason"`

	// Raw is the unparsed gateway payload, surfaced to the caller on
	// rejection for diagnostics.
	Raw []byte `json:"-"`
}

// ValidationResult carries the gateway's authoritative view of a payment.
// Enrichment fields come from the validator response, never from
// browser-supplied callback data.
type ValidationResult struct {
	Status    ValidationStatus
	RawStatus string
	TranID    string
	// ValID is the id echoed by the validator; ClaimedValID is the one the
	// caller asked about. They differ only on malformed validator payloads.
	ValID        string
	ClaimedValID string
	Amount       decimal.Decimal
	StoreAmount  decimal.Decimal
	BankTranID   string
	CardType     string
	CardIssuer   string
}

type Client struct {
	config *Config
	client *fasthttp.Client
}

func NewClient(config *Config) (*Client, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if config.StoreID == "" || config.StorePassword == "" {
		return nil, errors.New("store credentials are required")
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	maxConns := config.MaxConns
	if maxConns <= 0 {
		maxConns = 100
	}

	c := &Client{
		config: config,
		client: &fasthttp.Client{
			MaxConnsPerHost:     maxConns,
			ReadTimeout:         config.Timeout,
			WriteTimeout:        config.Timeout,
			MaxIdleConnDuration: 60 * time.Second,
		},
	}

	logger.Info("gateway client initialized", "live", config.Live, "timeout", config.Timeout)

	return c, nil
}

func (c *Client) baseURL() string {
	if c.config.Live {
		return liveBaseURL
	}
	return sandboxBaseURL
}

// CreateSession performs the single outbound POST that opens a hosted
// checkout session. A transport failure is returned as an error; a gateway
// rejection is returned as ErrSessionRejected with the parsed response.
func (c *Client) CreateSession(ctx context.Context, sr *SessionRequest) (*SessionResponse, error) {
	args := fasthttp.AcquireArgs()
	defer fasthttp.ReleaseArgs(args)
	c.sessionArgs(args, sr)

	start := time.Now()
	body, err := c.doForm(ctx, "POST", c.baseURL()+sessionPath, args)
	prom.ObserveHistogramVec(prom.SystemPayment, prom.MetricGatewayRequestDuration, time.Since(start).Seconds(), "create_session")
	if err != nil {
		return nil, fmt.Errorf("session creation request failed: %w", err)
	}

	resp := &SessionResponse{Raw: body}
	if err := json.Unmarshal(body, resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session response: %w", err)
	}

	if resp.Status != "SUCCESS" {
		logger.Warn("gateway rejected session", "tran_id", sr.TranID, "status", resp.Status, "reason", resp.FailedReason)
		return resp, ErrSessionRejected
	}

	logger.Info("gateway session created", "tran_id", sr.TranID, "session_key", resp.SessionKey)

	return resp, nil
}

// Validate asks the gateway for its own record of the payment identified by
// valID. It never returns an error: transport failures are reported as
// ValidationTransportError and callers treat them as invalid (fail-closed).
func (c *Client) Validate(ctx context.Context, valID string) ValidationResult {
	args := fasthttp.AcquireArgs()
	defer fasthttp.ReleaseArgs(args)
	args.Set("val_id", valID)
	args.Set("store_id", c.config.StoreID)
	args.Set("store_passwd", c.config.StorePassword)
	args.Set("format", "json")

	url := c.baseURL() + validatorPath + "?" + string(args.QueryString())

	start := time.Now()
	body, err := c.doForm(ctx, "GET", url, nil)
	prom.ObserveHistogramVec(prom.SystemPayment, prom.MetricGatewayRequestDuration, time.Since(start).Seconds(), "validate")
	if err != nil {
		logger.Warn("validation request failed", "val_id", valID, "error", err)
		return ValidationResult{Status: ValidationTransportError, ClaimedValID: valID}
	}

	var payload struct {
		Status     string `json:"status"`
		TranID     string `json:"tran_id"`
		ValID      string `json:"val_id"`
		Amount     string `json:"amount"`
		StoreAmt   string `json:"store_amount"`
		BankTranID string `json:"bank_tran_id"`
		CardType   string `json:"card_type"`
		CardIssuer string `json:"card_issuer"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		logger.Warn("failed to unmarshal validation response", "val_id", valID, "error", err)
		return ValidationResult{Status: ValidationTransportError, ClaimedValID: valID}
	}

	result := ValidationResult{
		Status:       normalizeValidation(payload.Status),
		RawStatus:    payload.Status,
		TranID:       payload.TranID,
		ValID:        payload.ValID,
		ClaimedValID: valID,
		BankTranID:   payload.BankTranID,
		CardType:     payload.CardType,
		CardIssuer:   payload.CardIssuer,
	}
	if amt, err := decimal.NewFromString(payload.Amount); err == nil {
		result.Amount = amt
	}
	if amt, err := decimal.NewFromString(payload.StoreAmt); err == nil {
		result.StoreAmount = amt
	}
	return result
}

// sessionArgs fills the form-encoded session creation payload. Address and
// shipping fields are fixed constants of the deployment.
func (c *Client) sessionArgs(args *fasthttp.Args, sr *SessionRequest) {
	amount := sr.Amount.StringFixed(2)

	args.Set("store_id", c.config.StoreID)
	args.Set("store_passwd", c.config.StorePassword)
	args.Set("total_amount", amount)
	args.Set("currency", sr.Currency)
	args.Set("tran_id", sr.TranID)
	args.Set("success_url", sr.SuccessURL)
	args.Set("fail_url", sr.FailURL)
	args.Set("cancel_url", sr.CancelURL)
	args.Set("ipn_url", sr.IPNURL)
	args.Set("product_name", sr.ProductName)
	args.Set("product_category", "General")
	args.Set("product_profile", "general")
	args.Set("cus_name", sr.CustomerName)
	args.Set("cus_email", sr.CustomerEmail)
	args.Set("cus_add1", "Dhaka")
	args.Set("cus_city", "Dhaka")
	args.Set("cus_state", "Dhaka")
	args.Set("cus_postcode", "1000")
	args.Set("cus_country", "Bangladesh")
	args.Set("cus_phone", sr.CustomerPhone)
	args.Set("shipping_method", "NO")
	args.Set("num_of_item", "1")
	args.Set("product_amount", amount)
	args.Set("vat", "0")
	args.Set("discount_amount", "0")
	args.Set("convenience_fee", "0")
}

// doForm performs a deadline-bounded HTTP request. For POST the args are
// sent form-encoded in the body; for GET the url is expected to carry them.
func (c *Client) doForm(ctx context.Context, method, url string, args *fasthttp.Args) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(method)
	if args != nil {
		req.Header.SetContentType("application/x-www-form-urlencoded")
		req.SetBody(args.QueryString())
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.config.Timeout)
	}

	if err := c.client.DoDeadline(req, resp, deadline); err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	statusCode := resp.StatusCode()
	if statusCode != fasthttp.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d, body: %s", statusCode, resp.Body())
	}

	result := make([]byte, len(resp.Body()))
	copy(result, resp.Body())

	return result, nil
}

func normalizeValidation(status string) ValidationStatus {
	switch status {
	case "VALID", "VALIDATED":
		return ValidationValid
	default:
		return ValidationInvalid
	}
}
