package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"

	"github.com/easypay/payment-gateway/internal/model"
	"github.com/easypay/payment-gateway/internal/services"
	xhttp "github.com/easypay/payment-gateway/pkg/http"
	"github.com/easypay/payment-gateway/pkg/logger"
	"github.com/fasthttp/router"
	"github.com/shopspring/decimal"
)

type PaymentService interface {
	Create(ctx context.Context, p model.PaymentCreateRequest) (*services.CreateResult, error)
	ReconcileSuccess(ctx context.Context, tranID, valID string, claimedAmount decimal.Decimal) (model.TransactionStatus, error)
	ReconcileFail(ctx context.Context, tranID, reason string) (model.TransactionStatus, error)
	ReconcileCancel(ctx context.Context, tranID string) (model.TransactionStatus, error)
	ReconcileNotification(ctx context.Context, tranID, valID string, claimedAmount decimal.Decimal) (bool, error)
	GetStatus(ctx context.Context, tranID string) (model.TransactionView, error)
}

type PaymentHandler struct {
	svc               PaymentService
	clientRedirectURL string
}

func RegisterPaymentRoutes(e *router.Group, h *PaymentHandler) {
	e.POST("/payment/initiate", h.InitiatePayment)
	e.POST("/payment/success", h.PaymentSuccess)
	e.POST("/payment/fail", h.PaymentFail)
	e.POST("/payment/cancel", h.PaymentCancel)
	e.POST("/payment/ipn", h.PaymentIPN)
	e.GET("/payment/status/{transactionId}", h.GetPaymentStatus)
}

func NewPaymentHandler(paymentService PaymentService, clientRedirectURL string) *PaymentHandler {
	return &PaymentHandler{
		svc:               paymentService,
		clientRedirectURL: strings.TrimRight(clientRedirectURL, "/"),
	}
}

type initiatePaymentRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	CustomerName  string          `json:"customerName"`
	CustomerEmail string          `json:"customerEmail"`
	CustomerPhone string          `json:"customerPhone"`
	ProductName   string          `json:"productName"`
}

type initiatePaymentResponse struct {
	Status        string `json:"status"`
	GatewayURL    string `json:"gatewayUrl"`
	TransactionID string `json:"transactionId"`
	SessionKey    string `json:"sessionKey"`
}

type statusResponse struct {
	Status      string                `json:"status"`
	Transaction model.TransactionView `json:"transaction"`
}

/* --------------------------------- Routes ----------------------------------- */

func (h *PaymentHandler) InitiatePayment(ctx *xhttp.RequestCtx) {
	var req initiatePaymentRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}

	result, err := h.svc.Create(ctx, model.PaymentCreateRequest{
		Amount:        req.Amount,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		CustomerPhone: req.CustomerPhone,
		ProductName:   req.ProductName,
	})
	if err != nil {
		var rejected *services.GatewayRejectedError
		switch {
		case errors.Is(err, services.ErrInvalidRequest):
			writeError(ctx, 400, err.Error())
		case errors.As(err, &rejected):
			writeError(ctx, 400, "payment session rejected: "+rejected.Reason)
		case errors.Is(err, services.ErrGatewayUnreachable):
			writeError(ctx, 500, "payment gateway unreachable")
		default:
			writeError(ctx, 500, "failed to initiate payment")
		}
		return
	}

	writeJSON(ctx, 200, initiatePaymentResponse{
		Status:        "success",
		GatewayURL:    result.GatewayURL,
		TransactionID: result.Transaction.TranID,
		SessionKey:    result.SessionKey,
	})
}

// PaymentSuccess is the browser return leg of a completed checkout. The
// gateway posts the claimed outcome here; the service re-checks it against
// the validator before anything is trusted.
func (h *PaymentHandler) PaymentSuccess(ctx *xhttp.RequestCtx) {
	tranID := form(ctx, "tran_id")
	valID := form(ctx, "val_id")
	amount := formAmount(ctx, "amount")

	if tranID == "" || valID == "" {
		h.redirectClient(ctx, url.Values{"status": {"error"}, "reason": {"missing_parameters"}})
		return
	}

	status, err := h.svc.ReconcileSuccess(ctx, tranID, valID, amount)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			h.redirectClient(ctx, url.Values{"status": {"failed"}, "tran_id": {tranID}, "reason": {"unknown_transaction"}})
			return
		}
		logger.Error("success callback failed", "tran_id", tranID, "error", err)
		h.redirectClient(ctx, url.Values{"status": {"error"}, "tran_id": {tranID}})
		return
	}

	h.redirectOutcome(ctx, status, tranID, amount, "validation_failed")
}

func (h *PaymentHandler) PaymentFail(ctx *xhttp.RequestCtx) {
	tranID := form(ctx, "tran_id")
	reason := form(ctx, "error")

	if tranID == "" {
		h.redirectClient(ctx, url.Values{"status": {"error"}, "reason": {"missing_parameters"}})
		return
	}

	status, err := h.svc.ReconcileFail(ctx, tranID, reason)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			h.redirectClient(ctx, url.Values{"status": {"failed"}, "tran_id": {tranID}, "reason": {"unknown_transaction"}})
			return
		}
		logger.Error("fail callback failed", "tran_id", tranID, "error", err)
		h.redirectClient(ctx, url.Values{"status": {"error"}, "tran_id": {tranID}})
		return
	}

	if reason == "" {
		reason = "payment_failed"
	}
	h.redirectOutcome(ctx, status, tranID, formAmount(ctx, "amount"), reason)
}

func (h *PaymentHandler) PaymentCancel(ctx *xhttp.RequestCtx) {
	tranID := form(ctx, "tran_id")

	if tranID == "" {
		h.redirectClient(ctx, url.Values{"status": {"error"}, "reason": {"missing_parameters"}})
		return
	}

	status, err := h.svc.ReconcileCancel(ctx, tranID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			h.redirectClient(ctx, url.Values{"status": {"failed"}, "tran_id": {tranID}, "reason": {"unknown_transaction"}})
			return
		}
		logger.Error("cancel callback failed", "tran_id", tranID, "error", err)
		h.redirectClient(ctx, url.Values{"status": {"error"}, "tran_id": {tranID}})
		return
	}

	h.redirectOutcome(ctx, status, tranID, formAmount(ctx, "amount"), "payment_failed")
}

// PaymentIPN is the server-to-server notification leg. The gateway only
// wants a bare acknowledgement, not a redirect.
func (h *PaymentHandler) PaymentIPN(ctx *xhttp.RequestCtx) {
	tranID := form(ctx, "tran_id")
	valID := form(ctx, "val_id")
	amount := formAmount(ctx, "amount")

	if tranID == "" || valID == "" {
		writeText(ctx, 400, "Invalid payment")
		return
	}

	ok, err := h.svc.ReconcileNotification(ctx, tranID, valID, amount)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			writeText(ctx, 400, "Invalid payment")
			return
		}
		logger.Error("notification processing failed", "tran_id", tranID, "error", err)
		writeText(ctx, 500, "IPN processing error")
		return
	}
	if !ok {
		writeText(ctx, 400, "Invalid payment")
		return
	}
	writeText(ctx, 200, "IPN processed successfully")
}

func (h *PaymentHandler) GetPaymentStatus(ctx *xhttp.RequestCtx) {
	tranID, _ := ctx.UserValue("transactionId").(string)

	view, err := h.svc.GetStatus(ctx, tranID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			writeError(ctx, 404, "transaction not found")
			return
		}
		writeError(ctx, 500, "failed to fetch transaction")
		return
	}

	writeJSON(ctx, 200, statusResponse{Status: "success", Transaction: view})
}

/* -------------------------------- Helpers ------------------------------------ */

// redirectOutcome maps a reconciled lifecycle state onto the query the
// client app expects on its return URL.
func (h *PaymentHandler) redirectOutcome(ctx *xhttp.RequestCtx, status model.TransactionStatus, tranID string, amount decimal.Decimal, failReason string) {
	switch status {
	case model.StatusSucceeded:
		params := url.Values{"status": {"success"}, "tran_id": {tranID}}
		if !amount.IsZero() {
			params.Set("amount", amount.StringFixed(2))
		}
		h.redirectClient(ctx, params)
	case model.StatusCancelled:
		h.redirectClient(ctx, url.Values{"status": {"cancelled"}, "tran_id": {tranID}})
	case model.StatusFailed, model.StatusErrored:
		h.redirectClient(ctx, url.Values{"status": {"failed"}, "tran_id": {tranID}, "reason": {failReason}})
	default:
		h.redirectClient(ctx, url.Values{"status": {"pending"}, "tran_id": {tranID}})
	}
}

func (h *PaymentHandler) redirectClient(ctx *xhttp.RequestCtx, params url.Values) {
	ctx.Redirect(h.clientRedirectURL+"?"+params.Encode(), 302)
}

func readJSON(ctx *xhttp.RequestCtx, dst any) error {
	body := ctx.PostBody()
	return json.Unmarshal(body, dst)
}

func writeJSON(ctx *xhttp.RequestCtx, status int, v any) {
	b, _ := json.Marshal(v)
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.Response.SetStatusCode(status)
	ctx.Response.SetBodyRaw(b)
}

func writeError(ctx *xhttp.RequestCtx, status int, msg string) {
	writeJSON(ctx, status, map[string]string{"status": "failed", "message": msg})
}

func writeText(ctx *xhttp.RequestCtx, status int, msg string) {
	ctx.Response.Header.Set("Content-Type", "text/plain; charset=utf-8")
	ctx.Response.SetStatusCode(status)
	ctx.Response.SetBodyString(msg)
}

func form(ctx *xhttp.RequestCtx, key string) string {
	return string(ctx.PostArgs().Peek(key))
}

func formAmount(ctx *xhttp.RequestCtx, key string) decimal.Decimal {
	v := form(ctx, key)
	if v == "" {
		return decimal.Zero
	}
	amount, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero
	}
	return amount
}
