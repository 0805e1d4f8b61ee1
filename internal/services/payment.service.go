package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/easypay/payment-gateway/internal/gateway"
	"github.com/easypay/payment-gateway/internal/lock"
	"github.com/easypay/payment-gateway/internal/model"
	"github.com/easypay/payment-gateway/internal/repository"
	"github.com/easypay/payment-gateway/pkg/logger"
	"github.com/easypay/payment-gateway/pkg/prom"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidRequest     = errors.New("invalid payment request")
	ErrGatewayUnreachable = errors.New("payment gateway unreachable")
	ErrNotFound           = errors.New("transaction not found")
)

// GatewayRejectedError reports a session creation the gateway refused. The
// raw gateway payload is kept for diagnostics; the transaction stays
// persisted as pending so later status queries still resolve.
type GatewayRejectedError struct {
	Reason string
	Raw    []byte
}

func (e *GatewayRejectedError) Error() string {
	return fmt.Sprintf("gateway rejected session: %s", e.Reason)
}

const (
	ReasonValidationFailed   = "validation_failed"
	ReasonGatewayUnreachable = "gateway_unreachable"
	ReasonAmountMismatch     = "amount_mismatch"
)

type TransactionRepository interface {
	Create(ctx context.Context, txn *model.Transaction) (*model.Transaction, error)
	GetByTranID(ctx context.Context, tranID string) (*model.Transaction, error)
	SetSessionKey(ctx context.Context, tranID, sessionKey string) error
	MarkSucceeded(ctx context.Context, tranID string, e model.SuccessEnrichment) (bool, error)
	MarkFailed(ctx context.Context, tranID, reason string) (bool, error)
	MarkCancelled(ctx context.Context, tranID string) (bool, error)
	MarkIPNReceived(ctx context.Context, tranID string) (bool, error)
}

type GatewayClient interface {
	CreateSession(ctx context.Context, sr *gateway.SessionRequest) (*gateway.SessionResponse, error)
	Validate(ctx context.Context, valID string) gateway.ValidationResult
}

// CallbackURLs are this service's four callback endpoints as the gateway
// sees them, derived from the public base URL.
type CallbackURLs struct {
	Success string
	Fail    string
	Cancel  string
	IPN     string
}

func NewCallbackURLs(publicBaseURL string) CallbackURLs {
	base := strings.TrimRight(publicBaseURL, "/")
	return CallbackURLs{
		Success: base + "/api/v1/payment/success",
		Fail:    base + "/api/v1/payment/fail",
		Cancel:  base + "/api/v1/payment/cancel",
		IPN:     base + "/api/v1/payment/ipn",
	}
}

// CreateResult is what the caller needs to hand the end user over to the
// hosted checkout page.
type CreateResult struct {
	Transaction *model.Transaction
	GatewayURL  string
	SessionKey  string
}

type PaymentService struct {
	repo     TransactionRepository
	gw       GatewayClient
	locker   lock.KeyLocker
	urls     CallbackURLs
	currency string
}

func NewPaymentService(repo TransactionRepository, gw GatewayClient, locker lock.KeyLocker, urls CallbackURLs, currency string) *PaymentService {
	return &PaymentService{
		repo:     repo,
		gw:       gw,
		locker:   locker,
		urls:     urls,
		currency: currency,
	}
}

// Create validates the request, persists a pending transaction and opens a
// checkout session with the gateway. The record is persisted before the
// outbound call so a rejected or unreachable session still leaves an
// auditable pending transaction behind.
func (s *PaymentService) Create(ctx context.Context, p model.PaymentCreateRequest) (*CreateResult, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, err.Error())
	}

	productName := strings.TrimSpace(p.ProductName)
	if productName == "" {
		productName = "Product"
	}

	txn := &model.Transaction{
		TranID:   newTranID(),
		Amount:   p.Amount,
		Currency: s.currency,
		Customer: model.Customer{
			Name:  strings.TrimSpace(p.CustomerName),
			Email: strings.TrimSpace(p.CustomerEmail),
			Phone: strings.TrimSpace(p.CustomerPhone),
		},
		ProductName: productName,
		Status:      model.StatusPending,
	}

	created, err := s.repo.Create(ctx, txn)
	if err != nil {
		return nil, fmt.Errorf("persist transaction: %w", err)
	}

	resp, err := s.gw.CreateSession(ctx, &gateway.SessionRequest{
		TranID:        created.TranID,
		Amount:        created.Amount,
		Currency:      created.Currency,
		ProductName:   created.ProductName,
		CustomerName:  created.Customer.Name,
		CustomerEmail: created.Customer.Email,
		CustomerPhone: created.Customer.Phone,
		SuccessURL:    s.urls.Success,
		FailURL:       s.urls.Fail,
		CancelURL:     s.urls.Cancel,
		IPNURL:        s.urls.IPN,
	})
	if err != nil {
		if errors.Is(err, gateway.ErrSessionRejected) {
			reason := ""
			var raw []byte
			if resp != nil {
				reason = resp.FailedReason
				raw = resp.Raw
			}
			return nil, &GatewayRejectedError{Reason: reason, Raw: raw}
		}
		logger.Error("session creation failed", "tran_id", created.TranID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnreachable, err)
	}

	if err := s.repo.SetSessionKey(ctx, created.TranID, resp.SessionKey); err != nil {
		logger.Warn("failed to store session key", "tran_id", created.TranID, "error", err)
	}
	created.SessionKey = resp.SessionKey

	prom.IncCounter(prom.SystemPayment, prom.MetricSessionsCreated)
	logger.Info("payment session created", "tran_id", created.TranID, "amount", created.Amount.String())

	return &CreateResult{
		Transaction: created,
		GatewayURL:  resp.GatewayPageURL,
		SessionKey:  resp.SessionKey,
	}, nil
}

// ReconcileSuccess handles the browser success redirect. The redirect is
// attacker-observable, so the claimed outcome is only trusted after the
// gateway's own validation endpoint confirms it; anything short of a
// positive answer routes to the fail path.
func (s *PaymentService) ReconcileSuccess(ctx context.Context, tranID, valID string, claimedAmount decimal.Decimal) (model.TransactionStatus, error) {
	release, err := s.locker.Acquire(ctx, tranID)
	if err != nil {
		return "", err
	}
	defer release()

	log := logger.With("tran_id", tranID, "val_id", valID)

	txn, err := s.repo.GetByTranID(ctx, tranID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// the gateway may replay callbacks for expired or foreign ids
			log.Warn("success callback for unknown transaction")
			return "", ErrNotFound
		}
		return "", err
	}

	if txn.Status.IsTerminal() {
		log.Info("success callback on terminal transaction, ignoring", "status", txn.Status)
		return txn.Status, nil
	}

	result := s.gw.Validate(ctx, valID)
	return s.applyValidation(ctx, log, txn, result, claimedAmount)
}

// ReconcileFail handles the browser fail redirect. The gateway asserts the
// failure itself, no validation call is warranted.
func (s *PaymentService) ReconcileFail(ctx context.Context, tranID, reason string) (model.TransactionStatus, error) {
	release, err := s.locker.Acquire(ctx, tranID)
	if err != nil {
		return "", err
	}
	defer release()

	txn, err := s.repo.GetByTranID(ctx, tranID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			logger.Warn("fail callback for unknown transaction", "tran_id", tranID)
			return "", ErrNotFound
		}
		return "", err
	}

	if txn.Status.IsTerminal() {
		return txn.Status, nil
	}

	if reason == "" {
		reason = "payment_failed"
	}
	ok, err := s.repo.MarkFailed(ctx, tranID, reason)
	if err != nil {
		return "", err
	}
	if ok {
		prom.AddTransition(string(model.StatusFailed))
		logger.Info("payment failed", "tran_id", tranID, "reason", reason)
		return model.StatusFailed, nil
	}
	return s.currentStatus(ctx, tranID)
}

// ReconcileCancel handles the browser cancel redirect.
func (s *PaymentService) ReconcileCancel(ctx context.Context, tranID string) (model.TransactionStatus, error) {
	release, err := s.locker.Acquire(ctx, tranID)
	if err != nil {
		return "", err
	}
	defer release()

	txn, err := s.repo.GetByTranID(ctx, tranID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			logger.Warn("cancel callback for unknown transaction", "tran_id", tranID)
			return "", ErrNotFound
		}
		return "", err
	}

	if txn.Status.IsTerminal() {
		return txn.Status, nil
	}

	ok, err := s.repo.MarkCancelled(ctx, tranID)
	if err != nil {
		return "", err
	}
	if ok {
		prom.AddTransition(string(model.StatusCancelled))
		logger.Info("payment cancelled", "tran_id", tranID)
		return model.StatusCancelled, nil
	}
	return s.currentStatus(ctx, tranID)
}

// ReconcileNotification handles the server-to-server notification. The
// notification exists to catch payments whose browser redirect never
// arrived: the audit stamp is always recorded, but the state only moves
// when the record is still pending and validation succeeds. It never
// overrides an already-decided terminal state.
func (s *PaymentService) ReconcileNotification(ctx context.Context, tranID, valID string, claimedAmount decimal.Decimal) (bool, error) {
	release, err := s.locker.Acquire(ctx, tranID)
	if err != nil {
		return false, err
	}
	defer release()

	log := logger.With("tran_id", tranID, "val_id", valID)

	txn, err := s.repo.GetByTranID(ctx, tranID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Warn("notification for unknown transaction")
			return false, ErrNotFound
		}
		return false, err
	}

	if _, err := s.repo.MarkIPNReceived(ctx, tranID); err != nil {
		return false, err
	}

	result := s.gw.Validate(ctx, valID)
	if result.Status != gateway.ValidationValid {
		log.Warn("notification validation failed", "status", result.RawStatus)
		return false, nil
	}

	if mismatch(txn.Amount, result.Amount, claimedAmount) {
		log.Warn("notification amount mismatch", "expected", txn.Amount.String())
		if txn.Status == model.StatusPending {
			if _, err := s.repo.MarkFailed(ctx, tranID, ReasonAmountMismatch); err != nil {
				return false, err
			}
			prom.AddTransition(string(model.StatusFailed))
		}
		return false, nil
	}

	if txn.Status == model.StatusPending {
		ok, err := s.repo.MarkSucceeded(ctx, tranID, enrichmentFrom(result))
		if err != nil {
			return false, err
		}
		if ok {
			prom.AddTransition(string(model.StatusSucceeded))
			log.Info("payment succeeded via notification")
		}
	}

	return true, nil
}

// GetStatus returns the public projection of a transaction.
func (s *PaymentService) GetStatus(ctx context.Context, tranID string) (model.TransactionView, error) {
	txn, err := s.repo.GetByTranID(ctx, tranID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.TransactionView{}, ErrNotFound
		}
		return model.TransactionView{}, err
	}
	return txn.View(), nil
}

// applyValidation decides the outcome of a validated success signal for a
// still-pending transaction. Invalid and transport-failed validations are
// both treated as invalid: one attempt per signal, the gateway's own replays
// provide the retry.
func (s *PaymentService) applyValidation(ctx context.Context, log *logger.ZapLogger, txn *model.Transaction, result gateway.ValidationResult, claimedAmount decimal.Decimal) (model.TransactionStatus, error) {
	tranID := txn.TranID

	if result.Status != gateway.ValidationValid {
		log.Warn("validation did not confirm payment", "status", result.RawStatus)
		return s.failPending(ctx, tranID, ReasonValidationFailed)
	}

	if mismatch(txn.Amount, result.Amount, claimedAmount) {
		log.Warn("validated amount differs from stored amount", "expected", txn.Amount.String(), "got", result.Amount.String())
		return s.failPending(ctx, tranID, ReasonAmountMismatch)
	}

	ok, err := s.repo.MarkSucceeded(ctx, tranID, enrichmentFrom(result))
	if err != nil {
		return "", err
	}
	if ok {
		prom.AddTransition(string(model.StatusSucceeded))
		log.Info("payment succeeded")
		return model.StatusSucceeded, nil
	}
	// a concurrent reconciler won the transition
	return s.currentStatus(ctx, tranID)
}

func (s *PaymentService) failPending(ctx context.Context, tranID, reason string) (model.TransactionStatus, error) {
	ok, err := s.repo.MarkFailed(ctx, tranID, reason)
	if err != nil {
		return "", err
	}
	if ok {
		prom.AddTransition(string(model.StatusFailed))
		return model.StatusFailed, nil
	}
	return s.currentStatus(ctx, tranID)
}

func (s *PaymentService) currentStatus(ctx context.Context, tranID string) (model.TransactionStatus, error) {
	txn, err := s.repo.GetByTranID(ctx, tranID)
	if err != nil {
		return "", err
	}
	return txn.Status, nil
}

// mismatch compares the stored amount against the gateway-validated amount,
// falling back to the callback-claimed amount when the validator omitted
// one. A zero claimed amount is ignored, older gateway callbacks do not
// always carry it.
func mismatch(stored, validated, claimed decimal.Decimal) bool {
	if !validated.IsZero() {
		return !stored.Equal(validated)
	}
	if !claimed.IsZero() {
		return !stored.Equal(claimed)
	}
	return false
}

func enrichmentFrom(result gateway.ValidationResult) model.SuccessEnrichment {
	valID := result.ValID
	if valID == "" {
		valID = result.ClaimedValID
	}
	return model.SuccessEnrichment{
		ValID:       valID,
		BankTranID:  result.BankTranID,
		CardType:    result.CardType,
		CardIssuer:  result.CardIssuer,
		StoreAmount: result.StoreAmount,
	}
}

func newTranID() string {
	return "TXN-" + strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))
}
