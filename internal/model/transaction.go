package model

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionStatus is the lifecycle state of a payment transaction.
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusSucceeded TransactionStatus = "succeeded"
	StatusFailed    TransactionStatus = "failed"
	StatusCancelled TransactionStatus = "cancelled"
	StatusErrored   TransactionStatus = "errored"
)

// IsTerminal reports whether no further state transition is allowed.
func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCancelled, StatusErrored:
		return true
	}
	return false
}

// Customer is the immutable customer snapshot captured at creation time.
type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type Transaction struct {
	ID            int64             `json:"-"`
	TranID        string            `json:"transaction_id"` // correlation token exchanged with the gateway
	Amount        decimal.Decimal   `json:"amount"`
	Currency      string            `json:"currency"`
	Customer      Customer          `json:"customer"`
	ProductName   string            `json:"product_name"`
	Status        TransactionStatus `json:"status"`
	ValID         string            `json:"-"` // gateway validation id, set on success only
	BankTranID    string            `json:"bank_tran_id,omitempty"`
	CardType      string            `json:"card_type,omitempty"`
	CardIssuer    string            `json:"card_issuer,omitempty"`
	StoreAmount   decimal.Decimal   `json:"-"`
	FailureReason string            `json:"failure_reason,omitempty"`
	SessionKey    string            `json:"-"`
	IPNReceived   bool              `json:"ipn_received"`
	IPNReceivedAt *time.Time        `json:"ipn_received_at,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
}

// TransactionView is the public projection returned by status queries.
// Gateway credentials, session keys and raw validation payloads never
// leave the service.
type TransactionView struct {
	TransactionID string            `json:"transaction_id"`
	Amount        decimal.Decimal   `json:"amount"`
	Currency      string            `json:"currency"`
	Status        TransactionStatus `json:"status"`
	CustomerName  string            `json:"customer_name"`
	CustomerEmail string            `json:"customer_email"`
	BankTranID    string            `json:"bank_tran_id,omitempty"`
	CardType      string            `json:"card_type,omitempty"`
	FailureReason string            `json:"failure_reason,omitempty"`
	IPNReceived   bool              `json:"ipn_received"`
	CreatedAt     time.Time         `json:"created_at"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
}

func (t *Transaction) View() TransactionView {
	return TransactionView{
		TransactionID: t.TranID,
		Amount:        t.Amount,
		Currency:      t.Currency,
		Status:        t.Status,
		CustomerName:  t.Customer.Name,
		CustomerEmail: t.Customer.Email,
		BankTranID:    t.BankTranID,
		CardType:      t.CardType,
		FailureReason: t.FailureReason,
		IPNReceived:   t.IPNReceived,
		CreatedAt:     t.CreatedAt,
		CompletedAt:   t.CompletedAt,
	}
}

// PaymentCreateRequest is the input for initiating a payment session.
type PaymentCreateRequest struct {
	Amount        decimal.Decimal
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	ProductName   string
}

func (p PaymentCreateRequest) Validate() error {
	if !p.Amount.IsPositive() {
		return errors.New("amount must be greater than zero")
	}
	if strings.TrimSpace(p.CustomerName) == "" {
		return errors.New("customer_name is required")
	}
	if strings.TrimSpace(p.CustomerEmail) == "" {
		return errors.New("customer_email is required")
	}
	if strings.TrimSpace(p.CustomerPhone) == "" {
		return errors.New("customer_phone is required")
	}
	return nil
}

// SuccessEnrichment carries the gateway-reported payment details that are
// persisted together with the pending -> succeeded transition.
type SuccessEnrichment struct {
	ValID       string
	BankTranID  string
	CardType    string
	CardIssuer  string
	StoreAmount decimal.Decimal
}
