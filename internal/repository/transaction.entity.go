package repository

import (
	"time"

	"github.com/easypay/payment-gateway/internal/model"
	"github.com/shopspring/decimal"
)

type TransactionEntity struct {
	ID            int64           `db:"id"              gorm:"primaryKey;autoIncrement;column:id"`
	TranID        string          `db:"tran_id"         gorm:"column:tran_id;not null;uniqueIndex"`
	Amount        decimal.Decimal `db:"amount"          gorm:"column:amount;type:numeric(18,2);not null"`
	Currency      string          `db:"currency"        gorm:"column:currency;not null"`
	CustomerName  string          `db:"customer_name"   gorm:"column:customer_name;not null"`
	CustomerEmail string          `db:"customer_email"  gorm:"column:customer_email;not null"`
	CustomerPhone string          `db:"customer_phone"  gorm:"column:customer_phone;not null"`
	ProductName   string          `db:"product_name"    gorm:"column:product_name"`
	Status        string          `db:"status"          gorm:"column:status;not null;index"`
	ValID         string          `db:"val_id"          gorm:"column:val_id"`
	BankTranID    string          `db:"bank_tran_id"    gorm:"column:bank_tran_id"`
	CardType      string          `db:"card_type"       gorm:"column:card_type"`
	CardIssuer    string          `db:"card_issuer"     gorm:"column:card_issuer"`
	StoreAmount   decimal.Decimal `db:"store_amount"    gorm:"column:store_amount;type:numeric(18,2)"`
	FailureReason string          `db:"failure_reason"  gorm:"column:failure_reason"`
	SessionKey    string          `db:"session_key"     gorm:"column:session_key"`
	IPNReceived   bool            `db:"ipn_received"    gorm:"column:ipn_received;not null;default:false"`
	IPNReceivedAt *time.Time      `db:"ipn_received_at" gorm:"column:ipn_received_at"`
	CreatedAt     time.Time       `db:"created_at"      gorm:"column:created_at;autoCreateTime"`
	CompletedAt   *time.Time      `db:"completed_at"    gorm:"column:completed_at"`
}

func (TransactionEntity) TableName() string {
	return "payment_transactions"
}

func toTransactionEntity(m *model.Transaction) *TransactionEntity {
	if m == nil {
		return nil
	}
	return &TransactionEntity{
		ID:            m.ID,
		TranID:        m.TranID,
		Amount:        m.Amount,
		Currency:      m.Currency,
		CustomerName:  m.Customer.Name,
		CustomerEmail: m.Customer.Email,
		CustomerPhone: m.Customer.Phone,
		ProductName:   m.ProductName,
		Status:        string(m.Status),
		ValID:         m.ValID,
		BankTranID:    m.BankTranID,
		CardType:      m.CardType,
		CardIssuer:    m.CardIssuer,
		StoreAmount:   m.StoreAmount,
		FailureReason: m.FailureReason,
		SessionKey:    m.SessionKey,
		IPNReceived:   m.IPNReceived,
		IPNReceivedAt: m.IPNReceivedAt,
		CreatedAt:     m.CreatedAt,
		CompletedAt:   m.CompletedAt,
	}
}

func toTransactionModel(e *TransactionEntity) *model.Transaction {
	if e == nil {
		return nil
	}
	return &model.Transaction{
		ID:     e.ID,
		TranID: e.TranID,
		Amount: e.Amount,
		Customer: model.Customer{
			Name:  e.CustomerName,
			Email: e.CustomerEmail,
			Phone: e.CustomerPhone,
		},
		Currency:      e.Currency,
		ProductName:   e.ProductName,
		Status:        model.TransactionStatus(e.Status),
		ValID:         e.ValID,
		BankTranID:    e.BankTranID,
		CardType:      e.CardType,
		CardIssuer:    e.CardIssuer,
		StoreAmount:   e.StoreAmount,
		FailureReason: e.FailureReason,
		SessionKey:    e.SessionKey,
		IPNReceived:   e.IPNReceived,
		IPNReceivedAt: e.IPNReceivedAt,
		CreatedAt:     e.CreatedAt,
		CompletedAt:   e.CompletedAt,
	}
}
