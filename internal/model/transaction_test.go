package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestPaymentCreateRequest_Validate(t *testing.T) {
	valid := PaymentCreateRequest{
		Amount:        decimal.NewFromFloat(500.00),
		CustomerName:  "Jamil Ahmed",
		CustomerEmail: "jamil@example.com",
		CustomerPhone: "01712345678",
		ProductName:   "Subscription",
	}

	t.Run("valid request", func(t *testing.T) {
		assert.NoError(t, valid.Validate())
	})

	t.Run("zero amount", func(t *testing.T) {
		p := valid
		p.Amount = decimal.Zero
		assert.Error(t, p.Validate())
	})

	t.Run("negative amount", func(t *testing.T) {
		p := valid
		p.Amount = decimal.NewFromInt(-10)
		assert.Error(t, p.Validate())
	})

	t.Run("empty customer name", func(t *testing.T) {
		p := valid
		p.CustomerName = "   "
		assert.Error(t, p.Validate())
	})

	t.Run("empty customer email", func(t *testing.T) {
		p := valid
		p.CustomerEmail = ""
		assert.Error(t, p.Validate())
	})

	t.Run("empty customer phone", func(t *testing.T) {
		p := valid
		p.CustomerPhone = ""
		assert.Error(t, p.Validate())
	})
}

func TestTransactionStatus_IsTerminal(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	assert.True(t, StatusSucceeded.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.True(t, StatusErrored.IsTerminal())
}

func TestTransaction_View(t *testing.T) {
	now := time.Now()
	txn := &Transaction{
		TranID:      "TXN-abc",
		Amount:      decimal.NewFromFloat(500.00),
		Currency:    "BDT",
		Customer:    Customer{Name: "Jamil", Email: "jamil@example.com", Phone: "0171"},
		Status:      StatusSucceeded,
		ValID:       "V1",
		SessionKey:  "SESSION-SECRET",
		BankTranID:  "BANK1",
		CardType:    "VISA",
		IPNReceived: true,
		CreatedAt:   now,
		CompletedAt: &now,
	}

	v := txn.View()
	assert.Equal(t, "TXN-abc", v.TransactionID)
	assert.Equal(t, StatusSucceeded, v.Status)
	assert.Equal(t, "BANK1", v.BankTranID)
	assert.True(t, v.IPNReceived)
	assert.True(t, decimal.NewFromFloat(500.00).Equal(v.Amount))
}
