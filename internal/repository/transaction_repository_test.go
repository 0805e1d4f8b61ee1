package repository

import (
	"context"
	"testing"

	"github.com/easypay/payment-gateway/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPendingTransaction(tranID string) *model.Transaction {
	return &model.Transaction{
		TranID:   tranID,
		Amount:   decimal.NewFromFloat(500.00),
		Currency: "BDT",
		Customer: model.Customer{
			Name:  "Jamil Ahmed",
			Email: "jamil@example.com",
			Phone: "01712345678",
		},
		ProductName: "Subscription",
		Status:      model.StatusPending,
	}
}

func TestTransactionRepository_CreateAndGet(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewTransactionRepository(db)
	ctx := context.Background()

	t.Run("create and fetch by tran_id", func(t *testing.T) {
		created, err := repo.Create(ctx, newPendingTransaction("TXN-1"))
		require.NoError(t, err)
		assert.NotZero(t, created.ID)

		got, err := repo.GetByTranID(ctx, "TXN-1")
		require.NoError(t, err)
		assert.Equal(t, "TXN-1", got.TranID)
		assert.Equal(t, model.StatusPending, got.Status)
		assert.Equal(t, "Jamil Ahmed", got.Customer.Name)
		assert.True(t, decimal.NewFromFloat(500.00).Equal(got.Amount))
		assert.Nil(t, got.CompletedAt)
		assert.False(t, got.IPNReceived)
	})

	t.Run("unknown tran_id returns ErrNotFound", func(t *testing.T) {
		_, err := repo.GetByTranID(ctx, "TXN-missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestTransactionRepository_SetSessionKey(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewTransactionRepository(db)
	ctx := context.Background()

	_, err := repo.Create(ctx, newPendingTransaction("TXN-1"))
	require.NoError(t, err)

	require.NoError(t, repo.SetSessionKey(ctx, "TXN-1", "SK1"))

	got, err := repo.GetByTranID(ctx, "TXN-1")
	require.NoError(t, err)
	assert.Equal(t, "SK1", got.SessionKey)
}

func TestTransactionRepository_MarkSucceeded(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewTransactionRepository(db)
	ctx := context.Background()

	enrichment := model.SuccessEnrichment{
		ValID:       "V1",
		BankTranID:  "BANK1",
		CardType:    "VISA",
		CardIssuer:  "CITY BANK",
		StoreAmount: decimal.NewFromFloat(487.50),
	}

	t.Run("pending transitions exactly once", func(t *testing.T) {
		_, err := repo.Create(ctx, newPendingTransaction("TXN-1"))
		require.NoError(t, err)

		ok, err := repo.MarkSucceeded(ctx, "TXN-1", enrichment)
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := repo.GetByTranID(ctx, "TXN-1")
		require.NoError(t, err)
		assert.Equal(t, model.StatusSucceeded, got.Status)
		assert.Equal(t, "V1", got.ValID)
		assert.Equal(t, "BANK1", got.BankTranID)
		assert.Equal(t, "VISA", got.CardType)
		require.NotNil(t, got.CompletedAt)

		// a second identical call is a no-op
		firstCompleted := *got.CompletedAt
		ok, err = repo.MarkSucceeded(ctx, "TXN-1", model.SuccessEnrichment{ValID: "V2"})
		require.NoError(t, err)
		assert.False(t, ok)

		got, err = repo.GetByTranID(ctx, "TXN-1")
		require.NoError(t, err)
		assert.Equal(t, "V1", got.ValID)
		assert.Equal(t, firstCompleted.Unix(), got.CompletedAt.Unix())
	})

	t.Run("terminal record is not overwritten", func(t *testing.T) {
		_, err := repo.Create(ctx, newPendingTransaction("TXN-2"))
		require.NoError(t, err)

		ok, err := repo.MarkFailed(ctx, "TXN-2", "card_declined")
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = repo.MarkSucceeded(ctx, "TXN-2", enrichment)
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := repo.GetByTranID(ctx, "TXN-2")
		require.NoError(t, err)
		assert.Equal(t, model.StatusFailed, got.Status)
	})

	t.Run("unknown tran_id affects nothing", func(t *testing.T) {
		ok, err := repo.MarkSucceeded(ctx, "TXN-missing", enrichment)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestTransactionRepository_MarkFailedAndCancelled(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewTransactionRepository(db)
	ctx := context.Background()

	t.Run("fail then cancel is a no-op", func(t *testing.T) {
		_, err := repo.Create(ctx, newPendingTransaction("TXN-1"))
		require.NoError(t, err)

		ok, err := repo.MarkFailed(ctx, "TXN-1", "card_declined")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.MarkCancelled(ctx, "TXN-1")
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := repo.GetByTranID(ctx, "TXN-1")
		require.NoError(t, err)
		assert.Equal(t, model.StatusFailed, got.Status)
		assert.Equal(t, "card_declined", got.FailureReason)
	})

	t.Run("cancel a pending record", func(t *testing.T) {
		_, err := repo.Create(ctx, newPendingTransaction("TXN-2"))
		require.NoError(t, err)

		ok, err := repo.MarkCancelled(ctx, "TXN-2")
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := repo.GetByTranID(ctx, "TXN-2")
		require.NoError(t, err)
		assert.Equal(t, model.StatusCancelled, got.Status)
		assert.NotNil(t, got.CompletedAt)
	})
}

func TestTransactionRepository_MarkIPNReceived(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewTransactionRepository(db)
	ctx := context.Background()

	_, err := repo.Create(ctx, newPendingTransaction("TXN-1"))
	require.NoError(t, err)

	ok, err := repo.MarkIPNReceived(ctx, "TXN-1")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.GetByTranID(ctx, "TXN-1")
	require.NoError(t, err)
	assert.True(t, got.IPNReceived)
	require.NotNil(t, got.IPNReceivedAt)
	first := *got.IPNReceivedAt

	// replayed notification does not move the stamp
	ok, err = repo.MarkIPNReceived(ctx, "TXN-1")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err = repo.GetByTranID(ctx, "TXN-1")
	require.NoError(t, err)
	assert.Equal(t, first.Unix(), got.IPNReceivedAt.Unix())

	// the stamp is orthogonal to the lifecycle state
	assert.Equal(t, model.StatusPending, got.Status)
}
