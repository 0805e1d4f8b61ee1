package services

import (
	"context"
	"sync"
	"testing"

	"github.com/easypay/payment-gateway/internal/gateway"
	"github.com/easypay/payment-gateway/internal/lock"
	"github.com/easypay/payment-gateway/internal/model"
	"github.com/easypay/payment-gateway/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockTransactionRepository struct {
	mock.Mock
}

func (m *MockTransactionRepository) Create(ctx context.Context, txn *model.Transaction) (*model.Transaction, error) {
	args := m.Called(ctx, txn)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) GetByTranID(ctx context.Context, tranID string) (*model.Transaction, error) {
	args := m.Called(ctx, tranID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) SetSessionKey(ctx context.Context, tranID, sessionKey string) error {
	args := m.Called(ctx, tranID, sessionKey)
	return args.Error(0)
}

func (m *MockTransactionRepository) MarkSucceeded(ctx context.Context, tranID string, e model.SuccessEnrichment) (bool, error) {
	args := m.Called(ctx, tranID, e)
	return args.Bool(0), args.Error(1)
}

func (m *MockTransactionRepository) MarkFailed(ctx context.Context, tranID, reason string) (bool, error) {
	args := m.Called(ctx, tranID, reason)
	return args.Bool(0), args.Error(1)
}

func (m *MockTransactionRepository) MarkCancelled(ctx context.Context, tranID string) (bool, error) {
	args := m.Called(ctx, tranID)
	return args.Bool(0), args.Error(1)
}

func (m *MockTransactionRepository) MarkIPNReceived(ctx context.Context, tranID string) (bool, error) {
	args := m.Called(ctx, tranID)
	return args.Bool(0), args.Error(1)
}

type MockGatewayClient struct {
	mock.Mock
}

func (m *MockGatewayClient) CreateSession(ctx context.Context, sr *gateway.SessionRequest) (*gateway.SessionResponse, error) {
	args := m.Called(ctx, sr)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.SessionResponse), args.Error(1)
}

func (m *MockGatewayClient) Validate(ctx context.Context, valID string) gateway.ValidationResult {
	args := m.Called(ctx, valID)
	return args.Get(0).(gateway.ValidationResult)
}

func newTestService(repo TransactionRepository, gw GatewayClient) *PaymentService {
	urls := NewCallbackURLs("https://pay.example.com")
	return NewPaymentService(repo, gw, lock.NewMutexLocker(), urls, "BDT")
}

func pendingTxn(tranID string, amount string) *model.Transaction {
	return &model.Transaction{
		ID:     1,
		TranID: tranID,
		Amount: decimal.RequireFromString(amount),
		Customer: model.Customer{
			Name:  "Rahim Uddin",
			Email: "rahim@example.com",
			Phone: "01711111111",
		},
		Currency:    "BDT",
		ProductName: "Premium Plan",
		Status:      model.StatusPending,
	}
}

func validResult(tranID, valID, amount string) gateway.ValidationResult {
	return gateway.ValidationResult{
		Status:       gateway.ValidationValid,
		RawStatus:    "VALID",
		TranID:       tranID,
		ValID:        valID,
		ClaimedValID: valID,
		Amount:       decimal.RequireFromString(amount),
		StoreAmount:  decimal.RequireFromString(amount).Mul(decimal.RequireFromString("0.975")),
		BankTranID:   "BANK-1",
		CardType:     "VISA",
		CardIssuer:   "City Bank",
	}
}

func TestPaymentService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid request", func(t *testing.T) {
		service := newTestService(new(MockTransactionRepository), new(MockGatewayClient))

		_, err := service.Create(ctx, model.PaymentCreateRequest{
			Amount:       decimal.Zero,
			CustomerName: "Rahim Uddin",
		})
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("successful session", func(t *testing.T) {
		repo := new(MockTransactionRepository)
		gw := new(MockGatewayClient)
		service := newTestService(repo, gw)

		repo.On("Create", ctx, mock.AnythingOfType("*model.Transaction")).
			Return(pendingTxn("TXN-A", "150.00"), nil)
		gw.On("CreateSession", ctx, mock.MatchedBy(func(sr *gateway.SessionRequest) bool {
			return sr.TranID == "TXN-A" &&
				sr.SuccessURL == "https://pay.example.com/api/v1/payment/success" &&
				sr.IPNURL == "https://pay.example.com/api/v1/payment/ipn"
		})).Return(&gateway.SessionResponse{
			Status:         "SUCCESS",
			GatewayPageURL: "https://sandbox.sslcommerz.com/EasyCheckOut/abc",
			SessionKey:     "SESS-1",
		}, nil)
		repo.On("SetSessionKey", ctx, "TXN-A", "SESS-1").Return(nil)

		result, err := service.Create(ctx, model.PaymentCreateRequest{
			Amount:        decimal.RequireFromString("150.00"),
			CustomerName:  "Rahim Uddin",
			CustomerEmail: "rahim@example.com",
			CustomerPhone: "01711111111",
			ProductName:   "Premium Plan",
		})
		require.NoError(t, err)
		assert.Equal(t, "https://sandbox.sslcommerz.com/EasyCheckOut/abc", result.GatewayURL)
		assert.Equal(t, "SESS-1", result.SessionKey)
		assert.Equal(t, model.StatusPending, result.Transaction.Status)

		repo.AssertExpectations(t)
		gw.AssertExpectations(t)
	})

	t.Run("gateway rejects session", func(t *testing.T) {
		repo := new(MockTransactionRepository)
		gw := new(MockGatewayClient)
		service := newTestService(repo, gw)

		repo.On("Create", ctx, mock.AnythingOfType("*model.Transaction")).
			Return(pendingTxn("TXN-B", "150.00"), nil)
		gw.On("CreateSession", ctx, mock.Anything).Return(&gateway.SessionResponse{
			Status:       "FAILED",
			FailedReason: "store credential invalid",
		}, gateway.ErrSessionRejected)

		_, err := service.Create(ctx, model.PaymentCreateRequest{
			Amount:        decimal.RequireFromString("150.00"),
			CustomerName:  "Rahim Uddin",
			CustomerEmail: "rahim@example.com",
			CustomerPhone: "01711111111",
		})
		var rejected *GatewayRejectedError
		require.ErrorAs(t, err, &rejected)
		assert.Equal(t, "store credential invalid", rejected.Reason)

		// the record was persisted before the outbound call
		repo.AssertCalled(t, "Create", ctx, mock.AnythingOfType("*model.Transaction"))
		repo.AssertNotCalled(t, "SetSessionKey", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("gateway unreachable", func(t *testing.T) {
		repo := new(MockTransactionRepository)
		gw := new(MockGatewayClient)
		service := newTestService(repo, gw)

		repo.On("Create", ctx, mock.AnythingOfType("*model.Transaction")).
			Return(pendingTxn("TXN-C", "150.00"), nil)
		gw.On("CreateSession", ctx, mock.Anything).Return(nil, assert.AnError)

		_, err := service.Create(ctx, model.PaymentCreateRequest{
			Amount:        decimal.RequireFromString("150.00"),
			CustomerName:  "Rahim Uddin",
			CustomerEmail: "rahim@example.com",
			CustomerPhone: "01711111111",
		})
		assert.ErrorIs(t, err, ErrGatewayUnreachable)
	})
}

func TestPaymentService_ReconcileSuccess(t *testing.T) {
	ctx := context.Background()
	amount := decimal.RequireFromString("150.00")

	t.Run("validation confirms payment", func(t *testing.T) {
		repo := new(MockTransactionRepository)
		gw := new(MockGatewayClient)
		service := newTestService(repo, gw)

		repo.On("GetByTranID", ctx, "TXN-1").Return(pendingTxn("TXN-1", "150.00"), nil)
		gw.On("Validate", ctx, "V1").Return(validResult("TXN-1", "V1", "150.00"))
		repo.On("MarkSucceeded", ctx, "TXN-1", mock.MatchedBy(func(e model.SuccessEnrichment) bool {
			return e.ValID == "V1" && e.BankTranID == "BANK-1" && e.CardType == "VISA"
		})).Return(true, nil)

		status, err := service.ReconcileSuccess(ctx, "TXN-1", "V1", amount)
		require.NoError(t, err)
		assert.Equal(t, model.StatusSucceeded, status)

		repo.AssertExpectations(t)
		gw.AssertExpectations(t)
	})

	t.Run("validator reports invalid", func(t *testing.T) {
		repo := new(MockTransactionRepository)
		gw := new(MockGatewayClient)
		service := newTestService(repo, gw)

		repo.On("GetByTranID", ctx, "TXN-2").Return(pendingTxn("TXN-2", "150.00"), nil)
		gw.On("Validate", ctx, "V2").Return(gateway.ValidationResult{
			Status:       gateway.ValidationInvalid,
			RawStatus:    "INVALID_TRANSACTION",
			ClaimedValID: "V2",
		})
		repo.On("MarkFailed", ctx, "TXN-2", ReasonValidationFailed).Return(true, nil)

		status, err := service.ReconcileSuccess(ctx, "TXN-2", "V2", amount)
		require.NoError(t, err)
		assert.Equal(t, model.StatusFailed, status)
	})

	t.Run("validator unreachable fails closed", func(t *testing.T) {
		repo := new(MockTransactionRepository)
		gw := new(MockGatewayClient)
		service := newTestService(repo, gw)

		repo.On("GetByTranID", ctx, "TXN-3").Return(pendingTxn("TXN-3", "150.00"), nil)
		gw.On("Validate", ctx, "V3").Return(gateway.ValidationResult{
			Status:       gateway.ValidationTransportError,
			ClaimedValID: "V3",
		})
		repo.On("MarkFailed", ctx, "TXN-3", ReasonValidationFailed).Return(true, nil)

		status, err := service.ReconcileSuccess(ctx, "TXN-3", "V3", amount)
		require.NoError(t, err)
		assert.Equal(t, model.StatusFailed, status)
	})

	t.Run("validated amount differs", func(t *testing.T) {
		repo := new(MockTransactionRepository)
		gw := new(MockGatewayClient)
		service := newTestService(repo, gw)

		repo.On("GetByTranID", ctx, "TXN-4").Return(pendingTxn("TXN-4", "150.00"), nil)
		gw.On("Validate", ctx, "V4").Return(validResult("TXN-4", "V4", "1.00"))
		repo.On("MarkFailed", ctx, "TXN-4", ReasonAmountMismatch).Return(true, nil)

		status, err := service.ReconcileSuccess(ctx, "TXN-4", "V4", amount)
		require.NoError(t, err)
		assert.Equal(t, model.StatusFailed, status)
	})

	t.Run("terminal transaction is untouched", func(t *testing.T) {
		repo := new(MockTransactionRepository)
		gw := new(MockGatewayClient)
		service := newTestService(repo, gw)

		txn := pendingTxn("TXN-5", "150.00")
		txn.Status = model.StatusCancelled
		repo.On("GetByTranID", ctx, "TXN-5").Return(txn, nil)

		status, err := service.ReconcileSuccess(ctx, "TXN-5", "V5", amount)
		require.NoError(t, err)
		assert.Equal(t, model.StatusCancelled, status)

		gw.AssertNotCalled(t, "Validate", mock.Anything, mock.Anything)
		repo.AssertNotCalled(t, "MarkSucceeded", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unknown transaction", func(t *testing.T) {
		repo := new(MockTransactionRepository)
		gw := new(MockGatewayClient)
		service := newTestService(repo, gw)

		repo.On("GetByTranID", ctx, "TXN-GHOST").Return(nil, repository.ErrNotFound)

		_, err := service.ReconcileSuccess(ctx, "TXN-GHOST", "V6", amount)
		assert.ErrorIs(t, err, ErrNotFound)
		gw.AssertNotCalled(t, "Validate", mock.Anything, mock.Anything)
	})
}

func TestPaymentService_ReconcileFail(t *testing.T) {
	ctx := context.Background()

	t.Run("pending moves to failed", func(t *testing.T) {
		repo := new(MockTransactionRepository)
		service := newTestService(repo, new(MockGatewayClient))

		repo.On("GetByTranID", ctx, "TXN-1").Return(pendingTxn("TXN-1", "150.00"), nil)
		repo.On("MarkFailed", ctx, "TXN-1", "insufficient funds").Return(true, nil)

		status, err := service.ReconcileFail(ctx, "TXN-1", "insufficient funds")
		require.NoError(t, err)
		assert.Equal(t, model.StatusFailed, status)
	})

	t.Run("empty reason gets a default", func(t *testing.T) {
		repo := new(MockTransactionRepository)
		service := newTestService(repo, new(MockGatewayClient))

		repo.On("GetByTranID", ctx, "TXN-2").Return(pendingTxn("TXN-2", "150.00"), nil)
		repo.On("MarkFailed", ctx, "TXN-2", "payment_failed").Return(true, nil)

		_, err := service.ReconcileFail(ctx, "TXN-2", "")
		require.NoError(t, err)
		repo.AssertExpectations(t)
	})

	t.Run("already succeeded stays succeeded", func(t *testing.T) {
		repo := new(MockTransactionRepository)
		service := newTestService(repo, new(MockGatewayClient))

		txn := pendingTxn("TXN-3", "150.00")
		txn.Status = model.StatusSucceeded
		repo.On("GetByTranID", ctx, "TXN-3").Return(txn, nil)

		status, err := service.ReconcileFail(ctx, "TXN-3", "late failure signal")
		require.NoError(t, err)
		assert.Equal(t, model.StatusSucceeded, status)
		repo.AssertNotCalled(t, "MarkFailed", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestPaymentService_ReconcileCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("pending moves to cancelled", func(t *testing.T) {
		repo := new(MockTransactionRepository)
		service := newTestService(repo, new(MockGatewayClient))

		repo.On("GetByTranID", ctx, "TXN-1").Return(pendingTxn("TXN-1", "150.00"), nil)
		repo.On("MarkCancelled", ctx, "TXN-1").Return(true, nil)

		status, err := service.ReconcileCancel(ctx, "TXN-1")
		require.NoError(t, err)
		assert.Equal(t, model.StatusCancelled, status)
	})

	t.Run("already failed stays failed", func(t *testing.T) {
		repo := new(MockTransactionRepository)
		service := newTestService(repo, new(MockGatewayClient))

		txn := pendingTxn("TXN-2", "150.00")
		txn.Status = model.StatusFailed
		repo.On("GetByTranID", ctx, "TXN-2").Return(txn, nil)

		status, err := service.ReconcileCancel(ctx, "TXN-2")
		require.NoError(t, err)
		assert.Equal(t, model.StatusFailed, status)
		repo.AssertNotCalled(t, "MarkCancelled", mock.Anything, mock.Anything)
	})
}

func TestPaymentService_ReconcileNotification(t *testing.T) {
	ctx := context.Background()
	amount := decimal.RequireFromString("150.00")

	t.Run("valid notification completes pending payment", func(t *testing.T) {
		repo := new(MockTransactionRepository)
		gw := new(MockGatewayClient)
		service := newTestService(repo, gw)

		repo.On("GetByTranID", ctx, "TXN-1").Return(pendingTxn("TXN-1", "150.00"), nil)
		repo.On("MarkIPNReceived", ctx, "TXN-1").Return(true, nil)
		gw.On("Validate", ctx, "V1").Return(validResult("TXN-1", "V1", "150.00"))
		repo.On("MarkSucceeded", ctx, "TXN-1", mock.AnythingOfType("model.SuccessEnrichment")).Return(true, nil)

		ok, err := service.ReconcileNotification(ctx, "TXN-1", "V1", amount)
		require.NoError(t, err)
		assert.True(t, ok)

		repo.AssertExpectations(t)
	})

	t.Run("terminal transaction is stamped but untouched", func(t *testing.T) {
		repo := new(MockTransactionRepository)
		gw := new(MockGatewayClient)
		service := newTestService(repo, gw)

		txn := pendingTxn("TXN-2", "150.00")
		txn.Status = model.StatusSucceeded
		repo.On("GetByTranID", ctx, "TXN-2").Return(txn, nil)
		repo.On("MarkIPNReceived", ctx, "TXN-2").Return(true, nil)
		gw.On("Validate", ctx, "V2").Return(validResult("TXN-2", "V2", "150.00"))

		ok, err := service.ReconcileNotification(ctx, "TXN-2", "V2", amount)
		require.NoError(t, err)
		assert.True(t, ok)

		repo.AssertCalled(t, "MarkIPNReceived", ctx, "TXN-2")
		repo.AssertNotCalled(t, "MarkSucceeded", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("invalid notification is rejected", func(t *testing.T) {
		repo := new(MockTransactionRepository)
		gw := new(MockGatewayClient)
		service := newTestService(repo, gw)

		repo.On("GetByTranID", ctx, "TXN-3").Return(pendingTxn("TXN-3", "150.00"), nil)
		repo.On("MarkIPNReceived", ctx, "TXN-3").Return(true, nil)
		gw.On("Validate", ctx, "V3").Return(gateway.ValidationResult{
			Status:       gateway.ValidationInvalid,
			RawStatus:    "INVALID_TRANSACTION",
			ClaimedValID: "V3",
		})

		ok, err := service.ReconcileNotification(ctx, "TXN-3", "V3", amount)
		require.NoError(t, err)
		assert.False(t, ok)
		repo.AssertNotCalled(t, "MarkSucceeded", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("amount mismatch fails the pending record", func(t *testing.T) {
		repo := new(MockTransactionRepository)
		gw := new(MockGatewayClient)
		service := newTestService(repo, gw)

		repo.On("GetByTranID", ctx, "TXN-4").Return(pendingTxn("TXN-4", "150.00"), nil)
		repo.On("MarkIPNReceived", ctx, "TXN-4").Return(true, nil)
		gw.On("Validate", ctx, "V4").Return(validResult("TXN-4", "V4", "2.00"))
		repo.On("MarkFailed", ctx, "TXN-4", ReasonAmountMismatch).Return(true, nil)

		ok, err := service.ReconcileNotification(ctx, "TXN-4", "V4", amount)
		require.NoError(t, err)
		assert.False(t, ok)
		repo.AssertExpectations(t)
	})

	t.Run("unknown transaction", func(t *testing.T) {
		repo := new(MockTransactionRepository)
		service := newTestService(repo, new(MockGatewayClient))

		repo.On("GetByTranID", ctx, "TXN-GHOST").Return(nil, repository.ErrNotFound)

		_, err := service.ReconcileNotification(ctx, "TXN-GHOST", "V5", amount)
		assert.ErrorIs(t, err, ErrNotFound)
		repo.AssertNotCalled(t, "MarkIPNReceived", mock.Anything, mock.Anything)
	})
}

func TestPaymentService_GetStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		repo := new(MockTransactionRepository)
		service := newTestService(repo, new(MockGatewayClient))

		txn := pendingTxn("TXN-1", "150.00")
		txn.Status = model.StatusSucceeded
		txn.ValID = "V1"
		repo.On("GetByTranID", ctx, "TXN-1").Return(txn, nil)

		view, err := service.GetStatus(ctx, "TXN-1")
		require.NoError(t, err)
		assert.Equal(t, "TXN-1", view.TransactionID)
		assert.Equal(t, model.StatusSucceeded, view.Status)
	})

	t.Run("not found", func(t *testing.T) {
		repo := new(MockTransactionRepository)
		service := newTestService(repo, new(MockGatewayClient))

		repo.On("GetByTranID", ctx, "TXN-GHOST").Return(nil, repository.ErrNotFound)

		_, err := service.GetStatus(ctx, "TXN-GHOST")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestMismatch(t *testing.T) {
	d := decimal.RequireFromString

	assert.False(t, mismatch(d("150.00"), d("150.00"), d("150.00")))
	assert.False(t, mismatch(d("150.00"), d("150"), decimal.Zero))
	assert.True(t, mismatch(d("150.00"), d("1.00"), d("150.00")))
	// validator omitted the amount, fall back to the claimed one
	assert.True(t, mismatch(d("150.00"), decimal.Zero, d("1.00")))
	assert.False(t, mismatch(d("150.00"), decimal.Zero, d("150.00")))
	// no amount from either source is not a mismatch
	assert.False(t, mismatch(d("150.00"), decimal.Zero, decimal.Zero))
}

// casRepo is an in-memory repository with the same conditional-update
// semantics as the real one, for exercising concurrent reconcilers.
type casRepo struct {
	mu   sync.Mutex
	txns map[string]*model.Transaction
}

func newCasRepo() *casRepo {
	return &casRepo{txns: map[string]*model.Transaction{}}
}

func (r *casRepo) Create(ctx context.Context, txn *model.Transaction) (*model.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *txn
	r.txns[txn.TranID] = &cp
	return &cp, nil
}

func (r *casRepo) GetByTranID(ctx context.Context, tranID string) (*model.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	txn, ok := r.txns[tranID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *txn
	return &cp, nil
}

func (r *casRepo) SetSessionKey(ctx context.Context, tranID, sessionKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if txn, ok := r.txns[tranID]; ok {
		txn.SessionKey = sessionKey
	}
	return nil
}

func (r *casRepo) transition(tranID string, to model.TransactionStatus, apply func(*model.Transaction)) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	txn, ok := r.txns[tranID]
	if !ok || txn.Status != model.StatusPending {
		return false, nil
	}
	txn.Status = to
	if apply != nil {
		apply(txn)
	}
	return true, nil
}

func (r *casRepo) MarkSucceeded(ctx context.Context, tranID string, e model.SuccessEnrichment) (bool, error) {
	return r.transition(tranID, model.StatusSucceeded, func(txn *model.Transaction) {
		txn.ValID = e.ValID
		txn.BankTranID = e.BankTranID
	})
}

func (r *casRepo) MarkFailed(ctx context.Context, tranID, reason string) (bool, error) {
	return r.transition(tranID, model.StatusFailed, func(txn *model.Transaction) {
		txn.FailureReason = reason
	})
}

func (r *casRepo) MarkCancelled(ctx context.Context, tranID string) (bool, error) {
	return r.transition(tranID, model.StatusCancelled, nil)
}

func (r *casRepo) MarkIPNReceived(ctx context.Context, tranID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	txn, ok := r.txns[tranID]
	if !ok || txn.IPNReceived {
		return false, nil
	}
	txn.IPNReceived = true
	return true, nil
}

func TestPaymentService_ConcurrentSignals(t *testing.T) {
	ctx := context.Background()
	amount := decimal.RequireFromString("150.00")

	repo := newCasRepo()
	_, err := repo.Create(ctx, pendingTxn("TXN-RACE", "150.00"))
	require.NoError(t, err)

	gw := new(MockGatewayClient)
	gw.On("Validate", mock.Anything, "V1").Return(validResult("TXN-RACE", "V1", "150.00"))

	service := newTestService(repo, gw)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = service.ReconcileSuccess(ctx, "TXN-RACE", "V1", amount)
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = service.ReconcileCancel(ctx, "TXN-RACE")
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = service.ReconcileNotification(ctx, "TXN-RACE", "V1", amount)
		}()
	}
	wg.Wait()

	txn, err := repo.GetByTranID(ctx, "TXN-RACE")
	require.NoError(t, err)
	assert.True(t, txn.Status.IsTerminal())
	assert.Contains(t, []model.TransactionStatus{model.StatusSucceeded, model.StatusCancelled}, txn.Status)
	if txn.Status == model.StatusSucceeded {
		assert.Equal(t, "V1", txn.ValID)
	}
}
