package repository

import (
	"context"
	"errors"
	"time"

	"github.com/easypay/payment-gateway/internal/model"
	"github.com/easypay/payment-gateway/pkg/pg"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a transaction does not exist.
	ErrNotFound = errors.New("transaction not found")
)

type TransactionRepository struct {
	*pg.DB
}

func NewTransactionRepository(db *pg.DB) *TransactionRepository {
	return &TransactionRepository{
		db,
	}
}

func (r *TransactionRepository) Create(ctx context.Context, txn *model.Transaction) (*model.Transaction, error) {
	entity := toTransactionEntity(txn)

	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}

	return toTransactionModel(entity), nil
}

func (r *TransactionRepository) GetByTranID(ctx context.Context, tranID string) (*model.Transaction, error) {
	var entity TransactionEntity
	err := r.Read(ctx).WithContext(ctx).Where("tran_id = ?", tranID).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return toTransactionModel(&entity), nil
}

// SetSessionKey stores the gateway session key after session creation.
func (r *TransactionRepository) SetSessionKey(ctx context.Context, tranID, sessionKey string) error {
	return r.Write(ctx).WithContext(ctx).
		Model(&TransactionEntity{}).
		Where("tran_id = ?", tranID).
		Update("session_key", sessionKey).Error
}

// MarkSucceeded performs the pending -> succeeded transition as a single
// conditional update. The enrichment fields are written atomically with the
// state so concurrent reconcilers cannot interleave partial writes; exactly
// one caller observes true.
func (r *TransactionRepository) MarkSucceeded(ctx context.Context, tranID string, e model.SuccessEnrichment) (bool, error) {
	now := time.Now()
	res := r.Write(ctx).WithContext(ctx).
		Model(&TransactionEntity{}).
		Where("tran_id = ? AND status = ?", tranID, string(model.StatusPending)).
		Updates(map[string]interface{}{
			"status":       string(model.StatusSucceeded),
			"val_id":       e.ValID,
			"bank_tran_id": e.BankTranID,
			"card_type":    e.CardType,
			"card_issuer":  e.CardIssuer,
			"store_amount": e.StoreAmount,
			"completed_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkFailed performs the pending -> failed transition; a no-op when the
// record is already terminal.
func (r *TransactionRepository) MarkFailed(ctx context.Context, tranID, reason string) (bool, error) {
	now := time.Now()
	res := r.Write(ctx).WithContext(ctx).
		Model(&TransactionEntity{}).
		Where("tran_id = ? AND status = ?", tranID, string(model.StatusPending)).
		Updates(map[string]interface{}{
			"status":         string(model.StatusFailed),
			"failure_reason": reason,
			"completed_at":   now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkCancelled performs the pending -> cancelled transition; a no-op when
// the record is already terminal.
func (r *TransactionRepository) MarkCancelled(ctx context.Context, tranID string) (bool, error) {
	now := time.Now()
	res := r.Write(ctx).WithContext(ctx).
		Model(&TransactionEntity{}).
		Where("tran_id = ? AND status = ?", tranID, string(model.StatusPending)).
		Updates(map[string]interface{}{
			"status":       string(model.StatusCancelled),
			"completed_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkIPNReceived stamps the server-notification audit fields. The stamp is
// orthogonal to the lifecycle state and records the first arrival only, so
// notification replays do not move the timestamp.
func (r *TransactionRepository) MarkIPNReceived(ctx context.Context, tranID string) (bool, error) {
	now := time.Now()
	res := r.Write(ctx).WithContext(ctx).
		Model(&TransactionEntity{}).
		Where("tran_id = ? AND ipn_received = ?", tranID, false).
		Updates(map[string]interface{}{
			"ipn_received":    true,
			"ipn_received_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
