package wallet

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
)

// Repository manages persistence for wallet entries and withdrawals.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	LockUser(ctx context.Context, userID uuid.UUID) error
	InsertEntry(ctx context.Context, entry *models.WalletEntry) error
	EntryExists(ctx context.Context, fund enums.FundType, reference string) (bool, error)
	SumByFundType(ctx context.Context, userID uuid.UUID) (map[enums.FundType]decimal.Decimal, error)
	SumOpenWithdrawals(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
	ListEntries(ctx context.Context, userID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.WalletEntry, error)
	CreateWithdrawal(ctx context.Context, w *models.Withdrawal) error
	FindWithdrawal(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error)
	ListWithdrawals(ctx context.Context, userID *uuid.UUID) ([]models.Withdrawal, error)
	MarkWithdrawalProcessed(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	MarkWithdrawalDeclined(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a wallet repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// LockUser serializes balance-dependent writes for one user.
func (r *repository) LockUser(ctx context.Context, userID uuid.UUID) error {
	var user models.User
	return r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		First(&user, "id = ?", userID).Error
}

func (r *repository) InsertEntry(ctx context.Context, entry *models.WalletEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) EntryExists(ctx context.Context, fund enums.FundType, reference string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.WalletEntry{}).
		Where("fund_type = ? AND reference = ?", fund, reference).
		Count(&count).Error
	return count > 0, err
}

type fundSum struct {
	FundType enums.FundType
	Total    decimal.Decimal
}

func (r *repository) SumByFundType(ctx context.Context, userID uuid.UUID) (map[enums.FundType]decimal.Decimal, error) {
	var rows []fundSum
	if err := r.db.WithContext(ctx).
		Model(&models.WalletEntry{}).
		Select("fund_type, COALESCE(SUM(amount), 0) AS total").
		Where("user_id = ?", userID).
		Group("fund_type").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[enums.FundType]decimal.Decimal, len(rows))
	for _, row := range rows {
		out[row.FundType] = row.Total
	}
	return out, nil
}

// SumOpenWithdrawals totals every withdrawal that was not declined.
func (r *repository) SumOpenWithdrawals(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.db.WithContext(ctx).
		Model(&models.Withdrawal{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("user_id = ? AND is_declined = ?", userID, false).
		Row().
		Scan(&total)
	return total, err
}

// ListEntries returns up to limit entries, newest first, strictly after cursor.
func (r *repository) ListEntries(ctx context.Context, userID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.WalletEntry, error) {
	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.Key)
	}
	var rows []models.WalletEntry
	if err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) CreateWithdrawal(ctx context.Context, w *models.Withdrawal) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(w).Error
}

func (r *repository) FindWithdrawal(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error) {
	var w models.Withdrawal
	if err := r.db.WithContext(ctx).First(&w, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

// ListWithdrawals returns withdrawals newest first; a nil userID lists all.
func (r *repository) ListWithdrawals(ctx context.Context, userID *uuid.UUID) ([]models.Withdrawal, error) {
	query := r.db.WithContext(ctx)
	if userID != nil {
		query = query.Where("user_id = ?", *userID)
	}
	var rows []models.Withdrawal
	if err := query.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) MarkWithdrawalProcessed(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE withdrawals SET processed = ?, processed_at = ?, updated_at = ?
		 WHERE id = ? AND processed = ? AND is_declined = ?`,
		true, at, at, id, false, false,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) MarkWithdrawalDeclined(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE withdrawals SET is_declined = ?, declined_at = ?, updated_at = ?
		 WHERE id = ? AND processed = ? AND is_declined = ?`,
		true, at, at, id, false, false,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
