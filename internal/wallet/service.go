package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
	"github.com/angelmondragon/marketplace-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Balances is the derived view over a user's ledger.
type Balances struct {
	Balance            decimal.Decimal `json:"balance"`
	Withdrawable       decimal.Decimal `json:"withdrawable_balance"`
	Bonus              decimal.Decimal `json:"bonus_balance"`
	PendingWithdrawals decimal.Decimal `json:"withdrawn"`
}

// CreditInput describes a positive ledger entry.
type CreditInput struct {
	UserID    uuid.UUID
	Amount    decimal.Decimal
	FundType  enums.FundType
	Reference string
}

// Service exposes the wallet ledger and withdrawal workflow.
type Service interface {
	Credit(ctx context.Context, tx *gorm.DB, input CreditInput) (*models.WalletEntry, error)
	Debit(ctx context.Context, tx *gorm.DB, userID uuid.UUID, amount decimal.Decimal, reference string) (*models.WalletEntry, error)
	Balance(ctx context.Context, userID uuid.UUID) (*Balances, error)
	History(ctx context.Context, userID uuid.UUID, params pagination.Params) (*types.Page[models.WalletEntry], error)
	GrantRegistrationBonus(ctx context.Context, userID uuid.UUID) (*models.WalletEntry, error)
	RequestWithdrawal(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*models.Withdrawal, error)
	ListWithdrawals(ctx context.Context, userID *uuid.UUID) ([]models.Withdrawal, error)
	ProcessWithdrawal(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error)
	DeclineWithdrawal(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error)
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outbox.Emitter
	metrics *metrics.PipelineMetrics
	logg    *logger.Logger
	bonus   decimal.Decimal
	now     func() time.Time
}

// Options carries the optional knobs of the wallet service.
type Options struct {
	RegistrationBonus decimal.Decimal
	Metrics           *metrics.PipelineMetrics
	Logger            *logger.Logger
}

func NewService(repo Repository, tx txRunner, emitter outbox.Emitter, opts Options) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("wallet repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &service{
		repo:    repo,
		tx:      tx,
		outbox:  emitter,
		metrics: opts.Metrics,
		logg:    opts.Logger,
		bonus:   opts.RegistrationBonus,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// ComputeBalances derives the balance figures from per-fund totals and the
// sum of withdrawals that were not declined. Redeemed credit is drawn from
// the bonus first, so only spending beyond the bonus reduces what can be
// withdrawn.
func ComputeBalances(sums map[enums.FundType]decimal.Decimal, withdrawn decimal.Decimal) Balances {
	total := decimal.Zero
	for _, amount := range sums {
		total = total.Add(amount)
	}
	bonus := sums[enums.FundTypeRegBonus]
	spent := sums[enums.FundTypeRedeemCredit].Abs()
	withdrawableIn := sums[enums.FundTypePayment].Add(sums[enums.FundTypeRefund])

	spentBeyondBonus := decimal.Max(decimal.Zero, spent.Sub(bonus))
	withdrawable := withdrawableIn.Sub(spentBeyondBonus).Sub(withdrawn)

	return Balances{
		Balance:            total.Sub(withdrawn),
		Withdrawable:       decimal.Max(decimal.Zero, withdrawable),
		Bonus:              decimal.Max(decimal.Zero, bonus.Sub(spent)),
		PendingWithdrawals: withdrawn,
	}
}

func (s *service) balances(ctx context.Context, repo Repository, userID uuid.UUID) (Balances, error) {
	sums, err := repo.SumByFundType(ctx, userID)
	if err != nil {
		return Balances{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum wallet entries")
	}
	withdrawn, err := repo.SumOpenWithdrawals(ctx, userID)
	if err != nil {
		return Balances{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum withdrawals")
	}
	return ComputeBalances(sums, withdrawn), nil
}

func (s *service) Balance(ctx context.Context, userID uuid.UUID) (*Balances, error) {
	b, err := s.balances(ctx, s.repo, userID)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Credit appends a positive entry. The (fund type, reference) pair is unique,
// so replays of the same credit surface as a conflict.
func (s *service) Credit(ctx context.Context, tx *gorm.DB, input CreditInput) (*models.WalletEntry, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "credit amount must be positive")
	}
	if !input.FundType.IsValid() || input.FundType == enums.FundTypeRedeemCredit {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid credit fund type")
	}
	reference := strings.TrimSpace(input.Reference)
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference is required")
	}

	entry := &models.WalletEntry{
		UserID:    input.UserID,
		Amount:    input.Amount.Round(2),
		FundType:  input.FundType,
		Reference: reference,
	}
	if err := s.repo.WithTx(tx).InsertEntry(ctx, entry); err != nil {
		if dbpkg.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "wallet entry already recorded").
				WithDetails(map[string]any{"fund_type": input.FundType, "reference": reference})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert wallet entry")
	}
	return entry, nil
}

// Debit records spending from the wallet. It must run inside tx; the user row
// is locked so concurrent debits see each other's entries.
func (s *service) Debit(ctx context.Context, tx *gorm.DB, userID uuid.UUID, amount decimal.Decimal, reference string) (*models.WalletEntry, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	if !amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "debit amount must be positive")
	}
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference is required")
	}

	repo := s.repo.WithTx(tx)
	if err := repo.LockUser(ctx, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock wallet owner")
	}
	b, err := s.balances(ctx, repo, userID)
	if err != nil {
		return nil, err
	}
	if b.Balance.LessThan(amount) {
		return nil, pkgerrors.New(pkgerrors.CodeBadRequest, "insufficient wallet balance").
			WithDetails(map[string]any{
				"balance":  b.Balance.StringFixed(2),
				"required": amount.StringFixed(2),
			})
	}

	entry := &models.WalletEntry{
		UserID:    userID,
		Amount:    amount.Round(2).Neg(),
		FundType:  enums.FundTypeRedeemCredit,
		Reference: reference,
	}
	if err := repo.InsertEntry(ctx, entry); err != nil {
		if dbpkg.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "wallet already debited for this reference")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert wallet debit")
	}
	return entry, nil
}

// History lists ledger entries newest first using cursor pagination.
func (s *service) History(ctx context.Context, userID uuid.UUID, params pagination.Params) (*types.Page[models.WalletEntry], error) {
	cursor, err := pagination.DecodeUUID(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListEntries(ctx, userID, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list wallet entries")
	}
	items, next := pagination.Trim(rows, params.Limit, func(e models.WalletEntry) pagination.Cursor {
		return pagination.Cursor{CreatedAt: e.CreatedAt, Key: e.ID.String()}
	})
	return &types.Page[models.WalletEntry]{Items: items, NextCursor: next}, nil
}

// GrantRegistrationBonus credits the configured bonus once per user.
func (s *service) GrantRegistrationBonus(ctx context.Context, userID uuid.UUID) (*models.WalletEntry, error) {
	if !s.bonus.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeBadRequest, "registration bonus is disabled")
	}
	var entry *models.WalletEntry
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.LockUser(ctx, userID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock wallet owner")
		}
		exists, err := repo.EntryExists(ctx, enums.FundTypeRegBonus, userID.String())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check registration bonus")
		}
		if exists {
			return pkgerrors.New(pkgerrors.CodeConflict, "registration bonus already granted")
		}
		entry, err = s.Credit(ctx, tx, CreditInput{
			UserID:    userID,
			Amount:    s.bonus,
			FundType:  enums.FundTypeRegBonus,
			Reference: userID.String(),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) RequestWithdrawal(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*models.Withdrawal, error) {
	start := time.Now()
	w, err := s.requestWithdrawal(ctx, userID, amount)
	s.observe(start, err)
	if err == nil {
		s.metrics.AddAmount(metrics.OpWithdrawal, w.Amount)
	}
	return w, err
}

func (s *service) requestWithdrawal(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*models.Withdrawal, error) {
	if !amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "withdrawal amount must be positive")
	}
	amount = amount.Round(2)

	var withdrawal *models.Withdrawal
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.LockUser(ctx, userID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock wallet owner")
		}
		b, err := s.balances(ctx, repo, userID)
		if err != nil {
			return err
		}
		if amount.GreaterThan(b.Withdrawable) {
			return pkgerrors.New(pkgerrors.CodeBadRequest, "amount exceeds withdrawable balance").
				WithDetails(map[string]any{"withdrawable": b.Withdrawable.StringFixed(2)})
		}

		withdrawal = &models.Withdrawal{UserID: userID, Amount: amount}
		if err := repo.CreateWithdrawal(ctx, withdrawal); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create withdrawal")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventWithdrawalRequested,
			AggregateType: enums.AggregateWithdrawal,
			AggregateID:   withdrawal.ID.String(),
			Actor:         &outbox.ActorRef{UserID: userID, Role: string(enums.UserRoleCustomer)},
			Data: payloads.WithdrawalRequestedEvent{
				WithdrawalID: withdrawal.ID,
				UserID:       userID,
				Amount:       amount,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return withdrawal, nil
}

func (s *service) ListWithdrawals(ctx context.Context, userID *uuid.UUID) ([]models.Withdrawal, error) {
	rows, err := s.repo.ListWithdrawals(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list withdrawals")
	}
	return rows, nil
}

// ProcessWithdrawal marks a pending withdrawal as paid out.
func (s *service) ProcessWithdrawal(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error) {
	return s.resolveWithdrawal(ctx, id, s.repo.MarkWithdrawalProcessed, "processed")
}

// DeclineWithdrawal releases the reserved amount back to the balance.
func (s *service) DeclineWithdrawal(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error) {
	return s.resolveWithdrawal(ctx, id, s.repo.MarkWithdrawalDeclined, "declined")
}

func (s *service) resolveWithdrawal(
	ctx context.Context,
	id uuid.UUID,
	mark func(context.Context, uuid.UUID, time.Time) (bool, error),
	verb string,
) (*models.Withdrawal, error) {
	w, err := s.repo.FindWithdrawal(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "withdrawal not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load withdrawal")
	}
	if w.Processed || w.IsDeclined {
		return nil, pkgerrors.New(pkgerrors.CodeBadRequest, "withdrawal already resolved")
	}
	ok, err := mark(ctx, id, s.now())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update withdrawal")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeBadRequest, "withdrawal already resolved")
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{"withdrawal_id": id.String(), "user_id": w.UserID.String()})
		s.logg.Info(logCtx, "withdrawal "+verb)
	}
	return s.repo.FindWithdrawal(ctx, id)
}

func (s *service) observe(start time.Time, err error) {
	outcome := metrics.OutcomeSuccess
	switch {
	case err == nil:
	case pkgerrors.IsCode(err, pkgerrors.CodeBadRequest), pkgerrors.IsCode(err, pkgerrors.CodeValidation):
		outcome = metrics.OutcomeRejected
	default:
		outcome = metrics.OutcomeError
	}
	s.metrics.Observe(metrics.OpWithdrawal, outcome, time.Since(start))
}
