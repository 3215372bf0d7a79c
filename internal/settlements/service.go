package settlements

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/internal/stores"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/idgen"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type idGenerator interface {
	Generate(ctx context.Context, prefix string, exists idgen.ExistsFunc) (string, error)
}

// Actor identifies the caller.
type Actor struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

func (a Actor) IsAdmin() bool {
	return a.Role == enums.UserRoleAdmin
}

// SettleRequest is the body of POST /orders/settlestore.
type SettleRequest struct {
	StoreID       uuid.UUID   `json:"store_id" validate:"required"`
	StoreOrderIDs []uuid.UUID `json:"store_order_ids" validate:"required,min=1,dive,required"`
}

// Service batches delivered store orders into vendor payouts.
type Service interface {
	Settle(ctx context.Context, actor Actor, storeID uuid.UUID, storeOrderIDs []uuid.UUID) (*models.VendorSettlement, error)
	ListUnsettled(ctx context.Context, actor Actor, storeID uuid.UUID) ([]models.StoreOrder, error)
	Get(ctx context.Context, actor Actor, id string) (*models.VendorSettlement, error)
	MarkProcessed(ctx context.Context, actor Actor, id string) (*models.VendorSettlement, error)
}

// ServiceParams bundles the collaborators of the settlement service.
type ServiceParams struct {
	Repo    Repository
	Tx      txRunner
	Stores  *stores.Repository
	IDs     idGenerator
	Outbox  outbox.Emitter
	Metrics *metrics.PipelineMetrics
	Logger  *logger.Logger
	// GuaranteePeriod must elapse after delivery before a store order can be settled.
	GuaranteePeriod time.Duration
}

type service struct {
	repo      Repository
	tx        txRunner
	stores    *stores.Repository
	ids       idGenerator
	outbox    outbox.Emitter
	metrics   *metrics.PipelineMetrics
	logg      *logger.Logger
	guarantee time.Duration
	now       func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("settlement repository required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Stores == nil:
		return nil, fmt.Errorf("store repository required")
	case params.IDs == nil:
		return nil, fmt.Errorf("id generator required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case params.GuaranteePeriod < 0:
		return nil, fmt.Errorf("guarantee period must be >= 0")
	}
	return &service{
		repo:      params.Repo,
		tx:        params.Tx,
		stores:    params.Stores,
		ids:       params.IDs,
		outbox:    params.Outbox,
		metrics:   params.Metrics,
		logg:      params.Logger,
		guarantee: params.GuaranteePeriod,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// Settle settles the listed store orders that are eligible and records them
// in one settlement. Ineligible ids are left out without an error; when none
// qualify the settlement is still written with a zero amount.
func (s *service) Settle(ctx context.Context, actor Actor, storeID uuid.UUID, storeOrderIDs []uuid.UUID) (*models.VendorSettlement, error) {
	start := time.Now()
	settlement, err := s.settle(ctx, actor, storeID, storeOrderIDs)
	s.observe(start, err)
	if err == nil {
		s.metrics.AddAmount(metrics.OpSettle, settlement.Amount)
	}
	return settlement, err
}

func (s *service) settle(ctx context.Context, actor Actor, storeID uuid.UUID, storeOrderIDs []uuid.UUID) (*models.VendorSettlement, error) {
	if !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	if storeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store id required")
	}
	if len(storeOrderIDs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store order ids required")
	}
	if _, err := s.loadStore(ctx, s.stores, storeID); err != nil {
		return nil, err
	}

	id, err := s.ids.Generate(ctx, idgen.PrefixSettlement, s.repo.SettlementIDExists)
	if err != nil {
		if s.logg != nil {
			s.logg.Error(s.logg.WithField(ctx, "store_id", storeID.String()), "settlement id allocation failed", err)
		}
		return nil, err
	}

	now := s.now()
	cutoff := now.Add(-s.guarantee)
	settlement := &models.VendorSettlement{
		ID:            id,
		StoreID:       storeID,
		StoreOrderIDs: []uuid.UUID{},
		Amount:        decimal.Zero,
		CreatedBy:     actor.UserID,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		rows, err := repo.ListEligible(ctx, storeID, dedupe(storeOrderIDs), cutoff)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load eligible store orders")
		}
		for _, so := range rows {
			settlement.StoreOrderIDs = append(settlement.StoreOrderIDs, so.ID)
			settlement.Amount = settlement.Amount.Add(so.StorePrice)
		}

		settled, err := repo.MarkSettled(ctx, settlement.StoreOrderIDs, id, cutoff, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark store orders settled")
		}
		if settled != int64(len(settlement.StoreOrderIDs)) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "store orders changed while settling").
				WithDetails(map[string]any{"expected": len(settlement.StoreOrderIDs), "settled": settled})
		}
		if err := repo.Create(ctx, settlement); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create settlement")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventVendorSettled,
			AggregateType: enums.AggregateSettlement,
			AggregateID:   id,
			Actor:         &outbox.ActorRef{UserID: actor.UserID, StoreID: &storeID, Role: string(actor.Role)},
			Data: payloads.VendorSettledEvent{
				SettlementID:  id,
				StoreID:       storeID,
				Amount:        settlement.Amount,
				StoreOrderIDs: settlement.StoreOrderIDs,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"settlement_id": id,
			"store_id":      storeID.String(),
			"settled_count": len(settlement.StoreOrderIDs),
			"requested":     len(storeOrderIDs),
		})
		s.logg.Info(logCtx, "vendor settlement created")
	}
	return s.load(ctx, s.repo, id)
}

// ListUnsettled returns the store orders of storeID that could be settled
// now. Admins and store members may call it.
func (s *service) ListUnsettled(ctx context.Context, actor Actor, storeID uuid.UUID) ([]models.StoreOrder, error) {
	if err := s.authorize(ctx, actor, storeID); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListEligible(ctx, storeID, nil, s.now().Add(-s.guarantee))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list unsettled store orders")
	}
	if rows == nil {
		rows = []models.StoreOrder{}
	}
	return rows, nil
}

func (s *service) Get(ctx context.Context, actor Actor, id string) (*models.VendorSettlement, error) {
	settlement, err := s.load(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor, settlement.StoreID); err != nil {
		return nil, err
	}
	return settlement, nil
}

// MarkProcessed records that the payout of a settlement was made.
func (s *service) MarkProcessed(ctx context.Context, actor Actor, id string) (*models.VendorSettlement, error) {
	if !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	var processed *models.VendorSettlement
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		settlement, err := s.load(ctx, repo, id)
		if err != nil {
			return err
		}
		ok, err := repo.MarkProcessed(ctx, id, s.now())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark settlement processed")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeBadRequest, "settlement already processed")
		}
		if processed, err = s.load(ctx, repo, id); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSettlementProcessed,
			AggregateType: enums.AggregateSettlement,
			AggregateID:   id,
			Actor:         &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)},
			Data: payloads.SettlementProcessedEvent{
				SettlementID: id,
				StoreID:      settlement.StoreID,
				Amount:       settlement.Amount,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return processed, nil
}

func (s *service) authorize(ctx context.Context, actor Actor, storeID uuid.UUID) error {
	if _, err := s.loadStore(ctx, s.stores, storeID); err != nil {
		return err
	}
	if actor.IsAdmin() {
		return nil
	}
	member, err := s.stores.IsMember(ctx, storeID, actor.UserID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check store membership")
	}
	if !member {
		return pkgerrors.New(pkgerrors.CodeForbidden, "not a member of this store")
	}
	return nil
}

func (s *service) loadStore(ctx context.Context, repo *stores.Repository, id uuid.UUID) (*models.Store, error) {
	store, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "store not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load store")
	}
	return store, nil
}

func (s *service) load(ctx context.Context, repo Repository, id string) (*models.VendorSettlement, error) {
	settlement, err := repo.Find(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "settlement not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load settlement")
	}
	return settlement, nil
}

func (s *service) observe(start time.Time, err error) {
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeError
		if typed := pkgerrors.As(err); typed != nil && pkgerrors.MetadataFor(typed.Code()).HTTPStatus < 500 {
			outcome = metrics.OutcomeRejected
		}
	}
	s.metrics.Observe(metrics.OpSettle, outcome, time.Since(start))
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
