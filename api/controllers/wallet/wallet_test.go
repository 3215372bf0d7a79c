package wallet

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/api/middleware"
	internalwallet "github.com/angelmondragon/marketplace-backend/internal/wallet"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
	"github.com/angelmondragon/marketplace-backend/pkg/types"
)

type stubWalletService struct {
	userID     uuid.UUID
	listFilter *uuid.UUID
	listCalled bool
	amount     decimal.Decimal
	resolvedID uuid.UUID
	declined   bool
	params     pagination.Params
	balances   *internalwallet.Balances
	withdrawal *models.Withdrawal
	entry      *models.WalletEntry
	err        error
}

func (s *stubWalletService) Credit(ctx context.Context, tx *gorm.DB, input internalwallet.CreditInput) (*models.WalletEntry, error) {
	panic("not used by controllers")
}

func (s *stubWalletService) Debit(ctx context.Context, tx *gorm.DB, userID uuid.UUID, amount decimal.Decimal, reference string) (*models.WalletEntry, error) {
	panic("not used by controllers")
}

func (s *stubWalletService) Balance(ctx context.Context, userID uuid.UUID) (*internalwallet.Balances, error) {
	s.userID = userID
	return s.balances, s.err
}

func (s *stubWalletService) History(ctx context.Context, userID uuid.UUID, params pagination.Params) (*types.Page[models.WalletEntry], error) {
	s.userID = userID
	s.params = params
	return &types.Page[models.WalletEntry]{Items: []models.WalletEntry{}}, s.err
}

func (s *stubWalletService) GrantRegistrationBonus(ctx context.Context, userID uuid.UUID) (*models.WalletEntry, error) {
	s.userID = userID
	return s.entry, s.err
}

func (s *stubWalletService) RequestWithdrawal(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*models.Withdrawal, error) {
	s.userID = userID
	s.amount = amount
	return s.withdrawal, s.err
}

func (s *stubWalletService) ListWithdrawals(ctx context.Context, userID *uuid.UUID) ([]models.Withdrawal, error) {
	s.listCalled = true
	s.listFilter = userID
	return []models.Withdrawal{}, s.err
}

func (s *stubWalletService) ProcessWithdrawal(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error) {
	s.resolvedID = id
	return s.withdrawal, s.err
}

func (s *stubWalletService) DeclineWithdrawal(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error) {
	s.resolvedID = id
	s.declined = true
	return s.withdrawal, s.err
}

func authed(req *http.Request, userID uuid.UUID, role enums.UserRole) *http.Request {
	ctx := middleware.WithUserID(req.Context(), userID.String())
	ctx = middleware.WithRole(ctx, string(role))
	return req.WithContext(ctx)
}

func TestBalanceReturnsDerivedFigures(t *testing.T) {
	userID := uuid.New()
	svc := &stubWalletService{balances: &internalwallet.Balances{
		Balance:      decimal.NewFromInt(1000),
		Withdrawable: decimal.NewFromInt(1000),
	}}
	req := authed(httptest.NewRequest(http.MethodGet, "/api/v1/wallet/balance", nil), userID, enums.UserRoleCustomer)
	resp := httptest.NewRecorder()

	Balance(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.userID != userID {
		t.Fatalf("expected caller's balance, got %s", svc.userID)
	}
	var envelope struct {
		Data struct {
			Balance      decimal.Decimal `json:"balance"`
			Withdrawable decimal.Decimal `json:"withdrawable_balance"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !envelope.Data.Balance.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("unexpected balance %s", envelope.Data.Balance)
	}
}

func TestHistoryParsesPagination(t *testing.T) {
	svc := &stubWalletService{}
	req := authed(httptest.NewRequest(http.MethodGet, "/api/v1/wallet/history?limit=10&cursor=xyz", nil), uuid.New(), enums.UserRoleCustomer)
	resp := httptest.NewRecorder()

	History(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.params.Limit != 10 || svc.params.Cursor != "xyz" {
		t.Fatalf("unexpected params %+v", svc.params)
	}
}

func TestRequestWithdrawalRejectsOverdraw(t *testing.T) {
	svc := &stubWalletService{err: pkgerrors.New(pkgerrors.CodeBadRequest, "amount exceeds withdrawable balance")}
	req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/wallet/withdrawals", strings.NewReader(`{"amount":"250.5"}`)), uuid.New(), enums.UserRoleCustomer)
	resp := httptest.NewRecorder()

	RequestWithdrawal(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if !svc.amount.Equal(decimal.RequireFromString("250.5")) {
		t.Fatalf("unexpected amount %s", svc.amount)
	}
}

func TestRequestWithdrawalCreated(t *testing.T) {
	svc := &stubWalletService{withdrawal: &models.Withdrawal{ID: uuid.New(), Amount: decimal.NewFromInt(100)}}
	req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/wallet/withdrawals", strings.NewReader(`{"amount":100}`)), uuid.New(), enums.UserRoleCustomer)
	resp := httptest.NewRecorder()

	RequestWithdrawal(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestListWithdrawalsScopesByRole(t *testing.T) {
	customer := uuid.New()
	svc := &stubWalletService{}
	req := authed(httptest.NewRequest(http.MethodGet, "/api/v1/wallet/withdrawals?user_id="+uuid.NewString(), nil), customer, enums.UserRoleCustomer)
	ListWithdrawals(svc, nil).ServeHTTP(httptest.NewRecorder(), req)
	if svc.listFilter == nil || *svc.listFilter != customer {
		t.Fatalf("customer must only see own withdrawals, got %v", svc.listFilter)
	}

	svc = &stubWalletService{}
	req = authed(httptest.NewRequest(http.MethodGet, "/api/v1/wallet/withdrawals", nil), uuid.New(), enums.UserRoleAdmin)
	ListWithdrawals(svc, nil).ServeHTTP(httptest.NewRecorder(), req)
	if !svc.listCalled || svc.listFilter != nil {
		t.Fatalf("admin without filter should list all, got %v", svc.listFilter)
	}

	target := uuid.New()
	svc = &stubWalletService{}
	req = authed(httptest.NewRequest(http.MethodGet, "/api/v1/wallet/withdrawals?user_id="+target.String(), nil), uuid.New(), enums.UserRoleAdmin)
	ListWithdrawals(svc, nil).ServeHTTP(httptest.NewRecorder(), req)
	if svc.listFilter == nil || *svc.listFilter != target {
		t.Fatalf("admin filter not applied, got %v", svc.listFilter)
	}
}

func TestResolveWithdrawalParsesID(t *testing.T) {
	id := uuid.New()
	svc := &stubWalletService{withdrawal: &models.Withdrawal{ID: id, IsDeclined: true}}
	req := httptest.NewRequest(http.MethodPatch, "/", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("withdrawalId", id.String())
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	resp := httptest.NewRecorder()

	DeclineWithdrawal(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.resolvedID != id || !svc.declined {
		t.Fatalf("unexpected resolution id=%s declined=%v", svc.resolvedID, svc.declined)
	}

	bad := httptest.NewRequest(http.MethodPatch, "/", nil)
	badCtx := chi.NewRouteContext()
	badCtx.URLParams.Add("withdrawalId", "nope")
	bad = bad.WithContext(context.WithValue(bad.Context(), chi.RouteCtxKey, badCtx))
	badResp := httptest.NewRecorder()
	ProcessWithdrawal(svc, nil).ServeHTTP(badResp, bad)
	if badResp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", badResp.Code)
	}
}

func TestGrantBonusConflict(t *testing.T) {
	target := uuid.New()
	svc := &stubWalletService{err: pkgerrors.New(pkgerrors.CodeConflict, "registration bonus already granted")}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/wallet/bonus", strings.NewReader(`{"user_id":"`+target.String()+`"}`))
	resp := httptest.NewRecorder()

	GrantBonus(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
	if svc.userID != target {
		t.Fatalf("unexpected user %s", svc.userID)
	}
}
