package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/levelcode/teamfabric/internal/errors"
	"github.com/levelcode/teamfabric/internal/ledger"
)

// base is millisecond-exact so stored timestamps round-trip unchanged.
var base = time.Date(2025, 5, 12, 10, 0, 0, 0, time.UTC)

func testStore(t *testing.T) *Store {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), "ledger.db"))
	t.Cleanup(func() { _ = s.Close() })
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return s
}

func insertGrant(t *testing.T, s *Store, g ledger.CreditGrant) {
	t.Helper()
	if g.ID == "" {
		g.ID = g.OperationID
	}
	err := s.WithAdvisoryLockTransaction(context.Background(), "seed", func(tx ledger.Tx) error {
		ok, err := tx.InsertGrant(context.Background(), g)
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("duplicate seed operation id " + g.OperationID)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("insert grant %s: %v", g.OperationID, err)
	}
}

func TestInitIdempotent(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "init.db"))
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()
	if err := s.Init(ctx); err != nil {
		t.Fatalf("first Init: %v", err)
	}
	if err := s.Init(ctx); err != nil {
		t.Fatalf("second Init: %v", err)
	}
}

func TestInsertAndReadBack(t *testing.T) {
	s := testStore(t)
	expiry := base.Add(24 * time.Hour)
	insertGrant(t, s, ledger.CreditGrant{
		ID:                   "g1",
		OperationID:          "op-1",
		UserID:               "u1",
		Type:                 ledger.GrantPurchase,
		Principal:            500,
		Balance:              480,
		Priority:             30,
		ExpiresAt:            &expiry,
		CreatedAt:            base,
		Description:          "starter pack",
		StripeSubscriptionID: "sub_9",
	})

	grants, err := s.ActiveGrants(context.Background(), ledger.Account{UserID: "u1"}, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("ActiveGrants: %v", err)
	}
	if len(grants) != 1 {
		t.Fatalf("grants = %d, want 1", len(grants))
	}

	g := grants[0]
	if g.ID != "g1" || g.OperationID != "op-1" || g.UserID != "u1" {
		t.Errorf("identity fields = %+v", g)
	}
	if g.Type != ledger.GrantPurchase || g.Principal != 500 || g.Balance != 480 || g.Priority != 30 {
		t.Errorf("value fields = %+v", g)
	}
	if g.ExpiresAt == nil || !g.ExpiresAt.Equal(expiry) {
		t.Errorf("ExpiresAt = %v, want %s", g.ExpiresAt, expiry)
	}
	if !g.CreatedAt.Equal(base) {
		t.Errorf("CreatedAt = %s, want %s", g.CreatedAt, base)
	}
	if g.Description != "starter pack" || g.StripeSubscriptionID != "sub_9" {
		t.Errorf("text fields = %+v", g)
	}
}

func TestDuplicateOperationIDIsIgnored(t *testing.T) {
	s := testStore(t)
	insertGrant(t, s, ledger.CreditGrant{
		OperationID: "op-1", UserID: "u1", Type: ledger.GrantFree,
		Principal: 10, Balance: 10, CreatedAt: base,
	})

	err := s.WithAdvisoryLockTransaction(context.Background(), "user:u1", func(tx ledger.Tx) error {
		ok, err := tx.InsertGrant(context.Background(), ledger.CreditGrant{
			ID: "g2", OperationID: "op-1", UserID: "u1", Type: ledger.GrantFree,
			Principal: 99, Balance: 99, CreatedAt: base,
		})
		if err != nil {
			return err
		}
		if ok {
			t.Error("duplicate operation id should not insert")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}

	grants, err := s.ActiveGrants(context.Background(), ledger.Account{UserID: "u1"}, base)
	if err != nil {
		t.Fatalf("ActiveGrants: %v", err)
	}
	if len(grants) != 1 || grants[0].Principal != 10 {
		t.Errorf("grants = %v, want the original row only", grants)
	}
}

func TestConsumptionOrderAndAnchor(t *testing.T) {
	s := testStore(t)
	in1h := base.Add(time.Hour)
	in2h := base.Add(2 * time.Hour)

	insertGrant(t, s, ledger.CreditGrant{
		OperationID: "op-block", UserID: "u1", Type: ledger.GrantSubscription,
		Principal: 5, Balance: 5, Priority: 10, ExpiresAt: &in1h, CreatedAt: base,
	})
	insertGrant(t, s, ledger.CreditGrant{
		OperationID: "op-drained", UserID: "u1", Type: ledger.GrantFree,
		Principal: 8, Balance: 0, Priority: 20, ExpiresAt: &in2h, CreatedAt: base,
	})
	insertGrant(t, s, ledger.CreditGrant{
		OperationID: "op-promo", UserID: "u1", Type: ledger.GrantFree,
		Principal: 3, Balance: 3, Priority: 20, CreatedAt: base,
	})
	insertGrant(t, s, ledger.CreditGrant{
		OperationID: "op-anchor", UserID: "u1", Type: ledger.GrantPurchase,
		Principal: 9, Balance: 0, Priority: 30, CreatedAt: base,
	})

	grants, err := s.ConsumptionGrants(context.Background(), ledger.Account{UserID: "u1"}, base)
	if err != nil {
		t.Fatalf("ConsumptionGrants: %v", err)
	}

	got := make([]string, len(grants))
	for i, g := range grants {
		got[i] = g.OperationID
	}
	// op-drained is zero-balance and not the anchor, so it drops out;
	// op-anchor is zero-balance but last in consumption order, so it stays.
	// The NULL expiry sorts after the dated one within priority 20.
	want := []string{"op-block", "op-promo", "op-anchor"}
	if len(got) != len(want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestExpiryFiltering(t *testing.T) {
	s := testStore(t)
	now := base.Add(48 * time.Hour)
	expired := base.Add(time.Hour)

	insertGrant(t, s, ledger.CreditGrant{
		OperationID: "op-expired", UserID: "u1", Type: ledger.GrantSubscription,
		Principal: 100, Balance: 40, ExpiresAt: &expired, CreatedAt: base,
	})

	active, err := s.ActiveGrants(context.Background(), ledger.Account{UserID: "u1"}, now)
	if err != nil {
		t.Fatalf("ActiveGrants: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("active grants = %v, want none", active)
	}

	consumable, err := s.ConsumptionGrants(context.Background(), ledger.Account{UserID: "u1"}, now)
	if err != nil {
		t.Fatalf("ConsumptionGrants: %v", err)
	}
	if len(consumable) != 0 {
		t.Errorf("consumption grants = %v, want none", consumable)
	}

	// Weekly usage accounting still sees the expired grant.
	weekly, err := s.SubscriptionGrantsCreatedBetween(context.Background(), ledger.Account{UserID: "u1"},
		base.Add(-time.Hour), base.Add(time.Hour))
	if err != nil {
		t.Fatalf("SubscriptionGrantsCreatedBetween: %v", err)
	}
	if len(weekly) != 1 || weekly[0].Used() != 60 {
		t.Errorf("weekly grants = %v, want the expired grant with 60 used", weekly)
	}
}

func TestGrantByOperationID(t *testing.T) {
	s := testStore(t)
	insertGrant(t, s, ledger.CreditGrant{
		OperationID: "op-1", UserID: "u1", Type: ledger.GrantFree,
		Principal: 10, Balance: 10, CreatedAt: base,
	})

	g, err := s.GrantByOperationID(context.Background(), ledger.Account{UserID: "u1"}, "op-1")
	if err != nil {
		t.Fatalf("GrantByOperationID: %v", err)
	}
	if g == nil || g.OperationID != "op-1" {
		t.Errorf("grant = %+v, want op-1", g)
	}

	missing, err := s.GrantByOperationID(context.Background(), ledger.Account{UserID: "u1"}, "op-none")
	if err != nil {
		t.Fatalf("GrantByOperationID(missing): %v", err)
	}
	if missing != nil {
		t.Errorf("missing grant = %+v, want nil", missing)
	}

	foreign, err := s.GrantByOperationID(context.Background(), ledger.Account{UserID: "u2"}, "op-1")
	if err != nil {
		t.Fatalf("GrantByOperationID(foreign): %v", err)
	}
	if foreign != nil {
		t.Errorf("foreign grant = %+v, want nil for another account", foreign)
	}
}

func TestSetBalance(t *testing.T) {
	s := testStore(t)
	insertGrant(t, s, ledger.CreditGrant{
		ID: "g1", OperationID: "op-1", UserID: "u1", Type: ledger.GrantFree,
		Principal: 10, Balance: 10, CreatedAt: base,
	})

	err := s.WithAdvisoryLockTransaction(context.Background(), "user:u1", func(tx ledger.Tx) error {
		return tx.SetBalance(context.Background(), "g1", -4)
	})
	if err != nil {
		t.Fatalf("SetBalance: %v", err)
	}

	g, err := s.GrantByOperationID(context.Background(), ledger.Account{UserID: "u1"}, "op-1")
	if err != nil {
		t.Fatalf("GrantByOperationID: %v", err)
	}
	if g.Balance != -4 {
		t.Errorf("balance = %d, want -4", g.Balance)
	}

	err = s.WithAdvisoryLockTransaction(context.Background(), "user:u1", func(tx ledger.Tx) error {
		return tx.SetBalance(context.Background(), "g-missing", 0)
	})
	if err == nil {
		t.Error("expected an error for an unknown grant id")
	}
}

func TestTransactionRollback(t *testing.T) {
	s := testStore(t)
	boom := errors.New("boom")

	err := s.WithAdvisoryLockTransaction(context.Background(), "user:u1", func(tx ledger.Tx) error {
		ok, err := tx.InsertGrant(context.Background(), ledger.CreditGrant{
			ID: "g1", OperationID: "op-1", UserID: "u1", Type: ledger.GrantFree,
			Principal: 5, Balance: 5, CreatedAt: base,
		})
		if err != nil || !ok {
			t.Fatalf("InsertGrant = (%v, %v), want (true, nil)", ok, err)
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want the fn error returned unchanged", err)
	}

	grants, err := s.ActiveGrants(context.Background(), ledger.Account{UserID: "u1"}, base)
	if err != nil {
		t.Fatalf("ActiveGrants: %v", err)
	}
	if len(grants) != 0 {
		t.Errorf("grants = %v, want rolled-back insert absent", grants)
	}
}

func TestOwnershipScoping(t *testing.T) {
	s := testStore(t)
	insertGrant(t, s, ledger.CreditGrant{
		OperationID: "op-personal", UserID: "u1", Type: ledger.GrantFree,
		Principal: 1, Balance: 1, CreatedAt: base,
	})
	insertGrant(t, s, ledger.CreditGrant{
		OperationID: "op-org", UserID: "u1", OrgID: "o1", Type: ledger.GrantOrganization,
		Principal: 2, Balance: 2, CreatedAt: base,
	})

	personal, err := s.ActiveGrants(context.Background(), ledger.Account{UserID: "u1"}, base)
	if err != nil {
		t.Fatalf("ActiveGrants(user): %v", err)
	}
	if len(personal) != 1 || personal[0].OperationID != "op-personal" {
		t.Errorf("user account sees %v, want only op-personal", personal)
	}

	org, err := s.ActiveGrants(context.Background(), ledger.Account{UserID: "u2", OrgID: "o1"}, base)
	if err != nil {
		t.Fatalf("ActiveGrants(org): %v", err)
	}
	if len(org) != 1 || org[0].OperationID != "op-org" {
		t.Errorf("org account sees %v, want only op-org", org)
	}
}

// TestServiceOverSQLite runs the consumption flow end to end against the
// real SQL paths instead of the memory store.
func TestServiceOverSQLite(t *testing.T) {
	s := testStore(t)
	svc := ledger.NewService(s)
	acct := ledger.Account{UserID: "u1"}

	insertGrant(t, s, ledger.CreditGrant{
		OperationID: "op-free", UserID: "u1", Type: ledger.GrantFree,
		Principal: 30, Balance: -20, Priority: ledger.DefaultPriority(ledger.GrantFree),
		CreatedAt: base,
	})
	insertGrant(t, s, ledger.CreditGrant{
		OperationID: "op-buy", UserID: "u1", Type: ledger.GrantPurchase,
		Principal: 200, Balance: 200, Priority: ledger.DefaultPriority(ledger.GrantPurchase),
		CreatedAt: base.Add(time.Minute),
	})

	res, err := svc.ConsumeCredits(context.Background(), acct, 50)
	if err != nil {
		t.Fatalf("ConsumeCredits: %v", err)
	}
	if res.Consumed != 50 || res.FromPurchased != 30 {
		t.Errorf("result = %+v, want {Consumed:50 FromPurchased:30}", res)
	}

	grants, err := s.ActiveGrants(context.Background(), acct, time.Now())
	if err != nil {
		t.Fatalf("ActiveGrants: %v", err)
	}
	balances := make(map[string]int64, len(grants))
	for _, g := range grants {
		balances[g.OperationID] = g.Balance
	}
	if balances["op-free"] != 0 || balances["op-buy"] != 170 {
		t.Errorf("balances = %v, want op-free 0 and op-buy 170", balances)
	}

	replay, err := svc.GrantCredit(context.Background(), acct, ledger.GrantPurchase, 200, nil, "op-buy")
	if err != nil {
		t.Fatalf("GrantCredit replay: %v", err)
	}
	if replay != nil {
		t.Errorf("replayed grant = %+v, want nil via the unique constraint", replay)
	}
}
