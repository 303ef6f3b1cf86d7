package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/hoangvu/atelierdesk/internal/domain"
	"github.com/hoangvu/atelierdesk/internal/lifecycle"
)

type mockStore struct {
	ReadFunc      func(ctx context.Context, code string) (*domain.Order, error)
	WriteFunc     func(ctx context.Context, o *domain.Order) error
	PatchFunc     func(ctx context.Context, code string, p domain.Patch) error
	SubscribeFunc func(ctx context.Context, code string, fn func(*domain.Order)) (func(), error)
}

func (m *mockStore) Read(ctx context.Context, code string) (*domain.Order, error) {
	if m.ReadFunc != nil {
		return m.ReadFunc(ctx, code)
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) Write(ctx context.Context, o *domain.Order) error {
	if m.WriteFunc != nil {
		return m.WriteFunc(ctx, o)
	}
	return nil
}

func (m *mockStore) Patch(ctx context.Context, code string, p domain.Patch) error {
	if m.PatchFunc != nil {
		return m.PatchFunc(ctx, code, p)
	}
	return nil
}

func (m *mockStore) Subscribe(ctx context.Context, code string, fn func(*domain.Order)) (func(), error) {
	if m.SubscribeFunc != nil {
		return m.SubscribeFunc(ctx, code, fn)
	}
	return func() {}, nil
}

func inProgressOrder() *domain.Order {
	return &domain.Order{
		Code:          "AD-2001",
		Status:        domain.StatusInProgress,
		IsDepositPaid: true,
		Products: map[string]*domain.Product{
			"p1": {
				Name:     "Denim jacket patch",
				Quantity: 1,
				Price:    800_000,
				Images:   []string{"https://img/in.jpg"},
				Workflows: map[string]*domain.Workflow{
					"w1": {DepartmentCode: "CUSTOM", IsDone: true},
				},
			},
		},
	}
}

func TestConfirmCommitsAgainstFreshSnapshot(t *testing.T) {
	ctx := context.Background()

	t.Run("success removes the pending intent", func(t *testing.T) {
		snapshot := inProgressOrder()
		var patched domain.Patch
		store := &mockStore{
			ReadFunc: func(ctx context.Context, code string) (*domain.Order, error) {
				return snapshot.Clone(), nil
			},
			PatchFunc: func(ctx context.Context, code string, p domain.Patch) error {
				patched = p
				return nil
			},
		}
		r := New(store)
		p := r.OnIntent(snapshot, domain.StatusOnHold)

		patch, err := r.Confirm(ctx, p.Token, nil)
		if err != nil {
			t.Fatalf("confirm: %v", err)
		}
		if patch["status"] != string(domain.StatusOnHold) {
			t.Fatalf("patch status = %v", patch["status"])
		}
		if patched == nil {
			t.Fatal("store was never patched")
		}
		if _, err := r.Confirm(ctx, p.Token, nil); !errors.Is(err, ErrUnknownIntent) {
			t.Fatalf("second confirm: got %v", err)
		}
	})

	t.Run("intervening edit invalidates the proposal", func(t *testing.T) {
		stale := inProgressOrder() // guards pass on this snapshot
		fresh := inProgressOrder()
		fresh.Products["p1"].Workflows["w1"].IsDone = false

		patchCalls := 0
		store := &mockStore{
			ReadFunc: func(ctx context.Context, code string) (*domain.Order, error) {
				return fresh.Clone(), nil
			},
			PatchFunc: func(ctx context.Context, code string, p domain.Patch) error {
				patchCalls++
				return nil
			},
		}
		r := New(store)
		p := r.OnIntent(stale, domain.StatusOnHold)

		_, err := r.Confirm(ctx, p.Token, nil)
		var ge *lifecycle.GuardError
		if !errors.As(err, &ge) || ge.Reason != lifecycle.ReasonProductionIncomplete {
			t.Fatalf("got %v", err)
		}
		if patchCalls != 0 {
			t.Fatal("failed confirm must not write")
		}

		// the proposal stays retryable; once the edit is undone it commits
		fresh.Products["p1"].Workflows["w1"].IsDone = true
		if _, err := r.Confirm(ctx, p.Token, nil); err != nil {
			t.Fatalf("retry: %v", err)
		}
		if patchCalls != 1 {
			t.Fatalf("patch calls = %d", patchCalls)
		}
	})

	t.Run("store failure leaves the intent staged", func(t *testing.T) {
		boom := errors.New("connection reset")
		snapshot := inProgressOrder()
		store := &mockStore{
			ReadFunc: func(ctx context.Context, code string) (*domain.Order, error) {
				return snapshot.Clone(), nil
			},
			PatchFunc: func(ctx context.Context, code string, p domain.Patch) error {
				return boom
			},
		}
		r := New(store)
		p := r.OnIntent(snapshot, domain.StatusOnHold)
		if _, err := r.Confirm(ctx, p.Token, nil); !errors.Is(err, boom) {
			t.Fatalf("got %v", err)
		}
		if _, ok := r.Pending(p.Token); !ok {
			t.Fatal("intent dropped after store failure")
		}
	})
}

func TestConfirmMergesExtraFields(t *testing.T) {
	ctx := context.Background()

	pending := &domain.Order{
		Code:         "AD-2002",
		Status:       domain.StatusPending,
		Discount:     decimal.NewFromInt(10),
		DiscountType: domain.KindPercent,
		Products: map[string]*domain.Product{
			"p1": {
				Name:     "AF1 custom",
				Quantity: 1,
				Price:    1_500_000,
				Images:   []string{"https://img/in.jpg"},
				Workflows: map[string]*domain.Workflow{
					"w1": {DepartmentCode: "CUSTOM"},
				},
			},
		},
	}

	var patched domain.Patch
	store := &mockStore{
		ReadFunc: func(ctx context.Context, code string) (*domain.Order, error) {
			return pending.Clone(), nil
		},
		PatchFunc: func(ctx context.Context, code string, p domain.Patch) error {
			patched = p
			return nil
		},
	}
	r := New(store)
	p := r.OnIntent(pending, domain.StatusConfirmed)

	// without the override the deposit guard blocks
	_, err := r.Confirm(ctx, p.Token, nil)
	var ge *lifecycle.GuardError
	if !errors.As(err, &ge) || ge.Reason != lifecycle.ReasonDepositUnpaid {
		t.Fatalf("got %v", err)
	}

	paid := true
	dep := decimal.NewFromInt(30)
	kind := domain.KindPercent
	patch, err := r.Confirm(ctx, p.Token, &ConfirmFields{IsDepositPaid: &paid, Deposit: &dep, DepositType: &kind})
	if err != nil {
		t.Fatalf("confirm with overrides: %v", err)
	}
	if patch["isDepositPaid"] != true {
		t.Fatalf("isDepositPaid = %v", patch["isDepositPaid"])
	}
	// subtotal 1,500,000 − 10% discount = 1,350,000; 30% deposit = 405,000
	if patch["total"] != int64(1_350_000) {
		t.Fatalf("total = %v", patch["total"])
	}
	if patch["depositAmount"] != int64(405_000) {
		t.Fatalf("depositAmount = %v", patch["depositAmount"])
	}
	if patch["remaining"] != int64(945_000) {
		t.Fatalf("remaining = %v", patch["remaining"])
	}
	if patched == nil {
		t.Fatal("store was never patched")
	}
}

func TestCancel(t *testing.T) {
	r := New(&mockStore{})
	p := r.OnIntent(inProgressOrder(), domain.StatusOnHold)
	if !r.Cancel(p.Token) {
		t.Fatal("cancel of staged intent failed")
	}
	if r.Cancel(p.Token) {
		t.Fatal("double cancel reported success")
	}
	if _, err := r.Confirm(context.Background(), p.Token, nil); !errors.Is(err, ErrUnknownIntent) {
		t.Fatalf("confirm after cancel: got %v", err)
	}
}

func TestMoveCard(t *testing.T) {
	r := New(&mockStore{})
	o := inProgressOrder()

	if p := r.MoveCard(o, domain.StatusInProgress); p != nil {
		t.Fatal("same column must be a no-op")
	}
	if p := r.MoveCard(o, domain.Status("ARCHIVE")); p != nil {
		t.Fatal("unknown column must be a no-op")
	}
	p := r.MoveCard(o, domain.StatusOnHold)
	if p == nil || p.Target != domain.StatusOnHold || p.Code != o.Code {
		t.Fatalf("pending = %+v", p)
	}
}
