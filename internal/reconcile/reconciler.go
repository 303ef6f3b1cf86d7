// Package reconcile turns externally-sourced status intents (a button press,
// a board drag) into confirmed store patches. An intent only stages the
// proposal; Confirm re-validates it against the freshest snapshot of the
// order, so a proposal raised against stale state can never commit a
// transition whose preconditions were edited away in the meantime.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/hoangvu/atelierdesk/internal/domain"
	"github.com/hoangvu/atelierdesk/internal/finance"
	"github.com/hoangvu/atelierdesk/internal/lifecycle"
)

var ErrUnknownIntent = errors.New("unknown or cancelled intent")

// Pending is a staged proposal awaiting Confirm or Cancel. It holds no order
// snapshot on purpose: guards run against the store's current state.
type Pending struct {
	Token    uuid.UUID     `json:"token"`
	Code     string        `json:"code"`
	Target   domain.Status `json:"target"`
	RaisedAt time.Time     `json:"raisedAt"`
}

// ConfirmFields are user-supplied overrides merged in at confirmation time,
// typically the deposit details entered in the confirm dialog.
type ConfirmFields struct {
	IsDepositPaid *bool
	Deposit       *decimal.Decimal
	DepositType   *domain.ValueKind
}

type Reconciler struct {
	store domain.OrderStore
	now   func() time.Time

	mu      sync.Mutex
	pending map[uuid.UUID]*Pending
}

func New(store domain.OrderStore) *Reconciler {
	return &Reconciler{store: store, now: time.Now, pending: map[uuid.UUID]*Pending{}}
}

// OnIntent stages a proposal without mutating anything. Guards are not run
// here; they run in Confirm against the snapshot current at that moment.
func (r *Reconciler) OnIntent(o *domain.Order, target domain.Status) *Pending {
	p := &Pending{Token: uuid.New(), Code: o.Code, Target: target, RaisedAt: r.now()}
	r.mu.Lock()
	r.pending[p.Token] = p
	r.mu.Unlock()
	return p
}

// MoveCard translates a board column-to-column drag into an intent. Dropping
// into the order's own column or an unknown column raises nothing: that is a
// no-op, not a rejected guard.
func (r *Reconciler) MoveCard(o *domain.Order, toColumn domain.Status) *Pending {
	if !toColumn.Valid() || toColumn == o.Status {
		return nil
	}
	return r.OnIntent(o, toColumn)
}

// Pending returns a staged proposal by token.
func (r *Reconciler) Pending(token uuid.UUID) (*Pending, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pending[token]
	return p, ok
}

// Cancel discards a staged proposal. No patch, no mutation.
func (r *Reconciler) Cancel(token uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pending[token]; !ok {
		return false
	}
	delete(r.pending, token)
	return true
}

// Confirm re-reads the order, merges the override fields, re-runs the
// transition guards and, if they hold, recomputes the financial snapshot and
// persists a single patch. On any failure the staged proposal stays retryable
// and nothing is written.
func (r *Reconciler) Confirm(ctx context.Context, token uuid.UUID, extra *ConfirmFields) (domain.Patch, error) {
	r.mu.Lock()
	p, ok := r.pending[token]
	r.mu.Unlock()
	if !ok {
		return nil, ErrUnknownIntent
	}

	fresh, err := r.store.Read(ctx, p.Code)
	if err != nil {
		return nil, fmt.Errorf("read order %s: %w", p.Code, err)
	}

	merged := fresh.Clone()
	if extra != nil {
		if extra.IsDepositPaid != nil {
			merged.IsDepositPaid = *extra.IsDepositPaid
		}
		if extra.Deposit != nil {
			merged.Deposit = *extra.Deposit
		}
		if extra.DepositType != nil {
			merged.DepositType = *extra.DepositType
		}
	}

	patch, err := lifecycle.Propose(merged, p.Target, r.now())
	if err != nil {
		var inv *lifecycle.InvariantError
		if errors.As(err, &inv) {
			log.Error().Str("order", p.Code).Str("target", string(p.Target)).
				Msg(inv.Detail)
		}
		return nil, err
	}

	totals := finance.ComputeTotals(merged.Products, merged.Discount, merged.DiscountType, merged.ShippingFee)
	split := finance.ComputeDeposit(totals.Total, merged.Deposit, merged.DepositType)

	patch["isDepositPaid"] = merged.IsDepositPaid
	patch["deposit"] = merged.Deposit
	patch["depositType"] = string(merged.DepositType)
	patch["subtotal"] = totals.Subtotal
	patch["discountAmount"] = totals.DiscountAmount
	patch["total"] = totals.Total
	patch["depositAmount"] = split.DepositAmount
	patch["remaining"] = split.Remaining

	if err := r.store.Patch(ctx, p.Code, patch); err != nil {
		return nil, fmt.Errorf("patch order %s: %w", p.Code, err)
	}

	r.mu.Lock()
	delete(r.pending, token)
	r.mu.Unlock()
	return patch, nil
}
