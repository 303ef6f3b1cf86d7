// Package lifecycle decides whether an order may move to a proposed status.
// Propose is a pure function over the order snapshot: same snapshot, same
// target, same decision. Persisting the resulting patch is the reconcile
// package's job.
package lifecycle

import (
	"fmt"
	"time"

	"github.com/hoangvu/atelierdesk/internal/domain"
	"github.com/hoangvu/atelierdesk/internal/workflow"
)

type GuardReason string

const (
	ReasonMissingReceivedImages  GuardReason = "missing received images"
	ReasonDepositUnpaid          GuardReason = "deposit not paid"
	ReasonProductionIncomplete   GuardReason = "production incomplete"
	ReasonMissingCompletedImages GuardReason = "missing completed images"
)

// SequenceError rejects a target that is neither the immediate successor of
// the current status nor CANCELLED.
type SequenceError struct {
	From domain.Status
	To   domain.Status
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s", e.From, e.To)
}

// GuardError names the unmet precondition of an otherwise valid transition.
type GuardError struct {
	Target domain.Status
	Reason GuardReason
}

func (e *GuardError) Error() string {
	return fmt.Sprintf("transition to %s blocked: %s", e.Target, e.Reason)
}

// InvariantError flags corrupted aggregate data reaching a gated transition,
// e.g. a product with zero workflows. The transition is refused and the error
// should be logged for investigation; it is not a user mistake.
type InvariantError struct {
	Code   string
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("order %s invariant violated: %s", e.Code, e.Detail)
}

// Propose validates target against the order snapshot and, when every guard
// holds, returns the patch to persist. The snapshot is never mutated. at
// becomes the patch's updatedAt; it is the only non-derived value in the
// result.
func Propose(o *domain.Order, target domain.Status, at time.Time) (domain.Patch, error) {
	if !target.Valid() {
		return nil, &SequenceError{From: o.Status, To: target}
	}
	if o.Status.Terminal() {
		return nil, &SequenceError{From: o.Status, To: target}
	}
	if target == domain.StatusCancelled {
		return statusPatch(target, at), nil
	}
	if target != o.Status.Next() {
		return nil, &SequenceError{From: o.Status, To: target}
	}

	switch target {
	case domain.StatusConfirmed:
		for id, p := range o.Products {
			if len(p.Workflows) == 0 {
				return nil, &InvariantError{Code: o.Code, Detail: fmt.Sprintf("product %s has no workflows", id)}
			}
			if len(p.Images) == 0 {
				return nil, &GuardError{Target: target, Reason: ReasonMissingReceivedImages}
			}
		}
		if !o.IsDepositPaid {
			return nil, &GuardError{Target: target, Reason: ReasonDepositUnpaid}
		}
	case domain.StatusInProgress:
		// no guard beyond the sequence check
	case domain.StatusOnHold:
		for id, p := range o.Products {
			if len(p.Workflows) == 0 {
				return nil, &InvariantError{Code: o.Code, Detail: fmt.Sprintf("product %s has no workflows", id)}
			}
		}
		if !workflow.IsOrderProductionComplete(o) {
			return nil, &GuardError{Target: target, Reason: ReasonProductionIncomplete}
		}
	case domain.StatusCompleted:
		for _, p := range o.Products {
			if len(p.ImagesDone) == 0 {
				return nil, &GuardError{Target: target, Reason: ReasonMissingCompletedImages}
			}
		}
	}
	return statusPatch(target, at), nil
}

func statusPatch(target domain.Status, at time.Time) domain.Patch {
	return domain.Patch{
		"status":    string(target),
		"updatedAt": at.UTC().Format(time.RFC3339Nano),
	}
}
