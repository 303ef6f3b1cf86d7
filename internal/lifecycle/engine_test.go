package lifecycle

import (
	"errors"
	"testing"
	"time"

	"github.com/hoangvu/atelierdesk/internal/domain"
)

var at = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

// readyOrder builds an order that passes every guard up to its status.
func readyOrder(status domain.Status) *domain.Order {
	return &domain.Order{
		Code:          "AD-1042",
		Status:        status,
		IsDepositPaid: true,
		Products: map[string]*domain.Product{
			"p1": {
				Name:       "Jordan 1 restore",
				Quantity:   1,
				Price:      1_200_000,
				Images:     []string{"https://img/received-1.jpg"},
				ImagesDone: []string{"https://img/done-1.jpg"},
				Workflows: map[string]*domain.Workflow{
					"w1": {DepartmentCode: "CLEAN", WorkflowCode: []string{"CLEAN_DEEP"}, IsDone: true},
				},
			},
		},
	}
}

func TestProposeSequence(t *testing.T) {
	t.Run("only the immediate successor is accepted", func(t *testing.T) {
		o := readyOrder(domain.StatusPending)
		if _, err := Propose(o, domain.StatusInProgress, at); err == nil {
			t.Fatal("expected sequence error")
		} else {
			var se *SequenceError
			if !errors.As(err, &se) {
				t.Fatalf("got %T: %v", err, err)
			}
		}
	})

	t.Run("no path backward", func(t *testing.T) {
		o := readyOrder(domain.StatusInProgress)
		var se *SequenceError
		if _, err := Propose(o, domain.StatusConfirmed, at); !errors.As(err, &se) {
			t.Fatalf("got %v", err)
		}
		if _, err := Propose(o, domain.StatusPending, at); !errors.As(err, &se) {
			t.Fatalf("got %v", err)
		}
	})

	t.Run("terminal states accept nothing", func(t *testing.T) {
		var se *SequenceError
		for _, st := range []domain.Status{domain.StatusCompleted, domain.StatusCancelled} {
			o := readyOrder(st)
			if _, err := Propose(o, domain.StatusCancelled, at); !errors.As(err, &se) {
				t.Fatalf("from %s: got %v", st, err)
			}
		}
	})

	t.Run("unknown target", func(t *testing.T) {
		o := readyOrder(domain.StatusPending)
		var se *SequenceError
		if _, err := Propose(o, domain.Status("SHIPPED"), at); !errors.As(err, &se) {
			t.Fatalf("got %v", err)
		}
	})

	t.Run("snapshot is never mutated", func(t *testing.T) {
		o := readyOrder(domain.StatusPending)
		if _, err := Propose(o, domain.StatusConfirmed, at); err != nil {
			t.Fatalf("propose: %v", err)
		}
		if o.Status != domain.StatusPending {
			t.Fatalf("status mutated to %s", o.Status)
		}
	})
}

func TestProposeGuards(t *testing.T) {
	t.Run("missing received images", func(t *testing.T) {
		o := readyOrder(domain.StatusPending)
		o.Products["p1"].Images = nil
		_, err := Propose(o, domain.StatusConfirmed, at)
		var ge *GuardError
		if !errors.As(err, &ge) || ge.Reason != ReasonMissingReceivedImages {
			t.Fatalf("got %v", err)
		}
		if o.Status != domain.StatusPending {
			t.Fatalf("status changed: %s", o.Status)
		}
	})

	t.Run("deposit not paid", func(t *testing.T) {
		o := readyOrder(domain.StatusPending)
		o.IsDepositPaid = false
		_, err := Propose(o, domain.StatusConfirmed, at)
		var ge *GuardError
		if !errors.As(err, &ge) || ge.Reason != ReasonDepositUnpaid {
			t.Fatalf("got %v", err)
		}
	})

	t.Run("confirmed to in progress has no extra guard", func(t *testing.T) {
		o := readyOrder(domain.StatusConfirmed)
		o.Products["p1"].Workflows["w1"].IsDone = false
		if _, err := Propose(o, domain.StatusInProgress, at); err != nil {
			t.Fatalf("propose: %v", err)
		}
	})

	t.Run("production incomplete blocks on hold", func(t *testing.T) {
		o := readyOrder(domain.StatusInProgress)
		o.Products["p1"].Workflows["w1"].IsDone = false
		_, err := Propose(o, domain.StatusOnHold, at)
		var ge *GuardError
		if !errors.As(err, &ge) || ge.Reason != ReasonProductionIncomplete {
			t.Fatalf("got %v", err)
		}
	})

	t.Run("all workflows done reaches on hold", func(t *testing.T) {
		o := readyOrder(domain.StatusInProgress)
		patch, err := Propose(o, domain.StatusOnHold, at)
		if err != nil {
			t.Fatalf("propose: %v", err)
		}
		if patch["status"] != string(domain.StatusOnHold) {
			t.Fatalf("patch status = %v", patch["status"])
		}
		if patch["updatedAt"] != at.UTC().Format(time.RFC3339Nano) {
			t.Fatalf("patch updatedAt = %v", patch["updatedAt"])
		}
	})

	t.Run("missing completed images blocks completion then passes", func(t *testing.T) {
		o := readyOrder(domain.StatusOnHold)
		o.Products["p1"].ImagesDone = nil
		_, err := Propose(o, domain.StatusCompleted, at)
		var ge *GuardError
		if !errors.As(err, &ge) || ge.Reason != ReasonMissingCompletedImages {
			t.Fatalf("got %v", err)
		}

		o.Products["p1"].ImagesDone = []string{"https://img/done-1.jpg"}
		if _, err := Propose(o, domain.StatusCompleted, at); err != nil {
			t.Fatalf("retry after upload: %v", err)
		}
	})

	t.Run("zero workflow product is an invariant violation", func(t *testing.T) {
		o := readyOrder(domain.StatusPending)
		o.Products["p1"].Workflows = map[string]*domain.Workflow{}
		_, err := Propose(o, domain.StatusConfirmed, at)
		var ie *InvariantError
		if !errors.As(err, &ie) {
			t.Fatalf("got %T: %v", err, err)
		}
	})
}

func TestProposeCancel(t *testing.T) {
	for _, st := range []domain.Status{domain.StatusPending, domain.StatusConfirmed, domain.StatusInProgress, domain.StatusOnHold} {
		o := readyOrder(st)
		// strip everything the guards look at; cancel must not care
		o.IsDepositPaid = false
		o.Products["p1"].Images = nil
		o.Products["p1"].ImagesDone = nil
		o.Products["p1"].Workflows["w1"].IsDone = false
		patch, err := Propose(o, domain.StatusCancelled, at)
		if err != nil {
			t.Fatalf("cancel from %s: %v", st, err)
		}
		if patch["status"] != string(domain.StatusCancelled) {
			t.Fatalf("patch status = %v", patch["status"])
		}
	}
}

// The observed statuses of an order driven through every accepted transition
// form the forward sequence with no regression.
func TestForwardSequenceProperty(t *testing.T) {
	o := readyOrder(domain.StatusPending)
	seen := []domain.Status{o.Status}
	for {
		next := o.Status.Next()
		if next == "" {
			break
		}
		if _, err := Propose(o, next, at); err != nil {
			t.Fatalf("from %s to %s: %v", o.Status, next, err)
		}
		o.Status = next
		seen = append(seen, next)
	}
	if len(seen) != len(domain.Sequence) {
		t.Fatalf("visited %v", seen)
	}
	for i, st := range domain.Sequence {
		if seen[i] != st {
			t.Fatalf("visited %v, want %v", seen, domain.Sequence)
		}
	}
}
