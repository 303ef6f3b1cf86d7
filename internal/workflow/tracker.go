// Package workflow answers production-completion queries over an order's
// nested workflows and keeps dependent workflow fields (department → stages →
// staff) consistent when one of them changes.
package workflow

import (
	"fmt"

	"github.com/hoangvu/atelierdesk/internal/domain"
)

// IsProductComplete is true iff every workflow of the product is done. A
// product without workflows is never complete.
func IsProductComplete(p *domain.Product) bool {
	if p == nil || len(p.Workflows) == 0 {
		return false
	}
	for _, w := range p.Workflows {
		if w == nil || !w.IsDone {
			return false
		}
	}
	return true
}

// IsOrderProductionComplete is true iff every product of the order is
// complete. An order without products has nothing to produce.
func IsOrderProductionComplete(o *domain.Order) bool {
	for _, p := range o.Products {
		if !IsProductComplete(p) {
			return false
		}
	}
	return true
}

// ProductProgress returns done and total workflow counts for a product.
func ProductProgress(p *domain.Product) (done, total int) {
	if p == nil {
		return 0, 0
	}
	for _, w := range p.Workflows {
		total++
		if w != nil && w.IsDone {
			done++
		}
	}
	return done, total
}

// OrderProgress aggregates ProductProgress across the order.
func OrderProgress(o *domain.Order) (done, total int) {
	for _, p := range o.Products {
		d, t := ProductProgress(p)
		done += d
		total += t
	}
	return done, total
}

// Tracker edits workflows against injected read-only directories.
type Tracker struct {
	Dirs domain.Directories
}

func New(dirs domain.Directories) *Tracker { return &Tracker{Dirs: dirs} }

// SetDepartment moves the workflow to another department. Stage selection,
// the stage-name cache and staff assignment all depend on the department, so
// all three are cleared; callers must not assume any of them survive.
func (t *Tracker) SetDepartment(w *domain.Workflow, dept string) error {
	if _, ok := t.Dirs.Department(dept); !ok {
		return fmt.Errorf("department %q: %w", dept, domain.ErrNotFound)
	}
	w.DepartmentCode = dept
	w.WorkflowCode = nil
	w.WorkflowName = nil
	w.Members = nil
	return nil
}

// SetStages replaces the stage selection, resolving display names from the
// stage directory. Staff assignment is cleared because eligibility is
// re-filtered upstream per department and stage capability.
func (t *Tracker) SetStages(w *domain.Workflow, codes []string) error {
	names := make([]string, 0, len(codes))
	for _, c := range codes {
		st, ok := t.Dirs.Stage(c)
		if !ok {
			return fmt.Errorf("stage %q: %w", c, domain.ErrNotFound)
		}
		if st.DepartmentCode != "" && st.DepartmentCode != w.DepartmentCode {
			return fmt.Errorf("stage %q not in department %q: %w", c, w.DepartmentCode, domain.ErrNotFound)
		}
		names = append(names, st.Name)
	}
	w.WorkflowCode = append([]string(nil), codes...)
	w.WorkflowName = names
	w.Members = nil
	return nil
}

// AssignStaff sets the member list, rejecting anyone outside the workflow's
// department.
func (t *Tracker) AssignStaff(w *domain.Workflow, ids []string) error {
	members := make([]string, 0, len(ids))
	for _, id := range ids {
		st, ok := t.Dirs.Staff(id)
		if !ok {
			return fmt.Errorf("staff %q: %w", id, domain.ErrNotFound)
		}
		if !st.InDepartment(w.DepartmentCode) {
			return fmt.Errorf("staff %q not in department %q", id, w.DepartmentCode)
		}
		members = append(members, id)
	}
	w.Members = members
	return nil
}

// Eligible lists the staff assignable to workflows of a department. The
// result is recomputed per call so directory changes take effect immediately.
func (t *Tracker) Eligible(dept string) []domain.Staff {
	return t.Dirs.ByDepartment(dept)
}

// Validate checks a workflow's references against the directories. A failure
// here means corrupted upstream data, not user error.
func (t *Tracker) Validate(w *domain.Workflow) error {
	if _, ok := t.Dirs.Department(w.DepartmentCode); !ok {
		return fmt.Errorf("department %q: %w", w.DepartmentCode, domain.ErrNotFound)
	}
	for _, c := range w.WorkflowCode {
		if _, ok := t.Dirs.Stage(c); !ok {
			return fmt.Errorf("stage %q: %w", c, domain.ErrNotFound)
		}
	}
	return nil
}
