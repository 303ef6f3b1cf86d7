package workflow

import (
	"errors"
	"testing"

	"github.com/hoangvu/atelierdesk/internal/domain"
)

type fakeDirs struct {
	departments map[string]domain.Department
	stages      map[string]domain.Stage
	staff       map[string]domain.Staff
}

func (f *fakeDirs) Department(code string) (domain.Department, bool) {
	d, ok := f.departments[code]
	return d, ok
}

func (f *fakeDirs) Stage(code string) (domain.Stage, bool) {
	s, ok := f.stages[code]
	return s, ok
}

func (f *fakeDirs) Staff(id string) (domain.Staff, bool) {
	s, ok := f.staff[id]
	return s, ok
}

func (f *fakeDirs) ByDepartment(code string) []domain.Staff {
	var out []domain.Staff
	for _, s := range f.staff {
		if s.InDepartment(code) {
			out = append(out, s)
		}
	}
	return out
}

func dirs() *fakeDirs {
	return &fakeDirs{
		departments: map[string]domain.Department{
			"CLEAN":  {Code: "CLEAN", Name: "Cleaning"},
			"CUSTOM": {Code: "CUSTOM", Name: "Customization"},
		},
		stages: map[string]domain.Stage{
			"CLEAN_DEEP":   {Code: "CLEAN_DEEP", Name: "Deep clean", DepartmentCode: "CLEAN"},
			"CLEAN_SOLE":   {Code: "CLEAN_SOLE", Name: "Sole whitening", DepartmentCode: "CLEAN"},
			"CUSTOM_PAINT": {Code: "CUSTOM_PAINT", Name: "Hand paint", DepartmentCode: "CUSTOM"},
		},
		staff: map[string]domain.Staff{
			"st-linh": {ID: "st-linh", Name: "Linh", Departments: []string{"CLEAN"}},
			"st-mai":  {ID: "st-mai", Name: "Mai", Departments: []string{"CUSTOM"}},
		},
	}
}

func TestCompletionQueries(t *testing.T) {
	done := &domain.Workflow{DepartmentCode: "CLEAN", IsDone: true}
	open := &domain.Workflow{DepartmentCode: "CLEAN"}

	t.Run("product without workflows is never complete", func(t *testing.T) {
		if IsProductComplete(&domain.Product{}) {
			t.Fatal("expected incomplete")
		}
	})

	t.Run("product complete iff all workflows done", func(t *testing.T) {
		p := &domain.Product{Workflows: map[string]*domain.Workflow{"a": done, "b": open}}
		if IsProductComplete(p) {
			t.Fatal("expected incomplete with one open workflow")
		}
		p.Workflows["b"] = done
		if !IsProductComplete(p) {
			t.Fatal("expected complete")
		}
	})

	t.Run("order complete iff all products complete", func(t *testing.T) {
		o := &domain.Order{Products: map[string]*domain.Product{
			"p1": {Workflows: map[string]*domain.Workflow{"a": done}},
			"p2": {Workflows: map[string]*domain.Workflow{"a": open}},
		}}
		if IsOrderProductionComplete(o) {
			t.Fatal("expected incomplete")
		}
		o.Products["p2"].Workflows["a"] = done
		if !IsOrderProductionComplete(o) {
			t.Fatal("expected complete")
		}
		d, total := OrderProgress(o)
		if d != 2 || total != 2 {
			t.Fatalf("progress = %d/%d, want 2/2", d, total)
		}
	})
}

func TestSetDepartment(t *testing.T) {
	tr := New(dirs())
	w := &domain.Workflow{
		DepartmentCode: "CLEAN",
		WorkflowCode:   []string{"CLEAN_DEEP"},
		WorkflowName:   []string{"Deep clean"},
		Members:        []string{"st-linh"},
	}

	if err := tr.SetDepartment(w, "CUSTOM"); err != nil {
		t.Fatalf("SetDepartment: %v", err)
	}
	if w.DepartmentCode != "CUSTOM" {
		t.Fatalf("department = %q", w.DepartmentCode)
	}
	// dependent fields never survive a department change
	if len(w.WorkflowCode) != 0 || len(w.WorkflowName) != 0 || len(w.Members) != 0 {
		t.Fatalf("dependent fields not cleared: %+v", w)
	}

	if err := tr.SetDepartment(w, "NOPE"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown department: got %v", err)
	}
}

func TestSetStages(t *testing.T) {
	tr := New(dirs())
	w := &domain.Workflow{DepartmentCode: "CLEAN", Members: []string{"st-linh"}}

	if err := tr.SetStages(w, []string{"CLEAN_DEEP", "CLEAN_SOLE"}); err != nil {
		t.Fatalf("SetStages: %v", err)
	}
	if len(w.WorkflowName) != 2 || w.WorkflowName[0] != "Deep clean" || w.WorkflowName[1] != "Sole whitening" {
		t.Fatalf("names = %v", w.WorkflowName)
	}
	if len(w.Members) != 0 {
		t.Fatal("stage change must clear staff assignment")
	}

	t.Run("stage outside department rejected", func(t *testing.T) {
		if err := tr.SetStages(w, []string{"CUSTOM_PAINT"}); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("unknown stage rejected", func(t *testing.T) {
		if err := tr.SetStages(w, []string{"NOPE"}); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("got %v", err)
		}
	})
}

func TestAssignStaff(t *testing.T) {
	tr := New(dirs())
	w := &domain.Workflow{DepartmentCode: "CLEAN"}

	if err := tr.AssignStaff(w, []string{"st-linh"}); err != nil {
		t.Fatalf("AssignStaff: %v", err)
	}
	if err := tr.AssignStaff(w, []string{"st-mai"}); err == nil {
		t.Fatal("staff outside department must be rejected")
	}
	if err := tr.AssignStaff(w, []string{"ghost"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown staff: got %v", err)
	}

	eligible := tr.Eligible("CLEAN")
	if len(eligible) != 1 || eligible[0].ID != "st-linh" {
		t.Fatalf("eligible = %v", eligible)
	}
}

func TestValidate(t *testing.T) {
	tr := New(dirs())
	if err := tr.Validate(&domain.Workflow{DepartmentCode: "CLEAN", WorkflowCode: []string{"CLEAN_DEEP"}}); err != nil {
		t.Fatalf("valid workflow: %v", err)
	}
	if err := tr.Validate(&domain.Workflow{DepartmentCode: "GONE"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("got %v", err)
	}
}
