package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hoangvu/atelierdesk/internal/domain"
	"github.com/hoangvu/atelierdesk/internal/finance"
	"github.com/hoangvu/atelierdesk/internal/workflow"
)

// OrderUC edits the order aggregate. Every write goes through the same path:
// read the current snapshot, check the mutability window, mutate a clone,
// re-derive the cached financial snapshot and write the aggregate back as one
// document. Nested workflows are never patched independently of the order.
type OrderUC struct {
	Store domain.OrderStore
	Dirs  domain.DirectorySource
}

// CreateDraft persists a new order together with its products and workflows.
// The draft always starts at PENDING regardless of what the caller set.
func (uc *OrderUC) CreateDraft(ctx context.Context, o *domain.Order) error {
	o.Code = strings.TrimSpace(o.Code)
	if o.Code == "" {
		return errors.New("order code required")
	}
	if _, err := uc.Store.Read(ctx, o.Code); err == nil {
		return domain.ErrOrderExists
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	o.Status = domain.StatusPending
	if o.OrderedAt.IsZero() {
		o.OrderedAt = time.Now()
	}
	if o.DiscountType == "" {
		o.DiscountType = domain.KindAmount
	}
	if o.DepositType == "" {
		o.DepositType = domain.KindAmount
	}
	if o.Products == nil {
		o.Products = map[string]*domain.Product{}
	}
	for _, p := range o.Products {
		if p.Quantity < 1 {
			p.Quantity = 1
		}
		if p.Workflows == nil {
			p.Workflows = map[string]*domain.Workflow{}
		}
	}
	refreshTotals(o)
	o.UpdatedAt = time.Now()
	return uc.Store.Write(ctx, o)
}

func (uc *OrderUC) Get(ctx context.Context, code string) (*domain.Order, error) {
	return uc.Store.Read(ctx, code)
}

// UpsertProduct adds or replaces a product. An empty id makes a new one; the
// generated id is returned.
func (uc *OrderUC) UpsertProduct(ctx context.Context, code, productID string, p *domain.Product) (string, error) {
	if p == nil {
		return "", errors.New("product required")
	}
	if productID == "" {
		productID = uuid.NewString()
	}
	err := uc.update(ctx, code, editStructure, func(o *domain.Order) error {
		if p.Quantity < 1 {
			p.Quantity = 1
		}
		if p.Price < 0 {
			p.Price = 0
		}
		if prev, ok := o.Products[productID]; ok && p.Workflows == nil {
			p.Workflows = prev.Workflows
		}
		if p.Workflows == nil {
			p.Workflows = map[string]*domain.Workflow{}
		}
		o.Products[productID] = p
		return nil
	})
	return productID, err
}

func (uc *OrderUC) RemoveProduct(ctx context.Context, code, productID string) error {
	return uc.update(ctx, code, editStructure, func(o *domain.Order) error {
		if _, ok := o.Products[productID]; !ok {
			return domain.ErrNotFound
		}
		delete(o.Products, productID)
		return nil
	})
}

// AddReceivedImage records a "received" image reference on a product. Only
// the durable URL is stored; upload transport lives elsewhere.
func (uc *OrderUC) AddReceivedImage(ctx context.Context, code, productID, url string) error {
	return uc.update(ctx, code, editStructure, func(o *domain.Order) error {
		p, ok := o.Products[productID]
		if !ok {
			return domain.ErrNotFound
		}
		p.Images = append(p.Images, url)
		return nil
	})
}

func (uc *OrderUC) AddCompletedImage(ctx context.Context, code, productID, url string) error {
	return uc.update(ctx, code, editCompletedImages, func(o *domain.Order) error {
		p, ok := o.Products[productID]
		if !ok {
			return domain.ErrNotFound
		}
		p.ImagesDone = append(p.ImagesDone, url)
		return nil
	})
}

// AddWorkflow appends an empty workflow in the given department and returns
// its id.
func (uc *OrderUC) AddWorkflow(ctx context.Context, code, productID, dept string) (string, error) {
	workflowID := uuid.NewString()
	dirs, err := uc.Dirs.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	err = uc.update(ctx, code, editStructure, func(o *domain.Order) error {
		p, ok := o.Products[productID]
		if !ok {
			return domain.ErrNotFound
		}
		w := &domain.Workflow{UpdatedAt: time.Now()}
		if err := workflow.New(dirs).SetDepartment(w, dept); err != nil {
			return err
		}
		p.Workflows[workflowID] = w
		return nil
	})
	return workflowID, err
}

func (uc *OrderUC) RemoveWorkflow(ctx context.Context, code, productID, workflowID string) error {
	return uc.update(ctx, code, editStructure, func(o *domain.Order) error {
		p, ok := o.Products[productID]
		if !ok {
			return domain.ErrNotFound
		}
		if _, ok := p.Workflows[workflowID]; !ok {
			return domain.ErrNotFound
		}
		delete(p.Workflows, workflowID)
		return nil
	})
}

// SetWorkflowDepartment changes a workflow's department, which also clears
// its stage selection, stage-name cache and members.
func (uc *OrderUC) SetWorkflowDepartment(ctx context.Context, code, productID, workflowID, dept string) error {
	return uc.editWorkflow(ctx, code, productID, workflowID, func(t *workflow.Tracker, w *domain.Workflow) error {
		return t.SetDepartment(w, dept)
	})
}

func (uc *OrderUC) SetWorkflowStages(ctx context.Context, code, productID, workflowID string, stageCodes []string) error {
	return uc.editWorkflow(ctx, code, productID, workflowID, func(t *workflow.Tracker, w *domain.Workflow) error {
		return t.SetStages(w, stageCodes)
	})
}

func (uc *OrderUC) AssignWorkflowStaff(ctx context.Context, code, productID, workflowID string, staffIDs []string) error {
	return uc.editWorkflow(ctx, code, productID, workflowID, func(t *workflow.Tracker, w *domain.Workflow) error {
		return t.AssignStaff(w, staffIDs)
	})
}

// SetWorkflowDone flips a workflow's completion flag. Allowed on any
// non-terminal order; the lifecycle guards read the flags, they do not own
// them.
func (uc *OrderUC) SetWorkflowDone(ctx context.Context, code, productID, workflowID string, done bool) error {
	return uc.update(ctx, code, editProduction, func(o *domain.Order) error {
		w, err := findWorkflow(o, productID, workflowID)
		if err != nil {
			return err
		}
		w.IsDone = done
		w.UpdatedAt = time.Now()
		return nil
	})
}

// Financials carries the editable pricing inputs of an order.
type Financials struct {
	Discount             decimal.Decimal
	DiscountType         domain.ValueKind
	ShippingFee          int64
	Deposit              decimal.Decimal
	DepositType          domain.ValueKind
	IsDepositPaid        bool
	ConsultantID         string
	CommissionPercentage decimal.Decimal
}

func (uc *OrderUC) SetFinancials(ctx context.Context, code string, f Financials) error {
	if f.DiscountType != domain.KindAmount && f.DiscountType != domain.KindPercent {
		return fmt.Errorf("bad discount type %q", f.DiscountType)
	}
	if f.DepositType != domain.KindAmount && f.DepositType != domain.KindPercent {
		return fmt.Errorf("bad deposit type %q", f.DepositType)
	}
	return uc.update(ctx, code, editFinancials, func(o *domain.Order) error {
		o.Discount = f.Discount
		o.DiscountType = f.DiscountType
		o.ShippingFee = f.ShippingFee
		o.Deposit = f.Deposit
		o.DepositType = f.DepositType
		o.IsDepositPaid = f.IsDepositPaid
		o.ConsultantID = f.ConsultantID
		o.CommissionPercentage = f.CommissionPercentage
		return nil
	})
}

func (uc *OrderUC) AddIssue(ctx context.Context, code, issue string) error {
	issue = strings.TrimSpace(issue)
	if issue == "" {
		return errors.New("issue text required")
	}
	return uc.update(ctx, code, editProduction, func(o *domain.Order) error {
		o.Issues = append(o.Issues, issue)
		return nil
	})
}

func (uc *OrderUC) RemoveIssue(ctx context.Context, code string, index int) error {
	return uc.update(ctx, code, editProduction, func(o *domain.Order) error {
		if index < 0 || index >= len(o.Issues) {
			return domain.ErrNotFound
		}
		o.Issues = append(o.Issues[:index], o.Issues[index+1:]...)
		return nil
	})
}

func (uc *OrderUC) SetNotes(ctx context.Context, code, notes string) error {
	return uc.update(ctx, code, editProduction, func(o *domain.Order) error {
		o.Notes = notes
		return nil
	})
}

type editWindow int

const (
	editStructure editWindow = iota
	editCompletedImages
	editFinancials
	editProduction
)

func allowed(o *domain.Order, win editWindow) bool {
	switch win {
	case editStructure:
		return o.CanEditStructure()
	case editCompletedImages:
		return o.CanEditCompletedImages()
	case editFinancials:
		return o.CanEditFinancials()
	default:
		return !o.Status.Terminal()
	}
}

func (uc *OrderUC) update(ctx context.Context, code string, win editWindow, mutate func(*domain.Order) error) error {
	cur, err := uc.Store.Read(ctx, code)
	if err != nil {
		return err
	}
	if !allowed(cur, win) {
		return domain.ErrOrderLocked
	}
	next := cur.Clone()
	if err := mutate(next); err != nil {
		return err
	}
	refreshTotals(next)
	next.UpdatedAt = time.Now()
	return uc.Store.Write(ctx, next)
}

func (uc *OrderUC) editWorkflow(ctx context.Context, code, productID, workflowID string, edit func(*workflow.Tracker, *domain.Workflow) error) error {
	dirs, err := uc.Dirs.Snapshot(ctx)
	if err != nil {
		return err
	}
	return uc.update(ctx, code, editStructure, func(o *domain.Order) error {
		w, err := findWorkflow(o, productID, workflowID)
		if err != nil {
			return err
		}
		if err := edit(workflow.New(dirs), w); err != nil {
			return err
		}
		w.UpdatedAt = time.Now()
		return nil
	})
}

func findWorkflow(o *domain.Order, productID, workflowID string) (*domain.Workflow, error) {
	p, ok := o.Products[productID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	w, ok := p.Workflows[workflowID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return w, nil
}

// refreshTotals re-derives the cached display snapshot from the source
// fields.
func refreshTotals(o *domain.Order) {
	t := finance.ComputeTotals(o.Products, o.Discount, o.DiscountType, o.ShippingFee)
	d := finance.ComputeDeposit(t.Total, o.Deposit, o.DepositType)
	o.Subtotal = t.Subtotal
	o.DiscountAmount = t.DiscountAmount
	o.Total = t.Total
	o.DepositAmount = d.DepositAmount
	o.Remaining = d.Remaining
}
