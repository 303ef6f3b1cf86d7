package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusConfirmed  Status = "CONFIRMED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusOnHold     Status = "ON_HOLD"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

// Sequence is the only forward path an order may take. CANCELLED sits outside
// it and is reachable from any non-terminal status.
var Sequence = []Status{StatusPending, StatusConfirmed, StatusInProgress, StatusOnHold, StatusCompleted}

func (s Status) Valid() bool {
	if s == StatusCancelled {
		return true
	}
	for _, st := range Sequence {
		if st == s {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Next returns the immediate successor in the forward sequence, or "" when the
// status is last in the sequence or not part of it.
func (s Status) Next() Status {
	for i, st := range Sequence {
		if st == s && i+1 < len(Sequence) {
			return Sequence[i+1]
		}
	}
	return ""
}

// ValueKind says whether a discount/deposit field holds an absolute amount in
// minor currency units or a percentage.
type ValueKind string

const (
	KindAmount  ValueKind = "amount"
	KindPercent ValueKind = "percent"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrOrderExists = errors.New("order already exists")
	// ErrOrderLocked rejects edits outside the order's mutability window.
	ErrOrderLocked = errors.New("order locked for editing")
)

// Workflow is a production stage grouping inside a product: one department,
// the stage codes performed there, the assigned staff and a done flag.
// WorkflowName caches the stage display names resolved at selection time.
type Workflow struct {
	DepartmentCode string    `json:"departmentCode"`
	WorkflowCode   []string  `json:"workflowCode"`
	WorkflowName   []string  `json:"workflowName"`
	Members        []string  `json:"members"`
	IsDone         bool      `json:"isDone"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type Product struct {
	Name       string               `json:"name"`
	Quantity   int                  `json:"quantity"`
	Price      int64                `json:"price"`
	Images     []string             `json:"images"`
	ImagesDone []string             `json:"imagesDone"`
	Workflows  map[string]*Workflow `json:"workflows"`
}

// Order is the aggregate root. Monetary amounts are int64 minor currency
// units; Discount/Deposit hold either an amount or a percentage depending on
// their ValueKind. Subtotal through Remaining are a cached display snapshot,
// always recomputed from the source fields, never edited directly.
type Order struct {
	Code          string     `json:"code"`
	Status        Status     `json:"status"`
	CustomerName  string     `json:"customerName"`
	CustomerPhone string     `json:"customerPhone"`
	OrderedAt     time.Time  `json:"orderedAt"`
	DeliveryAt    *time.Time `json:"deliveryAt,omitempty"`
	Notes         string     `json:"notes"`
	Issues        []string   `json:"issues"`

	Discount      decimal.Decimal `json:"discount"`
	DiscountType  ValueKind       `json:"discountType"`
	ShippingFee   int64           `json:"shippingFee"`
	Deposit       decimal.Decimal `json:"deposit"`
	DepositType   ValueKind       `json:"depositType"`
	IsDepositPaid bool            `json:"isDepositPaid"`

	ConsultantID         string          `json:"consultantId"`
	CommissionPercentage decimal.Decimal `json:"commissionPercentage"`

	Subtotal       int64 `json:"subtotal"`
	DiscountAmount int64 `json:"discountAmount"`
	Total          int64 `json:"total"`
	DepositAmount  int64 `json:"depositAmount"`
	Remaining      int64 `json:"remaining"`

	Products  map[string]*Product `json:"products"`
	UpdatedAt time.Time           `json:"updatedAt"`
}

// Patch is a partial order document keyed by the persisted field names.
type Patch map[string]any

// Clone deep-copies the aggregate so staged edits never alias the snapshot
// they were derived from.
func (o *Order) Clone() *Order {
	cp := *o
	if o.DeliveryAt != nil {
		t := *o.DeliveryAt
		cp.DeliveryAt = &t
	}
	cp.Issues = append([]string(nil), o.Issues...)
	cp.Products = make(map[string]*Product, len(o.Products))
	for id, p := range o.Products {
		pc := *p
		pc.Images = append([]string(nil), p.Images...)
		pc.ImagesDone = append([]string(nil), p.ImagesDone...)
		pc.Workflows = make(map[string]*Workflow, len(p.Workflows))
		for wid, w := range p.Workflows {
			wc := *w
			wc.WorkflowCode = append([]string(nil), w.WorkflowCode...)
			wc.WorkflowName = append([]string(nil), w.WorkflowName...)
			wc.Members = append([]string(nil), w.Members...)
			pc.Workflows[wid] = &wc
		}
		cp.Products[id] = &pc
	}
	return &cp
}

// ApplyPatch merges a partial document over the order through its JSON shape
// and returns the merged copy. The receiver is left untouched.
func (o *Order) ApplyPatch(p Patch) (*Order, error) {
	raw, err := json.Marshal(o)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	for k, v := range p {
		doc[k] = v
	}
	merged, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var out Order
	if err := json.Unmarshal(merged, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CanEditStructure covers product/workflow composition and received images.
func (o *Order) CanEditStructure() bool {
	return o.Status == StatusPending || o.Status == StatusConfirmed
}

// CanEditCompletedImages covers the "completed" image set, collected during
// production and required before COMPLETED.
func (o *Order) CanEditCompletedImages() bool {
	return o.Status == StatusInProgress || o.Status == StatusOnHold
}

// CanEditFinancials covers discount, shipping, deposit and commission fields.
func (o *Order) CanEditFinancials() bool {
	return !o.Status.Terminal()
}
