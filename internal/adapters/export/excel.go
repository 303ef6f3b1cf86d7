// Package export renders an order as an xlsx sheet for the back office.
package export

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/hoangvu/atelierdesk/internal/domain"
	"github.com/hoangvu/atelierdesk/internal/workflow"
)

const sheet = "Order"

// WriteOrderSheet streams an xlsx with the order header, its product lines
// with workflow progress, and the financial breakdown.
func WriteOrderSheet(w io.Writer, o *domain.Order) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	idx, err := f.NewSheet(sheet)
	if err != nil {
		return err
	}
	f.SetActiveSheet(idx)
	_ = f.DeleteSheet("Sheet1")

	row := 1
	set := func(col string, v any) {
		_ = f.SetCellValue(sheet, fmt.Sprintf("%s%d", col, row), v)
	}

	set("A", "Order")
	set("B", o.Code)
	row++
	set("A", "Customer")
	set("B", o.CustomerName)
	set("C", o.CustomerPhone)
	row++
	set("A", "Status")
	set("B", string(o.Status))
	row++
	set("A", "Ordered")
	set("B", o.OrderedAt.Format("2006-01-02"))
	if o.DeliveryAt != nil {
		set("C", o.DeliveryAt.Format("2006-01-02"))
	}
	row += 2

	set("A", "Product")
	set("B", "Qty")
	set("C", "Price")
	set("D", "Line total")
	set("E", "Progress")
	set("F", "Departments")
	row++

	for _, id := range sortedKeys(o.Products) {
		p := o.Products[id]
		qty := p.Quantity
		if qty < 1 {
			qty = 1
		}
		done, total := workflow.ProductProgress(p)
		depts := map[string]struct{}{}
		for _, wf := range p.Workflows {
			depts[wf.DepartmentCode] = struct{}{}
		}
		names := make([]string, 0, len(depts))
		for d := range depts {
			names = append(names, d)
		}
		sort.Strings(names)

		set("A", p.Name)
		set("B", qty)
		set("C", p.Price)
		set("D", int64(qty)*p.Price)
		set("E", fmt.Sprintf("%d/%d", done, total))
		set("F", strings.Join(names, ", "))
		row++
	}
	row++

	for _, line := range []struct {
		label string
		value int64
	}{
		{"Subtotal", o.Subtotal},
		{"Discount", o.DiscountAmount},
		{"Shipping", o.ShippingFee},
		{"Total", o.Total},
		{"Deposit", o.DepositAmount},
		{"Remaining", o.Remaining},
	} {
		set("A", line.label)
		set("B", line.value)
		row++
	}

	if len(o.Issues) > 0 {
		row++
		set("A", "Issues")
		row++
		for _, issue := range o.Issues {
			set("A", issue)
			row++
		}
	}

	return f.Write(w)
}

func sortedKeys(m map[string]*domain.Product) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
