package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/hoangvu/atelierdesk/internal/adapters/export"
	"github.com/hoangvu/atelierdesk/internal/adapters/mailer"
	"github.com/hoangvu/atelierdesk/internal/domain"
	"github.com/hoangvu/atelierdesk/internal/finance"
	"github.com/hoangvu/atelierdesk/internal/lifecycle"
	"github.com/hoangvu/atelierdesk/internal/reconcile"
	"github.com/hoangvu/atelierdesk/internal/usecase"
	"github.com/hoangvu/atelierdesk/internal/workflow"
)

type Server struct {
	mux    *http.ServeMux
	orders *usecase.OrderUC
	rec    *reconcile.Reconciler
	index  domain.OrderIndex
	dirs   domain.DirectorySource
	mail   *mailer.Mailer
}

func New(o *usecase.OrderUC, rec *reconcile.Reconciler, index domain.OrderIndex, dirs domain.DirectorySource, mail *mailer.Mailer) http.Handler {
	s := &Server{mux: http.NewServeMux(), orders: o, rec: rec, index: index, dirs: dirs, mail: mail}
	s.routes()
	return Chain(s.mux,
		RateLimit(240),
		RequestID,
		Recovery,
		Logging,
	)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/orders", s.apiOrders)
	s.mux.HandleFunc("/api/orders/", s.apiOrderByCode)
	s.mux.HandleFunc("/api/intents/", s.apiIntent)
	s.mux.HandleFunc("/api/board", s.apiBoard)
	s.mux.HandleFunc("/api/board/move", s.apiBoardMove)
	s.mux.HandleFunc("/api/totals/preview", s.apiTotalsPreview)
	s.mux.HandleFunc("/api/directory/staff", s.apiEligibleStaff)
}

func (s *Server) apiOrders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method", 405)
		return
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	var o domain.Order
	if err := dec.Decode(&o); err != nil {
		http.Error(w, "json", 400)
		return
	}
	if err := s.orders.CreateDraft(r.Context(), &o); err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, 201, o)
}

// apiOrderByCode routes everything under /api/orders/{code}. Kept in one
// handler per the routing style of the rest of the API.
func (s *Server) apiOrderByCode(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/orders/"), "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "code", 400)
		return
	}
	code := parts[0]
	rest := parts[1:]

	if len(rest) == 0 {
		if r.Method != http.MethodGet {
			http.Error(w, "method", 405)
			return
		}
		o, err := s.orders.Get(r.Context(), code)
		if err != nil {
			s.writeErr(w, err)
			return
		}
		writeJSON(w, 200, o)
		return
	}

	switch rest[0] {
	case "products":
		s.apiProducts(w, r, code, rest[1:])
	case "financials":
		s.apiFinancials(w, r, code)
	case "issues":
		s.apiIssues(w, r, code, rest[1:])
	case "notes":
		s.apiNotes(w, r, code)
	case "intent":
		s.apiOrderIntent(w, r, code)
	case "export":
		s.apiExport(w, r, code)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) apiProducts(w http.ResponseWriter, r *http.Request, code string, rest []string) {
	ctx := r.Context()
	switch {
	case len(rest) == 0 && r.Method == http.MethodPost:
		var p domain.Product
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&p); err != nil {
			http.Error(w, "json", 400)
			return
		}
		id, err := s.orders.UpsertProduct(ctx, code, "", &p)
		if err != nil {
			s.writeErr(w, err)
			return
		}
		writeJSON(w, 201, map[string]any{"productId": id})

	case len(rest) == 1 && r.Method == http.MethodPut:
		var p domain.Product
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&p); err != nil {
			http.Error(w, "json", 400)
			return
		}
		if _, err := s.orders.UpsertProduct(ctx, code, rest[0], &p); err != nil {
			s.writeErr(w, err)
			return
		}
		writeJSON(w, 200, map[string]any{"productId": rest[0]})

	case len(rest) == 1 && r.Method == http.MethodDelete:
		if err := s.orders.RemoveProduct(ctx, code, rest[0]); err != nil {
			s.writeErr(w, err)
			return
		}
		w.WriteHeader(204)

	case len(rest) == 2 && rest[1] == "images" && r.Method == http.MethodPost:
		var req struct {
			URL  string `json:"url"`
			Kind string `json:"kind"` // received | completed
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil {
			http.Error(w, "json", 400)
			return
		}
		if strings.TrimSpace(req.URL) == "" {
			http.Error(w, "url", 400)
			return
		}
		var err error
		switch req.Kind {
		case "completed":
			err = s.orders.AddCompletedImage(ctx, code, rest[0], req.URL)
		case "received", "":
			err = s.orders.AddReceivedImage(ctx, code, rest[0], req.URL)
		default:
			http.Error(w, "kind", 400)
			return
		}
		if err != nil {
			s.writeErr(w, err)
			return
		}
		w.WriteHeader(204)

	case len(rest) == 2 && rest[1] == "workflows" && r.Method == http.MethodPost:
		var req struct {
			Department string `json:"department"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil {
			http.Error(w, "json", 400)
			return
		}
		id, err := s.orders.AddWorkflow(ctx, code, rest[0], req.Department)
		if err != nil {
			s.writeErr(w, err)
			return
		}
		writeJSON(w, 201, map[string]any{"workflowId": id})

	case len(rest) == 3 && rest[1] == "workflows" && r.Method == http.MethodDelete:
		if err := s.orders.RemoveWorkflow(ctx, code, rest[0], rest[2]); err != nil {
			s.writeErr(w, err)
			return
		}
		w.WriteHeader(204)

	case len(rest) == 4 && rest[1] == "workflows" && r.Method == http.MethodPut:
		s.apiWorkflowField(w, r, code, rest[0], rest[2], rest[3])

	default:
		http.NotFound(w, r)
	}
}

func (s *Server) apiWorkflowField(w http.ResponseWriter, r *http.Request, code, productID, workflowID, field string) {
	ctx := r.Context()
	body := io.LimitReader(r.Body, 8192)
	var err error
	switch field {
	case "department":
		var req struct {
			Department string `json:"department"`
		}
		if err = json.NewDecoder(body).Decode(&req); err == nil {
			err = s.orders.SetWorkflowDepartment(ctx, code, productID, workflowID, req.Department)
		}
	case "stages":
		var req struct {
			Stages []string `json:"stages"`
		}
		if err = json.NewDecoder(body).Decode(&req); err == nil {
			err = s.orders.SetWorkflowStages(ctx, code, productID, workflowID, req.Stages)
		}
	case "staff":
		var req struct {
			Staff []string `json:"staff"`
		}
		if err = json.NewDecoder(body).Decode(&req); err == nil {
			err = s.orders.AssignWorkflowStaff(ctx, code, productID, workflowID, req.Staff)
		}
	case "done":
		var req struct {
			Done bool `json:"done"`
		}
		if err = json.NewDecoder(body).Decode(&req); err == nil {
			err = s.orders.SetWorkflowDone(ctx, code, productID, workflowID, req.Done)
		}
	default:
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.writeErr(w, err)
		return
	}
	w.WriteHeader(204)
}

func (s *Server) apiFinancials(w http.ResponseWriter, r *http.Request, code string) {
	if r.Method != http.MethodPut {
		http.Error(w, "method", 405)
		return
	}
	var req struct {
		Discount             decimal.Decimal `json:"discount"`
		DiscountType         string          `json:"discountType"`
		ShippingFee          int64           `json:"shippingFee"`
		Deposit              decimal.Decimal `json:"deposit"`
		DepositType          string          `json:"depositType"`
		IsDepositPaid        bool            `json:"isDepositPaid"`
		ConsultantID         string          `json:"consultantId"`
		CommissionPercentage decimal.Decimal `json:"commissionPercentage"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 8192)).Decode(&req); err != nil {
		http.Error(w, "json", 400)
		return
	}
	err := s.orders.SetFinancials(r.Context(), code, usecase.Financials{
		Discount:             req.Discount,
		DiscountType:         domain.ValueKind(req.DiscountType),
		ShippingFee:          req.ShippingFee,
		Deposit:              req.Deposit,
		DepositType:          domain.ValueKind(req.DepositType),
		IsDepositPaid:        req.IsDepositPaid,
		ConsultantID:         req.ConsultantID,
		CommissionPercentage: req.CommissionPercentage,
	})
	if err != nil {
		s.writeErr(w, err)
		return
	}
	o, err := s.orders.Get(r.Context(), code)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, 200, o)
}

func (s *Server) apiIssues(w http.ResponseWriter, r *http.Request, code string, rest []string) {
	switch {
	case len(rest) == 0 && r.Method == http.MethodPost:
		var req struct {
			Issue string `json:"issue"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil {
			http.Error(w, "json", 400)
			return
		}
		if err := s.orders.AddIssue(r.Context(), code, req.Issue); err != nil {
			s.writeErr(w, err)
			return
		}
		w.WriteHeader(204)
	case len(rest) == 1 && r.Method == http.MethodDelete:
		idx, err := strconv.Atoi(rest[0])
		if err != nil {
			http.Error(w, "index", 400)
			return
		}
		if err := s.orders.RemoveIssue(r.Context(), code, idx); err != nil {
			s.writeErr(w, err)
			return
		}
		w.WriteHeader(204)
	default:
		http.Error(w, "method", 405)
	}
}

func (s *Server) apiNotes(w http.ResponseWriter, r *http.Request, code string) {
	if r.Method != http.MethodPut {
		http.Error(w, "method", 405)
		return
	}
	var req struct {
		Notes string `json:"notes"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil {
		http.Error(w, "json", 400)
		return
	}
	if err := s.orders.SetNotes(r.Context(), code, req.Notes); err != nil {
		s.writeErr(w, err)
		return
	}
	w.WriteHeader(204)
}

// apiOrderIntent stages a manual status change; nothing is persisted until
// the matching confirm call.
func (s *Server) apiOrderIntent(w http.ResponseWriter, r *http.Request, code string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method", 405)
		return
	}
	var req struct {
		Target string `json:"target"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil {
		http.Error(w, "json", 400)
		return
	}
	o, err := s.orders.Get(r.Context(), code)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	p := s.rec.OnIntent(o, domain.Status(req.Target))
	writeJSON(w, 200, p)
}

func (s *Server) apiIntent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method", 405)
		return
	}
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/intents/"), "/"), "/")
	if len(parts) != 2 {
		http.NotFound(w, r)
		return
	}
	token, err := uuid.Parse(parts[0])
	if err != nil {
		http.Error(w, "token", 400)
		return
	}

	switch parts[1] {
	case "cancel":
		if !s.rec.Cancel(token) {
			http.Error(w, "intent", 404)
			return
		}
		w.WriteHeader(204)

	case "confirm":
		var req struct {
			IsDepositPaid *bool            `json:"isDepositPaid"`
			Deposit       *decimal.Decimal `json:"deposit"`
			DepositType   *string          `json:"depositType"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, 8192)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "json", 400)
			return
		}
		extra := &reconcile.ConfirmFields{IsDepositPaid: req.IsDepositPaid, Deposit: req.Deposit}
		if req.DepositType != nil {
			k := domain.ValueKind(*req.DepositType)
			extra.DepositType = &k
		}
		pending, ok := s.rec.Pending(token)
		if !ok {
			http.Error(w, "intent", 404)
			return
		}
		patch, err := s.rec.Confirm(r.Context(), token, extra)
		if err != nil {
			s.writeErr(w, err)
			return
		}
		s.notify(pending.Code, patch)
		writeJSON(w, 200, patch)

	default:
		http.NotFound(w, r)
	}
}

// notify mails the committed transition in the background; never blocks the
// response.
func (s *Server) notify(code string, patch domain.Patch) {
	if s.mail == nil {
		return
	}
	status, _ := patch["status"].(string)
	if status == "" {
		return
	}
	go func() {
		o, err := s.orders.Get(context.Background(), code)
		if err != nil {
			return
		}
		s.mail.NotifyStatusChange(o, domain.Status(status))
	}()
}

func (s *Server) apiExport(w http.ResponseWriter, r *http.Request, code string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method", 405)
		return
	}
	o, err := s.orders.Get(r.Context(), code)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=order-%s.xlsx", code))
	if err := export.WriteOrderSheet(w, o); err != nil {
		log.Error().Err(err).Str("order", code).Msg("export")
	}
}

type boardCard struct {
	Code         string        `json:"code"`
	CustomerName string        `json:"customerName"`
	Status       domain.Status `json:"status"`
	Total        int64         `json:"total"`
	Remaining    int64         `json:"remaining"`
	Done         int           `json:"done"`
	Workflows    int           `json:"workflows"`
}

func (s *Server) apiBoard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method", 405)
		return
	}
	orders, err := s.index.List(r.Context())
	if err != nil {
		s.writeErr(w, err)
		return
	}
	columns := map[domain.Status][]boardCard{}
	for _, st := range append(append([]domain.Status{}, domain.Sequence...), domain.StatusCancelled) {
		columns[st] = []boardCard{}
	}
	for _, o := range orders {
		done, total := workflow.OrderProgress(o)
		columns[o.Status] = append(columns[o.Status], boardCard{
			Code:         o.Code,
			CustomerName: o.CustomerName,
			Status:       o.Status,
			Total:        o.Total,
			Remaining:    o.Remaining,
			Done:         done,
			Workflows:    total,
		})
	}
	writeJSON(w, 200, columns)
}

// apiBoardMove translates a drag between board columns into an intent. A
// drop into the order's own column answers moved=false with no intent.
func (s *Server) apiBoardMove(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method", 405)
		return
	}
	var req struct {
		Code string `json:"code"`
		To   string `json:"to"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil {
		http.Error(w, "json", 400)
		return
	}
	o, err := s.orders.Get(r.Context(), req.Code)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	p := s.rec.MoveCard(o, domain.Status(req.To))
	if p == nil {
		writeJSON(w, 200, map[string]any{"moved": false})
		return
	}
	writeJSON(w, 200, map[string]any{"moved": true, "intent": p})
}

// apiTotalsPreview recomputes the breakdown for in-flight form values. Pure,
// cheap, safe per keystroke.
func (s *Server) apiTotalsPreview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method", 405)
		return
	}
	var req struct {
		Products     map[string]*domain.Product `json:"products"`
		Discount     decimal.Decimal            `json:"discount"`
		DiscountType string                     `json:"discountType"`
		ShippingFee  int64                      `json:"shippingFee"`
		Deposit      decimal.Decimal            `json:"deposit"`
		DepositType  string                     `json:"depositType"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		http.Error(w, "json", 400)
		return
	}
	totals := finance.ComputeTotals(req.Products, req.Discount, domain.ValueKind(req.DiscountType), req.ShippingFee)
	split := finance.ComputeDeposit(totals.Total, req.Deposit, domain.ValueKind(req.DepositType))
	writeJSON(w, 200, map[string]any{
		"subtotal":       totals.Subtotal,
		"discountAmount": totals.DiscountAmount,
		"total":          totals.Total,
		"depositAmount":  split.DepositAmount,
		"remaining":      split.Remaining,
	})
}

func (s *Server) apiEligibleStaff(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method", 405)
		return
	}
	dept := r.URL.Query().Get("department")
	if dept == "" {
		http.Error(w, "department", 400)
		return
	}
	dirs, err := s.dirs.Snapshot(r.Context())
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, 200, workflow.New(dirs).Eligible(dept))
}

func (s *Server) writeErr(w http.ResponseWriter, err error) {
	var (
		guard *lifecycle.GuardError
		seq   *lifecycle.SequenceError
		inv   *lifecycle.InvariantError
	)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "not found", 404)
	case errors.Is(err, domain.ErrOrderExists):
		http.Error(w, "exists", 409)
	case errors.Is(err, domain.ErrOrderLocked):
		writeJSON(w, 409, map[string]any{"error": "order locked"})
	case errors.Is(err, reconcile.ErrUnknownIntent):
		http.Error(w, "intent", 404)
	case errors.As(err, &guard):
		writeJSON(w, 409, map[string]any{"error": "guard failed", "reason": string(guard.Reason)})
	case errors.As(err, &seq):
		writeJSON(w, 409, map[string]any{"error": "invalid sequence", "from": seq.From, "to": seq.To})
	case errors.As(err, &inv):
		writeJSON(w, 422, map[string]any{"error": "invariant violation", "detail": inv.Detail})
	default:
		log.Error().Err(err).Msg("api")
		http.Error(w, "err", 500)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
