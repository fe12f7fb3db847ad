package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"repairdesk_backend/internal/events"
	"repairdesk_backend/internal/requests/domain"
	"repairdesk_backend/internal/requests/repository"
	"repairdesk_backend/platform/apperr"
)

type memState struct {
	requests    map[string]domain.Request
	images      []domain.Image
	statusLog   []domain.StatusLogEntry
	assignments []domain.Assignment
	quotations  map[string]domain.Quotation
	itemLogs    []domain.ItemLog
	payments    map[string]domain.Payment
}

func newMemState() memState {
	return memState{
		requests:   make(map[string]domain.Request),
		quotations: make(map[string]domain.Quotation),
		payments:   make(map[string]domain.Payment),
	}
}

func (s memState) clone() memState {
	out := newMemState()
	for k, v := range s.requests {
		out.requests[k] = v
	}
	for k, q := range s.quotations {
		items := make([]domain.QuotationItem, len(q.Items))
		for i, item := range q.Items {
			item.Images = append([]domain.ItemImage(nil), item.Images...)
			items[i] = item
		}
		q.Items = items
		out.quotations[k] = q
	}
	for k, p := range s.payments {
		p.Proofs = append([]domain.PaymentProof(nil), p.Proofs...)
		out.payments[k] = p
	}
	out.images = append([]domain.Image(nil), s.images...)
	out.statusLog = append([]domain.StatusLogEntry(nil), s.statusLog...)
	out.assignments = append([]domain.Assignment(nil), s.assignments...)
	out.itemLogs = append([]domain.ItemLog(nil), s.itemLogs...)
	return out
}

// memStore is a transactional in-memory Store. Each InTx works on a copy
// of the state and only swaps it in when fn succeeds.
type memStore struct {
	mu    sync.Mutex
	state memState

	// beforeUpdate runs inside UpdateRequest before the compare-and-swap,
	// standing in for a writer that bypassed the row lock.
	beforeUpdate func(st *memState)
	commitErr    error

	// staleAlerted remembers which assignment wait (by UpdatedAt) was alerted.
	staleAlerted map[string]time.Time
}

func newMemStore() *memStore {
	return &memStore{state: newMemState(), staleAlerted: make(map[string]time.Time)}
}

func (m *memStore) InTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	if err := fn(&memTx{st: &work, store: m}); err != nil {
		return err
	}
	if m.commitErr != nil {
		return m.commitErr
	}
	m.state = work
	return nil
}

func (m *memStore) snapshot() memState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

func (m *memStore) GetRequest(ctx context.Context, id string) (domain.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.state.requests[id]
	if !ok {
		return domain.Request{}, apperr.NotFound("request not found")
	}
	return req, nil
}

func (m *memStore) GetRequestDetail(ctx context.Context, id string) (domain.RequestDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.state.requests[id]
	if !ok {
		return domain.RequestDetail{}, apperr.NotFound("request not found")
	}
	detail := domain.RequestDetail{Request: req}
	for _, img := range m.state.images {
		if img.RequestID != id {
			continue
		}
		if img.Kind == domain.ImageSurvey {
			detail.SurveyImages = append(detail.SurveyImages, img)
		} else {
			detail.SceneImages = append(detail.SceneImages, img)
		}
	}
	if q, ok := m.state.quotations[id]; ok {
		detail.Quotation = &q
	}
	if p, ok := m.state.payments[id]; ok {
		detail.Payment = &p
	}
	return detail, nil
}

func (m *memStore) ListRequests(ctx context.Context, filter domain.ListFilter) ([]domain.Request, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []domain.Request
	for _, req := range m.state.requests {
		if filter.CustomerID != nil && req.CustomerID != *filter.CustomerID {
			continue
		}
		if filter.TechnicianID != nil && (req.TechnicianID == nil || *req.TechnicianID != *filter.TechnicianID) {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, req.Status) {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(req.Title+" "+req.Address), strings.ToLower(filter.Search)) {
			continue
		}
		matched = append(matched, req)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	total := len(matched)
	if filter.Offset >= total {
		return nil, total, nil
	}
	end := filter.Offset + filter.Limit
	if end > total {
		end = total
	}
	return matched[filter.Offset:end], total, nil
}

func (m *memStore) GetHistory(ctx context.Context, requestID string) (domain.History, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var history domain.History
	for _, entry := range m.state.statusLog {
		if entry.RequestID == requestID {
			history.StatusLog = append(history.StatusLog, entry)
		}
	}
	for _, a := range m.state.assignments {
		if a.RequestID == requestID {
			history.Assignments = append(history.Assignments, a)
		}
	}
	return history, nil
}

func (m *memStore) ClaimStaleAssignments(ctx context.Context, assignedBefore time.Time, limit int) ([]domain.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Request
	for _, req := range m.state.requests {
		if req.Status != domain.StatusAssigning || !req.UpdatedAt.Before(assignedBefore) || len(out) >= limit {
			continue
		}
		if alertedFor, ok := m.staleAlerted[req.ID]; ok && alertedFor.Equal(req.UpdatedAt) {
			continue
		}
		m.staleAlerted[req.ID] = req.UpdatedAt
		out = append(out, req)
	}
	return out, nil
}

func containsStatus(statuses []domain.RequestStatus, s domain.RequestStatus) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}

type memTx struct {
	st    *memState
	store *memStore
}

func (t *memTx) LockRequest(ctx context.Context, id string) (domain.Request, error) {
	req, ok := t.st.requests[id]
	if !ok {
		return domain.Request{}, apperr.NotFound("request not found")
	}
	return req, nil
}

func (t *memTx) InsertRequest(ctx context.Context, req domain.Request) error {
	t.st.requests[req.ID] = req
	return nil
}

func (t *memTx) UpdateRequest(ctx context.Context, req domain.Request, expected domain.RequestStatus) error {
	if hook := t.store.beforeUpdate; hook != nil {
		t.store.beforeUpdate = nil
		hook(t.st)
	}
	stored, ok := t.st.requests[req.ID]
	if !ok || stored.Status != expected {
		return apperr.StaleState("request status changed concurrently")
	}
	if req.Status.HoldsTechnician() != (req.TechnicianID != nil) {
		return apperr.Internal("technician check violated")
	}
	t.st.requests[req.ID] = req
	return nil
}

func (t *memTx) InsertRequestImages(ctx context.Context, images []domain.Image) error {
	t.st.images = append(t.st.images, images...)
	return nil
}

func (t *memTx) AppendStatusLog(ctx context.Context, entry domain.StatusLogEntry) error {
	t.st.statusLog = append(t.st.statusLog, entry)
	return nil
}

func (t *memTx) AppendAssignment(ctx context.Context, a domain.Assignment) error {
	t.st.assignments = append(t.st.assignments, a)
	return nil
}

func (t *memTx) InsertQuotation(ctx context.Context, q domain.Quotation) error {
	if _, exists := t.st.quotations[q.RequestID]; exists {
		return apperr.StaleState("quotation already exists")
	}
	t.st.quotations[q.RequestID] = q
	return nil
}

func (t *memTx) GetQuotationForUpdate(ctx context.Context, requestID string) (domain.Quotation, error) {
	q, ok := t.st.quotations[requestID]
	if !ok {
		return domain.Quotation{}, apperr.NotFound("quotation not found")
	}
	q.Items = append([]domain.QuotationItem(nil), q.Items...)
	return q, nil
}

func (t *memTx) StartPendingItems(ctx context.Context, quotationID string, reportBy domain.Actor) ([]string, error) {
	var started []string
	for key, q := range t.st.quotations {
		if q.ID != quotationID {
			continue
		}
		for i := range q.Items {
			if q.Items[i].Status == domain.ItemPending {
				by := reportBy.ID
				q.Items[i].Status = domain.ItemInProgress
				q.Items[i].ReportBy = &by
				started = append(started, q.Items[i].ID)
			}
		}
		t.st.quotations[key] = q
	}
	return started, nil
}

func (t *memTx) editItem(itemID string, fn func(item *domain.QuotationItem)) {
	for key, q := range t.st.quotations {
		for i := range q.Items {
			if q.Items[i].ID == itemID {
				fn(&q.Items[i])
				t.st.quotations[key] = q
				return
			}
		}
	}
}

func (t *memTx) UpdateItem(ctx context.Context, item domain.QuotationItem) error {
	t.editItem(item.ID, func(stored *domain.QuotationItem) {
		images := stored.Images
		*stored = item
		stored.Images = images
	})
	return nil
}

func (t *memTx) ReplaceItemImages(ctx context.Context, itemID string, images []domain.ItemImage) error {
	t.editItem(itemID, func(stored *domain.QuotationItem) {
		stored.Images = append([]domain.ItemImage(nil), images...)
	})
	return nil
}

func (t *memTx) AppendItemLogs(ctx context.Context, logs []domain.ItemLog) error {
	t.st.itemLogs = append(t.st.itemLogs, logs...)
	return nil
}

func (t *memTx) InsertPayment(ctx context.Context, p domain.Payment) error {
	if _, exists := t.st.payments[p.RequestID]; exists {
		return apperr.StaleState("payment already exists")
	}
	t.st.payments[p.RequestID] = p
	return nil
}

func (t *memTx) GetPaymentForUpdate(ctx context.Context, requestID string) (domain.Payment, error) {
	p, ok := t.st.payments[requestID]
	if !ok {
		return domain.Payment{}, apperr.NotFound("payment not found")
	}
	return p, nil
}

func (t *memTx) UpdatePayment(ctx context.Context, p domain.Payment, expected domain.PaymentStatus) error {
	stored, ok := t.st.payments[p.RequestID]
	if !ok || stored.Status != expected {
		return apperr.StaleState("payment status changed concurrently")
	}
	p.Proofs = stored.Proofs
	t.st.payments[p.RequestID] = p
	return nil
}

func (t *memTx) ReplacePaymentProofs(ctx context.Context, paymentID string, proofs []domain.PaymentProof) error {
	for key, p := range t.st.payments {
		if p.ID == paymentID {
			p.Proofs = append([]domain.PaymentProof(nil), proofs...)
			t.st.payments[key] = p
		}
	}
	return nil
}

var _ repository.Store = (*memStore)(nil)
var _ repository.Tx = (*memTx)(nil)

// recordingBus captures published events synchronously.
type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Publish(ctx context.Context, event events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *recordingBus) PublishSync(ctx context.Context, event events.Event) error {
	b.Publish(ctx, event)
	return nil
}

func (b *recordingBus) Subscribe(string, events.Handler) {}

func (b *recordingBus) staleAlerts() []events.StaleAssignmentDetected {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []events.StaleAssignmentDetected
	for _, e := range b.events {
		if alert, ok := e.(events.StaleAssignmentDetected); ok {
			out = append(out, alert)
		}
	}
	return out
}

func (b *recordingBus) statusChanges() []events.RequestStatusChanged {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []events.RequestStatusChanged
	for _, e := range b.events {
		if changed, ok := e.(events.RequestStatusChanged); ok {
			out = append(out, changed)
		}
	}
	return out
}
