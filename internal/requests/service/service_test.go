package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"repairdesk_backend/internal/events"
	"repairdesk_backend/internal/requests/domain"
	"repairdesk_backend/internal/requests/transport"
	"repairdesk_backend/platform/apperr"
	"repairdesk_backend/platform/logger"

	"github.com/google/uuid"
)

type harness struct {
	svc        *Service
	store      *memStore
	bus        *recordingBus
	customer   domain.Actor
	technician domain.Actor
	other      domain.Actor
	operator   domain.Actor
}

func newHarness() *harness {
	store := newMemStore()
	bus := &recordingBus{}
	svc := New(store, bus, logger.New("test"))
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return &harness{
		svc:        svc,
		store:      store,
		bus:        bus,
		customer:   domain.Actor{ID: uuid.New(), Role: domain.RoleCustomer},
		technician: domain.Actor{ID: uuid.New(), Role: domain.RoleTechnician},
		other:      domain.Actor{ID: uuid.New(), Role: domain.RoleTechnician},
		operator:   domain.Actor{ID: uuid.New(), Role: domain.RoleOperator},
	}
}

func boolPtr(v bool) *bool { return &v }

func expectKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	if !apperr.Is(err, kind) {
		t.Fatalf("expected %s error, got %v", kind, err)
	}
}

func (h *harness) create(t *testing.T) domain.Request {
	t.Helper()
	req, err := h.svc.Create(context.Background(), h.customer, transport.CreateRequestRequest{
		ServiceID: "svc-plumbing",
		Title:     "Leaking sink",
		Address:   "12 Canal Street",
		Images:    []string{"requests/scene/a.jpg"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return req
}

func (h *harness) assign(t *testing.T, id string, tech domain.Actor) {
	t.Helper()
	if _, err := h.svc.Assign(context.Background(), h.operator, id, transport.AssignRequest{TechnicianID: tech.ID}); err != nil {
		t.Fatalf("assign: %v", err)
	}
}

func (h *harness) toQuoted(t *testing.T) domain.Request {
	t.Helper()
	ctx := context.Background()
	req := h.create(t)
	h.assign(t, req.ID, h.technician)
	if _, err := h.svc.RespondAssignment(ctx, h.technician, req.ID, transport.AssignmentResponseRequest{Accept: boolPtr(true)}); err != nil {
		t.Fatalf("accept assignment: %v", err)
	}
	quoted, err := h.svc.SubmitQuotation(ctx, h.technician, req.ID, transport.SubmitQuotationRequest{
		Items: []transport.QuotationItemInput{{Name: "Replace trap", Price: 100}, {Name: "Reseal", Price: 50}},
	})
	if err != nil {
		t.Fatalf("submit quotation: %v", err)
	}
	return quoted
}

func (h *harness) toCustomerReview(t *testing.T) (domain.Request, []string) {
	t.Helper()
	ctx := context.Background()
	req := h.toQuoted(t)
	if _, err := h.svc.RespondQuotation(ctx, h.customer, req.ID, transport.QuotationResponseRequest{Accept: boolPtr(true)}); err != nil {
		t.Fatalf("accept quotation: %v", err)
	}
	itemIDs := h.itemIDs(req.ID)
	progress := transport.ReportProgressRequest{}
	for _, id := range itemIDs {
		progress.Items = append(progress.Items, transport.ItemProgressInput{ItemID: id, Status: "completed"})
	}
	reviewed, err := h.svc.ReportProgress(ctx, h.technician, req.ID, progress)
	if err != nil {
		t.Fatalf("report progress: %v", err)
	}
	return reviewed, itemIDs
}

func (h *harness) itemIDs(requestID string) []string {
	var ids []string
	for _, item := range h.store.snapshot().quotations[requestID].Items {
		ids = append(ids, item.ID)
	}
	return ids
}

func (h *harness) logPairs(requestID string) []string {
	var pairs []string
	for _, entry := range h.store.snapshot().statusLog {
		if entry.RequestID != requestID {
			continue
		}
		from := "nil"
		if entry.OldStatus != nil {
			from = string(*entry.OldStatus)
		}
		pairs = append(pairs, from+">"+string(entry.NewStatus))
	}
	return pairs
}

func expectPairs(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d log entries %v, got %d %v", len(want), want, len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected log entry %d to be %s, got %s", i, want[i], got[i])
		}
	}
}

func TestHappyPathReachesCompleted(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	req, itemIDs := h.toCustomerReview(t)
	if req.Status != domain.StatusCustomerReview {
		t.Fatalf("expected customer_review, got %s", req.Status)
	}

	if _, err := h.svc.AddSurveyImages(ctx, h.technician, req.ID, transport.SurveyImagesRequest{Images: []string{"x.jpg"}}); err == nil {
		t.Fatal("expected survey images to be refused after quoting phase")
	}

	paying, err := h.svc.ConfirmCompletion(ctx, h.customer, req.ID)
	if err != nil {
		t.Fatalf("confirm completion: %v", err)
	}
	if paying.CompletedAt == nil {
		t.Fatal("expected completedAt to be set on confirmation")
	}

	proof := transport.PaymentProofsRequest{Images: []string{"proofs/1.jpg"}}
	if _, err := h.svc.UploadPaymentProof(ctx, h.customer, req.ID, proof); err != nil {
		t.Fatalf("upload proof: %v", err)
	}
	if _, err := h.svc.UploadPaymentProof(ctx, h.technician, req.ID, transport.PaymentProofsRequest{Images: []string{"proofs/2.jpg"}}); err != nil {
		t.Fatalf("re-upload proof: %v", err)
	}

	done, err := h.svc.VerifyPayment(ctx, h.operator, req.ID, transport.VerifyPaymentRequest{Approve: boolPtr(true)})
	if err != nil {
		t.Fatalf("verify payment: %v", err)
	}
	if done.Status != domain.StatusCompleted {
		t.Fatalf("expected completed, got %s", done.Status)
	}

	expectPairs(t, h.logPairs(req.ID), []string{
		"nil>pending",
		"pending>assigning",
		"assigning>assigned",
		"assigned>quoted",
		"quoted>in_progress",
		"in_progress>customer_review",
		"customer_review>payment",
		"payment>payment_review",
		"payment_review>completed",
	})

	state := h.store.snapshot()
	quotation := state.quotations[req.ID]
	if quotation.TotalPrice != 150 {
		t.Fatalf("expected total 150, got %d", quotation.TotalPrice)
	}
	payment := state.payments[req.ID]
	if payment.Amount != 150 || payment.Method != "qr" || payment.Status != domain.PaymentPaid {
		t.Fatalf("unexpected payment %+v", payment)
	}
	if len(payment.Proofs) != 1 || payment.Proofs[0].URL != "proofs/2.jpg" {
		t.Fatalf("expected proof set to be replaced, got %+v", payment.Proofs)
	}
	if payment.VerifiedBy == nil || *payment.VerifiedBy != h.operator.ID {
		t.Fatal("expected payment to record the verifying operator")
	}
	if len(itemIDs) != 2 {
		t.Fatalf("expected 2 items, got %d", len(itemIDs))
	}
	// two starts and two completions
	if len(state.itemLogs) != 4 {
		t.Fatalf("expected 4 item logs, got %d", len(state.itemLogs))
	}
	if got := len(h.bus.statusChanges()); got != 9 {
		t.Fatalf("expected 9 published changes, got %d", got)
	}
}

func TestRejectedAssignmentReturnsToPending(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	req := h.create(t)

	h.assign(t, req.ID, h.technician)
	rejected, err := h.svc.RespondAssignment(ctx, h.technician, req.ID, transport.AssignmentResponseRequest{
		Accept: boolPtr(false),
		Reason: "out of area",
	})
	if err != nil {
		t.Fatalf("reject assignment: %v", err)
	}
	if rejected.Status != domain.StatusPending || rejected.TechnicianID != nil {
		t.Fatalf("expected pending with no technician, got %s %v", rejected.Status, rejected.TechnicianID)
	}

	h.assign(t, req.ID, h.other)
	if _, err := h.svc.RespondAssignment(ctx, h.other, req.ID, transport.AssignmentResponseRequest{Accept: boolPtr(true)}); err != nil {
		t.Fatalf("accept assignment: %v", err)
	}

	expectPairs(t, h.logPairs(req.ID), []string{
		"nil>pending",
		"pending>assigning",
		"assigning>pending",
		"pending>assigning",
		"assigning>assigned",
	})

	history, err := h.svc.History(ctx, h.operator, req.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history.Assignments) != 2 {
		t.Fatalf("expected 2 assignment rows, got %d", len(history.Assignments))
	}
	if history.Assignments[1].OldTechnicianID != nil || history.Assignments[1].NewTechnicianID != h.other.ID {
		t.Fatalf("unexpected second assignment %+v", history.Assignments[1])
	}

	changes := h.bus.statusChanges()
	reject := changes[2]
	if reject.Action != string(domain.EventRejectAssignment) || reject.PreviousTechnicianID == nil || *reject.PreviousTechnicianID != h.technician.ID {
		t.Fatalf("expected rejection event to name the previous technician, got %+v", reject)
	}
}

func TestReassignWhileAssigningReplacesTechnician(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	req := h.create(t)

	h.assign(t, req.ID, h.technician)
	h.assign(t, req.ID, h.other)

	expectPairs(t, h.logPairs(req.ID), []string{"nil>pending", "pending>assigning", "assigning>assigning"})

	state := h.store.snapshot()
	second := state.assignments[1]
	if second.OldTechnicianID == nil || *second.OldTechnicianID != h.technician.ID {
		t.Fatalf("expected previous technician on reassignment, got %+v", second)
	}

	_, err := h.svc.RespondAssignment(ctx, h.technician, req.ID, transport.AssignmentResponseRequest{Accept: boolPtr(true)})
	expectKind(t, err, apperr.KindForbidden)

	_, err = h.svc.Assign(ctx, h.operator, req.ID, transport.AssignRequest{TechnicianID: h.other.ID})
	expectKind(t, err, apperr.KindValidation)
}

func TestIllegalCancelLeavesNoTrace(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	req := h.create(t)
	h.assign(t, req.ID, h.technician)
	before := h.logPairs(req.ID)

	_, err := h.svc.Cancel(ctx, h.customer, req.ID, transport.CancelRequestRequest{Reason: "changed my mind"})
	expectKind(t, err, apperr.KindStaleState)

	state := h.store.snapshot()
	if state.requests[req.ID].Status != domain.StatusAssigning {
		t.Fatalf("expected status to stay assigning, got %s", state.requests[req.ID].Status)
	}
	expectPairs(t, h.logPairs(req.ID), before)
}

func TestCancelRequiresReason(t *testing.T) {
	h := newHarness()
	req := h.create(t)

	_, err := h.svc.Cancel(context.Background(), h.customer, req.ID, transport.CancelRequestRequest{Reason: "  "})
	expectKind(t, err, apperr.KindValidation)
	if len(h.logPairs(req.ID)) != 1 {
		t.Fatal("expected no log entry for rejected input")
	}
}

func TestCancelFromQuotedClearsTechnician(t *testing.T) {
	h := newHarness()
	req := h.toQuoted(t)

	cancelled, err := h.svc.Cancel(context.Background(), h.customer, req.ID, transport.CancelRequestRequest{Reason: "too expensive"})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != domain.StatusCancelled || cancelled.TechnicianID != nil {
		t.Fatalf("expected cancelled without technician, got %s %v", cancelled.Status, cancelled.TechnicianID)
	}
	if cancelled.CancelledBy == nil || *cancelled.CancelledBy != h.customer.ID {
		t.Fatal("expected cancelledBy to be the customer")
	}
	if h.store.snapshot().quotations[req.ID].TechnicianID != h.technician.ID {
		t.Fatal("expected quotation to keep its technician")
	}
}

func TestRejectQuotationCancels(t *testing.T) {
	h := newHarness()
	req := h.toQuoted(t)

	got, err := h.svc.RespondQuotation(context.Background(), h.customer, req.ID, transport.QuotationResponseRequest{Accept: boolPtr(false), Reason: "no"})
	if err != nil {
		t.Fatalf("reject quotation: %v", err)
	}
	if got.Status != domain.StatusCancelled || got.TechnicianID != nil {
		t.Fatalf("expected cancelled without technician, got %s", got.Status)
	}
	pairs := h.logPairs(req.ID)
	if pairs[len(pairs)-1] != "quoted>cancelled" {
		t.Fatalf("expected quoted>cancelled, got %s", pairs[len(pairs)-1])
	}
}

func TestProgressStaysInProgressUntilAllItemsComplete(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	req := h.toQuoted(t)
	if _, err := h.svc.RespondQuotation(ctx, h.customer, req.ID, transport.QuotationResponseRequest{Accept: boolPtr(true)}); err != nil {
		t.Fatalf("accept quotation: %v", err)
	}
	ids := h.itemIDs(req.ID)
	logsBefore := len(h.logPairs(req.ID))

	got, err := h.svc.ReportProgress(ctx, h.technician, req.ID, transport.ReportProgressRequest{
		Items: []transport.ItemProgressInput{{ItemID: ids[0], Status: "completed", Images: []string{"items/done.jpg"}}},
	})
	if err != nil {
		t.Fatalf("report progress: %v", err)
	}
	if got.Status != domain.StatusInProgress {
		t.Fatalf("expected in_progress, got %s", got.Status)
	}
	if len(h.logPairs(req.ID)) != logsBefore {
		t.Fatal("expected no request log while work remains")
	}
	item := h.store.snapshot().quotations[req.ID].Items[0]
	if item.Status != domain.ItemCompleted || len(item.Images) != 1 {
		t.Fatalf("expected completed item with one image, got %+v", item)
	}
}

func TestProgressRejectsForeignItemsAndStatuses(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	req := h.toQuoted(t)
	if _, err := h.svc.RespondQuotation(ctx, h.customer, req.ID, transport.QuotationResponseRequest{Accept: boolPtr(true)}); err != nil {
		t.Fatalf("accept quotation: %v", err)
	}
	ids := h.itemIDs(req.ID)

	_, err := h.svc.ReportProgress(ctx, h.technician, req.ID, transport.ReportProgressRequest{
		Items: []transport.ItemProgressInput{{ItemID: "QITEMdeadbeef", Status: "completed"}},
	})
	expectKind(t, err, apperr.KindValidation)

	_, err = h.svc.ReportProgress(ctx, h.customer, req.ID, transport.ReportProgressRequest{
		Items: []transport.ItemProgressInput{{ItemID: ids[0], Status: "completed"}},
	})
	expectKind(t, err, apperr.KindForbidden)

	_, err = h.svc.ReportProgress(ctx, h.technician, req.ID, transport.ReportProgressRequest{
		Items: []transport.ItemProgressInput{{ItemID: ids[0], Status: "needs_rework"}},
	})
	expectKind(t, err, apperr.KindForbidden)

	_, err = h.svc.ReportProgress(ctx, h.other, req.ID, transport.ReportProgressRequest{
		Items: []transport.ItemProgressInput{{ItemID: ids[0], Status: "completed"}},
	})
	expectKind(t, err, apperr.KindForbidden)
}

func TestAcceptFromReviewReopensNamedItems(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	req, ids := h.toCustomerReview(t)

	_, err := h.svc.RespondQuotation(ctx, h.customer, req.ID, transport.QuotationResponseRequest{Accept: boolPtr(true)})
	expectKind(t, err, apperr.KindValidation)

	got, err := h.svc.RespondQuotation(ctx, h.customer, req.ID, transport.QuotationResponseRequest{
		Accept:        boolPtr(true),
		Reason:        "still dripping",
		ReworkItemIDs: []string{ids[1]},
	})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got.Status != domain.StatusInProgress {
		t.Fatalf("expected in_progress, got %s", got.Status)
	}
	items := h.store.snapshot().quotations[req.ID].Items
	if items[0].Status != domain.ItemCompleted || items[1].Status != domain.ItemNeedsRework {
		t.Fatalf("expected only the named item to need rework, got %s %s", items[0].Status, items[1].Status)
	}

	back, err := h.svc.ReportProgress(ctx, h.technician, req.ID, transport.ReportProgressRequest{
		Items: []transport.ItemProgressInput{{ItemID: ids[1], Status: "completed"}},
	})
	if err != nil {
		t.Fatalf("report rework: %v", err)
	}
	if back.Status != domain.StatusCustomerReview {
		t.Fatalf("expected customer_review after rework, got %s", back.Status)
	}
}

func TestRejectedPaymentCanBeResubmitted(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	req, _ := h.toCustomerReview(t)
	if _, err := h.svc.ConfirmCompletion(ctx, h.customer, req.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := h.svc.UploadPaymentProof(ctx, h.customer, req.ID, transport.PaymentProofsRequest{Images: []string{"p1.jpg"}}); err != nil {
		t.Fatalf("upload: %v", err)
	}

	_, err := h.svc.VerifyPayment(ctx, h.operator, req.ID, transport.VerifyPaymentRequest{Approve: boolPtr(false)})
	expectKind(t, err, apperr.KindValidation)

	got, err := h.svc.VerifyPayment(ctx, h.operator, req.ID, transport.VerifyPaymentRequest{Approve: boolPtr(false), Reason: "blurry"})
	if err != nil {
		t.Fatalf("reject payment: %v", err)
	}
	if got.Status != domain.StatusPayment {
		t.Fatalf("expected payment, got %s", got.Status)
	}
	payment := h.store.snapshot().payments[req.ID]
	if payment.Status != domain.PaymentRejected || payment.RejectReason == nil || *payment.RejectReason != "blurry" {
		t.Fatalf("unexpected payment after rejection %+v", payment)
	}

	if _, err := h.svc.UploadPaymentProof(ctx, h.customer, req.ID, transport.PaymentProofsRequest{Images: []string{"p2.jpg"}}); err != nil {
		t.Fatalf("re-upload: %v", err)
	}
	if h.store.snapshot().payments[req.ID].Status != domain.PaymentReview {
		t.Fatal("expected payment back under review")
	}
}

func TestWrongTechnicianIsForbidden(t *testing.T) {
	h := newHarness()
	req := h.create(t)
	h.assign(t, req.ID, h.technician)

	_, err := h.svc.RespondAssignment(context.Background(), h.other, req.ID, transport.AssignmentResponseRequest{Accept: boolPtr(true)})
	expectKind(t, err, apperr.KindForbidden)
}

func TestUnknownRequestIsNotFound(t *testing.T) {
	h := newHarness()
	_, err := h.svc.ConfirmCompletion(context.Background(), h.customer, "REQ00000000000000000000000000000000")
	expectKind(t, err, apperr.KindNotFound)

	_, err = h.svc.ConfirmCompletion(context.Background(), h.customer, "nope")
	expectKind(t, err, apperr.KindValidation)
}

func TestCompareAndSwapCatchesConcurrentWriter(t *testing.T) {
	h := newHarness()
	req := h.create(t)

	h.store.beforeUpdate = func(st *memState) {
		stored := st.requests[req.ID]
		stored.Status = domain.StatusCancelled
		st.requests[req.ID] = stored
	}
	_, err := h.svc.Assign(context.Background(), h.operator, req.ID, transport.AssignRequest{TechnicianID: h.technician.ID})
	expectKind(t, err, apperr.KindStaleState)

	state := h.store.snapshot()
	if state.requests[req.ID].Status != domain.StatusPending {
		t.Fatalf("expected rollback to keep pending, got %s", state.requests[req.ID].Status)
	}
	if len(state.assignments) != 0 {
		t.Fatal("expected assignment row to be rolled back")
	}
}

func TestConcurrentCancelAndAssignHaveOneWinner(t *testing.T) {
	h := newHarness()
	req := h.create(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = h.svc.Cancel(ctx, h.customer, req.ID, transport.CancelRequestRequest{Reason: "no longer needed"})
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = h.svc.Assign(ctx, h.operator, req.ID, transport.AssignRequest{TechnicianID: h.technician.ID})
	}()
	wg.Wait()

	winners := 0
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case !apperr.Is(err, apperr.KindStaleState):
			t.Fatalf("expected loser to get stale state, got %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
	if got := len(h.logPairs(req.ID)); got != 2 {
		t.Fatalf("expected 2 log entries, got %d", got)
	}
}

func TestCommitFailureIsPersistenceError(t *testing.T) {
	h := newHarness()
	req := h.create(t)
	h.store.commitErr = errors.New("connection reset")

	_, err := h.svc.Assign(context.Background(), h.operator, req.ID, transport.AssignRequest{TechnicianID: h.technician.ID})
	expectKind(t, err, apperr.KindPersistence)
	if h.store.snapshot().requests[req.ID].Status != domain.StatusPending {
		t.Fatal("expected nothing to be committed")
	}
}

func TestNotificationFailureDoesNotRollBack(t *testing.T) {
	store := newMemStore()
	log := logger.New("test")
	bus := events.NewInMemoryBus(log)
	bus.Subscribe(events.RequestStatusChanged{}.EventName(), events.HandlerFunc(func(ctx context.Context, e events.Event) error {
		return errors.New("push gateway down")
	}))
	svc := New(store, bus, log)
	customer := domain.Actor{ID: uuid.New(), Role: domain.RoleCustomer}

	req, err := svc.Create(context.Background(), customer, transport.CreateRequestRequest{ServiceID: "svc", Address: "1 Main St"})
	if err != nil {
		t.Fatalf("expected create to succeed, got %v", err)
	}
	bus.Wait()
	if _, ok := store.snapshot().requests[req.ID]; !ok {
		t.Fatal("expected request to stay committed")
	}
}

func TestGetRequiresStanding(t *testing.T) {
	h := newHarness()
	req := h.create(t)

	if _, err := h.svc.Get(context.Background(), h.customer, req.ID); err != nil {
		t.Fatalf("expected owner to read, got %v", err)
	}
	if _, err := h.svc.Get(context.Background(), h.operator, req.ID); err != nil {
		t.Fatalf("expected operator to read, got %v", err)
	}
	_, err := h.svc.Get(context.Background(), h.other, req.ID)
	expectKind(t, err, apperr.KindForbidden)
}

func TestListMineUsesStatusGroups(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	first := h.create(t)
	h.create(t)
	if _, err := h.svc.Cancel(ctx, h.customer, first.ID, transport.CancelRequestRequest{Reason: "dup"}); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	pending, err := h.svc.ListMine(ctx, h.customer, transport.ListRequestsRequest{Status: "pending"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if pending.Total != 1 {
		t.Fatalf("expected 1 pending request, got %d", pending.Total)
	}

	_, err = h.svc.ListMine(ctx, h.customer, transport.ListRequestsRequest{Status: "bogus"})
	expectKind(t, err, apperr.KindValidation)

	others, err := h.svc.ListMine(ctx, domain.Actor{ID: uuid.New(), Role: domain.RoleCustomer}, transport.ListRequestsRequest{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if others.Total != 0 {
		t.Fatalf("expected other customers to see nothing, got %d", others.Total)
	}
}

func TestDetectStaleAssignmentsOnlyAlerts(t *testing.T) {
	h := newHarness()
	req := h.create(t)
	h.assign(t, req.ID, h.technician)

	h.svc.now = func() time.Time { return time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC) }
	n, err := h.svc.DetectStaleAssignments(context.Background(), 24*time.Hour, 10)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 stale assignment, got %d", n)
	}
	if h.store.snapshot().requests[req.ID].Status != domain.StatusAssigning {
		t.Fatal("expected sweep to leave status alone")
	}
}

func TestStaleAssignmentIsAlertedOncePerAssignment(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	req := h.create(t)
	h.assign(t, req.ID, h.technician)

	clock := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	h.svc.now = func() time.Time { return clock }
	for i := 0; i < 4; i++ {
		if _, err := h.svc.DetectStaleAssignments(ctx, 24*time.Hour, 10); err != nil {
			t.Fatalf("detect: %v", err)
		}
		clock = clock.Add(15 * time.Minute)
	}
	if got := len(h.bus.staleAlerts()); got != 1 {
		t.Fatalf("expected 1 alert over repeated sweeps, got %d", got)
	}

	h.assign(t, req.ID, h.other)
	clock = clock.Add(48 * time.Hour)
	n, err := h.svc.DetectStaleAssignments(ctx, 24*time.Hour, 10)
	if err != nil {
		t.Fatalf("detect after reassign: %v", err)
	}
	alerts := h.bus.staleAlerts()
	if n != 1 || len(alerts) != 2 {
		t.Fatalf("expected reassignment to arm one new alert, got n=%d alerts=%d", n, len(alerts))
	}
	if alerts[1].TechnicianID != h.other.ID {
		t.Fatalf("expected alert for the new technician, got %s", alerts[1].TechnicianID)
	}
}

func TestProgressNotesAreStrippedOfMarkup(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	req := h.toQuoted(t)
	if _, err := h.svc.RespondQuotation(ctx, h.customer, req.ID, transport.QuotationResponseRequest{Accept: boolPtr(true)}); err != nil {
		t.Fatalf("accept quotation: %v", err)
	}
	ids := h.itemIDs(req.ID)
	note := "<b>trap</b> replaced"
	reason := "<script></script>"

	if _, err := h.svc.ReportProgress(ctx, h.technician, req.ID, transport.ReportProgressRequest{
		Items: []transport.ItemProgressInput{{ItemID: ids[0], Status: "completed", Note: &note, Reason: &reason}},
	}); err != nil {
		t.Fatalf("report progress: %v", err)
	}

	snap := h.store.snapshot()
	item := snap.quotations[req.ID].Items[0]
	if item.Note == nil || *item.Note != "trap replaced" {
		t.Fatalf("expected cleaned note, got %v", item.Note)
	}
	if item.Reason != nil {
		t.Fatalf("expected markup-only reason to be dropped, got %q", *item.Reason)
	}
	last := snap.itemLogs[len(snap.itemLogs)-1]
	if last.Note != "trap replaced" {
		t.Fatalf("expected cleaned note in item log, got %q", last.Note)
	}
}
