package repository

import (
	"context"
	"time"

	"repairdesk_backend/internal/requests/domain"
)

// =====================================
// Segregated Interfaces (Interface Segregation Principle)
// =====================================

// RequestLocker reads and writes the request row inside a transaction.
type RequestLocker interface {
	// LockRequest reads the request with SELECT ... FOR UPDATE.
	LockRequest(ctx context.Context, id string) (domain.Request, error)
	InsertRequest(ctx context.Context, req domain.Request) error
	// UpdateRequest persists the mutable request fields only if the stored
	// status still equals expected. Zero matched rows is a stale state error.
	UpdateRequest(ctx context.Context, req domain.Request, expected domain.RequestStatus) error
	InsertRequestImages(ctx context.Context, images []domain.Image) error
}

// AuditWriter appends to the status log and assignment history. Neither
// store exposes update or delete.
type AuditWriter interface {
	AppendStatusLog(ctx context.Context, entry domain.StatusLogEntry) error
	AppendAssignment(ctx context.Context, assignment domain.Assignment) error
}

// QuotationWriter manages the quotation and its items inside a transaction.
type QuotationWriter interface {
	InsertQuotation(ctx context.Context, quotation domain.Quotation) error
	// GetQuotationForUpdate loads the request's quotation and locks its items.
	GetQuotationForUpdate(ctx context.Context, requestID string) (domain.Quotation, error)
	// StartPendingItems flips every pending item to in_progress and returns
	// the flipped item ids.
	StartPendingItems(ctx context.Context, quotationID string, reportBy domain.Actor) ([]string, error)
	UpdateItem(ctx context.Context, item domain.QuotationItem) error
	ReplaceItemImages(ctx context.Context, itemID string, images []domain.ItemImage) error
	AppendItemLogs(ctx context.Context, logs []domain.ItemLog) error
}

// PaymentWriter manages the payment ledger inside a transaction.
type PaymentWriter interface {
	InsertPayment(ctx context.Context, payment domain.Payment) error
	GetPaymentForUpdate(ctx context.Context, requestID string) (domain.Payment, error)
	// UpdatePayment persists status and verification fields only if the
	// stored status still equals expected.
	UpdatePayment(ctx context.Context, payment domain.Payment, expected domain.PaymentStatus) error
	ReplacePaymentProofs(ctx context.Context, paymentID string, proofs []domain.PaymentProof) error
}

// Tx is the unit of work handed to lifecycle operations.
type Tx interface {
	RequestLocker
	AuditWriter
	QuotationWriter
	PaymentWriter
}

// RequestReader serves read models outside of lifecycle transactions.
type RequestReader interface {
	GetRequest(ctx context.Context, id string) (domain.Request, error)
	GetRequestDetail(ctx context.Context, id string) (domain.RequestDetail, error)
	ListRequests(ctx context.Context, filter domain.ListFilter) ([]domain.Request, int, error)
	GetHistory(ctx context.Context, requestID string) (domain.History, error)
	// ClaimStaleAssignments stamps and returns requests stuck in assigning
	// that have not been alerted since their last assignment.
	ClaimStaleAssignments(ctx context.Context, assignedBefore time.Time, limit int) ([]domain.Request, error)
}

// Store is everything the lifecycle service needs from persistence.
type Store interface {
	RequestReader
	// InTx runs fn in one transaction, committing only if fn returns nil.
	InTx(ctx context.Context, fn func(tx Tx) error) error
}
