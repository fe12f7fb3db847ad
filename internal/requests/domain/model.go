package domain

import (
	"time"

	"github.com/google/uuid"
)

// ImageKind distinguishes customer scene photos from technician survey photos.
type ImageKind string

const (
	ImageScene  ImageKind = "scene"
	ImageSurvey ImageKind = "survey"
)

// Request is the aggregate root.
type Request struct {
	ID            string
	CustomerID    uuid.UUID
	TechnicianID  *uuid.UUID
	ServiceID     string
	Title         string
	Description   string
	Address       string
	RequestedDate *time.Time
	RequestedTime *string
	Status        RequestStatus
	CancelReason  *string
	CancelledBy   *uuid.UUID
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
}

type Image struct {
	ID         string
	RequestID  string
	UploadedBy uuid.UUID
	URL        string
	Kind       ImageKind
	CreatedAt  time.Time
}

// StatusLogEntry is an immutable record of one request transition.
// OldStatus is nil only for the creation entry.
type StatusLogEntry struct {
	ID        string
	RequestID string
	OldStatus *RequestStatus
	NewStatus RequestStatus
	ChangedBy uuid.UUID
	Reason    string
	CreatedAt time.Time
}

// Assignment records a technician hand-off.
type Assignment struct {
	ID              string
	RequestID       string
	OldTechnicianID *uuid.UUID
	NewTechnicianID uuid.UUID
	AssignedBy      uuid.UUID
	Reason          string
	CreatedAt       time.Time
}

// Quotation is created once, when the request becomes quoted. TotalPrice
// is frozen at creation.
type Quotation struct {
	ID           string
	RequestID    string
	TechnicianID uuid.UUID
	TotalPrice   int64
	CreatedAt    time.Time
	Items        []QuotationItem
}

type QuotationItem struct {
	ID          string
	QuotationID string
	Position    int
	Name        string
	Price       int64
	Status      ItemStatus
	Note        *string
	Reason      *string
	ReportBy    *uuid.UUID
	UpdatedAt   time.Time
	Images      []ItemImage
}

type ItemImage struct {
	ID         string
	ItemID     string
	UploadedBy uuid.UUID
	URL        string
	CreatedAt  time.Time
}

// ItemLog mirrors StatusLogEntry at item granularity.
type ItemLog struct {
	ID        string
	ItemID    string
	OldStatus *ItemStatus
	NewStatus ItemStatus
	Note      string
	ChangedBy uuid.UUID
	CreatedAt time.Time
}

// Payment is created once, when the customer confirms completion.
type Payment struct {
	ID           string
	RequestID    string
	Method       string
	Amount       int64
	Status       PaymentStatus
	VerifiedBy   *uuid.UUID
	VerifiedAt   *time.Time
	RejectReason *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Proofs       []PaymentProof
}

type PaymentProof struct {
	ID         string
	PaymentID  string
	UploadedBy uuid.UUID
	URL        string
	CreatedAt  time.Time
}

// DefaultPaymentMethod is recorded on every payment created by the engine.
const DefaultPaymentMethod = "qr"

// QuotationTotal sums item prices.
func QuotationTotal(items []QuotationItem) int64 {
	var total int64
	for _, item := range items {
		total += item.Price
	}
	return total
}

// RequestDetail is the read model behind the request detail view.
type RequestDetail struct {
	Request      Request
	SceneImages  []Image
	SurveyImages []Image
	Quotation    *Quotation
	Payment      *Payment
}

// History is the audit view of a request.
type History struct {
	StatusLog   []StatusLogEntry
	Assignments []Assignment
}

// StatusChange is handed to the notification collaborator after a
// transition commits.
type StatusChange struct {
	RequestID    string
	Event        Event
	OldStatus    *RequestStatus
	NewStatus    RequestStatus
	ActorID      uuid.UUID
	Reason       string
	CustomerID   uuid.UUID
	TechnicianID *uuid.UUID
	// PreviousTechnicianID is set when the event detached or replaced a technician.
	PreviousTechnicianID *uuid.UUID
	OccurredAt           time.Time
}
