// Package transport holds the request/response shapes of the requests API.
package transport

import (
	"time"

	"github.com/google/uuid"
)

type CreateRequestRequest struct {
	ServiceID     string   `json:"serviceId" validate:"required,max=64"`
	Title         string   `json:"title" validate:"max=200"`
	Description   string   `json:"description" validate:"max=4000"`
	Address       string   `json:"address" validate:"required,max=500"`
	RequestedDate *string  `json:"requestedDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
	RequestedTime *string  `json:"requestedTime,omitempty" validate:"omitempty,max=32"`
	Images        []string `json:"images" validate:"max=20,dive,imageref"`
}

type CancelRequestRequest struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}

type AssignRequest struct {
	TechnicianID uuid.UUID `json:"technicianId" validate:"required"`
	Reason       string    `json:"reason" validate:"max=1000"`
}

// AssignmentResponseRequest is the technician's answer to an assignment.
type AssignmentResponseRequest struct {
	Accept *bool  `json:"accept" validate:"required"`
	Reason string `json:"reason" validate:"max=1000"`
}

type SurveyImagesRequest struct {
	Images []string `json:"images" validate:"required,min=1,max=20,dive,imageref"`
}

type QuotationItemInput struct {
	Name  string `json:"name" validate:"required,max=200"`
	Price int64  `json:"price" validate:"min=0"`
}

type SubmitQuotationRequest struct {
	Items []QuotationItemInput `json:"items" validate:"required,min=1,max=50,dive"`
}

// QuotationResponseRequest accepts or rejects a quotation. When accepting
// from customer review, ReworkItemIDs names the items to redo.
type QuotationResponseRequest struct {
	Accept        *bool    `json:"accept" validate:"required"`
	Reason        string   `json:"reason" validate:"max=1000"`
	ReworkItemIDs []string `json:"reworkItemIds" validate:"max=50,dive,required"`
}

type ItemProgressInput struct {
	ItemID string   `json:"itemId" validate:"required"`
	Status string   `json:"status" validate:"required,oneof=in_progress completed needs_rework"`
	Note   *string  `json:"note,omitempty" validate:"omitempty,max=2000"`
	Reason *string  `json:"reason,omitempty" validate:"omitempty,max=2000"`
	Images []string `json:"images" validate:"max=20,dive,imageref"`
}

type ReportProgressRequest struct {
	Items []ItemProgressInput `json:"items" validate:"required,min=1,max=50,dive"`
}

type PaymentProofsRequest struct {
	Images []string `json:"images" validate:"required,min=1,max=10,dive,imageref"`
}

type VerifyPaymentRequest struct {
	Approve *bool  `json:"approve" validate:"required"`
	Reason  string `json:"reason" validate:"max=1000"`
}

// ListRequestsRequest is bound from the query string. Status is a status
// group for customers and technicians and an exact status for operators.
type ListRequestsRequest struct {
	Status   string `form:"status" validate:"max=32"`
	Search   string `form:"search" validate:"max=200"`
	Page     int    `form:"page" validate:"omitempty,min=1"`
	PageSize int    `form:"pageSize" validate:"omitempty,min=1,max=100"`
}

type ImageResponse struct {
	ID         string    `json:"id"`
	URL        string    `json:"url"`
	UploadedBy uuid.UUID `json:"uploadedBy"`
	CreatedAt  time.Time `json:"createdAt"`
}

type RequestResponse struct {
	ID            string     `json:"id"`
	CustomerID    uuid.UUID  `json:"customerId"`
	TechnicianID  *uuid.UUID `json:"technicianId,omitempty"`
	ServiceID     string     `json:"serviceId"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Address       string     `json:"address"`
	RequestedDate *string    `json:"requestedDate,omitempty"`
	RequestedTime *string    `json:"requestedTime,omitempty"`
	Status        string     `json:"status"`
	CancelReason  *string    `json:"cancelReason,omitempty"`
	CancelledBy   *uuid.UUID `json:"cancelledBy,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
}

type QuotationItemResponse struct {
	ID        string          `json:"id"`
	Position  int             `json:"position"`
	Name      string          `json:"name"`
	Price     int64           `json:"price"`
	Status    string          `json:"status"`
	Note      *string         `json:"note,omitempty"`
	Reason    *string         `json:"reason,omitempty"`
	ReportBy  *uuid.UUID      `json:"reportBy,omitempty"`
	UpdatedAt time.Time       `json:"updatedAt"`
	Images    []ImageResponse `json:"images"`
}

type QuotationResponse struct {
	ID           string                  `json:"id"`
	TechnicianID uuid.UUID               `json:"technicianId"`
	TotalPrice   int64                   `json:"totalPrice"`
	CreatedAt    time.Time               `json:"createdAt"`
	Items        []QuotationItemResponse `json:"items"`
}

type PaymentResponse struct {
	ID           string          `json:"id"`
	Method       string          `json:"method"`
	Amount       int64           `json:"amount"`
	Status       string          `json:"status"`
	VerifiedBy   *uuid.UUID      `json:"verifiedBy,omitempty"`
	VerifiedAt   *time.Time      `json:"verifiedAt,omitempty"`
	RejectReason *string         `json:"rejectReason,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
	Proofs       []ImageResponse `json:"proofs"`
}

type RequestDetailResponse struct {
	RequestResponse
	SceneImages  []ImageResponse    `json:"sceneImages"`
	SurveyImages []ImageResponse    `json:"surveyImages"`
	Quotation    *QuotationResponse `json:"quotation,omitempty"`
	Payment      *PaymentResponse   `json:"payment,omitempty"`
}

type StatusLogResponse struct {
	ID        string    `json:"id"`
	OldStatus *string   `json:"oldStatus"`
	NewStatus string    `json:"newStatus"`
	ChangedBy uuid.UUID `json:"changedBy"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type AssignmentResponse struct {
	ID              string     `json:"id"`
	OldTechnicianID *uuid.UUID `json:"oldTechnicianId"`
	NewTechnicianID uuid.UUID  `json:"newTechnicianId"`
	AssignedBy      uuid.UUID  `json:"assignedBy"`
	Reason          string     `json:"reason,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

type HistoryResponse struct {
	StatusLog   []StatusLogResponse  `json:"statusLog"`
	Assignments []AssignmentResponse `json:"assignments"`
}

type RequestListResponse struct {
	Items      []RequestResponse `json:"items"`
	Total      int               `json:"total"`
	Page       int               `json:"page"`
	PageSize   int               `json:"pageSize"`
	TotalPages int               `json:"totalPages"`
}
