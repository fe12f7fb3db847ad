package transport

import (
	"repairdesk_backend/internal/requests/domain"
)

const dateLayout = "2006-01-02"

func ToRequestResponse(req domain.Request) RequestResponse {
	resp := RequestResponse{
		ID:            req.ID,
		CustomerID:    req.CustomerID,
		TechnicianID:  req.TechnicianID,
		ServiceID:     req.ServiceID,
		Title:         req.Title,
		Description:   req.Description,
		Address:       req.Address,
		RequestedTime: req.RequestedTime,
		Status:        string(req.Status),
		CancelReason:  req.CancelReason,
		CancelledBy:   req.CancelledBy,
		CreatedAt:     req.CreatedAt,
		UpdatedAt:     req.UpdatedAt,
		CompletedAt:   req.CompletedAt,
	}
	if req.RequestedDate != nil {
		date := req.RequestedDate.Format(dateLayout)
		resp.RequestedDate = &date
	}
	return resp
}

func toImages(images []domain.Image) []ImageResponse {
	out := make([]ImageResponse, 0, len(images))
	for _, img := range images {
		out = append(out, ImageResponse{ID: img.ID, URL: img.URL, UploadedBy: img.UploadedBy, CreatedAt: img.CreatedAt})
	}
	return out
}

func ToQuotationResponse(q domain.Quotation) QuotationResponse {
	items := make([]QuotationItemResponse, 0, len(q.Items))
	for _, item := range q.Items {
		images := make([]ImageResponse, 0, len(item.Images))
		for _, img := range item.Images {
			images = append(images, ImageResponse{ID: img.ID, URL: img.URL, UploadedBy: img.UploadedBy, CreatedAt: img.CreatedAt})
		}
		items = append(items, QuotationItemResponse{
			ID:        item.ID,
			Position:  item.Position,
			Name:      item.Name,
			Price:     item.Price,
			Status:    string(item.Status),
			Note:      item.Note,
			Reason:    item.Reason,
			ReportBy:  item.ReportBy,
			UpdatedAt: item.UpdatedAt,
			Images:    images,
		})
	}
	return QuotationResponse{
		ID:           q.ID,
		TechnicianID: q.TechnicianID,
		TotalPrice:   q.TotalPrice,
		CreatedAt:    q.CreatedAt,
		Items:        items,
	}
}

func ToPaymentResponse(p domain.Payment) PaymentResponse {
	proofs := make([]ImageResponse, 0, len(p.Proofs))
	for _, proof := range p.Proofs {
		proofs = append(proofs, ImageResponse{ID: proof.ID, URL: proof.URL, UploadedBy: proof.UploadedBy, CreatedAt: proof.CreatedAt})
	}
	return PaymentResponse{
		ID:           p.ID,
		Method:       p.Method,
		Amount:       p.Amount,
		Status:       string(p.Status),
		VerifiedBy:   p.VerifiedBy,
		VerifiedAt:   p.VerifiedAt,
		RejectReason: p.RejectReason,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
		Proofs:       proofs,
	}
}

func ToDetailResponse(detail domain.RequestDetail) RequestDetailResponse {
	resp := RequestDetailResponse{
		RequestResponse: ToRequestResponse(detail.Request),
		SceneImages:     toImages(detail.SceneImages),
		SurveyImages:    toImages(detail.SurveyImages),
	}
	if detail.Quotation != nil {
		q := ToQuotationResponse(*detail.Quotation)
		resp.Quotation = &q
	}
	if detail.Payment != nil {
		p := ToPaymentResponse(*detail.Payment)
		resp.Payment = &p
	}
	return resp
}

func ToHistoryResponse(history domain.History) HistoryResponse {
	resp := HistoryResponse{
		StatusLog:   make([]StatusLogResponse, 0, len(history.StatusLog)),
		Assignments: make([]AssignmentResponse, 0, len(history.Assignments)),
	}
	for _, entry := range history.StatusLog {
		var old *string
		if entry.OldStatus != nil {
			v := string(*entry.OldStatus)
			old = &v
		}
		resp.StatusLog = append(resp.StatusLog, StatusLogResponse{
			ID:        entry.ID,
			OldStatus: old,
			NewStatus: string(entry.NewStatus),
			ChangedBy: entry.ChangedBy,
			Reason:    entry.Reason,
			CreatedAt: entry.CreatedAt,
		})
	}
	for _, a := range history.Assignments {
		resp.Assignments = append(resp.Assignments, AssignmentResponse{
			ID:              a.ID,
			OldTechnicianID: a.OldTechnicianID,
			NewTechnicianID: a.NewTechnicianID,
			AssignedBy:      a.AssignedBy,
			Reason:          a.Reason,
			CreatedAt:       a.CreatedAt,
		})
	}
	return resp
}

func ToListResponse(items []domain.Request, total, page, pageSize int) RequestListResponse {
	out := make([]RequestResponse, 0, len(items))
	for _, item := range items {
		out = append(out, ToRequestResponse(item))
	}
	totalPages := 0
	if pageSize > 0 {
		totalPages = (total + pageSize - 1) / pageSize
	}
	return RequestListResponse{Items: out, Total: total, Page: page, PageSize: pageSize, TotalPages: totalPages}
}
