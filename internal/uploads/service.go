// Package uploads hands out presigned object storage URLs. The keys it
// returns are the image references the lifecycle engine records.
package uploads

import (
	"context"
	"path"
	"strings"
	"time"

	"repairdesk_backend/internal/adapters/storage"
	"repairdesk_backend/platform/apperr"
	"repairdesk_backend/platform/idgen"

	"github.com/google/uuid"
)

// Kind names what an uploaded file will be attached to.
type Kind string

const (
	KindScene  Kind = "scene"
	KindSurvey Kind = "survey"
	KindItem   Kind = "item"
	KindProof  Kind = "proof"
)

func (k Kind) valid() bool {
	switch k {
	case KindScene, KindSurvey, KindItem, KindProof:
		return true
	}
	return false
}

// Buckets selects where each kind of upload lives.
type Buckets struct {
	RequestImages string
	PaymentProofs string
}

func (b Buckets) forKind(k Kind) string {
	if k == KindProof {
		return b.PaymentProofs
	}
	return b.RequestImages
}

type PresignInput struct {
	RequestID   string `json:"requestId"`
	Kind        Kind   `json:"kind" validate:"required,oneof=scene survey item proof"`
	FileName    string `json:"fileName" validate:"required,max=255"`
	ContentType string `json:"contentType" validate:"required"`
	SizeBytes   int64  `json:"sizeBytes" validate:"required,min=1"`
}

type PresignResult struct {
	UploadURL string `json:"uploadUrl"`
	ImageRef  string `json:"imageRef"`
	Bucket    string `json:"bucket"`
	ExpiresAt string `json:"expiresAt"`
}

type Service struct {
	storage storage.StorageService
	buckets Buckets
}

func NewService(store storage.StorageService, buckets Buckets) *Service {
	return &Service{storage: store, buckets: buckets}
}

// Presign returns a PUT URL under requests/<request>/<kind>/. Scene images
// are uploaded before the request exists, so they go to a per-user draft
// folder instead.
func (s *Service) Presign(ctx context.Context, userID uuid.UUID, in PresignInput) (PresignResult, error) {
	if s.storage == nil {
		return PresignResult{}, apperr.Internal("file storage is not configured")
	}
	if !in.Kind.valid() {
		return PresignResult{}, apperr.Validation("unknown upload kind")
	}
	if in.Kind != KindProof && !storage.IsImageContentType(in.ContentType) {
		return PresignResult{}, apperr.Validation("only images can be attached to a request")
	}
	if err := s.storage.ValidateContentType(in.ContentType); err != nil {
		return PresignResult{}, apperr.Validation(err.Error())
	}
	if err := s.storage.ValidateFileSize(in.SizeBytes); err != nil {
		return PresignResult{}, apperr.Validation(err.Error())
	}

	folder, err := folderFor(userID, in)
	if err != nil {
		return PresignResult{}, err
	}

	bucket := s.buckets.forKind(in.Kind)
	url, err := s.storage.GenerateUploadURL(ctx, bucket, folder, in.FileName, in.ContentType, in.SizeBytes)
	if err != nil {
		return PresignResult{}, apperr.Wrap(apperr.KindInternal, "failed to presign upload", err)
	}

	return PresignResult{
		UploadURL: url.URL,
		ImageRef:  url.FileKey,
		Bucket:    bucket,
		ExpiresAt: url.ExpiresAt.UTC().Format(time.RFC3339),
	}, nil
}

func folderFor(userID uuid.UUID, in PresignInput) (string, error) {
	requestID := strings.TrimSpace(in.RequestID)
	if requestID == "" {
		if in.Kind != KindScene {
			return "", apperr.Validation("requestId is required")
		}
		return path.Join("requests", "drafts", userID.String(), string(KindScene)), nil
	}
	if !idgen.HasPrefix(requestID, idgen.Request) {
		return "", apperr.Validation("invalid requestId")
	}
	return path.Join("requests", requestID, string(in.Kind)), nil
}
