package uploads

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"repairdesk_backend/internal/adapters/storage"
	"repairdesk_backend/platform/apperr"
	"repairdesk_backend/platform/idgen"

	"github.com/google/uuid"
)

type fakeStorage struct {
	bucket string
	folder string
	err    error
}

func (f *fakeStorage) GenerateUploadURL(_ context.Context, bucket, folder, fileName, _ string, _ int64) (*storage.PresignedURL, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.bucket, f.folder = bucket, folder
	key := storage.ObjectKey(folder, fileName)
	return &storage.PresignedURL{URL: "https://minio.local/" + bucket + "/" + key, FileKey: key, ExpiresAt: time.Now().Add(time.Minute)}, nil
}

func (f *fakeStorage) EnsureBucketExists(context.Context, string) error { return nil }

func (f *fakeStorage) ValidateContentType(contentType string) error {
	if !storage.AllowedContentTypes[contentType] {
		return errors.New("content type not allowed")
	}
	return nil
}

func (f *fakeStorage) ValidateFileSize(size int64) error {
	if size > 1024 {
		return errors.New("too large")
	}
	return nil
}

var testBuckets = Buckets{RequestImages: "request-images", PaymentProofs: "payment-proofs"}

func TestPresignPlacesKeysUnderRequest(t *testing.T) {
	store := &fakeStorage{}
	svc := NewService(store, testBuckets)
	requestID := idgen.New(idgen.Request)

	result, err := svc.Presign(context.Background(), uuid.New(), PresignInput{
		RequestID: requestID, Kind: KindProof, FileName: "receipt.pdf", ContentType: "application/pdf", SizeBytes: 100,
	})
	if err != nil {
		t.Fatalf("expected presign, got %v", err)
	}
	if store.bucket != "payment-proofs" {
		t.Fatalf("expected proofs bucket, got %q", store.bucket)
	}
	if !strings.HasPrefix(result.ImageRef, "requests/"+requestID+"/proof/") || !strings.HasSuffix(result.ImageRef, ".pdf") {
		t.Fatalf("unexpected image ref %q", result.ImageRef)
	}
}

func TestPresignSceneWithoutRequestUsesDraftFolder(t *testing.T) {
	store := &fakeStorage{}
	user := uuid.New()
	_, err := NewService(store, testBuckets).Presign(context.Background(), user, PresignInput{
		Kind: KindScene, FileName: "leak.png", ContentType: "image/png", SizeBytes: 10,
	})
	if err != nil {
		t.Fatalf("expected presign, got %v", err)
	}
	if store.folder != "requests/drafts/"+user.String()+"/scene" || store.bucket != "request-images" {
		t.Fatalf("unexpected placement %s/%s", store.bucket, store.folder)
	}
}

func TestPresignRejectsBadInput(t *testing.T) {
	svc := NewService(&fakeStorage{}, testBuckets)
	cases := map[string]PresignInput{
		"survey without request": {Kind: KindSurvey, FileName: "a.jpg", ContentType: "image/jpeg", SizeBytes: 10},
		"malformed request id":   {RequestID: "REQ123", Kind: KindItem, FileName: "a.jpg", ContentType: "image/jpeg", SizeBytes: 10},
		"pdf on request media":   {RequestID: idgen.New(idgen.Request), Kind: KindItem, FileName: "a.pdf", ContentType: "application/pdf", SizeBytes: 10},
		"too large":              {Kind: KindScene, FileName: "a.jpg", ContentType: "image/jpeg", SizeBytes: 4096},
		"unknown kind":           {Kind: "avatar", FileName: "a.jpg", ContentType: "image/jpeg", SizeBytes: 10},
	}
	for name, in := range cases {
		if _, err := svc.Presign(context.Background(), uuid.New(), in); !apperr.Is(err, apperr.KindValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
}

func TestPresignWithoutStorageIsInternal(t *testing.T) {
	_, err := NewService(nil, testBuckets).Presign(context.Background(), uuid.New(), PresignInput{Kind: KindScene})
	if !apperr.Is(err, apperr.KindInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
}
