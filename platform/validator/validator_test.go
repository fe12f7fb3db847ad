package validator

import "testing"

func TestImageRefTag(t *testing.T) {
	v := New()

	valid := []string{
		"https://cdn.example.com/a.jpg",
		"requests/REQ1/scene/a.jpg",
	}
	for _, ref := range valid {
		if err := v.Var(ref, "imageref"); err != nil {
			t.Fatalf("expected %q to be valid, got %v", ref, err)
		}
	}

	invalid := []string{
		"",
		"/etc/passwd",
		"requests/../secret",
		"ftp://example.com/a.jpg",
		"https://",
	}
	for _, ref := range invalid {
		if err := v.Var(ref, "imageref"); err == nil {
			t.Fatalf("expected %q to be rejected", ref)
		}
	}
}
