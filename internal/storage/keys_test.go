package storage

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/minio/minio-go/v7"
)

func TestDocumentObjectKeyRoundTrip(t *testing.T) {
	key := DocumentObjectKey("app-1", ".pdf")
	if !strings.HasPrefix(key, "documents/app-1/") || !strings.HasSuffix(key, ".pdf") {
		t.Fatalf("unexpected key %q", key)
	}
	if !IsDocumentKeyFor("app-1", key) {
		t.Fatalf("generated key rejected: %q", key)
	}
}

func TestIsDocumentKeyForRejects(t *testing.T) {
	cases := []string{
		"",
		"documents/app-2/x.pdf",
		"documents/app-1/../app-2/x.pdf",
		"documents/app-1//x.pdf",
		"documents/app-1\\x.pdf",
		"exports/app-1/x.csv",
		"documents/app-1/" + strings.Repeat("a", 300),
	}
	for _, key := range cases {
		if IsDocumentKeyFor("app-1", key) {
			t.Fatalf("key %q should be rejected", key)
		}
	}
}

func TestExportObjectKeyStripsDirectories(t *testing.T) {
	if got := ExportObjectKey("p1", "../../etc/passwd"); got != "exports/p1/passwd" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestIsNoSuchKey(t *testing.T) {
	if !IsNoSuchKey(minio.ErrorResponse{Code: "NoSuchKey"}) {
		t.Fatalf("minio NoSuchKey not detected")
	}
	if !IsNoSuchKey(fmt.Errorf("remove: %w", minio.ErrorResponse{Code: "NotFound", StatusCode: 404})) {
		t.Fatalf("wrapped NotFound not detected")
	}
	if IsNoSuchKey(minio.ErrorResponse{Code: "NoSuchBucket", StatusCode: 404}) {
		t.Fatalf("missing bucket must not count as a missing object")
	}
	if IsNoSuchKey(errors.New("connection refused")) || IsNoSuchKey(nil) {
		t.Fatalf("unexpected match")
	}
}
