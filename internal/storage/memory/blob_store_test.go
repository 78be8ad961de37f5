package memory

import (
	"bytes"
	"context"
	"testing"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("content")
	uri, err := store.PutObject(context.Background(), "snapshots/k1/c1/abc.txt", "text/plain", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}
	if uri != "memory://snapshots/k1/c1/abc.txt" {
		t.Fatalf("unexpected uri %s", uri)
	}
	payload[0] = 'C'
	stored, contentType, ok := store.Object("snapshots/k1/c1/abc.txt")
	if !ok || string(stored) != "content" {
		t.Fatalf("expected stored copy to be immutable, got %q", stored)
	}
	if contentType != "text/plain" {
		t.Fatalf("unexpected content type %q", contentType)
	}
	stored[0] = 'X'
	again, _, _ := store.Object("snapshots/k1/c1/abc.txt")
	if string(again) != "content" {
		t.Fatalf("Object() must return a copy, got %q", again)
	}
	if store.Len() != 1 {
		t.Fatalf("Len() = %d", store.Len())
	}
}

func TestBlobStoreRejectsEmptyPath(t *testing.T) {
	t.Parallel()

	if _, err := NewBlobStore().PutObject(context.Background(), " ", "", bytes.NewReader(nil)); err == nil {
		t.Fatal("expected error for empty path")
	}
}
