package objectstore_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"strata/internal/objectstore"
)

func TestFSRoundTrip(t *testing.T) {
	store, err := objectstore.NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}

	ctx := context.Background()
	location, err := store.Write(ctx, "jobs/req-1/items/0/input.json", []byte(`{"cursor":""}`))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !strings.HasPrefix(location, "file://") {
		t.Fatalf("expected file:// location, got %s", location)
	}

	data, err := store.Read(ctx, location)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(data) != `{"cursor":""}` {
		t.Fatalf("unexpected payload: %s", data)
	}
}

func TestFSReadMissingReturnsNotFound(t *testing.T) {
	store, err := objectstore.NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	_, err = store.Read(context.Background(), "file:///nowhere/else/input.json")
	if !errors.Is(err, objectstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFSRejectsEscapingKeys(t *testing.T) {
	store, err := objectstore.NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	if _, err := store.Write(context.Background(), "../outside.json", []byte("x")); err == nil {
		t.Fatal("expected error for escaping key")
	}
	if _, err := store.Write(context.Background(), "", []byte("x")); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestFSOverwriteReplacesPayload(t *testing.T) {
	store, err := objectstore.NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}

	ctx := context.Background()
	if _, err := store.Write(ctx, "k.json", []byte("one")); err != nil {
		t.Fatalf("first Write: %v", err)
	}
	location, err := store.Write(ctx, "k.json", []byte("two"))
	if err != nil {
		t.Fatalf("second Write: %v", err)
	}
	data, err := store.Read(ctx, location)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(data) != "two" {
		t.Fatalf("expected overwrite, got %s", data)
	}
}

func TestNewS3ValidatesConfig(t *testing.T) {
	if _, err := objectstore.NewS3(objectstore.S3Config{Bucket: "b"}); err == nil {
		t.Fatal("expected error for missing endpoint")
	}
	if _, err := objectstore.NewS3(objectstore.S3Config{Endpoint: "127.0.0.1:9000"}); err == nil {
		t.Fatal("expected error for missing bucket")
	}
}

func TestSplitS3LocationShapes(t *testing.T) {
	store, err := objectstore.NewS3(objectstore.S3Config{
		Endpoint:  "127.0.0.1:9000",
		Bucket:    "payloads",
		AccessKey: "ak",
		SecretKey: "sk",
	})
	if err != nil {
		t.Fatalf("NewS3: %v", err)
	}
	for _, bad := range []string{"http://x/y", "s3://", "s3://bucketonly", "s3://bucket/"} {
		if _, err := store.Read(context.Background(), bad); err == nil {
			t.Fatalf("expected error for location %q", bad)
		}
	}
}
