package s3

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"eggjnd/internal/blob/core"
)

func TestMockStoreRoundTrip(t *testing.T) {
	s := NewMock()
	ctx := context.Background()
	if s.Driver() != core.DriverS3 {
		t.Fatalf("unexpected driver %v", s.Driver())
	}
	info, err := s.Put(ctx, "runs/r1/eggs/xyz.csv", strings.NewReader("id,x\n"), core.PutOptions{
		ContentType: "text/csv",
		Metadata:    map[string]string{"stage": "projection"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 5 || info.ContentType != "text/csv" || info.Metadata["stage"] != "projection" {
		t.Fatalf("unexpected info %+v", info)
	}
	_, rc, err := s.Get(ctx, info.Key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(b) != "id,x\n" {
		t.Fatalf("unexpected body %q", b)
	}
	if _, err := s.Put(ctx, info.Key, strings.NewReader("again"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
}

func TestMockStoreMissingKeys(t *testing.T) {
	s := NewMock()
	ctx := context.Background()
	if _, err := s.Head(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("head: expected ErrNotFound, got %v", err)
	}
	if _, _, err := s.Get(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("get: expected ErrNotFound, got %v", err)
	}
	deleted, err := s.Delete(ctx, "nope")
	if err != nil || deleted {
		t.Fatalf("expected delete false, got %v %v", deleted, err)
	}
	if _, err := s.Put(ctx, "/abs", strings.NewReader(""), core.PutOptions{}); !errors.Is(err, core.ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}

func TestMockStoreListDeletePresign(t *testing.T) {
	s := NewMock()
	ctx := context.Background()
	for _, k := range []string{"runs/r/b.csv", "runs/r/a.csv", "tmp/c.csv"} {
		if _, err := s.Put(ctx, k, strings.NewReader(k), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}
	list, err := s.List(ctx, "runs/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Key != "runs/r/a.csv" || list[1].Key != "runs/r/b.csv" {
		t.Fatalf("unexpected list %+v", list)
	}
	if ok, err := s.Delete(ctx, "runs/r/a.csv"); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	u, err := s.PresignURL(ctx, "runs/r/b.csv", core.SignedURLOptions{})
	if err != nil || !strings.Contains(u, "runs/r/b.csv") || !strings.Contains(u, "X-Amz-Signature") {
		t.Fatalf("unexpected presigned url %q (%v)", u, err)
	}
	if _, err := s.PresignURL(ctx, "runs/r/b.csv", core.SignedURLOptions{Method: "DELETE"}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestDecodeChunked(t *testing.T) {
	body := "5;chunk-signature=abc\r\nhello\r\n6\r\n world\r\n0\r\nx-amz-checksum-crc32:AAAA\r\n\r\n"
	out, err := decodeChunked([]byte(body))
	if err != nil || string(out) != "hello world" {
		t.Fatalf("decode: %q %v", out, err)
	}
	if _, err := decodeChunked([]byte("zz\r\n")); err == nil {
		t.Fatalf("expected error for bad size")
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected bucket error")
	}
}
