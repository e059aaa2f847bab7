package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"tracefood/internal/blob/core"
)

func newMockStore(t *testing.T) (*Store, *MockTransport) {
	t.Helper()
	rt := NewMockTransport()
	s, err := New(context.Background(), Config{
		Bucket:          "archive",
		Endpoint:        "https://mock.s3.local",
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
		PathStyle:       true,
		HTTPClient:      &http.Client{Transport: rt},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return s, rt
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected bucket error")
	}
}

func TestS3StoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s, _ := newMockStore(t)
	if s.Driver() != core.DriverS3 || s.Bucket() != "archive" {
		t.Fatalf("unexpected store %s %s", s.Driver(), s.Bucket())
	}
	payload := []byte(`{"stage_transitions":null,"lots":{},"lot_ids":[]}`)
	info, err := s.Put(ctx, "snapshots/a.json", bytes.NewReader(payload), core.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"lots": "0"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "snapshots/a.json" || info.Size != int64(len(payload)) || info.ContentType != "application/json" {
		t.Fatalf("unexpected info %+v", info)
	}
	if info.Metadata["lots"] != "0" {
		t.Fatalf("metadata not round-tripped: %+v", info.Metadata)
	}
	if _, err := s.Put(ctx, "snapshots/a.json", bytes.NewReader(payload), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected exists, got %v", err)
	}

	_, rc, err := s.Get(ctx, "snapshots/a.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if !bytes.Equal(body, payload) {
		t.Fatalf("unexpected body %q", body)
	}

	if _, _, err := s.Get(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := s.Head(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if ok, err := s.Delete(ctx, "missing"); ok || err != nil {
		t.Fatalf("delete missing: %v %v", ok, err)
	}
	if ok, err := s.Delete(ctx, "snapshots/a.json"); !ok || err != nil {
		t.Fatalf("delete: %v %v", ok, err)
	}
}

func TestS3StoreListPaginates(t *testing.T) {
	ctx := context.Background()
	s, rt := newMockStore(t)
	rt.PageSize = 2
	for i := 4; i >= 0; i-- {
		key := fmt.Sprintf("snapshots/%d.json", i)
		if _, err := s.Put(ctx, key, strings.NewReader("{}"), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	if _, err := s.Put(ctx, "other.json", strings.NewReader("{}"), core.PutOptions{}); err != nil {
		t.Fatalf("put other: %v", err)
	}
	infos, err := s.List(ctx, "snapshots/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 5 {
		t.Fatalf("expected 5 keys across pages, got %d", len(infos))
	}
	for i, info := range infos {
		if info.Key != fmt.Sprintf("snapshots/%d.json", i) {
			t.Fatalf("unexpected order %+v", infos)
		}
	}
}

func TestS3StorePresign(t *testing.T) {
	s, _ := newMockStore(t)
	u, err := s.PresignURL(context.Background(), "snapshots/a.json", core.SignedURLOptions{})
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	if !strings.Contains(u, "snapshots/a.json") || !strings.Contains(u, "X-Amz-Expires=900") {
		t.Fatalf("unexpected presigned url %s", u)
	}
}

func TestNewMock(t *testing.T) {
	s, err := NewMock(context.Background())
	if err != nil {
		t.Fatalf("mock: %v", err)
	}
	if _, err := s.Put(context.Background(), "k", strings.NewReader("v"), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
}

func TestDecodeChunked(t *testing.T) {
	raw := "5;chunk-signature=abc\r\nhello\r\n6\r\n world\r\n0\r\nx-amz-checksum-crc32:AAAA\r\n\r\n"
	got, ok := decodeChunked([]byte(raw))
	if !ok || string(got) != "hello world" {
		t.Fatalf("unexpected decode %q %v", got, ok)
	}
	if _, ok := decodeChunked([]byte("zz\r\n")); ok {
		t.Fatalf("expected invalid framing")
	}
}
