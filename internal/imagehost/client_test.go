package imagehost

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestUpload_OK(t *testing.T) {
	image := []byte("fake-image-bytes")

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/1/upload" {
			t.Fatalf("path = %s, want /1/upload", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.PostForm.Get("key"); got != "test-key" {
			t.Fatalf("key = %q, want test-key", got)
		}
		if got := r.PostForm.Get("image"); got != base64.StdEncoding.EncodeToString(image) {
			t.Fatalf("unexpected image payload")
		}
		if got := r.PostForm.Get("name"); got != "awa" {
			t.Fatalf("name = %q, want awa", got)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":{"url":"https://img.example/awa.jpg"}}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "test-key")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	url, err := client.Upload(ctx, image, "awa")
	if err != nil {
		t.Fatalf("Upload error: %v", err)
	}
	if url != "https://img.example/awa.jpg" {
		t.Fatalf("url = %q", url)
	}
}

func TestUpload_Rejected(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":false}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "test-key")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := client.Upload(ctx, []byte("img"), "")
	if err == nil {
		t.Fatalf("expected error for rejected upload")
	}
	if !strings.Contains(err.Error(), "rejected") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUpload_NotConfigured(t *testing.T) {
	client := NewClient("", "")

	_, err := client.Upload(context.Background(), []byte("img"), "")
	if err == nil {
		t.Fatalf("expected error for unconfigured client")
	}
}
