package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew(t *testing.T) {
	t.Run("requires an API key", func(t *testing.T) {
		if _, err := New(""); err == nil {
			t.Fatal("expected error for empty key")
		}
	})

	t.Run("defaults", func(t *testing.T) {
		c, err := New("secret")
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if c.BaseURL() != DefaultBaseURL {
			t.Errorf("base URL = %q", c.BaseURL())
		}
	})
}

func TestPostJSON(t *testing.T) {
	t.Run("sends headers and decodes response", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-Api-Key") != "secret" {
				t.Errorf("X-Api-Key = %q", r.Header.Get("X-Api-Key"))
			}
			if ct := r.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
			var in map[string]string
			if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
				t.Errorf("decode request: %v", err)
			}
			if in["hello"] != "world" {
				t.Errorf("payload = %v", in)
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "OK"})
		}))
		defer srv.Close()

		c, err := New("secret", WithLogger(discardLogger()))
		if err != nil {
			t.Fatalf("New: %v", err)
		}

		var out map[string]string
		if err := c.PostJSON(context.Background(), srv.URL+"/api/test", map[string]string{"hello": "world"}, &out); err != nil {
			t.Fatalf("PostJSON: %v", err)
		}
		if out["status"] != "OK" {
			t.Errorf("response = %v", out)
		}
	})

	t.Run("non-200 is an APIError", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "denied", http.StatusForbidden)
		}))
		defer srv.Close()

		c, err := New("secret", WithLogger(discardLogger()))
		if err != nil {
			t.Fatalf("New: %v", err)
		}

		err = c.PostJSON(context.Background(), srv.URL, map[string]string{}, nil)
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("err = %v, want APIError", err)
		}
		if apiErr.StatusCode != http.StatusForbidden {
			t.Errorf("status = %d", apiErr.StatusCode)
		}
	})

	t.Run("nil out skips decoding", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("not json at all"))
		}))
		defer srv.Close()

		c, err := New("secret", WithLogger(discardLogger()))
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if err := c.PostJSON(context.Background(), srv.URL, map[string]string{}, nil); err != nil {
			t.Fatalf("PostJSON: %v", err)
		}
	})
}

func TestSaveConversation(t *testing.T) {
	t.Run("posts the persistence payload", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/internal/InternalRgConvTrs" {
				t.Errorf("path = %q", r.URL.Path)
			}
			var in map[string]string
			if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
				t.Errorf("decode: %v", err)
			}
			if in["convName"] != "conv-1" || in["transcribe"] != "hello" || in["type"] != "workflow" {
				t.Errorf("payload = %v", in)
			}
			_ = json.NewEncoder(w).Encode(SaveResponse{ID: "42", Status: "OK"})
		}))
		defer srv.Close()

		c, err := New("secret", WithBaseURL(srv.URL), WithLogger(discardLogger()))
		if err != nil {
			t.Fatalf("New: %v", err)
		}

		resp := c.SaveConversation(context.Background(), "conv-1", "hello", "workflow")
		if resp.Status != "OK" || resp.ID != "42" {
			t.Errorf("resp = %+v", resp)
		}
	})

	t.Run("failure is reported as ERROR status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "down", http.StatusInternalServerError)
		}))
		defer srv.Close()

		c, err := New("secret", WithBaseURL(srv.URL), WithLogger(discardLogger()))
		if err != nil {
			t.Fatalf("New: %v", err)
		}

		resp := c.SaveConversation(context.Background(), "conv-1", "hello", "workflow")
		if resp.Status != "ERROR" {
			t.Errorf("status = %q, want ERROR", resp.Status)
		}
	})
}

func TestReconstruct(t *testing.T) {
	files := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/files/loc-1/in.wav":
			_, _ = w.Write([]byte("inbound-audio"))
		case "/api/files/loc-1/out.wav":
			_, _ = w.Write([]byte("outbound-audio"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer files.Close()

	audio := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/Audio/reconstruct" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("tenant_key"); got != "tenant a" {
			t.Errorf("tenant_key = %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		parts := r.MultipartForm.File["files"]
		if len(parts) != 2 {
			t.Errorf("got %d file parts", len(parts))
			http.Error(w, "bad part count", http.StatusBadRequest)
			return
		}
		if parts[0].Filename != "in.wav" || parts[1].Filename != "out.wav" {
			t.Errorf("filenames = %s, %s", parts[0].Filename, parts[1].Filename)
		}
		if f, err := parts[0].Open(); err == nil {
			data, _ := io.ReadAll(f)
			_ = f.Close()
			if string(data) != "inbound-audio" {
				t.Errorf("inbound part = %q", data)
			}
		} else {
			t.Errorf("open part: %v", err)
		}
		_ = json.NewEncoder(w).Encode(ReconstructionResponse{
			Files:                   []string{"in.wav", "out.wav"},
			ReconstructedTranscript: "merged transcript",
			Usage:                   Usage{Tokens: 300, CostUSD: 0.01},
		})
	}))
	defer audio.Close()

	c, err := New("secret",
		WithFileServiceURL(files.URL),
		WithGoogleAPIURL(audio.URL),
		WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	resp, err := c.Reconstruct(context.Background(), "loc-1", "in.wav", "out.wav", "tenant a")
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	if resp.ReconstructedTranscript != "merged transcript" {
		t.Errorf("transcript = %q", resp.ReconstructedTranscript)
	}
	if resp.Usage.Tokens != 300 || resp.Usage.CostUSD != 0.01 {
		t.Errorf("usage = %+v", resp.Usage)
	}

	t.Run("missing audio file", func(t *testing.T) {
		_, err := c.Reconstruct(context.Background(), "loc-1", "absent.wav", "out.wav", "tenant a")
		if err == nil {
			t.Fatal("expected error for missing inbound file")
		}
	})
}
