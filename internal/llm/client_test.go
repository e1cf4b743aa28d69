package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewHTTPClient(srv.URL, "test-key", Options{
		Model:          "gpt-4",
		EmbeddingModel: "text-embedding-3-small",
		Temperature:    0.7,
		MaxTokens:      1000,
		Timeout:        2 * time.Second,
	}, nil)
}

func TestCompleteSendsFullLog(t *testing.T) {
	var got chatRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer token")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hola"}}]}`))
	})

	msgs := []Message{
		{Role: "system", Content: "sys"},
		{Role: "assistant", Content: "hi"},
		{Role: "user", Content: "question"},
	}
	out, err := client.Complete(context.Background(), msgs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "hola" {
		t.Fatalf("expected hola, got %q", out)
	}
	if got.Model != "gpt-4" || got.Temperature != 0.7 || got.MaxTokens != 1000 {
		t.Fatalf("unexpected params: %+v", got)
	}
	if len(got.Messages) != 3 || got.Messages[2].Content != "question" {
		t.Fatalf("log not forwarded in order: %+v", got.Messages)
	}
}

func TestCompleteErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "non 2xx",
			status: http.StatusTooManyRequests,
			body:   `{"error":{"message":"rate limit"}}`,
			check: func(t *testing.T, err error) {
				var se *StatusError
				if !errors.As(err, &se) || se.StatusCode != http.StatusTooManyRequests || se.Message != "rate limit" {
					t.Fatalf("expected StatusError 429, got %v", err)
				}
			},
		},
		{
			name:   "no choices",
			status: http.StatusOK,
			body:   `{"choices":[]}`,
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrEmptyResponse) {
					t.Fatalf("expected ErrEmptyResponse, got %v", err)
				}
			},
		},
		{
			name:   "malformed",
			status: http.StatusOK,
			body:   `not json`,
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrMalformedResponse) {
					t.Fatalf("expected ErrMalformedResponse, got %v", err)
				}
			},
		},
		{
			name:   "error envelope on 200",
			status: http.StatusOK,
			body:   `{"error":{"message":"bad model"}}`,
			check: func(t *testing.T, err error) {
				if err == nil {
					t.Fatalf("expected error")
				}
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			})
			_, err := client.Complete(context.Background(), []Message{{Role: "user", Content: "x"}})
			tc.check(t, err)
		})
	}
}

func TestCompleteTransportError(t *testing.T) {
	client := NewHTTPClient("http://127.0.0.1:1", "k", Options{Model: "m", Timeout: time.Second}, nil)
	if _, err := client.Complete(context.Background(), []Message{{Role: "user", Content: "x"}}); err == nil {
		t.Fatalf("expected transport error")
	}
}

func TestCreateEmbedding(t *testing.T) {
	var got embeddingRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"data":[{"index":0,"embedding":[0.5,0.25]}]}`))
	})

	vec, err := client.CreateEmbedding(context.Background(), "  hola  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 2 || vec[0] != 0.5 {
		t.Fatalf("unexpected vector %v", vec)
	}
	if got.Model != "text-embedding-3-small" || len(got.Input) != 1 || got.Input[0] != "hola" {
		t.Fatalf("unexpected request %+v", got)
	}
}
