package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openai/openai-go/option"

	"github.com/storyreel/storyreel-agent/internal/logging"
)

func completion(content string) string {
	body, _ := json.Marshal(map[string]interface{}{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "gpt-4o-mini",
		"choices": []map[string]interface{}{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]interface{}{"role": "assistant", "content": content},
		}},
	})
	return string(body)
}

type recorded struct {
	path string
	auth string
	body map[string]interface{}
}

func newServer(t *testing.T, status int, reply string) (*httptest.Server, *recorded) {
	t.Helper()
	rec := &recorded{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.path = r.URL.Path
		rec.auth = r.Header.Get("Authorization")
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &rec.body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func newTestClient(srv *httptest.Server) *Client {
	return NewClient("sk-test", "gpt-4o-mini", srv.URL+"/", logging.Discard(), option.WithMaxRetries(0))
}

func TestCorrect(t *testing.T) {
	srv, rec := newServer(t, http.StatusOK, completion("  Am I the jerk for leaving early?  "))
	got, err := newTestClient(srv).Correct(context.Background(), "AITA for leaving erly")
	if err != nil {
		t.Fatalf("Correct() error = %v", err)
	}
	if got != "Am I the jerk for leaving early?" {
		t.Errorf("Correct() = %q", got)
	}
	if rec.path != "/chat/completions" {
		t.Errorf("path = %q", rec.path)
	}
	if rec.auth != "Bearer sk-test" {
		t.Errorf("auth header = %q", rec.auth)
	}
	if rec.body["model"] != "gpt-4o-mini" {
		t.Errorf("model = %v", rec.body["model"])
	}
}

func TestCorrect_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		reply  string
		input  string
	}{
		{"server error", http.StatusInternalServerError, `{"error":{"message":"boom"}}`, "text"},
		{"empty content", http.StatusOK, completion("   "), "text"},
		{"empty input", http.StatusOK, completion("unused"), "  "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newServer(t, tt.status, tt.reply)
			if _, err := newTestClient(srv).Correct(context.Background(), tt.input); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestShortenTitle_UsesStructuredOutput(t *testing.T) {
	srv, rec := newServer(t, http.StatusOK, completion(`{"title":"\"Cake Drama\""}`))
	got, err := newTestClient(srv).ShortenTitle(context.Background(), "AITA for eating my sister's birthday cake before the party")
	if err != nil {
		t.Fatalf("ShortenTitle() error = %v", err)
	}
	if got != "Cake Drama" {
		t.Errorf("ShortenTitle() = %q", got)
	}

	format, ok := rec.body["response_format"].(map[string]interface{})
	if !ok || format["type"] != "json_schema" {
		t.Fatalf("response_format = %v", rec.body["response_format"])
	}
	schema, _ := format["json_schema"].(map[string]interface{})
	if schema["name"] != "short_title" || schema["strict"] != true {
		t.Errorf("json_schema = %v", schema)
	}
	raw, _ := json.Marshal(schema["schema"])
	if !strings.Contains(string(raw), `"title"`) || !strings.Contains(string(raw), `"additionalProperties":false`) {
		t.Errorf("schema = %s", raw)
	}

	messages, _ := rec.body["messages"].([]interface{})
	if len(messages) != 2 {
		t.Fatalf("messages = %v", rec.body["messages"])
	}
	system, _ := messages[0].(map[string]interface{})
	if system["role"] != "system" {
		t.Fatalf("first message = %v", system)
	}
	prompt, _ := system["content"].(string)
	if !strings.Contains(prompt, "at most 20 characters") {
		t.Errorf("system prompt = %q, want a 20 character limit", prompt)
	}
}

func TestShortenTitle_RejectsBadResponses(t *testing.T) {
	for _, reply := range []string{completion("not json"), completion(`{"title":"  "}`)} {
		srv, _ := newServer(t, http.StatusOK, reply)
		if _, err := newTestClient(srv).ShortenTitle(context.Background(), "A title"); err == nil {
			t.Errorf("expected error for reply %s", reply)
		}
	}
}

func TestUnconfigured(t *testing.T) {
	var u Unconfigured
	if _, err := u.Correct(context.Background(), "text"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Correct err = %v, want ErrNotConfigured", err)
	}
	if _, err := u.ShortenTitle(context.Background(), "title"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("ShortenTitle err = %v, want ErrNotConfigured", err)
	}
}
