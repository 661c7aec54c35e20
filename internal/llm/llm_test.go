package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pavelanni/quizdesk/internal/llm/prompts"
	"github.com/pavelanni/quizdesk/internal/model"
)

// fakeServer answers chat completions with content and records the last prompt.
func fakeServer(t *testing.T, content string, lastPrompt *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/models":
			_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"test-model","object":"model"}]}`))
		case "/v1/chat/completions":
			var req struct {
				Messages []struct {
					Content string `json:"content"`
				} `json:"messages"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode request: %v", err)
			}
			if lastPrompt != nil && len(req.Messages) > 0 {
				*lastPrompt = req.Messages[0].Content
			}
			body, _ := json.Marshal(map[string]any{
				"id":     "chatcmpl-1",
				"object": "chat.completion",
				"model":  "test-model",
				"choices": []map[string]any{{
					"index":         0,
					"finish_reason": "stop",
					"message":       map[string]any{"role": "assistant", "content": content},
				}},
			})
			_, _ = w.Write(body)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := New(srv.URL+"/v1", "test-key", "test-model", prompts.Standard)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func sampleAttempt() model.Attempt {
	return model.Attempt{
		ID:           "att-1",
		SessionTitle: "Concurrency",
		Status:       model.StatusSubmitted,
		Answers: []model.AnswerRecord{
			{Topic: "goroutines", Question: "What is a goroutine?", Answer: "a cheap thread"},
			{Topic: "channels", Question: "Who closes a channel?", Answer: "the sender"},
			{Topic: "select", Question: "What does select do?", Answer: "waits on channels"},
		},
	}
}

func TestNew(t *testing.T) {
	if _, err := New("", "k", "", prompts.Standard); err == nil {
		t.Error("expected error without model name")
	}
	if _, err := New("", "k", "m", "harsh"); err == nil {
		t.Error("expected error for unknown variant")
	}
	c, err := New("", "k", "m", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.variant != prompts.Standard {
		t.Errorf("default variant = %q, want standard", c.variant)
	}
}

func TestSuggestScores(t *testing.T) {
	var prompt string
	content := `{"suggestions":[
		{"index":2,"score":7,"feedback":"mostly right"},
		{"index":0,"score":12,"feedback":"great"},
		{"index":1,"score":-3,"feedback":"wrong"},
		{"index":1,"score":5,"feedback":"duplicate"},
		{"index":9,"score":5,"feedback":"no such answer"}
	]}`
	c := newTestClient(t, fakeServer(t, content, &prompt))

	keys := map[string]string{"Who closes a channel?": "the sender"}
	got, err := c.SuggestScores(context.Background(), sampleAttempt(), keys, 10)
	if err != nil {
		t.Fatalf("SuggestScores: %v", err)
	}

	want := []Suggestion{
		{Index: 0, Score: 10, Feedback: "great"},
		{Index: 1, Score: 0, Feedback: "wrong"},
		{Index: 2, Score: 7, Feedback: "mostly right"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d suggestions, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("suggestion[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}

	if !strings.Contains(prompt, "Reference answer: the sender") {
		t.Error("prompt should include the answer key")
	}
	if !strings.Contains(prompt, "waits on channels") {
		t.Error("prompt should include trainee answers")
	}
}

func TestSuggestScoresBadResponse(t *testing.T) {
	c := newTestClient(t, fakeServer(t, "not json", nil))
	if _, err := c.SuggestScores(context.Background(), sampleAttempt(), nil, 10); err == nil {
		t.Error("expected parse error")
	}
}

func TestSuggestScoresNoAnswers(t *testing.T) {
	c := newTestClient(t, fakeServer(t, `{}`, nil))
	got, err := c.SuggestScores(context.Background(), model.Attempt{}, nil, 10)
	if err != nil || len(got) != 0 {
		t.Errorf("expected empty result, got %v, %v", got, err)
	}
}

func TestPing(t *testing.T) {
	c := newTestClient(t, fakeServer(t, `{}`, nil))
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer down.Close()
	c = newTestClient(t, down)
	if err := c.Ping(context.Background()); err == nil {
		t.Error("expected error from unavailable endpoint")
	}
}
