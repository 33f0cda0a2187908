package llamacpp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func modelsJSON(ids ...string) []byte {
	l := modelList{}
	for _, id := range ids {
		l.Data = append(l.Data, modelEntry{ID: id})
	}
	b, _ := json.Marshal(l)
	return b
}

func TestModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			http.NotFound(w, r)
			return
		}
		w.Write(modelsJSON("qwen2.5-7b-instruct", "llama-3.1-8b"))
	}))
	defer srv.Close()

	c := New(srv.URL + "/")
	models, err := c.Models(context.Background())
	if err != nil {
		t.Fatalf("Models: %v", err)
	}
	want := []string{"qwen2.5-7b-instruct", "llama-3.1-8b"}
	if len(models) != len(want) {
		t.Fatalf("got %d models, want %d", len(models), len(want))
	}
	for i, w := range want {
		if models[i] != w {
			t.Errorf("models[%d] = %q, want %q", i, models[i], w)
		}
	}
}

func TestProps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"default_generation_settings":{"n_ctx":8192,"temperature":0.8},"total_slots":1}`))
	}))
	defer srv.Close()

	p, err := New(srv.URL).Props(context.Background())
	if err != nil {
		t.Fatalf("Props: %v", err)
	}
	if p.DefaultGenerationSettings.NCtx != 8192 {
		t.Errorf("n_ctx = %d, want 8192", p.DefaultGenerationSettings.NCtx)
	}
}

func TestComplete_SendsGrammarAndNPredict(t *testing.T) {
	var got map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{
			"choices":[{"index":0,"message":{"role":"assistant","content":"Invoice 42\n42.00"}}],
			"timings":{"prompt_n":120,"prompt_ms":310.5,"predicted_n":7,"predicted_ms":90.1}
		}`))
	}))
	defer srv.Close()

	resp, err := New(srv.URL).Complete(context.Background(), Query{
		Model: "m",
		Messages: []Message{
			{Role: RoleSystem, Content: "sys"},
			{Role: RoleUser, Content: "doc"},
		},
		Grammar:     "root ::= \"x\"",
		Temperature: 0,
		NPredict:    100,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	text, err := resp.Content()
	if err != nil {
		t.Fatalf("Content: %v", err)
	}
	if text != "Invoice 42\n42.00" {
		t.Errorf("content = %q, want %q", text, "Invoice 42\n42.00")
	}
	if resp.Timings.PromptN != 120 {
		t.Errorf("timings.prompt_n = %d, want 120", resp.Timings.PromptN)
	}

	if got["grammar"] != "root ::= \"x\"" {
		t.Errorf("request grammar = %v", got["grammar"])
	}
	if got["n_predict"] != float64(100) {
		t.Errorf("request n_predict = %v, want 100", got["n_predict"])
	}
	if got["stream"] != false {
		t.Errorf("request stream = %v, want false", got["stream"])
	}
	msgs, ok := got["messages"].([]any)
	if !ok || len(msgs) != 2 {
		t.Fatalf("request messages = %v", got["messages"])
	}
	if role := msgs[0].(map[string]any)["role"]; role != "system" {
		t.Errorf("messages[0].role = %v, want system", role)
	}
}

func TestComplete_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[],"timings":{}}`))
	}))
	defer srv.Close()

	resp, err := New(srv.URL).Complete(context.Background(), Query{Model: "m"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if _, err := resp.Content(); !errors.Is(err, ErrNoChoices) {
		t.Errorf("Content() error = %v, want ErrNoChoices", err)
	}
}

func TestComplete_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"the request exceeds the available context size"}}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).Complete(context.Background(), Query{Model: "m"})
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want *StatusError", err)
	}
	if se.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", se.StatusCode)
	}
}

func TestTokenize(t *testing.T) {
	var body tokenizeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
		w.Write([]byte(`{"tokens":[1,2,3,4]}`))
	}))
	defer srv.Close()

	tokens, err := New(srv.URL).Tokenize(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	if len(tokens) != 4 {
		t.Errorf("got %d tokens, want 4", len(tokens))
	}
	if body.Content != "hello world" {
		t.Errorf("request content = %q, want %q", body.Content, "hello world")
	}
}

func TestDiscover(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/props":
			w.Write([]byte(`{"default_generation_settings":{"n_ctx":4096}}`))
		case "/v1/models":
			w.Write(modelsJSON("first", "second"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	s, err := Discover(context.Background(), New(srv.URL))
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if s.Model != "first" {
		t.Errorf("Model = %q, want first", s.Model)
	}
	if s.ContextSize != 4096 {
		t.Errorf("ContextSize = %d, want 4096", s.ContextSize)
	}
}

func TestDiscover_NoModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/props":
			w.Write([]byte(`{"default_generation_settings":{"n_ctx":4096}}`))
		case "/v1/models":
			w.Write(modelsJSON())
		}
	}))
	defer srv.Close()

	_, err := Discover(context.Background(), New(srv.URL))
	if !errors.Is(err, ErrNoModels) {
		t.Errorf("error = %v, want ErrNoModels", err)
	}
}

func TestDiscover_ServerDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	if _, err := Discover(context.Background(), New(srv.URL)); err == nil {
		t.Fatal("expected error when server is down")
	}
}
