package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"lumichat/internal/models"
	"lumichat/internal/prompt"
)

func newTestLLMService(t *testing.T) (*LLMService, *StatsService) {
	t.Helper()
	db := newTestDB(t)
	stats := NewStatsService(db)
	svc := NewLLMService(NewProviderService(db), stats, nil)
	svc.retryDelay = time.Millisecond
	return svc, stats
}

func testConfig(baseURL string) *models.APIConfig {
	return &models.APIConfig{
		ID:      "cfg1",
		Name:    "test",
		BaseURL: baseURL,
		APIKeys: []string{"sk-test"},
		Model:   "test-model",
	}
}

func testRequest() prompt.Request {
	return prompt.Request{
		System:   "你是测试角色",
		Messages: []prompt.ChatMessage{{Role: "user", Content: "在吗"}},
	}
}

func completionBody(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	})
	return string(b)
}

func TestCallSuccess(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(completionBody("你好呀|||想我了吗")))
	}))
	defer server.Close()

	svc, _ := newTestLLMService(t)
	content, err := svc.Call(context.Background(), testConfig(server.URL), testRequest(), nil)
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if content != "你好呀|||想我了吗" {
		t.Errorf("unexpected content: %q", content)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("unexpected auth header: %q", gotAuth)
	}
	if gotBody["model"] != "test-model" {
		t.Errorf("unexpected model: %v", gotBody["model"])
	}
	msgs := gotBody["messages"].([]any)
	first := msgs[0].(map[string]any)
	if first["role"] != "system" || first["content"] != "你是测试角色" {
		t.Errorf("system message not first: %v", first)
	}
}

func TestCallForcesStreamOff(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(completionBody("ok")))
	}))
	defer server.Close()

	svc, _ := newTestLLMService(t)
	opts := &CallOptions{Extra: map[string]any{"stream": true}}
	if _, err := svc.Call(context.Background(), testConfig(server.URL), testRequest(), opts); err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if gotBody["stream"] != false {
		t.Errorf("stream must be forced off, got %v", gotBody["stream"])
	}
}

func TestCallRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(completionBody("终于好了")))
	}))
	defer server.Close()

	svc, stats := newTestLLMService(t)
	content, err := svc.Call(context.Background(), testConfig(server.URL), testRequest(), nil)
	if err != nil {
		t.Fatalf("expected success on third attempt: %v", err)
	}
	if content != "终于好了" {
		t.Errorf("unexpected content: %q", content)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}

	// Every attempt lands in the stats window, success and failure alike.
	summaries, err := stats.RecentCounts("cfg1")
	if err != nil {
		t.Fatalf("recent counts failed: %v", err)
	}
	if len(summaries) != 1 || summaries[0].Success != 1 || summaries[0].Failure != 2 {
		t.Errorf("unexpected stats: %+v", summaries)
	}
}

func TestCallGivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	svc, _ := newTestLLMService(t)
	_, err := svc.Call(context.Background(), testConfig(server.URL), testRequest(), nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != MaxCallAttempts {
		t.Errorf("expected %d attempts, got %d", MaxCallAttempts, calls.Load())
	}
	if ErrorKind(err) != ErrKindTransientUpstream {
		t.Errorf("expected transient_upstream, got %s", ErrorKind(err))
	}
}

func TestCall504IsTerminal(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusGatewayTimeout)
	}))
	defer server.Close()

	svc, _ := newTestLLMService(t)
	_, err := svc.Call(context.Background(), testConfig(server.URL), testRequest(), nil)
	if !IsTimeout(err) {
		t.Fatalf("expected timeout kind, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("504 must not retry, got %d attempts", calls.Load())
	}

	var ce *CallError
	if !errors.As(err, &ce) {
		t.Fatal("expected *CallError")
	}
	if ce.Reason != TimeoutReasonGateway && ce.Reason != TimeoutReasonUpstream {
		t.Errorf("unexpected timeout reason: %s", ce.Reason)
	}
}

func TestCallTimeoutIsTerminal(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(completionBody("太迟了")))
	}))
	defer server.Close()

	svc, _ := newTestLLMService(t)
	cfg := testConfig(server.URL)
	cfg.TimeoutMs = 20

	_, err := svc.Call(context.Background(), cfg, testRequest(), nil)
	if !IsTimeout(err) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("timeout must not retry, got %d attempts", calls.Load())
	}
}

func TestCallEmptyChoicesIsShapeError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	svc, _ := newTestLLMService(t)
	_, err := svc.Call(context.Background(), testConfig(server.URL), testRequest(), nil)
	if ErrorKind(err) != ErrKindShapeError {
		t.Fatalf("expected shape_error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("shape errors must not retry, got %d attempts", calls.Load())
	}
}

func TestCallUnparseableBodyRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Write([]byte("<!doctype html>not json"))
			return
		}
		w.Write([]byte(completionBody("恢复了")))
	}))
	defer server.Close()

	svc, _ := newTestLLMService(t)
	content, err := svc.Call(context.Background(), testConfig(server.URL), testRequest(), nil)
	if err != nil {
		t.Fatalf("unparseable 2xx should retry and recover: %v", err)
	}
	if content != "恢复了" {
		t.Errorf("unexpected content: %q", content)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 attempts, got %d", calls.Load())
	}
}

func TestCallEmptyContentIsTerminal(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(completionBody("")))
	}))
	defer server.Close()

	svc, _ := newTestLLMService(t)
	_, err := svc.Call(context.Background(), testConfig(server.URL), testRequest(), nil)
	if ErrorKind(err) != ErrKindEmptyContent {
		t.Fatalf("expected empty_content, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("empty content must not retry, got %d attempts", calls.Load())
	}
}

func TestCallStripsFencedContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(completionBody("```json\n{\"a\":1}\n```")))
	}))
	defer server.Close()

	svc, _ := newTestLLMService(t)
	content, err := svc.Call(context.Background(), testConfig(server.URL), testRequest(), nil)
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if content != `{"a":1}` {
		t.Errorf("fences not stripped: %q", content)
	}
}

func TestCallIncompleteConfig(t *testing.T) {
	svc, _ := newTestLLMService(t)

	// Missing keys, URL, and model respectively.
	for _, cfg := range []*models.APIConfig{
		nil,
		{BaseURL: "http://x", Model: "m"},
		{APIKeys: []string{"k"}, Model: "m"},
		{BaseURL: "http://x", APIKeys: []string{"k"}},
	} {
		_, err := svc.Call(context.Background(), cfg, testRequest(), nil)
		if ErrorKind(err) != ErrKindConfigIncomplete {
			t.Errorf("config %+v: expected config_incomplete, got %v", cfg, err)
		}
	}
}

func TestCallRotatesKeys(t *testing.T) {
	var auths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auths = append(auths, r.Header.Get("Authorization"))
		w.Write([]byte(completionBody("ok")))
	}))
	defer server.Close()

	svc, _ := newTestLLMService(t)
	cfg := testConfig(server.URL)
	cfg.APIKeys = []string{"sk-a", "sk-b"}

	for i := 0; i < 3; i++ {
		if _, err := svc.Call(context.Background(), cfg, testRequest(), nil); err != nil {
			t.Fatalf("call %d failed: %v", i, err)
		}
	}
	want := []string{"Bearer sk-a", "Bearer sk-b", "Bearer sk-a"}
	for i, w := range want {
		if auths[i] != w {
			t.Errorf("call %d: expected %s, got %s", i, w, auths[i])
		}
	}
}
