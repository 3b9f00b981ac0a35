package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestComplete_ReturnsFirstTextBlock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "sk-ant-test" {
			t.Errorf("x-api-key = %q", r.Header.Get("x-api-key"))
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["system"] != "sys" {
			t.Errorf("system = %v", body["system"])
		}
		w.Write([]byte(`{"content":[{"type":"tool_use"},{"type":"text","text":"\\documentclass{article}"}]}`))
	}))
	defer srv.Close()

	c := New("sk-ant-test", "", 0).WithBaseURL(srv.URL)
	out, err := c.Complete(context.Background(), "sys", "user")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "\\documentclass{article}" {
		t.Errorf("output = %q", out)
	}
}

func TestComplete_NoText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"content":[]}`))
	}))
	defer srv.Close()

	_, err := New("k", "", 0).WithBaseURL(srv.URL).Complete(context.Background(), "", "x")
	if err == nil || !strings.Contains(err.Error(), "no text content") {
		t.Fatalf("expected no text error, got %v", err)
	}
}

func TestComplete_HTTPErrorIsWrapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := New("k", "", 0).WithBaseURL(srv.URL).Complete(context.Background(), "", "x")
	if err == nil || !strings.Contains(err.Error(), "anthropic API") {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}
