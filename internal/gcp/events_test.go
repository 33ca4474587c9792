package gcp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestEventSenderSend(t *testing.T) {
	var gotType, gotSource string
	var gotBody map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotType = r.Header.Get("Ce-Type")
		gotSource = r.Header.Get("Ce-Source")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sender, err := NewEventSender(srv.URL, "ocrworker-test")
	if err != nil {
		t.Fatalf("NewEventSender() error = %v", err)
	}
	data := map[string][]string{"document_ids": {"doc-1"}}
	if err := sender.Send(context.Background(), "index.add_docs", data); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if gotType != "index.add_docs" {
		t.Errorf("Ce-Type = %q", gotType)
	}
	if gotSource != "ocrworker-test" {
		t.Errorf("Ce-Source = %q", gotSource)
	}
	if ids := gotBody["document_ids"]; len(ids) != 1 || ids[0] != "doc-1" {
		t.Errorf("body document_ids = %v", ids)
	}
}

func TestEventSenderRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sender, err := NewEventSender(srv.URL, "ocrworker-test")
	if err != nil {
		t.Fatal(err)
	}
	if err := sender.Send(context.Background(), "index.add_docs", map[string]string{}); err == nil {
		t.Fatal("expected an error for a 500 response")
	}
}

func TestNewEventSenderRequiresTarget(t *testing.T) {
	if _, err := NewEventSender("", "src"); err == nil {
		t.Fatal("expected an error for an empty target")
	}
}
