package mailer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/parbhatkapila4/vectormail-worker/internal/models"
)

func TestRestStrategy_Send(t *testing.T) {
	var gotAuth string
	var gotReq restSendRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		json.NewEncoder(w).Encode(restSendResponse{ID: "prov-123"})
	}))
	defer server.Close()

	s := NewRestStrategy(server.URL, "re_key")
	account := &models.Account{ID: "acct1", EmailAddress: "me@example.com"}
	payload := &models.RestSendPayload{
		To:      []string{"a@x.com"},
		CC:      []string{"b@x.com"},
		Subject: "S",
		Body:    "B",
	}

	result, err := s.Send(context.Background(), account, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ProviderMessageID != "prov-123" {
		t.Errorf("unexpected provider id: %q", result.ProviderMessageID)
	}

	if gotAuth != "Bearer re_key" {
		t.Errorf("expected bearer auth, got %q", gotAuth)
	}
	if gotReq.From != "me@example.com" {
		t.Errorf("expected the account address as sender, got %q", gotReq.From)
	}
	if len(gotReq.To) != 1 || gotReq.To[0] != "a@x.com" {
		t.Errorf("unexpected recipients: %v", gotReq.To)
	}
	if gotReq.Subject != "S" || gotReq.Text != "B" {
		t.Errorf("unexpected subject/text: %q %q", gotReq.Subject, gotReq.Text)
	}
}

func TestRestStrategy_SendAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"invalid from address"}`, http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	s := NewRestStrategy(server.URL, "re_key")
	account := &models.Account{EmailAddress: "me@example.com"}
	payload := &models.RestSendPayload{To: []string{"a@x.com"}, Subject: "S", Body: "B"}

	if _, err := s.Send(context.Background(), account, payload); err == nil {
		t.Fatal("expected an error for a rejected send")
	}
}

func TestRestStrategy_NotConfigured(t *testing.T) {
	s := NewRestStrategy("", "")
	_, err := s.Send(context.Background(), &models.Account{}, &models.RestSendPayload{})
	if err == nil {
		t.Fatal("expected an error when the send API is not configured")
	}
}
