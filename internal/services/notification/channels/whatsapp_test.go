// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

package channels

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lrbcloud/taskloop/internal/models"
)

func newTestWhatsApp(t *testing.T, handler http.HandlerFunc) *WhatsAppChannel {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	ch, err := NewWhatsAppChannel(models.WhatsAppConfig{
		Active:     true,
		APIKey:     "test-key",
		ProductID:  "prod-1",
		InstanceID: "inst-1",
	})
	if err != nil {
		t.Fatalf("NewWhatsAppChannel: %v", err)
	}
	ch.baseURL = server.URL
	return ch
}

func TestWhatsAppSend(t *testing.T) {
	var gotPath, gotKey string
	var gotReq whatsAppRequest

	ch := newTestWhatsApp(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-maytapi-key")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(whatsAppResponse{Success: true})
	})

	msg := Message{Subject: "Reminder", Body: "Daily log check is due today.", Type: TypeChecklistDue}
	if err := ch.Send(context.Background(), "+15551234567", msg); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if gotPath != "/prod-1/inst-1/sendMessage" {
		t.Errorf("path = %q", gotPath)
	}
	if gotKey != "test-key" {
		t.Errorf("api key header = %q", gotKey)
	}
	if gotReq.ToNumber != "+15551234567" || gotReq.Type != "text" {
		t.Errorf("request = %+v", gotReq)
	}
	if !strings.Contains(gotReq.Message, "Reminder") || !strings.Contains(gotReq.Message, "due today") {
		t.Errorf("message = %q", gotReq.Message)
	}
}

func TestWhatsAppSend_GatewayRejection(t *testing.T) {
	ch := newTestWhatsApp(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(whatsAppResponse{Success: false, Message: "invalid number"})
	})

	err := ch.Send(context.Background(), "+15551234567", Message{Body: "hi"})
	if err == nil || !strings.Contains(err.Error(), "invalid number") {
		t.Fatalf("expected gateway rejection, got %v", err)
	}
}

func TestWhatsAppSend_HTTPError(t *testing.T) {
	ch := newTestWhatsApp(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	})

	err := ch.Send(context.Background(), "+15551234567", Message{Body: "hi"})
	if err == nil || !strings.Contains(err.Error(), "status 401") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestNewWhatsAppChannel_MissingCredentials(t *testing.T) {
	if _, err := NewWhatsAppChannel(models.WhatsAppConfig{APIKey: "only-key"}); err == nil {
		t.Fatal("expected error for incomplete credentials")
	}
}
