// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lrbcloud/taskloop/internal/models"
)

// DefaultWhatsAppBaseURL is the maytapi gateway endpoint.
const DefaultWhatsAppBaseURL = "https://api.maytapi.com/api"

// WhatsAppChannel sends notifications through a maytapi-compatible
// WhatsApp gateway. Each tenant carries its own credentials, so one
// channel instance exists per tenant.
type WhatsAppChannel struct {
	apiKey     string
	productID  string
	instanceID string
	baseURL    string
	client     *http.Client
}

// NewWhatsAppChannel creates a channel from a tenant's gateway config.
func NewWhatsAppChannel(cfg models.WhatsAppConfig) (*WhatsAppChannel, error) {
	if cfg.APIKey == "" || cfg.ProductID == "" || cfg.InstanceID == "" {
		return nil, fmt.Errorf("whatsapp gateway credentials are incomplete")
	}
	return &WhatsAppChannel{
		apiKey:     cfg.APIKey,
		productID:  cfg.ProductID,
		instanceID: cfg.InstanceID,
		baseURL:    DefaultWhatsAppBaseURL,
		client:     &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Name returns the channel identifier.
func (w *WhatsAppChannel) Name() string {
	return "whatsapp"
}

// IsConfigured returns true if the channel has valid configuration.
func (w *WhatsAppChannel) IsConfigured() bool {
	return w.apiKey != "" && w.productID != "" && w.instanceID != ""
}

type whatsAppRequest struct {
	ToNumber string `json:"to_number"`
	Type     string `json:"type"`
	Message  string `json:"message"`
}

type whatsAppResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Send delivers a text message to one phone number in international format.
func (w *WhatsAppChannel) Send(ctx context.Context, recipient string, msg Message) error {
	if recipient == "" {
		return fmt.Errorf("recipient phone number is required")
	}

	text := msg.Body
	if msg.Subject != "" {
		text = fmt.Sprintf("*%s*\n\n%s", msg.Subject, msg.Body)
	}

	payload, err := json.Marshal(whatsAppRequest{
		ToNumber: recipient,
		Type:     "text",
		Message:  text,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/%s/sendMessage", w.baseURL, w.productID, w.instanceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-maytapi-key", w.apiKey)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, string(body))
	}

	var gw whatsAppResponse
	if err := json.Unmarshal(body, &gw); err == nil && !gw.Success && gw.Message != "" {
		return fmt.Errorf("gateway rejected message: %s", gw.Message)
	}
	return nil
}
