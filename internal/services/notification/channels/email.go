// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

package channels

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net"
	"net/smtp"
	"time"
)

// EmailChannel sends notifications via SMTP.
type EmailChannel struct {
	config EmailConfig
}

// EmailConfig holds email channel configuration.
type EmailConfig struct {
	// SMTP server settings
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	// TLS configuration
	UseTLS     bool `json:"use_tls"`     // Use STARTTLS
	UseSSL     bool `json:"use_ssl"`     // Use implicit TLS (port 465)
	SkipVerify bool `json:"skip_verify"` // Skip certificate verification

	// Sender settings
	FromAddress string `json:"from_address"`
	FromName    string `json:"from_name,omitempty"`
	ReplyTo     string `json:"reply_to,omitempty"`

	// SubjectPrefix is prepended to every subject line.
	SubjectPrefix string `json:"subject_prefix,omitempty"`

	// Timeout in seconds
	Timeout int `json:"timeout,omitempty"`
}

// NewEmailChannel creates a new email notification channel.
func NewEmailChannel(config EmailConfig) (*EmailChannel, error) {
	if config.Host == "" {
		return nil, fmt.Errorf("SMTP host is required")
	}
	if config.Port == 0 {
		// Default ports based on TLS settings
		if config.UseSSL {
			config.Port = 465
		} else if config.UseTLS {
			config.Port = 587
		} else {
			config.Port = 25
		}
	}
	if config.FromAddress == "" {
		return nil, fmt.Errorf("from address is required")
	}
	if config.FromName == "" {
		config.FromName = "taskloop"
	}
	if config.SubjectPrefix == "" {
		config.SubjectPrefix = "[taskloop]"
	}
	if config.Timeout == 0 {
		config.Timeout = 30
	}

	return &EmailChannel{config: config}, nil
}

// Name returns the channel identifier.
func (e *EmailChannel) Name() string {
	return "email"
}

// IsConfigured returns true if the channel has valid configuration.
func (e *EmailChannel) IsConfigured() bool {
	return e.config.Host != "" && e.config.FromAddress != ""
}

// Send delivers a notification to one recipient address.
func (e *EmailChannel) Send(ctx context.Context, recipient string, msg Message) error {
	if recipient == "" {
		return fmt.Errorf("recipient address is required")
	}

	subject := fmt.Sprintf("%s %s", e.config.SubjectPrefix, msg.Subject)
	emailMsg := e.buildMessage(recipient, subject, msg.Body)

	if err := e.sendMail(ctx, recipient, emailMsg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// buildMessage creates the MIME message.
func (e *EmailChannel) buildMessage(recipient, subject, body string) []byte {
	var buf bytes.Buffer

	from := e.formatAddress(e.config.FromName, e.config.FromAddress)
	buf.WriteString(fmt.Sprintf("From: %s\r\n", from))
	buf.WriteString(fmt.Sprintf("To: %s\r\n", recipient))

	if e.config.ReplyTo != "" {
		buf.WriteString(fmt.Sprintf("Reply-To: %s\r\n", e.config.ReplyTo))
	}

	buf.WriteString(fmt.Sprintf("Subject: %s\r\n", e.encodeSubject(subject)))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	buf.WriteString("Content-Transfer-Encoding: base64\r\n")
	buf.WriteString(fmt.Sprintf("Date: %s\r\n", time.Now().Format(time.RFC1123Z)))
	buf.WriteString("X-Mailer: taskloop\r\n")
	buf.WriteString("\r\n")

	// Base64 encoded body, wrapped at 76 characters per line
	encoded := base64.StdEncoding.EncodeToString([]byte(body))
	for i := 0; i < len(encoded); i += 76 {
		end := i + 76
		if end > len(encoded) {
			end = len(encoded)
		}
		buf.WriteString(encoded[i:end])
		buf.WriteString("\r\n")
	}

	return buf.Bytes()
}

// sendMail sends the email via SMTP.
func (e *EmailChannel) sendMail(ctx context.Context, recipient string, message []byte) error {
	addr := fmt.Sprintf("%s:%d", e.config.Host, e.config.Port)

	tlsConfig := &tls.Config{
		ServerName:         e.config.Host,
		InsecureSkipVerify: e.config.SkipVerify, //nolint:gosec // User-configurable for self-signed SMTP servers
	}

	var conn net.Conn
	var err error

	dialer := &net.Dialer{
		Timeout: time.Duration(e.config.Timeout) * time.Second,
	}

	if e.config.UseSSL {
		// Implicit TLS (port 465)
		conn, err = tls.DialWithDialer(dialer, "tcp", addr, tlsConfig)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, e.config.Host)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Close()

	if e.config.UseTLS && !e.config.UseSSL {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				return fmt.Errorf("failed to start TLS: %w", err)
			}
		}
	}

	if e.config.Username != "" && e.config.Password != "" {
		auth := smtp.PlainAuth("", e.config.Username, e.config.Password, e.config.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("authentication failed: %w", err)
		}
	}

	if err := client.Mail(e.config.FromAddress); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err := client.Rcpt(recipient); err != nil {
		return fmt.Errorf("failed to add recipient %s: %w", recipient, err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to open data: %w", err)
	}
	if _, err := w.Write(message); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data: %w", err)
	}

	return client.Quit()
}

// formatAddress formats a name/email pair.
func (e *EmailChannel) formatAddress(name, address string) string {
	if name == "" {
		return address
	}
	if needsEncoding(name) {
		return fmt.Sprintf("=?UTF-8?B?%s?= <%s>", base64.StdEncoding.EncodeToString([]byte(name)), address)
	}
	return fmt.Sprintf("%s <%s>", name, address)
}

// encodeSubject encodes the subject for UTF-8 if needed.
func (e *EmailChannel) encodeSubject(subject string) string {
	if needsEncoding(subject) {
		return fmt.Sprintf("=?UTF-8?B?%s?=", base64.StdEncoding.EncodeToString([]byte(subject)))
	}
	return subject
}

// needsEncoding checks if a string contains non-ASCII characters.
func needsEncoding(s string) bool {
	for _, r := range s {
		if r > 127 {
			return true
		}
	}
	return false
}
