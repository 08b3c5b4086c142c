// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

package crypto

import (
	"strings"
	"testing"
)

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("MyP@ssw0rd!")
	if err != nil {
		t.Fatalf("HashPassword() error: %v", err)
	}
	if hash == "" {
		t.Fatal("HashPassword() returned empty hash")
	}
	// bcrypt hashes start with $2a$ or $2b$
	if !strings.HasPrefix(hash, "$2") {
		t.Errorf("hash should be bcrypt format, got: %s", hash[:10])
	}
}

func TestHashPassword_DifferentOutputsForSameInput(t *testing.T) {
	h1, err := HashPassword("password")
	if err != nil {
		t.Fatalf("first HashPassword() error: %v", err)
	}
	h2, err := HashPassword("password")
	if err != nil {
		t.Fatalf("second HashPassword() error: %v", err)
	}
	if h1 == h2 {
		t.Error("bcrypt should produce different hashes for same password (random salt)")
	}
}

func TestCheckPassword(t *testing.T) {
	password := "S3cur3P@ss!"
	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword() error: %v", err)
	}

	if !CheckPassword(password, hash) {
		t.Error("CheckPassword should return true for correct password")
	}
	if CheckPassword("wrong-password", hash) {
		t.Error("CheckPassword should return false for wrong password")
	}
}

func TestCheckPassword_MalformedHash(t *testing.T) {
	if CheckPassword("password", "not-a-bcrypt-hash") {
		t.Error("CheckPassword should return false for a malformed hash")
	}
}
