package main

import (
	"context"
	"strings"
	"testing"

	"bengkelpos/backend/internal/config"
	"bengkelpos/backend/internal/store/memory"
)

const strongSecret = "0123456789abcdef0123456789abcdef"

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	cases := []config.Config{
		{AuthSecret: "short", ManagerPIN: "739154"},
		{AuthSecret: strongSecret, ManagerPIN: "123456"},
		{AuthSecret: strongSecret, ManagerPIN: "987654"},
		{AuthSecret: strongSecret, ManagerPIN: "777777"},
		{AuthSecret: strongSecret, ManagerPIN: "4821"},
		{AuthSecret: strongSecret, ManagerPIN: "12a456"},
	}
	for _, cfg := range cases {
		if err := validateSecurityConfig(cfg); err == nil {
			t.Fatalf("expected config %+v to be rejected", cfg)
		}
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	if err := validateSecurityConfig(config.Config{AuthSecret: strongSecret, ManagerPIN: "739154"}); err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
	if err := validateSecurityConfig(config.Config{AuthSecret: strongSecret}); err != nil {
		t.Fatalf("expected empty manager pin to be allowed, got %v", err)
	}
}

func TestEnsureAdminAccountSeedsEmptyStoreOnce(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	if err := ensureAdminAccount(ctx, repo, "rahasia-bengkel"); err != nil {
		t.Fatalf("ensure admin: %v", err)
	}
	users, _ := repo.ListUsers(ctx)
	if len(users) != 1 || users[0].Username != "admin" || users[0].Role != "admin" {
		t.Fatalf("expected one admin account, got %+v", users)
	}
	if !strings.HasPrefix(users[0].Password, "$2") {
		t.Fatalf("expected bcrypt hash stored, got %q", users[0].Password)
	}

	if err := ensureAdminAccount(ctx, repo, "another-password"); err != nil {
		t.Fatalf("second ensure admin: %v", err)
	}
	users, _ = repo.ListUsers(ctx)
	if len(users) != 1 {
		t.Fatalf("expected no extra account on non-empty store, got %d", len(users))
	}
}

func TestEnsureAdminAccountWithoutPasswordIsNoop(t *testing.T) {
	repo := memory.New()
	if err := ensureAdminAccount(context.Background(), repo, ""); err != nil {
		t.Fatalf("ensure admin: %v", err)
	}
	users, _ := repo.ListUsers(context.Background())
	if len(users) != 0 {
		t.Fatalf("expected no users created, got %+v", users)
	}
}
