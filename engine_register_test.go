package backDashboard

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/orbitadevhub/backDashboard/account"
)

func TestRegisterPasswordPolicy(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	cases := []string{"short1!", "alllowercase!", "NoSpecials123"}
	for _, pw := range cases {
		_, err := env.engine.Register(ctx, RegisterRequest{Email: anaEmail, Password: pw})
		if !errors.Is(err, ErrPasswordPolicy) {
			t.Fatalf("password %q: expected ErrPasswordPolicy, got %v", pw, err)
		}
	}
	if env.accounts.Len() != 0 {
		t.Fatal("rejected registrations must not create accounts")
	}
}

func TestRegisterRequiresEmail(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.engine.Register(context.Background(), RegisterRequest{Email: "  ", Password: anaPassword})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.TOTP.EnrollOnRegister = false })
	registerAna(t, env)

	_, err := env.engine.Register(context.Background(), RegisterRequest{Email: "ana@EXAMPLE.com", Password: anaPassword})
	if !errors.Is(err, ErrDuplicateAccount) {
		t.Fatalf("expected ErrDuplicateAccount, got %v", err)
	}
}

func TestRegisterDefaults(t *testing.T) {
	env := newTestEnv(t, nil)
	reg := registerAna(t, env)

	if len(reg.Account.Roles) != 1 || reg.Account.Roles[0] != account.RoleUser {
		t.Fatalf("expected [USER], got %v", reg.Account.Roles)
	}
	if reg.Account.TOTPEnabled {
		t.Fatal("expected totp disabled")
	}
	if reg.Enrollment == nil || reg.Account.TOTPSecret != reg.Enrollment.Secret {
		t.Fatal("expected enrollment stored on the account")
	}
	if reg.Account.FirstName != "Ana" {
		t.Fatalf("expected first name kept, got %q", reg.Account.FirstName)
	}
}

func TestConcurrentRegistrationSingleWinner(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.TOTP.EnrollOnRegister = false })

	const workers = 8
	var wins, dups atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.engine.Register(context.Background(), RegisterRequest{Email: anaEmail, Password: anaPassword})
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, ErrDuplicateAccount):
				dups.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 || dups.Load() != workers-1 {
		t.Fatalf("expected 1 winner and %d duplicates, got %d and %d", workers-1, wins.Load(), dups.Load())
	}
	if env.accounts.Len() != 1 {
		t.Fatalf("expected one account, got %d", env.accounts.Len())
	}
}

func TestUpdateRolesAndProfile(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.TOTP.EnrollOnRegister = false })
	reg := registerAna(t, env)
	ctx := context.Background()

	if _, err := env.engine.UpdateRoles(ctx, reg.Account.ID, []string{"ROOT"}); !errors.Is(err, ErrRoleInvalid) {
		t.Fatalf("expected ErrRoleInvalid, got %v", err)
	}
	if _, err := env.engine.UpdateRoles(ctx, reg.Account.ID, nil); !errors.Is(err, ErrRoleInvalid) {
		t.Fatalf("expected ErrRoleInvalid for empty set, got %v", err)
	}
	if _, err := env.engine.UpdateRoles(ctx, "missing", []string{account.RoleAdmin}); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}

	updated, err := env.engine.UpdateRoles(ctx, reg.Account.ID, []string{account.RoleUser, account.RoleAdmin, account.RoleAdmin})
	if err != nil {
		t.Fatalf("UpdateRoles failed: %v", err)
	}
	if len(updated.Roles) != 2 {
		t.Fatalf("expected deduplicated roles, got %v", updated.Roles)
	}

	res, err := env.engine.Login(ctx, anaEmail, anaPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if _, err := env.engine.Authorize(res.Token, OpUpdateRoles); err != nil {
		t.Fatalf("admin token rejected: %v", err)
	}

	profile, err := env.engine.Profile(ctx, reg.Account.ID)
	if err != nil {
		t.Fatalf("Profile failed: %v", err)
	}
	if !profile.HasRole(account.RoleAdmin) {
		t.Fatal("expected profile to reflect new roles")
	}
}
