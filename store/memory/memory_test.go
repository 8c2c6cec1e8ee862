package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/orbitadevhub/backDashboard/account"
	"github.com/stretchr/testify/require"
)

func draft(email string) account.Draft {
	return account.Draft{
		Email:        email,
		PasswordHash: "$argon2id$hash",
		Roles:        []string{account.RoleUser},
	}
}

func TestCreateAndFind(t *testing.T) {
	ctx := context.Background()
	s := New()

	created, err := s.Create(ctx, draft("ana@example.com"))
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.False(t, created.CreatedAt.IsZero())

	byID, err := s.FindByID(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, created.Email, byID.Email)

	byEmail, err := s.FindByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	require.Equal(t, created.ID, byEmail.ID)

	_, err = s.FindByExternalID(ctx, "google:1")
	require.ErrorIs(t, err, account.ErrNotFound)
}

func TestCreateDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.Create(ctx, draft("ana@example.com"))
	require.NoError(t, err)

	_, err = s.Create(ctx, draft("ana@example.com"))
	require.ErrorIs(t, err, account.ErrDuplicate)
	require.Equal(t, 1, s.Len())
}

func TestConcurrentCreateSingleWinner(t *testing.T) {
	ctx := context.Background()
	s := New()

	const workers = 16
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		successes  int
		duplicates int
	)
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, err := s.Create(ctx, draft("race@example.com"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, account.ErrDuplicate):
				duplicates++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, successes)
	require.Equal(t, workers-1, duplicates)
	require.Equal(t, 1, s.Len())
}

func TestUpdateLinksExternalIdentity(t *testing.T) {
	ctx := context.Background()
	s := New()

	created, err := s.Create(ctx, draft("ana@example.com"))
	require.NoError(t, err)

	updated, err := s.Update(ctx, created.ID, account.Patch{ExternalID: account.String("google:42")})
	require.NoError(t, err)
	require.Equal(t, "google:42", updated.ExternalID)

	found, err := s.FindByExternalID(ctx, "google:42")
	require.NoError(t, err)
	require.Equal(t, created.ID, found.ID)

	other, err := s.Create(ctx, draft("bob@example.com"))
	require.NoError(t, err)
	_, err = s.Update(ctx, other.ID, account.Patch{ExternalID: account.String("google:42")})
	require.ErrorIs(t, err, account.ErrDuplicate)
}

func TestReturnedSnapshotsAreIndependent(t *testing.T) {
	ctx := context.Background()
	s := New()

	created, err := s.Create(ctx, draft("ana@example.com"))
	require.NoError(t, err)

	created.Roles[0] = account.RoleAdmin
	created.TOTPEnabled = true

	stored, err := s.FindByID(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, []string{account.RoleUser}, stored.Roles)
	require.False(t, stored.TOTPEnabled)
}

func TestUpdateUnknownAccount(t *testing.T) {
	_, err := New().Update(context.Background(), "missing", account.Patch{TOTPEnabled: account.Bool(false)})
	require.ErrorIs(t, err, account.ErrNotFound)
}
