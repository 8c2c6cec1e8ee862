package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	backDashboard "github.com/orbitadevhub/backDashboard"
	"github.com/orbitadevhub/backDashboard/account"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

type adminEngine interface {
	Register(ctx context.Context, req backDashboard.RegisterRequest) (*backDashboard.Registration, error)
	UpdateRoles(ctx context.Context, accountID string, roles []string) (account.Account, error)
}

type createAdminOptions struct {
	email     string
	firstName string
	lastName  string
	promote   bool
}

func newCreateAdminCmd(root *rootOptions) *cobra.Command {
	opts := &createAdminOptions{}

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an ADMIN account, or promote an existing one",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}

			rdb, err := openRedis(ctx, cfg.Redis)
			if err != nil {
				return err
			}
			defer rdb.Close()

			store, closeStore, err := openStore(ctx, cfg.Store, false, logger)
			if err != nil {
				return err
			}
			defer closeStore()

			// The admin enrolls TOTP from the dashboard after the first login.
			cfg.TOTP.EnrollOnRegister = false
			engine, _, err := buildEngine(cfg, logger, rdb, store)
			if err != nil {
				return err
			}
			defer engine.Close()

			var pass []byte
			if !opts.promote {
				if pass, err = promptPassword(cmd.ErrOrStderr()); err != nil {
					return err
				}
			}
			return createAdmin(ctx, engine, store, opts, pass, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.email, "email", "", "admin email (required)")
	cmd.Flags().StringVar(&opts.firstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&opts.lastName, "last-name", "", "last name")
	cmd.Flags().BoolVar(&opts.promote, "promote", false, "grant ADMIN to an existing account instead of creating one")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

// promptPassword reads the password twice without echo.
func promptPassword(w io.Writer) ([]byte, error) {
	fmt.Fprint(w, "Password: ")
	first, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return nil, fmt.Errorf("read password: %w", err)
	}
	fmt.Fprint(w, "Repeat password: ")
	second, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return nil, fmt.Errorf("read password: %w", err)
	}
	if string(first) != string(second) {
		return nil, errors.New("passwords do not match")
	}
	return first, nil
}

func createAdmin(ctx context.Context, engine adminEngine, store account.Store, opts *createAdminOptions, pass []byte, out io.Writer) error {
	roles := []string{account.RoleUser, account.RoleAdmin}

	var id string
	if opts.promote {
		a, err := store.FindByEmail(ctx, account.CanonicalEmail(opts.email))
		if err != nil {
			if errors.Is(err, account.ErrNotFound) {
				return fmt.Errorf("no account for %s", strings.TrimSpace(opts.email))
			}
			return err
		}
		id = a.ID
	} else {
		reg, err := engine.Register(ctx, backDashboard.RegisterRequest{
			Email:     opts.email,
			Password:  string(pass),
			FirstName: opts.firstName,
			LastName:  opts.lastName,
		})
		if err != nil {
			return err
		}
		id = reg.Account.ID
	}

	a, err := engine.UpdateRoles(ctx, id, roles)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s is now an admin (id %s)\n", a.Email, a.ID)
	return nil
}
