package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/NordCoder/storefront-auth/internal/domain/identity"
	"github.com/NordCoder/storefront-auth/internal/services/auth"
)

func newIdentitiesCommand(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "identities",
		Aliases: []string{"id"},
		Short:   "Change roles and session state of an identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(
		identityCommand(configPath, "role <identity-id> <role>", "Grant a role and invalidate outstanding access tokens", 2,
			func(ctx context.Context, uc *auth.Usecase, id uuid.UUID, args []string) (*identity.Identity, error) {
				return uc.ChangeRole(ctx, id, args[1])
			}),
		identityCommand(configPath, "deactivate <identity-id>", "Disable an identity and revoke its sessions", 1,
			func(ctx context.Context, uc *auth.Usecase, id uuid.UUID, _ []string) (*identity.Identity, error) {
				return uc.Deactivate(ctx, id)
			}),
		identityCommand(configPath, "reactivate <identity-id>", "Enable a deactivated identity", 1,
			func(ctx context.Context, uc *auth.Usecase, id uuid.UUID, _ []string) (*identity.Identity, error) {
				return uc.Reactivate(ctx, id)
			}),
		identityCommand(configPath, "logout-all <identity-id>", "Revoke every session of an identity", 1,
			func(ctx context.Context, uc *auth.Usecase, id uuid.UUID, _ []string) (*identity.Identity, error) {
				return nil, uc.ForceLogoutAll(ctx, id)
			}),
	)
	return cmd
}

type identityAction func(ctx context.Context, uc *auth.Usecase, id uuid.UUID, args []string) (*identity.Identity, error)

func identityCommand(configPath *string, use, short string, nargs int, run identityAction) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(nargs),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("identity id %q: %w", args[0], err)
			}

			e, err := openEnv(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer e.Close()

			ident, err := run(cmd.Context(), e.uc, id, args)
			if err != nil {
				return err
			}
			if ident == nil {
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "sessions revoked for %s\n", id)
				return err
			}
			return printIdentity(cmd.OutOrStdout(), ident)
		},
	}
}

func printIdentity(w io.Writer, i *identity.Identity) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(i)
}
