package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"trusted-properties/internal/agreement/application"
	"trusted-properties/internal/auth"
	"trusted-properties/internal/config"
	ledger "trusted-properties/internal/ledger/domain"
	"trusted-properties/internal/migrations"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending PostgreSQL migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL or PG_DSN is required")
			}
			cfg.LedgerBackend = config.BackendPostgres
			db, err := openDB(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			applied, err := migrations.Upgrade(cmd.Context(), db, logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", applied)
			return nil
		},
	}
}

func inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <agreement-address>",
		Short: "Print an agreement record with its held balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			address, err := ledger.ParseAddress(args[0])
			if err != nil {
				return err
			}
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			if cfg.LedgerBackend != config.BackendPostgres {
				return errors.New("inspect needs LEDGER_BACKEND=postgres")
			}
			db, err := openDB(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			service, err := application.NewService(newLedger(db), application.WithPolicy(cfg.Policy()), application.WithLogger(logger))
			if err != nil {
				return err
			}
			view, err := service.Get(cmd.Context(), address)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(view)
		},
	}
}

func tokenCmd() *cobra.Command {
	var (
		role string
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token <subject-address>",
		Short: "Issue a signed JWT for a ledger address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := bootstrap()
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return errors.New("AUTH_JWT_SECRET is required")
			}
			normalized, ok := auth.NormalizeRole(role)
			if !ok {
				return fmt.Errorf("unknown role %q", role)
			}
			token, err := auth.IssueJWT([]byte(cfg.JWTSecret), args[0], normalized, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", string(auth.RoleParty), "viewer, party or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime, 0 for no expiry")
	return cmd
}
