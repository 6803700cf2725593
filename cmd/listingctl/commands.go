package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/alaskacg/tongass-listings/internal/auth"
	"github.com/alaskacg/tongass-listings/internal/cache"
	"github.com/alaskacg/tongass-listings/internal/config"
	"github.com/alaskacg/tongass-listings/internal/repository"
	"github.com/alaskacg/tongass-listings/internal/service"
	"github.com/alaskacg/tongass-listings/pkg/logger"
)

func newRootCmd() *cobra.Command {
	var logLevel string
	root := &cobra.Command{
		Use:           "listingctl",
		Short:         "Operator tooling for the listings service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logger.Init(logLevel, "console")
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level")

	root.AddCommand(
		newMigrateCmd(),
		newSweepCmd(),
		newRoleCmd("grant-role", "Grant a role to a user", true),
		newRoleCmd("revoke-role", "Revoke a role from a user", false),
		newTokenCmd(),
		newSettingsCmd(),
	)
	return root
}

// withDB 加载配置并打开数据库，执行完关闭
func withDB(fn func(ctx context.Context, cfg *config.Config, db *gorm.DB) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	db, err := repository.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer func() { _ = repository.Close(db) }()
	return fn(context.Background(), cfg, db)
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(_ context.Context, _ *config.Config, db *gorm.DB) error {
				if err := repository.AutoMigrate(db); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
				return nil
			})
		},
	}
}

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep-expired",
		Short: "Mark active listings past expires_at as expired",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(ctx context.Context, cfg *config.Config, db *gorm.DB) error {
				var browse *cache.BrowseCache
				if cfg.Redis.Addr != "" {
					rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
					defer rdb.Close()
					browse = cache.NewBrowseCache(rdb, cfg.Redis.BrowseTTL)
				}
				n, err := service.NewExpirySweeper(repository.NewListingRepository(db), browse, nil).Sweep(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "expired %d listing(s)\n", n)
				return nil
			})
		},
	}
}

func newRoleCmd(use, short string, grant bool) *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   use + " <user-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(ctx context.Context, cfg *config.Config, db *gorm.DB) error {
				if role == "" {
					role = cfg.Auth.AdminRole
				}
				roles := repository.NewRoleRepository(db)
				verb := "granted"
				var err error
				if grant {
					err = roles.Grant(ctx, args[0], role)
				} else {
					verb = "revoked"
					err = roles.Revoke(ctx, args[0], role)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %q %s\n", verb, role, args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "role name (default auth.admin_role)")
	return cmd
}

func newTokenCmd() *cobra.Command {
	var (
		email string
		ttl   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue a bearer token signed with auth.jwt_secret (local development)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			tok, err := auth.IssueToken(cfg.Auth.JWTSecret, cfg.Auth.Issuer, auth.Identity{UserID: args[0], Email: email}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Site settings",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the current site settings as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(ctx context.Context, _ *config.Config, db *gorm.DB) error {
				cur, err := service.NewSettingsService(repository.NewSiteConfigRepository(db)).Current(ctx)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(cur)
			})
		},
	})
	return cmd
}
