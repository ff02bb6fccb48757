package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"adboard/internal/auth"
	"adboard/internal/config"
	"adboard/internal/db"
	"adboard/internal/logging"
)

func main() {
	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "adboardctl",
		Short: "Administration tool for the adboard database",
		Long: `Manage the adboard Postgres database.

Connection settings are read from the same ADBOARD_* environment variables
as the server. This tool allows you to:
  - Apply the schema
  - Bootstrap the admin user and the default role
  - Apply a YAML seed file
  - Remove expired tokens`,
		SilenceUsage: true,
	}
	cmd.AddCommand(
		migrateCmd(),
		createAdminCmd(),
		createDefaultRoleCmd(),
		defaultRoleCmd(),
		seedCmd(),
		sweepTokensCmd(),
	)
	return cmd
}

// env bundles what every subcommand needs.
type env struct {
	cfg  config.Config
	conn *sql.DB
	repo *auth.Store
}

func withEnv(ctx context.Context, fn func(e *env) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Storage != config.StoragePostgres {
		return fmt.Errorf("adboardctl needs ADBOARD_STORAGE=%s, got %q", config.StoragePostgres, cfg.Storage)
	}
	conn, err := db.Open(ctx, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer conn.Close()
	return fn(&env{cfg: cfg, conn: conn, repo: auth.NewStore(conn)})
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply sql/schema.sql",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(e *env) error {
				if err := db.RunMigrations(cmd.Context(), e.conn, e.cfg.SchemaDir); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
				return nil
			})
		},
	}
}

func createAdminCmd() *cobra.Command {
	var name, password string

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create the admin role and an admin user",
		Long: `Create the admin role with global read and write rights on users,
roles, and rights, and a user holding it. Fails if the role or user exists.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("ADBOARD_ADMIN_PASSWORD")
			}
			return withEnv(cmd.Context(), func(e *env) error {
				hasher := auth.NewHasher(e.cfg.BcryptCost)
				u, err := auth.CreateAdminUser(cmd.Context(), e.repo, hasher, name, password)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "admin user %q created with id %d\n", u.Name, u.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "admin", "Admin user name")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Admin password (default $ADBOARD_ADMIN_PASSWORD)")
	return cmd
}

func createDefaultRoleCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "create-default-role",
		Short: "Create the role given to newly registered users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(e *env) error {
				if name == "" {
					name = e.cfg.DefaultRole
				}
				role, err := auth.CreateDefaultRole(cmd.Context(), e.repo, name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "role %q created with id %d\n", role.Name, role.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "Role name (default $DEFAULT_ROLE)")
	return cmd
}

func defaultRoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "default-role",
		Short: "Show the default role and its rights",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(e *env) error {
				role, ok, err := auth.DefaultRole(cmd.Context(), e.repo, e.cfg.DefaultRole)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("default role %q does not exist", e.cfg.DefaultRole)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "role %q (id %d)\n", role.Name, role.ID)
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tMODEL\tWRITE\tREAD\tONLY_OWN")
				for _, r := range role.Rights {
					fmt.Fprintf(w, "%d\t%s\t%t\t%t\t%t\n", r.ID, r.Model, r.Write, r.Read, r.OnlyOwn)
				}
				return w.Flush()
			})
		},
	}
}

func seedCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Apply a YAML seed file of roles, rights, and users",
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, err := auth.LoadSeed(path)
			if err != nil {
				return err
			}
			return withEnv(cmd.Context(), func(e *env) error {
				hasher := auth.NewHasher(e.cfg.BcryptCost)
				if err := auth.ApplySeed(cmd.Context(), e.repo, hasher, seed); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "seed %s applied\n", path)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&path, "file", "f", "config/seed.yaml", "Seed file")
	return cmd
}

func sweepTokensCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep-tokens",
		Short: "Delete tokens older than TOKEN_TTL",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(e *env) error {
				issuer := auth.NewOpaqueIssuer(e.repo, e.cfg.TokenTTL())
				n, err := issuer.Sweep(cmd.Context())
				if err != nil {
					return err
				}
				logging.New(e.cfg.LogLevel).Info("expired tokens swept", "count", n)
				return nil
			})
		},
	}
}
