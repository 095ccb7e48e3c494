package cli

import (
	"errors"
	"io"
	"os"
	"strconv"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/nexus-iot/nexus/internal/app"
	"github.com/nexus-iot/nexus/internal/roles"
	"github.com/nexus-iot/nexus/jobs"
)

// Options injects the dependencies of the command tree.
type Options struct {
	Out        io.Writer
	LoadConfig func() (*app.Config, error)
	// TenantJobs overrides the Asynq client built from configuration.
	TenantJobs roles.TenantJobs
}

// NewRootCommand builds the nexusctl command tree.
func NewRootCommand(opts Options) *cobra.Command {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.LoadConfig == nil {
		opts.LoadConfig = app.LoadConfig
	}

	root := &cobra.Command{
		Use:           "nexusctl",
		Short:         "Operational tooling for the Nexus authorization service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(opts.Out)
	root.AddCommand(migrateCommand(opts), rolesCommand(opts), jobsCommand(opts))
	return root
}

func migrateCommand(opts Options) *cobra.Command {
	cmd := &cobra.Command{Use: "migrate", Short: "Manage database schema migrations"}

	withMigrator := func(fn func(*MigrateCLI) error) error {
		cfg, err := opts.LoadConfig()
		if err != nil {
			return err
		}
		m, err := NewMigrateCLI(cfg.PGDSN, opts.Out)
		if err != nil {
			return err
		}
		return errors.Join(fn(m), m.Close())
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator((*MigrateCLI).Up)
			},
		},
		&cobra.Command{
			Use:   "down [steps]",
			Short: "Roll back migrations (default 1)",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				steps := 1
				if len(args) == 1 {
					n, err := strconv.Atoi(args[0])
					if err != nil {
						return err
					}
					steps = n
				}
				return withMigrator(func(m *MigrateCLI) error { return m.Down(steps) })
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Show the current schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator((*MigrateCLI).Version)
			},
		},
	)
	return cmd
}

func rolesCommand(opts Options) *cobra.Command {
	cmd := &cobra.Command{Use: "roles", Short: "Tenant role maintenance and permission catalog"}

	var asJSON bool
	cmd.PersistentFlags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")

	withJobs := func(fn func(*RolesCLI) error) error {
		if opts.TenantJobs != nil {
			return fn(NewRolesCLI(opts.TenantJobs, opts.Out))
		}
		cfg, err := opts.LoadConfig()
		if err != nil {
			return err
		}
		client := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		return errors.Join(fn(NewRolesCLI(client, opts.Out)), client.Close())
	}

	tenantCommand := func(use, short string, run func(*RolesCLI, *cobra.Command, string) error) *cobra.Command {
		var tenant string
		c := &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withJobs(func(r *RolesCLI) error { return run(r, cmd, tenant) })
			},
		}
		c.Flags().StringVar(&tenant, "tenant", "", "tenant id")
		_ = c.MarkFlagRequired("tenant")
		return c
	}

	cmd.AddCommand(
		tenantCommand("provision", "Enqueue default role provisioning for a tenant", func(r *RolesCLI, cmd *cobra.Command, tenant string) error {
			return r.Provision(cmd.Context(), tenant)
		}),
		tenantCommand("purge", "Enqueue removal of every role of a tenant", func(r *RolesCLI, cmd *cobra.Command, tenant string) error {
			return r.Purge(cmd.Context(), tenant)
		}),
		&cobra.Command{
			Use:   "resources",
			Short: "List permission resources",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return NewRolesCLI(nil, opts.Out).Resources(asJSON)
			},
		},
		&cobra.Command{
			Use:   "operations",
			Short: "List permission operations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return NewRolesCLI(nil, opts.Out).Operations(asJSON)
			},
		},
	)
	return cmd
}

func jobsCommand(opts Options) *cobra.Command {
	cmd := &cobra.Command{Use: "jobs", Short: "Inspect background job queues"}

	var asJSON bool
	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show default queue counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.LoadConfig()
			if err != nil {
				return err
			}
			c := NewJobsCLI(cfg.RedisAddr, opts.Out)
			return errors.Join(c.Stats(asJSON), c.Close())
		},
	}
	stats.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	cmd.AddCommand(stats)
	return cmd
}
