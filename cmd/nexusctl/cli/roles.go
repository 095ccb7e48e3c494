package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"

	"github.com/nexus-iot/nexus/internal/rbac"
	"github.com/nexus-iot/nexus/internal/roles"
)

// RolesCLI exposes tenant role maintenance and permission catalog listings.
type RolesCLI struct {
	jobs roles.TenantJobs
	out  io.Writer
}

// NewRolesCLI constructs the helper. jobs may be nil for catalog-only use.
func NewRolesCLI(jobs roles.TenantJobs, out io.Writer) *RolesCLI {
	return &RolesCLI{jobs: jobs, out: out}
}

// Provision enqueues default role provisioning for a tenant.
func (c *RolesCLI) Provision(ctx context.Context, tenant string) error {
	tenantID, err := c.tenant(tenant)
	if err != nil {
		return err
	}
	taskID, err := c.jobs.EnqueueProvisionRoles(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("roles cli: enqueue provision: %w", err)
	}
	fmt.Fprintf(c.out, "enqueued provision task %s for tenant %s\n", taskID, tenantID)
	return nil
}

// Purge enqueues removal of all roles of a tenant.
func (c *RolesCLI) Purge(ctx context.Context, tenant string) error {
	tenantID, err := c.tenant(tenant)
	if err != nil {
		return err
	}
	taskID, err := c.jobs.EnqueuePurgeRoles(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("roles cli: enqueue purge: %w", err)
	}
	fmt.Fprintf(c.out, "enqueued purge task %s for tenant %s\n", taskID, tenantID)
	return nil
}

// Resources prints the resource catalog.
func (c *RolesCLI) Resources(asJSON bool) error {
	return c.printOptions(rbac.ResourceOptions(), asJSON)
}

// Operations prints the operation catalog.
func (c *RolesCLI) Operations(asJSON bool) error {
	return c.printOptions(rbac.OperationOptions(), asJSON)
}

func (c *RolesCLI) tenant(raw string) (uuid.UUID, error) {
	if c.jobs == nil {
		return uuid.Nil, errors.New("roles cli: job client not configured")
	}
	tenantID, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil || tenantID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("roles cli: invalid tenant id %q", raw)
	}
	return tenantID, nil
}

func (c *RolesCLI) printOptions(options []rbac.Option, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		return enc.Encode(options)
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VALUE\tLABEL")
	for _, opt := range options {
		fmt.Fprintf(tw, "%s\t%s\n", opt.Value, opt.Label)
	}
	return tw.Flush()
}
