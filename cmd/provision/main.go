// Provision creates a tenant with its first administrator
//
//	provision -d postgres://... --tenant north-high --name "North High" --campus Main --email admin@north.test
//
// Password is read from ADMIN_PASSWORD environment variable (or .env file), so it doesn't end up in shell history
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/schoolhub/internal/db"
	"github.com/nkiryanov/schoolhub/internal/models"
	"github.com/nkiryanov/schoolhub/internal/repository/postgres"
	"github.com/nkiryanov/schoolhub/internal/service/auth"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdout, os.Getenv, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "provision failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, out io.Writer, getenv func(string) string, args []string) error {
	// .env is optional here
	_ = godotenv.Load()

	var dsn string
	var p params
	role := string(models.RoleTenantAdmin)

	fs := pflag.NewFlagSet("provision", pflag.ContinueOnError)
	fs.StringVarP(&dsn, "database", "d", getenv("DATABASE_URI"), "Database connection string")
	fs.StringVar(&p.TenantSlug, "tenant", "", "Tenant slug (lowercase letters, digits, hyphens)")
	fs.StringVar(&p.TenantName, "name", "", "Tenant display name (slug if empty)")
	fs.StringVar(&p.CampusName, "campus", "", "Create campus with the name")
	fs.StringVar(&p.AdminEmail, "email", "", "Administrator email")
	fs.StringVar(&role, "role", role, "Administrator role (tenant_admin, campus_admin)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	p.AdminRole = models.Role(role)
	p.AdminPassword = getenv("ADMIN_PASSWORD")

	if dsn == "" {
		return errors.New("database connection string is required")
	}

	pool, err := db.ConnectAndMigrate(ctx, dsn)
	if err != nil {
		return fmt.Errorf("error while connecting to db. Err: %w", err)
	}
	defer pool.Close()

	res, err := provision(ctx, postgres.NewStorage(pool), auth.DefaultHasher, p)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "tenant %s: %s\n", res.Tenant.Slug, res.Tenant.ID)
	if res.Campus != nil {
		fmt.Fprintf(out, "campus %s: %s\n", res.Campus.Name, res.Campus.ID)
	}
	fmt.Fprintf(out, "%s %s: %s\n", res.Admin.Role, res.Admin.Email, res.Admin.ID)

	return nil
}
