// Command roleseed loads a JSON role registry into the configured role store.
//
// The fixture has the shape {"supplier": {key: doc}, "admin": {key: doc}}. Records listed
// under "supplierList"/"adminList" have no key yet and are assigned a random one.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/tailscale-portfolio/role-gateway/internal/app"
	"github.com/tailscale-portfolio/role-gateway/internal/config"
	"github.com/tailscale-portfolio/role-gateway/internal/logging"
	"github.com/tailscale-portfolio/role-gateway/internal/roles"
	"github.com/tailscale-portfolio/role-gateway/internal/rolestore/memory"
)

type seedFile struct {
	SupplierList []roles.SupplierRecord `json:"supplierList"`
	AdminList    []roles.AdminRecord    `json:"adminList"`
}

type schemaEnsurer interface {
	EnsureSchema(ctx context.Context) error
}

type tableEnsurer interface {
	EnsureTables(ctx context.Context, wait time.Duration) error
}

func main() {
	var (
		file    = flag.String("file", "infra/sample-roles.json", "Registry fixture to load")
		envFile = flag.String("env-file", ".env", "Optional dotenv file")
		dryRun  = flag.Bool("dry-run", false, "Parse and report without writing")
		timeout = flag.Duration("timeout", time.Minute, "Overall timeout")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	data, err := os.ReadFile(*file)
	if err != nil {
		logger.Error("failed to read fixture", "path", *file, "error", err)
		os.Exit(1)
	}
	suppliers, admins, err := parseSeed(data, uuid.NewString)
	if err != nil {
		logger.Error("failed to parse fixture", "error", err)
		os.Exit(1)
	}
	logger.Info("fixture parsed", "suppliers", len(suppliers), "admins", len(admins))
	if *dryRun {
		return
	}

	if cfg.RoleStore == "memory" {
		logger.Error("ROLE_STORE=memory reads its fixture directly; nothing to seed")
		os.Exit(1)
	}
	store, closeStore, err := app.OpenStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to open role store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	if err := seed(ctx, store, suppliers, admins, logger); err != nil {
		logger.Error("seeding failed", "error", err)
		os.Exit(1)
	}
	logger.Info("seeding complete", "store", store.Name())
}

// parseSeed reads keyed and unkeyed records; unkeyed ones get newKey().
func parseSeed(data []byte, newKey func() string) ([]roles.SupplierRecord, []roles.AdminRecord, error) {
	fx, err := memory.ParseFixture(data)
	if err != nil {
		return nil, nil, err
	}
	var extra seedFile
	if err := json.Unmarshal(data, &extra); err != nil {
		return nil, nil, fmt.Errorf("roleseed: parse lists: %w", err)
	}

	suppliers := make([]roles.SupplierRecord, 0, len(fx.Supplier)+len(extra.SupplierList))
	for _, key := range sortedKeys(fx.Supplier) {
		suppliers = append(suppliers, fx.Supplier[key])
	}
	for _, rec := range extra.SupplierList {
		if rec.RecordID == "" {
			rec.RecordID = newKey()
		}
		suppliers = append(suppliers, rec)
	}

	admins := make([]roles.AdminRecord, 0, len(fx.Admin)+len(extra.AdminList))
	for _, key := range sortedKeys(fx.Admin) {
		admins = append(admins, fx.Admin[key])
	}
	for _, rec := range extra.AdminList {
		if rec.RecordID == "" {
			rec.RecordID = newKey()
		}
		admins = append(admins, rec)
	}
	// the email index rejects empty keys
	for _, rec := range admins {
		if rec.Email == "" {
			return nil, nil, fmt.Errorf("roleseed: admin %s has no email", rec.RecordID)
		}
	}
	return suppliers, admins, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	roles.SortKeys(keys)
	return keys
}

func seed(ctx context.Context, store roles.Store, suppliers []roles.SupplierRecord, admins []roles.AdminRecord, logger *slog.Logger) error {
	w, ok := store.(roles.Writer)
	if !ok {
		return fmt.Errorf("roleseed: store %s is read-only", store.Name())
	}
	if s, ok := store.(schemaEnsurer); ok {
		if err := s.EnsureSchema(ctx); err != nil {
			return err
		}
	}
	if s, ok := store.(tableEnsurer); ok {
		if err := s.EnsureTables(ctx, 2*time.Minute); err != nil {
			return err
		}
	}

	var errs []error
	for _, rec := range suppliers {
		if err := w.PutSupplier(ctx, rec); err != nil {
			errs = append(errs, err)
			continue
		}
		logger.Debug("supplier written", "record_id", rec.RecordID)
	}
	for _, rec := range admins {
		if err := w.PutAdmin(ctx, rec); err != nil {
			errs = append(errs, err)
			continue
		}
		logger.Debug("admin written", "record_id", rec.RecordID)
	}
	return errors.Join(errs...)
}
