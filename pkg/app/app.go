package app

import (
	"context"

	"branchdesk/pkg/auth"
	"branchdesk/pkg/config"
	"branchdesk/pkg/schema"
	"branchdesk/pkg/session"
	"branchdesk/pkg/sheets"
	"branchdesk/pkg/store"

	log "github.com/sirupsen/logrus"
)

// App holds the services shared by the HTTP server and the maintenance CLI.
type App struct {
	Config   *config.Config
	Gateway  *sheets.Gateway
	Auth     *auth.Service
	Store    *store.Store
	Sessions *session.Manager
}

// New wires every service over backend.
func New(cfg *config.Config, backend sheets.Backend) *App {
	policy := sheets.DefaultRetryPolicy()
	policy.MaxAttempts = cfg.Store.Retry.MaxAttempts
	policy.InitialBackoff = cfg.InitialBackoff()
	policy.MaxBackoff = cfg.MaxBackoff()

	gw := sheets.NewGateway(backend,
		sheets.WithRetryPolicy(policy),
		sheets.WithLocation(cfg.Location()),
	)
	lockouts := auth.NewLockouts(cfg.Store.Login.MaxFailures, cfg.LockoutDuration())
	return &App{
		Config:  cfg,
		Gateway: gw,
		Auth:    auth.NewService(gw, cfg.Store.Sheet.UserTable).WithLockouts(lockouts),
		Store: store.New(gw, store.Options{
			TTL:         cfg.CacheTTL(),
			ConfigTable: cfg.Store.Sheet.ConfigTable,
			Location:    cfg.Location(),
		}),
		Sessions: session.NewManager(),
	}
}

// Backend connects to the spreadsheet named by the environment, or returns
// a seeded in-memory workbook when memory is set.
func Backend(ctx context.Context, cfg *config.Config, envFile string, memory bool) (sheets.Backend, error) {
	if memory {
		log.Warn("using an in-memory workbook, nothing will be persisted")
		return Demo(cfg), nil
	}
	creds, err := config.LoadCredentials(envFile)
	if err != nil {
		return nil, err
	}
	client, err := sheets.NewSheetClient(ctx, creds.JSON, creds.SheetID, cfg.Store.Sheet.RequestsPerMinute)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Demo is a small workbook for local runs: an admin and a staff user with
// plaintext passwords that are hashed on first login, and one loans table.
func Demo(cfg *config.Config) *sheets.MemoryBackend {
	m := sheets.NewMemoryBackend()
	m.SetTable(cfg.Store.Sheet.UserTable, [][]string{
		{"Username", "Password", "Role"},
		{"admin", "admin", "admin"},
		{"staff", "staff", "staff"},
	})
	m.SetTable(cfg.Store.Sheet.ConfigTable, [][]string{
		{"Sheetname", "Searchable", "Enterable", "Viewable"},
		{"Loans", "1", "1", "1"},
	})
	m.SetTable("Loans", [][]string{
		{"Customer*", "Amount*", "Phone", "Due Date", schema.ColumnSubmitter, schema.ColumnSubmittedAt},
		{"Nguyen Van A", "1500000", "0912345678", "01/06/2024", "staff", "15/03/2024 09:30:00"},
	})
	return m
}
