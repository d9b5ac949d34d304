// Command seed provisions the system roles and a bootstrap administrator so a
// fresh install has at least one account able to manage the rest. It is safe
// to run repeatedly.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/kelseyhightower/envconfig"

	"github.com/meridianhq/meridian/internal/app"
	"github.com/meridianhq/meridian/internal/locations"
	"github.com/meridianhq/meridian/internal/platform/db"
	"github.com/meridianhq/meridian/internal/rbac"
	"github.com/meridianhq/meridian/internal/shared"
	"github.com/meridianhq/meridian/internal/users"
)

type seedConfig struct {
	AdminEmail    string `envconfig:"SEED_ADMIN_EMAIL" default:"admin@meridian.local"`
	AdminName     string `envconfig:"SEED_ADMIN_NAME" default:"Administrador General"`
	AdminPassword string `envconfig:"SEED_ADMIN_PASSWORD" required:"true"`

	LocationCode string `envconfig:"SEED_LOCATION_CODE" default:"HQ"`
	LocationName string `envconfig:"SEED_LOCATION_NAME" default:"Oficina Central"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	var seed seedConfig
	if err := envconfig.Process("", &seed); err != nil {
		slog.Default().Error("load seed config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	auditLogger := shared.NewAuditLogger(dbpool)

	rbacRepo := rbac.NewRepository(dbpool)
	usersRepo := users.NewRepository(dbpool)
	locationsRepo := locations.NewRepository(dbpool)

	locationsService := locations.NewService(locationsRepo, auditLogger, logger)
	ledger := rbac.NewLedger(rbacRepo, rbacRepo, nil, locationsService, nil, auditLogger, logger)
	usersService := users.NewService(usersRepo, ledger, auditLogger, logger)
	ledger = rbac.NewLedger(rbacRepo, rbacRepo, usersService, locationsService, nil, auditLogger, logger)

	if err := rbac.EnsureSystemRoles(ctx, rbacRepo, logger); err != nil {
		logger.Error("seed system roles", slog.Any("error", err))
		os.Exit(1)
	}

	location, err := ensureLocation(ctx, locationsService, seed)
	if err != nil {
		logger.Error("seed location", slog.Any("error", err))
		os.Exit(1)
	}

	admin, err := ensureAdminUser(ctx, usersRepo, usersService, seed)
	if err != nil {
		logger.Error("seed admin user", slog.Any("error", err))
		os.Exit(1)
	}

	adminRole, err := rbacRepo.GetRoleByName(ctx, cfg.RBACAdminRole)
	if err != nil {
		logger.Error("lookup admin role", slog.String("role", cfg.RBACAdminRole), slog.Any("error", err))
		os.Exit(1)
	}

	_, err = ledger.AssignRole(ctx, rbac.AssignRoleInput{
		UserID:     admin.ID,
		RoleID:     adminRole.ID,
		LocationID: location.ID,
		AssignedBy: admin.ID,
		Notes:      "asignación inicial del sistema",
	})
	switch {
	case err == nil:
		logger.Info("admin assignment created",
			slog.String("user", admin.Email),
			slog.String("role", adminRole.Name),
			slog.String("location", location.Code),
		)
	case errors.Is(err, shared.ErrConflict):
		logger.Info("admin assignment already present", slog.String("user", admin.Email))
	default:
		logger.Error("seed admin assignment", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("seed complete")
}

func ensureLocation(ctx context.Context, svc *locations.Service, seed seedConfig) (locations.Location, error) {
	code := strings.ToUpper(strings.TrimSpace(seed.LocationCode))
	existing, err := svc.List(ctx)
	if err != nil {
		return locations.Location{}, err
	}
	for _, loc := range existing {
		if loc.Code == code {
			return loc, nil
		}
	}
	return svc.Create(ctx, locations.Input{
		Code:     code,
		Name:     seed.LocationName,
		IsActive: true,
	}, uuid.Nil)
}

func ensureAdminUser(ctx context.Context, repo *users.Repository, svc *users.Service, seed seedConfig) (users.User, error) {
	email := strings.ToLower(strings.TrimSpace(seed.AdminEmail))
	existing, err := repo.GetByEmail(ctx, email)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return users.User{}, err
	}
	return svc.Create(ctx, users.Input{
		Email:    email,
		FullName: seed.AdminName,
		Password: seed.AdminPassword,
		IsActive: true,
	}, uuid.Nil)
}
