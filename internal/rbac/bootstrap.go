package rbac

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/firmboard/backend/config"
	"github.com/firmboard/backend/pkg/utils"
)

// EnsureFirmAdmin is the one-time bootstrap that replaces hardcoded superuser
// checks: it creates the configured admin account if absent and assigns it
// the Firm Admin role. After this runs, administration flows through the
// normal role mechanism; no identity comparison happens at authorize time.
func EnsureFirmAdmin(ctx context.Context, pool *pgxpool.Pool, defaults *Defaults, cfg config.BootstrapConfig, logger *zap.Logger) error {
	var assigned bool
	err := pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM firm_role_assignments WHERE role_id = $1)`,
		defaults.FirmAdmin.ID).Scan(&assigned)
	if err != nil {
		return fmt.Errorf("check firm admin assignment: %w", err)
	}
	if assigned {
		return nil
	}
	if cfg.AdminPassword == "" {
		return fmt.Errorf("no firm admin exists and BOOTSTRAP_ADMIN_PASSWORD is not set")
	}

	hash, err := utils.HashPassword(cfg.AdminPassword)
	if err != nil {
		return fmt.Errorf("hash bootstrap password: %w", err)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const upsertUser = `INSERT INTO users (username, email, password_hash)
		VALUES ($1, $2, $3)
		ON CONFLICT (email) DO UPDATE SET updated_at = NOW()
		RETURNING id`
	var adminID string
	if err := tx.QueryRow(ctx, upsertUser, cfg.AdminName, cfg.AdminEmail, hash).Scan(&adminID); err != nil {
		return fmt.Errorf("create bootstrap admin: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO firm_role_assignments (user_id, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		adminID, defaults.FirmAdmin.ID); err != nil {
		return fmt.Errorf("assign firm admin role: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	logger.Info("bootstrapped firm admin", zap.String("email", cfg.AdminEmail))
	return nil
}
