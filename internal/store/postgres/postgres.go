package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"bengkelpos/backend/internal/domain"
	"bengkelpos/backend/internal/store"
	"bengkelpos/backend/internal/xid"
)

//go:embed schema.sql
var schemaSQL string

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

type Store struct {
	db *sql.DB
}

var _ store.Repository = (*Store)(nil)

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaSQL)
	return err
}

func (s *Store) GetSetting(ctx context.Context, key string) (*domain.GlobalSetting, error) {
	var setting domain.GlobalSetting
	err := s.db.QueryRowContext(ctx, `
		SELECT key, value, updated_at
		FROM global_settings
		WHERE key = $1
	`, key).Scan(&setting.Key, &setting.Value, &setting.UpdatedAt)
	if err != nil {
		return nil, mapNoRows(err)
	}
	return &setting, nil
}

func (s *Store) SetSetting(ctx context.Context, key string, value string) error {
	if strings.TrimSpace(key) == "" {
		return store.ErrInvalidTransaction
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO global_settings (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key)
		DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`, key, value)
	return err
}

func (s *Store) ListMechanics(ctx context.Context) ([]domain.Mechanic, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, phone, active, created_at
		FROM mechanics
		ORDER BY name, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	mechanics := make([]domain.Mechanic, 0, 16)
	for rows.Next() {
		var m domain.Mechanic
		if err := rows.Scan(&m.ID, &m.Name, &m.Phone, &m.Active, &m.CreatedAt); err != nil {
			return nil, err
		}
		mechanics = append(mechanics, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return mechanics, nil
}

func (s *Store) GetMechanic(ctx context.Context, id string) (*domain.Mechanic, error) {
	var m domain.Mechanic
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, phone, active, created_at
		FROM mechanics
		WHERE id = $1
	`, id).Scan(&m.ID, &m.Name, &m.Phone, &m.Active, &m.CreatedAt)
	if err != nil {
		return nil, mapNoRows(err)
	}
	return &m, nil
}

func (s *Store) CreateMechanic(ctx context.Context, mechanic domain.Mechanic) (*domain.Mechanic, error) {
	mechanic.Name = strings.TrimSpace(mechanic.Name)
	if mechanic.Name == "" {
		return nil, store.ErrInvalidTransaction
	}
	if mechanic.ID == "" {
		mechanic.ID = xid.New("mch")
	}
	if mechanic.CreatedAt.IsZero() {
		mechanic.CreatedAt = time.Now().UTC()
	}
	mechanic.Active = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mechanics (id, name, phone, active, created_at)
		VALUES ($1, $2, $3, true, $4)
	`, mechanic.ID, mechanic.Name, strings.TrimSpace(mechanic.Phone), mechanic.CreatedAt)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return &mechanic, nil
}

func (s *Store) GetMechanicSetting(ctx context.Context, mechanicID string) (*domain.MechanicSetting, error) {
	var setting domain.MechanicSetting
	err := s.db.QueryRowContext(ctx, `
		SELECT id, mechanic_id, shop_cut_percentage, is_active, updated_at
		FROM mechanic_settings
		WHERE mechanic_id = $1 AND is_active = true
	`, mechanicID).Scan(&setting.ID, &setting.MechanicID, &setting.ShopCutPercentage, &setting.IsActive, &setting.UpdatedAt)
	if err != nil {
		return nil, mapNoRows(err)
	}
	return &setting, nil
}

func (s *Store) UpsertMechanicSetting(ctx context.Context, mechanicID string, shopCut decimal.Decimal) (*domain.MechanicSetting, error) {
	var setting domain.MechanicSetting
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO mechanic_settings (id, mechanic_id, shop_cut_percentage, is_active, updated_at)
		VALUES ($1, $2, $3, true, now())
		ON CONFLICT (mechanic_id)
		DO UPDATE SET shop_cut_percentage = EXCLUDED.shop_cut_percentage, is_active = true, updated_at = now()
		RETURNING id, mechanic_id, shop_cut_percentage, is_active, updated_at
	`, xid.New("mset"), mechanicID, shopCut).Scan(&setting.ID, &setting.MechanicID, &setting.ShopCutPercentage, &setting.IsActive, &setting.UpdatedAt)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return &setting, nil
}

func (s *Store) DeactivateMechanicSetting(ctx context.Context, mechanicID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE mechanic_settings
		SET is_active = false, updated_at = now()
		WHERE mechanic_id = $1
	`, mechanicID)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

func (s *Store) ListMechanicSettings(ctx context.Context) ([]domain.MechanicSetting, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, mechanic_id, shop_cut_percentage, is_active, updated_at
		FROM mechanic_settings
		ORDER BY mechanic_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	settings := make([]domain.MechanicSetting, 0, 16)
	for rows.Next() {
		var setting domain.MechanicSetting
		if err := rows.Scan(&setting.ID, &setting.MechanicID, &setting.ShopCutPercentage, &setting.IsActive, &setting.UpdatedAt); err != nil {
			return nil, err
		}
		settings = append(settings, setting)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return settings, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limitOrAll(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, 64)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1, $2, $3, true, $4)
	`, username, user.Password, user.Role, user.CreatedAt)
	return mapWriteError(err)
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 8)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

func mapNoRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

// mapWriteError translates constraint violations into store sentinels.
func mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return store.ErrConflict
		case pgForeignKeyViolation:
			return store.ErrNotFound
		}
	}
	return mapNoRows(err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return false
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// limitOrAll turns a non-positive limit into SQL "LIMIT ALL".
func limitOrAll(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
