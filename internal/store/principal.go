package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rainwatch/apiserver/types"
)

var realmTables = map[types.Realm]string{
	types.RealmUser:  "users",
	types.RealmAdmin: "admins",
}

const principalColumns = `id, identity, full_name, password_hash, role, is_active, created_at, last_active_at`

// PrincipalRepository handles persistence for one realm's principals.
type PrincipalRepository struct {
	db    *sqlx.DB
	realm types.Realm
	table string
}

func NewPrincipalRepository(db *sqlx.DB, realm types.Realm) (*PrincipalRepository, error) {
	table, ok := realmTables[realm]
	if !ok {
		return nil, fmt.Errorf("unknown realm %q", realm)
	}
	return &PrincipalRepository{db: db, realm: realm, table: table}, nil
}

func (r *PrincipalRepository) GetByID(ctx context.Context, id string) (types.Principal, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, principalColumns, r.table)
	return r.get(ctx, query, id)
}

func (r *PrincipalRepository) GetByIdentity(ctx context.Context, identity string) (types.Principal, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE identity = $1`, principalColumns, r.table)
	return r.get(ctx, query, identity)
}

func (r *PrincipalRepository) get(ctx context.Context, query string, arg any) (types.Principal, error) {
	var principal types.Principal
	if err := r.db.GetContext(ctx, &principal, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Principal{}, ErrNotFound
		}
		return types.Principal{}, err
	}
	return principal, nil
}

// Create inserts a principal. A duplicate identity yields ErrConflict.
func (r *PrincipalRepository) Create(ctx context.Context, principal types.Principal) (types.Principal, error) {
	principal.Role = r.realm
	if principal.CreatedAt.IsZero() {
		principal.CreatedAt = time.Now().UTC()
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, identity, full_name, password_hash, role, is_active, created_at)
		VALUES (:id, :identity, :full_name, :password_hash, :role, :is_active, :created_at)`, r.table)
	if _, err := r.db.NamedExecContext(ctx, query, principal); err != nil {
		if isUniqueViolation(err) {
			return types.Principal{}, ErrConflict
		}
		return types.Principal{}, err
	}
	return principal, nil
}

func (r *PrincipalRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	query := fmt.Sprintf(`UPDATE %s SET password_hash = $1 WHERE id = $2`, r.table)
	return r.execOne(ctx, query, passwordHash, id)
}

// UpdateProfile replaces identity and full name. An identity taken by another
// principal yields ErrConflict.
func (r *PrincipalRepository) UpdateProfile(ctx context.Context, id, identity, fullName string) error {
	query := fmt.Sprintf(`UPDATE %s SET identity = $1, full_name = $2 WHERE id = $3`, r.table)
	err := r.execOne(ctx, query, identity, fullName, id)
	if err != nil && isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (r *PrincipalRepository) TouchLastActive(ctx context.Context, id string, at time.Time) error {
	query := fmt.Sprintf(`UPDATE %s SET last_active_at = $1 WHERE id = $2`, r.table)
	return r.execOne(ctx, query, at, id)
}

func (r *PrincipalRepository) SetActive(ctx context.Context, id string, active bool) error {
	query := fmt.Sprintf(`UPDATE %s SET is_active = $1 WHERE id = $2`, r.table)
	return r.execOne(ctx, query, active, id)
}

func (r *PrincipalRepository) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, r.table)
	return r.execOne(ctx, query, id)
}

func (r *PrincipalRepository) List(ctx context.Context, offset, limit int) ([]types.Principal, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 20
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf(`SELECT COUNT(1) FROM %s`, r.table)); err != nil {
		return nil, 0, err
	}

	principals := make([]types.Principal, 0, limit)
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY created_at, id OFFSET $1 LIMIT $2`, principalColumns, r.table)
	if err := r.db.SelectContext(ctx, &principals, query, offset, limit); err != nil {
		return nil, 0, err
	}
	return principals, total, nil
}

func (r *PrincipalRepository) execOne(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
