package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

// UserRecord is the directory's projection of an account: credential hash
// included, so it stays inside the auth layer and never goes on the wire.
type UserRecord struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	Enabled      bool
	Roles        []string
	RegisteredAt time.Time
}

// Identity strips the record down to the request-scoped principal.
func (u *UserRecord) Identity() Identity {
	return Identity{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		Enabled:  u.Enabled,
		Roles:    u.Roles,
	}
}

// UserDirectory is the external collaborator that owns account data. The
// core only reads it; lookups for missing accounts fail with
// ErrIdentityNotFound.
type UserDirectory interface {
	FindByUsername(ctx context.Context, username string) (*UserRecord, error)
	FindByEmail(ctx context.Context, email string) (*UserRecord, error)
	FindByID(ctx context.Context, id int64) (*UserRecord, error)
}

// PasswordEncoder is the pluggable credential-verification capability.
type PasswordEncoder interface {
	Encode(raw string) (string, error)
	Matches(hashed, raw string) bool
}

// BcryptEncoder implements PasswordEncoder with bcrypt.
type BcryptEncoder struct {
	Cost int
}

func (e BcryptEncoder) Encode(raw string) (string, error) {
	cost := e.Cost
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(raw), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func (e BcryptEncoder) Matches(hashed, raw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(raw)) == nil
}

// ConnectDB opens a pgx connection pool with conservative defaults.
func ConnectDB(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, errors.New("empty database dsn")
	}

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	config.MaxConns = 10
	config.MinConns = 1
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute
	config.HealthCheckPeriod = 30 * time.Second

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// PgUserDirectory implements UserDirectory on pgxpool.
type PgUserDirectory struct {
	db *pgxpool.Pool
}

func NewPgUserDirectory(db *pgxpool.Pool) *PgUserDirectory {
	return &PgUserDirectory{db: db}
}

func (r *PgUserDirectory) FindByUsername(ctx context.Context, username string) (*UserRecord, error) {
	const q = `SELECT id, username, email, password_hash, enabled, reg_time FROM users WHERE username=$1`
	return r.findOne(ctx, q, username)
}

func (r *PgUserDirectory) FindByEmail(ctx context.Context, email string) (*UserRecord, error) {
	const q = `SELECT id, username, email, password_hash, enabled, reg_time FROM users WHERE email=$1`
	return r.findOne(ctx, q, email)
}

func (r *PgUserDirectory) FindByID(ctx context.Context, id int64) (*UserRecord, error) {
	const q = `SELECT id, username, email, password_hash, enabled, reg_time FROM users WHERE id=$1`
	return r.findOne(ctx, q, id)
}

func (r *PgUserDirectory) findOne(ctx context.Context, query string, arg any) (*UserRecord, error) {
	var u UserRecord
	err := r.db.QueryRow(ctx, query, arg).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Enabled, &u.RegisteredAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrIdentityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user lookup: %w", err)
	}

	roles, err := r.rolesFor(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	u.Roles = roles
	return &u, nil
}

func (r *PgUserDirectory) rolesFor(ctx context.Context, userID int64) ([]string, error) {
	const q = `SELECT r.name FROM roles r JOIN user_roles ur ON ur.role_id = r.id WHERE ur.user_id=$1 ORDER BY r.name`
	rows, err := r.db.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("role lookup: %w", err)
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		roles = append(roles, name)
	}
	return roles, rows.Err()
}
