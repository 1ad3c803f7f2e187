package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/diagnosis/gatepass/pkg/auth"
	"github.com/diagnosis/gatepass/services/auth/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UserRepository interface {
	Create(ctx context.Context, req *domain.CreateUserRequest, passwordHash string) (*domain.StaffUser, error)
	FindByUsername(ctx context.Context, username string) (*domain.StaffUser, error)
	FindByID(ctx context.Context, id int64) (*domain.StaffUser, error)
	List(ctx context.Context, limit, offset int) ([]domain.StaffUser, error)
	Count(ctx context.Context) (int64, error)
}

type userRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

const userCols = `id, username, full_name, role, password_hash, created_at, updated_at`

func scanUser(row pgx.Row) (*domain.StaffUser, error) {
	var (
		u    domain.StaffUser
		role string
	)
	if err := row.Scan(&u.ID, &u.Username, &u.FullName, &role, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Role = auth.Role(role)
	return &u, nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStore, err)
}

func (r *userRepository) Create(ctx context.Context, req *domain.CreateUserRequest, passwordHash string) (*domain.StaffUser, error) {
	const q = `
		INSERT INTO staff_users (username, full_name, role, password_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + userCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	u, err := scanUser(r.pool.QueryRow(ctx, q, req.Username, req.FullName, req.Role, passwordHash))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, domain.ErrUsernameTaken
		}
		return nil, storeErr("create staff user", err)
	}
	return u, nil
}

func (r *userRepository) FindByUsername(ctx context.Context, username string) (*domain.StaffUser, error) {
	const q = `SELECT ` + userCols + ` FROM staff_users WHERE username = $1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	u, err := scanUser(r.pool.QueryRow(ctx, q, username))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("find staff user", err)
	}
	return u, nil
}

func (r *userRepository) FindByID(ctx context.Context, id int64) (*domain.StaffUser, error) {
	const q = `SELECT ` + userCols + ` FROM staff_users WHERE id = $1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	u, err := scanUser(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("find staff user", err)
	}
	return u, nil
}

func (r *userRepository) List(ctx context.Context, limit, offset int) ([]domain.StaffUser, error) {
	const q = `SELECT ` + userCols + ` FROM staff_users ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, limit, offset)
	if err != nil {
		return nil, storeErr("list staff users", err)
	}
	defer rows.Close()

	var users []domain.StaffUser
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, storeErr("scan staff user", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list staff users", err)
	}
	return users, nil
}

func (r *userRepository) Count(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM staff_users`).Scan(&n); err != nil {
		return 0, storeErr("count staff users", err)
	}
	return n, nil
}

var _ UserRepository = (*userRepository)(nil)
