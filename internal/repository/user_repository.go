package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/pill-dispenser/internal/model"
)

const userColumns = "id, email, username, phone_number, password_hash, is_active, is_staff, date_joined"

// UserRepo persists accounts in the 'users' table.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// Create inserts u and sets its ID and DateJoined.  The password must
// already be hashed.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, username, phone_number, password_hash, is_active, is_staff) VALUES (?,?,?,?,?,?)",
		u.Email, u.Username, u.PhoneNumber, u.PasswordHash, u.IsActive, u.IsStaff)
	if err != nil {
		return mapDuplicate(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = uint64(id)
	return r.DB.QueryRowContext(ctx, "SELECT date_joined FROM users WHERE id=?", u.ID).Scan(&u.DateJoined)
}

// EmailExists reports whether an account already uses email.
func (r *UserRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	return exists(ctx, r.DB, "SELECT 1 FROM users WHERE email=? LIMIT 1", email)
}

// UsernameExists reports whether an account already uses username.
func (r *UserRepo) UsernameExists(ctx context.Context, username string) (bool, error) {
	return exists(ctx, r.DB, "SELECT 1 FROM users WHERE username=? LIMIT 1", username)
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getOne(ctx, "SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email)
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (*model.User, error) {
	return r.getOne(ctx, "SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id)
}

// GetByUsername fetches a user by exact username.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.getOne(ctx, "SELECT "+userColumns+" FROM users WHERE username=? LIMIT 1", username)
}

// List returns every account ordered by id.
func (r *UserRepo) List(ctx context.Context) ([]*model.User, error) {
	rows, err := r.DB.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *UserRepo) getOne(ctx context.Context, q string, arg any) (*model.User, error) {
	u, err := scanUser(r.DB.QueryRowContext(ctx, q, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (*model.User, error) {
	var (
		u     model.User
		phone sql.NullString
	)
	if err := s.Scan(&u.ID, &u.Email, &u.Username, &phone, &u.PasswordHash, &u.IsActive, &u.IsStaff, &u.DateJoined); err != nil {
		return nil, err
	}
	if phone.Valid {
		u.PhoneNumber = &phone.String
	}
	return &u, nil
}

// exists runs a "SELECT 1 ... LIMIT 1" style query and reports whether it
// produced a row.
func exists(ctx context.Context, q queryer, query string, args ...any) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
