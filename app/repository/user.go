package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-filedrop/app/entity"
)

const userColumns = `id, username, email, canonical_email, password_hash, is_active, is_staff, email_verified,
		       verification_token, last_login, created_at, updated_at`

type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *entity.User) error {
	query := `
		INSERT INTO users (username, email, canonical_email, password_hash, is_active, is_staff, email_verified, verification_token, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.ExecContext(ctx, query,
		user.Username,
		user.Email,
		user.CanonicalEmail,
		user.PasswordHash,
		user.IsActive,
		user.IsStaff,
		user.EmailVerified,
		user.VerificationToken,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return translateError(err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	user.ID = uint64(id)
	return nil
}

func (r *UserRepository) FindByCanonicalEmail(ctx context.Context, canonicalEmail string) (*entity.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users WHERE canonical_email = ?
	`
	return r.findOne(ctx, query, canonicalEmail)
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*entity.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users WHERE username = ?
	`
	return r.findOne(ctx, query, username)
}

func (r *UserRepository) FindByID(ctx context.Context, id uint64) (*entity.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users WHERE id = ?
	`
	return r.findOne(ctx, query, id)
}

func (r *UserRepository) FindByVerificationToken(ctx context.Context, token string) (*entity.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users WHERE verification_token = ?
	`
	return r.findOne(ctx, query, token)
}

// List returns users ordered by email. A non-empty search matches email or
// username substrings.
func (r *UserRepository) List(ctx context.Context, search string) ([]*entity.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
	`
	var args []any
	if search != "" {
		query += `WHERE email LIKE ? OR username LIKE ?
		`
		pattern := "%" + search + "%"
		args = append(args, pattern, pattern)
	}
	query += `ORDER BY canonical_email`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*entity.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// MarkEmailVerified consumes the verification token. It returns the number of
// affected rows, which is zero when the token was already used.
func (r *UserRepository) MarkEmailVerified(ctx context.Context, userID uint64, token string) (int64, error) {
	query := `
		UPDATE users SET
			email_verified = 1,
			verification_token = NULL,
			updated_at = ?
		WHERE id = ? AND verification_token = ?
	`
	result, err := r.db.ExecContext(ctx, query, time.Now(), userID, token)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *UserRepository) Update(ctx context.Context, user *entity.User) error {
	query := `
		UPDATE users SET
			username = ?,
			email = ?,
			canonical_email = ?,
			password_hash = ?,
			is_active = ?,
			is_staff = ?,
			email_verified = ?,
			verification_token = ?,
			updated_at = ?
		WHERE id = ?
	`
	user.UpdatedAt = time.Now()
	_, err := r.db.ExecContext(ctx, query,
		user.Username,
		user.Email,
		user.CanonicalEmail,
		user.PasswordHash,
		user.IsActive,
		user.IsStaff,
		user.EmailVerified,
		user.VerificationToken,
		user.UpdatedAt,
		user.ID,
	)
	return translateError(err)
}

func (r *UserRepository) UpdateLastLogin(ctx context.Context, userID uint64, lastLogin time.Time) error {
	query := `UPDATE users SET last_login = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, lastLogin, userID)
	return err
}

func (r *UserRepository) findOne(ctx context.Context, query string, args ...any) (*entity.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

func scanUser(row rowScanner) (*entity.User, error) {
	user := &entity.User{}
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.CanonicalEmail,
		&user.PasswordHash,
		&user.IsActive,
		&user.IsStaff,
		&user.EmailVerified,
		&user.VerificationToken,
		&user.LastLogin,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}
