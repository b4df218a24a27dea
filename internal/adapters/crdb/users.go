package crdb

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/stadium-tickets/internal/domain"
)

// GetOrCreateUser looks a user up by email, creating one when absent.
// Existing users get name/phone drift written back. Returns whether the
// user was newly created.
func (r *Repository) GetOrCreateUser(ctx context.Context, name, email, phone string) (*domain.User, bool, error) {
	var user domain.User
	var created bool

	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			SELECT user_id, name, email, phone, role FROM users WHERE email = $1 FOR UPDATE
		`, email).Scan(&user.ID, &user.Name, &user.Email, &user.Phone, &user.Role)
		if err == pgx.ErrNoRows {
			user = domain.User{ID: uuid.New(), Name: name, Email: email, Phone: phone, Role: "user"}
			created = true
			_, err := tx.Exec(ctx, `
				INSERT INTO users (user_id, name, email, phone, role)
				VALUES ($1, $2, $3, $4, $5)
			`, user.ID, user.Name, user.Email, user.Phone, user.Role)
			return err
		}
		if err != nil {
			return err
		}

		if user.Name != name || (phone != "" && user.Phone != phone) {
			user.Name = name
			if phone != "" {
				user.Phone = phone
			}
			_, err := tx.Exec(ctx, `
				UPDATE users SET name = $2, phone = $3 WHERE user_id = $1
			`, user.ID, user.Name, user.Phone)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &user, created, nil
}

// GetAdminByEmail returns the user only when it carries the admin role.
func (r *Repository) GetAdminByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, name, email, phone, role FROM users WHERE email = $1 AND role = 'admin'
	`, email).Scan(&user.ID, &user.Name, &user.Email, &user.Phone, &user.Role)
	if err == pgx.ErrNoRows {
		return nil, errors.Wrapf(domain.ErrNotFound, "admin %s", email)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}
