package repository

import (
	"context"
	"strings"

	"github.com/iliyamo/credit-cpr/internal/model"
)

// UserSearchQuery defines filters & pagination for the admin user list.
type UserSearchQuery struct {
	Email    string // substring, case-insensitive
	Plan     model.Plan
	Page     int
	PageSize int
}

// Search returns one page of users, newest first, and the total number of
// matches.
func (r *UserRepo) Search(ctx context.Context, q UserSearchQuery) ([]model.User, int64, error) {
	where := []string{}
	args := []any{}

	if q.Email != "" {
		where = append(where, "email LIKE ?")
		args = append(args, "%"+NormalizeEmail(q.Email)+"%")
	}
	if q.Plan != "" {
		where = append(where, "plan = ?")
		args = append(args, string(q.Plan))
	}

	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}

	var total int64
	if err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = 50
	}
	limit := q.PageSize
	offset := (q.Page - 1) * q.PageSize

	dataSQL := "SELECT " + userColumns + " FROM users WHERE " + cond +
		" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	argsData := append(append([]any{}, args...), limit, offset)

	rows, err := r.DB.QueryContext(ctx, dataSQL, argsData...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]model.User, 0, limit)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
