package database

import (
	"context"

	"github.com/google/uuid"
)

const createStaff = `INSERT INTO staff (id, email, role, display_name)
VALUES ($1, $2, $3, $4)
RETURNING id, email, role, display_name, created_at`

type CreateStaffParams struct {
	ID          uuid.UUID
	Email       string
	Role        string
	DisplayName string
}

func (q *Queries) CreateStaff(ctx context.Context, arg CreateStaffParams) (Staff, error) {
	row := q.db.QueryRow(ctx, createStaff, arg.ID, arg.Email, arg.Role, arg.DisplayName)
	var i Staff
	err := row.Scan(&i.ID, &i.Email, &i.Role, &i.DisplayName, &i.CreatedAt)
	return i, err
}

const getStaff = `SELECT id, email, role, display_name, created_at FROM staff WHERE id = $1`

func (q *Queries) GetStaff(ctx context.Context, id uuid.UUID) (Staff, error) {
	row := q.db.QueryRow(ctx, getStaff, id)
	var i Staff
	err := row.Scan(&i.ID, &i.Email, &i.Role, &i.DisplayName, &i.CreatedAt)
	return i, err
}

const listStaff = `SELECT id, email, role, display_name, created_at FROM staff ORDER BY created_at, email`

func (q *Queries) ListStaff(ctx context.Context) ([]Staff, error) {
	rows, err := q.db.Query(ctx, listStaff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Staff{}
	for rows.Next() {
		var i Staff
		if err := rows.Scan(&i.ID, &i.Email, &i.Role, &i.DisplayName, &i.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const deleteStaff = `DELETE FROM staff WHERE id = $1`

func (q *Queries) DeleteStaff(ctx context.Context, id uuid.UUID) (int64, error) {
	result, err := q.db.Exec(ctx, deleteStaff, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
