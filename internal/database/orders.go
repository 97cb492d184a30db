package database

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, table_number, items, total, status, observation, created_at,
	local_created_at, created_by, created_by_email, created_by_name`

func scanOrder(row pgx.Row) (Order, error) {
	var i Order
	err := row.Scan(
		&i.ID,
		&i.TableNumber,
		&i.Items,
		&i.Total,
		&i.Status,
		&i.Observation,
		&i.CreatedAt,
		&i.LocalCreatedAt,
		&i.CreatedBy,
		&i.CreatedByEmail,
		&i.CreatedByName,
	)
	return i, err
}

func collectOrders(rows pgx.Rows) ([]Order, error) {
	defer rows.Close()
	items := []Order{}
	for rows.Next() {
		i, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const createOrder = `INSERT INTO orders (
	table_number, items, total, status, observation, local_created_at,
	created_by, created_by_email, created_by_name
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING ` + orderColumns

type CreateOrderParams struct {
	TableNumber    int32
	Items          []OrderItem
	Total          pgtype.Numeric
	Status         string
	Observation    string
	LocalCreatedAt string
	CreatedBy      uuid.UUID
	CreatedByEmail string
	CreatedByName  string
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	items, err := json.Marshal(arg.Items)
	if err != nil {
		return Order{}, err
	}
	row := q.db.QueryRow(ctx, createOrder,
		arg.TableNumber,
		items,
		arg.Total,
		arg.Status,
		arg.Observation,
		arg.LocalCreatedAt,
		arg.CreatedBy,
		arg.CreatedByEmail,
		arg.CreatedByName,
	)
	return scanOrder(row)
}

const getOrder = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrder, id))
}

const getOrderStatus = `SELECT status FROM orders WHERE id = $1`

func (q *Queries) GetOrderStatus(ctx context.Context, id uuid.UUID) (string, error) {
	var status string
	err := q.db.QueryRow(ctx, getOrderStatus, id).Scan(&status)
	return status, err
}

// No ORDER BY: callers that need an order sort client-side.
const listOrders = `SELECT ` + orderColumns + ` FROM orders`

func (q *Queries) ListOrders(ctx context.Context) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrders)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

const listOrdersBetween = `SELECT ` + orderColumns + ` FROM orders
WHERE created_at >= $1 AND created_at <= $2
ORDER BY created_at DESC`

type ListOrdersBetweenParams struct {
	Start pgtype.Timestamptz
	End   pgtype.Timestamptz
}

func (q *Queries) ListOrdersBetween(ctx context.Context, arg ListOrdersBetweenParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrdersBetween, arg.Start, arg.End)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

// Only moves forward: the row is touched only while its status is still
// one of Earlier.
const advanceOrderStatus = `UPDATE orders SET status = $2
WHERE id = $1 AND status = ANY($3::text[])`

type AdvanceOrderStatusParams struct {
	ID      uuid.UUID
	Status  string
	Earlier []string
}

func (q *Queries) AdvanceOrderStatus(ctx context.Context, arg AdvanceOrderStatusParams) (int64, error) {
	result, err := q.db.Exec(ctx, advanceOrderStatus, arg.ID, arg.Status, arg.Earlier)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
