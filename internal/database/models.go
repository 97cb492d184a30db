package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// OrderItem is the snapshot of a cart line stored in orders.items.
type OrderItem struct {
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	Ingredients []string        `json:"ingredients"`
}

type Order struct {
	ID             uuid.UUID          `json:"id"`
	TableNumber    int32              `json:"table_number"`
	Items          []OrderItem        `json:"items"`
	Total          pgtype.Numeric     `json:"total"`
	Status         string             `json:"status"`
	Observation    string             `json:"observation"`
	CreatedAt      pgtype.Timestamptz `json:"created_at"`
	LocalCreatedAt string             `json:"local_created_at"`
	CreatedBy      uuid.UUID          `json:"created_by"`
	CreatedByEmail string             `json:"created_by_email"`
	CreatedByName  string             `json:"created_by_name"`
}

// TotalDecimal returns Total as a decimal, zero when NULL.
func (o Order) TotalDecimal() decimal.Decimal {
	if !o.Total.Valid {
		return decimal.Zero
	}
	val, err := o.Total.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// CreatedTime is the server timestamp, zero when not yet assigned.
func (o Order) CreatedTime() time.Time {
	if !o.CreatedAt.Valid {
		return time.Time{}
	}
	return o.CreatedAt.Time
}

type Staff struct {
	ID          uuid.UUID          `json:"id"`
	Email       string             `json:"email"`
	Role        string             `json:"role"`
	DisplayName string             `json:"display_name"`
	CreatedAt   pgtype.Timestamptz `json:"created_at"`
}

type Credential struct {
	ID           uuid.UUID          `json:"id"`
	Email        string             `json:"email"`
	PasswordHash string             `json:"password_hash"`
	CreatedAt    pgtype.Timestamptz `json:"created_at"`
}
