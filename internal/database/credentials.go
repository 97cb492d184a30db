package database

import (
	"context"

	"github.com/google/uuid"
)

const createCredential = `INSERT INTO credentials (email, password_hash)
VALUES ($1, $2)
RETURNING id, email, password_hash, created_at`

type CreateCredentialParams struct {
	Email        string
	PasswordHash string
}

func (q *Queries) CreateCredential(ctx context.Context, arg CreateCredentialParams) (Credential, error) {
	row := q.db.QueryRow(ctx, createCredential, arg.Email, arg.PasswordHash)
	var i Credential
	err := row.Scan(&i.ID, &i.Email, &i.PasswordHash, &i.CreatedAt)
	return i, err
}

const getCredentialByEmail = `SELECT id, email, password_hash, created_at FROM credentials WHERE email = $1`

func (q *Queries) GetCredentialByEmail(ctx context.Context, email string) (Credential, error) {
	row := q.db.QueryRow(ctx, getCredentialByEmail, email)
	var i Credential
	err := row.Scan(&i.ID, &i.Email, &i.PasswordHash, &i.CreatedAt)
	return i, err
}

const deleteCredential = `DELETE FROM credentials WHERE id = $1`

func (q *Queries) DeleteCredential(ctx context.Context, id uuid.UUID) (int64, error) {
	result, err := q.db.Exec(ctx, deleteCredential, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
