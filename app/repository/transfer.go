package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/vibast-solutions/ms-go-filedrop/app/entity"
)

type TransferRepository struct {
	db DBTX
}

func NewTransferRepository(db DBTX) *TransferRepository {
	return &TransferRepository{db: db}
}

func (r *TransferRepository) Create(ctx context.Context, transfer *entity.FileTransfer) error {
	query := `
		INSERT INTO file_transfers (storage_key, name, size, code, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.ExecContext(ctx, query,
		transfer.StorageKey,
		transfer.Name,
		transfer.Size,
		transfer.Code,
		transfer.CreatedAt,
		transfer.ExpiresAt,
	)
	if err != nil {
		return translateError(err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	transfer.ID = uint64(id)
	return nil
}

func (r *TransferRepository) FindByCode(ctx context.Context, code string) (*entity.FileTransfer, error) {
	query := `
		SELECT id, storage_key, name, size, code, created_at, expires_at
		FROM file_transfers WHERE code = ?
	`
	t := &entity.FileTransfer{}
	err := r.db.QueryRowContext(ctx, query, code).Scan(
		&t.ID,
		&t.StorageKey,
		&t.Name,
		&t.Size,
		&t.Code,
		&t.CreatedAt,
		&t.ExpiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *TransferRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM file_transfers WHERE code = ?)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, code).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}
