package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"bengkelpos/backend/internal/domain"
	"bengkelpos/backend/internal/store"
)

func (s *Store) GetStock(ctx context.Context, code string) (*domain.StockRecord, error) {
	var item domain.StockRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT code, name, quantity, price, type
		FROM stock_items
		WHERE code = $1
	`, code).Scan(&item.Code, &item.Name, &item.Quantity, &item.Price, &item.Type)
	if err != nil {
		return nil, mapNoRows(err)
	}
	return &item, nil
}

func (s *Store) ListStock(ctx context.Context, limit int) ([]domain.StockRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT code, name, quantity, price, type
		FROM stock_items
		ORDER BY type, name
		LIMIT $1
	`, limitOrAll(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.StockRecord, 0, 128)
	for rows.Next() {
		var item domain.StockRecord
		if err := rows.Scan(&item.Code, &item.Name, &item.Quantity, &item.Price, &item.Type); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CreateStockItem(ctx context.Context, item domain.StockRecord) (*domain.StockRecord, error) {
	if strings.TrimSpace(item.Code) == "" || strings.TrimSpace(item.Name) == "" || item.Price.IsNegative() {
		return nil, store.ErrInvalidTransaction
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stock_items (code, name, quantity, price, type)
		VALUES ($1, $2, $3, $4, $5)
	`, item.Code, item.Name, item.Quantity, item.Price, item.Type)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return &item, nil
}

func (s *Store) SetStockQuantity(ctx context.Context, code string, qty int) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE stock_items SET quantity = $2 WHERE code = $1
	`, code, qty)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

func (s *Store) IncrementStock(ctx context.Context, code string, delta int) (int, error) {
	var quantity int
	err := s.db.QueryRowContext(ctx, `
		UPDATE stock_items
		SET quantity = quantity + $2
		WHERE code = $1
		RETURNING quantity
	`, code, delta).Scan(&quantity)
	if err != nil {
		return 0, mapNoRows(err)
	}
	return quantity, nil
}

func (s *Store) CreateStockMutation(ctx context.Context, mutation domain.StockMutation) error {
	if strings.TrimSpace(mutation.TransactionCode) == "" {
		return store.ErrInvalidTransaction
	}
	if mutation.CreatedAt.IsZero() {
		mutation.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO stock_mutations (transaction_code, kind, created_at)
		VALUES ($1, $2, $3)
	`, mutation.TransactionCode, mutation.Kind, mutation.CreatedAt)
	if err != nil {
		return mapWriteError(err)
	}

	for _, item := range mutation.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO stock_mutation_items (transaction_code, line_id, item_code, item_name, quantity)
			VALUES ($1, $2, $3, $4, $5)
		`, mutation.TransactionCode, item.LineID, item.ItemCode, item.ItemName, item.Quantity)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) GetMutationItems(ctx context.Context, transactionCode string) ([]domain.StockMutationItem, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM stock_mutations WHERE transaction_code = $1)
	`, transactionCode).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, store.ErrNotFound
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT line_id, item_code, item_name, quantity
		FROM stock_mutation_items
		WHERE transaction_code = $1
		ORDER BY id
	`, transactionCode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.StockMutationItem, 0, 16)
	for rows.Next() {
		var item domain.StockMutationItem
		if err := rows.Scan(&item.LineID, &item.ItemCode, &item.ItemName, &item.Quantity); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) UpdateMutationItemQuantity(ctx context.Context, transactionCode string, match store.MutationMatch, qty int) (int64, error) {
	var (
		result sql.Result
		err    error
	)
	switch {
	case match.LineID != "":
		result, err = s.db.ExecContext(ctx, `
			UPDATE stock_mutation_items SET quantity = $3
			WHERE transaction_code = $1 AND line_id = $2
		`, transactionCode, match.LineID, qty)
	case match.ItemName != "":
		result, err = s.db.ExecContext(ctx, `
			UPDATE stock_mutation_items SET quantity = $3
			WHERE transaction_code = $1 AND item_name = $2
		`, transactionCode, match.ItemName, qty)
	default:
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
