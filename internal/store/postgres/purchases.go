package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"bengkelpos/backend/internal/domain"
	"bengkelpos/backend/internal/store"
	"bengkelpos/backend/internal/xid"
)

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	supplier.Name = strings.TrimSpace(supplier.Name)
	if supplier.Name == "" {
		return nil, store.ErrInvalidTransaction
	}
	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suppliers (id, name, phone, address, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, supplier.ID, supplier.Name, supplier.Phone, supplier.Address, supplier.CreatedAt)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return &supplier, nil
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, phone, address, created_at
		FROM suppliers
		ORDER BY name, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	suppliers := make([]domain.Supplier, 0, 32)
	for rows.Next() {
		var supplier domain.Supplier
		if err := rows.Scan(&supplier.ID, &supplier.Name, &supplier.Phone, &supplier.Address, &supplier.CreatedAt); err != nil {
			return nil, err
		}
		suppliers = append(suppliers, supplier)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return suppliers, nil
}

func (s *Store) PurchaseNumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM purchases WHERE purchase_number = $1)
	`, number).Scan(&exists)
	return exists, err
}

func (s *Store) InsertPurchaseHeader(ctx context.Context, purchase domain.Purchase) (*domain.Purchase, error) {
	if purchase.PurchaseNumber == "" || strings.TrimSpace(purchase.SupplierName) == "" {
		return nil, store.ErrInvalidTransaction
	}
	if purchase.ID == "" {
		purchase.ID = xid.New("pur")
	}
	if purchase.CreatedAt.IsZero() {
		purchase.CreatedAt = time.Now().UTC()
	}
	purchase.Items = nil

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO purchases (
			id, purchase_number, supplier_id, supplier_name, payment_status,
			payment_type, subtotal, notes, created_by, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, purchase.ID, purchase.PurchaseNumber, nullIfEmpty(purchase.SupplierID), purchase.SupplierName, purchase.PaymentStatus,
		purchase.PaymentType, purchase.Subtotal, purchase.Notes, purchase.CreatedBy, purchase.CreatedAt)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return &purchase, nil
}

func (s *Store) InsertPurchaseItems(ctx context.Context, purchaseID string, items []domain.PurchaseItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var lockedID string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM purchases WHERE id = $1 FOR UPDATE
	`, purchaseID).Scan(&lockedID)
	if err != nil {
		return mapNoRows(err)
	}
	if len(items) == 0 {
		return store.ErrInvalidTransaction
	}

	var position int
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(position) + 1, 0) FROM purchase_items WHERE purchase_id = $1
	`, purchaseID).Scan(&position)
	if err != nil {
		return err
	}

	for i, item := range items {
		if item.LineID == "" {
			item.LineID = xid.NewLineID()
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO purchase_items (
				line_id, purchase_id, position, item_code, item_name,
				qty, price, discount_percent, subtotal
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, item.LineID, purchaseID, position+i, item.ItemCode, item.ItemName,
			item.Qty, item.Price, item.DiscountPercent, item.Subtotal)
		if err != nil {
			return mapWriteError(err)
		}
	}
	return tx.Commit()
}

func (s *Store) DeletePurchase(ctx context.Context, purchaseID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM purchases WHERE id = $1`, purchaseID)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

func (s *Store) GetPurchase(ctx context.Context, purchaseID string) (*domain.Purchase, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, purchase_number, supplier_id, supplier_name, payment_status,
		       payment_type, subtotal, notes, created_by, created_at
		FROM purchases
		WHERE id = $1
	`, purchaseID)
	purchase, err := scanPurchase(row)
	if err != nil {
		return nil, mapNoRows(err)
	}

	itemsByPurchase, err := s.purchaseItems(ctx, []string{purchase.ID})
	if err != nil {
		return nil, err
	}
	purchase.Items = itemsByPurchase[purchase.ID]
	return &purchase, nil
}

func (s *Store) ListPurchases(ctx context.Context, limit int) ([]domain.Purchase, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, purchase_number, supplier_id, supplier_name, payment_status,
		       payment_type, subtotal, notes, created_by, created_at
		FROM purchases
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limitOrAll(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	purchases := make([]domain.Purchase, 0, 64)
	ids := make([]string, 0, 64)
	for rows.Next() {
		purchase, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		purchases = append(purchases, purchase)
		ids = append(ids, purchase.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return purchases, nil
	}

	itemsByPurchase, err := s.purchaseItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range purchases {
		purchases[i].Items = itemsByPurchase[purchases[i].ID]
	}
	return purchases, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPurchase(row rowScanner) (domain.Purchase, error) {
	var purchase domain.Purchase
	var supplierID sql.NullString
	err := row.Scan(
		&purchase.ID, &purchase.PurchaseNumber, &supplierID, &purchase.SupplierName, &purchase.PaymentStatus,
		&purchase.PaymentType, &purchase.Subtotal, &purchase.Notes, &purchase.CreatedBy, &purchase.CreatedAt,
	)
	purchase.SupplierID = supplierID.String
	return purchase, err
}

func (s *Store) purchaseItems(ctx context.Context, purchaseIDs []string) (map[string][]domain.PurchaseItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT purchase_id, line_id, item_code, item_name, qty, price, discount_percent, subtotal
		FROM purchase_items
		WHERE purchase_id = ANY($1)
		ORDER BY purchase_id, position
	`, purchaseIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byPurchase := make(map[string][]domain.PurchaseItem, len(purchaseIDs))
	for rows.Next() {
		var purchaseID string
		var item domain.PurchaseItem
		if err := rows.Scan(&purchaseID, &item.LineID, &item.ItemCode, &item.ItemName, &item.Qty, &item.Price, &item.DiscountPercent, &item.Subtotal); err != nil {
			return nil, err
		}
		byPurchase[purchaseID] = append(byPurchase[purchaseID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return byPurchase, nil
}

func (s *Store) InsertPurchaseReturn(ctx context.Context, ret domain.PurchaseReturn) (*domain.PurchaseReturn, error) {
	if ret.ID == "" {
		ret.ID = xid.New("ret")
	}
	if ret.CreatedAt.IsZero() {
		ret.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var purchaseID string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM purchases WHERE id = $1 FOR UPDATE
	`, ret.PurchaseID).Scan(&purchaseID)
	if err != nil {
		return nil, mapNoRows(err)
	}
	if len(ret.Items) == 0 || ret.ReturnNumber == "" {
		return nil, store.ErrInvalidTransaction
	}

	purchased, returned, err := returnableQty(ctx, tx, purchaseID)
	if err != nil {
		return nil, err
	}
	if err := store.CheckReturnable(purchased, returned, ret.Items); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO purchase_returns (id, return_number, purchase_id, reason, total, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, ret.ID, ret.ReturnNumber, ret.PurchaseID, ret.Reason, ret.Total, ret.CreatedBy, ret.CreatedAt)
	if err != nil {
		return nil, mapWriteError(err)
	}

	for _, item := range ret.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO purchase_return_items (return_id, line_id, item_code, item_name, qty, price)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, ret.ID, item.LineID, item.ItemCode, item.ItemName, item.Qty, item.Price)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &ret, nil
}

func (s *Store) ReturnNumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM purchase_returns WHERE return_number = $1)
	`, number).Scan(&exists)
	return exists, err
}

// returnableQty reads purchased and returned quantities per line inside tx.
func returnableQty(ctx context.Context, tx *sql.Tx, purchaseID string) (map[string]int, map[string]int, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT pi.line_id, pi.qty, COALESCE(SUM(ri.qty), 0)
		FROM purchase_items pi
		LEFT JOIN purchase_return_items ri ON ri.line_id = pi.line_id
		WHERE pi.purchase_id = $1
		GROUP BY pi.line_id, pi.qty
	`, purchaseID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	purchased := make(map[string]int)
	returned := make(map[string]int)
	for rows.Next() {
		var lineID string
		var bought, back int
		if err := rows.Scan(&lineID, &bought, &back); err != nil {
			return nil, nil, err
		}
		purchased[lineID] = bought
		returned[lineID] = back
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return purchased, returned, nil
}

func (s *Store) GetReturnedQtyByPurchase(ctx context.Context, purchaseID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ri.line_id, SUM(ri.qty)
		FROM purchase_return_items ri
		JOIN purchase_returns r ON r.id = ri.return_id
		WHERE r.purchase_id = $1
		GROUP BY ri.line_id
	`, purchaseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	returned := make(map[string]int)
	for rows.Next() {
		var lineID string
		var qty int
		if err := rows.Scan(&lineID, &qty); err != nil {
			return nil, err
		}
		returned[lineID] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return returned, nil
}
