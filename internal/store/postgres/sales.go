package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"bengkelpos/backend/internal/domain"
	"bengkelpos/backend/internal/store"
	"bengkelpos/backend/internal/xid"
)

func (s *Store) InvoiceExists(ctx context.Context, invoiceNumber string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM transactions WHERE invoice_number = $1)
	`, invoiceNumber).Scan(&exists)
	return exists, err
}

func (s *Store) InsertTransactionOnce(ctx context.Context, trx domain.Transaction) (*domain.Transaction, error) {
	if trx.InvoiceNumber == "" || len(trx.Items) == 0 {
		return nil, store.ErrInvalidTransaction
	}
	if trx.ID == "" {
		trx.ID = xid.New("trx")
	}
	if trx.CreatedAt.IsZero() {
		trx.CreatedAt = time.Now().UTC()
	}
	mechanicsRaw, err := json.Marshal(trx.Mechanics)
	if err != nil {
		return nil, err
	}
	if trx.Mechanics == nil {
		mechanicsRaw = []byte("[]")
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	result, err := pgTx.ExecContext(ctx, `
		INSERT INTO transactions (
			id, invoice_number, customer_name, customer_phone, vehicle_plate, payment_method,
			subtotal, discount_total, other_fees, tax, total, service_revenue,
			status, mechanics, created_by, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		ON CONFLICT (invoice_number) DO NOTHING
	`, trx.ID, trx.InvoiceNumber, trx.CustomerName, trx.CustomerPhone, trx.VehiclePlate, trx.PaymentMethod,
		trx.Subtotal, trx.DiscountTotal, trx.OtherFees, trx.Tax, trx.Total, trx.ServiceRevenue,
		trx.Status, mechanicsRaw, trx.CreatedBy, trx.CreatedAt)
	if err != nil {
		return nil, mapWriteError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrDuplicateInvoice
	}

	for i := range trx.Items {
		item := &trx.Items[i]
		if item.LineID == "" {
			item.LineID = xid.NewLineID()
		}
		_, err = pgTx.ExecContext(ctx, `
			INSERT INTO transaction_items (
				line_id, transaction_id, position, item_code, name, type,
				price, qty, discount, subtotal
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`, item.LineID, trx.ID, i, item.ItemCode, item.Name, item.Type,
			item.Price, item.Qty, item.Discount, item.Subtotal)
		if err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateInvoice
		}
		return nil, err
	}
	return &trx, nil
}

const transactionColumns = `
	id, invoice_number, customer_name, customer_phone, vehicle_plate, payment_method,
	subtotal, discount_total, other_fees, tax, total, service_revenue,
	status, mechanics, created_by, created_at`

func scanTransaction(row rowScanner) (domain.Transaction, error) {
	var trx domain.Transaction
	var mechanicsRaw []byte
	err := row.Scan(
		&trx.ID, &trx.InvoiceNumber, &trx.CustomerName, &trx.CustomerPhone, &trx.VehiclePlate, &trx.PaymentMethod,
		&trx.Subtotal, &trx.DiscountTotal, &trx.OtherFees, &trx.Tax, &trx.Total, &trx.ServiceRevenue,
		&trx.Status, &mechanicsRaw, &trx.CreatedBy, &trx.CreatedAt,
	)
	if err != nil {
		return trx, err
	}
	if len(mechanicsRaw) > 0 {
		if err := json.Unmarshal(mechanicsRaw, &trx.Mechanics); err != nil {
			return trx, err
		}
	}
	return trx, nil
}

func (s *Store) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	trx, err := scanTransaction(s.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
	if err != nil {
		return nil, mapNoRows(err)
	}
	itemsByTx, err := s.transactionItems(ctx, []string{trx.ID})
	if err != nil {
		return nil, err
	}
	trx.Items = itemsByTx[trx.ID]
	return &trx, nil
}

func (s *Store) ListTransactions(ctx context.Context, limit int) ([]domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limitOrAll(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := make([]domain.Transaction, 0, 64)
	ids := make([]string, 0, 64)
	for rows.Next() {
		trx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, trx)
		ids = append(ids, trx.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return transactions, nil
	}

	itemsByTx, err := s.transactionItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range transactions {
		transactions[i].Items = itemsByTx[transactions[i].ID]
	}
	return transactions, nil
}

func (s *Store) transactionItems(ctx context.Context, transactionIDs []string) (map[string][]domain.TransactionLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT transaction_id, line_id, item_code, name, type, price, qty, discount, subtotal
		FROM transaction_items
		WHERE transaction_id = ANY($1)
		ORDER BY transaction_id, position
	`, transactionIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byTx := make(map[string][]domain.TransactionLine, len(transactionIDs))
	for rows.Next() {
		var transactionID string
		var line domain.TransactionLine
		if err := rows.Scan(&transactionID, &line.LineID, &line.ItemCode, &line.Name, &line.Type, &line.Price, &line.Qty, &line.Discount, &line.Subtotal); err != nil {
			return nil, err
		}
		byTx[transactionID] = append(byTx[transactionID], line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return byTx, nil
}

func (s *Store) CreateMechanicPerformance(ctx context.Context, records []domain.MechanicPerformance) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	for _, record := range records {
		if record.ID == "" {
			record.ID = xid.New("perf")
		}
		if record.CreatedAt.IsZero() {
			record.CreatedAt = now
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO mechanic_performance (
				id, transaction_id, invoice_number, mechanic_id, mechanic_name,
				total_revenue, shop_cut_percentage, shop_cut_amount, work_percentage,
				final_commission_amount, created_at
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		`, record.ID, record.TransactionID, record.InvoiceNumber, record.MechanicID, record.MechanicName,
			record.TotalRevenue, record.ShopCutPercentage, record.ShopCutAmount, record.WorkPercentage,
			record.FinalCommissionAmount, record.CreatedAt)
		if err != nil {
			return mapWriteError(err)
		}
	}
	return tx.Commit()
}

func (s *Store) ListMechanicPerformance(ctx context.Context, mechanicID string, limit int) ([]domain.MechanicPerformance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, transaction_id, invoice_number, mechanic_id, mechanic_name,
		       total_revenue, shop_cut_percentage, shop_cut_amount, work_percentage,
		       final_commission_amount, created_at
		FROM mechanic_performance
		WHERE ($1 = '' OR mechanic_id = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, mechanicID, limitOrAll(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.MechanicPerformance, 0, 32)
	for rows.Next() {
		var r domain.MechanicPerformance
		if err := rows.Scan(
			&r.ID, &r.TransactionID, &r.InvoiceNumber, &r.MechanicID, &r.MechanicName,
			&r.TotalRevenue, &r.ShopCutPercentage, &r.ShopCutAmount, &r.WorkPercentage,
			&r.FinalCommissionAmount, &r.CreatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) CreateHeldCart(ctx context.Context, held domain.HeldCart) (*domain.HeldCart, error) {
	if held.ID == "" {
		held.ID = xid.New("hold")
	}
	if held.HeldAt.IsZero() {
		held.HeldAt = time.Now().UTC()
	}
	if held.CashierUsername == "" || len(held.Checkout.Items) == 0 {
		return nil, store.ErrInvalidTransaction
	}

	checkoutRaw, err := json.Marshal(held.Checkout)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO held_carts (id, cashier_username, note, checkout, held_at)
		VALUES ($1, $2, $3, $4, $5)
	`, held.ID, held.CashierUsername, held.Note, checkoutRaw, held.HeldAt)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return &held, nil
}

func (s *Store) ListHeldCarts(ctx context.Context, cashier string, limit int) ([]domain.HeldCart, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, cashier_username, note, checkout, held_at
		FROM held_carts
		WHERE ($1 = '' OR cashier_username = $1)
		ORDER BY held_at DESC, id DESC
		LIMIT $2
	`, cashier, limitOrAll(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	helds := make([]domain.HeldCart, 0, 16)
	for rows.Next() {
		held, err := scanHeldCart(rows)
		if err != nil {
			return nil, err
		}
		helds = append(helds, held)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return helds, nil
}

// PopHeldCart deletes and returns the hold in one statement so two tills
// cannot resume the same cart.
func (s *Store) PopHeldCart(ctx context.Context, holdID string) (*domain.HeldCart, error) {
	held, err := scanHeldCart(s.db.QueryRowContext(ctx, `
		DELETE FROM held_carts
		WHERE id = $1
		RETURNING id, cashier_username, note, checkout, held_at
	`, holdID))
	if err != nil {
		return nil, mapNoRows(err)
	}
	return &held, nil
}

func scanHeldCart(row rowScanner) (domain.HeldCart, error) {
	var held domain.HeldCart
	var checkoutRaw []byte
	if err := row.Scan(&held.ID, &held.CashierUsername, &held.Note, &checkoutRaw, &held.HeldAt); err != nil {
		return held, err
	}
	if len(checkoutRaw) > 0 {
		if err := json.Unmarshal(checkoutRaw, &held.Checkout); err != nil {
			return held, err
		}
	}
	return held, nil
}
