package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/wavelane/studio-booking/internal/model"
)

// WalletRepo persists wallets and their append-only transaction log.
// Every balance mutation happens inside a transaction that first locks
// the wallet row (SELECT ... FOR UPDATE), giving single-writer-per-wallet
// discipline: a webhook retry and an administrative correction racing on
// the same wallet serialize at the row lock instead of losing updates.
type WalletRepo struct {
	db *sql.DB
}

// NewWalletRepo returns a WalletRepo bound to the database.
func NewWalletRepo(db *sql.DB) *WalletRepo { return &WalletRepo{db: db} }

const walletColumns = `id, user_id, available_cents, pending_cents, total_cents,
	total_earnings_cents, total_withdrawals_cents, total_commissions_cents,
	bank, min_withdrawal_cents, auto_withdraw_cents, created_at, updated_at`

func scanWallet(row interface{ Scan(...any) error }) (*model.Wallet, error) {
	var w model.Wallet
	var bank []byte
	err := row.Scan(&w.ID, &w.UserID,
		&w.Balance.AvailableCents, &w.Balance.PendingCents, &w.Balance.TotalCents,
		&w.TotalEarningsCents, &w.TotalWithdrawalsCents, &w.TotalCommissionsCents,
		&bank, &w.MinWithdrawalCents, &w.AutoWithdrawCents, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(bank) > 0 {
		if err := json.Unmarshal(bank, &w.Bank); err != nil {
			return nil, err
		}
	}
	return &w, nil
}

// GetOrCreateByUser loads a user's wallet, creating it lazily on first
// need with the configured minimum withdrawal amount.
func (r *WalletRepo) GetOrCreateByUser(ctx context.Context, userID uint64, minWithdrawalCents int64) (*model.Wallet, error) {
	const sel = `SELECT ` + walletColumns + ` FROM wallets WHERE user_id = ?`
	w, err := scanWallet(r.db.QueryRowContext(ctx, sel, userID))
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	const ins = `INSERT INTO wallets (user_id, min_withdrawal_cents) VALUES (?, ?)`
	if _, err := r.db.ExecContext(ctx, ins, userID, minWithdrawalCents); err != nil {
		// A concurrent request may have created it first.
		if !isDuplicateKey(err) {
			return nil, err
		}
	}
	return scanWallet(r.db.QueryRowContext(ctx, sel, userID))
}

func lockWallet(ctx context.Context, tx *sql.Tx, userID uint64) (*model.Wallet, error) {
	const q = `SELECT ` + walletColumns + ` FROM wallets WHERE user_id = ? FOR UPDATE`
	return scanWallet(tx.QueryRowContext(ctx, q, userID))
}

func writeWallet(ctx context.Context, tx *sql.Tx, w *model.Wallet) error {
	const q = `UPDATE wallets SET available_cents = ?, pending_cents = ?, total_cents = ?,
		total_earnings_cents = ?, total_withdrawals_cents = ?, total_commissions_cents = ?
		WHERE id = ?`
	_, err := tx.ExecContext(ctx, q,
		w.Balance.AvailableCents, w.Balance.PendingCents, w.Balance.TotalCents,
		w.TotalEarningsCents, w.TotalWithdrawalsCents, w.TotalCommissionsCents, w.ID)
	return err
}

func insertTransaction(ctx context.Context, tx *sql.Tx, t *model.WalletTransaction) error {
	var withdrawal any
	if t.Withdrawal != nil {
		b, err := json.Marshal(t.Withdrawal)
		if err != nil {
			return err
		}
		withdrawal = b
	}
	var bookingID any
	if t.BookingID != 0 {
		// NULL for rows without a booking so the unique (booking_id, type)
		// key only constrains settlement credits.
		bookingID = t.BookingID
	}
	const q = `INSERT INTO wallet_transactions
		(wallet_id, type, status, amount_cents, net_cents, commission_rate,
		 commission_cents, booking_id, order_id, description, withdrawal, compensates_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q, t.WalletID, t.Type, t.Status,
		t.AmountCents, t.NetCents, t.Commission.Rate, t.Commission.AmountCents,
		bookingID, t.OrderID, t.Description, withdrawal, t.CompensatesID)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = uint64(id)
	return nil
}

// AddTransaction appends a ledger entry to the user's wallet and applies
// its deterministic balance delta, all under the wallet row lock.  A
// duplicate (booking id, CREDIT) entry returns ErrDuplicateCredit and
// leaves both the ledger and the balance untouched; the idempotency
// guard for settlement credits.
func (r *WalletRepo) AddTransaction(ctx context.Context, userID uint64, t *model.WalletTransaction) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	w, err := lockWallet(ctx, tx, userID)
	if err != nil {
		return err
	}
	switch t.Type {
	case model.TxDebit, model.TxWithdrawal, model.TxCommissionDeduction:
		// Balances are never allowed to go negative.
		if t.AmountCents > w.Balance.AvailableCents {
			return ErrInsufficientBalance
		}
	}
	t.WalletID = w.ID
	if err := insertTransaction(ctx, tx, t); err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicateCredit
		}
		return err
	}
	if err := model.ApplyTransaction(w, t); err != nil {
		return err
	}
	if err := writeWallet(ctx, tx, w); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// OwnerOfWallet resolves the user id that owns a wallet.
func (r *WalletRepo) OwnerOfWallet(ctx context.Context, walletID uint64) (uint64, error) {
	const q = `SELECT user_id FROM wallets WHERE id = ?`
	var userID uint64
	err := r.db.QueryRowContext(ctx, q, walletID).Scan(&userID)
	return userID, err
}

const txColumns = `id, wallet_id, type, status, amount_cents, net_cents,
	commission_rate, commission_cents, booking_id, order_id, description,
	withdrawal, compensates_id, created_at, updated_at`

func scanTransaction(row interface{ Scan(...any) error }) (*model.WalletTransaction, error) {
	var t model.WalletTransaction
	var bookingID, compensates sql.NullInt64
	var orderID, description sql.NullString
	var withdrawal []byte
	err := row.Scan(&t.ID, &t.WalletID, &t.Type, &t.Status, &t.AmountCents, &t.NetCents,
		&t.Commission.Rate, &t.Commission.AmountCents, &bookingID, &orderID, &description,
		&withdrawal, &compensates, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.BookingID = uint64(bookingID.Int64)
	t.CompensatesID = uint64(compensates.Int64)
	t.OrderID = orderID.String
	t.Description = description.String
	if len(withdrawal) > 0 {
		t.Withdrawal = &model.WithdrawalDetails{}
		if err := json.Unmarshal(withdrawal, t.Withdrawal); err != nil {
			return nil, err
		}
	}
	return &t, nil
}

// TransactionFilter narrows ListTransactions results.
type TransactionFilter struct {
	Type   model.TransactionType
	Status model.TransactionStatus
	Limit  int
	Offset int
}

// ListTransactions returns a wallet's ledger entries newest first,
// optionally filtered by type and status, with limit/offset pagination.
func (r *WalletRepo) ListTransactions(ctx context.Context, userID uint64, f TransactionFilter) ([]model.WalletTransaction, error) {
	q := `SELECT ` + txColumns + ` FROM wallet_transactions t
		JOIN wallets w ON w.id = t.wallet_id WHERE w.user_id = ?`
	args := []any{userID}
	if f.Type != "" {
		q += ` AND t.type = ?`
		args = append(args, f.Type)
	}
	if f.Status != "" {
		q += ` AND t.status = ?`
		args = append(args, f.Status)
	}
	q += ` ORDER BY t.created_at DESC, t.id DESC`
	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	q += ` LIMIT ? OFFSET ?`
	args = append(args, limit, f.Offset)
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.WalletTransaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// SettleWithdrawal finalizes a pending withdrawal row as COMPLETED or
// FAILED under the wallet lock.  On failure it additionally appends the
// compensating credit restoring the balance; the original row is never
// edited beyond its status and processing metadata.  Returns the settled
// row and, when one was issued, the compensating credit.
func (r *WalletRepo) SettleWithdrawal(ctx context.Context, txID uint64, final model.TransactionStatus, adminID uint64, remarks string, at time.Time) (*model.WalletTransaction, *model.WalletTransaction, error) {
	if final != model.TxCompleted && final != model.TxFailed {
		return nil, nil, ErrNotProcessable
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	const sel = `SELECT ` + txColumns + ` FROM wallet_transactions WHERE id = ? FOR UPDATE`
	t, err := scanTransaction(tx.QueryRowContext(ctx, sel, txID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, ErrTransactionNotFound
		}
		return nil, nil, err
	}
	if t.Type != model.TxWithdrawal || t.Status != model.TxPending {
		return nil, nil, ErrNotProcessable
	}
	const lockW = `SELECT ` + walletColumns + ` FROM wallets WHERE id = ? FOR UPDATE`
	w, err := scanWallet(tx.QueryRowContext(ctx, lockW, t.WalletID))
	if err != nil {
		return nil, nil, err
	}
	if t.Withdrawal == nil {
		t.Withdrawal = &model.WithdrawalDetails{}
	}
	t.Withdrawal.ProcessedBy = adminID
	processedAt := at.UTC()
	t.Withdrawal.ProcessedAt = &processedAt
	t.Withdrawal.Remarks = remarks
	t.Status = final
	wd, err := json.Marshal(t.Withdrawal)
	if err != nil {
		return nil, nil, err
	}
	const upd = `UPDATE wallet_transactions SET status = ?, withdrawal = ? WHERE id = ?`
	if _, err := tx.ExecContext(ctx, upd, t.Status, wd, t.ID); err != nil {
		return nil, nil, err
	}
	model.SettleWithdrawal(w, t.AmountCents, final)
	var comp *model.WalletTransaction
	if final == model.TxFailed {
		comp = model.CompensatingCredit(t)
		if err := insertTransaction(ctx, tx, comp); err != nil {
			return nil, nil, err
		}
		if err := model.ApplyTransaction(w, comp); err != nil {
			return nil, nil, err
		}
	}
	if err := writeWallet(ctx, tx, w); err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	committed = true
	return t, comp, nil
}
