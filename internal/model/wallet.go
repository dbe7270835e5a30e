package model

import (
	"errors"
	"time"
)

// TransactionType enumerates the kinds of ledger entries a wallet accepts.
type TransactionType string

const (
	TxCredit              TransactionType = "CREDIT"
	TxDebit               TransactionType = "DEBIT"
	TxWithdrawal          TransactionType = "WITHDRAWAL"
	TxCommissionDeduction TransactionType = "COMMISSION_DEDUCTION"
)

// TransactionStatus enumerates ledger entry states.  COMPLETED, FAILED and
// CANCELLED are terminal; a terminal row is never edited, recovery flows
// append compensating rows instead.
type TransactionStatus string

const (
	TxPending   TransactionStatus = "PENDING"
	TxCompleted TransactionStatus = "COMPLETED"
	TxFailed    TransactionStatus = "FAILED"
	TxCancelled TransactionStatus = "CANCELLED"
)

// ErrUnknownTransactionType is returned when a ledger entry carries a type
// the balance arithmetic does not recognise.
var ErrUnknownTransactionType = errors.New("unknown wallet transaction type")

// BankDetails is the payout destination snapshot stored on a wallet and
// copied onto each withdrawal transaction at request time.
type BankDetails struct {
	BankName      string `json:"bank_name"`
	Branch        string `json:"branch,omitempty"`
	AccountName   string `json:"account_name"`
	AccountNumber string `json:"account_number"`
}

// Balance is the derived position of a wallet.  Available and Total equal
// the net effect of every ledger transaction applied so far; Pending
// tracks withdrawal amounts that have left Available but are still being
// processed externally.  Balances are never edited outside transaction
// application.
type Balance struct {
	AvailableCents int64 `json:"available_cents"`
	PendingCents   int64 `json:"pending_cents"`
	TotalCents     int64 `json:"total_cents"`
}

// Wallet holds a provider user's derived balance and aggregate counters.
// Wallets are created lazily on first need.
type Wallet struct {
	ID                    uint64      `json:"id"`
	UserID                uint64      `json:"user_id"`
	Balance               Balance     `json:"balance"`
	TotalEarningsCents    int64       `json:"total_earnings_cents"`
	TotalWithdrawalsCents int64       `json:"total_withdrawals_cents"`
	TotalCommissionsCents int64       `json:"total_commissions_cents"`
	Bank                  BankDetails `json:"bank"`
	MinWithdrawalCents    int64       `json:"min_withdrawal_cents"`
	AutoWithdrawCents     int64       `json:"auto_withdraw_cents,omitempty"`
	CreatedAt             time.Time   `json:"created_at"`
	UpdatedAt             time.Time   `json:"updated_at"`
}

// Commission records the platform share withheld from a credited amount.
type Commission struct {
	Rate        float64 `json:"rate"`
	AmountCents int64   `json:"amount_cents"`
}

// WithdrawalDetails carries the processing metadata of a withdrawal row.
type WithdrawalDetails struct {
	Bank        BankDetails `json:"bank"`
	ProcessedBy uint64      `json:"processed_by,omitempty"`
	ProcessedAt *time.Time  `json:"processed_at,omitempty"`
	Remarks     string      `json:"remarks,omitempty"`
}

// WalletTransaction is one append-only ledger entry.
//
// A (BookingID, Type=CREDIT) pair produces at most one completed row; the
// storage layer enforces this with a unique key, which is the idempotency
// anchor for settlement credits.  CompensatesID links a compensating
// credit back to the failed withdrawal it restores.
type WalletTransaction struct {
	ID            uint64             `json:"id"`
	WalletID      uint64             `json:"wallet_id"`
	Type          TransactionType    `json:"type"`
	Status        TransactionStatus  `json:"status"`
	AmountCents   int64              `json:"amount_cents"` // gross
	NetCents      int64              `json:"net_cents"`
	Commission    Commission         `json:"commission"`
	BookingID     uint64             `json:"booking_id,omitempty"`
	OrderID       string             `json:"order_id,omitempty"`
	Description   string             `json:"description,omitempty"`
	Withdrawal    *WithdrawalDetails `json:"withdrawal,omitempty"`
	CompensatesID uint64             `json:"compensates_id,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// ApplyTransaction mutates w by the deterministic balance delta of a
// single transaction at the moment it is added to the ledger.  This is the
// only arithmetic through which wallet balances change: a completed credit
// adds the net amount to available and total and accrues the earnings and
// commission counters; a debit or withdrawal subtracts the gross amount
// from available and total immediately, with in-flight withdrawals also
// tracked in the pending figure until SettleWithdrawal resolves them.
func ApplyTransaction(w *Wallet, tx *WalletTransaction) error {
	switch tx.Type {
	case TxCredit:
		if tx.Status != TxCompleted {
			return nil
		}
		w.Balance.AvailableCents += tx.NetCents
		w.Balance.TotalCents += tx.NetCents
		if tx.CompensatesID == 0 {
			// Compensating credits restore balance without counting as
			// new earnings.
			w.TotalEarningsCents += tx.AmountCents
			w.TotalCommissionsCents += tx.Commission.AmountCents
		}
	case TxDebit:
		w.Balance.AvailableCents -= tx.AmountCents
		w.Balance.TotalCents -= tx.AmountCents
	case TxWithdrawal:
		w.Balance.AvailableCents -= tx.AmountCents
		w.Balance.TotalCents -= tx.AmountCents
		if tx.Status == TxPending {
			w.Balance.PendingCents += tx.AmountCents
		} else if tx.Status == TxCompleted {
			w.TotalWithdrawalsCents += tx.AmountCents
		}
	case TxCommissionDeduction:
		w.Balance.AvailableCents -= tx.AmountCents
		w.Balance.TotalCents -= tx.AmountCents
		w.TotalCommissionsCents += tx.AmountCents
	default:
		return ErrUnknownTransactionType
	}
	return nil
}

// SettleWithdrawal resolves a previously applied pending withdrawal.  The
// amount already left available and total when the row was created, so
// settling only clears the pending figure and, on success, accrues the
// withdrawal counter.  A failed withdrawal is restored by appending a
// compensating credit through ApplyTransaction, never by editing rows.
func SettleWithdrawal(w *Wallet, amountCents int64, final TransactionStatus) {
	w.Balance.PendingCents -= amountCents
	if final == TxCompleted {
		w.TotalWithdrawalsCents += amountCents
	}
}

// CompensatingCredit builds the recovery entry for a failed withdrawal:
// a completed credit for the same amount, commission-free, linked to the
// rejected row.
func CompensatingCredit(failed *WalletTransaction) *WalletTransaction {
	return &WalletTransaction{
		WalletID:      failed.WalletID,
		Type:          TxCredit,
		Status:        TxCompleted,
		AmountCents:   failed.AmountCents,
		NetCents:      failed.AmountCents,
		Description:   "compensating credit for failed withdrawal",
		CompensatesID: failed.ID,
	}
}
