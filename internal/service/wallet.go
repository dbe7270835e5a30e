package service

import (
	"context"
	"fmt"
	"time"

	"github.com/wavelane/studio-booking/internal/model"
	"github.com/wavelane/studio-booking/internal/repository"
)

type walletLedger interface {
	GetOrCreateByUser(ctx context.Context, userID uint64, minWithdrawalCents int64) (*model.Wallet, error)
	AddTransaction(ctx context.Context, userID uint64, t *model.WalletTransaction) error
	ListTransactions(ctx context.Context, userID uint64, f repository.TransactionFilter) ([]model.WalletTransaction, error)
	SettleWithdrawal(ctx context.Context, txID uint64, final model.TransactionStatus, adminID uint64, remarks string, at time.Time) (*model.WalletTransaction, *model.WalletTransaction, error)
	OwnerOfWallet(ctx context.Context, walletID uint64) (uint64, error)
}

// Wallets exposes the wallet API operations: balance lookup, ledger
// listing, withdrawal requests and their administrative processing.
type Wallets struct {
	store              walletLedger
	notifier           Notifier
	minWithdrawalCents int64
	clock              Clock
}

// NewWallets wires the wallet service.  minWithdrawalCents is the default
// floor applied to lazily created wallets and enforced on requests.
func NewWallets(store walletLedger, notifier Notifier, minWithdrawalCents int64, clock Clock) *Wallets {
	if clock == nil {
		clock = systemClock{}
	}
	return &Wallets{store: store, notifier: notifier, minWithdrawalCents: minWithdrawalCents, clock: clock}
}

// Get returns the user's wallet, creating it lazily.
func (s *Wallets) Get(ctx context.Context, userID uint64) (*model.Wallet, error) {
	return s.store.GetOrCreateByUser(ctx, userID, s.minWithdrawalCents)
}

// ListTransactions pages through the user's ledger.
func (s *Wallets) ListTransactions(ctx context.Context, userID uint64, f repository.TransactionFilter) ([]model.WalletTransaction, error) {
	return s.store.ListTransactions(ctx, userID, f)
}

// RequestWithdrawal validates and records a withdrawal.  The amount must
// meet the configured minimum and fit within the available balance; the
// row is created PENDING with the bank details snapshotted, and the
// amount leaves the available balance immediately.
func (s *Wallets) RequestWithdrawal(ctx context.Context, userID uint64, amountCents int64, bank model.BankDetails) (*model.WalletTransaction, error) {
	if amountCents <= 0 {
		return nil, fmt.Errorf("%w: withdrawal amount must be positive", ErrValidation)
	}
	w, err := s.store.GetOrCreateByUser(ctx, userID, s.minWithdrawalCents)
	if err != nil {
		return nil, err
	}
	minAmount := w.MinWithdrawalCents
	if minAmount == 0 {
		minAmount = s.minWithdrawalCents
	}
	if amountCents < minAmount {
		return nil, repository.ErrBelowMinimum
	}
	if bank.AccountNumber == "" {
		bank = w.Bank
	}
	if bank.AccountNumber == "" {
		return nil, fmt.Errorf("%w: bank details required", ErrValidation)
	}
	t := &model.WalletTransaction{
		Type:        model.TxWithdrawal,
		Status:      model.TxPending,
		AmountCents: amountCents,
		NetCents:    amountCents,
		Description: "withdrawal request",
		Withdrawal:  &model.WithdrawalDetails{Bank: bank},
	}
	// AddTransaction re-checks the available balance under the wallet
	// row lock, so a concurrent credit or debit cannot invalidate the
	// admission decision.
	if err := s.store.AddTransaction(ctx, userID, t); err != nil {
		return nil, err
	}
	return t, nil
}

// ProcessWithdrawal is the administrative settlement of a pending
// withdrawal.  approve=false marks it FAILED and issues the compensating
// credit restoring the balance, the recovery path for a failed external
// payout, not a reversal of the original row.
func (s *Wallets) ProcessWithdrawal(ctx context.Context, txID uint64, approve bool, adminID uint64, remarks string) (*model.WalletTransaction, error) {
	final := model.TxCompleted
	if !approve {
		final = model.TxFailed
	}
	settled, comp, err := s.store.SettleWithdrawal(ctx, txID, final, adminID, remarks, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		owner, werr := s.store.OwnerOfWallet(ctx, settled.WalletID)
		if werr == nil {
			msg := fmt.Sprintf("Withdrawal #%d processed: %s", settled.ID, settled.Status)
			if comp != nil {
				msg = fmt.Sprintf("Withdrawal #%d failed; amount returned to your wallet", settled.ID)
			}
			s.notifier.Notify(ctx, owner, "withdrawal_processed", "Withdrawal processed", msg,
				map[string]any{"transaction_id": settled.ID, "status": settled.Status, "remarks": remarks})
		}
	}
	return settled, nil
}
