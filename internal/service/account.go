// Package service exposes the domain facades over the mutation
// engine: AccountService for balances, StockService for inventory.
// Each facade supplies its entity's invariant set and threshold rule;
// the engine owns locking, atomicity and attribution.
package service

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/punchamoorthee/ledgercore/internal/audit"
	"github.com/punchamoorthee/ledgercore/internal/domain"
	"github.com/punchamoorthee/ledgercore/internal/ledger"
	"github.com/punchamoorthee/ledgercore/internal/store"
	"github.com/punchamoorthee/ledgercore/internal/validate"
)

// HistoryPageSize is the default transaction history window.
const HistoryPageSize = 10

type AccountService struct {
	engine   *ledger.Engine
	store    store.Store
	recorder *audit.Recorder
}

func NewAccountService(engine *ledger.Engine, st store.Store, rec *audit.Recorder) *AccountService {
	return &AccountService{engine: engine, store: st, recorder: rec}
}

// Open provisions a new account. Provisioning sits outside the ledger
// engine: no history record is written for the opening balance.
func (s *AccountService) Open(ctx context.Context, number, pin, name, phone string, balance int64) (*domain.Account, error) {
	if number == "" || name == "" {
		return nil, domain.Rejectf("account number and name are required")
	}
	if err := validate.NewPIN(pin); err != nil {
		return nil, err
	}
	if balance < 0 {
		return nil, domain.Rejectf("opening balance cannot be negative")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	acc := &domain.Account{
		Number:     number,
		PINHash:    string(hash),
		Name:       name,
		Phone:      phone,
		Balance:    balance,
		DailyLimit: domain.DefaultDailyLimit,
	}
	err = s.store.WithinTx(ctx, func(tx store.Tx) error {
		return tx.InsertAccount(ctx, acc)
	})
	if err != nil {
		return nil, err
	}
	return acc, nil
}

func (s *AccountService) Deposit(ctx context.Context, number string, amount int64, actor string) (*domain.Account, error) {
	staged, err := s.engine.Apply(ctx, ledger.Mutation{
		LockKeys: []string{domain.AccountRef(number)},
		Actor:    actor,
		Action:   "Deposit",
		Details:  fmt.Sprintf("Account: %s, Amount: %d", number, amount),
		Stage: func(ctx context.Context, tx store.Tx) (*ledger.Staged, error) {
			acc, err := tx.GetAccount(ctx, number)
			if err != nil {
				return nil, err
			}
			if err := validate.Deposit(amount); err != nil {
				return nil, err
			}
			acc.Balance += amount
			if err := tx.PutAccount(ctx, acc); err != nil {
				return nil, err
			}
			return &ledger.Staged{
				Records: []domain.HistoryRecord{{
					EntityRef: domain.AccountRef(number),
					Op:        domain.OpDeposit,
					Magnitude: amount,
				}},
				Result: acc,
			}, nil
		},
	})
	if err != nil {
		return nil, err
	}
	return staged.Result.(*domain.Account), nil
}

func (s *AccountService) Withdraw(ctx context.Context, number string, amount int64, actor string) (*domain.Account, error) {
	staged, err := s.engine.Apply(ctx, ledger.Mutation{
		LockKeys: []string{domain.AccountRef(number)},
		Actor:    actor,
		Action:   "Withdrawal",
		Details:  fmt.Sprintf("Account: %s, Amount: %d", number, amount),
		Stage: func(ctx context.Context, tx store.Tx) (*ledger.Staged, error) {
			acc, err := tx.GetAccount(ctx, number)
			if err != nil {
				return nil, err
			}
			if err := validate.Withdraw(acc, amount); err != nil {
				return nil, err
			}
			acc.Balance -= amount
			acc.WithdrawnToday += amount
			if err := tx.PutAccount(ctx, acc); err != nil {
				return nil, err
			}
			return &ledger.Staged{
				Records: []domain.HistoryRecord{{
					EntityRef: domain.AccountRef(number),
					Op:        domain.OpWithdrawal,
					Magnitude: amount,
				}},
				Result: acc,
			}, nil
		},
	})
	if err != nil {
		return nil, err
	}
	return staged.Result.(*domain.Account), nil
}

// TransferResult returns both post-transfer balances.
type TransferResult struct {
	Source      *domain.Account `json:"source"`
	Destination *domain.Account `json:"destination"`
}

// Transfer debits the source and credits the destination as one atomic
// group under both entity locks. The debit leg does not count against
// the source's daily withdrawal cap; only direct withdrawals do.
func (s *AccountService) Transfer(ctx context.Context, from, to string, amount int64, actor string) (*TransferResult, error) {
	if from == to {
		return nil, domain.Rejectf("cannot transfer to self")
	}
	staged, err := s.engine.Apply(ctx, ledger.Mutation{
		LockKeys: []string{domain.AccountRef(from), domain.AccountRef(to)},
		Actor:    actor,
		Action:   "Transfer",
		Details:  fmt.Sprintf("From: %s, To: %s, Amount: %d", from, to, amount),
		Stage: func(ctx context.Context, tx store.Tx) (*ledger.Staged, error) {
			src, err := tx.GetAccount(ctx, from)
			if err != nil {
				return nil, err
			}
			dst, err := tx.GetAccount(ctx, to)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					return nil, domain.ErrTargetNotFound
				}
				return nil, err
			}
			if err := validate.TransferOut(src, amount); err != nil {
				return nil, err
			}
			src.Balance -= amount
			dst.Balance += amount
			if err := tx.PutAccount(ctx, src); err != nil {
				return nil, err
			}
			if err := tx.PutAccount(ctx, dst); err != nil {
				return nil, err
			}
			return &ledger.Staged{
				Records: []domain.HistoryRecord{
					{EntityRef: domain.AccountRef(from), Op: domain.OpTransferOut, Magnitude: amount},
					{EntityRef: domain.AccountRef(to), Op: domain.OpTransferIn, Magnitude: amount},
				},
				Result: &TransferResult{Source: src, Destination: dst},
			}, nil
		},
	})
	if err != nil {
		return nil, err
	}
	return staged.Result.(*TransferResult), nil
}

// ChangePIN verifies the current credential and swaps in the new one.
// Not a ledger mutation (no history record), but it runs under the
// account lock so it cannot race a balance change, and it is audited.
func (s *AccountService) ChangePIN(ctx context.Context, number, oldPIN, newPIN, actor string) error {
	return s.engine.Serialized(ctx, []string{domain.AccountRef(number)}, func(ctx context.Context) error {
		return s.store.WithinTx(ctx, func(tx store.Tx) error {
			acc, err := tx.GetAccount(ctx, number)
			if err != nil {
				return err
			}
			// bcrypt comparison is constant-time.
			if bcrypt.CompareHashAndPassword([]byte(acc.PINHash), []byte(oldPIN)) != nil {
				return domain.Rejectf("incorrect current PIN")
			}
			if err := validate.NewPIN(newPIN); err != nil {
				return err
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(newPIN), bcrypt.DefaultCost)
			if err != nil {
				return err
			}
			acc.PINHash = string(hash)
			if err := tx.PutAccount(ctx, acc); err != nil {
				return err
			}
			return s.recorder.Record(ctx, tx, actor, "PIN Change", fmt.Sprintf("Account: %s", number))
		})
	})
}

func (s *AccountService) Get(ctx context.Context, number string) (*domain.Account, error) {
	return s.store.GetAccount(ctx, number)
}

// History returns the account's most recent records, newest first.
func (s *AccountService) History(ctx context.Context, number string, limit int) ([]domain.HistoryRecord, error) {
	if _, err := s.store.GetAccount(ctx, number); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = HistoryPageSize
	}
	return s.store.QueryHistory(ctx, domain.AccountRef(number), limit)
}
