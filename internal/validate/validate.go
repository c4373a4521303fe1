// Package validate holds the pure invariant predicates the mutation
// engine runs before applying a change. Predicates never touch storage
// and never mutate their inputs; calling one twice against unchanged
// state yields the same verdict.
package validate

import (
	"fmt"

	"github.com/punchamoorthee/ledgercore/internal/domain"
)

// Deposit checks a credit to an account.
func Deposit(amount int64) error {
	if amount <= 0 {
		return domain.Rejectf("amount must be positive")
	}
	return nil
}

// Withdraw checks a debit against the daily cap and the balance. The
// cap is enforced only here; transfers and deposits do not count
// against it. The cap is checked first: a request that violates both
// rules is rejected with "limit exceeded".
func Withdraw(acc *domain.Account, amount int64) error {
	if amount <= 0 {
		return domain.Rejectf("amount must be positive")
	}
	if acc.WithdrawnToday+amount > acc.DailyLimit {
		return domain.Rejectf("limit exceeded")
	}
	if amount > acc.Balance {
		return domain.Rejectf("insufficient funds")
	}
	return nil
}

// TransferOut checks the debit leg of a transfer. Destination
// existence is the facade's concern.
func TransferOut(src *domain.Account, amount int64) error {
	if amount <= 0 {
		return domain.Rejectf("amount must be positive")
	}
	if amount > src.Balance {
		return domain.Rejectf("insufficient funds")
	}
	return nil
}

// ProductFields checks the static bounds shared by add and edit.
func ProductFields(f domain.ProductFields) error {
	if f.Name == "" {
		return domain.Rejectf("product name is required")
	}
	if f.Category == "" {
		return domain.Rejectf("category is required")
	}
	if f.Quantity < 0 || f.Quantity > domain.MaxQuantity {
		return domain.Rejectf(fmt.Sprintf("quantity must be between 0 and %d", domain.MaxQuantity))
	}
	if f.Price < 0 || f.Price > domain.MaxPrice {
		return domain.Rejectf(fmt.Sprintf("price must be between 0 and %d", domain.MaxPrice))
	}
	if f.LowThreshold < 0 || f.LowThreshold > domain.MaxThreshold {
		return domain.Rejectf(fmt.Sprintf("threshold must be between 0 and %d", domain.MaxThreshold))
	}
	return nil
}

// Sell checks a stock reduction against current quantity.
func Sell(p *domain.Product, quantity int) error {
	if quantity <= 0 {
		return domain.Rejectf("quantity must be positive")
	}
	if quantity > p.Quantity {
		return domain.Rejectf("insufficient stock")
	}
	return nil
}

// NewPIN checks a replacement credential.
func NewPIN(pin string) error {
	if len(pin) < domain.MinPINLength {
		return domain.Rejectf(fmt.Sprintf("new PIN must be at least %d digits", domain.MinPINLength))
	}
	return nil
}
