// Package account is the reference domain wired onto the dispatch core: a
// minimal ledger of accounts with create/deposit/close commands and a cacheable
// balance query.
package account

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an account.
type Status string

const (
	StatusActive Status = "active"
	StatusClosed Status = "closed"
)

// Account is one ledger account. Balance is held in minor units.
type Account struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	Currency  string    `json:"currency"`
	Balance   int64     `json:"balance"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SupportedCurrencies lists the ISO codes accounts may be denominated in.
var SupportedCurrencies = []string{"EUR", "USD", "GBP"}

// CurrencySupported reports whether the given ISO code is accepted.
func CurrencySupported(code string) bool {
	for _, c := range SupportedCurrencies {
		if c == code {
			return true
		}
	}
	return false
}

// NewID mints an account id.
func NewID() string {
	return "acc-" + uuid.NewString()
}
