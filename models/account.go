package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AccountKind separates practice balances from real ones
type AccountKind string

const (
	AccountKindReal AccountKind = "real"
	AccountKindDemo AccountKind = "demo"
)

const demoAccountSuffix = ":demo"

// Account holds a single non-negative balance
type Account struct {
	ID        string          `db:"id"`
	Kind      AccountKind     `db:"kind"`
	Balance   decimal.Decimal `db:"balance"`
	CreatedAt time.Time       `db:"created_at"`
	UpdatedAt time.Time       `db:"updated_at"`
}

// DemoAccountID returns the id of the practice account paired with owner.
func DemoAccountID(owner string) string {
	return owner + demoAccountSuffix
}

// KindForAccountID infers the account kind from its id.
func KindForAccountID(id string) AccountKind {
	if strings.HasSuffix(id, demoAccountSuffix) {
		return AccountKindDemo
	}
	return AccountKindReal
}
