package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DepositStatus represents where a deposit is in the confirmation pipeline
type DepositStatus string

const (
	DepositStatusPending   DepositStatus = "pending"
	DepositStatusConfirmed DepositStatus = "confirmed"
	DepositStatusCredited  DepositStatus = "credited"
)

// Deposit is an externally reported funding claim
type Deposit struct {
	ID                string          `db:"id"`
	AccountID         string          `db:"account_id"`
	Currency          string          `db:"currency"`
	Address           string          `db:"address"`
	ClaimedAmount     decimal.Decimal `db:"claimed_amount"`
	ExternalReference string          `db:"external_reference"`
	Confirmations     int             `db:"confirmations"`
	Status            DepositStatus   `db:"status"`
	CreatedAt         time.Time       `db:"created_at"`
	ConfirmedAt       *time.Time      `db:"confirmed_at"`
	CreditedAt        *time.Time      `db:"credited_at"`
}
