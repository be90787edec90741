package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BalanceDepictionDescription is the fixed description of synthetic balance rows.
const BalanceDepictionDescription = "Balance Depiction"

// BankAccount is an account statements are imported for. Balance is the stored standing
// balance; it is null when none has been recorded.
type BankAccount struct {
	ID           int64
	Number       string
	CurrencyCode string
	Balance      decimal.NullDecimal
	BalanceDate  time.Time
	Active       bool
}

// HasStandingBalance reports whether the account contributes to opening balances and
// gets a balance depiction row.
func (a *BankAccount) HasStandingBalance() bool {
	return a.Active && a.Balance.Valid
}

// DepictionEntry returns the synthetic ledger row that shows the stored balance.
func (a *BankAccount) DepictionEntry() LedgerEntry {
	return LedgerEntry{
		ID:            SyntheticID{Kind: SourceBalance, LocalID: a.ID},
		Date:          a.BalanceDate,
		Description:   BalanceDepictionDescription,
		Amount:        a.Balance.Decimal,
		CurrencyCode:  a.CurrencyCode,
		BankAccountID: a.ID,
	}
}
