package models

import (
	"fmt"
	"strings"
	"time"
)

type ExpenseCategory string

const (
	ExpenseCleaning    ExpenseCategory = "cleaning"
	ExpenseMaintenance ExpenseCategory = "maintenance"
	ExpenseUtilities   ExpenseCategory = "utilities"
	ExpenseTaxes       ExpenseCategory = "taxes"
	ExpenseOther       ExpenseCategory = "other"
)

func ParseExpenseCategory(raw string) (ExpenseCategory, error) {
	c := ExpenseCategory(strings.ToLower(strings.TrimSpace(raw)))
	switch c {
	case ExpenseCleaning, ExpenseMaintenance, ExpenseUtilities, ExpenseTaxes, ExpenseOther:
		return c, nil
	case "":
		return ExpenseOther, nil
	}
	return "", fmt.Errorf("unknown expense category %q", raw)
}

type Expense struct {
	ID          int64           `json:"id"`
	Description string          `json:"description"`
	Amount      int64           `json:"amount"` // centavos
	Date        time.Time       `json:"date"`
	Category    ExpenseCategory `json:"category"`
	BookingID   *int64          `json:"booking_id,omitempty"`
	// ApartmentID is resolved through BookingID when reading; zero when unattributed.
	ApartmentID int64     `json:"apartment_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
