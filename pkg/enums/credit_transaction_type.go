package enums

import "fmt"

// CreditTransactionType maps to the credit_transaction_type_enum enum in Postgres.
type CreditTransactionType string

const (
	CreditTransactionTypePurchase           CreditTransactionType = "purchase"
	CreditTransactionTypeSubscription       CreditTransactionType = "subscription"
	CreditTransactionTypeUsage              CreditTransactionType = "usage"
	CreditTransactionTypeRefund             CreditTransactionType = "refund"
	CreditTransactionTypeBonus              CreditTransactionType = "bonus"
	CreditTransactionTypeAdminAdjustment    CreditTransactionType = "admin_adjustment"
	CreditTransactionTypeRolloverAdjustment CreditTransactionType = "rollover_adjustment"
)

var validCreditTransactionTypes = []CreditTransactionType{
	CreditTransactionTypePurchase,
	CreditTransactionTypeSubscription,
	CreditTransactionTypeUsage,
	CreditTransactionTypeRefund,
	CreditTransactionTypeBonus,
	CreditTransactionTypeAdminAdjustment,
	CreditTransactionTypeRolloverAdjustment,
}

// IsValid reports whether the value matches the canonical transaction type enum.
func (t CreditTransactionType) IsValid() bool {
	for _, candidate := range validCreditTransactionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseCreditTransactionType converts raw input into CreditTransactionType.
func ParseCreditTransactionType(value string) (CreditTransactionType, error) {
	for _, candidate := range validCreditTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid credit transaction type %q", value)
}
