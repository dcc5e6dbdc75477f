package enums

import "fmt"

// CreditBucket names which profile balance a ledger entry moves.
// Subscription credits reset each billing cycle; purchased credits never expire.
type CreditBucket string

const (
	CreditBucketSubscription CreditBucket = "subscription"
	CreditBucketPurchased    CreditBucket = "purchased"
)

var validCreditBuckets = []CreditBucket{
	CreditBucketSubscription,
	CreditBucketPurchased,
}

// IsValid reports whether the value is known.
func (b CreditBucket) IsValid() bool {
	for _, candidate := range validCreditBuckets {
		if candidate == b {
			return true
		}
	}
	return false
}

// ParseCreditBucket converts raw input into CreditBucket.
func ParseCreditBucket(value string) (CreditBucket, error) {
	for _, candidate := range validCreditBuckets {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid credit bucket %q", value)
}
