package sync

import (
	"time"

	"github.com/stripe/stripe-go/v82"

	"github.com/pixelboost-ai/billing-service/pkg/enums"
)

func mapStripeStatus(status stripe.SubscriptionStatus) enums.SubscriptionStatus {
	switch status {
	case stripe.SubscriptionStatusActive:
		return enums.SubscriptionStatusActive
	case stripe.SubscriptionStatusTrialing:
		return enums.SubscriptionStatusTrialing
	case stripe.SubscriptionStatusPastDue:
		return enums.SubscriptionStatusPastDue
	case stripe.SubscriptionStatusCanceled:
		return enums.SubscriptionStatusCanceled
	case stripe.SubscriptionStatusIncomplete:
		return enums.SubscriptionStatusIncomplete
	case stripe.SubscriptionStatusIncompleteExpired:
		return enums.SubscriptionStatusIncompleteExpired
	case stripe.SubscriptionStatusUnpaid:
		return enums.SubscriptionStatusUnpaid
	case stripe.SubscriptionStatusPaused:
		// No local paused state; paused subscriptions lose entitlement.
		return enums.SubscriptionStatusPastDue
	default:
		return enums.SubscriptionStatusNone
	}
}

func priceIDFrom(sub *stripe.Subscription) string {
	if sub == nil || sub.Items == nil || len(sub.Items.Data) == 0 {
		return ""
	}
	if sub.Items.Data[0].Price != nil {
		return sub.Items.Data[0].Price.ID
	}
	return ""
}

// periodFrom reads the billing period off the first subscription item,
// where stripe-go v82 keeps it.
func periodFrom(sub *stripe.Subscription) (*time.Time, time.Time) {
	if sub == nil || sub.Items == nil || len(sub.Items.Data) == 0 {
		return nil, time.Time{}
	}
	item := sub.Items.Data[0]
	return toTimePtr(item.CurrentPeriodStart), toTime(item.CurrentPeriodEnd)
}

func toTime(ts int64) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0).UTC()
}

func toTimePtr(ts int64) *time.Time {
	if ts == 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}
