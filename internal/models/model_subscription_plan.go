package models

import (
	"time"

	"github.com/lightboxhq/lightbox/pkg/types"
)

// SubscriptionPlan is a purchasable download allowance definition.
// Quota semantics are denormalized into UserQuota rows at grant time, so
// editing a plan only affects future grants; descriptive fields are free to
// change even while quota rows reference the plan.
type SubscriptionPlan struct {
	ID   string `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Name string `gorm:"column:name;type:varchar(255);not null" json:"name"`
	// Quota is the download allowance per billing cycle. Ignored when
	// IsUnlimited is set.
	Quota        int                `gorm:"column:quota;not null;default:0" json:"quota"`
	PriceCents   int64              `gorm:"column:price_cents;not null;default:0" json:"price_cents"`
	BillingCycle types.BillingCycle `gorm:"column:billing_cycle;type:varchar(16);not null" json:"billing_cycle"`
	IsUnlimited  bool               `gorm:"column:is_unlimited;not null;default:false" json:"is_unlimited"`
	// ExternalProductRef links the plan to the commerce catalog item whose
	// purchase grants it.
	ExternalProductRef string    `gorm:"column:external_product_ref;type:varchar(64);index" json:"external_product_ref"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (SubscriptionPlan) TableName() string {
	return "subscription_plan"
}
