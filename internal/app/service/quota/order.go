package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/lightboxhq/lightbox/internal/models"
	"github.com/lightboxhq/lightbox/pkg/logctx"
	"github.com/lightboxhq/lightbox/pkg/tool"
	"github.com/lightboxhq/lightbox/pkg/types"
)

// CompletedOrder is what the commerce platform reports when an order finishes:
// the purchasing user plus the catalog refs of the line items.
type CompletedOrder struct {
	OrderID     string   `json:"order_id"`
	UserID      string   `json:"user_id"`
	ProductRefs []string `json:"product_refs"`
}

// OnOrderCompleted creates one quota row per line item that matches a
// subscription plan. Plan quota and the unlimited flag are denormalized into
// the row at grant time; later plan edits do not touch existing grants. The
// renewal date lands one billing period ahead.
func (s *Service) OnOrderCompleted(ctx context.Context, order CompletedOrder) ([]*models.UserQuota, error) {
	if order.UserID == "" {
		return nil, fmt.Errorf("order %s has no user", order.OrderID)
	}
	log := logctx.FromCtx(ctx, s.log)

	var created []*models.UserQuota
	for _, ref := range order.ProductRefs {
		var plan models.SubscriptionPlan
		err := s.db.WithContext(ctx).Where("external_product_ref = ?", ref).First(&plan).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue // not a subscription item
			}
			return created, fmt.Errorf("failed to match plan for ref %s: %w", ref, err)
		}

		renewal := time.Now().AddDate(0, plan.BillingCycle.Months(), 0)
		q := &models.UserQuota{
			ID:               tool.GenerateUUIDV7(),
			UserID:           order.UserID,
			PlanID:           plan.ID,
			QuotaTotal:       plan.Quota,
			IsUnlimited:      plan.IsUnlimited,
			Status:           types.QuotaStatusActive,
			QuotaRenewalDate: &renewal,
		}
		if err := s.db.WithContext(ctx).Create(q).Error; err != nil {
			return created, fmt.Errorf("failed to create quota for order %s: %w", order.OrderID, err)
		}
		log.Infow("quota granted",
			"order_id", order.OrderID, "user_id", order.UserID,
			"plan_id", plan.ID, "quota_total", q.QuotaTotal, "unlimited", q.IsUnlimited)
		created = append(created, q)
	}
	return created, nil
}
