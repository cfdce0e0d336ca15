package quota

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/lightboxhq/lightbox/internal/models"
	"github.com/lightboxhq/lightbox/pkg/tool"
)

var ErrPlanNotFound = errors.New("quota: plan not found")

func (s *Service) CreatePlan(ctx context.Context, p *models.SubscriptionPlan) error {
	if p.ID == "" {
		p.ID = tool.GenerateUUIDV7()
	}
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("failed to create plan: %w", err)
	}
	return nil
}

// UpdatePlan saves descriptive edits. Existing quota rows are untouched: the
// grant denormalized its allowance at creation time.
func (s *Service) UpdatePlan(ctx context.Context, p *models.SubscriptionPlan) error {
	res := s.db.WithContext(ctx).Model(&models.SubscriptionPlan{}).
		Where("id = ?", p.ID).
		Updates(map[string]any{
			"name":                 p.Name,
			"quota":                p.Quota,
			"price_cents":          p.PriceCents,
			"billing_cycle":        p.BillingCycle,
			"is_unlimited":         p.IsUnlimited,
			"external_product_ref": p.ExternalProductRef,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update plan %s: %w", p.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrPlanNotFound
	}
	return nil
}

func (s *Service) DeletePlan(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.SubscriptionPlan{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete plan %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrPlanNotFound
	}
	return nil
}

func (s *Service) GetPlan(ctx context.Context, id string) (*models.SubscriptionPlan, error) {
	var p models.SubscriptionPlan
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, fmt.Errorf("failed to load plan %s: %w", id, err)
	}
	return &p, nil
}

func (s *Service) ListPlans(ctx context.Context) ([]*models.SubscriptionPlan, error) {
	var plans []*models.SubscriptionPlan
	if err := s.db.WithContext(ctx).Order("created_at ASC").Find(&plans).Error; err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	return plans, nil
}
