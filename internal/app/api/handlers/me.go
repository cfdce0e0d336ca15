package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lightboxhq/lightbox/internal/app/api/middleware"
	"github.com/lightboxhq/lightbox/internal/app/service/nonce"
	"github.com/lightboxhq/lightbox/internal/app/service/quota"
	"github.com/lightboxhq/lightbox/pkg/response"
)

type MySubscriptionResponse struct {
	Active      bool       `json:"active"`
	PlanID      string     `json:"plan_id,omitempty"`
	QuotaTotal  int        `json:"quota_total,omitempty"`
	QuotaUsed   int        `json:"quota_used,omitempty"`
	IsUnlimited bool       `json:"is_unlimited,omitempty"`
	// Remaining is -1 for unlimited grants.
	Remaining    int        `json:"remaining"`
	RenewalDate  *time.Time `json:"renewal_date,omitempty"`
	LastDownload *time.Time `json:"last_download,omitempty"`
}

// @Summary      My subscription
// @Description  Returns the caller's authoritative quota grant, if any.
// @Tags         Me
// @Produce      json
// @Success      200  {object}  response.APIResponse[handlers.MySubscriptionResponse]
// @Router       /api/v1/me/subscription [get]
func ApiMySubscription(quotas *quota.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		q, err := quotas.GetActiveQuota(c.Request.Context(), middleware.CurrentUserID(c))
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		if q == nil {
			c.JSON(http.StatusOK, response.OKT(&MySubscriptionResponse{Active: false}))
			return
		}
		c.JSON(http.StatusOK, response.OKT(&MySubscriptionResponse{
			Active:       true,
			PlanID:       q.PlanID,
			QuotaTotal:   q.QuotaTotal,
			QuotaUsed:    q.QuotaUsed,
			IsUnlimited:  q.IsUnlimited,
			Remaining:    q.Remaining(),
			RenewalDate:  q.QuotaRenewalDate,
			LastDownload: q.LastDownload,
		}))
	}
}

func RegisterMeRoutes(r gin.IRouter, quotas *quota.Service, nonces *nonce.Service) {
	r.GET("/me/subscription", ApiMySubscription(quotas))
	r.GET("/products/:id/download-link", ApiIssueDownloadLink(nonces))
}
