package handlers

import (
	"encoding/csv"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/lightboxhq/lightbox/internal/app/api/middleware"
	"github.com/lightboxhq/lightbox/internal/app/service/catalog"
	"github.com/lightboxhq/lightbox/internal/app/service/download"
	"github.com/lightboxhq/lightbox/internal/app/service/migration"
	"github.com/lightboxhq/lightbox/internal/app/service/quota"
	"github.com/lightboxhq/lightbox/internal/app/service/scheduler"
	"github.com/lightboxhq/lightbox/internal/app/service/watermark"
	"github.com/lightboxhq/lightbox/internal/models"
	"github.com/lightboxhq/lightbox/pkg/response"
	"github.com/lightboxhq/lightbox/pkg/types"
)

// ---- subscription plans ----

// @Summary      List Plans (Admin)
// @Tags         Admin
// @Produce      json
// @Success      200  {object}  response.APIResponse[[]models.SubscriptionPlan]
// @Router       /api/v1/admin/plans [get]
func ApiListPlans(quotas *quota.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		plans, err := quotas.ListPlans(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(plans))
	}
}

// @Summary      Create Plan (Admin)
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body models.SubscriptionPlan true "plan definition"
// @Success      200  {object}  response.APIResponse[models.SubscriptionPlan]
// @Router       /api/v1/admin/plans [post]
func ApiCreatePlan(quotas *quota.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var plan models.SubscriptionPlan
		if err := c.ShouldBindJSON(&plan); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		if plan.Name == "" || (!plan.IsUnlimited && plan.Quota <= 0) {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "plan needs a name and a positive quota (or the unlimited flag)"))
			return
		}
		if err := quotas.CreatePlan(c.Request.Context(), &plan); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(&plan))
	}
}

// @Summary      Update Plan (Admin)
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        id path string true "plan id"
// @Param        request body models.SubscriptionPlan true "plan definition"
// @Success      200  {object}  response.APIResponse[models.SubscriptionPlan]
// @Router       /api/v1/admin/plans/{id} [put]
func ApiUpdatePlan(quotas *quota.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var plan models.SubscriptionPlan
		if err := c.ShouldBindJSON(&plan); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		plan.ID = c.Param("id")
		if err := quotas.UpdatePlan(c.Request.Context(), &plan); err != nil {
			if errors.Is(err, quota.ErrPlanNotFound) {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeNotFound, nil))
				return
			}
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(&plan))
	}
}

// @Summary      Delete Plan (Admin)
// @Tags         Admin
// @Produce      json
// @Param        id path string true "plan id"
// @Success      200  {object}  response.APIResponse[any]
// @Router       /api/v1/admin/plans/{id} [delete]
func ApiDeletePlan(quotas *quota.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := quotas.DeletePlan(c.Request.Context(), c.Param("id")); err != nil {
			if errors.Is(err, quota.ErrPlanNotFound) {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeNotFound, nil))
				return
			}
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT[any](nil))
	}
}

// ---- user quotas ----

type ListQuotasRequest struct {
	UserID string            `json:"user_id"`
	Status types.QuotaStatus `json:"status"`
	From   int               `json:"from"`
	Size   int               `json:"size"`
}

type QuotaItem struct {
	*models.UserQuota
	Remaining int `json:"remaining"`
}

type ListQuotasResponse struct {
	Items []*QuotaItem `json:"items"`
	Total int64        `json:"total"`
}

// @Summary      List User Quotas (Admin)
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body ListQuotasRequest true "filter and pagination"
// @Success      200  {object}  response.APIResponse[handlers.ListQuotasResponse]
// @Router       /api/v1/admin/quotas/list [post]
func ApiListQuotas(quotas *quota.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ListQuotasRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		rows, total, err := quotas.ListQuotas(c.Request.Context(), quota.ListFilter{
			UserID: req.UserID, Status: req.Status, From: req.From, Size: req.Size,
		})
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		items := lo.Map(rows, func(q *models.UserQuota, _ int) *QuotaItem {
			return &QuotaItem{UserQuota: q, Remaining: q.Remaining()}
		})
		c.JSON(http.StatusOK, response.OKT(&ListQuotasResponse{Items: items, Total: total}))
	}
}

// @Summary      Update User Quota (Admin)
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        id path string true "quota id"
// @Param        request body quota.QuotaUpdate true "fields to change"
// @Success      200  {object}  response.APIResponse[any]
// @Router       /api/v1/admin/quotas/{id} [put]
func ApiUpdateQuota(quotas *quota.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req quota.QuotaUpdate
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		if err := quotas.UpdateQuota(c.Request.Context(), c.Param("id"), req); err != nil {
			if errors.Is(err, quota.ErrQuotaNotFound) {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeNotFound, nil))
				return
			}
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT[any](nil))
	}
}

type BulkExpireRequest struct {
	IDs []string `json:"ids"`
}

type AffectedResponse struct {
	Affected int64 `json:"affected"`
}

// @Summary      Bulk Expire Quotas (Admin)
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body BulkExpireRequest true "quota ids"
// @Success      200  {object}  response.APIResponse[handlers.AffectedResponse]
// @Router       /api/v1/admin/quotas/bulk_expire [post]
func ApiBulkExpireQuotas(quotas *quota.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req BulkExpireRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		if len(req.IDs) == 0 {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "no quota ids"))
			return
		}
		n, err := quotas.BulkExpire(c.Request.Context(), req.IDs)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(&AffectedResponse{Affected: n}))
	}
}

// @Summary      Reset Quota Usage (Admin)
// @Tags         Admin
// @Produce      json
// @Param        id path string true "quota id"
// @Success      200  {object}  response.APIResponse[any]
// @Router       /api/v1/admin/quotas/{id}/reset [post]
func ApiResetQuotaUsage(quotas *quota.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := quotas.ResetUsage(c.Request.Context(), c.Param("id")); err != nil {
			if errors.Is(err, quota.ErrQuotaNotFound) {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeNotFound, nil))
				return
			}
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT[any](nil))
	}
}

type CancelQuotaRequest struct {
	Reason string `json:"reason"`
}

// @Summary      Cancel Quota (Admin)
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        id path string true "quota id"
// @Param        request body CancelQuotaRequest true "cancellation reason"
// @Success      200  {object}  response.APIResponse[any]
// @Router       /api/v1/admin/quotas/{id}/cancel [post]
func ApiCancelQuota(quotas *quota.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CancelQuotaRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		err := quotas.Cancel(c.Request.Context(), c.Param("id"), req.Reason, middleware.CurrentUserID(c))
		if err != nil {
			if errors.Is(err, quota.ErrQuotaNotFound) {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeNotFound, nil))
				return
			}
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT[any](nil))
	}
}

// @Summary      Quota Statistics (Admin)
// @Tags         Admin
// @Produce      json
// @Success      200  {object}  response.APIResponse[quota.Stats]
// @Router       /api/v1/admin/quotas/stats [get]
func ApiQuotaStats(quotas *quota.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		st, err := quotas.GetStats(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(st))
	}
}

// @Summary      Expire Overdue Quotas (Admin)
// @Description  Runs the same sweep the daily job runs, on demand.
// @Tags         Admin
// @Produce      json
// @Success      200  {object}  response.APIResponse[handlers.AffectedResponse]
// @Router       /api/v1/admin/quotas/expire_overdue [post]
func ApiExpireOverdueQuotas(sched *scheduler.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := sched.RunExpiration(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(&AffectedResponse{Affected: n}))
	}
}

// ---- download logs ----

// @Summary      List Download Logs (Admin)
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body download.ScanLogsRequest true "filters, pagination, sorting"
// @Success      200  {object}  response.APIResponse[download.ScanLogsResponse]
// @Router       /api/v1/admin/download_logs/list [post]
func ApiListDownloadLogs(dl *download.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req download.ScanLogsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := dl.ScanLogs(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Export Download Logs as CSV (Admin)
// @Tags         Admin
// @Accept       json
// @Produce      text/csv
// @Param        request body download.ScanLogsRequest true "filters and sorting; pagination widened for export"
// @Success      200  {file}  csv
// @Router       /api/v1/admin/download_logs/export [post]
func ApiExportDownloadLogs(dl *download.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req download.ScanLogsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		if req.Size <= 0 {
			req.Size = 10000
		}
		res, err := dl.ScanLogs(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}

		c.Header("Content-Type", "text/csv")
		c.Header("Content-Disposition", `attachment; filename="download_logs.csv"`)
		w := csv.NewWriter(c.Writer)
		_ = w.Write([]string{"id", "user_id", "product_id", "download_time", "download_type", "ip_address", "user_agent"})
		for _, row := range res.Items {
			_ = w.Write([]string{
				row.ID,
				row.UserID,
				row.ProductID,
				row.DownloadTime.Format(time.RFC3339),
				string(row.DownloadType),
				row.IPAddress,
				row.UserAgent,
			})
		}
		w.Flush()
	}
}

// ---- watermark administration ----

// @Summary      Get Watermark Settings (Admin)
// @Tags         Admin
// @Produce      json
// @Success      200  {object}  response.APIResponse[watermark.Settings]
// @Router       /api/v1/admin/watermark/settings [get]
func ApiGetWatermarkSettings(engine *watermark.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		st := engine.Settings()
		c.JSON(http.StatusOK, response.OKT(&st))
	}
}

type UpdateWatermarkSettingsResponse struct {
	Settings watermark.Settings `json:"settings"`
	Purged   int                `json:"purged"`
}

// @Summary      Update Watermark Settings (Admin)
// @Description  Replaces the watermark settings and purges every cached rendition built with the old ones.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body watermark.Settings true "new settings"
// @Success      200  {object}  response.APIResponse[handlers.UpdateWatermarkSettingsResponse]
// @Router       /api/v1/admin/watermark/settings [put]
func ApiUpdateWatermarkSettings(engine *watermark.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var st watermark.Settings
		if err := c.ShouldBindJSON(&st); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		if st.Text == "" || st.Opacity < 0 || st.Opacity > 100 || st.SizePercent <= 0 {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "text required, opacity in 0..100, size_percent positive"))
			return
		}
		purged, err := engine.UpdateSettings(c.Request.Context(), st)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(&UpdateWatermarkSettingsResponse{Settings: st, Purged: purged}))
	}
}

type PurgedResponse struct {
	Purged int `json:"purged"`
}

// @Summary      Clear Watermark Cache (Admin)
// @Tags         Admin
// @Produce      json
// @Success      200  {object}  response.APIResponse[handlers.PurgedResponse]
// @Router       /api/v1/admin/watermark/cache/clear [post]
func ApiClearWatermarkCache(engine *watermark.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		purged, err := engine.ClearCache(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(&PurgedResponse{Purged: purged}))
	}
}

// @Summary      Watermark Cache Statistics (Admin)
// @Tags         Admin
// @Produce      json
// @Success      200  {object}  response.APIResponse[watermark.CacheStats]
// @Router       /api/v1/admin/watermark/cache/stats [get]
func ApiWatermarkCacheStats(engine *watermark.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		st, err := engine.Stats(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(st))
	}
}

// ---- commerce platform hooks ----

type SyncProductRequest struct {
	Product     models.Product      `json:"product"`
	Attachments []models.Attachment `json:"attachments"`
}

// @Summary      Sync Product (Admin)
// @Description  Upserts catalog rows from the commerce platform's product-save event, then warms watermarks and migrates attachments to object storage.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        id path string true "product id"
// @Param        request body SyncProductRequest true "product and attachment metadata"
// @Success      200  {object}  response.APIResponse[any]
// @Router       /api/v1/admin/products/{id}/sync [post]
func ApiSyncProduct(cat *catalog.Service, worker *migration.Worker) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SyncProductRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		req.Product.ID = c.Param("id")
		ctx := c.Request.Context()
		for i := range req.Attachments {
			if err := cat.UpsertAttachment(ctx, &req.Attachments[i]); err != nil {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
				return
			}
		}
		if err := cat.UpsertProduct(ctx, &req.Product); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		if err := worker.OnProductSaved(ctx, req.Product.ID); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT[any](nil))
	}
}

// @Summary      Order Completed (Admin)
// @Description  Grants quota rows for every line item matching a subscription plan.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body quota.CompletedOrder true "completed order"
// @Success      200  {object}  response.APIResponse[[]models.UserQuota]
// @Router       /api/v1/admin/orders/completed [post]
func ApiOrderCompleted(quotas *quota.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var order quota.CompletedOrder
		if err := c.ShouldBindJSON(&order); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		if order.UserID == "" {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "missing user_id"))
			return
		}
		granted, err := quotas.OnOrderCompleted(c.Request.Context(), order)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(granted))
	}
}

func RegisterAdminRoutes(
	r gin.IRouter,
	quotas *quota.Service,
	dl *download.Service,
	engine *watermark.Engine,
	cat *catalog.Service,
	worker *migration.Worker,
	sched *scheduler.Manager,
) {
	r.GET("/plans", ApiListPlans(quotas))
	r.POST("/plans", ApiCreatePlan(quotas))
	r.PUT("/plans/:id", ApiUpdatePlan(quotas))
	r.DELETE("/plans/:id", ApiDeletePlan(quotas))

	r.POST("/quotas/list", ApiListQuotas(quotas))
	r.GET("/quotas/stats", ApiQuotaStats(quotas))
	r.POST("/quotas/bulk_expire", ApiBulkExpireQuotas(quotas))
	r.POST("/quotas/expire_overdue", ApiExpireOverdueQuotas(sched))
	r.PUT("/quotas/:id", ApiUpdateQuota(quotas))
	r.POST("/quotas/:id/reset", ApiResetQuotaUsage(quotas))
	r.POST("/quotas/:id/cancel", ApiCancelQuota(quotas))

	r.POST("/download_logs/list", ApiListDownloadLogs(dl))
	r.POST("/download_logs/export", ApiExportDownloadLogs(dl))

	r.GET("/watermark/settings", ApiGetWatermarkSettings(engine))
	r.PUT("/watermark/settings", ApiUpdateWatermarkSettings(engine))
	r.POST("/watermark/cache/clear", ApiClearWatermarkCache(engine))
	r.GET("/watermark/cache/stats", ApiWatermarkCacheStats(engine))

	r.POST("/products/:id/sync", ApiSyncProduct(cat, worker))
	r.POST("/orders/completed", ApiOrderCompleted(quotas))
}
