package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lightboxhq/lightbox/internal/app/api/middleware"
	"github.com/lightboxhq/lightbox/internal/app/service/download"
	"github.com/lightboxhq/lightbox/internal/app/service/nonce"
	"github.com/lightboxhq/lightbox/internal/app/service/quota"
	cfgpkg "github.com/lightboxhq/lightbox/pkg/config"
	"github.com/lightboxhq/lightbox/pkg/logctx"
	"github.com/lightboxhq/lightbox/pkg/response"
)

// @Summary      Secure download
// @Description  Authorizes the request against product type and quota, then relays the file bytes.
// @Tags         Download
// @Param        product  query  string  true  "product id (download trigger)"
// @Param        token    query  string  true  "link integrity token"
// @Success      200  {file}  binary
// @Router       /download [get]
func SecureDownload(svc *download.Service, quotas *quota.Service, cfg *cfgpkg.Config, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// the trigger parameter gates the whole handler; without it this
		// route is a pass-through
		productID := c.Query("product")
		if productID == "" {
			c.Status(http.StatusNotFound)
			return
		}

		// opportunistic backstop for the daily expiration job
		quotas.MaybeExpireInline(c.Request.Context())

		userID := middleware.CurrentUserID(c)
		if userID == "" {
			c.Redirect(http.StatusFound, cfg.Auth.LoginURL)
			return
		}

		stream, err := svc.Serve(c.Request.Context(), download.Request{
			ProductID: productID,
			Token:     c.Query("token"),
			UserID:    userID,
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})
		if err != nil {
			denyDownload(c, err)
			return
		}
		defer stream.Body.Close()

		c.Header("Content-Description", "File Transfer")
		c.Header("Content-Type", stream.ContentType)
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", stream.Filename))
		c.Header("Content-Transfer-Encoding", "binary")
		c.Header("Cache-Control", "must-revalidate")
		if stream.ContentLength > 0 {
			c.Header("Content-Length", strconv.FormatInt(stream.ContentLength, 10))
		}
		c.Status(http.StatusOK)
		if _, err := io.Copy(c.Writer, stream.Body); err != nil {
			// client went away mid-stream; normal abort, nothing to retry
			logctx.FromGin(c, log).Debugw("download stream aborted", "product_id", productID, "error", err)
		}
	}
}

// denyDownload maps gateway sentinels to the user-visible denial taxonomy.
// Premium products are not a denial at all: the commerce platform owns them.
func denyDownload(c *gin.Context, err error) {
	switch {
	case errors.Is(err, download.ErrPremiumPassThrough):
		c.Status(http.StatusNoContent)
	case errors.Is(err, download.ErrLinkIntegrity):
		c.JSON(http.StatusForbidden, response.ErrorT[any](response.APIResponseCodeLinkIntegrity, nil))
	case errors.Is(err, download.ErrProductNotEligible):
		c.JSON(http.StatusForbidden, response.ErrorT[any](response.APIResponseCodeNotEligible, nil))
	case errors.Is(err, download.ErrNoActiveSubscription):
		c.JSON(http.StatusForbidden, response.ErrorT[any](response.APIResponseCodeNoSubscription, nil))
	case errors.Is(err, download.ErrQuotaExhausted):
		c.JSON(http.StatusForbidden, response.ErrorT[any](response.APIResponseCodeQuotaExhausted, nil))
	case errors.Is(err, download.ErrNotConfigured):
		c.JSON(http.StatusInternalServerError, response.ErrorT[any](response.APIResponseCodeNotConfigured, nil))
	case errors.Is(err, download.ErrUpstream):
		c.JSON(http.StatusBadGateway, response.ErrorT[any](response.APIResponseCodeUpstreamFailure, nil))
	default:
		c.JSON(http.StatusInternalServerError, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
	}
}

type downloadLinkResp struct {
	URL string `json:"url"`
}

// @Summary      Issue download link
// @Description  Returns the nonce-bearing download trigger URL for the current user.
// @Tags         Download
// @Produce      json
// @Param        id  path  string  true  "product id"
// @Success      200  {object}  response.APIResponse[downloadLinkResp]
// @Router       /api/v1/products/{id}/download-link [get]
func ApiIssueDownloadLink(nonces *nonce.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.CurrentUserID(c)
		productID := c.Param("id")
		token, err := nonces.Issue(nonce.DownloadAction(productID), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(downloadLinkResp{
			URL: fmt.Sprintf("/download?product=%s&token=%s", productID, token),
		}))
	}
}

func RegisterDownloadRoutes(r gin.IRouter, svc *download.Service, quotas *quota.Service, cfg *cfgpkg.Config, log *zap.SugaredLogger) {
	r.GET("/download", SecureDownload(svc, quotas, cfg, log))
}
