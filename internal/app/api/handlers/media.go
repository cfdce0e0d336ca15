package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lightboxhq/lightbox/internal/app/service/catalog"
	"github.com/lightboxhq/lightbox/internal/app/service/watermark"
	"github.com/lightboxhq/lightbox/pkg/response"
)

type WatermarkedImageResponse struct {
	URL string `json:"url"`
}

// @Summary      Watermarked image URL
// @Description  Resolves the watermarked rendition of an attachment, rendering and caching it on first request.
// @Tags         Media
// @Produce      json
// @Param        attachment_id  path   string  true   "attachment id"
// @Param        size           query  string  false  "size variant (e.g. thumbnail, medium, large)"
// @Success      200  {object}  response.APIResponse[handlers.WatermarkedImageResponse]
// @Router       /api/v1/media/{attachment_id}/watermarked [get]
func ApiWatermarkedImage(engine *watermark.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		url, err := engine.GetWatermarkedImageURL(c.Request.Context(), c.Param("attachment_id"), c.Query("size"))
		if err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeNotFound, nil))
				return
			}
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(&WatermarkedImageResponse{URL: url}))
	}
}

func RegisterMediaRoutes(r gin.IRouter, engine *watermark.Engine) {
	r.GET("/media/:attachment_id/watermarked", ApiWatermarkedImage(engine))
}
