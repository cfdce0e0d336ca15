package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/lightboxhq/lightbox/docs"
	"github.com/lightboxhq/lightbox/internal/app/api/handlers"
	mw "github.com/lightboxhq/lightbox/internal/app/api/middleware"
	"github.com/lightboxhq/lightbox/internal/app/service/catalog"
	"github.com/lightboxhq/lightbox/internal/app/service/download"
	"github.com/lightboxhq/lightbox/internal/app/service/migration"
	"github.com/lightboxhq/lightbox/internal/app/service/nonce"
	"github.com/lightboxhq/lightbox/internal/app/service/quota"
	"github.com/lightboxhq/lightbox/internal/app/service/scheduler"
	"github.com/lightboxhq/lightbox/internal/app/service/watermark"
	cfgpkg "github.com/lightboxhq/lightbox/pkg/config"
	metrics "github.com/lightboxhq/lightbox/pkg/metrics"
)

func newEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	// Add request tracing middleware only; request logger & access log are attached per group in registerRoutes
	r.Use(mw.TraceMiddleware())
	return r
}

func registerRoutes(
	r *gin.Engine,
	log *zap.SugaredLogger,
	cfg *cfgpkg.Config,
	dl *download.Service,
	quotas *quota.Service,
	nonces *nonce.Service,
	engine *watermark.Engine,
	cat *catalog.Service,
	worker *migration.Worker,
	sched *scheduler.Manager,
) {
	// Prometheus metrics
	if cfg != nil && cfg.MetricsAddr != "" {
		p := metrics.NewPrometheus(metrics.NewPrometheusOptions{
			ReqCntURLLabelMappingFn: func(c *gin.Context) string {
				if fp := c.FullPath(); fp != "" {
					return fp
				}
				return c.Request.URL.Path
			},
			Logger: log,
		})
		p.SetListenAddress(cfg.MetricsAddr)
		p.Use(r)

		log.Infow("metrics started", "addr", cfg.MetricsAddr)
	}

	// Public group: request logger + access log
	pub := r.Group("/")
	pub.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware())
	handlers.RegisterHealthRoutes(pub)
	// Swagger UI
	docs.SwaggerInfo.BasePath = "/"
	pub.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// The download gateway identifies the user itself: anonymous requests are
	// redirected to login rather than rejected, so it gets AuthMiddleware but
	// not RequireUser.
	gw := r.Group("/")
	gw.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware(), mw.AuthMiddleware(cfg))
	handlers.RegisterDownloadRoutes(gw, dl, quotas, cfg, log)

	// Authenticated user APIs
	apiV1 := r.Group("/api/v1")
	apiV1.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware(), mw.AuthMiddleware(cfg))
	handlers.RegisterMediaRoutes(apiV1, engine)

	user := apiV1.Group("/")
	user.Use(mw.RequireUser())
	handlers.RegisterMeRoutes(user, quotas, nonces)

	// Admin APIs
	admin := apiV1.Group("/admin")
	admin.Use(mw.RequireUser(), mw.RequireAdmin())
	handlers.RegisterAdminRoutes(admin, quotas, dl, engine, cat, worker, sched)
}

func runServer(lc fx.Lifecycle, log *zap.SugaredLogger, cfg *cfgpkg.Config, r *gin.Engine) {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting HTTP server", "addr", addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Errorf("server error: %v", err)
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("stopping HTTP server")
			shutdownCtx, cancel := context.WithTimeout(ctx, 120*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

var Module = fx.Options(
	fx.Provide(newEngine),
	fx.Invoke(registerRoutes),
	fx.Invoke(runServer),
)
