package app

import (
	"time"

	"go.uber.org/fx"

	"github.com/lightboxhq/lightbox/internal/app/api/server"
	"github.com/lightboxhq/lightbox/internal/app/service/catalog"
	"github.com/lightboxhq/lightbox/internal/app/service/download"
	"github.com/lightboxhq/lightbox/internal/app/service/migration"
	"github.com/lightboxhq/lightbox/internal/app/service/nonce"
	"github.com/lightboxhq/lightbox/internal/app/service/quota"
	"github.com/lightboxhq/lightbox/internal/app/service/scheduler"
	"github.com/lightboxhq/lightbox/internal/app/service/watermark"
	"github.com/lightboxhq/lightbox/internal/platform/db"
	"github.com/lightboxhq/lightbox/internal/platform/objectstore"
	"github.com/lightboxhq/lightbox/pkg/config"
	"github.com/lightboxhq/lightbox/pkg/logger"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

var Module = fx.Options(
	logger.Module,
	config.Module,
	db.Module,
	objectstore.Module,
	server.Module,
	catalog.Module,
	nonce.Module,
	quota.Module,
	watermark.Module,
	download.Module,
	migration.Module,
	scheduler.Module,
)
