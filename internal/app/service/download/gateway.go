// Package download is the authoritative decision point for whether a request
// may receive file bytes, and how. The pipeline is linear with early-exit
// denials: link integrity, product eligibility, entitlement, quota
// consumption, audit log, key resolution, signing, probe, stream. Quota is
// consumed before the stream is confirmed; "link issued" is the billable
// event and there is no refund path.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/lightboxhq/lightbox/internal/app/service/catalog"
	"github.com/lightboxhq/lightbox/internal/app/service/nonce"
	"github.com/lightboxhq/lightbox/internal/app/service/quota"
	"github.com/lightboxhq/lightbox/internal/models"
	"github.com/lightboxhq/lightbox/internal/platform/objectstore"
	cfgpkg "github.com/lightboxhq/lightbox/pkg/config"
	"github.com/lightboxhq/lightbox/pkg/logctx"
	"github.com/lightboxhq/lightbox/pkg/metrics"
	"github.com/lightboxhq/lightbox/pkg/tool"
	"github.com/lightboxhq/lightbox/pkg/types"
)

var (
	ErrLinkIntegrity = errors.New("download: invalid or expired link")
	// ErrPremiumPassThrough means the product is handled by the commerce
	// platform's own paid flow; the gateway produces no side effects at all.
	ErrPremiumPassThrough   = errors.New("download: premium product, deferred to commerce platform")
	ErrProductNotEligible   = errors.New("download: product not downloadable here")
	ErrNoActiveSubscription = errors.New("download: no active subscription")
	ErrQuotaExhausted       = errors.New("download: download limit reached")
	ErrNotConfigured        = errors.New("download: no object key configured")
	ErrUpstream             = errors.New("download: failed to access remote file")
)

// Request is one download attempt after authentication.
type Request struct {
	ProductID string
	Token     string
	UserID    string
	IP        string
	UserAgent string
}

// Stream is an authorized download ready to relay to the client.
type Stream struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
	Filename      string
}

type Service struct {
	db        *gorm.DB
	catalog   *catalog.Service
	quotas    *quota.Service
	nonces    *nonce.Service
	store     objectstore.Store
	resolvers []keyResolver
	http      *http.Client
	log       *zap.SugaredLogger
}

func NewService(
	db *gorm.DB,
	cat *catalog.Service,
	quotas *quota.Service,
	nonces *nonce.Service,
	store objectstore.Store,
	cfg *cfgpkg.Config,
	log *zap.SugaredLogger,
) *Service {
	s := &Service{
		db:      db,
		catalog: cat,
		quotas:  quotas,
		nonces:  nonces,
		store:   store,
		http:    &http.Client{Timeout: 60 * time.Second},
		log:     log,
	}
	s.resolvers = []keyResolver{
		productKeyResolver{},
		attachmentKeyResolver{db: db},
		storeProbeResolver{cat: cat, store: store, namespace: cfg.ObjectStore.Namespace},
	}
	return s
}

// Serve runs the full gateway pipeline and hands back an open byte stream.
// Every returned error is one of the package sentinels; the handler maps them
// to user-visible denials.
func (s *Service) Serve(ctx context.Context, req Request) (*Stream, error) {
	log := logctx.FromCtx(ctx, s.log)

	// Link integrity. A bad nonce is a hard reject, distinct from "log in".
	if err := s.nonces.Verify(req.Token, nonce.DownloadAction(req.ProductID), req.UserID); err != nil {
		metrics.DownloadsDenied.WithLabelValues("link_integrity").Inc()
		return nil, ErrLinkIntegrity
	}

	p, err := s.catalog.GetProduct(ctx, req.ProductID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			metrics.DownloadsDenied.WithLabelValues("invalid_product").Inc()
			return nil, ErrProductNotEligible
		}
		return nil, err
	}
	if !p.Downloadable || !p.Virtual {
		metrics.DownloadsDenied.WithLabelValues("invalid_product").Inc()
		return nil, ErrProductNotEligible
	}

	// Premium products belong to the commerce platform's paid flow: no log
	// row, no quota touch.
	if p.AccessType == types.AccessTypePremium {
		return nil, ErrPremiumPassThrough
	}
	if p.AccessType != types.AccessTypeFree && p.AccessType != types.AccessTypeSubscription {
		metrics.DownloadsDenied.WithLabelValues("not_eligible").Inc()
		return nil, ErrProductNotEligible
	}

	if p.AccessType == types.AccessTypeSubscription {
		if err := s.consumeQuota(ctx, req.UserID); err != nil {
			return nil, err
		}
	}

	// Audit log: unconditional once authorization and quota are settled.
	entry := &models.DownloadLog{
		ID:           tool.GenerateUUIDV7(),
		UserID:       req.UserID,
		ProductID:    p.ID,
		DownloadTime: time.Now(),
		DownloadType: p.AccessType,
		IPAddress:    req.IP,
		UserAgent:    req.UserAgent,
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, fmt.Errorf("failed to write download log: %w", err)
	}

	key, err := s.resolveKey(ctx, p)
	if err != nil {
		return nil, err
	}
	if key == "" {
		log.Errorw("no object key resolvable for product", "product_id", p.ID)
		metrics.DownloadsDenied.WithLabelValues("not_configured").Inc()
		return nil, ErrNotConfigured
	}

	signedURL, err := s.store.PresignGet(ctx, key)
	if err != nil {
		log.Errorw("failed to sign download URL", "product_id", p.ID, "key", key, "err", err)
		metrics.DownloadsDenied.WithLabelValues("not_configured").Inc()
		return nil, ErrNotConfigured
	}

	stream, err := s.open(ctx, signedURL, key)
	if err != nil {
		metrics.DownloadsDenied.WithLabelValues("upstream").Inc()
		return nil, err
	}
	metrics.DownloadsServed.Inc()
	log.Infow("download served",
		"user_id", req.UserID, "product_id", p.ID, "type", p.AccessType, "key", key)
	return stream, nil
}

func (s *Service) consumeQuota(ctx context.Context, userID string) error {
	q, err := s.quotas.GetActiveQuota(ctx, userID)
	if err != nil {
		return err
	}
	if q == nil {
		metrics.DownloadsDenied.WithLabelValues("no_subscription").Inc()
		return ErrNoActiveSubscription
	}
	if !s.quotas.HasRemaining(q) {
		metrics.DownloadsDenied.WithLabelValues("quota_exhausted").Inc()
		return ErrQuotaExhausted
	}
	res, err := s.quotas.ConsumeOne(ctx, q.ID)
	if err != nil {
		return err
	}
	switch res {
	case types.ConsumeOK:
		return nil
	case types.ConsumeExhausted:
		// lost the race for the last unit
		metrics.DownloadsDenied.WithLabelValues("quota_exhausted").Inc()
		return ErrQuotaExhausted
	default:
		metrics.DownloadsDenied.WithLabelValues("no_subscription").Inc()
		return ErrNoActiveSubscription
	}
}

// open probes the signed URL first to capture content-type/length and confirm
// reachability, then opens the readable stream.
func (s *Service) open(ctx context.Context, signedURL, key string) (*Stream, error) {
	head, err := http.NewRequestWithContext(ctx, http.MethodHead, signedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build probe request: %w", err)
	}
	probe, err := s.http.Do(head)
	if err != nil {
		return nil, ErrUpstream
	}
	probe.Body.Close()
	if probe.StatusCode < 200 || probe.StatusCode > 299 {
		return nil, ErrUpstream
	}

	get, err := http.NewRequestWithContext(ctx, http.MethodGet, signedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build fetch request: %w", err)
	}
	resp, err := s.http.Do(get)
	if err != nil {
		return nil, ErrUpstream
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, ErrUpstream
	}

	ct := probe.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/octet-stream"
	}
	return &Stream{
		Body:          resp.Body,
		ContentType:   ct,
		ContentLength: probe.ContentLength,
		Filename:      path.Base(key),
	}, nil
}
