package download

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/lightboxhq/lightbox/internal/app/service/catalog"
	"github.com/lightboxhq/lightbox/internal/app/service/nonce"
	"github.com/lightboxhq/lightbox/internal/app/service/quota"
	"github.com/lightboxhq/lightbox/internal/models"
	cfgpkg "github.com/lightboxhq/lightbox/pkg/config"
	"github.com/lightboxhq/lightbox/pkg/tool"
	"github.com/lightboxhq/lightbox/pkg/types"
)

// fakeStore serves every key from an in-memory map through a real HTTP server,
// so the gateway's probe-then-stream path is exercised end to end.
type fakeStore struct {
	objects map[string][]byte
	server  *httptest.Server
}

func newFakeStore(t *testing.T) *fakeStore {
	t.Helper()
	fs := &fakeStore{objects: map[string][]byte{}}
	fs.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := fs.objects[r.URL.Path[1:]]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/zip")
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", "0")
		}
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			_, _ = w.Write(body)
		}
	}))
	t.Cleanup(fs.server.Close)
	return fs
}

func (fs *fakeStore) PresignGet(_ context.Context, key string) (string, error) {
	return fs.server.URL + "/" + key, nil
}

func (fs *fakeStore) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	fs.objects[key] = b
	return nil
}

func (fs *fakeStore) Exists(_ context.Context, key string) (bool, error) {
	_, ok := fs.objects[key]
	return ok, nil
}

type gatewayFixture struct {
	svc    *Service
	db     *gorm.DB
	store  *fakeStore
	nonces *nonce.Service
	quotas *quota.Service
	cfg    *cfgpkg.Config
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&models.Product{}, &models.Attachment{}, &models.ObjectStorageKey{},
		&models.SubscriptionPlan{}, &models.UserQuota{}, &models.DownloadLog{},
	))

	cfg := &cfgpkg.Config{}
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Auth.NonceTTL = 0
	cfg.ObjectStore.Namespace = "lightbox"
	cfg.Media.BaseDir = t.TempDir()
	cfg.Media.BaseURL = "/media"

	log := zap.NewNop().Sugar()
	store := newFakeStore(t)
	cat := catalog.NewService(db, cfg, log)
	quotas := quota.NewService(db, cfg, log)
	nonces := nonce.NewService(cfg)
	svc := NewService(db, cat, quotas, nonces, store, cfg, log)
	return &gatewayFixture{svc: svc, db: db, store: store, nonces: nonces, quotas: quotas, cfg: cfg}
}

func (f *gatewayFixture) seedProduct(t *testing.T, p *models.Product) *models.Product {
	t.Helper()
	if p.ID == "" {
		p.ID = tool.GenerateUUIDV7()
	}
	p.Downloadable = true
	p.Virtual = true
	require.NoError(t, f.db.Create(p).Error)
	return p
}

func (f *gatewayFixture) token(t *testing.T, productID, userID string) string {
	t.Helper()
	tok, err := f.nonces.Issue(nonce.DownloadAction(productID), userID)
	require.NoError(t, err)
	return tok
}

func (f *gatewayFixture) logCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.DownloadLog{}).Count(&n).Error)
	return n
}

func TestServeFreeProduct(t *testing.T) {
	ctx := context.Background()
	f := newGatewayFixture(t)

	p := f.seedProduct(t, &models.Product{
		AccessType: types.AccessTypeFree,
		ObjectKey:  "lightbox/files/pack.zip",
	})
	f.store.objects["lightbox/files/pack.zip"] = []byte("zip-bytes")

	stream, err := f.svc.Serve(ctx, Request{
		ProductID: p.ID,
		Token:     f.token(t, p.ID, "u1"),
		UserID:    "u1",
		IP:        "203.0.113.9",
		UserAgent: "test-agent",
	})
	require.NoError(t, err)
	defer stream.Body.Close()

	body, err := io.ReadAll(stream.Body)
	require.NoError(t, err)
	assert.Equal(t, "zip-bytes", string(body))
	assert.Equal(t, "application/zip", stream.ContentType)
	assert.Equal(t, "pack.zip", stream.Filename)

	// exactly one audit row with the request metadata
	var logs []models.DownloadLog
	require.NoError(t, f.db.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, "u1", logs[0].UserID)
	assert.Equal(t, p.ID, logs[0].ProductID)
	assert.Equal(t, types.AccessTypeFree, logs[0].DownloadType)
	assert.Equal(t, "203.0.113.9", logs[0].IPAddress)
	assert.Equal(t, "test-agent", logs[0].UserAgent)
}

func TestServeSubscriptionProduct(t *testing.T) {
	ctx := context.Background()

	t.Run("consumes one unit", func(t *testing.T) {
		f := newGatewayFixture(t)
		p := f.seedProduct(t, &models.Product{
			AccessType: types.AccessTypeSubscription,
			ObjectKey:  "lightbox/files/pack.zip",
		})
		f.store.objects["lightbox/files/pack.zip"] = []byte("zip-bytes")
		q := &models.UserQuota{
			ID: tool.GenerateUUIDV7(), UserID: "u1", QuotaTotal: 3, Status: types.QuotaStatusActive,
		}
		require.NoError(t, f.db.Create(q).Error)

		stream, err := f.svc.Serve(ctx, Request{ProductID: p.ID, Token: f.token(t, p.ID, "u1"), UserID: "u1"})
		require.NoError(t, err)
		stream.Body.Close()

		var got models.UserQuota
		require.NoError(t, f.db.First(&got, "id = ?", q.ID).Error)
		assert.Equal(t, 1, got.QuotaUsed)
		assert.Equal(t, int64(1), f.logCount(t))
	})

	t.Run("no subscription is denied without a log row", func(t *testing.T) {
		f := newGatewayFixture(t)
		p := f.seedProduct(t, &models.Product{
			AccessType: types.AccessTypeSubscription,
			ObjectKey:  "lightbox/files/pack.zip",
		})

		_, err := f.svc.Serve(ctx, Request{ProductID: p.ID, Token: f.token(t, p.ID, "u1"), UserID: "u1"})
		assert.ErrorIs(t, err, ErrNoActiveSubscription)
		assert.Equal(t, int64(0), f.logCount(t))
	})

	t.Run("exhausted quota is denied without a log row", func(t *testing.T) {
		f := newGatewayFixture(t)
		p := f.seedProduct(t, &models.Product{
			AccessType: types.AccessTypeSubscription,
			ObjectKey:  "lightbox/files/pack.zip",
		})
		q := &models.UserQuota{
			ID: tool.GenerateUUIDV7(), UserID: "u1", QuotaTotal: 2, QuotaUsed: 2, Status: types.QuotaStatusActive,
		}
		require.NoError(t, f.db.Create(q).Error)

		_, err := f.svc.Serve(ctx, Request{ProductID: p.ID, Token: f.token(t, p.ID, "u1"), UserID: "u1"})
		assert.ErrorIs(t, err, ErrQuotaExhausted)
		assert.Equal(t, int64(0), f.logCount(t))

		var got models.UserQuota
		require.NoError(t, f.db.First(&got, "id = ?", q.ID).Error)
		assert.Equal(t, 2, got.QuotaUsed)
	})
}

func TestServeDenials(t *testing.T) {
	ctx := context.Background()

	t.Run("bad token", func(t *testing.T) {
		f := newGatewayFixture(t)
		p := f.seedProduct(t, &models.Product{AccessType: types.AccessTypeFree, ObjectKey: "k"})

		_, err := f.svc.Serve(ctx, Request{ProductID: p.ID, Token: "garbage", UserID: "u1"})
		assert.ErrorIs(t, err, ErrLinkIntegrity)
	})

	t.Run("token for another product", func(t *testing.T) {
		f := newGatewayFixture(t)
		p := f.seedProduct(t, &models.Product{AccessType: types.AccessTypeFree, ObjectKey: "k"})

		_, err := f.svc.Serve(ctx, Request{ProductID: p.ID, Token: f.token(t, "other-product", "u1"), UserID: "u1"})
		assert.ErrorIs(t, err, ErrLinkIntegrity)
	})

	t.Run("unknown product", func(t *testing.T) {
		f := newGatewayFixture(t)
		_, err := f.svc.Serve(ctx, Request{ProductID: "nope", Token: f.token(t, "nope", "u1"), UserID: "u1"})
		assert.ErrorIs(t, err, ErrProductNotEligible)
	})

	t.Run("physical product", func(t *testing.T) {
		f := newGatewayFixture(t)
		p := &models.Product{ID: tool.GenerateUUIDV7(), AccessType: types.AccessTypeFree, Downloadable: true, Virtual: false}
		require.NoError(t, f.db.Create(p).Error)

		_, err := f.svc.Serve(ctx, Request{ProductID: p.ID, Token: f.token(t, p.ID, "u1"), UserID: "u1"})
		assert.ErrorIs(t, err, ErrProductNotEligible)
	})

	t.Run("premium passes through with no side effects", func(t *testing.T) {
		f := newGatewayFixture(t)
		p := f.seedProduct(t, &models.Product{AccessType: types.AccessTypePremium, ObjectKey: "k"})

		_, err := f.svc.Serve(ctx, Request{ProductID: p.ID, Token: f.token(t, p.ID, "u1"), UserID: "u1"})
		assert.ErrorIs(t, err, ErrPremiumPassThrough)
		assert.Equal(t, int64(0), f.logCount(t))
	})

	t.Run("no resolvable key", func(t *testing.T) {
		f := newGatewayFixture(t)
		p := f.seedProduct(t, &models.Product{AccessType: types.AccessTypeFree})

		_, err := f.svc.Serve(ctx, Request{ProductID: p.ID, Token: f.token(t, p.ID, "u1"), UserID: "u1"})
		assert.ErrorIs(t, err, ErrNotConfigured)
	})

	t.Run("object missing upstream", func(t *testing.T) {
		f := newGatewayFixture(t)
		p := f.seedProduct(t, &models.Product{AccessType: types.AccessTypeFree, ObjectKey: "lightbox/gone.zip"})

		_, err := f.svc.Serve(ctx, Request{ProductID: p.ID, Token: f.token(t, p.ID, "u1"), UserID: "u1"})
		assert.ErrorIs(t, err, ErrUpstream)
	})
}

func TestResolveKeyChain(t *testing.T) {
	ctx := context.Background()

	t.Run("attachment mapping wins over store probe and backfills the product", func(t *testing.T) {
		f := newGatewayFixture(t)
		att := &models.Attachment{ID: tool.GenerateUUIDV7(), Path: "files/pack.zip"}
		require.NoError(t, f.db.Create(att).Error)
		p := f.seedProduct(t, &models.Product{
			AccessType:           types.AccessTypeFree,
			DownloadAttachmentID: att.ID,
		})
		require.NoError(t, f.db.Create(&models.ObjectStorageKey{
			ID: tool.GenerateUUIDV7(), AttachmentID: att.ID, ObjectKey: "lightbox/files/pack.zip",
		}).Error)
		f.store.objects["lightbox/files/pack.zip"] = []byte("zip")

		stream, err := f.svc.Serve(ctx, Request{ProductID: p.ID, Token: f.token(t, p.ID, "u1"), UserID: "u1"})
		require.NoError(t, err)
		stream.Body.Close()

		var got models.Product
		require.NoError(t, f.db.First(&got, "id = ?", p.ID).Error)
		assert.Equal(t, "lightbox/files/pack.zip", got.ObjectKey)
	})

	t.Run("store probe derives the migration key as last resort", func(t *testing.T) {
		f := newGatewayFixture(t)
		att := &models.Attachment{ID: tool.GenerateUUIDV7(), Path: "files/pack.zip"}
		require.NoError(t, f.db.Create(att).Error)
		p := f.seedProduct(t, &models.Product{
			AccessType:           types.AccessTypeFree,
			DownloadAttachmentID: att.ID,
		})
		f.store.objects["lightbox/files/pack.zip"] = []byte("zip")

		stream, err := f.svc.Serve(ctx, Request{ProductID: p.ID, Token: f.token(t, p.ID, "u1"), UserID: "u1"})
		require.NoError(t, err)
		stream.Body.Close()

		// both cheaper representations are backfilled
		var got models.Product
		require.NoError(t, f.db.First(&got, "id = ?", p.ID).Error)
		assert.Equal(t, "lightbox/files/pack.zip", got.ObjectKey)
		var mapping models.ObjectStorageKey
		require.NoError(t, f.db.First(&mapping, "attachment_id = ?", att.ID).Error)
		assert.Equal(t, "lightbox/files/pack.zip", mapping.ObjectKey)
	})

	t.Run("existing product key is not overwritten by backfill", func(t *testing.T) {
		f := newGatewayFixture(t)
		p := f.seedProduct(t, &models.Product{AccessType: types.AccessTypeFree, ObjectKey: "lightbox/original.zip"})
		f.store.objects["lightbox/original.zip"] = []byte("zip")

		stream, err := f.svc.Serve(ctx, Request{ProductID: p.ID, Token: f.token(t, p.ID, "u1"), UserID: "u1"})
		require.NoError(t, err)
		stream.Body.Close()

		var got models.Product
		require.NoError(t, f.db.First(&got, "id = ?", p.ID).Error)
		assert.Equal(t, "lightbox/original.zip", got.ObjectKey)
	})
}
