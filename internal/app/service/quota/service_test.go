package quota

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/lightboxhq/lightbox/internal/models"
	cfgpkg "github.com/lightboxhq/lightbox/pkg/config"
	"github.com/lightboxhq/lightbox/pkg/tool"
	"github.com/lightboxhq/lightbox/pkg/types"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	// Single connection keeps the in-memory database alive and serializes
	// writers the way a server-side row lock would.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&models.SubscriptionPlan{},
		&models.UserQuota{},
		&models.DownloadLog{},
	))
	return db
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	cfg := &cfgpkg.Config{}
	cfg.Expiration.InlineProbability = 0
	return NewService(newTestDB(t), cfg, zap.NewNop().Sugar())
}

func seedQuota(t *testing.T, s *Service, q *models.UserQuota) *models.UserQuota {
	t.Helper()
	if q.ID == "" {
		q.ID = tool.GenerateUUIDV7()
	}
	if q.Status == "" {
		q.Status = types.QuotaStatusActive
	}
	require.NoError(t, s.db.Create(q).Error)
	return q
}

func TestGetActiveQuota(t *testing.T) {
	ctx := context.Background()
	past := time.Now().AddDate(0, 0, -2)
	future := time.Now().AddDate(0, 1, 0)

	t.Run("no rows means no entitlement, not an error", func(t *testing.T) {
		s := newTestService(t)
		q, err := s.GetActiveQuota(ctx, "u1")
		require.NoError(t, err)
		assert.Nil(t, q)
	})

	t.Run("newest active row wins", func(t *testing.T) {
		s := newTestService(t)
		old := seedQuota(t, s, &models.UserQuota{UserID: "u1", QuotaTotal: 5})
		// force distinct created_at ordering
		require.NoError(t, s.db.Model(old).Update("created_at", time.Now().Add(-time.Hour)).Error)
		newer := seedQuota(t, s, &models.UserQuota{UserID: "u1", QuotaTotal: 10})

		q, err := s.GetActiveQuota(ctx, "u1")
		require.NoError(t, err)
		require.NotNil(t, q)
		assert.Equal(t, newer.ID, q.ID)
	})

	t.Run("overdue renewal date is not authoritative", func(t *testing.T) {
		s := newTestService(t)
		seedQuota(t, s, &models.UserQuota{UserID: "u1", QuotaTotal: 5, QuotaRenewalDate: &past})
		q, err := s.GetActiveQuota(ctx, "u1")
		require.NoError(t, err)
		assert.Nil(t, q)
	})

	t.Run("future renewal date is fine", func(t *testing.T) {
		s := newTestService(t)
		seedQuota(t, s, &models.UserQuota{UserID: "u1", QuotaTotal: 5, QuotaRenewalDate: &future})
		q, err := s.GetActiveQuota(ctx, "u1")
		require.NoError(t, err)
		assert.NotNil(t, q)
	})

	t.Run("expired and cancelled rows are ignored", func(t *testing.T) {
		s := newTestService(t)
		seedQuota(t, s, &models.UserQuota{UserID: "u1", QuotaTotal: 5, Status: types.QuotaStatusExpired})
		seedQuota(t, s, &models.UserQuota{UserID: "u1", QuotaTotal: 5, Status: types.QuotaStatusCancelled})
		q, err := s.GetActiveQuota(ctx, "u1")
		require.NoError(t, err)
		assert.Nil(t, q)
	})
}

func TestHasRemaining(t *testing.T) {
	s := newTestService(t)
	assert.False(t, s.HasRemaining(nil))
	assert.False(t, s.HasRemaining(&models.UserQuota{QuotaTotal: 3, QuotaUsed: 3}))
	assert.True(t, s.HasRemaining(&models.UserQuota{QuotaTotal: 3, QuotaUsed: 2}))
	assert.True(t, s.HasRemaining(&models.UserQuota{IsUnlimited: true, QuotaUsed: 999}))
}

func TestConsumeOne(t *testing.T) {
	ctx := context.Background()

	t.Run("consumes and stamps last download", func(t *testing.T) {
		s := newTestService(t)
		q := seedQuota(t, s, &models.UserQuota{UserID: "u1", QuotaTotal: 2})

		res, err := s.ConsumeOne(ctx, q.ID)
		require.NoError(t, err)
		assert.Equal(t, types.ConsumeOK, res)

		var got models.UserQuota
		require.NoError(t, s.db.First(&got, "id = ?", q.ID).Error)
		assert.Equal(t, 1, got.QuotaUsed)
		assert.NotNil(t, got.LastDownload)
	})

	t.Run("exhausted row refuses", func(t *testing.T) {
		s := newTestService(t)
		q := seedQuota(t, s, &models.UserQuota{UserID: "u1", QuotaTotal: 1, QuotaUsed: 1})

		res, err := s.ConsumeOne(ctx, q.ID)
		require.NoError(t, err)
		assert.Equal(t, types.ConsumeExhausted, res)
	})

	t.Run("unlimited row never exhausts", func(t *testing.T) {
		s := newTestService(t)
		q := seedQuota(t, s, &models.UserQuota{UserID: "u1", IsUnlimited: true})

		for i := 0; i < 5; i++ {
			res, err := s.ConsumeOne(ctx, q.ID)
			require.NoError(t, err)
			assert.Equal(t, types.ConsumeOK, res)
		}
	})

	t.Run("missing row", func(t *testing.T) {
		s := newTestService(t)
		res, err := s.ConsumeOne(ctx, "no-such-id")
		require.NoError(t, err)
		assert.Equal(t, types.ConsumeNotFound, res)
	})

	t.Run("inactive row", func(t *testing.T) {
		s := newTestService(t)
		q := seedQuota(t, s, &models.UserQuota{UserID: "u1", QuotaTotal: 5, Status: types.QuotaStatusExpired})
		res, err := s.ConsumeOne(ctx, q.ID)
		require.NoError(t, err)
		assert.Equal(t, types.ConsumeNotFound, res)
	})

	t.Run("one remaining unit under contention grants exactly once", func(t *testing.T) {
		s := newTestService(t)
		q := seedQuota(t, s, &models.UserQuota{UserID: "u1", QuotaTotal: 5, QuotaUsed: 4})

		const workers = 10
		results := make([]types.ConsumeResult, workers)
		errs := make([]error, workers)
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i], errs[i] = s.ConsumeOne(ctx, q.ID)
			}(i)
		}
		wg.Wait()
		for _, err := range errs {
			require.NoError(t, err)
		}

		granted := 0
		for _, r := range results {
			if r == types.ConsumeOK {
				granted++
			}
		}
		assert.Equal(t, 1, granted)

		var got models.UserQuota
		require.NoError(t, s.db.First(&got, "id = ?", q.ID).Error)
		assert.Equal(t, 5, got.QuotaUsed)
	})
}

func TestExpireOverdue(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	past := time.Now().AddDate(0, 0, -3)
	future := time.Now().AddDate(0, 1, 0)

	overdue := seedQuota(t, s, &models.UserQuota{UserID: "u1", QuotaTotal: 5, QuotaRenewalDate: &past})
	current := seedQuota(t, s, &models.UserQuota{UserID: "u2", QuotaTotal: 5, QuotaRenewalDate: &future})
	open := seedQuota(t, s, &models.UserQuota{UserID: "u3", QuotaTotal: 5})

	n, err := s.ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var got models.UserQuota
	require.NoError(t, s.db.First(&got, "id = ?", overdue.ID).Error)
	assert.Equal(t, types.QuotaStatusExpired, got.Status)
	// reset so the populated primary key does not leak into the next query
	got = models.UserQuota{}
	require.NoError(t, s.db.First(&got, "id = ?", current.ID).Error)
	assert.Equal(t, types.QuotaStatusActive, got.Status)
	got = models.UserQuota{}
	require.NoError(t, s.db.First(&got, "id = ?", open.ID).Error)
	assert.Equal(t, types.QuotaStatusActive, got.Status)

	// second sweep finds nothing new
	n, err = s.ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}
