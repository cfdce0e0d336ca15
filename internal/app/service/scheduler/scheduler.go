// Package scheduler runs the recurring maintenance jobs: the daily overdue
// quota sweep and the watermark cache janitor. Both operations are idempotent
// on their own, so a missed or doubled run changes nothing; the quota sweep
// additionally backstops itself through the gateway's probabilistic inline
// check.
package scheduler

import (
	"context"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/lightboxhq/lightbox/internal/app/service/quota"
	"github.com/lightboxhq/lightbox/internal/app/service/watermark"
	"github.com/lightboxhq/lightbox/pkg/metrics"
)

type Manager struct {
	scheduler gocron.Scheduler
	quotas    *quota.Service
	engine    *watermark.Engine
	log       *zap.SugaredLogger
}

func NewManager(quotas *quota.Service, engine *watermark.Engine, log *zap.SugaredLogger) (*Manager, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &Manager{scheduler: s, quotas: quotas, engine: engine, log: log}, nil
}

func (m *Manager) registerJobs() error {
	_, err := m.scheduler.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(3, 0, 0))),
		gocron.NewTask(func() { m.RunExpiration(context.Background()) }),
		gocron.WithName("expire_overdue_quotas"),
	)
	if err != nil {
		return err
	}
	_, err = m.scheduler.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(4, 0, 0))),
		gocron.NewTask(func() {
			if _, err := m.engine.CleanupOld(context.Background()); err != nil {
				m.log.Errorw("watermark janitor failed", "err", err)
			}
		}),
		gocron.WithName("watermark_janitor"),
	)
	return err
}

// RunExpiration is the single expiration entry point shared by the daily job,
// the admin trigger and (indirectly) the inline backstop.
func (m *Manager) RunExpiration(ctx context.Context) (int64, error) {
	n, err := m.quotas.ExpireOverdue(ctx)
	if err != nil {
		m.log.Errorw("overdue quota sweep failed", "err", err)
		return 0, err
	}
	if n > 0 {
		metrics.QuotasExpired.Add(float64(n))
	}
	return n, nil
}

func run(lc fx.Lifecycle, m *Manager) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := m.registerJobs(); err != nil {
				return err
			}
			m.scheduler.Start()
			m.log.Infow("scheduler started", "jobs", len(m.scheduler.Jobs()))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return m.scheduler.Shutdown()
		},
	})
}

var Module = fx.Options(
	fx.Provide(NewManager),
	fx.Invoke(run),
)
