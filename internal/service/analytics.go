package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/naperu/embudo/internal/domain"
	"github.com/naperu/embudo/pkg/logger"
	"golang.org/x/sync/errgroup"
)

const analyticsTTL = time.Minute

// AnalyticsService computes the dashboard summary
type AnalyticsService struct {
	stats     AnalyticsStore
	pipelines PipelineStore
	cache     JSONCache
	now       func() time.Time
	log       *logger.Logger
}

func NewAnalyticsService(stats AnalyticsStore, pipelines PipelineStore, cache JSONCache) *AnalyticsService {
	return &AnalyticsService{stats: stats, pipelines: pipelines, cache: cache, now: time.Now, log: logger.Component("analytics")}
}

// Summary runs the independent counters concurrently. days bounds the
// "recent" counters and defaults to 30.
func (s *AnalyticsService) Summary(ctx context.Context, empresaID uuid.UUID, pipelineID *uuid.UUID, days int) (*domain.Analytics, error) {
	if days <= 0 || days > 365 {
		days = 30
	}
	key := fmt.Sprintf("analytics:%s:%d", empresaID, days)
	if pipelineID != nil {
		key += ":" + pipelineID.String()
	}
	if s.cache != nil {
		var hit domain.Analytics
		if ok, err := s.cache.GetJSON(ctx, key, &hit); err == nil && ok {
			return &hit, nil
		} else if err != nil {
			s.log.WithError(err).Debug("analytics cache read failed")
		}
	}

	now := s.now()
	since := now.AddDate(0, 0, -days)
	out := &domain.Analytics{PeriodDays: days, LeadsByStage: []*domain.StageCount{}}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		out.LeadsTotal, out.LeadsNew, err = s.stats.CountLeads(gctx, empresaID, since)
		return err
	})
	g.Go(func() (err error) {
		out.PipelineValue, out.WonValue, err = s.stats.PipelineValue(gctx, empresaID)
		return err
	})
	g.Go(func() (err error) {
		out.MessagesInbound, out.MessagesOutbound, err = s.stats.CountMessages(gctx, empresaID, since)
		return err
	})
	g.Go(func() (err error) {
		out.TasksPending, out.TasksOverdue, err = s.stats.CountTasks(gctx, empresaID, now)
		return err
	})
	g.Go(func() (err error) {
		out.AppointmentsUpcoming, err = s.stats.CountUpcomingAppointments(gctx, empresaID, now)
		return err
	})
	g.Go(func() error {
		var pid uuid.UUID
		if pipelineID != nil {
			pid = *pipelineID
		} else {
			p, err := s.pipelines.GetDefault(gctx, empresaID)
			if err != nil {
				return err
			}
			if p == nil {
				return nil
			}
			pid = p.ID
		}
		stages, err := s.stats.LeadsByStage(gctx, empresaID, pid)
		if err != nil {
			return err
		}
		if stages != nil {
			out.LeadsByStage = stages
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to compute analytics: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, out, analyticsTTL); err != nil {
			s.log.WithError(err).WithField("key", key).Debug("analytics cache write failed")
		}
	}
	return out, nil
}
