package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/naperu/embudo/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStats struct {
	AnalyticsStore
	calls      int
	messageErr error
	stagesFor  uuid.UUID
}

func (f *fakeStats) CountLeads(context.Context, uuid.UUID, time.Time) (int, int, error) {
	f.calls++
	return 40, 7, nil
}

func (f *fakeStats) LeadsByStage(_ context.Context, _, pipelineID uuid.UUID) ([]*domain.StageCount, error) {
	f.stagesFor = pipelineID
	return []*domain.StageCount{{Name: "Nuevo", Count: 12}}, nil
}

func (f *fakeStats) PipelineValue(context.Context, uuid.UUID) (decimal.Decimal, decimal.Decimal, error) {
	return decimal.NewFromInt(9000), decimal.NewFromInt(2500), nil
}

func (f *fakeStats) CountMessages(context.Context, uuid.UUID, time.Time) (int, int, error) {
	return 120, 95, f.messageErr
}

func (f *fakeStats) CountTasks(context.Context, uuid.UUID, time.Time) (int, int, error) {
	return 5, 2, nil
}

func (f *fakeStats) CountUpcomingAppointments(context.Context, uuid.UUID, time.Time) (int, error) {
	return 3, nil
}

func TestAnalyticsSummary(t *testing.T) {
	empresaID := uuid.New()
	pipelines := newPipelineWithStages(empresaID)
	stats := &fakeStats{}
	cache := newMemCache()
	svc := NewAnalyticsService(stats, pipelines, cache)

	a, err := svc.Summary(context.Background(), empresaID, nil, 0)
	require.NoError(t, err)

	assert.Equal(t, 30, a.PeriodDays)
	assert.Equal(t, 40, a.LeadsTotal)
	assert.Equal(t, 7, a.LeadsNew)
	assert.Equal(t, 120, a.MessagesInbound)
	assert.Equal(t, 95, a.MessagesOutbound)
	assert.Equal(t, 2, a.TasksOverdue)
	assert.Equal(t, 3, a.AppointmentsUpcoming)
	assert.True(t, decimal.NewFromInt(9000).Equal(a.PipelineValue))
	assert.Equal(t, pipelines.def.ID, stats.stagesFor)
	require.Len(t, a.LeadsByStage, 1)

	_, err = svc.Summary(context.Background(), empresaID, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.calls, "second summary is cached")
}

func TestAnalyticsSummary_PropagatesErrors(t *testing.T) {
	stats := &fakeStats{messageErr: errors.New("timeout")}
	svc := NewAnalyticsService(stats, &fakePipelines{}, nil)

	_, err := svc.Summary(context.Background(), uuid.New(), nil, 7)
	assert.ErrorContains(t, err, "timeout")
}

type downCache struct{}

func (downCache) GetJSON(context.Context, string, interface{}) (bool, error) {
	return false, errors.New("redis: connection refused")
}

func (downCache) SetJSON(context.Context, string, interface{}, time.Duration) error {
	return errors.New("redis: connection refused")
}

func (downCache) Del(context.Context, ...string) error { return nil }

func TestAnalyticsSummary_CacheFailureIsLogged(t *testing.T) {
	hook := logtest.NewGlobal()
	level := logrus.GetLevel()
	logrus.SetLevel(logrus.DebugLevel)
	t.Cleanup(func() {
		logrus.SetLevel(level)
		hook.Reset()
	})

	stats := &fakeStats{}
	svc := NewAnalyticsService(stats, newPipelineWithStages(uuid.New()), downCache{})

	a, err := svc.Summary(context.Background(), uuid.New(), nil, 7)
	require.NoError(t, err)
	assert.Equal(t, 7, a.PeriodDays)

	var messages []string
	for _, e := range hook.AllEntries() {
		messages = append(messages, e.Message)
	}
	assert.Contains(t, messages, "analytics cache read failed")
	assert.Contains(t, messages, "analytics cache write failed")
}
