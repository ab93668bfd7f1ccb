package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"forecast-dashboard/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestRegistry(api ForecastBackend, clock *fakeClock) *ViewRegistry {
	return NewViewRegistry(context.Background(), api, ViewConfig{
		IdleTTL:      10 * time.Minute,
		DefaultQuery: juneQuery("P001"),
		Clock:        clock.Now,
	})
}

func TestOpenForecastMountsDashboard(t *testing.T) {
	api := newFakeBackend()
	r := newTestRegistry(api, &fakeClock{now: time.Unix(0, 0)})

	view, err := r.OpenForecast(nil)
	require.NoError(t, err)
	view.Dashboard.Wait()

	state := view.Dashboard.Snapshot()
	assert.True(t, state.CatalogLoaded)
	assert.Equal(t, "P001", state.Query.ProductID)

	got, ok := r.Forecast(view.ID)
	require.True(t, ok)
	assert.Same(t, view, got)

	require.NoError(t, view.RunScenario(context.Background()))
	assert.Equal(t, "+12.3%", view.Scenario.Snapshot().Display.Revenue)
}

func TestOpenForecastRejectsInvalidQuery(t *testing.T) {
	r := newTestRegistry(newFakeBackend(), &fakeClock{})
	bad := models.ForecastQuery{ProductID: "P001", FromDate: june30, ToDate: june1}
	_, err := r.OpenForecast(&bad)
	assert.ErrorIs(t, err, models.ErrInvertedRange)
	f, _ := r.Counts()
	assert.Zero(t, f)
}

func TestViewsAreIndependent(t *testing.T) {
	api := newFakeBackend()
	r := newTestRegistry(api, &fakeClock{})

	a, err := r.OpenForecast(nil)
	require.NoError(t, err)
	b, err := r.OpenForecast(nil)
	require.NoError(t, err)
	a.Dashboard.Wait()
	b.Dashboard.Wait()

	require.NoError(t, a.Dashboard.SetProduct("P003"))
	a.Dashboard.Wait()
	assert.Equal(t, "P003", a.Dashboard.Query().ProductID)
	assert.Equal(t, "P001", b.Dashboard.Query().ProductID)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestSweepEvictsIdleViews(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	r := newTestRegistry(newFakeBackend(), clock)

	stale, err := r.OpenForecast(nil)
	require.NoError(t, err)
	chat := r.OpenAssistant(KindChat)
	stale.Dashboard.Wait()

	clock.Advance(6 * time.Minute)
	fresh := r.OpenAssistant(KindKnowledge)
	_, ok := r.Assistant(chat.ID)
	require.True(t, ok)

	clock.Advance(6 * time.Minute)
	assert.Equal(t, 1, r.Sweep())

	_, ok = r.Forecast(stale.ID)
	assert.False(t, ok)
	_, ok = r.Assistant(chat.ID)
	assert.True(t, ok, "touched view survives")
	_, ok = r.Assistant(fresh.ID)
	assert.True(t, ok)
}

func TestCloseForecastCancelsOutstandingFetches(t *testing.T) {
	api := newFakeBackend()
	api.forecastFn = func(ctx context.Context, _ string, _, _ models.Date) (*models.ForecastSeries, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	r := newTestRegistry(api, &fakeClock{})

	view, err := r.OpenForecast(nil)
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return api.forecastCalls.Load() == 1 }, waitFor, tick)

	assert.True(t, r.CloseForecast(view.ID))
	view.Dashboard.Wait()
	assert.False(t, view.Dashboard.Snapshot().Loading)
	assert.False(t, r.CloseForecast(view.ID))
}

func TestOpenAssistantKinds(t *testing.T) {
	r := newTestRegistry(newFakeBackend(), &fakeClock{})
	chat := r.OpenAssistant(KindChat)
	knowledge := r.OpenAssistant(KindKnowledge)

	assert.Equal(t, KindChat, chat.Session.Kind())
	assert.Equal(t, models.ProviderPrimary, chat.Session.Snapshot().Provider)
	assert.Equal(t, KindKnowledge, knowledge.Session.Kind())

	_, a := r.Counts()
	assert.Equal(t, 2, a)
	assert.True(t, r.CloseAssistant(chat.ID))
	_, a = r.Counts()
	assert.Equal(t, 1, a)
}
