package services

import (
	"context"
	"math"
	"testing"

	"forecast-dashboard/pkg/forecastapi"
	"forecast-dashboard/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatSignedPercent(t *testing.T) {
	cases := []struct {
		in   *float64
		want string
	}{
		{floatPtr(12.34), "+12.3%"},
		{floatPtr(-3.0), "-3.0%"},
		{floatPtr(0), "+0.0%"},
		{floatPtr(-0.04), "+0.0%"},
		{floatPtr(7.25), "+7.3%"},
		{floatPtr(-12.35), "-12.4%"},
		{floatPtr(12.35), "+12.4%"},
		{floatPtr(0.05), "+0.1%"},
		{nil, "N/A"},
		{floatPtr(math.NaN()), "N/A"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, FormatSignedPercent(tc.in))
	}
}

func TestFormatPriceDelta(t *testing.T) {
	assert.Equal(t, "+5%", FormatPriceDelta(5))
	assert.Equal(t, "-2.5%", FormatPriceDelta(-2.5))
	assert.Equal(t, "0%", FormatPriceDelta(0))
}

func TestFormatScenarioFieldsAreIndependent(t *testing.T) {
	d := FormatScenario(models.ScenarioResult{PriceDeltaPct: 5, DeltaRevenuePct: floatPtr(12.34)})
	assert.Equal(t, "+12.3%", d.Revenue)
	assert.Equal(t, "N/A", d.Quantity)
	assert.Equal(t, "Price +5%: Revenue +12.3%, Quantity N/A", d.Summary)

	d = FormatScenario(models.ScenarioResult{PriceDeltaPct: -10, DeltaQuantityPct: floatPtr(4)})
	assert.Equal(t, "N/A", d.Revenue)
	assert.Equal(t, "+4.0%", d.Quantity)
}

func TestScenarioComparatorSubmit(t *testing.T) {
	api := newFakeBackend()
	var got models.ScenarioQuery
	api.scenarioFn = func(_ context.Context, q models.ScenarioQuery) (*models.ScenarioResult, error) {
		got = q
		return &models.ScenarioResult{PriceDeltaPct: q.PriceDeltaPct, DeltaRevenuePct: floatPtr(-3)}, nil
	}

	s := NewScenarioComparator(api)
	assert.Equal(t, DefaultPriceDeltaPct, s.Snapshot().PriceDeltaPct)
	require.NoError(t, s.SetPriceDelta(-2.5))
	require.NoError(t, s.Submit(context.Background(), juneQuery("P002")))

	assert.Equal(t, "P002", got.ProductID)
	assert.Equal(t, -2.5, got.PriceDeltaPct)

	snap := s.Snapshot()
	assert.False(t, snap.Loading)
	assert.Empty(t, snap.Error)
	require.NotNil(t, snap.Display)
	assert.Equal(t, "-2.5%", snap.Display.PriceLabel)
	assert.Equal(t, "-3.0%", snap.Display.Revenue)
	assert.Equal(t, "N/A", snap.Display.Quantity)
}

func TestScenarioComparatorRejectsNonFiniteDelta(t *testing.T) {
	s := NewScenarioComparator(newFakeBackend())
	err := s.SetPriceDelta(math.Inf(1))
	assert.True(t, forecastapi.IsPrecondition(err))
	assert.Equal(t, DefaultPriceDeltaPct, s.Snapshot().PriceDeltaPct)
}

func TestScenarioComparatorFailureShowsNoResult(t *testing.T) {
	api := newFakeBackend()
	s := NewScenarioComparator(api)
	require.NoError(t, s.Submit(context.Background(), juneQuery("P001")))
	require.NotNil(t, s.Snapshot().Result)

	api.scenarioFn = func(context.Context, models.ScenarioQuery) (*models.ScenarioResult, error) {
		return nil, &forecastapi.ServerError{Op: "scenario", StatusCode: 422, Message: "no baseline"}
	}
	err := s.Submit(context.Background(), juneQuery("P001"))
	require.Error(t, err)

	snap := s.Snapshot()
	assert.Nil(t, snap.Result)
	assert.Nil(t, snap.Display)
	assert.Contains(t, snap.Error, "no baseline")
	assert.False(t, snap.Loading)
}

func TestScenarioComparatorRejectsResubmitWhilePending(t *testing.T) {
	api := newFakeBackend()
	entered := make(chan struct{})
	release := make(chan struct{})
	api.scenarioFn = func(_ context.Context, q models.ScenarioQuery) (*models.ScenarioResult, error) {
		close(entered)
		<-release
		return &models.ScenarioResult{PriceDeltaPct: q.PriceDeltaPct}, nil
	}

	s := NewScenarioComparator(api)
	done := make(chan error, 1)
	go func() { done <- s.Submit(context.Background(), juneQuery("P001")) }()
	<-entered

	assert.True(t, s.Snapshot().Loading)
	assert.ErrorIs(t, s.Submit(context.Background(), juneQuery("P001")), forecastapi.ErrSubmissionPending)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), api.scenarioCalls.Load())
}
