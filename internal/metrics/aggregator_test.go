package metrics_test

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/preplab/preplab/internal/metrics"
	"github.com/preplab/preplab/internal/stats"
	"github.com/preplab/preplab/internal/store"
	"github.com/preplab/preplab/tests/testutil"
)

func seedAssignment(t *testing.T, s *store.SQLiteStore, exp *store.Experiment, userID, variant string, at time.Time) {
	t.Helper()
	b := 1
	require.NoError(t, s.CreateAssignment(context.Background(), &store.VariantAssignment{
		UserID:         userID,
		ExperimentID:   exp.ID,
		ExperimentName: exp.Name,
		Variant:        variant,
		Bucket:         &b,
		Source:         store.SourceCalculated,
		AssignedAt:     at,
	}))
}

func seedPurchase(t *testing.T, s *store.SQLiteStore, userID string, cents int64, at time.Time) {
	t.Helper()
	_, err := s.DB().Exec(
		`INSERT INTO purchases (user_id, amount_cents, created_at) VALUES (?, ?, ?)`,
		userID, cents, at.Unix(),
	)
	require.NoError(t, err)
}

func TestExperimentMetrics_Rollup(t *testing.T) {
	s := testutil.SetupTestStore(t)
	exp := testutil.SeedExperiment(t, s, "paywall_test",
		[]string{"direct_paywall", "freemium"},
		map[string]int{"direct_paywall": 50, "freemium": 50},
		store.StatusRunning)

	now := time.Now()

	// direct_paywall: 3 visitors, 1 converts for 999 cents.
	seedAssignment(t, s, exp, "u1", "direct_paywall", now)
	seedAssignment(t, s, exp, "u2", "direct_paywall", now)
	seedAssignment(t, s, exp, "u3", "direct_paywall", now)
	seedPurchase(t, s, "u1", 999, now)

	// freemium: 2 visitors, both convert; u4 buys twice.
	seedAssignment(t, s, exp, "u4", "freemium", now)
	seedAssignment(t, s, exp, "u5", "freemium", now)
	seedPurchase(t, s, "u4", 500, now)
	seedPurchase(t, s, "u4", 250, now)
	seedPurchase(t, s, "u5", 1000, now)

	// Purchases by users outside the experiment are ignored.
	seedPurchase(t, s, "stranger", 9999, now)

	agg := metrics.NewAggregator(s, stats.DefaultThreshold)
	report, err := agg.ExperimentMetrics(context.Background(), "paywall_test", metrics.AllTime())
	require.NoError(t, err)

	require.Len(t, report.Variants, 2)

	dp := report.Variants[0]
	assert.Equal(t, "direct_paywall", dp.Variant)
	assert.Equal(t, 3, dp.Visitors)
	assert.Equal(t, 1, dp.Conversions)
	assert.InDelta(t, 1.0/3.0, dp.ConversionRate, 1e-9)
	assert.Equal(t, int64(999), dp.RevenueCents)
	assert.InDelta(t, 333.0, dp.RevenuePerVisitor, 1)

	fm := report.Variants[1]
	assert.Equal(t, "freemium", fm.Variant)
	assert.Equal(t, 2, fm.Visitors)
	assert.Equal(t, 2, fm.Conversions)
	assert.Equal(t, int64(1750), fm.RevenueCents)

	assert.Equal(t, 5, report.TotalVisitors)
	assert.Equal(t, 3, report.TotalConversions)
	assert.Equal(t, int64(2749), report.TotalRevenueCents)
	assert.False(t, report.LastUpdated.IsZero())
}

func TestExperimentMetrics_DateRangeFilters(t *testing.T) {
	s := testutil.SetupTestStore(t)
	exp := testutil.SeedExperiment(t, s, "windowed",
		[]string{"a", "b"}, map[string]int{"a": 50, "b": 50}, store.StatusRunning)

	now := time.Now()
	old := now.AddDate(0, 0, -60)

	seedAssignment(t, s, exp, "recent-user", "a", now)
	seedAssignment(t, s, exp, "old-user", "a", old)
	seedPurchase(t, s, "recent-user", 100, now)
	seedPurchase(t, s, "old-user", 100, old)

	agg := metrics.NewAggregator(s, stats.DefaultThreshold)

	last30, err := agg.ExperimentMetrics(context.Background(), "windowed", metrics.Last30Days())
	require.NoError(t, err)
	assert.Equal(t, 1, last30.TotalVisitors)
	assert.Equal(t, 1, last30.TotalConversions)

	all, err := agg.ExperimentMetrics(context.Background(), "windowed", metrics.AllTime())
	require.NoError(t, err)
	assert.Equal(t, 2, all.TotalVisitors)
}

func TestExperimentMetrics_UnknownExperiment(t *testing.T) {
	s := testutil.SetupTestStore(t)
	agg := metrics.NewAggregator(s, stats.DefaultThreshold)

	_, err := agg.ExperimentMetrics(context.Background(), "missing", metrics.AllTime())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestExperimentMetrics_SignificantOutcome(t *testing.T) {
	s := testutil.SetupTestStore(t)
	exp := testutil.SeedExperiment(t, s, "big_test",
		[]string{"A", "B"}, map[string]int{"A": 50, "B": 50}, store.StatusRunning)

	now := time.Now()
	for i := 0; i < 1000; i++ {
		uA := fmt.Sprintf("a-user-%d", i)
		uB := fmt.Sprintf("b-user-%d", i)
		seedAssignment(t, s, exp, uA, "A", now)
		seedAssignment(t, s, exp, uB, "B", now)
		if i < 50 {
			seedPurchase(t, s, uA, 100, now)
		}
		if i < 100 {
			seedPurchase(t, s, uB, 100, now)
		}
	}

	agg := metrics.NewAggregator(s, stats.DefaultThreshold)
	report, err := agg.ExperimentMetrics(context.Background(), "big_test", metrics.AllTime())
	require.NoError(t, err)

	sig := report.Significance
	assert.True(t, sig.IsSignificant)
	assert.Greater(t, sig.ConfidenceLevel, 95.0)
	require.NotNil(t, sig.WinningVariant)
	assert.Equal(t, "B", *sig.WinningVariant)
}

func TestWriteCSV(t *testing.T) {
	winner := "B"
	report := &metrics.ExperimentMetrics{
		ExperimentName: "paywall_test",
		Variants: []stats.VariantMetrics{
			{Variant: "A", Visitors: 1000, Conversions: 50, ConversionRate: 0.05, RevenueCents: 5000, RevenuePerVisitor: 5},
			{Variant: "B", Visitors: 1000, Conversions: 100, ConversionRate: 0.10, RevenueCents: 12000, RevenuePerVisitor: 12},
		},
		TotalVisitors:     2000,
		TotalConversions:  150,
		TotalRevenueCents: 17000,
		Significance: stats.SignificanceResult{
			ChiSquare:         18.018,
			DegreesOfFreedom:  1,
			PValue:            0.0000218,
			ConfidenceLevel:   100,
			IsSignificant:     true,
			WinningVariant:    &winner,
			MinimumSampleSize: 576,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, report.WriteCSV(&buf))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Equal(t, "Variant,Visitors,Conversions,Conversion Rate,Revenue (cents),Revenue Per Visitor", lines[0])
	assert.Equal(t, "A,1000,50,5.00%,5000,5.00", lines[1])
	assert.Equal(t, "B,1000,100,10.00%,12000,12.00", lines[2])
	assert.Equal(t, "TOTAL,2000,150,7.50%,17000,8.50", lines[3])
	assert.Contains(t, buf.String(), "Winning Variant,B")
	assert.Contains(t, buf.String(), "Significant,true")
}

func TestPresets(t *testing.T) {
	assert.Equal(t, "last_7_days", metrics.Last7Days().Label)
	assert.Equal(t, "last_90_days", metrics.Preset("last_90_days").Label)
	assert.Equal(t, "all_time", metrics.Preset("whatever").Label)
	assert.True(t, metrics.AllTime().From.IsZero())
}
