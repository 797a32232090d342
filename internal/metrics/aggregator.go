// Package metrics joins assignment records with conversion records
// into per-variant rollups and feeds them to the significance engine.
// Everything here is derived on demand; nothing is persisted.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/preplab/preplab/internal/stats"
	"github.com/preplab/preplab/internal/store"
)

// ExperimentMetrics is the composed report a dashboard renders.
type ExperimentMetrics struct {
	ExperimentName    string                   `json:"experimentName"`
	Status            store.ExperimentStatus   `json:"status"`
	DateRange         DateRange                `json:"dateRange"`
	Variants          []stats.VariantMetrics   `json:"variants"`
	TotalVisitors     int                      `json:"totalVisitors"`
	TotalConversions  int                      `json:"totalConversions"`
	TotalRevenueCents int64                    `json:"totalRevenueCents"`
	Significance      stats.SignificanceResult `json:"significance"`
	LastUpdated       time.Time                `json:"lastUpdated"`
}

type Aggregator struct {
	store     store.Store
	threshold float64
}

func NewAggregator(s store.Store, threshold float64) *Aggregator {
	if threshold <= 0 {
		threshold = stats.DefaultThreshold
	}
	return &Aggregator{store: s, threshold: threshold}
}

// ExperimentMetrics fetches assignments and purchases within the range
// (both filtered server-side), intersects assignment user-sets with
// purchasing user-sets, and judges significance.
func (a *Aggregator) ExperimentMetrics(ctx context.Context, experimentName string, dr DateRange) (*ExperimentMetrics, error) {
	exp, err := a.store.GetExperiment(ctx, experimentName)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("experiment %q not found", experimentName)
	}
	if err != nil {
		return nil, err
	}

	assignments, err := a.store.ListAssignments(ctx, experimentName, dr.From, dr.To)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	purchases, err := a.store.ListPurchases(ctx, dr.From, dr.To)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}

	// Total purchase revenue per user within the range.
	revenueByUser := make(map[string]int64)
	for _, p := range purchases {
		revenueByUser[p.UserID] += p.AmountCents
	}

	// Users per variant. The unique constraint guarantees one
	// assignment per user, so no dedup is needed here.
	usersByVariant := make(map[string][]string)
	for _, asg := range assignments {
		usersByVariant[asg.Variant] = append(usersByVariant[asg.Variant], asg.UserID)
	}

	report := &ExperimentMetrics{
		ExperimentName: exp.Name,
		Status:         exp.Status,
		DateRange:      dr,
		Variants:       make([]stats.VariantMetrics, 0, len(exp.Variants)),
		LastUpdated:    time.Now(),
	}

	for _, variant := range exp.Variants {
		users := usersByVariant[variant]

		vm := stats.VariantMetrics{
			Variant:  variant,
			Visitors: len(users),
		}
		for _, u := range users {
			if cents, ok := revenueByUser[u]; ok {
				vm.Conversions++
				vm.RevenueCents += cents
			}
		}
		if vm.Visitors > 0 {
			vm.ConversionRate = float64(vm.Conversions) / float64(vm.Visitors)
			vm.RevenuePerVisitor = float64(vm.RevenueCents) / float64(vm.Visitors)
		}

		report.Variants = append(report.Variants, vm)
		report.TotalVisitors += vm.Visitors
		report.TotalConversions += vm.Conversions
		report.TotalRevenueCents += vm.RevenueCents
	}

	report.Significance = stats.CalculateSignificance(report.Variants, a.threshold)

	return report, nil
}
