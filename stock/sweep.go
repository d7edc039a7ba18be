package stock

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SweepReport summarizes one expiry sweep.
type SweepReport struct {
	AsOf    Date
	Scanned int
	Raised  []Alert
	Failed  int
}

// Sweeper evaluates expiry rules for every active ingredient with an expiry
// date. It takes no ingredient locks; a concurrent stock change evaluates
// the same ingredient itself, and InsertOpen keeps the result single.
type Sweeper struct {
	ingredients IngredientStore
	alerts      *AlertEngine
	opts        options
}

func NewSweeper(ingredients IngredientStore, alerts *AlertEngine, opts ...Option) *Sweeper {
	return &Sweeper{ingredients: ingredients, alerts: alerts, opts: buildOptions(opts)}
}

// Run evaluates every candidate as of the given day. Failures on single
// ingredients are counted in the report; only listing failures and context
// cancellation are returned as errors.
func (s *Sweeper) Run(ctx context.Context, asOf Date) (SweepReport, error) {
	start := time.Now()
	report := SweepReport{AsOf: asOf}

	ings, err := s.ingredients.ListIngredients(ctx, IngredientFilter{WithExpiryOnly: true})
	if err != nil {
		return report, err
	}
	report.Scanned = len(ings)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.parallelism)
	for _, ing := range ings {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			alert, err := s.alerts.EvaluateExpiry(gctx, ing, asOf)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed++
				s.opts.observer.AlertFailed(ing.ID, err)
				s.opts.logger.Warn("expiry evaluation failed",
					zap.String("ingredient_id", string(ing.ID)),
					zap.Error(err))
				return nil
			}
			if alert != nil {
				report.Raised = append(report.Raised, *alert)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	sort.Slice(report.Raised, func(i, j int) bool {
		return report.Raised[i].IngredientID < report.Raised[j].IngredientID
	})

	took := time.Since(start)
	s.opts.observer.SweepCompleted(report, took)
	s.opts.logger.Info("expiry sweep completed",
		zap.Stringer("as_of", asOf),
		zap.Int("scanned", report.Scanned),
		zap.Int("raised", len(report.Raised)),
		zap.Int("failed", report.Failed),
		zap.Duration("took", took))
	return report, nil
}
