package models

import (
	"context"
	"errors"
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// ForestConfig tunes the bagged regression-tree learner. Zero values select
// the defaults.
type ForestConfig struct {
	// Trees is the ensemble size. Default 400.
	Trees int
	// Seed makes training reproducible. Default 42.
	Seed uint64
	// MinLeaf is the minimum number of examples per leaf. Default 1.
	MinLeaf int
	// MaxDepth bounds tree depth; 0 means unlimited.
	MaxDepth int
	// MaxFeatures is the number of features tried per split; 0 means all.
	MaxFeatures int
	// Workers bounds concurrent tree construction. Default GOMAXPROCS.
	Workers int
}

const (
	defaultTrees = 400
	defaultSeed  = 42
)

// Forest is a random-forest style learner: each tree is a CART regression
// tree grown on a bootstrap sample, and predictions are the ensemble mean.
type Forest struct {
	cfg ForestConfig
}

// NewForest returns a Forest learner with cfg's zero fields defaulted.
func NewForest(cfg ForestConfig) *Forest {
	if cfg.Trees <= 0 {
		cfg.Trees = defaultTrees
	}
	if cfg.Seed == 0 {
		cfg.Seed = defaultSeed
	}
	if cfg.MinLeaf <= 0 {
		cfg.MinLeaf = 1
	}
	if cfg.MaxDepth < 0 {
		cfg.MaxDepth = 0
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	return &Forest{cfg: cfg}
}

func (f *Forest) Name() string { return "forest" }

// Config returns the effective configuration.
func (f *Forest) Config() ForestConfig { return f.cfg }

// Fit grows cfg.Trees trees concurrently. Tree i draws its bootstrap sample
// from a generator seeded with (Seed, i), so the result does not depend on
// scheduling.
func (f *Forest) Fit(ctx context.Context, X [][]float64, y []float64) (Regressor, error) {
	if len(X) == 0 || len(X) != len(y) {
		return nil, errors.New("forest: empty or mismatched training set")
	}
	if len(X[0]) == 0 {
		return nil, errors.New("forest: examples have no features")
	}

	trees := make([]*regressionTree, f.cfg.Trees)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.Workers)

	for t := range trees {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewPCG(f.cfg.Seed, uint64(t)))
			idx := make([]int, len(y))
			for i := range idx {
				idx[i] = rng.IntN(len(y))
			}
			trees[t] = buildTree(X, y, idx, f.cfg.MinLeaf, f.cfg.MaxDepth, f.cfg.MaxFeatures, rng)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &forestRegressor{trees: trees}, nil
}

type forestRegressor struct {
	trees []*regressionTree
}

func (r *forestRegressor) PredictNext(window []float64) float64 {
	var sum float64
	for _, t := range r.trees {
		sum += t.predict(window)
	}
	return sum / float64(len(r.trees))
}
