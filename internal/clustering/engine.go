package clustering

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/mat"
)

// Config holds clustering parameters. Zero values are replaced by defaults.
type Config struct {
	NumClusters       int      // Number of clusters to create (default: 5)
	Seed              *uint64  // Seed for partitioning and the embedding (nil: DefaultSeed; 0 is a valid seed)
	Features          []string // Feature columns used for clustering (default: FeatureColumns())
	VarianceThreshold float64  // Share of variance the reduction keeps (default: 0.95)
	Restarts          int      // Seeded k-means restarts, best inertia wins (default: 4)
	MaxIterations     int      // Lloyd iterations per restart (default: 300)
	Embedding         EmbeddingConfig
}

// EmbeddingConfig holds parameters of the 2-D visualization embedding.
type EmbeddingConfig struct {
	Neighbors int     // Size of the local neighbourhood (default: 15)
	MinDist   float64 // Minimum distance between embedded points (default: 0.1)
	Epochs    int     // Optimization epochs (default: 200)
}

// DefaultSeed is the seed used when Config.Seed is nil.
const DefaultSeed uint64 = 42

// SeedOf returns a Config.Seed holding v.
func SeedOf(v uint64) *uint64 { return &v }

// DefaultConfig returns the recommended default configuration.
func DefaultConfig() Config {
	return Config{
		NumClusters:       5,
		Seed:              SeedOf(DefaultSeed),
		Features:          FeatureColumns(),
		VarianceThreshold: 0.95,
		Restarts:          4,
		MaxIterations:     300,
		Embedding: EmbeddingConfig{
			Neighbors: 15,
			MinDist:   0.1,
			Epochs:    200,
		},
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.NumClusters == 0 {
		c.NumClusters = def.NumClusters
	}
	if c.Seed == nil {
		c.Seed = def.Seed
	} else {
		c.Seed = SeedOf(*c.Seed)
	}
	if len(c.Features) == 0 {
		c.Features = def.Features
	}
	if c.VarianceThreshold == 0 {
		c.VarianceThreshold = def.VarianceThreshold
	}
	if c.Restarts == 0 {
		c.Restarts = def.Restarts
	}
	if c.MaxIterations == 0 {
		c.MaxIterations = def.MaxIterations
	}
	if c.Embedding.Neighbors == 0 {
		c.Embedding.Neighbors = def.Embedding.Neighbors
	}
	if c.Embedding.MinDist == 0 {
		c.Embedding.MinDist = def.Embedding.MinDist
	}
	if c.Embedding.Epochs == 0 {
		c.Embedding.Epochs = def.Embedding.Epochs
	}
	return c
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch {
	case c.NumClusters < 1:
		return fmt.Errorf("cluster count must be at least 1, got %d", c.NumClusters)
	case c.VarianceThreshold <= 0 || c.VarianceThreshold > 1:
		return fmt.Errorf("variance threshold must be in (0, 1], got %v", c.VarianceThreshold)
	case c.Restarts < 1:
		return fmt.Errorf("restarts must be at least 1, got %d", c.Restarts)
	case c.MaxIterations < 1:
		return fmt.Errorf("max iterations must be at least 1, got %d", c.MaxIterations)
	case c.Embedding.Neighbors < 2:
		return fmt.Errorf("embedding neighbours must be at least 2, got %d", c.Embedding.Neighbors)
	case c.Embedding.MinDist < 0:
		return fmt.Errorf("embedding min distance must not be negative, got %v", c.Embedding.MinDist)
	case c.Embedding.Epochs < 1:
		return fmt.Errorf("embedding epochs must be at least 1, got %d", c.Embedding.Epochs)
	}

	required := FeatureColumns()
	if len(c.Features) != len(required) {
		return fmt.Errorf("feature list must name the %d audio features, got %d", len(required), len(c.Features))
	}
	seen := make(map[string]bool, len(c.Features))
	for _, name := range c.Features {
		if !slices.Contains(required, name) {
			return fmt.Errorf("unknown audio feature %q", name)
		}
		if seen[name] {
			return fmt.Errorf("duplicate audio feature %q", name)
		}
		seen[name] = true
	}
	return nil
}

// Result is the outcome of Engine.Cluster: either Success or Degraded.
type Result interface {
	isResult()
}

// Success carries one label per table row plus clustering metadata.
type Success struct {
	Labels   []int
	Metadata Metadata
}

// Degraded means clustering could not be performed on the given table.
type Degraded struct {
	Reason string
	Err    error
}

func (Success) isResult()  {}
func (Degraded) isResult() {}

// Metadata describes a successful clustering.
type Metadata struct {
	ClusterCenters    [][]float64        `json:"cluster_centers"`
	UMAPFeatures      [][2]float64       `json:"umap_features"`
	FeatureImportance map[string]float64 `json:"feature_importance"`
	Components        int                `json:"n_components"`
	ExplainedVariance []float64          `json:"explained_variance_ratio"`
	Inertia           float64            `json:"inertia"`
}

// Engine clusters feature tables. It holds only configuration, so a single Engine
// may be shared between goroutines.
type Engine struct {
	cfg    Config
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used to report degraded results.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an engine. Zero config fields take their defaults.
func New(cfg Config, opts ...Option) (*Engine, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid clustering config: %w", err)
	}
	e := &Engine{
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	cfg := e.cfg
	cfg.Features = slices.Clone(e.cfg.Features)
	cfg.Seed = SeedOf(*e.cfg.Seed)
	return cfg
}

// NumClusters returns k.
func (e *Engine) NumClusters() int {
	return e.cfg.NumClusters
}

// Cluster partitions the table into k clusters. Validation failures and cancellation
// produce a Degraded result; Cluster never panics on malformed tables.
func (e *Engine) Cluster(ctx context.Context, table *Table) Result {
	res, err := e.cluster(ctx, table)
	if err != nil {
		e.logger.Warn("clustering not performed", "reason", err.Error(), "rows", table.Len())
		return Degraded{Reason: err.Error(), Err: err}
	}
	return res
}

func (e *Engine) cluster(ctx context.Context, table *Table) (Success, error) {
	k := e.cfg.NumClusters

	if missing := table.MissingColumns(e.cfg.Features); len(missing) > 0 {
		return Success{}, &MissingFeaturesError{Columns: missing}
	}

	n := table.Len()
	if need := max(k, 2); n < need {
		return Success{}, fmt.Errorf("%w: have %d, need at least %d", ErrInsufficientRows, n, need)
	}

	x, err := e.featureMatrix(table)
	if err != nil {
		return Success{}, err
	}
	raw := mat.DenseCopyOf(x)

	standardize(x)

	proj, err := reduce(x, e.cfg.VarianceThreshold)
	if err != nil {
		return Success{}, err
	}
	if err := ctx.Err(); err != nil {
		return Success{}, err
	}

	seed := *e.cfg.Seed
	rng := rand.New(rand.NewPCG(seed, seed))

	part := partition(proj.scores, k, e.cfg.Restarts, e.cfg.MaxIterations, rng)

	energy := mat.Col(nil, slices.Index(e.cfg.Features, Energy), raw)
	part.relabel(canonicalOrder(part.labels, k, energy))

	if err := ctx.Err(); err != nil {
		return Success{}, err
	}

	embedRNG := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	points, err := embed(ctx, proj.scores, e.cfg.Embedding, embedRNG)
	if err != nil {
		return Success{}, err
	}

	importance := make(map[string]float64, len(e.cfg.Features))
	for j, name := range e.cfg.Features {
		importance[name] = math.Abs(proj.loadings.At(j, 0))
	}

	return Success{
		Labels: part.labels,
		Metadata: Metadata{
			ClusterCenters:    part.centers,
			UMAPFeatures:      points,
			FeatureImportance: importance,
			Components:        len(proj.ratios),
			ExplainedVariance: proj.ratios,
			Inertia:           part.inertia,
		},
	}, nil
}

// featureMatrix copies the configured feature columns into an n×d matrix.
func (e *Engine) featureMatrix(table *Table) (*mat.Dense, error) {
	n, d := table.Len(), len(e.cfg.Features)
	x := mat.NewDense(n, d, nil)
	for j, name := range e.cfg.Features {
		col, err := table.Values(name)
		if err != nil {
			return nil, err
		}
		var gaps []int
		for i, v := range col {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				gaps = append(gaps, i)
			}
		}
		if len(gaps) > 0 {
			return nil, &IncompleteFeaturesError{Column: name, Rows: gaps}
		}
		x.SetCol(j, col)
	}
	return x, nil
}

// IsDegraded reports whether r is a Degraded result, returning it if so.
func IsDegraded(r Result) (Degraded, bool) {
	d, ok := r.(Degraded)
	return d, ok
}

// MissingFeatures extracts the missing columns from a degraded result, if that was
// the cause.
func MissingFeatures(r Result) ([]string, bool) {
	d, ok := r.(Degraded)
	if !ok {
		return nil, false
	}
	var mfe *MissingFeaturesError
	if errors.As(d.Err, &mfe) {
		return mfe.Columns, true
	}
	return nil, false
}
