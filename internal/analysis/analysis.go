// Package analysis runs the clustering pipeline over a feature table and
// turns clusters into Spotify playlists.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/justestif/go-spotify-mood-map/internal/clustering"
	"github.com/justestif/go-spotify-mood-map/internal/db"
)

// Messages reported alongside a degraded clustering, one per cause.
const (
	DegradedMessage           = "Clustering could not be performed due to missing audio features."
	TooFewTracksMessage       = "Clustering could not be performed: not enough tracks for the requested number of clusters."
	IncompleteFeaturesMessage = "Clustering could not be performed: some tracks have missing or invalid audio feature values."
	notPerformedMessage       = "Clustering could not be performed."
)

// degradedMessage names the cause of a degraded clustering for end users.
func degradedMessage(err error) string {
	var (
		missing    *clustering.MissingFeaturesError
		incomplete *clustering.IncompleteFeaturesError
	)
	switch {
	case errors.As(err, &missing):
		return DegradedMessage
	case errors.Is(err, clustering.ErrInsufficientRows):
		return TooFewTracksMessage
	case errors.As(err, &incomplete):
		return IncompleteFeaturesMessage
	default:
		return notPerformedMessage
	}
}

// Common errors.
var (
	// ErrNotClustered is returned when a playlist is requested from a report
	// whose clustering was degraded.
	ErrNotClustered = errors.New("clustering was not performed")

	// ErrUnknownCluster is returned for a cluster id outside [0, k).
	ErrUnknownCluster = errors.New("unknown cluster")
)

// PlaylistCreator creates playlists on the user's Spotify account.
type PlaylistCreator interface {
	CreatePlaylist(ctx context.Context, name, description string, public bool) (string, error)
	AddTracksToPlaylist(ctx context.Context, playlistID string, trackIDs []string) error
}

// PlaylistRecorder persists generated playlists. *db.PlaylistRepository
// satisfies it.
type PlaylistRecorder interface {
	Create(ctx context.Context, p *db.ClusterPlaylist, trackIDs []string) error
}

// Service clusters tables and builds reports.
type Service struct {
	cfg      clustering.Config
	recorder PlaylistRecorder
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithRecorder records every created playlist.
func WithRecorder(r PlaylistRecorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates an analysis service. The clustering config is validated once
// here; each Analyze call builds its own engine from it.
func New(cfg clustering.Config, opts ...Option) (*Service, error) {
	s := &Service{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	engine, err := clustering.New(cfg)
	if err != nil {
		return nil, err
	}
	s.cfg = engine.Config()
	return s, nil
}

// NumClusters returns the configured k.
func (s *Service) NumClusters() int {
	return s.cfg.NumClusters
}

// Analyze clusters table and summarizes the result. A degraded clustering is
// not an error: the report carries the sentinel summary, no tree and a
// message. Cancellation and label shape errors are returned.
func (s *Service) Analyze(ctx context.Context, table *clustering.Table) (*Report, error) {
	engine, err := clustering.New(s.cfg, clustering.WithLogger(s.logger))
	if err != nil {
		return nil, err
	}

	report := &Report{table: table, k: s.cfg.NumClusters}

	switch res := engine.Cluster(ctx, table).(type) {
	case clustering.Degraded:
		if errors.Is(res.Err, context.Canceled) || errors.Is(res.Err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("clustering: %w", res.Err)
		}
		report.Summaries = clustering.NotClustered()
		report.Labels = []int{}
		report.Message = degradedMessage(res.Err)
		report.Reason = res.Reason
		return report, nil

	case clustering.Success:
		summaries, err := clustering.Summarize(table, res.Labels, s.cfg.NumClusters)
		if err != nil {
			return nil, fmt.Errorf("summarizing clusters: %w", err)
		}
		tree, err := clustering.BuildTree(table, res.Labels, summaries)
		if err != nil {
			return nil, fmt.Errorf("building tree: %w", err)
		}
		meta := res.Metadata
		report.Labels = res.Labels
		report.Summaries = summaries
		report.Tree = tree
		report.Clustering = &meta

		s.logger.Info("clustered tracks", "tracks", table.Len(), "clusters", s.cfg.NumClusters,
			"components", meta.Components, "inertia", meta.Inertia)
		return report, nil

	default:
		return nil, fmt.Errorf("clustering: unexpected result %T", res)
	}
}

// ClusterTrackIDs returns the IDs of the tracks assigned to cluster id, in
// table order.
func (s *Service) ClusterTrackIDs(report *Report, id int) ([]string, error) {
	if !report.Clustered() {
		return nil, ErrNotClustered
	}
	if id < 0 || id >= report.k {
		return nil, fmt.Errorf("%w: %d (have %d clusters)", ErrUnknownCluster, id, report.k)
	}

	var ids []string
	for i, label := range report.Labels {
		if label == id {
			ids = append(ids, report.table.Track(i).ID)
		}
	}
	return ids, nil
}
