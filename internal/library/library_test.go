package library

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justestif/go-spotify-mood-map/internal/catalog"
	"github.com/justestif/go-spotify-mood-map/internal/clustering"
	"github.com/justestif/go-spotify-mood-map/internal/spotify"
)

type fakeSource struct {
	mu        sync.Mutex
	recent    []clustering.Track
	top       []clustering.Track
	playlist  []clustering.Track
	features  map[string]clustering.AudioFeatures
	genres    map[string][]string
	topErr    error
	limits    []int
	topRanges []spotify.TimeRange
}

func (f *fakeSource) RecentlyPlayed(_ context.Context, limit int) ([]clustering.Track, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limits = append(f.limits, limit)
	return f.recent, nil
}

func (f *fakeSource) TopTracks(_ context.Context, limit int, r spotify.TimeRange) ([]clustering.Track, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limits = append(f.limits, limit)
	f.topRanges = append(f.topRanges, r)
	return f.top, f.topErr
}

func (f *fakeSource) PlaylistTracks(context.Context, string) ([]clustering.Track, error) {
	return f.playlist, nil
}

func (f *fakeSource) AudioFeatures(_ context.Context, ids []string) (map[string]clustering.AudioFeatures, error) {
	out := make(map[string]clustering.AudioFeatures)
	for _, id := range ids {
		if v, ok := f.features[id]; ok {
			out[id] = v
		}
	}
	return out, nil
}

func (f *fakeSource) ArtistGenres(_ context.Context, ids []string) (map[string][]string, error) {
	out := make(map[string][]string)
	for _, id := range ids {
		out[id] = f.genres[id]
	}
	return out, nil
}

func f64(v float64) *float64 { return &v }

func at(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func newService(opts ...Option) *Service {
	return New(catalog.NewService(catalog.NewMemoryStore(), catalog.WithFeatureFetching(true)), opts...)
}

func TestUserData(t *testing.T) {
	pop := 70
	src := &fakeSource{
		recent: []clustering.Track{
			{ID: "t1", Name: "One", ArtistID: "a1", PlayedAt: at("2024-06-01T22:15:00Z")}, // Saturday
			{ID: "t2", Name: "Two", ArtistID: "a2", PlayedAt: at("2024-06-03T08:00:00Z")}, // Monday
		},
		top: []clustering.Track{
			{ID: "t2", Name: "Two", ArtistID: "a2", Album: "Album Two", Popularity: &pop},
			{ID: "t3", Name: "Three", ArtistID: "a1"},
		},
		features: map[string]clustering.AudioFeatures{
			"t1": {Energy: f64(0.9), Valence: f64(0.9)},
			"t2": {Energy: f64(0.2), Valence: f64(0.1)},
			"t3": {Energy: f64(0.8), Valence: f64(0.2)},
		},
		genres: map[string][]string{
			"a1": {"indie", "rock"},
			"a2": {"rock"},
		},
	}

	table, md, err := newService().UserData(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, []int{DefaultHistoryLimit, DefaultHistoryLimit}, src.limits)
	assert.Equal(t, []spotify.TimeRange{spotify.MediumTerm}, src.topRanges)

	require.Equal(t, 3, table.Len())
	assert.Equal(t, "t1", table.Track(0).ID)
	assert.Equal(t, "t2", table.Track(1).ID)
	assert.Equal(t, "t3", table.Track(2).ID)
	assert.Equal(t, "Album Two", table.Track(1).Album, "duplicate fills album")
	require.NotNil(t, table.Track(1).Popularity)
	assert.Equal(t, 70, *table.Track(1).Popularity)
	assert.NotNil(t, table.Track(1).PlayedAt, "first occurrence wins")

	assert.Equal(t, 3, md.TotalTracks)
	require.NotNil(t, md.TimePeriod)
	assert.Equal(t, *at("2024-06-01T22:15:00Z"), md.TimePeriod.Start)
	assert.Equal(t, *at("2024-06-03T08:00:00Z"), md.TimePeriod.End)
	assert.Equal(t, []GenreCount{{"rock", 3}, {"indie", 2}}, md.Genres)
	assert.Equal(t, map[string]int{
		clustering.TrackMoodHappy:     1,
		clustering.TrackMoodSad:       1,
		clustering.TrackMoodEnergetic: 1,
	}, md.MoodDistribution)
	assert.Equal(t, 1, md.ListeningHours[22])
	assert.Equal(t, 1, md.ListeningHours[8])
	assert.InDelta(t, 0.5, md.WeekendShare, 1e-9)
}

func TestUserDataOptions(t *testing.T) {
	src := &fakeSource{}

	table, md, err := newService(WithHistoryLimit(20), WithTopRange(spotify.LongTerm)).UserData(context.Background(), src)
	require.NoError(t, err)

	assert.ElementsMatch(t, []int{20, 20}, src.limits)
	assert.Equal(t, []spotify.TimeRange{spotify.LongTerm}, src.topRanges)
	assert.Equal(t, 0, table.Len())
	assert.Nil(t, md.TimePeriod)
	assert.Empty(t, md.Genres)
	assert.Empty(t, md.MoodDistribution)
	assert.Zero(t, md.WeekendShare)
}

func TestUserDataFetchError(t *testing.T) {
	src := &fakeSource{topErr: errors.New("boom")}

	_, _, err := newService().UserData(context.Background(), src)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetching top tracks")
}

func TestPlaylistTable(t *testing.T) {
	src := &fakeSource{
		playlist: []clustering.Track{
			{ID: "p1", ArtistID: "a1"},
			{ID: "p2", ArtistID: "a1"},
			{ID: "p1", ArtistID: "a1"},
		},
		features: map[string]clustering.AudioFeatures{
			"p1": {Energy: f64(0.4)},
		},
		genres: map[string][]string{"a1": {"jazz"}},
	}

	table, err := newService().PlaylistTable(context.Background(), src, "pl")
	require.NoError(t, err)

	require.Equal(t, 2, table.Len())
	assert.Equal(t, 0.4, *table.Track(0).Features.Energy)
	assert.Nil(t, table.Track(1).Features.Energy)
	assert.Equal(t, []string{"jazz"}, table.Track(1).Genres)
	assert.True(t, table.HasColumn(clustering.Energy))
	assert.False(t, table.HasColumn(clustering.Tempo))
}

func TestCombine(t *testing.T) {
	pop := 10
	recent := []clustering.Track{{ID: "a"}, {ID: ""}, {ID: "b", Album: "kept"}}
	top := []clustering.Track{{ID: "b", Album: "ignored", Popularity: &pop}, {ID: "c"}, {ID: "a"}}

	got := combine(recent, top)

	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
	assert.Equal(t, "c", got[2].ID)
	assert.Equal(t, "kept", got[1].Album)
	assert.Equal(t, &pop, got[1].Popularity)
}

func TestDescribeLocation(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	table := clustering.NewTable([]clustering.Track{
		{ID: "t1", PlayedAt: at("2024-06-07T22:30:00Z")}, // Saturday 01:30 in UTC+3
	})

	md := Describe(table, loc)

	assert.Equal(t, 1, md.ListeningHours[1])
	assert.InDelta(t, 1.0, md.WeekendShare, 1e-9)
}
