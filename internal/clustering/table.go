package clustering

import (
	"fmt"
	"math"
	"slices"
)

// Table is an ordered collection of tracks plus the set of audio feature columns
// it carries. A column can be absent from the whole table, which is different from
// a single row lacking a value.
type Table struct {
	tracks  []Track
	present map[string]bool
}

// NewTable builds a table from tracks. An audio column is present when at least one
// track carries a value for it. Tracks with a duplicate ID are dropped, keeping the
// first occurrence.
func NewTable(tracks []Track) *Table {
	rows := dedupe(tracks)

	present := make(map[string]bool)
	for _, t := range rows {
		for _, name := range FeatureColumns() {
			if t.Features.Get(name) != nil {
				present[name] = true
			}
		}
	}

	return &Table{tracks: rows, present: present}
}

// NewTableWithColumns builds a table whose audio columns are exactly the given ones,
// regardless of which values the tracks carry. Unknown column names are ignored.
func NewTableWithColumns(tracks []Track, columns []string) *Table {
	present := make(map[string]bool, len(columns))
	for _, name := range columns {
		if slices.Contains(FeatureColumns(), name) {
			present[name] = true
		}
	}
	return &Table{tracks: dedupe(tracks), present: present}
}

func dedupe(tracks []Track) []Track {
	seen := make(map[string]bool, len(tracks))
	rows := make([]Track, 0, len(tracks))
	for _, t := range tracks {
		if seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		rows = append(rows, t)
	}
	return rows
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.tracks)
}

// Tracks returns the rows in table order. The slice must not be modified.
func (t *Table) Tracks() []Track {
	if t == nil {
		return nil
	}
	return t.tracks
}

// Track returns the row at index i.
func (t *Table) Track(i int) Track {
	return t.tracks[i]
}

// HasColumn reports whether the named column is present.
func (t *Table) HasColumn(name string) bool {
	if slices.Contains(identityColumns, name) {
		return true
	}
	return t != nil && t.present[name]
}

// Columns lists the identity columns followed by the present audio columns.
func (t *Table) Columns() []string {
	cols := slices.Clone(identityColumns)
	for _, name := range FeatureColumns() {
		if t.HasColumn(name) {
			cols = append(cols, name)
		}
	}
	return cols
}

// MissingColumns returns the required columns absent from the table, in the order given.
func (t *Table) MissingColumns(required []string) []string {
	var missing []string
	for _, name := range required {
		if !t.HasColumn(name) {
			missing = append(missing, name)
		}
	}
	return missing
}

// Values returns the named audio column with NaN where a row has no value.
func (t *Table) Values(column string) ([]float64, error) {
	if !t.HasColumn(column) || slices.Contains(identityColumns, column) {
		return nil, fmt.Errorf("column %q is not a present audio column", column)
	}
	out := make([]float64, len(t.tracks))
	for i, track := range t.tracks {
		if v := track.Features.Get(column); v != nil {
			out[i] = *v
		} else {
			out[i] = math.NaN()
		}
	}
	return out, nil
}

// Validate checks the row identity invariant.
func (t *Table) Validate() error {
	seen := make(map[string]int, t.Len())
	for i, track := range t.Tracks() {
		if track.ID == "" {
			return fmt.Errorf("row %d: empty track id", i)
		}
		if j, ok := seen[track.ID]; ok {
			return fmt.Errorf("rows %d and %d: duplicate track id %q", j, i, track.ID)
		}
		seen[track.ID] = i
	}
	return nil
}
