package clustering

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInsufficientRows is returned when a table has fewer rows than the engine needs
// to fit k clusters.
var ErrInsufficientRows = errors.New("not enough tracks to cluster")

// MissingFeaturesError names required audio feature columns absent from the table.
type MissingFeaturesError struct {
	Columns []string
}

func (e *MissingFeaturesError) Error() string {
	return fmt.Sprintf("clustering cannot be performed: missing audio feature columns: [%s]",
		strings.Join(e.Columns, ", "))
}

// IncompleteFeaturesError reports a present feature column with no value on some rows.
type IncompleteFeaturesError struct {
	Column string
	Rows   []int
}

func (e *IncompleteFeaturesError) Error() string {
	return fmt.Sprintf("clustering cannot be performed: column %q has no value on %d row(s)",
		e.Column, len(e.Rows))
}

// ShapeMismatchError reports a cluster assignment that does not fit the table it is
// applied to. It signals a caller bug and is never converted into a degraded result.
type ShapeMismatchError struct {
	Rows   int // table rows
	Labels int // assignment length
	Index  int // offending row, -1 for a length mismatch
	Label  int // offending label
	K      int
}

func (e *ShapeMismatchError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("cluster assignment has %d labels for %d rows", e.Labels, e.Rows)
	}
	return fmt.Sprintf("row %d has cluster id %d outside [0, %d)", e.Index, e.Label, e.K)
}

// checkAssignment verifies labels against a table of n rows and k clusters.
func checkAssignment(n int, labels []int, k int) error {
	if len(labels) != n {
		return &ShapeMismatchError{Rows: n, Labels: len(labels), Index: -1, K: k}
	}
	for i, l := range labels {
		if l < 0 || l >= k {
			return &ShapeMismatchError{Rows: n, Labels: len(labels), Index: i, Label: l, K: k}
		}
	}
	return nil
}
