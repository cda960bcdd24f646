package clustering

import (
	"cmp"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/muesli/clusters"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// rowObservation wraps a row of the reduced matrix for the clusters package.
type rowObservation struct {
	row    int
	coords clusters.Coordinates
}

func (o rowObservation) Coordinates() clusters.Coordinates {
	return o.coords
}

func (o rowObservation) Distance(point clusters.Coordinates) float64 {
	return o.coords.Distance(point)
}

// partitioning is the best k-means fit found across restarts.
type partitioning struct {
	labels  []int
	centers [][]float64
	inertia float64
}

// partition runs seeded k-means on the rows of x. Every restart draws its initial
// centers from rng with k-means++, so identical inputs and seeds give identical
// output. The restart with the lowest inertia wins, ties keep the earlier one.
func partition(x *mat.Dense, k, restarts, maxIter int, rng *rand.Rand) partitioning {
	obs := observations(x)

	var best partitioning
	for r := range restarts {
		centers := seedCenters(obs, k, rng)
		p := lloyd(obs, centers, maxIter)
		if r == 0 || p.inertia < best.inertia {
			best = p
		}
	}
	return best
}

func observations(x *mat.Dense) []rowObservation {
	n, _ := x.Dims()
	obs := make([]rowObservation, n)
	for i := range n {
		obs[i] = rowObservation{row: i, coords: mat.Row(nil, i, x)}
	}
	return obs
}

// seedCenters picks k initial centers with k-means++ weighting.
func seedCenters(obs []rowObservation, k int, rng *rand.Rand) []clusters.Coordinates {
	n := len(obs)
	centers := make([]clusters.Coordinates, 0, k)
	centers = append(centers, slices.Clone(obs[rng.IntN(n)].coords))

	d2 := make([]float64, n)
	for i, o := range obs {
		d2[i] = sqDist(o.coords, centers[0])
	}

	for len(centers) < k {
		next := len(centers) % n
		if total := floats.Sum(d2); total > 0 {
			target := rng.Float64() * total
			next = n - 1
			var acc float64
			for i, w := range d2 {
				acc += w
				if acc > target {
					next = i
					break
				}
			}
		}
		c := slices.Clone(obs[next].coords)
		centers = append(centers, c)
		for i, o := range obs {
			d2[i] = min(d2[i], sqDist(o.coords, c))
		}
	}
	return centers
}

// lloyd refines centers until assignments stop changing or maxIter is reached.
func lloyd(obs []rowObservation, centers []clusters.Coordinates, maxIter int) partitioning {
	k := len(centers)
	cc := make(clusters.Clusters, k)
	for i := range cc {
		cc[i].Center = centers[i]
	}

	labels := make([]int, len(obs))
	for i := range labels {
		labels[i] = -1
	}

	for range maxIter {
		cc.Reset()
		changed := false
		for i, o := range obs {
			ci := cc.Nearest(o)
			cc[ci].Append(o)
			if labels[i] != ci {
				labels[i] = ci
				changed = true
			}
		}
		if fillEmpty(cc, labels) {
			changed = true
		}
		cc.Recenter()
		if !changed {
			break
		}
	}

	p := partitioning{labels: labels, centers: make([][]float64, k)}
	for i, c := range cc {
		p.centers[i] = slices.Clone(c.Center)
	}
	for i, o := range obs {
		p.inertia += sqDist(o.coords, cc[labels[i]].Center)
	}
	return p
}

// fillEmpty gives every empty cluster the point farthest from its own center, taken
// from a cluster with more than one member. Ties go to the lowest row. It reports
// whether any point moved.
func fillEmpty(cc clusters.Clusters, labels []int) bool {
	moved := false
	for ci := range cc {
		if len(cc[ci].Observations) > 0 {
			continue
		}

		from, at, bestRow, far := -1, -1, -1, -1.0
		for cj := range cc {
			if len(cc[cj].Observations) < 2 {
				continue
			}
			for idx, o := range cc[cj].Observations {
				d := sqDist(o.Coordinates(), cc[cj].Center)
				row := o.(rowObservation).row
				if d > far || (d == far && row < bestRow) {
					from, at, bestRow, far = cj, idx, row, d
				}
			}
		}
		if from < 0 {
			continue
		}

		o := cc[from].Observations[at]
		cc[from].Observations = slices.Delete(cc[from].Observations, at, at+1)
		cc[ci].Append(o)
		cc[ci].Center = slices.Clone(o.Coordinates())
		labels[o.(rowObservation).row] = ci
		moved = true
	}
	return moved
}

// relabel renames cluster ids through perm, where perm[old] is the new id.
func (p *partitioning) relabel(perm []int) {
	for i, l := range p.labels {
		p.labels[i] = perm[l]
	}
	centers := make([][]float64, len(p.centers))
	for old, c := range p.centers {
		centers[perm[old]] = c
	}
	p.centers = centers
}

// canonicalOrder maps raw k-means ids to ids ordered by ascending mean energy of
// the members. Ties are broken by the lowest member row, empty clusters go last.
func canonicalOrder(labels []int, k int, energy []float64) []int {
	type group struct {
		id    int
		sum   float64
		count int
		first int
	}
	groups := make([]group, k)
	for i := range groups {
		groups[i] = group{id: i, first: math.MaxInt}
	}
	for row, l := range labels {
		g := &groups[l]
		g.sum += energy[row]
		g.count++
		g.first = min(g.first, row)
	}

	slices.SortStableFunc(groups, func(a, b group) int {
		if (a.count == 0) != (b.count == 0) {
			if a.count == 0 {
				return 1
			}
			return -1
		}
		if a.count > 0 {
			if c := cmp.Compare(a.sum/float64(a.count), b.sum/float64(b.count)); c != 0 {
				return c
			}
		}
		return cmp.Compare(a.first, b.first)
	})

	perm := make([]int, k)
	for newID, g := range groups {
		perm[g.id] = newID
	}
	return perm
}

func sqDist(a, b []float64) float64 {
	d := floats.Distance(a, b, 2)
	return d * d
}
