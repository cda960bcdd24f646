package clustering

import (
	"cmp"
	"context"
	"math"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

const (
	negativeSamples = 5
	gradientClip    = 4.0
	initialScale    = 10.0
	sigmaSteps      = 64
	sigmaTolerance  = 1e-5
)

// Curve parameters for min_dist 0.1 with unit spread, used when the fit fails.
const (
	defaultCurveA = 1.577
	defaultCurveB = 0.895
)

// edge is one weighted edge of the symmetric fuzzy neighbour graph, i < j.
type edge struct {
	i, j   int
	weight float64
}

// embed lays out the rows of x in two dimensions. It builds a fuzzy k-nearest
// neighbour graph and optimizes the layout with attractive updates along graph edges
// and repulsive updates against random rows. All randomness comes from rng.
func embed(ctx context.Context, x *mat.Dense, cfg EmbeddingConfig, rng *rand.Rand) ([][2]float64, error) {
	n, _ := x.Dims()
	switch n {
	case 0:
		return nil, nil
	case 1:
		return [][2]float64{{0, 0}}, nil
	}

	edges := fuzzyGraph(x, min(cfg.Neighbors, n-1))
	y := initialLayout(x, rng)
	a, b := fitCurve(cfg.MinDist)

	maxWeight := 0.0
	for _, e := range edges {
		maxWeight = max(maxWeight, e.weight)
	}
	period := make([]float64, len(edges))
	next := make([]float64, len(edges))
	for idx, e := range edges {
		period[idx] = maxWeight / e.weight
		next[idx] = period[idx]
	}

	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		alpha := 1 - float64(epoch-1)/float64(cfg.Epochs)

		for idx, e := range edges {
			if next[idx] > float64(epoch) {
				continue
			}
			next[idx] += period[idx]

			attract(y[e.i][:], y[e.j][:], a, b, alpha)
			for range negativeSamples {
				other := rng.IntN(n)
				if other == e.i {
					continue
				}
				repel(y[e.i][:], y[other][:], a, b, alpha)
			}
		}
	}
	return y, nil
}

func attract(yi, yj []float64, a, b, alpha float64) {
	d2 := sqDist(yi, yj)
	if d2 <= 0 {
		return
	}
	coeff := -2 * a * b * math.Pow(d2, b-1) / (a*math.Pow(d2, b) + 1)
	for d := range yi {
		g := clip(coeff * (yi[d] - yj[d]))
		yi[d] += g * alpha
		yj[d] -= g * alpha
	}
}

func repel(yi, yk []float64, a, b, alpha float64) {
	d2 := sqDist(yi, yk)
	if d2 <= 0 {
		return
	}
	coeff := 2 * b / ((0.001 + d2) * (a*math.Pow(d2, b) + 1))
	for d := range yi {
		yi[d] += clip(coeff*(yi[d]-yk[d])) * alpha
	}
}

func clip(v float64) float64 {
	return math.Max(-gradientClip, math.Min(gradientClip, v))
}

// fuzzyGraph connects every row to its k nearest rows with membership strengths
// and symmetrizes them with the probabilistic union a+b-ab.
func fuzzyGraph(x *mat.Dense, k int) []edge {
	n, _ := x.Dims()
	rows := make([][]float64, n)
	for i := range n {
		rows[i] = mat.Row(nil, i, x)
	}

	type neighbour struct {
		row  int
		dist float64
	}

	weights := make(map[[2]int]float64)
	for i := range n {
		nb := make([]neighbour, 0, n-1)
		for j := range n {
			if j != i {
				nb = append(nb, neighbour{row: j, dist: floats.Distance(rows[i], rows[j], 2)})
			}
		}
		slices.SortFunc(nb, func(p, q neighbour) int {
			if c := cmp.Compare(p.dist, q.dist); c != 0 {
				return c
			}
			return cmp.Compare(p.row, q.row)
		})
		nb = nb[:k]

		dists := make([]float64, k)
		for idx, v := range nb {
			dists[idx] = v.dist
		}
		rho, sigma := bandwidth(dists)

		for _, v := range nb {
			w := 1.0
			if v.dist > rho {
				w = math.Exp(-(v.dist - rho) / sigma)
			}
			key := [2]int{min(i, v.row), max(i, v.row)}
			prev := weights[key]
			weights[key] = prev + w - prev*w
		}
	}

	edges := make([]edge, 0, len(weights))
	for key, w := range weights {
		if w > 0 {
			edges = append(edges, edge{i: key[0], j: key[1], weight: w})
		}
	}
	slices.SortFunc(edges, func(p, q edge) int {
		if c := cmp.Compare(p.i, q.i); c != 0 {
			return c
		}
		return cmp.Compare(p.j, q.j)
	})
	return edges
}

// bandwidth returns the distance to the nearest distinct neighbour and the scale at
// which the neighbour memberships sum to log2(k).
func bandwidth(dists []float64) (rho, sigma float64) {
	for _, d := range dists {
		if d > 0 {
			rho = d
			break
		}
	}
	if len(dists) < 2 {
		return rho, 1
	}

	target := math.Log2(float64(len(dists)))
	lo, hi := 0.0, math.Inf(1)
	sigma = 1
	for range sigmaSteps {
		var sum float64
		for _, d := range dists {
			sum += math.Exp(-math.Max(0, d-rho) / sigma)
		}
		if math.Abs(sum-target) < sigmaTolerance {
			break
		}
		if sum > target {
			hi = sigma
			sigma = (lo + hi) / 2
		} else {
			lo = sigma
			if math.IsInf(hi, 1) {
				sigma *= 2
			} else {
				sigma = (lo + hi) / 2
			}
		}
	}
	return rho, max(sigma, 1e-3)
}

// initialLayout starts from the two leading reduced coordinates scaled into
// [-10, 10], with a little seeded noise so coincident rows can separate.
func initialLayout(x *mat.Dense, rng *rand.Rand) [][2]float64 {
	n, c := x.Dims()
	y := make([][2]float64, n)
	for d := range 2 {
		col := make([]float64, n)
		if d < c {
			mat.Col(col, d, x)
		}
		scale := max(floats.Max(col), -floats.Min(col))
		for i := range n {
			v := 0.0
			if scale > 0 {
				v = col[i] / scale * initialScale
			}
			y[i][d] = v + rng.NormFloat64()*1e-4
		}
	}
	return y
}

// fitCurve fits 1/(1+a*d^(2b)) to the target membership curve for minDist with unit
// spread.
func fitCurve(minDist float64) (a, b float64) {
	const samples = 300
	xs := make([]float64, samples)
	ys := make([]float64, samples)
	floats.Span(xs, 0, 3)
	for i, x := range xs {
		if x < minDist {
			ys[i] = 1
		} else {
			ys[i] = math.Exp(-(x - minDist))
		}
	}

	problem := optimize.Problem{
		Func: func(p []float64) float64 {
			if p[0] <= 0 || p[1] <= 0 {
				return math.Inf(1)
			}
			var sse float64
			for i, x := range xs {
				r := 1/(1+p[0]*math.Pow(x, 2*p[1])) - ys[i]
				sse += r * r
			}
			return sse
		},
	}
	res, err := optimize.Minimize(problem, []float64{defaultCurveA, defaultCurveB}, nil, &optimize.NelderMead{})
	if err != nil || res.X[0] <= 0 || res.X[1] <= 0 {
		return defaultCurveA, defaultCurveB
	}
	return res.X[0], res.X[1]
}
