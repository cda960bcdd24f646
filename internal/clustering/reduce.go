package clustering

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// varianceTolerance absorbs rounding when comparing cumulative ratios to the threshold.
const varianceTolerance = 1e-12

// standardize scales each column of x in place to zero mean and unit population
// variance. Constant columns are only centered.
func standardize(x *mat.Dense) {
	n, d := x.Dims()
	col := make([]float64, n)
	for j := range d {
		mat.Col(col, j, x)
		mean, std := stat.PopMeanStdDev(col, nil)
		if std < 1e-12 || math.IsNaN(std) {
			std = 1
		}
		for i := range col {
			col[i] = (col[i] - mean) / std
		}
		x.SetCol(j, col)
	}
}

// projection is x expressed in its leading principal components.
type projection struct {
	scores   *mat.Dense // n×c
	loadings *mat.Dense // d×c, one component per column
	ratios   []float64  // explained variance ratio per retained component
}

// reduce projects the standardized matrix x onto the fewest principal components
// whose cumulative explained variance ratio reaches threshold.
func reduce(x *mat.Dense, threshold float64) (*projection, error) {
	var pc stat.PC
	if ok := pc.PrincipalComponents(x, nil); !ok {
		return nil, errors.New("principal component analysis failed")
	}
	vars := pc.VarsTo(nil)

	var vecs mat.Dense
	pc.VectorsTo(&vecs)

	c := componentsFor(vars, threshold)
	d, _ := vecs.Dims()
	loadings := mat.DenseCopyOf(vecs.Slice(0, d, 0, c))
	canonicalizeSigns(loadings)

	// x is already centered, so the scores are a plain product.
	var scores mat.Dense
	scores.Mul(x, loadings)

	total := floats.Sum(vars)
	ratios := make([]float64, c)
	if total > 0 {
		for i := range ratios {
			ratios[i] = vars[i] / total
		}
	}

	return &projection{scores: &scores, loadings: loadings, ratios: ratios}, nil
}

// componentsFor returns the smallest component count whose cumulative share of the
// total variance is at least threshold. It keeps one component when the data has
// no variance at all.
func componentsFor(vars []float64, threshold float64) int {
	total := floats.Sum(vars)
	if total <= 0 {
		return 1
	}
	var cum float64
	for i, v := range vars {
		cum += v
		if cum/total >= threshold-varianceTolerance {
			return i + 1
		}
	}
	return len(vars)
}

// canonicalizeSigns flips each component so its largest-magnitude loading is
// positive. Ties go to the lowest feature index.
func canonicalizeSigns(loadings *mat.Dense) {
	r, c := loadings.Dims()
	for j := range c {
		best := 0
		for i := 1; i < r; i++ {
			if math.Abs(loadings.At(i, j)) > math.Abs(loadings.At(best, j)) {
				best = i
			}
		}
		if loadings.At(best, j) >= 0 {
			continue
		}
		for i := range r {
			loadings.Set(i, j, -loadings.At(i, j))
		}
	}
}
