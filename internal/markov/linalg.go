package markov

import (
	"math"

	"github.com/congresstwin/congresstwin/internal/errors"
)

// conditionLimit is the pivot-ratio threshold beyond which I - Q is
// treated as near-singular. A crude estimate of the condition number,
// sufficient for the 5x5 transient systems seen here.
const conditionLimit = 1e12

// invert computes the inverse of a square matrix by Gauss-Jordan
// elimination with partial pivoting. The input is not modified.
func invert(a [][]float64) ([][]float64, error) {
	n := len(a)
	// Augmented [A | I] working copy.
	w := make([][]float64, n)
	for i := range w {
		w[i] = make([]float64, 2*n)
		copy(w[i], a[i])
		w[i][n+i] = 1
	}

	minPivot, maxPivot := math.Inf(1), 0.0
	for col := 0; col < n; col++ {
		// Partial pivot: largest magnitude in the column.
		pivot := col
		for row := col + 1; row < n; row++ {
			if math.Abs(w[row][col]) > math.Abs(w[pivot][col]) {
				pivot = row
			}
		}
		pv := math.Abs(w[pivot][col])
		if pv < 1e-15 {
			return nil, errors.New(errors.KindInternal, errors.ErrCodeMatrixSingular,
				"transition system is singular")
		}
		if pv < minPivot {
			minPivot = pv
		}
		if pv > maxPivot {
			maxPivot = pv
		}
		w[col], w[pivot] = w[pivot], w[col]

		inv := 1 / w[col][col]
		for j := col; j < 2*n; j++ {
			w[col][j] *= inv
		}
		for row := 0; row < n; row++ {
			if row == col || w[row][col] == 0 {
				continue
			}
			f := w[row][col]
			for j := col; j < 2*n; j++ {
				w[row][j] -= f * w[col][j]
			}
		}
	}

	if maxPivot/minPivot > conditionLimit {
		return nil, errors.Newf(errors.KindInternal, errors.ErrCodeMatrixSingular,
			"transition system is near-singular (pivot ratio %.2e)", maxPivot/minPivot)
	}

	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
		copy(out[i], w[i][n:])
	}
	return out, nil
}
