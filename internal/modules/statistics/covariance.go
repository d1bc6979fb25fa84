// Package statistics computes covariance, correlation and beta from aligned
// return series.
package statistics

import (
	"fmt"
	"math"

	"github.com/aristath/finreport/internal/domain"
	"github.com/aristath/finreport/internal/modules/alignment"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// SampleCovariance builds the n x n sample covariance matrix (N-1 denominator)
// of daily returns for codes, in that order.
func SampleCovariance(set *alignment.AlignedSet, codes []string) (*mat.SymDense, error) {
	if len(codes) == 0 {
		return nil, fmt.Errorf("no securities provided")
	}
	for _, code := range codes {
		if !set.Contains(code) {
			return nil, fmt.Errorf("missing returns for %s", code)
		}
	}
	if set.Len() < 2 {
		return nil, fmt.Errorf("%w: need at least 2 return observations, got %d", domain.ErrDataGap, set.Len())
	}

	cov := mat.NewSymDense(len(codes), nil)
	stat.CovarianceMatrix(cov, set.Matrix(codes), nil)
	return cov, nil
}

// CorrelationFromCovariance derives rho_ij = cov_ij / (sigma_i * sigma_j).
//
// The diagonal is exactly 1. A zero-variance security has correlation 0 with
// every other security; its code is returned so the caller can note it.
func CorrelationFromCovariance(cov *mat.SymDense, codes []string) (*mat.SymDense, []string) {
	n := cov.SymmetricDim()
	corr := mat.NewSymDense(n, nil)

	sigma := make([]float64, n)
	var flat []string
	for i := 0; i < n; i++ {
		v := cov.At(i, i)
		if v > 0 {
			sigma[i] = math.Sqrt(v)
		} else {
			flat = append(flat, codes[i])
		}
	}

	for i := 0; i < n; i++ {
		corr.SetSym(i, i, 1)
		for j := i + 1; j < n; j++ {
			if sigma[i] == 0 || sigma[j] == 0 {
				corr.SetSym(i, j, 0)
				continue
			}
			rho := cov.At(i, j) / (sigma[i] * sigma[j])
			corr.SetSym(i, j, math.Max(-1, math.Min(1, rho)))
		}
	}
	return corr, flat
}

// ToRows copies a symmetric matrix into row-major slices for serialization.
func ToRows(m mat.Symmetric) [][]float64 {
	n := m.SymmetricDim()
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = make([]float64, n)
		for j := range rows[i] {
			rows[i][j] = m.At(i, j)
		}
	}
	return rows
}
