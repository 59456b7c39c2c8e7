package regression

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"pmuplace/domain/dataset"
	"pmuplace/domain/placement"
	"pmuplace/internal/search"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// DefaultMaxCondition rejects column-equilibrated design matrices whose
// condition number shows a predictor is (numerically) a combination of the
// others
const DefaultMaxCondition = 1e12

// PolynomialOracle fits ordinary least squares models of the form
//
//	y ~ b0 + sum_j sum_{k=1..d} b_jk * x_j^k
//
// against one immutable table. It keeps no state between calls and is safe
// for concurrent use.
type PolynomialOracle struct {
	table        *dataset.Table
	maxCondition float64
}

// Option configures a PolynomialOracle
type Option func(*PolynomialOracle)

// WithMaxCondition overrides the condition number limit
func WithMaxCondition(c float64) Option {
	return func(o *PolynomialOracle) { o.maxCondition = c }
}

// NewPolynomialOracle binds an oracle to a table
func NewPolynomialOracle(table *dataset.Table, opts ...Option) *PolynomialOracle {
	o := &PolynomialOracle{table: table, maxCondition: DefaultMaxCondition}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Fit regresses target on raw polynomial terms of every predictor. The score
// is R², coefficients are ordered intercept, then x^1..x^degree per predictor,
// on the original (unscaled) columns.
func (o *PolynomialOracle) Fit(ctx context.Context, target placement.Variable, predictors []placement.Variable, degree int) (placement.FitResult, error) {
	if err := ctx.Err(); err != nil {
		return placement.FitResult{}, err
	}
	fail := func(format string, args ...interface{}) (placement.FitResult, error) {
		return placement.FitResult{}, search.NewFitError(predictors, fmt.Errorf(format, args...))
	}

	if degree < 1 {
		return fail("degree %d is not positive", degree)
	}
	if len(predictors) == 0 {
		return fail("no predictors")
	}

	y, err := o.table.Column(target)
	if err != nil {
		return placement.FitResult{}, search.NewFitError(predictors, err)
	}
	cols := make([][]float64, len(predictors))
	seen := make(map[placement.Variable]bool, len(predictors))
	for j, p := range predictors {
		if seen[p] || p == target {
			return fail("predictor %s repeated or equal to target", p)
		}
		seen[p] = true
		if cols[j], err = o.table.Column(p); err != nil {
			return placement.FitResult{}, search.NewFitError(predictors, err)
		}
	}

	n, terms := len(y), 1+len(predictors)*degree
	if n <= terms {
		return fail("%d rows cannot identify %d terms", n, terms)
	}

	x := designMatrix(cols, n, degree)
	scale, ok := equilibrate(x)
	if !ok {
		return fail("design matrix has an all-zero column")
	}
	var qr mat.QR
	qr.Factorize(x)
	if c := qr.Cond(); c > o.maxCondition {
		return fail("design matrix is singular (condition %.3g)", c)
	}

	yv := mat.NewVecDense(n, append([]float64(nil), y...))
	var beta mat.VecDense
	if err := qr.SolveVecTo(&beta, false, yv); err != nil {
		var cond mat.Condition
		if errors.As(err, &cond) {
			return fail("design matrix is singular (condition %.3g)", float64(cond))
		}
		return placement.FitResult{}, search.NewFitError(predictors, err)
	}

	r2, err := rSquared(x, &beta, y)
	if err != nil {
		return placement.FitResult{}, search.NewFitError(predictors, err)
	}

	coef := make([]float64, terms)
	for j := range coef {
		coef[j] = beta.AtVec(j) / scale[j]
	}
	return placement.FitResult{
		Score:        r2,
		Formula:      Formula(target, predictors, degree),
		Coefficients: coef,
	}, nil
}

func designMatrix(cols [][]float64, n, degree int) *mat.Dense {
	x := mat.NewDense(n, 1+len(cols)*degree, nil)
	for i := 0; i < n; i++ {
		x.Set(i, 0, 1)
		for j, col := range cols {
			pow := 1.0
			for k := 0; k < degree; k++ {
				pow *= col[i]
				x.Set(i, 1+j*degree+k, pow)
			}
		}
	}
	return x
}

// equilibrate scales every column of x to unit norm in place and returns the
// scale factors, so the condition check does not depend on column magnitude
func equilibrate(x *mat.Dense) ([]float64, bool) {
	_, c := x.Dims()
	scale := make([]float64, c)
	for j := 0; j < c; j++ {
		norm := mat.Norm(x.ColView(j), 2)
		if norm == 0 || math.IsInf(norm, 0) || math.IsNaN(norm) {
			return nil, false
		}
		scale[j] = norm
	}
	x.Apply(func(_, j int, v float64) float64 { return v / scale[j] }, x)
	return scale, true
}

func rSquared(x *mat.Dense, beta *mat.VecDense, y []float64) (float64, error) {
	n := len(y)
	variance, err := stats.Variance(y)
	if err != nil {
		return 0, err
	}
	ssTot := variance * float64(n)
	if ssTot == 0 {
		return 0, errors.New("target is constant")
	}

	var fitted mat.VecDense
	fitted.MulVec(x, beta)
	resid := make([]float64, n)
	floats.SubTo(resid, y, fitted.RawVector().Data)
	ssRes := floats.Dot(resid, resid)
	return 1 - ssRes/ssTot, nil
}

// Formula renders a model in R notation, e.g.
// "angDiff ~ poly(X1, 3, raw = TRUE) + poly(X2, 3, raw = TRUE)"
func Formula(target placement.Variable, predictors []placement.Variable, degree int) string {
	terms := make([]string, len(predictors))
	d := strconv.Itoa(degree)
	for i, p := range predictors {
		terms[i] = "poly(" + string(p) + ", " + d + ", raw = TRUE)"
	}
	return string(target) + " ~ " + strings.Join(terms, " + ")
}
