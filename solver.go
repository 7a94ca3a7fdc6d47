package burstfit

import (
	"fmt"
	"math"
	"strings"

	"github.com/maorshutman/lm"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Method selects the decomposition used for a well-posed fit.
type Method string

const (
	QR  Method = "qr"
	SVD Method = "svd"
	LM  Method = "lm"
)

func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToLower(strings.TrimSpace(s))); m {
	case QR, SVD, LM:
		return m, nil
	case "":
		return QR, nil
	}
	return "", fmt.Errorf("%w: unknown solver method %q", ErrInvalidConfig, s)
}

// FitResult holds the outcome of one least-squares fit. Amplitudes are in
// pulse-index order.
type FitResult struct {
	Amplitudes []float64
	Residuals  []float64
	Fitted     []float64
	RSquared   float64

	AdjRSquared  float64
	ReducedChiSq float64
	PValue       float64
	Rank         int
	Degenerate   bool
	Method       Method
}

type Solver struct {
	Method Method
	// RCond is the relative singular value cutoff for rank detection. Zero
	// selects max(m, n)·ε.
	RCond float64
	// Uncertainty is the per-sample standard deviation used for χ². Zero
	// disables the χ² statistics.
	Uncertainty float64
}

func NewSolver(method Method) *Solver {
	return &Solver{Method: method}
}

func (s *Solver) rcond(m, n int) float64 {
	if s.RCond > 0 {
		return s.RCond
	}
	return float64(max(m, n)) * 0x1p-52
}

// Fit solves min ‖y − X·A‖². A rank-deficient X yields the minimum-norm
// solution marked Degenerate together with an error wrapping
// ErrDegenerateFit; the caller decides whether to keep it.
func (s *Solver) Fit(x *mat.Dense, y []float64) (*FitResult, error) {
	m, n := x.Dims()
	if len(y) != m {
		return nil, fmt.Errorf("solver: %d observations for %d matrix rows", len(y), m)
	}
	if m < n {
		return nil, fmt.Errorf("%w: %d samples for %d pulses", ErrSampleCountTooSmall, m, n)
	}
	if i := nonFinite(y); i >= 0 {
		return nil, fmt.Errorf("%w: observation %d is %g", ErrNonFinite, i, y[i])
	}

	var svd mat.SVD
	if ok := svd.Factorize(x, mat.SVDThin); !ok {
		return nil, fmt.Errorf("%w: singular value decomposition failed", ErrDegenerateFit)
	}
	yv := mat.NewVecDense(m, y)

	rank := svd.Rank(s.rcond(m, n))
	if rank < n {
		res := s.result(x, y, solveSVD(&svd, yv, rank), rank, SVD)
		res.Degenerate = true
		return res, fmt.Errorf("%w: regressor rank %d < %d pulses", ErrDegenerateFit, rank, n)
	}

	var (
		amps []float64
		err  error
	)
	switch s.Method {
	case SVD:
		amps = solveSVD(&svd, yv, n)
	case LM:
		amps, err = s.lmSolve(x, y)
	default:
		amps, err = solveQR(x, yv)
	}
	if err != nil {
		return nil, err
	}
	if i := nonFinite(amps); i >= 0 {
		return nil, fmt.Errorf("%w: amplitude %d is %g", ErrNonFinite, i, amps[i])
	}

	method := s.Method
	if method == "" {
		method = QR
	}
	return s.result(x, y, amps, rank, method), nil
}

func solveQR(x *mat.Dense, y *mat.VecDense) ([]float64, error) {
	var qr mat.QR
	qr.Factorize(x)

	var a mat.VecDense
	if err := qr.SolveVecTo(&a, false, y); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDegenerateFit, err)
	}
	return vecData(&a), nil
}

func solveSVD(svd *mat.SVD, y *mat.VecDense, rank int) []float64 {
	var a mat.VecDense
	svd.SolveVecTo(&a, y, rank)
	return vecData(&a)
}

// lmSolve runs Levenberg-Marquardt from zero amplitudes. For a linear
// model it converges in a handful of steps and serves as a cross-check of
// the direct decompositions.
func (s *Solver) lmSolve(x *mat.Dense, y []float64) (amps []float64, err error) {
	m, n := x.Dims()
	fnc := func(dst, a []float64) {
		out := mat.NewVecDense(m, dst)
		out.MulVec(x, mat.NewVecDense(n, a))
		for i := range dst {
			dst[i] -= y[i]
		}
	}

	jac := lm.NumJac{Func: fnc}

	problem := lm.LMProblem{
		Dim:        n,
		Size:       m,
		Func:       fnc,
		Jac:        jac.Jac,
		InitParams: make([]float64, n),
		Tau:        1e-13,
		Eps1:       1e-12,
		Eps2:       1e-12,
	}

	// lm panics on a singular normal matrix
	defer func() {
		if r := recover(); r != nil {
			amps, err = nil, fmt.Errorf("%w: levenberg-marquardt: %v", ErrDegenerateFit, r)
		}
	}()

	res, err := lm.LM(problem, &lm.Settings{Iterations: 1000, ObjectiveTol: 1e-16})
	if err != nil {
		return nil, fmt.Errorf("levenberg-marquardt: %w", err)
	}
	return res.X, nil
}

func (s *Solver) result(x *mat.Dense, y, amps []float64, rank int, method Method) *FitResult {
	m, n := x.Dims()

	fitted := make([]float64, m)
	mat.NewVecDense(m, fitted).MulVec(x, mat.NewVecDense(n, amps))

	resid := make([]float64, m)
	var ssRes float64
	for i := range y {
		resid[i] = y[i] - fitted[i]
		ssRes += resid[i] * resid[i]
	}

	res := &FitResult{
		Amplitudes:   amps,
		Residuals:    resid,
		Fitted:       fitted,
		RSquared:     RSquared(y, fitted),
		AdjRSquared:  math.NaN(),
		ReducedChiSq: math.NaN(),
		PValue:       math.NaN(),
		Rank:         rank,
		Method:       method,
	}

	dof := m - n
	if dof > 0 {
		res.AdjRSquared = 1 - (1-res.RSquared)*float64(m-1)/float64(dof)
		if s.Uncertainty > 0 {
			chi2 := ssRes / (s.Uncertainty * s.Uncertainty)
			res.ReducedChiSq = chi2 / float64(dof)
			res.PValue = distuv.ChiSquared{K: float64(dof)}.Survival(chi2)
		}
	}
	return res
}

// RSquared returns 1 − SS_res/SS_tot, or NaN when the observations have no
// variance.
func RSquared(observed, fitted []float64) float64 {
	mean := stat.Mean(observed, nil)
	var ssTot float64
	for _, v := range observed {
		ssTot += (v - mean) * (v - mean)
	}
	if ssTot == 0 {
		return math.NaN()
	}
	return stat.RSquaredFrom(fitted, observed, nil)
}

// nonFinite returns the index of the first NaN or infinite value, or -1.
func nonFinite(v []float64) int {
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return i
		}
	}
	return -1
}

func vecData(v *mat.VecDense) []float64 {
	res := make([]float64, v.Len())
	for i := range res {
		res[i] = v.AtVec(i)
	}
	return res
}
