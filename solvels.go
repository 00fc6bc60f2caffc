// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.4
//

package gopsl

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Determinant threshold below which the covariance matrix is treated as singular
const SINGULAR_DET = 1e-10

// Weight matrix from the observation covariance matrix.
// Returns nil (unweighted) when the covariance matrix is singular.
func WeightFromCov(cov mat.Matrix) mat.Matrix {
	if math.Abs(mat.Det(cov)) <= SINGULAR_DET {
		return nil
	}
	var W mat.Dense
	if err := W.Inverse(cov); err != nil {
		return nil
	}
	return &W
}

// Least squares projection matrix
// - H = (G^t W G)^-1 G^t W
// - H = (G^t G)^-1 G^t when W is nil
func LSProjection(G mat.Matrix, W mat.Matrix) (*mat.Dense, error) {
	n1, m1 := G.Dims()
	var GtW mat.Dense
	if W != nil {
		n2, m2 := W.Dims()
		if n1 != n2 || n2 != m2 {
			return nil, fmt.Errorf("invalid matrix size. G^T(%d x %d), W(%d x %d)", m1, n1, n2, m2)
		}
		GtW.Mul(G.T(), W)
	} else {
		GtW.CloneFrom(G.T())
	}

	// A = G^t W G
	var A mat.Dense
	A.Mul(&GtW, G)
	var Ai mat.Dense
	if err := Ai.Inverse(&A); err != nil {
		return nil, err
	}

	var H mat.Dense
	H.Mul(&Ai, &GtW)
	return &H, nil
}

// Solve the observation equation using weighted least squares
// - dx = (G^t W G)^-1 G^t W dr
// - Return the error covariance matrix (G^t W G)^-1 as cov
func SolveLS(G mat.Matrix, dr mat.Vector, W mat.Matrix) (dx mat.Vector, cov mat.Matrix, err error) {

	n1, m1 := G.Dims()
	n2, m2 := W.Dims()
	if n1 != n2 {
		return nil, nil, fmt.Errorf("invalid matrix size. G^T(%d x %d), W(%d x %d)", m1, n1, n2, m2)
	}
	l1 := dr.Len()
	if l1 != m2 {
		return nil, nil, fmt.Errorf("invalid matrix size. W(%d x %d), dr(%d x 1)", n2, m2, l1)
	}

	// A (G^t W G)
	var WG mat.Dense
	WG.Mul(W, G)
	var A mat.Dense
	A.Mul(G.T(), &WG)

	// b (G^t W dr)
	var GtW mat.Dense
	GtW.Mul(G.T(), W)
	var b mat.VecDense
	b.MulVec(&GtW, dr)

	var x mat.VecDense
	err = x.SolveVec(&A, &b)
	if err != nil {
		return nil, nil, err
	}
	dx = &x

	var c mat.Dense
	err = c.Inverse(&A)
	if err != nil {
		return nil, nil, err
	}
	cov = &c

	return
}

// Solve the damped normal equation of Levenberg-Marquardt
// - dx = (G^t G + lambda I)^-1 G^t dr
func SolveDampedLS(G mat.Matrix, dr mat.Vector, lambda float64) (mat.Vector, error) {
	n, m := G.Dims()
	if dr.Len() != n {
		return nil, fmt.Errorf("invalid matrix size. G(%d x %d), dr(%d x 1)", n, m, dr.Len())
	}
	var A mat.Dense
	A.Mul(G.T(), G)
	for i := 0; i < m; i++ {
		A.Set(i, i, A.At(i, i)+lambda)
	}
	var b mat.VecDense
	b.MulVec(G.T(), dr)

	var x mat.VecDense
	if err := x.SolveVec(&A, &b); err != nil {
		return nil, err
	}
	return &x, nil
}

// Dilution of precision from an ECEF geometry matrix: gdop, pdop, hdop, vdop.
// The position block of (G^t G)^-1 is rotated into the local level frame at llh.
func CalcDop(G mat.Matrix, llh PosLLH) (map[string]float64, error) {
	var GtG mat.Dense
	GtG.Mul(G.T(), G)
	var Q mat.Dense
	if err := Q.Inverse(&GtG); err != nil {
		return nil, fmt.Errorf("failed to calculate inverse of matrix, G^T G")
	}
	sl, cl := math.Sin(llh.Lon), math.Cos(llh.Lon)
	sp, cp := math.Sin(llh.Lat), math.Cos(llh.Lat)
	R := mat.NewDense(3, 3, []float64{
		-sl, cl, 0,
		-sp * cl, -sp * sl, cp,
		cp * cl, cp * sl, sp,
	})
	var RQ, Qenu mat.Dense
	RQ.Mul(R, Q.Slice(0, 3, 0, 3))
	Qenu.Mul(&RQ, R.T())
	return map[string]float64{
		"gdop": math.Sqrt(Q.At(0, 0) + Q.At(1, 1) + Q.At(2, 2) + Q.At(3, 3)),
		"pdop": math.Sqrt(Q.At(0, 0) + Q.At(1, 1) + Q.At(2, 2)),
		"hdop": math.Sqrt(Qenu.At(0, 0) + Qenu.At(1, 1)),
		"vdop": math.Sqrt(Qenu.At(2, 2)),
	}, nil
}
