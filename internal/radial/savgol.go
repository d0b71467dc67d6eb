// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package radial

import (
	"gonum.org/v1/gonum/mat"
)

// Truncates number to an integer and rounds up to the next odd value
func oddInt(number float64) int {
	n := int(number)
	if n%2 == 1 {
		return n
	}
	return n + 1
}

// Smooths y with a Savitzky-Golay filter: each output sample is the value of
// a least squares polynomial of the given order fitted over a sliding window.
// The edge regions, where the window would leave the data, are filled by
// fitting one polynomial to the first resp. last full window of input samples
// and evaluating it there. The window is clamped to valid odd lengths.
// Returns a new slice, the input is unchanged.
func savgolFilter(y []float32, window, order int) []float32 {
	n := len(y)
	if window > n {
		window = n
		if window%2 == 0 {
			window--
		}
	}
	if window <= order+1 {
		out := make([]float32, n)
		copy(out, y)
		return out
	}
	half := window / 2
	out := make([]float32, n)

	coeffs := savgolCoeffs(window, order)
	for i := half; i < n-half; i++ {
		sum := float64(0)
		for m := 0; m < window; m++ {
			sum += coeffs[m] * float64(y[i-half+m])
		}
		out[i] = float32(sum)
	}

	// fill edges from a polynomial fit over the outermost full windows
	headFit := polyfit(y[:window], order)
	for i := 0; i < half; i++ {
		out[i] = float32(polyval(headFit, float64(i)))
	}
	tailFit := polyfit(y[n-window:], order)
	for i := n - half; i < n; i++ {
		out[i] = float32(polyval(tailFit, float64(i-(n-window))))
	}
	return out
}

// Computes the central convolution coefficients for a Savitzky-Golay filter
// with the given odd window length and polynomial order. The coefficient
// vector is the first row of the fitting matrix pseudoinverse.
func savgolCoeffs(window, order int) []float64 {
	half := window / 2
	a := mat.NewDense(window, order+1, nil)
	for m := 0; m < window; m++ {
		x := float64(m - half)
		p := 1.0
		for k := 0; k <= order; k++ {
			a.Set(m, k, p)
			p *= x
		}
	}
	var ata mat.Dense
	ata.Mul(a.T(), a)
	e0 := mat.NewVecDense(order+1, nil)
	e0.SetVec(0, 1)

	var u mat.VecDense
	if err := u.SolveVec(&ata, e0); err != nil {
		// singular fitting matrix cannot occur for window > order+1
		panic(err)
	}

	coeffs := make([]float64, window)
	for m := 0; m < window; m++ {
		s := 0.0
		for k := 0; k <= order; k++ {
			s += a.At(m, k) * u.AtVec(k)
		}
		coeffs[m] = s
	}
	return coeffs
}

// Least squares fit of a polynomial of the given order to y sampled at
// x = 0, 1, ..., len(y)-1. Returns the coefficients, constant term first.
func polyfit(y []float32, order int) []float64 {
	a := mat.NewDense(len(y), order+1, nil)
	b := mat.NewVecDense(len(y), nil)
	for i := range y {
		x := float64(i)
		p := 1.0
		for k := 0; k <= order; k++ {
			a.Set(i, k, p)
			p *= x
		}
		b.SetVec(i, float64(y[i]))
	}
	var c mat.VecDense
	if err := c.SolveVec(a, b); err != nil {
		panic(err)
	}
	coeffs := make([]float64, order+1)
	for k := 0; k <= order; k++ {
		coeffs[k] = c.AtVec(k)
	}
	return coeffs
}

// Evaluates a polynomial with coefficients in ascending order at x
func polyval(coeffs []float64, x float64) float64 {
	res := 0.0
	for k := len(coeffs) - 1; k >= 0; k-- {
		res = res*x + coeffs[k]
	}
	return res
}
