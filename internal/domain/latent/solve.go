package latent

import "math"

// gram returns MᵀM for a row-major matrix with k columns.
func gram(rows [][]float64, k int) [][]float64 {
	g := make([][]float64, k)
	for f := range g {
		g[f] = make([]float64, k)
	}
	for _, r := range rows {
		for f1 := 0; f1 < k; f1++ {
			for f2 := f1; f2 < k; f2++ {
				g[f1][f2] += r[f1] * r[f2]
			}
		}
	}
	for f1 := 0; f1 < k; f1++ {
		for f2 := 0; f2 < f1; f2++ {
			g[f1][f2] = g[f2][f1]
		}
	}
	return g
}

// normalMatrix builds base + λI + Σ (c-1)·v·vᵀ and Σ c·v for the given
// confidence-weighted rows.
func normalMatrix(base [][]float64, lambda float64, rows [][]float64, conf []float64) ([][]float64, []float64) {
	k := len(base)
	a := make([][]float64, k)
	for f := range a {
		a[f] = make([]float64, k)
		copy(a[f], base[f])
		a[f][f] += lambda
	}
	b := make([]float64, k)
	for n, v := range rows {
		c := conf[n]
		for f1 := 0; f1 < k; f1++ {
			for f2 := f1; f2 < k; f2++ {
				d := (c - 1) * v[f1] * v[f2]
				a[f1][f2] += d
				if f1 != f2 {
					a[f2][f1] += d
				}
			}
			b[f1] += c * v[f1]
		}
	}
	return a, b
}

// solve solves A·x = b for a symmetric positive definite A via Cholesky.
func solve(a [][]float64, b []float64) []float64 {
	n := len(b)
	l := make([][]float64, n)
	for i := range l {
		l[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			sum := a[i][j]
			for k := 0; k < j; k++ {
				sum -= l[i][k] * l[j][k]
			}
			if i == j {
				if sum <= 0 {
					sum = 1e-10
				}
				l[i][j] = math.Sqrt(sum)
			} else if l[j][j] != 0 {
				l[i][j] = sum / l[j][j]
			}
		}
	}

	z := make([]float64, n)
	for i := 0; i < n; i++ {
		sum := b[i]
		for j := 0; j < i; j++ {
			sum -= l[i][j] * z[j]
		}
		if l[i][i] != 0 {
			z[i] = sum / l[i][i]
		}
	}

	x := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		sum := z[i]
		for j := i + 1; j < n; j++ {
			sum -= l[j][i] * x[j]
		}
		if l[i][i] != 0 {
			x[i] = sum / l[i][i]
		}
	}
	return x
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
