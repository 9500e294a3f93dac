package rs

import (
	"errors"

	"github.com/saorsa-fec/fec/gf"
)

// ErrSingularMatrix is returned when a submatrix selected for reconstruction
// cannot be inverted. This cannot occur for a Vandermonde-derived generator
// matrix with distinct evaluation points, but callers must check.
var ErrSingularMatrix = errors.New("rs: singular matrix")

// matrix is a dense byte matrix over GF(2^8), rows first.
type matrix [][]byte

func newMatrix(rows, cols int) matrix {
	m := make(matrix, rows)
	for i := range m {
		m[i] = make([]byte, cols)
	}
	return m
}

func identityMatrix(size int) matrix {
	m := newMatrix(size, size)
	for i := 0; i < size; i++ {
		m[i][i] = 1
	}
	return m
}

// vandermonde builds a rows x cols Vandermonde matrix where entry (r, c) is
// r^c in GF(2^8), using distinct evaluation points 0..rows-1. Built
// column-by-column so that row 0 (evaluation point 0) gets the conventional
// 0^0 = 1, 0^c = 0 (c>0) treatment without a special case.
func vandermonde(rows, cols int) matrix {
	m := newMatrix(rows, cols)
	for r := 0; r < rows; r++ {
		m[r][0] = 1
	}
	for c := 1; c < cols; c++ {
		for r := 0; r < rows; r++ {
			m[r][c] = gf.Mul(m[r][c-1], byte(r))
		}
	}
	return m
}

func (m matrix) rows() int { return len(m) }
func (m matrix) cols() int {
	if len(m) == 0 {
		return 0
	}
	return len(m[0])
}

func (m matrix) subMatrix(rowStart, colStart, rowEnd, colEnd int) matrix {
	out := newMatrix(rowEnd-rowStart, colEnd-colStart)
	for r := rowStart; r < rowEnd; r++ {
		copy(out[r-rowStart], m[r][colStart:colEnd])
	}
	return out
}

// multiply returns m * other.
func (m matrix) multiply(other matrix) matrix {
	out := newMatrix(m.rows(), other.cols())
	for r := 0; r < m.rows(); r++ {
		for c := 0; c < other.cols(); c++ {
			var acc byte
			for k := 0; k < m.cols(); k++ {
				acc ^= gf.Mul(m[r][k], other[k][c])
			}
			out[r][c] = acc
		}
	}
	return out
}

// augment returns [m | other] with matching row counts.
func (m matrix) augment(other matrix) matrix {
	out := newMatrix(m.rows(), m.cols()+other.cols())
	for r := 0; r < m.rows(); r++ {
		copy(out[r], m[r])
		copy(out[r][m.cols():], other[r])
	}
	return out
}

// invert computes the inverse of a square matrix via Gauss-Jordan
// elimination over GF(2^8), returning ErrSingularMatrix if m is not
// invertible.
func (m matrix) invert() (matrix, error) {
	size := m.rows()
	if size != m.cols() {
		return nil, ErrSingularMatrix
	}

	work := m.augment(identityMatrix(size))

	for col := 0; col < size; col++ {
		// Find a pivot row with a non-zero entry in this column.
		if work[col][col] == 0 {
			swapped := false
			for r := col + 1; r < size; r++ {
				if work[r][col] != 0 {
					work[col], work[r] = work[r], work[col]
					swapped = true
					break
				}
			}
			if !swapped {
				return nil, ErrSingularMatrix
			}
		}

		// Scale the pivot row so the pivot entry is 1.
		inv := gf.Inv(work[col][col])
		for c := range work[col] {
			work[col][c] = gf.Mul(work[col][c], inv)
		}

		// Eliminate this column from every other row.
		for r := 0; r < size; r++ {
			if r == col || work[r][col] == 0 {
				continue
			}
			factor := work[r][col]
			for c := range work[r] {
				work[r][c] ^= gf.Mul(factor, work[col][c])
			}
		}
	}

	return work.subMatrix(0, size, size, 2*size), nil
}

// buildGeneratorMatrix constructs a systematic (k+m)xk generator matrix: a
// Vandermonde matrix whose top kxk block is forced to the identity by
// premultiplying with the inverse of that block, preserving the property
// that any square submatrix of the result remains invertible.
func buildGeneratorMatrix(k, m int) (matrix, error) {
	total := k + m
	vm := vandermonde(total, k)

	top := vm.subMatrix(0, 0, k, k)
	topInv, err := top.invert()
	if err != nil {
		return nil, err
	}

	return vm.multiply(topInv), nil
}
