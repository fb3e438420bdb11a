// Package mat implements a sparse coordinate-format complex matrix, the
// storage underneath the Liouvillian drift and stiffness matrices that
// superop assembles and solver integrates.
package mat

import (
	"cmp"
	"encoding/csv"
	"fmt"
	"math/cmplx"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

const (
	FnameShape = "shape.csv"
	FnameCOO   = "coo.csv"
)

var (
	PauliI = [][]complex64{
		{1, 0},
		{0, 1},
	}
	PauliX = [][]complex64{
		{0, 1},
		{1, 0},
	}
	PauliY = [][]complex64{
		{0, -1i},
		{1i, 0},
	}
	PauliZ = [][]complex64{
		{1, 0},
		{0, -1},
	}
	// PauliSP is sigma_+ = (X+iY)/2, the raising operator.
	PauliSP = [][]complex64{
		{0, 1},
		{0, 0},
	}
	// PauliSM is sigma_- = (X-iY)/2, the lowering operator.
	PauliSM = [][]complex64{
		{0, 0},
		{1, 0},
	}
)

// Matrix is the interface shared by the in-memory COO store and any
// disk-backed implementation (see DiskCOO), so that Builder code does not
// need to know which one it is assembling into.
type Matrix interface {
	Zeros(int, int)
	Scalar(complex64)
	Rows() int
	Cols() int

	Add(complex64, Matrix)
	Kron(*COO)
	COO() *COO

	WriteCOO(string) error
}

type vRowCol struct {
	v   complex64
	row int
	col int
}

// COO is a sparse complex matrix stored as an ordered (row, col, value) list.
type COO struct {
	rows int
	cols int
	Data []vRowCol

	m map[[2]int]complex64
}

// M builds a COO from a dense literal, dropping explicit zeros.
func M(dense [][]complex64) *COO {
	m := &COO{rows: len(dense), cols: len(dense[0]), Data: make([]vRowCol, 0), m: make(map[[2]int]complex64)}
	for i, row := range dense {
		for j, v := range row {
			if v == 0 {
				continue
			}
			m.Data = append(m.Data, vRowCol{v: v, row: i, col: j})
		}
	}
	return m
}

func COOZeros(rows, cols int) *COO {
	m := M([][]complex64{{0}})
	m.Zeros(rows, cols)
	return m
}

func COOIdentity(n int) *COO {
	m := M([][]complex64{{0}})
	m.Zeros(n, n)
	for i := 0; i < n; i++ {
		m.Data = append(m.Data, vRowCol{v: 1, row: i, col: i})
	}
	return m
}

func (m *COO) Rows() int { return m.rows }
func (m *COO) Cols() int { return m.cols }

func (m *COO) Zeros(rows, cols int) {
	m.rows, m.cols = rows, cols
	m.Data = m.Data[:0]
}

func (m *COO) Scalar(v complex64) {
	m.rows, m.cols = 1, 1
	m.Data = m.Data[:0]
	m.Data = append(m.Data, vRowCol{v: v, row: 0, col: 0})
}

// Set overwrites the value at (i, j), removing the entry if v is zero.
// Used by superop's realify to fill in the real embedding SteadyState
// diagonalizes.
func (m *COO) Set(i, j int, v complex64) {
	idx, ok := m.find(i, j)
	switch {
	case ok && v == 0:
		m.Data = slices.Delete(m.Data, idx, idx+1)
	case ok:
		m.Data[idx].v = v
	case v != 0:
		m.Data = append(m.Data, vRowCol{v: v, row: i, col: j})
		slices.SortFunc(m.Data, rowMajor)
	}
}

func (m *COO) At(i, j int) complex64 {
	idx, ok := m.find(i, j)
	if !ok {
		return 0
	}
	return m.Data[idx].v
}

func (m *COO) find(i, j int) (int, bool) {
	for idx, v := range m.Data {
		if v.row == i && v.col == j {
			return idx, true
		}
	}
	return -1, false
}

func (a *COO) Equal(b *COO) bool {
	if a.rows != b.rows {
		return false
	}
	if a.cols != b.cols {
		return false
	}
	if len(a.Data) != len(b.Data) {
		return false
	}
	for i, av := range a.Data {
		bv := b.Data[i]
		if av != bv {
			return false
		}
	}
	return true
}

func (m *COO) Slice(yBoundN, xBoundN [2]int) *COO {
	yBound, xBound := yBoundN, xBoundN
	for i := 0; i < 2; i++ {
		if yBound[i] < 0 {
			yBound[i] += m.rows
		}
		if xBound[i] < 0 {
			xBound[i] += m.cols
		}
	}

	s := &COO{rows: yBound[1] - yBound[0], cols: xBound[1] - xBound[0], Data: make([]vRowCol, 0)}
	for _, v := range m.Data {
		if v.row < yBound[0] {
			continue
		}
		if v.row >= yBound[1] {
			break
		}
		if v.col < xBound[0] || v.col >= xBound[1] {
			continue
		}
		s.Data = append(s.Data, vRowCol{v: v.v, row: v.row - yBound[0], col: v.col - xBound[0]})
	}
	return s
}

// Add computes a += c*b, broadcasting b as a scalar or column vector against
// a's shape.
func (a *COO) Add(c complex64, bMatrix Matrix) {
	b := bMatrix.COO()
	if b.m == nil {
		b.m = make(map[[2]int]complex64)
	}
	clear(b.m)
	for _, v := range b.Data {
		b.m[[2]int{v.row, v.col}] = v.v
	}

	for i, av := range a.Data {
		var byx [2]int
		switch {
		case b.rows == 1 && b.cols == 1:
		case b.rows == a.rows && b.cols == 1:
			byx[0] = av.row
		case b.rows == a.rows && b.cols == a.cols:
			byx[0], byx[1] = av.row, av.col
		default:
			panic(fmt.Sprintf("mat: Add shape mismatch %dx%d into %dx%d", b.rows, b.cols, a.rows, a.cols))
		}
		bv := b.m[byx]
		delete(b.m, byx)

		a.Data[i].v = av.v + c*bv
	}

	a.Data = slices.DeleteFunc(a.Data, func(v vRowCol) bool {
		return v.v == 0
	})
	for yx, bv := range b.m {
		a.Data = append(a.Data, vRowCol{v: c * bv, row: yx[0], col: yx[1]})
	}
	slices.SortFunc(a.Data, rowMajor)
	clear(b.m)
}

func (a *COO) Mul(b *COO) {
	if b.m == nil {
		b.m = make(map[[2]int]complex64)
	}
	clear(b.m)
	for _, v := range b.Data {
		b.m[[2]int{v.row, v.col}] = v.v
	}

	for i, av := range a.Data {
		var byx [2]int
		switch {
		case b.rows == 1 && b.cols == 1:
		case b.rows == a.rows && b.cols == 1:
			byx[0] = av.row
		case b.rows == a.rows && b.cols == a.cols:
			byx[0], byx[1] = av.row, av.col
		default:
			panic(fmt.Sprintf("mat: Mul shape mismatch %dx%d into %dx%d", b.rows, b.cols, a.rows, a.cols))
		}
		bv := b.m[byx]

		a.Data[i].v = av.v * bv
	}

	a.Data = slices.DeleteFunc(a.Data, func(v vRowCol) bool {
		return v.v == 0
	})
	clear(b.m)
}

func (a *COO) Kron(b *COO) {
	rows := a.rows * b.rows
	cols := a.cols * b.cols
	a.rows, a.cols = rows, cols

	prevElemNum := len(a.Data)
	for i := prevElemNum - 1; i >= 0; i-- {
		av := a.Data[i]
		a.Data[i].v = 0
		for _, bv := range b.Data {
			ky := av.row*b.rows + bv.row
			kx := av.col*b.cols + bv.col
			a.Data = append(a.Data, vRowCol{v: av.v * bv.v, row: ky, col: kx})
		}
	}

	a.Data = slices.DeleteFunc(a.Data, func(v vRowCol) bool {
		return v.v == 0
	})
	slices.SortFunc(a.Data, rowMajor)
}

// MulVec computes y = a*x for a dense complex vector x, used by the
// time-stepping RHS (sparse working matrix times vec(rho)).
func (a *COO) MulVec(x []complex64) []complex64 {
	y := make([]complex64, a.rows)
	for _, v := range a.Data {
		y[v.row] += v.v * x[v.col]
	}
	return y
}

// Scale multiplies every entry by v in place.
func (m *COO) Scale(v complex64) {
	for i := range m.Data {
		m.Data[i].v *= v
	}
	if v == 0 {
		m.Data = m.Data[:0]
	}
}

// Clone returns a deep copy.
func (m *COO) Clone() *COO {
	c := &COO{rows: m.rows, cols: m.cols, Data: append([]vRowCol(nil), m.Data...)}
	return c
}

// MatMul computes the ordinary (non-Hadamard) matrix product a*b.
func MatMul(a, b *COO) *COO {
	if a.cols != b.rows {
		panic(fmt.Sprintf("mat: MatMul shape mismatch %dx%d * %dx%d", a.rows, a.cols, b.rows, b.cols))
	}
	bRows := make(map[int][]vRowCol, b.rows)
	for _, v := range b.Data {
		bRows[v.row] = append(bRows[v.row], v)
	}

	out := &COO{rows: a.rows, cols: b.cols, Data: make([]vRowCol, 0)}
	acc := make(map[[2]int]complex64)
	for _, av := range a.Data {
		for _, bv := range bRows[av.col] {
			key := [2]int{av.row, bv.col}
			acc[key] += av.v * bv.v
		}
	}
	for k, v := range acc {
		if v == 0 {
			continue
		}
		out.Data = append(out.Data, vRowCol{v: v, row: k[0], col: k[1]})
	}
	slices.SortFunc(out.Data, rowMajor)
	return out
}

// Transpose returns the transpose of m.
func Transpose(m *COO) *COO {
	out := &COO{rows: m.cols, cols: m.rows, Data: make([]vRowCol, 0, len(m.Data))}
	for _, v := range m.Data {
		out.Data = append(out.Data, vRowCol{v: v.v, row: v.col, col: v.row})
	}
	slices.SortFunc(out.Data, rowMajor)
	return out
}

// Conjugate returns the entrywise complex conjugate of m.
func Conjugate(m *COO) *COO {
	out := &COO{rows: m.rows, cols: m.cols, Data: make([]vRowCol, 0, len(m.Data))}
	for _, v := range m.Data {
		out.Data = append(out.Data, vRowCol{v: complex64(cmplx.Conj(complex128(v.v))), row: v.row, col: v.col})
	}
	return out
}

func (m *COO) NumNonZero() int { return len(m.Data) }

func (m *COO) COO() *COO { return m }

func (m *COO) Dense() [][]complex64 {
	dense := make([][]complex64, m.rows)
	for i := range dense {
		dense[i] = make([]complex64, m.cols)
	}
	for _, v := range m.Data {
		dense[v.row][v.col] = v.v
	}
	return dense
}

func (m *COO) WriteCOO(dir string) error {
	shapePath := filepath.Join(dir, FnameShape)
	if err := os.WriteFile(shapePath, []byte(fmt.Sprintf("%d,%d", m.rows, m.cols)), 0644); err != nil {
		return errors.Wrap(err, "")
	}

	cooPath := filepath.Join(dir, FnameCOO)
	cooF, err := os.Create(cooPath)
	if err != nil {
		return errors.Wrap(err, "")
	}

	w := csv.NewWriter(cooF)
	for _, v := range m.Data {
		if err1 := w.Write([]string{FormatNumpy(v.v), strconv.Itoa(v.row), strconv.Itoa(v.col)}); err1 != nil && err == nil {
			err = errors.Wrap(err1, "")
			break
		}
	}
	w.Flush()
	if err1 := w.Error(); err1 != nil && err == nil {
		err = errors.Wrap(err1, "")
	}
	if err1 := cooF.Close(); err1 != nil && err == nil {
		err = errors.Wrap(err1, "")
	}
	return err
}

func (m *COO) String() string {
	if m.m == nil {
		m.m = make(map[[2]int]complex64)
	}
	clear(m.m)
	for _, v := range m.Data {
		m.m[[2]int{v.row, v.col}] = v.v
	}

	lines := []string{}
	for i := 0; i < m.rows; i++ {
		cs := []string{}
		for j := 0; j < m.cols; j++ {
			v := m.m[[2]int{i, j}]
			switch {
			case imag(v) == 0:
				cs = append(cs, format(real(v)))
			case real(v) == 0:
				cs = append(cs, format(imag(v))+"i")
			default:
				cs = append(cs, format(real(v))+"+"+format(imag(v))+"i")
			}
		}
		lines = append(lines, strings.Join(cs, "\t"))
	}

	clear(m.m)
	return strings.Join(lines, "\n")
}

// ValVec is an eigenvalue paired with its eigenvector, as returned by Eigen.
type ValVec struct {
	Val complex128
	Vec []complex128
}

// Eigen computes the eigendecomposition of a real-valued COO, using gonum's
// mat.Eigen/EigenRight; a matrix with any complex entry is rejected.
// SteadyState calls it on the real 2n x 2n embedding of the (complex)
// Liouvillian produced by realify.
func (m *COO) Eigen() ([]ValVec, error) {
	gnm := mat.NewDense(m.rows, m.cols, nil)
	for _, v := range m.Data {
		if imag(v.v) != 0 {
			return nil, errors.Errorf("mat: Eigen requires a real-valued matrix, got %v at (%d,%d)", v.v, v.row, v.col)
		}
		gnm.Set(v.row, v.col, float64(real(v.v)))
	}

	var eig mat.Eigen
	if ok := eig.Factorize(gnm, mat.EigenRight); !ok {
		return nil, errors.Errorf("mat: eigen factorization failed")
	}
	vals := eig.Values(nil)
	vecs := mat.NewCDense(m.rows, m.cols, nil)
	eig.VectorsTo(vecs)

	vecsR, _ := vecs.Caps()
	vvs := make([]ValVec, 0, len(vals))
	for i, v := range vals {
		vec := make([]complex128, 0, vecsR)
		for j := 0; j < vecsR; j++ {
			vec = append(vec, vecs.At(j, i))
		}
		vvs = append(vvs, ValVec{Val: v, Vec: vec})
	}
	slices.SortFunc(vvs, func(a, b ValVec) int { return cmp.Compare(real(a.Val), real(b.Val)) })

	return vvs, nil
}

func rowMajor(a, b vRowCol) int {
	if c := cmp.Compare(a.row, b.row); c != 0 {
		return c
	}
	return cmp.Compare(a.col, b.col)
}

func format(v float32) string {
	if v == 0 {
		return " 0"
	}
	s := fmt.Sprintf("%v", v)
	if v >= 0 {
		s = " " + s
	}
	return s
}

func FormatNumpy(v complex64) string {
	switch {
	case imag(v) == 0:
		return strconv.FormatFloat(float64(real(v)), 'g', -1, 32)
	default:
		s := fmt.Sprintf("%v", v)
		s = strings.ReplaceAll(s, "i", "j")
		return s
	}
}

func abs(c complex64) float32 {
	return float32(cmplx.Abs(complex128(c)))
}
