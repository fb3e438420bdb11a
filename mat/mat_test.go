package mat

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKron(t *testing.T) {
	t.Parallel()
	tcs := []struct {
		name string
		a    *COO
		b    *COO
		want *COO
	}{
		{
			name: "identity",
			a:    M(PauliI),
			b:    M(PauliX),
			want: M([][]complex64{
				{0, 1, 0, 0},
				{1, 0, 0, 0},
				{0, 0, 0, 1},
				{0, 0, 1, 0},
			}),
		},
		{
			name: "x_otimes_z",
			a:    M(PauliX),
			b:    M(PauliZ),
			want: M([][]complex64{
				{0, 0, 1, 0},
				{0, 0, 0, -1},
				{1, 0, 0, 0},
				{0, -1, 0, 0},
			}),
		},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			tc.a.Kron(tc.b)
			assert.True(t, tc.a.Equal(tc.want), "got:\n%s\nwant:\n%s", tc.a, tc.want)
		})
	}
}

func TestAdd(t *testing.T) {
	t.Parallel()
	a := M(PauliX)
	a.Add(1i, M(PauliY))
	want := M([][]complex64{
		{0, 1 + 1},
		{1 - 1, 0},
	})
	assert.True(t, a.Equal(want), "got:\n%s", a)
}

func TestSlice(t *testing.T) {
	t.Parallel()
	m := M([][]complex64{
		{1, 2, 3},
		{4, 5, 6},
		{7, 8, 9},
	})
	s := m.Slice([2]int{1, 3}, [2]int{0, 2})
	want := M([][]complex64{
		{4, 5},
		{7, 8},
	})
	assert.True(t, s.Equal(want), "got:\n%s", s)
}

func TestSetAt(t *testing.T) {
	t.Parallel()
	m := COOZeros(2, 2)
	m.Set(0, 1, 3+2i)
	assert.Equal(t, complex64(3+2i), m.At(0, 1))
	m.Set(0, 1, 0)
	assert.Equal(t, complex64(0), m.At(0, 1))
	assert.Equal(t, 0, m.NumNonZero())
}

func TestEigenIdentity(t *testing.T) {
	t.Parallel()
	m := COOIdentity(3)
	vvs, err := m.Eigen()
	require.NoError(t, err)
	require.Len(t, vvs, 3)
	for _, vv := range vvs {
		assert.InDelta(t, 1, real(vv.Val), 1e-9)
		assert.InDelta(t, 0, imag(vv.Val), 1e-9)
	}
}

func TestDiskCOORoundTrip(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	m, err := NewDiskCOO(filepath.Join(dir, "checkpoint.sqlite"))
	require.NoError(t, err)
	defer m.Close()

	m.Zeros(2, 2)
	require.NoError(t, m.Set(0, 0, 1))
	require.NoError(t, m.Set(1, 1, -1i))

	got, err := m.COOLoad()
	require.NoError(t, err)
	want := M([][]complex64{
		{1, 0},
		{0, -1i},
	})
	assert.True(t, got.Equal(want), "got:\n%s", got)
}

func TestWriteCOO(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	m := M(PauliX)
	require.NoError(t, m.WriteCOO(dir))

	shape, err := os.ReadFile(filepath.Join(dir, FnameShape))
	require.NoError(t, err)
	assert.Equal(t, "2,2", string(shape))
}
