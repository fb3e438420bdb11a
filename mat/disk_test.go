package mat

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskCOOMetaRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "ckpt.sqlite")

	disk, err := NewDiskCOO(path)
	require.NoError(t, err)

	_, ok, err := disk.LoadMeta()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, disk.SaveMeta("deadbeef"))
	require.NoError(t, disk.Close())

	reopened, err := NewDiskCOO(path)
	require.NoError(t, err)
	defer reopened.Close()

	hash, ok, err := reopened.LoadMeta()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "deadbeef", hash)
}

func TestDiskCOOTermsRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "ckpt.sqlite")

	disk, err := NewDiskCOO(path)
	require.NoError(t, err)

	terms := []TermRecord{
		{Channel: "D0", CoeffRe: 1, CoeffIm: 0, Unit: M(PauliX)},
		{Channel: "U1", CoeffRe: 0, CoeffIm: 2, Unit: M(PauliY)},
	}
	require.NoError(t, disk.SaveTerms(terms))
	require.NoError(t, disk.Close())

	reopened, err := NewDiskCOO(path)
	require.NoError(t, err)
	defer reopened.Close()

	loaded, err := reopened.LoadTerms()
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	assert.Equal(t, "D0", loaded[0].Channel)
	assert.Equal(t, 1.0, loaded[0].CoeffRe)
	assert.Equal(t, 0.0, loaded[0].CoeffIm)
	assert.Equal(t, 2, loaded[0].Unit.Rows())
	assert.Equal(t, PauliX[0][1], loaded[0].Unit.At(0, 1))

	assert.Equal(t, "U1", loaded[1].Channel)
	assert.Equal(t, 2.0, loaded[1].CoeffIm)
	assert.Equal(t, PauliY[1][0], loaded[1].Unit.At(1, 0))
}

func TestDiskCOOSaveTermsReplacesPrevious(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "ckpt.sqlite")

	disk, err := NewDiskCOO(path)
	require.NoError(t, err)
	defer disk.Close()

	require.NoError(t, disk.SaveTerms([]TermRecord{
		{Channel: "D0", Unit: M(PauliX)},
		{Channel: "D1", Unit: M(PauliZ)},
	}))
	require.NoError(t, disk.SaveTerms([]TermRecord{
		{Channel: "U0", Unit: M(PauliI)},
	}))

	loaded, err := disk.LoadTerms()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "U0", loaded[0].Channel)
}
