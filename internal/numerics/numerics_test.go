package numerics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity(t *testing.T) {
	unit := Normalize([]float32{1, 0, 0})
	opposite := Normalize([]float32{-1, 0, 0})
	orthogonal := Normalize([]float32{0, 1, 0})

	sim, err := CosineSimilarity(unit, unit)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sim, 1e-6)

	sim, err = CosineSimilarity(unit, opposite)
	require.NoError(t, err)
	assert.InDelta(t, -1.0, sim, 1e-6)

	sim, err = CosineSimilarity(unit, orthogonal)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, sim, 1e-6)
}

func TestCosineSimilarityZeroVector(t *testing.T) {
	zero := []float32{0, 0, 0}
	sim, err := CosineSimilarity(zero, []float32{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, float32(0), sim)
}

func TestAngularDistanceIdentityAndOpposite(t *testing.T) {
	v := Normalize([]float32{3, 4, 0})
	d, err := AngularDistance(v, v)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, d, 1e-6)

	neg := make([]float32, len(v))
	for i, x := range v {
		neg[i] = -x
	}
	d, err = AngularDistance(v, neg)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, d, 1e-6)
}

func TestDimensionMismatch(t *testing.T) {
	_, err := Dot([]float32{1, 2}, []float32{1, 2, 3})
	require.Error(t, err)
	var mismatch ErrDimensionMismatch
	require.ErrorAs(t, err, &mismatch)
}

func TestNormalizePreservesDirection(t *testing.T) {
	v := Normalize([]float32{3, 4})
	assert.InDelta(t, 1.0, float64(L2Norm(v)), 1e-6)
	assert.InDelta(t, 0.6, float64(v[0]), 1e-6)
	assert.InDelta(t, 0.8, float64(v[1]), 1e-6)
}

func TestDistanceMatrixSymmetric(t *testing.T) {
	pts := [][]float32{{0, 0}, {1, 0}, {0, 1}}
	m, err := DistanceMatrix(pts, EuclideanDistance)
	require.NoError(t, err)
	for i := range m {
		assert.Equal(t, float32(0), m[i][i])
		for j := range m {
			assert.Equal(t, m[i][j], m[j][i])
		}
	}
}
