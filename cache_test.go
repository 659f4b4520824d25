package scenedoc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeshForRunsFactoryOnce(t *testing.T) {
	cache := NewAssetCache()
	mesh := quadMesh()
	calls := 0
	factory := func() *MeshInfo {
		calls++
		return mesh
	}

	key := mesh.Hash()
	first := cache.MeshFor(key, factory)
	second := cache.MeshFor(key, factory)

	assert.Same(t, first, second)
	assert.Equal(t, 1, calls)
}

func TestMaterialForReturnsStored(t *testing.T) {
	cache := NewAssetCache()
	mat := grayMaterial()
	stored := cache.MaterialFor(mat.Hash(), func() *MaterialInfo { return mat })
	other := cache.MaterialFor(mat.Hash(), func() *MaterialInfo {
		t.Fatal("factory must not run for a present key")
		return nil
	})
	assert.Same(t, stored, other)
}

func TestResolveMeshSingleFetch(t *testing.T) {
	src := newFakeMeshSource()
	src.meshes["m1"] = quadMesh()
	src.delay = 5 * time.Millisecond
	cache := NewAssetCache()

	const callers = 16
	results := make([]*MeshInfo, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := cache.ResolveMesh(context.Background(), "m1", src)
			require.NoError(t, err)
			results[i] = m
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, src.fetchCount(), "only one fetch may be in flight per key")
	for i := 1; i < callers; i++ {
		assert.Same(t, results[0], results[i])
	}
}

func TestResolveMeshFailureIsTerminal(t *testing.T) {
	src := newFakeMeshSource()
	src.errs["bad"] = errors.New("asset store unavailable")
	cache := NewAssetCache()

	_, err1 := cache.ResolveMesh(context.Background(), "bad", src)
	require.Error(t, err1)
	assert.Contains(t, err1.Error(), "bad")

	_, err2 := cache.ResolveMesh(context.Background(), "bad", src)
	require.Error(t, err2)
	assert.EqualValues(t, 1, src.fetchCount(), "a failed handle must not refetch")
}

func TestResolveMeshRejectsInvalidGeometry(t *testing.T) {
	src := newFakeMeshSource()
	broken := quadMesh()
	broken.Indices[0] = 99
	src.meshes["broken"] = broken
	cache := NewAssetCache()

	_, err := cache.ResolveMesh(context.Background(), "broken", src)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode mesh broken")
}

func TestResolveMeshWithoutSource(t *testing.T) {
	cache := NewAssetCache()
	_, err := cache.ResolveMesh(context.Background(), "m1", nil)
	require.Error(t, err)
}
