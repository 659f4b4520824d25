package scenedoc

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

// MeshSource fetches remote mesh geometry by handle. Implemented by the
// scene-reading collaborator; the cache only cares that a handle resolves to
// a MeshInfo or an error.
type MeshSource interface {
	FetchMesh(ctx context.Context, handle string) (*MeshInfo, error)
}

// AssetCache holds at most one resident copy of each distinct mesh,
// material, image, and renderable, keyed by structural hash. Entries are
// insert-if-absent and never evicted or updated in place within a
// conversion run: a full-scene working set is assumed to fit in memory.
type AssetCache struct {
	mu          sync.Mutex
	meshes      map[StructuralHash]*MeshInfo
	materials   map[StructuralHash]*MaterialInfo
	images      map[StructuralHash]*ImageInfo
	renderables map[StructuralHash]*RenderableMesh
	failed      map[string]error

	flight singleflight.Group
}

func NewAssetCache() *AssetCache {
	return &AssetCache{
		meshes:      make(map[StructuralHash]*MeshInfo),
		materials:   make(map[StructuralHash]*MaterialInfo),
		images:      make(map[StructuralHash]*ImageInfo),
		renderables: make(map[StructuralHash]*RenderableMesh),
		failed:      make(map[string]error),
	}
}

// MeshFor returns the mesh stored under key, running create exactly once if
// the key is absent and storing the result before returning it.
func (c *AssetCache) MeshFor(key StructuralHash, create func() *MeshInfo) *MeshInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.meshes[key]; ok {
		return m
	}
	m := create()
	c.meshes[key] = m
	return m
}

func (c *AssetCache) MaterialFor(key StructuralHash, create func() *MaterialInfo) *MaterialInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.materials[key]; ok {
		return m
	}
	m := create()
	c.materials[key] = m
	return m
}

func (c *AssetCache) ImageFor(key StructuralHash, create func() *ImageInfo) *ImageInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	if img, ok := c.images[key]; ok {
		return img
	}
	img := create()
	c.images[key] = img
	return img
}

func (c *AssetCache) RenderableFor(key StructuralHash, create func() *RenderableMesh) *RenderableMesh {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.renderables[key]; ok {
		return r
	}
	r := create()
	c.renderables[key] = r
	return r
}

func (c *AssetCache) lookupMesh(key StructuralHash) (*MeshInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.meshes[key]
	return m, ok
}

// ResolveMesh fetches the mesh behind handle at most once, even under
// concurrent callers: the first caller runs the fetch, everyone else waits
// on the same in-flight result. A failed fetch is terminal for the handle;
// the error is replayed to later callers without refetching.
func (c *AssetCache) ResolveMesh(ctx context.Context, handle string, src MeshSource) (*MeshInfo, error) {
	key := handleKey("mesh", handle)
	if m, ok := c.lookupMesh(key); ok {
		return m, nil
	}
	v, err, _ := c.flight.Do("mesh:"+handle, func() (any, error) {
		if m, ok := c.lookupMesh(key); ok {
			return m, nil
		}
		c.mu.Lock()
		past := c.failed["mesh:"+handle]
		c.mu.Unlock()
		if past != nil {
			return nil, past
		}
		if src == nil {
			return nil, errors.Errorf("mesh %s is unresolved and no mesh source is configured", handle)
		}
		m, err := src.FetchMesh(ctx, handle)
		if err != nil {
			err = errors.Wrapf(err, "fetch mesh %s", handle)
			c.rememberFailure("mesh:"+handle, err)
			return nil, err
		}
		if err := m.Validate(); err != nil {
			err = errors.Wrapf(err, "decode mesh %s", handle)
			c.rememberFailure("mesh:"+handle, err)
			return nil, err
		}
		c.mu.Lock()
		c.meshes[key] = m
		c.mu.Unlock()
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*MeshInfo), nil
}

func (c *AssetCache) rememberFailure(key string, err error) {
	c.mu.Lock()
	c.failed[key] = err
	c.mu.Unlock()
}
