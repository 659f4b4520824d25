package scenedoc

import (
	"context"

	"github.com/pkg/errors"
)

// Converter drives one scene-to-document conversion: optimize the instance
// list, build the document graph, pack the binary buffers, and resolve
// reference indices. A Converter owns one AssetCache for the lifetime of
// the run; nothing is evicted mid-conversion.
type Converter struct {
	opts   Options
	log    Logger
	cache  *AssetCache
	meshes MeshSource
	images ImageSource
	stats  Stats
}

func NewConverter(opts Options, meshes MeshSource, images ImageSource, log Logger) *Converter {
	if log == nil {
		log = NewNopLogger()
	}
	return &Converter{
		opts:   opts,
		log:    log,
		cache:  NewAssetCache(),
		meshes: meshes,
		images: images,
	}
}

// Stats returns the counters accumulated so far.
func (c *Converter) Stats() Stats {
	return c.stats
}

// Convert rewrites the scene per the configured optimizer toggles, builds
// the document graph, packs buffers, and resolves reference indices. The
// returned document is ready for serialization. Fetch and decode failures
// abort the conversion and surface here.
func (c *Converter) Convert(ctx context.Context, instances []*Instance) (*Document, error) {
	if c.opts.SeparateInstancedMeshes || c.opts.MergeSharedMaterialMeshes {
		// The optimizer needs vertex counts, so lazily fetched geometry has
		// to resolve before the rewrite.
		if err := c.resolveScene(ctx, instances); err != nil {
			return nil, err
		}
		optimizer := NewSceneOptimizer(c.opts, c.log, &c.stats)
		instances = optimizer.Optimize(instances)
	}

	doc := NewDocument(c.opts.DocName)
	builder := NewDocumentBuilder(doc, c.cache, c.meshes, c.images, c.opts, c.log, &c.stats)
	if err := builder.Build(ctx, instances); err != nil {
		return nil, errors.Wrap(err, "build document")
	}

	packer := NewBufferPacker(c.opts, c.log, &c.stats)
	if err := packer.Pack(doc); err != nil {
		return nil, errors.Wrap(err, "pack buffers")
	}

	doc.ResolveIndices()
	c.log.Infof("converted %d instances: %s", len(instances), c.stats.String())
	return doc, nil
}

func (c *Converter) resolveScene(ctx context.Context, instances []*Instance) error {
	for _, inst := range instances {
		if err := c.resolveDisplayable(ctx, inst.Root); err != nil {
			return err
		}
	}
	return nil
}

func (c *Converter) resolveDisplayable(ctx context.Context, d *Displayable) error {
	if d == nil {
		return nil
	}
	if d.Renderable != nil && d.Renderable.Kind == RenderableMeshGroup {
		for _, rm := range d.Renderable.Meshes {
			if rm.Mesh != nil {
				continue
			}
			mesh, err := c.cache.ResolveMesh(ctx, rm.MeshHandle, c.meshes)
			if err != nil {
				return err
			}
			c.stats.MeshFetches++
			rm.Mesh = mesh
		}
	}
	for _, child := range d.Children {
		if err := c.resolveDisplayable(ctx, child); err != nil {
			return err
		}
	}
	return nil
}
