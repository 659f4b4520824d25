package scenedoc

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
)

// SceneOptimizer rewrites an instance list into an equivalent one with
// better grouping: meshes whose content repeats often enough are split into
// per-instance copies so the consumer can instance them on the GPU, and the
// rest are merged per material to cut draw calls.
type SceneOptimizer struct {
	opts  Options
	log   Logger
	stats *Stats
}

func NewSceneOptimizer(opts Options, log Logger, stats *Stats) *SceneOptimizer {
	if log == nil {
		log = NewNopLogger()
	}
	if stats == nil {
		stats = &Stats{}
	}
	return &SceneOptimizer{opts: opts, log: log, stats: stats}
}

// meshOccurrence is one (instance, displayable, renderable mesh) triple
// found by recursive descent of an instance's displayable tree.
type meshOccurrence struct {
	inst *Instance
	disp *Displayable
	mesh *RenderableMesh
}

// meshIndex is an inverted index from a structural hash to the occurrences
// carrying it. Keys keep insertion order; iterating the map directly would
// randomize output between runs.
type meshIndex struct {
	keys   []StructuralHash
	groups map[StructuralHash][]meshOccurrence
}

func newMeshIndex() *meshIndex {
	return &meshIndex{groups: make(map[StructuralHash][]meshOccurrence)}
}

func (x *meshIndex) add(key StructuralHash, occ meshOccurrence) {
	if _, ok := x.groups[key]; !ok {
		x.keys = append(x.keys, key)
	}
	x.groups[key] = append(x.groups[key], occ)
}

// remove deletes occ (by identity) from the group under key. Reports false
// when the occurrence is not present.
func (x *meshIndex) remove(key StructuralHash, occ meshOccurrence) bool {
	group, ok := x.groups[key]
	if !ok {
		return false
	}
	for i, g := range group {
		if g.mesh == occ.mesh && g.disp == occ.disp && g.inst == occ.inst {
			x.groups[key] = append(group[:i], group[i+1:]...)
			return true
		}
	}
	return false
}

// Optimize returns a replacement instance list. With both toggles off the
// input is returned untouched.
func (o *SceneOptimizer) Optimize(instances []*Instance) []*Instance {
	if !o.opts.SeparateInstancedMeshes && !o.opts.MergeSharedMaterialMeshes {
		return instances
	}

	sharedMeshes, meshByMaterial := o.index(instances)
	out := make([]*Instance, 0, len(instances))

	if o.opts.SeparateInstancedMeshes {
		for _, key := range sharedMeshes.keys {
			group := sharedMeshes.groups[key]
			if len(group) <= o.opts.MeshShareThreshold {
				continue
			}
			for _, occ := range group {
				out = append(out, passthroughInstance(occ))
				if !meshByMaterial.remove(occ.mesh.Material.Hash(), occ) {
					o.log.Warnf("optimizer: occurrence of mesh %016x missing from material index, skipping removal", uint64(key))
				}
			}
			o.stats.InstancesSeparated += len(group)
			o.log.Debugf("optimizer: separated %d instances of mesh %016x", len(group), uint64(key))
		}
	}

	for _, key := range meshByMaterial.keys {
		group := meshByMaterial.groups[key]
		if len(group) == 0 {
			continue
		}
		if !o.opts.MergeSharedMaterialMeshes {
			for _, occ := range group {
				out = append(out, passthroughInstance(occ))
			}
			continue
		}
		merged, err := o.mergeGroup(group)
		if err != nil {
			o.log.Warnf("optimizer: merge failed for material %016x: %v; passing %d meshes through", uint64(key), err, len(group))
			for _, occ := range group {
				out = append(out, passthroughInstance(occ))
			}
			continue
		}
		out = append(out, merged...)
	}

	return out
}

// index walks every instance tree and builds the two inverted indices: one
// by mesh content hash, one by material content hash. Every occurrence
// appears in both.
func (o *SceneOptimizer) index(instances []*Instance) (*meshIndex, *meshIndex) {
	sharedMeshes := newMeshIndex()
	meshByMaterial := newMeshIndex()
	for _, inst := range instances {
		o.indexDisplayable(inst, inst.Root, sharedMeshes, meshByMaterial)
	}
	return sharedMeshes, meshByMaterial
}

func (o *SceneOptimizer) indexDisplayable(inst *Instance, d *Displayable, byMesh, byMaterial *meshIndex) {
	if d == nil {
		return
	}
	if d.Renderable != nil && d.Renderable.Kind == RenderableMeshGroup {
		for _, rm := range d.Renderable.Meshes {
			if rm.Mesh == nil {
				o.log.Warnf("optimizer: mesh %s has no resolved payload, leaving it out of the rewrite", rm.MeshHandle)
				continue
			}
			occ := meshOccurrence{inst: inst, disp: d, mesh: rm}
			byMesh.add(rm.Mesh.Hash(), occ)
			byMaterial.add(rm.Material.Hash(), occ)
		}
	}
	for _, child := range d.Children {
		o.indexDisplayable(inst, child, byMesh, byMaterial)
	}
}

// passthroughInstance wraps one occurrence in a fresh single-mesh instance
// at its original instance placement and original local offset.
func passthroughInstance(occ meshOccurrence) *Instance {
	d := NewDisplayable(occ.disp.Name)
	d.Offset = occ.disp.Offset
	d.Renderable = MeshGroup(occ.mesh)
	return &Instance{
		Position: occ.inst.Position,
		Rotation: occ.inst.Rotation,
		Root:     d,
	}
}

// mergeGroup bin-packs the group's meshes by accumulation order, flushing a
// bin whenever the next member would push it past the vertex ceiling. Not a
// globally optimal partition.
func (o *SceneOptimizer) mergeGroup(group []meshOccurrence) ([]*Instance, error) {
	ceiling := o.opts.VerticesMaxForBuffer
	var out []*Instance
	var bin []meshOccurrence
	binVerts := 0

	flush := func() error {
		if len(bin) == 0 {
			return nil
		}
		inst, err := o.mergeBin(bin)
		if err != nil {
			return err
		}
		out = append(out, inst)
		bin = bin[:0:0]
		binVerts = 0
		return nil
	}

	for _, occ := range group {
		n := len(occ.mesh.Mesh.Vertices)
		if binVerts > 0 && binVerts+n > ceiling {
			if err := flush(); err != nil {
				return nil, err
			}
		}
		bin = append(bin, occ)
		binVerts += n
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return out, nil
}

// mergeBin combines the bin's meshes into one. The first member anchors the
// merge: every vertex is transformed to world space and re-expressed
// relative to the anchor's world position, and the emitted instance sits at
// that position with identity rotation. A one-member bin is a degenerate
// merge equivalent to passing the mesh through.
func (o *SceneOptimizer) mergeBin(bin []meshOccurrence) (*Instance, error) {
	anchor := bin[0]
	anchorWorld := occurrenceWorldMat(anchor).Mul4x1(mgl32.Vec4{0, 0, 0, 1}).Vec3()

	merged := &MeshInfo{}
	for _, occ := range bin {
		src := occ.mesh.Mesh
		if src == nil {
			return nil, errors.Errorf("merge: mesh %s has no resolved payload", occ.mesh.MeshHandle)
		}
		world := occurrenceWorldMat(occ)
		normalRot := occ.inst.Rotation.Mul(occ.disp.Offset.Rotation)
		base := uint32(len(merged.Vertices))
		for _, v := range src.Vertices {
			pos := world.Mul4x1(v.Position.Vec4(1)).Vec3().Sub(anchorWorld)
			merged.Vertices = append(merged.Vertices, Vertex{
				Position: pos,
				Normal:   normalRot.Rotate(v.Normal),
				TexCoord: v.TexCoord,
			})
		}
		for _, idx := range src.Indices {
			merged.Indices = append(merged.Indices, base+idx)
		}
	}
	o.stats.MeshesMerged += len(bin)

	d := NewDisplayable(anchor.disp.Name)
	d.Renderable = MeshGroup(&RenderableMesh{
		Mesh:     merged,
		Material: anchor.mesh.Material,
	})
	return &Instance{
		Position: anchorWorld,
		Rotation: mgl32.QuatIdent(),
		Root:     d,
	}, nil
}

// occurrenceWorldMat composes the child-local offset transform with the
// owning instance's placement.
func occurrenceWorldMat(occ meshOccurrence) mgl32.Mat4 {
	inst := mgl32.Translate3D(occ.inst.Position.X(), occ.inst.Position.Y(), occ.inst.Position.Z()).
		Mul4(occ.inst.Rotation.Mat4())
	return inst.Mul4(occ.disp.Offset.Mat4())
}
