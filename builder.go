package scenedoc

import (
	"context"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
)

// DocumentBuilder walks instance trees depth-first and grows the document
// graph. A four-level keyed lookup chain (node by displayable identity,
// mesh by renderable content, primitive by mesh/material content, material
// and image by their content) guarantees no duplicate geometry, material,
// or image is ever emitted, no matter how often the scene references it.
type DocumentBuilder struct {
	doc    *Document
	cache  *AssetCache
	meshes MeshSource
	images ImageSource
	opts   Options
	log    Logger
	stats  *Stats

	sampler *Sampler
}

func NewDocumentBuilder(doc *Document, cache *AssetCache, meshes MeshSource, images ImageSource, opts Options, log Logger, stats *Stats) *DocumentBuilder {
	if log == nil {
		log = NewNopLogger()
	}
	if stats == nil {
		stats = &Stats{}
	}
	if cache == nil {
		cache = NewAssetCache()
	}
	return &DocumentBuilder{
		doc:    doc,
		cache:  cache,
		meshes: meshes,
		images: images,
		opts:   opts,
		log:    log,
		stats:  stats,
	}
}

// Build adds one root node per instance to the document scene. A fetch or
// decode failure aborts the build and surfaces to the caller; nothing is
// silently substituted.
func (b *DocumentBuilder) Build(ctx context.Context, instances []*Instance) error {
	for _, inst := range instances {
		node, err := b.instanceNode(ctx, inst)
		if err != nil {
			return err
		}
		if !containsNode(b.doc.Roots, node) {
			b.doc.Roots = append(b.doc.Roots, node)
		}
	}
	return nil
}

func containsNode(nodes []*Node, n *Node) bool {
	for _, candidate := range nodes {
		if candidate == n {
			return true
		}
	}
	return false
}

// instanceNode builds the root node for an instance and composes the
// instance placement into its transform. Node sharing is keyed by the
// displayable's identity hash: only the literal same Displayable object
// reuses a node, and then the first instance's placement wins.
func (b *DocumentBuilder) instanceNode(ctx context.Context, inst *Instance) (*Node, error) {
	if n, ok := b.doc.nodes.lookup(inst.Root.Hash()); ok {
		b.stats.NodesReused++
		return n, nil
	}
	n, err := b.buildNode(ctx, inst.Root)
	if err != nil {
		return nil, err
	}
	off := inst.Root.Offset
	n.Translation = inst.Position.Add(inst.Rotation.Rotate(off.Position))
	n.Rotation = inst.Rotation.Mul(off.Rotation)
	return n, nil
}

func (b *DocumentBuilder) buildNode(ctx context.Context, d *Displayable) (*Node, error) {
	key := d.Hash()
	if n, ok := b.doc.nodes.lookup(key); ok {
		b.stats.NodesReused++
		return n, nil
	}

	n := &Node{
		Name:        d.Name,
		Translation: d.Offset.Position,
		Rotation:    d.Offset.Rotation,
		Scale:       d.Offset.Scale,
	}
	if b.opts.DisplayTimeScaling {
		// Scale is baked into the geometry below.
		n.Scale = mgl32.Vec3{1, 1, 1}
	}
	b.doc.nodes.insert(key, n)
	b.stats.NodesCreated++

	if d.Renderable != nil {
		switch d.Renderable.Kind {
		case RenderableMeshGroup:
			m, err := b.buildMesh(ctx, d)
			if err != nil {
				return nil, err
			}
			n.Mesh = m
		default:
			return nil, errors.Errorf("displayable %q has unknown renderable kind %d", d.Name, d.Renderable.Kind)
		}
	}

	for _, child := range d.Children {
		c, err := b.buildNode(ctx, child)
		if err != nil {
			return nil, err
		}
		n.Children = append(n.Children, c)
	}
	return n, nil
}

// buildMesh resolves every member's geometry, then looks up or creates the
// document mesh keyed by the members' content hashes. Display-time scaling
// picks a scaled copy per member without touching the shared RenderableMesh:
// a renderable reached through several displayables keeps its source geometry
// and the scale is applied exactly once per scale value.
func (b *DocumentBuilder) buildMesh(ctx context.Context, d *Displayable) (*Mesh, error) {
	r := d.Renderable
	geoms := make([]*MeshInfo, len(r.Meshes))
	for i, rm := range r.Meshes {
		if rm.Mesh == nil {
			mesh, err := b.cache.ResolveMesh(ctx, rm.MeshHandle, b.meshes)
			if err != nil {
				return nil, err
			}
			b.stats.MeshFetches++
			rm.Mesh = mesh
		}
		geoms[i] = rm.Mesh
		if b.opts.DisplayTimeScaling && !d.Offset.hasUnitScale() {
			geoms[i] = b.scaledMesh(rm.Mesh, d.Offset.Scale)
		}
	}

	h := NewHasher()
	h.AddUint32(uint32(r.Kind))
	for i, rm := range r.Meshes {
		h.AddHash(pairKey(geoms[i], rm.Material))
	}
	key := h.Sum()
	if m, ok := b.doc.meshes.lookup(key); ok {
		b.stats.MeshesReused++
		return m, nil
	}
	m := &Mesh{Name: d.Name}
	for i, rm := range r.Meshes {
		p, err := b.buildPrimitive(ctx, geoms[i], rm.Material)
		if err != nil {
			return nil, err
		}
		m.Primitives = append(m.Primitives, p)
	}
	b.doc.meshes.insert(key, m)
	b.stats.MeshesCreated++
	return m, nil
}

// scaledMesh returns a copy of m with scale baked into positions (and the
// inverse applied to normals). Keyed by the source hash folded with the
// scale, so identical scaled copies still deduplicate.
func (b *DocumentBuilder) scaledMesh(m *MeshInfo, scale mgl32.Vec3) *MeshInfo {
	h := NewHasher()
	h.AddHash(m.Hash())
	h.AddVec3(scale)
	return b.cache.MeshFor(h.Sum(), func() *MeshInfo {
		out := &MeshInfo{
			Vertices: make([]Vertex, len(m.Vertices)),
			Indices:  append([]uint32(nil), m.Indices...),
		}
		inv := mgl32.Vec3{1 / scale.X(), 1 / scale.Y(), 1 / scale.Z()}
		for i, v := range m.Vertices {
			n := mgl32.Vec3{v.Normal.X() * inv.X(), v.Normal.Y() * inv.Y(), v.Normal.Z() * inv.Z()}
			if n.Len() > 0 {
				n = n.Normalize()
			}
			out.Vertices[i] = Vertex{
				Position: mgl32.Vec3{v.Position.X() * scale.X(), v.Position.Y() * scale.Y(), v.Position.Z() * scale.Z()},
				Normal:   n,
				TexCoord: v.TexCoord,
			}
		}
		return out
	})
}

func (b *DocumentBuilder) buildPrimitive(ctx context.Context, geom *MeshInfo, info *MaterialInfo) (*Primitive, error) {
	key := pairKey(geom, info)
	if p, ok := b.doc.primitives.lookup(key); ok {
		b.stats.PrimitivesReused++
		return p, nil
	}
	mat, err := b.buildMaterial(ctx, info)
	if err != nil {
		return nil, err
	}
	p := &Primitive{Source: geom, Material: mat}
	b.doc.primitives.insert(key, p)
	b.stats.PrimitivesCreated++
	return p, nil
}

func (b *DocumentBuilder) buildMaterial(ctx context.Context, info *MaterialInfo) (*Material, error) {
	key := info.Hash()
	if m, ok := b.doc.materials.lookup(key); ok {
		b.stats.MaterialsReused++
		return m, nil
	}
	m := &Material{
		BaseColor:   info.Color,
		Metallic:    0,
		Roughness:   roughnessFromShininess(info.Shininess),
		AlphaMode:   "OPAQUE",
		DoubleSided: info.DoubleSided,
	}
	if info.Transparency > 0 {
		m.AlphaMode = "BLEND"
	}
	if info.Image != nil {
		tex, err := b.buildTexture(ctx, info.Image)
		if err != nil {
			return nil, err
		}
		m.Texture = tex
	}
	b.doc.materials.insert(key, m)
	b.stats.MaterialsCreated++
	return m, nil
}

func (b *DocumentBuilder) buildTexture(ctx context.Context, info *ImageInfo) (*Texture, error) {
	key := info.Hash()
	if t, ok := b.doc.textures.lookup(key); ok {
		return t, nil
	}

	resolved := info
	if info.Pixels == nil && b.images != nil {
		var err error
		resolved, err = b.cache.ResolveImage(ctx, info.Handle, b.images, b.opts.TextureMaxSize)
		if err != nil {
			return nil, err
		}
		b.stats.ImageFetches++
	} else {
		resolved = fitImageInfo(info, b.opts.TextureMaxSize)
	}

	uri := resolved.URI
	if uri == "" {
		uri = resolved.Handle + ".png"
	}
	img := &Image{
		Name:   resolved.Handle,
		URI:    uri,
		Width:  resolved.Width,
		Height: resolved.Height,
	}
	b.doc.images.insert(key, img)
	b.stats.ImagesCreated++

	t := &Texture{Image: img, Sampler: b.defaultSampler()}
	b.doc.textures.insert(key, t)
	return t, nil
}

func (b *DocumentBuilder) defaultSampler() *Sampler {
	if b.sampler == nil {
		b.sampler = &Sampler{
			MagFilter: FilterLinear,
			MinFilter: FilterLinear,
			WrapS:     WrapRepeat,
			WrapT:     WrapRepeat,
		}
		b.doc.samplers.add(b.sampler)
	}
	return b.sampler
}

// roughnessFromShininess maps the legacy 0..1 shininess to a metallic
// roughness factor.
func roughnessFromShininess(shininess float32) float32 {
	r := 1 - shininess
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}
