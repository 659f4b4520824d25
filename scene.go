package scenedoc

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Transform is a local position/rotation/scale offset.
type Transform struct {
	Position mgl32.Vec3
	Rotation mgl32.Quat
	Scale    mgl32.Vec3
}

func IdentityTransform() Transform {
	return Transform{
		Position: mgl32.Vec3{0, 0, 0},
		Rotation: mgl32.QuatIdent(),
		Scale:    mgl32.Vec3{1, 1, 1},
	}
}

// Mat4 composes M = T * R * S.
func (t Transform) Mat4() mgl32.Mat4 {
	translate := mgl32.Translate3D(t.Position.X(), t.Position.Y(), t.Position.Z())
	rotate := t.Rotation.Mat4()
	scale := mgl32.Scale3D(t.Scale.X(), t.Scale.Y(), t.Scale.Z())
	return translate.Mul4(rotate).Mul4(scale)
}

func (t Transform) hasUnitScale() bool {
	return t.Scale.X() == 1 && t.Scale.Y() == 1 && t.Scale.Z() == 1
}

// Vertex is one position/normal/texcoord triple.
type Vertex struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	TexCoord mgl32.Vec2
}

func (v Vertex) addTo(h *Hasher) {
	h.AddVec3(v.Position)
	h.AddVec3(v.Normal)
	h.AddVec2(v.TexCoord)
}

func (v Vertex) Hash() StructuralHash {
	h := NewHasher()
	v.addTo(h)
	return h.Sum()
}

// MeshInfo holds triangle geometry. Mutable only during construction;
// immutable once its hash has been taken or it has been cached.
type MeshInfo struct {
	Vertices []Vertex
	Indices  []uint32

	hash   StructuralHash
	hashed bool
}

// Hash returns the content hash, computing and caching it on first use.
func (m *MeshInfo) Hash() StructuralHash {
	if !m.hashed {
		h := NewHasher()
		h.AddUint32(uint32(len(m.Vertices)))
		for _, v := range m.Vertices {
			v.addTo(h)
		}
		h.AddUint32(uint32(len(m.Indices)))
		for _, i := range m.Indices {
			h.AddUint32(i)
		}
		m.hash = h.Sum()
		m.hashed = true
	}
	return m.hash
}

// Validate checks the index invariant: every index references a vertex and
// indices form whole triangles.
func (m *MeshInfo) Validate() error {
	if len(m.Indices)%3 != 0 {
		return errors.Errorf("index count %d is not a multiple of 3", len(m.Indices))
	}
	n := uint32(len(m.Vertices))
	for k, i := range m.Indices {
		if i >= n {
			return errors.Errorf("index %d at position %d out of range (%d vertices)", i, k, n)
		}
	}
	return nil
}

// ImageInfo is a texture image: a source handle, decoded dimensions, a
// lazily resolved RGBA pixel payload, and the URI it will be persisted
// under. Its hash derives from the source handle so the key exists before
// the payload does.
type ImageInfo struct {
	Handle string
	Width  int
	Height int
	Pixels []byte
	URI    string
}

func (img *ImageInfo) Hash() StructuralHash {
	return handleKey("image", img.Handle)
}

// MaterialInfo describes a drawable surface's shading inputs.
type MaterialInfo struct {
	Color        mgl32.Vec4
	Shininess    float32
	Transparency float32
	DoubleSided  bool
	Image        *ImageInfo

	hash   StructuralHash
	hashed bool
}

func (m *MaterialInfo) Hash() StructuralHash {
	if !m.hashed {
		h := NewHasher()
		h.AddVec4(m.Color)
		h.AddFloat32(m.Shininess)
		h.AddFloat32(m.Transparency)
		if m.DoubleSided {
			h.AddUint32(1)
		} else {
			h.AddUint32(0)
		}
		if m.Image != nil {
			h.AddHash(m.Image.Hash())
		}
		m.hash = h.Sum()
		m.hashed = true
	}
	return m.hash
}

// RenderableMesh is one (geometry, material) pair, the unit of deduplication
// for a drawable surface. Mesh may be nil until resolved from MeshHandle.
type RenderableMesh struct {
	MeshHandle string
	Mesh       *MeshInfo
	Material   *MaterialInfo
	Face       int
}

// pairKey folds a geometry hash then a material hash, the dedup key for one
// drawable surface.
func pairKey(mesh *MeshInfo, mat *MaterialInfo) StructuralHash {
	h := NewHasher()
	h.AddHash(mesh.Hash())
	h.AddHash(mat.Hash())
	return h.Sum()
}

// Hash folds the mesh hash then the material hash, in that order. The mesh
// payload must be resolved first.
func (r *RenderableMesh) Hash() StructuralHash {
	return pairKey(r.Mesh, r.Material)
}

// RenderableKind tags the closed set of renderable variants. The document
// builder dispatches on the tag, not on dynamic type checks.
type RenderableKind uint8

const (
	RenderableMeshGroup RenderableKind = iota
)

type Renderable struct {
	Kind   RenderableKind
	Meshes []*RenderableMesh
}

func MeshGroup(meshes ...*RenderableMesh) *Renderable {
	return &Renderable{Kind: RenderableMeshGroup, Meshes: meshes}
}

func (r *Renderable) Hash() StructuralHash {
	h := NewHasher()
	h.AddUint32(uint32(r.Kind))
	for _, m := range r.Meshes {
		h.AddHash(m.Hash())
	}
	return h.Sum()
}

// Displayable is one node in the source hierarchy: a local offset, optional
// geometry, and children. Its hash is an identity handle, not a content
// hash: children are never flattened into the parent's hash, and two
// separately authored but identical subtrees hash differently. Mesh and
// material sharing is content-based; node sharing deliberately is not.
type Displayable struct {
	id         uuid.UUID
	Name       string
	Offset     Transform
	Renderable *Renderable
	Children   []*Displayable
}

func NewDisplayable(name string) *Displayable {
	return &Displayable{
		id:     uuid.New(),
		Name:   name,
		Offset: IdentityTransform(),
	}
}

func (d *Displayable) Hash() StructuralHash {
	h := NewHasher()
	h.AddBytes(d.id[:])
	return h.Sum()
}

// Instance is a world-space placement of a root Displayable.
type Instance struct {
	Position mgl32.Vec3
	Rotation mgl32.Quat
	Root     *Displayable
}
