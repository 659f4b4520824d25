package scenedoc

import "github.com/go-gl/mathgl/mgl32"

// glTF component types and buffer-view targets.
const (
	ComponentUnsignedShort = 5123
	ComponentFloat         = 5126

	TargetArrayBuffer        = 34962
	TargetElementArrayBuffer = 34963

	FilterLinear = 9729
	WrapRepeat   = 10497
)

// entityTable is an insertion-ordered keyed collection. Storage is split
// from index assignment and serialization: the table only knows how to look
// up, insert, and iterate, never how to present itself.
type entityTable[T any] struct {
	items []*T
	byKey map[StructuralHash]*T
}

func newEntityTable[T any]() entityTable[T] {
	return entityTable[T]{byKey: make(map[StructuralHash]*T)}
}

func (t *entityTable[T]) lookup(key StructuralHash) (*T, bool) {
	item, ok := t.byKey[key]
	return item, ok
}

// insert stores item under key. Entities join exactly one table and are
// never removed.
func (t *entityTable[T]) insert(key StructuralHash, item *T) {
	t.byKey[key] = item
	t.items = append(t.items, item)
}

// add appends an unkeyed entity (buffers, views, accessors have no
// deduplication key).
func (t *entityTable[T]) add(item *T) {
	t.items = append(t.items, item)
}

func (t *entityTable[T]) size() int {
	return len(t.items)
}

// Node is one document-graph node: a TRS transform, an optional mesh
// reference, and children.
type Node struct {
	Name        string
	Translation mgl32.Vec3
	Rotation    mgl32.Quat
	Scale       mgl32.Vec3
	Mesh        *Mesh
	Children    []*Node

	index int
}

type Mesh struct {
	Name       string
	Primitives []*Primitive

	index int
}

// Primitive is one drawable mesh/material pair. Its accessors stay nil
// until the buffer packer assigns them. Primitives serialize inline inside
// their mesh and carry no reference index of their own.
type Primitive struct {
	Source   *MeshInfo
	Material *Material

	Indices  *Accessor
	Position *Accessor
	Normal   *Accessor
	TexCoord *Accessor
}

type Accessor struct {
	BufferView    *BufferView
	ByteOffset    int
	ComponentType int
	Count         int
	Type          string
	Min           []float32
	Max           []float32

	index int
}

type BufferView struct {
	Buffer     *Buffer
	ByteOffset int
	ByteLength int
	ByteStride int
	Target     int

	index int
}

// Buffer owns one packed binary payload. Data is held in memory; writing it
// to the URI is the external writer's job.
type Buffer struct {
	ByteLength int
	URI        string
	Data       []byte

	index int
}

type Material struct {
	Name        string
	BaseColor   mgl32.Vec4
	Metallic    float32
	Roughness   float32
	AlphaMode   string
	DoubleSided bool
	Texture     *Texture

	index int
}

type Texture struct {
	Image   *Image
	Sampler *Sampler

	index int
}

type Image struct {
	Name   string
	URI    string
	Width  int
	Height int

	index int
}

type Sampler struct {
	MagFilter int
	MinFilter int
	WrapS     int
	WrapT     int

	index int
}

// Document is the output scene-description graph prior to serialization.
// Each entity lives in exactly one typed collection; cross-references hold
// pointers until ResolveIndices assigns the dense integer indices the
// serialized form uses.
type Document struct {
	Name  string
	Roots []*Node

	nodes       entityTable[Node]
	meshes      entityTable[Mesh]
	primitives  entityTable[Primitive]
	accessors   entityTable[Accessor]
	bufferViews entityTable[BufferView]
	buffers     entityTable[Buffer]
	materials   entityTable[Material]
	textures    entityTable[Texture]
	images      entityTable[Image]
	samplers    entityTable[Sampler]
}

func NewDocument(name string) *Document {
	if name == "" {
		name = "scene"
	}
	return &Document{
		Name:        name,
		nodes:       newEntityTable[Node](),
		meshes:      newEntityTable[Mesh](),
		primitives:  newEntityTable[Primitive](),
		accessors:   newEntityTable[Accessor](),
		bufferViews: newEntityTable[BufferView](),
		buffers:     newEntityTable[Buffer](),
		materials:   newEntityTable[Material](),
		textures:    newEntityTable[Texture](),
		images:      newEntityTable[Image](),
		samplers:    newEntityTable[Sampler](),
	}
}

// Buffers returns the packed binary payloads in collection order.
func (d *Document) Buffers() []*Buffer {
	return d.buffers.items
}

// ResolveIndices assigns every entity its dense zero-based reference index
// by iterating each typed collection once in insertion order. It must run
// after all entities are created and before serialization. Re-running it
// without further graph mutation is a no-op.
func (d *Document) ResolveIndices() {
	for i, n := range d.nodes.items {
		n.index = i
	}
	for i, m := range d.meshes.items {
		m.index = i
	}
	for i, a := range d.accessors.items {
		a.index = i
	}
	for i, v := range d.bufferViews.items {
		v.index = i
	}
	for i, b := range d.buffers.items {
		b.index = i
	}
	for i, m := range d.materials.items {
		m.index = i
	}
	for i, t := range d.textures.items {
		t.index = i
	}
	for i, img := range d.images.items {
		img.index = i
	}
	for i, s := range d.samplers.items {
		s.index = i
	}
}
