package scenedoc

import (
	"encoding/binary"
	"hash"
	"hash/fnv"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// StructuralHash is a content-derived key used for asset deduplication.
// Two values with identical semantic content hash identically; it is the
// sole cache key and the equality test for "is this asset already present".
type StructuralHash uint64

// Hasher is an incremental accumulator over FNV-1a 64. Composite types fold
// child hashes with AddHash instead of materializing intermediate byte
// buffers. Folding is order-sensitive.
type Hasher struct {
	h hash.Hash64
}

func NewHasher() *Hasher {
	return &Hasher{h: fnv.New64a()}
}

func (h *Hasher) AddBytes(b []byte) {
	h.h.Write(b)
}

func (h *Hasher) AddString(s string) {
	h.h.Write([]byte(s))
}

func (h *Hasher) AddUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	h.h.Write(b[:])
}

func (h *Hasher) AddUint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	h.h.Write(b[:])
}

// AddFloat32 hashes the exact bit pattern, never an address, so results are
// stable across platforms and runs.
func (h *Hasher) AddFloat32(v float32) {
	h.AddUint32(math.Float32bits(v))
}

func (h *Hasher) AddVec2(v mgl32.Vec2) {
	h.AddFloat32(v.X())
	h.AddFloat32(v.Y())
}

func (h *Hasher) AddVec3(v mgl32.Vec3) {
	h.AddFloat32(v.X())
	h.AddFloat32(v.Y())
	h.AddFloat32(v.Z())
}

func (h *Hasher) AddVec4(v mgl32.Vec4) {
	h.AddFloat32(v.X())
	h.AddFloat32(v.Y())
	h.AddFloat32(v.Z())
	h.AddFloat32(v.W())
}

func (h *Hasher) AddHash(v StructuralHash) {
	h.AddUint64(uint64(v))
}

func (h *Hasher) Sum() StructuralHash {
	return StructuralHash(h.h.Sum64())
}

// handleKey derives a cache key for a remote asset handle before its payload
// is known. Handle-derived keys and content-derived keys live in the same
// key space.
func handleKey(kind, handle string) StructuralHash {
	h := NewHasher()
	h.AddString(kind)
	h.AddString(handle)
	return h.Sum()
}
