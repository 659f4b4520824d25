package scenedoc

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
)

// bufferAlign is the alignment unit for the float regions that follow the
// index region: 8 four-byte floats per vertex.
const bufferAlign = 32

// texCoordBoundLimit caps texture-coordinate extremes considered sane
// enough to record in accessor min/max.
const texCoordBoundLimit = 10000

// BufferPacker serializes every primitive's geometry into padded, strided
// binary buffers. Primitives accumulate into groups bounded by
// VerticesMaxForBuffer; each group packs into its own buffer with vertices
// deduplicated by structural hash and indices remapped to uint16.
type BufferPacker struct {
	opts  Options
	log   Logger
	stats *Stats
}

func NewBufferPacker(opts Options, log Logger, stats *Stats) *BufferPacker {
	if log == nil {
		log = NewNopLogger()
	}
	if stats == nil {
		stats = &Stats{}
	}
	return &BufferPacker{opts: opts, log: log, stats: stats}
}

// Pack partitions the document's primitives and packs each group. The
// partition keeps every group's pre-dedup vertex count under the ceiling,
// which in turn keeps remapped indices inside uint16 range.
func (p *BufferPacker) Pack(doc *Document) error {
	var group []*Primitive
	verts := 0
	flush := func() error {
		if len(group) == 0 {
			return nil
		}
		if err := p.packGroup(doc, group); err != nil {
			return err
		}
		group = nil
		verts = 0
		return nil
	}
	for _, prim := range doc.primitives.items {
		n := len(prim.Source.Vertices)
		if verts > 0 && verts+n > p.opts.VerticesMaxForBuffer {
			if err := flush(); err != nil {
				return err
			}
		}
		group = append(group, prim)
		verts += n
	}
	return flush()
}

func (p *BufferPacker) packGroup(doc *Document, group []*Primitive) error {
	var unique []Vertex
	slot := make(map[StructuralHash]uint16)
	remapped := make([][]uint16, len(group))
	totalIndices := 0

	for gi, prim := range group {
		src := prim.Source
		indices := make([]uint16, len(src.Indices))
		for k, i := range src.Indices {
			v := src.Vertices[i]
			h := v.Hash()
			u, ok := slot[h]
			if !ok {
				if len(unique) >= math.MaxUint16 {
					// Partitioning should have prevented this; a group this
					// dense cannot be indexed with uint16.
					return errors.Errorf("buffer group reached %d unique vertices, exceeding uint16 index range", len(unique)+1)
				}
				u = uint16(len(unique))
				unique = append(unique, v)
				slot[h] = u
			}
			indices[k] = u
		}
		remapped[gi] = indices
		totalIndices += len(indices)
	}

	// Region layout: indices, pad to alignment, positions, normals,
	// texcoords.
	indexBytes := totalIndices * 2
	posOffset := alignUp(indexBytes, bufferAlign)
	vec3Bytes := len(unique) * 3 * 4
	nrmOffset := posOffset + vec3Bytes
	uvOffset := nrmOffset + vec3Bytes
	total := uvOffset + len(unique)*2*4

	data := make([]byte, total)
	cursor := 0
	for _, indices := range remapped {
		for _, u := range indices {
			binary.LittleEndian.PutUint16(data[cursor:], u)
			cursor += 2
		}
	}
	for i, v := range unique {
		putVec3(data[posOffset+i*12:], v.Position[0], v.Position[1], v.Position[2])
		putVec3(data[nrmOffset+i*12:], v.Normal[0], v.Normal[1], v.Normal[2])
		putVec2(data[uvOffset+i*8:], v.TexCoord[0], v.TexCoord[1])
	}

	posMin, posMax := [3]float32{}, [3]float32{}
	nrmMin, nrmMax := [3]float32{}, [3]float32{}
	uvMin, uvMax := [2]float32{}, [2]float32{}
	uvSane := len(unique) > 0
	for i, v := range unique {
		if i == 0 {
			posMin, posMax = [3]float32(v.Position), [3]float32(v.Position)
			nrmMin, nrmMax = [3]float32(v.Normal), [3]float32(v.Normal)
			uvMin, uvMax = [2]float32(v.TexCoord), [2]float32(v.TexCoord)
		}
		for c := 0; c < 3; c++ {
			posMin[c] = math32.Min(posMin[c], v.Position[c])
			posMax[c] = math32.Max(posMax[c], v.Position[c])
			nrmMin[c] = math32.Min(nrmMin[c], v.Normal[c])
			nrmMax[c] = math32.Max(nrmMax[c], v.Normal[c])
		}
		for c := 0; c < 2; c++ {
			uv := v.TexCoord[c]
			if math32.IsNaN(uv) || math32.Abs(uv) > texCoordBoundLimit {
				uvSane = false
				continue
			}
			uvMin[c] = math32.Min(uvMin[c], uv)
			uvMax[c] = math32.Max(uvMax[c], uv)
		}
	}

	buf := &Buffer{
		ByteLength: total,
		URI:        fmt.Sprintf("%s_%d.bin", doc.Name, doc.buffers.size()),
		Data:       data,
	}
	doc.buffers.add(buf)

	indexView := &BufferView{Buffer: buf, ByteOffset: 0, ByteLength: indexBytes, Target: TargetElementArrayBuffer}
	posView := &BufferView{Buffer: buf, ByteOffset: posOffset, ByteLength: vec3Bytes, ByteStride: 12, Target: TargetArrayBuffer}
	nrmView := &BufferView{Buffer: buf, ByteOffset: nrmOffset, ByteLength: vec3Bytes, ByteStride: 12, Target: TargetArrayBuffer}
	uvView := &BufferView{Buffer: buf, ByteOffset: uvOffset, ByteLength: len(unique) * 8, ByteStride: 8, Target: TargetArrayBuffer}
	doc.bufferViews.add(indexView)
	doc.bufferViews.add(posView)
	doc.bufferViews.add(nrmView)
	doc.bufferViews.add(uvView)

	posAcc := &Accessor{
		BufferView: posView, ComponentType: ComponentFloat, Count: len(unique),
		Type: "VEC3", Min: posMin[:], Max: posMax[:],
	}
	nrmAcc := &Accessor{
		BufferView: nrmView, ComponentType: ComponentFloat, Count: len(unique),
		Type: "VEC3", Min: nrmMin[:], Max: nrmMax[:],
	}
	uvAcc := &Accessor{
		BufferView: uvView, ComponentType: ComponentFloat, Count: len(unique),
		Type: "VEC2",
	}
	if uvSane {
		uvAcc.Min = uvMin[:]
		uvAcc.Max = uvMax[:]
	}
	doc.accessors.add(posAcc)
	doc.accessors.add(nrmAcc)
	doc.accessors.add(uvAcc)

	byteCursor := 0
	for gi, prim := range group {
		indices := remapped[gi]
		iMin, iMax := indexExtremes(indices)
		acc := &Accessor{
			BufferView:    indexView,
			ByteOffset:    byteCursor,
			ComponentType: ComponentUnsignedShort,
			Count:         len(indices),
			Type:          "SCALAR",
			Min:           []float32{float32(iMin)},
			Max:           []float32{float32(iMax)},
		}
		doc.accessors.add(acc)
		prim.Indices = acc
		prim.Position = posAcc
		prim.Normal = nrmAcc
		prim.TexCoord = uvAcc
		byteCursor += len(indices) * 2
	}

	p.stats.BuffersPacked++
	p.stats.BytesPacked += total
	p.log.Debugf("packer: %d primitives, %d unique vertices, %d indices, %d bytes (%s)",
		len(group), len(unique), totalIndices, total, buf.URI)
	return nil
}

func alignUp(n, unit int) int {
	rem := n % unit
	if rem == 0 {
		return n
	}
	return n + unit - rem
}

func putVec3(b []byte, x, y, z float32) {
	binary.LittleEndian.PutUint32(b[0:], math.Float32bits(x))
	binary.LittleEndian.PutUint32(b[4:], math.Float32bits(y))
	binary.LittleEndian.PutUint32(b[8:], math.Float32bits(z))
}

func putVec2(b []byte, x, y float32) {
	binary.LittleEndian.PutUint32(b[0:], math.Float32bits(x))
	binary.LittleEndian.PutUint32(b[4:], math.Float32bits(y))
}

func indexExtremes(indices []uint16) (uint16, uint16) {
	if len(indices) == 0 {
		return 0, 0
	}
	lo, hi := indices[0], indices[0]
	for _, i := range indices[1:] {
		if i < lo {
			lo = i
		}
		if i > hi {
			hi = i
		}
	}
	return lo, hi
}
