package scenedoc

import (
	"encoding/json"
	"io"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
)

// DocumentSerializer renders the document graph into glTF 2.0 JSON. It is a
// pure tree walk over the resolved reference indices; ResolveIndices must
// have run after the last graph mutation.
type DocumentSerializer struct {
	doc *Document
}

func NewDocumentSerializer(doc *Document) *DocumentSerializer {
	return &DocumentSerializer{doc: doc}
}

type gltfRoot struct {
	Asset       gltfAsset        `json:"asset"`
	Scene       *int             `json:"scene,omitempty"`
	Scenes      []gltfScene      `json:"scenes,omitempty"`
	Nodes       []gltfNode       `json:"nodes,omitempty"`
	Meshes      []gltfMesh       `json:"meshes,omitempty"`
	Accessors   []gltfAccessor   `json:"accessors,omitempty"`
	BufferViews []gltfBufferView `json:"bufferViews,omitempty"`
	Buffers     []gltfBuffer     `json:"buffers,omitempty"`
	Materials   []gltfMaterial   `json:"materials,omitempty"`
	Textures    []gltfTexture    `json:"textures,omitempty"`
	Images      []gltfImage      `json:"images,omitempty"`
	Samplers    []gltfSampler    `json:"samplers,omitempty"`
}

type gltfAsset struct {
	Version   string `json:"version"`
	Generator string `json:"generator,omitempty"`
}

type gltfScene struct {
	Name  string `json:"name,omitempty"`
	Nodes []int  `json:"nodes,omitempty"`
}

type gltfNode struct {
	Name        string      `json:"name,omitempty"`
	Children    []int       `json:"children,omitempty"`
	Mesh        *int        `json:"mesh,omitempty"`
	Translation *[3]float32 `json:"translation,omitempty"`
	Rotation    *[4]float32 `json:"rotation,omitempty"`
	Scale       *[3]float32 `json:"scale,omitempty"`
}

type gltfMesh struct {
	Name       string          `json:"name,omitempty"`
	Primitives []gltfPrimitive `json:"primitives"`
}

type gltfPrimitive struct {
	Attributes map[string]int `json:"attributes"`
	Indices    *int           `json:"indices,omitempty"`
	Material   *int           `json:"material,omitempty"`
}

type gltfAccessor struct {
	BufferView    *int      `json:"bufferView,omitempty"`
	ByteOffset    int       `json:"byteOffset,omitempty"`
	ComponentType int       `json:"componentType"`
	Count         int       `json:"count"`
	Type          string    `json:"type"`
	Min           []float32 `json:"min,omitempty"`
	Max           []float32 `json:"max,omitempty"`
}

type gltfBufferView struct {
	Buffer     int `json:"buffer"`
	ByteOffset int `json:"byteOffset,omitempty"`
	ByteLength int `json:"byteLength"`
	ByteStride int `json:"byteStride,omitempty"`
	Target     int `json:"target,omitempty"`
}

type gltfBuffer struct {
	URI        string `json:"uri,omitempty"`
	ByteLength int    `json:"byteLength"`
}

type gltfMaterial struct {
	Name        string   `json:"name,omitempty"`
	PBR         *gltfPBR `json:"pbrMetallicRoughness,omitempty"`
	AlphaMode   string   `json:"alphaMode,omitempty"`
	DoubleSided bool     `json:"doubleSided,omitempty"`
}

type gltfPBR struct {
	BaseColorFactor  *[4]float32      `json:"baseColorFactor,omitempty"`
	BaseColorTexture *gltfTextureInfo `json:"baseColorTexture,omitempty"`
	MetallicFactor   *float32         `json:"metallicFactor,omitempty"`
	RoughnessFactor  *float32         `json:"roughnessFactor,omitempty"`
}

type gltfTextureInfo struct {
	Index int `json:"index"`
}

type gltfTexture struct {
	Sampler *int `json:"sampler,omitempty"`
	Source  *int `json:"source,omitempty"`
}

type gltfImage struct {
	Name string `json:"name,omitempty"`
	URI  string `json:"uri,omitempty"`
}

type gltfSampler struct {
	MagFilter int `json:"magFilter,omitempty"`
	MinFilter int `json:"minFilter,omitempty"`
	WrapS     int `json:"wrapS,omitempty"`
	WrapT     int `json:"wrapT,omitempty"`
}

// Encode writes the document as indented glTF JSON. Binary payloads are
// not written here; fetch them with Document.Buffers and store each under
// its URI next to the JSON.
func (s *DocumentSerializer) Encode(w io.Writer) error {
	root, err := s.root()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(root), "encode document")
}

func (s *DocumentSerializer) root() (*gltfRoot, error) {
	d := s.doc
	root := &gltfRoot{
		Asset: gltfAsset{Version: "2.0", Generator: "scenedoc"},
	}

	sceneNodes := make([]int, 0, len(d.Roots))
	for _, n := range d.Roots {
		sceneNodes = append(sceneNodes, n.index)
	}
	root.Scenes = []gltfScene{{Name: d.Name, Nodes: sceneNodes}}
	zero := 0
	root.Scene = &zero

	for _, n := range d.nodes.items {
		gn := gltfNode{Name: n.Name}
		if n.Mesh != nil {
			gn.Mesh = intPtr(n.Mesh.index)
		}
		for _, c := range n.Children {
			gn.Children = append(gn.Children, c.index)
		}
		if n.Translation != (mgl32.Vec3{}) {
			t := [3]float32(n.Translation)
			gn.Translation = &t
		}
		if !isIdentityQuat(n.Rotation) {
			r := [4]float32{n.Rotation.V.X(), n.Rotation.V.Y(), n.Rotation.V.Z(), n.Rotation.W}
			gn.Rotation = &r
		}
		if n.Scale != (mgl32.Vec3{1, 1, 1}) && n.Scale != (mgl32.Vec3{}) {
			sc := [3]float32(n.Scale)
			gn.Scale = &sc
		}
		root.Nodes = append(root.Nodes, gn)
	}

	for _, m := range d.meshes.items {
		gm := gltfMesh{Name: m.Name}
		for _, p := range m.Primitives {
			if p.Indices == nil || p.Position == nil {
				return nil, errors.Errorf("mesh %q has an unpacked primitive; run the buffer packer first", m.Name)
			}
			gp := gltfPrimitive{
				Attributes: map[string]int{
					"POSITION":   p.Position.index,
					"NORMAL":     p.Normal.index,
					"TEXCOORD_0": p.TexCoord.index,
				},
				Indices: intPtr(p.Indices.index),
			}
			if p.Material != nil {
				gp.Material = intPtr(p.Material.index)
			}
			gm.Primitives = append(gm.Primitives, gp)
		}
		root.Meshes = append(root.Meshes, gm)
	}

	for _, a := range d.accessors.items {
		ga := gltfAccessor{
			ByteOffset:    a.ByteOffset,
			ComponentType: a.ComponentType,
			Count:         a.Count,
			Type:          a.Type,
			Min:           a.Min,
			Max:           a.Max,
		}
		if a.BufferView != nil {
			ga.BufferView = intPtr(a.BufferView.index)
		}
		root.Accessors = append(root.Accessors, ga)
	}

	for _, v := range d.bufferViews.items {
		root.BufferViews = append(root.BufferViews, gltfBufferView{
			Buffer:     v.Buffer.index,
			ByteOffset: v.ByteOffset,
			ByteLength: v.ByteLength,
			ByteStride: v.ByteStride,
			Target:     v.Target,
		})
	}

	for _, b := range d.buffers.items {
		root.Buffers = append(root.Buffers, gltfBuffer{URI: b.URI, ByteLength: b.ByteLength})
	}

	for _, m := range d.materials.items {
		color := [4]float32(m.BaseColor)
		metallic := m.Metallic
		roughness := m.Roughness
		pbr := &gltfPBR{
			BaseColorFactor: &color,
			MetallicFactor:  &metallic,
			RoughnessFactor: &roughness,
		}
		if m.Texture != nil {
			pbr.BaseColorTexture = &gltfTextureInfo{Index: m.Texture.index}
		}
		root.Materials = append(root.Materials, gltfMaterial{
			Name:        m.Name,
			PBR:         pbr,
			AlphaMode:   m.AlphaMode,
			DoubleSided: m.DoubleSided,
		})
	}

	for _, t := range d.textures.items {
		gt := gltfTexture{Source: intPtr(t.Image.index)}
		if t.Sampler != nil {
			gt.Sampler = intPtr(t.Sampler.index)
		}
		root.Textures = append(root.Textures, gt)
	}

	for _, img := range d.images.items {
		root.Images = append(root.Images, gltfImage{Name: img.Name, URI: img.URI})
	}

	for _, smp := range d.samplers.items {
		root.Samplers = append(root.Samplers, gltfSampler{
			MagFilter: smp.MagFilter,
			MinFilter: smp.MinFilter,
			WrapS:     smp.WrapS,
			WrapT:     smp.WrapT,
		})
	}

	return root, nil
}

func intPtr(v int) *int { return &v }

func isIdentityQuat(q mgl32.Quat) bool {
	return q.W == 1 && q.V == (mgl32.Vec3{}) || q == (mgl32.Quat{})
}
