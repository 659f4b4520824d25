package scenedoc

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func convertScene(t *testing.T, opts Options, instances []*Instance) *Document {
	t.Helper()
	conv := NewConverter(opts, nil, nil, NewNopLogger())
	doc, err := conv.Convert(context.Background(), instances)
	require.NoError(t, err)
	return doc
}

func decodeJSON(t *testing.T, doc *Document) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, NewDocumentSerializer(doc).Encode(&buf))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	return decoded
}

func TestSerializeReferencesInBounds(t *testing.T) {
	mat := grayMaterial()
	mat.Image = &ImageInfo{Handle: "tex", Width: 32, Height: 32}
	in := []*Instance{
		instanceOf(quadMesh(), mat, mgl32.Vec3{0, 0, 0}),
		instanceOf(gridMesh(16, 2), grayMaterial(), mgl32.Vec3{8, 0, 0}),
	}
	doc := convertScene(t, DefaultOptions(), in)
	decoded := decodeJSON(t, doc)

	nodes := decoded["nodes"].([]any)
	meshes := decoded["meshes"].([]any)
	accessors := decoded["accessors"].([]any)
	views := decoded["bufferViews"].([]any)
	buffers := decoded["buffers"].([]any)
	materials := decoded["materials"].([]any)

	scene := decoded["scenes"].([]any)[0].(map[string]any)
	for _, ref := range scene["nodes"].([]any) {
		assert.Less(t, int(ref.(float64)), len(nodes))
	}

	for _, raw := range nodes {
		node := raw.(map[string]any)
		if ref, ok := node["mesh"]; ok {
			assert.Less(t, int(ref.(float64)), len(meshes))
		}
	}

	for _, raw := range meshes {
		mesh := raw.(map[string]any)
		for _, rawPrim := range mesh["primitives"].([]any) {
			prim := rawPrim.(map[string]any)
			assert.Less(t, int(prim["indices"].(float64)), len(accessors))
			assert.Less(t, int(prim["material"].(float64)), len(materials))
			for _, ref := range prim["attributes"].(map[string]any) {
				assert.Less(t, int(ref.(float64)), len(accessors))
			}
		}
	}

	for _, raw := range accessors {
		acc := raw.(map[string]any)
		assert.Less(t, int(acc["bufferView"].(float64)), len(views))
	}
	for _, raw := range views {
		view := raw.(map[string]any)
		assert.Less(t, int(view["buffer"].(float64)), len(buffers))
	}
}

func TestSerializeBufferRecords(t *testing.T) {
	doc := convertScene(t, DefaultOptions(), []*Instance{
		instanceOf(quadMesh(), grayMaterial(), mgl32.Vec3{}),
	})
	decoded := decodeJSON(t, doc)

	buffers := decoded["buffers"].([]any)
	require.Len(t, buffers, 1)
	record := buffers[0].(map[string]any)

	payloads := doc.Buffers()
	require.Len(t, payloads, 1)
	assert.Equal(t, payloads[0].URI, record["uri"])
	assert.EqualValues(t, len(payloads[0].Data), record["byteLength"])
}

func TestSerializeNodeTransforms(t *testing.T) {
	d := NewDisplayable("placed")
	d.Renderable = MeshGroup(&RenderableMesh{Mesh: quadMesh(), Material: grayMaterial()})
	rot := mgl32.QuatRotate(1.2, mgl32.Vec3{0, 1, 0})
	in := []*Instance{{Position: mgl32.Vec3{1, 2, 3}, Rotation: rot, Root: d}}

	opts := DefaultOptions()
	opts.SeparateInstancedMeshes = false
	opts.MergeSharedMaterialMeshes = false
	doc := convertScene(t, opts, in)
	decoded := decodeJSON(t, doc)

	node := decoded["nodes"].([]any)[0].(map[string]any)
	translation := node["translation"].([]any)
	assert.InDelta(t, 1.0, translation[0].(float64), 1e-6)
	assert.InDelta(t, 2.0, translation[1].(float64), 1e-6)
	assert.InDelta(t, 3.0, translation[2].(float64), 1e-6)
	require.Contains(t, node, "rotation")
}

func TestSerializeRequiresPackedPrimitives(t *testing.T) {
	doc := NewDocument("t")
	mesh := quadMesh()
	prim := &Primitive{Source: mesh}
	doc.primitives.insert(mesh.Hash(), prim)
	doc.meshes.insert(1, &Mesh{Name: "m", Primitives: []*Primitive{prim}})

	var buf bytes.Buffer
	err := NewDocumentSerializer(doc).Encode(&buf)
	require.Error(t, err)
}

func TestSerializeAssetHeader(t *testing.T) {
	doc := convertScene(t, DefaultOptions(), []*Instance{
		instanceOf(quadMesh(), grayMaterial(), mgl32.Vec3{}),
	})
	decoded := decodeJSON(t, doc)
	asset := decoded["asset"].(map[string]any)
	assert.Equal(t, "2.0", asset["version"])
}
