package scenedoc

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func optimizerFor(opts Options) *SceneOptimizer {
	return NewSceneOptimizer(opts, NewNopLogger(), &Stats{})
}

func TestOptimizePassthroughWhenDisabled(t *testing.T) {
	opts := DefaultOptions()
	opts.SeparateInstancedMeshes = false
	opts.MergeSharedMaterialMeshes = false

	in := []*Instance{instanceOf(quadMesh(), grayMaterial(), mgl32.Vec3{})}
	out := optimizerFor(opts).Optimize(in)
	if len(out) != 1 || out[0] != in[0] {
		t.Fatal("with both toggles off the input must pass through untouched")
	}
}

// Two instances of content-identical meshes at different positions with a
// zero share threshold: both must come out as separate single-mesh
// instances that keep their placements.
func TestSeparateSharedMeshes(t *testing.T) {
	opts := DefaultOptions()
	opts.MeshShareThreshold = 0
	mat := grayMaterial()
	in := []*Instance{
		instanceOf(quadMesh(), mat, mgl32.Vec3{0, 0, 0}),
		instanceOf(quadMesh(), mat, mgl32.Vec3{5, 0, 0}),
	}

	out := optimizerFor(opts).Optimize(in)
	if len(out) != 2 {
		t.Fatalf("expected 2 instances, got %d", len(out))
	}
	if out[0].Position != in[0].Position || out[1].Position != in[1].Position {
		t.Error("separated instances must keep their original placements")
	}
	for i, inst := range out {
		r := inst.Root.Renderable
		if r == nil || len(r.Meshes) != 1 {
			t.Fatalf("instance %d must wrap exactly one mesh", i)
		}
	}
}

// Ten 100-vertex meshes sharing a material, threshold high enough to
// disable sharing, ceiling 500: greedy accumulation gives exactly two
// merged instances of five meshes each.
func TestMergeBinsByVertexCeiling(t *testing.T) {
	opts := DefaultOptions()
	opts.MeshShareThreshold = 20
	opts.VerticesMaxForBuffer = 500
	mat := grayMaterial()

	var in []*Instance
	for i := 0; i < 10; i++ {
		in = append(in, instanceOf(gridMesh(100, float32(i)), mat, mgl32.Vec3{float32(i), 0, 0}))
	}

	out := optimizerFor(opts).Optimize(in)
	if len(out) != 2 {
		t.Fatalf("expected 2 merged instances, got %d", len(out))
	}
	for i, inst := range out {
		mesh := inst.Root.Renderable.Meshes[0].Mesh
		if len(mesh.Vertices) != 500 {
			t.Errorf("merged instance %d: expected 500 vertices, got %d", i, len(mesh.Vertices))
		}
		if err := mesh.Validate(); err != nil {
			t.Errorf("merged instance %d: %v", i, err)
		}
	}
}

func TestMergePreservesWorldPositions(t *testing.T) {
	opts := DefaultOptions()
	opts.MeshShareThreshold = 20
	mat := grayMaterial()
	a := instanceOf(gridMesh(10, 0), mat, mgl32.Vec3{0, 0, 0})
	b := instanceOf(gridMesh(10, 1), mat, mgl32.Vec3{5, 0, 0})

	out := optimizerFor(opts).Optimize([]*Instance{a, b})
	if len(out) != 1 {
		t.Fatalf("expected 1 merged instance, got %d", len(out))
	}
	merged := out[0]
	mesh := merged.Root.Renderable.Meshes[0].Mesh
	if len(mesh.Vertices) != 20 {
		t.Fatalf("expected 20 merged vertices, got %d", len(mesh.Vertices))
	}

	worldOf := func(inst *Instance, v Vertex) mgl32.Vec3 {
		return inst.Position.Add(inst.Rotation.Rotate(v.Position))
	}
	originals := make([]mgl32.Vec3, 0, 20)
	for _, v := range a.Root.Renderable.Meshes[0].Mesh.Vertices {
		originals = append(originals, worldOf(a, v))
	}
	for _, v := range b.Root.Renderable.Meshes[0].Mesh.Vertices {
		originals = append(originals, worldOf(b, v))
	}

	// Merged instance carries identity rotation, so world = position + v.
	for i, v := range mesh.Vertices {
		got := merged.Position.Add(v.Position)
		want := originals[i]
		if !got.ApproxEqualThreshold(want, 1e-4) {
			t.Fatalf("vertex %d: world position %v, want %v", i, got, want)
		}
	}
}

func TestMergeSingleMemberDegenerate(t *testing.T) {
	opts := DefaultOptions()
	opts.MeshShareThreshold = 20
	in := []*Instance{instanceOf(quadMesh(), grayMaterial(), mgl32.Vec3{3, 2, 1})}

	out := optimizerFor(opts).Optimize(in)
	if len(out) != 1 {
		t.Fatalf("expected 1 instance, got %d", len(out))
	}
	mesh := out[0].Root.Renderable.Meshes[0].Mesh
	if len(mesh.Vertices) != 4 || len(mesh.Indices) != 6 {
		t.Error("degenerate single-member merge must keep the geometry intact")
	}
	if out[0].Position != (mgl32.Vec3{3, 2, 1}) {
		t.Errorf("anchor world position lost: %v", out[0].Position)
	}
}

func TestMergeRespectsLocalOffsets(t *testing.T) {
	opts := DefaultOptions()
	opts.MeshShareThreshold = 20
	mat := grayMaterial()

	a := instanceOf(gridMesh(6, 0), mat, mgl32.Vec3{1, 0, 0})
	b := instanceOf(gridMesh(6, 2), mat, mgl32.Vec3{0, 0, 0})
	b.Root.Offset.Position = mgl32.Vec3{0, 7, 0}

	out := optimizerFor(opts).Optimize([]*Instance{a, b})
	if len(out) != 1 {
		t.Fatalf("expected 1 merged instance, got %d", len(out))
	}
	mesh := out[0].Root.Renderable.Meshes[0].Mesh

	srcB := b.Root.Renderable.Meshes[0].Mesh
	for i, v := range srcB.Vertices {
		got := out[0].Position.Add(mesh.Vertices[6+i].Position)
		want := b.Position.Add(b.Root.Offset.Position).Add(v.Position)
		if !got.ApproxEqualThreshold(want, 1e-4) {
			t.Fatalf("offset vertex %d: got %v, want %v", i, got, want)
		}
	}
}

func TestSeparatedMeshesLeaveMaterialIndex(t *testing.T) {
	opts := DefaultOptions()
	opts.MeshShareThreshold = 1
	mat := grayMaterial()

	// Three copies of one mesh (shared) plus one odd mesh on the same
	// material (merged alone).
	in := []*Instance{
		instanceOf(quadMesh(), mat, mgl32.Vec3{0, 0, 0}),
		instanceOf(quadMesh(), mat, mgl32.Vec3{1, 0, 0}),
		instanceOf(quadMesh(), mat, mgl32.Vec3{2, 0, 0}),
		instanceOf(gridMesh(8, 3), mat, mgl32.Vec3{3, 0, 0}),
	}

	stats := &Stats{}
	out := NewSceneOptimizer(opts, NewNopLogger(), stats).Optimize(in)
	if len(out) != 4 {
		t.Fatalf("expected 3 separated + 1 merged = 4 instances, got %d", len(out))
	}
	if stats.InstancesSeparated != 3 {
		t.Errorf("expected 3 separated instances, got %d", stats.InstancesSeparated)
	}
	if stats.MeshesMerged != 1 {
		t.Errorf("expected 1 merged mesh, got %d", stats.MeshesMerged)
	}
}
