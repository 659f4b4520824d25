package scenedoc

import (
	"context"
	"image"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
)

// gridMesh builds a deterministic mesh with n vertices forming a triangle
// strip. seed perturbs positions so meshes with different seeds have
// different content hashes.
func gridMesh(n int, seed float32) *MeshInfo {
	m := &MeshInfo{}
	for i := 0; i < n; i++ {
		f := float32(i)
		m.Vertices = append(m.Vertices, Vertex{
			Position: mgl32.Vec3{f + seed, f * 0.5, seed},
			Normal:   mgl32.Vec3{0, 0, 1},
			TexCoord: mgl32.Vec2{f / float32(n), 0.5},
		})
	}
	for i := 0; i+2 < n; i++ {
		m.Indices = append(m.Indices, uint32(i), uint32(i+1), uint32(i+2))
	}
	return m
}

func quadMesh() *MeshInfo {
	return &MeshInfo{
		Vertices: []Vertex{
			{Position: mgl32.Vec3{0, 0, 0}, Normal: mgl32.Vec3{0, 0, 1}, TexCoord: mgl32.Vec2{0, 0}},
			{Position: mgl32.Vec3{1, 0, 0}, Normal: mgl32.Vec3{0, 0, 1}, TexCoord: mgl32.Vec2{1, 0}},
			{Position: mgl32.Vec3{1, 1, 0}, Normal: mgl32.Vec3{0, 0, 1}, TexCoord: mgl32.Vec2{1, 1}},
			{Position: mgl32.Vec3{0, 1, 0}, Normal: mgl32.Vec3{0, 0, 1}, TexCoord: mgl32.Vec2{0, 1}},
		},
		Indices: []uint32{0, 1, 2, 0, 2, 3},
	}
}

func grayMaterial() *MaterialInfo {
	return &MaterialInfo{
		Color:     mgl32.Vec4{0.5, 0.5, 0.5, 1},
		Shininess: 0.2,
	}
}

func instanceOf(mesh *MeshInfo, mat *MaterialInfo, pos mgl32.Vec3) *Instance {
	d := NewDisplayable("prim")
	d.Renderable = MeshGroup(&RenderableMesh{Mesh: mesh, Material: mat})
	return &Instance{Position: pos, Rotation: mgl32.QuatIdent(), Root: d}
}

type fakeMeshSource struct {
	meshes  map[string]*MeshInfo
	errs    map[string]error
	fetches int64
	delay   time.Duration
}

func newFakeMeshSource() *fakeMeshSource {
	return &fakeMeshSource{
		meshes: make(map[string]*MeshInfo),
		errs:   make(map[string]error),
	}
}

func (s *fakeMeshSource) FetchMesh(ctx context.Context, handle string) (*MeshInfo, error) {
	atomic.AddInt64(&s.fetches, 1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if err, ok := s.errs[handle]; ok {
		return nil, err
	}
	if m, ok := s.meshes[handle]; ok {
		return m, nil
	}
	return nil, errors.Errorf("no such mesh %s", handle)
}

func (s *fakeMeshSource) fetchCount() int64 {
	return atomic.LoadInt64(&s.fetches)
}

type fakeImageSource struct {
	width, height int
	fetches       int64
}

func (s *fakeImageSource) FetchImage(ctx context.Context, handle string) (image.Image, error) {
	atomic.AddInt64(&s.fetches, 1)
	img := image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	for i := range img.Pix {
		img.Pix[i] = uint8(i)
	}
	return img, nil
}
