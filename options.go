package scenedoc

// Options is the flat configuration surface consumed by the converter.
// It is passed explicitly into each component at construction; nothing in
// the package reads configuration from globals.
type Options struct {
	// DocName names the output document; buffer URIs derive from it.
	DocName string

	// MergeSharedMaterialMeshes merges low-repetition meshes that share a
	// material into combined meshes to minimize draw calls.
	MergeSharedMaterialMeshes bool

	// SeparateInstancedMeshes keeps per-instance copies of meshes whose
	// content repeats often enough to benefit from GPU instancing.
	SeparateInstancedMeshes bool

	// MeshShareThreshold is the member count a mesh-content group must
	// exceed to be treated as shared rather than merged.
	MeshShareThreshold int

	// VerticesMaxForBuffer bounds both the vertex count accumulated into
	// one merged mesh and the vertex count packed into one buffer group.
	// It must stay at or below 65536 to keep indices in uint16 range.
	VerticesMaxForBuffer int

	// DisplayTimeScaling bakes non-unit node scale into the geometry at
	// build time instead of leaving scale to the consumer.
	DisplayTimeScaling bool

	// TextureMaxSize is the downscale ceiling for decoded texture images.
	// 0 or anything at or above 10000 disables the limit.
	TextureMaxSize int
}

const textureSizeUnlimited = 10000

func DefaultOptions() Options {
	return Options{
		DocName:                   "scene",
		MergeSharedMaterialMeshes: true,
		SeparateInstancedMeshes:   true,
		MeshShareThreshold:        4,
		VerticesMaxForBuffer:      16384,
		DisplayTimeScaling:        false,
		TextureMaxSize:            1024,
	}
}
