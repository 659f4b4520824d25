package scenedoc

import "fmt"

// Stats accumulates running counters for one conversion. A single *Stats is
// handed to every component; there is no ambient global state.
type Stats struct {
	NodesCreated       int
	NodesReused        int
	MeshesCreated      int
	MeshesReused       int
	PrimitivesCreated  int
	PrimitivesReused   int
	MaterialsCreated   int
	MaterialsReused    int
	ImagesCreated      int
	InstancesSeparated int
	MeshesMerged       int
	MeshFetches        int
	ImageFetches       int
	BuffersPacked      int
	BytesPacked        int
}

func (s *Stats) String() string {
	return fmt.Sprintf(
		"nodes %d (+%d reused), meshes %d (+%d), primitives %d (+%d), materials %d (+%d), images %d, separated %d, merged %d, buffers %d (%d bytes)",
		s.NodesCreated, s.NodesReused,
		s.MeshesCreated, s.MeshesReused,
		s.PrimitivesCreated, s.PrimitivesReused,
		s.MaterialsCreated, s.MaterialsReused,
		s.ImagesCreated,
		s.InstancesSeparated, s.MeshesMerged,
		s.BuffersPacked, s.BytesPacked,
	)
}
