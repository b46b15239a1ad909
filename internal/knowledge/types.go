package knowledge

import "time"

// Chunk is one stored knowledge fragment. Chunks live in disjoint
// partitions, one per responder agent; a search never crosses
// partitions.
type Chunk struct {
	ID        string
	Content   string
	Source    string // human-readable source label (e.g. a filename)
	Partition string // owning agent's partition tag
	CreatedAt time.Time
}

// Result is a Chunk with its similarity to a search query.
type Result struct {
	Chunk      Chunk
	Similarity float32 // cosine similarity in [0,1]
}
