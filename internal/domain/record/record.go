package record

import (
	"fmt"
	"math"
	"sort"
)

// Payload keys denormalized into every record.
const (
	PayloadSlug        = "slug"
	PayloadName        = "name"
	PayloadAIGenerated = "ai_generated"
)

// Record is one vector index entry, keyed by the owning product id.
type Record struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// New validates and creates a Record.
func New(id string, vector []float32, payload map[string]any) (Record, error) {
	if id == "" {
		return Record{}, fmt.Errorf("record id is required")
	}
	if len(id) > 256 {
		return Record{}, fmt.Errorf("record id too long (max 256)")
	}
	if len(vector) == 0 {
		return Record{}, fmt.Errorf("record vector is required")
	}
	for i, v := range vector {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return Record{}, fmt.Errorf("record vector has non-finite value at %d", i)
		}
	}
	if payload == nil {
		payload = map[string]any{}
	}
	return Record{ID: id, Vector: vector, Payload: payload}, nil
}

// Hit is one ranked search result.
type Hit struct {
	ID      string
	Score   float64
	Payload map[string]any
}

// Ranked pairs a hit with the sequence number of the id's first insertion.
type Ranked struct {
	Hit
	Seq int64
}

// Rank orders by descending score, breaking ties by ascending Seq, and keeps at most topK.
func Rank(items []Ranked, topK int) []Hit {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].Seq < items[j].Seq
	})
	if topK < len(items) {
		items = items[:topK]
	}
	hits := make([]Hit, len(items))
	for i := range items {
		hits[i] = items[i].Hit
	}
	return hits
}
