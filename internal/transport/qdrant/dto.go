package qdrant

import "encoding/json"

// envelope is the common Qdrant response wrapper. Status is "ok" or {"error": "..."}.
type envelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
}

func (e envelope) errorText() string {
	var s struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(e.Status, &s) == nil && s.Error != "" {
		return s.Error
	}
	var plain string
	if json.Unmarshal(e.Status, &plain) == nil {
		return plain
	}
	return ""
}

type vectorParams struct {
	Size     int    `json:"size"`
	Distance string `json:"distance"`
}

type hnswConfig struct {
	M           int `json:"m,omitempty"`
	EfConstruct int `json:"ef_construct,omitempty"`
}

type createCollectionRequest struct {
	Vectors    vectorParams `json:"vectors"`
	HNSWConfig *hnswConfig  `json:"hnsw_config,omitempty"`
}

type collectionInfo struct {
	Config struct {
		Params struct {
			Vectors vectorParams `json:"vectors"`
		} `json:"params"`
	} `json:"config"`
}

type point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

type upsertRequest struct {
	Points []point `json:"points"`
}

type searchRequest struct {
	Vector      []float32     `json:"vector"`
	Limit       int           `json:"limit"`
	WithPayload bool          `json:"with_payload"`
	Params      *searchParams `json:"params,omitempty"`
}

type searchParams struct {
	HNSWEf int `json:"hnsw_ef"`
}

type scoredPoint struct {
	ID      string         `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

type retrievedPoint struct {
	ID      string         `json:"id"`
	Payload map[string]any `json:"payload"`
}

type deleteRequest struct {
	Points []string `json:"points"`
}
