package db

import (
	"errors"
	"fmt"
	"strconv"
)

// ScoreField is the alias FT.SEARCH reports the KNN distance under.
const ScoreField = "__vector_score"

// KNNQuery is a pure vector query against one index.
type KNNQuery struct {
	IndexName   string
	VectorField string
	Vector      []float32
	K           int
	// EFRuntime widens the HNSW candidate list for this query; 0 keeps the index default.
	EFRuntime    int
	ReturnFields []string
}

// SearchArgs renders the FT.SEARCH arguments (without the command name).
// The vector goes in as the $BLOB parameter, DIALECT 2 is required for it.
func (q *KNNQuery) SearchArgs() ([]string, error) {
	switch {
	case q.IndexName == "":
		return nil, errors.New("index name is required")
	case q.VectorField == "":
		return nil, errors.New("vector field is required")
	case len(q.Vector) == 0:
		return nil, errors.New("query vector is empty")
	case q.K <= 0:
		return nil, fmt.Errorf("k must be positive, got %d", q.K)
	}

	knn := "KNN " + strconv.Itoa(q.K) + " @" + q.VectorField + " $BLOB"
	if q.EFRuntime > 0 {
		knn += " EF_RUNTIME " + strconv.Itoa(q.EFRuntime)
	}
	args := []string{q.IndexName, "*=>[" + knn + " AS " + ScoreField + "]"}

	if len(q.ReturnFields) > 0 {
		args = append(args, "RETURN", strconv.Itoa(len(q.ReturnFields)+1))
		args = append(args, q.ReturnFields...)
		args = append(args, ScoreField)
	}
	return append(args,
		"PARAMS", "2", "BLOB", string(EncodeVector(q.Vector)),
		"LIMIT", "0", strconv.Itoa(q.K),
		"DIALECT", "2",
	), nil
}

// SearchResult is what a KNN query returned.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is one matching hash. Score is the similarity, 1 - distance,
// for both COSINE and IP.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
