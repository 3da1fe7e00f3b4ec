package db

import (
	"errors"
	"fmt"
	"strconv"
)

// DistanceMetric is the DISTANCE_METRIC of a VECTOR field.
type DistanceMetric string

const (
	// DistanceIP is inner product distance (1 - dot).
	DistanceIP DistanceMetric = "IP"
	// DistanceCosine is cosine distance (1 - cos).
	DistanceCosine DistanceMetric = "COSINE"
)

// FieldKind enumerates the schema field types catalog record indexes use.
type FieldKind int

const (
	FieldTag FieldKind = iota
	FieldNumeric
	FieldVector
)

// HNSW holds the graph parameters of a VECTOR field. Zero values keep server defaults.
type HNSW struct {
	M           int
	EFConstruct int
}

// IndexField is one SCHEMA entry.
type IndexField struct {
	Name     string
	Kind     FieldKind
	Dim      int
	Distance DistanceMetric
	Graph    HNSW
}

// IndexDefinition describes an FT index over record hashes.
type IndexDefinition struct {
	Name   string
	Prefix string
	Fields []IndexField
}

// Schema starts an index definition whose hashes live under prefix.
func Schema(name, prefix string) *IndexDefinition {
	return &IndexDefinition{Name: name, Prefix: prefix}
}

// Tag adds a TAG field.
func (d *IndexDefinition) Tag(name string) *IndexDefinition {
	d.Fields = append(d.Fields, IndexField{Name: name, Kind: FieldTag})
	return d
}

// Numeric adds a NUMERIC field.
func (d *IndexDefinition) Numeric(name string) *IndexDefinition {
	d.Fields = append(d.Fields, IndexField{Name: name, Kind: FieldNumeric})
	return d
}

// Vector adds a FLOAT32 HNSW vector field.
func (d *IndexDefinition) Vector(name string, dim int, distance DistanceMetric, graph HNSW) *IndexDefinition {
	d.Fields = append(d.Fields, IndexField{Name: name, Kind: FieldVector, Dim: dim, Distance: distance, Graph: graph})
	return d
}

// Validate checks the definition before it reaches the server.
func (d *IndexDefinition) Validate() error {
	if !validIdentifier(d.Name) {
		return fmt.Errorf("index name %q must match [a-zA-Z0-9_:-]+", d.Name)
	}
	if len(d.Fields) == 0 {
		return errors.New("index has no fields")
	}

	seen := make(map[string]struct{}, len(d.Fields))
	vectors := 0
	for _, f := range d.Fields {
		if f.Name == "" {
			return errors.New("field name is required")
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("duplicate field %q", f.Name)
		}
		seen[f.Name] = struct{}{}

		if f.Kind == FieldVector {
			vectors++
			if f.Dim <= 0 {
				return fmt.Errorf("vector field %q needs a positive dimension", f.Name)
			}
		}
	}
	if vectors > 1 {
		return errors.New("at most one vector field per index")
	}
	return nil
}

// CreateArgs renders the FT.CREATE arguments (without the command name).
func (d *IndexDefinition) CreateArgs() ([]string, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	args := []string{d.Name, "ON", "HASH"}
	if d.Prefix != "" {
		args = append(args, "PREFIX", "1", d.Prefix)
	}
	args = append(args, "SCHEMA")

	for _, f := range d.Fields {
		switch f.Kind {
		case FieldTag:
			args = append(args, f.Name, "TAG")
		case FieldNumeric:
			args = append(args, f.Name, "NUMERIC")
		case FieldVector:
			args = append(args, vectorArgs(f)...)
		default:
			return nil, fmt.Errorf("field %q: unknown kind %d", f.Name, f.Kind)
		}
	}
	return args, nil
}

func vectorArgs(f IndexField) []string {
	distance := f.Distance
	if distance == "" {
		distance = DistanceCosine
	}
	attrs := []string{
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(f.Dim),
		"DISTANCE_METRIC", string(distance),
	}
	if f.Graph.M > 0 {
		attrs = append(attrs, "M", strconv.Itoa(f.Graph.M))
	}
	if f.Graph.EFConstruct > 0 {
		attrs = append(attrs, "EF_CONSTRUCTION", strconv.Itoa(f.Graph.EFConstruct))
	}
	out := []string{f.Name, "VECTOR", "HNSW", strconv.Itoa(len(attrs))}
	return append(out, attrs...)
}

func validIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_', r == ':', r == '-':
		default:
			return false
		}
	}
	return true
}
