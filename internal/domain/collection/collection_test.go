package collection

import (
	"strings"
	"testing"
	"time"
)

func TestNew_Valid(t *testing.T) {
	before := time.Now().UnixMilli()

	col, err := New("products", 1, 768, MetricCosine)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	after := time.Now().UnixMilli()

	if col.Name() != "products" {
		t.Errorf("Name() = %q, want %q", col.Name(), "products")
	}
	if col.Dimension() != 768 {
		t.Errorf("Dimension() = %d, want 768", col.Dimension())
	}
	if col.Metric() != MetricCosine {
		t.Errorf("Metric() = %q, want cosine", col.Metric())
	}
	if col.CreatedAt() < before || col.CreatedAt() > after {
		t.Errorf("CreatedAt() = %d, want between %d and %d", col.CreatedAt(), before, after)
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		colName string
		version int
		dim     int
		metric  Metric
		wantMsg string
	}{
		{"empty name", "", 1, 768, MetricCosine, "required"},
		{"long name", strings.Repeat("a", 65), 1, 768, MetricCosine, "too long"},
		{"bad chars", "prod ucts", 1, 768, MetricCosine, "alphanumeric"},
		{"zero version", "products", 0, 768, MetricCosine, "version"},
		{"zero dim", "products", 1, 0, MetricCosine, "dimension"},
		{"bad metric", "products", 1, 768, Metric("l2"), "metric"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.colName, tc.version, tc.dim, tc.metric)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Errorf("error %q does not mention %q", err.Error(), tc.wantMsg)
			}
		})
	}
}

func TestPhysicalName(t *testing.T) {
	col, err := New("products", 3, 768, MetricDot)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := col.PhysicalName(); got != "products_v3" {
		t.Errorf("PhysicalName() = %q, want products_v3", got)
	}
}

func TestParseMetric(t *testing.T) {
	tests := []struct {
		in   string
		want Metric
	}{
		{"", MetricCosine},
		{"cosine", MetricCosine},
		{"COSINE", MetricCosine},
		{"dot", MetricDot},
		{"dot_product", MetricDot},
		{"ip", MetricDot},
	}
	for _, tc := range tests {
		got, err := ParseMetric(tc.in)
		if err != nil {
			t.Errorf("ParseMetric(%q): unexpected error %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseMetric(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}

	if _, err := ParseMetric("euclid"); err == nil {
		t.Error("expected error for unknown metric")
	}
}

func TestRestore(t *testing.T) {
	col := Restore("products", 2, 512, MetricDot, 1700000000000)
	if col.Version() != 2 || col.Dimension() != 512 || col.Metric() != MetricDot {
		t.Errorf("unexpected restored collection: %+v", col)
	}
	if col.CreatedAt() != 1700000000000 {
		t.Errorf("CreatedAt() = %d", col.CreatedAt())
	}
}
