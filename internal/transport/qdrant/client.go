// Package qdrant implements domain.VectorIndex over the Qdrant REST API.
//
// Qdrant point ids must be unsigned integers or UUIDs, so product ids are
// mapped to deterministic UUIDv5 values. The original id and the first
// insertion sequence travel in the point payload.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kailas-cloud/catalogix/internal/domain"
	"github.com/kailas-cloud/catalogix/internal/domain/collection"
	"github.com/kailas-cloud/catalogix/internal/domain/record"
	"github.com/kailas-cloud/catalogix/internal/metrics"
)

// Compile-time check: Client implements domain.VectorIndex.
var _ domain.VectorIndex = (*Client)(nil)

const (
	backend = "qdrant"

	payloadID  = "_id"
	payloadSeq = "_seq"
)

// pointNamespace scopes the UUIDv5 point ids.
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://catalogix/qdrant/points"))

// Config holds the Qdrant connection settings.
type Config struct {
	URL            string
	APIKey         string
	Version        int
	Timeout        time.Duration
	HNSWM          int
	EfConstruction int
	// EfSearch is the hnsw_ef search parameter; 0 leaves the collection default.
	EfSearch   int
	HTTPClient *http.Client
}

// Client talks to one Qdrant deployment.
type Client struct {
	baseURL string
	apiKey  string
	version int
	timeout time.Duration
	hnsw    *hnswConfig
	ef      int
	http    *http.Client

	mu      sync.Mutex
	known   map[string]collection.Collection
	lastSeq int64
}

// New creates a Qdrant client.
func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	version := cfg.Version
	if version < 1 {
		version = 1
	}
	c := &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		version: version,
		timeout: cfg.Timeout,
		ef:      cfg.EfSearch,
		http:    httpClient,
		known:   make(map[string]collection.Collection),
	}
	if cfg.HNSWM > 0 || cfg.EfConstruction > 0 {
		c.hnsw = &hnswConfig{M: cfg.HNSWM, EfConstruct: cfg.EfConstruction}
	}
	return c
}

// PointID returns the Qdrant point id for a product id.
func PointID(id string) string {
	return uuid.NewSHA1(pointNamespace, []byte(id)).String()
}

// Ping checks that the server is ready.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	status, _, err := c.do(ctx, http.MethodGet, "/readyz", nil)
	if err != nil {
		return err
	}
	if status >= 300 {
		return fmt.Errorf("qdrant readyz: status %d: %w", status, domain.ErrIndexUnavailable)
	}
	return nil
}

// EnsureCollection creates the collection if absent and validates an existing one.
func (c *Client) EnsureCollection(ctx context.Context, name string, dim int, metric collection.Metric) (err error) {
	defer observe("ensure_collection", time.Now(), &err)
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	col, err := collection.New(name, c.version, dim, metric)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}

	stored, err := c.fetchCollection(ctx, col.PhysicalName())
	switch {
	case err == nil:
		if err := compatible(stored, dim, metric); err != nil {
			return err
		}
		c.remember(stored)
		return nil
	case !errors.Is(err, domain.ErrCollectionNotFound):
		return err
	}

	body := createCollectionRequest{
		Vectors:    vectorParams{Size: dim, Distance: distanceName(metric)},
		HNSWConfig: c.hnsw,
	}
	status, env, err := c.do(ctx, http.MethodPut, collectionPath(col.PhysicalName()), body)
	if err != nil {
		return err
	}
	switch {
	case status < 300:
		c.remember(col)
		return nil
	case status == http.StatusConflict || (status == http.StatusBadRequest && strings.Contains(env.errorText(), "already exists")):
		// создана параллельно, сверяем параметры
		stored, err := c.fetchCollection(ctx, col.PhysicalName())
		if err != nil {
			return err
		}
		if err := compatible(stored, dim, metric); err != nil {
			return err
		}
		c.remember(stored)
		return nil
	default:
		return statusErr("create collection", status, env)
	}
}

// Upsert writes the point in one call with wait=true.
func (c *Client) Upsert(ctx context.Context, name string, rec record.Record) (err error) {
	defer observe("upsert", time.Now(), &err)
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	col, err := c.collection(ctx, name)
	if err != nil {
		return err
	}
	if len(rec.Vector) != col.Dimension() {
		return domain.NewDimensionMismatch(col.Dimension(), len(rec.Vector))
	}

	pointID := PointID(rec.ID)
	seq, err := c.existingSeq(ctx, col.PhysicalName(), pointID)
	if err != nil {
		return err
	}
	if seq == 0 {
		seq = c.nextSeq()
	}

	payload := make(map[string]any, len(rec.Payload)+2)
	for k, v := range rec.Payload {
		payload[k] = v
	}
	payload[payloadID] = rec.ID
	payload[payloadSeq] = seq

	body := upsertRequest{Points: []point{{ID: pointID, Vector: rec.Vector, Payload: payload}}}
	status, env, err := c.do(ctx, http.MethodPut, collectionPath(col.PhysicalName())+"/points?wait=true", body)
	if err != nil {
		return err
	}
	if status >= 300 {
		return c.mapStatus(col, "upsert", status, env)
	}
	return nil
}

// Search returns at most topK hits, re-ranked so equal scores keep first-insertion order.
func (c *Client) Search(ctx context.Context, name string, vector []float32, topK int) (hits []record.Hit, err error) {
	defer observe("search", time.Now(), &err)
	if topK <= 0 {
		return nil, fmt.Errorf("top_k must be positive, got %d: %w", topK, domain.ErrInvalidArgument)
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	col, err := c.collection(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(vector) != col.Dimension() {
		return nil, domain.NewDimensionMismatch(col.Dimension(), len(vector))
	}

	body := searchRequest{Vector: vector, Limit: topK + max(topK/2, 10), WithPayload: true}
	if c.ef > 0 {
		body.Params = &searchParams{HNSWEf: c.ef}
	}
	status, env, err := c.do(ctx, http.MethodPost, collectionPath(col.PhysicalName())+"/points/search", body)
	if err != nil {
		return nil, err
	}
	if status >= 300 {
		return nil, c.mapStatus(col, "search", status, env)
	}

	var points []scoredPoint
	if err := json.Unmarshal(env.Result, &points); err != nil {
		return nil, unavailable("decode search", err)
	}

	ranked := make([]record.Ranked, 0, len(points))
	for _, p := range points {
		id, seq, payload := splitPayload(p.Payload)
		if id == "" {
			continue
		}
		ranked = append(ranked, record.Ranked{
			Hit: record.Hit{ID: id, Score: p.Score, Payload: payload},
			Seq: seq,
		})
	}
	return record.Rank(ranked, topK), nil
}

// Delete removes the point. A missing point is not an error.
func (c *Client) Delete(ctx context.Context, name, id string) (err error) {
	defer observe("delete", time.Now(), &err)
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	col, err := c.collection(ctx, name)
	if err != nil {
		return err
	}

	body := deleteRequest{Points: []string{PointID(id)}}
	status, env, err := c.do(ctx, http.MethodPost, collectionPath(col.PhysicalName())+"/points/delete?wait=true", body)
	if err != nil {
		return err
	}
	if status >= 300 {
		return c.mapStatus(col, "delete", status, env)
	}
	return nil
}

func (c *Client) collection(ctx context.Context, name string) (collection.Collection, error) {
	physical := fmt.Sprintf("%s_v%d", name, c.version)

	c.mu.Lock()
	col, ok := c.known[physical]
	c.mu.Unlock()
	if ok {
		return col, nil
	}

	col, err := c.fetchCollection(ctx, physical)
	if err != nil {
		return collection.Collection{}, err
	}
	c.remember(col)
	return col, nil
}

func (c *Client) fetchCollection(ctx context.Context, physical string) (collection.Collection, error) {
	status, env, err := c.do(ctx, http.MethodGet, collectionPath(physical), nil)
	if err != nil {
		return collection.Collection{}, err
	}
	if status == http.StatusNotFound {
		return collection.Collection{}, fmt.Errorf("collection %s: %w", physical, domain.ErrCollectionNotFound)
	}
	if status >= 300 {
		return collection.Collection{}, statusErr("get collection", status, env)
	}

	var info collectionInfo
	if err := json.Unmarshal(env.Result, &info); err != nil {
		return collection.Collection{}, unavailable("decode collection", err)
	}
	params := info.Config.Params.Vectors
	name, version := splitPhysical(physical)
	return collection.Restore(name, version, params.Size, metricFromDistance(params.Distance), 0), nil
}

// existingSeq reads the stored _seq of a point, 0 when the point does not exist.
func (c *Client) existingSeq(ctx context.Context, physical, pointID string) (int64, error) {
	status, env, err := c.do(ctx, http.MethodGet, collectionPath(physical)+"/points/"+pointID, nil)
	if err != nil {
		return 0, err
	}
	if status == http.StatusNotFound {
		return 0, nil
	}
	if status >= 300 {
		return 0, statusErr("get point", status, env)
	}
	var p retrievedPoint
	if err := json.Unmarshal(env.Result, &p); err != nil {
		return 0, unavailable("decode point", err)
	}
	_, seq, _ := splitPayload(p.Payload)
	return seq, nil
}

// nextSeq is a strictly increasing microsecond stamp. Microseconds stay exact in a JSON float64.
func (c *Client) nextSeq() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	seq := time.Now().UnixMicro()
	if seq <= c.lastSeq {
		seq = c.lastSeq + 1
	}
	c.lastSeq = seq
	return seq
}

func (c *Client) remember(col collection.Collection) {
	c.mu.Lock()
	c.known[col.PhysicalName()] = col
	c.mu.Unlock()
}

func (c *Client) forget(physical string) {
	c.mu.Lock()
	delete(c.known, physical)
	c.mu.Unlock()
}

// mapStatus turns a 404 on a collection path into ErrCollectionNotFound and drops the cached metadata.
func (c *Client) mapStatus(col collection.Collection, op string, status int, env envelope) error {
	if status == http.StatusNotFound {
		c.forget(col.PhysicalName())
		return fmt.Errorf("collection %s: %w", col.PhysicalName(), domain.ErrCollectionNotFound)
	}
	return statusErr(op, status, env)
}

func (c *Client) do(ctx context.Context, method, path string, body any) (int, envelope, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, envelope{}, fmt.Errorf("qdrant marshal %s: %w", path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, envelope{}, fmt.Errorf("qdrant request %s: %w", path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, envelope{}, unavailable(method+" "+path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, envelope{}, unavailable("read "+path, err)
	}

	var env envelope
	if len(raw) > 0 && json.Unmarshal(raw, &env) != nil && resp.StatusCode < 300 {
		return 0, envelope{}, fmt.Errorf("qdrant %s %s: malformed response: %w", method, path, domain.ErrIndexUnavailable)
	}
	return resp.StatusCode, env, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

func collectionPath(physical string) string {
	return "/collections/" + url.PathEscape(physical)
}

func splitPhysical(physical string) (string, int) {
	i := strings.LastIndex(physical, "_v")
	if i < 0 {
		return physical, 1
	}
	var version int
	if _, err := fmt.Sscanf(physical[i+2:], "%d", &version); err != nil {
		return physical, 1
	}
	return physical[:i], version
}

// splitPayload pulls the bookkeeping fields out of a point payload.
func splitPayload(raw map[string]any) (string, int64, map[string]any) {
	payload := make(map[string]any, len(raw))
	var (
		id  string
		seq int64
	)
	for k, v := range raw {
		switch k {
		case payloadID:
			id, _ = v.(string)
		case payloadSeq:
			if f, ok := v.(float64); ok {
				seq = int64(f)
			}
		default:
			payload[k] = v
		}
	}
	return id, seq, payload
}

func distanceName(m collection.Metric) string {
	if m == collection.MetricDot {
		return "Dot"
	}
	return "Cosine"
}

func metricFromDistance(d string) collection.Metric {
	switch strings.ToLower(d) {
	case "dot":
		return collection.MetricDot
	case "cosine":
		return collection.MetricCosine
	default:
		return collection.Metric(strings.ToLower(d))
	}
}

func compatible(stored collection.Collection, dim int, metric collection.Metric) error {
	if stored.Dimension() != dim {
		return domain.NewDimensionMismatch(stored.Dimension(), dim)
	}
	if stored.Metric() != metric {
		return fmt.Errorf("collection %s uses %s, requested %s: %w",
			stored.PhysicalName(), stored.Metric(), metric, domain.ErrMetricMismatch)
	}
	return nil
}

func statusErr(op string, status int, env envelope) error {
	detail := env.errorText()
	if detail == "" {
		detail = http.StatusText(status)
	}
	switch {
	case status == http.StatusTooManyRequests || status >= 500:
		return fmt.Errorf("qdrant %s: status %d: %s: %w", op, status, detail, domain.ErrIndexUnavailable)
	case status == http.StatusNotFound:
		return fmt.Errorf("qdrant %s: %s: %w", op, detail, domain.ErrCollectionNotFound)
	default:
		return fmt.Errorf("qdrant %s: status %d: %s: %w", op, status, detail, domain.ErrInvalidArgument)
	}
}

func unavailable(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("qdrant %s: %w", op, err)
	}
	return fmt.Errorf("qdrant %s: %w: %w", op, domain.ErrIndexUnavailable, err)
}

func observe(op string, start time.Time, err *error) {
	metrics.ObserveIndexOp(backend, op, start, *err)
}
