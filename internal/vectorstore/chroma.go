package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultChromaHost is the default address of the Chroma server.
	DefaultChromaHost = "http://localhost:8000"

	apiPrefix = "/api/v1"
)

// ChromaIndex implements Index against a Chroma-compatible REST API.
type ChromaIndex struct {
	host       string
	httpClient *http.Client

	mu          sync.Mutex
	collections map[string]string // name -> collection uuid
}

var _ Index = (*ChromaIndex)(nil)

// NewChromaIndex creates an index client for the server at host. An empty
// host selects the default local address.
func NewChromaIndex(host string, timeout time.Duration) *ChromaIndex {
	if host == "" {
		host = DefaultChromaHost
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &ChromaIndex{
		host:        strings.TrimRight(host, "/"),
		httpClient:  &http.Client{Timeout: timeout},
		collections: make(map[string]string),
	}
}

type collectionRequest struct {
	Name        string            `json:"name"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	GetOrCreate bool              `json:"get_or_create"`
}

type collectionResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// collectionID resolves a collection name to its server-side uuid. When
// create is false a missing collection yields ErrCollectionNotFound.
func (c *ChromaIndex) collectionID(ctx context.Context, name string, create bool) (string, error) {
	c.mu.Lock()
	id, ok := c.collections[name]
	c.mu.Unlock()
	if ok {
		return id, nil
	}

	if !create {
		raw, status, err := c.do(ctx, http.MethodGet, apiPrefix+"/collections/"+name, nil)
		if err != nil {
			return "", err
		}
		if status == http.StatusNotFound || status >= 400 {
			return "", fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
		}
		var parsed collectionResponse
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return "", fmt.Errorf("decode collection %s: %w", name, err)
		}
		c.remember(name, parsed.ID)
		return parsed.ID, nil
	}

	// Collections we create are configured for cosine distance; the
	// server's default space is l2, which would skew every distance-based
	// confidence and threshold downstream.
	raw, status, err := c.do(ctx, http.MethodPost, apiPrefix+"/collections", collectionRequest{
		Name:        name,
		Metadata:    map[string]string{"hnsw:space": "cosine"},
		GetOrCreate: true,
	})
	if err != nil {
		return "", err
	}
	if status >= 400 {
		return "", fmt.Errorf("create collection %s: status %d: %s", name, status, truncateBody(raw))
	}

	var parsed collectionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode collection %s: %w", name, err)
	}
	c.remember(name, parsed.ID)
	return parsed.ID, nil
}

func (c *ChromaIndex) remember(name, id string) {
	c.mu.Lock()
	c.collections[name] = id
	c.mu.Unlock()
}

type upsertRequest struct {
	IDs        []string            `json:"ids"`
	Embeddings [][]float64         `json:"embeddings"`
	Metadatas  []map[string]string `json:"metadatas"`
	Documents  []string            `json:"documents"`
}

// Upsert writes records into the named collection, creating it on first use.
func (c *ChromaIndex) Upsert(ctx context.Context, collection string, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	id, err := c.collectionID(ctx, collection, true)
	if err != nil {
		return fmt.Errorf("upsert into %s: %w", collection, err)
	}

	body := upsertRequest{
		IDs:        make([]string, len(records)),
		Embeddings: make([][]float64, len(records)),
		Metadatas:  make([]map[string]string, len(records)),
		Documents:  make([]string, len(records)),
	}
	for i, r := range records {
		body.IDs[i] = r.ID
		body.Embeddings[i] = r.Embedding
		body.Metadatas[i] = r.Metadata
		body.Documents[i] = r.Document
	}

	raw, status, err := c.do(ctx, http.MethodPost, apiPrefix+"/collections/"+id+"/upsert", body)
	if err != nil {
		return fmt.Errorf("upsert into %s: %w", collection, err)
	}
	if status >= 400 {
		return fmt.Errorf("upsert into %s: status %d: %s", collection, status, truncateBody(raw))
	}

	return nil
}

type queryRequest struct {
	QueryEmbeddings [][]float64 `json:"query_embeddings"`
	NResults        int         `json:"n_results"`
	Include         []string    `json:"include"`
}

type queryResponse struct {
	IDs       [][]string            `json:"ids"`
	Distances [][]float64           `json:"distances"`
	Metadatas [][]map[string]string `json:"metadatas"`
}

// Query returns the topK nearest records to the embedding, closest first.
func (c *ChromaIndex) Query(ctx context.Context, collection string, embedding []float64, topK int) ([]Match, error) {
	id, err := c.collectionID(ctx, collection, false)
	if err != nil {
		return nil, err
	}

	body := queryRequest{
		QueryEmbeddings: [][]float64{embedding},
		NResults:        topK,
		Include:         []string{"metadatas", "distances"},
	}

	raw, status, err := c.do(ctx, http.MethodPost, apiPrefix+"/collections/"+id+"/query", body)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	if status == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}
	if status >= 400 {
		return nil, fmt.Errorf("query %s: status %d: %s", collection, status, truncateBody(raw))
	}

	var parsed queryResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("query %s: decode response: %w", collection, err)
	}
	if len(parsed.IDs) == 0 {
		return nil, nil
	}

	matches := make([]Match, 0, len(parsed.IDs[0]))
	for i, matchID := range parsed.IDs[0] {
		m := Match{ID: matchID}
		if len(parsed.Distances) > 0 && i < len(parsed.Distances[0]) {
			m.Distance = parsed.Distances[0][i]
		}
		if len(parsed.Metadatas) > 0 && i < len(parsed.Metadatas[0]) {
			m.Metadata = parsed.Metadatas[0][i]
		}
		matches = append(matches, m)
	}

	return matches, nil
}

type getRequest struct {
	Limit   int      `json:"limit"`
	Offset  int      `json:"offset"`
	Include []string `json:"include"`
}

type getResponse struct {
	IDs        []string            `json:"ids"`
	Embeddings [][]float64         `json:"embeddings"`
	Metadatas  []map[string]string `json:"metadatas"`
	Documents  []string            `json:"documents"`
}

// Page reads up to limit records starting at offset, including embeddings.
func (c *ChromaIndex) Page(ctx context.Context, collection string, limit, offset int) ([]Record, error) {
	id, err := c.collectionID(ctx, collection, false)
	if err != nil {
		return nil, err
	}

	body := getRequest{
		Limit:   limit,
		Offset:  offset,
		Include: []string{"embeddings", "metadatas", "documents"},
	}

	raw, status, err := c.do(ctx, http.MethodPost, apiPrefix+"/collections/"+id+"/get", body)
	if err != nil {
		return nil, fmt.Errorf("page %s: %w", collection, err)
	}
	if status == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}
	if status >= 400 {
		return nil, fmt.Errorf("page %s: status %d: %s", collection, status, truncateBody(raw))
	}

	var parsed getResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("page %s: decode response: %w", collection, err)
	}

	records := make([]Record, 0, len(parsed.IDs))
	for i, recordID := range parsed.IDs {
		r := Record{ID: recordID}
		if i < len(parsed.Embeddings) {
			r.Embedding = parsed.Embeddings[i]
		}
		if i < len(parsed.Metadatas) {
			r.Metadata = parsed.Metadatas[i]
		}
		if i < len(parsed.Documents) {
			r.Document = parsed.Documents[i]
		}
		records = append(records, r)
	}

	return records, nil
}

// do issues one JSON request and returns the raw body plus status code.
// Non-2xx statuses are returned to the caller for per-endpoint handling.
func (c *ChromaIndex) do(ctx context.Context, method, path string, body any) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.host+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read %s response: %w", path, err)
	}

	return raw, resp.StatusCode, nil
}

func truncateBody(raw []byte) string {
	s := string(raw)
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
