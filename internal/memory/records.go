package memory

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"overseer/internal/logging"
	"overseer/internal/types"
)

type recordsPayload struct {
	IDs       []string         `json:"ids"`
	Documents []string         `json:"documents,omitempty"`
	Metadatas []map[string]any `json:"metadatas,omitempty"`
}

type getResponse struct {
	IDs       []string         `json:"ids"`
	Documents []*string        `json:"documents"`
	Metadatas []map[string]any `json:"metadatas"`
}

type queryResponse struct {
	IDs       [][]string         `json:"ids"`
	Documents [][]*string        `json:"documents"`
	Metadatas [][]map[string]any `json:"metadatas"`
	Distances [][]*float64       `json:"distances"`
}

func (c *Client) Add(ctx context.Context, collection, id, content string, metadata map[string]any) (types.MemoryResult, error) {
	return c.write(ctx, "add", collection, id, content, metadata)
}

func (c *Client) Update(ctx context.Context, collection, id, content string, metadata map[string]any) (types.MemoryResult, error) {
	return c.write(ctx, "update", collection, id, content, metadata)
}

func (c *Client) write(ctx context.Context, op, collection, id, content string, metadata map[string]any) (types.MemoryResult, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return types.MemoryResult{}, fmt.Errorf("id is required")
	}
	if strings.TrimSpace(content) == "" {
		return types.MemoryResult{}, fmt.Errorf("content is required")
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	// Only add creates a missing collection.
	var target types.MemoryCollection
	var err error
	if op == "add" {
		target, err = c.EnsureCollection(ctx, collection)
	} else {
		target, err = c.Collection(ctx, collection)
	}
	if err != nil {
		return types.MemoryResult{}, err
	}
	body := recordsPayload{
		IDs:       []string{id},
		Documents: []string{content},
		Metadatas: []map[string]any{metadata},
	}
	if err := c.doJSON(ctx, http.MethodPost, c.collectionPath(target.ID)+"/"+op, body, nil); err != nil {
		return types.MemoryResult{}, fmt.Errorf("%s memory: %w", op, err)
	}
	c.logger.Info("memory_"+op, logging.F("collection", target.Name), logging.F("id", id))
	return types.MemoryResult{Success: true, Collection: target.Name, ID: id}, nil
}

func (c *Client) Delete(ctx context.Context, collection, id string) (types.MemoryResult, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return types.MemoryResult{}, fmt.Errorf("id is required")
	}
	target, err := c.Collection(ctx, collection)
	if err != nil {
		return types.MemoryResult{}, err
	}
	body := recordsPayload{IDs: []string{id}}
	if err := c.doJSON(ctx, http.MethodPost, c.collectionPath(target.ID)+"/delete", body, nil); err != nil {
		return types.MemoryResult{}, fmt.Errorf("delete memory: %w", err)
	}
	c.logger.Info("memory_delete", logging.F("collection", target.Name), logging.F("id", id))
	return types.MemoryResult{Success: true, Collection: target.Name, ID: id}, nil
}

// Search forwards query for server-side embedding and returns up to n
// documents ordered by distance. where is an optional metadata filter.
func (c *Client) Search(ctx context.Context, collection, query string, n int, where map[string]any) ([]types.MemoryDocument, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query is required")
	}
	if n <= 0 {
		n = DefaultSearchN
	}
	target, err := c.Collection(ctx, collection)
	if err != nil {
		return nil, err
	}
	body := map[string]any{
		"query_texts": []string{query},
		"n_results":   n,
		"include":     []string{"documents", "metadatas", "distances"},
	}
	if len(where) > 0 {
		body["where"] = where
	}
	var resp queryResponse
	if err := c.doJSON(ctx, http.MethodPost, c.collectionPath(target.ID)+"/query", body, &resp); err != nil {
		return nil, fmt.Errorf("search memory: %w", err)
	}
	out := make([]types.MemoryDocument, 0)
	if len(resp.IDs) > 0 {
		for i, id := range resp.IDs[0] {
			doc := types.MemoryDocument{ID: id}
			if len(resp.Documents) > 0 {
				doc.Content = stringAt(resp.Documents[0], i)
			}
			if len(resp.Metadatas) > 0 && i < len(resp.Metadatas[0]) {
				doc.Metadata = resp.Metadatas[0][i]
			}
			if len(resp.Distances) > 0 && i < len(resp.Distances[0]) {
				doc.Distance = resp.Distances[0][i]
			}
			out = append(out, doc)
		}
	}
	c.logger.Info("memory_search",
		logging.F("collection", target.Name),
		logging.F("query", query),
		logging.F("n_results", n),
		logging.F("result_count", len(out)),
	)
	return out, nil
}

func (c *Client) List(ctx context.Context, collection string, limit int) ([]types.MemoryDocument, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	target, err := c.Collection(ctx, collection)
	if err != nil {
		return nil, err
	}
	body := map[string]any{
		"limit":   limit,
		"include": []string{"documents", "metadatas"},
	}
	var resp getResponse
	if err := c.doJSON(ctx, http.MethodPost, c.collectionPath(target.ID)+"/get", body, &resp); err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	out := make([]types.MemoryDocument, 0, len(resp.IDs))
	for i, id := range resp.IDs {
		doc := types.MemoryDocument{ID: id, Content: stringAt(resp.Documents, i)}
		if i < len(resp.Metadatas) {
			doc.Metadata = resp.Metadatas[i]
		}
		out = append(out, doc)
	}
	return out, nil
}

func stringAt(values []*string, i int) string {
	if i >= len(values) || values[i] == nil {
		return ""
	}
	return *values[i]
}
