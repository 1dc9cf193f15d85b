package memory

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"overseer/internal/logging"
	"overseer/internal/types"
)

type collectionPayload struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Metadata map[string]any `json:"metadata"`
}

func (p collectionPayload) toType() types.MemoryCollection {
	return types.MemoryCollection{ID: p.ID, Name: p.Name, Metadata: p.Metadata}
}

func (c *Client) ListCollections(ctx context.Context) ([]types.MemoryCollection, error) {
	var payload []collectionPayload
	if err := c.doJSON(ctx, http.MethodGet, c.collectionsPath(), nil, &payload); err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	out := make([]types.MemoryCollection, 0, len(payload))
	for _, item := range payload {
		out = append(out, item.toType())
	}
	return out, nil
}

// Collection looks a collection up by name. A missing collection yields
// ErrCollectionNotFound.
func (c *Client) Collection(ctx context.Context, name string) (types.MemoryCollection, error) {
	name, err := requireName(name)
	if err != nil {
		return types.MemoryCollection{}, err
	}
	var payload collectionPayload
	if err := c.doJSON(ctx, http.MethodGet, c.collectionPath(name), nil, &payload); err != nil {
		if isNotFound(err) {
			return types.MemoryCollection{}, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
		}
		return types.MemoryCollection{}, fmt.Errorf("get collection %s: %w", name, err)
	}
	return payload.toType(), nil
}

// EnsureCollection returns the named collection, creating it with a
// description when it does not exist yet.
func (c *Client) EnsureCollection(ctx context.Context, name string) (types.MemoryCollection, error) {
	name, err := requireName(name)
	if err != nil {
		return types.MemoryCollection{}, err
	}
	body := map[string]any{
		"name":          name,
		"get_or_create": true,
		"metadata":      map[string]any{"description": "Memory for " + name},
	}
	var payload collectionPayload
	if err := c.doJSON(ctx, http.MethodPost, c.collectionsPath(), body, &payload); err != nil {
		return types.MemoryCollection{}, fmt.Errorf("create collection %s: %w", name, err)
	}
	if payload.Name == "" {
		payload.Name = name
	}
	return payload.toType(), nil
}

func (c *Client) DeleteCollection(ctx context.Context, name string) error {
	name, err := requireName(name)
	if err != nil {
		return err
	}
	if err := c.doJSON(ctx, http.MethodDelete, c.collectionPath(name), nil, nil); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
		}
		return fmt.Errorf("delete collection %s: %w", name, err)
	}
	c.logger.Info("memory_collection_deleted", logging.F("collection", name))
	return nil
}

func (c *Client) Stats(ctx context.Context, name string) (types.MemoryStats, error) {
	collection, err := c.Collection(ctx, name)
	if err != nil {
		return types.MemoryStats{}, err
	}
	var count int
	if err := c.doJSON(ctx, http.MethodGet, c.collectionPath(collection.ID)+"/count", nil, &count); err != nil {
		return types.MemoryStats{}, fmt.Errorf("count %s: %w", collection.Name, err)
	}
	return types.MemoryStats{Collection: collection.Name, Count: count, Metadata: collection.Metadata}, nil
}

func requireName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("collection name is required")
	}
	return name, nil
}
