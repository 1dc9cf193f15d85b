package types

// MemoryCollection describes a collection in the external document store.
type MemoryCollection struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type MemoryDocument struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Distance *float64       `json:"distance,omitempty"`
}

type MemoryStats struct {
	Collection string         `json:"collection"`
	Count      int            `json:"count"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// MemoryResult is the outcome of a write operation.
type MemoryResult struct {
	Success    bool   `json:"success"`
	Collection string `json:"collection"`
	ID         string `json:"id,omitempty"`
}
