package model

// ListEnvelope is the backend response envelope for list endpoints.
type ListEnvelope struct {
	Data          []map[string]any  `json:"data"`
	Meta          ListMeta          `json:"meta"`
	Fields        map[string]string `json:"fields,omitempty"`
	CountEdits    int               `json:"count_edits,omitempty"`
	EntityBlockID string            `json:"entity_block_id,omitempty"`
}

// ListMeta carries collection-level metadata.
type ListMeta struct {
	Total int `json:"total"`
}

// ListResult is what the list-query controller hands to the transport layer.
// Stale marks a result served from the last successful fetch after the
// current fetch failed; the screen stays visible and retryable.
type ListResult struct {
	Envelope ListEnvelope `json:"envelope"`
	Key      string       `json:"-"`
	Stale    bool         `json:"stale,omitempty"`
	Cached   bool         `json:"cached,omitempty"`
}

// MutationResult is the outcome of a create/update/delete against the backend.
type MutationResult struct {
	StatusCode int            `json:"status_code"`
	Body       map[string]any `json:"body,omitempty"`
}
