package rpc

// LoadIndexRequest is the request body for POST /load-index. Sources are
// index file paths or http(s) URLs; Data, when set, is loaded directly
// under the name in Sources[0].
type LoadIndexRequest struct {
	Sources []string `json:"sources"`
	Data    []byte   `json:"data,omitempty"`
	Refresh bool     `json:"refresh,omitempty"`
}

// LoadResponse is the response body for POST /load-index and
// POST /submit-shard.
type LoadResponse struct {
	Crates  []string `json:"crates,omitempty"`
	Shards  int      `json:"shards,omitempty"`
	Entries int      `json:"entries,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

// ProgressLine is one line of the NDJSON stream written by POST
// /load-index: progress messages, then a single result.
type ProgressLine struct {
	Type    string        `json:"type"` // "progress" or "result"
	Message string        `json:"message,omitempty"`
	Result  *LoadResponse `json:"result,omitempty"`
}

// SubmitShardRequest is the request body for POST /submit-shard. Either
// Sources (shard files or directories) or Data with its file Name.
type SubmitShardRequest struct {
	Sources []string `json:"sources,omitempty"`
	Name    string   `json:"name,omitempty"`
	Data    []byte   `json:"data,omitempty"`
}

// MarkReadyResponse is the response body for POST /mark-ready.
type MarkReadyResponse struct {
	State   string `json:"state"`
	Flushed int    `json:"flushed"`
}

// SearchRequest is the request body for POST /search.
type SearchRequest struct {
	Query  string   `json:"query"`
	Crates []string `json:"crates,omitempty"`
	Limit  int      `json:"limit,omitempty"`
}

// SearchResponse is the response body for POST /search.
type SearchResponse struct {
	Results []SymbolResult `json:"results"`
	Cached  bool           `json:"cached,omitempty"`
}

type SymbolResult struct {
	Crate     string  `json:"crate"`
	ID        int     `json:"id"`
	Path      string  `json:"path"`
	Kind      string  `json:"kind"`
	Signature string  `json:"signature,omitempty"`
	Summary   string  `json:"summary,omitempty"`
	Score     float64 `json:"score"`
	Match     string  `json:"match"`
}

// ImplementorsRequest is the request body for POST /implementors. Exactly
// one of Type or Trait is set.
type ImplementorsRequest struct {
	Type  string `json:"type,omitempty"`
	Trait string `json:"trait,omitempty"`
	// Known maps type paths to whether they satisfy the trait; synthetic
	// impls known to fail are hidden.
	Known map[string]bool `json:"known,omitempty"`
}

// ImplementorsResponse is the response body for POST /implementors.
type ImplementorsResponse struct {
	State        string           `json:"state"`
	Implementors []ImplementorDoc `json:"implementors"`
}

type ImplementorDoc struct {
	Crate         string   `json:"crate"`
	Trait         string   `json:"trait"`
	For           string   `json:"for"`
	Text          string   `json:"text"`
	Synthetic     bool     `json:"synthetic,omitempty"`
	Negative      bool     `json:"negative,omitempty"`
	Applicability string   `json:"applicability"`
	DependsOn     []string `json:"depends_on,omitempty"`
}

// GetRequest is the request body for POST /get. Crate, when set, limits
// the lookup to one crate.
type GetRequest struct {
	Crate string `json:"crate,omitempty"`
	Path  string `json:"path"`
}

// GetResponse is the response body for POST /get.
type GetResponse struct {
	Markdown string `json:"markdown"`
}

// StatusResponse is the response body for GET /status.
type StatusResponse struct {
	Crates         []CrateStatus `json:"crates"`
	RegistryState  string        `json:"registry_state"`
	PendingShards  int           `json:"pending_shards"`
	RegistryCrates []string      `json:"registry_crates,omitempty"`
	Implementors   int           `json:"implementors"`
}

type CrateStatus struct {
	Name            string `json:"name"`
	Items           int    `json:"items"`
	SignatureErrors int    `json:"signature_errors,omitempty"`
}

// ClearCacheResponse is the response body for POST /clear-cache.
type ClearCacheResponse struct {
	Status  string `json:"status"`
	Removed int    `json:"removed"`
}
