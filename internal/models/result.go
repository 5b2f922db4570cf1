package models

// Source identifies a segment that contributed context to an answer.
type Source struct {
	ID    string  `json:"id"`
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// AskResponse is the answer to an AskRequest.
type AskResponse struct {
	Answer    string   `json:"answer"`
	Sources   []Source `json:"sources"`
	QueryTime int64    `json:"query_time_ms"`
}

// RetrieveResponse holds retrieval hits without answer synthesis.
type RetrieveResponse struct {
	Results   []*ScoredSegment `json:"results"`
	QueryTime int64            `json:"query_time_ms"`
}

// StatusResponse summarizes the store and active configuration.
type StatusResponse struct {
	Documents      int64                  `json:"documents"`
	Segments       int64                  `json:"segments"`
	DiskUsageBytes int64                  `json:"disk_usage_bytes,omitempty"`
	Config         map[string]interface{} `json:"config,omitempty"`
}
