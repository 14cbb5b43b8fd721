package domain

import "context"

// MemorySearcher looks up stored knowledge relevant to a query.
// An empty string with a nil error means nothing was found.
type MemorySearcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// CacheResult is the answer of an inference cache lookup.
type CacheResult struct {
	Cached   bool   `json:"cached"`
	Response string `json:"response"`
}

// InferenceCache answers prompts that were already inferred.
type InferenceCache interface {
	Lookup(ctx context.Context, prompt string) (CacheResult, error)
}

// CacheWriter is implemented by caches the pipeline may populate.
type CacheWriter interface {
	Store(ctx context.Context, prompt, response string) error
}

// InferenceRequest is sent to the primary inference model.
type InferenceRequest struct {
	Prompt string
	Image  string // base64, optional
}

// InferenceProvider runs primary inference.
type InferenceProvider interface {
	Name() string
	Infer(ctx context.Context, req InferenceRequest) (string, error)
}

// AugmentationSource fetches domain data appended to relevant answers.
type AugmentationSource interface {
	Name() string
	Fetch(ctx context.Context, message string) (string, error)
}

// Processor turns a request into a response and never fails.
type Processor interface {
	Process(ctx context.Context, req BrainRequest) BrainResponse
}
