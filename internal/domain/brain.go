package domain

// Action tags attached to a BrainResponse.
const (
	ActionUsedMemory = "used_memory"
	ActionError      = "error"
)

// BrainRequest is the input of the response pipeline.
type BrainRequest struct {
	Message string `json:"message"`
	UserID  string `json:"userId"`
	Image   string `json:"image,omitempty"` // base64
}

// BrainResponse is the final answer. Text is never empty.
type BrainResponse struct {
	Text    string   `json:"text"`
	Media   string   `json:"media,omitempty"`
	Actions []string `json:"actions"`
}

// AddAction appends tag unless it is already present. Actions only grow.
func (r *BrainResponse) AddAction(tag string) {
	for _, a := range r.Actions {
		if a == tag {
			return
		}
	}
	r.Actions = append(r.Actions, tag)
}

// HasAction reports whether tag was recorded.
func (r BrainResponse) HasAction(tag string) bool {
	for _, a := range r.Actions {
		if a == tag {
			return true
		}
	}
	return false
}

// Augmentation is the outcome of the keyword-triggered domain lookup.
type Augmentation struct {
	Relevant bool   `json:"relevant"`
	Data     string `json:"data,omitempty"`
	Err      string `json:"error,omitempty"`
}

// PipelineContext is the per-request scratch state of the pipeline.
type PipelineContext struct {
	MemoryContext *string
	CacheHit      bool
	Augmentation  Augmentation
}

// Fixed prompts for media envelopes. Platform file ids are opaque and never
// reach the pipeline, so they cannot leak into inference or keyword matching.
const (
	ImagePrompt = "[The user sent an image]"
	VoicePrompt = "[The user sent a voice message]"
)

// MessageFromEnvelope turns an envelope into a pipeline request.
func MessageFromEnvelope(e Envelope) BrainRequest {
	req := BrainRequest{UserID: e.UserID}
	switch e.ContentType {
	case ContentImage:
		req.Message = ImagePrompt
	case ContentVoice:
		req.Message = VoicePrompt
	default:
		req.Message = e.Text
	}
	return req
}
