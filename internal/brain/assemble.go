package brain

import "agentgate/internal/domain"

// DomainInfoPrefix separates the augmentation data from the model answer.
const DomainInfoPrefix = "\n\n[Domain Info]: "

// Assemble merges the stage outputs into a response. It performs no I/O and
// returns identical values for identical inputs.
func Assemble(text string, memory *string, aug domain.Augmentation) domain.BrainResponse {
	if text == "" {
		text = EmptyAnswerText
	}
	resp := domain.BrainResponse{Text: text, Actions: []string{}}
	if aug.Relevant && aug.Data != "" {
		resp.Text += DomainInfoPrefix + aug.Data
	}
	if memory != nil {
		resp.AddAction(domain.ActionUsedMemory)
	}
	return resp
}
