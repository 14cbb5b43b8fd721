package brain

import (
	"reflect"
	"testing"

	"agentgate/internal/domain"
)

func TestAssemble(t *testing.T) {
	mem := "notes"
	tests := []struct {
		name   string
		text   string
		memory *string
		aug    domain.Augmentation
		want   domain.BrainResponse
	}{
		{"plain", "hi", nil, domain.Augmentation{}, domain.BrainResponse{Text: "hi", Actions: []string{}}},
		{"memory", "hi", &mem, domain.Augmentation{}, domain.BrainResponse{Text: "hi", Actions: []string{"used_memory"}}},
		{"augmented", "hi", nil, domain.Augmentation{Relevant: true, Data: "D"},
			domain.BrainResponse{Text: "hi\n\n[Domain Info]: D", Actions: []string{}}},
		{"relevant without data", "hi", nil, domain.Augmentation{Relevant: true, Err: "down"},
			domain.BrainResponse{Text: "hi", Actions: []string{}}},
		{"data but not relevant", "hi", nil, domain.Augmentation{Data: "D"},
			domain.BrainResponse{Text: "hi", Actions: []string{}}},
		{"empty text", "", nil, domain.Augmentation{}, domain.BrainResponse{Text: EmptyAnswerText, Actions: []string{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Assemble(tt.text, tt.memory, tt.aug)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
			if got.Actions == nil {
				t.Error("actions must never be nil")
			}
		})
	}
}

func TestTrigger(t *testing.T) {
	tr := NewTrigger([]string{" Wallet ", "nft", "", "NFT"})
	if len(tr.keywords) != 2 {
		t.Fatalf("expected de-duplicated keywords, got %v", tr.keywords)
	}
	if k, ok := tr.Match("Show my NFTs"); !ok || k != "nft" {
		t.Errorf("expected nft match, got %q %v", k, ok)
	}
	if _, ok := tr.Match("good morning"); ok {
		t.Error("unexpected match")
	}
	if _, ok := NewTrigger(nil).Match("wallet"); ok {
		t.Error("empty trigger should never match")
	}
}
