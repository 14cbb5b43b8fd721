package domain

import (
	"strings"
	"testing"
)

func TestMessageFromEnvelope(t *testing.T) {
	cases := []struct {
		name string
		env  Envelope
		want string
	}{
		{"text", Envelope{UserID: "u", ContentType: ContentText, Text: "hello"}, "hello"},
		{"image", Envelope{UserID: "u", ContentType: ContentImage, MediaRef: "AgACNFTtoken_STAKE"}, ImagePrompt},
		{"voice", Envelope{UserID: "u", ContentType: ContentVoice, MediaRef: "wamid.nft"}, VoicePrompt},
	}
	for _, tc := range cases {
		req := MessageFromEnvelope(tc.env)
		if req.Message != tc.want || req.UserID != "u" {
			t.Errorf("%s: got %+v", tc.name, req)
		}
		if tc.env.MediaRef != "" && strings.Contains(req.Message, tc.env.MediaRef) {
			t.Errorf("%s: media id leaked into prompt %q", tc.name, req.Message)
		}
	}
}

func TestMediaPromptsCarryNoKeywords(t *testing.T) {
	for _, prompt := range []string{ImagePrompt, VoicePrompt} {
		lower := strings.ToLower(prompt)
		for _, kw := range []string{"solana", "wallet", "transaction", "balance", "nft", "token", "stake"} {
			if strings.Contains(lower, kw) {
				t.Errorf("%q contains trigger keyword %q", prompt, kw)
			}
		}
	}
}

func TestBrainResponse_AddAction(t *testing.T) {
	var r BrainResponse
	r.AddAction(ActionUsedMemory)
	r.AddAction(ActionUsedMemory)
	r.AddAction(ActionError)
	if len(r.Actions) != 2 || !r.HasAction(ActionError) {
		t.Errorf("unexpected actions %v", r.Actions)
	}
}
