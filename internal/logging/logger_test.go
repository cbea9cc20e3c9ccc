package logging

import "testing"

func TestMaskToken(t *testing.T) {
	tests := []struct {
		name     string
		token    string
		expected string
	}{
		{"empty", "", ""},
		{"whitespace only", "   ", ""},
		{"short token fully hidden", "abc123", "***"},
		{"long token keeps edges", "ya29.A0ARrdaM-example-token", "ya2***ken"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MaskToken(tt.token); got != tt.expected {
				t.Errorf("MaskToken(%q) = %q, want %q", tt.token, got, tt.expected)
			}
		})
	}
}

func TestMaskToken_NeverEchoesMiddle(t *testing.T) {
	token := "secret-refresh-token-value-1234567890"
	masked := MaskToken(token)

	if len(masked) >= len(token) {
		t.Errorf("masked token is not shorter than the original: %q", masked)
	}
	if masked == token {
		t.Error("token must not survive masking intact")
	}
}
