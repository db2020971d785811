package agent

import "testing"

func TestIsAnalyzeIntent(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"Can you analyze this?", true},
		{"please analyse the diagram", true},
		{"Explain this", true},
		{"what is this", true},
		{"What’s this part?", true},
		{"look at the highlighted bit", true},
		{"describe this for me", true},
		{"break this down", true},
		{"what does this mean?", true},
		{"What is recursion?", false},
		{"explain recursion like I'm five", false},
		{"next question please", false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			if got := IsAnalyzeIntent(tt.text); got != tt.want {
				t.Errorf("IsAnalyzeIntent(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}
