package history

import (
	"strings"
	"testing"
)

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "short message unchanged",
			content: "Check my inbox",
			want:    "Check my inbox",
		},
		{
			name:    "whitespace normalized",
			content: "  Check\tmy \n inbox  ",
			want:    "Check my inbox",
		},
		{
			name:    "empty falls back",
			content: "   ",
			want:    DefaultTitle,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveTitle(tt.content); got != tt.want {
				t.Errorf("DeriveTitle(%q) = %q, want %q", tt.content, got, tt.want)
			}
		})
	}
}

func TestDeriveTitle_LongMessageTruncated(t *testing.T) {
	content := "Can you check my inbox for urgent items from Sarah and also draft a reply to the quarterly report thread?"

	got := DeriveTitle(content)

	if n := len([]rune(got)); n > MaxTitleLen {
		t.Errorf("len = %d, want <= %d", n, MaxTitleLen)
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("truncated title %q should end in ellipsis", got)
	}
	prefix := strings.TrimSuffix(got, "...")
	if !strings.HasPrefix(content, prefix) {
		t.Errorf("title %q is not a prefix of the message", got)
	}
	if strings.HasSuffix(prefix, " ") || !strings.HasSuffix(prefix, strings.Fields(prefix)[len(strings.Fields(prefix))-1]) {
		t.Errorf("title %q does not cut at a word boundary", got)
	}
}

func TestDeriveTitle_SingleGiantWord(t *testing.T) {
	got := DeriveTitle(strings.Repeat("x", 200))
	if n := len([]rune(got)); n > MaxTitleLen {
		t.Errorf("len = %d, want <= %d", n, MaxTitleLen)
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("got %q, want ellipsis suffix", got)
	}
}
