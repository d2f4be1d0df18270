package orchestrator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestPaywallRewriter_Defaults(t *testing.T) {
	r, err := NewPaywallRewriter("", arbor.NewLogger())
	require.NoError(t, err)

	tests := []struct {
		name      string
		url       string
		want      string
		rewritten bool
	}{
		{
			name:      "exact host",
			url:       "https://nytimes.com/2026/article.html",
			want:      "https://archive.ph/newest/https://nytimes.com/2026/article.html",
			rewritten: true,
		},
		{
			name:      "subdomain",
			url:       "https://www.wsj.com/articles/x",
			want:      "https://archive.ph/newest/https://www.wsj.com/articles/x",
			rewritten: true,
		},
		{
			name:      "suffix lookalike is not a subdomain",
			url:       "https://notnytimes.com/story",
			want:      "https://notnytimes.com/story",
			rewritten: false,
		},
		{
			name:      "unlisted host",
			url:       "https://example.com/post",
			want:      "https://example.com/post",
			rewritten: false,
		},
		{
			name:      "unparseable url passes through",
			url:       "::not-a-url",
			want:      "::not-a-url",
			rewritten: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, rewritten := r.Rewrite(tt.url)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.rewritten, rewritten)
		})
	}
}

func TestPaywallRewriter_FileRulesOverrideDefaults(t *testing.T) {
	rulesFile := filepath.Join(t.TempDir(), "paywall.yaml")
	rules := `
- host: nytimes.com
  prefix: "https://mirror.internal/"
- host: example.org
  prefix: "https://archive.ph/newest/"
`
	require.NoError(t, os.WriteFile(rulesFile, []byte(rules), 0o644))

	r, err := NewPaywallRewriter(rulesFile, arbor.NewLogger())
	require.NoError(t, err)

	// The file rule for a default host wins.
	got, rewritten := r.Rewrite("https://www.nytimes.com/a")
	assert.True(t, rewritten)
	assert.Equal(t, "https://mirror.internal/https://www.nytimes.com/a", got)

	// New hosts from the file are honored.
	got, rewritten = r.Rewrite("https://example.org/b")
	assert.True(t, rewritten)
	assert.Equal(t, "https://archive.ph/newest/https://example.org/b", got)

	// Untouched defaults still apply.
	_, rewritten = r.Rewrite("https://ft.com/c")
	assert.True(t, rewritten)
}

func TestPaywallRewriter_MissingRulesFile(t *testing.T) {
	_, err := NewPaywallRewriter(filepath.Join(t.TempDir(), "absent.yaml"), arbor.NewLogger())
	assert.Error(t, err)
}
