package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadItems(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "items.yaml", `
items:
  - id: alice-daki
    name: Alice dakimakura cover
    character: アリス
    circle: うさぎ小屋
    search_keywords:
      - アリス 抱き枕カバー
creators:
  - name: usagigoya
    url: https://usagigoya.example.com/news/
`)

	f, err := LoadItems(path)
	require.NoError(t, err)
	require.Len(t, f.Items, 1)
	assert.Equal(t, "alice-daki", f.Items[0].ID)
	assert.Equal(t, "アリス", f.Items[0].Character)
	require.Len(t, f.Creators, 1)
	assert.Equal(t, "usagigoya", f.Creators[0].Name)
}

func TestLoadItemsValidationFatals(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "empty file",
			content: `items: []`,
		},
		{
			name: "missing keywords",
			content: `
items:
  - id: alice-daki
    name: Alice
`,
		},
		{
			name: "duplicate ids",
			content: `
items:
  - id: alice-daki
    search_keywords: [アリス]
  - id: alice-daki
    search_keywords: [アリス 抱き枕]
`,
		},
		{
			name: "creator missing url",
			content: `
items:
  - id: alice-daki
    search_keywords: [アリス]
creators:
  - name: usagigoya
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := LoadItems(writeFile(t, "items.yaml", tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadItemsMissingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadItems(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
