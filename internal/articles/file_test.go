package articles

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		file     string
		content  string
		wantErr  string
		wantIDs  []string
		wantDOIs []string
	}{
		{
			name:     "json list",
			file:     "articles.json",
			content:  `[{"id":"1","modifiedAt":"2026-01-01T00:00:00Z","title":"One","doi":"10.1/one"}]`,
			wantIDs:  []string{"1"},
			wantDOIs: []string{"10.1/one"},
		},
		{
			name:    "json object",
			file:    "articles.json",
			content: `{"articles":[{"id":"1","modifiedAt":"2026-01-01T00:00:00Z"},{"id":"2","modifiedAt":"2026-01-02T00:00:00Z"}]}`,
			wantIDs: []string{"1", "2"},
		},
		{
			name: "yaml object",
			file: "articles.yaml",
			content: `
articles:
  - id: "7"
    modifiedAt: 2026-01-01T00:00:00Z
    title: Seven
    authors:
      - givenName: Ada
        familyName: Lovelace
`,
			wantIDs: []string{"7"},
		},
		{
			name: "yaml list",
			file: "articles.yml",
			content: `
- id: "8"
  modifiedAt: 2026-01-01T00:00:00Z
`,
			wantIDs: []string{"8"},
		},
		{
			name:    "missing id",
			file:    "articles.json",
			content: `[{"title":"no id"}]`,
			wantErr: "has no id",
		},
		{
			name:    "duplicate id",
			file:    "articles.json",
			content: `[{"id":"1"},{"id":"1"}]`,
			wantErr: "duplicate id 1",
		},
		{
			name:    "malformed",
			file:    "articles.json",
			content: `{`,
			wantErr: "failed to parse articles file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			list, err := LoadFile(writeFile(t, tt.file, tt.content))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			ids := make([]string, 0, len(list))
			for _, a := range list {
				ids = append(ids, a.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
			for i, doi := range tt.wantDOIs {
				assert.Equal(t, doi, list[i].DOI)
			}
		})
	}
}

func TestFileRepository_ReloadsOnChange(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	path := writeFile(t, "articles.json", `[{"id":"1","modifiedAt":"2026-01-01T00:00:00Z","title":"Old"}]`)
	repo, err := NewFileRepository(path)
	require.NoError(t, err)

	a, err := repo.Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "Old", a.Title)

	_, err = repo.Get(ctx, "2")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, os.WriteFile(path,
		[]byte(`[{"id":"1","modifiedAt":"2026-01-03T00:00:00Z","title":"New"},{"id":"2","modifiedAt":"2026-01-02T00:00:00Z"}]`), 0600))
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, future, future))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "2", list[0].ID, "ordered by modification time")
	assert.Equal(t, "New", list[1].Title)
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	repo := NewMemoryRepository(&Article{ID: "1", Title: "Original"})
	a, err := repo.Get(ctx, "1")
	require.NoError(t, err)
	a.Title = "Changed"

	again, err := repo.Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "Original", again.Title)
}
