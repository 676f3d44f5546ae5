package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileCatalogState(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "catalog_state_test")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	tests := []struct {
		name     string
		filename string
		data     []byte
	}{
		{
			name:     "basic catalog load",
			filename: "catalog.json",
			data:     []byte(`{"foods": [{"id": "f1", "name": "chicken breast", "unit": "g", "serving_grams": 100, "per_100g": {"calories": 165, "protein": 31, "carbs": 0, "fat": 3.6}}]}`),
		},
		{
			name:     "empty catalog file",
			filename: "empty.json",
			data:     []byte(`{"foods": []}`),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filePath := filepath.Join(tmpDir, tt.filename)

			// Create the test file
			err := os.WriteFile(filePath, tt.data, 0644)
			require.NoError(t, err)

			state := NewFileCatalogState(filePath)
			loadedData, err := state.Load(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.data, loadedData)
		})
	}

	t.Run("load nonexistent catalog", func(t *testing.T) {
		nonexistentPath := filepath.Join(tmpDir, "nonexistent.json")
		state := NewFileCatalogState(nonexistentPath)
		_, err := state.Load(context.Background())
		assert.Error(t, err)
		assert.True(t, os.IsNotExist(err))
	})
}

func TestTestCatalogState(t *testing.T) {
	data := []byte(`{"foods": []}`)

	loaded, err := NewTestCatalogState(data).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, data, loaded)

	_, err = NewTestCatalogStateWithError().Load(context.Background())
	assert.Error(t, err)
}
