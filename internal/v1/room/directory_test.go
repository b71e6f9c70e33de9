package room

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDirectory_PreservesOrder(t *testing.T) {
	catalog := []Metadata{
		{Name: "rust", Description: "Talk about Rust"},
		{Name: "go", Description: "Talk about Go"},
	}
	dir, err := NewDirectory(catalog)
	require.NoError(t, err)
	assert.Equal(t, catalog, dir.Metadatas())
	assert.Equal(t, 2, dir.Len())
}

func TestNewDirectory_RejectsDuplicateNames(t *testing.T) {
	catalog := []Metadata{
		{Name: "rust", Description: "a"},
		{Name: "rust", Description: "b"},
	}
	_, err := NewDirectory(catalog)
	assert.Error(t, err)
}

func TestDirectory_LookupMiss(t *testing.T) {
	dir, err := NewDirectory([]Metadata{{Name: "rust", Description: "a"}})
	require.NoError(t, err)

	_, ok := dir.Lookup("unknown")
	assert.False(t, ok)

	r, ok := dir.Lookup("rust")
	assert.True(t, ok)
	assert.Equal(t, "rust", r.Metadata().Name)
}
