package graphstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Steve19802/workbench/errors"
	"github.com/Steve19802/workbench/graph"
)

func testDescription() graph.Description {
	return graph.Description{
		Name: "chain",
		Blocks: []graph.BlockDescription{
			{Name: "Source", Type: "generator.sine"},
			{Name: "Sink", Type: "scope.time"},
		},
		Connections: []graph.Connection{
			{
				Source:      graph.PortRef{Block: "Source", Port: "out"},
				Destination: graph.PortRef{Block: "Sink", Port: "in"},
			},
		},
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestStoreCreateGet(t *testing.T) {
	s := newTestStore(t)

	doc, err := s.Create("chain", testDescription())
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Version)

	loaded, err := s.Get("chain")
	require.NoError(t, err)
	assert.Equal(t, doc.ID, loaded.ID)
	assert.Equal(t, testDescription().Blocks, loaded.Description.Blocks)
	assert.Equal(t, testDescription().Connections, loaded.Description.Connections)

	t.Run("duplicate rejected", func(t *testing.T) {
		_, err := s.Create("chain", testDescription())
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrDuplicateName)
	})

	t.Run("missing document", func(t *testing.T) {
		_, err := s.Get("missing")
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrNotFound)
	})
}

func TestStoreUpdate(t *testing.T) {
	s := newTestStore(t)

	doc, err := s.Create("chain", testDescription())
	require.NoError(t, err)

	doc.Description.Name = "chain-v2"
	require.NoError(t, s.Update(doc))
	assert.Equal(t, 2, doc.Version)

	loaded, err := s.Get("chain")
	require.NoError(t, err)
	assert.Equal(t, "chain-v2", loaded.Description.Name)
	assert.Equal(t, 2, loaded.Version)

	t.Run("stale version rejected", func(t *testing.T) {
		stale := *loaded
		stale.Version = 1
		err := s.Update(&stale)
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrSchema)
	})
}

func TestStoreDelete(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Create("chain", testDescription())
	require.NoError(t, err)

	require.NoError(t, s.Delete("chain"))
	_, err = s.Get("chain")
	assert.ErrorIs(t, err, errors.ErrNotFound)

	err = s.Delete("chain")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestStoreList(t *testing.T) {
	s := newTestStore(t)

	for _, id := range []string{"beta", "alpha", "gamma"} {
		_, err := s.Create(id, testDescription())
		require.NoError(t, err)
	}

	ids, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, ids)
}

func TestStoreRejectsPathEscapes(t *testing.T) {
	s := newTestStore(t)

	for _, id := range []string{"", "../escape", "a/b", `a\b`} {
		_, err := s.Create(id, testDescription())
		require.Error(t, err, "id %q", id)
		assert.ErrorIs(t, err, errors.ErrSchema)
	}
}
