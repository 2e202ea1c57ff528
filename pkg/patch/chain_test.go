package patch

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goopsie/glacierFileTools/pkg/hash"
	"github.com/goopsie/glacierFileTools/pkg/rpkg"
)

var (
	idA = hash.Compute("[assembly:/a.template].pc_entitytype")
	idB = hash.Compute("[assembly:/b.template].pc_entitytype")
	idC = hash.Compute("[assembly:/c.template].pc_entitytype")
)

// def is one resource definition: the payload doubles as its version label.
type def struct {
	id   hash.ResourceID
	data string
}

func build(t *testing.T, patchLevel uint8, defs []def, deletions ...hash.ResourceID) *rpkg.Package {
	t.Helper()

	var opts []rpkg.BuilderOption
	if patchLevel > 0 {
		opts = append(opts, rpkg.WithVersion(rpkg.Version2), rpkg.WithPatchLevel(patchLevel))
	}
	b := rpkg.NewBuilder(opts...)
	for _, d := range defs {
		require.NoError(t, b.Add(rpkg.Resource{ID: d.id, Type: rpkg.TypeTemplate, Data: []byte(d.data)}))
	}
	for _, id := range deletions {
		require.NoError(t, b.Delete(id))
	}

	data := b.Bytes()
	p, err := rpkg.Open(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	return p
}

// contents materializes the chain's view as id -> payload.
func contents(t *testing.T, c *Chain) map[hash.ResourceID]string {
	t.Helper()
	out := make(map[hash.ResourceID]string, c.Len())
	for _, id := range c.IDs() {
		l, ok := c.Lookup(id)
		require.True(t, ok)
		raw, err := l.ReadRaw()
		require.NoError(t, err)
		out[id] = string(raw)
	}
	return out
}

func TestBuild(t *testing.T) {
	base := func() *rpkg.Package { return build(t, 0, []def{{idA, "A1"}, {idB, "B1"}}) }
	patch1 := func() *rpkg.Package { return build(t, 1, []def{{idB, "B2"}, {idC, "C1"}}) }

	t.Run("Deletion", func(t *testing.T) {
		c := Build(base(), patch1(), build(t, 2, nil, idB))

		assert.Equal(t, map[hash.ResourceID]string{idA: "A1", idC: "C1"}, contents(t, c))
		_, ok := c.Lookup(idB)
		assert.False(t, ok)
		assert.Equal(t, -1, c.Origin(idB))
	})

	t.Run("Override", func(t *testing.T) {
		c := Build(base(), patch1(), build(t, 2, []def{{idB, "B3"}}))

		assert.Equal(t, map[hash.ResourceID]string{idA: "A1", idB: "B3", idC: "C1"}, contents(t, c))
		assert.Equal(t, 2, c.Origin(idB))
		assert.Equal(t, 1, c.Origin(idC))
		assert.Equal(t, 0, c.Origin(idA))
	})

	t.Run("Resurrection", func(t *testing.T) {
		c := Build(base(), build(t, 1, nil, idA), build(t, 2, []def{{idA, "A3"}}))

		assert.Equal(t, map[hash.ResourceID]string{idA: "A3", idB: "B1"}, contents(t, c))
	})

	t.Run("DeleteAndRedefineInOnePatch", func(t *testing.T) {
		c := Build(base(), build(t, 1, []def{{idA, "A2"}}, idA))

		assert.Equal(t, "A2", contents(t, c)[idA])
	})

	t.Run("DeleteUnknownID", func(t *testing.T) {
		c := Build(base(), build(t, 1, nil, idC))

		assert.Equal(t, 2, c.Len())
		assert.False(t, c.Contains(idC))
	})

	t.Run("BaseOnly", func(t *testing.T) {
		c := Build(base())
		assert.Equal(t, 2, c.Len())
		assert.Len(t, c.Packages(), 1)
	})

	t.Run("IDsSorted", func(t *testing.T) {
		c := Build(base(), patch1())
		ids := c.IDs()
		require.Len(t, ids, 3)
		for i := 1; i < len(ids); i++ {
			assert.Less(t, ids[i-1], ids[i])
		}
	})
}

func TestOpenFiles(t *testing.T) {
	dir := t.TempDir()

	basePath := filepath.Join(dir, "chunk0.rpkg")
	b := rpkg.NewBuilder()
	require.NoError(t, b.Add(rpkg.Resource{ID: idA, Type: rpkg.TypeTemplate, Data: []byte("A1")}))
	require.NoError(t, b.Add(rpkg.Resource{ID: idB, Type: rpkg.TypeTemplate, Data: []byte("B1")}))
	require.NoError(t, b.WriteFile(basePath))

	// Version 1 patches rely on the caller naming them as patches.
	patchPath := filepath.Join(dir, "chunk0patch1.rpkg")
	pb := rpkg.NewBuilder(rpkg.WithPatchLevel(1))
	require.NoError(t, pb.Delete(idA))
	require.NoError(t, pb.WriteFile(patchPath))

	c, err := OpenFiles(basePath, patchPath)
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, []hash.ResourceID{idB}, c.IDs())

	t.Run("MissingPatch", func(t *testing.T) {
		_, err := OpenFiles(basePath, filepath.Join(dir, "chunk0patch2.rpkg"))
		assert.Error(t, err)
	})
}
