// Package patch merges a base package and its ordered patch packages into
// one resource namespace.
//
// Packages are folded in priority order: the base first, then each patch
// in ascending order. Within a patch the tombstone list is applied before
// the patch's own entries, so a patch that both deletes and redefines an
// id keeps its definition. A later patch can resurrect a deleted id.
package patch

import (
	"errors"
	"fmt"
	"slices"

	"github.com/goopsie/glacierFileTools/pkg/hash"
	"github.com/goopsie/glacierFileTools/pkg/rpkg"
)

// Located is the authoritative definition of a resource in a chain.
type Located struct {
	Package *rpkg.Package
	Entry   *rpkg.Entry
	Index   int // position of Package in the chain, 0 for the base
}

// ReadRaw reads the located entry's stored payload.
func (l Located) ReadRaw() ([]byte, error) {
	return l.Package.ReadRaw(l.Entry)
}

// slot is one value of the fold. Deleted slots stay in the map until the
// fold finishes so a later patch sees them as explicit tombstones.
type slot struct {
	located Located
	deleted bool
}

// Chain is the merged view of a base package and its patches. It is
// immutable after Build and safe for concurrent lookups.
type Chain struct {
	packages []*rpkg.Package
	view     map[hash.ResourceID]Located
	ids      []hash.ResourceID
}

// Build folds base and patches, in ascending priority, into a chain.
func Build(base *rpkg.Package, patches ...*rpkg.Package) *Chain {
	packages := append([]*rpkg.Package{base}, patches...)

	fold := make(map[hash.ResourceID]slot, base.Len())
	for i, p := range packages {
		if i > 0 {
			for _, t := range p.Tombstones() {
				fold[t.ID] = slot{located: Located{Package: p, Entry: t, Index: i}, deleted: true}
			}
		}
		for _, e := range p.Entries() {
			fold[e.ID] = slot{
				located: Located{Package: p, Entry: e, Index: i},
				deleted: e.Flags.Has(rpkg.FlagDeletion),
			}
		}
	}

	c := &Chain{
		packages: packages,
		view:     make(map[hash.ResourceID]Located, len(fold)),
	}
	for id, s := range fold {
		if s.deleted {
			continue
		}
		c.view[id] = s.located
		c.ids = append(c.ids, id)
	}
	slices.Sort(c.ids)
	return c
}

// OpenFiles opens base and each patch file and builds a chain over them.
// Patch files are opened with rpkg.AsPatch. On failure every file opened
// so far is closed.
func OpenFiles(base string, patches ...string) (*Chain, error) {
	opened := make([]*rpkg.Package, 0, len(patches)+1)
	closeAll := func() {
		for _, p := range opened {
			p.Close()
		}
	}

	p, err := rpkg.OpenFile(base)
	if err != nil {
		return nil, fmt.Errorf("open base: %w", err)
	}
	opened = append(opened, p)

	for _, path := range patches {
		p, err := rpkg.OpenFile(path, rpkg.AsPatch())
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("open patch: %w", err)
		}
		opened = append(opened, p)
	}

	return Build(opened[0], opened[1:]...), nil
}

// Lookup returns the authoritative definition of id.
func (c *Chain) Lookup(id hash.ResourceID) (Located, bool) {
	l, ok := c.view[id]
	return l, ok
}

// Contains reports whether id is live in the merged view.
func (c *Chain) Contains(id hash.ResourceID) bool {
	_, ok := c.view[id]
	return ok
}

// Origin returns the chain index of the package defining id, or -1.
func (c *Chain) Origin(id hash.ResourceID) int {
	if l, ok := c.view[id]; ok {
		return l.Index
	}
	return -1
}

// IDs returns the live ids in ascending order. The slice must not be modified.
func (c *Chain) IDs() []hash.ResourceID { return c.ids }

// Len returns the number of live ids.
func (c *Chain) Len() int { return len(c.ids) }

// Packages returns the chain's packages, base first.
func (c *Chain) Packages() []*rpkg.Package { return c.packages }

// Close closes every package in the chain.
func (c *Chain) Close() error {
	var errs []error
	for _, p := range c.packages {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", p.Name(), err))
		}
	}
	return errors.Join(errs...)
}
