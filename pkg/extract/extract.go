// Package extract materializes the live resources of a patch chain in
// parallel and reports the outcome of every resource.
//
// A resource that fails to decrypt, decompress or decode is recorded in
// the report and never stops its siblings. Cancelling the context stops
// dispatching new resources; resources already running finish.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/zeebo/blake3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/goopsie/glacierFileTools/pkg/hash"
	"github.com/goopsie/glacierFileTools/pkg/patch"
	"github.com/goopsie/glacierFileTools/pkg/resource"
	"github.com/goopsie/glacierFileTools/pkg/rpkg"
	"github.com/goopsie/glacierFileTools/pkg/texture"
)

// Item is the outcome of one resource.
type Item struct {
	ID         hash.ResourceID
	Path       string // empty when the id has no known path
	Type       rpkg.TypeTag
	Package    string // name of the package holding the definition
	Origin     int    // index of that package in the chain
	Flags      rpkg.Flags
	StoredSize int
	Size       int
	Digest     [32]byte // BLAKE3 of the decoded bytes
	Texture    *texture.Descriptor
	Err        error
}

// Name returns the resource's path, or its id when the path is unknown.
func (it Item) Name() string {
	if it.Path != "" {
		return it.Path
	}
	return it.ID.String()
}

// Output is what a Sink receives for each successfully materialized resource.
type Output struct {
	Item     *Item
	Resource *resource.Decoded

	// Header and Image are set for decoded textures.
	Header *texture.Header
	Image  *texture.Image
}

// Sink consumes extracted resources. It is called from several goroutines
// at once. An error marks the resource as failed.
type Sink func(ctx context.Context, out *Output) error

// Report summarizes a run. Items are ordered by id.
type Report struct {
	Items     []Item
	Extracted int
	Failed    int
	Bytes     int64
	Elapsed   time.Duration
}

// Failures returns the items that failed.
func (r *Report) Failures() []Item {
	var failed []Item
	for _, it := range r.Items {
		if it.Err != nil {
			failed = append(failed, it)
		}
	}
	return failed
}

// Err joins the errors of every failed item, or returns nil.
func (r *Report) Err() error {
	var errs []error
	for _, it := range r.Failures() {
		errs = append(errs, fmt.Errorf("%s: %w", it.Name(), it.Err))
	}
	return errors.Join(errs...)
}

// Option configures Run.
type Option func(*runner)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *runner) {
		r.logger = logger
	}
}

// WithSink sets the consumer of extracted resources.
func WithSink(sink Sink) Option {
	return func(r *runner) {
		r.sink = sink
	}
}

// WithResolver names resources in the report. It takes precedence over the
// configured hash list.
func WithResolver(names resource.Resolver) Option {
	return func(r *runner) {
		r.names = names
	}
}

type runner struct {
	chain   *patch.Chain
	cfg     Config
	logger  *slog.Logger
	sink    Sink
	names   resource.Resolver
	version texture.Version
	budget  *semaphore.Weighted
}

// Run materializes every live resource of chain that cfg selects.
//
// The returned error is non-nil only when the run itself could not start
// or was cancelled; per-resource failures are in the report.
func Run(ctx context.Context, chain *patch.Chain, cfg Config, opts ...Option) (*Report, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	allowed, _ := cfg.typeFilter()
	version, _ := texture.ParseVersion(cfg.TextureVersion)

	r := &runner{chain: chain, cfg: cfg, logger: slog.Default(), version: version}
	for _, opt := range opts {
		opt(r)
	}
	if r.names == nil && cfg.HashList != "" {
		names, stats, err := hash.LoadFile(cfg.HashList)
		if err != nil {
			return nil, fmt.Errorf("load hash list: %w", err)
		}
		r.logger.Info("loaded hash list",
			"path", cfg.HashList,
			"loaded", stats.Loaded,
			"malformed", stats.Malformed,
		)
		r.names = names
	}
	if cfg.MemoryBudget > 0 {
		r.budget = semaphore.NewWeighted(cfg.MemoryBudget)
	}

	var ids []hash.ResourceID
	for _, id := range chain.IDs() {
		loc, _ := chain.Lookup(id)
		if allowed == nil || allowed[loc.Entry.Type] {
			ids = append(ids, id)
		}
	}

	start := time.Now()
	items := make([]Item, len(ids))
	done := make([]bool, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i, id := range ids {
		if gctx.Err() != nil {
			break
		}
		loc, _ := chain.Lookup(id)
		g.Go(func() error {
			item, err := r.extract(gctx, loc)
			if err != nil {
				return err
			}
			items[i], done[i] = item, true
			return nil
		})
	}
	runErr := g.Wait()
	if runErr == nil {
		runErr = ctx.Err()
	}

	report := &Report{Elapsed: time.Since(start)}
	for i, item := range items {
		if !done[i] {
			continue
		}
		report.Items = append(report.Items, item)
		if item.Err != nil {
			report.Failed++
			continue
		}
		report.Extracted++
		report.Bytes += int64(item.Size)
	}

	r.logger.Info("extraction finished",
		"extracted", report.Extracted,
		"failed", report.Failed,
		"skipped", len(ids)-len(report.Items),
		"bytes", report.Bytes,
		"elapsed", report.Elapsed,
	)
	return report, runErr
}

// extract processes one resource. Resource failures are returned in the
// item; the error is only set when the context ends while waiting for
// memory budget.
func (r *runner) extract(ctx context.Context, loc patch.Located) (Item, error) {
	e := loc.Entry
	item := Item{
		ID:         e.ID,
		Type:       e.Type,
		Package:    loc.Package.Name(),
		Origin:     loc.Index,
		Flags:      e.Flags,
		StoredSize: int(e.PayloadSize()),
		Size:       int(e.DecompressedSize),
	}
	if r.names != nil {
		if path, ok := r.names.Resolve(e.ID); ok {
			item.Path = path
		}
	}

	if r.budget != nil {
		cost := min(max(1, int64(e.DecompressedSize)+int64(e.PayloadSize())), r.cfg.MemoryBudget)
		if err := r.budget.Acquire(ctx, cost); err != nil {
			return item, err
		}
		defer r.budget.Release(cost)
	}

	item.Err = r.process(ctx, loc, &item)
	if item.Err != nil {
		r.logger.Warn("resource extraction failed",
			"id", item.ID.String(),
			"type", item.Type.String(),
			"package", item.Package,
			"error", item.Err,
		)
	}
	return item, nil
}

func (r *runner) process(ctx context.Context, loc patch.Located, item *Item) error {
	d, err := resource.Materialize(loc.Package, loc.Entry)
	if err != nil {
		return err
	}
	item.Digest = blake3.Sum256(d.Data)

	out := &Output{Item: item, Resource: d}
	if r.cfg.DecodeTextures {
		h, img, err := r.decodeTexture(d)
		if err != nil {
			return fmt.Errorf("decode texture: %w", err)
		}
		if h != nil {
			item.Texture = &h.Descriptor
			out.Header, out.Image = h, img
		}
	}

	if r.sink != nil {
		if err := r.sink(ctx, out); err != nil {
			return fmt.Errorf("sink: %w", err)
		}
	}
	return nil
}

// decodeTexture returns nil for resources that are not decodable textures.
// H3 texture data carries no header and is decoded through its TEXT.
func (r *runner) decodeTexture(d *resource.Decoded) (*texture.Header, *texture.Image, error) {
	var opts []texture.HeaderOption
	switch d.Type {
	case rpkg.TypeTexture:
		if r.version == texture.H3 {
			texd, err := r.textureData(d)
			if err != nil {
				return nil, nil, err
			}
			if texd != nil {
				opts = append(opts, texture.WithTexD(texd))
			}
		}
	case rpkg.TypeTextureData:
		if r.version == texture.H3 {
			return nil, nil, nil
		}
		opts = append(opts, texture.IsTexD())
	default:
		return nil, nil, nil
	}

	h, err := texture.ParseHeader(d.Data, r.version, opts...)
	if err != nil {
		return nil, nil, err
	}
	img, err := texture.Decode(h.Pixels, h.Descriptor)
	if err != nil {
		return nil, nil, err
	}
	return h, img, nil
}

// textureData materializes the TEXD resource a TEXT references, if the
// chain holds one.
func (r *runner) textureData(d *resource.Decoded) ([]byte, error) {
	for _, ref := range d.References {
		loc, ok := r.chain.Lookup(ref.ID)
		if !ok || loc.Entry.Type != rpkg.TypeTextureData {
			continue
		}
		texd, err := resource.Materialize(loc.Package, loc.Entry)
		if err != nil {
			return nil, fmt.Errorf("texture data %s: %w", ref.ID, err)
		}
		return texd.Data, nil
	}
	return nil, nil
}

