package voice

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/antzucaro/matchr"
	"golang.org/x/sync/singleflight"

	"github.com/MrWong99/chattervc/internal/observe"
)

// suggestThreshold is the minimum Jaro-Winkler similarity for a "did you
// mean" hint.
const suggestThreshold = 0.8

// index is one immutable catalog snapshot.
type index struct {
	// byKey maps lowercase name and lowercase id to the same record.
	byKey map[string]*Record

	// records holds each distinct voice once, in scan order.
	records []*Record

	// listing is the display listing, sentinel first.
	listing []Entry
}

func newIndex(records []*Record) *index {
	idx := &index{
		byKey:   make(map[string]*Record, 2*len(records)),
		records: records,
		listing: make([]Entry, 0, len(records)+1),
	}
	idx.listing = append(idx.listing, Entry{ID: RandomID, Name: RandomName})
	for _, r := range records {
		idx.byKey[strings.ToLower(r.Name)] = r
		idx.byKey[strings.ToLower(r.ID)] = r
		idx.listing = append(idx.listing, Entry{ID: r.ID, Name: r.Name})
	}
	return idx
}

// Catalog is the voice catalog for one voices root. All methods are safe for
// concurrent use. Reads work on the current snapshot without locking; scans
// are serialised and concurrent [Catalog.Refresh] calls share one scan.
type Catalog struct {
	root    string
	metrics *observe.Metrics
	intn    func(n int) int

	current atomic.Pointer[index]
	scanMu  sync.Mutex
	group   singleflight.Group
}

// Option configures a [Catalog].
type Option func(*Catalog)

// WithMetrics records scans on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Catalog) { c.metrics = m }
}

// WithRand replaces the random source used for the "random" selector. intn
// must return a value in [0, n).
func WithRand(intn func(n int) int) Option {
	return func(c *Catalog) { c.intn = intn }
}

// NewCatalog creates an empty catalog rooted at root. Call [Catalog.Scan] to
// populate it.
func NewCatalog(root string, opts ...Option) *Catalog {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	c := &Catalog{root: root, intn: rand.IntN}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	c.current.Store(newIndex(nil))
	return c
}

// Root returns the absolute voices root.
func (c *Catalog) Root() string { return c.root }

// Scan rebuilds the index from disk and swaps it in. A missing root yields an
// empty catalog. Folders without reference audio are skipped.
func (c *Catalog) Scan(ctx context.Context) error {
	c.scanMu.Lock()
	defer c.scanMu.Unlock()

	records, err := c.walk(ctx)
	if err != nil {
		c.metrics.RecordCatalogScan(ctx, "error", 0)
		return err
	}
	c.current.Store(newIndex(records))
	c.metrics.RecordCatalogScan(ctx, "ok", len(records))
	observe.Logger(ctx).Debug("voice catalog scanned", "root", c.root, "voices", len(records))
	return nil
}

func (c *Catalog) walk(ctx context.Context) ([]*Record, error) {
	entries, err := os.ReadDir(c.root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("voice: read root %q: %w", c.root, err)
	}
	// os.ReadDir already sorts by name.
	var records []*Record
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !isDir(c.root, e) {
			continue
		}
		rec, ok, err := inspectFolder(filepath.Join(c.root, e.Name()))
		if err != nil {
			slog.Warn("voice: skipping unreadable folder", "folder", e.Name(), "err", err)
			continue
		}
		if !ok {
			continue
		}
		records = append(records, &rec)
	}
	return records, nil
}

// Refresh rescans the root and returns the new listing. Callers arriving
// while a refresh is in flight wait for it and share its result.
func (c *Catalog) Refresh(ctx context.Context) ([]Entry, error) {
	_, err, _ := c.group.Do("scan", func() (any, error) {
		return nil, c.Scan(context.WithoutCancel(ctx))
	})
	if err != nil {
		return nil, err
	}
	return c.List(), nil
}

// List returns a copy of the display listing. The first entry is always the
// random sentinel.
func (c *Catalog) List() []Entry {
	return append([]Entry(nil), c.current.Load().listing...)
}

// Len returns the number of distinct indexed voices.
func (c *Catalog) Len() int {
	return len(c.current.Load().records)
}

// Resolve maps a selector to a voice. Matching is case-insensitive against
// names and ids. "random" picks uniformly among indexed voices. Anything else
// is tried as a raw folder under the root, which does not require a prior
// scan. Failures are always [ErrNotFound].
func (c *Catalog) Resolve(ctx context.Context, selector string) (Record, error) {
	trimmed := strings.TrimSpace(selector)
	key := strings.ToLower(trimmed)
	idx := c.current.Load()

	if key == RandomID {
		if len(idx.records) == 0 {
			return Record{}, &NotFoundError{Selector: selector, Reason: "no voices found in " + c.root}
		}
		return *idx.records[c.intn(len(idx.records))], nil
	}
	if rec, ok := idx.byKey[key]; ok {
		return *rec, nil
	}

	folder, ok := c.folderFor(trimmed)
	if !ok {
		return Record{}, c.notFound(idx, selector, "outside the voices root")
	}
	info, err := os.Stat(folder)
	if err != nil || !info.IsDir() {
		return Record{}, c.notFound(idx, selector, "")
	}
	rec, ok, err := inspectFolder(folder)
	if err != nil {
		return Record{}, c.notFound(idx, selector, err.Error())
	}
	if !ok {
		return Record{}, &NotFoundError{Selector: selector, Reason: "no audio prompt file found in " + folder}
	}
	observe.Logger(ctx).Debug("voice resolved from raw folder", "folder", folder)
	return rec, nil
}

// folderFor maps a raw selector to a folder path inside the root. The id form
// voices/<name> is accepted.
func (c *Catalog) folderFor(selector string) (string, bool) {
	if len(selector) >= len(IDPrefix) && strings.EqualFold(selector[:len(IDPrefix)], IDPrefix) {
		selector = selector[len(IDPrefix):]
	}
	if selector == "" {
		return "", false
	}
	folder := filepath.Join(c.root, filepath.FromSlash(selector))
	rel, err := filepath.Rel(c.root, folder)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return folder, true
}

func (c *Catalog) notFound(idx *index, selector, reason string) error {
	if reason == "" {
		reason = "not present under " + c.root
	}
	return &NotFoundError{
		Selector:   selector,
		Reason:     reason,
		Suggestion: suggest(idx, selector),
	}
}

// suggest returns the indexed voice name most similar to selector, or "" when
// none is similar enough.
func suggest(idx *index, selector string) string {
	needle := strings.ToLower(strings.TrimSpace(selector))
	needle = strings.TrimPrefix(needle, IDPrefix)
	if needle == "" {
		return ""
	}
	type scored struct {
		name  string
		score float64
	}
	var best []scored
	for _, r := range idx.records {
		s := matchr.JaroWinkler(needle, strings.ToLower(r.Name), false)
		if s > suggestThreshold {
			best = append(best, scored{r.Name, s})
		}
	}
	if len(best) == 0 {
		return ""
	}
	sort.SliceStable(best, func(i, j int) bool { return best[i].score > best[j].score })
	return best[0].name
}
