package verse

import (
	"context"
	"fmt"
	"math/rand"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/verseforge/verseforge/pkg/log"
	"github.com/verseforge/verseforge/pkg/types"
)

// MaxReferenceLength bounds client-supplied references
const MaxReferenceLength = 100

// searchLimit caps combined search results
const searchLimit = 50

// referenceRe accepts "Book Chapter:Verse" with an optional leading book
// ordinal and an optional end verse: "1 John 4:19", "Psalm 23:1-3".
var referenceRe = regexp.MustCompile(`^((?:\d\s)?[A-Za-z][A-Za-z\s]*?)\s+(\d+):(\d+)(?:-(\d+))?$`)

// Ref is a parsed verse reference. EndVerse is zero when absent.
type Ref struct {
	Book     string
	Chapter  int
	Verse    int
	EndVerse int
}

// Reference renders the canonical form
func (r *Ref) Reference() string {
	if r.EndVerse > 0 {
		return fmt.Sprintf("%s %d:%d-%d", r.Book, r.Chapter, r.Verse, r.EndVerse)
	}
	return fmt.Sprintf("%s %d:%d", r.Book, r.Chapter, r.Verse)
}

// ParseReference parses a reference string. The same grammar backs the
// request validator, so a reference that validates always parses.
func ParseReference(s string) (*Ref, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil, types.E(types.CodeInvalidVerseReference, "verse reference is empty")
	}
	if len(trimmed) > MaxReferenceLength {
		return nil, types.E(types.CodeInvalidVerseReference, "verse reference exceeds %d characters", MaxReferenceLength)
	}

	m := referenceRe.FindStringSubmatch(trimmed)
	if m == nil {
		return nil, types.E(types.CodeInvalidVerseReference, "malformed verse reference %q", trimmed)
	}

	chapter, _ := strconv.Atoi(m[2])
	verseNum, _ := strconv.Atoi(m[3])
	if chapter < 1 || verseNum < 1 {
		return nil, types.E(types.CodeInvalidVerseReference, "chapter and verse must be positive")
	}

	ref := &Ref{
		Book:    strings.TrimSpace(m[1]),
		Chapter: chapter,
		Verse:   verseNum,
	}
	if m[4] != "" {
		end, _ := strconv.Atoi(m[4])
		if end <= verseNum {
			return nil, types.E(types.CodeInvalidVerseReference, "end verse must be greater than start verse")
		}
		ref.EndVerse = end
	}
	return ref, nil
}

// Store is the metastore surface the resolver depends on
type Store interface {
	GetVerse(ctx context.Context, book string, chapter, verseNum int) (*types.Verse, error)
	NextDailyVerse(ctx context.Context) (*types.Verse, error)
	TouchVerse(ctx context.Context, reference string, usedAt time.Time) error
	SearchVerses(ctx context.Context, query string, limit int) ([]types.Verse, error)
}

// VerseCache is the cache surface the resolver depends on
type VerseCache interface {
	GetVerse(ctx context.Context, ref string) (*types.Verse, bool)
	SetVerse(ctx context.Context, ref string, v *types.Verse)
}

// Resolver turns verse references into verse text and drives the daily
// rotation. Lookup order: embedded set, cache, metadata store.
type Resolver struct {
	store  Store
	cache  VerseCache
	logger zerolog.Logger

	// now and pick are overridable in tests
	now  func() time.Time
	pick func(n int) int

	byRef map[string]*types.Verse
}

// NewResolver creates a resolver over the embedded set plus the given
// store. cache may be nil (daily-verse command, tests).
func NewResolver(store Store, cache VerseCache) *Resolver {
	r := &Resolver{
		store:  store,
		cache:  cache,
		logger: log.WithComponent("verse"),
		now:    time.Now,
		pick:   rand.Intn,
		byRef:  make(map[string]*types.Verse, len(embedded)),
	}
	for i := range embedded {
		v := embedded[i]
		r.byRef[normalize(v.Reference)] = &v
	}
	return r
}

func normalize(ref string) string {
	return strings.ToLower(strings.TrimSpace(ref))
}

// GetVerse resolves a reference to a verse
func (r *Resolver) GetVerse(ctx context.Context, reference string) (*types.Verse, error) {
	ref, err := ParseReference(reference)
	if err != nil {
		return nil, err
	}

	canonical := fmt.Sprintf("%s %d:%d", ref.Book, ref.Chapter, ref.Verse)
	if v, ok := r.byRef[normalize(canonical)]; ok {
		return v, nil
	}

	if r.cache != nil {
		if v, ok := r.cache.GetVerse(ctx, canonical); ok {
			return v, nil
		}
	}

	v, err := r.store.GetVerse(ctx, ref.Book, ref.Chapter, ref.Verse)
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		r.cache.SetVerse(ctx, canonical, v)
	}
	return v, nil
}

// GetDailyVerse picks the next verse in the rotation and advances its
// counters. If the store is unreachable it falls back to a uniform random
// embedded verse and skips the rotation update.
func (r *Resolver) GetDailyVerse(ctx context.Context) (*types.Verse, error) {
	v, err := r.store.NextDailyVerse(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("daily verse pick falling back to embedded set")
		return r.randomEmbedded(), nil
	}

	if err := r.store.TouchVerse(ctx, v.Reference, r.now().UTC()); err != nil {
		// Rotation bookkeeping failure is not fatal; the verse still serves
		r.logger.Warn().Err(err).Str("reference", v.Reference).Msg("failed to advance verse rotation")
	}
	return v, nil
}

func (r *Resolver) randomEmbedded() *types.Verse {
	v := embedded[r.pick(len(embedded))]
	return &v
}

// Search performs a case-insensitive substring match across the embedded
// set and the store, de-duplicated by reference and capped at 50 results.
func (r *Resolver) Search(ctx context.Context, query string) ([]types.Verse, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, types.E(types.CodeMissingRequiredField, "search query is empty")
	}

	seen := make(map[string]bool)
	var results []types.Verse

	for i := range embedded {
		v := embedded[i]
		if strings.Contains(strings.ToLower(v.Reference), q) ||
			strings.Contains(strings.ToLower(v.Text), q) ||
			strings.Contains(strings.ToLower(v.Book), q) {
			seen[normalize(v.Reference)] = true
			results = append(results, v)
		}
	}

	stored, err := r.store.SearchVerses(ctx, query, searchLimit)
	if err != nil {
		// Embedded matches still serve when the store is down
		r.logger.Warn().Err(err).Str("query", query).Msg("store search failed")
	} else {
		for i := range stored {
			if !seen[normalize(stored[i].Reference)] {
				seen[normalize(stored[i].Reference)] = true
				results = append(results, stored[i])
			}
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Reference < results[j].Reference })
	if len(results) > searchLimit {
		results = results[:searchLimit]
	}
	return results, nil
}

// Embedded returns a copy of the compiled-in verse set, used by the
// migrate command to seed the store.
func Embedded() []types.Verse {
	out := make([]types.Verse, len(embedded))
	copy(out, embedded)
	return out
}
