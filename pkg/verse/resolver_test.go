package verse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verseforge/verseforge/pkg/types"
)

type fakeStore struct {
	verses    map[string]*types.Verse
	daily     *types.Verse
	touched   []string
	failDaily bool
	failAll   bool
}

func (f *fakeStore) GetVerse(_ context.Context, book string, chapter, verseNum int) (*types.Verse, error) {
	if f.failAll {
		return nil, types.E(types.CodeDatabaseQueryFailed, "store down")
	}
	key := normalize(book)
	for _, v := range f.verses {
		if normalize(v.Book) == key && v.Chapter == chapter && v.Verse == verseNum {
			return v, nil
		}
	}
	return nil, types.E(types.CodeNotFound, "verse not found")
}

func (f *fakeStore) NextDailyVerse(_ context.Context) (*types.Verse, error) {
	if f.failDaily || f.failAll {
		return nil, types.E(types.CodeDatabaseQueryFailed, "store down")
	}
	if f.daily == nil {
		return nil, types.E(types.CodeNotFound, "no verses")
	}
	return f.daily, nil
}

func (f *fakeStore) TouchVerse(_ context.Context, reference string, _ time.Time) error {
	if f.failAll {
		return types.E(types.CodeDatabaseQueryFailed, "store down")
	}
	f.touched = append(f.touched, reference)
	return nil
}

func (f *fakeStore) SearchVerses(_ context.Context, query string, _ int) ([]types.Verse, error) {
	if f.failAll {
		return nil, types.E(types.CodeDatabaseQueryFailed, "store down")
	}
	var out []types.Verse
	for _, v := range f.verses {
		out = append(out, *v)
	}
	return out, nil
}

func TestParseReference(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    *Ref
		wantErr bool
	}{
		{
			name:  "simple reference",
			input: "John 3:16",
			want:  &Ref{Book: "John", Chapter: 3, Verse: 16},
		},
		{
			name:  "numbered book",
			input: "1 Corinthians 13:4",
			want:  &Ref{Book: "1 Corinthians", Chapter: 13, Verse: 4},
		},
		{
			name:  "verse range",
			input: "Psalm 23:1-3",
			want:  &Ref{Book: "Psalm", Chapter: 23, Verse: 1, EndVerse: 3},
		},
		{
			name:  "surrounding whitespace",
			input: "  John 3:16  ",
			want:  &Ref{Book: "John", Chapter: 3, Verse: 16},
		},
		{
			name:  "multi-word book",
			input: "Song of Solomon 2:1",
			want:  &Ref{Book: "Song of Solomon", Chapter: 2, Verse: 1},
		},
		{name: "empty", input: "", wantErr: true},
		{name: "no chapter", input: "John", wantErr: true},
		{name: "missing colon", input: "John 3 16", wantErr: true},
		{name: "end verse not after start", input: "John 3:16-16", wantErr: true},
		{name: "end verse before start", input: "John 3:16-2", wantErr: true},
		{name: "numeric book only", input: "316 3:16", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseReference(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, types.CodeInvalidVerseReference, types.CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseReferenceTooLong(t *testing.T) {
	long := "Book "
	for len(long) < MaxReferenceLength {
		long += "name "
	}
	_, err := ParseReference(long + " 1:1")
	require.Error(t, err)
}

func TestGetVerseFromEmbedded(t *testing.T) {
	r := NewResolver(&fakeStore{failAll: true}, nil)

	// Embedded lookups never touch the store
	v, err := r.GetVerse(context.Background(), "john 3:16")
	require.NoError(t, err)
	assert.Equal(t, "John 3:16", v.Reference)
	assert.Contains(t, v.Text, "For God so loved the world")
}

func TestGetVerseFromStore(t *testing.T) {
	store := &fakeStore{verses: map[string]*types.Verse{
		"Obadiah 1:4": {Reference: "Obadiah 1:4", Book: "Obadiah", Chapter: 1, Verse: 4, Text: "Though thou exalt thyself as the eagle"},
	}}
	r := NewResolver(store, nil)

	v, err := r.GetVerse(context.Background(), "Obadiah 1:4")
	require.NoError(t, err)
	assert.Equal(t, "Obadiah 1:4", v.Reference)
}

func TestGetVerseNotFound(t *testing.T) {
	r := NewResolver(&fakeStore{}, nil)

	_, err := r.GetVerse(context.Background(), "Obadiah 1:4")
	require.Error(t, err)
	assert.True(t, types.IsNotFound(err))
}

func TestGetDailyVerseAdvancesRotation(t *testing.T) {
	store := &fakeStore{daily: &types.Verse{Reference: "Psalm 23:1", Book: "Psalm", Chapter: 23, Verse: 1}}
	r := NewResolver(store, nil)

	v, err := r.GetDailyVerse(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Psalm 23:1", v.Reference)
	assert.Equal(t, []string{"Psalm 23:1"}, store.touched)
}

func TestGetDailyVerseFallsBackWhenStoreDown(t *testing.T) {
	r := NewResolver(&fakeStore{failDaily: true}, nil)
	r.pick = func(int) int { return 0 }

	v, err := r.GetDailyVerse(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, v.Reference)
	assert.NotEmpty(t, v.Text)
}

func TestSearchDeduplicatesByReference(t *testing.T) {
	store := &fakeStore{verses: map[string]*types.Verse{
		// Same reference as an embedded verse plus a store-only one
		"John 3:16":   {Reference: "John 3:16", Book: "John", Chapter: 3, Verse: 16, Text: "For God so loved the world"},
		"Obadiah 1:4": {Reference: "Obadiah 1:4", Book: "Obadiah", Chapter: 1, Verse: 4, Text: "the world turns"},
	}}
	r := NewResolver(store, nil)

	results, err := r.Search(context.Background(), "world")
	require.NoError(t, err)

	refs := make(map[string]int)
	for _, v := range results {
		refs[normalize(v.Reference)]++
	}
	assert.Equal(t, 1, refs["john 3:16"])
	assert.Equal(t, 1, refs["obadiah 1:4"])
}

func TestSearchSurvivesStoreFailure(t *testing.T) {
	r := NewResolver(&fakeStore{failAll: true}, nil)

	results, err := r.Search(context.Background(), "shepherd")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "Psalm 23:1", results[0].Reference)
}

func TestSearchEmptyQuery(t *testing.T) {
	r := NewResolver(&fakeStore{}, nil)

	_, err := r.Search(context.Background(), "   ")
	require.Error(t, err)
	assert.Equal(t, types.CodeMissingRequiredField, types.CodeOf(err))
}
