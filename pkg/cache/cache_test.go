package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verseforge/verseforge/pkg/types"
)

type fakeSource struct {
	images map[string]*types.Image
	calls  int
}

func (f *fakeSource) GetImage(_ context.Context, id string) (*types.Image, error) {
	f.calls++
	if img, ok := f.images[id]; ok {
		return img, nil
	}
	return nil, types.E(types.CodeNotFound, "image %s not found", id)
}

func newTestCache(t *testing.T, source MetadataSource) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	if source == nil {
		source = &fakeSource{images: map[string]*types.Image{}}
	}
	return New(rdb, source), mr
}

func TestMetadataRoundTrip(t *testing.T) {
	c, _ := newTestCache(t, nil)
	ctx := context.Background()

	img := &types.Image{
		ID:               "1700000000000-abcd1234",
		VerseReference:   "John 3:16",
		VerseText:        "For God so loved the world",
		StylePreset:      types.StyleModern,
		Format:           types.FormatWebP,
		Tags:             []string{"daily-verse"},
		ModerationStatus: types.ModerationApproved,
	}

	c.SetMetadata(ctx, img.ID, img)

	got, err := c.GetMetadata(ctx, img.ID)
	require.NoError(t, err)
	assert.Equal(t, img.ID, got.ID)
	assert.Equal(t, img.VerseReference, got.VerseReference)
	assert.Equal(t, img.Tags, got.Tags)
}

func TestGetMetadataFallsBackToSource(t *testing.T) {
	source := &fakeSource{images: map[string]*types.Image{
		"img-1": {ID: "img-1", VerseReference: "Psalm 23:1"},
	}}
	c, _ := newTestCache(t, source)
	ctx := context.Background()

	got, err := c.GetMetadata(ctx, "img-1")
	require.NoError(t, err)
	assert.Equal(t, "Psalm 23:1", got.VerseReference)
	assert.Equal(t, 1, source.calls)

	// Second read is served from the hydrated cache
	_, err = c.GetMetadata(ctx, "img-1")
	require.NoError(t, err)
	assert.Equal(t, 1, source.calls)
}

func TestGetMetadataNotFound(t *testing.T) {
	c, _ := newTestCache(t, nil)

	_, err := c.GetMetadata(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, types.IsNotFound(err))
}

func TestInvalidateImage(t *testing.T) {
	c, _ := newTestCache(t, nil)
	ctx := context.Background()

	c.SetMetadata(ctx, "img-1", &types.Image{ID: "img-1"})
	c.InvalidateImage(ctx, "img-1")

	_, ok := c.PeekMetadata(ctx, "img-1")
	assert.False(t, ok)
}

func TestVerseKeysAreNormalised(t *testing.T) {
	c, _ := newTestCache(t, nil)
	ctx := context.Background()

	v := &types.Verse{Reference: "John 3:16", Text: "For God so loved the world"}
	c.SetVerse(ctx, "  John 3:16 ", v)

	got, ok := c.GetVerse(ctx, "JOHN 3:16")
	require.True(t, ok)
	assert.Equal(t, v.Text, got.Text)
}

func TestMetadataTTL(t *testing.T) {
	c, mr := newTestCache(t, nil)
	ctx := context.Background()

	c.SetMetadata(ctx, "img-1", &types.Image{ID: "img-1"})
	mr.FastForward(TTLMetadata + time.Minute)

	_, ok := c.PeekMetadata(ctx, "img-1")
	assert.False(t, ok)
}

func TestDailyVerse(t *testing.T) {
	c, mr := newTestCache(t, nil)
	ctx := context.Background()

	_, ok := c.GetDailyVerse(ctx)
	assert.False(t, ok)

	c.SetDailyVerse(ctx, "img-daily")
	id, ok := c.GetDailyVerse(ctx)
	require.True(t, ok)
	assert.Equal(t, "img-daily", id)

	mr.FastForward(TTLDailyVerse + time.Minute)
	_, ok = c.GetDailyVerse(ctx)
	assert.False(t, ok)
}

func TestConfigNamespace(t *testing.T) {
	c, _ := newTestCache(t, nil)
	ctx := context.Background()

	c.SetConfig(ctx, "moderation-blocklist", []string{"alpha", "beta"})

	var got []string
	require.True(t, c.GetConfig(ctx, "moderation-blocklist", &got))
	assert.Equal(t, []string{"alpha", "beta"}, got)

	c.ClearConfigCache(ctx)
	assert.False(t, c.GetConfig(ctx, "moderation-blocklist", &got))
}

func TestCacheFailureDegradesToSource(t *testing.T) {
	source := &fakeSource{images: map[string]*types.Image{
		"img-1": {ID: "img-1"},
	}}
	c, mr := newTestCache(t, source)

	// Redis down: reads still succeed via the authoritative source
	mr.Close()

	got, err := c.GetMetadata(context.Background(), "img-1")
	require.NoError(t, err)
	assert.Equal(t, "img-1", got.ID)
}
