package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verseforge/verseforge/pkg/blob"
	"github.com/verseforge/verseforge/pkg/config"
	"github.com/verseforge/verseforge/pkg/imagestore"
	"github.com/verseforge/verseforge/pkg/model"
	"github.com/verseforge/verseforge/pkg/moderation"
	"github.com/verseforge/verseforge/pkg/ratelimit"
	"github.com/verseforge/verseforge/pkg/telemetry"
	"github.com/verseforge/verseforge/pkg/types"
	"github.com/verseforge/verseforge/pkg/validate"
	"github.com/verseforge/verseforge/pkg/verse"
)

var pngBytes = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 1, 2, 3}

// fakeVerseStore backs the resolver; the embedded set covers lookups
type fakeVerseStore struct{}

func (fakeVerseStore) GetVerse(context.Context, string, int, int) (*types.Verse, error) {
	return nil, types.E(types.CodeNotFound, "verse not found")
}

func (fakeVerseStore) NextDailyVerse(context.Context) (*types.Verse, error) {
	return nil, types.E(types.CodeNotFound, "no verses")
}

func (fakeVerseStore) TouchVerse(context.Context, string, time.Time) error { return nil }

func (fakeVerseStore) SearchVerses(context.Context, string, int) ([]types.Verse, error) {
	return nil, nil
}

// fakeModel serves deterministic bytes and counts invocations
type fakeModel struct {
	calls atomic.Int64
	err   error
}

func (f *fakeModel) Run(_ context.Context, req model.Request) (*model.Result, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &model.Result{Image: pngBytes, Width: 1024, Height: 1024}, nil
}

// fakeMeta implements the metadata row surface
type fakeMeta struct {
	mu   sync.Mutex
	rows map[string]*types.Image
}

func newFakeMeta() *fakeMeta { return &fakeMeta{rows: make(map[string]*types.Image)} }

func (f *fakeMeta) InsertImage(_ context.Context, img *types.Image) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *img
	f.rows[img.ID] = &cp
	return nil
}

func (f *fakeMeta) GetImage(_ context.Context, id string) (*types.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	img, ok := f.rows[id]
	if !ok {
		return nil, types.E(types.CodeNotFound, "image %s not found", id)
	}
	cp := *img
	return &cp, nil
}

func (f *fakeMeta) DeleteImage(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, id)
	return nil
}

func (f *fakeMeta) InsertFlag(_ context.Context, imageID, reason string, at time.Time) (*types.ModerationQueueEntry, error) {
	return &types.ModerationQueueEntry{ID: 1, ImageID: imageID, FlaggedReason: reason, FlaggedAt: at}, nil
}

func (f *fakeMeta) PendingFlags(context.Context, int) ([]types.ModerationQueueEntry, error) {
	return nil, nil
}

func (f *fakeMeta) CloseOldestFlag(context.Context, string, string, types.ModerationAction, time.Time) error {
	return types.E(types.CodeNotFound, "no open flag")
}

func (f *fakeMeta) UpdateModerationStatus(_ context.Context, imageID string, status types.ModerationStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	img, ok := f.rows[imageID]
	if !ok {
		return types.E(types.CodeNotFound, "image %s not found", imageID)
	}
	img.ModerationStatus = status
	return nil
}

func (f *fakeMeta) ClearBlobKey(_ context.Context, imageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if img, ok := f.rows[imageID]; ok {
		img.BlobKey = ""
	}
	return nil
}

// fakeCache implements both the handler cache view and the image
// store's metadata cache.
type fakeCache struct {
	mu       sync.Mutex
	metadata map[string]*types.Image
	daily    string
	source   *fakeMeta
}

func newFakeCache(source *fakeMeta) *fakeCache {
	return &fakeCache{metadata: make(map[string]*types.Image), source: source}
}

func (f *fakeCache) PeekMetadata(_ context.Context, id string) (*types.Image, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	img, ok := f.metadata[id]
	return img, ok
}

func (f *fakeCache) GetMetadata(ctx context.Context, id string) (*types.Image, error) {
	if img, ok := f.PeekMetadata(ctx, id); ok {
		return img, nil
	}
	return f.source.GetImage(ctx, id)
}

func (f *fakeCache) SetMetadata(_ context.Context, id string, img *types.Image) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metadata[id] = img
}

func (f *fakeCache) InvalidateImage(_ context.Context, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.metadata, id)
}

func (f *fakeCache) GetDailyVerse(context.Context) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.daily, f.daily != ""
}

func (f *fakeCache) SetDailyVerse(_ context.Context, imageID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.daily = imageID
}

type fixture struct {
	server  *Server
	handler http.Handler
	meta    *fakeMeta
	cache   *fakeCache
	blobs   *blob.Memory
	model   *fakeModel
	cfg     *config.Config
}

func newFixture(t *testing.T, mutate ...func(*config.Config)) *fixture {
	t.Helper()

	cfg := config.Default()
	cfg.AdminToken = "admin-token"
	cfg.PublicBaseURL = "https://img.example.com"
	for _, m := range mutate {
		m(cfg)
	}

	meta := newFakeMeta()
	cache := newFakeCache(meta)
	blobs := blob.NewMemory()
	images := imagestore.New(blobs, meta, cache, cfg.PublicBaseURL, cfg.SigningSecret)
	client := &fakeModel{}

	limiter := ratelimit.NewCoordinator(ratelimit.Limits{
		Anonymous:     cfg.RateLimitAnonymous,
		Authenticated: cfg.RateLimitAuthenticated,
	})
	t.Cleanup(limiter.Stop)

	tracker := telemetry.NewTracker(telemetry.DefaultQuotas)
	t.Cleanup(tracker.Stop)

	srv := NewServer(
		cfg,
		validate.New(nil),
		verse.NewResolver(fakeVerseStore{}, nil),
		client,
		moderation.NewGate(cfg.EnableContentModeration),
		moderation.NewService(meta, blobs, cache),
		images,
		cache,
		limiter,
		tracker,
	)
	return &fixture{
		server:  srv,
		handler: srv.Router(),
		meta:    meta,
		cache:   cache,
		blobs:   blobs,
		model:   client,
		cfg:     cfg,
	}
}

func (f *fixture) post(t *testing.T, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) get(t *testing.T, path string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorDetail {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func generateBody() types.GenerateRequest {
	return types.GenerateRequest{
		VerseReference: "John 3:16",
		VerseText:      "For God so loved the world, that he gave his only begotten Son",
		StylePreset:    types.StyleModern,
		RequestID:      "test-request-1",
	}
}

func TestGenerateSuccess(t *testing.T) {
	f := newFixture(t)

	rec := f.post(t, "/api/generate", generateBody(), map[string]string{
		"Origin": "http://localhost:3000",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	var resp types.GenerateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "test-request-1", resp.ImageID)
	assert.Contains(t, resp.ImageURL, resp.ImageID)
	assert.True(t, strings.HasPrefix(resp.WhatsAppShareURL, "https://wa.me/?text="))
	assert.Equal(t, "John 3:16", resp.VerseReference)

	// The blob and the metadata row both exist
	assert.Equal(t, 1, f.blobs.Len())
	stored, err := f.meta.GetImage(context.Background(), resp.ImageID)
	require.NoError(t, err)
	assert.Equal(t, types.ModerationApproved, stored.ModerationStatus)
	assert.Equal(t, types.FormatPNG, stored.Format)
}

func TestGenerateWhatsAppTextRoundTrips(t *testing.T) {
	f := newFixture(t)

	rec := f.post(t, "/api/generate", generateBody(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp types.GenerateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	u, err := url.Parse(resp.WhatsAppShareURL)
	require.NoError(t, err)
	text := u.Query().Get("text")
	assert.Equal(t, `"`+resp.VerseText+`" - `+resp.VerseReference+"\n"+resp.ImageURL, text)
}

func TestGenerateEmbeddedVerseLookup(t *testing.T) {
	f := newFixture(t)

	body := types.GenerateRequest{VerseReference: "Psalm 23:1"}
	rec := f.post(t, "/api/generate", body, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp types.GenerateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.VerseText, "shepherd")
}

func TestGenerateUnknownVerse(t *testing.T) {
	f := newFixture(t)

	rec := f.post(t, "/api/generate", types.GenerateRequest{VerseReference: "Obadiah 1:4"}, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, types.CodeNotFound, decodeError(t, rec).Code)
}

func TestGenerateMalformedJSON(t *testing.T) {
	f := newFixture(t)

	rec := f.post(t, "/api/generate", "invalid json", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, types.CodeInvalidRequestFormat, decodeError(t, rec).Code)
}

func TestGenerateMissingReference(t *testing.T) {
	f := newFixture(t)

	rec := f.post(t, "/api/generate", types.GenerateRequest{}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	detail := decodeError(t, rec)
	assert.Equal(t, types.CodeMissingRequiredField, detail.Code)
	assert.NotEmpty(t, detail.RequestID)
}

func TestGenerateRateLimited(t *testing.T) {
	f := newFixture(t)

	const workers = 10
	codes := make(chan int, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(n int) {
			defer wg.Done()
			body := generateBody()
			body.RequestID = "" // distinct artefacts
			rec := f.post(t, "/api/generate", body, map[string]string{
				"CF-Connecting-IP": "192.168.1.1",
			})
			if rec.Code == http.StatusTooManyRequests {
				assert.NotEmpty(t, rec.Header().Get("Retry-After"))
				detail := decodeError(t, rec)
				assert.Equal(t, types.CodeRateLimited, detail.Code)
				assert.GreaterOrEqual(t, detail.RetryAfter, 1)
			}
			codes <- rec.Code
		}(i)
	}
	wg.Wait()
	close(codes)

	var ok, limited int
	for code := range codes {
		switch code {
		case http.StatusOK:
			ok++
		case http.StatusTooManyRequests:
			limited++
		}
	}
	assert.Equal(t, 5, ok)
	assert.Equal(t, 5, limited)
}

func TestGenerateIdempotent(t *testing.T) {
	f := newFixture(t)

	body := generateBody()
	body.RequestID = "idempotent-request-123"

	first := f.post(t, "/api/generate", body, nil)
	require.Equal(t, http.StatusOK, first.Code)

	second := f.post(t, "/api/generate", body, nil)
	require.Equal(t, http.StatusOK, second.Code)

	var a, b types.GenerateResponse
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &a))
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &b))
	assert.Equal(t, a.ImageID, b.ImageID)
	assert.Equal(t, "idempotent-request-123", a.ImageID)

	// The duplicate never reached the model
	assert.Equal(t, int64(1), f.model.calls.Load())
}

func TestGenerateIdempotentAfterCacheEviction(t *testing.T) {
	f := newFixture(t)

	body := generateBody()
	body.RequestID = "idempotent-request-456"

	first := f.post(t, "/api/generate", body, nil)
	require.Equal(t, http.StatusOK, first.Code)

	// The cache is non-authoritative; the metadata row must still
	// short-circuit the duplicate after the entry is gone.
	f.cache.InvalidateImage(context.Background(), "idempotent-request-456")

	second := f.post(t, "/api/generate", body, nil)
	require.Equal(t, http.StatusOK, second.Code)

	var a, b types.GenerateResponse
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &a))
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &b))
	assert.Equal(t, a.ImageID, b.ImageID)
	assert.Equal(t, int64(1), f.model.calls.Load())
}

func TestGenerateContentBlocked(t *testing.T) {
	f := newFixture(t)

	body := generateBody()
	body.CustomPrompt = "a shining knife on the altar"
	rec := f.post(t, "/api/generate", body, nil)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	assert.Equal(t, types.CodeContentBlocked, decodeError(t, rec).Code)

	// Nothing was stored
	assert.Equal(t, 0, f.blobs.Len())
}

func TestGenerateModelTimeout(t *testing.T) {
	f := newFixture(t)
	f.model.err = types.E(types.CodeAITimeout, "inference exceeded deadline")

	rec := f.post(t, "/api/generate", generateBody(), nil)
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Equal(t, types.CodeAITimeout, decodeError(t, rec).Code)
}

func TestImageMetadata(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusOK, f.post(t, "/api/generate", generateBody(), nil).Code)

	rec := f.get(t, "/api/images/test-request-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		ImageID  string      `json:"imageId"`
		ImageURL string      `json:"imageUrl"`
		Metadata types.Image `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "test-request-1", body.ImageID)
	assert.Contains(t, body.ImageURL, body.Metadata.BlobKey)
	assert.Equal(t, "John 3:16", body.Metadata.VerseReference)
}

func TestImageMetadataNotFound(t *testing.T) {
	f := newFixture(t)

	rec := f.get(t, "/api/images/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestImageDataWithConditionalGet(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusOK, f.post(t, "/api/generate", generateBody(), nil).Code)

	rec := f.get(t, "/api/images/test-request-1/data", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, pngBytes, rec.Body.Bytes())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "public, max-age=31536000, immutable", rec.Header().Get("Cache-Control"))
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)

	cond := f.get(t, "/api/images/test-request-1/data", map[string]string{"If-None-Match": etag})
	assert.Equal(t, http.StatusNotModified, cond.Code)
	assert.Empty(t, cond.Body.Bytes())
}

func TestImageShareRedirect(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusOK, f.post(t, "/api/generate", generateBody(), nil).Code)

	rec := f.get(t, "/api/images/test-request-1/share", nil)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "https://wa.me/?text="))
}

func TestDailyVerse(t *testing.T) {
	f := newFixture(t)

	// Nothing generated yet
	rec := f.get(t, "/api/daily-verse", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.Equal(t, http.StatusOK, f.post(t, "/api/generate", generateBody(), nil).Code)
	f.cache.SetDailyVerse(context.Background(), "test-request-1")

	rec = f.get(t, "/api/daily-verse", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "test-request-1", body["imageId"])
	assert.Equal(t, "John 3:16", body["verseReference"])
	assert.NotEmpty(t, body["generatedAt"])
}

func TestVerseSearch(t *testing.T) {
	f := newFixture(t)

	rec := f.get(t, "/api/verses/search?q=shepherd", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Results []types.Verse `json:"results"`
		Count   int           `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.Results)
	assert.Equal(t, len(body.Results), body.Count)

	rec = f.get(t, "/api/verses/search", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCORSPreflightReturns204(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/generate", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "86400", rec.Header().Get("Access-Control-Max-Age"))
}

func TestCORSDisallowedOrigin(t *testing.T) {
	f := newFixture(t)

	rec := f.post(t, "/api/generate", generateBody(), map[string]string{
		"Origin": "http://evil.com",
	})
	// The request is processed, but no allow-origin header is echoed
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestAdminModerateAuth(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusOK, f.post(t, "/api/generate", generateBody(), nil).Code)

	body := types.ModerateRequest{ImageID: "test-request-1", Action: types.ActionReject}

	rec := f.post(t, "/api/admin/moderate", body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.post(t, "/api/admin/moderate", body, map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.post(t, "/api/admin/moderate", body, map[string]string{"Authorization": "Bearer admin-token"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Rejection removed the blob and stripped the key
	assert.Equal(t, 0, f.blobs.Len())
	img, err := f.meta.GetImage(context.Background(), "test-request-1")
	require.NoError(t, err)
	assert.Equal(t, types.ModerationRejected, img.ModerationStatus)
	assert.Empty(t, img.BlobKey)

	// The data path now reads as absent
	assert.Equal(t, http.StatusNotFound, f.get(t, "/api/images/test-request-1/data", nil).Code)
}

func TestAdminPendingModeration(t *testing.T) {
	f := newFixture(t)

	rec := f.get(t, "/api/admin/moderation/pending", map[string]string{"Authorization": "Bearer admin-token"})
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Pending []types.ModerationQueueEntry `json:"pending"`
		Count   int                          `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Zero(t, body.Count)
}

func TestSetDailyVerseDevelopmentOnly(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusOK, f.post(t, "/api/generate", generateBody(), nil).Code)

	rec := f.post(t, "/internal/set-daily-verse", map[string]string{"imageId": "test-request-1"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "test-request-1", f.cache.daily)

	// Unknown image is rejected
	rec = f.post(t, "/internal/set-daily-verse", map[string]string{"imageId": "missing"}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// The route does not exist outside development
	prod := newFixture(t, func(c *config.Config) {
		c.Environment = "production"
		c.SigningSecret = "prod-secret"
	})
	rec = prod.post(t, "/internal/set-daily-verse", map[string]string{"imageId": "x"}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimitedErrorCarriesCodeAndRetry(t *testing.T) {
	err := newRateLimitedError(time.Now().Add(90 * time.Second))

	require.Error(t, err)
	assert.Equal(t, types.CodeRateLimited, types.CodeOf(err))
	assert.Contains(t, err.Error(), "rate limit exceeded")
	assert.InDelta(t, 90, retryAfterOf(err), 2)

	// At or past the reset instant the wait floors to one second
	floored := newRateLimitedError(time.Now().Add(-time.Second))
	assert.Equal(t, 1, retryAfterOf(floored))
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)

	rec := f.get(t, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
