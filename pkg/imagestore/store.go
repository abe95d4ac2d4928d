package imagestore

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/verseforge/verseforge/pkg/blob"
	"github.com/verseforge/verseforge/pkg/log"
	"github.com/verseforge/verseforge/pkg/metrics"
	"github.com/verseforge/verseforge/pkg/types"
)

// DefaultSignedURLTTL bounds how long a signed image URL stays valid
const DefaultSignedURLTTL = time.Hour

// MetaWriter is the metadata surface the write path needs
type MetaWriter interface {
	InsertImage(ctx context.Context, img *types.Image) error
	GetImage(ctx context.Context, id string) (*types.Image, error)
	DeleteImage(ctx context.Context, id string) error
}

// MetaCache hydrates and invalidates the hot metadata view
type MetaCache interface {
	GetMetadata(ctx context.Context, imageID string) (*types.Image, error)
	SetMetadata(ctx context.Context, imageID string, img *types.Image)
	InvalidateImage(ctx context.Context, imageID string)
}

/// Store owns the durable image write path: blob bytes, then the metadata
// row, then best-effort cache hydration. A row never exists without its
// blob having been written first.
type Store struct {
	blobs   blob.Store
	meta    MetaWriter
	cache   MetaCache
	baseURL string
	secret  []byte
	now     func() time.Time
	logger  zerolog.Logger
}

func New(blobs blob.Store, meta MetaWriter, cache MetaCache, baseURL, signingSecret string) *Store {
	return &Store{
		blobs:   blobs,
		meta:    meta,
		cache:   cache,
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  []byte(signingSecret),
		now:     time.Now,
		logger:  log.WithComponent("imagestore"),
	}
}

// SaveRequest describes one image to persist
type SaveRequest struct {
	// ImageID overrides ID generation, used for idempotent client retries.
	// Empty means generate.
	ImageID string

	UserID         string
	VerseReference string
	VerseText      string
	Prompt         string
	StylePreset    types.StylePreset
	Width          int
	Height         int
	Tags           []string
	Moderation     types.ModerationStatus
}

// NewImageID derives a sortable unique ID from the request identity and
// the generation instant.
func NewImageID(userID, verseRef string, style types.StylePreset, at time.Time) string {
	millis := at.UnixMilli()
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%d", userID, verseRef, style, millis)))
	return fmt.Sprintf("%d-%s", millis, hex.EncodeToString(sum[:4]))
}

// blobKeyFor partitions blobs by generation month
func blobKeyFor(id string, format types.ImageFormat, at time.Time) string {
	return fmt.Sprintf("images/%04d/%02d/%s.%s", at.UTC().Year(), int(at.UTC().Month()), id, format)
}

// SaveImage writes the blob, inserts the metadata row, and hydrates the
// cache. Cache failure is silent; blob and row failures abort the save.
func (s *Store) SaveImage(ctx context.Context, req *SaveRequest, data []byte) (*types.Image, error) {
	if len(data) == 0 {
		return nil, types.E(types.CodeStorageWriteFailed, "refusing to store empty image")
	}

	now := s.now().UTC()
	id := req.ImageID
	if id == "" {
		id = NewImageID(req.UserID, req.VerseReference, req.StylePreset, now)
	}

	format := DetectFormat(data)
	key := blobKeyFor(id, format, now)

	userID := req.UserID
	if userID == "" {
		userID = "anonymous"
	}
	meta := map[string]string{
		"imageId":        id,
		"verseReference": req.VerseReference,
		"userId":         userID,
	}
	if err := s.blobs.Put(ctx, key, data, ContentType(format), meta); err != nil {
		return nil, types.Wrap(types.CodeStorageWriteFailed, err, "store image %s", id)
	}

	tags := req.Tags
	if tags == nil {
		tags = []string{}
	}
	status := req.Moderation
	if status == "" {
		status = types.ModerationApproved
	}

	img := &types.Image{
		ID:               id,
		UserID:           req.UserID,
		VerseReference:   req.VerseReference,
		VerseText:        req.VerseText,
		Prompt:           req.Prompt,
		StylePreset:      req.StylePreset,
		BlobKey:          key,
		FileSize:         int64(len(data)),
		Format:           format,
		Width:            req.Width,
		Height:           req.Height,
		Tags:             tags,
		ModerationStatus: status,
		GeneratedAt:      now,
		CreatedAt:        now,
	}
	if err := s.meta.InsertImage(ctx, img); err != nil {
		// The blob is now orphaned; the weekly cleanup cycle reconciles it.
		s.logger.Error().Err(err).Str("image_id", id).Str("key", key).Msg("metadata insert failed after blob write")
		return nil, err
	}

	if s.cache != nil {
		s.cache.SetMetadata(ctx, id, img)
	}
	metrics.StoredBytes.Add(float64(len(data)))

	s.logger.Info().
		Str("image_id", id).
		Str("format", string(format)).
		Int("bytes", len(data)).
		Msg("image stored")
	return img, nil
}

// GetMetadata returns the metadata row, through the cache when present
func (s *Store) GetMetadata(ctx context.Context, imageID string) (*types.Image, error) {
	if s.cache != nil {
		return s.cache.GetMetadata(ctx, imageID)
	}
	return s.meta.GetImage(ctx, imageID)
}

// GetImage returns both the metadata and the stored bytes. Rejected
// images have no blob and read as not found.
func (s *Store) GetImage(ctx context.Context, imageID string) (*types.Image, *blob.Object, error) {
	img, err := s.GetMetadata(ctx, imageID)
	if err != nil {
		return nil, nil, err
	}
	if img.BlobKey == "" {
		return nil, nil, types.E(types.CodeNotFound, "image %s has no stored content", imageID)
	}

	obj, err := s.blobs.Get(ctx, img.BlobKey)
	if err != nil {
		if types.IsNotFound(err) {
			return nil, nil, err
		}
		return nil, nil, types.Wrap(types.CodeStorageReadFailed, err, "read image %s", imageID)
	}
	return img, obj, nil
}

// DeleteImage removes the blob (tolerating its absence) and the row,
// then invalidates the cache.
func (s *Store) DeleteImage(ctx context.Context, imageID string) error {
	img, err := s.meta.GetImage(ctx, imageID)
	if err != nil {
		return err
	}
	if img.BlobKey != "" {
		if err := s.blobs.Delete(ctx, img.BlobKey); err != nil && !types.IsNotFound(err) {
			return types.Wrap(types.CodeStorageWriteFailed, err, "delete blob for %s", imageID)
		}
	}
	if err := s.meta.DeleteImage(ctx, imageID); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.InvalidateImage(ctx, imageID)
	}
	return nil
}

// ImageURL builds the public URL for an image's blob. With a signing
// secret configured the URL carries an expiry and an HMAC signature
// bound to both the key and the expiry.
func (s *Store) ImageURL(img *types.Image) string {
	base := s.baseURL + "/" + img.BlobKey
	if len(s.secret) == 0 {
		return base
	}
	expires := s.now().Add(DefaultSignedURLTTL).Unix()
	return fmt.Sprintf("%s?expires=%d&signature=%s", base, expires, s.sign(img.BlobKey, expires))
}

func (s *Store) sign(blobKey string, expires int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s|%d", blobKey, expires)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a signed URL's expiry and signature. URLs
// without a secret configured always verify.
func (s *Store) VerifySignature(blobKey, expiresStr, signature string) bool {
	if len(s.secret) == 0 {
		return true
	}
	expires, err := strconv.ParseInt(expiresStr, 10, 64)
	if err != nil || s.now().Unix() > expires {
		return false
	}
	return hmac.Equal([]byte(signature), []byte(s.sign(blobKey, expires)))
}

// CacheHeaders sets the immutable-content caching headers on an image
// byte response.
func CacheHeaders(w http.ResponseWriter, img *types.Image, etag string) {
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Header().Set("ETag", `"`+etag+`"`)
	w.Header().Set("Vary", "Accept-Encoding")
	w.Header().Set("Last-Modified", img.GeneratedAt.UTC().Format(http.TimeFormat))
}

// ETagMatch implements If-None-Match comparison, including the wildcard
// and optional quoting.
func ETagMatch(headerValue, etag string) bool {
	if headerValue == "" {
		return false
	}
	for _, candidate := range strings.Split(headerValue, ",") {
		candidate = strings.TrimSpace(candidate)
		candidate = strings.TrimPrefix(candidate, "W/")
		candidate = strings.Trim(candidate, `"`)
		if candidate == "*" || candidate == etag {
			return true
		}
	}
	return false
}
