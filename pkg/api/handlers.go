package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/verseforge/verseforge/pkg/imagestore"
	"github.com/verseforge/verseforge/pkg/metrics"
	"github.com/verseforge/verseforge/pkg/model"
	"github.com/verseforge/verseforge/pkg/prompt"
	"github.com/verseforge/verseforge/pkg/types"
)

// maxBodyBytes bounds request bodies; generation requests are small
const maxBodyBytes = 64 << 10

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req types.GenerateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, r, types.E(types.CodeInvalidRequestFormat, "request body is not valid JSON"))
		return
	}

	if res := s.validator.ValidateGenerationRequest(&req); !res.Valid {
		writeError(w, r, res.Err())
		return
	}
	if req.StylePreset == "" {
		req.StylePreset = types.StyleModern
	}

	identity, tier, userID := s.identity(r)
	decision := s.limiter.Allow(identity, tier)
	if !decision.Allowed {
		s.tracker.RecordRateLimited(identity, string(tier))
		writeError(w, r, newRateLimitedError(decision.ResetAt))
		return
	}

	// Idempotency precheck. The lookup is cache-through into the
	// metadata store: a cache eviction must not re-invoke the model for
	// a requestId whose artefact already exists.
	if req.RequestID != "" {
		img, err := s.images.GetMetadata(ctx, req.RequestID)
		if err == nil {
			writeJSON(w, http.StatusOK, s.generateResponse(img))
			return
		}
		if !types.IsNotFound(err) {
			writeError(w, r, err)
			return
		}
	}

	key := req.RequestID
	if key == "" {
		key = identity + "|" + strconv.FormatInt(time.Now().UnixNano(), 10)
	}
	v, err, _ := s.generating.Do(key, func() (any, error) {
		return s.generate(r, &req, userID)
	})
	if err != nil {
		s.tracker.RecordGeneration(userID, false)
		metrics.GenerationsTotal.WithLabelValues("failed").Inc()
		writeError(w, r, err)
		return
	}

	s.tracker.RecordGeneration(userID, true)
	metrics.GenerationsTotal.WithLabelValues("succeeded").Inc()
	writeJSON(w, http.StatusOK, v)
}

// generate runs the orchestration pipeline: resolve, compose, infer,
// gate, persist.
func (s *Server) generate(r *http.Request, req *types.GenerateRequest, userID string) (*types.GenerateResponse, error) {
	ctx := r.Context()

	var v *types.Verse
	if req.VerseText != "" {
		// Caller-supplied text wins; the reference has already validated
		v = &types.Verse{Reference: req.VerseReference, Text: req.VerseText}
	} else {
		resolved, err := s.resolver.GetVerse(ctx, req.VerseReference)
		if err != nil {
			return nil, err
		}
		v = resolved
	}

	composed := prompt.Compose(v, req.StylePreset)
	if req.CustomPrompt != "" {
		composed += ", " + s.validator.SanitizePrompt(req.CustomPrompt)
	}

	result, err := s.client.Run(ctx, model.Request{Prompt: composed})
	if err != nil {
		return nil, err
	}

	if gate := s.gate.ShouldStore(composed, v.Text); !gate.Store {
		err := types.E(types.CodeContentBlocked, "generated content was rejected by the safety check")
		err.Details = map[string]string{"reason": gate.FlagReason}
		return nil, err
	}

	img, err := s.images.SaveImage(ctx, &imagestore.SaveRequest{
		ImageID:        req.RequestID,
		UserID:         userID,
		VerseReference: v.Reference,
		VerseText:      v.Text,
		Prompt:         composed,
		StylePreset:    req.StylePreset,
		Width:          result.Width,
		Height:         result.Height,
		Moderation:     types.ModerationApproved,
	}, result.Image)
	if err != nil {
		return nil, err
	}

	s.tracker.RecordBlobWrite(img.FileSize)
	s.tracker.RecordDBWrite()
	return s.generateResponse(img), nil
}

func (s *Server) generateResponse(img *types.Image) *types.GenerateResponse {
	imageURL := s.images.ImageURL(img)
	return &types.GenerateResponse{
		ImageID:          img.ID,
		ImageURL:         imageURL,
		WhatsAppShareURL: whatsAppShareURL(img.VerseText, img.VerseReference, imageURL),
		VerseReference:   img.VerseReference,
		VerseText:        img.VerseText,
	}
}

func (s *Server) handleImageMetadata(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	img, err := s.images.GetMetadata(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.tracker.RecordDBQuery()

	var imageURL string
	if img.BlobKey != "" {
		imageURL = s.images.ImageURL(img)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"imageId":  img.ID,
		"imageUrl": imageURL,
		"metadata": img,
	})
}

func (s *Server) handleImageData(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	img, obj, err := s.images.GetImage(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.tracker.RecordBlobRead()

	if imagestore.ETagMatch(r.Header.Get("If-None-Match"), obj.ETag) {
		imagestore.CacheHeaders(w, img, obj.ETag)
		w.WriteHeader(http.StatusNotModified)
		return
	}

	imagestore.CacheHeaders(w, img, obj.ETag)
	w.Header().Set("Content-Type", obj.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(obj.Body)
}

func (s *Server) handleImageShare(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	img, err := s.images.GetMetadata(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	share := whatsAppShareURL(img.VerseText, img.VerseReference, s.images.ImageURL(img))
	http.Redirect(w, r, share, http.StatusFound)
}

func (s *Server) handleDailyVerse(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	imageID, ok := s.cache.GetDailyVerse(ctx)
	if !ok {
		writeError(w, r, types.E(types.CodeNotFound, "no daily verse has been generated yet"))
		return
	}

	img, err := s.images.GetMetadata(ctx, imageID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"imageId":        img.ID,
		"imageUrl":       s.images.ImageURL(img),
		"verseReference": img.VerseReference,
		"verseText":      img.VerseText,
		"generatedAt":    img.GeneratedAt,
	})
}

func (s *Server) handleVerseSearch(w http.ResponseWriter, r *http.Request) {
	results, err := s.resolver.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.tracker.RecordDBQuery()
	writeJSON(w, http.StatusOK, map[string]any{"results": results, "count": len(results)})
}

func (s *Server) handleModerate(w http.ResponseWriter, r *http.Request) {
	var req types.ModerateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, r, types.E(types.CodeInvalidRequestFormat, "request body is not valid JSON"))
		return
	}
	if req.ImageID == "" {
		writeError(w, r, types.E(types.CodeMissingRequiredField, "imageId is required"))
		return
	}
	if req.ReviewerID == "" {
		req.ReviewerID = "admin"
	}

	if err := s.reviews.Moderate(r.Context(), &req); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handlePendingModeration(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	entries, err := s.reviews.PendingReviews(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []types.ModerationQueueEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"pending": entries, "count": len(entries)})
}

// handleSetDailyVerse lets development environments point the daily
// verse at an existing image without waiting for the schedule.
func (s *Server) handleSetDailyVerse(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ImageID string `json:"imageId"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil || req.ImageID == "" {
		writeError(w, r, types.E(types.CodeInvalidRequestFormat, "imageId is required"))
		return
	}

	if _, err := s.images.GetMetadata(r.Context(), req.ImageID); err != nil {
		writeError(w, r, err)
		return
	}

	s.cache.SetDailyVerse(r.Context(), req.ImageID)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
