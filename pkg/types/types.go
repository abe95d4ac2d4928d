package types

import (
	"time"
)

// StylePreset selects the visual treatment applied to a generated image
type StylePreset string

const (
	StyleModern     StylePreset = "modern"
	StyleClassic    StylePreset = "classic"
	StyleMinimalist StylePreset = "minimalist"
	StyleArtistic   StylePreset = "artistic"
)

// ValidStyle reports whether s is one of the known presets
func ValidStyle(s StylePreset) bool {
	switch s {
	case StyleModern, StyleClassic, StyleMinimalist, StyleArtistic:
		return true
	}
	return false
}

// ImageFormat is the detected encoding of generated image bytes
type ImageFormat string

const (
	FormatWebP ImageFormat = "webp"
	FormatPNG  ImageFormat = "png"
	FormatJPEG ImageFormat = "jpeg"
)

// ModerationStatus tracks the content-safety state of an image
type ModerationStatus string

const (
	ModerationPending  ModerationStatus = "pending"
	ModerationApproved ModerationStatus = "approved"
	ModerationRejected ModerationStatus = "rejected"
)

// ModerationAction is a reviewer decision on a flagged image
type ModerationAction string

const (
	ActionApprove ModerationAction = "approve"
	ActionReject  ModerationAction = "reject"
)

// Verse is immutable reference material. Only the daily rotation counters
// (LastUsed, UseCount) are ever updated after creation.
type Verse struct {
	Reference   string     `db:"reference" json:"reference"`
	Text        string     `db:"text" json:"text"`
	Book        string     `db:"book" json:"book"`
	Chapter     int        `db:"chapter" json:"chapter"`
	Verse       int        `db:"verse" json:"verse"`
	Translation string     `db:"translation" json:"translation"`
	Themes      []string   `db:"-" json:"themes,omitempty"`
	LastUsed    *time.Time `db:"last_used" json:"lastUsed,omitempty"`
	UseCount    int        `db:"use_count" json:"useCount"`
}

// Image is a generated artefact plus its metadata row.
// BlobKey is populated iff ModerationStatus != rejected.
type Image struct {
	ID               string           `db:"id" json:"imageId"`
	UserID           string           `db:"user_id" json:"userId,omitempty"`
	VerseReference   string           `db:"verse_reference" json:"verseReference"`
	VerseText        string           `db:"verse_text" json:"verseText"`
	Prompt           string           `db:"prompt" json:"prompt"`
	StylePreset      StylePreset      `db:"style_preset" json:"stylePreset"`
	BlobKey          string           `db:"r2_key" json:"blobKey,omitempty"`
	FileSize         int64            `db:"file_size" json:"fileSize"`
	Format           ImageFormat      `db:"format" json:"format"`
	Width            int              `db:"width" json:"width"`
	Height           int              `db:"height" json:"height"`
	Tags             []string         `db:"-" json:"tags"`
	ModerationStatus ModerationStatus `db:"moderation_status" json:"moderationStatus"`
	GeneratedAt      time.Time        `db:"generated_at" json:"generatedAt"`
	CreatedAt        time.Time        `db:"created_at" json:"createdAt"`
}

// HasTag reports whether the image carries the given tag
func (i *Image) HasTag(tag string) bool {
	for _, t := range i.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// ModerationQueueEntry is a flag awaiting (or closed by) human review.
// ReviewedAt, ReviewerID and Decision are co-null or co-set.
type ModerationQueueEntry struct {
	ID            int64             `db:"id" json:"id"`
	ImageID       string            `db:"image_id" json:"imageId"`
	FlaggedReason string            `db:"flagged_reason" json:"flaggedReason"`
	FlaggedAt     time.Time         `db:"flagged_at" json:"flaggedAt"`
	ReviewedAt    *time.Time        `db:"reviewed_at" json:"reviewedAt,omitempty"`
	ReviewerID    *string           `db:"reviewer_id" json:"reviewerId,omitempty"`
	Decision      *ModerationAction `db:"decision" json:"decision,omitempty"`
}

// RateBucket is the per-identity counter owned by a coordinator actor
type RateBucket struct {
	Count           int
	WindowStart     time.Time
	CaptchaRequired bool
	LastRequestTime time.Time
}

// RateDecision is the reply to a rate-limit check
type RateDecision struct {
	Allowed         bool      `json:"allowed"`
	Remaining       int       `json:"remaining"`
	ResetAt         time.Time `json:"resetAt"`
	CaptchaRequired bool      `json:"captchaRequired"`
}

// DailyMetric is the per-date usage aggregate, upserted idempotently on Date
type DailyMetric struct {
	Date                  string `db:"date" json:"date"` // YYYY-MM-DD UTC
	TotalGenerations      int64  `db:"total_generations" json:"totalGenerations"`
	SuccessfulGenerations int64  `db:"successful_generations" json:"successfulGenerations"`
	FailedGenerations     int64  `db:"failed_generations" json:"failedGenerations"`
	TotalStorageBytes     int64  `db:"total_storage_bytes" json:"totalStorageBytes"`
	UniqueUsers           int64  `db:"unique_users" json:"uniqueUsers"`
}

// BackupManifest is the JSON document written to backups/d1-{id}.json
// before a cleanup cycle deletes anything.
type BackupManifest struct {
	BackupID    string    `json:"backupId"`
	Timestamp   time.Time `json:"timestamp"`
	Version     string    `json:"version"`
	RecordCount int       `json:"recordCount"`
	Records     []Image   `json:"records"`
}

// GenerateRequest is the body of POST /api/generate
type GenerateRequest struct {
	VerseReference string      `json:"verseReference"`
	VerseText      string      `json:"verseText,omitempty"`
	StylePreset    StylePreset `json:"stylePreset,omitempty"`
	CustomPrompt   string      `json:"customPrompt,omitempty"`
	RequestID      string      `json:"requestId,omitempty"`
}

// GenerateResponse is the success body of POST /api/generate
type GenerateResponse struct {
	ImageID          string `json:"imageId"`
	ImageURL         string `json:"imageUrl"`
	WhatsAppShareURL string `json:"whatsappShareUrl"`
	VerseReference   string `json:"verseReference"`
	VerseText        string `json:"verseText"`
}

// ModerateRequest is the body of POST /api/admin/moderate
type ModerateRequest struct {
	ImageID    string           `json:"imageId"`
	Action     ModerationAction `json:"action"`
	Reason     string           `json:"reason,omitempty"`
	ReviewerID string           `json:"reviewerId,omitempty"`
}
