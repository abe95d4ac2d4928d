package validate

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/verseforge/verseforge/pkg/log"
	"github.com/verseforge/verseforge/pkg/types"
	"github.com/verseforge/verseforge/pkg/verse"
)

const (
	// Prompt length bounds after trimming
	MinPromptLength = 10
	MaxPromptLength = 1000

	// Cache key holding the operator-managed blocklist
	BlocklistConfigKey = "moderation-blocklist"
)

// Issue codes carried in validation results
const (
	IssueInvalidFormat = "invalid_format"
	IssueBlockedTerms  = "blocked_terms"
	IssueRequired      = "required"
)

// Issue is one validation failure
type Issue struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Result aggregates validation issues; Valid is true when none were found
type Result struct {
	Valid  bool    `json:"valid"`
	Issues []Issue `json:"issues,omitempty"`
}

func (r *Result) add(field, code, message string) {
	r.Valid = false
	r.Issues = append(r.Issues, Issue{Field: field, Code: code, Message: message})
}

func (r *Result) merge(other Result) {
	if !other.Valid {
		r.Valid = false
		r.Issues = append(r.Issues, other.Issues...)
	}
}

// Err converts a failed result into a tagged error for the API envelope
func (r *Result) Err() error {
	if r.Valid {
		return nil
	}
	code := types.CodeInvalidRequestFormat
	for _, issue := range r.Issues {
		if issue.Code == IssueRequired {
			code = types.CodeMissingRequiredField
			break
		}
		if issue.Field == "verseReference" {
			code = types.CodeInvalidVerseReference
		}
	}
	e := types.E(code, "request validation failed")
	e.Details = r.Issues
	return e
}

// ConfigSource supplies operator configuration, implemented by the cache
type ConfigSource interface {
	GetConfig(ctx context.Context, key string, out any) bool
}

// wordRe splits prompts into tokens on word boundaries
var wordRe = regexp.MustCompile(`[A-Za-z0-9']+`)

// Validator enforces prompt, reference and style rules. The sanitiser and
// the validator share the same blocklist, so a sanitised prompt always
// validates clean of blocked terms.
type Validator struct {
	mu        sync.RWMutex
	blocklist map[string]bool
	defaults  []string

	config ConfigSource
	logger zerolog.Logger
}

// defaultBlocklist is the compiled-in list used until (and whenever) the
// cache-managed list is unavailable.
var defaultBlocklist = []string{
	"violence", "violent", "gore", "blood", "weapon", "kill",
	"nude", "nudity", "naked", "nsfw", "explicit",
	"hate", "racist", "terrorist",
}

// New creates a validator with the compiled-in blocklist. config may be
// nil; LoadBlocklist then keeps the defaults.
func New(config ConfigSource) *Validator {
	v := &Validator{
		blocklist: make(map[string]bool),
		defaults:  defaultBlocklist,
		config:    config,
		logger:    log.WithComponent("validate"),
	}
	for _, term := range defaultBlocklist {
		v.blocklist[strings.ToLower(term)] = true
	}
	return v
}

// LoadBlocklist refreshes the blocklist from the config cache. On absence
// or failure the current list is kept.
func (v *Validator) LoadBlocklist(ctx context.Context) {
	if v.config == nil {
		return
	}
	var terms []string
	if !v.config.GetConfig(ctx, BlocklistConfigKey, &terms) || len(terms) == 0 {
		v.logger.Debug().Msg("no cached blocklist, keeping current list")
		return
	}

	next := make(map[string]bool, len(terms))
	for _, term := range terms {
		next[strings.ToLower(strings.TrimSpace(term))] = true
	}

	v.mu.Lock()
	v.blocklist = next
	v.mu.Unlock()
	v.logger.Info().Int("terms", len(next)).Msg("blocklist refreshed from cache")
}

// AddBlockedTerm adds one term; exists for administrative testing
func (v *Validator) AddBlockedTerm(term string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.blocklist[strings.ToLower(strings.TrimSpace(term))] = true
}

// RemoveBlockedTerm removes one term; exists for administrative testing
func (v *Validator) RemoveBlockedTerm(term string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.blocklist, strings.ToLower(strings.TrimSpace(term)))
}

func (v *Validator) isBlocked(token string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.blocklist[strings.ToLower(token)]
}

// ValidatePrompt checks trimmed length bounds and blocked terms
func (v *Validator) ValidatePrompt(text string) Result {
	res := Result{Valid: true}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		res.add("prompt", IssueInvalidFormat, "prompt is empty")
		return res
	}
	if len(trimmed) < MinPromptLength {
		res.add("prompt", IssueInvalidFormat, "prompt is too short")
	}
	if len(trimmed) > MaxPromptLength {
		res.add("prompt", IssueInvalidFormat, "prompt is too long")
	}

	var blocked []string
	for _, token := range wordRe.FindAllString(trimmed, -1) {
		if v.isBlocked(token) {
			blocked = append(blocked, strings.ToLower(token))
		}
	}
	if len(blocked) > 0 {
		res.add("prompt", IssueBlockedTerms, "prompt contains blocked terms: "+strings.Join(blocked, ", "))
	}
	return res
}

// SanitizePrompt removes fields containing blocked tokens and collapses
// the resulting whitespace. Fields are tokenized the same way ValidatePrompt
// tokenizes, so a sanitised prompt never fails the blocked-terms check.
// Idempotent; never inserts content.
func (v *Validator) SanitizePrompt(text string) string {
	var kept []string
	for _, field := range strings.Fields(text) {
		if v.containsBlocked(field) {
			continue
		}
		kept = append(kept, field)
	}
	return strings.Join(kept, " ")
}

func (v *Validator) containsBlocked(field string) bool {
	for _, token := range wordRe.FindAllString(field, -1) {
		if v.isBlocked(token) {
			return true
		}
	}
	return false
}

// ValidateVerseReference checks the reference grammar and bounds
func (v *Validator) ValidateVerseReference(ref string) Result {
	res := Result{Valid: true}
	if strings.TrimSpace(ref) == "" {
		res.add("verseReference", IssueInvalidFormat, "verse reference is required")
		return res
	}
	if _, err := verse.ParseReference(ref); err != nil {
		res.add("verseReference", IssueInvalidFormat, err.Error())
	}
	return res
}

// ValidateStylePreset permits empty (defaulted later) or a known preset
func (v *Validator) ValidateStylePreset(s types.StylePreset) Result {
	res := Result{Valid: true}
	if s == "" {
		return res
	}
	if !types.ValidStyle(s) {
		res.add("stylePreset", IssueInvalidFormat, "unknown style preset "+string(s))
	}
	return res
}

// ValidateGenerationRequest accumulates all issues across the request
func (v *Validator) ValidateGenerationRequest(req *types.GenerateRequest) Result {
	res := Result{Valid: true}

	if strings.TrimSpace(req.VerseReference) == "" {
		res.add("verseReference", IssueRequired, "verseReference is required")
	} else {
		res.merge(v.ValidateVerseReference(req.VerseReference))
	}

	res.merge(v.ValidateStylePreset(req.StylePreset))

	if req.CustomPrompt != "" {
		res.merge(v.ValidatePrompt(req.CustomPrompt))
	}
	return res
}
