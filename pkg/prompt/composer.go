package prompt

import (
	"strings"

	"github.com/verseforge/verseforge/pkg/types"
)

// verseExcerptLen is how much verse text feeds the prompt
const verseExcerptLen = 100

// themeKeywords maps verse vocabulary to themes. First match order is
// fixed so composition is deterministic.
var themeOrder = []string{"love", "hope", "strength", "peace", "joy", "light", "nature", "wisdom"}

var themeKeywords = map[string][]string{
	"love":     {"love", "loved", "loveth", "charity", "beloved", "mercy"},
	"hope":     {"hope", "hoped", "faith", "believe", "believeth", "trust"},
	"strength": {"strength", "strong", "courage", "mighty", "power"},
	"peace":    {"peace", "rest", "still", "quiet", "comfort"},
	"joy":      {"joy", "rejoice", "glad", "gladness", "sing", "singing"},
	"light":    {"light", "lamp", "shine", "glory", "salvation"},
	"nature":   {"mountain", "hills", "heaven", "heavens", "earth", "eagle", "eagles", "waters", "created"},
	"wisdom":   {"wisdom", "wise", "understanding", "knowledge", "truth"},
}

// fallbackTheme is used when no keyword matches
const fallbackTheme = "faith"

// styleAdjectives are the per-preset modifiers appended to every prompt
var styleAdjectives = map[types.StylePreset]string{
	types.StyleModern:     "modern digital art, vibrant colors, clean composition",
	types.StyleClassic:    "classical oil painting, renaissance style, warm tones",
	types.StyleMinimalist: "minimalist design, simple shapes, muted palette, negative space",
	types.StyleArtistic:   "expressive brushwork, impressionist style, dramatic lighting",
}

// Themes extracts the matching themes from verse text, falling back to
// "faith" when nothing matches. Explicit theme tags on the verse win.
func Themes(v *types.Verse) []string {
	if len(v.Themes) > 0 {
		return v.Themes
	}

	text := strings.ToLower(v.Text)
	tokens := make(map[string]bool)
	for _, tok := range strings.FieldsFunc(text, func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		tokens[tok] = true
	}

	var themes []string
	for _, theme := range themeOrder {
		for _, kw := range themeKeywords[theme] {
			if tokens[kw] {
				themes = append(themes, theme)
				break
			}
		}
	}
	if len(themes) == 0 {
		themes = []string{fallbackTheme}
	}
	return themes
}

// Compose builds the deterministic generation prompt for a verse and
// style. Identical input always yields an identical prompt.
func Compose(v *types.Verse, style types.StylePreset) string {
	adjectives, ok := styleAdjectives[style]
	if !ok {
		adjectives = styleAdjectives[types.StyleModern]
	}

	excerpt := v.Text
	if len(excerpt) > verseExcerptLen {
		excerpt = excerpt[:verseExcerptLen]
	}

	var b strings.Builder
	b.WriteString("Inspirational biblical scene, theme of ")
	b.WriteString(strings.Join(Themes(v), " and "))
	b.WriteString(", ")
	b.WriteString(excerpt)
	b.WriteString(", ")
	b.WriteString(adjectives)
	b.WriteString(", high quality, detailed, professional")
	return b.String()
}

// StyleAdjectives exposes the preset modifiers, used by tests and the
// prompt-completeness checks.
func StyleAdjectives(style types.StylePreset) string {
	return styleAdjectives[style]
}
