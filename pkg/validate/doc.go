// Package validate enforces request rules: verse reference grammar, style
// presets, prompt length and the term blocklist. The sanitiser shares the
// blocklist with the validator, so a sanitised prompt always validates.
package validate
