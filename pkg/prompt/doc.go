// Package prompt composes deterministic model prompts from a verse and a
// style preset. Identical input always yields the identical prompt.
package prompt
