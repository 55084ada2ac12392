// Package template renders notification bodies. The syntax is the small
// subset the message_templates table actually uses: {{var}} substitution,
// {{dynamic_fields.key}} dotted lookup into the item's free-form field
// bag, and a single-level {{#if field}}...{{/if}} block. Unknown tokens
// are stripped, never an error: a stale template must not block a send.
package template

import (
	"regexp"
	"strings"
)

// Vars carries the closed set of top-level template variables plus the
// item's dynamic_fields sub-map, exposed as dynamic_fields.<key>.
type Vars struct {
	Fields  map[string]string
	Dynamic map[string]string
}

func (v Vars) lookup(key string) (string, bool) {
	if sub, ok := strings.CutPrefix(key, "dynamic_fields."); ok {
		val, ok := v.Dynamic[sub]
		return val, ok
	}
	val, ok := v.Fields[key]
	return val, ok
}

var (
	condRe  = regexp.MustCompile(`(?s)\{\{#if\s+([\w.]+)\s*\}\}(.*?)\{\{/if\}\}`)
	tokenRe = regexp.MustCompile(`\{\{\s*([\w.]+)\s*\}\}`)
	junkRe  = regexp.MustCompile(`\{\{[^{}]*\}\}`)
)

// Render substitutes vars into text. Conditional blocks resolve first
// (non-nested, include-iff-truthy), then {{key}} tokens, then any
// leftover {{...}} is dropped. The result is whitespace-trimmed.
func Render(text string, vars Vars) string {
	out := condRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := condRe.FindStringSubmatch(m)
		if val, ok := vars.lookup(sub[1]); ok && truthy(val) {
			return sub[2]
		}
		return ""
	})

	out = tokenRe.ReplaceAllStringFunc(out, func(m string) string {
		sub := tokenRe.FindStringSubmatch(m)
		val, _ := vars.lookup(sub[1])
		return val
	})

	out = junkRe.ReplaceAllString(out, "")
	return strings.TrimSpace(out)
}

// truthy mirrors how the stored templates treat coerced values: empty,
// "0", "false" and "null" suppress the block, anything else keeps it.
func truthy(v string) bool {
	switch strings.TrimSpace(v) {
	case "", "0", "false", "null":
		return false
	}
	return true
}
