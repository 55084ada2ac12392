package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderSubstitution(t *testing.T) {
	got := Render("Hello {{name}}, ref {{ref_number}}", Vars{
		Fields: map[string]string{"name": "Ali", "ref_number": "A-100"},
	})
	assert.Equal(t, "Hello Ali, ref A-100", got)
}

func TestRenderConditionalTrue(t *testing.T) {
	got := Render("Hello {{name}}, {{#if urgent}}URGENT{{/if}}", Vars{
		Fields: map[string]string{"name": "Ali", "urgent": "true"},
	})
	assert.Equal(t, "Hello Ali, URGENT", got)
}

func TestRenderConditionalFalse(t *testing.T) {
	got := Render("Hello {{name}}, {{#if urgent}}URGENT{{/if}}", Vars{
		Fields: map[string]string{"name": "Ali", "urgent": "false"},
	})
	// block omitted, trailing whitespace trimmed
	assert.Equal(t, "Hello Ali,", got)
}

func TestRenderConditionalBodyKeepsTokens(t *testing.T) {
	got := Render("{{#if notes}}ملاحظات: {{notes}}{{/if}}", Vars{
		Fields: map[string]string{"notes": "جدد قبل نهاية الشهر"},
	})
	assert.Equal(t, "ملاحظات: جدد قبل نهاية الشهر", got)
}

func TestRenderDynamicFields(t *testing.T) {
	got := Render("Plate: {{dynamic_fields.plate_no}}", Vars{
		Dynamic: map[string]string{"plate_no": "KSA 1234"},
	})
	assert.Equal(t, "Plate: KSA 1234", got)
}

func TestRenderMissingVarsStripped(t *testing.T) {
	got := Render("A {{known}} B {{unknown}} C {{weird token}}", Vars{
		Fields: map[string]string{"known": "x"},
	})
	assert.Equal(t, "A x B  C", got)
}

func TestRenderEmptyFalsyValues(t *testing.T) {
	for _, v := range []string{"", "0", "false", "null"} {
		got := Render("{{#if f}}shown{{/if}}", Vars{Fields: map[string]string{"f": v}})
		assert.Empty(t, got, "value %q should be falsy", v)
	}
}
