package whatsapp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeNumber(t *testing.T) {
	cases := map[string]string{
		"0501234567":     "966501234567",
		"+966501234567":  "966501234567",
		"00966501234567": "966501234567",
		"966501234567":   "966501234567",
		"05 0123 4567":   "966501234567",
		"(050) 123-4567": "966501234567",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeNumber(in), "input %q", in)
	}
}

func TestJID(t *testing.T) {
	assert.Equal(t, "966501234567@s.whatsapp.net", JID("0501234567"))
}
