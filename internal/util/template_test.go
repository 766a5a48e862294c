package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderTemplate(t *testing.T) {
	out, err := RenderTemplate("Evidence: {{.Evidence}}", map[string]any{"Evidence": "65°F"})
	assert.NoError(t, err)
	assert.Equal(t, "Evidence: 65°F", out)

	// No markers: returned verbatim without parsing.
	out, err = RenderTemplate("plain text", nil)
	assert.NoError(t, err)
	assert.Equal(t, "plain text", out)

	_, err = RenderTemplate("{{.Broken", nil)
	assert.Error(t, err)
}
