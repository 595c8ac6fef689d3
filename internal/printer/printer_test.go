package printer

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	DisableColor()
	out, errOut := new(bytes.Buffer), new(bytes.Buffer)
	SetOutput(out, errOut)
	t.Cleanup(func() { SetOutput(nil, nil) })
	return out, errOut
}

func TestError(t *testing.T) {
	t.Run("returns error with title", func(t *testing.T) {
		_, errOut := capture(t)
		err := Error("design mismatch", "The persisted design was drawn over other bounds.", nil)
		require.Error(t, err)
		require.Equal(t, "design mismatch", err.Error())
		assert.Contains(t, errOut.String(), "design mismatch\n\nThe persisted design")
	})

	t.Run("prints a single suggestion unnumbered", func(t *testing.T) {
		_, errOut := capture(t)
		Error("no design found", "Explanation", []string{"Run 'nroy design' first"})
		assert.Contains(t, errOut.String(), "\nRun 'nroy design' first\n")
		assert.NotContains(t, errOut.String(), "Either:")
	})

	t.Run("numbers multiple suggestions", func(t *testing.T) {
		_, errOut := capture(t)
		err := Error("Test Error", "Explanation", []string{"First option", "Second option"})
		require.Equal(t, "Test Error", err.Error())
		assert.Contains(t, errOut.String(), "Either:\n  1. First option\n  2. Second option\n")
	})
}

func TestErrorWithContext(t *testing.T) {
	_, errOut := capture(t)
	err := ErrorWithContext("Test Error", "Explanation", map[string]string{
		"campaign": "fault-slip",
		"backend":  "redis",
	}, []string{"Fix it"})
	require.Equal(t, "Test Error", err.Error())

	s := errOut.String()
	backend := strings.Index(s, "backend: redis")
	campaign := strings.Index(s, "campaign: fault-slip")
	require.NotEqual(t, -1, backend)
	require.NotEqual(t, -1, campaign)
	assert.Less(t, backend, campaign, "context keys are sorted")
}

func TestMessages(t *testing.T) {
	out, errOut := capture(t)

	Success("design created\n")
	Success("✓ already prefixed\n")
	Info("%d points\n", 3)
	Step("simulating\n")
	Field("nroy", 12)
	Warning("2 points failed\n")

	assert.Equal(t,
		"✓ design created\n✓ already prefixed\n3 points\n→ simulating\n  nroy: 12\n",
		out.String())
	assert.Equal(t, "⚠️  2 points failed\n", errOut.String())
}
