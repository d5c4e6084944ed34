package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStopCommand(t *testing.T) {
	t.Run("help text", func(t *testing.T) {
		output, err := executeCommand(t, "stop", "--help")
		require.NoError(t, err)

		assert.Contains(t, output, "tally run")
		assert.Contains(t, output, "timeout")
	})

	t.Run("not running", func(t *testing.T) {
		t.Setenv("HOME", t.TempDir())

		_, err := executeCommand(t, "stop")
		assert.ErrorContains(t, err, "not running")
	})
}
