package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmdRegistersSubcommands(t *testing.T) {
	root := NewRootCmd()

	for _, name := range []string{"serve", "index", "search", "watch", "version"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestRootCmdPersistentFlags(t *testing.T) {
	root := NewRootCmd()

	assert.NotNil(t, root.PersistentFlags().Lookup("vault"))
	assert.NotNil(t, root.PersistentFlags().Lookup("log-level"))
	assert.Equal(t, ".", root.PersistentFlags().Lookup("vault").DefValue)
}
