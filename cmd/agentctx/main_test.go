package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/agentctx/internal/storage"
	"github.com/dshills/agentctx/pkg/types"
)

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"serve", "index", "reset", "search", "prepare", "status"} {
		assert.Contains(t, names, want)
	}
}

func TestRootCmd_Version(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--version"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "agentctx "+version)
	assert.Contains(t, out.String(), "Build Mode: "+storage.BuildMode)
	assert.Contains(t, out.String(), "SQLite Driver: "+storage.DriverName)
}

func TestSearchFlags_Options(t *testing.T) {
	t.Run("threshold unset", func(t *testing.T) {
		cmd := newSearchCmd()
		require.NoError(t, cmd.ParseFlags([]string{"--limit", "7"}))

		var flags searchFlags
		flags.limit, _ = cmd.Flags().GetInt("limit")
		opts := flags.options(cmd)
		assert.Equal(t, 7, opts.Limit)
		assert.Nil(t, opts.Threshold)
		assert.Equal(t, types.DefaultSearchThreshold, opts.EffectiveThreshold())
	})

	t.Run("explicit zero threshold", func(t *testing.T) {
		cmd := newSearchCmd()
		require.NoError(t, cmd.ParseFlags([]string{"--threshold", "0"}))

		var flags searchFlags
		flags.threshold, _ = cmd.Flags().GetFloat64("threshold")
		opts := flags.options(cmd)
		require.NotNil(t, opts.Threshold)
		assert.Equal(t, 0.0, *opts.Threshold)
	})
}

func TestSearchCmd_Args(t *testing.T) {
	cmd := newSearchCmd()
	assert.Error(t, cmd.Args(cmd, nil))
	assert.NoError(t, cmd.Args(cmd, []string{"retry", "backoff"}))

	prepare := newPrepareCmd()
	assert.Error(t, prepare.Args(prepare, []string{"/tmp"}))
}
