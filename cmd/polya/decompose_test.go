package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetDecomposeFlags(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		decomposeFile = ""
		decomposeMaxDepth = 0
		decomposeMaxNodes = 0
		decomposeGranularity = ""
		decomposeConstraints = nil
		decomposeComponents = nil
	})
}

func TestReadInputFromArgument(t *testing.T) {
	resetDecomposeFlags(t)
	input, err := readInput(&cobra.Command{}, []string{"ship the importer"})
	require.NoError(t, err)
	assert.Equal(t, "ship the importer", input.Objective)
}

func TestReadInputFromStdin(t *testing.T) {
	resetDecomposeFlags(t)
	cmd := &cobra.Command{}
	cmd.SetIn(strings.NewReader("  migrate billing  \n"))
	input, err := readInput(cmd, []string{"-"})
	require.NoError(t, err)
	assert.Equal(t, "migrate billing", input.Objective)
}

func TestReadInputJSONRecordFromFile(t *testing.T) {
	resetDecomposeFlags(t)
	path := filepath.Join(t.TempDir(), "input.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"objective": "build the api",
		"context": {"max_depth": 2, "constraints": ["go only"]},
		"config": {"target_granularity": "fine"}
	}`), 0o644))
	decomposeFile = path

	input, err := readInput(&cobra.Command{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "build the api", input.Objective)
	require.NotNil(t, input.Context)
	require.NotNil(t, input.Context.MaxDepth)
	assert.Equal(t, 2, *input.Context.MaxDepth)
	assert.Equal(t, []string{"go only"}, input.Context.Constraints)
	require.NotNil(t, input.Config)
	assert.Equal(t, "fine", input.Config.TargetGranularity)
}

func TestReadInputRejectsMalformedJSON(t *testing.T) {
	resetDecomposeFlags(t)
	cmd := &cobra.Command{}
	cmd.SetIn(strings.NewReader(`{"objective": `))
	_, err := readInput(cmd, nil)
	assert.ErrorContains(t, err, "parse input record")
}

func TestReadInputEmpty(t *testing.T) {
	resetDecomposeFlags(t)
	cmd := &cobra.Command{}
	cmd.SetIn(strings.NewReader("   "))
	_, err := readInput(cmd, nil)
	assert.ErrorContains(t, err, "no objective given")
}

func TestApplyFlagsMergesOntoRecord(t *testing.T) {
	resetDecomposeFlags(t)
	decomposeMaxDepth = 4
	decomposeMaxNodes = 30
	decomposeGranularity = "coarse"
	decomposeConstraints = []string{"budget"}

	input, err := readInput(&cobra.Command{}, []string{"do the thing"})
	require.NoError(t, err)
	applyFlags(&input)

	require.NotNil(t, input.Context)
	assert.Equal(t, 4, *input.Context.MaxDepth)
	assert.Equal(t, []string{"budget"}, input.Context.Constraints)
	require.NotNil(t, input.Config)
	assert.Equal(t, 30, *input.Config.MaxSubObjectives)
	assert.Equal(t, "coarse", input.Config.TargetGranularity)
}
