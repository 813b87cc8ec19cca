package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/georesolve/internal/engine"
)

// seedBatch imports inputZero and inputOne as inputs 0 and 1 of "raw".
func seedBatch(t *testing.T, dir string) string {
	t.Helper()
	db := filepath.Join(dir, "records.db")
	for i, content := range []string{inputZero, inputOne} {
		in := writeFile(t, dir, fmt.Sprintf("in%d.jsonl", i), content)
		_, _, err := executeCommand(t, "import", "--db", db, "--batch", "raw", "--input", fmt.Sprint(i), in)
		require.NoError(t, err)
	}
	return db
}

func TestResolve_NestedLoop(t *testing.T) {
	dir := t.TempDir()
	db := seedBatch(t, dir)
	job := writeFile(t, dir, "job.yaml", "mode: nested_loop\nworkers: 1\n")

	stdout, _, err := executeCommand(t, "resolve",
		"--config", job, "--db", db, "--in", "raw", "--out", "clean", "--env-file", noEnv(t))
	require.NoError(t, err)
	assert.Contains(t, stdout, "Resolved raw -> clean (nested_loop by tile)")
	assert.Contains(t, stdout, "groups: 2, in: 3, out: 3")

	out, _, err := executeCommand(t, "export", "--db", db, "--batch", "clean")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)

	byClass := map[string]string{}
	for _, line := range lines {
		var tuple struct {
			Properties map[string]any `json:"properties"`
		}
		require.NoError(t, json.Unmarshal([]byte(line), &tuple))
		assert.Zero(t, tuple.Properties["membership"])
		id := tuple.Properties["id"].(string)
		if id == "c" {
			continue
		}
		byClass[tuple.Properties["class"].(string)] = id
	}
	assert.Equal(t, "a", byClass["water"])
	assert.NotEmpty(t, byClass["grass"])
	assert.NotEqual(t, "b", byClass["grass"], "the trimmed grass record is re-issued")
}

func TestResolve_JSONSummary(t *testing.T) {
	dir := t.TempDir()
	db := seedBatch(t, dir)
	job := writeFile(t, dir, "job.yaml", "mode: nested_loop\nworkers: 2\n")

	stdout, _, err := executeCommand(t, "--format", "json", "resolve",
		"--config", job, "--db", db, "--in", "raw", "--out", "clean", "--input", "0", "--env-file", noEnv(t))
	require.NoError(t, err)

	var resp struct {
		Status string        `json:"status"`
		Data   ResolveResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "nested_loop", resp.Data.Mode)
	assert.Equal(t, "tile", resp.Data.GroupBy)
	assert.Equal(t, 2, resp.Data.In, "only input 0 is resolved")
	assert.Equal(t, 2, resp.Data.Out)
}

func TestResolve_InvalidJob(t *testing.T) {
	dir := t.TempDir()
	job := writeFile(t, dir, "job.yaml", "mode: paint\n")

	stdout, _, err := executeCommand(t, "--format", "json", "resolve",
		"--config", job, "--db", filepath.Join(dir, "r.db"), "--in", "raw", "--out", "clean", "--env-file", noEnv(t))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, ErrCodeConfig, resp.Error.Code)
}

func TestResolve_MissingRasterMeta(t *testing.T) {
	dir := t.TempDir()
	db := seedBatch(t, dir)
	job := writeFile(t, dir, "job.yaml", fmt.Sprintf(`mode: raster
workers: 1
side_inputs:
  raster_url: file://%s/
  image: ortho
  retries: 1
`, filepath.Join(dir, "rasters")))

	stdout, _, err := executeCommand(t, "--format", "json", "resolve",
		"--config", job, "--db", db, "--in", "raw", "--out", "clean", "--env-file", noEnv(t))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, ErrCodeSideInput, resp.Error.Code)

	out, _, err := executeCommand(t, "export", "--db", db, "--batch", "clean")
	require.NoError(t, err)
	assert.Empty(t, strings.TrimSpace(out), "failed runs write nothing")
}

func TestResolve_SameBatch(t *testing.T) {
	dir := t.TempDir()
	db := seedBatch(t, dir)
	job := writeFile(t, dir, "job.yaml", "mode: duplicate\nworkers: 1\n")

	_, _, err := executeCommand(t, "resolve",
		"--config", job, "--db", db, "--in", "raw", "--out", "raw", "--env-file", noEnv(t))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "must differ")
}

func TestResolve_EnvFileDefaults(t *testing.T) {
	dir := t.TempDir()
	db := seedBatch(t, dir)
	job := writeFile(t, dir, "job.yaml", "mode: nested_loop\n")
	env := writeFile(t, dir, "job.env", "GEORESOLVE_WORKERS=1\n")

	_, _, err := executeCommand(t, "-v", "resolve",
		"--config", job, "--db", db, "--in", "raw", "--out", "clean", "--env-file", env)
	require.NoError(t, err)
}

func TestFailRun(t *testing.T) {
	formatter := &OutputFormatter{Format: "text", Writer: &strings.Builder{}}

	tests := []struct {
		name     string
		err      error
		wantExit int
	}{
		{"canceled", context.Canceled, ExitFailure},
		{"side input", &engine.GroupError{Code: engine.ErrCodeSideInputFailed, Group: "T1"}, ExitFailure},
		{"store", &engine.GroupError{Code: engine.ErrCodeStoreFailed}, ExitCommandError},
		{"resolve", &engine.GroupError{Code: engine.ErrCodeResolveFailed, Group: "T1"}, ExitFailure},
		{"invalid run", errors.New("run: input and output batch are required"), ExitCommandError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := failRun(formatter, tt.err)
			assert.Equal(t, tt.wantExit, GetExitCode(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}
