package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalScenario = `
name: minimal
description: one record passes through duplicate resolution
mode:
  name: duplicate
batches:
  - - id: a
      class: water
      membership: 0.5
      geometry: POLYGON((0 0,1 0,1 1,0 1,0 0))
assertions:
  - type: count
    count: 1
`

func TestParseScenario_Minimal(t *testing.T) {
	s, err := ParseScenario([]byte(minimalScenario))
	require.NoError(t, err)

	assert.Equal(t, "minimal", s.Name)
	assert.Equal(t, "duplicate", s.Mode.Name)
	require.Len(t, s.Batches, 1)
	require.Len(t, s.Batches[0], 1)
	assert.Equal(t, 0.5, s.Batches[0][0].Membership)
	require.Len(t, s.Assertions, 1)
	require.NotNil(t, s.Assertions[0].Count)
	assert.Equal(t, 1, *s.Assertions[0].Count)
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "unknown field",
			yaml:    minimalScenario + "asertions: []\n",
			wantErr: "asertions",
		},
		{
			name: "missing description",
			yaml: `
name: x
mode: {name: duplicate}
batches: [[{id: a, class: w, geometry: "POINT(0 0)"}]]
`,
			wantErr: "description is required",
		},
		{
			name: "unknown mode",
			yaml: `
name: x
description: d
mode: {name: paint}
batches: [[{id: a, class: w, geometry: "POINT(0 0)"}]]
`,
			wantErr: "unknown mode",
		},
		{
			name: "merge without classes",
			yaml: `
name: x
description: d
mode: {name: merge_indexed}
batches: [[{id: a, class: w, geometry: "POINT(0 0)"}]]
`,
			wantErr: "allow-list is empty",
		},
		{
			name: "no batches",
			yaml: `
name: x
description: d
mode: {name: duplicate}
`,
			wantErr: "batches list is required",
		},
		{
			name: "rois without grid",
			yaml: `
name: x
description: d
mode: {name: clip}
rois: [{code: R1, geometry: "POLYGON((0 0,1 0,1 1,0 0))"}]
batches: [[{id: a, class: w, geometry: "POINT(0 0)"}]]
`,
			wantErr: "rois require a grid",
		},
		{
			name: "record without class",
			yaml: `
name: x
description: d
mode: {name: duplicate}
batches: [[{id: a, geometry: "POINT(0 0)"}]]
`,
			wantErr: "class is required",
		},
		{
			name: "unknown assertion",
			yaml: `
name: x
description: d
mode: {name: duplicate}
batches: [[{id: a, class: w, geometry: "POINT(0 0)"}]]
assertions: [{type: trace_order}]
`,
			wantErr: "unknown type",
		},
		{
			name: "count without count",
			yaml: `
name: x
description: d
mode: {name: duplicate}
batches: [[{id: a, class: w, geometry: "POINT(0 0)"}]]
assertions: [{type: count}]
`,
			wantErr: "count requires count",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenarios_DirectoryAndFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), []byte(minimalScenario), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yml"), []byte(minimalScenario), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	all, err := LoadScenarios(dir)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	one, err := LoadScenarios(filepath.Join(dir, "b.yaml"))
	require.NoError(t, err)
	assert.Len(t, one, 1)
}

func TestLoadScenario_Missing(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read scenario file")
}
