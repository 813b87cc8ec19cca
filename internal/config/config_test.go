package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/georesolve/internal/resolve"
)

func TestLoad_RasterJob(t *testing.T) {
	job, err := Load("testdata/raster.yaml", Env{})
	require.NoError(t, err)

	assert.Equal(t, "raster", job.Mode)
	assert.Equal(t, 4, job.Workers)
	assert.Equal(t, DefaultRetries, job.SideInputs.Retries)

	m, err := job.ResolveMode()
	require.NoError(t, err)
	assert.Equal(t, resolve.Raster{MinArea: 2.5, Image: "ortho"}, m)
	assert.Equal(t, resolve.GroupByTile, job.EffectiveGroupBy(m))

	g, err := job.TileGrid()
	require.NoError(t, err)
	require.NotNil(t, g)
	assert.Equal(t, 10, g.NumTilesX())
	assert.Equal(t, "EPSG:32723", g.CRS())
}

func TestLoad_EnvFillsEmptyFields(t *testing.T) {
	env := Env{
		EnvGridURL:     "file:///env/grid.json",
		EnvROIURL:      "file:///env/roi.json",
		EnvWorkers:     "3",
		EnvS3SecretKey: "secret",
	}
	job, err := Load("testdata/clip_env.yaml", env)
	require.NoError(t, err)

	assert.Equal(t, "file:///env/grid.json", job.SideInputs.GridURL)
	assert.Equal(t, "file:///data/roi.json", job.SideInputs.ROIURL, "file value wins")
	assert.Equal(t, 3, job.Workers)
	assert.Equal(t, "secret", job.S3Config().SecretKey)
}

func TestLoad_ClipWithoutGridFails(t *testing.T) {
	_, err := Load("testdata/clip_env.yaml", Env{})
	require.Error(t, err)

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.True(t, hasField(verrs, "side_inputs.grid_url"), "errors: %v", verrs)
	for _, e := range verrs {
		assert.Equal(t, ErrSchemaViolation, e.Code)
	}
}

// hasField reports whether any error is at field or below it.
func hasField(errs []ValidationError, field string) bool {
	for _, e := range errs {
		if e.Field == field || strings.HasPrefix(e.Field, field+".") {
			return true
		}
	}
	return false
}

func TestParse_RejectsUnknownFields(t *testing.T) {
	data, err := os.ReadFile("testdata/unknown_field.yaml")
	require.NoError(t, err)

	_, err = Parse(data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workrs")
}

func TestParse_Empty(t *testing.T) {
	_, err := Parse(nil)
	assert.ErrorContains(t, err, "empty job file")
}

func TestValidate_SchemaRules(t *testing.T) {
	base := func() *Job {
		return &Job{Mode: "nested_loop", Workers: 1}
	}

	tests := []struct {
		name   string
		mutate func(*Job)
		field  string
	}{
		{"unknown mode", func(j *Job) { j.Mode = "paint" }, "mode"},
		{"negative min area", func(j *Job) { j.MinArea = -1 }, "min_area"},
		{"zero workers", func(j *Job) { j.Workers = 0 }, "workers"},
		{"bad group by", func(j *Job) { j.GroupBy = "class" }, "group_by"},
		{"raster without image", func(j *Job) {
			j.Mode = "raster"
			j.SideInputs.RasterURL = "file:///tiles/"
		}, "side_inputs.image"},
		{"merge without classes", func(j *Job) { j.Mode = "merge_indexed" }, "classes"},
		{"inverted grid", func(j *Job) {
			j.Grid = &Grid{West: 10, South: 0, East: 5, North: 10, CellSize: 1}
		}, "grid.east"},
		{"zero cell size", func(j *Job) {
			j.Grid = &Grid{West: 0, South: 0, East: 10, North: 10}
		}, "grid.cell_size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := base()
			tt.mutate(j)
			errs := j.Validate()
			require.NotEmpty(t, errs)
			assert.True(t, hasField(errs, tt.field), "errors: %v", errs)
		})
	}
}

func TestValidate_ValidJobs(t *testing.T) {
	jobs := []*Job{
		{Mode: "duplicate", Workers: 1},
		{Mode: "merge_aggregate", Classes: []string{"water"}, Workers: 2},
		{Mode: "merge_resolved", GroupBy: "id", Workers: 1},
		{
			Mode:       "clip",
			MinArea:    1,
			Workers:    1,
			SideInputs: SideInputs{GridURL: "g.json", ROIURL: "r.json"},
		},
	}
	for _, j := range jobs {
		t.Run(j.Mode, func(t *testing.T) {
			assert.Empty(t, j.Validate())
		})
	}
}

func TestValidate_ModeParamsChecked(t *testing.T) {
	j := &Job{Mode: "merge_aggregate", Classes: []string{"water", " "}, Workers: 1}
	errs := j.Validate()
	require.Len(t, errs, 1)
	assert.Equal(t, ErrInvalidMode, errs[0].Code)
}

func TestApplyEnv_BadWorkers(t *testing.T) {
	j := &Job{Mode: "duplicate"}
	err := j.ApplyEnv(Env{EnvWorkers: "many"})
	assert.ErrorContains(t, err, EnvWorkers)
}

func TestApplyEnv_DefaultWorkers(t *testing.T) {
	j := &Job{Mode: "duplicate"}
	require.NoError(t, j.ApplyEnv(Env{}))
	assert.GreaterOrEqual(t, j.Workers, 1)
}

func TestReadEnv(t *testing.T) {
	t.Setenv(EnvWorkers, "9")

	env, err := ReadEnv("testdata/test.env", filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "file:///data/grid.json", env[EnvGridURL])
	assert.Equal(t, "file-key", env[EnvS3AccessKey])
	assert.Equal(t, "9", env[EnvWorkers], "process environment wins")
	assert.NotContains(t, env, "UNRELATED")
}
