// Package config loads resolve job files.
//
// A job file is YAML, decoded strictly (unknown fields are errors), then
// filled from the environment and validated against an embedded CUE
// schema. The environment may come from a .env file; variables already
// set in the process take precedence over the file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/roach88/georesolve/internal/resolve"
	"github.com/roach88/georesolve/internal/sideinput"
	"github.com/roach88/georesolve/internal/tilegrid"
)

// Job is one resolve job.
type Job struct {
	Mode       string     `yaml:"mode" json:"mode"`
	GroupBy    string     `yaml:"group_by,omitempty" json:"group_by,omitempty"`
	MinArea    float64    `yaml:"min_area,omitempty" json:"min_area"`
	Classes    []string   `yaml:"classes,omitempty" json:"classes,omitempty"`
	Grid       *Grid      `yaml:"grid,omitempty" json:"grid,omitempty"`
	SideInputs SideInputs `yaml:"side_inputs,omitempty" json:"side_inputs"`
	Workers    int        `yaml:"workers,omitempty" json:"workers"`
}

// Grid describes the tile grid in world coordinates.
type Grid struct {
	West     float64 `yaml:"west" json:"west"`
	South    float64 `yaml:"south" json:"south"`
	East     float64 `yaml:"east" json:"east"`
	North    float64 `yaml:"north" json:"north"`
	CellSize float64 `yaml:"cell_size" json:"cell_size"`
	CRS      string  `yaml:"crs,omitempty" json:"crs,omitempty"`
}

// SideInputs locates the grid, ROI and raster metadata inputs.
// Credentials are never read from the job file.
type SideInputs struct {
	GridURL    string `yaml:"grid_url,omitempty" json:"grid_url,omitempty"`
	ROIURL     string `yaml:"roi_url,omitempty" json:"roi_url,omitempty"`
	RasterURL  string `yaml:"raster_url,omitempty" json:"raster_url,omitempty"`
	Image      string `yaml:"image,omitempty" json:"image,omitempty"`
	S3Endpoint string `yaml:"s3_endpoint,omitempty" json:"s3_endpoint,omitempty"`
	S3Secure   bool   `yaml:"s3_secure,omitempty" json:"s3_secure,omitempty"`
	Retries    int    `yaml:"retries,omitempty" json:"retries,omitempty"`

	S3AccessKey string `yaml:"-" json:"-"`
	S3SecretKey string `yaml:"-" json:"-"`
}

// DefaultRetries is used when the job does not set side_inputs.retries.
const DefaultRetries = 3

// Load reads, fills and validates the job file at path. env supplies
// defaults for fields the file leaves empty; see ReadEnv.
func Load(path string, env Env) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read job file: %w", err)
	}
	job, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := job.ApplyEnv(env); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if errs := job.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("%s: %w", path, ValidationErrors(errs))
	}
	return job, nil
}

// Parse decodes a job file without applying the environment or validating.
func Parse(data []byte) (*Job, error) {
	var job Job
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&job); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty job file")
		}
		return nil, fmt.Errorf("parse job: %w", err)
	}
	return &job, nil
}

// ApplyEnv fills empty fields from env and applies built-in defaults.
func (j *Job) ApplyEnv(env Env) error {
	si := &j.SideInputs
	fill := func(dst *string, key string) {
		if *dst == "" {
			*dst = env[key]
		}
	}
	fill(&si.GridURL, EnvGridURL)
	fill(&si.ROIURL, EnvROIURL)
	fill(&si.RasterURL, EnvRasterURL)
	fill(&si.S3Endpoint, EnvS3Endpoint)
	fill(&si.S3AccessKey, EnvS3AccessKey)
	fill(&si.S3SecretKey, EnvS3SecretKey)

	if j.Workers == 0 {
		if v := env[EnvWorkers]; v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", EnvWorkers, err)
			}
			j.Workers = n
		} else {
			j.Workers = runtime.GOMAXPROCS(0)
		}
	}
	if si.Retries == 0 {
		si.Retries = DefaultRetries
	}
	return nil
}

// ResolveMode builds the resolve mode the job names.
func (j *Job) ResolveMode() (resolve.Mode, error) {
	return resolve.ParseMode(resolve.Params{
		Name:    j.Mode,
		MinArea: j.MinArea,
		Image:   j.SideInputs.Image,
		Classes: j.Classes,
	})
}

// EffectiveGroupBy returns group_by, or the mode's default when unset.
func (j *Job) EffectiveGroupBy(m resolve.Mode) string {
	if j.GroupBy != "" {
		return j.GroupBy
	}
	return m.DefaultGroupBy()
}

// TileGrid builds the grid, or returns nil when the job has none.
func (j *Job) TileGrid() (*tilegrid.Grid, error) {
	if j.Grid == nil {
		return nil, nil
	}
	g := j.Grid
	return tilegrid.New(g.West, g.South, g.East, g.North, g.CellSize, g.CRS)
}

// SideInputConfig returns the side-input locations.
func (j *Job) SideInputConfig() sideinput.Config {
	return sideinput.Config{
		GridURL:   j.SideInputs.GridURL,
		ROIURL:    j.SideInputs.ROIURL,
		RasterURL: j.SideInputs.RasterURL,
	}
}

// S3Config returns the object storage connection settings.
func (j *Job) S3Config() sideinput.S3Config {
	return sideinput.S3Config{
		Endpoint:  j.SideInputs.S3Endpoint,
		AccessKey: j.SideInputs.S3AccessKey,
		SecretKey: j.SideInputs.S3SecretKey,
		Secure:    j.SideInputs.S3Secure,
	}
}
