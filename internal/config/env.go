package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables read as job defaults.
const (
	EnvGridURL     = "GEORESOLVE_GRID_URL"
	EnvROIURL      = "GEORESOLVE_ROI_URL"
	EnvRasterURL   = "GEORESOLVE_RASTER_URL"
	EnvS3Endpoint  = "GEORESOLVE_S3_ENDPOINT"
	EnvS3AccessKey = "GEORESOLVE_S3_ACCESS_KEY"
	EnvS3SecretKey = "GEORESOLVE_S3_SECRET_KEY"
	EnvWorkers     = "GEORESOLVE_WORKERS"
)

const envPrefix = "GEORESOLVE_"

// Env holds GEORESOLVE_* variables.
type Env map[string]string

// ReadEnv reads GEORESOLVE_* variables from the given .env files, then
// overlays the process environment. Missing files are skipped.
func ReadEnv(files ...string) (Env, error) {
	env := Env{}
	for _, f := range files {
		vals, err := godotenv.Read(f)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f, err)
		}
		for k, v := range vals {
			if strings.HasPrefix(k, envPrefix) {
				env[k] = v
			}
		}
	}
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if ok && strings.HasPrefix(k, envPrefix) {
			env[k] = v
		}
	}
	return env, nil
}
