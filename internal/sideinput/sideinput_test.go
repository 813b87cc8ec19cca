package sideinput

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/georesolve/internal/tilegrid"
)

const metaText = "ortho\n\n10\n5\n0\n0\n100\n50\n"

func TestParseRasterMeta(t *testing.T) {
	m, err := ParseRasterMeta([]byte(metaText))
	require.NoError(t, err)
	assert.Equal(t, 10, m.Width)
	assert.Equal(t, 5, m.Height)
	assert.Equal(t, orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{100, 50}}, m.Bounds)
	assert.InDelta(t, 10.0, m.ResX(), 1e-12)
	assert.InDelta(t, -10.0, m.ResY(), 1e-12)

	again, err := ParseRasterMeta(FormatRasterMeta("ortho", m))
	require.NoError(t, err)
	assert.Equal(t, m, again)
}

func TestParseRasterMeta_Errors(t *testing.T) {
	for name, text := range map[string]string{
		"short":      "h\n1\n2\n",
		"width":      "h\nx\n5\n0\n0\n1\n1\n",
		"zero size":  "h\n0\n5\n0\n0\n1\n1\n",
		"empty bbox": "h\n1\n1\n5\n0\n5\n1\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseRasterMeta([]byte(text))
			assert.Error(t, err)
		})
	}
}

func TestGenerateGrid_ParseGrid(t *testing.T) {
	tg := tilegrid.MustNew(0, 0, 300, 200, 100, "EPSG:32723")
	data, err := GenerateGrid(tg, tg.World())
	require.NoError(t, err)

	cells, err := ParseGrid(data)
	require.NoError(t, err)
	require.Len(t, cells, 6)
	assert.Equal(t, "T1", cells[0].Code)
	assert.Equal(t, 1, cells[0].ID)
	assert.Equal(t, "T6", cells[5].Code)
	assert.Equal(t, orb.Bound{Min: orb.Point{200, 100}, Max: orb.Point{300, 200}}, cells[5].Bounds)
}

func TestParseROIs_Errors(t *testing.T) {
	_, err := ParseROIs([]byte(`[{"code":"","geometry":"POLYGON((0 0,1 0,1 1,0 0))"}]`))
	assert.ErrorContains(t, err, "missing code")

	_, err = ParseROIs([]byte(`[{"code":"R1","geometry":"nope"}]`))
	assert.Error(t, err)

	_, err = ParseROIs([]byte(`{`))
	assert.Error(t, err)
}

func TestNew_SelectsTilesMeetingROIs(t *testing.T) {
	tg := tilegrid.MustNew(0, 0, 300, 300, 100, "")
	data, err := GenerateGrid(tg, tg.World())
	require.NoError(t, err)
	grid, err := ParseGrid(data)
	require.NoError(t, err)
	rois, err := ParseROIs([]byte(`[{"code":"R1","geometry":"POLYGON((10 10,50 10,50 50,10 50,10 10))"},
		{"code":"R2","geometry":"POLYGON((210 210,290 210,290 290,210 290,210 210))"}]`))
	require.NoError(t, err)

	wc := New(grid, rois, "", nil)
	assert.True(t, wc.HasClip())
	assert.Equal(t, []string{"T1", "T9"}, wc.SelectedTiles())
	assert.True(t, wc.TileSelected("T9"))
	assert.False(t, wc.TileSelected("T5"))

	hits := wc.ROIsIntersecting(orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{300, 300}})
	require.Len(t, hits, 2)
	assert.Equal(t, "R1", hits[0].Code)
}

func TestNew_NoClipWithoutInputs(t *testing.T) {
	wc := New(nil, nil, "", nil)
	assert.False(t, wc.HasClip())
	assert.Empty(t, wc.SelectedTiles())
}

func TestLoad_FromFiles(t *testing.T) {
	dir := t.TempDir()
	tg := tilegrid.MustNew(0, 0, 200, 100, 100, "")
	gridData, err := GenerateGrid(tg, tg.World())
	require.NoError(t, err)
	gridPath := filepath.Join(dir, "grid.json")
	require.NoError(t, os.WriteFile(gridPath, gridData, 0o644))
	roiPath := filepath.Join(dir, "roi.json")
	require.NoError(t, os.WriteFile(roiPath, []byte(`[{"code":"R1","geometry":"POLYGON((150 10,160 10,160 20,150 10))"}]`), 0o644))

	wc, err := Load(context.Background(), Config{GridURL: "file://" + gridPath, ROIURL: roiPath}, MultiFetcher{File: FileFetcher{}})
	require.NoError(t, err)
	assert.Len(t, wc.Grid(), 2)
	assert.Len(t, wc.ROIs(), 1)
	assert.Equal(t, []string{"T2"}, wc.SelectedTiles())
}

func TestLoad_FailureIsLoadError(t *testing.T) {
	_, err := Load(context.Background(), Config{GridURL: filepath.Join(t.TempDir(), "missing.json")}, FileFetcher{})
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, KindGrid, le.Kind)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRasterMeta_LoadedOncePerTile(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/tiles/ortho/T7.meta" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, metaText)
	}))
	defer srv.Close()

	wc := New(nil, nil, srv.URL+"/tiles/", HTTPFetcher{Client: srv.Client()})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, err := wc.RasterMeta(context.Background(), "ortho", "T7")
			assert.NoError(t, err)
			assert.Equal(t, 10, m.Width)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), hits.Load())

	_, err := wc.RasterMeta(context.Background(), "ortho", "T8")
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, KindRaster, le.Kind)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRasterMeta_Preloaded(t *testing.T) {
	m := RasterMeta{Width: 2, Height: 2, Bounds: orb.Bound{Max: orb.Point{2, 2}}}
	wc := New(nil, nil, "", nil, WithRasterMeta("img", "T1", m))
	got, err := wc.RasterMeta(context.Background(), "img", "T1")
	require.NoError(t, err)
	assert.Equal(t, m, got)

	_, err = wc.RasterMeta(context.Background(), "img", "T2")
	assert.Error(t, err)
}

type flakyFetcher struct {
	failures int
	calls    int
	err      error
}

func (f *flakyFetcher) Fetch(context.Context, string) ([]byte, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	return []byte("ok"), nil
}

func zeroBackOff() backoff.BackOff { return &backoff.ZeroBackOff{} }

func TestRetryFetcher_RetriesTransient(t *testing.T) {
	flaky := &flakyFetcher{failures: 2, err: errors.New("connection reset")}
	data, err := RetryFetcher{Next: flaky, MaxRetries: 3, NewBackOff: zeroBackOff}.Fetch(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "ok", string(data))
	assert.Equal(t, 3, flaky.calls)
}

func TestRetryFetcher_GivesUp(t *testing.T) {
	flaky := &flakyFetcher{failures: 10, err: errors.New("503")}
	_, err := RetryFetcher{Next: flaky, MaxRetries: 2, NewBackOff: zeroBackOff}.Fetch(context.Background(), "x")
	assert.Error(t, err)
	assert.Equal(t, 3, flaky.calls)
}

func TestRetryFetcher_NotFoundIsPermanent(t *testing.T) {
	flaky := &flakyFetcher{failures: 10, err: fmt.Errorf("%w: x", ErrNotFound)}
	_, err := RetryFetcher{Next: flaky, MaxRetries: 5, NewBackOff: zeroBackOff}.Fetch(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, flaky.calls)
}

func TestMultiFetcher_Routing(t *testing.T) {
	rec := func(tag string) Fetcher { return taggedFetcher(tag) }
	m := MultiFetcher{File: rec("file"), HTTP: rec("http"), S3: rec("s3")}
	for url, want := range map[string]string{
		"/data/grid.json":        "file",
		"file:///data/grid.json": "file",
		"http://host/x":          "http",
		"https://host/x":         "http",
		"s3://bucket/key":        "s3",
	} {
		data, err := m.Fetch(context.Background(), url)
		require.NoError(t, err, url)
		assert.Equal(t, want, string(data), url)
	}

	_, err := MultiFetcher{}.Fetch(context.Background(), "s3://b/k")
	assert.ErrorContains(t, err, "no fetcher")
	_, err = m.Fetch(context.Background(), "ftp://host/x")
	assert.Error(t, err)
}

type taggedFetcher string

func (f taggedFetcher) Fetch(context.Context, string) ([]byte, error) { return []byte(f), nil }

func TestSplitS3URL(t *testing.T) {
	bucket, key, err := splitS3URL("s3://tiles/ortho/T1.meta")
	require.NoError(t, err)
	assert.Equal(t, "tiles", bucket)
	assert.Equal(t, "ortho/T1.meta", key)

	_, _, err = splitS3URL("s3://tiles/")
	assert.Error(t, err)
	_, _, err = splitS3URL("http://tiles/x")
	assert.Error(t, err)
}

func TestNewDefaultFetcher_S3Optional(t *testing.T) {
	f, err := NewDefaultFetcher(S3Config{}, 1)
	require.NoError(t, err)
	_, err = f.Fetch(context.Background(), "s3://b/k")
	assert.ErrorContains(t, err, "no fetcher")

	f, err = NewDefaultFetcher(S3Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "b"}, 0)
	require.NoError(t, err)
	assert.NotNil(t, f)
}
