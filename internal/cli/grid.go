package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/spf13/cobra"

	"github.com/roach88/georesolve/internal/config"
	"github.com/roach88/georesolve/internal/sideinput"
	"github.com/roach88/georesolve/internal/tilegrid"
)

// GridOptions holds flags shared by the grid subcommands.
type GridOptions struct {
	*RootOptions
	Config   string
	West     float64
	South    float64
	East     float64
	North    float64
	CellSize float64
	CRS      string
}

// TileInfo describes one tile in JSON output.
type TileInfo struct {
	Code   string     `json:"code"`
	I      int        `json:"i"`
	J      int        `json:"j"`
	Bounds [4]float64 `json:"bounds"`
}

// NewGridCommand creates the grid command and its subcommands.
func NewGridCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GridOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "grid",
		Short: "Tile grid utilities",
		Long: `Encode, decode and enumerate tiles of a regular grid.

The grid comes from the grid section of a job file (--config) or from the
--west/--south/--east/--north/--cell-size flags. Tile codes are "T<n>"
with n = j*columns + i + 1, counted from the south-west corner.`,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.Config, "config", "", "read the grid from this job YAML")
	pf.Float64Var(&opts.West, "west", 0, "world west bound")
	pf.Float64Var(&opts.South, "south", 0, "world south bound")
	pf.Float64Var(&opts.East, "east", 0, "world east bound")
	pf.Float64Var(&opts.North, "north", 0, "world north bound")
	pf.Float64Var(&opts.CellSize, "cell-size", 0, "tile edge length")
	pf.StringVar(&opts.CRS, "crs", "", "grid CRS")

	cmd.AddCommand(newGridEncodeCommand(opts))
	cmd.AddCommand(newGridDecodeCommand(opts))
	cmd.AddCommand(newGridCoverCommand(opts))
	cmd.AddCommand(newGridNeighborsCommand(opts))
	cmd.AddCommand(newGridGenerateCommand(opts))

	return cmd
}

// buildGrid returns the grid named by --config or the bound flags.
func (o *GridOptions) buildGrid() (*tilegrid.Grid, error) {
	if o.Config == "" {
		return tilegrid.New(o.West, o.South, o.East, o.North, o.CellSize, o.CRS)
	}
	data, err := os.ReadFile(o.Config)
	if err != nil {
		return nil, err
	}
	job, err := config.Parse(data)
	if err != nil {
		return nil, err
	}
	if job.Grid == nil {
		return nil, errors.New("job has no grid section")
	}
	return job.TileGrid()
}

func gridRunE(opts *GridOptions, run func(*OutputFormatter, *tilegrid.Grid, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		formatter := newFormatter(opts.RootOptions, cmd)
		g, err := opts.buildGrid()
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeConfig, "invalid grid", err)
		}
		return run(formatter, g, args)
	}
}

func tileInfo(g *tilegrid.Grid, i, j int) TileInfo {
	b := g.TileBounds(i, j)
	return TileInfo{
		Code:   g.Encode(i, j),
		I:      i,
		J:      j,
		Bounds: [4]float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]},
	}
}

func printCodes(f *OutputFormatter, codes []string) error {
	if f.Format == "json" {
		if codes == nil {
			codes = []string{}
		}
		return f.Success(codes)
	}
	for _, c := range codes {
		fmt.Fprintln(f.Writer, c)
	}
	return nil
}

func newGridEncodeCommand(opts *GridOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "encode <i> <j>",
		Short:         "Print the code of tile (i, j)",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: gridRunE(opts, func(f *OutputFormatter, g *tilegrid.Grid, args []string) error {
			i, errI := strconv.Atoi(args[0])
			j, errJ := strconv.Atoi(args[1])
			if err := errors.Join(errI, errJ); err != nil {
				return f.Fail(ExitCommandError, ErrCodeInput, "tile indices must be integers", err)
			}
			if !g.InRange(i, j) {
				return f.Fail(ExitCommandError, ErrCodeInput,
					fmt.Sprintf("tile (%d, %d) outside %dx%d grid", i, j, g.NumTilesX(), g.NumTilesY()), nil)
			}
			if f.Format == "json" {
				return f.Success(tileInfo(g, i, j))
			}
			fmt.Fprintln(f.Writer, g.Encode(i, j))
			return nil
		}),
	}
}

func newGridDecodeCommand(opts *GridOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "decode <code>",
		Short:         "Print the indices and bounds of a tile",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: gridRunE(opts, func(f *OutputFormatter, g *tilegrid.Grid, args []string) error {
			i, j, err := g.Decode(args[0])
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeInput, "invalid tile code", err)
			}
			info := tileInfo(g, i, j)
			if f.Format == "json" {
				return f.Success(info)
			}
			b := info.Bounds
			fmt.Fprintf(f.Writer, "%s i=%d j=%d bounds=%g,%g,%g,%g\n", info.Code, i, j, b[0], b[1], b[2], b[3])
			return nil
		}),
	}
}

func newGridCoverCommand(opts *GridOptions) *cobra.Command {
	var bbox string
	cmd := &cobra.Command{
		Use:   "cover",
		Short: "List the tiles touched by a box",
		Long: `List the codes of the grid tiles touched by --bbox, row by row from the
south. Tiles outside the grid are omitted.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: gridRunE(opts, func(f *OutputFormatter, g *tilegrid.Grid, _ []string) error {
			b, err := parseBBox(bbox)
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeInput, "invalid bbox", err)
			}
			var codes []string
			for _, t := range g.Tiles(b) {
				codes = append(codes, t.Code)
			}
			return printCodes(f, codes)
		}),
	}
	cmd.Flags().StringVar(&bbox, "bbox", "", "west,south,east,north (required)")
	_ = cmd.MarkFlagRequired("bbox")
	return cmd
}

func newGridNeighborsCommand(opts *GridOptions) *cobra.Command {
	var dirs string
	cmd := &cobra.Command{
		Use:           "neighbors <code>",
		Short:         "List the neighbours of a tile",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: gridRunE(opts, func(f *OutputFormatter, g *tilegrid.Grid, args []string) error {
			ds, err := tilegrid.ParseDirections(dirs)
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeInput, "invalid directions", err)
			}
			codes, err := g.Neighbors(args[0], ds)
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeInput, "invalid tile code", err)
			}
			return printCodes(f, codes)
		}),
	}
	cmd.Flags().StringVar(&dirs, "dirs", "all", "comma-separated directions (N,NE,E,SE,S,SW,W,NW) or all")
	return cmd
}

func newGridGenerateCommand(opts *GridOptions) *cobra.Command {
	var bbox, output string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write the grid side input",
		Long: `Write the grid side input read by clip mode: a JSON array of
{id, code, geometry} entries, one per tile touched by --bbox (default: the
whole grid).`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: gridRunE(opts, func(f *OutputFormatter, g *tilegrid.Grid, _ []string) error {
			b := g.World()
			if bbox != "" {
				var err error
				if b, err = parseBBox(bbox); err != nil {
					return f.Fail(ExitCommandError, ErrCodeInput, "invalid bbox", err)
				}
			}
			data, err := sideinput.GenerateGrid(g, b)
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeGeneric, "failed to generate grid", err)
			}
			data = append(data, '\n')
			if output == "" {
				_, err = f.Writer.Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0644); err != nil {
				return f.Fail(ExitCommandError, ErrCodeGeneric, "failed to write grid", err)
			}
			f.VerboseLog("Wrote %s", output)
			return nil
		}),
	}
	cmd.Flags().StringVar(&bbox, "bbox", "", "west,south,east,north (default whole grid)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

// parseBBox parses "west,south,east,north".
func parseBBox(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("want west,south,east,north, got %q", s)
	}
	var v [4]float64
	for k, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("bbox[%d]: %w", k, err)
		}
		v[k] = f
	}
	if v[2] < v[0] || v[3] < v[1] {
		return orb.Bound{}, fmt.Errorf("bbox %q has max below min", s)
	}
	return orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}, nil
}
