package export

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/jwtly10/trixplateau/internal/backtest"
	"github.com/jwtly10/trixplateau/internal/montecarlo"
	"github.com/jwtly10/trixplateau/internal/strategy"
	"github.com/jwtly10/trixplateau/internal/verdict"
	"github.com/jwtly10/trixplateau/internal/walkforward"
)

// Dir writes every artefact of one run into a directory. All rows carry the
// same run ID.
type Dir struct {
	Path  string
	RunID string
}

func NewDir(path string) (*Dir, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}
	return &Dir{Path: path, RunID: uuid.NewString()}, nil
}

// Write creates name inside the directory and hands it to fn.
func (d *Dir) Write(name string, fn func(w io.Writer) error) error {
	path := filepath.Join(d.Path, name)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	slog.Info("Wrote", "path", path)
	return nil
}

// Best is a highlighted triple with its metrics.
type Best struct {
	Triple    strategy.Triple  `json:"triple"`
	Metrics   backtest.Metrics `json:"metrics"`
	AlphaCAGR float64          `json:"alpha_cagr"`
	Score     float64          `json:"score,omitempty"`
}

// Summary is the machine-readable record of a full run.
type Summary struct {
	RunID     string    `json:"run_id"`
	Symbol    string    `json:"symbol"`
	Generated time.Time `json:"generated"`
	Bars      int       `json:"bars"`
	From      time.Time `json:"from"`
	To        time.Time `json:"to"`

	Benchmark    backtest.Metrics `json:"benchmark"`
	GridCells    int              `json:"grid_cells"`
	FailedCells  int              `json:"failed_cells"`
	BestPixel    *Best            `json:"best_pixel,omitempty"`
	TopPlateau   *Best            `json:"top_plateau,omitempty"`
	PlateauCount int              `json:"plateau_count"`

	WalkForward walkforward.Summary   `json:"walk_forward"`
	Embargo     int                   `json:"embargo_bars"`
	MonteCarlo  montecarlo.Summary    `json:"monte_carlo"`
	Bootstrap   *montecarlo.Bootstrap `json:"bootstrap,omitempty"`
	Verdict     verdict.Verdict       `json:"verdict"`
}

func WriteSummary(w io.Writer, s Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}
