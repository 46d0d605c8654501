package stats

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/seubert/gammalog/internal/pkg/formula"
	"github.com/seubert/gammalog/internal/pkg/session"
	"github.com/seubert/gammalog/internal/pkg/slicer"
	istats "github.com/seubert/gammalog/internal/pkg/stats"
	"github.com/seubert/gammalog/internal/pkg/store"
	"github.com/seubert/gammalog/internal/pkg/vars"
)

var StatsCmd = &cobra.Command{
	Use:   "stats <logfile>",
	Short: "Summarize a window of a logfile",
	Long: `Load a logfile, slice the requested time window and print linear
fit, Poisson fit and dominant period per variable with data.`,
	Args: cobra.ExactArgs(1),
	RunE: runStats,
}

var (
	lastWindow time.Duration
	unitName   string
	avgPeriod  float64
)

func runStats(cmd *cobra.Command, args []string) error {
	st, err := store.Load(args[0])
	if err != nil {
		return err
	}
	if st.Len() == 0 {
		return fmt.Errorf("%s holds no records", args[0])
	}

	unit, err := slicer.ParseUnit(unitName)
	if err != nil {
		return err
	}

	first, last, _ := st.Span()
	window := slicer.Window{Left: first, Right: last}
	if lastWindow > 0 {
		window.Left = last - lastWindow.Hours()/24.0
	}

	// Graph formulas from the config file apply at display time
	cfg, cfgErr := session.FromViper(viper.GetViper())
	var engine *formula.Engine
	if cfgErr == nil {
		engine = formula.New(formula.Config{
			GraphFormulas: cfg.GraphFormulas,
			Sensitivities: cfg.Tubes,
		})
	}

	sl := slicer.New(engine).Slice(st, window, unit)
	fmt.Fprintf(os.Stdout, "%s: %d records, window unit %s\n\n", args[0], sl.Len(), sl.Unit)

	for _, name := range vars.Names() {
		col := sl.Column(name)
		if !hasFinite(col) {
			continue
		}
		fmt.Fprintf(os.Stdout, "%s:\n", name)
		printColumn(sl, name, col)
		fmt.Fprintln(os.Stdout)
	}
	return nil
}

func hasFinite(col []float64) bool {
	for _, v := range col {
		if !math.IsNaN(v) {
			return true
		}
	}
	return false
}

func printColumn(sl slicer.Slice, name vars.Name, col []float64) {
	if fit, err := istats.LinearFit(sl.Times, col); err == nil {
		fmt.Fprintf(os.Stdout, "  linear fit: slope %.4g per %s, intercept %.4g, delta %.4g, R² %.3f\n",
			fit.Slope, sl.Unit, fit.Intercept, fit.Delta, fit.R2)
	}

	if avgPeriod > 0 {
		if ma, err := istats.MovingAverage(sl.Times, col, avgPeriod, sl.AvgCycleSeconds()); err == nil {
			fmt.Fprintf(os.Stdout, "  moving average: kernel %d samples, %d points\n",
				ma.Kernel, len(ma.Values))
		}
	}

	if vars.IsCounter(name) {
		if pf, err := istats.PoissonFit(col); err == nil {
			fmt.Fprintf(os.Stdout, "  poisson fit: mean %.2f, bins %d, R² %.3f, SNR %.1f dB\n",
				pf.Mean, len(pf.Observed), pf.R2, pf.SNRdB)
		}
	}

	// The spectrum wants seconds on the time axis
	if sl.Unit == slicer.UnitSecond {
		if sp, err := istats.Spectrum(sl.Times, col); err == nil && !math.IsNaN(sp.DominantFreq) {
			fmt.Fprintf(os.Stdout, "  dominant period: %.1f s\n", sp.DominantPeriod)
		}
	}
}

func init() {
	StatsCmd.Flags().DurationVar(&lastWindow, "last", 0, "restrict to the trailing window, e.g. 2h (default: whole file)")
	StatsCmd.Flags().StringVarP(&unitName, "unit", "u", "auto", "time axis unit: auto|time|second|minute|hour|day|week|month")
	StatsCmd.Flags().Float64Var(&avgPeriod, "avg", 0, "moving-average period in seconds (0 disables)")
}
