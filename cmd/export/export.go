package export

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/seubert/gammalog/internal/pkg/logger"
	"github.com/seubert/gammalog/internal/pkg/store"
)

var ExportCmd = &cobra.Command{
	Use:   "export <logfile>",
	Short: "Re-emit a window of a logfile as CSV",
	Long: `Load a logfile and write the requested window back out in the
persisted row format, to stdout or to a file.`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

var (
	lastWindow time.Duration
	outFile    string
)

func runExport(cmd *cobra.Command, args []string) error {
	st, err := store.Load(args[0])
	if err != nil {
		return err
	}

	first, last, ok := st.Span()
	if !ok {
		return fmt.Errorf("%s holds no records", args[0])
	}
	if lastWindow > 0 {
		first = last - lastWindow.Hours()/24.0
	}
	records := st.Range(first, last)

	var w io.Writer = os.Stdout
	if outFile != "" {
		f, err := os.Create(outFile)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	if err := store.WriteCSV(w, records); err != nil {
		return err
	}
	if outFile != "" {
		logger.Info("Exported records", "source", args[0], "dest", outFile, "records", len(records))
	}
	return nil
}

func init() {
	ExportCmd.Flags().DurationVar(&lastWindow, "last", 0, "restrict to the trailing window, e.g. 24h (default: whole file)")
	ExportCmd.Flags().StringVarP(&outFile, "out", "o", "", "write to file instead of stdout")
}
