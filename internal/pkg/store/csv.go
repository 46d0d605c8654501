package store

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/seubert/gammalog/internal/pkg/constants"
	"github.com/seubert/gammalog/internal/pkg/vars"
)

// Persisted row format, one record per line:
//
//	index, stamp, CPM, CPS, CPM1st, CPS1st, CPM2nd, CPS2nd, CPM3rd, CPS3rd, Temp, Press, Humid, Xtra
//
// The stamp is fractional days since the Unix epoch with 8 decimals (sub-ms
// resolution). Missing values persist as empty cells. Lines starting with
// '#' are metadata comments and are skipped on read.

const (
	stampLayout    = "2006-01-02 15:04:05"
	stampPrecision = 8
)

func formatValue(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatRecord(r Record) string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(r.Index, 10))
	b.WriteString(", ")
	b.WriteString(strconv.FormatFloat(r.Stamp, 'f', stampPrecision, 64))
	for _, v := range r.Values {
		b.WriteString(", ")
		b.WriteString(formatValue(v))
	}
	b.WriteByte('\n')
	return b.String()
}

// ParseLine parses one persisted data row. Comment and blank lines yield
// ok == false with a nil error.
func ParseLine(line string) (Record, bool, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return Record{}, false, nil
	}

	fields := strings.Split(trimmed, ",")
	if len(fields) != constants.VariableCount+2 {
		return Record{}, false, fmt.Errorf("expected %d fields, got %d",
			constants.VariableCount+2, len(fields))
	}

	var r Record
	idx, err := strconv.ParseInt(strings.TrimSpace(fields[0]), 10, 64)
	if err != nil {
		return Record{}, false, fmt.Errorf("bad index %q: %w", fields[0], err)
	}
	r.Index = idx

	stamp, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
	if err != nil {
		return Record{}, false, fmt.Errorf("bad stamp %q: %w", fields[1], err)
	}
	r.Stamp = stamp

	for i := 0; i < constants.VariableCount; i++ {
		cell := strings.TrimSpace(fields[i+2])
		if cell == "" || strings.EqualFold(cell, "nan") {
			r.Values[i] = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return Record{}, false, fmt.Errorf("bad value %q in column %s: %w",
				cell, vars.Names()[i], err)
		}
		r.Values[i] = v
	}
	return r, true, nil
}

// parseLog parses a whole logfile body, skipping comments and counting
// unparseable lines.
func parseLog(data []byte) (records []Record, skipped int) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		r, ok, err := ParseLine(sc.Text())
		if err != nil {
			skipped++
			continue
		}
		if ok {
			records = append(records, r)
		}
	}
	return records, skipped
}

// WriteCSV emits records in the persisted row format, preceded by a
// commented column header. Used both by export and by external tools.
func WriteCSV(w io.Writer, records []Record) error {
	var header strings.Builder
	header.WriteString("# index, stamp")
	for _, name := range vars.Names() {
		header.WriteString(", ")
		header.WriteString(string(name))
	}
	header.WriteByte('\n')
	if _, err := io.WriteString(w, header.String()); err != nil {
		return err
	}
	for _, r := range records {
		if _, err := io.WriteString(w, formatRecord(r)); err != nil {
			return err
		}
	}
	return nil
}

// ReadCSV parses a whole exported document back into records.
func ReadCSV(r io.Reader) ([]Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	records, skipped := parseLog(data)
	if skipped > 0 {
		return records, fmt.Errorf("%d unparseable lines", skipped)
	}
	return records, nil
}
