// Package report writes a finished run to disk as JSON, CSV, XLSX and
// markdown.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/stockleads/internal/model"
	"github.com/sells-group/stockleads/internal/scorer"
)

// Format is an output file format.
type Format string

const (
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatXLSX     Format = "xlsx"
	FormatMarkdown Format = "md"
)

// ParseFormats validates format names, dropping duplicates.
func ParseFormats(names []string) ([]Format, error) {
	var out []Format
	seen := make(map[Format]bool)
	for _, n := range names {
		for _, part := range strings.Split(n, ",") {
			f := Format(strings.ToLower(strings.TrimSpace(part)))
			if f == "" || seen[f] {
				continue
			}
			switch f {
			case FormatJSON, FormatCSV, FormatXLSX, FormatMarkdown:
			default:
				return nil, eris.Errorf("report: unknown format %q", part)
			}
			seen[f] = true
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return nil, eris.New("report: no output formats")
	}
	return out, nil
}

// Options tune the human-facing reports.
type Options struct {
	// Band highlights leads in the target growth range. Nil disables it.
	Band *scorer.Band
	// TopN caps the highlighted tables; zero means 10.
	TopN int
	// MinConfidence selects the quality leads list. Zero disables it.
	MinConfidence float64
	// PerSource also writes one JSON document per source.
	PerSource bool
}

func (o Options) topN() int {
	if o.TopN <= 0 {
		return 10
	}
	return o.TopN
}

// WriteAll writes every requested format into dir and returns the paths
// written. Files are named after the run start time and run id. With a
// quality threshold the CSV format also gets a quality_leads file.
func WriteAll(dir string, r *model.RunResult, formats []Format, opts Options) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "report: create %s", dir)
	}

	stem := fileStem(r)
	var paths []string
	for _, f := range formats {
		name := "leads_" + stem + "." + string(f)
		if f == FormatMarkdown {
			name = "summary_" + stem + ".md"
		}
		path := filepath.Join(dir, name)
		if err := writeFile(path, func(w io.Writer) error {
			switch f {
			case FormatJSON:
				return WriteJSON(w, r)
			case FormatCSV:
				return WriteCSV(w, r.Leads)
			case FormatXLSX:
				return WriteXLSX(w, r, opts)
			case FormatMarkdown:
				return WriteMarkdown(w, r, opts)
			default:
				return eris.Errorf("report: unknown format %q", f)
			}
		}); err != nil {
			return paths, err
		}
		zap.L().Info("report: written", zap.String("format", string(f)), zap.String("path", path))
		paths = append(paths, path)

		if f == FormatCSV && opts.MinConfidence > 0 {
			qpath := filepath.Join(dir, "quality_leads_"+stem+".csv")
			quality := QualityLeads(r.Leads, opts.MinConfidence)
			if err := writeFile(qpath, func(w io.Writer) error {
				return WriteCSV(w, quality)
			}); err != nil {
				return paths, err
			}
			zap.L().Info("report: quality leads written", zap.String("path", qpath), zap.Int("leads", len(quality)))
			paths = append(paths, qpath)
		}
	}

	if opts.PerSource {
		for _, doc := range SourceDocuments(r) {
			path := sourceFileName(dir, doc.Stats.Source, stem)
			if err := writeFile(path, func(w io.Writer) error {
				return WriteSourceJSON(w, doc)
			}); err != nil {
				return paths, err
			}
			paths = append(paths, path)
		}
		zap.L().Info("report: per-source documents written", zap.Int("sources", len(r.Summary.Sources)))
	}
	return paths, nil
}

func fileStem(r *model.RunResult) string {
	stem := r.StartedAt.UTC().Format("20060102_150405")
	if id := r.RunID; id != "" {
		if len(id) > 8 {
			id = id[:8]
		}
		stem += "_" + id
	}
	return stem
}

func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "report: create %s", path)
	}
	if err := fn(f); err != nil {
		f.Close() //nolint:errcheck
		return eris.Wrapf(err, "report: write %s", path)
	}
	return eris.Wrapf(f.Close(), "report: close %s", path)
}

// WriteJSON writes the run document.
func WriteJSON(w io.Writer, r *model.RunResult) error {
	return writeIndentedJSON(w, r)
}

func writeIndentedJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "report: encode json")
}

func decimalText(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.String()
}

func displayDecimal(d *decimal.Decimal, prefix, suffix string) string {
	if d == nil {
		return "N/A"
	}
	return prefix + d.String() + suffix
}

func confidenceText(c float64) string {
	return fmt.Sprintf("%.2f", c)
}
