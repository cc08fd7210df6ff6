package archive

import (
	"fmt"
	"os"

	"github.com/ITNoesis/pas/internal/errors"
	"github.com/ITNoesis/pas/internal/logging"
	"github.com/ITNoesis/pas/internal/series"
)

// ReadWindow reads and decodes one window file. The format is chosen by
// file extension.
func ReadWindow(path string) (*Window, error) {
	codec, err := CodecForPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	win, err := codec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return win, nil
}

// FileResult is the outcome of loading one file.
type FileResult struct {
	Path       string
	Categories int
	Samples    int
	Err        error
}

// LoadReport summarizes a Load call.
type LoadReport struct {
	Files   []FileResult
	Loaded  int
	Failed  int
	Samples int
}

// Err joins the errors of all failed files.
func (r LoadReport) Err() error {
	var errs []error
	for _, f := range r.Files {
		if f.Err != nil {
			errs = append(errs, f.Err)
		}
	}
	return errors.Join(errs...)
}

// Load appends the samples of every file in paths to store, files in the
// given order and samples in file order. A file that cannot be read or
// decoded is reported and skipped. Loading more samples than the store
// holds evicts the oldest as usual.
func Load(store *series.Store, paths []string) LoadReport {
	log := logging.Component("reader")
	var report LoadReport

	for _, path := range paths {
		res := FileResult{Path: path}

		win, err := ReadWindow(path)
		if err != nil {
			res.Err = err
			report.Failed++
			report.Files = append(report.Files, res)
			log.Warn("skipping archive file", "file", path, "error", err, "corrupt", errors.IsCorrupt(err))
			continue
		}

		for _, cat := range win.Categories() {
			for _, s := range win.Series[cat] {
				store.Append(cat, s)
			}
		}

		res.Categories = len(win.Series)
		res.Samples = win.NumSamples()
		report.Loaded++
		report.Samples += res.Samples
		report.Files = append(report.Files, res)
		log.Debug("archive file loaded", "file", path, "samples", res.Samples)
	}

	return report
}
