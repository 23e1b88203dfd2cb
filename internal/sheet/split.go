package sheet

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

var ErrNoVisibleSheets = errors.New("workbook has no visible sheets")

// SplitVisibleSheets writes every visible sheet of the workbook at path into its
// own <outDir>/<sheet>.xlsx. Hidden sheets are skipped. It returns the written paths.
func SplitVisibleSheets(path, outDir string, logger *slog.Logger) ([]string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "sheet_split")

	visible, hidden, err := classifySheets(path)
	if err != nil {
		return nil, err
	}
	if len(visible) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoVisibleSheets)
	}
	if len(hidden) > 0 {
		logger.Info("skipping hidden sheets", "sheets", hidden)
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	var written []string
	for _, keep := range visible {
		out := filepath.Join(outDir, keep+".xlsx")
		if err := extractSheet(path, keep, out); err != nil {
			return written, err
		}
		logger.Info("sheet written", "sheet", keep, "path", out)
		written = append(written, out)
	}

	return written, nil
}

func classifySheets(path string) (visible, hidden []string, err error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	defer f.Close()

	for _, name := range f.GetSheetList() {
		ok, err := f.GetSheetVisible(name)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read visibility of %q: %w", name, err)
		}
		if ok {
			visible = append(visible, name)
		} else {
			hidden = append(hidden, name)
		}
	}
	return visible, hidden, nil
}

// extractSheet reloads the source workbook, drops every other sheet and saves the
// copy, so styles and formulas of the kept sheet survive.
func extractSheet(path, keep, out string) error {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	defer f.Close()

	for _, name := range f.GetSheetList() {
		if name == keep {
			continue
		}
		if err := f.DeleteSheet(name); err != nil {
			return fmt.Errorf("failed to drop sheet %q: %w", name, err)
		}
	}

	idx, err := f.GetSheetIndex(keep)
	if err != nil {
		return err
	}
	f.SetActiveSheet(idx)

	if err := f.SaveAs(out); err != nil {
		return fmt.Errorf("failed to save %s: %w", out, err)
	}
	return nil
}
