package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/maltedev/offer-scraper/internal/logger"
	"github.com/maltedev/offer-scraper/internal/sheet"
)

// sheet-split writes every visible sheet of a workbook to its own file.
func main() {
	var (
		input  = flag.String("input", "example_table.xlsx", "Workbook to split")
		outDir = flag.String("out", "sheets", "Directory for the per-sheet workbooks")
		level  = flag.String("log-level", "info", "Log level")
	)
	flag.Parse()

	logger := logger.New(*level, "text")
	slog.SetDefault(logger)

	written, err := sheet.SplitVisibleSheets(*input, *outDir, logger)
	if err != nil {
		logger.Error("failed to split workbook", "input", *input, "error", err)
		os.Exit(1)
	}

	for _, path := range written {
		fmt.Println(path)
	}
}
