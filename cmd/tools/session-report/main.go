// Command session-report lists stored sessions or renders one as a PNG
// plot, an interactive HTML chart, an export file and a JSON summary.
//
// Usage:
//
//	go run ./cmd/tools/session-report -db abduction.db
//	go run ./cmd/tools/session-report -db abduction.db -id <session> -png -html -export -out reports/
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/banshee-data/abduction.report/internal/config"
	"github.com/banshee-data/abduction.report/internal/fsutil"
	"github.com/banshee-data/abduction.report/internal/pose/export"
	"github.com/banshee-data/abduction.report/internal/pose/storage/sqlite"
)

func main() {
	dbPath := flag.String("db", "abduction.db", "SQLite session database")
	configFile := flag.String("config", "", "Tuning config for zone thresholds and timezone")
	id := flag.String("id", "", "Session ID (omit to list sessions)")
	subject := flag.String("subject", "", "Filter the listing by subject code")
	limit := flag.Int("limit", 20, "Maximum sessions to list (0 for all)")
	tz := flag.String("timezone", "", "Display timezone (default from config)")
	outDir := flag.String("out", ".", "Output directory")
	png := flag.Bool("png", false, "Write a PNG plot")
	html := flag.Bool("html", false, "Write an HTML chart")
	exp := flag.Bool("export", false, "Write an export file")
	format := flag.String("format", "", "Export format: json or csv (default from config)")
	summary := flag.Bool("summary", true, "Print the session summary as JSON")
	flag.Parse()

	tuning := config.DefaultTuningConfig()
	if *configFile != "" {
		var err error
		if tuning, err = config.LoadTuningConfig(*configFile); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	f := tuning.GetExportFormat()
	if *format != "" {
		var err error
		if f, err = export.ParseFormat(*format); err != nil {
			log.Fatal(err)
		}
	}
	if *tz == "" {
		*tz = tuning.GetTimezone()
	}

	store, err := sqlite.Open(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	r := &reporter{store: store, fs: fsutil.OSFileSystem{}, out: os.Stdout}
	err = r.run(context.Background(), options{
		ID:        *id,
		Subject:   *subject,
		Limit:     *limit,
		Timezone:  *tz,
		Zones:     tuning.GetZones(),
		OutDir:    *outDir,
		PNG:       *png,
		HTML:      *html,
		Export:    *exp,
		Format:    f,
		Summarise: *summary,
	})
	if err != nil {
		store.Close()
		log.Fatalf("session-report: %v", err)
	}
}
