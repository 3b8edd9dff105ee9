package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/abduction.report/internal/pose/export"
	"github.com/banshee-data/abduction.report/internal/pose/storage/sqlite"
	"github.com/banshee-data/abduction.report/internal/timeutil"
	"github.com/banshee-data/abduction.report/internal/version"
)

var (
	listen       = flag.String("listen", ":8080", "Listen address")
	dbFile       = flag.String("db", "abduction.db", "SQLite session database (empty disables storage)")
	configFile   = flag.String("config", "", "Tuning config file (.json, .yaml or .yml)")
	detectorAddr = flag.String("detector-addr", "", "gRPC address of a remote pose detector")
	replayFile   = flag.String("replay", "", "Replay recorded detector output from a JSONL file")
	seed         = flag.Int64("seed", 1, "Seed for the synthetic detector")
	fps          = flag.Float64("fps", 30, "Frame rate of the camera source")
	exportDir    = flag.String("export-dir", "", "Also write each finalized session to this directory")
	verbose      = flag.Bool("verbose", false, "Enable diagnostic logging")
	traceLog     = flag.Bool("trace", false, "Enable per-frame trace logging")
	showVersion  = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("abduction"))
		return
	}
	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	configureLogging(os.Stderr, *verbose, *traceLog)

	tuning, err := loadTuning(*configFile)
	if err != nil {
		log.Fatalf("failed to load tuning config: %v", err)
	}

	clock := timeutil.RealClock{}
	det, err := newDetector(*detectorAddr, *replayFile, *seed, *fps, clock)
	if err != nil {
		log.Fatalf("failed to set up detector: %v", err)
	}
	defer det.close()
	log.Printf("using %s detector", det.name)

	var store *sqlite.Store
	if *dbFile != "" {
		store, err = sqlite.Open(*dbFile)
		if err != nil {
			log.Fatalf("Failed to open session database: %v", err)
		}
		defer store.Close()
	}

	var exports *export.Writer
	if *exportDir != "" {
		exports = export.NewWriter(*exportDir, tuning.GetExportFormat())
	}

	a, err := newApp(tuning, det, store, exports, clock)
	if err != nil {
		log.Fatalf("failed to start pipeline: %v", err)
	}
	mux, err := a.routes()
	if err != nil {
		log.Fatalf("failed to mount routes: %v", err)
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.run(ctx)
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		server := &http.Server{
			Addr:    *listen,
			Handler: mux,
		}

		go func() {
			log.Printf("listening on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
