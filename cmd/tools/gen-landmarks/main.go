// Command gen-landmarks writes synthetic landmark frames as JSONL, for use
// with `abduction --replay` or `detector-server --replay`.
//
// Usage:
//
//	go run ./cmd/tools/gen-landmarks -frames 300 -interval 33ms -out walk.jsonl
package main

import (
	"bufio"
	"flag"
	"log"
	"os"
	"time"

	"github.com/banshee-data/abduction.report/internal/pose/detector"
)

func main() {
	seed := flag.Int64("seed", 1, "Random seed")
	frames := flag.Int("frames", 300, "Number of frames to generate")
	interval := flag.Duration("interval", 33*time.Millisecond, "Time between frames")
	noise := flag.Float64("noise", -1, "Landmark noise in normalised units (negative keeps the generator default)")
	out := flag.String("out", "", "Output file (default: stdout)")
	flag.Parse()

	if *frames <= 0 || *interval <= 0 {
		log.Fatal("Error: -frames and -interval must be positive")
	}

	gen := detector.NewSyntheticGenerator(*seed)
	if *noise >= 0 {
		gen.Noise = *noise
	}

	w := os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			log.Fatalf("Failed to create output: %v", err)
		}
		defer f.Close()
		w = f
	}

	bw := bufio.NewWriter(w)
	if err := detector.WriteJSONL(bw, gen.Frames(*frames, *interval)); err != nil {
		log.Fatalf("Failed to write frames: %v", err)
	}
	if err := bw.Flush(); err != nil {
		log.Fatalf("Failed to flush output: %v", err)
	}
	if *out != "" {
		log.Printf("Wrote %d frames to %s", *frames, *out)
	}
}
