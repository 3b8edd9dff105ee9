// Command detector-server serves a pose detector over gRPC so the main
// binary can be exercised with --detector-addr.
//
// Usage:
//
//	go run ./cmd/tools/detector-server [flags]
//
// Flags:
//
//	-addr    Listen address (default: localhost:50051)
//	-replay  JSONL file to serve; frames are looked up by request timestamp
//	-seed    Seed for the synthetic generator when -replay is unset
package main

import (
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"

	"github.com/banshee-data/abduction.report/internal/pose/detector"
	"github.com/banshee-data/abduction.report/internal/pose/l1landmarks"
)

func main() {
	addr := flag.String("addr", "localhost:50051", "Listen address")
	replay := flag.String("replay", "", "Path to a JSONL landmark file to serve")
	seed := flag.Int64("seed", 1, "Seed for the synthetic detector")
	flag.Parse()

	var det l1landmarks.Detector
	if *replay != "" {
		r, err := detector.OpenReplay(*replay, nil)
		if err != nil {
			log.Fatalf("Failed to open replay: %v", err)
		}
		log.Printf("Serving %d recorded frames from %s", r.Len(), *replay)
		det = r
	} else {
		log.Printf("Serving synthetic poses (seed %d)", *seed)
		det = detector.NewSyntheticGenerator(*seed)
	}

	lis, err := net.Listen("tcp", *addr)
	if err != nil {
		log.Fatalf("Failed to listen on %s: %v", *addr, err)
	}

	srv := grpc.NewServer()
	detector.NewServer(det).Register(srv)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Printf("Shutting down...")
		srv.GracefulStop()
	}()

	log.Printf("Detector listening on %s", lis.Addr())
	if err := srv.Serve(lis); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
