// Package detector provides implementations of l1landmarks.Detector and
// l1landmarks.Source: a gRPC client for a remote pose-estimation service
// (and the matching server shim), a JSONL replay of recorded landmark
// frames, and a synthetic pose generator for demos and tests.
package detector
