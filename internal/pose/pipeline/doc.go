// Package pipeline provides the real-time pose pipeline that orchestrates
// the landmark layers from L1 Landmarks through L4 Quality.
//
// This package is the composition root: it imports from the layer packages
// (l1landmarks, l2smoothing, l3geometry, l4quality) but none of those
// packages import pipeline/. It owns the Update Scheduler and the single
// published PoseState that renderers and the sampler read.
package pipeline
