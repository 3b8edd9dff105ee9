// Package l4quality owns Layer 4 (Quality) of the pose data model.
//
// Responsibilities: deciding whether a frame's six measured landmarks are
// trustworthy enough to publish the geometry derived from them. Two checks
// run in order: per-landmark visibility, then skeleton plausibility
// (finite coordinates and non-degenerate shoulder, hip and torso segments).
//
// Dependency rule: L4 may depend on L1-L3, never on the pipeline.
package l4quality
