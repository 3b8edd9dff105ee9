// Package l2smoothing owns Layer 2 (Smoothing) of the pose data model.
//
// Responsibilities: a speed-adaptive low-pass filter (the One Euro filter)
// applied independently to every scalar landmark channel, and the Bank that
// owns one filter state per (landmark, axis) for the lifetime of a tracking
// session.
//
// Dependency rule: L2 may depend on L1, never on L3 and above.
package l2smoothing
