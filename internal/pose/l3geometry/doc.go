// Package l3geometry owns Layer 3 (Geometry) of the pose data model.
//
// Responsibilities: the body midline (shoulder and hip midpoints plus a
// canonical unit axis), the angle between two image-plane vectors, the
// per-side hip abduction angle, and classification of angles into
// clinical zones.
//
// Degenerate input never produces NaN or infinity: it produces an
// undefined Angle.
//
// Dependency rule: L3 may depend on L1 and L2, never on L4 and above.
package l3geometry
