// Package l1landmarks owns Layer 1 (Landmarks) of the pose data model.
//
// Responsibilities: the landmark and frame types produced by the external
// pose-estimation collaborator, the MediaPipe 33-point landmark indices,
// extraction of the six landmarks the abduction measurement depends on,
// and the Detector / Source contracts the scheduler consumes.
//
// Dependency rule: L1 depends on nothing else under internal/pose.
package l1landmarks
