package detector

import (
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/abduction.report/internal/pose/l1landmarks"
	"github.com/banshee-data/abduction.report/internal/timeutil"
)

// Request field names on the wire.
const (
	fieldTimestamp = "timestamp_ms"
	fieldFrame     = "frame"
)

// handleValue converts a frame handle to a wire value. Durations travel as
// milliseconds; anything structpb.NewValue accepts travels as is.
func handleValue(h l1landmarks.FrameHandle) (*structpb.Value, error) {
	switch v := h.(type) {
	case time.Duration:
		return structpb.NewNumberValue(timeutil.Millis(v)), nil
	case int:
		return structpb.NewNumberValue(float64(v)), nil
	}
	v, err := structpb.NewValue(h)
	if err != nil {
		return nil, fmt.Errorf("unsupported frame handle %T: %w", h, err)
	}
	return v, nil
}

// NewRequest builds the Detect request payload.
func NewRequest(h l1landmarks.FrameHandle, timestampMs float64) (*structpb.Struct, error) {
	hv, err := handleValue(h)
	if err != nil {
		return nil, err
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldTimestamp: structpb.NewNumberValue(timestampMs),
		fieldFrame:     hv,
	}}, nil
}

// ParseRequest extracts the handle and timestamp from a Detect request.
func ParseRequest(req *structpb.Struct) (l1landmarks.FrameHandle, float64) {
	var handle l1landmarks.FrameHandle
	if v := req.GetFields()[fieldFrame]; v != nil {
		handle = v.AsInterface()
	}
	return handle, req.GetFields()[fieldTimestamp].GetNumberValue()
}

// FrameToStruct encodes a frame as a Detect response.
func FrameToStruct(f l1landmarks.Frame) (*structpb.Struct, error) {
	if f.Landmarks == nil {
		f.Landmarks = []l1landmarks.Landmark{}
	}
	b, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(b, s); err != nil {
		return nil, err
	}
	return s, nil
}

// FrameFromStruct decodes a Detect response. Missing depth and visibility
// take the landmark defaults.
func FrameFromStruct(s *structpb.Struct) (l1landmarks.Frame, error) {
	b, err := protojson.Marshal(s)
	if err != nil {
		return l1landmarks.Frame{}, err
	}
	var f l1landmarks.Frame
	if err := json.Unmarshal(b, &f); err != nil {
		return l1landmarks.Frame{}, fmt.Errorf("decode landmarks: %w", err)
	}
	return f, nil
}
