package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/banshee-data/abduction.report/internal/units"
)

var pointNames = []string{"leftShoulder", "rightShoulder", "leftHip", "rightHip", "leftKnee", "rightKnee"}

// CSVHeader returns the column names written by WriteCSV.
func CSVHeader() []string {
	h := []string{"patientCode", "index", "timestamp", "valid", "quality", "avgAngle", "leftAngle", "rightAngle"}
	for _, m := range []string{"S_mid", "H_mid"} {
		h = append(h, m+"_x", m+"_y", m+"_z")
	}
	for _, p := range pointNames {
		h = append(h, p+"_x", p+"_y", p+"_z", p+"_v")
	}
	return h
}

func (r *Record) points() []**Point {
	return []**Point{&r.LeftShoulder, &r.RightShoulder, &r.LeftHip, &r.RightHip, &r.LeftKnee, &r.RightKnee}
}

func fixed(v float64, places int) string {
	return strconv.FormatFloat(v, 'f', places, 64)
}

func fixedPtr(v *float64, places int) string {
	if v == nil {
		return ""
	}
	return fixed(*v, places)
}

func (r Record) csvRow() []string {
	row := []string{
		r.PatientCode,
		strconv.Itoa(r.Index),
		fixed(r.Timestamp, units.OffsetPlaces),
		strconv.FormatBool(r.Valid),
		r.Quality,
		fixedPtr(r.AvgAngle, units.AnglePlaces),
		fixedPtr(r.LeftAngle, units.AnglePlaces),
		fixedPtr(r.RightAngle, units.AnglePlaces),
	}
	if r.Midline != nil {
		for _, v := range []Vec3{r.Midline.ShoulderMid, r.Midline.HipMid} {
			row = append(row, fixed(v.X, units.CoordinatePlaces), fixed(v.Y, units.CoordinatePlaces), fixed(v.Z, units.CoordinatePlaces))
		}
	} else {
		row = append(row, "", "", "", "", "", "")
	}
	for _, pp := range r.points() {
		if p := *pp; p != nil {
			row = append(row,
				fixed(p.X, units.CoordinatePlaces), fixed(p.Y, units.CoordinatePlaces),
				fixed(p.Z, units.CoordinatePlaces), fixed(p.V, units.CoordinatePlaces))
		} else {
			row = append(row, "", "", "", "")
		}
	}
	return row
}

// WriteCSV writes records with a header row. Null fields are empty cells.
func WriteCSV(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader()); err != nil {
		return err
	}
	for _, r := range records {
		if err := cw.Write(r.csvRow()); err != nil {
			return fmt.Errorf("write record %d: %w", r.Index, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses a file written by WriteCSV.
func ReadCSV(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) != len(CSVHeader()) {
		return nil, fmt.Errorf("unexpected header with %d columns", len(header))
	}

	var records []Record
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		rec, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

type rowParser struct {
	row []string
	pos int
	err error
}

func (p *rowParser) next() string {
	s := p.row[p.pos]
	p.pos++
	return s
}

func (p *rowParser) float() float64 {
	s := p.next()
	if p.err != nil {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		p.err = fmt.Errorf("column %d: %w", p.pos, err)
	}
	return v
}

func (p *rowParser) optional() *float64 {
	if p.row[p.pos] == "" {
		p.pos++
		return nil
	}
	v := p.float()
	return &v
}

// group reports whether the next n cells are all populated, skipping them
// when they are all empty.
func (p *rowParser) group(n int) bool {
	for _, s := range p.row[p.pos : p.pos+n] {
		if s != "" {
			return true
		}
	}
	p.pos += n
	return false
}

func parseRow(row []string) (Record, error) {
	p := &rowParser{row: row}
	var r Record
	r.PatientCode = p.next()
	idx, err := strconv.Atoi(p.next())
	if err != nil {
		return r, fmt.Errorf("index: %w", err)
	}
	r.Index = idx
	r.Timestamp = p.float()
	valid, err := strconv.ParseBool(p.next())
	if err != nil {
		return r, fmt.Errorf("valid: %w", err)
	}
	r.Valid = valid
	r.Quality = p.next()
	r.AvgAngle = p.optional()
	r.LeftAngle = p.optional()
	r.RightAngle = p.optional()
	if p.group(6) {
		r.Midline = &Midline{
			ShoulderMid: Vec3{X: p.float(), Y: p.float(), Z: p.float()},
			HipMid:      Vec3{X: p.float(), Y: p.float(), Z: p.float()},
		}
	}
	for _, pp := range r.points() {
		if p.group(4) {
			*pp = &Point{X: p.float(), Y: p.float(), Z: p.float(), V: p.float()}
		}
	}
	return r, p.err
}
