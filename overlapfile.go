package gofootprint

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/paulmach/orb/encoding/wkt"
	"github.com/pkg/errors"
)

// OverlapWriter writes overlap records as text, one record per line: the
// serial numbers separated by tabs, then a tab and the polygon as WKT.
type OverlapWriter struct {
	w       *bufio.Writer
	written int
}

// NewOverlapWriter wraps w. Call Flush when done.
func NewOverlapWriter(w io.Writer) *OverlapWriter {
	return &OverlapWriter{w: bufio.NewWriter(w)}
}

// WriteOverlap writes rec. Records with an empty polygon are skipped.
func (o *OverlapWriter) WriteOverlap(rec OverlapRecord) error {
	if isEmpty(rec.Polygon) {
		return nil
	}
	if len(rec.Serials) == 0 {
		return programmerError("overlap record has no serial numbers")
	}
	for _, s := range rec.Serials {
		if s == "" || strings.ContainsAny(s, "\t\r\n") {
			return programmerError("serial number %q cannot be written to an overlap file", s)
		}
	}

	line := strings.Join(rec.Serials, "\t") + "\t" + wkt.MarshalString(rec.Polygon) + "\n"
	if _, err := o.w.WriteString(line); err != nil {
		return errors.Wrapf(err, "writing overlap record %d", o.written)
	}
	o.written++
	return nil
}

// Written returns the number of records written.
func (o *OverlapWriter) Written() int {
	return o.written
}

// Flush flushes buffered records to the underlying writer.
func (o *OverlapWriter) Flush() error {
	return errors.Wrap(o.w.Flush(), "flushing overlap records")
}

// WriteOverlaps writes every record held by c to w.
func (c *OverlapComputer) WriteOverlaps(w io.Writer) error {
	ow := NewOverlapWriter(w)
	for _, rec := range c.Records() {
		if err := ow.WriteOverlap(rec); err != nil {
			return err
		}
	}
	return ow.Flush()
}

// WriteOverlapFile writes every record held by c to the file at path.
func (c *OverlapComputer) WriteOverlapFile(path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "unable to open overlap file [%s]", path)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = errors.Wrapf(cerr, "closing overlap file [%s]", path)
		}
	}()
	return c.WriteOverlaps(f)
}

// ReadOverlaps parses records written by OverlapWriter. Blank lines are
// ignored.
func ReadOverlaps(r io.Reader) ([]OverlapRecord, error) {
	var out []OverlapRecord
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) < 2 {
			return nil, errors.Errorf("overlap line %d: expected serial numbers and a polygon", lineNo)
		}
		mp, err := parseMultiPolygonWKT(fields[len(fields)-1])
		if err != nil {
			return nil, errors.Wrapf(err, "overlap line %d", lineNo)
		}
		out = append(out, OverlapRecord{
			Polygon: mp,
			Serials: mergeSerials(nil, fields[:len(fields)-1]),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading overlap records")
	}
	return out, nil
}

// ReadOverlapFile appends the records in the file at path to c.
func (c *OverlapComputer) ReadOverlapFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "unable to open overlap file [%s]", path)
	}
	defer f.Close()

	recs, err := ReadOverlaps(f)
	if err != nil {
		return errors.Wrapf(err, "overlap file [%s]", path)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range recs {
		c.records = append(c.records, &recs[i])
	}
	c.calculated = len(c.records)
	return nil
}
