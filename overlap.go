package gofootprint

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
)

// OverlapRecord is a region covered by exactly the images listed in
// Serials. Serials is sorted and holds no duplicates.
type OverlapRecord struct {
	Polygon orb.MultiPolygon
	Serials []string
}

// Clone deep-copies the record.
func (r OverlapRecord) Clone() OverlapRecord {
	serials := make([]string, len(r.Serials))
	copy(serials, r.Serials)
	return OverlapRecord{Polygon: cloneMultiPolygon(r.Polygon), Serials: serials}
}

// HasSerial reports whether serial contributes to the record.
func (r OverlapRecord) HasSerial(serial string) bool {
	i := sort.SearchStrings(r.Serials, serial)
	return i < len(r.Serials) && r.Serials[i] == serial
}

func (r OverlapRecord) sharesSerial(other OverlapRecord) bool {
	for _, s := range other.Serials {
		if r.HasSerial(s) {
			return true
		}
	}
	return false
}

// mergeSerials returns the sorted union of a and b.
func mergeSerials(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	sort.Strings(out)

	n := 0
	for i, s := range out {
		if i > 0 && s == out[n-1] {
			continue
		}
		out[n] = s
		n++
	}
	return out[:n]
}

// FootprintInput pairs an image serial number with its footprint.
type FootprintInput struct {
	Serial    string
	Footprint orb.MultiPolygon
}

// LedgerKind names the recovery action taken for a ledger entry.
type LedgerKind string

const (
	LedgerIntersection   LedgerKind = "intersection"
	LedgerDifference     LedgerKind = "difference"
	LedgerDespike        LedgerKind = "despike"
	LedgerInvalidOverlap LedgerKind = "invalid_overlap"
	LedgerInvalidPolygon LedgerKind = "invalid_polygon"
)

// LedgerEntry records a geometry failure the overlap computation recovered
// from. Polygons holds the WKT of the records involved, in the same order as
// Serials.
type LedgerEntry struct {
	Kind        LedgerKind
	Serials     [][]string
	Polygons    []string
	Error       string
	Description string
}

// ErrorLedger is an append-only list of recoveries. It is safe for
// concurrent use.
type ErrorLedger struct {
	mu      sync.Mutex
	entries []LedgerEntry
}

func (l *ErrorLedger) add(e LedgerEntry) {
	l.mu.Lock()
	l.entries = append(l.entries, e)
	l.mu.Unlock()
	LedgerEntries.WithLabelValues(string(e.Kind)).Inc()
}

// Entries returns a copy of the ledger.
func (l *ErrorLedger) Entries() []LedgerEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LedgerEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *ErrorLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// overlapGeometry is the part of PolygonRepair the overlap computation uses.
type overlapGeometry interface {
	Despike(mp orb.MultiPolygon) (orb.MultiPolygon, error)
	Intersect(a, b orb.MultiPolygon) (orb.MultiPolygon, error)
	Difference(a, b orb.MultiPolygon) (orb.MultiPolygon, error)
}

// OverlapComputer splits a set of footprints into pairwise disjoint
// regions, each tagged with the serial numbers of every image covering it.
type OverlapComputer struct {
	repair         overlapGeometry
	negligibleArea float64
	ratioThreshold float64
	failFast       bool
	yieldEvery     int

	ledger ErrorLedger

	// mu guards records and the two cursors. The calculator only touches
	// records at or after the current outer index; the writer only touches
	// records before calculated.
	mu         sync.Mutex
	records    []*OverlapRecord
	calculated int
	written    int
	pipelined  bool
	progress   chan struct{}
}

// NewOverlapComputer creates an OverlapComputer from cfg.
func NewOverlapComputer(cfg *EngineConfig) *OverlapComputer {
	if cfg == nil {
		cfg = DefaultEngineConfig()
	}
	return &OverlapComputer{
		repair:         NewPolygonRepair(cfg),
		negligibleArea: cfg.GetNegligibleArea(),
		ratioThreshold: cfg.GetAreaRatioThreshold(),
		failFast:       cfg.GetFailFast(),
		yieldEvery:     cfg.GetWriterYieldEvery(),
	}
}

// Ledger returns the recoveries logged so far.
func (c *OverlapComputer) Ledger() []LedgerEntry {
	return c.ledger.Entries()
}

// Size returns the number of records held.
func (c *OverlapComputer) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// Records returns copies of the records held.
func (c *OverlapComputer) Records() []OverlapRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]OverlapRecord, 0, len(c.records))
	for _, r := range c.records {
		if r != nil {
			out = append(out, r.Clone())
		}
	}
	return out
}

// RecordsForSerial returns copies of every record serial contributes to.
func (c *OverlapComputer) RecordsForSerial(serial string) []OverlapRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []OverlapRecord
	for _, r := range c.records {
		if r != nil && r.HasSerial(serial) {
			out = append(out, r.Clone())
		}
	}
	return out
}

// FindOverlapsFromSlices is FindOverlaps over parallel slices.
func (c *OverlapComputer) FindOverlapsFromSlices(serials []string, footprints []orb.MultiPolygon) ([]OverlapRecord, error) {
	if len(serials) != len(footprints) {
		return nil, programmerError("invalid argument sizes: %d serial numbers and %d footprints", len(serials), len(footprints))
	}
	inputs := make([]FootprintInput, len(serials))
	for i := range serials {
		inputs[i] = FootprintInput{Serial: serials[i], Footprint: footprints[i]}
	}
	return c.FindOverlaps(inputs)
}

// FindOverlaps replaces the held records with the overlap decomposition of
// inputs and returns a copy of them. An empty result means no two inputs
// overlap.
func (c *OverlapComputer) FindOverlaps(inputs []FootprintInput) ([]OverlapRecord, error) {
	if err := c.load(inputs); err != nil {
		return nil, err
	}
	if err := c.calculate(); err != nil {
		return nil, err
	}
	return c.Records(), nil
}

// load seeds one despiked record per input.
func (c *OverlapComputer) load(inputs []FootprintInput) error {
	records := make([]*OverlapRecord, 0, len(inputs))
	for _, in := range inputs {
		if !IsValid(in.Footprint) {
			return programmerError("the image [%s] has an invalid footprint", in.Serial)
		}
		mp := cloneMultiPolygon(in.Footprint)
		if despiked, err := c.repair.Despike(mp); err == nil {
			mp = despiked
		}
		records = append(records, &OverlapRecord{Polygon: mp, Serials: []string{in.Serial}})
	}

	c.mu.Lock()
	c.records = records
	c.calculated = 0
	c.written = 0
	c.mu.Unlock()
	return nil
}

func (c *OverlapComputer) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

func (c *OverlapComputer) remove(k int) {
	c.mu.Lock()
	c.records = append(c.records[:k], c.records[k+1:]...)
	c.mu.Unlock()
}

// absorb merges the serials of record j into record i and removes j.
func (c *OverlapComputer) absorb(i, j int) {
	c.mu.Lock()
	c.records[i].Serials = mergeSerials(c.records[i].Serials, c.records[j].Serials)
	c.records = append(c.records[:j], c.records[j+1:]...)
	c.mu.Unlock()
}

// setPolygon replaces (or with insert, inserts at) the polygon of record
// pos, adding serials to it. Tiny polygons become empty. Invalid ones are
// emptied too and logged against pos. It reports false when the cleaned
// polygon is still unusable.
func (c *OverlapComputer) setPolygon(mp orb.MultiPolygon, pos int, serials []string, insert bool) (bool, error) {
	if !isEmpty(mp) && !IsValid(mp) {
		if err := c.handleError(LedgerInvalidPolygon, nil, "overlay produced an invalid polygon, the record will be emptied", pos); err != nil {
			return false, err
		}
		mp = orb.MultiPolygon{}
	}
	if !isEmpty(mp) && area(mp) < 1.0e-10 {
		mp = orb.MultiPolygon{}
	}
	if !isEmpty(mp) {
		if despiked, err := c.repair.Despike(mp); err == nil {
			mp = despiked
		}
	}
	if !IsValid(mp) || (!isEmpty(mp) && area(mp) <= c.negligibleArea) {
		return false, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if pos > len(c.records) {
		pos = len(c.records)
	}

	if !insert {
		r := c.records[pos]
		r.Polygon = mp
		if len(serials) > 0 {
			r.Serials = mergeSerials(r.Serials, serials)
		}
		return true, nil
	}

	if !isEmpty(mp) {
		rec := &OverlapRecord{Polygon: mp, Serials: mergeSerials(nil, serials)}
		c.records = append(c.records, nil)
		copy(c.records[pos+1:], c.records[pos:])
		c.records[pos] = rec
	}
	return true, nil
}

// handleError logs a recovery for the records at idx. In fail-fast mode
// the recovery is refused and an OverlapEngineError is returned instead.
func (c *OverlapComputer) handleError(kind LedgerKind, err error, desc string, idx ...int) error {
	entry := LedgerEntry{Kind: kind, Description: desc}
	if err != nil {
		entry.Error = err.Error()
	}

	c.mu.Lock()
	for _, k := range idx {
		if k < 0 || k >= len(c.records) || c.records[k] == nil {
			continue
		}
		r := c.records[k].Clone()
		entry.Serials = append(entry.Serials, r.Serials)
		entry.Polygons = append(entry.Polygons, wkt.MarshalString(r.Polygon))
	}
	c.mu.Unlock()

	c.ledger.add(entry)
	Opsf("overlap: %s: %s: %v (serials %v)", kind, desc, err, entry.Serials)

	if c.failFast {
		return &OverlapEngineError{Serials: entry.Serials, Description: desc, Err: err}
	}
	return nil
}

// publish advances the calculated cursor and, every yieldEvery outer steps,
// wakes the writer without blocking.
func (c *OverlapComputer) publish(i int) {
	c.mu.Lock()
	if i > c.calculated {
		c.calculated = i
	}
	pipelined := c.pipelined
	c.mu.Unlock()

	if pipelined && i%c.yieldEvery == 0 {
		select {
		case c.progress <- struct{}{}:
		default:
		}
	}
}

// calculate runs the pairwise scan over the held records.
func (c *OverlapComputer) calculate() error {
	found := false

	for i := 0; i < c.size()-1; i++ {
		// Records before i are final once any overlap exists. Until then
		// the whole list may still be discarded.
		if found {
			c.publish(i)
		}
		Tracef("overlap: outer step %d of %d", i, c.size())

		for j := i + 1; j < c.size(); j++ {
			ri, rj := *c.records[i], *c.records[j]
			if ri.sharesSerial(rj) {
				continue
			}
			p1, p2 := ri.Polygon, rj.Polygon

			// Two empty records are not an overlap.
			if !isEmpty(p1) && Equal(p1, p2) {
				found = true
				c.absorb(i, j)
				j--
				continue
			}

			if isEmpty(p2) || area(p2) < c.negligibleArea {
				c.remove(j)
				j--
				continue
			}

			intersected, err := c.repair.Intersect(p1, p2)
			if err != nil {
				a1, a2 := area(p1), area(p2)
				ratio := 0.0
				if big := math.Max(a1, a2); big > 0 {
					ratio = math.Min(a1, a2) / big
				}

				switch {
				case ratio < c.ratioThreshold && a1 > a2:
					if ferr := c.handleError(LedgerIntersection, err, "intersection of overlaps failed, the smaller second polygon will be removed", i, j); ferr != nil {
						return ferr
					}
					c.remove(j)
					j--
				case ratio < c.ratioThreshold:
					if ferr := c.handleError(LedgerIntersection, err, "intersection of overlaps failed, the smaller first polygon will be removed", i, j); ferr != nil {
						return ferr
					}
					c.remove(i)
					j = i
				default:
					if ferr := c.handleError(LedgerIntersection, err, "intersection of overlaps failed, both polygons will be removed to prevent double counted areas", i, j); ferr != nil {
						return ferr
					}
					c.remove(j)
					c.remove(i)
					j = i
				}
				continue
			}

			if isEmpty(intersected) || area(intersected) < c.negligibleArea {
				continue
			}

			overlap, err := c.repair.Despike(intersected)
			if err != nil {
				if !IsValid(intersected) {
					if ferr := c.handleError(LedgerDespike, err, "despiking the overlap failed", i, j); ferr != nil {
						return ferr
					}
					continue
				}
				overlap = intersected
			}
			if !IsValid(overlap) {
				if ferr := c.handleError(LedgerInvalidOverlap, nil, "intersection produced invalid overlap area", i, j); ferr != nil {
					return ferr
				}
				continue
			}
			if isEmpty(overlap) || area(overlap) < c.negligibleArea {
				continue
			}
			found = true

			switch {
			case Equal(p1, overlap):
				// i lies inside j
				diff, err := c.repair.Difference(p2, p1)
				if err != nil {
					if ferr := c.handleError(LedgerDifference, err, "differencing overlap polygons failed, the first polygon will be removed", i, j); ferr != nil {
						return ferr
					}
					c.remove(i)
					j = i
					continue
				}
				if _, err := c.setPolygon(diff, j, nil, false); err != nil {
					return err
				}
				if _, err := c.setPolygon(overlap, i, rj.Serials, false); err != nil {
					return err
				}

			case Equal(p2, overlap):
				// j lies inside i
				diff, err := c.repair.Difference(p1, p2)
				if err != nil {
					if ferr := c.handleError(LedgerDifference, err, "differencing overlap polygons failed, the second polygon will be removed", i, j); ferr != nil {
						return ferr
					}
					c.remove(j)
					j--
					continue
				}
				if _, err := c.setPolygon(diff, i, nil, false); err != nil {
					return err
				}
				if _, err := c.setPolygon(overlap, j, ri.Serials, false); err != nil {
					return err
				}

			default:
				diffI, err := c.repair.Difference(p1, overlap)
				if err != nil {
					diffI, err = c.repair.Difference(p1, p2)
				}
				if err != nil {
					if ferr := c.handleError(LedgerDifference, err, "differencing overlap polygons failed", i, j); ferr != nil {
						return ferr
					}
					continue
				}

				diffJ, err := c.repair.Difference(p2, overlap)
				if err != nil {
					diffJ, err = c.repair.Difference(p2, p1)
				}
				if err != nil {
					// The overlap record keeps j's serial number, so only
					// j's exclusive area is lost.
					if ferr := c.handleError(LedgerDifference, err, "differencing overlap polygons failed, the second polygon will be emptied", i, j); ferr != nil {
						return ferr
					}
					diffJ = orb.MultiPolygon{}
				}

				for _, d := range []struct {
					mp  orb.MultiPolygon
					pos int
				}{{diffI, i}, {diffJ, j}} {
					ok, err := c.setPolygon(d.mp, d.pos, nil, false)
					if err != nil {
						return err
					}
					if !ok {
						c.setPolygon(orb.MultiPolygon{}, d.pos, nil, false)
					}
				}

				oldSize := c.size()
				ok, err := c.setPolygon(overlap, j+1, mergeSerials(ri.Serials, rj.Serials), true)
				if err != nil {
					return err
				}
				if ok && c.size() != oldSize {
					j++
				}
			}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !found {
		Diagf("overlap: no overlap found among %d records", len(c.records))
		c.records = nil
		c.calculated = 0
		return nil
	}

	if !c.pipelined {
		kept := c.records[:0]
		for _, r := range c.records {
			if r != nil && !isEmpty(r.Polygon) {
				kept = append(kept, r)
			}
		}
		c.records = kept
	}
	c.calculated = len(c.records)

	nonEmpty := 0
	for _, r := range c.records {
		if r != nil && !isEmpty(r.Polygon) {
			nonEmpty++
		}
	}
	OverlapRecords.Add(float64(nonEmpty))
	return nil
}

func (r OverlapRecord) String() string {
	return fmt.Sprintf("%v %s", r.Serials, wkt.MarshalString(r.Polygon))
}
