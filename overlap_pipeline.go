package gofootprint

// OverlapSink receives finished overlap records. WriteOverlap is called from
// a single goroutine.
type OverlapSink interface {
	WriteOverlap(rec OverlapRecord) error
}

// SinkFunc adapts a function to OverlapSink.
type SinkFunc func(rec OverlapRecord) error

func (f SinkFunc) WriteOverlap(rec OverlapRecord) error { return f(rec) }

// ComputeTo runs the overlap computation on a background goroutine and
// streams each record to sink as soon as no later step can change it.
// Records are released once written, so the computer holds nothing when
// ComputeTo returns. The computer must be empty.
func (c *OverlapComputer) ComputeTo(inputs []FootprintInput, sink OverlapSink) error {
	if c.Size() != 0 {
		return programmerError("cannot stream overlaps from a non-empty overlap set (%d records)", c.Size())
	}
	if err := c.load(inputs); err != nil {
		return err
	}

	c.mu.Lock()
	c.pipelined = true
	c.progress = make(chan struct{}, 1)
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.records = nil
		c.calculated, c.written = 0, 0
		c.pipelined = false
		c.progress = nil
		c.mu.Unlock()
	}()

	done := make(chan error, 1)
	go func() {
		done <- c.calculate()
	}()

	for {
		select {
		case <-c.progress:
			if err := c.flush(sink); err != nil {
				<-done
				return err
			}
		case calcErr := <-done:
			flushErr := c.flush(sink)
			if calcErr != nil {
				return calcErr
			}
			return flushErr
		}
	}
}

// flush writes the non-empty records between the written and calculated
// cursors and releases them.
func (c *OverlapComputer) flush(sink OverlapSink) error {
	c.mu.Lock()
	start, end := c.written, c.calculated
	if end > len(c.records) {
		end = len(c.records)
	}
	batch := make([]OverlapRecord, 0, max(end-start, 0))
	for k := start; k < end; k++ {
		if r := c.records[k]; r != nil && !isEmpty(r.Polygon) {
			batch = append(batch, r.Clone())
		}
	}
	c.mu.Unlock()

	for _, rec := range batch {
		if err := sink.WriteOverlap(rec); err != nil {
			return err
		}
	}

	c.mu.Lock()
	for k := start; k < end; k++ {
		c.records[k] = nil
	}
	if end > c.written {
		c.written = end
	}
	c.mu.Unlock()

	if len(batch) > 0 {
		Tracef("overlap: wrote records %d to %d", start, end)
	}
	return nil
}
