package broker

import (
	"bytes"
	"encoding/json"
	"sync"

	"github.com/nowplaying/backend/internal/models"
)

// Detector remembers the canonical encoding of the last observed snapshot.
type Detector struct {
	mu   sync.Mutex
	last []byte
}

// NewDetector creates a Detector with no prior observation.
func NewDetector() *Detector {
	return &Detector{}
}

// canonical encodes s with the struct's fixed field order.
func canonical(s models.TrackSnapshot) []byte {
	// A struct of strings and a bool always marshals.
	b, _ := json.Marshal(s)
	return b
}

// HasChanged reports whether s differs from the last committed snapshot.
// The first observation always counts as a change.
func (d *Detector) HasChanged(s models.TrackSnapshot) bool {
	enc := canonical(s)
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last == nil || !bytes.Equal(d.last, enc)
}

// Commit replaces the retained snapshot.
func (d *Detector) Commit(s models.TrackSnapshot) {
	enc := canonical(s)
	d.mu.Lock()
	d.last = enc
	d.mu.Unlock()
}

// Observe commits s and reports whether it differed from the previous one.
func (d *Detector) Observe(s models.TrackSnapshot) bool {
	enc := canonical(s)
	d.mu.Lock()
	defer d.mu.Unlock()
	changed := d.last == nil || !bytes.Equal(d.last, enc)
	d.last = enc
	return changed
}
