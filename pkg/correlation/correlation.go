package correlation

import (
	"time"

	"github.com/google/uuid"
)

// Correlation links one local event to one external event within a pairing. Each side keeps
// its own last-modified watermark.
type Correlation struct {
	Id                   int
	PairingId            int
	LocalEventId         uuid.UUID
	ExternalEventId      string
	LastModifiedLocal    time.Time
	LastModifiedExternal time.Time
}

// Watermark is the newest change either side is known to have seen.
func (c Correlation) Watermark() time.Time {
	if c.LastModifiedLocal.After(c.LastModifiedExternal) {
		return c.LastModifiedLocal
	}
	return c.LastModifiedExternal
}
