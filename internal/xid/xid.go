package xid

import (
	"time"

	"github.com/google/uuid"
)

func New() string {
	id, err := uuid.NewRandom()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// NextLogID returns a time-derived id that sorts after last, so ids stay a
// usable tie-break key even when two logs land in the same millisecond.
func NextLogID(at time.Time, last int64) int64 {
	id := at.UnixMilli()
	if id <= last {
		return last + 1
	}
	return id
}
