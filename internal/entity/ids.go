package entity

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
)

// Business number prefixes.
const (
	PrefixSample     = "SMP"
	PrefixWorkOrder  = "WO"
	PrefixSalesOrder = "SO"
	PrefixInspection = "QC"
)

// NewID returns a time-ordered unique identifier.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// NewNumber returns a human-readable business number such as SMP-1718000000000-0042.
func NewNumber(prefix string, now time.Time) string {
	return fmt.Sprintf("%s-%d-%04d", prefix, now.UnixMilli(), rand.IntN(10000))
}
