package pattern

import "github.com/google/uuid"

// Template is a discovered message template.
type Template struct {
	ID      uuid.UUID
	Pattern string
	Count   int
}

// extraDelimiters are split on by Drain in addition to whitespace.
var extraDelimiters = []string{"|", "=", ","}
