package utils

import "github.com/maruel/ksid"

// NewSessionID returns a sortable identifier for an interactive session.
func NewSessionID() string {
	return ksid.NewID().String()
}
