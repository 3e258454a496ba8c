package store

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnassignedGuard rejects scans attributed to the "unassigned guard"
// sentinels that client devices emit when no guard is logged in.
var ErrUnassignedGuard = errors.New("guard identity is an unassigned sentinel")

// ErrNotFound is returned when an attendance record id is unknown.
var ErrNotFound = errors.New("attendance record not found")

// Sentinel guard identities recognized from legacy client devices.
var (
	sentinelGuardIDs   = []string{"SIN_GUARDIA", "SIN_GUARDIA_ERROR"}
	sentinelGuardNames = []string{"Guardia No Identificado", "GUARDIA_NO_IDENTIFICADO"}
)

// ValidationError reports required scan fields that were missing or
// malformed.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing required fields: %s", strings.Join(e.Missing, ", "))
}
