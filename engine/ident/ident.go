// Package ident allocates human-readable client and trip identifiers.
package ident

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"
)

const (
	namePrefixLen = 3
	tripRandMin   = 1000
	tripRandMax   = 9999
)

// ClientID derives a client identifier from the first three letters of each
// name followed by the registration sequence number.
func ClientID(firstName, lastName string, seq int64) string {
	return prefix(firstName) + prefix(lastName) + strconv.FormatInt(seq, 10)
}

func prefix(s string) string {
	r := []rune(s)
	if len(r) > namePrefixLen {
		r = r[:namePrefixLen]
	}
	return string(r)
}

// Allocator generates trip identifiers. The zero value is ready to use.
type Allocator struct {
	// IntN returns a value in [0, n). Defaults to math/rand/v2.IntN, which is
	// safe for concurrent use.
	IntN func(n int) int
}

// TripID combines the plate, the start epoch in seconds and a four-digit
// random disambiguator. Uniqueness is best effort; the store's tripId
// constraint is authoritative.
func (a *Allocator) TripID(licensePlate string, start time.Time) string {
	intN := rand.IntN
	if a != nil && a.IntN != nil {
		intN = a.IntN
	}
	n := tripRandMin + intN(tripRandMax-tripRandMin+1)
	return fmt.Sprintf("%s-%d-%04d", licensePlate, start.Unix(), n)
}
