package domain

import (
	"slices"
	"time"
)

// Versioned is a record stored as an append-only version chain.
type Versioned interface {
	EffectiveTime() time.Time
	VersionNumber() int64
}

// newerThan orders versions by effective time, then by version number.
func newerThan[T Versioned](a, b T) bool {
	if !a.EffectiveTime().Equal(b.EffectiveTime()) {
		return a.EffectiveTime().After(b.EffectiveTime())
	}
	return a.VersionNumber() > b.VersionNumber()
}

// CurrentVersion returns the version with the greatest effective time.
// Ties on effective time go to the greater version number.
func CurrentVersion[T Versioned](chain []T) (T, bool) {
	var best T
	found := false
	for _, v := range chain {
		if !found || newerThan(v, best) {
			best = v
			found = true
		}
	}
	return best, found
}

// VersionAt returns the version that was current at the given instant.
func VersionAt[T Versioned](chain []T, at time.Time) (T, bool) {
	var best T
	found := false
	for _, v := range chain {
		if v.EffectiveTime().After(at) {
			continue
		}
		if !found || newerThan(v, best) {
			best = v
			found = true
		}
	}
	return best, found
}

// SortHistory orders a chain oldest first.
func SortHistory[T Versioned](chain []T) {
	slices.SortStableFunc(chain, func(a, b T) int {
		if c := a.EffectiveTime().Compare(b.EffectiveTime()); c != 0 {
			return c
		}
		switch {
		case a.VersionNumber() < b.VersionNumber():
			return -1
		case a.VersionNumber() > b.VersionNumber():
			return 1
		default:
			return 0
		}
	})
}
