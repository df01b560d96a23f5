// Package netstate classifies the current network connection for the
// download policy. The actual probing lives outside this core; callers feed
// the classification in through a Classifier.
package netstate

import (
	"sync"
)

// Connectivity is the coarse network classification policy decisions use.
type Connectivity int

const (
	Offline Connectivity = iota
	Cellular
	Wifi
)

func (c Connectivity) String() string {
	switch c {
	case Offline:
		return "offline"
	case Cellular:
		return "cellular"
	case Wifi:
		return "wifi"
	default:
		return "unknown"
	}
}

// ParseConnectivity maps a wire name back to a Connectivity value.
func ParseConnectivity(s string) (Connectivity, bool) {
	switch s {
	case "offline":
		return Offline, true
	case "cellular":
		return Cellular, true
	case "wifi":
		return Wifi, true
	}
	return Offline, false
}

// Classifier reports the current connectivity. Implementations must be safe
// for concurrent use; the policy evaluator queries it synchronously.
type Classifier interface {
	Classify() Connectivity
}

// Static is a Classifier holding an externally updated classification.
type Static struct {
	mu      sync.RWMutex
	current Connectivity
}

// NewStatic creates a Static classifier with an initial state.
func NewStatic(initial Connectivity) *Static {
	return &Static{current: initial}
}

// Classify returns the last reported connectivity.
func (s *Static) Classify() Connectivity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Set records a new connectivity classification.
func (s *Static) Set(c Connectivity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = c
}
