package download

import (
	"github.com/csams/podcast-offline/internal/netstate"
	"github.com/csams/podcast-offline/internal/store"
)

// Decision is the outcome of asking whether a transfer may start.
type Decision int

const (
	// Started means the transfer may begin immediately.
	Started Decision = iota
	// NeedsConfirmation means the user must approve a cellular transfer.
	NeedsConfirmation
	// Blocked means policy forbids the transfer right now.
	Blocked
	// AlreadyDownloaded means the episode has a completed local file.
	AlreadyDownloaded
	// AlreadyDownloading means a transfer is already in progress.
	AlreadyDownloading
)

func (d Decision) String() string {
	switch d {
	case Started:
		return "started"
	case NeedsConfirmation:
		return "needsConfirmation"
	case Blocked:
		return "blocked"
	case AlreadyDownloaded:
		return "alreadyDownloaded"
	case AlreadyDownloading:
		return "alreadyDownloading"
	default:
		return "unknown"
	}
}

// Request carries everything the policy needs to decide.
type Request struct {
	Episode *store.Episode
	// Auto marks automatic triggers (star, queue-add, refresh) which
	// consult the more conservative auto-download preference.
	Auto bool
	// Confirmed marks a manual request the user already approved for
	// cellular; it bypasses only the NeedsConfirmation branch.
	Confirmed bool
	// Override is the per-podcast preference, if one is set.
	Override *store.NetworkPreference
}

// Check decides whether a transfer may start. It is a pure function of its
// inputs: no mutation, no I/O.
func Check(req Request, conn netstate.Connectivity, settings store.Settings) Decision {
	ep := req.Episode

	if ep.Downloaded() {
		return AlreadyDownloaded
	}
	if ep.Downloading() {
		return AlreadyDownloading
	}
	if conn == netstate.Offline {
		return Blocked
	}

	pref := settings.DownloadPreference
	if req.Auto {
		pref = settings.AutoDownloadPreference
	}
	if req.Override != nil {
		pref = *req.Override
	}

	if conn == netstate.Cellular {
		switch pref {
		case store.PreferenceWifiOnly:
			return Blocked
		case store.PreferenceAskOnCellular:
			if !req.Confirmed {
				return NeedsConfirmation
			}
		}
	}

	return Started
}
