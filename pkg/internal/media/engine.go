package media

import (
	"context"

	"github.com/pion/webrtc/v3"

	"github.com/heartlink-app/heartlink-core/pkg/internal/models"
)

// Tile is the opaque handle of one visual media surface. The engine owns
// the surface; the call controller only records and forwards handles.
type Tile struct {
	ID            string `json:"id"`
	ParticipantID string `json:"participant_id"`
	Local         bool   `json:"local"`
}

// Observer receives tile lifecycle notifications from the engine. An empty
// id on LocalTileChanged means the local tile went away.
type Observer interface {
	LocalTileChanged(id string)
	RemoteTileAdded(tile Tile)
	RemoteTileRemoved(id string)
}

// Engine is the surface the call controller drives. Join blocks until the
// audio path is confirmed; everything after a successful Join must be
// undone by Leave regardless of which side ended the call.
type Engine interface {
	Join(ctx context.Context, info models.JoinInfo, observer Observer) error
	Leave() error
	// PreflightMic warms up the default microphone ahead of a join. Failure
	// is advisory; the join proceeds regardless.
	PreflightMic() error
	SetMicEnabled(enabled bool) error
	SetCamEnabled(enabled bool) error
	// ReleaseHardware force-releases any acquired capture devices. It backs
	// the defensive cleanup paths and must never be required for
	// correctness.
	ReleaseHardware() error
}

// DeviceSource opens local capture devices as publishable tracks. A nil
// source leaves the engine receive-only, which keeps the core runnable on
// hosts without capture hardware.
type DeviceSource interface {
	OpenMicrophone() (webrtc.TrackLocal, error)
	OpenCamera() (webrtc.TrackLocal, error)
	Release() error
}
