package media

import (
	"context"
	"fmt"
	"sync"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go"
	"github.com/pion/webrtc/v3"
	"github.com/rs/zerolog/log"

	"github.com/heartlink-app/heartlink-core/pkg/internal/models"
)

// LiveKitEngine drives a managed LiveKit room with the JoinInfo credentials
// the signaling backend hands out. It does not own encode/decode or the
// network transport; that is the SDK's business.
type LiveKitEngine struct {
	source DeviceSource

	mu       sync.Mutex
	room     *lksdk.Room
	observer Observer
	micPub   *lksdk.LocalTrackPublication
	camPub   *lksdk.LocalTrackPublication
	micTrack webrtc.TrackLocal
}

func NewLiveKitEngine(source DeviceSource) *LiveKitEngine {
	return &LiveKitEngine{source: source}
}

func (e *LiveKitEngine) Join(ctx context.Context, info models.JoinInfo, observer Observer) error {
	e.mu.Lock()
	if e.room != nil {
		e.mu.Unlock()
		return fmt.Errorf("media session already established")
	}
	e.observer = observer
	e.mu.Unlock()

	callback := &lksdk.RoomCallback{
		ParticipantCallback: lksdk.ParticipantCallback{
			OnTrackSubscribed:   e.onTrackSubscribed,
			OnTrackUnsubscribed: e.onTrackUnsubscribed,
		},
		OnDisconnected: func() {
			log.Debug().Msg("Media engine got disconnected from the room.")
		},
	}

	room, err := lksdk.ConnectToRoomWithToken(info.Endpoint, info.Token, callback)
	if err != nil {
		return fmt.Errorf("unable to connect media room: %v", err)
	}

	e.mu.Lock()
	e.room = room
	e.mu.Unlock()

	// Audio first. A failed microphone keeps the session receive-only
	// instead of failing the join.
	if err := e.publishMicrophone(room); err != nil {
		log.Warn().Err(err).Msg("Unable to start the default microphone, continuing receive-only.")
	}

	return nil
}

func (e *LiveKitEngine) publishMicrophone(room *lksdk.Room) error {
	e.mu.Lock()
	track := e.micTrack
	e.mu.Unlock()

	if track == nil {
		if e.source == nil {
			return nil
		}
		opened, err := e.source.OpenMicrophone()
		if err != nil {
			return err
		}
		track = opened
	}

	pub, err := room.LocalParticipant.PublishTrack(track, &lksdk.TrackPublicationOptions{
		Name:   "microphone",
		Source: livekit.TrackSource_MICROPHONE,
	})
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.micTrack = track
	e.micPub = pub
	e.mu.Unlock()
	return nil
}

func (e *LiveKitEngine) Leave() error {
	e.mu.Lock()
	room := e.room
	e.room = nil
	e.micPub = nil
	e.camPub = nil
	e.micTrack = nil
	e.observer = nil
	e.mu.Unlock()

	if room != nil {
		room.Disconnect()
	}
	return nil
}

func (e *LiveKitEngine) PreflightMic() error {
	if e.source == nil {
		return nil
	}

	track, err := e.source.OpenMicrophone()
	if err != nil {
		return err
	}

	// Keep the warmed-up track around so the join publishes it instead of
	// opening the device twice.
	e.mu.Lock()
	e.micTrack = track
	e.mu.Unlock()
	return nil
}

func (e *LiveKitEngine) SetMicEnabled(enabled bool) error {
	e.mu.Lock()
	room, pub := e.room, e.micPub
	e.mu.Unlock()

	if room == nil {
		return fmt.Errorf("no media session to toggle the microphone on")
	}
	if pub == nil {
		if !enabled {
			return nil
		}
		return e.publishMicrophone(room)
	}

	pub.SetMuted(!enabled)
	return nil
}

func (e *LiveKitEngine) SetCamEnabled(enabled bool) error {
	e.mu.Lock()
	room, pub, observer := e.room, e.camPub, e.observer
	e.mu.Unlock()

	if room == nil {
		return fmt.Errorf("no media session to toggle the camera on")
	}

	if !enabled {
		if pub == nil {
			return nil
		}
		if err := room.LocalParticipant.UnpublishTrack(pub.SID()); err != nil {
			return err
		}
		e.mu.Lock()
		e.camPub = nil
		e.mu.Unlock()
		if observer != nil {
			observer.LocalTileChanged("")
		}
		return nil
	}

	if pub != nil {
		return nil
	}
	if e.source == nil {
		return fmt.Errorf("no capture device source configured")
	}

	track, err := e.source.OpenCamera()
	if err != nil {
		return err
	}
	published, err := room.LocalParticipant.PublishTrack(track, &lksdk.TrackPublicationOptions{
		Name:   "camera",
		Source: livekit.TrackSource_CAMERA,
	})
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.camPub = published
	e.mu.Unlock()
	if observer != nil {
		observer.LocalTileChanged(published.SID())
	}
	return nil
}

func (e *LiveKitEngine) ReleaseHardware() error {
	if e.source == nil {
		return nil
	}
	return e.source.Release()
}

func (e *LiveKitEngine) onTrackSubscribed(track *webrtc.TrackRemote, publication *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
	if track.Kind() != webrtc.RTPCodecTypeVideo {
		return
	}

	e.mu.Lock()
	observer := e.observer
	e.mu.Unlock()
	if observer == nil {
		return
	}

	observer.RemoteTileAdded(Tile{
		ID:            publication.SID(),
		ParticipantID: rp.Identity(),
	})
}

func (e *LiveKitEngine) onTrackUnsubscribed(track *webrtc.TrackRemote, publication *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
	if track.Kind() != webrtc.RTPCodecTypeVideo {
		return
	}

	e.mu.Lock()
	observer := e.observer
	e.mu.Unlock()
	if observer == nil {
		return
	}

	observer.RemoteTileRemoved(publication.SID())
}
