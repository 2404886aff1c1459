package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/heartlink-app/heartlink-core/pkg/internal/media"
	"github.com/heartlink-app/heartlink-core/pkg/internal/models"
	"github.com/heartlink-app/heartlink-core/pkg/internal/signaling"
)

// SignalingClient is the REST surface the call controller needs. The
// concrete implementation lives in the signaling package.
type SignalingClient interface {
	StartCall(from, to models.UserInfo) (signaling.StartCallResponse, error)
	AcceptCall(room, userID, otherUserID string) (signaling.AcceptCallResponse, error)
	DeclineCall(room, userID, otherUserID string, by models.UserInfo) error
	EndCall(room, userID, otherUserID string) error
}

// CallEvents carries the optional lifecycle hooks a host can observe. Nil
// members are skipped.
type CallEvents struct {
	OnIncomingCall     func(room string, from models.UserInfo)
	OnCallStart        func(room string, peer *models.UserInfo, startedAt time.Time)
	OnCallEnd          func(room string, endedAt time.Time)
	OnCallMute         func()
	OnCallUnmute       func()
	OnCallVideoStart   func()
	OnCallVideoStopped func()
	OnBusy             func(room string, by models.UserInfo)
	OnCallTimeElapsed  func(elapsed time.Duration)
}

// CallConfig bundles the knobs of a call controller.
type CallConfig struct {
	Self models.UserInfo

	// AutoStartVideo turns the camera on right after join on desktop
	// profiles. Mobile profiles always start audio-only.
	AutoStartVideo bool
	MobileProfile  bool

	// MaxCallDuration ends the call from our side once elapsed time reaches
	// it. Zero disables the cap.
	MaxCallDuration time.Duration

	// StartCooldown suppresses repeated outbound attempts. Defaults to two
	// seconds.
	StartCooldown time.Duration

	Clock clock.Clock
	Cache *gorm.DB
}

// CallService drives the lifecycle of at most one call at a time, from the
// outbound or inbound offer through media teardown.
type CallService struct {
	api    SignalingClient
	engine media.Engine
	ringer Ringer
	events CallEvents
	cfg    CallConfig
	clock  clock.Clock

	mu sync.Mutex
	// epoch fences async completions: every teardown bumps it, and any
	// in-flight join or start result from an earlier epoch is discarded.
	epoch uint64

	state    models.CallState
	room     string
	peer     *models.UserInfo
	incoming *models.IncomingCallOffer

	localTileID string
	remoteTiles []media.Tile
	micOn       bool
	camOn       bool

	joined    bool
	starting  bool
	startedAt time.Time
	elapsed   time.Duration
	tickStop  chan struct{}
}

func NewCallService(api SignalingClient, engine media.Engine, ringer Ringer, events CallEvents, cfg CallConfig) *CallService {
	if cfg.StartCooldown <= 0 {
		cfg.StartCooldown = 2 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if ringer == nil {
		ringer = NewLogRinger()
	}
	return &CallService{
		api:    api,
		engine: engine,
		ringer: ringer,
		events: events,
		cfg:    cfg,
		clock:  cfg.Clock,
		state:  models.CallStateIdle,
	}
}

// StartCall places an outbound call to the given user. Attempts are
// rejected while another call is live and rate-limited by the cooldown.
func (s *CallService) StartCall(to models.UserInfo) error {
	if len(to.ID) == 0 {
		return fmt.Errorf("callee has no id")
	}

	s.mu.Lock()
	if s.starting {
		s.mu.Unlock()
		return fmt.Errorf("a call attempt is already underway")
	}
	switch s.state {
	case models.CallStateIdle, models.CallStateEnded, models.CallStateError:
	default:
		s.mu.Unlock()
		return fmt.Errorf("another call is active in state %s", s.state)
	}

	s.starting = true
	s.clock.AfterFunc(s.cfg.StartCooldown, func() {
		s.mu.Lock()
		s.starting = false
		s.mu.Unlock()
	})

	epoch := s.epoch
	s.state = models.CallStateJoining
	peer := to
	s.peer = &peer
	s.mu.Unlock()

	resp, err := s.api.StartCall(s.cfg.Self, to)
	if err != nil {
		s.abandonAttempt(epoch, models.CallStateIdle)
		return fmt.Errorf("unable to start the call: %v", err)
	}

	if resp.JoinInfo == nil {
		s.abandonAttempt(epoch, models.CallStateIdle)
		return fmt.Errorf("start response carried no join credentials")
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return nil
	}
	s.room = resp.Room
	s.mu.Unlock()

	s.join(epoch, *resp.JoinInfo)
	return nil
}

// AcceptCall answers the pending incoming offer. Without an offer, or with
// a call already underway, it is rejected.
func (s *CallService) AcceptCall() error {
	s.mu.Lock()
	offer := s.incoming
	if offer == nil {
		s.mu.Unlock()
		return fmt.Errorf("no incoming call to accept")
	}
	switch s.state {
	case models.CallStateJoining, models.CallStateInCall, models.CallStateLeaving:
		s.mu.Unlock()
		return fmt.Errorf("another call is active in state %s", s.state)
	}

	epoch := s.epoch
	s.state = models.CallStateJoining
	s.room = offer.Room
	from := offer.From
	s.peer = &from
	s.mu.Unlock()

	// Stop ringing before any network round trip; a slow accept should not
	// keep the tone going.
	s.nonCritical("stop ringtone", func() error { s.ringer.Stop(); return nil })

	resp, err := s.api.AcceptCall(offer.Room, s.cfg.Self.ID, offer.From.ID)
	if err != nil {
		s.abandonAttempt(epoch, models.CallStateIdle)
		return fmt.Errorf("unable to accept the call: %v", err)
	}

	// Warm the microphone to surface permission prompts early. The join
	// proceeds either way.
	s.nonCritical("microphone preflight", s.engine.PreflightMic)

	if resp.JoinInfo == nil {
		s.abandonAttempt(epoch, models.CallStateIdle)
		return fmt.Errorf("accept response carried no join credentials")
	}

	joined := s.join(epoch, *resp.JoinInfo)

	s.mu.Lock()
	if s.epoch == epoch && joined {
		s.incoming = nil
	}
	s.mu.Unlock()
	return nil
}

// DeclineCall refuses the pending offer. Without one it does nothing, and
// in particular issues no network call.
func (s *CallService) DeclineCall() {
	s.mu.Lock()
	offer := s.incoming
	if offer == nil {
		s.mu.Unlock()
		return
	}
	s.incoming = nil
	s.peer = nil
	s.room = ""
	s.mu.Unlock()

	s.nonCritical("stop ringtone", func() error { s.ringer.Stop(); return nil })
	s.nonCritical("decline notification", func() error {
		return s.api.DeclineCall(offer.Room, s.cfg.Self.ID, offer.From.ID, s.cfg.Self)
	})
}

// Leave ends the current call from our side.
func (s *CallService) Leave() {
	s.teardown(true, true)
}

// HandlePushEvent feeds one validated push event into the state machine.
func (s *CallService) HandlePushEvent(event models.PushEvent) {
	switch ev := event.(type) {
	case models.IncomingCallEvent:
		s.handleIncomingCall(ev)
	case models.CallAcceptedEvent:
		// Informational: the join credentials already arrived via REST.
		log.Debug().Str("room", ev.Room).Msg("The callee accepted the call.")
	case models.CallBusyEvent:
		s.handleBusy(ev)
	case models.CallEndedEvent:
		s.handleRemoteEnd(ev)
	}
}

func (s *CallService) handleIncomingCall(ev models.IncomingCallEvent) {
	s.mu.Lock()
	switch s.state {
	case models.CallStateJoining, models.CallStateInCall, models.CallStateLeaving:
		// Already busy; keep the current call untouched. The backend is
		// expected to answer the other caller with a busy push.
		s.mu.Unlock()
		log.Debug().Str("room", ev.Room).Msg("Ignored an incoming call while busy.")
		return
	}
	offer := models.IncomingCallOffer{Room: ev.Room, From: ev.From}
	s.incoming = &offer
	from := ev.From
	s.peer = &from
	s.room = ev.Room
	s.mu.Unlock()

	// Playback can be refused by the host platform; the offer stands anyway.
	s.nonCritical("start ringtone", func() error { s.ringer.Play(); return nil })
	if s.events.OnIncomingCall != nil {
		s.events.OnIncomingCall(ev.Room, ev.From)
	}
}

func (s *CallService) handleBusy(ev models.CallBusyEvent) {
	s.mu.Lock()
	relevant := s.room == ev.Room || s.room == ""
	s.mu.Unlock()
	if !relevant {
		return
	}

	s.teardown(false, false)
	if s.events.OnBusy != nil {
		s.events.OnBusy(ev.Room, ev.By)
	}
}

func (s *CallService) handleRemoteEnd(ev models.CallEndedEvent) {
	s.mu.Lock()
	relevant := s.room == ev.Room || s.room == ""
	s.mu.Unlock()
	if !relevant {
		return
	}

	s.teardown(false, true)
}

// join connects the media engine and, on success, moves the session into
// inCall. It reports whether this epoch reached the connected state.
func (s *CallService) join(epoch uint64, info models.JoinInfo) bool {
	s.mu.Lock()
	if s.epoch != epoch || s.joined || s.state != models.CallStateJoining {
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()

	if err := s.engine.Join(context.Background(), info, s); err != nil {
		s.nonCritical("leave after failed join", s.engine.Leave)
		s.mu.Lock()
		if s.epoch == epoch {
			s.state = models.CallStateError
		}
		s.mu.Unlock()
		log.Error().Err(err).Msg("Unable to join the media room.")
		return false
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		// The call was torn down while the engine was connecting.
		s.nonCritical("leave stale room", s.engine.Leave)
		s.nonCritical("release devices", s.engine.ReleaseHardware)
		return false
	}
	s.joined = true
	s.startedAt = s.clock.Now()
	s.elapsed = 0
	s.state = models.CallStateInCall
	room := s.room
	peer := s.peer
	startedAt := s.startedAt
	stop := make(chan struct{})
	s.tickStop = stop
	s.mu.Unlock()

	go s.tickLoop(epoch, stop)

	if s.cfg.AutoStartVideo && !s.cfg.MobileProfile {
		// A camera failure downgrades the call to audio-only instead of
		// failing it.
		if err := s.engine.SetCamEnabled(true); err != nil {
			log.Warn().Err(err).Msg("Unable to auto-start the camera.")
		} else {
			s.mu.Lock()
			s.camOn = true
			s.mu.Unlock()
			if s.events.OnCallVideoStart != nil {
				s.events.OnCallVideoStart()
			}
		}
	}

	if s.events.OnCallStart != nil {
		s.events.OnCallStart(room, peer, startedAt)
	}
	return true
}

func (s *CallService) tickLoop(epoch uint64, stop chan struct{}) {
	ticker := s.clock.Ticker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !s.onTick(epoch) {
				return
			}
		}
	}
}

func (s *CallService) onTick(epoch uint64) bool {
	s.mu.Lock()
	if s.epoch != epoch || s.state != models.CallStateInCall {
		s.mu.Unlock()
		return false
	}
	s.elapsed = s.clock.Now().Sub(s.startedAt)
	elapsed := s.elapsed
	capped := s.cfg.MaxCallDuration > 0 && elapsed >= s.cfg.MaxCallDuration
	s.mu.Unlock()

	if s.events.OnCallTimeElapsed != nil {
		s.events.OnCallTimeElapsed(elapsed)
	}
	if capped {
		log.Warn().
			Dur("elapsed", elapsed).
			Dur("cap", s.cfg.MaxCallDuration).
			Msg("Call duration cap reached, hanging up.")
		s.Leave()
		return false
	}
	return true
}

// abandonAttempt rolls back a failed outbound or accept attempt to the
// given resting state, unless a newer epoch already took over.
func (s *CallService) abandonAttempt(epoch uint64, resting models.CallState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return
	}
	s.state = resting
	s.room = ""
	s.peer = nil
	s.incoming = nil
}

// teardown is the single exit path of a live session. Every step is
// best-effort: a failing hangup notification or a misbehaving engine must
// never leave the session stuck outside ended.
func (s *CallService) teardown(notifyRemote, emitEnd bool) {
	s.mu.Lock()
	s.epoch++
	if s.tickStop != nil {
		close(s.tickStop)
		s.tickStop = nil
	}
	s.state = models.CallStateLeaving
	room := s.room
	peer := s.peer
	joined := s.joined
	startedAt := s.startedAt
	s.incoming = nil
	s.mu.Unlock()

	s.nonCritical("stop ringtone", func() error { s.ringer.Stop(); return nil })
	if joined {
		s.nonCritical("leave media room", s.engine.Leave)
	}
	if notifyRemote && len(room) > 0 && peer != nil {
		s.nonCritical("hangup notification", func() error {
			return s.api.EndCall(room, s.cfg.Self.ID, peer.ID)
		})
	}
	// Force-release capture devices even after a clean leave; a leaked
	// camera indicator is worse than a redundant release.
	s.nonCritical("release devices", s.engine.ReleaseHardware)

	endedAt := s.clock.Now()
	if joined {
		s.recordCall(room, peer, startedAt, endedAt)
	}

	s.mu.Lock()
	s.state = models.CallStateEnded
	s.room = ""
	s.peer = nil
	s.incoming = nil
	s.localTileID = ""
	s.remoteTiles = nil
	s.micOn = false
	s.camOn = false
	s.joined = false
	s.startedAt = time.Time{}
	s.elapsed = 0
	s.mu.Unlock()

	if emitEnd && s.events.OnCallEnd != nil {
		s.events.OnCallEnd(room, endedAt)
	}
}

// ToggleMic flips the outgoing audio state. Only valid while connected.
func (s *CallService) ToggleMic() error {
	s.mu.Lock()
	if !s.joined {
		s.mu.Unlock()
		return fmt.Errorf("not connected to a call")
	}
	target := !s.micOn
	s.mu.Unlock()

	if err := s.engine.SetMicEnabled(target); err != nil {
		return fmt.Errorf("unable to switch the microphone: %v", err)
	}

	s.mu.Lock()
	s.micOn = target
	s.mu.Unlock()

	if target {
		if s.events.OnCallUnmute != nil {
			s.events.OnCallUnmute()
		}
	} else if s.events.OnCallMute != nil {
		s.events.OnCallMute()
	}
	return nil
}

// ToggleCam flips the outgoing video state. Turning the camera off also
// force-releases the device so the host indicator goes dark.
func (s *CallService) ToggleCam() error {
	s.mu.Lock()
	if !s.joined {
		s.mu.Unlock()
		return fmt.Errorf("not connected to a call")
	}
	target := !s.camOn
	s.mu.Unlock()

	if err := s.engine.SetCamEnabled(target); err != nil {
		return fmt.Errorf("unable to switch the camera: %v", err)
	}

	s.mu.Lock()
	s.camOn = target
	s.mu.Unlock()

	if target {
		if s.events.OnCallVideoStart != nil {
			s.events.OnCallVideoStart()
		}
	} else {
		s.nonCritical("release camera", s.engine.ReleaseHardware)
		if s.events.OnCallVideoStopped != nil {
			s.events.OnCallVideoStopped()
		}
	}
	return nil
}

// LocalTileChanged implements media.Observer.
func (s *CallService) LocalTileChanged(id string) {
	s.mu.Lock()
	s.localTileID = id
	s.mu.Unlock()
}

// RemoteTileAdded implements media.Observer. A newer tile of the same
// participant replaces the previous one.
func (s *CallService) RemoteTileAdded(tile media.Tile) {
	s.mu.Lock()
	s.remoteTiles = lo.Filter(s.remoteTiles, func(t media.Tile, _ int) bool {
		return t.ParticipantID != tile.ParticipantID
	})
	s.remoteTiles = append(s.remoteTiles, tile)
	s.mu.Unlock()
}

// RemoteTileRemoved implements media.Observer.
func (s *CallService) RemoteTileRemoved(id string) {
	s.mu.Lock()
	s.remoteTiles = lo.Filter(s.remoteTiles, func(t media.Tile, _ int) bool {
		return t.ID != id
	})
	s.mu.Unlock()
}

func (s *CallService) recordCall(room string, peer *models.UserInfo, startedAt, endedAt time.Time) {
	if s.cfg.Cache == nil {
		return
	}
	snapshot := datatypes.JSONMap{}
	if peer != nil {
		models.FitStruct(*peer, &snapshot)
	}
	record := models.CallRecord{
		Room:      room,
		Peer:      snapshot,
		StartedAt: startedAt,
		EndedAt:   endedAt,
		Duration:  int64(endedAt.Sub(startedAt).Seconds()),
	}
	s.nonCritical("call log", func() error {
		return s.cfg.Cache.Create(&record).Error
	})
}

// nonCritical runs a best-effort side effect, demoting errors and panics
// to log lines so teardown sequences always run to completion.
func (s *CallService) nonCritical(step string, fn func() error) {
	defer func() {
		if cause := recover(); cause != nil {
			log.Warn().Any("cause", cause).Msgf("Panic during %s was suppressed.", step)
		}
	}()
	if err := fn(); err != nil {
		log.Warn().Err(err).Msgf("Unable to complete %s.", step)
	}
}

func (s *CallService) State() models.CallState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *CallService) Room() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

func (s *CallService) Peer() *models.UserInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.peer == nil {
		return nil
	}
	peer := *s.peer
	return &peer
}

func (s *CallService) IncomingCall() *models.IncomingCallOffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.incoming == nil {
		return nil
	}
	offer := *s.incoming
	return &offer
}

func (s *CallService) IsMicOn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.micOn
}

func (s *CallService) IsCamOn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.camOn
}

func (s *CallService) LocalTileID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localTileID
}

func (s *CallService) RemoteTiles() []media.Tile {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]media.Tile, len(s.remoteTiles))
	copy(out, s.remoteTiles)
	return out
}

// Elapsed reports the in-call time of the current session.
func (s *CallService) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsed
}
