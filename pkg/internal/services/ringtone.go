package services

import "github.com/rs/zerolog/log"

// Ringer plays the incoming-call tone. Playback is a presentation concern,
// so the rendering layer usually provides the real implementation; both
// methods are best-effort and must never block.
type Ringer interface {
	Play()
	Stop()
}

type logRinger struct{}

// NewLogRinger returns a ringer that only logs, for headless use.
func NewLogRinger() Ringer {
	return logRinger{}
}

func (logRinger) Play() {
	log.Debug().Msg("Ringtone started.")
}

func (logRinger) Stop() {
	log.Debug().Msg("Ringtone stopped.")
}
