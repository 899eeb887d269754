package core

import (
	"errors"

	"github.com/rs/zerolog"
)

// broadcast enqueues ev for every session in members except exclude and
// returns how many accepted it. A failing session is logged and skipped; a
// session whose outbox is full is closed, which later drives it through the
// regular disconnect path. Nobody is deregistered here.
func broadcast(logger *zerolog.Logger, members []*Session, ev ChatEvent, exclude *Session) int {
	delivered := 0
	for _, s := range members {
		if s == exclude {
			continue
		}
		if err := s.enqueue(ev); err != nil {
			logger.Warn().
				Err(err).
				Str("room", ev.Room).
				Str("session_id", s.ID).
				Str("event", ev.Kind.String()).
				Msg("broadcast send failed")
			if errors.Is(err, ErrSlowConsumer) {
				s.Close(CloseReasonSlowConsumer)
			}
			continue
		}
		delivered++
	}
	return delivered
}
