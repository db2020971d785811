package voice

import "strings"

// FinishGuard turns recognizer observations into at most one "user finished
// speaking" event per utterance. It is re-armed only when listening restarts.
type FinishGuard struct {
	wasListening bool
	sent         bool
}

// Observe records the current listening state and returns the transcript to
// send when a listening true->false edge with a non-empty transcript occurs.
func (g *FinishGuard) Observe(listening bool, transcript string) (string, bool) {
	defer func() { g.wasListening = listening }()

	if listening {
		if !g.wasListening {
			g.sent = false
		}
		return "", false
	}
	if !g.wasListening || g.sent {
		return "", false
	}
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return "", false
	}
	g.sent = true
	return transcript, true
}
