package agent

import "fmt"

// State is the tutor's conversational state. Exactly one is current.
type State string

const (
	StateIdle      State = "idle"
	StateListening State = "listening"
	StateThinking  State = "thinking"
	StateSpeaking  State = "speaking"
)

// Event drives a state transition.
type Event string

const (
	EventListen       Event = "listen"        // voice capture started
	EventSilence      Event = "silence"       // capture ended without a transcript
	EventSubmit       Event = "submit"        // typed message accepted
	EventTranscript   Event = "transcript"    // final transcript accepted
	EventReply        Event = "reply"         // response received, speech on
	EventReplyQuiet   Event = "reply_quiet"   // response received, speech off
	EventFail         Event = "fail"          // chat or analysis call failed
	EventPlaybackDone Event = "playback_done" // clip ended or was interrupted
)

// TransitionTable lists every allowed transition. Anything absent is rejected.
var TransitionTable = map[State]map[Event]State{
	StateIdle: {
		EventListen:     StateListening,
		EventSubmit:     StateThinking,
		EventTranscript: StateThinking,
	},
	StateListening: {
		EventSilence:    StateIdle,
		EventSubmit:     StateThinking,
		EventTranscript: StateThinking,
	},
	StateThinking: {
		EventReply:      StateSpeaking,
		EventReplyQuiet: StateIdle,
		EventFail:       StateIdle,
	},
	StateSpeaking: {
		EventListen:       StateListening,
		EventSubmit:       StateThinking,
		EventTranscript:   StateThinking,
		EventPlaybackDone: StateIdle,
	},
}

// Transition returns the state reached from "from" on ev.
func Transition(from State, ev Event) (State, error) {
	next, ok := TransitionTable[from][ev]
	if !ok {
		return from, fmt.Errorf("invalid transition: %s on %s", from, ev)
	}
	return next, nil
}
