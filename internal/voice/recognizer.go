// Package voice defines the speech-recognition capability the tutor consumes
// and a recognizer driven by transcripts produced in the browser.
package voice

import (
	"strings"
	"sync"
)

// Recognizer is continuous speech-to-text with interim and final transcripts.
type Recognizer interface {
	IsSupported() bool
	IsListening() bool
	Transcript() string
	InterimTranscript() string
	StartListening()
	StopListening()
	ClearTranscript()
}

// Command is an instruction the remote side must carry out.
type Command string

const (
	CommandStart Command = "start"
	CommandStop  Command = "stop"
	CommandClear Command = "clear"
)

// Remote mirrors a recognizer running in the browser. The browser reports its
// state through Update; Start/Stop/Clear are forwarded as commands.
type Remote struct {
	mu        sync.Mutex
	supported bool
	listening bool
	final     string
	interim   string

	send     func(Command)
	onChange func()
}

// NewRemote creates a remote recognizer. send forwards commands to the
// browser and onChange is called after every state change.
func NewRemote(supported bool, send func(Command), onChange func()) *Remote {
	if send == nil {
		send = func(Command) {}
	}
	if onChange == nil {
		onChange = func() {}
	}
	return &Remote{supported: supported, send: send, onChange: onChange}
}

// SetSupported records whether the browser has speech recognition.
func (r *Remote) SetSupported(supported bool) {
	r.mu.Lock()
	r.supported = supported
	if !supported {
		r.listening = false
	}
	r.mu.Unlock()
}

// Update applies a state report from the browser. A non-empty final segment
// is appended to the accumulated transcript.
func (r *Remote) Update(listening bool, interim, final string) {
	r.mu.Lock()
	r.listening = listening && r.supported
	r.interim = strings.TrimSpace(interim)
	if final = strings.TrimSpace(final); final != "" {
		if r.final == "" {
			r.final = final
		} else {
			r.final += " " + final
		}
	}
	r.mu.Unlock()
	r.onChange()
}

func (r *Remote) IsSupported() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.supported
}

func (r *Remote) IsListening() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listening
}

func (r *Remote) Transcript() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.final
}

func (r *Remote) InterimTranscript() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.interim
}

// StartListening asks the browser to start capture.
func (r *Remote) StartListening() {
	r.mu.Lock()
	if !r.supported || r.listening {
		r.mu.Unlock()
		return
	}
	r.listening = true
	r.mu.Unlock()
	r.send(CommandStart)
	r.onChange()
}

// StopListening asks the browser to stop capture immediately.
func (r *Remote) StopListening() {
	r.mu.Lock()
	if !r.listening {
		r.mu.Unlock()
		return
	}
	r.listening = false
	r.mu.Unlock()
	r.send(CommandStop)
	r.onChange()
}

// ClearTranscript drops both transcripts.
func (r *Remote) ClearTranscript() {
	r.mu.Lock()
	r.final = ""
	r.interim = ""
	r.mu.Unlock()
	r.send(CommandClear)
}
