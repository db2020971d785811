package agent

import "testing"

func TestTransitionTableCompleteness(t *testing.T) {
	for _, s := range []State{StateIdle, StateListening, StateThinking, StateSpeaking} {
		if len(TransitionTable[s]) == 0 {
			t.Errorf("Expected state %s to have outgoing transitions", s)
		}
	}
}

func TestTransition(t *testing.T) {
	tests := []struct {
		from    State
		ev      Event
		want    State
		wantErr bool
	}{
		{StateIdle, EventListen, StateListening, false},
		{StateIdle, EventSubmit, StateThinking, false},
		{StateListening, EventTranscript, StateThinking, false},
		{StateListening, EventSilence, StateIdle, false},
		{StateThinking, EventReply, StateSpeaking, false},
		{StateThinking, EventReplyQuiet, StateIdle, false},
		{StateThinking, EventFail, StateIdle, false},
		{StateSpeaking, EventPlaybackDone, StateIdle, false},
		{StateSpeaking, EventSubmit, StateThinking, false},
		{StateThinking, EventSubmit, StateThinking, true},
		{StateThinking, EventListen, StateThinking, true},
		{StateIdle, EventReply, StateIdle, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.ev), func(t *testing.T) {
			got, err := Transition(tt.from, tt.ev)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Expected error=%v, got %v", tt.wantErr, err)
			}
			if got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}
