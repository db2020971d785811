package workspace

import (
	"github.com/ashureev/lastminute/internal/agent"
	"github.com/ashureev/lastminute/internal/annotation"
	"github.com/ashureev/lastminute/internal/domain"
	"github.com/ashureev/lastminute/internal/progress"
	"github.com/ashureev/lastminute/internal/voice"
)

// Client event types.
const (
	evSend            = "send"
	evMicStart        = "mic_start"
	evMicStop         = "mic_stop"
	evVoice           = "voice"
	evStopAudio       = "stop_audio"
	evSpeechToggle    = "speech_toggle"
	evAudioEnded      = "audio_ended"
	evQuizSelect      = "quiz_select"
	evQuizSubmit      = "quiz_submit"
	evOpenChange      = "open_change"
	evOpenSubmit      = "open_submit"
	evNext            = "next"
	evPrev            = "prev"
	evChecklistToggle = "checklist_toggle"
	evSurfaceResize   = "surface_resize"
	evSurfaceSource   = "surface_source"
	evSurfaceTool     = "surface_tool"
	evPointerDown     = "pointer_down"
	evPointerMove     = "pointer_move"
	evPointerUp       = "pointer_up"
	evAnnotationClear = "annotation_clear"
	evPing            = "ping"
)

// Server event types.
const (
	evReady        = "ready"
	evState        = "state"
	evMessage      = "message"
	evProgress     = "progress"
	evAnnotation   = "annotation"
	evAudio        = "audio"
	evAudioStop    = "audio_stop"
	evMuted        = "muted"
	evVoiceCommand = "voice_command"
	evSessionError = "session_error"
	evError        = "error"
	evPong         = "pong"
)

// clientEvent is any message the browser sends. Fields are used per type.
type clientEvent struct {
	Type string `json:"type"`

	Text    string `json:"text,omitempty"`
	Enabled *bool  `json:"enabled,omitempty"`
	ID      string `json:"id,omitempty"`
	Option  int    `json:"option,omitempty"`

	Listening bool   `json:"listening,omitempty"`
	Supported *bool  `json:"supported,omitempty"`
	Interim   string `json:"interim,omitempty"`
	Final     string `json:"final,omitempty"`

	Surface string          `json:"surface,omitempty"`
	X       float64         `json:"x,omitempty"`
	Y       float64         `json:"y,omitempty"`
	Width   float64         `json:"width,omitempty"`
	Height  float64         `json:"height,omitempty"`
	Image   string          `json:"image,omitempty"`
	Alt     string          `json:"alt,omitempty"`
	Tool    annotation.Tool `json:"tool,omitempty"`
}

// serverEvent is any message the server sends. Fields are set per type.
type serverEvent struct {
	Type string `json:"type"`

	Ready      *readyPayload      `json:"ready,omitempty"`
	State      agent.State        `json:"state,omitempty"`
	Message    *domain.Message    `json:"message,omitempty"`
	Progress   *progress.Snapshot `json:"progress,omitempty"`
	Annotation *annotationPayload `json:"annotation,omitempty"`
	Audio      *audioPayload      `json:"audio,omitempty"`
	Muted      *bool              `json:"muted,omitempty"`
	Command    voice.Command      `json:"command,omitempty"`
	Error      string             `json:"error,omitempty"`
}

type readyPayload struct {
	Session   *domain.Session   `json:"session"`
	State     agent.State       `json:"state"`
	Messages  []domain.Message  `json:"messages"`
	Progress  progress.Snapshot `json:"progress"`
	Surfaces  []surfaceInfo     `json:"surfaces"`
	CardBeats []int             `json:"cardBeats"`
	Speech    speechInfo        `json:"speech"`
}

type surfaceInfo struct {
	ID      string          `json:"id"`
	Label   string          `json:"label"`
	Caption string          `json:"caption,omitempty"`
	Beat    int             `json:"beat"`
	Tool    annotation.Tool `json:"tool"`
}

type speechInfo struct {
	Enabled bool `json:"enabled"`
	Muted   bool `json:"muted"`
}

type annotationPayload struct {
	Surface string `json:"surface"`
	Cleared bool   `json:"cleared,omitempty"`
	annotation.Annotation
}

// audioPayload announces the binary frame that follows it.
type audioPayload struct {
	ID       string `json:"id"`
	MIMEType string `json:"mimeType"`
	Bytes    int    `json:"bytes"`
	Text     string `json:"text,omitempty"`
}
