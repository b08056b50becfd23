package domain

import "time"

// IntentKind identifies the cross-process action requested by the extension.
type IntentKind string

const (
	IntentKindVoice        IntentKind = "voice"
	IntentKindVoiceControl IntentKind = "voice_control"
	IntentKindSettings     IntentKind = "settings"
)

// PendingIntent is a single queued cross-process request. The extension
// process writes it, the host consumes it at most once. New writes overwrite
// prior ones; only the most recent user action matters.
type PendingIntent struct {
	Kind      IntentKind `json:"kind"`
	Payload   string     `json:"payload,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// ReturnTargetKind selects which routing hint a ReturnTarget carries.
// Preference order when several are present: bundle identifier, then process
// id, then process name.
type ReturnTargetKind string

const (
	ReturnTargetBundleID    ReturnTargetKind = "bundle_id"
	ReturnTargetProcessID   ReturnTargetKind = "pid"
	ReturnTargetProcessName ReturnTargetKind = "process_name"
)

// ReturnTarget identifies the application that should regain focus once the
// host finishes a dictation round trip.
type ReturnTarget struct {
	BundleID    string    `json:"bundleId,omitempty"`
	PID         int       `json:"pid,omitempty"`
	ProcessName string    `json:"processName,omitempty"`
	CapturedAt  time.Time `json:"capturedAt"`
}

// Kind reports the most specific hint the target carries.
func (t ReturnTarget) Kind() ReturnTargetKind {
	switch {
	case t.BundleID != "":
		return ReturnTargetBundleID
	case t.PID > 0:
		return ReturnTargetProcessID
	default:
		return ReturnTargetProcessName
	}
}

// IsZero reports whether the target carries no routing hint at all.
func (t ReturnTarget) IsZero() bool {
	return t.BundleID == "" && t.PID <= 0 && t.ProcessName == ""
}

// SessionState models the dictation lifecycle in the host process.
type SessionState string

const (
	SessionStateIdle       SessionState = "idle"
	SessionStateListening  SessionState = "listening"
	SessionStateStopping   SessionState = "transcribing"
	SessionStateFinalizing SessionState = "finalizing"
	SessionStateReturned   SessionState = "returned"
	SessionStateError      SessionState = "error"
)

// SessionStateReason provides a structured reason for state transitions.
type SessionStateReason string

const (
	SessionReasonListening          SessionStateReason = "listening"
	SessionReasonListeningRestarted SessionStateReason = "listening_restarted"
	SessionReasonTranscribing       SessionStateReason = "transcribing"
	SessionReasonCorrecting         SessionStateReason = "correcting"
	SessionReasonInserted           SessionStateReason = "transcript_inserted"
	SessionReasonDiscarded          SessionStateReason = "recording_discarded"
	SessionReasonEmptyTranscript    SessionStateReason = "no_transcript"
	SessionReasonProviderFailed     SessionStateReason = "provider_unavailable"
	SessionReasonTranscribeFailed   SessionStateReason = "transcription_failed"
	SessionReasonRecovered          SessionStateReason = "error_recovered"
)

// ErrorCode identifies non-fatal and fatal host errors.
type ErrorCode string

const (
	ErrorCodeStartup       ErrorCode = "startup"
	ErrorCodeAudioStop     ErrorCode = "audio_stop"
	ErrorCodeAudioStream   ErrorCode = "audio_stream"
	ErrorCodeProvider      ErrorCode = "provider_unavailable"
	ErrorCodeTranscription ErrorCode = "transcription"
	ErrorCodeInsertion     ErrorCode = "insertion"
	ErrorCodeResolver      ErrorCode = "resolver"
	ErrorCodePolish        ErrorCode = "polish"
)

// TranscriptKind identifies whether a stream event is partial or final text.
type TranscriptKind string

const (
	TranscriptKindPartial TranscriptKind = "partial"
	TranscriptKindFinal   TranscriptKind = "final"
)

// TranscriptEvent represents incremental transcription output from a provider.
type TranscriptEvent struct {
	Kind          TranscriptKind `json:"kind"`
	Text          string         `json:"text"`
	Language      string         `json:"language,omitempty"`
	IsSpeechFinal bool           `json:"isSpeechFinal"`
}

// InsertionMethod names the technique used to deliver text.
type InsertionMethod string

const (
	InsertionMethodDirect InsertionMethod = "direct"
	InsertionMethodTyping InsertionMethod = "typing"
)

// InsertionFailure classifies a failed direct insertion attempt. FocusLost,
// SelectionLost and AccessibilityDenied earn a single re-attach retry; every
// other class falls back to simulated typing immediately.
type InsertionFailure string

const (
	InsertionFailureFocusLost           InsertionFailure = "focus_lost"
	InsertionFailureSelectionLost       InsertionFailure = "selection_lost"
	InsertionFailureAccessibilityDenied InsertionFailure = "accessibility_denied"
	InsertionFailureOther               InsertionFailure = "other"
)

// StopResult is returned once a recording is stopped and processed.
type StopResult struct {
	RawTranscript   string `json:"rawTranscript"`
	FinalTranscript string `json:"finalTranscript"`
	Language        string `json:"language,omitempty"`
	TraceID         string `json:"traceId"`
	PolishDeferred  bool   `json:"polishDeferred"`
}

// AutoEditUndoSnapshot captures a polish replacement so it can be reversed.
// It expires after a fixed TTL and is consumed destructively by undo.
type AutoEditUndoSnapshot struct {
	BeforeText string    `json:"beforeText"`
	AfterText  string    `json:"afterText"`
	TraceID    string    `json:"traceId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Expired reports whether the snapshot is past its TTL at now.
func (s AutoEditUndoSnapshot) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(s.CreatedAt) > ttl
}

// TraceEvent is one row of the per-trace audit trail shared by the resolver,
// the insertion engine and the polish coordinator.
type TraceEvent struct {
	TraceID   string    `json:"traceId"`
	Stage     string    `json:"stage"`
	Event     string    `json:"event"`
	Changed   bool      `json:"changed"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Status summarizes the current host runtime status.
type Status struct {
	State   SessionState `json:"state"`
	Active  bool         `json:"active"`
	Message string       `json:"message,omitempty"`
}

// AppInfo describes one installed or running application candidate for
// return-target resolution.
type AppInfo struct {
	BundleID    string `json:"bundleId"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName,omitempty"`
	ExecPath    string `json:"execPath,omitempty"`
	PID         int    `json:"pid,omitempty"`
}
