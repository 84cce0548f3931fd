// Package protocol defines the payloads and subjects broadcast on the bus.
package protocol

import "time"

// Transcription is one finalized recognized utterance. Records are
// immutable once created; IsPartial is true only for interim hypotheses,
// which are broadcast transiently and never persisted.
type Transcription struct {
	ID                string    `json:"id"`
	Text              string    `json:"text"`
	Timestamp         time.Time `json:"timestamp"`
	Confidence        float64   `json:"confidence"`
	DetectedCallsigns []string  `json:"detected_callsigns,omitempty"`
	Frequency         string    `json:"frequency,omitempty"`
	IsPartial         bool      `json:"is_partial"`
}

// PartialText carries an interim hypothesis during continuous listening.
type PartialText struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// EngineStateChange is broadcast on every engine session transition.
type EngineStateChange struct {
	State     string    `json:"state"`
	Model     string    `json:"model,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// DeviceStateChange is broadcast on every device session transition.
type DeviceStateChange struct {
	State     string    `json:"state"`
	DeviceID  string    `json:"device_id,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// AudioSourceType classifies where audio comes from.
type AudioSourceType string

const (
	SourceMicrophone AudioSourceType = "microphone"
	SourceExternal   AudioSourceType = "external-device"
	SourceWired      AudioSourceType = "wired"
)

// AudioSource describes a candidate or connected audio-producing device.
type AudioSource struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Type        AudioSourceType `json:"type"`
	IsConnected bool            `json:"is_connected"`
}

// DeviceListSnapshot is the full discovered-device list, republished on
// every change.
type DeviceListSnapshot struct {
	Devices   []AudioSource `json:"devices"`
	Timestamp time.Time     `json:"timestamp"`
}

// DownloadProgress reports model acquisition progress. BytesTotal is zero
// when the server did not announce a length.
type DownloadProgress struct {
	Model      string `json:"model"`
	BytesDone  int64  `json:"bytes_done"`
	BytesTotal int64  `json:"bytes_total,omitempty"`
}

// AudioFrame carries PCM audio streamed into the engine session while
// listening.
type AudioFrame struct {
	Sequence   int    `json:"sequence"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	PCM        []byte `json:"pcm"`
	Final      bool   `json:"final"`
}

const (
	SubjectEngineState       = "engine.state"
	SubjectTranscriptFinal   = "engine.transcript.final"
	SubjectTranscriptPartial = "engine.transcript.partial"
	SubjectDeviceState       = "device.state"
	SubjectDeviceList        = "device.list"
	SubjectDownloadProgress  = "model.download.progress"
	SubjectHistorySaved      = "history.saved"
	SubjectAudioFrame        = "audio.frame"
)
