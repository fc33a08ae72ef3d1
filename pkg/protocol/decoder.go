package protocol

import (
	"bytes"
	"encoding/json"
	"strings"

	"go.uber.org/zap"
)

// DefaultMaxLineBytes bounds a single event line. Selection batches carry
// full job records, so the bound is generous.
const DefaultMaxLineBytes = 1 << 20

// defaultNoiseFilters drops worker stderr/stdout chatter that carries no
// information: Python TLS warnings and the worker's own retry spam.
var defaultNoiseFilters = []string{
	"NotOpenSSLWarning",
	"InsecureRequestWarning",
	"urllib3",
	"warnings.warn",
	"emit_json_event failed",
}

// Decoder classifies worker output lines one at a time, in arrival order.
//
// The decoder never fails the stream: structurally invalid JSON becomes a
// KindLogLine event, and a valid JSON object with an unrecognized type tag
// becomes KindUnknown so newer workers keep running against older builds.
type Decoder struct {
	maxLineBytes int
	noiseFilters []string
	log          *zap.Logger
}

func NewDecoder(log *zap.Logger) *Decoder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Decoder{
		maxLineBytes: DefaultMaxLineBytes,
		noiseFilters: defaultNoiseFilters,
		log:          log,
	}
}

func (d *Decoder) SetMaxLineBytes(n int) {
	if n <= 0 {
		d.maxLineBytes = DefaultMaxLineBytes
		return
	}
	d.maxLineBytes = n
}

// SetNoiseFilters replaces the default noisy-substring list.
func (d *Decoder) SetNoiseFilters(filters []string) {
	d.noiseFilters = filters
}

// envelope is the minimal shape probed before full payload decoding.
type envelope struct {
	Type string `json:"type"`
}

// DecodeLine classifies a single line. The second return is false when the
// line is pure noise and should be dropped entirely (not even logged).
func (d *Decoder) DecodeLine(line []byte) (Event, bool) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		return Event{}, false
	}
	if len(trimmed) > d.maxLineBytes {
		d.log.Warn("Worker line exceeds max bytes, treating as diagnostic",
			zap.Int("len", len(trimmed)))
		return Event{Kind: KindLogLine, Line: truncate(string(trimmed), 512)}, true
	}

	if trimmed[0] != '{' {
		return d.logLine(string(trimmed))
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		// Looked like JSON but is not. Diagnostic, never a stream error.
		return d.logLine(string(trimmed))
	}

	switch env.Type {
	case TypeStageChange:
		var payload StageChange
		if err := json.Unmarshal(trimmed, &payload); err != nil {
			return d.malformed(env.Type, trimmed, err)
		}
		return Event{Kind: KindStageChange, Stage: &payload}, true

	case TypeSelectionRequired:
		var payload SelectionRequired
		if err := json.Unmarshal(trimmed, &payload); err != nil {
			return d.malformed(env.Type, trimmed, err)
		}
		return Event{Kind: KindSelectionRequired, Selection: &payload}, true

	case TypeApprovalRequired:
		var payload ApprovalRequired
		if err := json.Unmarshal(trimmed, &payload); err != nil {
			return d.malformed(env.Type, trimmed, err)
		}
		return Event{Kind: KindApprovalRequired, Approval: &payload}, true

	case TypeFinalResults:
		var payload FinalResults
		if err := json.Unmarshal(trimmed, &payload); err != nil {
			return d.malformed(env.Type, trimmed, err)
		}
		return Event{Kind: KindFinalResults, Final: &payload}, true

	case TypeHeartbeat:
		return Event{Kind: KindHeartbeat}, true

	case TypeError, "application_generation_error", "provider_mapping_error", "profile_validation_failed":
		var payload WorkerError
		if err := json.Unmarshal(trimmed, &payload); err != nil {
			return d.malformed(env.Type, trimmed, err)
		}
		if payload.Type == "" {
			payload.Type = env.Type
		}
		return Event{Kind: KindWorkerError, WorkerErr: &payload}, true

	case "":
		return d.logLine(string(trimmed))

	default:
		// Forward compatibility: unknown tags are surfaced, not raised.
		d.log.Debug("Ignoring unknown worker event type", zap.String("type", env.Type))
		return Event{Kind: KindUnknown, RawType: env.Type, Line: string(trimmed)}, true
	}
}

func (d *Decoder) logLine(line string) (Event, bool) {
	for _, noisy := range d.noiseFilters {
		if strings.Contains(line, noisy) {
			return Event{}, false
		}
	}
	return Event{Kind: KindLogLine, Line: line}, true
}

func (d *Decoder) malformed(typ string, line []byte, err error) (Event, bool) {
	d.log.Warn("Malformed worker event payload",
		zap.String("type", typ), zap.Error(err))
	return Event{Kind: KindLogLine, Line: truncate(string(line), 512)}, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
