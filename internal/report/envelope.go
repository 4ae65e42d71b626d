// Package report turns run outcomes into messages for API clients and
// callbacks, and into files for offline diagnosis.
package report

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/copyleftdev/scryflow/internal/dom"
)

const EnvelopeVersion = "2025-03-26"

// Message is the envelope every API response body and callback carries.
type Message struct {
	Version  string   `json:"version"`
	RunID    string   `json:"run_id,omitempty"`
	Metadata Metadata `json:"metadata"`
	Content  Content  `json:"content"`
}

type Metadata struct {
	SourceURI string                 `json:"source_uri,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Custom    map[string]interface{} `json:"custom,omitempty"`
}

type Content struct {
	MIMEType string      `json:"mime_type"`
	Data     interface{} `json:"data"`
	Encoding string      `json:"encoding,omitempty"` // e.g., "base64"
}

func NewBaseMessage(runID string) Message {
	return Message{
		Version: EnvelopeVersion,
		RunID:   runID,
		Metadata: Metadata{
			Timestamp: time.Now().UTC(),
		},
	}
}

func FormatStatus(runID, status, sourceURI string) ([]byte, error) {
	msg := NewBaseMessage(runID)
	msg.Metadata.SourceURI = sourceURI
	msg.Content = Content{MIMEType: "text/plain", Data: status}
	return json.Marshal(msg)
}

func FormatError(runID string, err error, sourceURI string) ([]byte, error) {
	msg := NewBaseMessage(runID)
	msg.Metadata.SourceURI = sourceURI
	msg.Content = Content{
		MIMEType: "application/json",
		Data:     map[string]string{"error": err.Error()},
	}
	return json.Marshal(msg)
}

// FormatResult wraps any JSON-encodable result, typically a verdict.
func FormatResult(runID string, result interface{}, sourceURI string) ([]byte, error) {
	msg := NewBaseMessage(runID)
	msg.Metadata.SourceURI = sourceURI
	msg.Content = Content{MIMEType: "application/json", Data: result}
	return json.Marshal(msg)
}

// Snapshot formats accepted by FormatSnapshot.
const (
	SnapshotHTML       = "html"
	SnapshotSimplified = "simplified"
	SnapshotScreenshot = "png"
)

// FormatSnapshot wraps one view of a failure snapshot. Screenshots are
// base64 encoded.
func FormatSnapshot(runID string, snap *dom.Snapshot, format string) ([]byte, error) {
	if snap == nil {
		return nil, fmt.Errorf("run %s has no snapshot", runID)
	}
	msg := NewBaseMessage(runID)
	msg.Metadata.SourceURI = snap.URL
	msg.Metadata.Custom = map[string]interface{}{
		"title":       snap.Title,
		"captured_at": snap.CapturedAt,
	}
	if len(snap.Problems) > 0 {
		msg.Metadata.Custom["problems"] = snap.Problems
	}

	switch format {
	case "", SnapshotSimplified:
		msg.Content = Content{MIMEType: "text/html", Data: snap.Simplified}
	case SnapshotHTML:
		msg.Content = Content{MIMEType: "text/html", Data: snap.HTML}
	case SnapshotScreenshot:
		if len(snap.Screenshot) == 0 {
			return nil, fmt.Errorf("run %s has no screenshot", runID)
		}
		msg.Content = Content{
			MIMEType: "image/png",
			Data:     base64.StdEncoding.EncodeToString(snap.Screenshot),
			Encoding: "base64",
		}
	default:
		return nil, fmt.Errorf("unknown snapshot format %q", format)
	}
	return json.Marshal(msg)
}
