package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	DataPrefix = "data:"
	// DoneSentinel is the payload that announces the end of a stream.
	DoneSentinel = "[DONE]"
)

// Discriminator values of Record.Type.
const (
	RecordNodeUpdate = "node_update"
	RecordInterrupt  = "interrupt"
	RecordToken      = "token"
	RecordError      = "error"
)

// Record is the JSON object carried by one event-bearing line.
type Record struct {
	Type     string      `json:"type" jsonschema:"required,enum=node_update,enum=interrupt,enum=token,enum=error"`
	Node     string      `json:"node,omitempty" jsonschema:"description=Phase that finished; required for node_update"`
	Data     *RecordData `json:"data,omitempty"`
	Content  *string     `json:"content,omitempty" jsonschema:"description=Report fragment; required for token"`
	Message  string      `json:"message,omitempty"`
	ThreadID string      `json:"thread_id,omitempty" jsonschema:"description=Correlation token of the paused run"`
}

type RecordData struct {
	Plan        []string `json:"plan,omitempty"`
	FinalReport *string  `json:"final_report,omitempty"`
}

// Parse classifies one decoded line. It reports false for lines that do not
// carry an event: lines without the data prefix and empty payloads.
//
// Parse never fails; payloads that cannot be understood become [Malformed].
func Parse(line string) (Event, bool) {
	if !strings.HasPrefix(line, DataPrefix) {
		return nil, false
	}

	payload := strings.TrimSpace(strings.TrimPrefix(line, DataPrefix))
	if payload == "" {
		return nil, false
	}
	if payload == DoneSentinel {
		return NewTerminate(), true
	}

	event, err := parseRecord(payload)
	if err != nil {
		var parseErr *ParseError
		if !errors.As(err, &parseErr) {
			parseErr = &ParseError{Reason: "unexpected error", Err: err}
		}
		return NewMalformed(payload, parseErr), true
	}
	return event, true
}

func parseRecord(payload string) (Event, error) {
	var record Record
	if err := json.Unmarshal([]byte(payload), &record); err != nil {
		return nil, &ParseError{Reason: "invalid JSON", Err: err}
	}

	switch record.Type {
	case RecordNodeUpdate:
		if strings.TrimSpace(record.Node) == "" {
			return nil, &ParseError{Reason: "node_update without node"}
		}
		payload := ProgressPayload{SessionToken: record.ThreadID}
		if record.Data != nil {
			payload.Plan = record.Data.Plan
			payload.FinalReport = record.Data.FinalReport
		}
		return NewProgress(Phase(record.Node), payload), nil

	case RecordInterrupt:
		return NewInterrupt(record.ThreadID, record.Message), nil

	case RecordToken:
		if record.Content == nil {
			return nil, &ParseError{Reason: "token without content"}
		}
		return NewToken(*record.Content), nil

	case RecordError:
		return NewFailure(record.Message), nil

	case "":
		return nil, &ParseError{Reason: "missing type"}

	default:
		return nil, &ParseError{Reason: fmt.Sprintf("unknown type %q", record.Type)}
	}
}

// FormatRecord renders record as one wire frame, terminated by a blank line.
func FormatRecord(record Record) (string, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("error marshalling record: %w", err)
	}
	return DataPrefix + " " + string(data) + "\n\n", nil
}

// FormatDone renders the termination frame.
func FormatDone() string {
	return DataPrefix + " " + DoneSentinel + "\n\n"
}
