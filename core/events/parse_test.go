package events

import (
	"encoding/json"
	"slices"
	"strings"
	"testing"
)

func TestParseIgnoresNonEventLines(t *testing.T) {
	for _, line := range []string{"", ": keep-alive", "event: node_update", "id: 4", "data:", "data:    ", "  data: [DONE]"} {
		if event, ok := Parse(line); ok {
			t.Fatalf("expected %q to be ignored, got %v", line, event)
		}
	}
}

func TestParseTerminate(t *testing.T) {
	for _, line := range []string{"data: [DONE]", "data:[DONE]", "data: [DONE]  "} {
		event, ok := Parse(line)
		if !ok {
			t.Fatalf("expected %q to be parsed", line)
		}
		if _, isTerminate := event.(Terminate); !isTerminate {
			t.Fatalf("expected terminate for %q, got %T", line, event)
		}
	}
}

func TestParseArchitectProgress(t *testing.T) {
	event, ok := Parse(`data: {"type":"node_update","node":"architect","data":{"plan":["search sources","extract data","draft report"],"current_agent":"architect"}}`)
	if !ok {
		t.Fatalf("expected line to be parsed")
	}
	progress, isProgress := event.(Progress)
	if !isProgress {
		t.Fatalf("expected Progress, got %T", event)
	}
	if progress.Phase != PhaseArchitect {
		t.Fatalf("expected architect phase, got %q", progress.Phase)
	}
	if want := []string{"search sources", "extract data", "draft report"}; !slices.Equal(progress.Plan, want) {
		t.Fatalf("expected plan %q, got %q", want, progress.Plan)
	}
	if progress.FinalReport != nil {
		t.Fatalf("expected no final report")
	}
}

func TestParseAnalystProgressCarriesReport(t *testing.T) {
	event, _ := Parse(`data: {"type":"node_update","node":"analyst","data":{"final_report":"# Report\nDone."}}`)
	progress := event.(Progress)
	if progress.FinalReport == nil || *progress.FinalReport != "# Report\nDone." {
		t.Fatalf("unexpected final report %v", progress.FinalReport)
	}
}

func TestParseInterruptCarriesToken(t *testing.T) {
	event, _ := Parse(`data: {"type":"interrupt","message":"Awaiting Human Approval","thread_id":"t-1"}`)
	interrupt, ok := event.(Interrupt)
	if !ok {
		t.Fatalf("expected Interrupt, got %T", event)
	}
	if interrupt.SessionToken != "t-1" || interrupt.Message != "Awaiting Human Approval" {
		t.Fatalf("unexpected interrupt %+v", interrupt)
	}
}

func TestParseTokenAndFailure(t *testing.T) {
	event, _ := Parse(`data: {"type":"token","content":""}`)
	if token, ok := event.(Token); !ok || token.Content != "" {
		t.Fatalf("expected empty token to be valid, got %#v", event)
	}

	event, _ = Parse(`data: {"type":"error","message":"graph failed"}`)
	if failure, ok := event.(Failure); !ok || failure.Message != "graph failed" {
		t.Fatalf("expected failure, got %#v", event)
	}
}

func TestParseMalformedPayloads(t *testing.T) {
	testCases := []struct {
		name   string
		line   string
		reason string
	}{
		{name: "not json", line: "data: not-json", reason: "invalid JSON"},
		{name: "truncated json", line: `data: {"type":"tok`, reason: "invalid JSON"},
		{name: "missing type", line: `data: {"node":"architect"}`, reason: "missing type"},
		{name: "unknown type", line: `data: {"type":"heartbeat"}`, reason: "unknown type"},
		{name: "node update without node", line: `data: {"type":"node_update"}`, reason: "without node"},
		{name: "token without content", line: `data: {"type":"token"}`, reason: "without content"},
		{name: "plan with wrong type", line: `data: {"type":"node_update","node":"architect","data":{"plan":"one"}}`, reason: "invalid JSON"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			event, ok := Parse(testCase.line)
			if !ok {
				t.Fatalf("expected malformed event, got nothing")
			}
			malformed, isMalformed := event.(Malformed)
			if !isMalformed {
				t.Fatalf("expected Malformed, got %T", event)
			}
			if !strings.Contains(malformed.Err.Error(), testCase.reason) {
				t.Fatalf("expected reason %q in %q", testCase.reason, malformed.Err.Error())
			}
			if malformed.Raw != strings.TrimSpace(strings.TrimPrefix(testCase.line, DataPrefix)) {
				t.Fatalf("expected raw payload to be kept, got %q", malformed.Raw)
			}
		})
	}
}

func TestFormatRecordRoundTripsThroughParse(t *testing.T) {
	report := "# Report"
	frame, err := FormatRecord(Record{Type: RecordNodeUpdate, Node: "analyst", Data: &RecordData{FinalReport: &report}})
	if err != nil {
		t.Fatalf("FormatRecord: %v", err)
	}
	if !strings.HasSuffix(frame, "\n\n") {
		t.Fatalf("expected frame to end with a blank line, got %q", frame)
	}

	event, ok := Parse(strings.TrimSpace(frame))
	if !ok {
		t.Fatalf("expected formatted frame to parse")
	}
	if progress := event.(Progress); progress.Phase != PhaseAnalyst || *progress.FinalReport != report {
		t.Fatalf("unexpected progress %+v", progress)
	}

	if event, _ := Parse(strings.TrimSpace(FormatDone())); event.Kind() != KindTerminate {
		t.Fatalf("expected done frame to parse as terminate")
	}
}

func TestWireSchemaDescribesRecord(t *testing.T) {
	data, err := WireSchemaJSON()
	if err != nil {
		t.Fatalf("WireSchemaJSON: %v", err)
	}

	var schema map[string]any
	if err := json.Unmarshal(data, &schema); err != nil {
		t.Fatalf("schema is not valid JSON: %v", err)
	}
	properties, ok := schema["properties"].(map[string]any)
	if !ok {
		t.Fatalf("expected properties in schema, got %v", schema)
	}
	for _, field := range []string{"type", "node", "data", "content", "thread_id"} {
		if _, ok := properties[field]; !ok {
			t.Fatalf("expected %q in schema properties", field)
		}
	}
}
