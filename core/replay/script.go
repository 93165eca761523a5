package replay

import (
	"fmt"
	"strings"

	"github.com/koscakluka/cognito-session/core/events"
	"github.com/koscakluka/cognito-session/internal/utils"
)

const (
	approvalMessage = "Awaiting Human Approval"
	pendingDetail   = "No pending actions for this thread."
)

// Script is the canned pipeline output the server replays for every query.
type Script struct {
	// Plan is the architect's output. "%s" in a step is replaced by the query.
	Plan []string
	// Report is the analyst's final report. "%s" is replaced by the query.
	Report string
	// Gated pauses after the plan until the thread is approved.
	Gated bool
	// Tokens streams the report as token records before the analyst update.
	Tokens bool
	// Noise interleaves lines a client must skip: comments, blank payloads, a
	// malformed record and tokens outside the analyst phase.
	Noise bool
}

func DefaultScript() Script {
	return Script{
		Plan: []string{
			"Break down the question: %s",
			"Collect sources for each sub-question",
			"Compare findings and resolve conflicts",
		},
		Report: "# Report\n\nFindings for **%s**.\n\n- Sources were collected and compared.\n- Conflicts were resolved.\n",
		Gated:  true,
	}
}

func (s Script) plan(query string) []string {
	plan := make([]string, 0, len(s.Plan))
	for _, step := range s.Plan {
		plan = append(plan, expand(step, query))
	}
	return plan
}

func expand(template, query string) string {
	if !strings.Contains(template, "%s") {
		return template
	}
	return strings.ReplaceAll(template, "%s", query)
}

// planning returns the frames of the architect phase. When gated, the frames
// end with the interrupt carrying threadID; otherwise they continue with the
// research frames.
func (s Script) planning(threadID, query string) ([]string, error) {
	records := []events.Record{}
	if s.Noise {
		records = append(records, tokenRecord("thinking about the plan"))
	}
	records = append(records, events.Record{
		Type: events.RecordNodeUpdate,
		Node: string(events.PhaseArchitect),
		Data: &events.RecordData{Plan: s.plan(query)},
	})

	frames, err := format(records)
	if err != nil {
		return nil, err
	}
	if s.Noise {
		frames = append(frames, ": keep-alive\n\n", "data: not-json\n\n", "data:\n\n")
	}

	if s.Gated {
		interrupt, err := events.FormatRecord(events.Record{
			Type:     events.RecordInterrupt,
			Message:  approvalMessage,
			ThreadID: threadID,
		})
		if err != nil {
			return nil, err
		}
		return append(frames, interrupt, events.FormatDone()), nil
	}

	research, err := s.research(query)
	if err != nil {
		return nil, err
	}
	return append(frames, research...), nil
}

// research returns the frames of the researcher and analyst phases, ending
// with the done sentinel.
func (s Script) research(query string) ([]string, error) {
	report := expand(s.Report, query)

	records := []events.Record{{
		Type: events.RecordNodeUpdate,
		Node: string(events.PhaseResearcher),
		Data: &events.RecordData{},
	}}
	if s.Tokens {
		for _, fragment := range splitTokens(report) {
			records = append(records, tokenRecord(fragment))
		}
	}
	records = append(records, events.Record{
		Type: events.RecordNodeUpdate,
		Node: string(events.PhaseAnalyst),
		Data: &events.RecordData{FinalReport: utils.Ptr(report)},
	})

	frames, err := format(records)
	if err != nil {
		return nil, err
	}
	return append(frames, events.FormatDone()), nil
}

func tokenRecord(content string) events.Record {
	return events.Record{Type: events.RecordToken, Content: utils.Ptr(content)}
}

func format(records []events.Record) ([]string, error) {
	frames := make([]string, 0, len(records))
	for _, record := range records {
		frame, err := events.FormatRecord(record)
		if err != nil {
			return nil, fmt.Errorf("error formatting %s record: %w", record.Type, err)
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

// splitTokens cuts text after every space and newline. Concatenating the
// fragments gives text back.
func splitTokens(text string) []string {
	var fragments []string
	start := 0
	for i, r := range text {
		if r == ' ' || r == '\n' {
			fragments = append(fragments, text[start:i+1])
			start = i + 1
		}
	}
	if start < len(text) {
		fragments = append(fragments, text[start:])
	}
	return fragments
}
