package actions

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haasonsaas/annacore/internal/coreerr"
)

// rawAction mirrors the wire shape of a single action entry.
type rawAction struct {
	Tool string `json:"tool"`
	Args []any  `json:"args"`
}

// Parse extracts every delimited action block from text, returning the
// visible reply with all blocks stripped and the actions they requested.
// Multiple action blocks anywhere in the output are recognized, each
// contributing its actions in order; the visible text outside every
// recognized region is concatenated in order to form Reply. A malformed
// action entry, or a malformed block, is reported as a Failure and skipped;
// it never causes the rest of the response (including other blocks and
// their actions) to be discarded.
func Parse(text string) Result {
	var result Result
	var visible strings.Builder
	remaining := text

	for {
		openIdx := strings.Index(remaining, OpenDelimiter)
		if openIdx < 0 {
			visible.WriteString(remaining)
			break
		}
		visible.WriteString(remaining[:openIdx])
		rest := remaining[openIdx+len(OpenDelimiter):]

		closeIdx := strings.Index(rest, CloseDelimiter)
		if closeIdx < 0 {
			result.BlockMalformed = true
			result.Failures = append(result.Failures, Failure{
				Raw: rest,
				Err: coreerr.New(coreerr.LMMalformed, "", "action block missing closing delimiter", nil),
			})
			break
		}

		blockBody := rest[:closeIdx]
		remaining = rest[closeIdx+len(CloseDelimiter):]

		var rawEntries []json.RawMessage
		if err := json.Unmarshal([]byte(strings.TrimSpace(blockBody)), &rawEntries); err != nil {
			result.BlockMalformed = true
			result.Failures = append(result.Failures, Failure{
				Raw: blockBody,
				Err: coreerr.New(coreerr.LMMalformed, "", "action block is not a JSON array", err),
			})
			continue
		}

		for _, entry := range rawEntries {
			action, err := parseEntry(entry)
			if err != nil {
				result.Failures = append(result.Failures, Failure{Raw: string(entry), Err: err})
				continue
			}
			result.Actions = append(result.Actions, action)
		}
	}

	result.Reply = strings.TrimSpace(visible.String())
	return result
}

// parseEntry decodes a single action entry and splits its "tool" field into
// a tool name and optional sub-command on the first '.'.
func parseEntry(entry json.RawMessage) (Action, error) {
	var raw rawAction
	if err := json.Unmarshal(entry, &raw); err != nil {
		return Action{}, coreerr.New(coreerr.InvalidArgs, "", "malformed action entry", err)
	}
	if strings.TrimSpace(raw.Tool) == "" {
		return Action{}, coreerr.New(coreerr.InvalidArgs, "", "action entry missing \"tool\"", nil)
	}

	name, command, _ := strings.Cut(raw.Tool, ".")
	return Action{
		Tool:    name,
		Command: command,
		Args:    raw.Args,
	}, nil
}

// Render reassembles a reply and an action block back into raw LM-output
// shape, used by tests and by tools that synthesize scheduler-facing text.
func Render(reply string, acts []Action) (string, error) {
	entries := make([]rawAction, 0, len(acts))
	for _, a := range acts {
		tool := a.Tool
		if a.Command != "" {
			tool = fmt.Sprintf("%s.%s", a.Tool, a.Command)
		}
		entries = append(entries, rawAction{Tool: tool, Args: a.Args})
	}
	body, err := json.Marshal(entries)
	if err != nil {
		return "", err
	}
	if len(acts) == 0 {
		return reply, nil
	}
	return fmt.Sprintf("%s\n%s\n%s\n%s", reply, OpenDelimiter, body, CloseDelimiter), nil
}
