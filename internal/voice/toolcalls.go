package voice

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cantina-works/cantinaos/pkg/provider/llm"
)

// CompletedCall is a tool invocation whose streamed arguments parsed as JSON
// and passed schema validation.
type CompletedCall struct {
	ID         string
	Name       string
	Parameters map[string]any
}

// pendingCall is the in-flight accumulation state for one tool call id.
type pendingCall struct {
	name string
	args strings.Builder
	done bool
}

// toolCallAccumulator assembles tool invocations from streamed fragments.
//
// Models emit a call's JSON argument text split across many deltas sharing
// an id. Add buffers each fragment and attempts an eager parse whenever the
// buffered text ends in '}'; Sweep retries every unfinished call at end of
// stream for models that terminate calls implicitly. A call completes at
// most once.
type toolCallAccumulator struct {
	schemas map[string]llm.ToolDefinition
	order   []string
	calls   map[string]*pendingCall
}

func newToolCallAccumulator(tools []llm.ToolDefinition) *toolCallAccumulator {
	schemas := make(map[string]llm.ToolDefinition, len(tools))
	for _, t := range tools {
		schemas[t.Name] = t
	}
	return &toolCallAccumulator{
		schemas: schemas,
		calls:   make(map[string]*pendingCall),
	}
}

// Add buffers a fragment and returns the completed call if this fragment
// finished it. The second return is false while the call is still pending
// or after it has already completed.
func (a *toolCallAccumulator) Add(delta llm.ToolCallDelta) (CompletedCall, bool, error) {
	call, ok := a.calls[delta.ID]
	if !ok {
		call = &pendingCall{}
		a.calls[delta.ID] = call
		a.order = append(a.order, delta.ID)
	}
	if delta.Name != "" {
		call.name = delta.Name
	}
	call.args.WriteString(delta.ArgumentsFragment)

	if call.done || !strings.HasSuffix(strings.TrimSpace(call.args.String()), "}") {
		return CompletedCall{}, false, nil
	}
	return a.finish(delta.ID, call)
}

// Sweep finalizes every unfinished call after end-of-stream. Calls whose
// arguments still fail to parse are reported as errors and discarded.
func (a *toolCallAccumulator) Sweep() (completed []CompletedCall, errs []error) {
	for _, id := range a.order {
		call := a.calls[id]
		if call.done {
			continue
		}
		cc, ok, err := a.finish(id, call)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			completed = append(completed, cc)
		}
	}
	return completed, errs
}

func (a *toolCallAccumulator) finish(id string, call *pendingCall) (CompletedCall, bool, error) {
	raw := strings.TrimSpace(call.args.String())
	if raw == "" {
		raw = "{}"
	}

	params, err := parseArguments(raw)
	if err != nil {
		return CompletedCall{}, false, fmt.Errorf("tool call %s (%s): %w", id, call.name, err)
	}
	if err := validateAgainstSchema(call.name, params, a.schemas); err != nil {
		call.done = true
		return CompletedCall{}, false, err
	}

	call.done = true
	return CompletedCall{ID: id, Name: call.name, Parameters: params}, true, nil
}

// parseArguments decodes the argument text as a JSON object, retrying once
// with single quotes normalized to double quotes. Models occasionally emit
// Python-flavoured dicts.
func parseArguments(raw string) (map[string]any, error) {
	var params map[string]any
	if err := json.Unmarshal([]byte(raw), &params); err == nil {
		return params, nil
	}

	normalized := strings.ReplaceAll(raw, "'", `"`)
	if err := json.Unmarshal([]byte(normalized), &params); err != nil {
		return nil, fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	return params, nil
}

// validateAgainstSchema checks the decoded parameters against the tool's
// JSON schema: the tool must be known, required properties must be present,
// and typed properties must match their declared primitive type.
func validateAgainstSchema(name string, params map[string]any, schemas map[string]llm.ToolDefinition) error {
	def, ok := schemas[name]
	if !ok {
		return fmt.Errorf("unknown tool %q", name)
	}

	props, _ := def.Parameters["properties"].(map[string]any)
	if required, ok := def.Parameters["required"].([]any); ok {
		for _, r := range required {
			key, _ := r.(string)
			if _, present := params[key]; !present {
				return fmt.Errorf("tool %s: missing required parameter %q", name, key)
			}
		}
	}

	for key, val := range params {
		spec, ok := props[key].(map[string]any)
		if !ok {
			continue
		}
		want, _ := spec["type"].(string)
		if want == "" {
			continue
		}
		if !matchesJSONType(val, want) {
			return fmt.Errorf("tool %s: parameter %q is not of type %s", name, key, want)
		}
	}
	return nil
}

func matchesJSONType(val any, want string) bool {
	switch want {
	case "string":
		_, ok := val.(string)
		return ok
	case "number", "integer":
		_, ok := val.(float64)
		return ok
	case "boolean":
		_, ok := val.(bool)
		return ok
	case "object":
		_, ok := val.(map[string]any)
		return ok
	case "array":
		_, ok := val.([]any)
		return ok
	default:
		return true
	}
}
