package http

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/GriffinCanCode/AgentOS/scriptbox/internal/sandbox"
	"github.com/GriffinCanCode/AgentOS/scriptbox/internal/sandbox/args"
	"github.com/GriffinCanCode/AgentOS/scriptbox/internal/shared/utils"
)

// decoder keeps numbers exact until the argument type is known
var decoder = sonic.Config{UseNumber: true}.Froze()

// EvaluateRequest is the body of POST /evaluate
type EvaluateRequest struct {
	Script    string            `json:"script"`
	Entry     string            `json:"entry,omitempty"`
	Args      []ArgumentPayload `json:"args,omitempty"`
	Module    string            `json:"module,omitempty"` // base64
	Settings  SettingsPayload   `json:"settings"`
	TimeoutMS int64             `json:"timeout_ms,omitempty"`
}

// SettingsPayload mirrors sandbox.Settings
type SettingsPayload struct {
	MaxHeapBytes       int64 `json:"max_heap_bytes,omitempty"`
	EnforceHeapCeiling bool  `json:"enforce_heap_ceiling,omitempty"`
}

// ArgumentPayload describes one typed argument. Arrays use Items, records use
// Fields, every other type uses Value.
type ArgumentPayload struct {
	Name   string            `json:"name"`
	Type   string            `json:"type"`
	Value  interface{}       `json:"value,omitempty"`
	Items  []ArgumentPayload `json:"items,omitempty"`
	Fields []ArgumentPayload `json:"fields,omitempty"`
}

// EvaluateResponse is the success body of POST /evaluate
type EvaluateResponse struct {
	Result    json.RawMessage `json:"result"`
	RequestID string          `json:"request_id,omitempty"`
}

// ErrorResponse is the failure body of every endpoint
type ErrorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind"`
	RequestID string `json:"request_id,omitempty"`
}

func decodeEvaluateRequest(body []byte) (*EvaluateRequest, error) {
	var req EvaluateRequest
	if err := decoder.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("invalid request body: %w", err)
	}
	if err := utils.ValidateScript(req.Script); err != nil {
		return nil, err
	}
	if len(req.Args) > utils.MaxArgCount {
		return nil, fmt.Errorf("too many arguments: %d > %d", len(req.Args), utils.MaxArgCount)
	}
	if req.TimeoutMS < 0 {
		return nil, fmt.Errorf("timeout_ms must not be negative")
	}
	return &req, nil
}

// sandboxSettings converts the payload settings
func (r *EvaluateRequest) sandboxSettings() sandbox.Settings {
	return sandbox.Settings{
		MaxHeapBytes:       r.Settings.MaxHeapBytes,
		EnforceHeapCeiling: r.Settings.EnforceHeapCeiling,
	}
}

// module decodes the base64 module, nil when absent
func (r *EvaluateRequest) module() ([]byte, error) {
	if r.Module == "" {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(r.Module)
	if err != nil {
		return nil, fmt.Errorf("module is not valid base64: %w", err)
	}
	if err := utils.ValidateModuleSize(len(data)); err != nil {
		return nil, err
	}
	return data, nil
}

// arguments builds marshaler arguments from the payloads
func (r *EvaluateRequest) arguments() ([]args.Argument, error) {
	out := make([]args.Argument, 0, len(r.Args))
	for _, p := range r.Args {
		a, err := p.build(0)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (s ArgumentPayload) build(depth int) (args.Argument, error) {
	if depth > utils.MaxArgDepth {
		return nil, fmt.Errorf("argument %q nests deeper than %d", s.Name, utils.MaxArgDepth)
	}

	switch s.Type {
	case "string":
		v, ok := s.Value.(string)
		if !ok {
			return nil, typeError(s, "a string")
		}
		return args.String(s.Name, v), nil

	case "number":
		n, ok := s.Value.(json.Number)
		if !ok {
			return nil, typeError(s, "a number")
		}
		f, err := n.Float64()
		if err != nil {
			return nil, typeError(s, "a number")
		}
		return args.Number(s.Name, f), nil

	case "int":
		n, ok := s.Value.(json.Number)
		if !ok {
			return nil, typeError(s, "an integer")
		}
		i, err := n.Int64()
		if err != nil {
			return nil, typeError(s, "an integer")
		}
		return args.Int(s.Name, i), nil

	case "bool":
		b, ok := s.Value.(bool)
		if !ok {
			return nil, typeError(s, "a boolean")
		}
		return args.Bool(s.Name, b), nil

	case "json":
		if err := utils.ValidateJSONDepth(s.Value, utils.MaxArgDepth-depth); err != nil {
			return nil, fmt.Errorf("argument %q: %w", s.Name, err)
		}
		text, err := sonic.MarshalString(s.Value)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", s.Name, err)
		}
		return args.JSON(s.Name, text)

	case "array":
		elems := make([]args.Argument, 0, len(s.Items))
		for _, item := range s.Items {
			a, err := item.build(depth + 1)
			if err != nil {
				return nil, err
			}
			elems = append(elems, a)
		}
		arr, err := args.NewArray(s.Name, elems...)
		if err != nil {
			return nil, err
		}
		return arr, nil

	case "record":
		fields := make([]args.Argument, 0, len(s.Fields))
		for _, field := range s.Fields {
			if field.Name == "" {
				return nil, fmt.Errorf("record %q has a field without a name", s.Name)
			}
			a, err := field.build(depth + 1)
			if err != nil {
				return nil, err
			}
			fields = append(fields, a)
		}
		return args.NewRecord(s.Name, fields...), nil

	default:
		return nil, fmt.Errorf("argument %q has unknown type %q", s.Name, s.Type)
	}
}

func typeError(s ArgumentPayload, want string) error {
	return fmt.Errorf("argument %q of type %s must be %s", s.Name, s.Type, want)
}
