// Package state persists deployment state as PKL, locally or in S3.
package state

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/picklr-io/webstack/internal/eval"
	"github.com/picklr-io/webstack/internal/ir"
)

const stateVersion = 1

// Manager handles reading and writing of a local state file.
type Manager struct {
	path  string
	codec *codec
}

func NewManager(path string, evaluator *eval.Evaluator, c *Cipher) *Manager {
	return &Manager{
		path:  path,
		codec: &codec{evaluator: evaluator, cipher: c},
	}
}

// Path returns the state file location.
func (m *Manager) Path() string { return m.path }

// Read loads the state. A missing file yields a fresh state with a new
// lineage.
func (m *Manager) Read(ctx context.Context) (*ir.State, error) {
	raw, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return NewState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file %s: %w", m.path, err)
	}
	state, err := m.codec.decode(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to load state from %s: %w", m.path, err)
	}
	return state, nil
}

// Write saves the state, encrypting it when the manager has a cipher. The
// file is replaced atomically.
func (m *Manager) Write(ctx context.Context, state *ir.State) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	data, err := m.codec.encode(state)
	if err != nil {
		return err
	}

	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write state file %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("failed to replace state file %s: %w", m.path, err)
	}
	return nil
}

// NewState returns an empty state with a fresh lineage.
func NewState() *ir.State {
	return &ir.State{
		Version: stateVersion,
		Lineage: uuid.NewString(),
		Outputs: map[string]any{},
	}
}

type codec struct {
	evaluator *eval.Evaluator
	cipher    *Cipher
}

func (c *codec) encode(state *ir.State) ([]byte, error) {
	data, err := c.cipher.Encrypt([]byte(SerializeState(state)))
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt state: %w", err)
	}
	return data, nil
}

// decode evaluates state content through a temporary file, since the PKL
// evaluator reads modules from disk.
func (c *codec) decode(ctx context.Context, raw []byte) (*ir.State, error) {
	content, err := c.cipher.Decrypt(raw)
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp("", "webstack-state-*.pkl")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to write temp state file: %w", err)
	}
	tmp.Close()

	state, err := c.evaluator.LoadState(ctx, tmp.Name())
	if err != nil {
		return nil, err
	}
	normalizeState(state)
	return state, nil
}

// normalizeState converts the map[any]any values PKL mappings decode into
// back to map[string]any.
func normalizeState(state *ir.State) {
	state.Outputs = normalizeMap(state.Outputs)
	for _, res := range state.Resources {
		res.Inputs = normalizeMap(res.Inputs)
		res.Outputs = normalizeMap(res.Outputs)
	}
}

func normalizeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprint(k)] = normalizeValue(item)
		}
		return out
	case map[string]any:
		return normalizeMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeValue(item)
		}
		return out
	default:
		return v
	}
}

// SerializeState renders a state as a PKL module. Map keys are sorted so the
// same state always renders the same text.
func SerializeState(state *ir.State) string {
	var b strings.Builder

	b.WriteString("// webstack state file. Do not edit.\n\n")
	fmt.Fprintf(&b, "version = %d\n", state.Version)
	fmt.Fprintf(&b, "serial = %d\n", state.Serial)
	fmt.Fprintf(&b, "lineage = %s\n\n", pklString(state.Lineage))
	fmt.Fprintf(&b, "outputs = %s\n\n", serializePklValue(state.Outputs, 0))

	if len(state.Resources) == 0 {
		b.WriteString("resources = new Listing {}\n")
		return b.String()
	}

	b.WriteString("resources = new Listing {\n")
	for _, res := range state.Resources {
		b.WriteString("  new {\n")
		fmt.Fprintf(&b, "    type = %s\n", pklString(res.Type))
		fmt.Fprintf(&b, "    name = %s\n", pklString(res.Name))
		fmt.Fprintf(&b, "    provider = %s\n", pklString(res.Provider))
		fmt.Fprintf(&b, "    inputs = %s\n", serializePklValue(res.Inputs, 2))
		fmt.Fprintf(&b, "    inputsHash = %s\n", pklString(res.InputsHash))
		fmt.Fprintf(&b, "    outputs = %s\n", serializePklValue(res.Outputs, 2))
		deps := make([]any, len(res.Dependencies))
		for i, d := range res.Dependencies {
			deps[i] = d
		}
		fmt.Fprintf(&b, "    dependencies = %s\n", serializePklValue(deps, 2))
		b.WriteString("  }\n")
	}
	b.WriteString("}\n")

	return b.String()
}

// serializePklValue recursively serializes a Go value to PKL syntax.
func serializePklValue(v any, indentLevel int) string {
	indent := strings.Repeat("  ", indentLevel)

	switch val := v.(type) {
	case string:
		return pklString(val)
	case bool:
		return fmt.Sprintf("%t", val)
	case int:
		return fmt.Sprintf("%d", val)
	case int32:
		return fmt.Sprintf("%d", val)
	case int64:
		return fmt.Sprintf("%d", val)
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	case nil:
		return "null"
	case map[string]any:
		if len(val) == 0 {
			return "new Mapping {}"
		}
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteString("new Mapping {\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "%s  [%s] = %s\n", indent, pklString(k), serializePklValue(val[k], indentLevel+1))
		}
		b.WriteString(indent + "}")
		return b.String()
	case map[any]any:
		converted := make(map[string]any, len(val))
		for k, item := range val {
			converted[fmt.Sprint(k)] = item
		}
		return serializePklValue(converted, indentLevel)
	case []any:
		if len(val) == 0 {
			return "new Listing {}"
		}
		var b strings.Builder
		b.WriteString("new Listing {\n")
		for _, item := range val {
			fmt.Fprintf(&b, "%s  %s\n", indent, serializePklValue(item, indentLevel+1))
		}
		b.WriteString(indent + "}")
		return b.String()
	case []string:
		items := make([]any, len(val))
		for i, s := range val {
			items[i] = s
		}
		return serializePklValue(items, indentLevel)
	default:
		return pklString(fmt.Sprintf("%v", val))
	}
}

// pklString quotes s as a PKL string literal.
func pklString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 || r == 0x7f {
				fmt.Fprintf(&b, `\u{%x}`, r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('"')
	return b.String()
}
