package schema

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnumValue is an enum key exactly as configured: either a number literal or
// a string such as "0x0A". The textual form and its typing survive a
// save/load round trip; comparisons are numeric.
type EnumValue struct {
	text   string
	quoted bool
}

// NumberValue returns an EnumValue configured as a number.
func NumberValue(n int64) EnumValue {
	return EnumValue{text: fmt.Sprintf("%d", n)}
}

// TextValue returns an EnumValue configured as a string.
func TextValue(s string) EnumValue {
	return EnumValue{text: s, quoted: true}
}

// IsText reports whether the value was configured as a string.
func (v EnumValue) IsText() bool { return v.quoted }

// String returns the configured text.
func (v EnumValue) String() string { return v.text }

// Int returns the numeric value of v.
func (v EnumValue) Int() (*big.Int, bool) {
	return ParseInteger(v.text)
}

// MarshalJSON keeps numbers unquoted and strings quoted.
func (v EnumValue) MarshalJSON() ([]byte, error) {
	if v.quoted {
		return json.Marshal(v.text)
	}
	return v.numberLiteral()
}

// numberLiteral renders an unquoted value as a literal that both JSON and
// TOML accept. Forms neither accepts, such as YAML's 0x0A, become decimal.
func (v EnumValue) numberLiteral() ([]byte, error) {
	n, ok := v.Int()
	if !ok {
		return nil, fmt.Errorf("schema: enum value %q is not a number", v.text)
	}
	if json.Valid([]byte(v.text)) {
		return []byte(v.text), nil
	}
	return []byte(n.String()), nil
}

// UnmarshalJSON accepts a JSON number or string.
func (v *EnumValue) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = TextValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("schema: enum value must be a number or string: %w", err)
	}
	*v = EnumValue{text: n.String()}
	return nil
}

// MarshalYAML emits a tagged scalar so that typing is preserved.
func (v EnumValue) MarshalYAML() (any, error) {
	if v.quoted {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v.text, Style: yaml.DoubleQuotedStyle}, nil
	}
	tag := "!!int"
	if strings.ContainsAny(v.text, ".eE") && !strings.HasPrefix(strings.ToLower(v.text), "0x") {
		tag = "!!float"
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: v.text}, nil
}

// UnmarshalYAML accepts an int, float or string scalar.
func (v *EnumValue) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("schema: enum value must be a scalar (line %d)", node.Line)
	}
	switch node.ShortTag() {
	case "!!int", "!!float":
		*v = EnumValue{text: node.Value}
	default:
		*v = TextValue(node.Value)
	}
	return nil
}

// MarshalTOML emits a bare number or a basic string.
func (v EnumValue) MarshalTOML() ([]byte, error) {
	if v.quoted {
		return json.Marshal(v.text)
	}
	return v.numberLiteral()
}

// UnmarshalTOML accepts an integer, float or string.
func (v *EnumValue) UnmarshalTOML(data any) error {
	switch x := data.(type) {
	case int64:
		*v = NumberValue(x)
	case float64:
		*v = EnumValue{text: strconv.FormatFloat(x, 'f', -1, 64)}
	case string:
		*v = TextValue(x)
	default:
		return fmt.Errorf("schema: enum value must be a number or string, got %T", data)
	}
	return nil
}

// EnumItem is one labelled value of an enum table.
type EnumItem struct {
	Value       EnumValue `json:"value" yaml:"value" toml:"value"`
	Label       string    `json:"label" yaml:"label" toml:"label"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
}

// EnumTable maps numeric field values to labels.
type EnumTable struct {
	ID    string     `json:"id" yaml:"id" toml:"id"`
	Name  string     `json:"name" yaml:"name" toml:"name"`
	Items []EnumItem `json:"items" yaml:"items" toml:"items"`
}

// Lookup returns the first item, in declaration order, numerically equal to n.
func (t *EnumTable) Lookup(n *big.Int) (*EnumItem, bool) {
	if t == nil || n == nil {
		return nil, false
	}
	for i := range t.Items {
		iv, ok := t.Items[i].Value.Int()
		if ok && iv.Cmp(n) == 0 {
			return &t.Items[i], true
		}
	}
	return nil, false
}
