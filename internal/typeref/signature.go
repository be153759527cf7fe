package typeref

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// UnmarshalJSON accepts either a bare integer or [id, [args...]].
func (c *Code) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] != '[' {
		return json.Unmarshal(data, &c.ID)
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("decoding type code: %w", err)
	}
	if len(parts) == 0 || len(parts) > 2 {
		return fmt.Errorf("decoding type code: expected [id] or [id, args], got %d elements", len(parts))
	}
	if err := json.Unmarshal(parts[0], &c.ID); err != nil {
		return fmt.Errorf("decoding type code id: %w", err)
	}
	c.Args = nil
	if len(parts) == 2 {
		if err := json.Unmarshal(parts[1], &c.Args); err != nil {
			return fmt.Errorf("decoding type code args: %w", err)
		}
	}
	return nil
}

// Slot is the inputs or the output position of an encoded signature. On the
// wire it is a single code or an array of codes.
type Slot []Code

func (s *Slot) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] != '[' {
		var c Code
		if err := json.Unmarshal(data, &c); err != nil {
			return err
		}
		*s = Slot{c}
		return nil
	}
	var codes []Code
	if err := json.Unmarshal(data, &codes); err != nil {
		return fmt.Errorf("decoding signature slot: %w", err)
	}
	*s = codes
	return nil
}

// RawSignature is an encoded function signature: 0 for none, [inputs] or
// [inputs, output].
type RawSignature struct {
	Present bool
	Inputs  Slot
	Output  Slot
}

func (r *RawSignature) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*r = RawSignature{}
	if len(data) == 0 || data[0] != '[' {
		var n int
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("decoding signature: %w", err)
		}
		if n != 0 {
			return fmt.Errorf("decoding signature: unexpected scalar %d", n)
		}
		return nil
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("decoding signature: %w", err)
	}
	if len(parts) == 0 || len(parts) > 2 {
		return fmt.Errorf("decoding signature: expected [inputs] or [inputs, output], got %d elements", len(parts))
	}
	r.Present = true
	if err := json.Unmarshal(parts[0], &r.Inputs); err != nil {
		return err
	}
	if len(parts) == 2 {
		if err := json.Unmarshal(parts[1], &r.Output); err != nil {
			return err
		}
	}
	return nil
}

// Signature is a resolved function signature.
type Signature struct {
	Inputs []TypeRef
	Output []TypeRef
}

// DecodeSignature resolves every code of raw. It returns nil, nil when raw
// carries no signature.
func DecodeSignature(raw RawSignature, table []Entry) (*Signature, error) {
	if !raw.Present {
		return nil, nil
	}
	sig := &Signature{}
	for _, c := range raw.Inputs {
		t, err := Resolve(c, table)
		if err != nil {
			return nil, err
		}
		sig.Inputs = append(sig.Inputs, t)
	}
	for _, c := range raw.Output {
		t, err := Resolve(c, table)
		if err != nil {
			return nil, err
		}
		sig.Output = append(sig.Output, t)
	}
	return sig, nil
}

// String renders the signature as "fn(char) -> WabbitType".
func (s *Signature) String() string {
	if s == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("fn(")
	for i, t := range s.Inputs {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(t.String())
	}
	b.WriteString(")")

	switch len(s.Output) {
	case 0:
	case 1:
		b.WriteString(" -> ")
		b.WriteString(s.Output[0].String())
	default:
		parts := make([]string, len(s.Output))
		for i, t := range s.Output {
			parts[i] = t.String()
		}
		b.WriteString(" -> (" + strings.Join(parts, ", ") + ")")
	}
	return b.String()
}
