package config

const redacted = "[REDACTED]"

// Secret holds a credential. Every printing and marshaling path masks it;
// only Value exposes the raw string.
type Secret string

// Value returns the raw secret for signing and headers
func (s Secret) Value() string {
	return string(s)
}

// IsSet reports whether a non-empty secret was configured
func (s Secret) IsSet() bool {
	return s != ""
}

func (s Secret) masked() string {
	if !s.IsSet() {
		return ""
	}
	return redacted
}

func (s Secret) String() string {
	return s.masked()
}

// GoString covers %#v
func (s Secret) GoString() string {
	return `"` + s.masked() + `"`
}

func (s Secret) MarshalYAML() (interface{}, error) {
	return s.masked(), nil
}

func (s Secret) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.masked() + `"`), nil
}
