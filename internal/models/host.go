package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Protocol selects how a session to a host is established
type Protocol string

const (
	ProtocolVNC   Protocol = "VNC"
	ProtocolHTTP  Protocol = "HTTP"
	ProtocolHTTPS Protocol = "HTTPS"
	ProtocolSSH   Protocol = "SSH"
)

// Protocols lists every supported protocol in display order
var Protocols = []Protocol{ProtocolVNC, ProtocolHTTP, ProtocolHTTPS, ProtocolSSH}

// ParseProtocol matches s against the known protocols, ignoring case.
func ParseProtocol(s string) (Protocol, error) {
	for _, p := range Protocols {
		if strings.EqualFold(string(p), s) {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown protocol %q (must be one of VNC, HTTP, HTTPS, SSH)", s)
}

func (p Protocol) String() string {
	return string(p)
}

// Valid reports whether p is one of the known protocols
func (p Protocol) Valid() bool {
	for _, known := range Protocols {
		if p == known {
			return true
		}
	}
	return false
}

// MarshalText rejects values outside the enumeration.
func (p Protocol) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("unknown protocol %q", string(p))
	}
	return []byte(p), nil
}

// UnmarshalText accepts only the exact upper-case names, as written to disk.
func (p *Protocol) UnmarshalText(text []byte) error {
	candidate := Protocol(text)
	if !candidate.Valid() {
		return fmt.Errorf("unknown protocol %q", string(text))
	}
	*p = candidate
	return nil
}

// Host is a stored remote-connection profile
type Host struct {
	ID       uint64   `yaml:"id" json:"id"`
	Name     string   `yaml:"name" json:"name"`
	Address  string   `yaml:"ip" json:"ip"`
	Protocol Protocol `yaml:"protocol" json:"protocol"`
	// Credentials are optional and stored as plain text
	Username *string `yaml:"username,omitempty" json:"username,omitempty"`
	Password *string `yaml:"password,omitempty" json:"password,omitempty"`
}

// hostWire is the decoded form of a stored host before required fields are
// checked.
type hostWire struct {
	ID       *uint64   `yaml:"id"`
	Name     *string   `yaml:"name"`
	Address  *string   `yaml:"ip"`
	Protocol *Protocol `yaml:"protocol"`
	Username *string   `yaml:"username"`
	Password *string   `yaml:"password"`
}

func (w hostWire) host() (Host, error) {
	switch {
	case w.ID == nil:
		return Host{}, missingField("id")
	case w.Name == nil:
		return Host{}, missingField("name")
	case w.Address == nil:
		return Host{}, missingField("ip")
	case w.Protocol == nil:
		return Host{}, missingField("protocol")
	}
	return Host{
		ID:       *w.ID,
		Name:     *w.Name,
		Address:  *w.Address,
		Protocol: *w.Protocol,
		Username: w.Username,
		Password: w.Password,
	}, nil
}

// UnmarshalJSON requires id, name, ip and protocol to be present and non-null.
// Keys match exactly, so "ID" is an unknown field. Unknown fields are ignored.
func (h *Host) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	var wire hostWire
	targets := []struct {
		key string
		dst any
	}{
		{"id", &wire.ID},
		{"name", &wire.Name},
		{"ip", &wire.Address},
		{"protocol", &wire.Protocol},
		{"username", &wire.Username},
		{"password", &wire.Password},
	}
	for _, t := range targets {
		raw, ok := fields[t.key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, t.dst); err != nil {
			return fmt.Errorf("host: field %q: %w", t.key, err)
		}
	}

	decoded, err := wire.host()
	if err != nil {
		return err
	}
	*h = decoded
	return nil
}

// UnmarshalYAML applies the same required-field rules as UnmarshalJSON.
func (h *Host) UnmarshalYAML(node *yaml.Node) error {
	var wire hostWire
	if err := node.Decode(&wire); err != nil {
		return err
	}

	decoded, err := wire.host()
	if err != nil {
		return err
	}
	*h = decoded
	return nil
}

func missingField(name string) error {
	return fmt.Errorf("host: missing field %q", name)
}

// Validate checks the invariants a decoded host must satisfy
func (h Host) Validate() error {
	if !h.Protocol.Valid() {
		return fmt.Errorf("host %d: unknown protocol %q", h.ID, string(h.Protocol))
	}
	return nil
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns *s, or "" for nil.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Equal compares two hosts field by field, including optional credentials.
func (h Host) Equal(other Host) bool {
	return h.ID == other.ID &&
		h.Name == other.Name &&
		h.Address == other.Address &&
		h.Protocol == other.Protocol &&
		equalOptional(h.Username, other.Username) &&
		equalOptional(h.Password, other.Password)
}

func equalOptional(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Redacted returns a copy with the password masked, for display and logs.
func (h Host) Redacted() Host {
	if h.Password != nil {
		masked := "********"
		h.Password = &masked
	}
	return h
}
