package models

import (
	"encoding/json"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestHostJSONFieldNames(t *testing.T) {
	host := Host{
		ID:       7,
		Name:     "office",
		Address:  "10.0.0.7",
		Protocol: ProtocolVNC,
		Username: StringPtr("admin"),
	}

	data, err := json.Marshal(host)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	got := string(data)
	want := `{"id":7,"name":"office","ip":"10.0.0.7","protocol":"VNC","username":"admin"}`
	if got != want {
		t.Errorf("unexpected encoding:\n got  %s\n want %s", got, want)
	}
}

func TestHostUnmarshalAcceptsNullCredentials(t *testing.T) {
	var host Host
	input := `{"id":1,"name":"n","ip":"h","protocol":"SSH","username":null,"password":null,"extra":true}`
	if err := json.Unmarshal([]byte(input), &host); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if host.Username != nil || host.Password != nil {
		t.Error("expected absent credentials")
	}
	if host.Protocol != ProtocolSSH {
		t.Errorf("expected SSH, got %s", host.Protocol)
	}
}

func TestHostUnmarshalRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"unknown protocol": `{"id":1,"name":"n","ip":"h","protocol":"RDP"}`,
		"lowercase":        `{"id":1,"name":"n","ip":"h","protocol":"ssh"}`,
		"missing id":       `{"name":"n","ip":"h","protocol":"SSH"}`,
		"missing ip":       `{"id":1,"name":"n","protocol":"SSH"}`,
		"null protocol":    `{"id":1,"name":"n","ip":"h","protocol":null}`,
		"negative id":      `{"id":-1,"name":"n","ip":"h","protocol":"SSH"}`,
		"capitalised keys": `{"ID":1,"Name":"n","IP":"h","protocol":"SSH"}`,
		"not an object":    `[1]`,
	}

	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			var host Host
			if err := json.Unmarshal([]byte(input), &host); err == nil {
				t.Errorf("expected error for %s", input)
			}
		})
	}
}

func TestHostUnmarshalKeysAreCaseSensitive(t *testing.T) {
	var host Host
	err := json.Unmarshal([]byte(`{"id":1,"Name":"n","ip":"h","protocol":"SSH"}`), &host)
	if err == nil || !strings.Contains(err.Error(), `"name"`) {
		t.Fatalf("expected missing name, got %v", err)
	}

	input := `{"id":1,"ID":2,"name":"n","ip":"h","protocol":"SSH"}`
	if err := json.Unmarshal([]byte(input), &host); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if host.ID != 1 {
		t.Errorf("expected id 1, got %d", host.ID)
	}
}

func TestHostUnmarshalYAMLRequiresFields(t *testing.T) {
	var hosts []Host
	err := yaml.Unmarshal([]byte("- id: 1\n  protocol: SSH\n"), &hosts)
	if err == nil || !strings.Contains(err.Error(), `"name"`) {
		t.Fatalf("expected missing name, got %v", err)
	}

	err = yaml.Unmarshal([]byte("- id: 1\n  name: n\n  ip: ~\n  protocol: SSH\n"), &hosts)
	if err == nil {
		t.Fatal("expected error for null ip")
	}

	hosts = nil
	input := "- id: 4\n  name: n\n  ip: h\n  protocol: HTTP\n  username: u\n"
	if err := yaml.Unmarshal([]byte(input), &hosts); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if len(hosts) != 1 || hosts[0].Protocol != ProtocolHTTP || Deref(hosts[0].Username) != "u" {
		t.Errorf("unexpected hosts %+v", hosts)
	}
	if hosts[0].Password != nil {
		t.Error("expected absent password")
	}
}

func TestParseProtocolIgnoresCase(t *testing.T) {
	p, err := ParseProtocol("https")
	if err != nil {
		t.Fatalf("ParseProtocol failed: %v", err)
	}
	if p != ProtocolHTTPS {
		t.Errorf("expected HTTPS, got %s", p)
	}

	if _, err := ParseProtocol("telnet"); err == nil {
		t.Error("expected error for unknown protocol")
	}
}

func TestMarshalRejectsInvalidProtocol(t *testing.T) {
	_, err := json.Marshal(Host{ID: 1, Protocol: "FTP"})
	if err == nil {
		t.Fatal("expected marshal error")
	}
	if !strings.Contains(err.Error(), "FTP") {
		t.Errorf("error should name the protocol: %v", err)
	}
}

func TestEqualAndRedacted(t *testing.T) {
	a := Host{ID: 1, Name: "a", Protocol: ProtocolSSH, Password: StringPtr("secret")}
	b := a
	b.Password = StringPtr("secret")

	if !a.Equal(b) {
		t.Error("hosts with equal fields should compare equal")
	}

	red := a.Redacted()
	if Deref(red.Password) == "secret" {
		t.Error("password not masked")
	}
	if Deref(a.Password) != "secret" {
		t.Error("Redacted modified the original")
	}
	if a.Equal(red) {
		t.Error("redacted host should differ")
	}
}
