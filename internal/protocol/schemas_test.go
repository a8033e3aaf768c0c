package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"parkcraft.ai/internal/protocol"
)

func TestSchemas_ValidateMessages(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		p := filepath.Join("..", "..", "schemas", name)
		s, err := jsonschema.Compile(p)
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	// Round the Go structs through JSON so the schemas see exactly what goes
	// over the wire.
	asAny := func(v any) any {
		t.Helper()
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var out any
		if err := json.Unmarshal(b, &out); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return out
	}

	validate := func(s *jsonschema.Schema, v any) {
		t.Helper()
		if err := s.Validate(asAny(v)); err != nil {
			t.Fatalf("validate: %v", err)
		}
	}

	digest := strings.Repeat("ab", 32)

	validate(compile("hello.schema.json"), protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		PlayerName:      "builder-1",
		CatalogDigest:   digest,
	})
	validate(compile("welcome.schema.json"), protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       "3f1c",
		PlayerID:        2,
		Group:           "builder",
		CatalogDigest:   digest,
		TickRateHz:      40,
		Tick:            100,
		LastSeq:         12,
		StateDigest:     digest,
	})
	validate(compile("reject.schema.json"), protocol.RejectMsg{
		Type:      protocol.TypeReject,
		RequestID: 4,
		Kind:      1,
		Status:    "precondition_failed",
		Code:      protocol.ErrPrecondition,
		Title:     "cant_build_track",
		Message:   "tile_element_limit_reached",
		Args:      map[string]string{"limit": "16"},
	})
	validate(compile("snapshot.schema.json"), protocol.SnapshotMsg{
		Type:   protocol.TypeSnapshot,
		Seq:    12,
		Tick:   100,
		Digest: digest,
		Data:   []byte{0x28, 0xb5, 0x2f, 0xfd},
	})
	validate(compile("bye.schema.json"), protocol.ByeMsg{Type: protocol.TypeBye, Reason: "shutdown"})
}

func TestSchemas_RejectBadHello(t *testing.T) {
	s, err := jsonschema.Compile(filepath.Join("..", "..", "schemas", "hello.schema.json"))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	var v any
	_ = json.Unmarshal([]byte(`{"type":"HELLO","protocol_version":"x","player_name":"p","catalog_digest":"nothex"}`), &v)
	if err := s.Validate(v); err == nil {
		t.Fatalf("expected digest pattern failure")
	}
}
