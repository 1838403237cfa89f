package kernel

import (
	"strings"
	"testing"

	"github.com/Michiganman2353/ESTA-Logic/pkg/kerrors"
)

var sixtyFourZeroes = strings.Repeat("0", 64)

func TestParseDescriptorRejectsBadChecksum(t *testing.T) {
	_, err := ParseDescriptor([]byte(`{"name":"m1","path":"/tmp/m1.wasm","checksum":"not-hex"}`))
	if kerrors.CodeOf(err) != kerrors.CodeBadDescriptor {
		t.Errorf("got %v, want BadDescriptor", err)
	}
}

func TestParseDescriptorRequiresName(t *testing.T) {
	_, err := ParseDescriptor([]byte(`{"path":"/tmp/m1.wasm","checksum":"` + sixtyFourZeroes + `"}`))
	if kerrors.CodeOf(err) != kerrors.CodeBadDescriptor {
		t.Errorf("got %v, want BadDescriptor", err)
	}
}

func TestParseDescriptorAcceptsValidShape(t *testing.T) {
	d, err := ParseDescriptor([]byte(`{"name":"m1","path":"/tmp/m1.wasm","checksum":"` + sixtyFourZeroes + `","capabilities":["log","bogus"]}`))
	if err != nil {
		t.Fatalf("ParseDescriptor: %v", err)
	}
	if d.Name != "m1" {
		t.Errorf("got name %q, want m1", d.Name)
	}
}

func TestGrantedCapabilitiesDropsUnknown(t *testing.T) {
	granted := grantedCapabilities([]string{"log", "bogus", "audit_emit"})
	if len(granted) != 2 {
		t.Fatalf("got %d granted, want 2", len(granted))
	}
	if _, ok := granted["bogus"]; ok {
		t.Error("expected unknown capability to be dropped")
	}
}
