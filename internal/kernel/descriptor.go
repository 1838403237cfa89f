package kernel

import (
	"encoding/hex"
	"encoding/json"
	"os"

	"github.com/Michiganman2353/ESTA-Logic/pkg/kerrors"
)

// Descriptor is the immutable wire-format manifest describing a module to
// load: {"name","path","checksum","capabilities","signature"?}.
type Descriptor struct {
	Name         string   `json:"name"`
	Path         string   `json:"path"`
	Checksum     string   `json:"checksum"` // hex64
	Capabilities []string `json:"capabilities"`
	Signature    string   `json:"signature,omitempty"` // hex128
}

// ParseDescriptor decodes and validates a descriptor's JSON bytes.
func ParseDescriptor(data []byte) (Descriptor, error) {
	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return Descriptor{}, kerrors.BadDescriptor(err.Error())
	}
	if d.Name == "" {
		return Descriptor{}, kerrors.BadDescriptor("name is required")
	}
	if d.Path == "" {
		return Descriptor{}, kerrors.BadDescriptor("path is required")
	}
	checksum, err := hex.DecodeString(d.Checksum)
	if err != nil || len(checksum) != 32 {
		return Descriptor{}, kerrors.BadDescriptor("checksum must be hex-encoded 32 bytes")
	}
	if d.Signature != "" {
		sig, err := hex.DecodeString(d.Signature)
		if err != nil || len(sig) != 64 {
			return Descriptor{}, kerrors.BadDescriptor("signature must be hex-encoded 64 bytes")
		}
	}
	return d, nil
}

// LoadDescriptor reads and parses a descriptor from a JSON file on disk —
// the minimal filesystem adapter this core requires to exercise
// launch_module end to end; a real descriptor source is an external
// collaborator.
func LoadDescriptor(location string) (Descriptor, error) {
	data, err := os.ReadFile(location)
	if err != nil {
		return Descriptor{}, kerrors.IoError(err)
	}
	return ParseDescriptor(data)
}

// knownCapabilities is the closed vocabulary recognized when parsing a
// descriptor's requested capability names.
var knownCapabilities = map[string]struct{}{
	"log":               {},
	"audit_emit":        {},
	"persistence_read":  {},
	"persistence_write": {},
}

// grantedCapabilities returns the subset of requested that the runtime
// recognizes, silently dropping unknown names.
func grantedCapabilities(requested []string) map[string]struct{} {
	granted := make(map[string]struct{})
	for _, name := range requested {
		if _, ok := knownCapabilities[name]; ok {
			granted[name] = struct{}{}
		}
	}
	return granted
}
