package types //nolint:revive // types is a valid package name

import (
	"regexp"
	"testing"
)

func TestVersion_Format(t *testing.T) {
	semverRegex := regexp.MustCompile(`^\d+\.\d+\.\d+(-[a-zA-Z0-9.]+)?$`)
	if !semverRegex.MatchString(Version) {
		t.Errorf("Version %q is not a valid semver", Version)
	}
}

func TestDefaultNames_Distinct(t *testing.T) {
	// The hello name and the handshake name travel on different channels
	// and must never be confused for one another.
	if DefaultChannelName == DefaultHandshakeName {
		t.Errorf("channel and handshake names collide: %q", DefaultChannelName)
	}
	if DefaultChannelName != "llm-bytes" {
		t.Errorf("DefaultChannelName = %q, want %q", DefaultChannelName, "llm-bytes")
	}
	if DefaultHandshakeName != "llm_bytes_port" {
		t.Errorf("DefaultHandshakeName = %q, want %q", DefaultHandshakeName, "llm_bytes_port")
	}
}

func TestChunkKind_Valid(t *testing.T) {
	for _, k := range []ChunkKind{ChunkOpen, ChunkData, ChunkError, ChunkClose} {
		if !k.Valid() {
			t.Errorf("%q should be valid", k)
		}
	}
	for _, k := range []ChunkKind{"", "DATA", "chunk"} {
		if k.Valid() {
			t.Errorf("%q should be invalid", k)
		}
	}
}
