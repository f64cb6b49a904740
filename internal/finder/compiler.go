package finder

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/fxamacker/cbor"
)

// Lang identifies the toolchain a contract was compiled with. The storage
// layout of mappings differs between them, so detection picks the first
// layout scheme to try.
type Lang string

const (
	LangSolidity Lang = "solidity"
	LangVyper    Lang = "vyper"
	LangUnknown  Lang = "unknown"
)

func (l Lang) String() string { return string(l) }

// CompilerInfo is the result of bytecode inspection. Version is best-effort
// and may be empty even when Lang is known.
type CompilerInfo struct {
	Lang    Lang
	Version string
}

// metadataPrefixes are the CBOR map openings solc has used for the metadata
// trailer across versions: a1/a2 map header followed by the first key.
var metadataPrefixes = [][]byte{
	{0xa1, 0x65, 'b', 'z', 'z', 'r', '0', 0x58, 0x20}, // solc <= 0.5.8
	{0xa2, 0x65, 'b', 'z', 'z', 'r', '0', 0x58, 0x20}, // solc >= 0.5.9
	{0xa2, 0x65, 'b', 'z', 'z', 'r', '1', 0x58, 0x20}, // solc >= 0.5.11
	{0xa2, 0x64, 'i', 'p', 'f', 's', 0x58, 0x22},      // solc >= 0.6.0
	{0xa1, 0x65, 'v', 'y', 'p', 'e', 'r'},             // vyper >= 0.3.5
}

// dispatcherPrefixes identify the compiler from the leading function
// dispatcher bytes when no metadata trailer survives (e.g. trimmed or
// pre-metadata contracts).
var dispatcherPrefixes = map[string]Lang{
	"6004361015": LangVyper,
	"341561000a": LangVyper,
	"6060604052": LangSolidity,
	"6080604052": LangSolidity,
}

// DetectCompiler inspects deployed bytecode and recovers the compiler
// identity, and where possible its version, from the length-prefixed CBOR
// metadata trailer. Absent, malformed, or unrecognized metadata yields
// LangUnknown; it never fails. Pure function of the bytes.
func DetectCompiler(bytecode []byte) CompilerInfo {
	if len(bytecode) == 0 {
		return CompilerInfo{Lang: LangUnknown}
	}

	if info, ok := detectFromTrailer(bytecode); ok {
		return info
	}

	// Trailer missing or unreadable: fall back to the dispatcher prefix.
	hexHead := fmt.Sprintf("%x", bytecode[:min(len(bytecode), 5)])
	if lang, ok := dispatcherPrefixes[hexHead]; ok {
		return CompilerInfo{Lang: lang}
	}

	return CompilerInfo{Lang: LangUnknown}
}

func detectFromTrailer(bytecode []byte) (CompilerInfo, bool) {
	// The trailing two bytes give the metadata payload length.
	if len(bytecode) < 4 {
		return CompilerInfo{}, false
	}
	trailerLen := int(binary.BigEndian.Uint16(bytecode[len(bytecode)-2:]))
	start := len(bytecode) - 2 - trailerLen
	if trailerLen == 0 || start < 0 {
		return CompilerInfo{}, false
	}
	payload := bytecode[start : len(bytecode)-2]

	if info, ok := decodeMetadata(payload); ok {
		return info, true
	}

	// Length bytes may be corrupted; search for a known map opening.
	for _, prefix := range metadataPrefixes {
		if off := bytes.LastIndex(bytecode, prefix); off != -1 {
			if info, ok := decodeMetadata(bytecode[off : len(bytecode)-2]); ok {
				return info, true
			}
		}
	}
	return CompilerInfo{}, false
}

func decodeMetadata(payload []byte) (CompilerInfo, bool) {
	var meta map[string]interface{}
	if err := cbor.Unmarshal(payload, &meta); err != nil {
		return CompilerInfo{}, false
	}

	if v, ok := meta["solc"]; ok {
		return CompilerInfo{Lang: LangSolidity, Version: versionString(v)}, true
	}
	if v, ok := meta["vyper"]; ok {
		return CompilerInfo{Lang: LangVyper, Version: versionString(v)}, true
	}
	// bzzr0/bzzr1/ipfs hashes without a solc key: old solc releases.
	for _, key := range []string{"bzzr0", "bzzr1", "ipfs"} {
		if _, ok := meta[key]; ok {
			return CompilerInfo{Lang: LangSolidity}, true
		}
	}
	return CompilerInfo{}, false
}

// versionString renders the encoded version triple. solc stores three raw
// bytes, vyper an array of three integers.
func versionString(v interface{}) string {
	switch enc := v.(type) {
	case []byte:
		if len(enc) == 3 {
			return fmt.Sprintf("%d.%d.%d", enc[0], enc[1], enc[2])
		}
	case []interface{}:
		if len(enc) == 3 {
			parts := make([]int64, 0, 3)
			for _, p := range enc {
				switch n := p.(type) {
				case uint64:
					parts = append(parts, int64(n))
				case int64:
					parts = append(parts, n)
				}
			}
			if len(parts) == 3 {
				return fmt.Sprintf("%d.%d.%d", parts[0], parts[1], parts[2])
			}
		}
	}
	return ""
}
