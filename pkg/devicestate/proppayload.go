package devicestate

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"io"
	"strings"

	"github.com/edgelink/device-agent/pkg/agenterr"
)

// EncodePropertyList renders entries (each an "iface/path" string, as
// produced by propertycache.Key.String) into the control-message wire
// format shared by the purge-properties publish and the consumer
// properties message: a 4-byte big-endian length of the uncompressed
// ";"-joined string, followed by its zlib compression.
func EncodePropertyList(entries []string) ([]byte, error) {
	joined := strings.Join(entries, ";")

	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	if _, err := zw.Write([]byte(joined)); err != nil {
		return nil, agenterr.Wrap(agenterr.Internal, "devicestate.EncodePropertyList", err)
	}
	if err := zw.Close(); err != nil {
		return nil, agenterr.Wrap(agenterr.Internal, "devicestate.EncodePropertyList", err)
	}

	out := make([]byte, 4+compressed.Len())
	binary.BigEndian.PutUint32(out[:4], uint32(len(joined)))
	copy(out[4:], compressed.Bytes())
	return out, nil
}

// DecodePropertyList is the inverse of EncodePropertyList, used to parse
// the platform's authoritative server-owned property list arriving on
// the consumer properties control topic.
func DecodePropertyList(payload []byte) ([]string, error) {
	if len(payload) < 4 {
		return nil, agenterr.New(agenterr.InvalidParam, "devicestate.DecodePropertyList",
			"payload shorter than the 4-byte length prefix")
	}
	wantLen := binary.BigEndian.Uint32(payload[:4])

	zr, err := zlib.NewReader(bytes.NewReader(payload[4:]))
	if err != nil {
		return nil, agenterr.Wrap(agenterr.Internal, "devicestate.DecodePropertyList", err)
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, agenterr.Wrap(agenterr.Internal, "devicestate.DecodePropertyList", err)
	}
	if uint32(len(raw)) != wantLen {
		return nil, agenterr.New(agenterr.Internal, "devicestate.DecodePropertyList",
			"decompressed length does not match the declared prefix")
	}
	if len(raw) == 0 {
		return nil, nil
	}
	return strings.Split(string(raw), ";"), nil
}
