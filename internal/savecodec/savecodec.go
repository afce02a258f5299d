// Package savecodec serializes world snapshots into a length-prefixed
// chunked container: a fixed header, zstd-compressed YAML chunks, and an
// HMAC-SHA256 trailer over everything before it. The core treats the
// snapshot tree as opaque; this package is the embedded host's codec for
// putting that tree on disk and getting it back intact.
package savecodec

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"
)

var magic = [4]byte{'N', 'X', 'S', '1'}

// chunkSize bounds each compressed unit so a corrupted byte invalidates
// one chunk's worth of data during diagnosis, not the whole payload.
const chunkSize = 1 << 16

// Errors a reader distinguishes: a load that fails integrity or format
// checks aborts with the previous world untouched.
var (
	ErrBadMagic    = errors.New("savecodec: not a save container")
	ErrIntegrity   = errors.New("savecodec: HMAC mismatch")
	ErrTruncated   = errors.New("savecodec: truncated container")
	ErrUnsupported = errors.New("savecodec: unsupported container version")
)

// Encode marshals v to YAML, splits it into chunks, compresses each with
// zstd, and appends an HMAC-SHA256 trailer keyed with key.
func Encode(v interface{}, key []byte) ([]byte, error) {
	payload, err := yaml.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("savecodec: marshal: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("savecodec: zstd init: %w", err)
	}
	defer enc.Close()

	var chunks [][]byte
	for off := 0; off < len(payload); off += chunkSize {
		end := off + chunkSize
		if end > len(payload) {
			end = len(payload)
		}
		chunks = append(chunks, payload[off:end])
	}
	if len(chunks) == 0 {
		chunks = append(chunks, nil)
	}

	var buf bytes.Buffer
	buf.Write(magic[:])
	binary.BigEndian.PutUint32(appendSpace(&buf, 4), uint32(len(chunks)))
	for _, chunk := range chunks {
		compressed := enc.EncodeAll(chunk, nil)
		binary.BigEndian.PutUint32(appendSpace(&buf, 4), uint32(len(compressed)))
		buf.Write(compressed)
	}

	mac := hmac.New(sha256.New, key)
	mac.Write(buf.Bytes())
	buf.Write(mac.Sum(nil))

	return buf.Bytes(), nil
}

func appendSpace(buf *bytes.Buffer, n int) []byte {
	start := buf.Len()
	buf.Write(make([]byte, n))
	return buf.Bytes()[start : start+n]
}

// Decode verifies the trailer HMAC, decompresses every chunk, and
// unmarshals the reassembled YAML into out.
func Decode(data []byte, key []byte, out interface{}) error {
	trailer := sha256.Size
	if len(data) < len(magic)+4+trailer {
		return ErrTruncated
	}

	body, tag := data[:len(data)-trailer], data[len(data)-trailer:]
	mac := hmac.New(sha256.New, key)
	mac.Write(body)
	if !hmac.Equal(tag, mac.Sum(nil)) {
		return ErrIntegrity
	}

	if !bytes.Equal(body[:len(magic)], magic[:]) {
		if bytes.Equal(body[:3], magic[:3]) {
			return ErrUnsupported
		}
		return ErrBadMagic
	}
	body = body[len(magic):]

	nchunks := binary.BigEndian.Uint32(body[:4])
	body = body[4:]

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return fmt.Errorf("savecodec: zstd init: %w", err)
	}
	defer dec.Close()

	var payload []byte
	for i := uint32(0); i < nchunks; i++ {
		if len(body) < 4 {
			return ErrTruncated
		}
		clen := binary.BigEndian.Uint32(body[:4])
		body = body[4:]
		if uint32(len(body)) < clen {
			return ErrTruncated
		}
		chunk, err := dec.DecodeAll(body[:clen], nil)
		if err != nil {
			return fmt.Errorf("savecodec: chunk %d: %w", i, err)
		}
		payload = append(payload, chunk...)
		body = body[clen:]
	}

	if err := yaml.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("savecodec: unmarshal: %w", err)
	}
	return nil
}
