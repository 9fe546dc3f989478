// Copyright (C) 2023 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package spillcodec compresses a compacted sketch's flat buffers before
// they are handed to a spill writer, and verifies their integrity on
// restore.
package spillcodec

import (
	"encoding/binary"

	"github.com/klauspost/compress/s2"
	"golang.org/x/crypto/blake2b"

	"github.com/sneller-contrib/kllpercentile/internal/kllerr"
)

// Frame is the on-disk shape of one spilled sketch: a blake2b-256
// checksum of the uncompressed payload, followed by the s2-compressed
// payload itself.
type Frame struct {
	Checksum [32]byte
	Payload  []byte // s2-compressed
}

// Encode compresses raw and tags it with a checksum of the uncompressed
// bytes.
func Encode(raw []byte) Frame {
	return Frame{
		Checksum: blake2b.Sum256(raw),
		Payload:  s2.Encode(nil, raw),
	}
}

// Decode decompresses f.Payload. In strict mode the uncompressed bytes
// are re-hashed and compared against f.Checksum; a mismatch returns an
// *kllerr.InvariantError, per spec.md §7's internal-invariant-failure
// path, and the caller must tear down the query rather than continue
// with untrusted state. Fast mode skips the check.
func Decode(f Frame, strict bool) ([]byte, error) {
	raw, err := s2.Decode(nil, f.Payload)
	if err != nil {
		return nil, kllerr.NewInvariant("spillcodec.Decode", "s2 decompression failed: %v", err)
	}
	if strict {
		if got := blake2b.Sum256(raw); got != f.Checksum {
			return nil, kllerr.NewInvariant("spillcodec.Decode", "checksum mismatch restoring spilled sketch")
		}
	}
	return raw, nil
}

// MarshalFrame serializes f as checksum || uvarint(len(payload)) || payload.
func MarshalFrame(f Frame) []byte {
	buf := make([]byte, 32, 32+binary.MaxVarintLen64+len(f.Payload))
	copy(buf, f.Checksum[:])
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(f.Payload)))
	buf = append(buf, lenBuf[:n]...)
	buf = append(buf, f.Payload...)
	return buf
}

// UnmarshalFrame is the inverse of MarshalFrame.
func UnmarshalFrame(b []byte) (Frame, error) {
	if len(b) < 32 {
		return Frame{}, kllerr.NewInvariant("spillcodec.UnmarshalFrame", "frame too short: %d bytes", len(b))
	}
	var f Frame
	copy(f.Checksum[:], b[:32])
	length, n := binary.Uvarint(b[32:])
	if n <= 0 {
		return Frame{}, kllerr.NewInvariant("spillcodec.UnmarshalFrame", "corrupt payload length varint")
	}
	start := 32 + n
	if uint64(len(b)-start) < length {
		return Frame{}, kllerr.NewInvariant("spillcodec.UnmarshalFrame", "frame truncated: want %d payload bytes, have %d", length, len(b)-start)
	}
	f.Payload = b[start : start+int(length)]
	return f, nil
}
