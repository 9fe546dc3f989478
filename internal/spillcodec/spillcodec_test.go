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

package spillcodec

import (
	"bytes"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	raw := bytes.Repeat([]byte("sketch payload bytes"), 100)
	f := Encode(raw)
	got, err := Decode(f, true)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, raw) {
		t.Fatal("round trip did not reproduce original bytes")
	}
}

func TestStrictModeRejectsCorruption(t *testing.T) {
	raw := []byte("payload")
	f := Encode(raw)
	f.Checksum[0] ^= 0xFF
	if _, err := Decode(f, true); err == nil {
		t.Fatal("expected checksum mismatch to be rejected in strict mode")
	}
}

func TestFastModeSkipsChecksum(t *testing.T) {
	raw := []byte("payload")
	f := Encode(raw)
	f.Checksum[0] ^= 0xFF
	if _, err := Decode(f, false); err != nil {
		t.Fatalf("fast mode should not validate checksum, got error: %v", err)
	}
}

func TestFrameMarshalRoundTrip(t *testing.T) {
	raw := bytes.Repeat([]byte("x"), 1000)
	f := Encode(raw)
	b := MarshalFrame(f)
	f2, err := UnmarshalFrame(b)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(f2, true)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, raw) {
		t.Fatal("marshal/unmarshal round trip corrupted payload")
	}
}
