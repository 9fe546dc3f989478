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

package pool

import (
	"sync"
	"testing"
)

func TestSessionGrows(t *testing.T) {
	s := NewSession(16)
	a := s.Alloc(10)
	b := s.Alloc(10)
	if len(a) != 10 || len(b) != 10 {
		t.Fatalf("unexpected lengths: %d, %d", len(a), len(b))
	}
	if s.Bytes() != 20 {
		t.Fatalf("Bytes() = %d, want 20", s.Bytes())
	}
	s.Reset()
	if s.Bytes() != 0 {
		t.Fatalf("Bytes() after Reset = %d, want 0", s.Bytes())
	}
}

func TestProcessAllocFree(t *testing.T) {
	p := NewProcess(4)
	bufs := make([][]byte, 4)
	for i := range bufs {
		bufs[i] = p.Alloc(128)
		bufs[i][0] = byte(i + 1)
	}
	if p.PagesInUse() != 4 {
		t.Fatalf("PagesInUse() = %d, want 4", p.PagesInUse())
	}
	for _, b := range bufs {
		p.Free(b)
	}
	if p.PagesInUse() != 0 {
		t.Fatalf("PagesInUse() after free = %d, want 0", p.PagesInUse())
	}
}

func TestProcessConcurrentAllocFree(t *testing.T) {
	p := NewProcess(64)
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				b := p.Alloc(64)
				b[0] = 1
				p.Free(b)
			}
		}()
	}
	wg.Wait()
	if p.PagesInUse() != 0 {
		t.Fatalf("PagesInUse() = %d, want 0 after all goroutines finished", p.PagesInUse())
	}
}
