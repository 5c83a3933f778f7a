package buffer

import (
	"bytes"
	"strings"
	"sync"
	"testing"
)

func TestNewPoolWithCapacity(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		want     int
	}{
		{"default", 0, DefaultCapacity},
		{"negative", -1, DefaultCapacity},
		{"small", 64, 64},
		{"large", 4096, 4096},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPoolWithCapacity(tt.capacity)
			if p.Capacity() != tt.want {
				t.Errorf("Capacity() = %d, want %d", p.Capacity(), tt.want)
			}
			buf := p.Get()
			if buf.Len() != 0 {
				t.Errorf("new buffer has length %d", buf.Len())
			}
			if buf.Cap() < tt.want {
				t.Errorf("new buffer cap = %d, want >= %d", buf.Cap(), tt.want)
			}
		})
	}
}

func TestGetReturnsEmptyBuffer(t *testing.T) {
	p := NewPool()
	buf := p.Get()
	buf.WriteString("leftover")
	p.Put(buf)

	for i := 0; i < 10; i++ {
		if got := p.Get(); got.Len() != 0 {
			t.Fatalf("Get() returned %q", got.String())
		}
	}
}

func TestPutIgnoresNilAndOversized(t *testing.T) {
	p := NewPool()
	p.Put(nil)

	big := bytes.NewBufferString(strings.Repeat("x", maxPooled+1))
	p.Put(big)
	if big.Len() == 0 {
		t.Error("oversized buffer was reset and pooled")
	}
}

func TestConcurrentUse(t *testing.T) {
	p := NewPool()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				buf := p.Get()
				buf.WriteString(strings.Repeat("a", n))
				if buf.Len() != n {
					t.Errorf("buffer length = %d, want %d", buf.Len(), n)
				}
				p.Put(buf)
			}
		}(i)
	}
	wg.Wait()
}
