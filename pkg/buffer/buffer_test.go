package buffer

import (
	"testing"

	"github.com/charlie0129/smuseq/pkg/status"
)

func TestNew(t *testing.T) {
	if _, err := New(0); !status.Is(err, status.CodeInvalidBuffer) {
		t.Fatalf("expected invalid buffer, got %v", err)
	}

	b, err := New(4)
	if err != nil {
		t.Fatal(err)
	}
	for i, s := range b.Slots() {
		if s.Voltage != 0 || s.Current != 0 {
			t.Errorf("slot %d not zero-filled: %+v", i, s)
		}
	}
	if got := b.ReadAll(); len(got) != 0 {
		t.Errorf("ReadAll() on empty buffer = %v", got)
	}
}

func TestNewFrom(t *testing.T) {
	tests := []struct {
		name    string
		v, i    []float64
		wantErr status.Code
	}{
		{"ok", make([]float64, 3), make([]float64, 3), status.OK},
		{"empty", nil, make([]float64, 3), status.CodeInvalidBuffer},
		{"mismatch", make([]float64, 3), make([]float64, 4), status.CodeBufferMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFrom(tt.v, tt.i)
			if got := status.CodeOf(err); got != tt.wantErr {
				t.Errorf("NewFrom() code = %v, want %v", got, tt.wantErr)
			}
		})
	}

	v := []float64{9, 9}
	i := []float64{9, 9}
	b, err := NewFrom(v, i)
	if err != nil {
		t.Fatal(err)
	}
	if v[0] != 0 || i[1] != 0 {
		t.Errorf("caller buffers not zeroed: %v %v", v, i)
	}
	b.Write(Sample{Voltage: 1, Current: 2})
	if v[0] != 1 || i[0] != 2 {
		t.Errorf("write did not land in caller buffers: %v %v", v, i)
	}
}

func TestWriteWraparound(t *testing.T) {
	const capacity = 4
	b, err := New(capacity)
	if err != nil {
		t.Fatal(err)
	}

	for k := 0; k < 10; k++ {
		b.Write(Sample{Voltage: float64(k), Current: float64(k) * 1e-3})
		if c := b.Cursor(); c != (k+1)%capacity {
			t.Fatalf("after write %d cursor = %d", k, c)
		}
	}

	// Sample k lands at k mod capacity; the last write to each slot wins.
	for slot := 0; slot < capacity; slot++ {
		want := slot
		for k := slot; k < 10; k += capacity {
			want = k
		}
		if got := b.At(slot).Voltage; got != float64(want) {
			t.Errorf("slot %d voltage = %v, want %v", slot, got, want)
		}
	}

	all := b.ReadAll()
	if len(all) != capacity {
		t.Fatalf("ReadAll() len = %d", len(all))
	}
	for n, s := range all {
		if s.Voltage != float64(6+n) {
			t.Errorf("ReadAll()[%d] = %v, want %v", n, s.Voltage, 6+n)
		}
	}
	if b.Written() != 10 || b.Len() != capacity {
		t.Errorf("Written() = %d, Len() = %d", b.Written(), b.Len())
	}
}

func TestReadAllPartial(t *testing.T) {
	b, _ := New(8)
	b.Write(Sample{Voltage: 1})
	b.Write(Sample{Voltage: 2})
	all := b.ReadAll()
	if len(all) != 2 || all[0].Voltage != 1 || all[1].Voltage != 2 {
		t.Errorf("ReadAll() = %+v", all)
	}
}
