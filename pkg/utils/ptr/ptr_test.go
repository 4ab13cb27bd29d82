package ptr

import "testing"

func TestDeref(t *testing.T) {
	if got := Deref[int](nil, 3); got != 3 {
		t.Errorf("Deref(nil) = %d, want 3", got)
	}
	if got := Deref(To(0.5), 1); got != 0.5 {
		t.Errorf("Deref(To(0.5)) = %v, want 0.5", got)
	}
}
