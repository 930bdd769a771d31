package arena

import "testing"

func TestAllocAlignment(t *testing.T) {
	a := New(64)
	defer a.Destroy()

	a.Alloc(3, 1)
	b := a.Alloc(8, 8)
	if len(b) != 8 {
		t.Fatalf("got %d bytes, want 8", len(b))
	}
	for _, align := range []int{1, 2, 4, 8, 16} {
		buf := a.Alloc(5, align)
		if len(buf) != 5 {
			t.Fatalf("align %d: got %d bytes, want 5", align, len(buf))
		}
	}
}

func TestAllocLargerThanBlock(t *testing.T) {
	a := New(16)
	defer a.Destroy()

	buf := a.Alloc(100, 8)
	if len(buf) != 100 {
		t.Fatalf("got %d bytes, want 100", len(buf))
	}
}

func TestDup(t *testing.T) {
	a := New(0)
	defer a.Destroy()

	src := []byte("hello")
	dst := a.Dup(src)
	if string(dst) != "hello" {
		t.Fatalf("got %q", dst)
	}
	src[0] = 'x'
	if string(dst) != "hello" {
		t.Fatalf("Dup aliased its input")
	}
}

func TestResetRetainsMemory(t *testing.T) {
	a := New(128)
	for i := 0; i < 10; i++ {
		a.Alloc(100, 1)
	}
	before := a.Size()
	a.Reset()
	if a.Size() != before {
		t.Fatalf("Reset released memory: %d != %d", a.Size(), before)
	}

	buf := a.Alloc(8, 1)
	for i, c := range buf {
		if c != 0 {
			t.Fatalf("byte %d not zeroed after Reset", i)
		}
	}
}

func TestDestroy(t *testing.T) {
	a := New(0)
	a.Alloc(10, 1)
	a.Destroy()
	if a.Size() != 0 {
		t.Fatalf("Destroy kept %d bytes", a.Size())
	}
	// The arena is reusable after Destroy.
	if got := a.Alloc(4, 4); len(got) != 4 {
		t.Fatalf("Alloc after Destroy failed")
	}
}
