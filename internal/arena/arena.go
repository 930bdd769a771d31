// Package arena provides a bump-pointer allocator for byte payloads whose
// lifetime matches a compiler session: file contents, decoded string
// literals and synthesized token text. Allocations are never freed
// individually; Reset rewinds every block and Destroy drops them.
package arena

const DefaultBlockSize = 1 << 20

type block struct {
	buf []byte
	off int
}

type Arena struct {
	blocks    []*block
	cur       int
	blockSize int
}

func New(blockSize int) *Arena {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &Arena{blockSize: blockSize, cur: -1}
}

// Alloc returns a zeroed slice of n bytes whose start address is aligned
// to align within its block. Requests larger than the block size get a
// dedicated block.
func (a *Arena) Alloc(n, align int) []byte {
	if align <= 0 {
		align = 1
	}
	if a.cur >= 0 {
		b := a.blocks[a.cur]
		off := alignUp(b.off, align)
		if off+n <= len(b.buf) {
			b.off = off + n
			return b.buf[off : off+n : off+n]
		}
	}
	size := a.blockSize
	if n > size {
		size = n
	}
	b := &block{buf: make([]byte, size)}
	b.off = n
	a.blocks = append(a.blocks, b)
	a.cur = len(a.blocks) - 1
	return b.buf[0:n:n]
}

// Dup copies src into the arena and returns the copy.
func (a *Arena) Dup(src []byte) []byte {
	dst := a.Alloc(len(src), 1)
	copy(dst, src)
	return dst
}

// Reset rewinds all blocks to empty, retaining their memory.
func (a *Arena) Reset() {
	for _, b := range a.blocks {
		b.off = 0
		for i := range b.buf {
			b.buf[i] = 0
		}
	}
	if len(a.blocks) > 0 {
		a.cur = 0
	} else {
		a.cur = -1
	}
}

// Destroy releases every block. The arena may be reused afterwards.
func (a *Arena) Destroy() {
	a.blocks = nil
	a.cur = -1
}

// Size reports the total number of bytes currently reserved.
func (a *Arena) Size() int {
	n := 0
	for _, b := range a.blocks {
		n += len(b.buf)
	}
	return n
}

func alignUp(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}
