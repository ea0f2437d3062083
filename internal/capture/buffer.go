package capture

import "sync"

// chunkBuffer 一次录制持有的分片缓冲，录制器的 sink 可能在其他 goroutine 写入
type chunkBuffer struct {
	mu     sync.Mutex
	chunks [][]byte
	size   int
}

func (b *chunkBuffer) append(p []byte) {
	if len(p) == 0 {
		return
	}
	c := make([]byte, len(p))
	copy(c, p)
	b.mu.Lock()
	b.chunks = append(b.chunks, c)
	b.size += len(c)
	b.mu.Unlock()
}

func (b *chunkBuffer) concat() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, 0, b.size)
	for _, c := range b.chunks {
		out = append(out, c...)
	}
	return out
}

func (b *chunkBuffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.chunks)
}

func (b *chunkBuffer) reset() {
	b.mu.Lock()
	b.chunks = nil
	b.size = 0
	b.mu.Unlock()
}
