package storage

import "sync"

// progressReader is handed to minio as PutObjectOptions.Progress. minio calls
// Read with every chunk it has consumed from the source, so the length of each
// slice is the number of bytes just sent.
type progressReader struct {
	mu    sync.Mutex
	sent  int64
	total int64
	fn    ProgressFunc
}

func newProgressReader(total int64, fn ProgressFunc) *progressReader {
	return &progressReader{total: total, fn: fn}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n := len(b)
	if n == 0 {
		return 0, nil
	}

	// Parts upload concurrently; keep the counter and callback ordered.
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent += int64(n)
	if p.total > 0 && p.sent > p.total {
		p.sent = p.total
	}
	if p.fn != nil {
		p.fn(p.sent, p.total)
	}
	return n, nil
}
