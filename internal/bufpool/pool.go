// Package bufpool provides sized byte slices backed by reusable buffers,
// keeping GC churn down for the packet and frame payloads that flow
// through a pipeline at media rates.
package bufpool

import "sync"

// Size classes tuned for media payloads: small compressed packets, audio
// frames, SD video planes and HD video planes.
var sizeClasses = []int{4 << 10, 64 << 10, 512 << 10, 4 << 20}

type classPool struct {
	size int
	pool *sync.Pool
}

// Pool hands out byte slices whose capacity is the nearest size class able
// to hold the request.
type Pool struct {
	pools []classPool
}

var defaultPool = New()

// Get acquires a buffer from the package-level default pool.
func Get(size int) []byte {
	return defaultPool.Get(size)
}

// Put releases a buffer back to the package-level default pool.
func Put(buf []byte) {
	defaultPool.Put(buf)
}

// New creates a pool with the predefined media size classes.
func New() *Pool {
	pools := make([]classPool, len(sizeClasses))
	for i, classSize := range sizeClasses {
		size := classSize
		pools[i] = classPool{
			size: size,
			pool: &sync.Pool{
				New: func() any {
					return make([]byte, size)
				},
			},
		}
	}
	return &Pool{pools: pools}
}

// Get returns a slice of exactly the requested length. Requests larger
// than the biggest class allocate a fresh slice without pooling.
func (p *Pool) Get(size int) []byte {
	if p == nil || size <= 0 {
		return nil
	}
	for i := range p.pools {
		class := &p.pools[i]
		if size <= class.size {
			buf := class.pool.Get().([]byte)
			return buf[:size]
		}
	}
	return make([]byte, size)
}

// Put returns a buffer whose capacity matches a size class; anything else
// is discarded. Buffers are zeroed so stale media bytes never leak into
// the next frame.
func (p *Pool) Put(buf []byte) {
	if p == nil || buf == nil {
		return
	}
	capBuf := cap(buf)
	for i := range p.pools {
		class := &p.pools[i]
		if capBuf == class.size {
			full := buf[:class.size]
			clear(full)
			class.pool.Put(full)
			return
		}
	}
}
