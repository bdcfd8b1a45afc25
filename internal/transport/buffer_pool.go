package transport

import "sync"

const maxDatagramSize = 9000

var bufferPool = sync.Pool{
	New: func() interface{} {
		return make([]byte, maxDatagramSize)
	},
}

// GetBuffer returns a zeroed scratch buffer sized for one mDNS datagram.
func GetBuffer() []byte {
	return bufferPool.Get().([]byte)
}

// PutBuffer returns buf to the pool for reuse. buf must have been obtained
// from GetBuffer and must not be referenced again by the caller.
func PutBuffer(buf []byte) {
	if cap(buf) != maxDatagramSize {
		return
	}
	buf = buf[:maxDatagramSize]
	for i := range buf {
		buf[i] = 0
	}
	bufferPool.Put(buf)
}
