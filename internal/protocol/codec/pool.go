package codec

import (
	"bytes"
	"sync"
)

// maxPooledBuffer 超过该容量的缓冲（通常来自快照补发）用完即丢，不回池
const maxPooledBuffer = 64 << 10

// encodeBuffers Encode 复用的写缓冲
var encodeBuffers = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

func getBuffer() *bytes.Buffer {
	return encodeBuffers.Get().(*bytes.Buffer)
}

func putBuffer(buf *bytes.Buffer) {
	if buf == nil || buf.Cap() > maxPooledBuffer {
		return
	}
	buf.Reset()
	encodeBuffers.Put(buf)
}
