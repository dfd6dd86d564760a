package gofootprint

import (
	"sync"
)

// Buffer pools for compressed raster blocks. Strips and tiles of one file
// share a handful of sizes, so size classes keep reuse high.

var blockSizeClasses = []int{
	64 * 1024,       // small tiles
	256 * 1024,      // 256x256 tiles
	1024 * 1024,     // 512x512 tiles or strips
	4 * 1024 * 1024, // large strips
}

var blockPools = func() []*sync.Pool {
	pools := make([]*sync.Pool, len(blockSizeClasses))
	for i, size := range blockSizeClasses {
		size := size
		pools[i] = &sync.Pool{
			New: func() interface{} {
				buf := make([]byte, size)
				return &buf
			},
		}
	}
	return pools
}()

// GetBuffer returns a byte slice of length size, pooled when size fits a
// class. Call PutBuffer when done.
func GetBuffer(size int) []byte {
	for i, class := range blockSizeClasses {
		if size <= class {
			bufPtr := blockPools[i].Get().(*[]byte)
			return (*bufPtr)[:size]
		}
	}
	return make([]byte, size)
}

// PutBuffer returns a buffer obtained from GetBuffer. Buffers of other
// capacities are dropped.
func PutBuffer(buf []byte) {
	c := cap(buf)
	for i, class := range blockSizeClasses {
		if c == class {
			buf = buf[:c]
			blockPools[i].Put(&buf)
			return
		}
	}
}
