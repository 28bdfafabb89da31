package sqldriver

import (
	"encoding/binary"
	"fmt"

	"github.com/x448/float16"
)

// Signal embeddings are stored as little-endian half precision floats.

func encodeEmbedding(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, 2*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint16(buf[2*i:], float16.Fromfloat32(x).Bits())
	}
	return buf
}

func decodeEmbedding(buf []byte) ([]float32, error) {
	if len(buf) == 0 {
		return nil, nil
	}
	if len(buf)%2 != 0 {
		return nil, fmt.Errorf("embedding blob has odd length %d", len(buf))
	}
	v := make([]float32, len(buf)/2)
	for i := range v {
		v[i] = float16.Frombits(binary.LittleEndian.Uint16(buf[2*i:])).Float32()
	}
	return v, nil
}
