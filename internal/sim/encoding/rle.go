package encoding

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// EncodeHeights run-length encodes a height column into base64(varint pairs).
// The pairs are (zigzag height, run_len) repeated.
func EncodeHeights(heights []int32) string {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte

	i := 0
	for i < len(heights) {
		h := heights[i]
		run := 1
		for j := i + 1; j < len(heights) && heights[j] == h && run < 1<<31; j++ {
			run++
		}

		n := binary.PutVarint(tmp[:], int64(h))
		buf.Write(tmp[:n])
		n = binary.PutUvarint(tmp[:], uint64(run))
		buf.Write(tmp[:n])

		i += run
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// DecodeHeights reverses EncodeHeights. want bounds the decoded length so a
// corrupt run cannot allocate without limit.
func DecodeHeights(b64 string, want int) ([]int32, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	out := make([]int32, 0, want)
	for i := 0; i < len(raw); {
		h, n := binary.Varint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		if h < -1<<31 || h > 1<<31-1 {
			return nil, fmt.Errorf("height out of range: %d", h)
		}
		if uint64(len(out))+run > uint64(want) {
			return nil, fmt.Errorf("run overflows %d heights", want)
		}
		for k := uint64(0); k < run; k++ {
			out = append(out, int32(h))
		}
	}
	if len(out) != want {
		return nil, fmt.Errorf("decoded %d heights, want %d", len(out), want)
	}
	return out, nil
}
