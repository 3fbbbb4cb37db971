package storage

import (
	"strconv"
	"strings"
)

// ToVectorLiteral renders a float32 slice as a pgvector text literal,
// e.g. "[0.1,0.2,0.3]", suitable for a $n::vector bind.
func ToVectorLiteral(v []float32) string {
	var b strings.Builder
	b.Grow(len(v)*10 + 2)
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
