package bingo

import (
	"crypto/sha256"
	"encoding/binary"
)

const (
	gridSize   = 5
	cardCells  = gridSize * gridSize
	maxNumber  = 75
	columnSpan = maxNumber / gridSize

	// maxResamples bounds the hash-chain retries when a drawn candidate
	// collides; after that a linear scan finds the first undrawn number,
	// keeping every draw total.
	maxResamples = 16
)

// byteStream expands a (seed, cardID) pair into a deterministic byte stream
// via counter-mode SHA-256.
type byteStream struct {
	base [16]byte
	ctr  uint64
	buf  []byte
}

func newByteStream(seed, cardID uint64) *byteStream {
	s := &byteStream{}
	binary.BigEndian.PutUint64(s.base[:8], seed)
	binary.BigEndian.PutUint64(s.base[8:], cardID)
	return s
}

func (s *byteStream) next() byte {
	if len(s.buf) == 0 {
		var block [24]byte
		copy(block[:16], s.base[:])
		binary.BigEndian.PutUint64(block[16:], s.ctr)
		s.ctr++
		sum := sha256.Sum256(block[:])
		s.buf = sum[:]
	}
	b := s.buf[0]
	s.buf = s.buf[1:]
	return b
}

// uintn returns a uniform value in [0, n) by rejection sampling the stream.
func (s *byteStream) uintn(n int) int {
	limit := 256 - 256%n
	for {
		v := int(s.next())
		if v < limit {
			return v % n
		}
	}
}

// deriveCardNumbers builds a card's 25 distinct numbers from the game seed
// and card id. Classic column layout: column c holds 5 distinct numbers from
// (c*15, c*15+15]. Cells are stored row-major, so cell r*5+c is row r of
// column c.
func deriveCardNumbers(seed, cardID uint64) [cardCells]uint8 {
	stream := newByteStream(seed, cardID)
	var numbers [cardCells]uint8

	for col := 0; col < gridSize; col++ {
		// Partial Fisher-Yates over the column's 15 candidates.
		var pool [columnSpan]uint8
		for i := range pool {
			pool[i] = uint8(col*columnSpan + i + 1)
		}
		for row := 0; row < gridSize; row++ {
			pick := row + stream.uintn(columnSpan-row)
			pool[row], pool[pick] = pool[pick], pool[row]
			numbers[row*gridSize+col] = pool[row]
		}
	}
	return numbers
}

// deriveDraw maps an oracle word to an undrawn number in 1..75. On collision
// it resamples through a bounded hash chain, then falls back to a linear
// scan from the last candidate so the draw always terminates.
func deriveDraw(word uint64, drawn *[maxNumber + 1]bool) uint8 {
	candidate := uint8(word%maxNumber) + 1
	for i := 0; i < maxResamples; i++ {
		if !drawn[candidate] {
			return candidate
		}
		var buf [9]byte
		binary.BigEndian.PutUint64(buf[:8], word)
		buf[8] = byte(i)
		sum := sha256.Sum256(buf[:])
		word = binary.BigEndian.Uint64(sum[:8])
		candidate = uint8(word%maxNumber) + 1
	}

	for i := 0; i < maxNumber; i++ {
		n := uint8((int(candidate)-1+i)%maxNumber) + 1
		if !drawn[n] {
			return n
		}
	}
	return 0 // unreachable: callers stop at 75 drawn numbers
}

// hasWinningPattern reports whether the marks complete a full row, column,
// or diagonal of the 5x5 grid.
func hasWinningPattern(marked *[cardCells]bool) bool {
	for r := 0; r < gridSize; r++ {
		full := true
		for c := 0; c < gridSize; c++ {
			if !marked[r*gridSize+c] {
				full = false
				break
			}
		}
		if full {
			return true
		}
	}

	for c := 0; c < gridSize; c++ {
		full := true
		for r := 0; r < gridSize; r++ {
			if !marked[r*gridSize+c] {
				full = false
				break
			}
		}
		if full {
			return true
		}
	}

	diag := true
	for i := 0; i < gridSize; i++ {
		if !marked[i*gridSize+i] {
			diag = false
			break
		}
	}
	if diag {
		return true
	}

	anti := true
	for i := 0; i < gridSize; i++ {
		if !marked[i*gridSize+(gridSize-1-i)] {
			anti = false
			break
		}
	}
	return anti
}
