// Package partition splits block ranges into fixed-size, inclusive chunks.
package partition

import "fmt"

// BlockRange is an inclusive block interval.
type BlockRange struct {
	From uint64
	To   uint64
}

func (r BlockRange) String() string {
	return fmt.Sprintf("%d-%d", r.From, r.To)
}

// Split divides [from, to] into consecutive ranges of at most size blocks.
// A size of 0 yields the whole range as a single chunk; from > to yields none.
func Split(from, to, size uint64) []BlockRange {
	if from > to {
		return nil
	}
	if size == 0 {
		return []BlockRange{{From: from, To: to}}
	}

	var out []BlockRange
	for start := from; start <= to; {
		end := start + size - 1
		if end > to || end < start {
			end = to
		}
		out = append(out, BlockRange{From: start, To: end})
		if end == to {
			break
		}
		start = end + 1
	}
	return out
}
