package internal

import (
	"iter"
)

// IterSeq2Concat yields the pairs of each sequence in turn.
// Iteration stops early when the consumer stops.
func IterSeq2Concat[K any, V any](seqs ...iter.Seq2[K, V]) iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for _, seq := range seqs {
			more := true
			seq(func(key K, value V) bool {
				more = yield(key, value)
				return more
			})
			if !more {
				return
			}
		}
	}
}
