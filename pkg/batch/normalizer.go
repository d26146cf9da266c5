// Package batch prepares canonical rows for bulk upserts.
package batch

import (
	"fmt"
	"sort"
)

// Row is one product row keyed by column name.
type Row = map[string]any

// Normalize pads every row to the union of keys across the batch, filling
// missing keys with explicit nulls. Bulk JSON inserts reject heterogeneous
// key sets, so rows that skip optional columns must still carry them as
// null. An empty input yields an empty batch.
func Normalize(rows []Row) []Row {
	if len(rows) == 0 {
		return []Row{}
	}

	union := make(map[string]struct{})
	for _, row := range rows {
		for key := range row {
			union[key] = struct{}{}
		}
	}
	// An empty key union means there is nothing to write; empty-key rows
	// must not reach the store.
	if len(union) == 0 {
		return []Row{}
	}

	out := make([]Row, len(rows))
	for i, row := range rows {
		padded := make(Row, len(union))
		for key := range union {
			if v, ok := row[key]; ok {
				padded[key] = v
			} else {
				padded[key] = nil
			}
		}
		out[i] = padded
	}
	return out
}

// Keys returns the sorted key set of a normalized batch.
func Keys(rows []Row) []string {
	if len(rows) == 0 {
		return nil
	}
	keys := make([]string, 0, len(rows[0]))
	for key := range rows[0] {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Dedupe collapses rows sharing the same (source, external_id) identity,
// keeping the last occurrence. Upserts with ON CONFLICT cannot touch the
// same row twice within one statement.
func Dedupe(rows []Row) []Row {
	seen := make(map[string]int, len(rows))
	out := make([]Row, 0, len(rows))
	for _, row := range rows {
		key := fmt.Sprintf("%v::%v", row["source"], row["external_id"])
		if idx, ok := seen[key]; ok {
			out[idx] = row
			continue
		}
		seen[key] = len(out)
		out = append(out, row)
	}
	return out
}

// Chunk splits rows into slices of at most size rows.
func Chunk(rows []Row, size int) [][]Row {
	if size <= 0 || len(rows) == 0 {
		return nil
	}
	chunks := make([][]Row, 0, (len(rows)+size-1)/size)
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		chunks = append(chunks, rows[start:end])
	}
	return chunks
}
