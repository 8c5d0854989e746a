package storage

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// serializeVector encodes a vector as little-endian float32 bytes
func serializeVector(vector []float32) []byte {
	buf := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// deserializeVector decodes little-endian float32 bytes
func deserializeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid vector data length: %d", len(data))
	}

	vector := make([]float32, len(data)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vector, nil
}

// cosineSimilarity returns 1 - cosine distance between a and b.
// ok is false when the vectors differ in length or either has zero norm.
func cosineSimilarity(a, b []float32) (sim float64, ok bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), true
}

// rankEmbeddings keeps rows scoring above threshold, orders them by descending
// similarity (ties by id) and caps the result at limit.
func rankEmbeddings(rows []ScoredEmbedding, threshold float64, limit int) []ScoredEmbedding {
	kept := rows[:0]
	for _, r := range rows {
		if r.Similarity > threshold {
			kept = append(kept, r)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Similarity != kept[j].Similarity {
			return kept[i].Similarity > kept[j].Similarity
		}
		return kept[i].ID < kept[j].ID
	})

	if limit > 0 && len(kept) > limit {
		kept = kept[:limit]
	}
	return kept
}
