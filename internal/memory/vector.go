package memory

import (
	"encoding/binary"
	"fmt"
	"math"
)

const vectorHeaderSize = 4

// EncodeVector packs a float32 vector into a blob for storage:
// a 4-byte little-endian dimension followed by the raw float32 values.
func EncodeVector(vector []float32) ([]byte, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("encode vector: empty vector")
	}

	blob := make([]byte, vectorHeaderSize+len(vector)*4)
	binary.LittleEndian.PutUint32(blob, uint32(len(vector)))
	for i, v := range vector {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return nil, fmt.Errorf("encode vector: invalid value at index %d", i)
		}
		binary.LittleEndian.PutUint32(blob[vectorHeaderSize+i*4:], math.Float32bits(v))
	}
	return blob, nil
}

// DecodeVector unpacks a blob written by EncodeVector.
func DecodeVector(blob []byte) ([]float32, error) {
	if len(blob) < vectorHeaderSize {
		return nil, fmt.Errorf("decode vector: blob too short: %d bytes", len(blob))
	}

	dim := int(binary.LittleEndian.Uint32(blob))
	if dim <= 0 || len(blob) != vectorHeaderSize+dim*4 {
		return nil, fmt.Errorf("decode vector: dimension %d does not match payload of %d bytes", dim, len(blob)-vectorHeaderSize)
	}

	vector := make([]float32, dim)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[vectorHeaderSize+i*4:]))
	}
	return vector, nil
}

// CosineSimilarity scores two vectors of equal dimension in [-1, 1].
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, fmt.Errorf("cosine similarity: dimension mismatch: %d vs %d", len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		ai, bi := float64(a[i]), float64(b[i])
		dot += ai * bi
		normA += ai * ai
		normB += bi * bi
	}
	if normA == 0 || normB == 0 {
		return 0, fmt.Errorf("cosine similarity: zero vector")
	}

	score := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return math.Max(-1, math.Min(1, score)), nil
}
