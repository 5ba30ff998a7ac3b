package rag

import "fmt"

// DefaultChunkSize is the slice width used when no size is configured.
const DefaultChunkSize = 1000

// Chunk splits text into fixed-size character slices. The final chunk
// carries whatever remains, so no input text is ever dropped.
func Chunk(text string, size int) []string {
	if text == "" {
		return nil
	}
	if size <= 0 {
		size = DefaultChunkSize
	}

	runes := []rune(text)
	chunks := make([]string, 0, (len(runes)+size-1)/size)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}

	return chunks
}

// ChunkID builds the deterministic identifier for a material's chunk.
// Re-indexing the same material overwrites its previous vectors instead
// of duplicating them.
func ChunkID(materialID uint, position int) string {
	return fmt.Sprintf("%d-%d", materialID, position)
}
