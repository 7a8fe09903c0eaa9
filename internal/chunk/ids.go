package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// TokensPerChar approximates tokens from character count: a crude but
// consistent heuristic, used uniformly for chunking budgets. Parent-context
// truncation at query time counts characters (parent_context_max_chars)
// and does not use it.
const TokensPerChar = 4

// estimateTokens approximates the token count of content.
func estimateTokens(content string) int {
	return len(content) / TokensPerChar
}

// generateChunkID derives a stable, content-addressed ID from the chunk's
// kind (parent/child, so the two ID spaces never collide), its source URL,
// its position in the document, and its content. Re-chunking unchanged
// content at the same position yields the same ID.
func generateChunkID(kind, url string, position int, content string) string {
	contentHash := sha256.Sum256([]byte(content))
	contentHex := hex.EncodeToString(contentHash[:])[:16]

	idHash := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%d:%s", kind, url, position, contentHex)))
	return hex.EncodeToString(idHash[:])[:16]
}
