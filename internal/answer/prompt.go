package answer

import (
	"fmt"
	"strings"

	"github.com/dgallion1/docrag/internal/index"
)

// NoDocuments stands in for the context block when retrieval found nothing.
const NoDocuments = "No documents available."

const systemInstructions = `You are a document assistant. Answer the user's question using the DOCUMENT_CONTEXT below.
Respond in the same language as the user's latest question, even when the context is in another language.
Cite the numbered context blocks you relied on, for example [1] or [2].
If the answer is not in the context, say that your knowledge is limited to the provided documents.
Be concise, accurate, and helpful.`

// FormatContext renders retrieved chunks as numbered blocks separated by
// horizontal rules.
func FormatContext(hits []index.Hit) string {
	if len(hits) == 0 {
		return NoDocuments
	}
	parts := make([]string, len(hits))
	for i, h := range hits {
		parts[i] = fmt.Sprintf("[%d] source=%s chunk_id=%s\n%s", i+1, h.Chunk.Source, h.Chunk.ID, h.Chunk.Text)
	}
	return strings.Join(parts, "\n\n---\n\n")
}

// BuildSystemPrompt combines the instructions with the retrieved context.
func BuildSystemPrompt(hits []index.Hit) string {
	var sb strings.Builder
	sb.WriteString(systemInstructions)
	sb.WriteString("\n\nDOCUMENT_CONTEXT:\n")
	sb.WriteString(FormatContext(hits))
	return sb.String()
}
