package chunker

import (
	"strings"

	"github.com/dshills/agentctx/pkg/types"
)

// splitOnBreakpoint splits content on every statement breakpoint marker.
// N markers always produce N+1 chunks; line numbers are not tracked.
func splitOnBreakpoint(content, filePath string) []types.Chunk {
	parts := strings.Split(content, StatementBreakpoint)
	chunks := make([]types.Chunk, 0, len(parts))
	for _, part := range parts {
		chunks = append(chunks, types.Chunk{
			FilePath: filePath,
			Content:  part,
		})
	}
	return chunks
}

// chunkByLines groups non-blank lines into chunks of roughly wordBudget words.
// A line is never split, so a single long line may exceed the budget on its own.
func chunkByLines(content, filePath string, wordBudget int) []types.Chunk {
	var (
		chunks    []types.Chunk
		current   []string
		words     int
		startLine int
		endLine   int
	)

	flush := func() {
		if len(current) == 0 {
			return
		}
		chunks = append(chunks, types.Chunk{
			FilePath:  filePath,
			StartLine: startLine,
			EndLine:   endLine,
			Content:   strings.Join(current, "\n"),
		})
		current = nil
		words = 0
	}

	for i, line := range strings.Split(content, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		lineWords := len(strings.Fields(line))
		if len(current) > 0 && words+lineWords > wordBudget {
			flush()
		}

		if len(current) == 0 {
			startLine = i + 1
		}
		current = append(current, line)
		words += lineWords
		endLine = i + 1
	}
	flush()

	if chunks == nil {
		return []types.Chunk{}
	}
	return chunks
}
