package chunker

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/dshills/agentctx/pkg/types"
)

const (
	// MaxChunkLines is the line-span ceiling below which a chunkable node is kept as one chunk
	MaxChunkLines = 30

	// DefaultWordBudget is the target word count for line-based fallback chunks
	DefaultWordBudget = 100

	// StatementBreakpoint separates statements in generated SQL migration files
	StatementBreakpoint = "--> statement-breakpoint"
)

// node is a language-neutral view of a syntax tree node.
// Rows are 0-based, byte offsets index into the parsed source.
type node struct {
	kind      string
	startByte int
	endByte   int
	startRow  int
	endRow    int
	children  []*node
}

func (n *node) lineSpan() int {
	return n.endRow - n.startRow
}

// language describes a structural parser registered for a set of file extensions
type language struct {
	name      string
	chunkable map[string]bool
	parse     func(ctx context.Context, src []byte) (*node, error)
}

// Option configures a Chunker
type Option func(*Chunker)

// WithWordBudget sets the word budget used by line-based fallback chunking
func WithWordBudget(words int) Option {
	return func(c *Chunker) {
		if words > 0 {
			c.wordBudget = words
		}
	}
}

// WithMaxChunkLines sets the line-span ceiling for structural chunks
func WithMaxChunkLines(lines int) Option {
	return func(c *Chunker) {
		if lines > 0 {
			c.maxLines = lines
		}
	}
}

// Chunker splits file content into syntactically meaningful chunks
type Chunker struct {
	logger     *zap.Logger
	wordBudget int
	maxLines   int
	languages  map[string]*language
}

// New creates a Chunker with every built-in language registered
func New(logger *zap.Logger, opts ...Option) *Chunker {
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Chunker{
		logger:     logger,
		wordBudget: DefaultWordBudget,
		maxLines:   MaxChunkLines,
		languages:  make(map[string]*language),
	}

	c.register(goLanguage(), ".go")
	c.register(markdownLanguage(), ".md", ".mdx", ".mdc")
	for _, ts := range treeSitterLanguages() {
		c.register(ts.language, ts.extensions...)
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *Chunker) register(lang *language, extensions ...string) {
	for _, ext := range extensions {
		c.languages[ext] = lang
	}
}

// Chunk splits content into chunks. Empty or whitespace-only content yields no chunks.
// Structural parsing is attempted first; when it produces nothing or fails, the content
// is split on statement breakpoints or, failing that, by line with a word budget.
func (c *Chunker) Chunk(ctx context.Context, content, filePath string) []types.Chunk {
	if strings.TrimSpace(content) == "" {
		return []types.Chunk{}
	}

	if lang, ok := c.languages[strings.ToLower(filepath.Ext(filePath))]; ok {
		chunks, err := c.structural(ctx, lang, content, filePath)
		if err != nil {
			c.logger.Warn("structural parse failed, falling back to line chunking",
				zap.String("event", "chunker.parse_failed"),
				zap.String("path", filePath),
				zap.String("language", lang.name),
				zap.Error(err))
		} else if len(chunks) > 0 {
			return chunks
		}
	}

	if strings.Contains(content, StatementBreakpoint) {
		return splitOnBreakpoint(content, filePath)
	}

	return chunkByLines(content, filePath, c.wordBudget)
}

// structural parses content and walks the tree. Panics raised by a parser are
// converted into errors so a broken grammar never reaches the caller.
func (c *Chunker) structural(ctx context.Context, lang *language, content, filePath string) (chunks []types.Chunk, err error) {
	defer func() {
		if r := recover(); r != nil {
			chunks = nil
			err = fmt.Errorf("%s parser panic: %v", lang.name, r)
		}
	}()

	src := []byte(content)
	root, err := lang.parse(ctx, src)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, nil
	}

	w := &treeWalker{
		src:       src,
		filePath:  filePath,
		chunkable: lang.chunkable,
		maxLines:  c.maxLines,
	}

	chunks, keepWhole := w.descend(root)
	if len(chunks) == 0 && keepWhole {
		chunks = w.emit(nil, root)
	}

	return chunks, nil
}

// treeWalker turns a syntax tree into chunks, preferring the smallest chunkable units
type treeWalker struct {
	src       []byte
	filePath  string
	chunkable map[string]bool
	maxLines  int
}

// descend returns the chunks found at or below n, and whether n itself should be
// kept whole when nothing smaller could be chunked.
func (w *treeWalker) descend(n *node) ([]types.Chunk, bool) {
	chunkable := w.chunkable[n.kind]
	if chunkable && n.lineSpan() < w.maxLines {
		return w.emit(nil, n), false
	}

	var chunks []types.Chunk
	for _, child := range n.children {
		sub, keepWhole := w.descend(child)
		if len(sub) == 0 && keepWhole {
			chunks = w.emit(chunks, child)
			continue
		}
		chunks = append(chunks, sub...)
	}

	return chunks, chunkable
}

func (w *treeWalker) emit(chunks []types.Chunk, n *node) []types.Chunk {
	if n.startByte < 0 || n.endByte > len(w.src) || n.startByte >= n.endByte {
		return chunks
	}

	content := string(w.src[n.startByte:n.endByte])
	if strings.TrimSpace(content) == "" {
		return chunks
	}

	return append(chunks, types.Chunk{
		FilePath:  w.filePath,
		StartLine: n.startRow + 1,
		EndLine:   n.endRow + 1,
		Content:   content,
	})
}
