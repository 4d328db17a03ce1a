package retriever

import (
	"sort"
	"strings"

	"campus-assistant-be/internal/pkg/logger"
	"campus-assistant-be/pkg/knowledge"
	"campus-assistant-be/pkg/rag/prompt"
)

// DefaultMaxChunks bounds how much reference text goes into a prompt.
const DefaultMaxChunks = 2

const logModule = "RETRIEVER"

// ScoredChunk pairs a chunk with its keyword hit count for one retrieval.
type ScoredChunk struct {
	Chunk knowledge.Chunk
	Score int
}

// Retriever scores knowledge chunks against a question by keyword hits.
type Retriever struct {
	index     *knowledge.Index
	maxChunks int
	logger    logger.ILogger
}

func NewRetriever(index *knowledge.Index, maxChunks int, log logger.ILogger) *Retriever {
	if maxChunks <= 0 {
		maxChunks = DefaultMaxChunks
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	if !index.Loaded() {
		log.Warn(logModule, "knowledge base unavailable, retrieval disabled", map[string]interface{}{
			"error": errString(index.Err()),
		})
	} else {
		log.Info(logModule, "knowledge base loaded", map[string]interface{}{
			"chunks":             index.Len(),
			"skipped_duplicates": index.SkippedDuplicates(),
		})
	}
	return &Retriever{index: index, maxChunks: maxChunks, logger: log}
}

// Score returns every chunk with at least one keyword hit, best first.
// Ties keep index order.
func (r *Retriever) Score(question string) []ScoredChunk {
	chunks := r.index.Chunks()
	if len(chunks) == 0 {
		return nil
	}

	questionLower := strings.ToLower(question)
	scored := make([]ScoredChunk, 0, len(chunks))
	for _, c := range chunks {
		score := 0
		for _, kw := range c.Keywords {
			if kw == "" {
				continue
			}
			if strings.Contains(questionLower, strings.ToLower(kw)) {
				score++
			}
		}
		if score > 0 {
			scored = append(scored, ScoredChunk{Chunk: c, Score: score})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	return scored
}

// Retrieve returns the contents of at most maxChunks best-scoring chunks.
// maxChunks <= 0 uses the retriever's configured cap.
func (r *Retriever) Retrieve(question string, maxChunks int) []string {
	if maxChunks <= 0 {
		maxChunks = r.maxChunks
	}

	scored := r.Score(question)
	if len(scored) > maxChunks {
		scored = scored[:maxChunks]
	}

	if len(scored) == 0 {
		r.logger.Debug(logModule, "no knowledge matched", map[string]interface{}{
			"question": truncate(question, 30),
		})
		return []string{}
	}

	ids := make([]string, 0, len(scored))
	contents := make([]string, 0, len(scored))
	for _, s := range scored {
		ids = append(ids, s.Chunk.ID)
		contents = append(contents, s.Chunk.Content)
	}
	r.logger.Info(logModule, "knowledge matched", map[string]interface{}{
		"question": truncate(question, 30),
		"chunks":   ids,
	})
	return contents
}

// ComposeContextPrompt wraps the retrieved references and the question in the
// answering template, without conversation history.
func (r *Retriever) ComposeContextPrompt(question string) string {
	return prompt.NewContextualBuilder("", r.Retrieve(question, r.maxChunks), question).Build()
}

func (r *Retriever) MaxChunks() int { return r.maxChunks }

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
