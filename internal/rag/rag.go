package rag

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

const (
	collectionName = "kaia_documents"
	dimensionFile  = "embedding_dimension"
	personaPrefix  = "Kaia_Desktop_Persona"
	defaultTopK    = 4
	maxChunkSize   = 1200
)

// ErrUnavailable means the index holds no documents; callers fall back to
// plain persona chat.
var ErrUnavailable = errors.New("knowledge index is not available")

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Streamer interface {
	Stream(ctx context.Context, model, system, user string, onToken func(string)) (string, error)
}

type Index struct {
	db         *chromem.DB
	collection *chromem.Collection
	embedder   Embedder
	llm        Streamer
	chatModel  string
	persona    string
	logger     *zap.Logger
	topK       int
}

// Open opens the persistent vector index, probing the embedding model's
// dimensionality first. A stored collection built with a different
// dimension is deleted and rebuilt; that mismatch is a recognized failure
// mode when the embedding model changes between runs.
func Open(ctx context.Context, path string, embedder Embedder, llm Streamer, chatModel, persona string, logger *zap.Logger) (*Index, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	probe, err := embedder.Embed(ctx, "dimension probe")
	if err != nil {
		return nil, fmt.Errorf("could not probe embedding dimension: %w", err)
	}
	dimension := len(probe)

	if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, fmt.Errorf("could not create index dir: %w", err)
	}

	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, fmt.Errorf("could not open vector index: %w", err)
	}

	embeddingFunc := func(ctx context.Context, text string) ([]float32, error) {
		return embedder.Embed(ctx, text)
	}

	dimensionPath := filepath.Join(path, dimensionFile)
	if stored, readErr := os.ReadFile(dimensionPath); readErr == nil {
		storedDim, _ := strconv.Atoi(strings.TrimSpace(string(stored)))
		if storedDim != 0 && storedDim != dimension {
			logger.Warn("embedding dimension mismatch, rebuilding collection",
				zap.Int("stored", storedDim), zap.Int("current", dimension))
			if err := db.DeleteCollection(collectionName); err != nil {
				return nil, fmt.Errorf("could not delete stale collection: %w", err)
			}
		}
	}

	collection, err := db.GetOrCreateCollection(collectionName, nil, embeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("could not open collection: %w", err)
	}
	if err := os.WriteFile(dimensionPath, []byte(strconv.Itoa(dimension)), 0o600); err != nil {
		return nil, fmt.Errorf("could not record embedding dimension: %w", err)
	}

	return &Index{
		db:         db,
		collection: collection,
		embedder:   embedder,
		llm:        llm,
		chatModel:  chatModel,
		persona:    persona,
		logger:     logger,
		topK:       defaultTopK,
	}, nil
}

func (i *Index) Count() int { return i.collection.Count() }

// Ingest walks the given directories, chunks every txt/md document by
// paragraph, and indexes the chunks. The persona document is excluded so
// identity questions stay with the persona handler. Already-populated
// collections are left alone.
func (i *Index) Ingest(ctx context.Context, dirs []string) (int, error) {
	if i.collection.Count() > 0 {
		return 0, nil
	}

	var docs []chromem.Document
	for _, dir := range dirs {
		files, err := documentFiles(dir)
		if err != nil {
			i.logger.Warn("could not scan knowledge dir", zap.String("dir", dir), zap.Error(err))
			continue
		}
		for _, file := range files {
			content, err := os.ReadFile(file)
			if err != nil {
				i.logger.Warn("skipping unreadable document", zap.String("file", file), zap.Error(err))
				continue
			}
			for n, chunk := range chunkText(string(content)) {
				docs = append(docs, chromem.Document{
					ID:       fmt.Sprintf("%s#%d", file, n),
					Metadata: map[string]string{"source": file},
					Content:  chunk,
				})
			}
		}
	}
	if len(docs) == 0 {
		return 0, nil
	}

	if err := i.collection.AddDocuments(ctx, docs, 1); err != nil {
		return 0, fmt.Errorf("could not index documents: %w", err)
	}
	return len(docs), nil
}

func documentFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		name := entry.Name()
		if strings.HasPrefix(name, personaPrefix) {
			return nil
		}
		switch strings.ToLower(filepath.Ext(name)) {
		case ".txt", ".md":
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// chunkText splits on blank lines and merges adjacent paragraphs up to the
// chunk size so tiny paragraphs don't fragment retrieval.
func chunkText(text string) []string {
	paragraphs := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n")

	var chunks []string
	var current strings.Builder
	for _, paragraph := range paragraphs {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}
		if current.Len() > 0 && current.Len()+len(paragraph) > maxChunkSize {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(paragraph)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

const ragSystemPrompt = `You are Kaia, a helpful and knowledgeable AI assistant. Your responses should be concise and directly answer the user's question. You MUST ONLY use the provided context to answer the question. If the answer is NOT explicitly present in the provided context, you MUST state clearly that you do not have enough information to answer based on the available data. Do NOT invent information or use your general knowledge if it contradicts the context. When providing factual answers from the context, avoid conversational filler, emotional expressions, or persona-driven text. Be direct and to the point. Maintain your core persona: strategic precision, intellectual curiosity, dry, often sarcastic wit.`

// Query retrieves the top-k chunks for a question and streams a grounded
// answer. Tokens reach onToken as they arrive; the full answer is returned
// when the stream ends.
func (i *Index) Query(ctx context.Context, question string, onToken func(string)) (string, error) {
	count := i.collection.Count()
	if count == 0 {
		return "", ErrUnavailable
	}

	topK := i.topK
	if topK > count {
		topK = count
	}
	results, err := i.collection.Query(ctx, question, topK, nil, nil)
	if err != nil {
		return "", fmt.Errorf("could not query knowledge index: %w", err)
	}

	var contextBlock strings.Builder
	for n, result := range results {
		fmt.Fprintf(&contextBlock, "[%d] %s\n\n", n+1, result.Content)
	}

	system := ragSystemPrompt + "\n\nPersona details: " + i.persona
	user := fmt.Sprintf("Context:\n%s\nQuestion: %s", contextBlock.String(), question)

	answer, err := i.llm.Stream(ctx, i.chatModel, system, user, onToken)
	if err != nil {
		return "", fmt.Errorf("could not synthesize answer: %w", err)
	}
	return answer, nil
}
