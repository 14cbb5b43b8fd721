// Package knowledge is the local memory backend: documents are split into
// overlapping word windows, stored in SQLite and ranked by term overlap.
package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"agentgate/internal/domain"
)

// Storer is the persistence the engine needs.
type Storer interface {
	AddDocument(ctx context.Context, doc domain.Document, chunks []domain.DocumentChunk) error
	SearchKnowledge(ctx context.Context, query string, topK int) ([]domain.KnowledgeSearchResult, error)
	ListDocuments(ctx context.Context) ([]domain.Document, error)
	DeleteDocument(ctx context.Context, id string) error
}

type Engine struct {
	store     Storer
	chunkSize int
	overlap   int
	logger    *slog.Logger
	now       func() time.Time
}

type EngineConfig struct {
	Store     Storer
	ChunkSize int // words per chunk (default: 200)
	Overlap   int // words shared by neighbouring chunks (default: 20)
	Logger    *slog.Logger
}

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 200
	}
	if cfg.Overlap < 0 || cfg.Overlap >= cfg.ChunkSize {
		cfg.Overlap = cfg.ChunkSize / 10
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{
		store:     cfg.Store,
		chunkSize: cfg.ChunkSize,
		overlap:   cfg.Overlap,
		logger:    cfg.Logger,
		now:       time.Now,
	}
}

// AddDocument chunks content and stores it under a content-derived id, so
// re-adding the same text replaces the earlier copy.
func (e *Engine) AddDocument(ctx context.Context, name, mimeType, content string) (*domain.Document, error) {
	sum := sha256.Sum256([]byte(content))
	docID := hex.EncodeToString(sum[:8])

	chunks := e.chunkText(content, docID)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("document %q has no text", name)
	}

	doc := domain.Document{
		ID:         docID,
		Name:       name,
		MimeType:   mimeType,
		Size:       int64(len(content)),
		ChunkCount: len(chunks),
		CreatedAt:  e.now(),
	}
	if err := e.store.AddDocument(ctx, doc, chunks); err != nil {
		return nil, fmt.Errorf("store document: %w", err)
	}

	e.logger.Info("document added to knowledge base", "name", name, "chunks", len(chunks), "size", len(content))
	return &doc, nil
}

// Query returns up to topK ranked chunks.
func (e *Engine) Query(ctx context.Context, query string, topK int) ([]domain.KnowledgeSearchResult, error) {
	if topK <= 0 {
		topK = 5
	}
	return e.store.SearchKnowledge(ctx, query, topK)
}

// Search returns the best matching chunk, or "" when nothing matches.
func (e *Engine) Search(ctx context.Context, query string) (string, error) {
	results, err := e.Query(ctx, query, 1)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "", nil
	}
	return results[0].Chunk.Content, nil
}

func (e *Engine) Name() string { return "knowledge" }

func (e *Engine) ListDocuments(ctx context.Context) ([]domain.Document, error) {
	return e.store.ListDocuments(ctx)
}

func (e *Engine) DeleteDocument(ctx context.Context, id string) error {
	return e.store.DeleteDocument(ctx, id)
}

// chunkText cuts text into windows of chunkSize words, each starting
// chunkSize-overlap words after the previous one. The last window may be short.
func (e *Engine) chunkText(text, docID string) []domain.DocumentChunk {
	words := strings.Fields(text)
	stride := max(e.chunkSize-e.overlap, 1)

	var chunks []domain.DocumentChunk
	for start := 0; start < len(words); start += stride {
		window := words[start:min(start+e.chunkSize, len(words))]
		idx := len(chunks)
		chunks = append(chunks, domain.DocumentChunk{
			ID:         docID + "_" + strconv.Itoa(idx),
			DocumentID: docID,
			Content:    strings.Join(window, " "),
			ChunkIndex: idx,
			TokenCount: len(window),
		})
		if start+len(window) == len(words) {
			break
		}
	}
	return chunks
}
