package knowledge

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"agentgate/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps documents and their chunks in a single SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := runMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return &SQLiteStore{db: db, logger: logger}, nil
}

// AddDocument replaces any previous copy of the document and its chunks.
func (s *SQLiteStore) AddDocument(ctx context.Context, doc domain.Document, chunks []domain.DocumentChunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM document_chunks WHERE document_id = ?", doc.ID); err != nil {
		return fmt.Errorf("clear chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO documents (id, name, mime_type, size, chunk_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Name, doc.MimeType, doc.Size, doc.ChunkCount, doc.CreatedAt.Unix(),
	); err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	for _, c := range chunks {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO document_chunks (id, document_id, chunk_index, content, tokens) VALUES (?, ?, ?, ?, ?)",
			c.ID, c.DocumentID, c.ChunkIndex, c.Content, c.TokenCount,
		); err != nil {
			return fmt.Errorf("insert chunk %d: %w", c.ChunkIndex, err)
		}
	}
	return tx.Commit()
}

// SearchKnowledge ranks chunks by how many distinct query terms they contain.
func (s *SQLiteStore) SearchKnowledge(ctx context.Context, query string, topK int) ([]domain.KnowledgeSearchResult, error) {
	terms := queryTerms(query)
	if len(terms) == 0 {
		return nil, nil
	}

	var score strings.Builder
	args := make([]any, 0, len(terms)+1)
	for i, t := range terms {
		if i > 0 {
			score.WriteString(" + ")
		}
		score.WriteString(`(CASE WHEN lower(c.content) LIKE ? ESCAPE '\' THEN 1 ELSE 0 END)`)
		args = append(args, "%"+escapeLike(t)+"%")
	}
	args = append(args, topK)

	q := fmt.Sprintf(`
		SELECT * FROM (
			SELECT c.id, c.document_id, c.chunk_index, c.content, c.tokens, d.name, (%s) AS score
			FROM document_chunks c JOIN documents d ON d.id = c.document_id
		) WHERE score > 0
		ORDER BY score DESC, chunk_index ASC
		LIMIT ?`, score.String())

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("search knowledge: %w", err)
	}
	defer rows.Close()

	var results []domain.KnowledgeSearchResult
	for rows.Next() {
		var r domain.KnowledgeSearchResult
		var hits int
		if err := rows.Scan(&r.Chunk.ID, &r.Chunk.DocumentID, &r.Chunk.ChunkIndex,
			&r.Chunk.Content, &r.Chunk.TokenCount, &r.DocName, &hits); err != nil {
			return nil, err
		}
		r.Score = float64(hits) / float64(len(terms))
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *SQLiteStore) ListDocuments(ctx context.Context) ([]domain.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, mime_type, size, chunk_count, created_at FROM documents ORDER BY created_at DESC, name ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		var d domain.Document
		var created int64
		if err := rows.Scan(&d.ID, &d.Name, &d.MimeType, &d.Size, &d.ChunkCount, &created); err != nil {
			return nil, err
		}
		d.CreatedAt = time.Unix(created, 0)
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (s *SQLiteStore) DeleteDocument(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM document_chunks WHERE document_id = ?", id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("document %q not found", id)
	}
	return tx.Commit()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "was": true,
	"what": true, "who": true, "how": true, "why": true, "when": true,
	"where": true, "which": true, "you": true, "your": true, "can": true,
	"does": true, "with": true, "this": true, "that": true, "about": true,
	"tell": true, "have": true, "has": true,
}

// queryTerms lowercases the query and keeps distinct words of three or more letters.
func queryTerms(query string) []string {
	words := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(words))
	var terms []string
	for _, w := range words {
		if len([]rune(w)) < 3 || stopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		terms = append(terms, w)
	}
	return terms
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
