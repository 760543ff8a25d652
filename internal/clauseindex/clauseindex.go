// Package clauseindex maps a normalized citation string — "Section 45",
// "GO Ms No 112", "Article 14" — to the chunk IDs that contain it, so the
// engine can short-circuit the full retrieval pipeline for a citation-only
// query (spec.md's clause/citation fast-path).
package clauseindex

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite" // pure-Go driver, no CGO

	"github.com/nithin8919/policyretrieval/internal/rerrors"
)

// DefaultCacheSize bounds the in-memory LRU in front of SQLite.
const DefaultCacheSize = 512

// citationPatterns recognize the citation forms spec.md's fast-path
// triggers on. Each has exactly one capture group: the normalized key.
var citationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bsection\s+(\d+[a-z]?)\b`),
	regexp.MustCompile(`(?i)\bsec\.?\s+(\d+[a-z]?)\b`),
	regexp.MustCompile(`(?i)\barticle\s+(\d+[a-z]?)\b`),
	regexp.MustCompile(`(?i)\bg\.?o\.?\s*ms\.?\s*no\.?\s*(\d+)\b`),
	regexp.MustCompile(`(?i)\bg\.?o\.?\s*(?:rt\.?)?\s*(?:no\.?)?\s*(\d+)\b`),
	regexp.MustCompile(`(?i)\brule\s+(\d+[a-z]?)\b`),
}

// citationPrefixes pairs each pattern above with the normalized key prefix
// it produces, so "Section 45" and "Sec. 45" collapse to the same key.
var citationPrefixes = []string{
	"section:", "section:", "article:", "go:", "go:", "rule:",
}

// ExtractCitations scans query text and returns every normalized citation
// key found (e.g. "section:45", "go:112"). Used by the interpreter to
// populate QueryInterpretation.Entities and by the engine to decide
// whether the fast-path applies.
func ExtractCitations(text string) []string {
	var found []string
	seen := make(map[string]bool)

	for i, pattern := range citationPatterns {
		for _, m := range pattern.FindAllStringSubmatch(text, -1) {
			key := citationPrefixes[i] + strings.ToLower(m[1])
			if !seen[key] {
				seen[key] = true
				found = append(found, key)
			}
		}
	}
	return found
}

// Index maps normalized citation keys to chunk IDs. Reads are LRU-cached;
// the backing SQLite table is populated by the offline ingestion pipeline
// (out of scope here); this type only reads it on the query path, and
// writes to it only through Put.
type Index struct {
	mu    sync.RWMutex
	db    *sql.DB
	cache *lru.Cache[string, []string]
}

// Open opens (or creates) the clause index database at path. An empty path
// creates an in-memory index, used in tests.
func Open(path string) (*Index, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create clause index directory: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open clause index: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("init clause index schema: %w", err)
	}

	cache, _ := lru.New[string, []string](DefaultCacheSize)
	return &Index{db: db, cache: cache}, nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS clause_chunks (
	citation_key TEXT NOT NULL,
	chunk_id     TEXT NOT NULL,
	PRIMARY KEY (citation_key, chunk_id)
);
CREATE INDEX IF NOT EXISTS idx_clause_chunks_key ON clause_chunks(citation_key);
`

// Put associates a citation key with a chunk ID. Bootstrap/fixture
// plumbing, not a query-path operation.
func (idx *Index) Put(ctx context.Context, citationKey, chunkID string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	_, err := idx.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO clause_chunks (citation_key, chunk_id) VALUES (?, ?)`,
		citationKey, chunkID)
	if err != nil {
		return fmt.Errorf("put clause mapping: %w", err)
	}
	idx.cache.Remove(citationKey)
	return nil
}

// Lookup returns the chunk IDs registered for citationKey, consulting the
// LRU cache before SQLite.
func (idx *Index) Lookup(ctx context.Context, citationKey string) ([]string, error) {
	if ids, ok := idx.cache.Get(citationKey); ok {
		return ids, nil
	}

	idx.mu.RLock()
	rows, err := idx.db.QueryContext(ctx,
		`SELECT chunk_id FROM clause_chunks WHERE citation_key = ?`, citationKey)
	idx.mu.RUnlock()
	if err != nil {
		return nil, rerrors.Wrap(rerrors.CategoryIndexError, "clauseindex", "lookup failed", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan clause row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	idx.cache.Add(citationKey, ids)
	return ids, nil
}

// LookupAll resolves every citation key found in text, deduping chunk IDs
// across keys and preserving first-seen order — used by the engine's
// fast-path to answer a pure-citation query without running the full
// hybrid pipeline.
func (idx *Index) LookupAll(ctx context.Context, text string) ([]string, error) {
	keys := ExtractCitations(text)
	if len(keys) == 0 {
		return nil, nil
	}

	seen := make(map[string]bool)
	var chunkIDs []string
	for _, key := range keys {
		ids, err := idx.Lookup(ctx, key)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				chunkIDs = append(chunkIDs, id)
			}
		}
	}
	return chunkIDs, nil
}

// Close releases the database handle.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.db.Close()
}
