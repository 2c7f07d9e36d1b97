package storage

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/flexpertsdev/flexios-v1/internal/models"
)

// Search performs FTS5 full-text search across document keys and content.
// Results are ordered by relevance. A query made of plain words keeps the
// FTS5 query syntax; anything else is matched as a phrase.
func (s *Store) Search(ctx context.Context, query string) ([]models.Document, error) {
	match, ok := matchExpr(query)
	if !ok {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT d.key, d.content FROM documents d
		 JOIN documents_fts ON documents_fts.rowid = d.rowid
		 WHERE documents_fts MATCH ?
		 ORDER BY documents_fts.rank`,
		match,
	)
	if err != nil {
		return nil, fmt.Errorf("search documents fts: %w", err)
	}
	return scanDocuments(rows)
}

// matchExpr turns query into an FTS5 expression. It returns false if the
// query has no searchable tokens.
func matchExpr(query string) (string, bool) {
	if !strings.ContainsFunc(query, isTokenRune) {
		return "", false
	}
	if !plainQuery(query) {
		// Keys like features/1 and stray quotes are FTS5 syntax errors
		// as barewords.
		return `"` + strings.ReplaceAll(query, `"`, `""`) + `"`, true
	}
	return query, true
}

// plainQuery reports whether query only holds words, AND/OR/NOT and prefix
// stars.
func plainQuery(query string) bool {
	prev := ' '
	for _, r := range query {
		switch {
		case isTokenRune(r), unicode.IsSpace(r):
		case r == '*' && isTokenRune(prev):
		default:
			return false
		}
		prev = r
	}
	return true
}

func isTokenRune(r rune) bool {
	return r == '_' || r > unicode.MaxASCII || unicode.IsLetter(r) || unicode.IsDigit(r)
}
