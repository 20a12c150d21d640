package tspool

import (
	"fmt"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/specvital/lwctest/pkg/domain"
)

// Match maps capture names of one query match to their nodes.
type Match map[string]*sitter.Node

type compiledQuery struct {
	once  sync.Once
	query *sitter.Query
	err   error
}

// queries holds compiled queries per language and source. Compiled queries are
// shared and never closed.
var queries = struct {
	mu sync.Mutex
	m  map[string]*compiledQuery
}{m: make(map[string]*compiledQuery)}

func compile(lang domain.Language, src string) (*sitter.Query, error) {
	key := string(lang) + "\x00" + src

	queries.mu.Lock()
	q, ok := queries.m[key]
	if !ok {
		q = &compiledQuery{}
		queries.m[key] = q
	}
	queries.mu.Unlock()

	q.once.Do(func() {
		q.query, q.err = sitter.NewQuery([]byte(src), GetLanguage(lang))
	})
	return q.query, q.err
}

// Captures runs query src below root and returns one Match per query match.
func Captures(root *sitter.Node, lang domain.Language, src string) ([]Match, error) {
	query, err := compile(lang, src)
	if err != nil {
		return nil, fmt.Errorf("tspool: compile query: %w", err)
	}

	cursor := sitter.NewQueryCursor()
	defer cursor.Close()
	cursor.Exec(query, root)

	var matches []Match
	for {
		qm, ok := cursor.NextMatch()
		if !ok {
			return matches, nil
		}
		m := make(Match, len(qm.Captures))
		for _, c := range qm.Captures {
			m[query.CaptureNameForId(c.Index)] = c.Node
		}
		matches = append(matches, m)
	}
}
