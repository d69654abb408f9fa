package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/dotwork/issuegraph/internal/storage"
	"github.com/dotwork/issuegraph/internal/types"
)

// MaxQueryLength and maxOrTerms bound the search pipeline (spec §4.10).
const (
	MaxQueryLength = 500
	maxOrTerms     = 10
)

var (
	simpleQueryPattern = regexp.MustCompile(`^[A-Za-z0-9_\-. ]*$`)
	controlPattern     = regexp.MustCompile(`(?i)\*|NEAR|:|\\|(^|\s)-`)
	wordPattern        = regexp.MustCompile(`[A-Za-z0-9_]+`)
)

// SearchService validates and executes full-text queries, scoped
// through a ScopeCache, and renders highlighted snippets (spec §4.10).
type SearchService struct {
	store      storage.Store
	scopeCache *ScopeCache
}

func NewSearchService(store storage.Store, scopeCache *ScopeCache) *SearchService {
	return &SearchService{store: store, scopeCache: scopeCache}
}

// SearchOptions carries the query pipeline's opt-ins and the scope to
// filter results through.
type SearchOptions struct {
	AdvancedMode bool
	Scope        types.ScopeFilter
	UseScopeCache bool
	Filter       types.IssueFilter
	ListOptions  types.ListOptions
}

// SearchResult pairs a matched issue with its rendered snippet.
type SearchResult struct {
	Issue   *types.Issue
	Snippet string
}

// Search runs the four-step validation pipeline, executes the query
// through MATCH ? (never interpolated), filters through scope, and
// renders snippets.
func (s *SearchService) Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error) {
	if err := validateQuery(query, opts.AdvancedMode); err != nil {
		return nil, err
	}

	issues, err := s.store.Issues().Search(ctx, query, opts.Filter, opts.ListOptions.Normalize())
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	sets, err := s.scopeCache.Resolve(ctx, opts.Scope, opts.UseScopeCache)
	if err != nil {
		return nil, fmt.Errorf("resolve scope: %w", err)
	}

	terms := queryTerms(query)
	highlighter := highlightPattern(terms)

	results := make([]SearchResult, 0, len(issues))
	for _, issue := range issues {
		if !sets.Matches(issue) {
			continue
		}
		results = append(results, SearchResult{Issue: issue, Snippet: snippet(issue.SearchText(), highlighter)})
	}
	return results, nil
}

// validateQuery implements steps 1-4 of the query pipeline.
func validateQuery(query string, advanced bool) error {
	if len(query) > MaxQueryLength {
		return types.NewInvalidQueryError(fmt.Sprintf("query exceeds %d characters", MaxQueryLength))
	}
	if strings.TrimSpace(query) == "" {
		return types.NewInvalidQueryError("query must not be empty")
	}

	if !advanced {
		if controlPattern.MatchString(query) {
			return types.NewInvalidQueryError("FTS control syntax requires advanced mode")
		}
		if !simpleQueryPattern.MatchString(query) {
			return types.NewInvalidQueryError("query contains characters outside the allowed simple-mode set")
		}
	} else {
		if err := checkBalanced(query); err != nil {
			return err
		}
	}

	if orCount(query) > maxOrTerms {
		return types.NewInvalidQueryError(fmt.Sprintf("query exceeds %d OR-equivalent terms", maxOrTerms))
	}
	return nil
}

func orCount(query string) int {
	terms := queryTerms(query)
	if len(terms) == 0 {
		return 0
	}
	return len(terms) - 1
}

func queryTerms(query string) []string {
	return wordPattern.FindAllString(query, -1)
}

// checkBalanced validates parentheses and quotes are balanced, the
// bound advanced mode still enforces (spec §4.10 step 4).
func checkBalanced(query string) error {
	depth := 0
	inQuote := false
	for _, r := range query {
		switch r {
		case '"':
			inQuote = !inQuote
		case '(':
			if !inQuote {
				depth++
			}
		case ')':
			if !inQuote {
				depth--
				if depth < 0 {
					return types.NewInvalidQueryError("unbalanced parentheses")
				}
			}
		}
	}
	if depth != 0 {
		return types.NewInvalidQueryError("unbalanced parentheses")
	}
	if inQuote {
		return types.NewInvalidQueryError("unbalanced quotes")
	}
	return nil
}

// highlightPattern compiles one alternation regex for every query
// term, used to highlight all hits in a single pass per snippet.
func highlightPattern(terms []string) *regexp.Regexp {
	if len(terms) == 0 {
		return nil
	}
	escaped := make([]string, len(terms))
	for i, t := range terms {
		escaped[i] = regexp.QuoteMeta(t)
	}
	return regexp.MustCompile(`(?i)` + strings.Join(escaped, "|"))
}

const snippetWindow = 40
const maxSnippetHits = 3

// snippet builds the rendered excerpt: up to maxSnippetHits windows of
// snippetWindow characters of context around each regex hit, with every
// hit inside a window wrapped in ** markers, joined once at the end
// rather than via repeated concatenation.
func snippet(text string, highlighter *regexp.Regexp) string {
	if highlighter == nil {
		return truncate(text, snippetWindow*2)
	}
	matches := highlighter.FindAllStringIndex(text, maxSnippetHits)
	if len(matches) == 0 {
		return truncate(text, snippetWindow*2)
	}

	parts := make([]string, 0, len(matches))
	for _, m := range matches {
		start := m[0] - snippetWindow
		if start < 0 {
			start = 0
		}
		end := m[1] + snippetWindow
		if end > len(text) {
			end = len(text)
		}
		parts = append(parts, strings.TrimSpace(highlighter.ReplaceAllString(text[start:end], "**${0}**")))
	}
	return strings.Join(parts, " … ")
}

func truncate(text string, n int) string {
	if len(text) <= n {
		return text
	}
	return strings.TrimSpace(text[:n]) + "…"
}
