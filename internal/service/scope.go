package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dotwork/issuegraph/internal/storage"
	"github.com/dotwork/issuegraph/internal/types"
)

// scopeTTL is the cache lifetime for a resolved scope (spec §4.11).
const scopeTTL = 60 * time.Second

// scopeSets is the precomputed membership information node_matches_scope
// checks against. A nil projectIDs or excludedByID map means
// "unconstrained" for that axis; includedByID is consulted only when
// hasTopicFilter is set.
type scopeSets struct {
	projectIDs     map[types.ID]bool // nil means "no project constraint"
	includedByID   map[types.ID]bool // issues matching at least one topic label
	excludedByID   map[types.ID]bool // issues matching at least one exclude-topic label
	hasTopicFilter bool
}

// ScopeCache resolves a ScopeFilter into membership sets with a
// process-local, lock-guarded, 60-second-TTL cache keyed by the
// canonicalized filter (spec §4.11).
type ScopeCache struct {
	store storage.Store

	mu      sync.RWMutex
	entries map[string]scopeCacheEntry
}

type scopeCacheEntry struct {
	sets      scopeSets
	expiresAt time.Time
}

func NewScopeCache(store storage.Store) *ScopeCache {
	return &ScopeCache{store: store, entries: make(map[string]scopeCacheEntry)}
}

// canonicalKey sorts topic/exclude-topic lists so filters differing
// only in slice order hit the same cache entry.
func canonicalKey(filter types.ScopeFilter) string {
	topics := append([]string(nil), filter.Topics...)
	excludes := append([]string(nil), filter.ExcludeTopics...)
	sort.Strings(topics)
	sort.Strings(excludes)
	project := ""
	if filter.Project != nil {
		project = *filter.Project
	}
	return fmt.Sprintf("p=%s|t=%s|x=%s|s=%t", project, strings.Join(topics, ","), strings.Join(excludes, ","), filter.IncludeShared)
}

// Resolve returns the membership sets for filter, consulting (and
// populating) the cache unless useCache is false.
func (c *ScopeCache) Resolve(ctx context.Context, filter types.ScopeFilter, useCache bool) (scopeSets, error) {
	key := canonicalKey(filter)

	if useCache {
		c.mu.RLock()
		entry, ok := c.entries[key]
		c.mu.RUnlock()
		if ok && time.Now().Before(entry.expiresAt) {
			return entry.sets, nil
		}
	}

	sets, err := c.buildScopeSets(ctx, filter)
	if err != nil {
		return scopeSets{}, err
	}

	if useCache {
		c.mu.Lock()
		c.entries[key] = scopeCacheEntry{sets: sets, expiresAt: time.Now().Add(scopeTTL)}
		c.mu.Unlock()
	}
	return sets, nil
}

// Invalidate drops every cached entry, used when the underlying store
// file changes out from under the process (the fsnotify watcher started
// by App.watchDir in issuegraph.go calls this).
func (c *ScopeCache) Invalidate() {
	c.mu.Lock()
	c.entries = make(map[string]scopeCacheEntry)
	c.mu.Unlock()
}

// buildScopeSets precomputes membership with one query for the
// project's own issue set (if constrained) and one query per topic and
// per exclude-topic label, using the store's label filter rather than
// scanning.
func (c *ScopeCache) buildScopeSets(ctx context.Context, filter types.ScopeFilter) (scopeSets, error) {
	sets := scopeSets{}

	if filter.Project != nil {
		project, err := c.store.Projects().GetByName(ctx, *filter.Project)
		if err != nil {
			return scopeSets{}, fmt.Errorf("resolve scope project %q: %w", *filter.Project, err)
		}
		pid := project.ID
		issues, err := c.store.Issues().List(ctx, types.IssueFilter{ProjectID: &pid}, types.ListOptions{Limit: types.MaxListLimit})
		if err != nil {
			return scopeSets{}, fmt.Errorf("load scope project issues: %w", err)
		}
		sets.projectIDs = make(map[types.ID]bool, len(issues))
		for _, issue := range issues {
			sets.projectIDs[issue.ID] = true
		}
	}

	if len(filter.Topics) > 0 {
		sets.hasTopicFilter = true
		sets.includedByID = make(map[types.ID]bool)
		for _, topic := range filter.Topics {
			label := topic
			issues, err := c.store.Issues().List(ctx, types.IssueFilter{Label: &label}, types.ListOptions{Limit: types.MaxListLimit})
			if err != nil {
				return scopeSets{}, fmt.Errorf("load scope topic %q: %w", topic, err)
			}
			for _, issue := range issues {
				sets.includedByID[issue.ID] = true
			}
		}
	}

	if len(filter.ExcludeTopics) > 0 {
		sets.excludedByID = make(map[types.ID]bool)
		for _, topic := range filter.ExcludeTopics {
			label := topic
			issues, err := c.store.Issues().List(ctx, types.IssueFilter{Label: &label}, types.ListOptions{Limit: types.MaxListLimit})
			if err != nil {
				return scopeSets{}, fmt.Errorf("load scope exclude-topic %q: %w", topic, err)
			}
			for _, issue := range issues {
				sets.excludedByID[issue.ID] = true
			}
		}
	}

	return sets, nil
}

// Matches is the pure predicate node_matches_scope: it consults only
// the precomputed sets, never the store.
func (s scopeSets) Matches(issue *types.Issue) bool {
	if s.projectIDs != nil && !s.projectIDs[issue.ID] {
		return false
	}
	if s.hasTopicFilter && !s.includedByID[issue.ID] {
		return false
	}
	if s.excludedByID != nil && s.excludedByID[issue.ID] {
		return false
	}
	return true
}
