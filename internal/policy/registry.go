// Package policy loads and matches the governance rule set: a YAML base
// policy file merged with DB-managed dynamic policies, cached with a short
// TTL, and matched against incoming actions via a bounded regex cache.
package policy

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/ocx/backend/internal/govtypes"
)

const (
	maxRegexCacheSize = 500
	regexEvictBatch   = 100
	defaultTTL        = 10 * time.Second
)

// DynamicPolicySource supplies the DB-managed policy set. govstore.Store
// satisfies this with its DynamicPolicies method.
type DynamicPolicySource interface {
	DynamicPolicies(ctx context.Context) ([]govtypes.Policy, error)
}

type basePolicyFile struct {
	Policies []govtypes.Policy `yaml:"policies"`
}

// Registry holds the merged base+dynamic policy list behind a TTL cache and
// a bounded compiled-regex cache shared across all match calls.
type Registry struct {
	mu   sync.RWMutex
	ttl  time.Duration
	last time.Time
	list []govtypes.Policy

	basePolicies []govtypes.Policy
	source       DynamicPolicySource

	regexMu    sync.Mutex
	regexCache map[string]*regexp.Regexp // nil value = known-bad pattern
	regexOrder []string

	logger *slog.Logger
}

// NewRegistry loads base policies from path and wires a dynamic source.
// A load failure for the base file is logged and treated as an empty set,
// matching the fail-open posture of the rest of the pipeline's ambient I/O.
func NewRegistry(basePath string, source DynamicPolicySource) *Registry {
	r := &Registry{
		ttl:        defaultTTL,
		source:     source,
		regexCache: make(map[string]*regexp.Regexp),
		logger:     slog.Default().With("component", "policy.registry"),
	}

	base, err := loadBasePolicies(basePath)
	if err != nil {
		r.logger.Warn("failed to load base policies, starting with none", "path", basePath, "error", err)
	}
	r.basePolicies = base
	return r
}

func loadBasePolicies(path string) ([]govtypes.Policy, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var file basePolicyFile
	if err := yaml.NewDecoder(f).Decode(&file); err != nil {
		return nil, fmt.Errorf("decode base policies: %w", err)
	}
	for i := range file.Policies {
		file.Policies[i].IsActive = true
		file.Policies[i].Source = "base"
	}
	return file.Policies, nil
}

// All returns the merged base+dynamic policy list, refreshing from the
// dynamic source if the TTL has elapsed.
func (r *Registry) All(ctx context.Context) []govtypes.Policy {
	r.mu.RLock()
	stale := time.Since(r.last) > r.ttl
	cached := r.list
	r.mu.RUnlock()

	if !stale && cached != nil {
		return cached
	}

	var dynamic []govtypes.Policy
	if r.source != nil {
		var err error
		dynamic, err = r.source.DynamicPolicies(ctx)
		if err != nil {
			r.logger.Warn("failed to load dynamic policies, using base only", "error", err)
		}
	}

	merged := make([]govtypes.Policy, 0, len(r.basePolicies)+len(dynamic))
	merged = append(merged, r.basePolicies...)
	merged = append(merged, dynamic...)

	r.mu.Lock()
	r.list = merged
	r.last = time.Now()
	r.mu.Unlock()

	return merged
}

// Invalidate forces the next All() call to reload dynamic policies. It is
// lazy: it only resets the cache timestamp rather than clearing the list,
// so a concurrent reader never sees an empty policy set.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = time.Time{}
}

// Matches reports whether policy p applies to the given action. Semantics:
//   - Match.Tool, if set, must equal the action's tool exactly.
//   - Match.URLRegex only applies when tool == "http_request", searched
//     against args["url"].
//   - Match.ArgsRegex is searched against a flattened, lowercased
//     "<tool> <args> <context>" payload.
//   - A policy with none of the three conditions set matches everything.
func (r *Registry) Matches(p govtypes.Policy, req govtypes.ActionRequest) bool {
	if p.Match.Tool != "" && p.Match.Tool != req.Tool {
		return false
	}

	if p.Match.URLRegex != "" && req.Tool == "http_request" {
		url, _ := req.Args["url"].(string)
		re := r.compile(p.Match.URLRegex)
		if re == nil || !re.MatchString(url) {
			return false
		}
	}

	if p.Match.ArgsRegex != "" {
		re := r.compile(p.Match.ArgsRegex)
		if re == nil || !re.MatchString(flattenLower(req)) {
			return false
		}
	}

	return true
}

// compile returns a cached compiled regex, caching compile failures as nil
// so repeat use of a bad pattern is free and always fails to match. The
// cache evicts the oldest ~20% of entries (insertion order, not true LRU)
// once it exceeds maxRegexCacheSize.
func (r *Registry) compile(pattern string) *regexp.Regexp {
	r.regexMu.Lock()
	defer r.regexMu.Unlock()

	if re, ok := r.regexCache[pattern]; ok {
		return re
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		r.logger.Warn("invalid policy regex, caching as non-matching", "pattern", pattern, "error", err)
		re = nil
	}

	r.regexCache[pattern] = re
	r.regexOrder = append(r.regexOrder, pattern)

	if len(r.regexOrder) > maxRegexCacheSize {
		evict := r.regexOrder[:regexEvictBatch]
		r.regexOrder = r.regexOrder[regexEvictBatch:]
		for _, k := range evict {
			delete(r.regexCache, k)
		}
	}

	return re
}

// flattenLower joins tool, args, and context into one lowercase string for
// args_regex matching. Mirrors the original pipeline's flatten semantics.
func flattenLower(req govtypes.ActionRequest) string {
	var b strings.Builder
	b.WriteString(req.Tool)
	b.WriteByte(' ')
	fmt.Fprintf(&b, "%v", req.Args)
	b.WriteByte(' ')
	fmt.Fprintf(&b, "%v", req.Context)
	return strings.ToLower(b.String())
}
