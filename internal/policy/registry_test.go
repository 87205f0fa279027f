package policy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/backend/internal/govtypes"
)

type stubDynamicSource struct {
	policies []govtypes.Policy
	err      error
}

func (s stubDynamicSource) DynamicPolicies(ctx context.Context) ([]govtypes.Policy, error) {
	return s.policies, s.err
}

func TestNewRegistry_MissingBaseFileStartsEmpty(t *testing.T) {
	r := NewRegistry("/nonexistent/base_policies.yaml", stubDynamicSource{})
	all := r.All(context.Background())
	assert.Empty(t, all)
}

func TestRegistry_AllMergesBaseAndDynamic(t *testing.T) {
	source := stubDynamicSource{policies: []govtypes.Policy{{PolicyID: "dyn-1", IsActive: true}}}
	r := NewRegistry("/nonexistent/base_policies.yaml", source)

	all := r.All(context.Background())
	require.Len(t, all, 1)
	assert.Equal(t, "dyn-1", all[0].PolicyID)
}

func TestRegistry_AllFallsBackToCacheOnDynamicSourceError(t *testing.T) {
	source := stubDynamicSource{err: errors.New("db unreachable")}
	r := NewRegistry("/nonexistent/base_policies.yaml", source)

	all := r.All(context.Background())
	assert.Empty(t, all)
}

func TestRegistry_Matches_ByTool(t *testing.T) {
	r := NewRegistry("/nonexistent/base_policies.yaml", stubDynamicSource{})

	p := govtypes.Policy{Match: govtypes.PolicyMatch{Tool: "send_email"}}
	assert.True(t, r.Matches(p, govtypes.ActionRequest{Tool: "send_email"}))
	assert.False(t, r.Matches(p, govtypes.ActionRequest{Tool: "read_file"}))
}

func TestRegistry_Matches_ByURLRegexOnlyForHTTPRequest(t *testing.T) {
	r := NewRegistry("/nonexistent/base_policies.yaml", stubDynamicSource{})

	p := govtypes.Policy{Match: govtypes.PolicyMatch{URLRegex: `\.internal\b`}}
	assert.True(t, r.Matches(p, govtypes.ActionRequest{
		Tool: "http_request",
		Args: map[string]interface{}{"url": "http://db.internal/admin"},
	}))
	assert.False(t, r.Matches(p, govtypes.ActionRequest{
		Tool: "http_request",
		Args: map[string]interface{}{"url": "http://example.com"},
	}))
	// URL regex is ignored for any other tool.
	assert.True(t, r.Matches(p, govtypes.ActionRequest{Tool: "read_file"}))
}

func TestRegistry_Matches_ByArgsRegexIsCaseInsensitive(t *testing.T) {
	r := NewRegistry("/nonexistent/base_policies.yaml", stubDynamicSource{})

	p := govtypes.Policy{Match: govtypes.PolicyMatch{ArgsRegex: `drop table`}}
	assert.True(t, r.Matches(p, govtypes.ActionRequest{
		Tool: "run_sql",
		Args: map[string]interface{}{"query": "DROP TABLE users"},
	}))
}

func TestRegistry_Matches_InvalidRegexNeverMatches(t *testing.T) {
	r := NewRegistry("/nonexistent/base_policies.yaml", stubDynamicSource{})

	p := govtypes.Policy{Match: govtypes.PolicyMatch{ArgsRegex: `(unterminated`}}
	assert.False(t, r.Matches(p, govtypes.ActionRequest{Tool: "run_sql", Args: map[string]interface{}{"query": "x"}}))
}

func TestRegistry_Invalidate_ForcesReload(t *testing.T) {
	source := &mutableDynamicSource{}
	r := NewRegistry("/nonexistent/base_policies.yaml", source)

	first := r.All(context.Background())
	assert.Empty(t, first)

	source.policies = []govtypes.Policy{{PolicyID: "dyn-2"}}
	r.Invalidate()

	second := r.All(context.Background())
	require.Len(t, second, 1)
	assert.Equal(t, "dyn-2", second[0].PolicyID)
}

type mutableDynamicSource struct {
	policies []govtypes.Policy
}

func (m *mutableDynamicSource) DynamicPolicies(ctx context.Context) ([]govtypes.Policy, error) {
	return m.policies, nil
}
