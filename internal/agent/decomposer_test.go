package agent

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/praxis-lab/Polya/go/decomposer/internal/contracts"
	"github.com/praxis-lab/Polya/go/decomposer/internal/decompose"
	"github.com/praxis-lab/Polya/go/decomposer/internal/streaming"
)

type fakeStore struct {
	mu    sync.Mutex
	err   error
	saves int
}

func (f *fakeStore) SaveDecomposition(_ context.Context, _ contracts.DecisionEvent, _ decompose.Result) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	return f.err
}

func (f *fakeStore) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]contracts.SuccessEnvelope
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]contracts.SuccessEnvelope)}
}

func (f *fakeCache) Get(_ context.Context, inputsHash string) (*contracts.SuccessEnvelope, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	env, ok := f.entries[inputsHash]
	if !ok {
		return nil, false
	}
	return &env, true
}

func (f *fakeCache) Set(_ context.Context, inputsHash string, env contracts.SuccessEnvelope) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[inputsHash] = env
}

type fakeGate struct {
	allowed bool
	reason  string
	err     error
}

func (f *fakeGate) Authorize(_ context.Context, _ string, _ contracts.InvocationInput) (bool, string, error) {
	return f.allowed, f.reason, f.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []streaming.Event
}

func (r *recordingPublisher) Publish(_ string, evt streaming.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingPublisher) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func newTestDecomposer(opts ...DecomposerOption) *Decomposer {
	return NewDecomposer(zap.NewNop(), decompose.DefaultOptions, opts...)
}

func intPtr(v int) *int { return &v }

func TestValidateRejectsBadInput(t *testing.T) {
	d := newTestDecomposer()

	cases := []struct {
		name string
		in   contracts.InvocationInput
		want string
	}{
		{"empty objective", contracts.InvocationInput{Objective: "   "}, "objective is required"},
		{"objective too long", contracts.InvocationInput{Objective: string(make([]byte, 10_001))}, "exceeds"},
		{"max_depth negative", contracts.InvocationInput{
			Objective: "build a service",
			Context:   &contracts.InvocationContext{MaxDepth: intPtr(-1)},
		}, "max_depth"},
		{"max_depth too deep", contracts.InvocationInput{
			Objective: "build a service",
			Context:   &contracts.InvocationContext{MaxDepth: intPtr(6)},
		}, "max_depth"},
		{"max_sub_objectives zero", contracts.InvocationInput{
			Objective: "build a service",
			Config:    &contracts.InvocationConfig{MaxSubObjectives: intPtr(0)},
		}, "max_sub_objectives"},
		{"max_sub_objectives over ceiling", contracts.InvocationInput{
			Objective: "build a service",
			Config:    &contracts.InvocationConfig{MaxSubObjectives: intPtr(101)},
		}, "max_sub_objectives"},
		{"unknown granularity", contracts.InvocationInput{
			Objective: "build a service",
			Config:    &contracts.InvocationConfig{TargetGranularity: "microscopic"},
		}, "target_granularity"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := d.Validate(tc.in)
			require.Error(t, err)
			var ae *contracts.AgentError
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, contracts.CodeValidationFailed, ae.Code)
			assert.Contains(t, ae.Message, tc.want)
		})
	}
}

func TestValidateAppliesDefaultsAndOverrides(t *testing.T) {
	d := newTestDecomposer()

	vi, err := d.Validate(contracts.InvocationInput{Objective: "  design the billing pipeline  "})
	require.NoError(t, err)
	v := vi.(*validatedInput)
	assert.Equal(t, "design the billing pipeline", v.input.Objective)
	assert.Equal(t, decompose.DefaultOptions(), v.opts)
	assert.NotEmpty(t, v.inputsHash)

	vi, err = d.Validate(contracts.InvocationInput{
		Objective: "design the billing pipeline",
		Context: &contracts.InvocationContext{
			MaxDepth:    intPtr(1),
			Constraints: []string{"no external queues"},
		},
		Config: &contracts.InvocationConfig{
			MaxSubObjectives:  intPtr(5),
			TargetGranularity: "coarse",
		},
	})
	require.NoError(t, err)
	v = vi.(*validatedInput)
	assert.Equal(t, 1, v.opts.MaxDepth)
	assert.Equal(t, 5, v.opts.MaxSubObjectives)
	assert.True(t, v.actx.HasConstraints)
	assert.True(t, v.actx.HasTargetGranularity)
	assert.Equal(t, []string{"no external queues"}, v.constraints)
}

func TestValidateHashIgnoresSurroundingWhitespace(t *testing.T) {
	d := newTestDecomposer()

	a, err := d.Validate(contracts.InvocationInput{Objective: "build an api"})
	require.NoError(t, err)
	b, err := d.Validate(contracts.InvocationInput{Objective: "   build an api \n"})
	require.NoError(t, err)
	assert.Equal(t, a.(*validatedInput).inputsHash, b.(*validatedInput).inputsHash)
}

func TestInvokeProducesCompleteEnvelope(t *testing.T) {
	store := &fakeStore{}
	pub := &recordingPublisher{}
	d := newTestDecomposer(WithStore(store), WithPublisher(pub), WithStrictVerify(true))

	vi, err := d.Validate(contracts.InvocationInput{
		Objective: "implement a REST API service with database integration and tests",
		Context:   &contracts.InvocationContext{Constraints: []string{"postgres only"}},
	})
	require.NoError(t, err)

	env, err := d.Invoke(context.Background(), vi, "exec-123")
	require.NoError(t, err)

	assert.Equal(t, contracts.StatusSuccess, env.Status)
	assert.Equal(t, contracts.PersistencePersisted, env.PersistenceStatus.Status)
	assert.Equal(t, 1, store.saveCount())

	evt := env.Event
	assert.Equal(t, DecomposerSlug, evt.AgentID)
	assert.Equal(t, decompose.SchemaVersion, evt.AgentVersion)
	assert.Equal(t, contracts.DecisionDecomposition, evt.DecisionType)
	assert.Equal(t, "exec-123", evt.ExecutionRef)
	assert.Equal(t, []string{"postgres only"}, evt.ConstraintsApplied)
	assert.Len(t, evt.InputsHash, 64)
	assert.GreaterOrEqual(t, evt.Confidence, 0.0)
	assert.LessOrEqual(t, evt.Confidence, 1.0)

	var res decompose.Result
	require.NoError(t, json.Unmarshal(evt.Outputs, &res))
	assert.NotEmpty(t, res.DecompositionID)
	assert.NotEmpty(t, res.SubObjectives)
	assert.Contains(t, res.TreeStructure, decompose.TreeKeyRoot)

	types := pub.types()
	assert.Contains(t, types, streaming.EventInvocationStarted)
	assert.Contains(t, types, streaming.EventNodesEmitted)
	assert.Contains(t, types, streaming.EventAnalysisComplete)
	assert.Contains(t, types, streaming.EventInvocationCompleted)
	assert.NotContains(t, types, streaming.EventInvocationFailed)
}

func TestInvokeStoreFailureDowngradesToSkipped(t *testing.T) {
	store := &fakeStore{err: errors.New("connection refused")}
	pub := &recordingPublisher{}
	d := newTestDecomposer(WithStore(store), WithPublisher(pub))

	vi, err := d.Validate(contracts.InvocationInput{Objective: "refactor the parser"})
	require.NoError(t, err)

	env, err := d.Invoke(context.Background(), vi, "exec-store-down")
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusSuccess, env.Status)
	assert.Equal(t, contracts.PersistenceSkipped, env.PersistenceStatus.Status)
	assert.Contains(t, env.PersistenceStatus.Error, "connection refused")
	assert.Contains(t, pub.types(), streaming.EventPersistenceSkipped)
}

func TestInvokeWithoutStoreSkipsPersistence(t *testing.T) {
	d := newTestDecomposer()

	vi, err := d.Validate(contracts.InvocationInput{Objective: "refactor the parser"})
	require.NoError(t, err)

	env, err := d.Invoke(context.Background(), vi, "exec-no-store")
	require.NoError(t, err)
	assert.Equal(t, contracts.PersistenceSkipped, env.PersistenceStatus.Status)
	assert.Contains(t, env.PersistenceStatus.Error, "no store")
}

func TestInvokePolicyDenied(t *testing.T) {
	pub := &recordingPublisher{}
	d := newTestDecomposer(
		WithGate(&fakeGate{allowed: false, reason: "objective too broad for this team"}),
		WithPublisher(pub),
	)

	vi, err := d.Validate(contracts.InvocationInput{Objective: "do everything"})
	require.NoError(t, err)

	_, err = d.Invoke(context.Background(), vi, "exec-denied")
	require.Error(t, err)
	var ae *contracts.AgentError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, contracts.CodeValidationFailed, ae.Code)
	assert.Contains(t, ae.Message, "objective too broad")

	types := pub.types()
	assert.Contains(t, types, streaming.EventPolicyDenied)
	assert.Contains(t, types, streaming.EventInvocationFailed)
}

func TestInvokeGateErrorIsProcessingError(t *testing.T) {
	d := newTestDecomposer(WithGate(&fakeGate{err: errors.New("policy engine unavailable")}))

	vi, err := d.Validate(contracts.InvocationInput{Objective: "build an api"})
	require.NoError(t, err)

	_, err = d.Invoke(context.Background(), vi, "exec-gate-err")
	require.Error(t, err)
	var ae *contracts.AgentError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, contracts.CodeProcessingError, ae.Code)
}

func TestInvokeCacheHitShortCircuits(t *testing.T) {
	store := &fakeStore{}
	cache := newFakeCache()
	d := newTestDecomposer(WithStore(store), WithCache(cache))

	vi, err := d.Validate(contracts.InvocationInput{Objective: "implement a cli tool"})
	require.NoError(t, err)

	first, err := d.Invoke(context.Background(), vi, "exec-a")
	require.NoError(t, err)
	require.Equal(t, 1, store.saveCount())

	// Re-validate the same input and invoke again; the cached envelope is
	// returned without another engine pass or store write.
	vi2, err := d.Validate(contracts.InvocationInput{Objective: "implement a cli tool"})
	require.NoError(t, err)
	second, err := d.Invoke(context.Background(), vi2, "exec-b")
	require.NoError(t, err)

	assert.Equal(t, 1, store.saveCount())
	assert.Equal(t, first.Event.ID, second.Event.ID)
}

func TestInvokeIsDeterministicForEqualInputs(t *testing.T) {
	d := newTestDecomposer()

	invoke := func(ref string) decompose.Result {
		vi, err := d.Validate(contracts.InvocationInput{
			Objective: "design and implement the ingestion pipeline with tests",
		})
		require.NoError(t, err)
		env, err := d.Invoke(context.Background(), vi, ref)
		require.NoError(t, err)
		var res decompose.Result
		require.NoError(t, json.Unmarshal(env.Event.Outputs, &res))
		return res
	}

	a := invoke("exec-1")
	b := invoke("exec-2")

	// Identity fields differ per invocation; the decomposition itself must not.
	assert.Equal(t, a.SubObjectives, b.SubObjectives)
	assert.Equal(t, a.TreeStructure, b.TreeStructure)
	assert.Equal(t, a.DependencyGraph, b.DependencyGraph)
	assert.Equal(t, a.Analysis, b.Analysis)
	assert.NotEqual(t, a.DecompositionID, b.DecompositionID)
}

func TestInvokeRejectsForeignValidatedInput(t *testing.T) {
	d := newTestDecomposer()
	_, err := d.Invoke(context.Background(), "not a token", "exec-x")
	require.Error(t, err)
	var ae *contracts.AgentError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, contracts.CodeProcessingError, ae.Code)
}

func TestDescribe(t *testing.T) {
	d := newTestDecomposer()
	desc := d.Describe()
	assert.Equal(t, DecomposerSlug, desc.Slug)
	assert.Equal(t, decompose.SchemaVersion, desc.Version)
	assert.Equal(t, contracts.DecisionDecomposition, desc.DecisionType)
	assert.Equal(t, ClassificationDeterministic, desc.Classification)
}
