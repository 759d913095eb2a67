package policy

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/rego"
	"go.uber.org/zap"

	"github.com/praxis-lab/Polya/go/decomposer/internal/config"
)

// decisionQuery is the rego entry point all invocation policies share.
const decisionQuery = "data.polya.invoke.decision"

// Input is the record handed to the rego policies for one invocation.
type Input struct {
	AgentSlug       string `json:"agent_slug"`
	ObjectiveLength int    `json:"objective_length"`
	ExecutionRef    string `json:"execution_ref,omitempty"`
	Team            string `json:"team,omitempty"`
}

// Decision is the policy verdict for one invocation.
type Decision struct {
	Allow  bool   `json:"allow"`
	Reason string `json:"reason,omitempty"`
}

// Engine evaluates the invocation gate. A disabled engine allows
// everything; a fail-closed engine with broken policies denies everything.
type Engine struct {
	cfg      config.PolicyConfig
	logger   *zap.Logger
	compiled *rego.PreparedEvalQuery
	enabled  bool
	cache    *decisionCache
}

// NewEngine loads and compiles the rego policies under cfg.Path.
func NewEngine(cfg config.PolicyConfig, logger *zap.Logger) (*Engine, error) {
	e := &Engine{
		cfg:     cfg,
		logger:  logger,
		enabled: cfg.Enabled,
		cache:   newDecisionCache(cfg.CacheSize, 5*time.Minute),
	}

	if !e.enabled {
		logger.Info("Policy engine disabled, allowing all invocations")
		return e, nil
	}

	if err := e.LoadPolicies(); err != nil {
		if cfg.FailClosed {
			return nil, fmt.Errorf("load policies in fail-closed mode: %w", err)
		}
		logger.Warn("Failed to load policies, running fail-open", zap.Error(err))
		e.enabled = false
	}
	return e, nil
}

// LoadPolicies reads every .rego file under the policy path and compiles
// the decision query. Called at startup and again on config reload.
func (e *Engine) LoadPolicies() error {
	policies := make(map[string]string)

	err := filepath.Walk(e.cfg.Path, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(info.Name(), ".rego") {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read policy file %s: %w", path, err)
		}
		rel, _ := filepath.Rel(e.cfg.Path, path)
		policies[strings.TrimSuffix(rel, ".rego")] = string(content)
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk policy directory: %w", err)
	}
	if len(policies) == 0 {
		if e.cfg.FailClosed {
			return fmt.Errorf("no policies found under %s in fail-closed mode", e.cfg.Path)
		}
		e.logger.Warn("No policy files found", zap.String("path", e.cfg.Path))
		return nil
	}

	opts := []func(*rego.Rego){rego.Query(decisionQuery)}
	for name, content := range policies {
		opts = append(opts, rego.Module(name, content))
	}
	compiled, err := rego.New(opts...).PrepareForEval(context.Background())
	if err != nil {
		return fmt.Errorf("compile policies: %w", err)
	}

	e.compiled = &compiled
	e.cache.purge()
	e.logger.Info("Policies compiled", zap.Int("policy_count", len(policies)))
	return nil
}

// Enabled reports whether the gate actually evaluates policies.
func (e *Engine) Enabled() bool {
	return e.enabled && e.compiled != nil
}

// Evaluate returns the verdict for one invocation input. Evaluation
// errors follow the fail-open/fail-closed setting rather than surfacing
// to the caller.
func (e *Engine) Evaluate(ctx context.Context, in Input) Decision {
	if !e.Enabled() {
		return Decision{Allow: true, Reason: "policy engine disabled"}
	}

	if d, ok := e.cache.get(in); ok {
		return d
	}

	results, err := e.compiled.Eval(ctx, rego.EvalInput(toMap(in)))
	if err != nil {
		e.logger.Error("Policy evaluation failed", zap.Error(err))
		if e.cfg.FailClosed {
			return Decision{Allow: false, Reason: "policy evaluation error"}
		}
		return Decision{Allow: true, Reason: "policy evaluation error, fail-open"}
	}

	d := parseResults(results)
	e.cache.set(in, d)
	return d
}

func toMap(in Input) map[string]interface{} {
	raw, _ := json.Marshal(in)
	var m map[string]interface{}
	_ = json.Unmarshal(raw, &m)
	return m
}

// parseResults extracts {allow, reason} from the rego result set. An
// absent decision denies: policies must opt invocations in.
func parseResults(results rego.ResultSet) Decision {
	d := Decision{Allow: false, Reason: "no matching policy rules"}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return d
	}
	m, ok := results[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return d
	}
	if allow, ok := m["allow"].(bool); ok {
		d.Allow = allow
		d.Reason = ""
	}
	if reason, ok := m["reason"].(string); ok {
		d.Reason = reason
	}
	return d
}

// decisionCache is a small LRU keyed by the hashed input. Policy files
// change rarely; the purge on LoadPolicies keeps stale verdicts out.
type decisionCache struct {
	mu   sync.Mutex
	cap  int
	ttl  time.Duration
	list *list.List
	m    map[string]*list.Element
}

type cacheEntry struct {
	key string
	d   Decision
	exp time.Time
}

func newDecisionCache(capacity int, ttl time.Duration) *decisionCache {
	if capacity <= 0 {
		capacity = 1024
	}
	return &decisionCache{
		cap:  capacity,
		ttl:  ttl,
		list: list.New(),
		m:    make(map[string]*list.Element, capacity),
	}
}

func cacheKey(in Input) string {
	raw, _ := json.Marshal(in)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:16])
}

func (c *decisionCache) get(in Input) (Decision, bool) {
	key := cacheKey(in)
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.m[key]; ok {
		ent := el.Value.(cacheEntry)
		if ent.exp.After(time.Now()) {
			c.list.MoveToFront(el)
			return ent.d, true
		}
		c.list.Remove(el)
		delete(c.m, key)
	}
	return Decision{}, false
}

func (c *decisionCache) set(in Input, d Decision) {
	key := cacheKey(in)
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.m[key]; ok {
		el.Value = cacheEntry{key: key, d: d, exp: time.Now().Add(c.ttl)}
		c.list.MoveToFront(el)
		return
	}
	el := c.list.PushFront(cacheEntry{key: key, d: d, exp: time.Now().Add(c.ttl)})
	c.m[key] = el
	if c.list.Len() > c.cap {
		back := c.list.Back()
		if back != nil {
			ent := back.Value.(cacheEntry)
			delete(c.m, ent.key)
			c.list.Remove(back)
		}
	}
}

func (c *decisionCache) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.list.Init()
	c.m = make(map[string]*list.Element, c.cap)
}
