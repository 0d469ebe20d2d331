// Package lifecycle provisions a dedicated DatabaseResources bundle for every job
// invocation and tears it down when the invocation ends.
package lifecycle

import (
	"context"
	"fmt"
	"sync"

	"github.com/tigerroll/surfin-dualdb/pkg/batch/adapter/database"
	model "github.com/tigerroll/surfin-dualdb/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/surfin-dualdb/pkg/batch/core/metrics"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/support/util/exception"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/support/util/logger"
)

const moduleName = "lifecycle"

// State is the lifecycle state of a Scope.
type State int32

const (
	Uninitialized State = iota
	Provisioned
	TornDown
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "Uninitialized"
	case Provisioned:
		return "Provisioned"
	case TornDown:
		return "TornDown"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Scope is the resource handle of one invocation.
type Scope struct {
	invocation model.JobInvocation

	mu        sync.RWMutex
	state     State
	resources *database.Resources
}

// Invocation returns the invocation the scope belongs to.
func (s *Scope) Invocation() model.JobInvocation {
	return s.invocation
}

// State returns the current lifecycle state.
func (s *Scope) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Resources returns the provisioned bundle, or nil outside the Provisioned state.
func (s *Scope) Resources() *database.Resources {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != Provisioned {
		return nil
	}
	return s.resources
}

type scopeKey struct{}

// WithScope returns a copy of ctx carrying s.
func WithScope(ctx context.Context, s *Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

// ScopeFrom returns the Scope carried by ctx, if any.
func ScopeFrom(ctx context.Context) (*Scope, bool) {
	s, ok := ctx.Value(scopeKey{}).(*Scope)
	return s, ok && s != nil
}

// CurrentResources returns the bundle of the invocation ctx belongs to.
// It reports false before BeforeExecution and after AfterExecution.
func CurrentResources(ctx context.Context) (*database.Resources, bool) {
	s, ok := ScopeFrom(ctx)
	if !ok {
		return nil, false
	}
	res := s.Resources()
	return res, res != nil
}

// Manager keeps the resource table of in-flight invocations, keyed by invocation key.
type Manager struct {
	factory  database.ConnectionFactory
	recorder metrics.MetricRecorder

	mu    sync.Mutex
	table map[string]*Scope
}

// NewManager creates a Manager that provisions through factory.
func NewManager(factory database.ConnectionFactory, recorder metrics.MetricRecorder) *Manager {
	if recorder == nil {
		recorder = metrics.NewNoOpMetricRecorder()
	}
	return &Manager{
		factory:  factory,
		recorder: recorder,
		table:    make(map[string]*Scope),
	}
}

// BeforeExecution creates the pool, persistence context and transaction manager of inv
// and registers them under inv.Key(). If any step fails, whatever was created is
// destroyed and the returned scope (also returned with the error) is TornDown.
func (m *Manager) BeforeExecution(ctx context.Context, inv model.JobInvocation) (*Scope, error) {
	log := logger.With("invocation", inv.Key()).With("db", inv.Database)
	key := inv.Key()

	m.mu.Lock()
	if _, exists := m.table[key]; exists {
		m.mu.Unlock()
		return nil, exception.NewConfigurationError(moduleName, fmt.Sprintf("invocation %s is already provisioned", key), nil)
	}
	scope := &Scope{invocation: inv, state: Uninitialized}
	m.table[key] = scope
	m.mu.Unlock()

	res, err := m.provision(ctx, inv)
	if err != nil {
		m.mu.Lock()
		delete(m.table, key)
		m.mu.Unlock()
		scope.mu.Lock()
		scope.state = TornDown
		scope.mu.Unlock()
		log.Errorf("Provisioning failed: %v", err)
		return scope, err
	}

	scope.mu.Lock()
	scope.resources = res
	scope.state = Provisioned
	scope.mu.Unlock()

	m.recorder.RecordResourcesProvisioned(ctx, inv.Database)
	log.Infof("Database resources provisioned (%s).", res.Dialect)
	return scope, nil
}

func (m *Manager) provision(ctx context.Context, inv model.JobInvocation) (*database.Resources, error) {
	dialect, err := m.factory.DialectFor(inv.Database)
	if err != nil {
		return nil, err
	}
	pool, err := m.factory.CreatePool(ctx, inv.Database)
	if err != nil {
		return nil, err
	}
	pc, err := m.factory.CreatePersistenceContext(pool, inv.Database)
	if err != nil {
		m.factory.Destroy(nil, pool)
		return nil, err
	}
	return &database.Resources{
		Database:  inv.Database,
		Dialect:   dialect,
		Pool:      pool,
		Context:   pc,
		TxManager: m.factory.CreateTransactionManager(pc, inv.Database),
	}, nil
}

// AfterExecution destroys the bundle registered under invocationKey.
// Unknown or already torn down invocations are a no-op.
func (m *Manager) AfterExecution(ctx context.Context, invocationKey string) {
	m.mu.Lock()
	scope, ok := m.table[invocationKey]
	delete(m.table, invocationKey)
	m.mu.Unlock()

	if !ok {
		logger.Debugf("AfterExecution: no resources registered for invocation %s.", invocationKey)
		return
	}

	scope.mu.Lock()
	if scope.state != Provisioned {
		scope.mu.Unlock()
		logger.Debugf("AfterExecution: invocation %s is already %s.", invocationKey, scope.state)
		return
	}
	res := scope.resources
	scope.resources = nil
	scope.state = TornDown
	scope.mu.Unlock()

	m.factory.Destroy(res.Context, res.Pool)
	m.recorder.RecordResourcesDestroyed(ctx, res.Database)
	logger.With("invocation", invocationKey).With("db", res.Database).Infof("Database resources torn down.")
}

// Run provisions resources for inv, calls fn with a context carrying the scope and
// always tears the resources down afterwards, also when fn panics.
func (m *Manager) Run(ctx context.Context, inv model.JobInvocation, fn func(ctx context.Context, scope *Scope) error) error {
	scope, err := m.BeforeExecution(ctx, inv)
	if err != nil {
		return err
	}
	defer m.AfterExecution(ctx, inv.Key())
	return fn(WithScope(ctx, scope), scope)
}

// Active returns the number of provisioned invocations.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.table)
}

// Shutdown tears down every invocation still registered.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	keys := make([]string, 0, len(m.table))
	for k := range m.table {
		keys = append(keys, k)
	}
	m.mu.Unlock()

	for _, k := range keys {
		logger.Warnf("Tearing down invocation %s left provisioned at shutdown.", k)
		m.AfterExecution(ctx, k)
	}
	return nil
}
