// Package planner hosts live battle-planning sessions. Each session pairs a
// battle tree with a turn resolver and serialises every operation on them.
package planner

import (
	"cmp"
	"context"
	"errors"
	"math/rand"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kasuganosora/battleplanner/cache"
	"github.com/kasuganosora/battleplanner/game/battle"
	"github.com/kasuganosora/battleplanner/game/calc"
	"github.com/kasuganosora/battleplanner/game/pokemon"
	"github.com/kasuganosora/battleplanner/game/resolver"
	"github.com/kasuganosora/battleplanner/game/tree"
)

var (
	ErrSessionNotFound = errors.New("planner: session not found")
	ErrTooManySessions = errors.New("planner: session limit reached")
	ErrNoCurrentNode   = errors.New("planner: tree has no current node")
	ErrInvalidSide     = errors.New("planner: side must be p1 or p2")
	ErrInvalidMove     = errors.New("planner: no move in that slot")
	ErrInvalidOutcome  = errors.New("planner: outcome index out of range")
	ErrInvalidSwitch   = errors.New("planner: team member cannot switch in")
	ErrTreeFull        = errors.New("planner: tree node limit reached")
)

// Cache keys and channels.
const (
	SessionIndexKey = "planner:sessions"
	channelPrefix   = "planner:"
	autosavePrefix  = "planner:autosave:"
	turnSuffix      = ":turn"
)

// Channel is the pub/sub channel that carries a session's tree events.
func Channel(sessionID string) string { return channelPrefix + sessionID }

// AutosaveKey is the cache key of a session's serialized tree.
func AutosaveKey(sessionID string) string { return autosavePrefix + sessionID }

// Defaults applied by NewManager.
const (
	DefaultMaxSessions = 1000
	DefaultAutosaveTTL = 24 * time.Hour
	DefaultMaxNodes    = 5000
)

// Config configures a Manager.
type Config struct {
	Calc              calc.Calculator
	Cache             cache.Cache  // optional; disables autosave when nil
	PubSub            cache.PubSub // optional; disables event publishing when nil
	Logger            *zap.Logger
	Generation        int
	HistoryLimit      int
	SimplifyThreshold float64
	AutosaveTTL       time.Duration
	MaxSessions       int
	MaxNodes          int
	// Species resolves imported sets. Defaults to the builtin calculator's
	// dex, or the embedded one.
	Species pokemon.SpeciesLookup
	// NewRNG seeds each session's resolver. Tests inject a fixed seed.
	NewRNG func() *rand.Rand
	Now    func() time.Time
}

// Manager holds the live sessions of this instance.
type Manager struct {
	cfg    Config
	logger *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a Manager with defaults filled in.
func NewManager(cfg Config) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Calc == nil {
		cfg.Calc = calc.NewBuiltin(nil)
	}
	if cfg.Species == nil {
		if b, ok := cfg.Calc.(*calc.BuiltinCalculator); ok {
			cfg.Species = b.Dex().Species
		} else {
			cfg.Species = calc.DefaultDex().Species
		}
	}
	if cfg.Generation <= 0 {
		cfg.Generation = resolver.DefaultGeneration
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = tree.DefaultHistoryLimit
	}
	if cfg.SimplifyThreshold <= 0 {
		cfg.SimplifyThreshold = calc.DefaultSimplifyThreshold
	}
	if cfg.AutosaveTTL <= 0 {
		cfg.AutosaveTTL = DefaultAutosaveTTL
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	if cfg.MaxNodes <= 0 {
		cfg.MaxNodes = DefaultMaxNodes
	}
	if cfg.NewRNG == nil {
		cfg.NewRNG = func() *rand.Rand { return rand.New(rand.NewSource(time.Now().UnixNano())) }
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{
		cfg:      cfg,
		logger:   cfg.Logger,
		sessions: make(map[string]*Session),
	}
}

// Create starts a session whose tree is rooted at state. gen <= 0 uses the
// configured generation.
func (m *Manager) Create(ctx context.Context, state *battle.State, gen int) (*Session, error) {
	if state == nil {
		return nil, tree.ErrNilState
	}
	s := m.newSession(uuid.NewString(), gen)
	if err := m.add(ctx, s); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tree.Initialize(state)
	s.autosave(ctx)
	m.logger.Info("planner session created", zap.String("session_id", s.id), zap.Int("gen", s.gen))
	return s, nil
}

// Open starts a session from a serialized tree, such as a saved plan.
func (m *Manager) Open(ctx context.Context, data []byte, gen int) (*Session, error) {
	s := m.newSession(uuid.NewString(), gen)
	if err := s.tree.Deserialize(data); err != nil {
		return nil, err
	}
	if err := m.add(ctx, s); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autosave(ctx)
	return s, nil
}

func (m *Manager) newSession(id string, gen int) *Session {
	if gen <= 0 {
		gen = m.cfg.Generation
	}
	logger := m.logger.With(zap.String("session_id", id))
	now := m.cfg.Now()
	s := &Session{
		id:      id,
		gen:     gen,
		m:       m,
		logger:  logger,
		created: now,
		used:    now,
		tree:    tree.New(tree.Config{Logger: logger, HistoryLimit: m.cfg.HistoryLimit, Now: m.cfg.Now}),
		resolver: resolver.New(resolver.Config{
			Calc:   m.cfg.Calc,
			Gen:    gen,
			RNG:    m.cfg.NewRNG(),
			Logger: logger,
		}),
	}
	s.tree.SubscribeAll("planner.publish", s.publish)
	s.tree.Guard("planner.max_nodes", s.checkSize)
	return s
}

func (m *Manager) add(ctx context.Context, s *Session) error {
	m.mu.Lock()
	if len(m.sessions) >= m.cfg.MaxSessions {
		m.mu.Unlock()
		m.logger.Warn("planner session limit reached", zap.Int("max_sessions", m.cfg.MaxSessions))
		return ErrTooManySessions
	}
	m.sessions[s.id] = s
	m.mu.Unlock()

	if m.cfg.Cache != nil {
		if err := m.cfg.Cache.SAdd(ctx, SessionIndexKey, s.id); err != nil {
			m.logger.Warn("planner session index update failed", zap.String("session_id", s.id), zap.Error(err))
		}
	}
	return nil
}

// Get returns a live session. A session evicted from memory is revived from
// its autosave, including a turn that was waiting for a replacement.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		return s, nil
	}
	return m.revive(ctx, id)
}

func (m *Manager) revive(ctx context.Context, id string) (*Session, error) {
	if m.cfg.Cache == nil {
		return nil, ErrSessionNotFound
	}
	data, err := m.cfg.Cache.Get(ctx, AutosaveKey(id))
	if cache.IsNotFound(err) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	s := m.newSession(id, 0)
	if err := s.tree.Deserialize([]byte(data)); err != nil {
		m.logger.Warn("planner autosave unreadable", zap.String("session_id", id), zap.Error(err))
		return nil, ErrSessionNotFound
	}
	s.restoreTurn(ctx)

	// Another request may have revived it first.
	m.mu.Lock()
	if existing, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		return existing, nil
	}
	if len(m.sessions) >= m.cfg.MaxSessions {
		m.mu.Unlock()
		return nil, ErrTooManySessions
	}
	m.sessions[id] = s
	m.mu.Unlock()
	m.logger.Info("planner session revived", zap.String("session_id", id))
	return s, nil
}

// Close ends a session and deletes its autosave.
func (m *Manager) Close(ctx context.Context, id string) error {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if m.cfg.Cache != nil {
		exists, _ := m.cfg.Cache.Exists(ctx, AutosaveKey(id))
		if !ok && !exists {
			return ErrSessionNotFound
		}
		_ = m.cfg.Cache.Del(ctx, AutosaveKey(id), AutosaveKey(id)+turnSuffix)
		_ = m.cfg.Cache.SRem(ctx, SessionIndexKey, id)
	} else if !ok {
		return ErrSessionNotFound
	}
	m.logger.Info("planner session closed", zap.String("session_id", id))
	return nil
}

// Sweep evicts sessions idle for longer than idle. Their autosaves are kept
// so a later request can revive them. It returns the number evicted.
func (m *Manager) Sweep(_ context.Context, idle time.Duration) int {
	cutoff := m.cfg.Now().Add(-idle)
	m.mu.Lock()
	var evicted []string
	for id, s := range m.sessions {
		if s.LastUsed().Before(cutoff) {
			delete(m.sessions, id)
			evicted = append(evicted, id)
		}
	}
	m.mu.Unlock()
	if len(evicted) > 0 {
		m.logger.Info("planner sessions swept", zap.Int("evicted", len(evicted)), zap.Duration("idle", idle))
	}
	return len(evicted)
}

// Len returns the number of sessions in memory.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Info summarises one live session.
type Info struct {
	ID         string    `json:"id"`
	Generation int       `json:"generation"`
	Nodes      int       `json:"nodes"`
	Pending    bool      `json:"pending"`
	CreatedAt  time.Time `json:"createdAt"`
	LastUsed   time.Time `json:"lastUsed"`
}

// List describes every session in memory, most recently used first.
func (m *Manager) List() []Info {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	out := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Info())
	}
	slices.SortFunc(out, func(a, b Info) int { return cmp.Compare(b.LastUsed.UnixNano(), a.LastUsed.UnixNano()) })
	return out
}
