package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/warfront-game/api/internal/model"
	"github.com/warfront-game/api/internal/repository"
	"github.com/warfront-game/api/pkg/risk"
)

var (
	ErrSessionExists = errors.New("session already exists")
	ErrUnknownPlayer = errors.New("player is not part of this session")
)

// defaultColors is the palette assigned when the initialize request omits
// colors.
var defaultColors = []string{"red", "blue", "green", "yellow", "black", "purple"}

// snapshot is the durable persistence format: the full session state plus
// the action sequence counter and the time it was written.
type snapshot struct {
	Seq     int64           `json:"seq"`
	SavedAt time.Time       `json:"saved_at"`
	State   *risk.GameState `json:"state"`
}

// liveSession is one resident session. All action processing for a session
// happens under its mutex, which is the single-writer guarantee: two
// concurrent deploys can never read the same reinforcement pool.
type liveSession struct {
	mu    sync.Mutex
	code  string
	state *risk.GameState
	seq   int64

	// bindings maps a connection ID to the set of player names that
	// connection may act for. Rebuilt whenever the connection announces.
	bindings map[string]map[string]bool

	// turnDeadline is the armed auto-skip deadline, zero when disabled.
	turnDeadline time.Time
}

// allPlayersBound reports whether every declared player is covered by at
// least one connection binding.
func (s *liveSession) allPlayersBound() bool {
	covered := make(map[string]bool)
	for _, players := range s.bindings {
		for name := range players {
			covered[name] = true
		}
	}
	for _, p := range s.state.Players {
		if !covered[p.Name] {
			return false
		}
	}
	return true
}

// Registry owns the mapping from session codes to live sessions and runs
// the full action pipeline: authorize, apply, snapshot, broadcast.
// Different sessions are fully independent; actions within one session are
// strictly sequential.
type Registry struct {
	sessionRepo repository.SessionRepository
	store       repository.StateStore
	broadcaster Broadcaster
	worldMap    *risk.WorldMap

	// turnTimeout enables the stalled-turn policy hook when > 0.
	turnTimeout time.Duration

	// seedFunc produces the seed for new sessions. Overridable in tests.
	seedFunc func() int64

	mu       sync.RWMutex
	sessions map[string]*liveSession
}

// NewRegistry creates a Registry.
func NewRegistry(sessionRepo repository.SessionRepository, store repository.StateStore, broadcaster Broadcaster, turnTimeout time.Duration) *Registry {
	if broadcaster == nil {
		broadcaster = NoopBroadcaster{}
	}
	return &Registry{
		sessionRepo: sessionRepo,
		store:       store,
		broadcaster: broadcaster,
		worldMap:    risk.StandardMap(),
		turnTimeout: turnTimeout,
		seedFunc:    func() int64 { return time.Now().UnixNano() },
		sessions:    make(map[string]*liveSession),
	}
}

// Initialize creates a session: durable record, seeded starting position,
// first snapshot, and the initialized broadcast. The seed is generated
// server-side and stored in the state so any client can reproduce the
// starting layout.
func (r *Registry) Initialize(ctx context.Context, code string, names, colors []string) (*risk.GameState, error) {
	if existing, err := r.lookup(ctx, code); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, ErrSessionExists
	}

	players := make([]risk.Player, len(names))
	rosterRows := make([]model.SessionPlayer, len(names))
	for i, name := range names {
		color := defaultColors[i%len(defaultColors)]
		if i < len(colors) && colors[i] != "" {
			color = colors[i]
		}
		players[i] = risk.Player{Name: name, Color: color}
		rosterRows[i] = model.SessionPlayer{SessionCode: code, Name: name, Color: color, Position: i}
	}

	seed := r.seedFunc()
	state, err := risk.NewGameFromSeed(players, seed)
	if err != nil {
		return nil, err
	}

	// Reserve the code before any storage writes: two concurrent creates
	// for the same code must not both pass the duplicate check, and the
	// loser gets ErrSessionExists rather than a storage error.
	s := &liveSession{code: code, state: state, bindings: make(map[string]map[string]bool)}
	r.mu.Lock()
	if _, ok := r.sessions[code]; ok {
		r.mu.Unlock()
		return nil, ErrSessionExists
	}
	r.sessions[code] = s
	r.mu.Unlock()

	if _, err := r.sessionRepo.Create(ctx, code, seed, rosterRows); err != nil {
		r.evict(code)
		return nil, fmt.Errorf("create session record: %w", err)
	}
	if err := r.persist(ctx, s); err != nil {
		r.evict(code)
		return nil, err
	}

	log.Info().Str("sessionCode", code).Int64("seed", seed).Int("players", len(players)).
		Msg("Session initialized")
	r.broadcaster.BroadcastSessionEvent(code, EventInitialized, map[string]any{
		"state": state,
		"seed":  seed,
	})
	return state, nil
}

// Announce rebuilds the client binding for a connection: from now on the
// connection may act for exactly the given players. During initial setup,
// once every declared player is bound the game moves to initial placement.
func (r *Registry) Announce(ctx context.Context, code, connID string, players []string) error {
	s, err := r.resolve(ctx, code)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	binding := make(map[string]bool, len(players))
	for _, name := range players {
		if !s.state.HasPlayer(name) {
			return fmt.Errorf("%w: %s", ErrUnknownPlayer, name)
		}
		binding[name] = true
	}
	s.bindings[connID] = binding
	log.Info().Str("sessionCode", code).Str("connId", connID).
		Strs("players", players).Msg("Client binding rebuilt")

	if s.state.Phase == risk.PhaseInitialSetup && s.allPlayersBound() {
		next := s.state.Clone()
		next.Phase = risk.PhaseInitialPlacement
		// Snapshot before anyone hears about the transition.
		if err := r.persist(ctx, &liveSession{code: s.code, state: next, seq: s.seq + 1}); err != nil {
			return err
		}
		s.state = next
		s.seq++
		if err := r.sessionRepo.SetActive(ctx, code); err != nil {
			log.Error().Err(err).Str("sessionCode", code).Msg("Failed to mark session active")
		}
		r.armTurnTimer(ctx, s)
		log.Info().Str("sessionCode", code).Msg("All players bound, initial placement begins")
		r.broadcaster.BroadcastSessionEvent(code, EventPhaseChanged, map[string]any{
			"old_phase":      risk.PhaseInitialSetup,
			"new_phase":      risk.PhaseInitialPlacement,
			"current_player": s.state.CurrentPlayerName(),
			"turn":           s.state.Turn,
		})
	}
	return nil
}

// Submit runs one action through the pipeline: authorization, validation,
// apply, snapshot, broadcast. A returned *risk.Rejection is for the
// submitting connection only; accepted actions are broadcast to every bound
// connection after the snapshot lands.
func (r *Registry) Submit(ctx context.Context, code, connID string, action risk.Action) error {
	s, err := r.resolve(ctx, code)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.bindings[connID][action.Player] {
		return &risk.Rejection{
			Code:    risk.CodeUnauthorizedClient,
			Message: fmt.Sprintf("connection does not control player %q", action.Player),
		}
	}
	return r.step(ctx, s, action)
}

// step applies one action to a locked session and commits it. The caller
// holds s.mu.
func (r *Registry) step(ctx context.Context, s *liveSession, action risk.Action) error {
	next, change, err := risk.Apply(s.state, r.worldMap, action)
	if err != nil {
		return err
	}

	// Snapshot first: clients must never see an update the store could
	// lose. A store failure rejects the action and discards the candidate
	// state entirely.
	trial := &liveSession{code: s.code, state: next, seq: s.seq + 1}
	if err := r.persist(ctx, trial); err != nil {
		return err
	}
	s.state = next
	s.seq++

	r.broadcaster.BroadcastSessionEvent(s.code, EventStateUpdate, map[string]any{
		"state":  s.state,
		"change": change,
		"seq":    s.seq,
	})
	if change.PhaseChanged {
		r.broadcaster.BroadcastSessionEvent(s.code, EventPhaseChanged, map[string]any{
			"old_phase":      change.OldPhase,
			"new_phase":      change.NewPhase,
			"current_player": change.CurrentPlayer,
			"turn":           change.Turn,
		})
		r.armTurnTimer(ctx, s)
	}
	if change.Winner != "" {
		if err := r.sessionRepo.SetFinished(ctx, s.code, change.Winner); err != nil {
			log.Error().Err(err).Str("sessionCode", s.code).Msg("Failed to mark session finished")
		}
		if err := r.store.ClearTurnTimer(ctx, s.code); err != nil {
			log.Warn().Err(err).Str("sessionCode", s.code).Msg("Failed to clear turn timer")
		}
		s.turnDeadline = time.Time{}
		r.broadcaster.BroadcastSessionEvent(s.code, EventGameEnded, map[string]any{
			"winner": change.Winner,
		})
		log.Info().Str("sessionCode", s.code).Str("winner", change.Winner).Msg("Game ended")
	}
	return nil
}

// Resync sends the complete current state to one connection. Idempotent and
// side-effect free on session state; safe to call any number of times.
func (r *Registry) Resync(ctx context.Context, code, connID string) error {
	s, err := r.resolve(ctx, code)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	r.broadcaster.SendConnectionEvent(connID, code, EventStateUpdate, map[string]any{
		"state": s.state,
		"seq":   s.seq,
	})
	return nil
}

// State returns a copy of the current session state, for the REST surface.
func (r *Registry) State(ctx context.Context, code string) (*risk.GameState, int64, error) {
	s, err := r.resolve(ctx, code)
	if err != nil {
		return nil, 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone(), s.seq, nil
}

// Remove tears a session down: memory, state store, and durable record.
func (r *Registry) Remove(ctx context.Context, code string) error {
	r.mu.Lock()
	delete(r.sessions, code)
	r.mu.Unlock()

	if err := r.store.DeleteState(ctx, code); err != nil {
		return fmt.Errorf("delete session state: %w", err)
	}
	if err := r.sessionRepo.Delete(ctx, code); err != nil {
		return err
	}
	log.Info().Str("sessionCode", code).Msg("Session removed")
	return nil
}

// Disconnect drops all bindings held by a connection. Rotation is not
// advanced: a vanished active player stalls the session unless the turn
// timeout policy is enabled.
func (r *Registry) Disconnect(connID string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		s.mu.Lock()
		delete(s.bindings, connID)
		s.mu.Unlock()
	}
}

// RecoverActiveSessions warms the in-memory registry from durable storage
// for every active session. Called on startup so the turn machinery resumes
// exactly where it left off.
func (r *Registry) RecoverActiveSessions(ctx context.Context) error {
	sessions, err := r.sessionRepo.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active sessions: %w", err)
	}
	if len(sessions) == 0 {
		log.Info().Msg("No active sessions to recover")
		return nil
	}

	recovered := 0
	for _, rec := range sessions {
		s, err := r.restore(ctx, rec.Code)
		if err != nil {
			log.Error().Err(err).Str("sessionCode", rec.Code).Msg("Failed to recover session")
			continue
		}
		if s == nil {
			log.Warn().Str("sessionCode", rec.Code).Msg("Active session has no snapshot, skipping")
			continue
		}
		recovered++
		log.Info().Str("sessionCode", rec.Code).Str("phase", string(s.state.Phase)).
			Int("turn", s.state.Turn).Str("currentPlayer", s.state.CurrentPlayerName()).
			Msg("Recovered session state")
	}
	log.Info().Int("count", recovered).Msg("Session recovery complete")
	return nil
}

// ForceCompleteTurn runs the stalled-turn policy for a session: the current
// player's remaining reinforcements are spread round-robin over their
// territories and their optional phases are skipped, handing the turn to
// the next player. Every synthesized action goes through the normal
// pipeline so snapshots and broadcasts behave as if the player had acted.
func (r *Registry) ForceCompleteTurn(ctx context.Context, code string) error {
	s, err := r.resolve(ctx, code)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	player := s.state.CurrentPlayerName()
	if player == "" || s.state.Phase == risk.PhaseInitialSetup || s.state.Phase == risk.PhaseFinished {
		return nil
	}
	log.Info().Str("sessionCode", code).Str("player", player).
		Str("phase", string(s.state.Phase)).Msg("Turn timer expired, force-completing turn")

	for s.state.CurrentPlayerName() == player && s.state.Phase != risk.PhaseFinished {
		action, ok := r.nextForcedAction(s.state, player)
		if !ok {
			return nil
		}
		if err := r.step(ctx, s, action); err != nil {
			return fmt.Errorf("force-complete %s: %w", action.Describe(), err)
		}
	}
	return nil
}

// nextForcedAction picks the single next action that moves a stalled turn
// forward.
func (r *Registry) nextForcedAction(gs *risk.GameState, player string) (risk.Action, bool) {
	switch gs.Phase {
	case risk.PhaseInitialPlacement, risk.PhaseReinforce:
		if gs.Pools[player] > 0 {
			owned := gs.OwnedBy(r.worldMap, player)
			if len(owned) == 0 {
				return risk.Action{}, false
			}
			// Round-robin: one army to the currently weakest territory.
			target := owned[0]
			for _, id := range owned {
				if gs.Territories[id].Armies < gs.Territories[target].Armies {
					target = id
				}
			}
			return risk.Action{Type: risk.ActionDeploy, Player: player, Territory: target, Armies: 1}, true
		}
		if gs.Phase == risk.PhaseInitialPlacement {
			// Pools empty mid-placement cannot happen; rotation already
			// skips exhausted players.
			return risk.Action{}, false
		}
		return risk.Action{Type: risk.ActionAdvancePhase, Player: player}, true
	case risk.PhaseAttack, risk.PhaseFortify:
		return risk.Action{Type: risk.ActionAdvancePhase, Player: player}, true
	default:
		return risk.Action{}, false
	}
}

// ExpiredTurns returns the codes of sessions whose turn deadline has
// passed. The polling fallback uses this when keyspace notifications are
// unavailable.
func (r *Registry) ExpiredTurns(now time.Time) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var codes []string
	for code, s := range r.sessions {
		s.mu.Lock()
		if !s.turnDeadline.IsZero() && now.After(s.turnDeadline) {
			s.turnDeadline = time.Time{}
			codes = append(codes, code)
		}
		s.mu.Unlock()
	}
	return codes
}

// persist writes the session snapshot to the state store. A failure is
// surfaced as PERSISTENCE_UNAVAILABLE and the caller must discard the
// candidate state.
func (r *Registry) persist(ctx context.Context, s *liveSession) error {
	data, err := json.Marshal(snapshot{Seq: s.seq, SavedAt: time.Now().UTC(), State: s.state})
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := r.store.SaveState(ctx, s.code, data); err != nil {
		log.Error().Err(err).Str("sessionCode", s.code).Msg("Snapshot write failed, rejecting action")
		return &risk.Rejection{
			Code:    risk.CodePersistenceUnavailable,
			Message: "durable storage unavailable, action not applied",
		}
	}
	return nil
}

// armTurnTimer (re)arms the auto-skip deadline for the session's current
// player. No-op when the policy is disabled.
func (r *Registry) armTurnTimer(ctx context.Context, s *liveSession) {
	if r.turnTimeout <= 0 {
		return
	}
	deadline := time.Now().Add(r.turnTimeout)
	s.turnDeadline = deadline
	if err := r.store.SetTurnTimer(ctx, s.code, deadline); err != nil {
		log.Warn().Err(err).Str("sessionCode", s.code).Msg("Failed to arm turn timer")
	}
}

// evict drops a session from memory only.
func (r *Registry) evict(code string) {
	r.mu.Lock()
	delete(r.sessions, code)
	r.mu.Unlock()
}

// resolve returns the live session for a code, restoring it from the state
// store if it is not resident. Missing sessions reject with
// SESSION_NOT_FOUND.
func (r *Registry) resolve(ctx context.Context, code string) (*liveSession, error) {
	s, err := r.lookup(ctx, code)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, &risk.Rejection{
			Code:    risk.CodeSessionNotFound,
			Message: fmt.Sprintf("no session %q", code),
		}
	}
	return s, nil
}

// lookup returns the live session or nil if neither memory nor the store
// has it.
func (r *Registry) lookup(ctx context.Context, code string) (*liveSession, error) {
	r.mu.RLock()
	s, ok := r.sessions[code]
	r.mu.RUnlock()
	if ok {
		return s, nil
	}
	return r.restore(ctx, code)
}

// restore loads a session snapshot from the state store into memory.
// Returns nil when no snapshot exists. Bindings start empty: every
// connection must re-announce after a restart.
func (r *Registry) restore(ctx context.Context, code string) (*liveSession, error) {
	data, err := r.store.LoadState(ctx, code)
	if err != nil {
		return nil, &risk.Rejection{
			Code:    risk.CodePersistenceUnavailable,
			Message: "durable storage unavailable",
		}
	}
	if data == nil {
		return nil, nil
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot for %s: %w", code, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Another goroutine may have restored it while we were reading.
	if existing, ok := r.sessions[code]; ok {
		return existing, nil
	}
	s := &liveSession{
		code:     code,
		state:    snap.State,
		seq:      snap.Seq,
		bindings: make(map[string]map[string]bool),
	}
	r.sessions[code] = s
	return s, nil
}
