package service

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/warfront-game/api/pkg/risk"
)

type fixture struct {
	repo    *mockSessionRepo
	store   *mockStateStore
	bc      *mockBroadcaster
	journal *journal
	reg     *Registry
}

func newFixture(turnTimeout time.Duration) *fixture {
	j := &journal{}
	f := &fixture{
		repo:    newMockSessionRepo(),
		store:   newMockStateStore(j),
		bc:      newMockBroadcaster(j),
		journal: j,
	}
	f.reg = NewRegistry(f.repo, f.store, f.bc, turnTimeout)
	f.reg.seedFunc = func() int64 { return 42 }
	return f
}

// startSession initializes a two-player session and announces both players,
// leaving the game in initial placement.
func startSession(t *testing.T, f *fixture, code string) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.reg.Initialize(ctx, code, []string{"alice", "bob"}, nil); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if err := f.reg.Announce(ctx, code, "conn-alice", []string{"alice"}); err != nil {
		t.Fatalf("Announce alice failed: %v", err)
	}
	if err := f.reg.Announce(ctx, code, "conn-bob", []string{"bob"}); err != nil {
		t.Fatalf("Announce bob failed: %v", err)
	}
}

// connFor maps the players used by startSession to their connections.
func connFor(player string) string { return "conn-" + player }

// drainPlacement plays legal single-army deploys until initial placement
// completes and the first turn begins.
func drainPlacement(t *testing.T, f *fixture, code string) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < 200; i++ {
		st, _, err := f.reg.State(ctx, code)
		if err != nil {
			t.Fatalf("State failed: %v", err)
		}
		if st.Phase != risk.PhaseInitialPlacement {
			return
		}
		player := st.CurrentPlayerName()
		owned := st.OwnedBy(f.reg.worldMap, player)
		action := risk.Action{Type: risk.ActionDeploy, Player: player, Territory: owned[0], Armies: 1}
		if err := f.reg.Submit(ctx, code, connFor(player), action); err != nil {
			t.Fatalf("placement deploy by %s failed: %v", player, err)
		}
	}
	t.Fatal("initial placement did not terminate")
}

func TestInitializeCreatesSession(t *testing.T) {
	f := newFixture(0)
	ctx := context.Background()

	state, err := f.reg.Initialize(ctx, "ABCD", []string{"alice", "bob"}, []string{"red", "blue"})
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if state.Phase != risk.PhaseInitialSetup {
		t.Errorf("expected initial_setup, got %s", state.Phase)
	}
	if state.Seed != 42 {
		t.Errorf("expected seed 42, got %d", state.Seed)
	}

	rec, err := f.repo.FindByCode(ctx, "ABCD")
	if err != nil || rec == nil {
		t.Fatalf("expected session record, got %v, %v", rec, err)
	}
	if len(rec.Players) != 2 || rec.Players[0].Color != "red" {
		t.Errorf("unexpected roster: %+v", rec.Players)
	}

	if data, _ := f.store.LoadState(ctx, "ABCD"); data == nil {
		t.Error("expected a snapshot in the state store")
	}
	if got := f.bc.sessionEvents(EventInitialized); len(got) != 1 {
		t.Errorf("expected 1 initialized broadcast, got %d", len(got))
	}
}

func TestInitializeDuplicateCode(t *testing.T) {
	f := newFixture(0)
	ctx := context.Background()

	if _, err := f.reg.Initialize(ctx, "ABCD", []string{"alice", "bob"}, nil); err != nil {
		t.Fatalf("first Initialize failed: %v", err)
	}
	_, err := f.reg.Initialize(ctx, "ABCD", []string{"carol", "dave"}, nil)
	if !errors.Is(err, ErrSessionExists) {
		t.Errorf("expected ErrSessionExists, got %v", err)
	}
}

func TestInitializeConcurrentSameCode(t *testing.T) {
	f := newFixture(0)
	ctx := context.Background()

	const racers = 8
	errs := make(chan error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.reg.Initialize(ctx, "ABCD", []string{"alice", "bob"}, nil)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	wins, losses := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrSessionExists):
			losses++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 1 || losses != racers-1 {
		t.Errorf("expected 1 winner and %d ErrSessionExists, got %d/%d", racers-1, wins, losses)
	}
	// Exactly one durable record was created.
	if rec, _ := f.repo.FindByCode(ctx, "ABCD"); rec == nil {
		t.Error("expected a session record for the winner")
	}
}

func TestInitializePersistenceFailureLeavesNoResidue(t *testing.T) {
	f := newFixture(0)
	ctx := context.Background()

	f.store.saveErr = errors.New("redis is down")
	_, err := f.reg.Initialize(ctx, "ABCD", []string{"alice", "bob"}, nil)
	rej := risk.AsRejection(err)
	if rej == nil || rej.Code != risk.CodePersistenceUnavailable {
		t.Fatalf("expected PERSISTENCE_UNAVAILABLE, got %v", err)
	}

	// The failed create must not leave a resident session behind.
	_, _, err = f.reg.State(ctx, "ABCD")
	rej = risk.AsRejection(err)
	if rej == nil || rej.Code != risk.CodeSessionNotFound {
		t.Errorf("expected SESSION_NOT_FOUND after failed create, got %v", err)
	}
}

func TestInitializeAssignsDefaultColors(t *testing.T) {
	f := newFixture(0)
	state, err := f.reg.Initialize(context.Background(), "ABCD", []string{"alice", "bob", "carol"}, []string{"", "orange"})
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if state.Players[0].Color != "red" {
		t.Errorf("expected default red for alice, got %s", state.Players[0].Color)
	}
	if state.Players[1].Color != "orange" {
		t.Errorf("expected explicit orange for bob, got %s", state.Players[1].Color)
	}
	if state.Players[2].Color != "green" {
		t.Errorf("expected default green for carol, got %s", state.Players[2].Color)
	}
}

func TestAnnounceUnknownPlayer(t *testing.T) {
	f := newFixture(0)
	ctx := context.Background()
	if _, err := f.reg.Initialize(ctx, "ABCD", []string{"alice", "bob"}, nil); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	err := f.reg.Announce(ctx, "ABCD", "conn-1", []string{"mallory"})
	if !errors.Is(err, ErrUnknownPlayer) {
		t.Errorf("expected ErrUnknownPlayer, got %v", err)
	}
}

func TestAnnounceAllPlayersStartsPlacement(t *testing.T) {
	f := newFixture(0)
	ctx := context.Background()
	startSession(t, f, "ABCD")

	st, _, err := f.reg.State(ctx, "ABCD")
	if err != nil {
		t.Fatalf("State failed: %v", err)
	}
	if st.Phase != risk.PhaseInitialPlacement {
		t.Errorf("expected initial_placement after all announce, got %s", st.Phase)
	}
	if len(f.repo.activated) != 1 || f.repo.activated[0] != "ABCD" {
		t.Errorf("expected session marked active, got %v", f.repo.activated)
	}
	if got := f.bc.sessionEvents(EventPhaseChanged); len(got) != 1 {
		t.Errorf("expected 1 phase_changed broadcast, got %d", len(got))
	}
}

func TestAnnounceSingleConnectionForAllPlayers(t *testing.T) {
	f := newFixture(0)
	ctx := context.Background()
	if _, err := f.reg.Initialize(ctx, "ABCD", []string{"alice", "bob"}, nil); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	// One connection may drive every seat (hotseat or test harness).
	if err := f.reg.Announce(ctx, "ABCD", "conn-1", []string{"alice", "bob"}); err != nil {
		t.Fatalf("Announce failed: %v", err)
	}
	st, _, _ := f.reg.State(ctx, "ABCD")
	if st.Phase != risk.PhaseInitialPlacement {
		t.Errorf("expected placement once one connection covers all players, got %s", st.Phase)
	}
}

func TestSubmitUnauthorizedConnection(t *testing.T) {
	f := newFixture(0)
	ctx := context.Background()
	startSession(t, f, "ABCD")

	st, seq, _ := f.reg.State(ctx, "ABCD")
	player := st.CurrentPlayerName()
	owned := st.OwnedBy(f.reg.worldMap, player)

	err := f.reg.Submit(ctx, "ABCD", "conn-stranger", risk.Action{
		Type: risk.ActionDeploy, Player: player, Territory: owned[0], Armies: 1,
	})
	rej := risk.AsRejection(err)
	if rej == nil || rej.Code != risk.CodeUnauthorizedClient {
		t.Fatalf("expected UNAUTHORIZED_CLIENT, got %v", err)
	}

	after, afterSeq, _ := f.reg.State(ctx, "ABCD")
	if afterSeq != seq || !reflect.DeepEqual(st, after) {
		t.Error("rejected action must not change state")
	}
}

func TestSubmitOutOfTurn(t *testing.T) {
	f := newFixture(0)
	ctx := context.Background()
	startSession(t, f, "ABCD")

	st, seq, _ := f.reg.State(ctx, "ABCD")
	waiting := "alice"
	if st.CurrentPlayerName() == "alice" {
		waiting = "bob"
	}
	owned := st.OwnedBy(f.reg.worldMap, waiting)

	err := f.reg.Submit(ctx, "ABCD", connFor(waiting), risk.Action{
		Type: risk.ActionDeploy, Player: waiting, Territory: owned[0], Armies: 1,
	})
	rej := risk.AsRejection(err)
	if rej == nil || rej.Code != risk.CodeNotYourTurn {
		t.Fatalf("expected NOT_YOUR_TURN, got %v", err)
	}
	if _, afterSeq, _ := f.reg.State(ctx, "ABCD"); afterSeq != seq {
		t.Error("rejected action must not advance the sequence")
	}
}

func TestSubmitSnapshotsBeforeBroadcast(t *testing.T) {
	f := newFixture(0)
	ctx := context.Background()
	startSession(t, f, "ABCD")

	st, _, _ := f.reg.State(ctx, "ABCD")
	player := st.CurrentPlayerName()
	owned := st.OwnedBy(f.reg.worldMap, player)
	if err := f.reg.Submit(ctx, "ABCD", connFor(player), risk.Action{
		Type: risk.ActionDeploy, Player: player, Territory: owned[0], Armies: 1,
	}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	// The snapshot write for the action must land before its broadcast.
	entries := f.journal.all()
	lastSave, lastUpdate := -1, -1
	for i, e := range entries {
		if strings.HasPrefix(e, "save:") {
			lastSave = i
		}
		if e == "broadcast:"+EventStateUpdate {
			lastUpdate = i
		}
	}
	if lastUpdate == -1 {
		t.Fatal("expected a state_update broadcast")
	}
	if lastSave == -1 || lastSave > lastUpdate {
		t.Errorf("snapshot must precede broadcast, journal: %v", entries)
	}
}

func TestSubmitPersistenceFailure(t *testing.T) {
	f := newFixture(0)
	ctx := context.Background()
	startSession(t, f, "ABCD")

	st, seq, _ := f.reg.State(ctx, "ABCD")
	player := st.CurrentPlayerName()
	owned := st.OwnedBy(f.reg.worldMap, player)

	f.store.saveErr = errors.New("redis is down")
	updatesBefore := len(f.bc.sessionEvents(EventStateUpdate))

	err := f.reg.Submit(ctx, "ABCD", connFor(player), risk.Action{
		Type: risk.ActionDeploy, Player: player, Territory: owned[0], Armies: 1,
	})
	rej := risk.AsRejection(err)
	if rej == nil || rej.Code != risk.CodePersistenceUnavailable {
		t.Fatalf("expected PERSISTENCE_UNAVAILABLE, got %v", err)
	}

	after, afterSeq, _ := f.reg.State(ctx, "ABCD")
	if afterSeq != seq || !reflect.DeepEqual(st, after) {
		t.Error("failed snapshot must discard the candidate state")
	}
	if got := len(f.bc.sessionEvents(EventStateUpdate)); got != updatesBefore {
		t.Errorf("no broadcast may follow a failed snapshot, got %d new", got-updatesBefore)
	}

	// The store recovering means the same action goes through.
	f.store.saveErr = nil
	if err := f.reg.Submit(ctx, "ABCD", connFor(player), risk.Action{
		Type: risk.ActionDeploy, Player: player, Territory: owned[0], Armies: 1,
	}); err != nil {
		t.Fatalf("retry after recovery failed: %v", err)
	}
}

func TestRestoreAfterRestart(t *testing.T) {
	f := newFixture(0)
	ctx := context.Background()
	startSession(t, f, "ABCD")
	drainPlacement(t, f, "ABCD")

	before, beforeSeq, _ := f.reg.State(ctx, "ABCD")

	// A fresh registry over the same stores simulates a process restart.
	reg2 := NewRegistry(f.repo, f.store, f.bc, 0)
	if err := reg2.RecoverActiveSessions(ctx); err != nil {
		t.Fatalf("RecoverActiveSessions failed: %v", err)
	}
	after, afterSeq, err := reg2.State(ctx, "ABCD")
	if err != nil {
		t.Fatalf("State after restart failed: %v", err)
	}
	if afterSeq != beforeSeq || !reflect.DeepEqual(before, after) {
		t.Error("restored state must match the last snapshot")
	}

	// Bindings do not survive a restart: clients must announce again.
	player := after.CurrentPlayerName()
	owned := after.OwnedBy(reg2.worldMap, player)
	err = reg2.Submit(ctx, "ABCD", connFor(player), risk.Action{
		Type: risk.ActionDeploy, Player: player, Territory: owned[0], Armies: 1,
	})
	rej := risk.AsRejection(err)
	if rej == nil || rej.Code != risk.CodeUnauthorizedClient {
		t.Fatalf("expected UNAUTHORIZED_CLIENT before re-announce, got %v", err)
	}
	if err := reg2.Announce(ctx, "ABCD", connFor(player), []string{player}); err != nil {
		t.Fatalf("re-announce failed: %v", err)
	}
	if err := reg2.Submit(ctx, "ABCD", connFor(player), risk.Action{
		Type: risk.ActionDeploy, Player: player, Territory: owned[0], Armies: 1,
	}); err != nil {
		t.Fatalf("deploy after re-announce failed: %v", err)
	}
}

func TestSubmitUnknownSession(t *testing.T) {
	f := newFixture(0)
	err := f.reg.Submit(context.Background(), "NOPE", "conn-1", risk.Action{
		Type: risk.ActionDeploy, Player: "alice", Territory: "ala", Armies: 1,
	})
	rej := risk.AsRejection(err)
	if rej == nil || rej.Code != risk.CodeSessionNotFound {
		t.Errorf("expected SESSION_NOT_FOUND, got %v", err)
	}
}

func TestResyncSendsToOneConnection(t *testing.T) {
	f := newFixture(0)
	ctx := context.Background()
	startSession(t, f, "ABCD")

	broadcastsBefore := len(f.bc.session)
	_, seq, _ := f.reg.State(ctx, "ABCD")

	for i := 0; i < 3; i++ {
		if err := f.reg.Resync(ctx, "ABCD", "conn-alice"); err != nil {
			t.Fatalf("Resync failed: %v", err)
		}
	}

	f.bc.mu.Lock()
	direct := len(f.bc.direct)
	f.bc.mu.Unlock()
	if direct != 3 {
		t.Errorf("expected 3 direct events, got %d", direct)
	}
	if len(f.bc.session) != broadcastsBefore {
		t.Error("resync must not broadcast to the session")
	}
	if _, afterSeq, _ := f.reg.State(ctx, "ABCD"); afterSeq != seq {
		t.Error("resync must not advance the sequence")
	}
}

func TestDisconnectDropsBinding(t *testing.T) {
	f := newFixture(0)
	ctx := context.Background()
	startSession(t, f, "ABCD")

	st, _, _ := f.reg.State(ctx, "ABCD")
	player := st.CurrentPlayerName()
	owned := st.OwnedBy(f.reg.worldMap, player)

	f.reg.Disconnect(connFor(player))
	err := f.reg.Submit(ctx, "ABCD", connFor(player), risk.Action{
		Type: risk.ActionDeploy, Player: player, Territory: owned[0], Armies: 1,
	})
	rej := risk.AsRejection(err)
	if rej == nil || rej.Code != risk.CodeUnauthorizedClient {
		t.Errorf("expected UNAUTHORIZED_CLIENT after disconnect, got %v", err)
	}
}

func TestRemoveTearsDownSession(t *testing.T) {
	f := newFixture(0)
	ctx := context.Background()
	startSession(t, f, "ABCD")

	if err := f.reg.Remove(ctx, "ABCD"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if data, _ := f.store.LoadState(ctx, "ABCD"); data != nil {
		t.Error("expected state store entry removed")
	}
	if rec, _ := f.repo.FindByCode(ctx, "ABCD"); rec != nil {
		t.Error("expected durable record removed")
	}
	_, _, err := f.reg.State(ctx, "ABCD")
	rej := risk.AsRejection(err)
	if rej == nil || rej.Code != risk.CodeSessionNotFound {
		t.Errorf("expected SESSION_NOT_FOUND after removal, got %v", err)
	}
}

func TestForceCompleteTurnDuringPlacement(t *testing.T) {
	f := newFixture(time.Minute)
	ctx := context.Background()
	startSession(t, f, "ABCD")

	st, _, _ := f.reg.State(ctx, "ABCD")
	player := st.CurrentPlayerName()
	poolBefore := st.Pools[player]

	if err := f.reg.ForceCompleteTurn(ctx, "ABCD"); err != nil {
		t.Fatalf("ForceCompleteTurn failed: %v", err)
	}

	after, _, _ := f.reg.State(ctx, "ABCD")
	if after.CurrentPlayerName() == player {
		t.Error("expected rotation to hand off after the forced placement")
	}
	if after.Pools[player] != poolBefore-1 {
		t.Errorf("expected pool %d, got %d", poolBefore-1, after.Pools[player])
	}
}

func TestForceCompleteTurnFullRound(t *testing.T) {
	f := newFixture(time.Minute)
	ctx := context.Background()
	startSession(t, f, "ABCD")
	drainPlacement(t, f, "ABCD")

	st, _, _ := f.reg.State(ctx, "ABCD")
	if st.Phase != risk.PhaseReinforce {
		t.Fatalf("expected reinforce after placement, got %s", st.Phase)
	}
	player := st.CurrentPlayerName()

	if err := f.reg.ForceCompleteTurn(ctx, "ABCD"); err != nil {
		t.Fatalf("ForceCompleteTurn failed: %v", err)
	}

	after, _, _ := f.reg.State(ctx, "ABCD")
	if after.Phase != risk.PhaseReinforce {
		t.Errorf("expected next player's reinforce phase, got %s", after.Phase)
	}
	if after.CurrentPlayerName() == player {
		t.Error("expected the turn to pass to the next player")
	}
	if after.Pools[player] != 0 {
		t.Errorf("expected %s's reinforcements fully deployed, got %d", player, after.Pools[player])
	}
}

func TestExpiredTurns(t *testing.T) {
	f := newFixture(time.Minute)
	startSession(t, f, "ABCD")

	if got := f.reg.ExpiredTurns(time.Now()); len(got) != 0 {
		t.Errorf("deadline not reached, got %v", got)
	}
	future := time.Now().Add(2 * time.Minute)
	got := f.reg.ExpiredTurns(future)
	if len(got) != 1 || got[0] != "ABCD" {
		t.Fatalf("expected [ABCD], got %v", got)
	}
	// The deadline is consumed: a second sweep reports nothing.
	if got := f.reg.ExpiredTurns(future); len(got) != 0 {
		t.Errorf("expected consumed deadline, got %v", got)
	}
}

func TestTurnTimerDisabledByDefault(t *testing.T) {
	f := newFixture(0)
	startSession(t, f, "ABCD")

	if got := f.reg.ExpiredTurns(time.Now().Add(24 * time.Hour)); len(got) != 0 {
		t.Errorf("timer disabled, expected no expirations, got %v", got)
	}
	f.store.mu.Lock()
	timers := len(f.store.timers)
	f.store.mu.Unlock()
	if timers != 0 {
		t.Errorf("timer disabled, expected no timer keys, got %d", timers)
	}
}
