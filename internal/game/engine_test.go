package game

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/debearparty/backend/internal/config"
)

type fakeLedger struct {
	mu      sync.Mutex
	credits map[string]float64
	calls   int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{credits: make(map[string]float64)}
}

func (f *fakeLedger) Credit(_ context.Context, address string, amount float64, _ string, _ int64, _ string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.credits[address] += amount
	f.calls++
	return f.credits[address], nil
}

func testConfig() *config.Config {
	return &config.Config{
		BettingDuration:       5,
		KillerDuration:        2,
		SettlingDuration:      1,
		MinBet:                1,
		MaxBet:                500,
		PlatformFee:           0.10,
		RoomBetMin:            4200,
		RoomBetMax:            5800,
		BotBetMin:             50,
		BotBetMax:             600,
		BotCountMax:           0, // deterministic rounds unless a test opts in
		RetentionMinutes:      10,
		AdminTargetWindowSecs: 5,
	}
}

func tickN(e *Engine, n int) {
	for i := 0; i < n; i++ {
		e.Tick(context.Background())
	}
}

func placeBet(t *testing.T, e *Engine, address string, room int, amount float64) {
	t.Helper()
	id, err := e.ValidateBet(address, room, amount)
	if err != nil {
		t.Fatalf("ValidateBet(%s) returned %v", address, err)
	}
	if err := e.AddBet(id, address, room, amount, ""); err != nil {
		t.Fatalf("AddBet(%s) returned %v", address, err)
	}
}

func TestBetValidation(t *testing.T) {
	e := NewEngine(testConfig(), newFakeLedger())

	if _, err := e.ValidateBet("0xa", -1, 10); err != ErrInvalidRoom {
		t.Errorf("room -1: got %v, want ErrInvalidRoom", err)
	}
	if _, err := e.ValidateBet("0xa", NumRooms, 10); err != ErrInvalidRoom {
		t.Errorf("room %d: got %v, want ErrInvalidRoom", NumRooms, err)
	}
	if _, err := e.ValidateBet("0xa", 0, 0.5); err != ErrBetRange {
		t.Errorf("below minimum: got %v, want ErrBetRange", err)
	}
	if _, err := e.ValidateBet("0xa", 0, 501); err != ErrBetRange {
		t.Errorf("above maximum: got %v, want ErrBetRange", err)
	}

	placeBet(t, e, "0xa", 0, 10)
	if _, err := e.ValidateBet("0xa", 1, 10); err != ErrRoomChange {
		t.Errorf("bet on a different room: got %v, want ErrRoomChange", err)
	}
}

func TestRepeatBetSameRoomAccumulates(t *testing.T) {
	e := NewEngine(testConfig(), newFakeLedger())

	placeBet(t, e, "0xa", 2, 10)
	placeBet(t, e, "0xa", 2, 15)

	_, bet, ok := e.PlayerRound("0xa")
	if !ok {
		t.Fatal("bet not found")
	}
	if bet.Amount != 25 {
		t.Errorf("accumulated amount = %.2f, want 25", bet.Amount)
	}
	if e.Status().Players != 1 {
		t.Errorf("players = %d, want 1", e.Status().Players)
	}
}

func TestBetRejectedOutsideBettingPhase(t *testing.T) {
	e := NewEngine(testConfig(), newFakeLedger())
	tickN(e, 5) // betting closes

	if e.Status().Phase != PhaseKiller {
		t.Fatalf("phase = %s, want %s", e.Status().Phase, PhaseKiller)
	}
	if _, err := e.ValidateBet("0xa", 0, 10); err != ErrNotBetting {
		t.Errorf("got %v, want ErrNotBetting", err)
	}
}

func TestAddBetRefusedAfterRoundChange(t *testing.T) {
	e := NewEngine(testConfig(), newFakeLedger())

	id, err := e.ValidateBet("0xa", 0, 10)
	if err != nil {
		t.Fatalf("ValidateBet returned %v", err)
	}
	tickN(e, 8) // betting + killer + settling, next round opens

	if err := e.AddBet(id, "0xa", 0, 10, ""); err != ErrRoundOver {
		t.Errorf("got %v, want ErrRoundOver", err)
	}
}

func TestSettlementPaysSurvivorsFromDoomedPool(t *testing.T) {
	led := newFakeLedger()
	e := NewEngine(testConfig(), led)

	placeBet(t, e, "0xalice", 0, 100)
	placeBet(t, e, "0xbob", 1, 300)

	if err := e.SetAdminTarget(0); err != nil {
		t.Fatalf("SetAdminTarget returned %v", err)
	}
	tickN(e, 7) // close betting, killer moves, settle

	snap := e.Status()
	if snap.Phase != PhaseSettling {
		t.Fatalf("phase = %s, want %s", snap.Phase, PhaseSettling)
	}
	if snap.TargetRoom != 0 {
		t.Errorf("revealed target = %d, want 0", snap.TargetRoom)
	}

	// Alice's doomed 100 feeds the pool; the 10 percent fee leaves 90 for Bob,
	// the only survivor, on top of his returned principal.
	if got := led.credits["0xalice"]; got != 0 {
		t.Errorf("alice credited %.2f, want 0", got)
	}
	if got, want := led.credits["0xbob"], 390.0; math.Abs(got-want) > 1e-9 {
		t.Errorf("bob credited %.2f, want %.2f", got, want)
	}
	if led.calls != 1 {
		t.Errorf("credit calls = %d, want 1", led.calls)
	}

	res := snap.Result
	if res == nil {
		t.Fatal("settling snapshot carries no result")
	}
	// Reported pool is fee-adjusted: 100 struck, 10 percent fee.
	if math.Abs(res.Pool-90) > 1e-9 || math.Abs(res.Fee-10) > 1e-9 {
		t.Errorf("pool/fee = %.2f/%.2f, want 90/10", res.Pool, res.Fee)
	}
	if h := e.History(); len(h) == 0 || math.Abs(h[len(h)-1].Pool-90) > 1e-9 {
		t.Error("history should report the fee-adjusted pool")
	}
	if len(res.Eliminated) != 1 || res.Eliminated[0].Address != "0xalice" {
		t.Fatalf("eliminated = %+v, want alice alone", res.Eliminated)
	}
	if got := res.Eliminated[0].Net; got != -100 {
		t.Errorf("alice net = %.2f, want -100", got)
	}
	if len(res.Survivors) != 1 || res.Survivors[0].Address != "0xbob" {
		t.Fatalf("survivors = %+v, want bob alone", res.Survivors)
	}
	if got := res.Survivors[0].Net; math.Abs(got-90) > 1e-9 {
		t.Errorf("bob net = %.2f, want 90", got)
	}
}

func TestSurvivorsSplitPoolProRata(t *testing.T) {
	led := newFakeLedger()
	e := NewEngine(testConfig(), led)

	placeBet(t, e, "0xalice", 0, 200)
	placeBet(t, e, "0xbob", 1, 100)
	placeBet(t, e, "0xcarol", 2, 300)

	if err := e.SetAdminTarget(0); err != nil {
		t.Fatalf("SetAdminTarget returned %v", err)
	}
	tickN(e, 7)

	// Pool 200, fee 20, 180 split 1:3 between bob and carol.
	if got, want := led.credits["0xbob"], 100+45.0; math.Abs(got-want) > 1e-9 {
		t.Errorf("bob credited %.2f, want %.2f", got, want)
	}
	if got, want := led.credits["0xcarol"], 300+135.0; math.Abs(got-want) > 1e-9 {
		t.Errorf("carol credited %.2f, want %.2f", got, want)
	}
}

func TestRoundsRepeatWithoutGap(t *testing.T) {
	e := NewEngine(testConfig(), newFakeLedger())
	first := e.Status().GameID

	tickN(e, 8) // full round

	snap := e.Status()
	if snap.Phase != PhaseBetting {
		t.Fatalf("phase after full round = %s, want %s", snap.Phase, PhaseBetting)
	}
	if snap.GameID == first {
		t.Error("round ID did not advance")
	}
	if snap.Countdown != testConfig().BettingDuration {
		t.Errorf("countdown = %d, want full betting window", snap.Countdown)
	}
}

func TestAdminOverrideIsOneShot(t *testing.T) {
	e := NewEngine(testConfig(), newFakeLedger())

	if err := e.SetAdminTarget(3); err != nil {
		t.Fatalf("SetAdminTarget returned %v", err)
	}
	tickN(e, 7)

	if got := e.Status().TargetRoom; got != 3 {
		t.Fatalf("first round target = %d, want 3", got)
	}
	if e.adminTarget != -1 {
		t.Error("override should be cleared after use")
	}
}

func TestAdminOverrideOnlyNearBettingClose(t *testing.T) {
	cfg := testConfig()
	cfg.BettingDuration = 10
	cfg.AdminTargetWindowSecs = 2
	e := NewEngine(cfg, newFakeLedger())

	if err := e.SetAdminTarget(1); err != ErrNoAdminSlot {
		t.Errorf("early override: got %v, want ErrNoAdminSlot", err)
	}

	tickN(e, 8) // countdown now 2
	if err := e.SetAdminTarget(1); err != nil {
		t.Errorf("override inside window returned %v", err)
	}
}

func TestTargetHiddenUntilSettling(t *testing.T) {
	e := NewEngine(testConfig(), newFakeLedger())
	tickN(e, 5) // killer phase

	if got := e.Status().TargetRoom; got != -1 {
		t.Errorf("target revealed during killer phase: %d", got)
	}
	tickN(e, 2) // settling
	if got := e.Status().TargetRoom; got < 0 || got >= NumRooms {
		t.Errorf("settling target = %d, want a valid room", got)
	}
}

func TestBotsFillRoomsTowardTargets(t *testing.T) {
	cfg := testConfig()
	cfg.BettingDuration = 60
	cfg.BotCountMax = 90
	e := NewEngine(cfg, newFakeLedger())

	tickN(e, 59) // stop just before the close

	g := e.cur
	if len(g.botBets) == 0 {
		t.Fatal("no synthetic bets placed over a full betting window")
	}
	if len(g.botBets) > cfg.BotCountMax {
		t.Errorf("bot count %d over cap %d", len(g.botBets), cfg.BotCountMax)
	}
	total := 0.0
	for _, b := range g.botBets {
		if b.Amount < cfg.BotBetMin || b.Amount > cfg.BotBetMax {
			t.Errorf("synthetic bet %.2f outside [%v, %v]", b.Amount, cfg.BotBetMin, cfg.BotBetMax)
		}
		if b.Name == "" {
			t.Error("synthetic bet missing a name")
		}
		total += b.Amount
	}
	if total <= 0 {
		t.Error("synthetic volume should be positive")
	}
}

func TestBotAmountStaysInBand(t *testing.T) {
	cfg := testConfig()
	e := NewEngine(cfg, newFakeLedger())
	e.cur.roomTargets[0] = 1e9 // deficit far beyond the band

	for i := 0; i < 200; i++ {
		a := e.botAmount(e.cur, 0)
		if a < cfg.BotBetMin || a > cfg.BotBetMax {
			t.Fatalf("synthetic bet %.2f outside [%v, %v]", a, cfg.BotBetMin, cfg.BotBetMax)
		}
	}
}

func TestHistoryCapAndStatusTruncation(t *testing.T) {
	e := NewEngine(testConfig(), newFakeLedger())

	tickN(e, 8*25) // 25 full rounds

	if got := len(e.History()); got != historyCap {
		t.Errorf("history length = %d, want %d", got, historyCap)
	}
	if got := len(e.Status().History); got != 10 {
		t.Errorf("status history length = %d, want 10", got)
	}
}

func TestPlayerRoundSurvivesRetention(t *testing.T) {
	e := NewEngine(testConfig(), newFakeLedger())
	base := time.Now()
	e.now = func() time.Time { return base }

	placeBet(t, e, "0xalice", 2, 50)
	tickN(e, 8) // round retires

	g, bet, ok := e.PlayerRound("0xalice")
	if !ok {
		t.Fatal("retired round should still be queryable")
	}
	if g.Result == nil {
		t.Error("retired round should carry its result")
	}
	if bet.Room != 2 || bet.Amount != 50 {
		t.Errorf("bet = room %d amount %.2f, want room 2 amount 50", bet.Room, bet.Amount)
	}

	// Past the retention window the round is swept.
	e.now = func() time.Time { return base.Add(11 * time.Minute) }
	tickN(e, 1)
	if _, _, ok := e.PlayerRound("0xalice"); ok {
		t.Error("round should be gone after the retention window")
	}
}

func TestBroadcastEveryTick(t *testing.T) {
	e := NewEngine(testConfig(), newFakeLedger())
	var snaps []Snapshot
	e.SetBroadcast(func(s Snapshot) { snaps = append(snaps, s) })

	tickN(e, 3)

	if len(snaps) != 3 {
		t.Fatalf("broadcasts = %d, want 3", len(snaps))
	}
	if snaps[0].Countdown <= snaps[2].Countdown {
		t.Error("countdown should fall across ticks")
	}
}
