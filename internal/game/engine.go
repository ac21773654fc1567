// Package game runs the continuously repeating party crisis rounds:
// an open betting window, a killer picking a room, and a pari-mutuel
// settlement that pays the surviving bets from the doomed room's pool.
package game

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/debearparty/backend/internal/config"
	"github.com/debearparty/backend/internal/models"
)

const historyCap = 20

var (
	ErrNotBetting  = errors.New("betting is closed for this round")
	ErrInvalidRoom = errors.New("invalid room")
	ErrBetRange    = errors.New("bet amount out of range")
	ErrRoomChange  = errors.New("cannot change room within a round")
	ErrRoundOver   = errors.New("round changed, bet not admitted")
	ErrNoAdminSlot = errors.New("target can only be set in the last seconds of betting")
)

// SettlementLedger is the slice of the balance ledger settlement needs.
type SettlementLedger interface {
	Credit(ctx context.Context, address string, amount float64, txType string, gameID int64, description string) (float64, error)
}

// Engine owns the current round and the recent past. Time only moves
// when Tick is called, once per second by the scheduler.
type Engine struct {
	mu  sync.Mutex
	cfg *config.Config
	led SettlementLedger

	cur        *Game
	retired    map[int64]*Game
	playerGame map[string]int64 // address -> last round the player bet in
	history    []HistoryEntry

	adminTarget int // one-shot override, -1 when unset
	tick        int64
	nextID      int64

	broadcast func(Snapshot)
	rng       *rand.Rand
	now       func() time.Time
}

func NewEngine(cfg *config.Config, led SettlementLedger) *Engine {
	e := &Engine{
		cfg:         cfg,
		led:         led,
		retired:     make(map[int64]*Game),
		playerGame:  make(map[string]int64),
		adminTarget: -1,
		nextID:      time.Now().UnixMilli(),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		now:         time.Now,
	}
	e.cur = e.newGame()
	log.Printf("[GAME] Engine started, round %d open for betting", e.cur.ID)
	return e
}

// SetBroadcast registers the snapshot fan-out hook, normally the
// websocket hub.
func (e *Engine) SetBroadcast(fn func(Snapshot)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.broadcast = fn
}

func (e *Engine) newGame() *Game {
	e.nextID++
	g := &Game{
		ID:         e.nextID,
		Phase:      PhaseBetting,
		Countdown:  e.cfg.BettingDuration,
		StartedAt:  e.now(),
		playerBets: make(map[string]*PlayerBet),
		targetRoom: -1,
	}
	for i := range g.roomTargets {
		g.roomTargets[i] = e.cfg.RoomBetMin + e.rng.Float64()*(e.cfg.RoomBetMax-e.cfg.RoomBetMin)
	}
	return g
}

// Tick advances the round by one second. It drives the countdown, the
// synthetic bettors, phase transitions, and the retired-round sweep.
func (e *Engine) Tick(ctx context.Context) {
	e.mu.Lock()
	e.tick++
	g := e.cur
	g.Countdown--

	switch g.Phase {
	case PhaseBetting:
		e.runBots(g)
		if g.Countdown <= 0 {
			e.closeBetting(g)
		}
	case PhaseKiller:
		if g.Countdown <= 0 {
			e.settle(ctx, g)
		}
	case PhaseSettling:
		if g.Countdown <= 0 {
			e.retire(g)
			e.cur = e.newGame()
			log.Printf("[GAME] Round %d open for betting", e.cur.ID)
		}
	}

	e.sweepRetired()
	snap := e.snapshotLocked()
	fn := e.broadcast
	e.mu.Unlock()

	if fn != nil {
		fn(snap)
	}
}

// closeBetting moves the round into the killer phase and fixes the
// target room. An armed admin override wins, once.
func (e *Engine) closeBetting(g *Game) {
	if e.adminTarget >= 0 {
		g.targetRoom = e.adminTarget
		e.adminTarget = -1
		log.Printf("[GAME] Round %d target set by override: room %d", g.ID, g.targetRoom)
	} else {
		g.targetRoom = e.rng.Intn(NumRooms)
	}
	g.Phase = PhaseKiller
	g.Countdown = e.cfg.KillerDuration
	log.Printf("[GAME] Round %d betting closed: %d players, killer moving", g.ID, len(g.playerBets))
}

// settle pays the surviving bets from the doomed room's pool, minus the
// platform fee. Synthetic bets feed the pool but never collect.
func (e *Engine) settle(ctx context.Context, g *Game) {
	struck := g.roomTotal(g.targetRoom)
	fee := struck * e.cfg.PlatformFee
	// The pool everyone sees is the fee-adjusted prize.
	pool := struck - fee

	weight := 0.0
	for _, b := range g.playerBets {
		if b.Room != g.targetRoom {
			weight += b.Amount
		}
	}

	payouts := make(map[string]float64)
	var eliminated, survivors []ResultLine
	for addr, b := range g.playerBets {
		if b.Room == g.targetRoom {
			eliminated = append(eliminated, ResultLine{
				Address: addr, Name: b.Name, Room: b.Room,
				Bet: b.Amount, Payout: 0, Net: -b.Amount,
			})
			continue
		}
		payout := b.Amount
		if weight > 0 {
			payout += pool * b.Amount / weight
		}
		payouts[addr] = payout
		survivors = append(survivors, ResultLine{
			Address: addr, Name: b.Name, Room: b.Room,
			Bet: b.Amount, Payout: payout, Net: payout - b.Amount,
		})
		if _, err := e.led.Credit(ctx, addr, payout, models.TxReward, g.ID,
			fmt.Sprintf("party_crisis_win room %d", b.Room)); err != nil {
			log.Printf("[GAME] Failed to credit %s with %.2f for round %d: %v", addr, payout, g.ID, err)
		}
	}

	g.Result = &Result{
		TargetRoom: g.targetRoom,
		Pool:       pool,
		Fee:        fee,
		Eliminated: eliminated,
		Survivors:  survivors,
		Payouts:    payouts,
	}
	g.Phase = PhaseSettling
	g.Countdown = e.cfg.SettlingDuration

	e.history = append(e.history, HistoryEntry{
		GameID:     g.ID,
		TargetRoom: g.targetRoom,
		RoomName:   RoomNames[g.targetRoom],
		Pool:       pool,
		Victims:    len(eliminated),
		Survivors:  len(survivors),
		EndedAt:    e.now(),
	})
	if len(e.history) > historyCap {
		e.history = e.history[len(e.history)-historyCap:]
	}
	log.Printf("[GAME] Round %d settled: killer hit room %d (%s), pool %.2f, %d survivors paid",
		g.ID, g.targetRoom, RoomNames[g.targetRoom], pool, len(survivors))
}

func (e *Engine) retire(g *Game) {
	g.EndedAt = e.now()
	e.retired[g.ID] = g
}

// sweepRetired drops settled rounds past the retention window.
func (e *Engine) sweepRetired() {
	cutoff := e.now().Add(-time.Duration(e.cfg.RetentionMinutes) * time.Minute)
	for id, g := range e.retired {
		if g.EndedAt.Before(cutoff) {
			delete(e.retired, id)
			for addr, gid := range e.playerGame {
				if gid == id {
					delete(e.playerGame, addr)
				}
			}
		}
	}
}

// ValidateBet checks a bet against the current round without admitting
// it. Returns the round ID the bet would join; AddBet admits it only
// into that same round.
func (e *Engine) ValidateBet(address string, room int, amount float64) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.validateLocked(address, room, amount)
}

func (e *Engine) validateLocked(address string, room int, amount float64) (int64, error) {
	g := e.cur
	if g.Phase != PhaseBetting || g.Countdown <= 0 {
		return 0, ErrNotBetting
	}
	if room < 0 || room >= NumRooms {
		return 0, ErrInvalidRoom
	}
	if amount < e.cfg.MinBet || amount > e.cfg.MaxBet {
		return 0, ErrBetRange
	}
	if b, ok := g.playerBets[address]; ok && b.Room != room {
		return 0, ErrRoomChange
	}
	return g.ID, nil
}

// AddBet admits a bet whose funds have already been debited. A repeat
// bet on the same room tops up the existing record. It re-validates
// against the round; on error the caller must refund.
func (e *Engine) AddBet(gameID int64, address string, room int, amount float64, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cur.ID != gameID {
		return ErrRoundOver
	}
	if _, err := e.validateLocked(address, room, amount); err != nil {
		return err
	}
	if b, ok := e.cur.playerBets[address]; ok {
		b.Amount += amount
	} else {
		if name == "" {
			name = fmt.Sprintf("Player%d", len(e.cur.playerBets)+1)
		}
		e.cur.playerBets[address] = &PlayerBet{
			Address:  address,
			Name:     name,
			Room:     room,
			Amount:   amount,
			PlacedAt: e.now(),
		}
	}
	e.playerGame[address] = gameID
	return nil
}

// PlayerRound returns the round the address last bet in, either the
// current one or a retired one still inside the retention window.
func (e *Engine) PlayerRound(address string) (*Game, *PlayerBet, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id, ok := e.playerGame[address]
	if !ok {
		return nil, nil, false
	}
	g := e.cur
	if g.ID != id {
		g, ok = e.retired[id]
		if !ok {
			return nil, nil, false
		}
	}
	b, ok := g.playerBets[address]
	if !ok {
		return nil, nil, false
	}
	bet := *b
	cp := *g
	return &cp, &bet, true
}

// SetAdminTarget arms the one-shot target override. Only accepted in
// the final seconds of the betting phase.
func (e *Engine) SetAdminTarget(room int) error {
	if room < 0 || room >= NumRooms {
		return ErrInvalidRoom
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	g := e.cur
	if g.Phase != PhaseBetting || g.Countdown > e.cfg.AdminTargetWindowSecs {
		return ErrNoAdminSlot
	}
	e.adminTarget = room
	log.Printf("[GAME] Target override armed for round %d: room %d", g.ID, room)
	return nil
}

// Status returns the public snapshot with the trailing history
// truncated to the newest ten rounds.
func (e *Engine) Status() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	snap := e.snapshotLocked()
	if len(snap.History) > 10 {
		snap.History = snap.History[len(snap.History)-10:]
	}
	return snap
}

// History returns every retained settled round, oldest first.
func (e *Engine) History() []HistoryEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]HistoryEntry, len(e.history))
	copy(out, e.history)
	return out
}

func (e *Engine) snapshotLocked() Snapshot {
	g := e.cur
	rooms := make([]RoomStatus, NumRooms)
	for i := range rooms {
		rooms[i] = RoomStatus{
			Room:    i,
			Name:    RoomNames[i],
			Total:   g.roomTotal(i),
			Players: g.playersInRoom(i),
		}
	}
	target := -1
	var result *Result
	if g.Phase == PhaseSettling {
		target = g.targetRoom
		result = g.Result
	}
	history := make([]HistoryEntry, len(e.history))
	copy(history, e.history)
	return Snapshot{
		GameID:     g.ID,
		Phase:      g.Phase,
		Countdown:  g.Countdown,
		Rooms:      rooms,
		TargetRoom: target,
		Players:    len(g.playerBets),
		Bots:       len(g.botBets),
		Result:     result,
		History:    history,
	}
}

// AdminStatus is Status without the target concealment, for operators.
func (e *Engine) AdminStatus() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	snap := e.snapshotLocked()
	snap.TargetRoom = e.cur.targetRoom
	snap.Result = e.cur.Result
	return snap
}
