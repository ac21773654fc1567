package game

import (
	"time"
)

// Game phases. The loop is betting -> killer_moving -> settling and
// immediately back to betting for the next round.
const (
	PhaseBetting  = "betting"
	PhaseKiller   = "killer_moving"
	PhaseSettling = "settling"
)

const NumRooms = 8

// RoomNames indexes the party venue's rooms. Room numbers in the API
// are zero-based indexes into this list.
var RoomNames = [NumRooms]string{
	"Office",
	"Bar",
	"Lounge",
	"VIP Box",
	"Dining Hall",
	"Suites",
	"Restaurant",
	"Dance Floor",
}

// PlayerBet is a real wager backed by a ledger debit. Re-bets from the
// same address accumulate into one record as long as the room matches.
type PlayerBet struct {
	Address  string    `json:"address"`
	Name     string    `json:"name"`
	Room     int       `json:"room"`
	Amount   float64   `json:"amount"`
	PlacedAt time.Time `json:"placed_at"`
}

// BotBet is a synthetic wager. It fills the board and feeds the pool
// but never collects a payout.
type BotBet struct {
	Name   string  `json:"name"`
	Room   int     `json:"room"`
	Amount float64 `json:"amount"`
}

// ResultLine records how one real player came out of a round.
type ResultLine struct {
	Address string  `json:"address"`
	Name    string  `json:"name"`
	Room    int     `json:"room"`
	Bet     float64 `json:"bet"`
	Payout  float64 `json:"payout"`
	Net     float64 `json:"net"`
}

// Result is the settlement outcome of a finished round.
type Result struct {
	TargetRoom int                `json:"target_room"`
	Pool       float64            `json:"pool"`
	Fee        float64            `json:"fee"`
	Eliminated []ResultLine       `json:"eliminated"`
	Survivors  []ResultLine       `json:"survivors"`
	Payouts    map[string]float64 `json:"payouts"`
}

// Game is one round of the party crisis.
type Game struct {
	ID        int64     `json:"id"`
	Phase     string    `json:"phase"`
	Countdown int       `json:"countdown"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`

	// roomTargets is the bot volume each room trends toward.
	roomTargets [NumRooms]float64
	botTotals   [NumRooms]float64
	botBets     []BotBet

	playerBets map[string]*PlayerBet
	targetRoom int // -1 until the killer picks

	Result *Result `json:"result,omitempty"`
}

// roomTotal is the combined player and synthetic volume in a room.
func (g *Game) roomTotal(room int) float64 {
	total := g.botTotals[room]
	for _, b := range g.playerBets {
		if b.Room == room {
			total += b.Amount
		}
	}
	return total
}

func (g *Game) playersInRoom(room int) int {
	n := 0
	for _, b := range g.playerBets {
		if b.Room == room {
			n++
		}
	}
	return n
}

// RoomStatus is the public view of one room.
type RoomStatus struct {
	Room    int     `json:"room"`
	Name    string  `json:"name"`
	Total   float64 `json:"total"`
	Players int     `json:"players"`
}

// HistoryEntry summarizes a settled round.
type HistoryEntry struct {
	GameID     int64     `json:"game_id"`
	TargetRoom int       `json:"target_room"`
	RoomName   string    `json:"room_name"`
	Pool       float64   `json:"pool"`
	Victims    int       `json:"victims"`
	Survivors  int       `json:"survivors"`
	EndedAt    time.Time `json:"ended_at"`
}

// Snapshot is the public view of the running round, broadcast every
// tick. TargetRoom stays -1 until the settling phase reveals it.
type Snapshot struct {
	GameID     int64          `json:"game_id"`
	Phase      string         `json:"phase"`
	Countdown  int            `json:"countdown"`
	Rooms      []RoomStatus   `json:"rooms"`
	TargetRoom int            `json:"target_room"`
	Players    int            `json:"players"`
	Bots       int            `json:"bots"`
	Result     *Result        `json:"result,omitempty"`
	History    []HistoryEntry `json:"history"`
}
