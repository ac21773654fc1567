package game

import "math"

// runBots places synthetic bets so every room trends toward its target
// volume over the betting window. Early on the bots come in heavier
// waves; near the close they taper off. Must be called with the mutex
// held, from Tick.
func (e *Engine) runBots(g *Game) {
	if len(g.botBets) >= e.cfg.BotCountMax {
		return
	}

	var batch int
	if g.Countdown > 30 {
		if e.tick%2 != 0 {
			return
		}
		batch = 3 + e.rng.Intn(6)
	} else {
		if e.tick%3 != 0 {
			return
		}
		batch = 1 + e.rng.Intn(3)
	}

	for i := 0; i < batch && len(g.botBets) < e.cfg.BotCountMax; i++ {
		room := e.pickBotRoom(g)
		amount := e.botAmount(g, room)
		g.botTotals[room] += amount
		g.botBets = append(g.botBets, BotBet{
			Name:   botNames[e.rng.Intn(len(botNames))],
			Room:   room,
			Amount: amount,
		})
	}
}

// pickBotRoom prefers rooms that are furthest below their target, so
// the board fills out evenly instead of piling onto one room. Deficit
// counts real and synthetic volume alike.
func (e *Engine) pickBotRoom(g *Game) int {
	var deficits [NumRooms]float64
	total := 0.0
	for i := range deficits {
		d := g.roomTargets[i] - g.roomTotal(i)
		if d > 0 {
			deficits[i] = d
			total += d
		}
	}
	if total <= 0 {
		return e.rng.Intn(NumRooms)
	}
	pick := e.rng.Float64() * total
	for i, d := range deficits {
		pick -= d
		if pick < 0 {
			return i
		}
	}
	return NumRooms - 1
}

// botAmount sizes one synthetic bet as a jittered slice of the room's
// remaining deficit, clamped to the configured band. Round numbers get
// a small odd nudge so the totals do not look machine-made.
func (e *Engine) botAmount(g *Game, room int) float64 {
	deficit := g.roomTargets[room] - g.roomTotal(room)
	if deficit <= 0 {
		deficit = e.cfg.BotBetMin
	}
	slices := float64(2 + e.rng.Intn(4))
	jitter := 0.7 + e.rng.Float64()*0.6
	amount := math.Round(deficit / slices * jitter)

	if amount < e.cfg.BotBetMin {
		amount = e.cfg.BotBetMin
	}
	if amount > e.cfg.BotBetMax {
		amount = e.cfg.BotBetMax
	}
	// The nudge must not push the amount out of the band.
	if math.Mod(amount, 10) == 0 {
		nudge := float64(1 + e.rng.Intn(9))
		if amount+nudge > e.cfg.BotBetMax {
			amount -= nudge
		} else {
			amount += nudge
		}
	}
	return amount
}
