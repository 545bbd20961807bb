package models

// Cards is the number of DNA values submitted to a battle.
const Cards = 3

// BattleOutcome records how a battle ended.
type BattleOutcome uint8

const (
	BattleOutcomeWon BattleOutcome = iota
	BattleOutcomeLost
)

func (o BattleOutcome) String() string {
	switch o {
	case BattleOutcomeWon:
		return "won"
	case BattleOutcomeLost:
		return "lost"
	default:
		return "unknown"
	}
}

// Battle is the immutable receipt of one contest.
type Battle struct {
	Owner         Pubkey        `json:"owner"`
	ZombieID      uint8         `json:"zombie_id"`
	Selection     uint8         `json:"selection"`
	DNA           [Cards]uint64 `json:"dna"`
	ShuffledOrder [Cards]uint64 `json:"shuffled_order"`
	Outcome       BattleOutcome `json:"outcome"`
	CreatedAt     int64         `json:"created_at"`
}
