package auction

import "time"

// IncrementTier defines the minimum raise for bids whose current highest
// amount is below the tier bound. Below == 0 means no upper bound.
type IncrementTier struct {
	Below int64
	Step  int64
}

// Rules are the per-room auction parameters. They are fixed at room creation.
type Rules struct {
	InitialPurse   int64
	MinRoster      int // mandatory roster slots each team must be able to fill
	MaxRoster      int
	BasePriceFloor int64 // cheapest possible price for any remaining slot

	BidWindow    time.Duration // clock duration when an item opens
	SnipeFloor   time.Duration // accepted bid below this remaining time extends the clock
	SnipeExtend  time.Duration
	MaxExtension time.Duration // cap on cumulative extension per item

	Increments []IncrementTier // sorted ascending by Below, unbounded tier last
}

// Increment returns the minimum raise over the given highest amount.
func (r Rules) Increment(current int64) int64 {
	for _, t := range r.Increments {
		if t.Below == 0 || current < t.Below {
			return t.Step
		}
	}
	return 1
}

// DefaultRules mirrors the stock IPL-style configuration used when a room is
// created without overrides. Amounts are in lakh.
func DefaultRules() Rules {
	return Rules{
		InitialPurse:   10000,
		MinRoster:      18,
		MaxRoster:      25,
		BasePriceFloor: 20,
		BidWindow:      30 * time.Second,
		SnipeFloor:     5 * time.Second,
		SnipeExtend:    10 * time.Second,
		MaxExtension:   60 * time.Second,
		Increments: []IncrementTier{
			{Below: 200, Step: 10},
			{Below: 500, Step: 20},
			{Below: 0, Step: 25},
		},
	}
}
