package engine

import (
	"math/big"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var two = decimal.NewFromInt(2)

// MatcherConfig bounds one matching pass.
type MatcherConfig struct {
	MinOrderSize *big.Int
	MaxMatches   int
	// Excluded suppresses specific pairings (keyed by PairKey), letting a
	// cycle re-run the matcher after a compliance denial so a buy order
	// can pair with the next compatible sell in the same cycle.
	Excluded map[string]bool
}

// PairKey identifies a (sell, buy) pairing independent of the random
// match id.
func PairKey(makerOrderID, takerOrderID string) string {
	return makerOrderID + "|" + takerOrderID
}

// MatchOrders pairs compatible buy/sell orders under price-time priority.
// It is a pure function of its inputs: no I/O, no wall-clock access beyond
// the caller-supplied now (used only for the expiry filter), deterministic
// for a given input set.
//
// Buy orders are walked best-price-first; for each, the first compatible
// sell order wins. Ties at a price level go to the earlier CreatedAt,
// strict FIFO within the level. Each order is consumed at most once per
// pass.
func MatchOrders(orders []*Order, now time.Time, cfg MatcherConfig) []*Match {
	var buys, sells []*Order
	for _, o := range orders {
		if !eligible(o, now, cfg.MinOrderSize) {
			continue
		}
		if o.IsBuy() {
			buys = append(buys, o)
		} else {
			sells = append(sells, o)
		}
	}

	// Buy side: best (highest) price first, oldest first within a level.
	sort.SliceStable(buys, func(i, j int) bool {
		if c := buys[i].Price.Cmp(buys[j].Price); c != 0 {
			return c > 0
		}
		if !buys[i].CreatedAt.Equal(buys[j].CreatedAt) {
			return buys[i].CreatedAt.Before(buys[j].CreatedAt)
		}
		return buys[i].ID < buys[j].ID
	})
	// Sell side: best (lowest) price first, same tie-break.
	sort.SliceStable(sells, func(i, j int) bool {
		if c := sells[i].Price.Cmp(sells[j].Price); c != 0 {
			return c < 0
		}
		if !sells[i].CreatedAt.Equal(sells[j].CreatedAt) {
			return sells[i].CreatedAt.Before(sells[j].CreatedAt)
		}
		return sells[i].ID < sells[j].ID
	})

	consumed := make(map[string]bool)
	var matches []*Match

	for _, buy := range buys {
		if cfg.MaxMatches > 0 && len(matches) >= cfg.MaxMatches {
			break
		}
		if consumed[buy.ID] {
			continue
		}
		for _, sell := range sells {
			if consumed[sell.ID] {
				continue
			}
			if cfg.Excluded[PairKey(sell.ID, buy.ID)] {
				continue
			}
			if !compatible(buy, sell) {
				continue
			}
			consumed[buy.ID] = true
			consumed[sell.ID] = true
			matches = append(matches, newMatch(buy, sell))
			break
		}
	}

	return matches
}

func eligible(o *Order, now time.Time, minSize *big.Int) bool {
	if o.Status != OrderPending && o.Status != OrderPartial {
		return false
	}
	if o.Expired(now) {
		return false
	}
	remaining := o.Remaining()
	if remaining.Sign() <= 0 {
		return false
	}
	if minSize != nil && remaining.Cmp(minSize) < 0 {
		return false
	}
	return true
}

// compatible reports whether a buy/sell pair crosses: mirrored token pair,
// same pool, and the buy limit at or above the sell limit.
func compatible(buy, sell *Order) bool {
	if buy.TokenIn != sell.TokenOut || buy.TokenOut != sell.TokenIn {
		return false
	}
	if buy.Pool != sell.Pool {
		return false
	}
	return buy.Price.Cmp(sell.Price) >= 0
}

func newMatch(buy, sell *Order) *Match {
	// Execution is sized off the unfilled portions, so a partially filled
	// order can never trade more than it has left.
	amount := buy.Remaining()
	if r := sell.Remaining(); r.Cmp(amount) < 0 {
		amount = r
	}
	// Midpoint crossing price: deterministic, no book-depth weighting.
	price := buy.Price.Add(sell.Price).Div(two)

	return &Match{
		ID:              uuid.NewString(),
		MakerOrderID:    sell.ID,
		TakerOrderID:    buy.ID,
		Maker:           sell.Maker,
		Taker:           buy.Maker,
		Pool:            sell.Pool,
		ExecutionAmount: amount,
		ExecutionPrice:  price,
		Status:          MatchPending,
		MakerOrder:      sell,
		TakerOrder:      buy,
	}
}
