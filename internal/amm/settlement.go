package amm

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/holiman/uint256"
	"github.com/mr-tron/base58"
)

// UserPosition is one user's holdings in one market.
type UserPosition struct {
	UserID    string `json:"user_id"`
	MarketID  string `json:"market_id"`
	YesShares Amount `json:"yes_shares"`
	NoShares  Amount `json:"no_shares"`
	// TotalCostBasis is the USDC the user has put into the market, net of
	// sale proceeds.
	TotalCostBasis Amount `json:"total_cost_basis"`
}

// Shares returns the shares held of o.
func (p UserPosition) Shares(o Outcome) Amount {
	if o == OutcomeYes {
		return p.YesShares
	}
	return p.NoShares
}

// MarketResolution is the authoritative result supplied by the oracle.
type MarketResolution struct {
	MarketID       string
	WinningOutcome Outcome
	ResolvedAt     time.Time
	OracleSource   string
}

// UserSettlement is one user's payout at settlement.
type UserSettlement struct {
	UserID        string `json:"user_id"`
	WinningShares Amount `json:"winning_shares"`
	GrossPayout   Amount `json:"gross_payout"`
	ProtocolFee   Amount `json:"protocol_fee"`
	NetPayout     Amount `json:"net_payout"`
	CostBasis     Amount `json:"cost_basis"`
	// ProfitLoss is NetPayout - CostBasis in signed micro-units.
	ProfitLoss int64 `json:"profit_loss"`
}

// MarketSettlement aggregates every user's payout for a resolved market.
type MarketSettlement struct {
	MarketID             string           `json:"market_id"`
	WinningOutcome       Outcome          `json:"winning_outcome"`
	ResolvedAt           time.Time        `json:"resolved_at"`
	Users                []UserSettlement `json:"users"`
	TotalWinningShares   Amount           `json:"total_winning_shares"`
	TotalGrossPayout     Amount           `json:"total_gross_payout"`
	TotalNetPayout       Amount           `json:"total_net_payout"`
	ProtocolFeeCollected Amount           `json:"protocol_fee_collected"`
	Proof                string           `json:"proof"`
}

// CalculateMarketSettlement pays each winning share one USDC less the
// protocol fee. Losing shares pay nothing. Users are ordered by id.
func (e *Engine) CalculateMarketSettlement(positions []UserPosition, resolution MarketResolution) (MarketSettlement, error) {
	if !resolution.WinningOutcome.Valid() {
		return MarketSettlement{}, fmt.Errorf("%w: unknown winning outcome %q", ErrInvalidArgument, resolution.WinningOutcome)
	}

	out := MarketSettlement{
		MarketID:       resolution.MarketID,
		WinningOutcome: resolution.WinningOutcome,
		ResolvedAt:     resolution.ResolvedAt,
		Users:          make([]UserSettlement, 0, len(positions)),
	}

	for _, pos := range sortedPositions(positions) {
		if pos.MarketID != resolution.MarketID {
			return MarketSettlement{}, fmt.Errorf("%w: position of user %s belongs to market %s, not %s",
				ErrInvalidArgument, pos.UserID, pos.MarketID, resolution.MarketID)
		}

		winning := pos.Shares(resolution.WinningOutcome)
		gross := CalculatePayout(winning)
		fee := mulDiv(gross, e.params.ProtocolFeeBps, bpsDenominator)
		net := gross - fee
		pnl, err := signedDiff(net, pos.TotalCostBasis)
		if err != nil {
			return MarketSettlement{}, err
		}

		out.Users = append(out.Users, UserSettlement{
			UserID:        pos.UserID,
			WinningShares: winning,
			GrossPayout:   gross,
			ProtocolFee:   fee,
			NetPayout:     net,
			CostBasis:     pos.TotalCostBasis,
			ProfitLoss:    pnl,
		})

		if out.TotalWinningShares, err = addAmounts(out.TotalWinningShares, winning); err != nil {
			return MarketSettlement{}, err
		}
		if out.TotalGrossPayout, err = addAmounts(out.TotalGrossPayout, gross); err != nil {
			return MarketSettlement{}, err
		}
		if out.TotalNetPayout, err = addAmounts(out.TotalNetPayout, net); err != nil {
			return MarketSettlement{}, err
		}
		if out.ProtocolFeeCollected, err = addAmounts(out.ProtocolFeeCollected, fee); err != nil {
			return MarketSettlement{}, err
		}
	}

	out.Proof = GenerateSettlementProof(positions, resolution)
	return out, nil
}

// ValidatePoolSolvency reports whether the pool's collateral covers every
// winning share at one USDC each. A false result must halt resolution.
func (e *Engine) ValidatePoolSolvency(pool PoolState, positions []UserPosition, winningOutcome Outcome) bool {
	return e.CheckPoolSolvency(pool, positions, winningOutcome) == nil
}

// CheckPoolSolvency is ValidatePoolSolvency with the shortfall described.
func (e *Engine) CheckPoolSolvency(pool PoolState, positions []UserPosition, winningOutcome Outcome) error {
	if !winningOutcome.Valid() {
		return fmt.Errorf("%w: unknown winning outcome %q", ErrInvalidArgument, winningOutcome)
	}
	var owed uint256.Int
	for _, pos := range positions {
		owed.Add(&owed, u256(CalculatePayout(pos.Shares(winningOutcome))))
	}
	if owed.Gt(u256(pool.TotalCollateral)) {
		return fmt.Errorf("%w: market %s owes %s units to %s holders but holds %s collateral",
			ErrSolvencyCheckFailed, pool.MarketID, owed.Dec(), winningOutcome, pool.TotalCollateral)
	}
	return nil
}

func sortedPositions(positions []UserPosition) []UserPosition {
	sorted := make([]UserPosition, len(positions))
	copy(sorted, positions)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].UserID != sorted[j].UserID {
			return sorted[i].UserID < sorted[j].UserID
		}
		return sorted[i].MarketID < sorted[j].MarketID
	})
	return sorted
}

// GenerateSettlementProof hashes a canonical rendering of the resolution and
// positions. Input order does not matter, so independent parties holding
// the same data derive the same base58 digest.
func GenerateSettlementProof(positions []UserPosition, resolution MarketResolution) string {
	var b strings.Builder
	fmt.Fprintf(&b, "resolution|%s|%s|%d|%s\n",
		strconv.Quote(resolution.MarketID),
		resolution.WinningOutcome,
		resolution.ResolvedAt.UTC().UnixNano(),
		strconv.Quote(resolution.OracleSource),
	)
	for _, pos := range sortedPositions(positions) {
		fmt.Fprintf(&b, "position|%s|%s|%d|%d|%d\n",
			strconv.Quote(pos.UserID),
			strconv.Quote(pos.MarketID),
			uint64(pos.YesShares),
			uint64(pos.NoShares),
			uint64(pos.TotalCostBasis),
		)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return base58.Encode(sum[:])
}

// FormatSettlementSummary renders a settlement for operators and audit logs.
func FormatSettlementSummary(s MarketSettlement) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Market %s settled %s at %s\n", s.MarketID, s.WinningOutcome, s.ResolvedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Winning shares: %s\n", s.TotalWinningShares)
	fmt.Fprintf(&b, "Gross payout:   %s USDC\n", s.TotalGrossPayout)
	fmt.Fprintf(&b, "Protocol fee:   %s USDC\n", s.ProtocolFeeCollected)
	fmt.Fprintf(&b, "Net payout:     %s USDC\n", s.TotalNetPayout)
	fmt.Fprintf(&b, "Proof:          %s\n", s.Proof)
	for _, u := range s.Users {
		sign := ""
		pnl := u.ProfitLoss
		if pnl < 0 {
			sign = "-"
			pnl = -pnl
		}
		fmt.Fprintf(&b, "  %s: shares=%s net=%s fee=%s pnl=%s%s\n",
			u.UserID, u.WinningShares, u.NetPayout, u.ProtocolFee, sign, Amount(pnl))
	}
	return b.String()
}
