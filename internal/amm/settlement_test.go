package amm

import (
	"errors"
	"strings"
	"testing"
)

func testResolution(outcome Outcome) MarketResolution {
	return MarketResolution{
		MarketID:       "market-1",
		WinningOutcome: outcome,
		ResolvedAt:     testNow,
		OracleSource:   "uma",
	}
}

func testPositions() []UserPosition {
	return []UserPosition{
		{UserID: "bob", MarketID: "market-1", NoShares: 50 * Scale, TotalCostBasis: 30 * Scale},
		{UserID: "alice", MarketID: "market-1", YesShares: 190_909_091, TotalCostBasis: 100 * Scale},
	}
}

func TestCalculateMarketSettlement(t *testing.T) {
	e := newTestEngine(t)

	s, err := e.CalculateMarketSettlement(testPositions(), testResolution(OutcomeYes))
	if err != nil {
		t.Fatalf("CalculateMarketSettlement failed: %v", err)
	}

	if len(s.Users) != 2 {
		t.Fatalf("expected 2 user settlements, got %d", len(s.Users))
	}
	alice, bob := s.Users[0], s.Users[1]
	if alice.UserID != "alice" || bob.UserID != "bob" {
		t.Fatalf("users not ordered by id: %s, %s", alice.UserID, bob.UserID)
	}

	if alice.GrossPayout != 190_909_091 {
		t.Errorf("alice gross: got %s", alice.GrossPayout)
	}
	if alice.ProtocolFee != 3_818_181 {
		t.Errorf("alice fee: got %s, want 3.818181", alice.ProtocolFee)
	}
	if alice.NetPayout != 187_090_910 {
		t.Errorf("alice net: got %s, want 187.090910", alice.NetPayout)
	}
	if alice.ProfitLoss != 87_090_910 {
		t.Errorf("alice pnl: got %d, want 87090910", alice.ProfitLoss)
	}

	if bob.WinningShares != 0 || bob.NetPayout != 0 || bob.ProtocolFee != 0 {
		t.Errorf("bob should receive nothing, got %+v", bob)
	}
	if bob.ProfitLoss != -30_000_000 {
		t.Errorf("bob pnl: got %d, want -30000000", bob.ProfitLoss)
	}

	if s.TotalWinningShares != 190_909_091 || s.TotalGrossPayout != 190_909_091 {
		t.Errorf("totals: shares %s gross %s", s.TotalWinningShares, s.TotalGrossPayout)
	}
	if s.ProtocolFeeCollected != 3_818_181 || s.TotalNetPayout != 187_090_910 {
		t.Errorf("totals: fee %s net %s", s.ProtocolFeeCollected, s.TotalNetPayout)
	}
	if s.TotalNetPayout+s.ProtocolFeeCollected != s.TotalGrossPayout {
		t.Error("net + fee != gross")
	}
	if s.Proof == "" || s.Proof != GenerateSettlementProof(testPositions(), testResolution(OutcomeYes)) {
		t.Errorf("proof not attached: %q", s.Proof)
	}
}

func TestCalculateMarketSettlementErrors(t *testing.T) {
	e := newTestEngine(t)

	positions := append(testPositions(), UserPosition{UserID: "carol", MarketID: "market-2", YesShares: Scale})
	if _, err := e.CalculateMarketSettlement(positions, testResolution(OutcomeYes)); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("market mismatch: expected ErrInvalidArgument, got %v", err)
	}
	if _, err := e.CalculateMarketSettlement(testPositions(), testResolution("MAYBE")); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("bad outcome: expected ErrInvalidArgument, got %v", err)
	}
}

func TestCalculateMarketSettlementEmpty(t *testing.T) {
	e := newTestEngine(t)

	s, err := e.CalculateMarketSettlement(nil, testResolution(OutcomeNo))
	if err != nil {
		t.Fatalf("CalculateMarketSettlement failed: %v", err)
	}
	if len(s.Users) != 0 || s.TotalGrossPayout != 0 || s.ProtocolFeeCollected != 0 {
		t.Errorf("expected empty settlement, got %+v", s)
	}
}

func TestGenerateSettlementProof(t *testing.T) {
	positions := testPositions()
	proof := GenerateSettlementProof(positions, testResolution(OutcomeYes))

	reversed := []UserPosition{positions[1], positions[0]}
	if got := GenerateSettlementProof(reversed, testResolution(OutcomeYes)); got != proof {
		t.Errorf("proof depends on input order: %s vs %s", got, proof)
	}

	if got := GenerateSettlementProof(positions, testResolution(OutcomeNo)); got == proof {
		t.Error("proof ignores winning outcome")
	}

	changed := testPositions()
	changed[1].YesShares++
	if got := GenerateSettlementProof(changed, testResolution(OutcomeYes)); got == proof {
		t.Error("proof ignores share counts")
	}

	// A 32-byte digest is at most 44 base58 characters.
	if len(proof) < 32 || len(proof) > 44 {
		t.Errorf("unexpected proof length %d: %s", len(proof), proof)
	}
}

func TestFormatSettlementSummary(t *testing.T) {
	e := newTestEngine(t)
	s, err := e.CalculateMarketSettlement(testPositions(), testResolution(OutcomeYes))
	if err != nil {
		t.Fatalf("CalculateMarketSettlement failed: %v", err)
	}

	summary := FormatSettlementSummary(s)
	for _, want := range []string{
		"Market market-1 settled YES at 2026-03-01T12:00:00Z",
		"Protocol fee:   3.818181 USDC",
		"Net payout:     187.090910 USDC",
		s.Proof,
		"alice: shares=190.909091 net=187.090910 fee=3.818181 pnl=87.090910",
		"bob: shares=0.000000 net=0.000000 fee=0.000000 pnl=-30.000000",
	} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}
}

func TestValidatePoolSolvency(t *testing.T) {
	e := newTestEngine(t)
	pool := newTestPool(t, e, 1000)

	bet, err := e.PlaceBet(pool, 100*Scale, OutcomeYes)
	if err != nil {
		t.Fatalf("PlaceBet failed: %v", err)
	}

	if !e.ValidatePoolSolvency(bet.NewPool, testPositions(), OutcomeYes) {
		t.Error("expected solvent pool")
	}

	whale := []UserPosition{{UserID: "whale", MarketID: "market-1", YesShares: 3000 * Scale}}
	if e.ValidatePoolSolvency(bet.NewPool, whale, OutcomeYes) {
		t.Error("expected insolvent pool")
	}
	if err := e.CheckPoolSolvency(bet.NewPool, whale, OutcomeYes); !errors.Is(err, ErrSolvencyCheckFailed) {
		t.Errorf("expected ErrSolvencyCheckFailed, got %v", err)
	}
	// The whale's NO exposure is zero, so a NO resolution is covered.
	if !e.ValidatePoolSolvency(bet.NewPool, whale, OutcomeNo) {
		t.Error("expected solvent pool for NO")
	}
}

func TestSolvencyHoldsAcrossTrading(t *testing.T) {
	e := newTestEngine(t)
	pool := newTestPool(t, e, 200)

	holdings := map[string]*UserPosition{}
	trade := func(user string, amount Amount, side Outcome) {
		t.Helper()
		res, err := e.PlaceBet(pool, amount, side)
		if err != nil {
			t.Fatalf("PlaceBet(%s, %s) failed: %v", amount, side, err)
		}
		pos, ok := holdings[user]
		if !ok {
			pos = &UserPosition{UserID: user, MarketID: "market-1"}
			holdings[user] = pos
		}
		if side == OutcomeYes {
			pos.YesShares += res.TotalShares
		} else {
			pos.NoShares += res.TotalShares
		}
		pos.TotalCostBasis += amount
		pool = res.NewPool
	}

	trade("a", 40*Scale, OutcomeYes)
	trade("b", 15*Scale, OutcomeNo)
	trade("a", 60*Scale, OutcomeYes)
	trade("c", 120*Scale, OutcomeNo)
	trade("b", 5*Scale, OutcomeYes)

	positions := make([]UserPosition, 0, len(holdings))
	for _, p := range holdings {
		positions = append(positions, *p)
	}
	for _, o := range []Outcome{OutcomeYes, OutcomeNo} {
		if err := e.CheckPoolSolvency(pool, positions, o); err != nil {
			t.Errorf("pool insolvent for %s: %v", o, err)
		}
	}
}
