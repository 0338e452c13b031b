package gateway

import (
	"testing"

	"vol-core/pkg/broker"
)

func TestSessionGateFirstTrueThenFalse(t *testing.T) {
	g := NewSessionGate()
	if !g.ShouldIssue(broker.KindImpliedVol, "SPY") {
		t.Fatal("first call should issue")
	}
	if g.ShouldIssue(broker.KindImpliedVol, "SPY") {
		t.Fatal("second call should be rejected")
	}
	if !g.ShouldIssue(broker.KindHistoricalVol, "SPY") {
		t.Fatal("other kind for the same ticker is a different key")
	}
	if !g.ShouldIssue(broker.KindImpliedVol, "QQQ") {
		t.Fatal("other ticker for the same kind is a different key")
	}
	if g.Len() != 3 {
		t.Fatalf("Len()=%d, expected 3", g.Len())
	}
}

func TestSessionGateReset(t *testing.T) {
	g := NewSessionGate()
	first := g.SessionID()
	g.ShouldIssue(broker.KindPrice, "AAPL")

	next := g.Reset()
	if next == first || next != g.SessionID() {
		t.Fatalf("session id not rotated: %q -> %q", first, next)
	}
	if !g.ShouldIssue(broker.KindPrice, "AAPL") {
		t.Fatal("reset session should issue again")
	}
}

func TestDedupKeyString(t *testing.T) {
	k := DedupKey{Kind: broker.KindHistoricalVol, Ticker: "IWM"}
	if k.String() != "HV,IWM" {
		t.Fatalf("String()=%q, expected HV,IWM", k.String())
	}
}
