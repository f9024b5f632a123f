package crm

import "testing"

func TestPairKeyIsOrderIndependent(t *testing.T) {
	if PairKey("a", "b") != PairKey("b", "a") {
		t.Fatalf("pair key depends on argument order")
	}
	if EdgeID("a", "b") == EdgeID("b", "a") {
		t.Fatalf("both halves of a pair must have distinct ids")
	}
}

func TestLinkedHistoryIDIsStable(t *testing.T) {
	first := LinkedHistoryID("call-1")
	if first != LinkedHistoryID("call-1") {
		t.Fatalf("expected deterministic id")
	}
	if first == LinkedHistoryID("call-2") {
		t.Fatalf("expected distinct ids for distinct calls")
	}
}

func TestParseCustomerChannel(t *testing.T) {
	id, ok := ParseCustomerChannel(CustomerChannel("c1"))
	if !ok || id != "c1" {
		t.Fatalf("expected c1 got %q (%v)", id, ok)
	}
	if _, ok := ParseCustomerChannel("other:c1"); ok {
		t.Fatalf("expected foreign channel to be rejected")
	}
}
