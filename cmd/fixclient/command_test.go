package main

import (
	"testing"

	"github.com/rickgao/fixrouter/internal/fix"
)

func TestParseOrder(t *testing.T) {
	tests := []struct {
		line    string
		wantErr bool
		side    string
		target  int
		symbol  string
	}{
		{line: "buy 100002 aapl 10 187.25", side: fix.SideBuy, target: 100002, symbol: "AAPL"},
		{line: "  SELL 100004 msft 1 410  ", side: fix.SideSell, target: 100004, symbol: "MSFT"},
		{line: "hold 100002 aapl 10 1", wantErr: true},
		{line: "buy abc aapl 10 1", wantErr: true},
		{line: "buy 100002 aapl -1 1", wantErr: true},
		{line: "buy 100002 aapl 10 zero", wantErr: true},
		{line: "buy 100002 aapl 10", wantErr: true},
	}

	for _, tt := range tests {
		o, err := parseOrder(100001, tt.line)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseOrder(%q) expected error", tt.line)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseOrder(%q) error = %v", tt.line, err)
			continue
		}
		if o.Side != tt.side || o.Target != tt.target || o.Symbol != tt.symbol || o.Sender != 100001 {
			t.Errorf("parseOrder(%q) = %+v", tt.line, o)
		}
	}
}

func TestFill(t *testing.T) {
	o, err := parseOrder(100001, "buy 100002 aapl 10 187.25")
	if err != nil {
		t.Fatal(err)
	}
	o.ClOrdID = "ord-1"

	report, ok := fill(100002, fix.Parse(fix.NewOrder(o)))
	if !ok {
		t.Fatal("fill() declined a NewOrderSingle")
	}
	if !fix.ValidChecksum(report) {
		t.Error("report has an invalid checksum")
	}

	f := fix.Parse(report)
	checks := map[int]string{
		fix.TagSenderCompID: "100002",
		fix.TagTargetCompID: "100001",
		fix.TagClOrdID:      "ord-1",
		fix.TagOrdStatus:    fix.OrdStatusFilled,
		fix.TagExecType:     fix.ExecTypeTrade,
		fix.TagOrderQty:     "10",
		fix.TagPrice:        "187.25",
		fix.TagLeavesQty:    "0",
	}
	for tag, want := range checks {
		if got := f[tag]; got != want {
			t.Errorf("tag %d = %q, want %q", tag, got, want)
		}
	}
}

func TestFill_RejectsBadOrder(t *testing.T) {
	raw := fix.Build(fix.MsgTypeNewOrderSingle,
		fix.F(fix.TagSenderCompID, "100001"),
		fix.F(fix.TagTargetCompID, "100002"),
		fix.F(fix.TagClOrdID, "ord-2"),
		fix.F(fix.TagOrderQty, "0"),
		fix.F(fix.TagPrice, "5"),
	)

	report, ok := fill(100002, fix.Parse(raw))
	if !ok {
		t.Fatal("fill() declined a NewOrderSingle")
	}
	f := fix.Parse(report)
	if f[fix.TagOrdStatus] != fix.OrdStatusRejected || f[fix.TagText] != "Invalid quantity" {
		t.Errorf("status = %q, text = %q", f[fix.TagOrdStatus], f[fix.TagText])
	}
}

func TestFill_IgnoresOtherTypes(t *testing.T) {
	if _, ok := fill(100002, fix.Parse(fix.Logout(100002, "bye"))); ok {
		t.Error("fill() answered a Logout")
	}
}

func TestDescribe(t *testing.T) {
	f := fix.Parse(fix.Reject(fix.NewOrder(fix.Order{Sender: 1, Target: 2, ClOrdID: "c"}), "Destination not found"))

	got := describe(f, true)
	want := "Reject from=2 to=1 ref=c text=Destination not found"
	if got != want {
		t.Errorf("describe() = %q, want %q", got, want)
	}
	if got := describe(fix.Fields{}, false); got != "type= (bad checksum)" {
		t.Errorf("describe(empty) = %q", got)
	}
}
