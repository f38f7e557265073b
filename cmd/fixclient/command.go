package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rickgao/fixrouter/internal/fix"
)

var errUsage = errors.New("usage: buy|sell <market-id> <symbol> <qty> <price>")

// parseOrder turns a stdin command into an order from sender.
func parseOrder(sender int, line string) (fix.Order, error) {
	f := strings.Fields(line)
	if len(f) != 5 {
		return fix.Order{}, errUsage
	}

	var side string
	switch strings.ToLower(f[0]) {
	case "buy":
		side = fix.SideBuy
	case "sell":
		side = fix.SideSell
	default:
		return fix.Order{}, errUsage
	}

	target, err := strconv.Atoi(f[1])
	if err != nil {
		return fix.Order{}, fmt.Errorf("market id %q: %w", f[1], err)
	}
	qty, err := decimal.NewFromString(f[3])
	if err != nil || !qty.IsPositive() {
		return fix.Order{}, fmt.Errorf("qty %q must be a positive number", f[3])
	}
	price, err := decimal.NewFromString(f[4])
	if err != nil || !price.IsPositive() {
		return fix.Order{}, fmt.Errorf("price %q must be a positive number", f[4])
	}

	return fix.Order{
		Sender: sender,
		Target: target,
		Side:   side,
		Symbol: strings.ToUpper(f[2]),
		Qty:    qty,
		Price:  price,
	}, nil
}

// fill answers a NewOrderSingle the way a simple market would: orders with a
// positive quantity and price are filled in full, anything else is
// rejected.
func fill(self int, order fix.Fields) (string, bool) {
	if order.MsgType() != fix.MsgTypeNewOrderSingle {
		return "", false
	}
	target, err := order.Int(fix.TagSenderCompID)
	if err != nil {
		return "", false
	}

	exec := fix.Execution{
		Sender:    self,
		Target:    target,
		ClOrdID:   order[fix.TagClOrdID],
		Symbol:    order[fix.TagSymbol],
		Side:      order[fix.TagSide],
		LeavesQty: decimal.Zero,
		Status:    fix.OrdStatusFilled,
	}

	qty, qerr := decimal.NewFromString(order[fix.TagOrderQty])
	price, perr := decimal.NewFromString(order[fix.TagPrice])
	switch {
	case qerr != nil || !qty.IsPositive():
		exec.Status = fix.OrdStatusRejected
		exec.Text = "Invalid quantity"
	case perr != nil || !price.IsPositive():
		exec.Status = fix.OrdStatusRejected
		exec.Text = "Invalid price"
	}
	if qerr == nil {
		exec.Qty = qty
	}
	if perr == nil {
		exec.Price = price
	}
	if exec.Status == fix.OrdStatusRejected {
		exec.LeavesQty = exec.Qty
	}

	return fix.ExecutionReport(exec), true
}
