package fix

import (
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order describes a NewOrderSingle sent by a broker to a market.
type Order struct {
	Sender  int
	Target  int
	ClOrdID string // generated when empty
	Side    string // SideBuy or SideSell
	Symbol  string
	Qty     decimal.Decimal
	Price   decimal.Decimal
}

// NewOrder builds a market NewOrderSingle (35=D).
func NewOrder(o Order) string {
	if o.ClOrdID == "" {
		o.ClOrdID = uuid.NewString()
	}
	return Build(MsgTypeNewOrderSingle,
		F(TagSenderCompID, strconv.Itoa(o.Sender)),
		F(TagTargetCompID, strconv.Itoa(o.Target)),
		F(TagClOrdID, o.ClOrdID),
		F(TagSide, o.Side),
		F(TagSymbol, o.Symbol),
		F(TagOrderQty, o.Qty.String()),
		F(TagPrice, o.Price.String()),
		F(TagOrdType, OrdTypeMarket),
	)
}

// Execution describes a market's answer to an order.
type Execution struct {
	Sender    int
	Target    int
	ClOrdID   string
	Symbol    string
	Side      string
	Qty       decimal.Decimal
	Price     decimal.Decimal
	LeavesQty decimal.Decimal
	Status    string // OrdStatusFilled or OrdStatusRejected
	Text      string // sent only on rejection
}

// ExecutionReport builds an ExecutionReport (35=8). ExecType follows Status.
func ExecutionReport(e Execution) string {
	execType := ExecTypeTrade
	if e.Status == OrdStatusRejected {
		execType = ExecTypeRejected
	}

	fields := []Field{
		F(TagSenderCompID, strconv.Itoa(e.Sender)),
		F(TagTargetCompID, strconv.Itoa(e.Target)),
		F(TagClOrdID, e.ClOrdID),
		F(TagSymbol, e.Symbol),
		F(TagSide, e.Side),
		F(TagOrderQty, e.Qty.String()),
		F(TagPrice, e.Price.String()),
		F(TagOrdStatus, e.Status),
		F(TagExecType, execType),
		F(TagLeavesQty, e.LeavesQty.String()),
	}
	if e.Status == OrdStatusRejected && e.Text != "" {
		fields = append(fields, F(TagText, e.Text))
	}
	return Build(MsgTypeExecutionReport, fields...)
}

// Reject builds a router-level Reject (35=3) answering offending. Sender and
// target are swapped from the offending message and RefSeqNum cites its
// ClOrdID. Fields the offending message does not carry are left out.
func Reject(offending, reason string) string {
	src := Parse(offending)

	var fields []Field
	if v, ok := src.Get(TagTargetCompID); ok {
		fields = append(fields, F(TagSenderCompID, v))
	}
	if v, ok := src.Get(TagSenderCompID); ok {
		fields = append(fields, F(TagTargetCompID, v))
	}
	if v, ok := src.Get(TagClOrdID); ok {
		fields = append(fields, F(TagRefSeqNum, v))
	}
	fields = append(fields, F(TagText, reason))
	return Build(MsgTypeReject, fields...)
}

// Logout builds the forced-disconnect notice (35=5) sent to a superseded
// connection.
func Logout(id int, reason string) string {
	return Build(MsgTypeLogout,
		F(TagSenderCompID, strconv.Itoa(RouterID)),
		F(TagTargetCompID, strconv.Itoa(id)),
		F(TagText, reason),
	)
}
