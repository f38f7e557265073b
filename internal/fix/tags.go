package fix

// SOH separates fields on the wire.
const SOH = '\x01'

// BeginString is the only protocol version the router speaks.
const BeginString = "FIX.4.4"

// RouterID is the SenderCompID the router uses for its own messages.
const RouterID = 0

// Tags
const (
	TagBeginString  = 8
	TagBodyLength   = 9
	TagCheckSum     = 10
	TagClOrdID      = 11
	TagMsgType      = 35
	TagOrderQty     = 38
	TagOrdStatus    = 39
	TagOrdType      = 40
	TagPrice        = 44
	TagRefSeqNum    = 45
	TagSenderCompID = 49
	TagSide         = 54
	TagSymbol       = 55
	TagTargetCompID = 56
	TagText         = 58
	TagExecType     = 150
	TagLeavesQty    = 151
)

// MsgType values.
const (
	MsgTypeNewOrderSingle  = "D"
	MsgTypeExecutionReport = "8"
	MsgTypeReject          = "3"
	MsgTypeLogout          = "5"
)

// OrdStatus values.
const (
	OrdStatusFilled   = "2"
	OrdStatusRejected = "8"
)

// ExecType values.
const (
	ExecTypeTrade    = "2"
	ExecTypeRejected = "8"
)

// OrdType values.
const OrdTypeMarket = "1"

// Side values.
const (
	SideBuy  = "1"
	SideSell = "2"
)
