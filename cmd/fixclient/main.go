// fixclient connects to the router as a broker or market and prints the
// decoded traffic it receives.
// Usage:
//
//	go run ./cmd/fixclient -role broker
//	go run ./cmd/fixclient -role market -id 100002
//
// As a broker, type orders on stdin: buy|sell <market-id> <symbol> <qty> <price>.
// As a market, every NewOrderSingle is answered with an ExecutionReport.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rickgao/fixrouter/internal/connection"
	"github.com/rickgao/fixrouter/internal/fix"
)

func main() {
	role := flag.String("role", "broker", "broker or market")
	addr := flag.String("addr", "", "router address (default localhost:5000 for brokers, localhost:5001 for markets)")
	id := flag.Int("id", -1, "identity to reclaim, -1 for a new one")
	verbose := flag.Bool("verbose", false, "print raw lines as well as decoded fields")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	r := connection.Role(*role)
	if r != connection.RoleBroker && r != connection.RoleMarket {
		logger.Error("invalid role", "role", *role)
		os.Exit(2)
	}
	if *addr == "" {
		*addr = "localhost:5000"
		if r == connection.RoleMarket {
			*addr = "localhost:5001"
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	nc, err := net.DialTimeout("tcp", *addr, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect", "addr", *addr, "error", err)
		os.Exit(1)
	}
	conn := connection.New(nc, connection.DefaultConfig())
	defer conn.Close()

	self, err := handshake(conn, *id)
	if err != nil {
		logger.Error("handshake failed", "error", err)
		os.Exit(1)
	}
	logger.Info("connected", "role", r, "id", self, "addr", *addr)

	done := make(chan struct{})
	go func() {
		defer close(done)
		readLoop(conn, r, self, *verbose, logger)
	}()

	if r == connection.RoleBroker {
		go stdinLoop(conn, self, logger)
	}

	select {
	case <-ctx.Done():
	case <-done:
	}
	logger.Info("disconnected", "id", self)
}

func handshake(conn *connection.Conn, requested int) (int, error) {
	if err := conn.Send(strconv.Itoa(requested)); err != nil {
		return 0, fmt.Errorf("send identity: %w", err)
	}
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	defer conn.SetReadDeadline(time.Time{})

	line, err := conn.ReadLine()
	if err != nil {
		return 0, fmt.Errorf("read identity: %w", err)
	}
	id, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil {
		return 0, fmt.Errorf("parse identity %q: %w", line, err)
	}
	return id, nil
}

func readLoop(conn *connection.Conn, role connection.Role, self int, verbose bool, logger *slog.Logger) {
	for {
		line, err := conn.ReadLine()
		if err != nil {
			return
		}
		if verbose {
			fmt.Printf("raw  %s\n", fix.Pretty(line))
		}

		f := fix.Parse(line)
		fmt.Printf("recv %s\n", describe(f, fix.ValidChecksum(line)))

		switch f.MsgType() {
		case fix.MsgTypeLogout:
			logger.Warn("logged out by router", "reason", f[fix.TagText])
			return
		case fix.MsgTypeNewOrderSingle:
			if role != connection.RoleMarket {
				continue
			}
			report, ok := fill(self, f)
			if !ok {
				continue
			}
			if err := conn.Send(report); err != nil {
				logger.Error("send execution report failed", "error", err)
				return
			}
			fmt.Printf("sent %s\n", describe(fix.Parse(report), true))
		}
	}
}

func stdinLoop(conn *connection.Conn, self int, logger *slog.Logger) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		order, err := parseOrder(self, line)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			continue
		}
		raw := fix.NewOrder(order)
		if err := conn.Send(raw); err != nil {
			logger.Error("send order failed", "error", err)
			return
		}
		fmt.Printf("sent %s\n", describe(fix.Parse(raw), true))
	}
}

var msgTypeNames = map[string]string{
	fix.MsgTypeNewOrderSingle:  "NewOrderSingle",
	fix.MsgTypeExecutionReport: "ExecutionReport",
	fix.MsgTypeReject:          "Reject",
	fix.MsgTypeLogout:          "Logout",
}

// describe renders the fields a human cares about in a fixed order.
func describe(f fix.Fields, validChecksum bool) string {
	name, ok := msgTypeNames[f.MsgType()]
	if !ok {
		name = "type=" + f.MsgType()
	}

	var b strings.Builder
	b.WriteString(name)
	order := []struct {
		tag   int
		label string
	}{
		{fix.TagSenderCompID, "from"},
		{fix.TagTargetCompID, "to"},
		{fix.TagClOrdID, "clordid"},
		{fix.TagRefSeqNum, "ref"},
		{fix.TagSide, "side"},
		{fix.TagSymbol, "symbol"},
		{fix.TagOrderQty, "qty"},
		{fix.TagPrice, "price"},
		{fix.TagOrdStatus, "status"},
		{fix.TagLeavesQty, "leaves"},
		{fix.TagText, "text"},
	}
	for _, o := range order {
		if v, ok := f.Get(o.tag); ok {
			fmt.Fprintf(&b, " %s=%s", o.label, v)
		}
	}
	if !validChecksum {
		b.WriteString(" (bad checksum)")
	}
	return b.String()
}
