package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"fenrir/internal/common"
	fenrirNet "fenrir/internal/net"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

func main() {
	// CLI parameter parsing
	serverAddr := flag.String("server", "127.0.0.1:9001", "Address of the exchange server")
	action := flag.String("action", "place", "Action to perform: ['place', 'modify', 'cancel', 'book', 'export']")
	wait := flag.Duration("wait", 2*time.Second, "How long to listen for reports, 0 to listen until interrupted")

	// Order parameters
	id := flag.String("id", "", "Order id; the server assigns one to new orders when empty")
	symbol := flag.String("symbol", "AAPL", "Symbol to trade or view")
	sideStr := flag.String("side", "buy", "Order side: 'buy' or 'sell'")
	priceStr := flag.String("price", "100", "Limit price")
	qtyStr := flag.String("qty", "10", "Quantity or comma-separated list (e.g. 10,20,50)")

	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	requests, err := buildRequests(*action, *id, *symbol, *sideStr, *priceStr, *qtyStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		flag.Usage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *wait)
		defer cancel()
	}

	// Connect to server
	conn, err := net.Dial("tcp", *serverAddr)
	if err != nil {
		log.Fatal().Err(err).Str("server", *serverAddr).Msg("failed to connect to server")
	}
	defer conn.Close()
	log.Info().Str("server", *serverAddr).Msg("connected")

	// Start listening for reports
	done := make(chan struct{})
	go func() {
		defer close(done)
		readReports(conn)
	}()

	for _, request := range requests {
		if err := fenrirNet.WriteMessage(conn, request); err != nil {
			log.Error().Err(err).Stringer("type", request.Type()).Msg("failed to send request")
			continue
		}
		fmt.Printf("-> Sent %s\n", describe(request))
	}

	select {
	case <-ctx.Done():
	case <-done:
	}
}

func buildRequests(action, id, symbol, sideStr, priceStr, qtyStr string) ([]fenrirNet.Message, error) {
	switch strings.ToLower(action) {
	case "place":
		side, err := common.ParseSide(sideStr)
		if err != nil {
			return nil, fmt.Errorf("-side: %w", err)
		}
		price, err := decimal.NewFromString(priceStr)
		if err != nil {
			return nil, fmt.Errorf("-price: %w", err)
		}
		quantities, err := parseQuantities(qtyStr)
		if err != nil {
			return nil, err
		}
		if id != "" && len(quantities) > 1 {
			return nil, errors.New("-id cannot be combined with several quantities")
		}
		requests := make([]fenrirNet.Message, 0, len(quantities))
		for _, qty := range quantities {
			requests = append(requests, fenrirNet.NewOrder{ID: id, Symbol: symbol, Side: side, Price: price, Quantity: qty})
		}
		return requests, nil

	case "modify":
		if id == "" {
			return nil, errors.New("-id is required to modify an order")
		}
		price, err := decimal.NewFromString(priceStr)
		if err != nil {
			return nil, fmt.Errorf("-price: %w", err)
		}
		quantities, err := parseQuantities(qtyStr)
		if err != nil {
			return nil, err
		}
		return []fenrirNet.Message{fenrirNet.ModifyOrder{ID: id, Price: price, Quantity: quantities[0]}}, nil

	case "cancel":
		if id == "" {
			return nil, errors.New("-id is required to cancel an order")
		}
		return []fenrirNet.Message{fenrirNet.CancelOrder{ID: id}}, nil

	case "book":
		return []fenrirNet.Message{fenrirNet.ViewBook{Symbol: symbol}}, nil

	case "export":
		return []fenrirNet.Message{fenrirNet.ExportOrders{}}, nil

	default:
		return nil, fmt.Errorf("unknown action %q", action)
	}
}

// parseQuantities splits a comma-separated string into a slice of uint64
func parseQuantities(input string) ([]uint64, error) {
	var result []uint64
	for _, p := range strings.Split(input, ",") {
		val, err := strconv.ParseUint(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("-qty: invalid quantity %q", p)
		}
		result = append(result, val)
	}
	return result, nil
}

func describe(m fenrirNet.Message) string {
	switch m := m.(type) {
	case fenrirNet.NewOrder:
		return fmt.Sprintf("%s order: %s %d @ %s", m.Side, m.Symbol, m.Quantity, m.Price)
	case fenrirNet.ModifyOrder:
		return fmt.Sprintf("modify %s: %d @ %s", m.ID, m.Quantity, m.Price)
	case fenrirNet.CancelOrder:
		return "cancel " + m.ID
	case fenrirNet.ViewBook:
		return "book request for " + m.Symbol
	default:
		return m.Type().String() + " request"
	}
}

// readReports continuously reads and prints reports from the server
func readReports(conn net.Conn) {
	for {
		report, err := fenrirNet.ReadMessage(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Error().Err(err).Msg("connection lost")
			}
			return
		}

		switch r := report.(type) {
		case fenrirNet.Ack:
			fmt.Printf("[ACK] %s %s\n", r.Text, r.ID)
		case fenrirNet.Error:
			fmt.Printf("[SERVER ERROR] %s\n", r.Text)
		case fenrirNet.Execution:
			fmt.Printf("[EXECUTION] %s %s | Order: %s | Qty: %d | Price: %s | Trade: %s\n",
				r.Side, r.Trade.Symbol, r.OrderID, r.Trade.Quantity, r.Trade.Price, r.Trade.ID)
		case fenrirNet.Book:
			printBook(r)
		case fenrirNet.Heartbeat:
			fmt.Println("[HEARTBEAT]")
		default:
			fmt.Printf("[%s] %+v\n", r.Type(), r)
		}
	}
}

func printBook(book fenrirNet.Book) {
	fmt.Printf("Order book for %s\n", book.Symbol)
	fmt.Println("BIDS:")
	for _, order := range book.Bids {
		fmt.Printf("  %-36s %10s x %d\n", order.ID, order.Price, order.Quantity)
	}
	fmt.Println("ASKS:")
	for _, order := range book.Asks {
		fmt.Printf("  %-36s %10s x %d\n", order.ID, order.Price, order.Quantity)
	}
}
