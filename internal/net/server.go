package net

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"fenrir/internal/common"
	"fenrir/internal/config"
	"fenrir/internal/exchange"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

const (
	defaultWriteTimeout = time.Second
	messageQueueSize    = 64
)

var (
	ErrImproperConversion = errors.New("improper type conversion")
	ErrClientDoesNotExist = errors.New("client does not exist")
	ErrUnexpectedMessage  = errors.New("unexpected message")
)

// ClientSession contains relevant information pertaining to an individual
// connected TCP session.
type ClientSession struct {
	address string
	conn    net.Conn
}

// ClientMessage links a message, or the reason it could not be decoded, to
// the client sending it.
type ClientMessage struct {
	clientAddress string
	message       Message
	err           error
}

type Server struct {
	address     string
	idleTimeout time.Duration
	service     *exchange.Service
	pool        *WorkerPool

	clientSessions     map[string]*ClientSession
	clientSessionsLock sync.Mutex
	clientMessages     chan ClientMessage

	// Order id to the address of the client that placed it. Only the session
	// handler touches it.
	owners map[string]string

	ready chan struct{}
	addr  net.Addr
}

func New(cfg config.ServerConfig, service *exchange.Service) *Server {
	return &Server{
		address:        cfg.Addr(),
		idleTimeout:    cfg.IdleTimeout,
		service:        service,
		pool:           NewWorkerPool(cfg.Workers),
		clientSessions: make(map[string]*ClientSession),
		clientMessages: make(chan ClientMessage, messageQueueSize),
		owners:         make(map[string]string),
		ready:          make(chan struct{}),
	}
}

// Ready is closed once the server is listening.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr is the address the server listens on. Valid once Ready is closed.
func (s *Server) Addr() net.Addr {
	return s.addr
}

// Run serves clients until ctx is done or a worker fails.
func (s *Server) Run(ctx context.Context) error {
	t, ctx := tomb.WithContext(ctx)

	// Start a tcp listener.
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.address)
	if err != nil {
		t.Kill(nil)
		return fmt.Errorf("unable to start listener: %w", err)
	}
	s.addr = listener.Addr()
	close(s.ready)

	// Closing the listener is what unblocks Accept.
	t.Go(func() error {
		<-t.Dying()
		if err := listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Error().Err(err).Msg("unable to close listener")
		}
		return nil
	})

	s.pool.Start(t, s.handleConnection)

	t.Go(func() error {
		return s.sessionHandler(ctx, t)
	})

	t.Go(func() error {
		return s.acceptConnections(t, listener)
	})

	log.Info().Str("address", s.addr.String()).Msg("server running")

	err = t.Wait()
	s.pool.Drain(func(task any) {
		if conn, ok := task.(net.Conn); ok {
			_ = conn.Close()
		}
	})
	log.Info().Msg("server shut down")

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Server) acceptConnections(t *tomb.Tomb, listener net.Listener) error {
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-t.Dying():
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			log.Error().Err(err).Msg("error accepting client")
			continue
		}

		log.Info().
			Str("address", conn.RemoteAddr().String()).
			Msg("new client connection")

		// Pass over the connection to be served by the next free worker.
		if !s.pool.AddTask(t, conn) {
			_ = conn.Close()
			return nil
		}
	}
}

// Report sends a message to one client. A client that cannot be written to
// is dropped.
func (s *Server) Report(clientAddress string, message Message) error {
	s.clientSessionsLock.Lock()
	client, ok := s.clientSessions[clientAddress]
	s.clientSessionsLock.Unlock()
	if !ok {
		return ErrClientDoesNotExist
	}

	err := client.conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout))
	if err == nil {
		err = WriteMessage(client.conn, message)
	}
	if err != nil {
		s.deleteClientSession(clientAddress)
		return fmt.Errorf("unable to send report: %w", err)
	}
	return nil
}

func (s *Server) reply(clientAddress string, message Message) {
	if err := s.Report(clientAddress, message); err != nil {
		log.Warn().
			Err(err).
			Str("address", clientAddress).
			Stringer("type", message.Type()).
			Msg("dropped report")
	}
}

func (s *Server) replyError(clientAddress string, err error) {
	s.reply(clientAddress, Error{Text: err.Error()})
}

// sessionHandler applies client messages to the exchange one at a time, in
// the order the workers received them, and answers them.
func (s *Server) sessionHandler(ctx context.Context, t *tomb.Tomb) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case message := <-s.clientMessages:
			s.handleMessage(ctx, message)
		}
	}
}

func (s *Server) handleMessage(ctx context.Context, cm ClientMessage) {
	address := cm.clientAddress
	if cm.err != nil {
		log.Warn().Err(cm.err).Str("address", address).Msg("error parsing message")
		s.replyError(address, cm.err)
		return
	}

	log.Debug().
		Str("address", address).
		Stringer("type", cm.message.Type()).
		Msg("new message")

	switch m := cm.message.(type) {
	case Heartbeat:
		s.reply(address, Heartbeat{})

	case NewOrder:
		order := m.Order()
		trades, err := s.service.Place(ctx, order)
		if err != nil {
			s.replyError(address, err)
			return
		}
		s.owners[order.ID] = address
		s.reply(address, Ack{ID: order.ID, Text: "placed"})
		s.routeExecutions(trades)

	case ModifyOrder:
		trades, err := s.service.Modify(ctx, m.ID, m.Price, m.Quantity)
		if err != nil {
			s.replyError(address, err)
			return
		}
		s.reply(address, Ack{ID: m.ID, Text: "modified"})
		s.routeExecutions(trades)

	case CancelOrder:
		if _, err := s.service.Cancel(ctx, m.ID); err != nil {
			s.replyError(address, err)
			return
		}
		delete(s.owners, m.ID)
		s.reply(address, Ack{ID: m.ID, Text: "cancelled"})

	case ViewBook:
		view, err := s.service.Book(m.Symbol)
		if err != nil {
			s.replyError(address, err)
			return
		}
		s.reply(address, Book{Symbol: view.Symbol, Bids: view.Bids, Asks: view.Asks})

	case ExportOrders:
		if err := s.service.Export(ctx); err != nil {
			s.replyError(address, err)
			return
		}
		s.reply(address, Ack{Text: "orders exported"})

	default:
		s.replyError(address, fmt.Errorf("%w: %s", ErrUnexpectedMessage, m.Type()))
	}
}

// routeExecutions reports each side of every trade to the client owning that
// order, then forgets orders that have left the book.
func (s *Server) routeExecutions(trades []common.Trade) {
	for _, trade := range trades {
		legs := []struct {
			id   string
			side common.Side
		}{
			{trade.BuyOrderID, common.Buy},
			{trade.SellOrderID, common.Sell},
		}
		for _, leg := range legs {
			owner, ok := s.owners[leg.id]
			if !ok {
				continue
			}
			s.reply(owner, Execution{Trade: trade, Side: leg.side, OrderID: leg.id})
		}
	}

	for _, trade := range trades {
		for _, id := range []string{trade.BuyOrderID, trade.SellOrderID} {
			if _, resting := s.service.Order(id); !resting {
				delete(s.owners, id)
			}
		}
	}
}

// handleConnection serves one connection until it closes: it reads frames,
// decodes them and hands them to the session handler. Any error returned from
// here is fatal.
func (s *Server) handleConnection(t *tomb.Tomb, task any) error {
	conn, ok := task.(net.Conn)
	if !ok {
		return ErrImproperConversion
	}

	address := s.addClientSession(conn)
	done := make(chan struct{})
	defer func() {
		close(done)
		s.deleteClientSession(address)
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Error().Str("address", address).Err(err).Msg("unable to close connection")
		}
		log.Info().Str("address", address).Msg("client disconnected")
	}()

	// Unblock the read below on shutdown.
	go func() {
		select {
		case <-t.Dying():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		if s.idleTimeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(s.idleTimeout)); err != nil {
				log.Error().Err(err).Str("address", address).Msg("failed setting deadline for connection")
				return nil
			}
		}

		typeOf, body, err := ReadFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Warn().Err(err).Str("address", address).Msg("error reading from connection")
			}
			return nil
		}
		message, err := Decode(typeOf, body)

		select {
		case s.clientMessages <- ClientMessage{clientAddress: address, message: message, err: err}:
		case <-t.Dying():
			return nil
		}
	}
}

// addClientSession is an atomic map add
func (s *Server) addClientSession(conn net.Conn) string {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()

	address := conn.RemoteAddr().String()
	s.clientSessions[address] = &ClientSession{
		address: address,
		conn:    conn,
	}
	return address
}

// deleteClientSession is an atomic map remove
func (s *Server) deleteClientSession(address string) {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()

	delete(s.clientSessions, address)
}
