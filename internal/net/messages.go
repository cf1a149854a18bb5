package net

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"fenrir/internal/common"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidMessageType = errors.New("invalid message type")
	ErrMessageTooShort    = errors.New("message too short")
	ErrMessageTooLarge    = errors.New("message too large")
	ErrStringTooLong      = errors.New("string too long")
	ErrInvalidPrice       = errors.New("invalid price")
)

// MessageType is the first field of every frame. Requests flow client to
// server, reports server to client.
type MessageType uint16

const (
	HeartbeatMessage MessageType = iota + 1
	NewOrderMessage
	ModifyOrderMessage
	CancelOrderMessage
	ViewBookMessage
	ExportOrdersMessage
)

const (
	AckReport MessageType = iota + 0x80
	ExecutionReport
	ErrorReport
	BookReport
)

func (t MessageType) String() string {
	switch t {
	case HeartbeatMessage:
		return "heartbeat"
	case NewOrderMessage:
		return "new_order"
	case ModifyOrderMessage:
		return "modify_order"
	case CancelOrderMessage:
		return "cancel_order"
	case ViewBookMessage:
		return "view_book"
	case ExportOrdersMessage:
		return "export_orders"
	case AckReport:
		return "ack"
	case ExecutionReport:
		return "execution"
	case ErrorReport:
		return "error"
	case BookReport:
		return "book"
	default:
		return fmt.Sprintf("unknown(%d)", uint16(t))
	}
}

// Frame layout: [type:2][length:4][body:length], big endian.
const (
	FrameHeaderLen = 2 + 4
	MaxBodyLen     = 1 << 20
)

type Message interface {
	Type() MessageType
	encode(e *encoder)
}

// --- Requests ---------------------------------------------------------------

type Heartbeat struct{}

// NewOrder asks for a limit order. An empty ID has the server assign one.
type NewOrder struct {
	ID       string
	Symbol   string
	Side     common.Side
	Price    decimal.Decimal
	Quantity uint64
}

// Order turns the request into an order for the engine.
func (m NewOrder) Order() common.Order {
	id := m.ID
	if id == "" {
		id = uuid.NewString()
	}
	return common.Order{
		ID:       id,
		Symbol:   m.Symbol,
		Side:     m.Side,
		Price:    m.Price,
		Quantity: m.Quantity,
	}
}

type ModifyOrder struct {
	ID       string
	Price    decimal.Decimal
	Quantity uint64
}

type CancelOrder struct {
	ID string
}

type ViewBook struct {
	Symbol string
}

type ExportOrders struct{}

// --- Reports ----------------------------------------------------------------

// Ack confirms a request. ID is the order it concerned, if any.
type Ack struct {
	ID   string
	Text string
}

// Execution tells the owner of OrderID, resting on Side, about a fill.
type Execution struct {
	Trade   common.Trade
	Side    common.Side
	OrderID string
}

type Error struct {
	Text string
}

type Book struct {
	Symbol string
	Bids   []common.Order
	Asks   []common.Order
}

func (Heartbeat) Type() MessageType    { return HeartbeatMessage }
func (NewOrder) Type() MessageType     { return NewOrderMessage }
func (ModifyOrder) Type() MessageType  { return ModifyOrderMessage }
func (CancelOrder) Type() MessageType  { return CancelOrderMessage }
func (ViewBook) Type() MessageType     { return ViewBookMessage }
func (ExportOrders) Type() MessageType { return ExportOrdersMessage }
func (Ack) Type() MessageType          { return AckReport }
func (Execution) Type() MessageType    { return ExecutionReport }
func (Error) Type() MessageType        { return ErrorReport }
func (Book) Type() MessageType         { return BookReport }

func (Heartbeat) encode(*encoder)    {}
func (ExportOrders) encode(*encoder) {}

func (m NewOrder) encode(e *encoder) {
	e.str(m.ID)
	e.str(m.Symbol)
	e.u8(uint8(m.Side))
	e.price(m.Price)
	e.u64(m.Quantity)
}

func (m ModifyOrder) encode(e *encoder) {
	e.str(m.ID)
	e.price(m.Price)
	e.u64(m.Quantity)
}

func (m CancelOrder) encode(e *encoder) { e.str(m.ID) }
func (m ViewBook) encode(e *encoder)    { e.str(m.Symbol) }

func (m Ack) encode(e *encoder) {
	e.str(m.ID)
	e.str(m.Text)
}

func (m Execution) encode(e *encoder) {
	e.str(m.Trade.ID)
	e.str(m.Trade.BuyOrderID)
	e.str(m.Trade.SellOrderID)
	e.str(m.Trade.Symbol)
	e.price(m.Trade.Price)
	e.u64(m.Trade.Quantity)
	e.time(m.Trade.ExecutedAt)
	e.u8(uint8(m.Side))
	e.str(m.OrderID)
}

func (m Error) encode(e *encoder) { e.str(m.Text) }

func (m Book) encode(e *encoder) {
	e.str(m.Symbol)
	for _, side := range [][]common.Order{m.Bids, m.Asks} {
		e.u32(uint32(len(side)))
		for _, order := range side {
			e.str(order.ID)
			e.price(order.Price)
			e.u64(order.Quantity)
			e.time(order.CreatedAt)
		}
	}
}

// Decode parses a frame body of the given type.
func Decode(typeOf MessageType, body []byte) (Message, error) {
	d := &decoder{buf: body}

	var m Message
	switch typeOf {
	case HeartbeatMessage:
		m = Heartbeat{}
	case NewOrderMessage:
		m = NewOrder{
			ID:       d.str(),
			Symbol:   d.str(),
			Side:     common.Side(d.u8()),
			Price:    d.price(),
			Quantity: d.u64(),
		}
	case ModifyOrderMessage:
		m = ModifyOrder{ID: d.str(), Price: d.price(), Quantity: d.u64()}
	case CancelOrderMessage:
		m = CancelOrder{ID: d.str()}
	case ViewBookMessage:
		m = ViewBook{Symbol: d.str()}
	case ExportOrdersMessage:
		m = ExportOrders{}
	case AckReport:
		m = Ack{ID: d.str(), Text: d.str()}
	case ExecutionReport:
		m = Execution{
			Trade: common.Trade{
				ID:          d.str(),
				BuyOrderID:  d.str(),
				SellOrderID: d.str(),
				Symbol:      d.str(),
				Price:       d.price(),
				Quantity:    d.u64(),
				ExecutedAt:  d.time(),
			},
			Side:    common.Side(d.u8()),
			OrderID: d.str(),
		}
	case ErrorReport:
		m = Error{Text: d.str()}
	case BookReport:
		book := Book{Symbol: d.str()}
		book.Bids = d.orders(book.Symbol, common.Buy)
		book.Asks = d.orders(book.Symbol, common.Sell)
		m = book
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidMessageType, uint16(typeOf))
	}

	if d.err != nil {
		return nil, fmt.Errorf("decode %s: %w", typeOf, d.err)
	}
	return m, nil
}

// Encode renders a message as one complete frame.
func Encode(m Message) ([]byte, error) {
	e := &encoder{buf: make([]byte, FrameHeaderLen, 64)}
	m.encode(e)
	if e.err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Type(), e.err)
	}

	bodyLen := len(e.buf) - FrameHeaderLen
	if bodyLen > MaxBodyLen {
		return nil, fmt.Errorf("encode %s: %w", m.Type(), ErrMessageTooLarge)
	}
	binary.BigEndian.PutUint16(e.buf[0:2], uint16(m.Type()))
	binary.BigEndian.PutUint32(e.buf[2:6], uint32(bodyLen))
	return e.buf, nil
}

// WriteMessage writes m to w as a single frame.
func WriteMessage(w io.Writer, m Message) error {
	frame, err := Encode(m)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}

// ReadFrame reads one whole frame. Errors from here leave the stream at an
// unknown position; a body that fails to Decode does not.
func ReadFrame(r io.Reader) (MessageType, []byte, error) {
	var header [FrameHeaderLen]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, err
	}
	typeOf := MessageType(binary.BigEndian.Uint16(header[0:2]))
	bodyLen := binary.BigEndian.Uint32(header[2:6])
	if bodyLen > MaxBodyLen {
		return 0, nil, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, bodyLen)
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, err
	}
	return typeOf, body, nil
}

// ReadMessage reads and decodes one frame.
func ReadMessage(r io.Reader) (Message, error) {
	typeOf, body, err := ReadFrame(r)
	if err != nil {
		return nil, err
	}
	return Decode(typeOf, body)
}

// --- Field codecs -----------------------------------------------------------

// Strings are [length:2][bytes]. Prices travel as IEEE 754 bits and times as
// Unix nanoseconds.
type encoder struct {
	buf []byte
	err error
}

func (e *encoder) u8(v uint8)   { e.buf = append(e.buf, v) }
func (e *encoder) u32(v uint32) { e.buf = binary.BigEndian.AppendUint32(e.buf, v) }
func (e *encoder) u64(v uint64) { e.buf = binary.BigEndian.AppendUint64(e.buf, v) }

func (e *encoder) str(s string) {
	if len(s) > math.MaxUint16 {
		e.err = ErrStringTooLong
		return
	}
	e.buf = binary.BigEndian.AppendUint16(e.buf, uint16(len(s)))
	e.buf = append(e.buf, s...)
}

func (e *encoder) price(p decimal.Decimal) {
	f, _ := p.Float64()
	e.u64(math.Float64bits(f))
}

func (e *encoder) time(t time.Time) {
	if t.IsZero() {
		e.u64(0)
		return
	}
	e.u64(uint64(t.UnixNano()))
}

type decoder struct {
	buf []byte
	err error
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if len(d.buf) < n {
		d.err = ErrMessageTooShort
		return nil
	}
	b := d.buf[:n]
	d.buf = d.buf[n:]
	return b
}

func (d *decoder) u8() uint8 {
	if b := d.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (d *decoder) u16() uint16 {
	if b := d.take(2); b != nil {
		return binary.BigEndian.Uint16(b)
	}
	return 0
}

func (d *decoder) u32() uint32 {
	if b := d.take(4); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

func (d *decoder) u64() uint64 {
	if b := d.take(8); b != nil {
		return binary.BigEndian.Uint64(b)
	}
	return 0
}

func (d *decoder) str() string {
	n := d.u16()
	return string(d.take(int(n)))
}

func (d *decoder) price() decimal.Decimal {
	f := math.Float64frombits(d.u64())
	if math.IsNaN(f) || math.IsInf(f, 0) {
		if d.err == nil {
			d.err = ErrInvalidPrice
		}
		return decimal.Zero
	}
	return decimal.NewFromFloat(f)
}

func (d *decoder) time() time.Time {
	ns := d.u64()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, int64(ns))
}

func (d *decoder) orders(symbol string, side common.Side) []common.Order {
	n := d.u32()
	if d.err != nil {
		return nil
	}
	// Each entry is at least 2+8+8+8 bytes; a count beyond that is corrupt.
	if int(n) > len(d.buf)/26 {
		d.err = ErrMessageTooShort
		return nil
	}
	orders := make([]common.Order, 0, n)
	for i := uint32(0); i < n && d.err == nil; i++ {
		orders = append(orders, common.Order{
			ID:        d.str(),
			Symbol:    symbol,
			Side:      side,
			Price:     d.price(),
			Quantity:  d.u64(),
			CreatedAt: d.time(),
		})
	}
	return orders
}
