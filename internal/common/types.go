package common

import (
	"errors"
	"strings"
)

var ErrInvalidSide = errors.New("invalid side")

type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether s is one of the two book sides.
func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

// Opposite returns the side an order of side s trades against.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// ParseSide accepts BUY/SELL in any case.
func ParseSide(str string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(str)) {
	case "BUY":
		return Buy, nil
	case "SELL":
		return Sell, nil
	}
	return Buy, ErrInvalidSide
}

func (s Side) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, ErrInvalidSide
	}
	return []byte(s.String()), nil
}

func (s *Side) UnmarshalText(text []byte) error {
	side, err := ParseSide(string(text))
	if err != nil {
		return err
	}
	*s = side
	return nil
}
