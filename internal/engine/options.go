package engine

// settings are shared by an Engine and every book it creates.
type settings struct {
	clock   Clock
	tradeID func() string
	policy  ModifyPolicy
}

func defaultSettings() settings {
	return settings{
		clock:   NewMonotonicClock(),
		tradeID: newTradeID,
		policy:  PreserveTimePriority,
	}
}

// Option configures an Engine or a standalone OrderBook.
type Option func(*settings)

// WithClock replaces the timestamp source.
func WithClock(clock Clock) Option {
	return func(s *settings) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithTradeIDs replaces the trade id generator.
func WithTradeIDs(gen func() string) Option {
	return func(s *settings) {
		if gen != nil {
			s.tradeID = gen
		}
	}
}

// WithModifyPolicy selects how ModifyOrder treats time priority.
func WithModifyPolicy(policy ModifyPolicy) Option {
	return func(s *settings) {
		s.policy = policy
	}
}

func buildSettings(opts []Option) settings {
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	return s
}
