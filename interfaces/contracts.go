package interfaces

import "time"

// Instrument types as they appear in the broker instrument master
const (
	InstrumentFuture = "FUT"
	InstrumentCall   = "CE"
	InstrumentPut    = "PE"
	InstrumentEquity = "EQ"
)

// ExchangeNSE is the cash and index exchange of the instrument master
const ExchangeNSE = "NSE"

// Contract represents one row of the instrument master
type Contract struct {
	InstrumentToken int64     `json:"instrument_token"`
	Tradingsymbol   string    `json:"tradingsymbol"`
	Name            string    `json:"name"` // underlying, e.g. "NIFTY" or "RELIANCE"
	Expiry          time.Time `json:"expiry"`
	Strike          float64   `json:"strike,omitempty"`
	InstrumentType  string    `json:"instrument_type"` // FUT, CE, PE, EQ
	Segment         string    `json:"segment"`         // e.g. "NFO-FUT", "NFO-OPT", "NSE"
	Exchange        string    `json:"exchange"`
	LotSize         float64   `json:"lot_size,omitempty"`
	LastPrice       float64   `json:"last_price,omitempty"`
}

// IsFuture reports whether the contract is a futures contract
func (c *Contract) IsFuture() bool {
	return c.InstrumentType == InstrumentFuture
}

// IsOption reports whether the contract is a call or a put
func (c *Contract) IsOption() bool {
	return c.InstrumentType == InstrumentCall || c.InstrumentType == InstrumentPut
}

// ExchangeTag returns the "EXCHANGE:TRADINGSYMBOL" identifier used by quote calls
func ExchangeTag(exchange, tradingsymbol string) string {
	return exchange + ":" + tradingsymbol
}
