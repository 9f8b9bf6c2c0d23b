package upstream

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Shared wire types. The listing gateway is loose about numeric encoding:
// valuations arrive as JSON strings on some plans and raw numbers on others,
// so every numeric field decodes through flexDecimal / flexInt.
// ---------------------------------------------------------------------------

// Listing is one candidate token from the graduated/bonding listing pages.
type Listing struct {
	TokenAddress string
	Name         string
	Symbol       string
	FDV          decimal.Decimal // fully diluted valuation, USD
	Liquidity    decimal.Decimal // USD
	Holders      int
	PriceUSD     decimal.Decimal
	CreatedAt    time.Time
}

// SecurityReport is the normalized rugcheck extraction. Unknown is the
// sentinel state used when the report could not be fetched; the pipeline
// continues with degraded data rather than aborting the candidate.
type SecurityReport struct {
	Known         bool
	Score         int // normalized 0-100
	Honeypot      bool
	LPLocked      bool
	LPLockedUSD   decimal.Decimal
	TotalHolders  int
	TopHolderPcts []float64 // percent, descending as reported
	FreezeAuth    string
	MintAuth      string
}

// UnknownReport is the degraded sentinel: no honeypot evidence, LP assumed
// locked, zero score. Matches the failure tuple of the source deployments.
func UnknownReport() SecurityReport {
	return SecurityReport{Known: false, LPLocked: true}
}

// Transfer is one qualifying transfer from the transfer-history service.
type Transfer struct {
	Wallet string
	Amount float64 // decimal-adjusted token units
}

// flexDecimal decodes a JSON string, number, or null into a decimal.
type flexDecimal struct {
	decimal.Decimal
}

func (f *flexDecimal) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		f.Decimal = decimal.Zero
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			f.Decimal = decimal.Zero
			return nil
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			// Malformed field degrades to zero, it must not sink the page.
			f.Decimal = decimal.Zero
			return nil
		}
		f.Decimal = d
		return nil
	}
	d, err := decimal.NewFromString(string(data))
	if err != nil {
		f.Decimal = decimal.Zero
		return nil
	}
	f.Decimal = d
	return nil
}

// flexInt decodes a JSON string, number, or null into an int.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			*f = 0
			return nil
		}
		*f = flexInt(n)
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		*f = 0
		return nil
	}
	*f = flexInt(int(n))
	return nil
}
