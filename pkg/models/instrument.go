package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type AssetClass int

const (
	ClassCurrency AssetClass = iota + 1
	ClassEquity
	ClassFuture
)

func (c AssetClass) String() string {
	switch c {
	case ClassCurrency:
		return "currency"
	case ClassEquity:
		return "equity"
	case ClassFuture:
		return "future"
	default:
		return "unknown"
	}
}

// Instrument describes a tradable symbol. For futures it carries the maturity
// date and the whole number of days remaining until it, computed once at
// construction. The day count is never refreshed: a long-lived Instrument
// drifts from the true remaining days, so rebuild it when accuracy matters.
type Instrument struct {
	Symbol         string
	Class          AssetClass
	MaturityDate   time.Time
	DaysToMaturity int
}

// Futures tickers end in a Spanish three-letter month abbreviation plus a
// two-digit year, e.g. GGAL/AGO21 or DLR/SEP21.
var futureMonths = [...]string{
	"ENE", "FEB", "MAR", "ABR", "MAY", "JUN",
	"JUL", "AGO", "SEP", "OCT", "NOV", "DIC",
}

// ParseMaturity derives the maturity date embedded in a futures ticker of the
// form XXX/MMMYY, resolved to the last calendar day of that month.
func ParseMaturity(symbol string) (time.Time, error) {
	slash := strings.IndexByte(symbol, '/')
	if slash < 0 {
		return time.Time{}, fmt.Errorf("ticker %q has no maturity suffix", symbol)
	}
	suffix := symbol[slash+1:]
	if len(suffix) < 5 {
		return time.Time{}, fmt.Errorf("ticker %q: maturity suffix too short", symbol)
	}

	month := 0
	for i, abbrev := range futureMonths {
		if strings.EqualFold(suffix[:3], abbrev) {
			month = i + 1
			break
		}
	}
	if month == 0 {
		return time.Time{}, fmt.Errorf("ticker %q: unknown month %q", symbol, suffix[:3])
	}

	year, err := strconv.Atoi(suffix[3:5])
	if err != nil {
		return time.Time{}, fmt.Errorf("ticker %q: bad year %q", symbol, suffix[3:5])
	}
	year += 2000

	// First day of the following month minus one day; time.Date normalizes
	// month 13 into January of the next year.
	first := time.Date(year, time.Month(month+1), 1, 0, 0, 0, 0, time.Local)
	return first.AddDate(0, 0, -1), nil
}

// RemainingDays counts the whole days between now and the maturity date. A
// future maturing today reports 1 so rate annualization stays well-defined.
func RemainingDays(maturity, now time.Time) int {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	m := time.Date(maturity.Year(), maturity.Month(), maturity.Day(), 0, 0, 0, 0, now.Location())
	days := int(m.Sub(today).Hours() / 24)
	if days == 0 {
		days = 1
	}
	return days
}

// NewFuture builds a future-class instrument. When maturity is the zero time
// the date is parsed from the ticker suffix.
func NewFuture(symbol string, maturity time.Time) (Instrument, error) {
	if maturity.IsZero() {
		parsed, err := ParseMaturity(symbol)
		if err != nil {
			return Instrument{}, err
		}
		maturity = parsed
	}
	return Instrument{
		Symbol:         symbol,
		Class:          ClassFuture,
		MaturityDate:   maturity,
		DaysToMaturity: RemainingDays(maturity, time.Now()),
	}, nil
}

func NewCurrency(symbol string) Instrument {
	return Instrument{Symbol: symbol, Class: ClassCurrency}
}

func NewEquity(symbol string) Instrument {
	return Instrument{Symbol: symbol, Class: ClassEquity}
}

func (i Instrument) String() string {
	if i.Class == ClassFuture {
		return fmt.Sprintf("%s (%s, matures %s)", i.Symbol, i.Class, i.MaturityDate.Format("2006-01-02"))
	}
	return fmt.Sprintf("%s (%s)", i.Symbol, i.Class)
}
