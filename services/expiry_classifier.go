package services

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"fno-signals/interfaces"
)

// maxBuckets is the number of expiry cycles tracked: front, back, far
const maxBuckets = 3

var futuresSuffix = regexp.MustCompile(`\d{2}[A-Z]{3}FUT$`)

// ExpiryBuckets partitions futures contracts into the three nearest expiry cycles
type ExpiryBuckets struct {
	Front    []string    `json:"front"`
	Back     []string    `json:"back"`
	Far      []string    `json:"far"`
	Expiries []time.Time `json:"expiries"`
}

// Empty reports whether no valid expiry was found
func (b ExpiryBuckets) Empty() bool {
	return len(b.Expiries) == 0
}

// Bucket returns the tradingsymbols of cycle i (0 front, 1 back, 2 far)
func (b ExpiryBuckets) Bucket(i int) []string {
	switch i {
	case 0:
		return b.Front
	case 1:
		return b.Back
	case 2:
		return b.Far
	}
	return nil
}

func emptyBuckets() ExpiryBuckets {
	return ExpiryBuckets{
		Front:    []string{},
		Back:     []string{},
		Far:      []string{},
		Expiries: []time.Time{},
	}
}

// UnderlyingOf strips the "25JANFUT" style suffix of a futures tradingsymbol
func UnderlyingOf(tradingsymbol string) string {
	return futuresSuffix.ReplaceAllString(tradingsymbol, "")
}

// ClassifyFutures buckets futures tradingsymbols by their expiry in the reference table.
// Only symbols ending in FUT that the reference knows are considered; expiries before
// today are dropped and at most three distinct expiries are kept. Symbols sharing an
// expiry land in the same bucket.
func ClassifyFutures(symbols []string, reference []*interfaces.Contract, today time.Time) ExpiryBuckets {
	wanted := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		if strings.HasSuffix(s, interfaces.InstrumentFuture) {
			wanted[s] = true
		}
	}

	// first reference row per tradingsymbol
	expiryOf := make(map[string]time.Time)
	for _, c := range reference {
		if c == nil || !wanted[c.Tradingsymbol] || c.Expiry.IsZero() {
			continue
		}
		if _, seen := expiryOf[c.Tradingsymbol]; !seen {
			expiryOf[c.Tradingsymbol] = civilDate(c.Expiry)
		}
	}

	cutoff := civilDate(today)
	distinct := make(map[time.Time]bool)
	for ts, exp := range expiryOf {
		if exp.Before(cutoff) {
			delete(expiryOf, ts)
			continue
		}
		distinct[exp] = true
	}

	expiries := make([]time.Time, 0, len(distinct))
	for exp := range distinct {
		expiries = append(expiries, exp)
	}
	sort.Slice(expiries, func(i, j int) bool { return expiries[i].Before(expiries[j]) })
	if len(expiries) > maxBuckets {
		expiries = expiries[:maxBuckets]
	}

	buckets := emptyBuckets()
	if len(expiries) == 0 {
		return buckets
	}
	buckets.Expiries = expiries

	names := make([]string, 0, len(expiryOf))
	for ts := range expiryOf {
		names = append(names, ts)
	}
	sort.Strings(names)

	for _, ts := range names {
		exp := expiryOf[ts]
		for i, e := range expiries {
			if !exp.Equal(e) {
				continue
			}
			switch i {
			case 0:
				buckets.Front = append(buckets.Front, ts)
			case 1:
				buckets.Back = append(buckets.Back, ts)
			case 2:
				buckets.Far = append(buckets.Far, ts)
			}
		}
	}

	return buckets
}

// ExpiriesFor classifies the futures of one underlying found in the instrument master
func ExpiriesFor(underlying string, contracts []*interfaces.Contract, today time.Time) ExpiryBuckets {
	var symbols []string
	for _, c := range contracts {
		if c == nil || !c.IsFuture() {
			continue
		}
		if c.Name == underlying || UnderlyingOf(c.Tradingsymbol) == underlying {
			symbols = append(symbols, c.Tradingsymbol)
		}
	}
	return ClassifyFutures(symbols, contracts, today)
}

// civilDate drops the clock part, keeping the calendar date as seen in t's location
func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
