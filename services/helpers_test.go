package services

import (
	"context"
	"errors"
	"io"
	"math"
	"sync"
	"time"

	"fno-signals/interfaces"

	"github.com/sirupsen/logrus"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr(v float64) *float64 {
	return &v
}

func tptr(t time.Time) *time.Time {
	return &t
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// fakeQuotes is an in-memory QuotePort
type fakeQuotes struct {
	mu          sync.Mutex
	instruments []*interfaces.Contract
	quotes      map[string]*interfaces.Quote
	instrErr    error
	quoteErr    error
	calls       int
}

func (f *fakeQuotes) GetQuotes(ctx context.Context, identifiers []string) (map[string]*interfaces.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.quoteErr != nil {
		return nil, f.quoteErr
	}
	out := make(map[string]*interfaces.Quote)
	for _, id := range identifiers {
		if q, ok := f.quotes[id]; ok {
			out[id] = q
		}
	}
	return out, nil
}

func (f *fakeQuotes) GetInstruments(ctx context.Context) ([]*interfaces.Contract, error) {
	if f.instrErr != nil {
		return nil, f.instrErr
	}
	return f.instruments, nil
}

var errBrokerDown = errors.New("broker down")

// hangingQuotes blocks every call until the caller's context ends
type hangingQuotes struct{}

func (hangingQuotes) GetQuotes(ctx context.Context, identifiers []string) (map[string]*interfaces.Quote, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (hangingQuotes) GetInstruments(ctx context.Context) ([]*interfaces.Contract, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
