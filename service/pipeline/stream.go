package pipeline

import (
	"context"
	"fmt"
	"sync"
)

// EventType tags a stream event.
type EventType string

const (
	EventConnected EventType = "connected"
	EventProgress  EventType = "progress"
	EventTrades    EventType = "trades"
	EventMetadata  EventType = "metadata"
	EventComplete  EventType = "complete"
	EventError     EventType = "error"
)

// Event is one element of a streamed analysis. IDs are monotonic within a
// stream, starting at 1, so a reconnecting client can resume past events it
// already saw.
type Event struct {
	ID   int64     `json:"id"`
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// streamTradeChunk bounds how many trades ride in one event.
const streamTradeChunk = 50

// ErrorData is the payload of an error event.
type ErrorData struct {
	Message string `json:"message"`
}

// ConnectedData is the payload of the opening event.
type ConnectedData struct {
	Wallet string `json:"wallet"`
}

// ProgressData is the payload of a progress event.
type ProgressData struct {
	Message    string  `json:"message"`
	Percentage float64 `json:"percentage"`
	Step       string  `json:"step"`
}

func progressData(pr Progress) ProgressData {
	d := ProgressData{Step: pr.Phase}
	if pr.Total > 0 {
		d.Percentage = float64(pr.Done) / float64(pr.Total) * 100
		d.Message = fmt.Sprintf("%s: %d/%d", pr.Phase, pr.Done, pr.Total)
	} else {
		d.Message = fmt.Sprintf("%s: %d", pr.Phase, pr.Done)
	}
	return d
}

// Stream runs an analysis and emits it as a sequence of typed events:
// connected, progress while fetching and pricing, trades in chunks, a
// metadata summary, then complete. Events with IDs at or below lastEventID
// are suppressed, which is how reconnects resume. An emit error stops the
// stream.
func (p *Pipeline) Stream(ctx context.Context, wallet string, lastEventID int64, emit func(Event) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu      sync.Mutex
		nextID  int64
		emitErr error
	)
	send := func(typ EventType, data any) error {
		mu.Lock()
		defer mu.Unlock()
		if emitErr != nil {
			return emitErr
		}
		nextID++
		if nextID <= lastEventID {
			return nil
		}
		if err := emit(Event{ID: nextID, Type: typ, Data: data}); err != nil {
			emitErr = err
			cancel()
			return err
		}
		return nil
	}

	if err := send(EventConnected, ConnectedData{Wallet: wallet}); err != nil {
		return err
	}

	res, err := p.Analyze(ctx, wallet, func(pr Progress) {
		_ = send(EventProgress, progressData(pr))
	})
	if err != nil {
		if emitErr != nil {
			return emitErr
		}
		_ = send(EventError, ErrorData{Message: err.Error()})
		return err
	}

	for i := 0; i < len(res.Trades); i += streamTradeChunk {
		end := min(i+streamTradeChunk, len(res.Trades))
		if err := send(EventTrades, res.Trades[i:end]); err != nil {
			return err
		}
	}
	if err := send(EventMetadata, res.Summary); err != nil {
		return err
	}
	return send(EventComplete, CompleteData{
		Wallet:         wallet,
		TotalTrades:    res.Summary.TotalTrades,
		ElapsedSeconds: res.ElapsedSeconds,
	})
}

// CompleteData is the payload of the closing event.
type CompleteData struct {
	Wallet         string  `json:"wallet"`
	TotalTrades    int     `json:"total_trades"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}
