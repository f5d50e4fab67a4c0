package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/nautilus-go/exec-core/internal/model"
	"github.com/nautilus-go/exec-core/internal/venue/transport"
)

// DataFeed is a generic WebSocket venue.DataClient: one transport.WS
// connection multiplexing every instrument a caller has subscribed to,
// decoding book-depth frames keyed by instrument id and fanning each
// decoded snapshot out to every subscriber channel for that instrument.
type DataFeed struct {
	ws     *transport.WS
	logger *slog.Logger

	mu   sync.Mutex
	subs map[model.InstrumentId][]chan model.OrderBookSnapshot

	runCancel context.CancelFunc
	runDone   chan struct{}
}

// NewDataFeed builds a DataFeed dialing wsURL. Subscriptions accumulated
// before the first Connect are replayed once the socket comes up; any
// added afterward are sent immediately via SendJSON and replayed again on
// reconnect through the transport's Resubscribe hook.
func NewDataFeed(wsURL string, logger *slog.Logger) *DataFeed {
	if logger == nil {
		logger = slog.Default()
	}
	f := &DataFeed{
		logger: logger,
		subs:   make(map[model.InstrumentId][]chan model.OrderBookSnapshot),
	}
	f.ws = transport.New(wsURL, f.dispatch, f.resubscribe, logger)
	return f
}

func (f *DataFeed) Connect(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	f.runCancel = cancel
	f.runDone = make(chan struct{})
	go func() {
		defer close(f.runDone)
		if err := f.ws.Run(runCtx); err != nil && runCtx.Err() == nil {
			f.logger.Error("data feed run loop exited", "error", err)
		}
	}()
	return nil
}

func (f *DataFeed) Disconnect(ctx context.Context) error {
	if f.runCancel != nil {
		f.runCancel()
		<-f.runDone
	}
	return f.ws.Close()
}

func (f *DataFeed) IsConnected() bool {
	return f.runCancel != nil
}

type subscribeMessage struct {
	Op           string `json:"op"`
	InstrumentID string `json:"instrument_id"`
}

// resubscribe replays every instrument this feed currently has live
// subscribers for, called once per (re)connect by transport.WS.
func (f *DataFeed) resubscribe(ws *transport.WS) error {
	f.mu.Lock()
	instruments := make([]model.InstrumentId, 0, len(f.subs))
	for instID := range f.subs {
		instruments = append(instruments, instID)
	}
	f.mu.Unlock()

	for _, instID := range instruments {
		if err := ws.SendJSON(subscribeMessage{Op: "subscribe", InstrumentID: instID.String()}); err != nil {
			return fmt.Errorf("resubscribe %s: %w", instID, err)
		}
	}
	return nil
}

// Subscribe registers instrumentID for book updates, returning a channel
// of decoded snapshots and a cancel func that unregisters it.
func (f *DataFeed) Subscribe(ctx context.Context, instrumentID model.InstrumentId) (<-chan model.OrderBookSnapshot, func(), error) {
	ch := make(chan model.OrderBookSnapshot, 32)

	f.mu.Lock()
	_, alreadySubscribed := f.subs[instrumentID]
	f.subs[instrumentID] = append(f.subs[instrumentID], ch)
	f.mu.Unlock()

	if !alreadySubscribed && f.IsConnected() {
		// Until the socket is up SendJSON fails; resubscribe then replays
		// this instrument along with the rest once the connection comes up.
		if err := f.ws.SendJSON(subscribeMessage{Op: "subscribe", InstrumentID: instrumentID.String()}); err != nil {
			f.logger.Debug("subscribe not sent, replayed on connect", "instrument_id", instrumentID, "error", err)
		}
	}

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		chans := f.subs[instrumentID]
		for i, c := range chans {
			if c == ch {
				f.subs[instrumentID] = append(chans[:i], chans[i+1:]...)
				break
			}
		}
		close(ch)
	}
	return ch, cancel, nil
}

type bookFrame struct {
	InstrumentID string `json:"instrument_id"`
	Bids         []struct {
		Price    string `json:"price"`
		Quantity string `json:"quantity"`
	} `json:"bids"`
	Asks []struct {
		Price    string `json:"price"`
		Quantity string `json:"quantity"`
	} `json:"asks"`
	TsEvent int64 `json:"ts_event"`
}

// dispatch decodes a raw frame and fans the resulting snapshot out to
// every subscriber for its instrument, dropping frames for instruments
// with no current subscriber and never blocking on a slow reader (a full
// channel's oldest update is simply superseded next tick).
func (f *DataFeed) dispatch(data []byte) {
	var frame bookFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		f.logger.Warn("failed to decode book frame", "error", err)
		return
	}

	instID := model.InstrumentId(frame.InstrumentID)
	snapshot := model.OrderBookSnapshot{
		InstrumentID: instID,
		TsEvent:      model.UnixNanos(frame.TsEvent),
	}
	for _, b := range frame.Bids {
		price, _ := decimal.NewFromString(b.Price)
		qty, _ := decimal.NewFromString(b.Quantity)
		snapshot.Bids = append(snapshot.Bids, model.PriceLevel{Price: price, Quantity: qty})
	}
	for _, a := range frame.Asks {
		price, _ := decimal.NewFromString(a.Price)
		qty, _ := decimal.NewFromString(a.Quantity)
		snapshot.Asks = append(snapshot.Asks, model.PriceLevel{Price: price, Quantity: qty})
	}

	f.mu.Lock()
	subscribers := append([]chan model.OrderBookSnapshot(nil), f.subs[instID]...)
	f.mu.Unlock()

	for _, ch := range subscribers {
		select {
		case ch <- snapshot:
		default:
		}
	}
}
