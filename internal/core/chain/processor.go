package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strconv"

	"github.com/echelon-net/echelond/internal/core/event"
	"github.com/echelon-net/echelond/internal/core/market"
	"github.com/echelon-net/echelond/internal/core/tx"
	"github.com/echelon-net/echelond/internal/crypto"
	"github.com/echelon-net/echelond/internal/eventbus"
	"github.com/echelon-net/echelond/internal/state"
	"github.com/echelon-net/echelond/internal/storage/blocklog"
	"github.com/echelon-net/echelond/internal/storage/index"
)

// ProcessorConfig wires the processor's collaborators. Index, Archive and
// Bus are optional; a nil value switches that write-through off.
type ProcessorConfig struct {
	Store      *state.Store
	Dispatcher *tx.Dispatcher
	ChainID    string
	Index      *index.Index
	Archive    *blocklog.Log
	Bus        *eventbus.Bus
}

// Processor applies blocks serially: parse, dispatch every envelope in
// order, write projections, archive the raw block and advance the head.
type Processor struct {
	store      *state.Store
	dispatcher *tx.Dispatcher
	chainID    string
	idx        *index.Index
	archive    *blocklog.Log
	bus        *eventbus.Bus
}

func NewProcessor(cfg ProcessorConfig) *Processor {
	return &Processor{
		store:      cfg.Store,
		dispatcher: cfg.Dispatcher,
		chainID:    cfg.ChainID,
		idx:        cfg.Index,
		archive:    cfg.Archive,
		bus:        cfg.Bus,
	}
}

// BlockResult summarizes one applied block.
type BlockResult struct {
	Height   uint64
	BlockID  string
	Applied  int
	Failed   int
	Comments int
	Receipts []*tx.Receipt
}

// ApplyBlock executes one raw block at height. Individual transaction
// failures are captured on their receipts and never abort the block; an
// error here means the block itself is unusable or storage failed, which
// stops ingestion.
func (p *Processor) ApplyBlock(ctx context.Context, height uint64, raw []byte) (*BlockResult, error) {
	block, err := ParseBlock(raw)
	if err != nil {
		return nil, fmt.Errorf("block %d: %w", height, err)
	}
	blockTime, err := block.Time()
	if err != nil {
		return nil, fmt.Errorf("block %d: %w", height, err)
	}

	result := &BlockResult{
		Height:  height,
		BlockID: crypto.ShortID(32, p.chainID, strconv.FormatUint(height, 10), string(raw)),
	}

	envs, comments := block.Envelopes(p.chainID, height, blockTime.Unix())
	result.Comments = len(comments)

	for seq, env := range envs {
		rcpt := p.dispatcher.Execute(ctx, env, height, blockTime.Unix())
		result.Receipts = append(result.Receipts, rcpt)
		if rcpt.OK {
			result.Applied++
		} else {
			result.Failed++
		}

		for i := range rcpt.Events {
			rcpt.Events[i].ID = fmt.Sprintf("%s-%04d", rcpt.TxID, i)
		}
		if p.idx != nil {
			if err := p.indexReceipt(ctx, env, rcpt, height, seq, blockTime.Unix()); err != nil {
				return nil, fmt.Errorf("block %d tx %s: %w", height, rcpt.TxID, err)
			}
		}
		if p.bus != nil {
			for _, evt := range rcpt.Events {
				p.bus.Publish(evt)
			}
		}
	}

	if p.archive != nil {
		if err := p.archive.Append(ctx, height, raw); err != nil {
			return nil, fmt.Errorf("block %d: %w", height, err)
		}
	}
	if err := p.store.SetHead(ctx, state.Head{
		Height:    height,
		BlockID:   result.BlockID,
		Timestamp: blockTime,
	}); err != nil {
		return nil, fmt.Errorf("block %d: advance head: %w", height, err)
	}

	if len(envs) > 0 || result.Comments > 0 {
		log.Printf("[chain] block %d: %d applied, %d failed, %d comments",
			height, result.Applied, result.Failed, result.Comments)
	}
	return result, nil
}

// indexReceipt writes one receipt's rows through to the relational index.
func (p *Processor) indexReceipt(ctx context.Context, env *tx.Envelope, rcpt *tx.Receipt, height uint64, seq int, blockTime int64) error {
	row := index.TxRow{
		ID:        rcpt.TxID,
		Height:    height,
		Seq:       seq,
		Type:      uint16(rcpt.Type),
		TypeName:  rcpt.Type.String(),
		Sender:    rcpt.Sender,
		OK:        rcpt.OK,
		Error:     rcpt.Error,
		Data:      string(env.Data),
		Timestamp: blockTime,
	}
	if row.Data == "" {
		row.Data = "{}"
	}

	events := make([]index.EventRow, 0, len(rcpt.Events))
	for i, evt := range rcpt.Events {
		data, err := json.Marshal(evt.Data)
		if err != nil {
			log.Printf("[chain] event %s: unencodable data: %v", evt.ID, err)
			data = []byte("{}")
		}
		poolID, _ := evt.Data["poolId"].(string)
		events = append(events, index.EventRow{
			ID:        evt.ID,
			TxID:      evt.TxID,
			Height:    height,
			Seq:       seq*10000 + i,
			Category:  evt.Category,
			Action:    evt.Action,
			Actor:     evt.Actor,
			PoolID:    poolID,
			Data:      string(data),
			Timestamp: evt.Timestamp,
		})
	}

	orders, trades, err := p.marketProjections(ctx, rcpt.Events, blockTime)
	if err != nil {
		return err
	}
	return p.idx.RecordTx(ctx, row, rcpt.Accounts, events, orders, trades)
}

// marketProjections reloads every order and trade a receipt's market
// events touched and snapshots them for the index. Events reference
// documents by id, so the final post-execution state is what lands.
func (p *Processor) marketProjections(ctx context.Context, events []event.Event, blockTime int64) ([]index.OrderRow, []index.TradeRow, error) {
	orderIDs := make(map[string]bool)
	tradeIDs := make(map[string]bool)
	collect := func(data map[string]any) {
		for _, key := range []string{"orderId", "makerId", "takerId"} {
			if id, ok := data[key].(string); ok && id != "" {
				orderIDs[id] = true
			}
		}
		if id, ok := data["tradeId"].(string); ok && id != "" {
			tradeIDs[id] = true
		}
	}
	for _, evt := range events {
		if evt.Category != event.CategoryMarket {
			continue
		}
		collect(evt.Data)
		if legs, ok := evt.Data["legs"].([]map[string]any); ok {
			for _, leg := range legs {
				collect(leg)
			}
		}
	}

	var orders []index.OrderRow
	for _, id := range sortedKeys(orderIDs) {
		o, found, err := market.GetOrder(ctx, p.store, id)
		if err != nil {
			return nil, nil, err
		}
		if !found {
			continue
		}
		doc, err := json.Marshal(o)
		if err != nil {
			return nil, nil, err
		}
		price, err := o.Price.Padded()
		if err != nil {
			price = o.Price.String()
		}
		orders = append(orders, index.OrderRow{
			ID:        o.ID,
			PairID:    o.PairID,
			Account:   o.User,
			Side:      string(o.Side),
			Status:    o.Status,
			Price:     price,
			CreatedAt: o.CreatedAt,
			UpdatedAt: blockTime,
			Doc:       doc,
		})
	}

	var trades []index.TradeRow
	for _, id := range sortedKeys(tradeIDs) {
		t, found, err := market.GetTrade(ctx, p.store, id)
		if err != nil {
			return nil, nil, err
		}
		if !found {
			continue
		}
		doc, err := json.Marshal(t)
		if err != nil {
			return nil, nil, err
		}
		trades = append(trades, index.TradeRow{
			ID:           t.ID,
			PairID:       t.PairID,
			MakerOrderID: t.MakerOrderID,
			TakerOrderID: t.TakerOrderID,
			Buyer:        t.Buyer,
			Seller:       t.Seller,
			Timestamp:    t.Timestamp,
			Doc:          doc,
		})
	}
	return orders, trades, nil
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
