// Package event defines the journal record emitted by transaction handlers
// and the per-transaction recorder that buffers them.
package event

// Journal categories.
const (
	CategoryToken     = "token"
	CategoryPool      = "pool"
	CategoryMarket    = "market"
	CategoryNFT       = "nft"
	CategoryLaunchpad = "launchpad"
	CategoryWitness   = "witness"
	CategoryFarm      = "farm"
	CategoryChain     = "chain"
)

// Event is one append-only journal record.
type Event struct {
	ID        string         `json:"id"`
	Category  string         `json:"category"`
	Action    string         `json:"action"`
	Actor     string         `json:"actor"`
	Data      map[string]any `json:"data"`
	TxID      string         `json:"transactionId"`
	Timestamp int64          `json:"timestamp"`
}

// Recorder buffers the events of a single transaction. Handlers emit
// fire-and-forget; the dispatcher flushes the buffer in emission order only
// when the transaction succeeds, so failed transactions journal nothing.
type Recorder struct {
	txID      string
	timestamp int64
	events    []Event
}

func NewRecorder(txID string, timestamp int64) *Recorder {
	return &Recorder{txID: txID, timestamp: timestamp}
}

// Emit appends a record to the buffer.
func (r *Recorder) Emit(category, action, actor string, data map[string]any) {
	r.events = append(r.events, Event{
		Category:  category,
		Action:    action,
		Actor:     actor,
		Data:      data,
		TxID:      r.txID,
		Timestamp: r.timestamp,
	})
}

// Events returns the buffered records in emission order.
func (r *Recorder) Events() []Event { return r.events }

// Len reports how many events are buffered.
func (r *Recorder) Len() int { return len(r.events) }

// TruncateTo drops every record emitted after the mark. Non-atomic batch
// execution uses it so an undone sub-operation journals nothing.
func (r *Recorder) TruncateTo(mark int) {
	if mark >= 0 && mark <= len(r.events) {
		r.events = r.events[:mark]
	}
}
