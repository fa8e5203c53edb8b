package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	EventBatchReceived   = "pharmacy.batch.received"
	EventStockAllocated  = "pharmacy.stock.allocated"
	EventStockReconciled = "pharmacy.stock.reconciled"
	EventBatchWrittenOff = "pharmacy.batch.written_off"
	EventStockLow        = "pharmacy.stock.low"
)

// Exchange names
const (
	ExchangePharmacyEvents = "pharmacy.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            uuid.New().String(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// BatchReceivedEvent is published when a new batch enters stock
type BatchReceivedEvent struct {
	MedicineID  string    `json:"medicine_id"`
	BatchID     string    `json:"batch_id"`
	LotNumber   string    `json:"lot_number"`
	Quantity    int       `json:"quantity"`
	ExpiryDate  time.Time `json:"expiry_date"`
	ReceivedBy  string    `json:"received_by"`
	PORef       string    `json:"po_ref,omitempty"`
}

// StockAllocatedEvent is published when an allocation deducts stock
type StockAllocatedEvent struct {
	MedicineID string `json:"medicine_id"`
	Requested  int    `json:"requested"`
	Allocated  int    `json:"allocated"`
	Shortfall  int    `json:"shortfall"`
	Reason     string `json:"reason"`
	Reference  string `json:"reference,omitempty"`
	ActorID    string `json:"actor_id"`
}

// StockReconciledEvent is published when a physical count adjustment is applied
type StockReconciledEvent struct {
	MedicineID    string `json:"medicine_id"`
	BatchID       string `json:"batch_id"`
	Difference    int    `json:"difference"`
	AppliedAmount int    `json:"applied_amount"`
	ActorID       string `json:"actor_id"`
}

// BatchWrittenOffEvent is published when a batch is written off as damaged or expired
type BatchWrittenOffEvent struct {
	MedicineID string `json:"medicine_id"`
	BatchID    string `json:"batch_id"`
	Quantity   int    `json:"quantity"`
	WriteOff   string `json:"write_off"` // damaged or expired
	ActorID    string `json:"actor_id"`
}

// StockLowEvent is published when a medicine's recorded total falls below
// its reorder threshold
type StockLowEvent struct {
	MedicineID string `json:"medicine_id"`
	Name       string `json:"name"`
	Total      int    `json:"total"`
	Threshold  int    `json:"threshold"`
}
