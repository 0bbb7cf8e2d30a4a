package ticket

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const ticketBucket = "tickets"

// ErrTicketNotFound indicates no stored decode exists for a barcode.
var ErrTicketNotFound = errors.New("ticket not found")

// StoredTicket is one persisted successful decode, keyed by barcode value.
// ChecksumValid records the provider checksum outcome at decode time so a
// repeat scan reports the same validity it did the first time.
type StoredTicket struct {
	BarcodeData   string            `json:"barcode_data"`
	Provider      string            `json:"provider,omitempty"`
	Format        string            `json:"format"`
	Confidence    float64           `json:"confidence"`
	ParsedFields  map[string]string `json:"parsed_fields,omitempty"`
	ChecksumValid bool              `json:"checksum_valid"`
	CreatedAt     time.Time         `json:"created_at"`
}

// Store defines the interface for decode persistence. Persistence is
// best-effort: a store failure never invalidates a successful scan.
type Store interface {
	// Upsert saves a decode. An existing barcode key is overwritten.
	Upsert(ticket *StoredTicket) error

	// Get retrieves a stored decode by barcode value.
	Get(barcode string) (*StoredTicket, error)

	// Query returns stored decodes filtered by provider and creation time
	// range. Empty provider or zero times mean no filter.
	Query(providerID string, from, to time.Time) ([]*StoredTicket, error)

	// Close closes the store.
	Close() error
}

// BoltStore implements the Store interface using BoltDB.
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore creates a new BoltStore instance.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(ticketBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Upsert saves a decode keyed by its barcode value. A repeat scan of the
// same physical barcode overwrites the prior record.
func (b *BoltStore) Upsert(ticket *StoredTicket) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(ticketBucket))
		data, err := json.Marshal(ticket)
		if err != nil {
			return fmt.Errorf("marshaling ticket: %w", err)
		}
		return bucket.Put([]byte(ticket.BarcodeData), data)
	})
}

// Get retrieves a stored decode by barcode value.
func (b *BoltStore) Get(barcode string) (*StoredTicket, error) {
	var ticket *StoredTicket
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(ticketBucket))
		data := bucket.Get([]byte(barcode))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrTicketNotFound, barcode)
		}
		return json.Unmarshal(data, &ticket)
	})
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

// Query returns stored decodes matching the provider and time-range filters.
func (b *BoltStore) Query(providerID string, from, to time.Time) ([]*StoredTicket, error) {
	tickets := make([]*StoredTicket, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(ticketBucket))
		return bucket.ForEach(func(k, v []byte) error {
			var ticket StoredTicket
			if err := json.Unmarshal(v, &ticket); err != nil {
				return fmt.Errorf("unmarshaling ticket: %w", err)
			}
			if providerID != "" && ticket.Provider != providerID {
				return nil
			}
			if !from.IsZero() && ticket.CreatedAt.Before(from) {
				return nil
			}
			if !to.IsZero() && ticket.CreatedAt.After(to) {
				return nil
			}
			tickets = append(tickets, &ticket)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

// Close closes the database connection.
func (b *BoltStore) Close() error {
	return b.db.Close()
}
