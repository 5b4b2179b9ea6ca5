package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"commune-portal/admin-portal-backend/pkg/workflows"
)

// MemoryClient is an in-process ledger for development and tests.
type MemoryClient struct {
	mu      sync.Mutex
	entries map[string][]Entry

	// FailSubmits makes every write fail, for exercising ledger isolation.
	FailSubmits bool
}

func NewMemoryClient() *MemoryClient {
	return &MemoryClient{entries: make(map[string][]Entry)}
}

func (c *MemoryClient) Submit(ctx context.Context, kind Kind, refID string, payload json.RawMessage, actor string) (*Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.FailSubmits {
		return nil, &workflows.LedgerError{Op: "submit", Err: fmt.Errorf("ledger unreachable")}
	}

	entry := Entry{
		TxID:      "0x" + uuid.NewString(),
		Kind:      kind,
		RefID:     refID,
		Actor:     actor,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
	c.entries[refID] = append(c.entries[refID], entry)

	return &Receipt{TxID: entry.TxID, Timestamp: entry.CreatedAt}, nil
}

func (c *MemoryClient) Verify(ctx context.Context, refID string, expectedHash string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, entry := range c.entries[refID] {
		if HashPayload(entry.Payload) == expectedHash {
			return true, nil
		}
	}
	return false, nil
}

func (c *MemoryClient) History(ctx context.Context, refID string) ([]Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Entry, len(c.entries[refID]))
	copy(out, c.entries[refID])
	return out, nil
}
