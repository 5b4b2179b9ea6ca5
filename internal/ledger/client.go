package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Kind tags the entity an attestation refers to.
type Kind string

const (
	KindRequest  Kind = "request"
	KindDocument Kind = "document"
	KindApproval Kind = "approval"
)

// Receipt acknowledges an accepted submission.
type Receipt struct {
	TxID      string    `json:"tx_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Entry is one attested record as returned by History.
type Entry struct {
	TxID      string          `json:"tx_id"`
	Kind      Kind            `json:"kind"`
	RefID     string          `json:"ref_id"`
	Actor     string          `json:"actor"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Client is the external attestation service. All calls may time out or
// fail; writes are best-effort for the workflow and reads are informational
// only. The authoritative state never lives here.
type Client interface {
	Submit(ctx context.Context, kind Kind, refID string, payload json.RawMessage, actor string) (*Receipt, error)
	Verify(ctx context.Context, refID string, expectedHash string) (bool, error)
	History(ctx context.Context, refID string) ([]Entry, error)
}

// HashPayload produces the content hash used for Verify.
func HashPayload(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
