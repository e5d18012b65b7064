package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Message is one mail message moving through the pipeline, either
// fetched from an IMAP mailbox or extracted from an archive file.
type Message struct {
	// Mailbox is the decoded Unicode mailbox name the message belongs to.
	Mailbox string
	// ID identifies the message within its source for logging and state
	// records, e.g. "INBOX/uid:42" or "Drafts@1024".
	ID string
	// Hash is the content hash used for duplicate detection across runs.
	Hash string
	// Date is the IMAP internal date or the archive separator date.
	Date  time.Time
	Flags string
	Size  int64
	Raw   []byte
}

// Envelope wraps a message alongside an optional error encountered
// while producing it.
type Envelope struct {
	Message Message
	Err     error
}

// HashRaw computes the content hash for duplicate detection.
func HashRaw(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
