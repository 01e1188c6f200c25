package events

import (
	"fmt"
	"time"
)

const (
	documentTopic = "event.document"
	journalTopic  = "event.journal"
)

// TopicDocument carries DocumentEvent for one deal.
func TopicDocument(dealID string) string {
	return fmt.Sprintf("%s:%s", documentTopic, dealID)
}

// TopicJournal carries JournalEvent for every recorded upload.
func TopicJournal() string {
	return journalTopic
}

type Stage string

const (
	StageEncrypting  Stage = "Encrypting"
	StageUploading   Stage = "Uploading"
	StageUploaded    Stage = "Uploaded"
	StageVerifying   Stage = "Verifying"
	StageDownloading Stage = "Downloading"
	StageDecrypting  Stage = "Decrypting"
	StageRetrieved   Stage = "Retrieved"
	StageFailed      Stage = "Failed"
)

// DocumentEvent reports one step of a submit or retrieve workflow.
type DocumentEvent struct {
	DealID string
	BlobID string
	Stage  Stage
	// Size is the payload size at this stage: plaintext while encrypting,
	// ciphertext while uploading or downloading.
	Size  uint64
	Error error
	At    time.Time
}

// JournalEvent is published after an upload is written to the journal.
type JournalEvent struct {
	ID       string
	BlobID   string
	DealID   string
	EndEpoch uint64
}
