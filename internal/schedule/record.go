// Package schedule implements the durable deletion schedule: pending deletion
// records, the storage contract they live behind, and the reconciliation loop
// that drives each repost to its eventual deletion.
package schedule

import "time"

// Status represents the lifecycle state of a pending deletion.
type Status string

// Record statuses. Done and Failed are terminal: the record is removed from
// storage the moment it reaches either of them.
const (
	StatusPending  Status = "pending"
	StatusInFlight Status = "in_flight"
	StatusDone     Status = "done"
	StatusFailed   Status = "failed"
)

// PendingDeletion is one durable record that a reposted radio message must be
// deleted once its due time arrives.
type PendingDeletion struct {
	MessageID     string
	ChannelID     string
	CreatedAt     time.Time
	DueAt         time.Time
	NextAttemptAt time.Time
	Attempts      int
	Status        Status
}

// NewPendingDeletion builds a record for a freshly sent repost. The due time
// doubles as the first attempt time.
func NewPendingDeletion(messageID, channelID string, now time.Time, retention time.Duration) *PendingDeletion {
	due := now.Add(retention)
	return &PendingDeletion{
		MessageID:     messageID,
		ChannelID:     channelID,
		CreatedAt:     now,
		DueAt:         due,
		NextAttemptAt: due,
		Attempts:      0,
		Status:        StatusPending,
	}
}
