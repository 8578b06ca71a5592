package models

import "time"

// WorkItem is the wire payload published to the queue by the minute
// enqueuer and consumed by the delivery worker. Field names and the
// RFC3339 / epoch-millis encodings match spec §6's external queue schema
// exactly, since other components (DLQ inspection tooling, the delivery
// worker) parse this same JSON.
type WorkItem struct {
	MessageID         string `json:"messageId"`
	UserID            string `json:"userId"`
	MessageType       string `json:"messageType"`
	ScheduledSendTime string `json:"scheduledSendTime"` // RFC3339
	RetryCount        int    `json:"retryCount"`
	EnqueuedAt        int64  `json:"enqueuedAt"` // epoch millis
}

// NewWorkItem builds the wire payload for log at the moment of enqueue.
func NewWorkItem(log *MessageLog, now time.Time) WorkItem {
	return WorkItem{
		MessageID:         log.ID,
		UserID:            log.UserID,
		MessageType:       log.MessageType,
		ScheduledSendTime: log.ScheduledSendTime.UTC().Format(time.RFC3339),
		RetryCount:        log.RetryCount,
		EnqueuedAt:        now.UnixMilli(),
	}
}
