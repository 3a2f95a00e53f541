package queue

import (
	"fmt"
	"time"
)

// AbsenceAlertMessage 一个缺席区间的告警任务，同一区间的 MessageID 固定，便于消费端去重
type AbsenceAlertMessage struct {
	MessageID    string    `json:"message_id"`
	UserID       string    `json:"user_id"`
	EpisodeStart time.Time `json:"episode_start"`
	ScheduledAt  time.Time `json:"scheduled_at"`
}

func AbsenceMessageID(userID string, episodeStart time.Time) string {
	return fmt.Sprintf("absence_%s_%d", userID, episodeStart.Unix())
}

func NewAbsenceAlertMessage(userID string, episodeStart, scheduledAt time.Time) AbsenceAlertMessage {
	return AbsenceAlertMessage{
		MessageID:    AbsenceMessageID(userID, episodeStart),
		UserID:       userID,
		EpisodeStart: episodeStart.UTC(),
		ScheduledAt:  scheduledAt.UTC(),
	}
}
