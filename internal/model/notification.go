package model

// NotificationType is the kind of event a notification reports.
type NotificationType string

const (
	NotifyThreadReply NotificationType = "thread.reply"
	NotifyThreadLabel NotificationType = "thread.label"
	NotifyReplyLove   NotificationType = "reply.love"
)

// Notification is a request to notify one or more recipients.
type Notification struct {
	TargetType  NotificationType `json:"targetType"`
	TargetKey   string           `json:"targetKey"`
	TargetTitle string           `json:"targetTitle"`
	Message     string           `json:"message"`
	To          []string         `json:"to"`
	From        string           `json:"from"`
	CreatedAt   int64            `json:"createdAt"`
}

// NotificationRecord is the per-recipient document stored in notifications/.
type NotificationRecord struct {
	Key         string           `json:"key"`
	TargetType  NotificationType `json:"targetType"`
	TargetKey   string           `json:"targetKey"`
	TargetTitle string           `json:"targetTitle"`
	Message     string           `json:"message"`
	To          string           `json:"to"`
	From        string           `json:"from"`
	CreatedAt   int64            `json:"createdAt"`
	Read        bool             `json:"read"`
}
