package ws

import "time"

// ConnInfo identifies one inbox socket for metrics and ws events.
type ConnInfo struct {
	ConnID      string
	UserID      string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}
