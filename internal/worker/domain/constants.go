package domain

import "time"

const (
	// DefaultHeartbeatInterval is how often a claimed job refreshes last_heartbeat_at
	DefaultHeartbeatInterval = 30 * time.Second

	// StaleHeartbeatFactor times the heartbeat interval marks a claim as abandoned
	StaleHeartbeatFactor = 3
)
