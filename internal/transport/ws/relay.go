package ws

import (
	"github.com/vedran77/rentals/internal/realtime"
)

// Relay forwards every document change on bus to the hub until the
// returned function is called.
func Relay(bus realtime.Bus, hub *Hub) (stop func()) {
	return bus.Subscribe([]string{realtime.ChannelDocuments}, hub.Broadcast)
}
