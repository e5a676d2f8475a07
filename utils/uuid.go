package utils

import "github.com/google/uuid"

// NewNetworkID returns a random identifier for a freshly bootstrapped local network.
func NewNetworkID() string {
	return uuid.NewString()
}
