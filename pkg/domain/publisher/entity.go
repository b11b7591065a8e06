// Package publisher contains the publisher and channel read models.
// These entities are owned by the management subsystem; this core only
// reads them to target scans.
package publisher

import (
	"strings"

	"github.com/adscanio/api/pkg/domain/shared"
)

// Publisher is a content creator under contract with an advertiser.
type Publisher struct {
	ID             shared.ID
	OrganizationID shared.ID
	AdvertiserID   shared.ID
	Name           string
}

// ChannelStatus represents the channel status.
type ChannelStatus string

const (
	ChannelStatusActive   ChannelStatus = "active"
	ChannelStatusInactive ChannelStatus = "inactive"
)

// Channel is a publisher's presence on a platform. Only active channels
// are eligible for scan targeting.
type Channel struct {
	ID          shared.ID
	PublisherID shared.ID
	Platform    string
	URL         string
	Status      ChannelStatus
}

// IsActive returns true when the channel can be targeted by scans.
func (c *Channel) IsActive() bool {
	return c.Status == ChannelStatusActive
}

// NormalizePlatform canonicalizes a platform name for adapter lookup.
func NormalizePlatform(platform string) string {
	return strings.ToLower(strings.TrimSpace(platform))
}
