package discord

import "context"

// ChannelDestination delivers rendered report pages to one channel.
// It satisfies the sprint package's Destination interface.
type ChannelDestination struct {
	Client    *Client
	ChannelID string
}

// Send posts one page as a channel message.
func (d *ChannelDestination) Send(ctx context.Context, content string) error {
	return d.Client.SendMessage(ctx, d.ChannelID, content)
}
