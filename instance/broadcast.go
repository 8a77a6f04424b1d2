package instance

import (
	"fmt"

	"github.com/nats-io/nats.go"
)

// BroadcastSubject is the NATS subject one multi-child instance publishes
// job-completion/channel-expiry events on so sibling children (and the
// parent) stay aware of state that originated on a different fd.
func (i *Instance) BroadcastSubject() string {
	return fmt.Sprintf("reactor.%s.events", i.Config.AppName)
}

// PublishJobDone announces that jobKey completed on this child, letting
// siblings holding a reserved dispatch for the same key drop it instead
// of timing it out.
func (i *Instance) PublishJobDone(jobKey uint32) {
	if i.Nats == nil {
		return
	}
	payload := fmt.Sprintf("job_done %d", jobKey)
	if err := i.Nats.Publish(i.BroadcastSubject(), []byte(payload)); err != nil {
		i.Log.WithError(err).Warn("nats publish failed")
	}
}

// PublishChannelExpired announces that the named channel died on this
// child, for pools (chpool) running identically configured in every
// child to avoid each one independently rediscovering the same outage.
func (i *Instance) PublishChannelExpired(channelName uint32) {
	if i.Nats == nil {
		return
	}
	payload := fmt.Sprintf("channel_expired %d", channelName)
	if err := i.Nats.Publish(i.BroadcastSubject(), []byte(payload)); err != nil {
		i.Log.WithError(err).Warn("nats publish failed")
	}
}

// SubscribeEvents registers handler for every event this or a sibling
// child publishes. Call once during InitExtras.
func (i *Instance) SubscribeEvents(handler func(kind string, arg uint32)) error {
	if i.Nats == nil {
		return nil
	}
	_, err := i.Nats.Subscribe(i.BroadcastSubject(), func(m *nats.Msg) {
		var kind string
		var arg uint32
		if _, err := fmt.Sscanf(string(m.Data), "%s %d", &kind, &arg); err == nil {
			handler(kind, arg)
		}
	})
	return err
}
