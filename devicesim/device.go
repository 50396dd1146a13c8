package devicesim

import "github.com/miretskiy/mqsched/scheduler"

// ChannelDevice is the reference channel/timing model: it always succeeds,
// since the reference block manager never issues an event before its die
// is ready. OnCompletion, when set, is invoked for every event the device
// finishes, letting a front-end mirror dispatch activity without the
// scheduler core depending on any transport.
type ChannelDevice struct {
	OnCompletion func(event *scheduler.Event)
}

// NewChannelDevice constructs a device with no completion hook attached.
func NewChannelDevice() *ChannelDevice {
	return &ChannelDevice{}
}

// Issue always reports SUCCESS in this reference model.
func (d *ChannelDevice) Issue(event *scheduler.Event) (scheduler.DeviceStatus, error) {
	return scheduler.DeviceSuccess, nil
}

// RegisterEventCompletion invokes OnCompletion if set.
func (d *ChannelDevice) RegisterEventCompletion(event *scheduler.Event) {
	if d.OnCompletion != nil {
		d.OnCompletion(event)
	}
}
