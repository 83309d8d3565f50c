package sim

// DirectConnection connects a set of ports without any extra latency. It is
// commonly used to model a self-link: a component schedules a future event on
// itself by sending through a DirectConnection that loops back to one of its
// own ports.
type DirectConnection struct {
	*ComponentBase

	engine Engine
	freq   Freq

	nextPortID int
	ports      []Port
	queues     map[Port][]Msg
}

// NewDirectConnection creates a new DirectConnection.
func NewDirectConnection(name string, engine Engine, freq Freq) *DirectConnection {
	c := new(DirectConnection)
	c.ComponentBase = NewComponentBase(name)
	c.engine = engine
	c.freq = freq
	c.queues = make(map[Port][]Msg)

	return c
}

// PlugIn connects a port to this connection.
func (c *DirectConnection) PlugIn(port Port) {
	c.ports = append(c.ports, port)
	c.queues[port] = nil
	port.SetConnection(c)
}

// Unplug removes the association between a port and this connection.
func (c *DirectConnection) Unplug(_ Port) {
	panic("not implemented")
}

// NotifyAvailable is called by a port when its incoming buffer has space
// again, so a pending message can be forwarded.
func (c *DirectConnection) NotifyAvailable(_ Port) {
	c.scheduleForward()
}

// NotifySend is called by a port when a message has been enqueued to be sent.
func (c *DirectConnection) NotifySend() {
	c.scheduleForward()
}

func (c *DirectConnection) scheduleForward() {
	evt := NewEventBase(c.engine.CurrentTime(), c)
	c.engine.Schedule(forwardEvent{EventBase: evt})
}

type forwardEvent struct {
	*EventBase
}

// Handle drains every plugged-in port, delivering to the destination port
// named in the message.
func (c *DirectConnection) Handle(_ Event) error {
	for _, port := range c.ports {
		for {
			msg := port.PeekOutgoing()
			if msg == nil {
				break
			}

			dst := c.findPort(msg.Meta().Dst)
			if dst == nil {
				panic("direct connection cannot find destination port " +
					string(msg.Meta().Dst))
			}

			if dst.Deliver(msg) != nil {
				break
			}

			port.RetrieveOutgoing()
		}
	}

	return nil
}

func (c *DirectConnection) findPort(remote RemotePort) Port {
	for _, p := range c.ports {
		if p.AsRemote() == remote {
			return p
		}
	}

	return nil
}
