package sim

import (
	"fmt"
	"os"
	"sort"
	"sync"
)

// A Named object is an object that has a name.
type Named interface {
	Name() string
}

// A Component is a element that is being simulated in the core.
type Component interface {
	Named
	Handler
	Hookable

	AddPort(name string, port Port)
	GetPortByName(name string) Port
	Ports() []Port
	NotifyRecv(port Port)
	NotifyPortFree(port Port)
}

// ComponentBase provides some functions that other component can use.
type ComponentBase struct {
	HookableBase
	sync.Mutex
	name  string
	ports map[string]Port
}

// NewComponentBase creates a new ComponentBase
func NewComponentBase(name string) *ComponentBase {
	c := new(ComponentBase)
	c.name = name
	c.ports = make(map[string]Port)
	return c
}

// Name returns the name of the BasicComponent
func (c *ComponentBase) Name() string {
	return c.name
}

// AddPort registers a port under a name so it can later be retrieved with
// GetPortByName.
func (c *ComponentBase) AddPort(name string, port Port) {
	if _, found := c.ports[name]; found {
		panic("port " + name + " already exists")
	}

	c.ports[name] = port
}

// Ports returns all the ports owned by the component, sorted by name.
func (c *ComponentBase) Ports() []Port {
	names := make([]string, 0, len(c.ports))
	for n := range c.ports {
		names = append(names, n)
	}
	sort.Strings(names)

	list := make([]Port, 0, len(c.ports))
	for _, n := range names {
		list = append(list, c.ports[n])
	}

	return list
}

// GetPortByName returns the port by the name of the port.
func (c *ComponentBase) GetPortByName(name string) Port {
	port, found := c.ports[name]
	if !found {
		errMsg := fmt.Sprintf(
			"Port %s is not available on component %s.\n", name, c.name)
		errMsg += "Available ports include:\n"
		for n := range c.ports {
			errMsg += fmt.Sprintf("\t%s\n", n)
		}
		fmt.Fprint(os.Stderr, errMsg)

		panic("port not found")
	}

	return port
}
