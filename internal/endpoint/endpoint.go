// internal/endpoint/endpoint.go
package endpoint

import (
	"fmt"
)

// GreenPortOffset is added to a unit's base ports for the green environment.
const GreenPortOffset = 100

// Environment is one of the two deployment slots.
type Environment string

const (
	Blue  Environment = "blue"
	Green Environment = "green"
)

// Parse converts a string to an Environment.
func Parse(s string) (Environment, error) {
	switch Environment(s) {
	case Blue:
		return Blue, nil
	case Green:
		return Green, nil
	default:
		return "", fmt.Errorf("endpoint: invalid environment %q (must be blue or green)", s)
	}
}

// Valid reports whether the environment is blue or green.
func (e Environment) Valid() bool {
	return e == Blue || e == Green
}

// Complement returns the other environment.
func (e Environment) Complement() Environment {
	if e == Blue {
		return Green
	}
	return Blue
}

func (e Environment) String() string {
	return string(e)
}

// Ports holds a unit's base port pair.
type Ports struct {
	Web   int `yaml:"web" json:"web"`
	Agent int `yaml:"agent" json:"agent"`
}

// Endpoint is a concrete network location for one environment of a unit.
type Endpoint struct {
	Host  string `json:"host"`
	Web   int    `json:"web"`
	Agent int    `json:"agent"`
}

// Addr returns the host:port form of the web endpoint.
func (e Endpoint) Addr() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Web)
}

// Resolve maps a unit's base ports to the concrete endpoint of an
// environment. Blue serves on the base ports, green on base plus
// GreenPortOffset. Every component that needs an environment's address
// must go through this function.
func Resolve(host string, base Ports, env Environment) Endpoint {
	ep := Endpoint{Host: host, Web: base.Web, Agent: base.Agent}
	if env == Green {
		ep.Web += GreenPortOffset
		ep.Agent += GreenPortOffset
	}
	return ep
}
