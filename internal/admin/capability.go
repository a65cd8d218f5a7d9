// Package admin provides the administrator capability gate. The capability
// is an explicit value handed to each service constructor rather than a
// global, so tests can build services against throwaway admins.
package admin

import (
	"errors"

	"github.com/technosupport/ts-licensing/internal/signer"
)

var ErrNotAuthorized = errors.New("not authorized")

type Capability struct {
	addr signer.Address
}

func NewCapability(addr signer.Address) Capability {
	return Capability{addr: addr}
}

// Require fails with ErrNotAuthorized unless caller is the administrator.
func (c Capability) Require(caller signer.Address) error {
	if caller != c.addr {
		return ErrNotAuthorized
	}
	return nil
}

func (c Capability) Is(caller signer.Address) bool {
	return caller == c.addr
}

// Address is where admin-only sweeps (withdraw) are paid out.
func (c Capability) Address() signer.Address {
	return c.addr
}
