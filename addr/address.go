// Package addr defines the globally unique device address entity.
// Addresses are immutable once created.
package addr

import "fmt"

// Address identifies one device of one user within one domain.
type Address struct {
	UserID   string `json:"user_id"`
	DeviceID string `json:"device_id"`
	Domain   string `json:"domain"`
}

func New(userID, deviceID, domain string) Address {
	return Address{UserID: userID, DeviceID: deviceID, Domain: domain}
}

// Group synthesizes a group address ("a synthetic Address
// with user_id = group_id").
func Group(groupID, domain string) Address {
	return Address{UserID: groupID, DeviceID: "*group*", Domain: domain}
}

func (a Address) String() string {
	return fmt.Sprintf("%s.%s@%s", a.UserID, a.DeviceID, a.Domain)
}

func (a Address) Equal(other Address) bool {
	return a == other
}

// SameUser reports whether a and other name the same user in the same
// domain, ignoring device.
func (a Address) SameUser(other Address) bool {
	return a.UserID == other.UserID && a.Domain == other.Domain
}
