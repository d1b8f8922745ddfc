package device

import (
	"fmt"
	"regexp"
	"strings"
)

// Validation constants. The name limit bounds client input only; records
// announced on the bus are stored as the device sent them.
const (
	maxNameLength  = 100
	macAddressExpr = `^(?:[0-9A-Fa-f]{2}(?::[0-9A-Fa-f]{2}){5}|[0-9A-Fa-f]{2}(?:-[0-9A-Fa-f]{2}){5})$`
)

var macRegex = regexp.MustCompile(macAddressExpr)

// IsMACAddress reports whether s is a six-octet hardware address using a
// single consistent separator (":" or "-").
func IsMACAddress(s string) bool {
	return macRegex.MatchString(s)
}

// ValidateID checks that a device ID can serve as a registry key and as a
// single MQTT topic level. Length is not limited: a device may announce
// any id and clients must be able to register it.
func ValidateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidID)
	}
	if strings.ContainsAny(id, "/+#") {
		return fmt.Errorf("%w: id must not contain '/', '+' or '#'", ErrInvalidID)
	}
	return nil
}

// ValidateZone checks that a zone name is a single, non-wildcard MQTT topic level.
func ValidateZone(zone string) error {
	if strings.TrimSpace(zone) == "" {
		return fmt.Errorf("%w: local is required", ErrInvalidRecord)
	}
	if len(zone) > maxNameLength {
		return fmt.Errorf("%w: local exceeds %d characters", ErrInvalidRecord, maxNameLength)
	}
	if strings.ContainsAny(zone, "/+#") {
		return fmt.Errorf("%w: local must not contain '/', '+' or '#'", ErrInvalidRecord)
	}
	return nil
}

// ValidateChannel checks a channel name entered by a client.
func ValidateChannel(field, name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidRecord, field)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: %s exceeds %d characters", ErrInvalidRecord, field, maxNameLength)
	}
	return nil
}

// ValidateRecord checks a record before it is stored. Only the key is
// constrained; Extra passes through whatever its size.
func ValidateRecord(r Record) error {
	return ValidateID(r.ID)
}
