package enums

import "fmt"

// ProviderName discriminates the configured render backends.
type ProviderName string

const (
	ProviderNameFashn     ProviderName = "fashn"
	ProviderNameKling     ProviderName = "kling"
	ProviderNameReplicate ProviderName = "replicate"
)

var validProviderNames = []ProviderName{
	ProviderNameFashn,
	ProviderNameKling,
	ProviderNameReplicate,
}

// String implements fmt.Stringer.
func (p ProviderName) String() string {
	return string(p)
}

// IsValid reports whether the value is known.
func (p ProviderName) IsValid() bool {
	for _, candidate := range validProviderNames {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseProviderName converts raw input into a ProviderName.
func ParseProviderName(value string) (ProviderName, error) {
	for _, candidate := range validProviderNames {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid provider name %q", value)
}
