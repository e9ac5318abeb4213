package billing

// DonationState is the cached answer to "has this user donated".
// Unknown means the purchase history has not been checked yet.
type DonationState int

const (
	Unknown DonationState = iota
	NotDonated
	Donated
)

// Known reports whether the state has been determined
func (s DonationState) Known() bool {
	return s != Unknown
}

// Bool collapses the state; Unknown reads as false
func (s DonationState) Bool() bool {
	return s == Donated
}

func (s DonationState) String() string {
	switch s {
	case NotDonated:
		return "not_donated"
	case Donated:
		return "donated"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler
func (s DonationState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
