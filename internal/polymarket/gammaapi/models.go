package gammaapi

// Profile is the public profile of a wallet
type Profile struct {
	ProxyWallet           string `json:"proxyWallet"`
	Name                  string `json:"name,omitempty"`
	Pseudonym             string `json:"pseudonym,omitempty"`
	Bio                   string `json:"bio,omitempty"`
	ProfileImage          string `json:"profileImage,omitempty"`
	XUsername             string `json:"xUsername,omitempty"`
	VerifiedBadge         bool   `json:"verifiedBadge,omitempty"`
	DisplayUsernamePublic bool   `json:"displayUsernamePublic,omitempty"`
	CreatedAt             string `json:"createdAt,omitempty"`
}

// DisplayName returns the best human-readable name for the wallet
func (p *Profile) DisplayName() string {
	switch {
	case p == nil:
		return ""
	case p.Name != "":
		return p.Name
	case p.Pseudonym != "":
		return p.Pseudonym
	default:
		return p.ProxyWallet
	}
}
