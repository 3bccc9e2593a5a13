package domain

import "time"

// UserProfile is off-chain vanity data keyed by wallet. Writes are
// authenticated by a signature from the wallet itself.
type UserProfile struct {
	Wallet    string    `json:"wallet"` // lowercase hex, primary key
	Nickname  string    `json:"nickname,omitempty"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	Referrer  string    `json:"referrer,omitempty"` // wallet that referred this user, if any
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
