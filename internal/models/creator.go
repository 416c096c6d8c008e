package models

import "time"

// Creator is the account record of a tip recipient as the backend returns it.
type Creator struct {
	ID            int64     `json:"id"`
	Username      string    `json:"username"`
	DisplayName   string    `json:"display_name"`
	Email         string    `json:"email"`
	Bio           *string   `json:"bio,omitempty"`
	ProfileImage  *string   `json:"profile_image,omitempty"`
	WalletAddress *string   `json:"wallet_address,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// HasWallet reports whether a wallet address is linked to the creator.
func (c *Creator) HasWallet() bool {
	return c != nil && c.WalletAddress != nil && *c.WalletAddress != ""
}

// Clone returns a deep copy so callers never share pointer fields with the session.
func (c *Creator) Clone() *Creator {
	if c == nil {
		return nil
	}
	out := *c
	out.Bio = cloneString(c.Bio)
	out.ProfileImage = cloneString(c.ProfileImage)
	out.WalletAddress = cloneString(c.WalletAddress)
	return &out
}

// CreateCreatorInput is the JSON body for POST /creators.
type CreateCreatorInput struct {
	Username      string  `json:"username"`
	DisplayName   string  `json:"display_name"`
	Email         string  `json:"email"`
	Bio           *string `json:"bio,omitempty"`
	ProfileImage  *string `json:"profile_image,omitempty"`
	WalletAddress *string `json:"wallet_address,omitempty"`
}

// UpdateCreatorInput is the JSON body for PUT /creator/{id}. Nil fields are left untouched.
type UpdateCreatorInput struct {
	DisplayName   *string `json:"display_name,omitempty"`
	Email         *string `json:"email,omitempty"`
	Bio           *string `json:"bio,omitempty"`
	ProfileImage  *string `json:"profile_image,omitempty"`
	WalletAddress *string `json:"wallet_address,omitempty"`
}

// Apply returns a copy of c with the patch fields set.
func (p UpdateCreatorInput) Apply(c *Creator) *Creator {
	out := c.Clone()
	if out == nil {
		return nil
	}
	if p.DisplayName != nil {
		out.DisplayName = *p.DisplayName
	}
	if p.Email != nil {
		out.Email = *p.Email
	}
	if p.Bio != nil {
		out.Bio = cloneString(p.Bio)
	}
	if p.ProfileImage != nil {
		out.ProfileImage = cloneString(p.ProfileImage)
	}
	if p.WalletAddress != nil {
		out.WalletAddress = cloneString(p.WalletAddress)
	}
	return out
}

// Created is the data of a successful create call.
type Created struct {
	ID int64 `json:"id"`
}

// Updated is the data of PUT /creator/{id}.
type Updated struct {
	Updated bool `json:"updated"`
}

// Deleted is the data of DELETE /creator/{id}.
type Deleted struct {
	Deleted bool `json:"deleted"`
}

// Availability is the data of GET /username/{username}/available.
type Availability struct {
	Available bool `json:"available"`
}

// Health is the data of GET /health.
type Health struct {
	Status string `json:"status"`
	DB     int    `json:"db"`
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// StringPtr is a small helper for optional fields.
func StringPtr(s string) *string { return &s }
