package models

// UnknownUserName is shown for users without a stored profile.
const UnknownUserName = "Unknown"

// User is a public profile.
type User struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

// UpdateProfileRequest is the body of PUT /api/profile.
type UpdateProfileRequest struct {
	DisplayName string `json:"display_name"`
}
