package httpdto

// DevTokenRequest is used for POST /api/dev/token on the dev relay
type DevTokenRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// DevTokenResponse is returned after issuing a dev token
type DevTokenResponse struct {
	UserID      string `json:"user_id"`
	AccessToken string `json:"access_token"`
	ExpiresAt   string `json:"expires_at"`
}
