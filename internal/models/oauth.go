package models

// TokenPair holds an OAuth2 access/refresh token pair. The pair is replaced
// as a whole on every sign-in or refresh; a partially populated pair is never
// stored.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Valid reports whether both halves of the pair are present.
func (p TokenPair) Valid() bool {
	return p.AccessToken != "" && p.RefreshToken != ""
}

// OAuth2Request is the password-grant token request body.
type OAuth2Request struct {
	GrantType string `json:"grant_type"`
	ClientID  string `json:"clientId"`
	Username  string `json:"username"`
	Password  string `json:"password"`
}

// OAuth2RefreshRequest is the refresh-grant token request body.
type OAuth2RefreshRequest struct {
	GrantType    string `json:"grant_type"`
	ClientID     string `json:"clientId"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// OAuth2Response is the token endpoint response for both grant types. The
// refresh grant may omit a rotated refresh token, in which case the previous
// one stays valid.
type OAuth2Response struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}
