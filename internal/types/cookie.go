package types

// Cookie is a browser cookie in the field layout the desktop application
// accepts. ExpirationDate is seconds since the Unix epoch; zero with Session
// set means a session cookie.
type Cookie struct {
	Name           string  `json:"name"`
	Value          string  `json:"value"`
	Domain         string  `json:"domain"`
	Path           string  `json:"path"`
	ExpirationDate float64 `json:"expirationDate,omitempty"`
	Secure         bool    `json:"secure"`
	HTTPOnly       bool    `json:"httpOnly"`
	Session        bool    `json:"session,omitempty"`
}
