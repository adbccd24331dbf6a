package hibob

import "encoding/base64"

// Credentials identify a HiBob service user. They are fixed for the
// lifetime of a client.
type Credentials struct {
	ServiceUserID    string
	ServiceUserToken string
}

// AuthorizationHeader returns the Basic authorization value for the pair.
func (c Credentials) AuthorizationHeader() string {
	raw := c.ServiceUserID + ":" + c.ServiceUserToken
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(raw))
}

// String hides the token.
func (c Credentials) String() string {
	return "service user " + c.ServiceUserID
}
