package domain

// Grant type identifiers accepted by the token endpoint.
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeClientCredentials = "client_credentials"
	GrantTypePassword          = "password"
	GrantTypeRefreshToken      = "refresh_token"
	// Both URN spellings of the device grant are accepted on the wire.
	GrantTypeDeviceCode        = "urn:ietf:params:oauth:device_code"
	GrantTypeDeviceCodeRFC8628 = "urn:ietf:params:oauth:grant-type:device_code"
	GrantTypeUMATicket         = "urn:ietf:params:oauth:grant-type:uma-ticket"
)
