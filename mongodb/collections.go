package mongodb

const (
	ClientsCollection        = "oauth_clients"
	CodesCollection          = "oauth_auth_codes"
	TokensCollection         = "oauth_tokens"
	DeviceAuthCollection     = "device_authorizations" // RFC 8628 flows
	TicketsCollection        = "uma_tickets"
	ResourceSetsCollection   = "uma_resource_sets"
	ConsentsCollection       = "uma_consents"
	ScopesCollection         = "oauth_scopes"
	ResourceOwnersCollection = "resource_owners"
)
