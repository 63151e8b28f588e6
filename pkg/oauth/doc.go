// Package oauth provides the OAuth 2.0 / OpenID Connect protocol pieces shared by the
// deskauth authenticator and its command line tools.
//
// # Core Components
//
//   - TokenSet: the access/refresh/ID token triple held by a signed-in installation
//   - Metadata: the discovered authorization server endpoints
//   - PKCE: Proof Key for Code Exchange generation (RFC 7636)
//   - Client: token endpoint requests for the authorization_code and refresh_token grants
//   - ProtocolError: a typed RFC 6749 error response
//   - BearerChallenge: a parsed WWW-Authenticate header from a resource server
//
// # Usage
//
//	verifier, err := oauth.GenerateVerifier()
//	challenge := oauth.ChallengeFor(verifier)
//
//	client := oauth.NewClient(oauth.WithHTTPClient(httpClient))
//	resp, err := client.ExchangeCode(ctx, oauth.CodeExchange{
//	    TokenEndpoint: metadata.TokenEndpoint,
//	    Code:          code,
//	    RedirectURI:   redirectURI,
//	    ClientID:      clientID,
//	    CodeVerifier:  verifier,
//	})
package oauth
