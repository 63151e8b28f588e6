// Package resource calls OAuth-protected APIs on behalf of the signed-in user.
//
// A request that receives 401 Unauthorized triggers exactly one token refresh
// followed by exactly one retry. A second 401 is reported as LoginRequired and
// never retried again.
package resource
