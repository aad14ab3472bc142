// Package google keeps company Google credentials usable.
//
// StoreTokenProvider hands out the stored access token while it is valid and
// otherwise performs the OAuth2 refresh-token grant against Google's token
// endpoint. A refreshed token is written back to the credentials store and
// the resolver's cached identity for the company is invalidated.
//
// A failed refresh is reported as an Unauthorized error.
package google
