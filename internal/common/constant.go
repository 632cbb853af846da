package common

// AuthorizationHeaderName is the HTTP header carrying the bearer token.
const AuthorizationHeaderName = "Authorization"

// BearerPrefix precedes the token inside the Authorization header.
const BearerPrefix = "Bearer "

// UserPrefixRoot is the top-level key segment under which every user's
// objects live.
const UserPrefixRoot = "users/"
