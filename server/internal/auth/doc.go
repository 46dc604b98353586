// Package auth provides authentication middleware for the cardiosense server.
//
// APIKey(mode, header, key, onFail, exempt...) wraps an http.Handler and
// validates the API key carried in the named request header.
//
// When mode != "apikey" or key == "", every request passes through (useful for
// local development with auth disabled). When the key is incorrect or absent
// the middleware answers 401 immediately.
package auth
