package testutil

import "net/http"

// WithBearer sets an Authorization header carrying token, the way operators
// call the API.
func WithBearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}
