package models

const (
	RequestContextDefault       = "default"
	RequestContextOAuth2        = "oauth2"
	RequestContextRealtime      = "realtime"
	RequestContextProtectedFile = "protectedFile"
)

// RequestInfo is the request data exposed to filters as @request.*.
type RequestInfo struct {
	Context   string
	Method    string
	Query     map[string]string
	Headers   map[string]string
	Body      map[string]any
	Auth      *Record
	Superuser bool
}

// HasSuperuserAccess reports whether rules are bypassed for the request.
func (info *RequestInfo) HasSuperuserAccess() bool {
	return info != nil && info.Superuser
}
