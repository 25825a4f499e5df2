package spmcp

import (
	"net/url"
	"strings"
)

// hiddenURL replaces connection strings that cannot be parsed as URLs.
const hiddenURL = "[URL details hidden]"

const maskedPassword = "*****"

// SafeDisplayURL returns connURL with its password replaced by a fixed
// placeholder, for use in log lines and CLI output. The username, host, port,
// path and non-secret query parameters are kept. Input that is not a URL,
// including key=value DSNs, is replaced entirely by "[URL details hidden]".
func SafeDisplayURL(connURL string) string {
	if connURL == "" || !strings.Contains(connURL, "://") {
		return hiddenURL
	}
	u, err := url.Parse(connURL)
	if err != nil || u.Scheme == "" {
		return hiddenURL
	}
	// Socket URLs (postgresql:///db?host=/tmp) have no host but are still useful.
	if u.Host == "" && u.Path == "" && u.RawQuery == "" {
		return hiddenURL
	}

	var b strings.Builder
	b.WriteString(u.Scheme)
	b.WriteString("://")
	if u.User != nil && u.User.Username() != "" {
		b.WriteString(u.User.Username())
		if password, _ := u.User.Password(); password != "" {
			b.WriteString(":" + maskedPassword)
		}
		b.WriteString("@")
	}
	b.WriteString(u.Host)
	b.WriteString(u.EscapedPath())
	if u.RawQuery != "" {
		b.WriteString("?")
		b.WriteString(maskQueryPassword(u.RawQuery))
	}
	return b.String()
}

// maskQueryPassword replaces the value of any password parameter in a raw
// query string, leaving the other parameters as written.
func maskQueryPassword(rawQuery string) string {
	params := strings.Split(rawQuery, "&")
	for i, p := range params {
		key, _, _ := strings.Cut(p, "=")
		if k, err := url.QueryUnescape(key); err == nil {
			key = k
		}
		if strings.EqualFold(key, "password") {
			params[i] = key + "=" + maskedPassword
		}
	}
	return strings.Join(params, "&")
}
