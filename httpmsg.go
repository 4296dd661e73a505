/************************************************************************************
 *
 * gwc (Gateway Wire Client), a lightweight Go library for the Discord Gateway
 * protocol
 *
 * SPDX-License-Identifier: BSD-3-Clause
 *
 * Copyright 2025 Marouane Souiri
 *
 * Licensed under the BSD 3-Clause License.
 * See the LICENSE file for details.
 *
 ************************************************************************************/

package gwc

// Hard limits mirrored from the reference implementation's wire-level
// contract: an 8 KiB header buffer, at most 64 raw (unrecognized)
// header pairs, and at most 8 ordered query parameters.
const (
	httpMaxHeaderSize  = 8 * 1024
	httpStreamChunk    = httpMaxHeaderSize
	httpMaxRawHeaders  = 64
	httpMaxQueryParams = 8
)

// headerID indexes the recognized-header slot table. Order matches the
// canonical enum order; it carries no semantic meaning beyond identity.
type headerID int

const (
	headerCacheControl headerID = iota
	headerConnection
	headerDate
	headerKeepAlive
	headerPragma
	headerTrailer
	headerTransferEncoding
	headerUpgrade
	headerVia
	headerWarning
	headerAllow
	headerContentLength
	headerContentType
	headerContentEncoding
	headerContentLanguage
	headerContentLocation
	headerContentMD5
	headerContentRange
	headerExpires
	headerLastModified
	headerAccept
	headerAcceptCharset
	headerAcceptEncoding
	headerAcceptLanguage
	headerAuthorization
	headerCookie
	headerExpect
	headerFrom
	headerHost
	headerIfMatch
	headerIfModifiedSince
	headerIfNoneMatch
	headerIfRange
	headerIfUnmodifiedSince
	headerMaxForwards
	headerProxyAuthorization
	headerReferer
	headerRange
	headerTE
	headerTranslate
	headerUserAgent
	headerAcceptRanges
	headerAge
	headerETag
	headerLocation
	headerProxyAuthenticate
	headerRetryAfter
	headerServer
	headerSetCookie
	headerVary
	headerWWWAuthenticate

	headerCount
)

// headerNames is the canonical spelling table: the only form matched
// case-sensitively while parsing a response and the only form written
// while building a request. Anything else round-trips through the raw
// (name, value) list instead of this indexed table, grounded on the
// reference implementation's Http_Header_Id enum (its *_MAXIMUM
// entries are range sentinels, not header names, and are excluded
// here).
var headerNames = [headerCount]string{
	headerCacheControl:       "Cache-Control",
	headerConnection:         "Connection",
	headerDate:               "Date",
	headerKeepAlive:          "Keep-Alive",
	headerPragma:             "Pragma",
	headerTrailer:            "Trailer",
	headerTransferEncoding:   "Transfer-Encoding",
	headerUpgrade:            "Upgrade",
	headerVia:                "Via",
	headerWarning:            "Warning",
	headerAllow:              "Allow",
	headerContentLength:      "Content-Length",
	headerContentType:        "Content-Type",
	headerContentEncoding:    "Content-Encoding",
	headerContentLanguage:    "Content-Language",
	headerContentLocation:    "Content-Location",
	headerContentMD5:         "Content-MD5",
	headerContentRange:       "Content-Range",
	headerExpires:            "Expires",
	headerLastModified:       "Last-Modified",
	headerAccept:             "Accept",
	headerAcceptCharset:      "Accept-Charset",
	headerAcceptEncoding:     "Accept-Encoding",
	headerAcceptLanguage:     "Accept-Language",
	headerAuthorization:      "Authorization",
	headerCookie:             "Cookie",
	headerExpect:             "Expect",
	headerFrom:               "From",
	headerHost:               "Host",
	headerIfMatch:            "If-Match",
	headerIfModifiedSince:    "If-Modified-Since",
	headerIfNoneMatch:        "If-None-Match",
	headerIfRange:            "If-Range",
	headerIfUnmodifiedSince:  "If-Unmodified-Since",
	headerMaxForwards:        "Max-Forwards",
	headerProxyAuthorization: "Proxy-Authorization",
	headerReferer:            "Referer",
	headerRange:              "Range",
	headerTE:                 "TE",
	headerTranslate:          "Translate",
	headerUserAgent:          "User-Agent",
	headerAcceptRanges:       "Accept-Ranges",
	headerAge:                "Age",
	headerETag:               "ETag",
	headerLocation:           "Location",
	headerProxyAuthenticate:  "Proxy-Authenticate",
	headerRetryAfter:         "Retry-After",
	headerServer:             "Server",
	headerSetCookie:          "Set-Cookie",
	headerVary:               "Vary",
	headerWWWAuthenticate:    "WWW-Authenticate",
}

func lookupHeaderID(name string) (headerID, bool) {
	for id, canonical := range headerNames {
		if canonical == name {
			return headerID(id), true
		}
	}
	return 0, false
}

// rawHeader is one (name, value) pair that did not match a recognized
// header name.
type rawHeader struct {
	Name  string
	Value string
}

// headerTable is the fixed-capacity header model shared by requests
// and responses: recognized headers indexed by enum plus a small raw
// overflow list.
type headerTable struct {
	known [headerCount]string
	set   [headerCount]bool
	raw   []rawHeader
}

// setKnown stores value in the recognized slot for name if it matches
// the canonical table, otherwise appends it to the raw list (subject
// to httpMaxRawHeaders).
func (h *headerTable) setKnown(name, value string) error {
	if id, ok := lookupHeaderID(name); ok {
		h.known[id] = value
		h.set[id] = true
		return nil
	}
	if len(h.raw) >= httpMaxRawHeaders {
		return ErrProtocol
	}
	h.raw = append(h.raw, rawHeader{Name: name, Value: value})
	return nil
}

// get returns the value for a recognized header name, checking the
// indexed table first and falling back to a linear raw-list scan.
func (h *headerTable) get(name string) (string, bool) {
	if id, ok := lookupHeaderID(name); ok {
		return h.known[id], h.set[id]
	}
	for _, r := range h.raw {
		if r.Name == name {
			return r.Value, true
		}
	}
	return "", false
}

// queryParam is one ordered key/value pair appended to a request path.
type queryParam struct {
	Name  string
	Value string
}

// httpRequest is a structured HTTP/1.1 request, scoped to a single
// send per spec.
type httpRequest struct {
	Method  string
	Path    string
	Query   []queryParam
	Headers headerTable
	Body    []byte
	// BodyReader, if set, is a pull-style callback used instead of
	// Body: it is called repeatedly until it returns 0 bytes.
	BodyReader func(buf []byte) (int, error)
}

// addQuery appends a query parameter, failing over httpMaxQueryParams.
func (r *httpRequest) addQuery(name, value string) error {
	if len(r.Query) >= httpMaxQueryParams {
		return ErrProtocol
	}
	r.Query = append(r.Query, queryParam{Name: name, Value: value})
	return nil
}

// httpStatus is the parsed status line.
type httpStatus struct {
	Version string // "HTTP/1.1" or "HTTP/1.0"
	Code    int
	Reason  string
}

// httpResponse is a structured HTTP/1.1 response, scoped to a single
// receive per spec.
type httpResponse struct {
	Status  httpStatus
	Headers headerTable
	Body    []byte
}
