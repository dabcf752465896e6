package gocoax

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/icholy/digest"
	"github.com/rs/zerolog/log"
)

// Fixed device endpoints.
const (
	EndpointDevStatus      = "/devStatus.html"
	EndpointPhyRates       = "/phyRates.html"
	EndpointLocalInfo      = "/ms/0/0x15"
	EndpointNetInfo        = "/ms/0/0x16"
	EndpointFMRInfo        = "/ms/0/0x1D"
	EndpointMiscPhyInfo    = "/ms/0/0x24"
	EndpointMACInfo        = "/ms/1/0x103/GET"
	EndpointFrameInfo      = "/ms/0/0x14"
	EndpointLOF            = "/ms/0/0x1003/GET"
	EndpointIPAddr         = "/ms/1/0x20b/GET"
	EndpointChipID         = "/ms/1/0x303/GET"
	EndpointGPIO           = "/ms/1/0xb17"
	EndpointMiscM25PhyInfo = "/ms/0/0x7f"
)

const (
	csrfCookie     = "csrf_token"
	defaultTimeout = 10 * time.Second
)

type AuthMode string

const (
	AuthBasic  AuthMode = "basic"
	AuthDigest AuthMode = "digest"
)

// ParseAuthMode maps form/config input to an AuthMode. Empty means basic.
func ParseAuthMode(s string) (AuthMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(AuthBasic):
		return AuthBasic, nil
	case string(AuthDigest):
		return AuthDigest, nil
	}
	return "", fmt.Errorf("unknown auth mode %q", s)
}

type Credentials struct {
	Username string
	Password string
	Auth     AuthMode
}

// StatusError is a non-2xx answer from the adapter.
type StatusError struct {
	Code   int
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("request failed: %s: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("request failed: %s", e.Status)
}

// IsAuthError reports whether err is the device rejecting the credentials.
func IsAuthError(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusUnauthorized || se.Code == http.StatusForbidden
	}
	return false
}

type Option func(*Client)

// WithTimeout bounds every single request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithInsecureSkipVerify controls TLS verification for https hosts. The adapters
// ship self-signed certificates, so verification is off unless asked for.
func WithInsecureSkipVerify(skip bool) Option {
	return func(c *Client) { c.insecure = skip }
}

// Client talks to one adapter. It keeps a cookie session so the CSRF token
// obtained from devStatus.html is replayed on the /ms calls.
type Client struct {
	baseURL  string
	creds    Credentials
	timeout  time.Duration
	insecure bool
	http     *http.Client
}

// BaseURL turns a configured host into the adapter's base URL. Plain hosts get http://.
func BaseURL(host string) (string, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return "", errors.New("empty host")
	}
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	u, err := url.Parse(host)
	if err != nil {
		return "", fmt.Errorf("parse host: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("no host in %q", host)
	}
	return u.Scheme + "://" + u.Host, nil
}

func NewClient(host string, creds Credentials, opts ...Option) (*Client, error) {
	base, err := BaseURL(host)
	if err != nil {
		return nil, err
	}
	if creds.Auth == "" {
		creds.Auth = AuthBasic
	}

	c := &Client{
		baseURL:  base,
		creds:    creds,
		timeout:  defaultTimeout,
		insecure: true,
	}
	for _, opt := range opts {
		opt(c)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	var rt http.RoundTripper = &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{InsecureSkipVerify: c.insecure},
	}
	if creds.Auth == AuthDigest {
		rt = &digest.Transport{
			Username:  creds.Username,
			Password:  creds.Password,
			Transport: rt,
		}
	}

	c.http = &http.Client{
		Timeout:   c.timeout,
		Jar:       jar,
		Transport: rt,
	}
	return c, nil
}

func (c *Client) BaseURL() string { return c.baseURL }

// CSRFToken returns the csrf_token cookie of the current session, if any.
func (c *Client) CSRFToken() string {
	u, err := url.Parse(c.baseURL + "/")
	if err != nil {
		return ""
	}
	for _, ck := range c.http.Jar.Cookies(u) {
		if ck.Name == csrfCookie {
			return ck.Value
		}
	}
	return ""
}

// Get fetches a page and returns its body.
func (c *Client) Get(ctx context.Context, path, referer string) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/html, */*")
	if referer != "" {
		req.Header.Set("Referer", c.baseURL+referer)
	}
	return c.do(req)
}

type dataPayload struct {
	Data []uint64 `json:"data"`
}

type dataResponse struct {
	Data Words `json:"data"`
}

// PostJSON posts {"data": [...]} to an /ms endpoint and returns the answer's data words.
func (c *Client) PostJSON(ctx context.Context, path, referer string, data ...uint64) (Words, error) {
	if data == nil {
		data = []uint64{}
	}
	payload, err := json.Marshal(dataPayload{Data: data})
	if err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	if referer == "" {
		referer = EndpointDevStatus
	}
	req.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", c.baseURL)
	req.Header.Set("Referer", c.baseURL+referer)

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var resp dataResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		if errors.Is(err, ErrMalformed) {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return nil, fmt.Errorf("%s: %v: %w", path, err, ErrMalformed)
	}
	return resp.Data, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")
	req.Header.Set("Connection", "keep-alive")
	if c.creds.Auth != AuthDigest {
		req.SetBasicAuth(c.creds.Username, c.creds.Password)
	}
	if tok := c.CSRFToken(); tok != "" {
		req.Header.Set("X-CSRF-TOKEN", tok)
	}
	return req, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", req.URL.Path, err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, &StatusError{
			Code:   res.StatusCode,
			Status: res.Status,
			Body:   strings.TrimSpace(string(body)),
		}
	}
	return body, nil
}

// RawInfo is one poll's worth of untouched endpoint answers.
type RawInfo struct {
	LocalInfo      Words `json:"localInfo"`
	MiscPhyInfo    Words `json:"miscphyinfo"`
	NetInfo        Words `json:"netInfo"`
	MACInfo        Words `json:"macInfo"`
	FrameInfo      Words `json:"frameInfo"`
	LOF            Words `json:"lof"`
	IPAddr         Words `json:"ipAddr"`
	ChipID         Words `json:"chipId"`
	GPIO           Words `json:"gpio"`
	MiscM25PhyInfo Words `json:"miscm25phyinfo"`
}

// FetchDeviceInfo loads devStatus.html for the CSRF cookie, then walks the /ms
// endpoints in the order the device's own status page does.
func (c *Client) FetchDeviceInfo(ctx context.Context) (*RawInfo, error) {
	if _, err := c.Get(ctx, EndpointDevStatus, ""); err != nil {
		return nil, fmt.Errorf("devStatus: %w", err)
	}
	if c.CSRFToken() == "" {
		return nil, ErrNoCSRFToken
	}

	raw := &RawInfo{}
	local, err := c.PostJSON(ctx, EndpointLocalInfo, "")
	if err != nil {
		return nil, fmt.Errorf("localInfo: %w", err)
	}
	raw.LocalInfo = local

	myNodeID, err := local.Uint("localInfo", localNodeID)
	if err != nil {
		return nil, err
	}

	steps := []struct {
		name string
		path string
		dst  *Words
		data []uint64
	}{
		{"miscphyinfo", EndpointMiscPhyInfo, &raw.MiscPhyInfo, nil},
		{"netInfo", EndpointNetInfo, &raw.NetInfo, []uint64{myNodeID}},
		{"macInfo", EndpointMACInfo, &raw.MACInfo, []uint64{myNodeID}},
		{"frameInfo", EndpointFrameInfo, &raw.FrameInfo, []uint64{0}},
		{"lof", EndpointLOF, &raw.LOF, nil},
		{"ipAddr", EndpointIPAddr, &raw.IPAddr, nil},
		{"chipId", EndpointChipID, &raw.ChipID, nil},
		{"gpio", EndpointGPIO, &raw.GPIO, []uint64{0}},
		{"miscm25phyinfo", EndpointMiscM25PhyInfo, &raw.MiscM25PhyInfo, nil},
	}
	for _, s := range steps {
		words, err := c.PostJSON(ctx, s.path, "", s.data...)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.name, err)
		}
		*s.dst = words
	}

	log.Debug().Str("host", c.baseURL).Uint64("node_id", myNodeID).Msg("device info retrieved")
	return raw, nil
}

// FetchPhyRates asks fmrInfo for the rate table of every active node and
// reshapes it into a node x node matrix.
func (c *Client) FetchPhyRates(ctx context.Context, raw *RawInfo) (*PhyRates, error) {
	if raw == nil {
		return nil, fmt.Errorf("no device info: %w", ErrMalformed)
	}
	mask, err := raw.LocalInfo.Uint("localInfo", localNodeBitmask)
	if err != nil {
		return nil, err
	}

	fmr, err := c.PostJSON(ctx, EndpointFMRInfo, EndpointPhyRates, mask)
	if err != nil {
		return nil, fmt.Errorf("fmrInfo: %w", err)
	}

	entries, err := DecodeRateEntries(raw.LocalInfo, fmr)
	if err != nil {
		return nil, err
	}
	return BuildMatrix(entries), nil
}

const validateTimeout = 5 * time.Second

// ValidateConnection performs one authenticated GET of devStatus.html.
// A nil error means host and credentials are usable.
func ValidateConnection(ctx context.Context, host string, creds Credentials, opts ...Option) error {
	opts = append([]Option{WithTimeout(validateTimeout)}, opts...)
	c, err := NewClient(host, creds, opts...)
	if err != nil {
		return err
	}
	_, err = c.Get(ctx, EndpointDevStatus, "")
	return err
}
