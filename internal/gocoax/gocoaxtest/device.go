// Package gocoaxtest serves a fake GoCoax adapter for tests.
package gocoaxtest

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"gocoax-monitor/internal/gocoax"
)

const (
	Username  = "admin"
	Password  = "gocoax"
	CSRFToken = "tok-5f1e"
)

// Sample decodes to these values.
const (
	SampleSoCVersion   = "MXL371x.2.11.31."
	SampleMyMoCA       = "2.0"
	SampleNetworkMoCA  = "2.5"
	SampleIP           = "192.168.1.100"
	SampleMAC          = "00:12:ab:cd:ef:01"
	SampleLOF          = 1150
	SampleTxGood       = 4294967298
	SampleTxBad        = 5
	SampleTxDropped    = 3
	SampleRxGood       = 123456
	SampleRxBad        = 7
	SampleRxDropped    = 0
	SampleLocalNode    = 1
	SampleNodeBitmask  = 0x7
	sampleFrameInfoLen = 104
)

func hexWord(v uint32) string { return fmt.Sprintf("0x%08x", v) }

// SampleLocalInfo is a linked node 1 in a three node (0, 1, 2) MoCA 2.5 network.
func SampleLocalInfo() gocoax.Words {
	w := make(gocoax.Words, 25)
	for i := range w {
		w[i] = hexWord(0)
	}
	w[0] = hexWord(SampleLocalNode)
	w[4] = hexWord(SampleNodeBitmask)
	w[5] = hexWord(1)
	w[11] = hexWord(0x25)
	w[21] = "0x322e3131" // "2.11"
	w[22] = "0x2e33312e" // ".31."
	w[23] = "0x31000000" // "1" then NUL, dropped
	return w
}

func SampleFrameInfo() gocoax.Words {
	w := make(gocoax.Words, sampleFrameInfoLen)
	for i := range w {
		w[i] = hexWord(0)
	}
	w[12], w[13] = hexWord(1), hexWord(2)
	w[31] = hexWord(SampleTxBad)
	w[49] = hexWord(SampleTxDropped)
	w[67] = hexWord(SampleRxGood)
	w[85] = hexWord(SampleRxBad)
	return w
}

// SampleFMRInfo packs, per node 0, 1, 2:
//
//	0->1 1500  0->2 1400
//	1->0 1520  1->2 1450
//	2->0 1380  2->1 1460
func SampleFMRInfo() gocoax.Words {
	w := make(gocoax.Words, 3*8)
	for i := range w {
		w[i] = hexWord(0)
	}
	w[0] = hexWord(0<<16 | 1500)
	w[1] = hexWord(1400 << 16)
	w[8] = hexWord(1520 << 16)
	w[9] = hexWord(1450 << 16)
	w[16] = hexWord(1380<<16 | 1460)
	return w
}

func sampleData() map[string]gocoax.Words {
	return map[string]gocoax.Words{
		gocoax.EndpointLocalInfo:      SampleLocalInfo(),
		gocoax.EndpointMiscPhyInfo:    {hexWord(0), hexWord(0)},
		gocoax.EndpointNetInfo:        {hexWord(SampleLocalNode), hexWord(0), hexWord(0), hexWord(0), hexWord(0x20)},
		gocoax.EndpointMACInfo:        {"0x0012abcd", "0xef010000"},
		gocoax.EndpointFrameInfo:      SampleFrameInfo(),
		gocoax.EndpointLOF:            {hexWord(SampleLOF)},
		gocoax.EndpointIPAddr:         {"0xc0a80164"},
		gocoax.EndpointChipID:         {hexWord(0x16)},
		gocoax.EndpointGPIO:           {hexWord(0)},
		gocoax.EndpointMiscM25PhyInfo: {hexWord(0)},
		gocoax.EndpointFMRInfo:        SampleFMRInfo(),
	}
}

// Device is an in-memory adapter. The zero value is not usable; call NewDevice.
type Device struct {
	mu       sync.Mutex
	username string
	password string
	token    string
	data     map[string]gocoax.Words
	raw      map[string]string
	fail     map[string]int
	payloads map[string][]uint64
	hits     map[string]int
	holds    map[string]*hold
	digest   bool
	nonce    string
}

type hold struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

// NewDevice returns an adapter answering with the sample payloads.
func NewDevice() *Device {
	return &Device{
		username: Username,
		password: Password,
		token:    CSRFToken,
		data:     sampleData(),
		raw:      map[string]string{},
		fail:     map[string]int{},
		payloads: map[string][]uint64{},
		hits:     map[string]int{},
		holds:    map[string]*hold{},
	}
}

// Start serves d until the test ends.
func (d *Device) Start(t testing.TB) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(d)
	t.Cleanup(srv.Close)
	return srv
}

// Host strips the scheme so the address looks like a configured host.
func Host(srv *httptest.Server) string {
	return strings.TrimPrefix(srv.URL, "http://")
}

func (d *Device) SetWords(path string, w gocoax.Words) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.data[path] = w
	delete(d.raw, path)
}

// SetLinkUp flips localInfo[5].
func (d *Device) SetLinkUp(up bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	local := append(gocoax.Words(nil), d.data[gocoax.EndpointLocalInfo]...)
	local[5] = hexWord(0)
	if up {
		local[5] = hexWord(1)
	}
	d.data[gocoax.EndpointLocalInfo] = local
}

// SetRaw makes path answer with body verbatim.
func (d *Device) SetRaw(path, body string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.raw[path] = body
}

// Fail makes path answer with code; 0 clears it.
func (d *Device) Fail(path string, code int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if code == 0 {
		delete(d.fail, path)
		return
	}
	d.fail[path] = code
}

// UseDigest switches the adapter to HTTP Digest authentication (MD5, qop=auth).
// Basic credentials are rejected from then on.
func (d *Device) UseDigest() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.digest = true
	d.nonce = "6c1d0e2f9a"
}

// DropCSRF stops devStatus.html from setting the csrf_token cookie.
func (d *Device) DropCSRF() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.token = ""
}

// Payload returns the data array last posted to path.
func (d *Device) Payload(path string) []uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.payloads[path]
}

// Hold parks every request to path until release is called. entered is
// closed once the first held request arrives.
func (d *Device) Hold(path string) (entered <-chan struct{}, release func()) {
	h := &hold{entered: make(chan struct{}), release: make(chan struct{})}
	d.mu.Lock()
	d.holds[path] = h
	d.mu.Unlock()

	var once sync.Once
	return h.entered, func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.holds, path)
			d.mu.Unlock()
			close(h.release)
		})
	}
}

// Hits counts requests to path.
func (d *Device) Hits(path string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hits[path]
}

func (d *Device) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	h := d.holds[r.URL.Path]
	d.mu.Unlock()
	if h != nil {
		h.once.Do(func() { close(h.entered) })
		<-h.release
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.hits[r.URL.Path]++

	if !d.authorized(w, r) {
		return
	}
	if code := d.fail[r.URL.Path]; code != 0 {
		http.Error(w, http.StatusText(code), code)
		return
	}

	switch {
	case r.Method == http.MethodGet && r.URL.Path == gocoax.EndpointDevStatus:
		if d.token != "" {
			http.SetCookie(w, &http.Cookie{Name: "csrf_token", Value: d.token, Path: "/"})
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body>Device Status</body></html>"))

	case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/ms/"):
		if d.token == "" || r.Header.Get("X-CSRF-TOKEN") != d.token {
			http.Error(w, "bad csrf token", http.StatusForbidden)
			return
		}
		var req struct {
			Data []uint64 `json:"data"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		d.payloads[r.URL.Path] = req.Data

		w.Header().Set("Content-Type", "application/json")
		if body, ok := d.raw[r.URL.Path]; ok {
			_, _ = w.Write([]byte(body))
			return
		}
		words, ok := d.data[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": words})

	default:
		http.NotFound(w, r)
	}
}

const realm = "GoCoax"

func (d *Device) authorized(w http.ResponseWriter, r *http.Request) bool {
	if !d.digest {
		user, pass, ok := r.BasicAuth()
		if !ok || user != d.username || pass != d.password {
			w.Header().Set("WWW-Authenticate", `Basic realm="`+realm+`"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return false
		}
		return true
	}

	if d.digestValid(r) {
		return true
	}
	w.Header().Set("WWW-Authenticate",
		fmt.Sprintf(`Digest realm="%s", nonce="%s", qop="auth", algorithm=MD5`, realm, d.nonce))
	http.Error(w, "unauthorized", http.StatusUnauthorized)
	return false
}

func (d *Device) digestValid(r *http.Request) bool {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Digest ") {
		return false
	}
	p := map[string]string{}
	for _, part := range strings.Split(strings.TrimPrefix(header, "Digest "), ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if ok {
			p[strings.ToLower(k)] = strings.Trim(v, `"`)
		}
	}
	if p["username"] != d.username || p["realm"] != realm || p["nonce"] != d.nonce {
		return false
	}
	if p["uri"] != r.URL.RequestURI() {
		return false
	}
	ha1 := md5Hex(d.username + ":" + realm + ":" + d.password)
	ha2 := md5Hex(r.Method + ":" + p["uri"])
	want := md5Hex(strings.Join([]string{ha1, p["nonce"], p["nc"], p["cnonce"], p["qop"], ha2}, ":"))
	return p["response"] == want
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
