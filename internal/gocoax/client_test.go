package gocoax_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"gocoax-monitor/internal/gocoax"
	"gocoax-monitor/internal/gocoax/gocoaxtest"
)

func sampleCreds() gocoax.Credentials {
	return gocoax.Credentials{Username: gocoaxtest.Username, Password: gocoaxtest.Password}
}

func TestBaseURL(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"192.168.1.10":           "http://192.168.1.10",
		" 192.168.1.10:8080 ":    "http://192.168.1.10:8080",
		"https://moca.lan/":      "https://moca.lan",
		"http://10.0.0.2/x/y.js": "http://10.0.0.2",
	}
	for in, want := range cases {
		got, err := gocoax.BaseURL(in)
		if err != nil {
			t.Fatalf("BaseURL(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("BaseURL(%q)=%q want %q", in, got, want)
		}
	}
	if _, err := gocoax.BaseURL("  "); err == nil {
		t.Fatalf("expected error for empty host")
	}
}

func TestParseAuthMode(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]gocoax.AuthMode{"": gocoax.AuthBasic, "Basic": gocoax.AuthBasic, "digest": gocoax.AuthDigest} {
		got, err := gocoax.ParseAuthMode(in)
		if err != nil || got != want {
			t.Fatalf("ParseAuthMode(%q)=%q,%v", in, got, err)
		}
	}
	if _, err := gocoax.ParseAuthMode("ntlm"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestFetchDeviceInfo_Sample(t *testing.T) {
	t.Parallel()

	dev := gocoaxtest.NewDevice()
	srv := dev.Start(t)

	c, err := gocoax.NewClient(gocoaxtest.Host(srv), sampleCreds())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	raw, err := c.FetchDeviceInfo(context.Background())
	if err != nil {
		t.Fatalf("FetchDeviceInfo: %v", err)
	}
	if c.CSRFToken() != gocoaxtest.CSRFToken {
		t.Fatalf("csrf=%q", c.CSRFToken())
	}
	if len(raw.FrameInfo) != 104 || len(raw.LocalInfo) != 25 {
		t.Fatalf("frameInfo=%d localInfo=%d", len(raw.FrameInfo), len(raw.LocalInfo))
	}

	// netInfo and macInfo are asked about our own node, frameInfo and gpio about port 0.
	for path, want := range map[string][]uint64{
		gocoax.EndpointNetInfo:   {gocoaxtest.SampleLocalNode},
		gocoax.EndpointMACInfo:   {gocoaxtest.SampleLocalNode},
		gocoax.EndpointFrameInfo: {0},
		gocoax.EndpointGPIO:      {0},
		gocoax.EndpointLocalInfo: {},
	} {
		got := dev.Payload(path)
		if len(got) != len(want) {
			t.Fatalf("%s payload=%v want %v", path, got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("%s payload=%v want %v", path, got, want)
			}
		}
	}
}

func TestFetchDeviceInfo_NoCSRFToken(t *testing.T) {
	t.Parallel()

	dev := gocoaxtest.NewDevice()
	dev.DropCSRF()
	srv := dev.Start(t)

	c, _ := gocoax.NewClient(gocoaxtest.Host(srv), sampleCreds())
	_, err := c.FetchDeviceInfo(context.Background())
	if !errors.Is(err, gocoax.ErrNoCSRFToken) {
		t.Fatalf("err=%v", err)
	}
	if dev.Hits(gocoax.EndpointLocalInfo) != 0 {
		t.Fatalf("localInfo should not be queried without a token")
	}
}

func TestFetchDeviceInfo_BadCredentials(t *testing.T) {
	t.Parallel()

	srv := gocoaxtest.NewDevice().Start(t)
	c, _ := gocoax.NewClient(gocoaxtest.Host(srv), gocoax.Credentials{Username: "admin", Password: "wrong"})
	_, err := c.FetchDeviceInfo(context.Background())
	if !gocoax.IsAuthError(err) {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestPostJSON_ErrorIncludesStatus(t *testing.T) {
	t.Parallel()

	dev := gocoaxtest.NewDevice()
	dev.Fail(gocoax.EndpointFrameInfo, http.StatusInternalServerError)
	srv := dev.Start(t)

	c, _ := gocoax.NewClient(gocoaxtest.Host(srv), sampleCreds())
	_, err := c.FetchDeviceInfo(context.Background())
	if err == nil {
		t.Fatalf("expected error")
	}
	var se *gocoax.StatusError
	if !errors.As(err, &se) || se.Code != http.StatusInternalServerError {
		t.Fatalf("err=%v", err)
	}
	if !strings.Contains(err.Error(), "frameInfo") {
		t.Fatalf("error does not name the endpoint: %q", err)
	}
	if gocoax.IsAuthError(err) {
		t.Fatalf("500 is not an auth error")
	}
}

func TestPostJSON_MalformedBody(t *testing.T) {
	t.Parallel()

	dev := gocoaxtest.NewDevice()
	dev.SetRaw(gocoax.EndpointLOF, `{"data": [true]}`)
	srv := dev.Start(t)

	c, _ := gocoax.NewClient(gocoaxtest.Host(srv), sampleCreds())
	_, err := c.FetchDeviceInfo(context.Background())
	if !errors.Is(err, gocoax.ErrMalformed) {
		t.Fatalf("err=%v", err)
	}
}

func TestWords_AcceptNumbers(t *testing.T) {
	t.Parallel()

	dev := gocoaxtest.NewDevice()
	dev.SetRaw(gocoax.EndpointIPAddr, `{"data": [3232235876]}`)
	srv := dev.Start(t)

	c, _ := gocoax.NewClient(gocoaxtest.Host(srv), sampleCreds())
	raw, err := c.FetchDeviceInfo(context.Background())
	if err != nil {
		t.Fatalf("FetchDeviceInfo: %v", err)
	}
	info, err := gocoax.Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if info.IPAddress != gocoaxtest.SampleIP {
		t.Fatalf("ip=%q", info.IPAddress)
	}
}

func TestFetchPhyRates_Sample(t *testing.T) {
	t.Parallel()

	dev := gocoaxtest.NewDevice()
	srv := dev.Start(t)

	c, _ := gocoax.NewClient(gocoaxtest.Host(srv), sampleCreds())
	ctx := context.Background()
	raw, err := c.FetchDeviceInfo(ctx)
	if err != nil {
		t.Fatalf("FetchDeviceInfo: %v", err)
	}
	phy, err := c.FetchPhyRates(ctx, raw)
	if err != nil {
		t.Fatalf("FetchPhyRates: %v", err)
	}
	if got := dev.Payload(gocoax.EndpointFMRInfo); len(got) != 1 || got[0] != gocoaxtest.SampleNodeBitmask {
		t.Fatalf("fmrInfo payload=%v", got)
	}
	if r, ok := phy.Rate(2, 1); !ok || r != 1460 {
		t.Fatalf("rate 2->1 = %d,%v", r, ok)
	}
	if g, ok := phy.GCD(0); !ok || g != 1400 {
		t.Fatalf("gcd(0) = %d,%v", g, ok)
	}
}

func TestValidateConnection(t *testing.T) {
	t.Parallel()

	srv := gocoaxtest.NewDevice().Start(t)
	ctx := context.Background()

	if err := gocoax.ValidateConnection(ctx, gocoaxtest.Host(srv), sampleCreds()); err != nil {
		t.Fatalf("valid credentials: %v", err)
	}
	err := gocoax.ValidateConnection(ctx, gocoaxtest.Host(srv), gocoax.Credentials{Username: "admin", Password: "nope"})
	if !gocoax.IsAuthError(err) {
		t.Fatalf("expected auth error, got %v", err)
	}
	err = gocoax.ValidateConnection(ctx, "127.0.0.1:1", sampleCreds(), gocoax.WithTimeout(500*time.Millisecond))
	if err == nil || gocoax.IsAuthError(err) {
		t.Fatalf("expected connection error, got %v", err)
	}
}

func digestCreds(password string) gocoax.Credentials {
	return gocoax.Credentials{Username: gocoaxtest.Username, Password: password, Auth: gocoax.AuthDigest}
}

func TestValidateConnection_Digest(t *testing.T) {
	t.Parallel()

	dev := gocoaxtest.NewDevice()
	dev.UseDigest()
	srv := dev.Start(t)
	ctx := context.Background()

	if err := gocoax.ValidateConnection(ctx, gocoaxtest.Host(srv), digestCreds(gocoaxtest.Password)); err != nil {
		t.Fatalf("digest credentials: %v", err)
	}
	// one challenge, one authenticated retry
	if n := dev.Hits(gocoax.EndpointDevStatus); n != 2 {
		t.Fatalf("devStatus hits=%d", n)
	}

	err := gocoax.ValidateConnection(ctx, gocoaxtest.Host(srv), digestCreds("nope"))
	if !gocoax.IsAuthError(err) {
		t.Fatalf("wrong digest password: %v", err)
	}
	err = gocoax.ValidateConnection(ctx, gocoaxtest.Host(srv), sampleCreds())
	if !gocoax.IsAuthError(err) {
		t.Fatalf("basic against digest device: %v", err)
	}
}

func TestFetchDeviceInfo_Digest(t *testing.T) {
	t.Parallel()

	dev := gocoaxtest.NewDevice()
	dev.UseDigest()
	srv := dev.Start(t)

	c, err := gocoax.NewClient(gocoaxtest.Host(srv), digestCreds(gocoaxtest.Password))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	raw, err := c.FetchDeviceInfo(context.Background())
	if err != nil {
		t.Fatalf("FetchDeviceInfo: %v", err)
	}
	info, err := gocoax.Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if info.SoCVersion != gocoaxtest.SampleSoCVersion {
		t.Fatalf("soc=%q", info.SoCVersion)
	}
	// the POST body must survive the digest handshake
	if got := dev.Payload(gocoax.EndpointNetInfo); len(got) != 1 || got[0] != gocoaxtest.SampleLocalNode {
		t.Fatalf("netInfo payload=%v", got)
	}

	phy, err := c.FetchPhyRates(context.Background(), raw)
	if err != nil {
		t.Fatalf("FetchPhyRates: %v", err)
	}
	if r, ok := phy.Rate(2, 1); !ok || r != 1460 {
		t.Fatalf("rate(2,1)=%d,%v", r, ok)
	}
}
