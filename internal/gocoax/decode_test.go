package gocoax_test

import (
	"errors"
	"testing"

	"gocoax-monitor/internal/gocoax"
	"gocoax-monitor/internal/gocoax/gocoaxtest"
)

func sampleRaw() *gocoax.RawInfo {
	return &gocoax.RawInfo{
		LocalInfo: gocoaxtest.SampleLocalInfo(),
		NetInfo:   gocoax.Words{"0x00000001", "0x0", "0x0", "0x0", "0x00000020"},
		MACInfo:   gocoax.Words{"0x0012abcd", "0xef010000"},
		FrameInfo: gocoaxtest.SampleFrameInfo(),
		LOF:       gocoax.Words{"0x0000047e"},
		IPAddr:    gocoax.Words{"0xc0a80164"},
		ChipID:    gocoax.Words{"0x00000016"},
	}
}

func TestDecode_Sample(t *testing.T) {
	t.Parallel()

	info, err := gocoax.Decode(sampleRaw())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := gocoax.DeviceInfo{
		SoCVersion:         gocoaxtest.SampleSoCVersion,
		MyMoCAVersion:      gocoaxtest.SampleMyMoCA,
		NetworkMoCAVersion: gocoaxtest.SampleNetworkMoCA,
		IPAddress:          gocoaxtest.SampleIP,
		MACAddress:         gocoaxtest.SampleMAC,
		LinkStatus:         gocoax.LinkUp,
		LOF:                gocoaxtest.SampleLOF,
		EthTxGood:          gocoaxtest.SampleTxGood,
		EthTxBad:           gocoaxtest.SampleTxBad,
		EthTxDropped:       gocoaxtest.SampleTxDropped,
		EthRxGood:          gocoaxtest.SampleRxGood,
		EthRxBad:           gocoaxtest.SampleRxBad,
		EthRxDropped:       gocoaxtest.SampleRxDropped,
	}
	if *info != want {
		t.Fatalf("decoded\n%+v\nwant\n%+v", *info, want)
	}
	if !info.LinkUp() {
		t.Fatalf("LinkUp=false")
	}
}

func TestDecode_LinkDown(t *testing.T) {
	t.Parallel()

	raw := sampleRaw()
	raw.LocalInfo[5] = "0x00000000"
	info, err := gocoax.Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if info.LinkStatus != gocoax.LinkDown || info.LinkUp() {
		t.Fatalf("link=%q", info.LinkStatus)
	}
}

func TestDecode_SoCVersionEdges(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		words []string
		chip  string
		want  string
	}{
		{"exact words run to end", []string{"0x312e3233"}, "0x00000015", "MXL370x.1.23"},
		{"non ascii word dropped", []string{"0x312e3233", "0x41ff4242"}, "0x00000015", "MXL370x.1.23"},
		{"empty", nil, "0x00000015", "MXL370x."},
		{"nul drops word and ends text", []string{"0x312e3233", "0x41420000", "0x43434343"}, "0x00000015", "MXL370x.1.23"},
		{"leading nul", []string{"0x00414243"}, "0x00000015", "MXL370x."},
		{"unknown chip", []string{"0x41424344", "0x41000000"}, "0x00000040", "UNKNOWN.ABCD"},
		{"chip below table", []string{"0x41000000"}, "0x00000001", "UNKNOWN."},
	}
	for _, tc := range cases {
		raw := sampleRaw()
		raw.LocalInfo = append(raw.LocalInfo[:21:21], tc.words...)
		raw.ChipID = gocoax.Words{tc.chip}
		info, err := gocoax.Decode(raw)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if info.SoCVersion != tc.want {
			t.Fatalf("%s: soc=%q want %q", tc.name, info.SoCVersion, tc.want)
		}
	}
}

func TestDecode_Malformed(t *testing.T) {
	t.Parallel()

	short := sampleRaw()
	short.FrameInfo = short.FrameInfo[:100]
	if _, err := gocoax.Decode(short); !errors.Is(err, gocoax.ErrMalformed) {
		t.Fatalf("short frameInfo: err=%v", err)
	}

	garbage := sampleRaw()
	garbage.IPAddr = gocoax.Words{"zz"}
	if _, err := gocoax.Decode(garbage); !errors.Is(err, gocoax.ErrMalformed) {
		t.Fatalf("non hex ipAddr: err=%v", err)
	}

	if _, err := gocoax.Decode(nil); !errors.Is(err, gocoax.ErrMalformed) {
		t.Fatalf("nil: err=%v", err)
	}
}

func TestDeviceInfo_Value(t *testing.T) {
	t.Parallel()

	info, err := gocoax.Decode(sampleRaw())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if v, ok := info.Value(gocoax.KeyEthTxGood); !ok || v.(uint64) != gocoaxtest.SampleTxGood {
		t.Fatalf("eth_tx_good=%v,%v", v, ok)
	}
	if v, ok := info.Value(gocoax.KeyMACAddress); !ok || v.(string) != gocoaxtest.SampleMAC {
		t.Fatalf("mac=%v,%v", v, ok)
	}
	if _, ok := info.Value("nope"); ok {
		t.Fatalf("unknown key resolved")
	}
	var nilInfo *gocoax.DeviceInfo
	if _, ok := nilInfo.Value(gocoax.KeyLOF); ok {
		t.Fatalf("nil info resolved")
	}
}
