package gocoax

import (
	"encoding/hex"
	"fmt"
	"strings"

	"gocoax-monitor/internal/chipid"
)

// Word positions inside the endpoint answers.
const (
	localNodeID         = 0
	localNodeBitmask    = 4
	localLinkStatus     = 5
	localNetworkMoCAVer = 11
	localSoCVersion     = 21

	netMyMoCAVer = 4
)

// frameInfo keeps each Ethernet counter as a (hi, lo) word pair.
var frameCounters = struct {
	txGood, txBad, txDropped, rxGood, rxBad, rxDropped int
}{12, 30, 48, 66, 84, 102}

// Sensor keys produced by Decode.
const (
	KeySoCVersion         = "soc_version"
	KeyMyMoCAVersion      = "my_moca_version"
	KeyNetworkMoCAVersion = "network_moca_version"
	KeyIPAddress          = "ip_address"
	KeyMACAddress         = "mac_address"
	KeyLinkStatus         = "link_status"
	KeyLOF                = "lof"
	KeyEthTxGood          = "eth_tx_good"
	KeyEthTxBad           = "eth_tx_bad"
	KeyEthTxDropped       = "eth_tx_dropped"
	KeyEthRxGood          = "eth_rx_good"
	KeyEthRxBad           = "eth_rx_bad"
	KeyEthRxDropped       = "eth_rx_dropped"
)

const (
	LinkUp   = "Up"
	LinkDown = "Down"
)

// DeviceInfo is the flat record behind the main sensors.
type DeviceInfo struct {
	SoCVersion         string `json:"soc_version"`
	MyMoCAVersion      string `json:"my_moca_version"`
	NetworkMoCAVersion string `json:"network_moca_version"`
	IPAddress          string `json:"ip_address"`
	MACAddress         string `json:"mac_address"`
	LinkStatus         string `json:"link_status"`
	LOF                uint64 `json:"lof"`
	EthTxGood          uint64 `json:"eth_tx_good"`
	EthTxBad           uint64 `json:"eth_tx_bad"`
	EthTxDropped       uint64 `json:"eth_tx_dropped"`
	EthRxGood          uint64 `json:"eth_rx_good"`
	EthRxBad           uint64 `json:"eth_rx_bad"`
	EthRxDropped       uint64 `json:"eth_rx_dropped"`
}

// Value looks a field up by sensor key.
func (d *DeviceInfo) Value(key string) (any, bool) {
	if d == nil {
		return nil, false
	}
	switch key {
	case KeySoCVersion:
		return d.SoCVersion, true
	case KeyMyMoCAVersion:
		return d.MyMoCAVersion, true
	case KeyNetworkMoCAVersion:
		return d.NetworkMoCAVersion, true
	case KeyIPAddress:
		return d.IPAddress, true
	case KeyMACAddress:
		return d.MACAddress, true
	case KeyLinkStatus:
		return d.LinkStatus, true
	case KeyLOF:
		return d.LOF, true
	case KeyEthTxGood:
		return d.EthTxGood, true
	case KeyEthTxBad:
		return d.EthTxBad, true
	case KeyEthTxDropped:
		return d.EthTxDropped, true
	case KeyEthRxGood:
		return d.EthRxGood, true
	case KeyEthRxBad:
		return d.EthRxBad, true
	case KeyEthRxDropped:
		return d.EthRxDropped, true
	}
	return nil, false
}

// LinkUp reports whether the coax link is up.
func (d *DeviceInfo) LinkUp() bool {
	return d != nil && d.LinkStatus == LinkUp
}

// Decode maps the raw endpoint words into a DeviceInfo.
func Decode(raw *RawInfo) (*DeviceInfo, error) {
	if raw == nil {
		return nil, fmt.Errorf("no device info: %w", ErrMalformed)
	}
	r := &wordReader{}

	nwMoCAVer := r.uint("localInfo", raw.LocalInfo, localNetworkMoCAVer)
	link := r.uint("localInfo", raw.LocalInfo, localLinkStatus)
	chip := r.uint("chipId", raw.ChipID, 0)
	macHi := r.uint("macInfo", raw.MACInfo, 0)
	macLo := r.uint("macInfo", raw.MACInfo, 1)
	myMoCAVer := r.uint("netInfo", raw.NetInfo, netMyMoCAVer)
	ip := r.uint("ipAddr", raw.IPAddr, 0)
	lof := r.uint("lof", raw.LOF, 0)

	counter := func(hiIdx int) uint64 {
		hi := r.uint("frameInfo", raw.FrameInfo, hiIdx)
		lo := r.uint("frameInfo", raw.FrameInfo, hiIdx+1)
		return (hi&0xFFFFFFFF)<<32 + lo
	}
	info := &DeviceInfo{
		EthTxGood:    counter(frameCounters.txGood),
		EthTxBad:     counter(frameCounters.txBad),
		EthTxDropped: counter(frameCounters.txDropped),
		EthRxGood:    counter(frameCounters.rxGood),
		EthRxBad:     counter(frameCounters.rxBad),
		EthRxDropped: counter(frameCounters.rxDropped),
	}
	if r.err != nil {
		return nil, r.err
	}

	info.SoCVersion = chipid.Name(chip) + "." + socString(raw.LocalInfo)
	info.MyMoCAVersion = mocaVersion(myMoCAVer)
	info.NetworkMoCAVersion = mocaVersion(nwMoCAVer)
	info.IPAddress = formatIPv4(ip)
	info.MACAddress = formatMAC(macHi, macLo)
	info.LOF = lof
	info.LinkStatus = LinkDown
	if link != 0 {
		info.LinkStatus = LinkUp
	}
	return info, nil
}

func mocaVersion(v uint64) string {
	return fmt.Sprintf("%d.%d", (v>>4)&0xF, v&0xF)
}

func formatIPv4(v uint64) string {
	return fmt.Sprintf("%d.%d.%d.%d", (v>>24)&0xFF, (v>>16)&0xFF, (v>>8)&0xFF, v&0xFF)
}

// formatMAC uses all four bytes of hi and the top two bytes of lo.
func formatMAC(hi, lo uint64) string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x",
		byte(hi>>24), byte(hi>>16), byte(hi>>8), byte(hi),
		byte(lo>>24), byte(lo>>16))
}

// socString reads the firmware version text packed four chars per word
// from localInfo[21] on.
func socString(words Words) string {
	var sb strings.Builder
	for i := localSoCVersion; i < len(words); i++ {
		chunk, more := wordASCII(words[i])
		sb.WriteString(chunk)
		if !more {
			break
		}
	}
	return sb.String()
}

// wordASCII decodes the 4 bytes of one word. A NUL or non-ASCII byte ends the
// text and drops the whole word.
func wordASCII(word string) (string, bool) {
	h := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(word), "0x"), "0X")
	if len(h) > 8 {
		h = h[:8]
	}
	b, err := hex.DecodeString(h)
	if err != nil {
		return "", false
	}
	for _, c := range b {
		if c == 0 || c >= 0x80 {
			return "", false
		}
	}
	return string(b), true
}
