package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"gocoax-monitor/internal/gocoax"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type staticSource []DeviceSample

func (s staticSource) Samples() []DeviceSample { return s }

func TestCollector(t *testing.T) {
	phy := gocoax.BuildMatrix([]gocoax.RateEntry{
		{From: 0, To: 1, RateMbps: 1500},
		{From: 1, To: 0, RateMbps: 1520},
	})
	src := staticSource{
		{
			Host:      "10.0.0.2",
			Available: true,
			Info:      &gocoax.DeviceInfo{LinkStatus: gocoax.LinkUp, LOF: 1150, EthTxGood: 42, SoCVersion: "MXL371x.2.11"},
			Phy:       phy,
		},
		{Host: "10.0.0.3"},
	}

	reg := prometheus.NewPedanticRegistry()
	reg.MustRegister(NewCollector(src))

	// 2 up + link + info + lof + 6 eth + 2 gcd + 2 phy
	if n, err := testutil.GatherAndCount(reg); err != nil || n != 15 {
		t.Fatalf("count=%d err=%v", n, err)
	}

	want := `
# HELP gocoax_phy_rate_mbps PHY rate between two MoCA nodes
# TYPE gocoax_phy_rate_mbps gauge
gocoax_phy_rate_mbps{from="0",host="10.0.0.2",to="1"} 1500
gocoax_phy_rate_mbps{from="1",host="10.0.0.2",to="0"} 1520
# HELP gocoax_up Whether the last poll of the device succeeded
# TYPE gocoax_up gauge
gocoax_up{host="10.0.0.2"} 1
gocoax_up{host="10.0.0.3"} 0
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(want), "gocoax_phy_rate_mbps", "gocoax_up"); err != nil {
		t.Fatalf("compare: %v", err)
	}
}

func TestObservePoll(t *testing.T) {
	before := testutil.ToFloat64(PollsTotal.WithLabelValues("obs-host", "failure"))
	ObservePoll("obs-host", time.Now(), errors.New("boom"))
	ObservePoll("obs-host", time.Now(), nil)

	if got := testutil.ToFloat64(PollsTotal.WithLabelValues("obs-host", "failure")); got != before+1 {
		t.Fatalf("failures=%v", got)
	}
	if got := testutil.ToFloat64(PollsTotal.WithLabelValues("obs-host", "success")); got != 1 {
		t.Fatalf("successes=%v", got)
	}
}
