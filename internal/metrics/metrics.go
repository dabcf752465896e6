package metrics

import (
	"strconv"
	"time"

	"gocoax-monitor/internal/gocoax"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	PollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gocoax_polls_total",
			Help: "Device polls by result",
		},
		[]string{"host", "result"},
	)

	PollDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gocoax_poll_duration_seconds",
			Help:    "Time spent polling one device",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"host"},
	)

	LinkTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gocoax_link_transitions_total",
			Help: "Coax link status changes seen by the poller",
		},
		[]string{"host", "to"},
	)
)

func init() {
	prometheus.MustRegister(PollsTotal)
	prometheus.MustRegister(PollDuration)
	prometheus.MustRegister(LinkTransitions)
}

func ObservePoll(host string, start time.Time, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	PollsTotal.WithLabelValues(host, result).Inc()
	PollDuration.WithLabelValues(host).Observe(time.Since(start).Seconds())
}

// DeviceSample is the current view of one polled device.
type DeviceSample struct {
	Host      string
	Available bool
	Info      *gocoax.DeviceInfo
	Phy       *gocoax.PhyRates
}

// Source hands the collector the latest snapshot of every device.
type Source interface {
	Samples() []DeviceSample
}

var (
	upDesc = prometheus.NewDesc("gocoax_up",
		"Whether the last poll of the device succeeded", []string{"host"}, nil)
	linkDesc = prometheus.NewDesc("gocoax_link_up",
		"Coax link status (1 up, 0 down)", []string{"host"}, nil)
	infoDesc = prometheus.NewDesc("gocoax_device_info",
		"Static device attributes", []string{"host", "soc_version", "my_moca_version", "network_moca_version", "ip_address", "mac_address"}, nil)
	lofDesc = prometheus.NewDesc("gocoax_lof_mhz",
		"Last operating frequency", []string{"host"}, nil)
	ethDesc = prometheus.NewDesc("gocoax_ethernet_packets_total",
		"Ethernet packet counters reported by the adapter", []string{"host", "direction", "result"}, nil)
	phyDesc = prometheus.NewDesc("gocoax_phy_rate_mbps",
		"PHY rate between two MoCA nodes", []string{"host", "from", "to"}, nil)
	gcdDesc = prometheus.NewDesc("gocoax_gcd_rate_mbps",
		"GCD rate of a MoCA node", []string{"host", "node"}, nil)
)

// Collector exports device values at scrape time.
type Collector struct {
	src Source
}

func NewCollector(src Source) *Collector {
	return &Collector{src: src}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{upDesc, linkDesc, infoDesc, lofDesc, ethDesc, phyDesc, gcdDesc} {
		ch <- d
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, s := range c.src.Samples() {
		up := 0.0
		if s.Available {
			up = 1
		}
		ch <- prometheus.MustNewConstMetric(upDesc, prometheus.GaugeValue, up, s.Host)
		if !s.Available || s.Info == nil {
			continue
		}

		info := s.Info
		link := 0.0
		if info.LinkUp() {
			link = 1
		}
		ch <- prometheus.MustNewConstMetric(linkDesc, prometheus.GaugeValue, link, s.Host)
		ch <- prometheus.MustNewConstMetric(infoDesc, prometheus.GaugeValue, 1, s.Host,
			info.SoCVersion, info.MyMoCAVersion, info.NetworkMoCAVersion, info.IPAddress, info.MACAddress)
		ch <- prometheus.MustNewConstMetric(lofDesc, prometheus.GaugeValue, float64(info.LOF), s.Host)

		counters := []struct {
			dir, result string
			v           uint64
		}{
			{"tx", "good", info.EthTxGood},
			{"tx", "bad", info.EthTxBad},
			{"tx", "dropped", info.EthTxDropped},
			{"rx", "good", info.EthRxGood},
			{"rx", "bad", info.EthRxBad},
			{"rx", "dropped", info.EthRxDropped},
		}
		for _, ctr := range counters {
			ch <- prometheus.MustNewConstMetric(ethDesc, prometheus.CounterValue, float64(ctr.v), s.Host, ctr.dir, ctr.result)
		}

		if s.Phy == nil {
			continue
		}
		for i, from := range s.Phy.Nodes {
			node := strconv.Itoa(from)
			ch <- prometheus.MustNewConstMetric(gcdDesc, prometheus.GaugeValue, float64(s.Phy.GCDRates[i]), s.Host, node)
			for j, to := range s.Phy.Nodes {
				if i == j {
					continue
				}
				ch <- prometheus.MustNewConstMetric(phyDesc, prometheus.GaugeValue, float64(s.Phy.Rates[i][j]), s.Host, node, strconv.Itoa(to))
			}
		}
	}
}
