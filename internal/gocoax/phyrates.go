package gocoax

import (
	"fmt"
	"sort"
)

const (
	maxNodes     = 16
	wordsPerNode = maxNodes / 2
)

// RateEntry is one directed PHY rate.
type RateEntry struct {
	From     int    `json:"from"`
	To       int    `json:"to"`
	RateMbps uint32 `json:"rate_mbps"`
}

// PhyRates is the square rate matrix over the discovered nodes.
// Rates[i][j] is the rate from Nodes[i] to Nodes[j]; GCDRates[i] belongs to Nodes[i].
type PhyRates struct {
	Nodes    []int      `json:"nodes"`
	Rates    [][]uint32 `json:"rates"`
	GCDRates []uint32   `json:"gcd_rates"`
}

// ActiveNodes lists the node ids set in a MoCA node bitmask, ascending.
func ActiveNodes(mask uint64) []int {
	nodes := []int{}
	for id := 0; id < maxNodes; id++ {
		if mask&(1<<uint(id)) != 0 {
			nodes = append(nodes, id)
		}
	}
	return nodes
}

// DecodeRateEntries unpacks an fmrInfo answer. Every active node (bitmask in
// localInfo[4]) owns 8 consecutive words; each word carries two 16-bit rates,
// the high half for destination 2k and the low half for 2k+1.
func DecodeRateEntries(localInfo, fmr Words) ([]RateEntry, error) {
	mask, err := localInfo.Uint("localInfo", localNodeBitmask)
	if err != nil {
		return nil, err
	}
	nodes := ActiveNodes(mask)
	if need := len(nodes) * wordsPerNode; len(fmr) < need {
		return nil, fmt.Errorf("fmrInfo: %d words for %d nodes, need %d: %w", len(fmr), len(nodes), need, ErrMalformed)
	}

	active := make(map[int]bool, len(nodes))
	for _, id := range nodes {
		active[id] = true
	}

	var entries []RateEntry
	for i, from := range nodes {
		for k := 0; k < wordsPerNode; k++ {
			w, err := fmr.Uint("fmrInfo", i*wordsPerNode+k)
			if err != nil {
				return nil, err
			}
			halves := [2]struct {
				to   int
				rate uint32
			}{
				{2 * k, uint32(w>>16) & 0xFFFF},
				{2*k + 1, uint32(w) & 0xFFFF},
			}
			for _, h := range halves {
				if h.to == from || !active[h.to] {
					continue
				}
				entries = append(entries, RateEntry{From: from, To: h.to, RateMbps: h.rate})
			}
		}
	}
	return entries, nil
}

// BuildMatrix builds the dense matrix over every node named by an entry.
// Missing cells stay 0 and a later duplicate overwrites an earlier one. A
// node's GCD rate is the lowest non-zero rate it reaches another node with.
func BuildMatrix(entries []RateEntry) *PhyRates {
	seen := map[int]bool{}
	nodes := []int{}
	for _, e := range entries {
		for _, id := range []int{e.From, e.To} {
			if !seen[id] {
				seen[id] = true
				nodes = append(nodes, id)
			}
		}
	}
	sort.Ints(nodes)

	index := make(map[int]int, len(nodes))
	for i, id := range nodes {
		index[id] = i
	}

	rates := make([][]uint32, len(nodes))
	for i := range rates {
		rates[i] = make([]uint32, len(nodes))
	}
	for _, e := range entries {
		rates[index[e.From]][index[e.To]] = e.RateMbps
	}

	gcd := make([]uint32, len(nodes))
	for i := range nodes {
		var low uint32
		for j, r := range rates[i] {
			if j == i || r == 0 {
				continue
			}
			if low == 0 || r < low {
				low = r
			}
		}
		gcd[i] = low
	}

	return &PhyRates{Nodes: nodes, Rates: rates, GCDRates: gcd}
}

func (p *PhyRates) indexOf(node int) int {
	if p == nil {
		return -1
	}
	for i, id := range p.Nodes {
		if id == node {
			return i
		}
	}
	return -1
}

// Rate returns the from->to rate, false if either node is not in the matrix.
func (p *PhyRates) Rate(from, to int) (uint32, bool) {
	i, j := p.indexOf(from), p.indexOf(to)
	if i < 0 || j < 0 || i >= len(p.Rates) || j >= len(p.Rates[i]) {
		return 0, false
	}
	return p.Rates[i][j], true
}

// GCD returns the GCD rate of node, false if the node is unknown.
func (p *PhyRates) GCD(node int) (uint32, bool) {
	i := p.indexOf(node)
	if i < 0 || i >= len(p.GCDRates) {
		return 0, false
	}
	return p.GCDRates[i], true
}
