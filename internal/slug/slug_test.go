package slug

import "testing"

func TestMake(t *testing.T) {
	cases := map[string]string{
		"GoCoax SoC Version":          "gocoax_soc_version",
		"GoCoax GCD Rate (Node 2)":    "gocoax_gcd_rate_node_2",
		"PHY Rate from 0 to 11":       "phy_rate_from_0_to_11",
		"  GoCoax  Ethernet TX Bad  ": "gocoax_ethernet_tx_bad",
		"!!!":                         "unknown",
	}
	for in, want := range cases {
		if got := Make(in); got != want {
			t.Fatalf("Make(%q)=%q want %q", in, got, want)
		}
	}
}
