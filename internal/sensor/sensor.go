package sensor

import (
	"fmt"
	"strconv"

	"gocoax-monitor/internal/gocoax"
	"gocoax-monitor/internal/slug"
)

const Domain = "gocoax"

type StateClass string

const (
	StateClassNone            StateClass = ""
	StateClassMeasurement     StateClass = "measurement"
	StateClassTotalIncreasing StateClass = "total_increasing"
)

// Description is one row of the fixed main sensor catalogue.
type Description struct {
	Key        string
	Name       string
	Icon       string
	Unit       string
	StateClass StateClass
}

var MainSensors = []Description{
	{Key: gocoax.KeySoCVersion, Name: "SoC Version", Icon: "mdi:chip"},
	{Key: gocoax.KeyMyMoCAVersion, Name: "My MoCA Version", Icon: "mdi:chip"},
	{Key: gocoax.KeyNetworkMoCAVersion, Name: "Network MoCA Version", Icon: "mdi:chip"},
	{Key: gocoax.KeyIPAddress, Name: "IP Address", Icon: "mdi:lan"},
	{Key: gocoax.KeyMACAddress, Name: "MAC Address", Icon: "mdi:lan"},
	{Key: gocoax.KeyLinkStatus, Name: "Link Status", Icon: "mdi:lan-connect"},
	{Key: gocoax.KeyLOF, Name: "LOF", Icon: "mdi:access-point-network", StateClass: StateClassMeasurement},

	{Key: gocoax.KeyEthTxGood, Name: "Ethernet TX Good", Icon: "mdi:upload-network", Unit: "packets", StateClass: StateClassTotalIncreasing},
	{Key: gocoax.KeyEthTxBad, Name: "Ethernet TX Bad", Icon: "mdi:close-network", Unit: "packets", StateClass: StateClassTotalIncreasing},
	{Key: gocoax.KeyEthTxDropped, Name: "Ethernet TX Dropped", Icon: "mdi:close-network", Unit: "packets", StateClass: StateClassTotalIncreasing},
	{Key: gocoax.KeyEthRxGood, Name: "Ethernet RX Good", Icon: "mdi:download-network", Unit: "packets", StateClass: StateClassTotalIncreasing},
	{Key: gocoax.KeyEthRxBad, Name: "Ethernet RX Bad", Icon: "mdi:close-network", Unit: "packets", StateClass: StateClassTotalIncreasing},
	{Key: gocoax.KeyEthRxDropped, Name: "Ethernet RX Dropped", Icon: "mdi:close-network", Unit: "packets", StateClass: StateClassTotalIncreasing},
}

type Kind string

const (
	KindMain    Kind = "main"
	KindGCDRate Kind = "gcd_rate"
	KindPhyRate Kind = "phy_rate"
)

const rateUnit = "Mbps"

// Entity is a registered sensor. The set is decided once at setup; nodes
// that join later only show up after the entry is reloaded.
type Entity struct {
	Kind       Kind
	UniqueID   string
	EntityID   string
	Name       string
	Icon       string
	Unit       string
	StateClass StateClass

	Key  string // KindMain
	Node int    // KindGCDRate
	From int    // KindPhyRate
	To   int    // KindPhyRate
}

// Snapshot is what entities read their value from.
type Snapshot struct {
	Available bool
	Info      *gocoax.DeviceInfo
	Phy       *gocoax.PhyRates
}

func newEntity(kind Kind, host, uniqueSuffix, name, icon, unit string, sc StateClass) Entity {
	return Entity{
		Kind:       kind,
		UniqueID:   host + "_" + uniqueSuffix,
		EntityID:   "sensor." + slug.Make(name),
		Name:       name,
		Icon:       icon,
		Unit:       unit,
		StateClass: sc,
	}
}

// BuildEntities creates the main sensors plus, when the snapshot carries PHY
// data, one GCD sensor per node and one rate sensor per ordered node pair.
func BuildEntities(host string, s Snapshot) []Entity {
	entities := make([]Entity, 0, len(MainSensors))
	for _, d := range MainSensors {
		e := newEntity(KindMain, host, d.Key, "GoCoax "+d.Name, d.Icon, d.Unit, d.StateClass)
		e.Key = d.Key
		entities = append(entities, e)
	}

	if s.Phy == nil {
		return entities
	}
	for _, node := range s.Phy.Nodes {
		e := newEntity(KindGCDRate, host,
			fmt.Sprintf("gcd_rate_node_%d", node),
			fmt.Sprintf("GoCoax GCD Rate (Node %d)", node),
			"mdi:swap-horizontal", rateUnit, StateClassMeasurement)
		e.Node = node
		entities = append(entities, e)
	}
	for _, from := range s.Phy.Nodes {
		for _, to := range s.Phy.Nodes {
			e := newEntity(KindPhyRate, host,
				fmt.Sprintf("phy_rate_from_%d_to_%d", from, to),
				fmt.Sprintf("PHY Rate from %d to %d", from, to),
				"mdi:swap-horizontal", rateUnit, StateClassMeasurement)
			e.From, e.To = from, to
			entities = append(entities, e)
		}
	}
	return entities
}

// ClaimEntityIDs gives every entity an id not yet in taken, adding _2, _3,
// ... to the object part on collision, and records the ids it hands out.
func ClaimEntityIDs(entities []Entity, taken map[string]bool) {
	for i := range entities {
		base := entities[i].EntityID
		id := base
		for n := 2; taken[id]; n++ {
			id = fmt.Sprintf("%s_%d", base, n)
		}
		taken[id] = true
		entities[i].EntityID = id
	}
}

// Value is the entity's native value, nil when unavailable or unknown.
func (e Entity) Value(s Snapshot) any {
	if !s.Available {
		return nil
	}
	switch e.Kind {
	case KindMain:
		v, ok := s.Info.Value(e.Key)
		if !ok {
			return nil
		}
		if str, isStr := v.(string); isStr && e.StateClass != StateClassNone {
			n, err := strconv.ParseInt(str, 10, 64)
			if err != nil {
				return nil
			}
			return n
		}
		return v
	case KindGCDRate:
		if r, ok := s.Phy.GCD(e.Node); ok {
			return r
		}
	case KindPhyRate:
		if r, ok := s.Phy.Rate(e.From, e.To); ok {
			return r
		}
	}
	return nil
}

// State is the rendered view of one entity.
type State struct {
	EntityID   string     `json:"entity_id"`
	UniqueID   string     `json:"unique_id"`
	Name       string     `json:"name"`
	State      any        `json:"state"`
	Unit       string     `json:"unit_of_measurement,omitempty"`
	Icon       string     `json:"icon"`
	StateClass StateClass `json:"state_class,omitempty"`
	Available  bool       `json:"available"`
}

func (e Entity) State(s Snapshot) State {
	return State{
		EntityID:   e.EntityID,
		UniqueID:   e.UniqueID,
		Name:       e.Name,
		State:      e.Value(s),
		Unit:       e.Unit,
		Icon:       e.Icon,
		StateClass: e.StateClass,
		Available:  s.Available,
	}
}

// Display formats a state for the dashboard.
func (st State) Display() string {
	if !st.Available || st.State == nil {
		return "unavailable"
	}
	if st.Unit != "" {
		return fmt.Sprintf("%v %s", st.State, st.Unit)
	}
	return fmt.Sprintf("%v", st.State)
}

// DeviceRegistry groups all entities of a host under one device.
type DeviceRegistry struct {
	Identifiers  [][2]string `json:"identifiers"`
	Name         string      `json:"name"`
	Manufacturer string      `json:"manufacturer"`
	Model        string      `json:"model"`
}

func DeviceInfo(host string) DeviceRegistry {
	return DeviceRegistry{
		Identifiers:  [][2]string{{Domain, host}},
		Name:         fmt.Sprintf("GoCoax (%s)", host),
		Manufacturer: "GoCoax / MaxLinear",
		Model:        "MoCA Adapter",
	}
}
