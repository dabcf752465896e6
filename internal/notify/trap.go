package notify

import (
	"errors"
	"fmt"
	"time"

	"github.com/gosnmp/gosnmp"
)

// OIDs live under NET-SNMP-MIB::netSnmpPlaypen, the subtree reserved for local use.
const (
	sysUpTimeOID   = ".1.3.6.1.2.1.1.3.0"
	snmpTrapOID    = ".1.3.6.1.6.3.1.1.4.1.0"
	linkChangeTrap = ".1.3.6.1.4.1.8072.9999.7.0.1"
	hostOID        = ".1.3.6.1.4.1.8072.9999.7.1.1"
	prevStatusOID  = ".1.3.6.1.4.1.8072.9999.7.1.2"
	newStatusOID   = ".1.3.6.1.4.1.8072.9999.7.1.3"
)

// Notifier is told about coax link transitions.
type Notifier interface {
	LinkChanged(host, from, to string) error
}

// TrapNotifier sends an SNMPv2c trap per transition.
type TrapNotifier struct {
	Target    string
	Port      uint16
	Community string
	Timeout   time.Duration

	started time.Time
}

func NewTrapNotifier(target string, port uint16, community string) *TrapNotifier {
	return &TrapNotifier{
		Target:    target,
		Port:      port,
		Community: community,
		Timeout:   gosnmp.Default.Timeout,
		started:   time.Now(),
	}
}

func (n *TrapNotifier) LinkChanged(host, from, to string) error {
	if n.Target == "" {
		return errors.New("no trap target configured")
	}
	g := &gosnmp.GoSNMP{
		Target:    n.Target,
		Port:      n.Port,
		Community: n.Community,
		Version:   gosnmp.Version2c,
		Timeout:   n.Timeout,
		Retries:   1,
	}
	if err := g.Connect(); err != nil {
		return fmt.Errorf("connect error: %v", err)
	}
	defer g.Conn.Close()

	trap := gosnmp.SnmpTrap{
		Variables: []gosnmp.SnmpPDU{
			{Name: sysUpTimeOID, Type: gosnmp.TimeTicks, Value: uint32(time.Since(n.started) / (10 * time.Millisecond))},
			{Name: snmpTrapOID, Type: gosnmp.ObjectIdentifier, Value: linkChangeTrap},
			{Name: hostOID, Type: gosnmp.OctetString, Value: host},
			{Name: prevStatusOID, Type: gosnmp.OctetString, Value: from},
			{Name: newStatusOID, Type: gosnmp.OctetString, Value: to},
		},
	}
	if _, err := g.SendTrap(trap); err != nil {
		return fmt.Errorf("send trap: %w", err)
	}
	return nil
}
