// Package snmp implements the device query client: single-OID GET and
// subtree WALK against one device, with per-call timeouts and a typed
// failure taxonomy. Retry policy belongs to callers; every request here is
// attempted exactly once.
package snmp

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"
)

// FailKind classifies a query failure.
type FailKind int

const (
	// KindUnreachable covers transport-level failures: connection refused,
	// no route, socket errors.
	KindUnreachable FailKind = iota
	// KindTimeout means the device did not answer within the deadline.
	KindTimeout
	// KindNoSuchObject means the device answered but does not implement
	// the requested OID. Soft failure, per field.
	KindNoSuchObject
)

func (k FailKind) String() string {
	switch k {
	case KindUnreachable:
		return "unreachable"
	case KindTimeout:
		return "timeout"
	case KindNoSuchObject:
		return "no-such-object"
	default:
		return "unknown"
	}
}

// QueryError is the uniform failure type for Get and Walk.
type QueryError struct {
	Addr string
	OID  string
	Kind FailKind
	Err  error
}

func (e *QueryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("snmp %s %s %s: %v", e.Kind, e.Addr, e.OID, e.Err)
	}
	return fmt.Sprintf("snmp %s %s %s", e.Kind, e.Addr, e.OID)
}

func (e *QueryError) Unwrap() error { return e.Err }

// KindOf returns the failure kind of err and true when err is a QueryError.
func KindOf(err error) (FailKind, bool) {
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe.Kind, true
	}
	return 0, false
}

// IsHardFailure reports whether err indicates the device itself could not be
// reached (timeout or transport failure), as opposed to a missing OID.
func IsHardFailure(err error) bool {
	kind, ok := KindOf(err)
	return ok && (kind == KindTimeout || kind == KindUnreachable)
}

// WalkPair is one (index, value) result of a subtree walk. Index is the OID
// suffix below the walked root.
type WalkPair struct {
	Index string
	Value string
}

// Client performs request/response queries against one device address.
type Client interface {
	// Get reads a single OID. Failures are *QueryError.
	Get(ctx context.Context, addr, oid string) (string, error)
	// Walk reads the subtree under root in lexicographic order. Failures
	// are *QueryError; an empty subtree is a KindNoSuchObject failure.
	Walk(ctx context.Context, addr, root string) ([]WalkPair, error)
}

// ClientConfig holds SNMP connection parameters.
type ClientConfig struct {
	Community string
	Timeout   time.Duration
	Port      uint16
}

// conn is the per-request session surface; a mock replaces it in tests.
type conn interface {
	Get(oids []string) (*gosnmp.SnmpPacket, error)
	Walk(rootOid string, walkFn gosnmp.WalkFunc) error
	Close() error
}

type gosnmpConn struct {
	g *gosnmp.GoSNMP
}

func (c *gosnmpConn) Get(oids []string) (*gosnmp.SnmpPacket, error) {
	return c.g.Get(oids)
}

func (c *gosnmpConn) Walk(rootOid string, walkFn gosnmp.WalkFunc) error {
	return c.g.Walk(rootOid, walkFn)
}

func (c *gosnmpConn) Close() error {
	return c.g.Conn.Close()
}

func dialImpl(cfg ClientConfig, addr string) (conn, error) {
	g := &gosnmp.GoSNMP{
		Target:    addr,
		Port:      cfg.Port,
		Community: cfg.Community,
		Version:   gosnmp.Version1,
		Timeout:   cfg.Timeout,
		Retries:   0,
	}
	if err := g.Connect(); err != nil {
		return nil, err
	}
	return &gosnmpConn{g: g}, nil
}

// dialFunc creates per-request sessions. Tests replace it with a fake.
var dialFunc = dialImpl

type client struct {
	cfg ClientConfig
}

// NewClient creates a Client with the given configuration. A zero timeout
// defaults to 2 seconds.
func NewClient(cfg ClientConfig) Client {
	if cfg.Community == "" {
		cfg.Community = "public"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.Port == 0 {
		cfg.Port = 161
	}
	return &client{cfg: cfg}
}

// WithCommunity returns a Client that authenticates with the given community
// string, sharing the rest of the configuration. Printers carry their own
// community; the constructed client's community is only the default.
func (c *client) WithCommunity(community string) Client {
	if community == "" || community == c.cfg.Community {
		return c
	}
	cfg := c.cfg
	cfg.Community = community
	return &client{cfg: cfg}
}

func (c *client) Get(ctx context.Context, addr, oid string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	sess, err := dialFunc(c.cfg, addr)
	if err != nil {
		return "", &QueryError{Addr: addr, OID: oid, Kind: KindUnreachable, Err: err}
	}
	defer sess.Close()

	packet, err := sess.Get([]string{oid})
	if err != nil {
		return "", classify(addr, oid, err)
	}
	if packet.Error == gosnmp.NoSuchName {
		return "", &QueryError{Addr: addr, OID: oid, Kind: KindNoSuchObject}
	}
	if packet.Error != gosnmp.NoError {
		return "", &QueryError{Addr: addr, OID: oid, Kind: KindUnreachable,
			Err: fmt.Errorf("error status %v", packet.Error)}
	}

	for _, pdu := range packet.Variables {
		switch pdu.Type {
		case gosnmp.NoSuchObject, gosnmp.NoSuchInstance, gosnmp.EndOfMibView:
			return "", &QueryError{Addr: addr, OID: oid, Kind: KindNoSuchObject}
		}
		return pduString(pdu), nil
	}
	return "", &QueryError{Addr: addr, OID: oid, Kind: KindNoSuchObject}
}

func (c *client) Walk(ctx context.Context, addr, root string) ([]WalkPair, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sess, err := dialFunc(c.cfg, addr)
	if err != nil {
		return nil, &QueryError{Addr: addr, OID: root, Kind: KindUnreachable, Err: err}
	}
	defer sess.Close()

	prefix := "." + root + "."
	var pairs []WalkPair
	walkErr := sess.Walk(root, func(pdu gosnmp.SnmpPDU) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch pdu.Type {
		case gosnmp.NoSuchObject, gosnmp.NoSuchInstance, gosnmp.EndOfMibView:
			return nil
		}
		index := strings.TrimPrefix(pdu.Name, prefix)
		index = strings.TrimPrefix(index, root+".")
		pairs = append(pairs, WalkPair{Index: index, Value: pduString(pdu)})
		// guard against runaway walks on misbehaving agents
		if len(pairs) >= 10000 {
			return fmt.Errorf("walk limit exceeded")
		}
		return nil
	})

	if walkErr != nil && len(pairs) == 0 {
		// SNMPv1 signals an empty subtree with noSuchName
		if strings.Contains(strings.ToLower(walkErr.Error()), "nosuchname") {
			return nil, &QueryError{Addr: addr, OID: root, Kind: KindNoSuchObject, Err: walkErr}
		}
		return nil, classify(addr, root, walkErr)
	}
	if len(pairs) == 0 {
		return nil, &QueryError{Addr: addr, OID: root, Kind: KindNoSuchObject}
	}
	return pairs, nil
}

// classify maps a transport error to a QueryError kind.
func classify(addr, oid string, err error) *QueryError {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &QueryError{Addr: addr, OID: oid, Kind: KindTimeout, Err: err}
	}
	if strings.Contains(strings.ToLower(err.Error()), "timeout") {
		return &QueryError{Addr: addr, OID: oid, Kind: KindTimeout, Err: err}
	}
	return &QueryError{Addr: addr, OID: oid, Kind: KindUnreachable, Err: err}
}

// pduString renders a PDU value as a string the way devices report textual
// and numeric objects.
func pduString(pdu gosnmp.SnmpPDU) string {
	switch v := pdu.Value.(type) {
	case []byte:
		return string(v)
	case string:
		return v
	case nil:
		return ""
	default:
		if n := gosnmp.ToBigInt(pdu.Value); n != nil {
			return n.String()
		}
		return fmt.Sprintf("%v", pdu.Value)
	}
}

// ParseCounter parses a device counter value reported as a decimal string.
func ParseCounter(s string) (uint64, bool) {
	n, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok || n.Sign() < 0 || !n.IsUint64() {
		return 0, false
	}
	return n.Uint64(), true
}
