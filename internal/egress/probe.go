package egress

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"
)

// defaultProbeTimeout bounds a single probe. Probes only check that the
// proxy answers, so a short timeout is enough.
const defaultProbeTimeout = 5 * time.Second

// SOCKS5 protocol constants.
const (
	socks5Version      = 0x05
	socks5AuthNone     = 0x00
	socks5AuthUserPass = 0x02
	socks5AuthNoAccept = 0xFF
	socks5CmdConnect   = 0x01
	socks5AddrDomain   = 0x03
)

// probeTarget is the host named in the SOCKS5 CONNECT request. The probe
// only needs the proxy to answer; the reply code is not checked.
const probeTarget = "x.com"

// Probe checks that route is reachable.
//
// The direct route always passes. HTTP proxies must accept a TCP
// connection. SOCKS5 proxies must complete method negotiation and answer a
// CONNECT request with a SOCKS5 reply.
func Probe(ctx context.Context, route Route) error {
	if route.Kind == KindDirect {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, defaultProbeTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", route.URL.Host)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%s: %w", route.ID, ErrProbeTimeout)
		}
		return fmt.Errorf("%s: %w", route.ID, ErrProbeConnect)
	}
	defer conn.Close()

	if route.Kind == KindHTTP {
		return nil
	}

	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("%s: %w", route.ID, ErrProbeConnect)
	}
	if err := socks5Handshake(conn, route); err != nil {
		return fmt.Errorf("%s: %w", route.ID, err)
	}
	return nil
}

// socks5Handshake performs method negotiation, optional username/password
// authentication, and a CONNECT request.
func socks5Handshake(conn net.Conn, route Route) error {
	method := byte(socks5AuthNone)
	if route.URL.User != nil {
		method = socks5AuthUserPass
	}

	if _, err := conn.Write([]byte{socks5Version, 0x01, method}); err != nil {
		return ErrProbeConnect
	}

	resp := make([]byte, 2)
	if _, err := io.ReadFull(conn, resp); err != nil {
		return readError(err)
	}
	if resp[0] != socks5Version || resp[1] == socks5AuthNoAccept || resp[1] != method {
		return ErrNotSOCKS5
	}

	if method == socks5AuthUserPass {
		user := route.URL.User.Username()
		pass, _ := route.URL.User.Password()
		req := []byte{0x01, byte(len(user))}
		req = append(req, user...)
		req = append(req, byte(len(pass)))
		req = append(req, pass...)
		if _, err := conn.Write(req); err != nil {
			return ErrProbeConnect
		}
		if _, err := io.ReadFull(conn, resp); err != nil {
			return readError(err)
		}
		if resp[1] != 0x00 {
			return fmt.Errorf("%w: authentication rejected", ErrProbeConnect)
		}
	}

	port := uint16(443)
	connectReq := []byte{
		socks5Version,
		socks5CmdConnect,
		0x00,
		socks5AddrDomain,
		byte(len(probeTarget)),
	}
	connectReq = append(connectReq, probeTarget...)
	connectReq = append(connectReq, byte(port>>8), byte(port&0xFF))
	if _, err := conn.Write(connectReq); err != nil {
		return ErrProbeConnect
	}

	reply := make([]byte, 4)
	if _, err := io.ReadFull(conn, reply); err != nil {
		return readError(err)
	}
	if reply[0] != socks5Version {
		return ErrNotSOCKS5
	}
	return nil
}

func readError(err error) error {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return ErrProbeTimeout
	}
	return ErrNotSOCKS5
}

// ProbeAll probes every route in the pool and reports failures into it.
// It returns the errors keyed by route id.
func (p *Pool) ProbeAll(ctx context.Context) map[string]error {
	failed := make(map[string]error)
	for _, r := range p.Routes() {
		start := time.Now()
		if err := Probe(ctx, r); err != nil {
			failed[r.ID] = err
			for range p.threshold {
				p.Report(r, Failure, 0)
			}
			continue
		}
		if r.Kind != KindDirect {
			p.Report(r, Success, time.Since(start))
		}
	}
	return failed
}
