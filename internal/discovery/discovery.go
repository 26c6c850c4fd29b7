// Package discovery finds other crosskvm daemons on the local network by
// UDP broadcast (supplemented feature 3, resolving spec.md §9's open
// question on auto-discovery): it only ever proposes candidate peers to
// the caller, which decides whether to pair them via internal/trust. A
// discovered peer is never auto-pinned.
//
// Grounded on the teacher's internal/network package: the broadcast
// loop's done-channel shutdown and time.Ticker heartbeat cadence are
// adapted from UDPSender/UDPReceiver
// (internal/network/udp_sender.go, udp_receiver.go); the "find other
// instances on this subnet" goal is the same one
// internal/network/discovery.go solves with HTTP probing, replaced here
// with a broadcast datagram so it needs no well-known subnet scan.
package discovery

import (
	"encoding/json"
	"log"
	"net"
	"strconv"
	"sync"
	"time"

	"crosskvm/internal/types"
)

func portString(p uint16) string { return strconv.Itoa(int(p)) }

// BroadcastPort is the UDP port advertise/browse exchange datagrams on.
// Distinct from the QUIC control port (§6) so discovery can run
// independently of whether a session is already established.
const BroadcastPort = 24801

const announceInterval = 2 * time.Second

// staleAfter is how long a peer can go unseen before Browse reports it lost.
const staleAfter = 7 * time.Second

// Peer is one discovered candidate, named for internal/session to dial.
type Peer struct {
	MachineId types.MachineId
	Name      string
	Address   string // host:port of the advertiser's QUIC listener
}

// Event reports a discovered peer appearing or disappearing.
type Event struct {
	Peer Peer
	Lost bool
}

type announcement struct {
	MachineId string `json:"machine_id"`
	Name      string `json:"name"`
	Port      uint16 `json:"port"`
}

// Discovery advertises this machine and browses for others on the LAN.
type Discovery struct {
	conn *net.UDPConn
	done chan struct{}
	wg   sync.WaitGroup

	mu   sync.Mutex
	seen map[string]time.Time // machine_id string -> last seen
}

// New binds the discovery UDP socket. The same socket both broadcasts
// advertisements and receives them; crosskvm processes don't distinguish
// announcer and listener roles.
func New() (*Discovery, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: BroadcastPort})
	if err != nil {
		return nil, err
	}
	return &Discovery{conn: conn, done: make(chan struct{}), seen: make(map[string]time.Time)}, nil
}

// Advertise starts periodically broadcasting this machine's identity and
// QUIC listen port until Close is called.
func (d *Discovery) Advertise(machineId types.MachineId, name string, quicPort uint16) {
	d.wg.Add(1)
	go d.advertiseLoop(machineId, name, quicPort)
}

func (d *Discovery) advertiseLoop(machineId types.MachineId, name string, quicPort uint16) {
	defer d.wg.Done()

	payload, err := json.Marshal(announcement{MachineId: machineId.String(), Name: name, Port: quicPort})
	if err != nil {
		log.Printf("discovery: marshal announcement: %v", err)
		return
	}

	broadcastAddrs := subnetBroadcastAddrs()
	ticker := time.NewTicker(announceInterval)
	defer ticker.Stop()

	send := func() {
		for _, addr := range broadcastAddrs {
			dst := &net.UDPAddr{IP: addr, Port: BroadcastPort}
			if _, err := d.conn.WriteToUDP(payload, dst); err != nil {
				log.Printf("discovery: broadcast to %s: %v", dst, err)
			}
		}
	}

	send()
	for {
		select {
		case <-ticker.C:
			send()
		case <-d.done:
			return
		}
	}
}

// Browse starts listening for advertisements from other machines and
// returns a channel of discovery events. The channel is closed when Close
// is called.
func (d *Discovery) Browse() <-chan Event {
	events := make(chan Event, 16)
	d.wg.Add(2)
	go d.readLoop(events)
	go d.staleLoop(events)
	return events
}

func (d *Discovery) readLoop(events chan<- Event) {
	defer d.wg.Done()
	buf := make([]byte, 1024)
	for {
		n, remoteAddr, err := d.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-d.done:
				close(events)
				return
			default:
				continue
			}
		}

		var a announcement
		if err := json.Unmarshal(buf[:n], &a); err != nil {
			continue // not a crosskvm announcement; ignore
		}
		machineId, err := types.MachineIdFromString(a.MachineId)
		if err != nil {
			continue
		}

		d.mu.Lock()
		_, known := d.seen[a.MachineId]
		d.seen[a.MachineId] = time.Now()
		d.mu.Unlock()

		if !known {
			addr := net.JoinHostPort(remoteAddr.IP.String(), portString(a.Port))
			events <- Event{Peer: Peer{MachineId: machineId, Name: a.Name, Address: addr}}
		}
	}
}

func (d *Discovery) staleLoop(events chan<- Event) {
	defer d.wg.Done()
	ticker := time.NewTicker(announceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.mu.Lock()
			for id, last := range d.seen {
				if time.Since(last) > staleAfter {
					delete(d.seen, id)
					if machineId, err := types.MachineIdFromString(id); err == nil {
						events <- Event{Peer: Peer{MachineId: machineId}, Lost: true}
					}
				}
			}
			d.mu.Unlock()
		case <-d.done:
			return
		}
	}
}

// Close stops advertising and browsing and releases the socket.
func (d *Discovery) Close() error {
	close(d.done)
	err := d.conn.Close()
	d.wg.Wait()
	return err
}

// subnetBroadcastAddrs computes the IPv4 broadcast address of every
// non-loopback interface this machine has, following the teacher's
// internal/network.GetLocalIPs enumeration idiom but producing broadcast
// addresses rather than host addresses.
func subnetBroadcastAddrs() []net.IP {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}
	var out []net.IP
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipNet.IP.To4()
			if ip4 == nil {
				continue
			}
			bcast := make(net.IP, 4)
			for i := range ip4 {
				bcast[i] = ip4[i] | ^ipNet.Mask[i]
			}
			out = append(out, bcast)
		}
	}
	return out
}
