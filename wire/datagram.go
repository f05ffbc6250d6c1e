package wire

import (
	"encoding/binary"
	"errors"
	"net"
)

// BufferSize is the fixed chunk size used to fragment a logical IPC message
// across multiple UDP datagrams.
const BufferSize = 10240

// SendDatagram fragments a length-prefixed payload across one or more
// best-effort UDP datagrams of at most BufferSize bytes each. There is no
// sequencing: fragments must arrive in send order, which holds on loopback
// and lossless LAN segments only.
func SendDatagram(conn *net.UDPConn, payload []byte, addr *net.UDPAddr) error {
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(payload)))
	msg := append(hdr[:], payload...)
	for len(msg) > 0 {
		n := BufferSize
		if n > len(msg) {
			n = len(msg)
		}
		var err error
		if addr != nil {
			_, err = conn.WriteToUDP(msg[:n], addr)
		} else {
			_, err = conn.Write(msg[:n])
		}
		if err != nil {
			return err
		}
		msg = msg[n:]
	}
	return nil
}

// RecvDatagram reassembles a logical message fragmented by SendDatagram.
func RecvDatagram(conn *net.UDPConn) (payload []byte, from *net.UDPAddr, err error) {
	buf := make([]byte, BufferSize)
	n, from, err := conn.ReadFromUDP(buf)
	if err != nil {
		return nil, nil, err
	}
	if n < 4 {
		return nil, nil, errors.New("wire: short datagram, missing length prefix")
	}
	total := binary.LittleEndian.Uint32(buf[:4])
	payload = append(payload, buf[4:n]...)
	for uint32(len(payload)) < total {
		n, _, err = conn.ReadFromUDP(buf)
		if err != nil {
			return nil, nil, err
		}
		payload = append(payload, buf[:n]...)
	}
	return payload[:total], from, nil
}
