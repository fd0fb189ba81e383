package mqtt

import "github.com/netkit/netkit/core"

// EvCmd fires for every parsed packet, of any type, before the
// type-specific event below it; data is the raw *Packet. The
// type-specific events are synthesized by WireProtoHandler, one per MQTT
// packet type a client-facing handler typically cares about. PUBACK/
// PUBREC/PUBREL/PUBCOMP are handled internally to drive the QoS 1/2 ack
// flow and don't get their own event beyond EvCmd; EvAck fires once a
// PUBLISH this side sent has been fully acknowledged for its QoS level.
const (
	EvCmd core.Event = core.EvUser + 200 + iota
	EvConnack
	EvPublish
	EvSuback
	EvUnsuback
	EvPingresp
	EvAck
)

type idState struct {
	clientMode bool
	nextID     uint16
	pendingQoS2 map[uint16]bool // packet IDs awaiting PUBCOMP
}

func (st *idState) allocID() uint16 {
	st.nextID++
	if st.nextID == 0 {
		st.nextID = 1 // 0 is not a valid MQTT packet identifier
	}
	return st.nextID
}

// WireProtoHandler returns a core.Handler for Connection.ProtoHandler
// that decodes MQTT packets off Recv, fires EvCmd for every one of them,
// and either additionally fires a synthesized per-type event (CONNACK,
// PUBLISH, SUBACK, UNSUBACK, PINGRESP) or drives the QoS1/2
// acknowledgment flow internally (PUBACK completes QoS1; PUBREC→PUBREL→
// PUBCOMP completes QoS2, per the protocol's 4-packet exchange).
// clientMode is recorded in the connection's state; the handler behaves
// the same either way. Both sides answer a received PUBLISH, PUBREC or
// PUBREL with ack packets that reuse the packet ID they received, never
// allocating one of their own.
func WireProtoHandler(clientMode bool) core.Handler {
	return func(c *core.Connection, ev core.Event, data any) {
		switch ev {
		case core.EvOpen, core.EvAccept, core.EvConnect:
			Init(c, clientMode)
		case core.EvRead:
			Init(c, clientMode)
			c.ProtoData.(*idState).drain(c)
		}
	}
}

// Init attaches packet-identifier allocation state to c. WireProtoHandler
// calls this on EvOpen/EvAccept/EvConnect and again defensively on the
// first EvRead; callers that Publish or Subscribe before any of those
// events have run (there are none in the normal lifecycle) should call
// it explicitly first.
func Init(c *core.Connection, clientMode bool) {
	if _, ok := c.ProtoData.(*idState); !ok {
		c.ProtoData = &idState{clientMode: clientMode, pendingQoS2: map[uint16]bool{}}
	}
}

func (st *idState) drain(c *core.Connection) {
	for {
		buf := c.Recv.Bytes()
		pkt, ok, err := Parse(buf)
		if err != nil {
			c.Close()
			return
		}
		if !ok {
			return
		}
		st.handlePacket(c, pkt)
		c.Recv.Delete(0, pkt.Consumed)
	}
}

func (st *idState) handlePacket(c *core.Connection, p *Packet) {
	c.Fire(EvCmd, p)
	switch p.Type {
	case PacketConnack:
		if ack, err := ParseConnack(p); err == nil {
			c.Fire(EvConnack, ack)
		}
	case PacketPublish:
		pub, err := ParsePublish(p)
		if err != nil {
			return
		}
		switch pub.QoS {
		case QoS1:
			_ = c.Write(BuildPacketIDOnly(PacketPuback, pub.PacketID))
		case QoS2:
			st.pendingQoS2[pub.PacketID] = true
			_ = c.Write(BuildPacketIDOnly(PacketPubrec, pub.PacketID))
		}
		c.Fire(EvPublish, pub)
	case PacketPuback:
		if id, err := ParsePacketID(p); err == nil {
			c.Fire(EvAck, id)
		}
	case PacketPubrec:
		if id, err := ParsePacketID(p); err == nil {
			_ = c.Write(BuildPacketIDOnly(PacketPubrel, id))
		}
	case PacketPubrel:
		if id, err := ParsePacketID(p); err == nil {
			delete(st.pendingQoS2, id)
			_ = c.Write(BuildPacketIDOnly(PacketPubcomp, id))
		}
	case PacketPubcomp:
		if id, err := ParsePacketID(p); err == nil {
			c.Fire(EvAck, id)
		}
	case PacketSuback:
		if id, err := ParsePacketID(p); err == nil {
			c.Fire(EvSuback, id)
		}
	case PacketUnsuback:
		if id, err := ParsePacketID(p); err == nil {
			c.Fire(EvUnsuback, id)
		}
	case PacketPingresp:
		c.Fire(EvPingresp, nil)
	}
}

// Publish allocates a fresh packet identifier (for QoS>0) and writes a
// PUBLISH packet to c.
func Publish(c *core.Connection, topic string, payload []byte, qos QoS, retain bool) uint16 {
	Init(c, true)
	var id uint16
	if qos > QoS0 {
		id = c.ProtoData.(*idState).allocID()
	}
	_ = c.Write(BuildPublish(topic, payload, qos, retain, false, id))
	return id
}

// Subscribe allocates a fresh packet identifier and writes a SUBSCRIBE
// packet to c.
func Subscribe(c *core.Connection, filters []TopicFilter) uint16 {
	Init(c, true)
	id := c.ProtoData.(*idState).allocID()
	_ = c.Write(BuildSubscribe(id, filters))
	return id
}

// Login writes a CONNECT packet to c, initiating the MQTT session.
func Login(c *core.Connection, opt ConnectOptions) {
	_ = c.Write(BuildConnect(opt))
}
