package mqtt

import "fmt"

// ConnectOptions configures a CONNECT packet.
type ConnectOptions struct {
	ClientID     string
	Username     string
	Password     string
	CleanSession bool
	KeepAlive    uint16
	WillTopic    string
	WillMessage  []byte
	WillQoS      QoS
	WillRetain   bool
}

const protocolName = "MQTT"
const protocolLevel = 4 // MQTT 3.1.1

// BuildConnect encodes a CONNECT packet, the client's Login call sends
// as the first packet on every new connection.
func BuildConnect(opt ConnectOptions) []byte {
	var flags byte
	if opt.CleanSession {
		flags |= 0x02
	}
	hasWill := opt.WillTopic != ""
	if hasWill {
		flags |= 0x04
		flags |= byte(opt.WillQoS) << 3
		if opt.WillRetain {
			flags |= 0x20
		}
	}
	if opt.Username != "" {
		flags |= 0x80
	}
	if opt.Password != "" {
		flags |= 0x40
	}

	var varHeader []byte
	varHeader = appendMQTTString(varHeader, protocolName)
	varHeader = append(varHeader, protocolLevel, flags)
	varHeader = append(varHeader, byte(opt.KeepAlive>>8), byte(opt.KeepAlive))

	var payload []byte
	payload = appendMQTTString(payload, opt.ClientID)
	if hasWill {
		payload = appendMQTTString(payload, opt.WillTopic)
		payload = append(payload, byte(len(opt.WillMessage)>>8), byte(len(opt.WillMessage)))
		payload = append(payload, opt.WillMessage...)
	}
	if opt.Username != "" {
		payload = appendMQTTString(payload, opt.Username)
	}
	if opt.Password != "" {
		payload = appendMQTTString(payload, opt.Password)
	}

	return buildPacket(PacketConnect, 0, append(varHeader, payload...))
}

// Connack is a decoded CONNACK packet.
type Connack struct {
	SessionPresent bool
	ReturnCode     ReturnCode
}

// ParseConnack decodes a CONNACK packet's payload.
func ParseConnack(p *Packet) (*Connack, error) {
	if len(p.Payload) < 2 {
		return nil, fmt.Errorf("mqtt: truncated CONNACK")
	}
	return &Connack{
		SessionPresent: p.Payload[0]&0x01 != 0,
		ReturnCode:     ReturnCode(p.Payload[1]),
	}, nil
}

// PublishPacket is a decoded PUBLISH packet.
type PublishPacket struct {
	Topic    string
	PacketID uint16 // only meaningful for QoS1/QoS2
	QoS      QoS
	Retain   bool
	Dup      bool
	Payload  []byte
}

// ParsePublish decodes a PUBLISH packet's fixed-header flags and
// variable header (topic name, and a packet identifier for QoS>0).
func ParsePublish(p *Packet) (*PublishPacket, error) {
	qos := QoS((p.Flags >> 1) & 0x03)
	topic, rest, err := mqttString(p.Payload)
	if err != nil {
		return nil, err
	}
	pub := &PublishPacket{
		Topic:  topic,
		QoS:    qos,
		Retain: p.Flags&0x01 != 0,
		Dup:    p.Flags&0x08 != 0,
	}
	if qos > QoS0 {
		if len(rest) < 2 {
			return nil, fmt.Errorf("mqtt: truncated PUBLISH packet id")
		}
		pub.PacketID = uint16(rest[0])<<8 | uint16(rest[1])
		rest = rest[2:]
	}
	pub.Payload = rest
	return pub, nil
}

// BuildPublish encodes a PUBLISH packet. packetID is ignored for QoS0.
func BuildPublish(topic string, payload []byte, qos QoS, retain, dup bool, packetID uint16) []byte {
	var flags byte
	flags |= byte(qos) << 1
	if retain {
		flags |= 0x01
	}
	if dup {
		flags |= 0x08
	}
	var body []byte
	body = appendMQTTString(body, topic)
	if qos > QoS0 {
		body = append(body, byte(packetID>>8), byte(packetID))
	}
	body = append(body, payload...)
	return buildPacket(PacketPublish, flags, body)
}

// BuildPacketIDOnly encodes PUBACK/PUBREC/PUBREL/PUBCOMP/UNSUBACK, all
// of which carry only a 2-byte packet identifier as their payload.
func BuildPacketIDOnly(t PacketType, packetID uint16) []byte {
	var flags byte
	if t == PacketPubrel {
		flags = 0x02 // reserved bits must be 0b0010 per the protocol
	}
	return buildPacket(t, flags, []byte{byte(packetID >> 8), byte(packetID)})
}

// ParsePacketID decodes the packet identifier from a PUBACK/PUBREC/
// PUBREL/PUBCOMP/UNSUBACK payload.
func ParsePacketID(p *Packet) (uint16, error) {
	if len(p.Payload) < 2 {
		return 0, fmt.Errorf("mqtt: truncated packet identifier")
	}
	return uint16(p.Payload[0])<<8 | uint16(p.Payload[1]), nil
}

// TopicFilter is one entry in a SUBSCRIBE packet's payload.
type TopicFilter struct {
	Filter string
	QoS    QoS
}

// BuildSubscribe encodes a SUBSCRIBE packet.
func BuildSubscribe(packetID uint16, filters []TopicFilter) []byte {
	body := []byte{byte(packetID >> 8), byte(packetID)}
	for _, f := range filters {
		body = appendMQTTString(body, f.Filter)
		body = append(body, byte(f.QoS))
	}
	return buildPacket(PacketSubscribe, 0x02, body)
}

// ParseSubscribe decodes a SUBSCRIBE packet's packet identifier and
// topic-filter list.
func ParseSubscribe(p *Packet) (packetID uint16, filters []TopicFilter, err error) {
	if len(p.Payload) < 2 {
		return 0, nil, fmt.Errorf("mqtt: truncated SUBSCRIBE")
	}
	packetID = uint16(p.Payload[0])<<8 | uint16(p.Payload[1])
	rest := p.Payload[2:]
	for len(rest) > 0 {
		var filter string
		filter, rest, err = mqttString(rest)
		if err != nil {
			return 0, nil, err
		}
		if len(rest) < 1 {
			return 0, nil, fmt.Errorf("mqtt: truncated SUBSCRIBE QoS byte")
		}
		filters = append(filters, TopicFilter{Filter: filter, QoS: QoS(rest[0])})
		rest = rest[1:]
	}
	return packetID, filters, nil
}

// BuildSuback encodes a SUBACK packet; codes[i] is 0x80 for a rejected
// subscription.
func BuildSuback(packetID uint16, codes []byte) []byte {
	body := append([]byte{byte(packetID >> 8), byte(packetID)}, codes...)
	return buildPacket(PacketSuback, 0, body)
}

// BuildUnsubscribe encodes an UNSUBSCRIBE packet.
func BuildUnsubscribe(packetID uint16, filters []string) []byte {
	body := []byte{byte(packetID >> 8), byte(packetID)}
	for _, f := range filters {
		body = appendMQTTString(body, f)
	}
	return buildPacket(PacketUnsubscribe, 0x02, body)
}

// ParseUnsubscribe decodes an UNSUBSCRIBE packet's packet identifier and
// topic-filter list.
func ParseUnsubscribe(p *Packet) (packetID uint16, filters []string, err error) {
	if len(p.Payload) < 2 {
		return 0, nil, fmt.Errorf("mqtt: truncated UNSUBSCRIBE")
	}
	packetID = uint16(p.Payload[0])<<8 | uint16(p.Payload[1])
	rest := p.Payload[2:]
	for len(rest) > 0 {
		var filter string
		filter, rest, err = mqttString(rest)
		if err != nil {
			return 0, nil, err
		}
		filters = append(filters, filter)
	}
	return packetID, filters, nil
}

// BuildPingreq/BuildPingresp/BuildDisconnect encode the three
// no-payload, no-variable-header packet types.
func BuildPingreq() []byte    { return buildPacket(PacketPingreq, 0, nil) }
func BuildPingresp() []byte   { return buildPacket(PacketPingresp, 0, nil) }
func BuildDisconnect() []byte { return buildPacket(PacketDisconnect, 0, nil) }

func buildPacket(t PacketType, flags byte, payload []byte) []byte {
	dst := []byte{byte(t)<<4 | flags}
	dst = encodeRemainingLength(dst, len(payload))
	return append(dst, payload...)
}
