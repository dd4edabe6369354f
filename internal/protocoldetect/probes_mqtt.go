package protocoldetect

import "fmt"

// mqttProbe recognizes an MQTT CONNECT packet (v3.1 "MQIsdp" or v3.1.1/v5
// "MQTT" protocol name).
type mqttProbe struct{}

func (mqttProbe) Name() string             { return "mqtt" }
func (mqttProbe) Supported() []ProtocolTag { return []ProtocolTag{MQTT} }
func (mqttProbe) MinWindow() int           { return 14 }

func (p mqttProbe) Probe(window []byte) Outcome {
	if len(window) < p.MinWindow() {
		return outcomeNeedMore(p.MinWindow())
	}
	if !matchMQTTConnect(window) {
		return outcomeNotDetected()
	}

	_, off, ok := decodeVarLength(window, 1)
	if !ok {
		return outcomeNotDetected()
	}
	nameLen := int(window[off])<<8 | int(window[off+1])
	name := string(window[off+2 : off+2+nameLen])

	info := ProtocolInfo{Tag: MQTT, Features: NewOrderedMap(), Metadata: NewOrderedMap()}
	info.Features.Set("protocol_name", name)
	if levelOff := off + 2 + nameLen; levelOff < len(window) {
		info.Features.Set("protocol_level", fmt.Sprintf("%d", window[levelOff]))
	}
	info.Confidence = 0.88
	return outcomeDetected(info)
}
