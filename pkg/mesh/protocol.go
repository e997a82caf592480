/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package mesh

import (
	"encoding/binary"
	"errors"
	"io"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/carverauto/meshmetricsd/pkg/models"
)

// Meshtastic client stream framing: two magic bytes, a big-endian length,
// then a protobuf payload (ToRadio client->radio, FromRadio radio->client).
const (
	frameStart1  = 0x94
	frameStart2  = 0xc3
	maxFrameSize = 512
)

// Wire field numbers for the small protobuf subset the daemon speaks.
// Hand-framed with protowire; the full generated bindings would drag the
// entire Meshtastic schema in for five messages.
const (
	toRadioPacketField = 1

	fromRadioPacketField = 2

	meshPacketFromField    = 1
	meshPacketToField      = 2
	meshPacketDecodedField = 4
	meshPacketIDField      = 6

	dataPortnumField      = 1
	dataPayloadField      = 2
	dataWantResponseField = 3

	portnumTelemetry = 67

	telemetryDeviceMetricsField      = 2
	telemetryEnvironmentMetricsField = 3

	deviceMetricsBatteryField     = 1
	deviceMetricsVoltageField     = 2
	deviceMetricsChanUtilField    = 3
	deviceMetricsAirUtilTxField   = 4
	deviceMetricsUptimeField      = 5

	envMetricsTemperatureField = 1
	envMetricsHumidityField    = 2
	envMetricsPressureField    = 3
)

var (
	errFrameTooLarge = errors.New("frame exceeds maximum size")
	errTruncated     = errors.New("truncated protobuf field")
)

// writeFrame sends one framed payload.
func writeFrame(w io.Writer, payload []byte) error {
	if len(payload) > maxFrameSize {
		return errFrameTooLarge
	}

	header := []byte{frameStart1, frameStart2, byte(len(payload) >> 8), byte(len(payload))}

	if _, err := w.Write(header); err != nil {
		return err
	}

	_, err := w.Write(payload)

	return err
}

// readFrame reads one framed payload, resynchronizing on the magic bytes so
// boot noise on a serial line cannot wedge the reader.
func readFrame(r io.Reader) ([]byte, error) {
	var b [1]byte

	for {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, err
		}

		if b[0] != frameStart1 {
			continue
		}

		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, err
		}

		if b[0] != frameStart2 {
			continue
		}

		var lenBuf [2]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return nil, err
		}

		size := int(binary.BigEndian.Uint16(lenBuf[:]))
		if size > maxFrameSize {
			// Length is implausible; treat the match as line noise.
			continue
		}

		payload := make([]byte, size)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, err
		}

		return payload, nil
	}
}

// encodeTelemetryRequest builds the ToRadio frame that asks nodeNum for its
// telemetry: an empty TELEMETRY_APP payload with want_response set.
func encodeTelemetryRequest(nodeNum, packetID uint32) []byte {
	var data []byte
	data = protowire.AppendTag(data, dataPortnumField, protowire.VarintType)
	data = protowire.AppendVarint(data, portnumTelemetry)
	data = protowire.AppendTag(data, dataPayloadField, protowire.BytesType)
	data = protowire.AppendBytes(data, nil)
	data = protowire.AppendTag(data, dataWantResponseField, protowire.VarintType)
	data = protowire.AppendVarint(data, 1)

	var packet []byte
	packet = protowire.AppendTag(packet, meshPacketToField, protowire.VarintType)
	packet = protowire.AppendVarint(packet, uint64(nodeNum))
	packet = protowire.AppendTag(packet, meshPacketDecodedField, protowire.BytesType)
	packet = protowire.AppendBytes(packet, data)
	packet = protowire.AppendTag(packet, meshPacketIDField, protowire.VarintType)
	packet = protowire.AppendVarint(packet, uint64(packetID))

	var toRadio []byte
	toRadio = protowire.AppendTag(toRadio, toRadioPacketField, protowire.BytesType)
	toRadio = protowire.AppendBytes(toRadio, packet)

	return toRadio
}

// telemetryPacket is a decoded telemetry report from one node.
type telemetryPacket struct {
	from    uint32
	reading *models.Reading
}

// decodeFromRadio extracts a telemetry packet from a FromRadio frame.
// Returns nil for every other payload variant.
func decodeFromRadio(frame []byte) (*telemetryPacket, error) {
	packet, err := fieldBytes(frame, fromRadioPacketField)
	if err != nil || packet == nil {
		return nil, err
	}

	from, err := fieldVarint(packet, meshPacketFromField)
	if err != nil {
		return nil, err
	}

	decoded, err := fieldBytes(packet, meshPacketDecodedField)
	if err != nil || decoded == nil {
		return nil, err
	}

	portnum, err := fieldVarint(decoded, dataPortnumField)
	if err != nil || portnum != portnumTelemetry {
		return nil, err
	}

	payload, err := fieldBytes(decoded, dataPayloadField)
	if err != nil || payload == nil {
		return nil, err
	}

	reading, err := decodeTelemetry(payload)
	if err != nil {
		return nil, err
	}

	return &telemetryPacket{from: uint32(from), reading: reading}, nil
}

// decodeTelemetry maps a Telemetry payload onto reading keys. Key names are
// the daemon's stable metric vocabulary, not the protobuf field names.
func decodeTelemetry(payload []byte) (*models.Reading, error) {
	reading := models.NewReading()

	if dev, err := fieldBytes(payload, telemetryDeviceMetricsField); err != nil {
		return nil, err
	} else if dev != nil {
		if v, ok, err := varintField(dev, deviceMetricsBatteryField); err != nil {
			return nil, err
		} else if ok {
			reading.Set("Battery", v)
		}

		if v, ok, err := floatField(dev, deviceMetricsVoltageField); err != nil {
			return nil, err
		} else if ok {
			reading.Set("Voltage", v)
		}

		if v, ok, err := floatField(dev, deviceMetricsChanUtilField); err != nil {
			return nil, err
		} else if ok {
			reading.Set("utilization", v)
		}

		if v, ok, err := floatField(dev, deviceMetricsAirUtilTxField); err != nil {
			return nil, err
		} else if ok {
			reading.Set("airtime_tx", v)
		}

		if v, ok, err := varintField(dev, deviceMetricsUptimeField); err != nil {
			return nil, err
		} else if ok {
			reading.Set("uptime", v)
		}
	}

	if env, err := fieldBytes(payload, telemetryEnvironmentMetricsField); err != nil {
		return nil, err
	} else if env != nil {
		if v, ok, err := floatField(env, envMetricsTemperatureField); err != nil {
			return nil, err
		} else if ok {
			reading.Set("temperature", v)
		}

		if v, ok, err := floatField(env, envMetricsHumidityField); err != nil {
			return nil, err
		} else if ok {
			reading.Set("humidity", v)
		}

		if v, ok, err := floatField(env, envMetricsPressureField); err != nil {
			return nil, err
		} else if ok {
			reading.Set("pressure", v)
		}
	}

	return reading, nil
}

// fieldBytes returns the last occurrence of a length-delimited field, or nil
// when absent.
func fieldBytes(msg []byte, field protowire.Number) ([]byte, error) {
	var out []byte

	err := walkFields(msg, func(num protowire.Number, typ protowire.Type, value []byte, _ uint64) {
		if num == field && typ == protowire.BytesType {
			out = value
		}
	})

	return out, err
}

// fieldVarint returns the last occurrence of a varint field, or 0 when absent.
func fieldVarint(msg []byte, field protowire.Number) (uint64, error) {
	v, _, err := varintField(msg, field)
	return v, err
}

func varintField(msg []byte, field protowire.Number) (uint64, bool, error) {
	var (
		out   uint64
		found bool
	)

	err := walkFields(msg, func(num protowire.Number, typ protowire.Type, _ []byte, value uint64) {
		if num == field && typ == protowire.VarintType {
			out = value
			found = true
		}
	})

	return out, found, err
}

func floatField(msg []byte, field protowire.Number) (float64, bool, error) {
	var (
		out   float64
		found bool
	)

	err := walkFields(msg, func(num protowire.Number, typ protowire.Type, _ []byte, value uint64) {
		if num == field && typ == protowire.Fixed32Type {
			out = float64(math.Float32frombits(uint32(value)))
			found = true
		}
	})

	return out, found, err
}

// walkFields iterates a message's top-level fields. Bytes fields pass their
// payload, scalar fields their numeric value.
func walkFields(msg []byte, visit func(num protowire.Number, typ protowire.Type, bytesValue []byte, scalarValue uint64)) error {
	for len(msg) > 0 {
		num, typ, n := protowire.ConsumeTag(msg)
		if n < 0 {
			return errTruncated
		}

		msg = msg[n:]

		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(msg)
			if n < 0 {
				return errTruncated
			}

			visit(num, typ, nil, v)
			msg = msg[n:]
		case protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(msg)
			if n < 0 {
				return errTruncated
			}

			visit(num, typ, nil, uint64(v))
			msg = msg[n:]
		case protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(msg)
			if n < 0 {
				return errTruncated
			}

			visit(num, typ, nil, v)
			msg = msg[n:]
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(msg)
			if n < 0 {
				return errTruncated
			}

			visit(num, typ, v, 0)
			msg = msg[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, msg)
			if n < 0 {
				return errTruncated
			}

			msg = msg[n:]
		}
	}

	return nil
}
