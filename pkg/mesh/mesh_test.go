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
	"bytes"
	"context"
	"io"
	"math"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/carverauto/meshmetricsd/pkg/logger"
	"github.com/carverauto/meshmetricsd/pkg/models"
)

func TestParseNodeID(t *testing.T) {
	tests := []struct {
		input   string
		want    uint32
		wantErr bool
	}{
		{"!a1b2c3d4", 0xa1b2c3d4, false},
		{"deadbeef", 0xdeadbeef, false},
		{" !0000000a ", 10, false},
		{"", 0, true},
		{"!xyz", 0, true},
		{"!a1b2c3d4e5", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseNodeID(tt.input)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.input)
		} else {
			require.NoError(t, err, "input %q", tt.input)
			assert.Equal(t, tt.want, got, "input %q", tt.input)
		}
	}
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer

	payload := []byte{1, 2, 3, 4, 5}
	require.NoError(t, writeFrame(&buf, payload))

	got, err := readFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestReadFrame_ResyncsOnNoise(t *testing.T) {
	var buf bytes.Buffer

	// Boot noise, a stray first magic byte, then a valid frame.
	buf.Write([]byte{'b', 'o', 'o', 't', frameStart1, 'x'})

	payload := []byte{0xaa, 0xbb}
	require.NoError(t, writeFrame(&buf, payload))

	got, err := readFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestWriteFrame_TooLarge(t *testing.T) {
	var buf bytes.Buffer
	require.Error(t, writeFrame(&buf, make([]byte, maxFrameSize+1)))
}

// buildTelemetryFrame assembles a FromRadio frame carrying device metrics
// the way the radio would.
func buildTelemetryFrame(t *testing.T, from uint32, battery uint64, voltage float32) []byte {
	t.Helper()

	var dev []byte
	dev = protowire.AppendTag(dev, deviceMetricsBatteryField, protowire.VarintType)
	dev = protowire.AppendVarint(dev, battery)
	dev = protowire.AppendTag(dev, deviceMetricsVoltageField, protowire.Fixed32Type)
	dev = protowire.AppendFixed32(dev, math.Float32bits(voltage))

	var telemetry []byte
	telemetry = protowire.AppendTag(telemetry, telemetryDeviceMetricsField, protowire.BytesType)
	telemetry = protowire.AppendBytes(telemetry, dev)

	var data []byte
	data = protowire.AppendTag(data, dataPortnumField, protowire.VarintType)
	data = protowire.AppendVarint(data, portnumTelemetry)
	data = protowire.AppendTag(data, dataPayloadField, protowire.BytesType)
	data = protowire.AppendBytes(data, telemetry)

	var packet []byte
	packet = protowire.AppendTag(packet, meshPacketFromField, protowire.VarintType)
	packet = protowire.AppendVarint(packet, uint64(from))
	packet = protowire.AppendTag(packet, meshPacketDecodedField, protowire.BytesType)
	packet = protowire.AppendBytes(packet, data)

	var fromRadio []byte
	fromRadio = protowire.AppendTag(fromRadio, fromRadioPacketField, protowire.BytesType)
	fromRadio = protowire.AppendBytes(fromRadio, packet)

	return fromRadio
}

func TestDecodeFromRadio_Telemetry(t *testing.T) {
	frame := buildTelemetryFrame(t, 0xa1b2c3d4, 87, 4.1)

	packet, err := decodeFromRadio(frame)
	require.NoError(t, err)
	require.NotNil(t, packet)

	assert.Equal(t, uint32(0xa1b2c3d4), packet.from)
	assert.Equal(t, []string{"Battery", "Voltage"}, packet.reading.Keys)
	assert.Equal(t, uint64(87), packet.reading.Values["Battery"])
	assert.InDelta(t, 4.1, packet.reading.Values["Voltage"], 0.0001)
}

func TestDecodeFromRadio_NonTelemetry(t *testing.T) {
	// A FromRadio variant the daemon does not care about.
	var fromRadio []byte
	fromRadio = protowire.AppendTag(fromRadio, 8, protowire.VarintType)
	fromRadio = protowire.AppendVarint(fromRadio, 1)

	packet, err := decodeFromRadio(fromRadio)
	require.NoError(t, err)
	assert.Nil(t, packet)
}

// pipeTransport hands the client one end of an in-memory connection.
type pipeTransport struct {
	conn net.Conn
}

func (p *pipeTransport) Open(context.Context) (io.ReadWriteCloser, error) {
	return p.conn, nil
}

func (*pipeTransport) String() string { return "pipe" }

func TestClient_FetchRoundTrip(t *testing.T) {
	clientEnd, radioEnd := net.Pipe()

	c := newClient(&pipeTransport{conn: clientEnd}, logger.NewTestLogger())
	require.NoError(t, c.Connect(context.Background()))

	defer func() { _ = radioEnd.Close() }()
	defer func() { _ = c.Close() }()

	// Fake radio: answer any telemetry request with a device metrics report.
	go func() {
		if _, err := readFrame(radioEnd); err != nil {
			return
		}

		frame := buildTelemetryFrame(t, 0xa1b2c3d4, 87, 4.1)
		_ = writeFrame(radioEnd, frame)
	}()

	reading := c.Fetch(context.Background(), "!a1b2c3d4", 5*time.Second)
	require.False(t, reading.Empty())
	assert.Equal(t, uint64(87), reading.Values["Battery"])
}

func TestClient_FetchTimeout(t *testing.T) {
	clientEnd, radioEnd := net.Pipe()

	c := newClient(&pipeTransport{conn: clientEnd}, logger.NewTestLogger())
	require.NoError(t, c.Connect(context.Background()))

	defer func() { _ = radioEnd.Close() }()
	defer func() { _ = c.Close() }()

	// Radio consumes the request but never answers.
	go func() { _, _ = readFrame(radioEnd) }()

	reading := c.Fetch(context.Background(), "!deadbeef", 300*time.Millisecond)
	assert.True(t, reading.Empty())
}

func TestClient_FetchBadNodeID(t *testing.T) {
	c := newClient(&pipeTransport{}, logger.NewTestLogger())
	reading := c.Fetch(context.Background(), "not-hex", time.Second)
	assert.True(t, reading.Empty())
}

func TestNewSource_InvalidMode(t *testing.T) {
	_, err := NewSource(&Config{Mode: "carrier-pigeon"}, logger.NewTestLogger())
	require.Error(t, err)
}

func TestStaticSource(t *testing.T) {
	canned := models.NewReading()
	canned.Set("Battery", 42)

	s := &StaticSource{Readings: map[string]*models.Reading{"!a1b2c3d4": canned}}

	require.NoError(t, s.Connect(context.Background()))
	assert.False(t, s.Fetch(context.Background(), "!a1b2c3d4", time.Second).Empty())
	assert.True(t, s.Fetch(context.Background(), "!unknown", time.Second).Empty())
	require.NoError(t, s.Close())
}
