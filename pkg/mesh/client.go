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
	"context"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/carverauto/meshmetricsd/pkg/logger"
	"github.com/carverauto/meshmetricsd/pkg/models"
)

const (
	// Responses rarely take longer than this; the Python client caps its
	// wait the same way.
	maxFetchWait = 15 * time.Second

	fetchPollStep = 250 * time.Millisecond
)

// transport is a byte pipe to the radio.
type transport interface {
	Open(ctx context.Context) (io.ReadWriteCloser, error)
	String() string
}

// client implements Source over a framed transport. A reader goroutine
// decodes incoming telemetry into a per-node store; Fetch sends a request
// and waits for the store to pick up a fresh reading.
type client struct {
	transport transport
	logger    logger.Logger

	mu       sync.Mutex
	conn     io.ReadWriteCloser
	packetID uint32

	storeMu sync.RWMutex
	store   map[uint32]storedReading

	readerDone chan struct{}
	closeOnce  sync.Once
}

type storedReading struct {
	reading    *models.Reading
	receivedAt time.Time
}

func newClient(t transport, log logger.Logger) *client {
	return &client{
		transport: t,
		logger:    log,
		packetID:  rand.Uint32(),
		store:     make(map[uint32]storedReading),
	}
}

// Connect opens the transport and starts the reader.
func (c *client) Connect(ctx context.Context) error {
	conn, err := c.transport.Open(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.readerDone = make(chan struct{})
	c.mu.Unlock()

	go c.readLoop(conn)

	c.logger.Info().Str("transport", c.transport.String()).Msg("Connected to Meshtastic device")

	return nil
}

// Fetch requests telemetry from a node and waits up to timeout (capped) for
// a fresh reading. Any failure yields an empty reading, never an error.
func (c *client) Fetch(ctx context.Context, nodeID string, timeout time.Duration) *models.Reading {
	nodeNum, err := ParseNodeID(nodeID)
	if err != nil {
		c.logger.Warn().Err(err).Str("node", nodeID).Msg("Skipping unparseable node id")
		return models.NewReading()
	}

	if timeout <= 0 || timeout > maxFetchWait {
		timeout = maxFetchWait
	}

	requestedAt := time.Now()

	if err := c.sendTelemetryRequest(nodeNum); err != nil {
		c.logger.Debug().Err(err).Str("node", nodeID).Msg("Telemetry request failed")
		return models.NewReading()
	}

	deadline := time.After(timeout)

	for {
		select {
		case <-ctx.Done():
			return c.latest(nodeNum, requestedAt)
		case <-deadline:
			return c.latest(nodeNum, requestedAt)
		case <-time.After(fetchPollStep):
			if r := c.latest(nodeNum, requestedAt); !r.Empty() {
				return r
			}
		}
	}
}

// Close shuts the transport down. Safe to call more than once.
func (c *client) Close() error {
	var err error

	c.closeOnce.Do(func() {
		c.mu.Lock()
		conn := c.conn
		done := c.readerDone
		c.mu.Unlock()

		if conn != nil {
			err = conn.Close()
		}

		if done != nil {
			<-done
		}
	})

	return err
}

func (c *client) sendTelemetryRequest(nodeNum uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.packetID++

	return writeFrame(c.conn, encodeTelemetryRequest(nodeNum, c.packetID))
}

// latest returns the node's reading if it arrived after requestedAt.
func (c *client) latest(nodeNum uint32, requestedAt time.Time) *models.Reading {
	c.storeMu.RLock()
	defer c.storeMu.RUnlock()

	if stored, ok := c.store[nodeNum]; ok && stored.receivedAt.After(requestedAt) {
		return stored.reading
	}

	return models.NewReading()
}

func (c *client) readLoop(conn io.Reader) {
	defer close(c.readerDone)

	for {
		frame, err := readFrame(conn)
		if err != nil {
			c.logger.Debug().Err(err).Msg("Radio stream closed")
			return
		}

		packet, err := decodeFromRadio(frame)
		if err != nil {
			c.logger.Debug().Err(err).Msg("Dropping undecodable frame")
			continue
		}

		if packet == nil || packet.reading.Empty() {
			continue
		}

		c.storeMu.Lock()
		c.store[packet.from] = storedReading{reading: packet.reading, receivedAt: time.Now()}
		c.storeMu.Unlock()
	}
}
