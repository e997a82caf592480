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
	"fmt"
	"io"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// tcpTransport connects to a radio's network API port.
type tcpTransport struct {
	address string
}

func (t *tcpTransport) Open(ctx context.Context) (io.ReadWriteCloser, error) {
	var d net.Dialer

	conn, err := d.DialContext(ctx, "tcp", t.address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to '%s': %w", t.address, err)
	}

	return conn, nil
}

func (t *tcpTransport) String() string {
	return "tcp " + t.address
}

// serialTransport opens a local serial device in raw mode at the radio's
// fixed 115200 8N1 line settings.
type serialTransport struct {
	device string
}

func (t *serialTransport) Open(_ context.Context) (io.ReadWriteCloser, error) {
	f, err := os.OpenFile(t.device, os.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial device '%s': %w", t.device, err)
	}

	if err := configureSerial(int(f.Fd())); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to configure serial device '%s': %w", t.device, err)
	}

	return f, nil
}

func (t *serialTransport) String() string {
	return "serial " + t.device
}

func configureSerial(fd int) error {
	tio, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return err
	}

	// Raw mode, 115200 8N1, blocking reads that return as soon as one byte
	// is available.
	tio.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	tio.Oflag &^= unix.OPOST
	tio.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	tio.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB
	tio.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL
	tio.Cc[unix.VMIN] = 1
	tio.Cc[unix.VTIME] = 0

	tio.Cflag &^= unix.CBAUD
	tio.Cflag |= unix.B115200
	tio.Ispeed = unix.B115200
	tio.Ospeed = unix.B115200

	return unix.IoctlSetTermios(fd, unix.TCSETS, tio)
}
