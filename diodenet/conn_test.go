// SPDX-License-Identifier: GPL-3.0-or-later

package diodenet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/rbmk-project/common/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newWrapperForTesting returns a wrapped mock conn and the buffer
// collecting its JSON log records.
func newWrapperForTesting(mock *mocks.Conn) (net.Conn, *bytes.Buffer) {
	var buf bytes.Buffer
	fixedTime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	nx := &Network{
		Logger:  logger,
		TimeNow: func() time.Time { return fixedTime },
	}
	return WrapConn(context.Background(), nx, mock), &buf
}

// lastRecord decodes the last JSON record in buf.
func lastRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &record))
	return record
}

func TestConnWrapperRead(t *testing.T) {
	mock := &mocks.Conn{
		MockRemoteAddr: func() net.Addr {
			return &net.TCPAddr{IP: net.ParseIP("10.0.0.1"), Port: 7000}
		},
		MockRead: func(buf []byte) (int, error) {
			copy(buf, "abcd")
			return 4, nil
		},
	}
	conn, buf := newWrapperForTesting(mock)

	data := make([]byte, 16)
	count, err := conn.Read(data)
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	record := lastRecord(t, buf)
	assert.Equal(t, "readDone", record["msg"])
	assert.Equal(t, float64(4), record["ioBytesCount"])
	assert.Equal(t, "10.0.0.1:7000", record["remoteAddr"])
}

func TestConnWrapperWrite(t *testing.T) {
	expected := errors.New("mocked write error")
	mock := &mocks.Conn{
		MockRemoteAddr: func() net.Addr { return nil },
		MockWrite: func(data []byte) (int, error) {
			return 0, expected
		},
	}
	conn, buf := newWrapperForTesting(mock)

	_, err := conn.Write([]byte("abcd"))
	assert.ErrorIs(t, err, expected)

	record := lastRecord(t, buf)
	assert.Equal(t, "writeDone", record["msg"])
	assert.Equal(t, expected.Error(), record["err"])
	assert.Equal(t, "EGENERIC", record["errClass"])
}

func TestConnWrapperClose(t *testing.T) {
	calls := 0
	mock := &mocks.Conn{
		MockRemoteAddr: func() net.Addr { return nil },
		MockClose: func() error {
			calls++
			return nil
		},
	}
	conn, buf := newWrapperForTesting(mock)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close()) // second close is a no-op
	assert.Equal(t, 1, calls)

	record := lastRecord(t, buf)
	assert.Equal(t, "closeDone", record["msg"])
}

func TestTune(t *testing.T) {
	t.Run("non-TCP connections are left untouched", func(t *testing.T) {
		client, server := net.Pipe()
		defer client.Close()
		defer server.Close()
		assert.NoError(t, Tune(client))
	})

	t.Run("TCP connection", func(t *testing.T) {
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		defer listener.Close()
		go func() {
			conn, err := listener.Accept()
			if err == nil {
				defer conn.Close()
			}
		}()

		conn, err := net.Dial("tcp", listener.Addr().String())
		require.NoError(t, err)
		defer conn.Close()

		assert.NoError(t, Tune(conn))
	})
}
