package metrics

import (
	"net"
	"testing"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithoutAddrIsNoOp(t *testing.T) {
	c, err := New("", GlobalTags("svc", "test"))
	require.NoError(t, err)

	c.Timing(RequestLatency, time.Millisecond, nil)
	c.Count(RequestTotal, 1, nil)
	assert.NoError(t, c.Flush())
	assert.NoError(t, c.Close())
}

func TestTimingIsSentOverUDP(t *testing.T) {
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer conn.Close()

	c, err := New(conn.LocalAddr().String(), GlobalTags("svc", "test"),
		statsd.WithoutTelemetry(), statsd.WithoutClientSideAggregation())
	require.NoError(t, err)
	defer c.Close()

	c.Timing(StageLatency, 12*time.Millisecond, []string{"stage:score"})
	require.NoError(t, c.Flush())

	buf := make([]byte, 1024)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err := conn.ReadFrom(buf)
	require.NoError(t, err)

	payload := string(buf[:n])
	assert.Contains(t, payload, StageLatency+":12")
	assert.Contains(t, payload, "stage:score")
	assert.Contains(t, payload, "service:svc")
}

func TestGlobalTags(t *testing.T) {
	assert.Equal(t, []string{"env:prod", "service:api"}, GlobalTags("api", "prod"))
}
