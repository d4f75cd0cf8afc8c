package udp

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeAndReply(t *testing.T) {
	srv, err := Listen("udp4", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	received := make(chan Datagram, 1)
	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(ctx, func(_ context.Context, dg Datagram) {
			received <- dg
			_ = srv.Send(dg.Remote, append([]byte("re:"), dg.Payload...))
		})
	}()

	client, err := net.DialUDP("udp4", nil, net.UDPAddrFromAddrPort(srv.LocalAddr()))
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Write([]byte("hi"))
	require.NoError(t, err)

	select {
	case dg := <-received:
		assert.Equal(t, []byte("hi"), dg.Payload)
		assert.Equal(t, client.LocalAddr().(*net.UDPAddr).Port, int(dg.Remote.Port()))
		if dg.Local.IsValid() {
			assert.Equal(t, "127.0.0.1", dg.Local.Addr().String())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("datagram not received")
	}

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 64)
	n, err := client.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "re:hi", string(buf[:n]))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	assert.NoError(t, srv.Close())
}

func TestListenInvalidAddress(t *testing.T) {
	_, err := Listen("udp4", "not-an-address:xx")
	assert.Error(t, err)
}
