// Copyright 2025 The packetd Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tlsproto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowd/flow/dispatcher"
	"github.com/flowd/flow/event"
	"github.com/flowd/flow/pad"
	"github.com/flowd/flow/packet"
)

func selfSignedCert(t *testing.T) tls.Certificate {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "tlsproto-test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key, Leaf: cert}
}

// collector is a minimal pad.Owner used to observe a TlsProto's
// upstream output without a second full element.
type collector struct {
	in   *pad.InputPad
	data chan []byte
}

func newCollector() *collector {
	c := &collector{data: make(chan []byte, 32)}
	c.in = pad.NewInputPad(c)
	return c
}

func (c *collector) DispatchInput(in *pad.InputPad) {
	for {
		p := in.QueuedPacket()
		if p == nil {
			return
		}
		if p.Format() == packet.Buffer {
			c.data <- append([]byte(nil), p.Data()...)
		}
		p.Unref()
	}
}

func (c *collector) DispatchOutputBlocked(*pad.OutputPad)   {}
func (c *collector) DispatchOutputUnblocked(*pad.OutputPad) {}
func (c *collector) EnterDispatch()                         {}
func (c *collector) LeaveDispatch()                         {}

func TestHandshakeThenEcho(t *testing.T) {
	cert := selfSignedCert(t)
	pool := x509.NewCertPool()
	pool.AddCert(cert.Leaf)

	serverConfig := &tls.Config{Certificates: []tls.Certificate{cert}}
	clientConfig := &tls.Config{RootCAs: pool, ServerName: "localhost"}

	disp := dispatcher.NewDefault()
	defer disp.Close()

	client := NewTlsProto(disp, clientConfig, false)
	server := NewTlsProto(disp, serverConfig, true)

	// Wire ciphertext back-to-back: client's downstream peer is the
	// server's downstream peer, in both directions.
	pad.Connect(client.DownstreamOutputPad(), server.DownstreamInputPad())
	pad.Connect(server.DownstreamOutputPad(), client.DownstreamInputPad())

	clientOut := newCollector()
	serverOut := newCollector()
	pad.Connect(client.UpstreamOutputPad(), clientOut.in)
	pad.Connect(server.UpstreamOutputPad(), serverOut.in)

	// Both downstream transports are already "up" from the element's
	// point of view — there is no real socket underneath in this test.
	client.DownstreamInputPad().Push(event.BeginPacket())
	server.DownstreamInputPad().Push(event.BeginPacket())

	require.Eventually(t, func() bool {
		return server.DownstreamState() == DownstreamOpen && client.DownstreamState() == DownstreamOpen
	}, 2*time.Second, 10*time.Millisecond, "handshake never completed")

	server.UpstreamInputPad().Push(packet.NewBuffer([]byte("hello")))

	select {
	case got := <-clientOut.data:
		assert.Equal(t, "hello", string(got))
	case <-time.After(2 * time.Second):
		t.Fatal("client never received decrypted data")
	}

	client.UpstreamInputPad().Push(packet.NewBuffer([]byte("world")))

	select {
	case got := <-serverOut.data:
		assert.Equal(t, "world", string(got))
	case <-time.After(2 * time.Second):
		t.Fatal("server never received decrypted data")
	}
}
