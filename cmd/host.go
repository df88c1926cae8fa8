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

package cmd

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/flowd/flow/common"
	"github.com/flowd/flow/confengine"
	"github.com/flowd/flow/connector"
	"github.com/flowd/flow/event"
	"github.com/flowd/flow/graph"
	"github.com/flowd/flow/ipservice"
	"github.com/flowd/flow/logger"
	"github.com/flowd/flow/shunt"
)

// NodeConfig describes one connector in a pipeline's chain. Kind
// selects which transport the node connects over; the matching fields
// (File*/Tcp*/Udp*) configure it, and Properties carries anything a
// future element kind needs that doesn't warrant its own field, read
// through the spf13/cast-backed accessors of common.Options.
type NodeConfig struct {
	Name string `config:"name"`
	Kind string `config:"kind"`

	FilePath    string `config:"filePath"`
	FileMode    string `config:"fileAccessMode"`
	FileCreate  bool   `config:"fileCreate"`
	FileReplace bool   `config:"fileReplace"`

	TCPRemoteHost string `config:"tcpRemoteHost"`
	TCPRemotePort int    `config:"tcpRemotePort"`
	TCPLocalPort  int    `config:"tcpLocalPort"`
	TCPListen     bool   `config:"tcpListen"`

	UDPLocalHost  string `config:"udpLocalHost"`
	UDPLocalPort  int    `config:"udpLocalPort"`
	UDPRemoteHost string `config:"udpRemoteHost"`
	UDPRemotePort int    `config:"udpRemotePort"`

	Properties common.Options `config:"properties"`
}

// Config is the top-level "pipeline" section of a host's config file:
// an ordered chain of connectors, each wired output-to-input to the
// next.
type Config struct {
	Pipeline []NodeConfig `config:"pipeline"`
}

// Host owns the shunt runtime and the chain of connectors a config
// file assembled, the same role controller.Controller plays for a
// packet-sniffing pipeline.
type Host struct {
	runtime *shunt.Runtime
	nodes   []*connector.Connector
}

// NewHost builds the connector chain described by conf's "pipeline"
// section but does not open any of it: each connector waits for its
// own stream.begin, pushed by Start.
func NewHost(conf *confengine.Config) (*Host, error) {
	var cfg Config
	if err := conf.UnpackChild("pipeline", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unpack pipeline config")
	}

	rt := shunt.NewRuntime()
	h := &Host{runtime: rt}

	for i, nc := range cfg.Pipeline {
		c := connector.NewConnector(rt)
		name := nc.Name
		if name == "" {
			name = fmt.Sprintf("%s[%d]", nc.Kind, i)
		}
		c.SetName(name)

		if err := applyNodeOp(c, nc); err != nil {
			return nil, errors.Wrapf(err, "node %q", name)
		}

		if len(h.nodes) > 0 {
			graph.ConnectSimplexSimplex(h.nodes[len(h.nodes)-1], c)
		}
		h.nodes = append(h.nodes, c)
	}

	return h, nil
}

// applyNodeOp pushes the FileConnectOp/TcpConnectOp/UdpConnectOp that
// nc.Kind calls for onto c's own input pad; InputPad().Push is legal
// whether or not a peer is wired yet, so this can run before or after
// the chain's graph.ConnectSimplexSimplex calls.
func applyNodeOp(c *connector.Connector, nc NodeConfig) error {
	switch nc.Kind {
	case "file":
		mode := event.AccessReadWrite
		switch nc.FileMode {
		case "read":
			mode = event.AccessReadOnly
		case "write":
			mode = event.AccessWriteOnly
		}
		c.InputPad().Push(event.Packet(event.FileConnectOp{
			Path:       nc.FilePath,
			AccessMode: mode,
			Create:     nc.FileCreate,
			Replace:    nc.FileReplace,
		}))
	case "tcp":
		if nc.TCPListen {
			return errors.New("tcp listener nodes are not yet supported in a pipeline chain")
		}
		remote := ipservice.NewService("", nc.TCPRemotePort)
		if addr, ok := ipservice.ParseAddress(nc.TCPRemoteHost); ok {
			remote.AddAddress(addr)
		}
		c.InputPad().Push(event.Packet(event.TcpConnectOp{
			Remote:    remote,
			LocalPort: nc.TCPLocalPort,
		}))
	case "udp":
		var local, remote *ipservice.Service
		if nc.UDPLocalPort != 0 || nc.UDPLocalHost != "" {
			local = ipservice.NewService("", nc.UDPLocalPort)
			if addr, ok := ipservice.ParseAddress(nc.UDPLocalHost); ok {
				local.AddAddress(addr)
			}
		}
		if nc.UDPRemoteHost != "" {
			remote = ipservice.NewService("", nc.UDPRemotePort)
			if addr, ok := ipservice.ParseAddress(nc.UDPRemoteHost); ok {
				remote.AddAddress(addr)
			}
		}
		c.InputPad().Push(event.Packet(event.UdpConnectOp{Local: local, Remote: remote}))
	default:
		return errors.Errorf("unknown connector kind %q", nc.Kind)
	}
	return nil
}

// Start triggers every node's connect by pushing stream.begin onto
// each one's own input pad, independent of the chain's peer wiring.
func (h *Host) Start() error {
	for _, c := range h.nodes {
		c.InputPad().Push(event.BeginPacket())
	}
	logger.Infof("host started with %d node(s)", len(h.nodes))
	return nil
}

// Stop tears down every node's shunt by pushing stream.end, then
// shuts down the runtime.
func (h *Host) Stop() {
	for _, c := range h.nodes {
		c.InputPad().Push(event.EndPacket())
	}
	h.runtime.Shutdown()
}

// Reload rebuilds the node chain from conf and swaps it in, stopping
// the previous chain once the new one has been constructed
// successfully. A failed reload leaves the running host untouched.
func (h *Host) Reload(conf *confengine.Config) error {
	next, err := NewHost(conf)
	if err != nil {
		return err
	}
	h.Stop()
	h.runtime = next.runtime
	h.nodes = next.nodes
	return next.Start()
}

// Nodes returns the host's assembled connector chain, in pipeline
// order, for introspection by the graph subcommand.
func (h *Host) Nodes() []*connector.Connector {
	return h.nodes
}
