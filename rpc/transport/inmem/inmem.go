package inmem

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/qkv-io/qKV/rpc/common"
	"github.com/qkv-io/qKV/rpc/transport"
)

// Network is an in-process fabric connecting inmem transports by endpoint
// name. Requests are dispatched as direct function calls, and endpoints can
// be partitioned to simulate node failures.
type Network struct {
	mu          sync.RWMutex
	handlers    map[string]transport.ServerHandleFunc
	partitioned map[string]bool
	servers     []*serverTransport
	closed      bool
}

// NewNetwork creates an empty fabric.
func NewNetwork() *Network {
	return &Network{
		handlers:    make(map[string]transport.ServerHandleFunc),
		partitioned: make(map[string]bool),
	}
}

// Partition makes an endpoint unreachable until Heal is called. In-flight
// calls are not interrupted.
func (n *Network) Partition(endpoint string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.partitioned[endpoint] = true
}

// Heal restores a partitioned endpoint.
func (n *Network) Heal(endpoint string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.partitioned, endpoint)
}

// Shutdown unblocks all listening server transports.
func (n *Network) Shutdown() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	servers := n.servers
	n.servers = nil
	for endpoint := range n.handlers {
		delete(n.handlers, endpoint)
	}
	n.mu.Unlock()

	for _, s := range servers {
		s.Stop()
	}
}

// dispatch routes a request to the handler registered for the endpoint.
func (n *Network) dispatch(endpoint string, req []byte) ([]byte, error) {
	n.mu.RLock()
	handler, ok := n.handlers[endpoint]
	cut := n.partitioned[endpoint]
	n.mu.RUnlock()

	if cut {
		return nil, fmt.Errorf("endpoint %s is partitioned", endpoint)
	}
	if !ok {
		return nil, fmt.Errorf("no server listening on %s", endpoint)
	}
	return handler(req), nil
}

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// NewServerTransport creates a server transport attached to the network.
func NewServerTransport(network *Network) transport.IRPCServerTransport {
	return &serverTransport{network: network, stopCh: make(chan struct{})}
}

type serverTransport struct {
	network *Network
	handler transport.ServerHandleFunc
	stopCh  chan struct{}
}

func (t *serverTransport) RegisterHandler(handler transport.ServerHandleFunc) {
	t.handler = handler
}

func (t *serverTransport) Listen(config common.ServerConfig) error {
	endpoint := config.Endpoint()
	if endpoint == "" {
		return fmt.Errorf("no endpoint configured")
	}
	if t.handler == nil {
		return fmt.Errorf("no handler registered")
	}

	t.network.mu.Lock()
	if t.network.closed {
		t.network.mu.Unlock()
		return fmt.Errorf("network is shut down")
	}
	if _, taken := t.network.handlers[endpoint]; taken {
		t.network.mu.Unlock()
		return fmt.Errorf("endpoint %s already in use", endpoint)
	}
	t.network.handlers[endpoint] = t.handler
	t.network.servers = append(t.network.servers, t)
	t.network.mu.Unlock()

	// Block like a real listener until the transport or network stops
	<-t.stopCh
	return nil
}

// Stop unblocks Listen and deregisters the endpoint.
func (t *serverTransport) Stop() {
	select {
	case <-t.stopCh:
		return
	default:
		close(t.stopCh)
	}
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// NewClientTransport creates a client transport attached to the network.
func NewClientTransport(network *Network) transport.IRPCClientTransport {
	return &clientTransport{network: network}
}

type clientTransport struct {
	network   *Network
	endpoints []string
	counter   uint32
	connected bool
}

func (t *clientTransport) Connect(config common.ClientConfig) error {
	if len(config.Transport.Endpoints) == 0 {
		return fmt.Errorf("no endpoints provided")
	}
	t.endpoints = config.Transport.Endpoints
	t.connected = true
	return nil
}

func (t *clientTransport) Send(req []byte) ([]byte, error) {
	if !t.connected {
		return nil, fmt.Errorf("inmem transport not connected")
	}

	// Select the next endpoint via round-robin
	idx := atomic.AddUint32(&t.counter, 1) % uint32(len(t.endpoints))
	return t.network.dispatch(t.endpoints[idx], req)
}

func (t *clientTransport) Close() error {
	t.connected = false
	return nil
}
