package node

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MessageType defines the type of message being passed to a node.
type MessageType string

const (
	MessageTypeData  MessageType = "data"
	MessageTypeError MessageType = "error"
)

// Message carries a request/response payload through an Executor. It
// is the contract industrial protocol adapters (pkg/nodes/industrial)
// use to receive operation parameters and return results, independent
// of any flow-graph wiring.
type Message struct {
	Type    MessageType            `json:"type"`
	Payload map[string]interface{} `json:"payload"`
	Topic   string                 `json:"topic,omitempty"`
	Error   error                  `json:"error,omitempty"`
}

// NodeStatus represents the current state of a node.
type NodeStatus string

const (
	NodeStatusIdle    NodeStatus = "idle"
	NodeStatusRunning NodeStatus = "running"
	NodeStatusError   NodeStatus = "error"
)

// ExecutionEvent records a single node execution result for logging
// or diagnostics.
type ExecutionEvent struct {
	NodeID        string                 `json:"node_id"`
	NodeName      string                 `json:"node_name"`
	NodeType      string                 `json:"node_type"`
	Input         map[string]interface{} `json:"input"`
	Output        map[string]interface{} `json:"output"`
	Status        string                 `json:"status"` // "success" or "error"
	Error         string                 `json:"error,omitempty"`
	ExecutionTime int64                  `json:"execution_time"` // milliseconds
	Timestamp     int64                  `json:"timestamp"`
}

// ExecutionCallback is called after each node execution with the result.
type ExecutionCallback func(event ExecutionEvent)

// Executor defines the interface a protocol adapter implements to be
// driven by a Node. pkg/nodes/industrial's Modbus TCP/RTU adapters
// satisfy this directly.
type Executor interface {
	Execute(ctx context.Context, msg Message) (Message, error)
	Init(config map[string]interface{}) error
	Cleanup() error
}

// Node wraps an Executor with identity, configuration, and status
// tracking. There is no input/output channel graph: callers invoke
// Execute directly (e.g. from a CLI command or an HTTP handler), one
// request at a time.
type Node struct {
	ID       string                 `json:"id"`
	Type     string                 `json:"type"`
	Name     string                 `json:"name"`
	Config   map[string]interface{} `json:"config"`
	Status   NodeStatus             `json:"status"`
	mu       sync.RWMutex
	executor Executor
	onEvent  ExecutionCallback
}

// NewNode creates a new node wrapping executor.
func NewNode(nodeType, name string, executor Executor) *Node {
	return &Node{
		ID:       uuid.New().String(),
		Type:     nodeType,
		Name:     name,
		Config:   make(map[string]interface{}),
		Status:   NodeStatusIdle,
		executor: executor,
	}
}

// SetExecutionCallback sets a callback that fires after each execution.
func (n *Node) SetExecutionCallback(cb ExecutionCallback) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onEvent = cb
}

// Start initializes the underlying executor.
func (n *Node) Start(config map[string]interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.Status == NodeStatusRunning {
		return fmt.Errorf("node %s is already running", n.ID)
	}
	n.Config = config
	if err := n.executor.Init(config); err != nil {
		n.Status = NodeStatusError
		return fmt.Errorf("failed to initialize node: %w", err)
	}
	n.Status = NodeStatusRunning
	return nil
}

// Stop cleans up the underlying executor.
func (n *Node) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.Status != NodeStatusRunning {
		return nil
	}
	n.Status = NodeStatusIdle
	return n.executor.Cleanup()
}

// Execute runs the executor against msg and reports the result via
// the registered ExecutionCallback, if any.
func (n *Node) Execute(ctx context.Context, msg Message) (Message, error) {
	start := time.Now()
	result, err := n.executor.Execute(ctx, msg)
	elapsed := time.Since(start).Milliseconds()

	n.mu.RLock()
	cb := n.onEvent
	n.mu.RUnlock()

	if err != nil {
		n.mu.Lock()
		n.Status = NodeStatusError
		n.mu.Unlock()
		if cb != nil {
			cb(ExecutionEvent{
				NodeID: n.ID, NodeName: n.Name, NodeType: n.Type,
				Input: msg.Payload, Status: "error", Error: err.Error(),
				ExecutionTime: elapsed, Timestamp: time.Now().UnixMilli(),
			})
		}
		return result, err
	}

	if cb != nil {
		cb(ExecutionEvent{
			NodeID: n.ID, NodeName: n.Name, NodeType: n.Type,
			Input: msg.Payload, Output: result.Payload, Status: "success",
			ExecutionTime: elapsed, Timestamp: time.Now().UnixMilli(),
		})
	}
	return result, nil
}

// GetStatus returns the current node status.
func (n *Node) GetStatus() NodeStatus {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.Status
}
