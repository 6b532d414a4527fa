package node

import (
	"context"
	"testing"
)

// MockExecutor is a mock implementation of the Executor interface for testing
type MockExecutor struct {
	initCalled    bool
	executeCalled bool
	cleanupCalled bool
	executeFunc   func(ctx context.Context, msg Message) (Message, error)
}

func (m *MockExecutor) Init(config map[string]interface{}) error {
	m.initCalled = true
	return nil
}

func (m *MockExecutor) Execute(ctx context.Context, msg Message) (Message, error) {
	m.executeCalled = true
	if m.executeFunc != nil {
		return m.executeFunc(ctx, msg)
	}
	return msg, nil
}

func (m *MockExecutor) Cleanup() error {
	m.cleanupCalled = true
	return nil
}

func TestNewNode(t *testing.T) {
	executor := &MockExecutor{}
	n := NewNode("modbus-tcp", "Test Node", executor)

	if n.Type != "modbus-tcp" {
		t.Errorf("Expected type 'modbus-tcp', got '%s'", n.Type)
	}
	if n.Name != "Test Node" {
		t.Errorf("Expected name 'Test Node', got '%s'", n.Name)
	}
	if n.Status != NodeStatusIdle {
		t.Errorf("Expected status NodeStatusIdle, got '%s'", n.Status)
	}
	if n.ID == "" {
		t.Error("Expected node ID to be set")
	}
}

func TestNodeStartStop(t *testing.T) {
	executor := &MockExecutor{}
	n := NewNode("modbus-tcp", "Test", executor)

	if err := n.Start(map[string]interface{}{"host": "127.0.0.1"}); err != nil {
		t.Fatalf("Failed to start node: %v", err)
	}
	if !executor.initCalled {
		t.Error("Expected Init to be called on start")
	}
	if n.GetStatus() != NodeStatusRunning {
		t.Errorf("Expected status NodeStatusRunning, got %s", n.GetStatus())
	}

	if err := n.Start(nil); err == nil {
		t.Error("Expected error when starting already running node")
	}

	if err := n.Stop(); err != nil {
		t.Fatalf("Failed to stop node: %v", err)
	}
	if !executor.cleanupCalled {
		t.Error("Expected Cleanup to be called on stop")
	}
	if n.GetStatus() != NodeStatusIdle {
		t.Errorf("Expected status NodeStatusIdle after stop, got %s", n.GetStatus())
	}
}

func TestNodeExecute(t *testing.T) {
	executor := &MockExecutor{
		executeFunc: func(ctx context.Context, msg Message) (Message, error) {
			return msg, nil
		},
	}
	n := NewNode("modbus-tcp", "Test", executor)
	if err := n.Start(nil); err != nil {
		t.Fatalf("Failed to start node: %v", err)
	}
	defer n.Stop()

	msg := Message{
		Type:    MessageTypeData,
		Payload: map[string]interface{}{"test": "value"},
	}

	result, err := n.Execute(context.Background(), msg)
	if err != nil {
		t.Errorf("Execute failed: %v", err)
	}
	if !executor.executeCalled {
		t.Error("Expected Execute to be called on executor")
	}
	if result.Payload["test"] != "value" {
		t.Error("Expected payload to be echoed back")
	}
}

func TestNodeExecuteRecordsFailureStatus(t *testing.T) {
	executor := &MockExecutor{
		executeFunc: func(ctx context.Context, msg Message) (Message, error) {
			return Message{}, context.DeadlineExceeded
		},
	}
	n := NewNode("modbus-tcp", "Test", executor)
	require := n.Start(nil)
	if require != nil {
		t.Fatalf("start failed: %v", require)
	}

	var events []ExecutionEvent
	n.SetExecutionCallback(func(e ExecutionEvent) { events = append(events, e) })

	_, err := n.Execute(context.Background(), Message{})
	if err == nil {
		t.Error("expected execute to surface the executor error")
	}
	if n.GetStatus() != NodeStatusError {
		t.Errorf("expected status NodeStatusError, got %s", n.GetStatus())
	}
	if len(events) != 1 || events[0].Status != "error" {
		t.Errorf("expected one error execution event, got %+v", events)
	}
}
