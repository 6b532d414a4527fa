package modbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddBlockRejectsOverlap(t *testing.T) {
	s := NewSlave(1)
	require.NoError(t, s.AddBlock("holding_a", HoldingRegisters, 0, 10))

	err := s.AddBlock("holding_b", HoldingRegisters, 5, 10)
	require.Error(t, err)
	me, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindConfig, me.Kind)
}

func TestAddBlockAllowsAdjacentDifferentKinds(t *testing.T) {
	s := NewSlave(1)
	require.NoError(t, s.AddBlock("coils", Coils, 0, 10))
	require.NoError(t, s.AddBlock("holding", HoldingRegisters, 0, 10))
}

func TestAddBlockRejectsOutOfAddressSpace(t *testing.T) {
	s := NewSlave(1)
	err := s.AddBlock("over", HoldingRegisters, 0xFFF0, 100)
	require.Error(t, err)
}

func TestSetGetValuesRoundTrip(t *testing.T) {
	s := NewSlave(1)
	require.NoError(t, s.AddBlock("holding", HoldingRegisters, 0, 10))

	s.SetValues("holding", 2, []uint16{11, 22, 33})
	got := s.GetValues("holding", 2, 3)
	assert.Equal(t, []uint16{11, 22, 33}, got)
}

func TestReadByKindDefaultsOnMiss(t *testing.T) {
	s := NewSlave(1)
	require.NoError(t, s.AddBlock("holding", HoldingRegisters, 100, 10))

	values, covered := s.readByKind(HoldingRegisters, 0, 5)
	assert.False(t, covered)
	assert.Equal(t, []uint16{0, 0, 0, 0, 0}, values)

	bits, covered := s.readByKind(Coils, 0, 3)
	assert.False(t, covered)
	assert.Equal(t, []bool{false, false, false}, bits)
}

func TestWriteByKindDiscardsOutOfRangeSilently(t *testing.T) {
	s := NewSlave(1)
	require.NoError(t, s.AddBlock("coils", Coils, 0, 4))

	applied := s.writeByKind(Coils, 0, []bool{true, true, true, true, true, true})
	assert.True(t, applied)
	assert.Equal(t, []bool{true, true, true, true}, s.GetValues("coils", 0, 4))
}

func TestWriteByKindReportsMissWhenNoBlockCovers(t *testing.T) {
	s := NewSlave(1)
	applied := s.writeByKind(HoldingRegisters, 0, []uint16{1})
	assert.False(t, applied)
}

func TestRemoveBlockIsNoOpWhenAbsent(t *testing.T) {
	s := NewSlave(1)
	s.RemoveBlock("does-not-exist")
}

func TestRegistryRejectsInvalidOrDuplicateSlaveID(t *testing.T) {
	reg := NewRegistry()
	require.Error(t, reg.AddSlave(NewSlave(0)))
	require.Error(t, reg.AddSlave(NewSlave(248)))

	require.NoError(t, reg.AddSlave(NewSlave(1)))
	require.Error(t, reg.AddSlave(NewSlave(1)))
}

func TestRegistrySlaveLookup(t *testing.T) {
	reg := NewRegistry()
	s := NewSlave(5)
	require.NoError(t, reg.AddSlave(s))

	got, ok := reg.Slave(5)
	require.True(t, ok)
	assert.Same(t, s, got)

	_, ok = reg.Slave(6)
	assert.False(t, ok)
}
