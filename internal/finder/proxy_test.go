package finder

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMinimalProxy(t *testing.T) {
	target := common.HexToAddress("0xbebebebebebebebebebebebebebebebebebebebe")
	code := common.FromHex("0x363d3d373d3d3d363d73" + "bebebebebebebebebebebebebebebebebebebebe" + "5af43d82803e903d91602b57fd5bf3")

	got, ok := parseMinimalProxy(code)
	require.True(t, ok)
	assert.Equal(t, target, got)
}

func TestParseMinimalProxyVanityAddress(t *testing.T) {
	// Vanity clones push fewer than 20 bytes; the address left-pads.
	code := common.FromHex("0x363d3d373d3d3d363d6f" + "bebebebebebebebebebebebebebebebe" + "5af43d82803e903d91602b57fd5bf3")

	got, ok := parseMinimalProxy(code)
	require.True(t, ok)
	assert.Equal(t, common.HexToAddress("0x00000000bebebebebebebebebebebebebebebebe"), got)
}

func TestParseMinimalProxyRejectsOtherCode(t *testing.T) {
	_, ok := parseMinimalProxy(common.FromHex("0x6080604052600080fd"))
	assert.False(t, ok)
	_, ok = parseMinimalProxy(nil)
	assert.False(t, ok)
}

func TestResolveEIP1967Logic(t *testing.T) {
	node := newMockNode(t)
	node.setStorage(tokenA, eip1967LogicSlot, common.BytesToHash(implB.Bytes()))

	link, err := NewProxyResolver(node.client()).Resolve(context.Background(), tokenA)
	require.NoError(t, err)
	require.NotNil(t, link)
	assert.Equal(t, implB, link.Target)
	assert.Equal(t, "eip1967.logic", link.Method)
}

func TestResolveEIP1967Beacon(t *testing.T) {
	beacon := common.HexToAddress("0x6000000000000000000000000000000000000006")

	node := newMockNode(t)
	node.setStorage(tokenA, eip1967BeaconSlot, common.BytesToHash(beacon.Bytes()))
	node.setAccessor(beacon, "implementation()", implB)

	link, err := NewProxyResolver(node.client()).Resolve(context.Background(), tokenA)
	require.NoError(t, err)
	require.NotNil(t, link)
	assert.Equal(t, implB, link.Target)
	assert.Equal(t, "eip1967.beacon", link.Method)
}

func TestResolveMinimalProxyBytecode(t *testing.T) {
	node := newMockNode(t)
	node.setCode(tokenA, common.FromHex("0x363d3d373d3d3d363d73"+"2000000000000000000000000000000000000002"+"5af43d82803e903d91602b57fd5bf3"))

	link, err := NewProxyResolver(node.client()).Resolve(context.Background(), tokenA)
	require.NoError(t, err)
	require.NotNil(t, link)
	assert.Equal(t, implB, link.Target)
	assert.Equal(t, "eip1167", link.Method)
}

func TestResolveNothing(t *testing.T) {
	node := newMockNode(t)
	node.setCode(tokenA, common.FromHex("0x6080604052600080fd"))

	link, err := NewProxyResolver(node.client()).Resolve(context.Background(), tokenA)
	require.NoError(t, err)
	assert.Nil(t, link)
}
