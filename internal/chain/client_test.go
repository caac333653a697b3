package chain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseABI(t *testing.T) {
	parsed, err := ParseABI()
	require.NoError(t, err)

	for _, name := range []string{
		"totalSupply", "tokenByIndex", "ownerOf", "tokenURI", "tokenIdToMultiplier", "tokenIdToLevel",
		"safeMint", "feed", "train", "levelUp", "createBattle", "stake", "resolveBattle",
		"battleCount", "getBattleDetails",
	} {
		_, ok := parsed.Methods[name]
		assert.True(t, ok, name)
	}
	assert.True(t, parsed.Methods["feed"].IsPayable())
	assert.True(t, parsed.Methods["stake"].IsPayable())
	assert.False(t, parsed.Methods["levelUp"].IsPayable())
}

func TestDecodeBattle(t *testing.T) {
	parsed, err := ParseABI()
	require.NoError(t, err)

	creator := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	outputs := parsed.Methods["getBattleDetails"].Outputs
	packed, err := outputs.Pack(
		big.NewInt(1), big.NewInt(2), creator, false,
		big.NewInt(500), big.NewInt(700), big.NewInt(2),
	)
	require.NoError(t, err)

	values, err := outputs.Unpack(packed)
	require.NoError(t, err)

	battle, err := decodeBattle(9, values)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), battle.BattleID)
	assert.Equal(t, uint64(1), battle.Pet1)
	assert.Equal(t, uint64(2), battle.Pet2)
	assert.Equal(t, creator.Hex(), battle.Creator)
	assert.False(t, battle.Active)
	assert.Equal(t, "500", battle.TotalStakePet1)
	assert.Equal(t, "700", battle.TotalStakePet2)
	assert.Equal(t, uint64(2), battle.Winner)
	assert.True(t, battle.WinnerKnown())
}

func TestDecodeBattleWrongShape(t *testing.T) {
	_, err := decodeBattle(0, []interface{}{big.NewInt(1)})
	assert.Error(t, err)
}

func TestMintedToken(t *testing.T) {
	parsed, err := ParseABI()
	require.NoError(t, err)

	contract := common.HexToAddress("0x9157F94b5027B4943D8c03B303704fA9a9BB135f")
	c := &Client{address: contract, abi: parsed}

	transfer := parsed.Events["Transfer"].ID
	receipt := &types.Receipt{Logs: []*types.Log{
		{Address: common.HexToAddress("0x01"), Topics: []common.Hash{transfer, {}, {}, common.BigToHash(big.NewInt(99))}},
		{Address: contract, Topics: []common.Hash{transfer, {}, {}, common.BigToHash(big.NewInt(42))}},
	}}

	id, err := c.mintedToken(receipt)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), id)

	_, err = c.mintedToken(&types.Receipt{})
	assert.ErrorIs(t, err, ErrMintEventMissing)
}
