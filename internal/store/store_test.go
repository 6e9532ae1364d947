package store

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/magefree/battle-server-go/internal/battle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "battle:g1:snapshot", snapshotKey("g1"))
	assert.Equal(t, "battle:g1:checksum", checksumKey("g1"))
}

func TestRecordRow(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rec := battle.BattleRecord{
		BattleID:        uuid.New(),
		Territory:       "Tokyo",
		Type:            battle.TypeBombingRaid,
		Attacker:        "Americans",
		Defender:        "Japan",
		DefenderLostTUV: 10,
		Result:          battle.ResultBombed,
		Finished:        true,
	}
	args := recordArgs("g1", rec, at)
	require.Len(t, args, 10)
	assert.Equal(t, "Bombing Raid", args[3])
	assert.Equal(t, "BOMBED", args[8])

	row := recordRow{
		gameID:       args[0].(string),
		battleID:     args[1].(string),
		territory:    args[2].(string),
		battleType:   args[3].(string),
		attacker:     args[4].(string),
		defender:     args[5].(string),
		attackerLost: args[6].(int),
		defenderLost: args[7].(int),
		result:       args[8].(string),
		recordedAt:   args[9].(time.Time),
	}
	stored, err := row.record()
	require.NoError(t, err)
	assert.Equal(t, "g1", stored.GameID)
	assert.Equal(t, at, stored.RecordedAt)
	assert.Equal(t, rec, stored.BattleRecord)
}

func TestRecordRow_RejectsUnknownValues(t *testing.T) {
	good := recordRow{battleID: uuid.NewString(), battleType: "Battle", result: "LOST"}
	_, err := good.record()
	require.NoError(t, err)

	for name, row := range map[string]recordRow{
		"id":     {battleID: "nope", battleType: "Battle", result: "LOST"},
		"type":   {battleID: good.battleID, battleType: "Skirmish", result: "LOST"},
		"result": {battleID: good.battleID, battleType: "Battle", result: "FLED"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := row.record()
			assert.Error(t, err)
		})
	}
}
