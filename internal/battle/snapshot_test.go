package battle

import (
	"bytes"
	"compress/gzip"
	"encoding/gob"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/magefree/battle-server-go/internal/dice"
	"github.com/magefree/battle-server-go/internal/history"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// suspendedPoland leaves the Polish battle waiting on the attacker's retreat decision after one
// round of missed dice.
func suspendedPoland(t *testing.T) (*battleHarness, *BattleDelegate) {
	t.Helper()
	h, d := newDelegateHarness(t, landMap, DefaultRules(), "Germans")
	armour := h.place("Poland", "armour", "Germans", 1)
	h.place("Poland", "infantry", "Russians", 1)
	h.attack("Germans", armour, false, "Germany", "Poland")
	h.remote("Germans").interrupt = 1

	h.dice.Add(5, 5)
	_, err := d.FightBattle(h.ctx, h.bridge, "Poland", false, TypeNormal)
	require.ErrorIs(t, err, ErrSuspended)
	return h, d
}

func TestSnapshot_RoundTripKeepsChecksum(t *testing.T) {
	h, d := suspendedPoland(t)
	snap, err := NewSnapshot(d, h.st, "game-1", "Germans")
	require.NoError(t, err)
	require.Len(t, snap.Battles, 1)
	assert.NotEmpty(t, snap.Current)

	data, err := MarshalSnapshot(snap)
	require.NoError(t, err)
	loaded, err := UnmarshalSnapshot(data)
	require.NoError(t, err)

	want, err := snap.ComputeChecksum()
	require.NoError(t, err)
	got, err := loaded.ComputeChecksum()
	require.NoError(t, err)
	assert.Equal(t, want.Hash, got.Hash)
	assert.Equal(t, SnapshotVersion, got.Version)
	assert.Equal(t, "game-1", loaded.GameID)
}

func TestSnapshot_ChecksumIgnoresSaveTime(t *testing.T) {
	h, d := suspendedPoland(t)
	a, err := NewSnapshot(d, h.st, "game-1", "Germans")
	require.NoError(t, err)
	b, err := NewSnapshot(d, h.st, "game-1", "Germans")
	require.NoError(t, err)
	b.SavedAt = a.SavedAt.Add(time.Hour)

	sa, err := a.ComputeChecksum()
	require.NoError(t, err)
	sb, err := b.ComputeChecksum()
	require.NoError(t, err)
	assert.Equal(t, sa.Hash, sb.Hash)

	b.Player = "Russians"
	sb, err = b.ComputeChecksum()
	require.NoError(t, err)
	assert.NotEqual(t, sa.Hash, sb.Hash)
}

func TestSnapshot_RestoredBattleResumesWhereItStopped(t *testing.T) {
	h, d := suspendedPoland(t)
	snap, err := NewSnapshot(d, h.st, "game-1", "Germans")
	require.NoError(t, err)
	data, err := MarshalSnapshot(snap)
	require.NoError(t, err)
	loaded, err := UnmarshalSnapshot(data)
	require.NoError(t, err)

	logger := zaptest.NewLogger(t)
	restored, err := loaded.Restore(logger)
	require.NoError(t, err)
	require.NotNil(t, restored.CurrentBattle())
	assert.Equal(t, "Poland", restored.CurrentBattle().Territory())
	assert.Equal(t, d.NeedToInitialize, restored.NeedToInitialize)
	assert.Equal(t, []string{"Poland"}, restored.Battles().NormalSites())

	b := restored.Tracker().PendingBattle("Poland", TypeNormal)
	require.NotNil(t, b)
	assert.Equal(t, StepRetreat, b.core().Stack.Current.Kind)

	src := dice.NewScriptedSource(0, 5)
	bus := history.NewEventBus()
	br := NewDelegateBridge(BridgeOptions{
		State:   loaded.State,
		Rules:   DefaultRules(),
		Dice:    src,
		History: history.NewLog(bus),
		Events:  bus,
		Logger:  logger,
		Player:  "Germans",
	})
	msg, err := restored.FightBattle(h.ctx, br, "Poland", false, TypeNormal)
	require.NoError(t, err)
	assert.Empty(t, msg)

	assert.Equal(t, 2, src.Calls(), "no dice of the first round are rolled again")
	assert.Equal(t, "Germans", loaded.State.Territory("Poland").Owner)
	assert.Equal(t, "Russians", h.st.Territory("Poland").Owner, "the saved game is untouched")
	rec, ok := restored.Tracker().Records.Record("Germans", b.ID())
	require.True(t, ok)
	assert.Equal(t, ResultConquered, rec.Result)
}

func TestSnapshot_TamperedChecksumIsRejected(t *testing.T) {
	h, d := suspendedPoland(t)
	snap, err := NewSnapshot(d, h.st, "game-1", "Germans")
	require.NoError(t, err)

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := gob.NewEncoder(gz)
	require.NoError(t, enc.Encode(&snapshotHeader{Version: SnapshotVersion, Checksum: "not-the-checksum"}))
	require.NoError(t, enc.Encode(snap))
	require.NoError(t, gz.Close())

	_, err = UnmarshalSnapshot(buf.Bytes())
	require.ErrorIs(t, err, ErrSnapshotChecksum)
}

func TestSnapshot_SaveAndRestoreFromFile(t *testing.T) {
	h, d := suspendedPoland(t)
	snap, err := NewSnapshot(d, h.st, "game-1", "Germans")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "game-1.snapshot")
	f, err := os.Create(path)
	require.NoError(t, err)
	sum, err := SaveSnapshot(f, snap)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.NotEmpty(t, sum.Hash)

	f, err = os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	loaded, restored, err := RestoreSnapshot(f, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, "Germans", loaded.Player)
	assert.NotNil(t, restored.CurrentBattle())
}

func TestSnapshot_UnknownVersionIsRejected(t *testing.T) {
	h, d := suspendedPoland(t)
	snap, err := NewSnapshot(d, h.st, "game-1", "Germans")
	require.NoError(t, err)
	snap.Version = SnapshotVersion + 1

	_, err = snap.Restore(zaptest.NewLogger(t))
	require.Error(t, err)
}
