package battle

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/magefree/battle-server-go/internal/world"
	"go.uber.org/zap"
)

// SnapshotVersion is bumped whenever the encoded layout changes.
const SnapshotVersion = 1

// ErrSnapshotChecksum is returned when a restored snapshot does not match its saved checksum.
var ErrSnapshotChecksum = errors.New("snapshot checksum mismatch")

// Snapshot is a saved combat phase: the world, the tracker and every pending battle with its
// in-flight stack.
type Snapshot struct {
	Version int
	GameID  string
	Player  string
	SavedAt time.Time

	State   *world.State
	Tracker TrackerSnapshot
	Battles []BattleEnvelope
	Flags   DelegateFlags
	Current string
}

// TrackerSnapshot is the encodable form of a Tracker.
type TrackerSnapshot struct {
	// Dependencies maps a blocked battle id to the ids it waits for.
	Dependencies               map[string][]string
	Conquered                  []string
	Blitzed                    []string
	FoughtBattles              []string
	NoBombardAllowed           []string
	DefendingAirThatCanNotLand map[string][]string
	RelationshipChanges        []RelationshipChange
	Records                    []BattleRecord
}

// DelegateFlags are the resumable phase flags of a BattleDelegate.
type DelegateFlags struct {
	NeedToInitialize                 bool
	NeedToScramble                   bool
	NeedToKamikazeSuicideAttacks     bool
	NeedToClearEmptyAirBattleAttacks bool
	NeedToAddBombardmentSources      bool
	NeedToFightPendingBattles        bool
}

// BattleEnvelope holds exactly one battle variant, selected by Kind.
type BattleEnvelope struct {
	Kind        BattleKind
	MustFight   *MustFightBattle
	Air         *AirBattle
	Raid        *StrategicBombingRaidBattle
	NonFighting *NonFightingBattle
	Finished    *FinishedBattle
}

func wrapBattle(b Battle) (BattleEnvelope, error) {
	env := BattleEnvelope{Kind: b.Kind()}
	switch v := b.(type) {
	case *MustFightBattle:
		env.MustFight = v
	case *AirBattle:
		env.Air = v
	case *StrategicBombingRaidBattle:
		env.Raid = v
	case *NonFightingBattle:
		env.NonFighting = v
	case *FinishedBattle:
		env.Finished = v
	default:
		return env, fmt.Errorf("snapshot: unknown battle kind %s", b.Kind())
	}
	return env, nil
}

func (env BattleEnvelope) battle() (Battle, error) {
	var b Battle
	switch env.Kind {
	case KindMustFight:
		if env.MustFight != nil {
			if env.MustFight.AmphibiousFrom == nil {
				env.MustFight.AmphibiousFrom = make(map[string][]string)
			}
			b = env.MustFight
		}
	case KindAirBattle:
		if env.Air != nil {
			if env.Air.BombingTargets == nil {
				env.Air.BombingTargets = make(map[string][]string)
			}
			b = env.Air
		}
	case KindBombingRaid:
		if env.Raid != nil {
			if env.Raid.Targets == nil {
				env.Raid.Targets = make(map[string][]string)
			}
			if env.Raid.BombingDice == nil {
				env.Raid.BombingDice = make(map[string][]int)
			}
			b = env.Raid
		}
	case KindNonFighting:
		if env.NonFighting != nil {
			b = env.NonFighting
		}
	case KindFinished:
		if env.Finished != nil {
			if env.Finished.AmphibiousFrom == nil {
				env.Finished.AmphibiousFrom = make(map[string][]string)
			}
			b = env.Finished
		}
	}
	if b == nil {
		return nil, fmt.Errorf("snapshot: missing %s payload", env.Kind)
	}
	return b, nil
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k, v := range m {
		if v {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func toSet(keys []string) map[string]bool {
	out := make(map[string]bool, len(keys))
	for _, k := range keys {
		out[k] = true
	}
	return out
}

// NewSnapshot captures the delegate, its tracker and the world.
func NewSnapshot(d *BattleDelegate, st *world.State, gameID, player string) (*Snapshot, error) {
	t := d.tracker
	snap := &Snapshot{
		Version: SnapshotVersion,
		GameID:  gameID,
		Player:  player,
		SavedAt: time.Now().UTC(),
		State:   st,
		Flags: DelegateFlags{
			NeedToInitialize:                 d.NeedToInitialize,
			NeedToScramble:                   d.NeedToScramble,
			NeedToKamikazeSuicideAttacks:     d.NeedToKamikazeSuicideAttacks,
			NeedToClearEmptyAirBattleAttacks: d.NeedToClearEmptyAirBattleAttacks,
			NeedToAddBombardmentSources:      d.NeedToAddBombardmentSources,
			NeedToFightPendingBattles:        d.NeedToFightPendingBattles,
		},
		Tracker: TrackerSnapshot{
			Dependencies:               make(map[string][]string, len(t.dependencies)),
			Conquered:                  sortedKeys(t.Conquered),
			Blitzed:                    sortedKeys(t.Blitzed),
			FoughtBattles:              sortedKeys(t.FoughtBattles),
			NoBombardAllowed:           sortedKeys(t.NoBombardAllowed),
			DefendingAirThatCanNotLand: t.DefendingAirThatCanNotLand,
			RelationshipChanges:        t.RelationshipChanges,
			Records:                    t.Records.All(),
		},
	}
	if d.current != nil {
		snap.Current = d.current.ID().String()
	}
	for blocked, deps := range t.dependencies {
		ids := make([]string, 0, len(deps))
		for id := range deps {
			ids = append(ids, id.String())
		}
		sort.Strings(ids)
		snap.Tracker.Dependencies[blocked.String()] = ids
	}
	for _, b := range t.pending {
		env, err := wrapBattle(b)
		if err != nil {
			return nil, err
		}
		snap.Battles = append(snap.Battles, env)
	}
	return snap, nil
}

// Restore rebuilds the delegate and tracker from the snapshot and re-attaches every battle to
// them and to the snapshot's world.
func (s *Snapshot) Restore(logger *zap.Logger) (*BattleDelegate, error) {
	if s.Version != SnapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version: %d", s.Version)
	}
	if s.State == nil {
		return nil, errors.New("snapshot has no world state")
	}
	t := NewTracker(logger)
	t.Conquered = toSet(s.Tracker.Conquered)
	t.Blitzed = toSet(s.Tracker.Blitzed)
	t.FoughtBattles = toSet(s.Tracker.FoughtBattles)
	t.NoBombardAllowed = toSet(s.Tracker.NoBombardAllowed)
	if s.Tracker.DefendingAirThatCanNotLand != nil {
		t.DefendingAirThatCanNotLand = s.Tracker.DefendingAirThatCanNotLand
	}
	t.RelationshipChanges = s.Tracker.RelationshipChanges
	for _, rec := range s.Tracker.Records {
		t.Records.AddBattle(rec.Attacker, rec.BattleID, rec.Territory, rec.Type)
		if rec.Finished {
			t.Records.AddResult(rec.Attacker, rec.BattleID, rec.Defender, rec.AttackerLostTUV, rec.DefenderLostTUV, rec.Result)
		}
	}
	for _, env := range s.Battles {
		b, err := env.battle()
		if err != nil {
			return nil, err
		}
		b.core().attach(s.State, t)
		t.pending = append(t.pending, b)
	}
	for blocked, deps := range s.Tracker.Dependencies {
		bid, err := uuid.Parse(blocked)
		if err != nil {
			return nil, fmt.Errorf("snapshot dependency %q: %w", blocked, err)
		}
		set := make(map[uuid.UUID]bool, len(deps))
		for _, dep := range deps {
			id, err := uuid.Parse(dep)
			if err != nil {
				return nil, fmt.Errorf("snapshot dependency %q: %w", dep, err)
			}
			set[id] = true
		}
		t.dependencies[bid] = set
	}

	d := NewBattleDelegate(t, logger)
	d.NeedToInitialize = s.Flags.NeedToInitialize
	d.NeedToScramble = s.Flags.NeedToScramble
	d.NeedToKamikazeSuicideAttacks = s.Flags.NeedToKamikazeSuicideAttacks
	d.NeedToClearEmptyAirBattleAttacks = s.Flags.NeedToClearEmptyAirBattleAttacks
	d.NeedToAddBombardmentSources = s.Flags.NeedToAddBombardmentSources
	d.NeedToFightPendingBattles = s.Flags.NeedToFightPendingBattles
	if s.Current != "" {
		if id, err := uuid.Parse(s.Current); err == nil {
			d.current = t.Battle(id)
		}
	}
	return d, nil
}

// SnapshotChecksum identifies the content of a snapshot independent of map order and save time.
type SnapshotChecksum struct {
	Hash    string
	Version int
}

// ComputeChecksum hashes a canonical rendering of the snapshot.
func (s *Snapshot) ComputeChecksum() (*SnapshotChecksum, error) {
	hash := sha256.New()
	if _, err := hash.Write([]byte(s.canonical())); err != nil {
		return nil, fmt.Errorf("failed to compute hash: %w", err)
	}
	return &SnapshotChecksum{Hash: hex.EncodeToString(hash.Sum(nil)), Version: s.Version}, nil
}

func (s *Snapshot) canonical() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "SNAPSHOT:%d|%s|%s\n", s.Version, s.GameID, s.Player)

	if st := s.State; st != nil {
		names := make([]string, 0, len(st.Territories))
		for name := range st.Territories {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			t := st.Territories[name]
			units := append([]string(nil), t.Units...)
			sort.Strings(units)
			fmt.Fprintf(&buf, "TERRITORY:%s|%s|%d|%d\n  UNITS:%s\n", name, t.Owner, t.Production, st.PUsLost[name], strings.Join(units, ","))
		}
		ids := make([]string, 0, len(st.Units))
		for id := range st.Units {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			u := st.Units[id]
			fmt.Fprintf(&buf, "UNIT:%s|%s|%s|%d|%d|%t|%t|%t|%t|%t|%s|%s|%d\n", id, u.Type, u.Owner, u.Hits, u.BombingDamage,
				u.WasScrambled, u.WasInAirBattle, u.WasAmphibious, u.Submerged, u.Disabled, u.OriginatedFrom, u.TransportedBy, u.MaxScrambleCount)
		}
		players := make([]string, 0, len(st.Players))
		for name := range st.Players {
			players = append(players, name)
		}
		sort.Strings(players)
		for _, name := range players {
			p := st.Players[name]
			resources := make([]string, 0, len(p.Resources))
			for r, n := range p.Resources {
				resources = append(resources, fmt.Sprintf("%s=%d", r, n))
			}
			sort.Strings(resources)
			fmt.Fprintf(&buf, "PLAYER:%s|%s|%s\n", name, p.Alliance, strings.Join(resources, ","))
		}
	}

	fmt.Fprintf(&buf, "CONQUERED:%s\nBLITZED:%s\nFOUGHT:%s\nNO_BOMBARD:%s\n",
		strings.Join(s.Tracker.Conquered, ","),
		strings.Join(s.Tracker.Blitzed, ","),
		strings.Join(s.Tracker.FoughtBattles, ","),
		strings.Join(s.Tracker.NoBombardAllowed, ","))
	blocked := make([]string, 0, len(s.Tracker.Dependencies))
	for id := range s.Tracker.Dependencies {
		blocked = append(blocked, id)
	}
	sort.Strings(blocked)
	for _, id := range blocked {
		fmt.Fprintf(&buf, "DEPENDS:%s<-%s\n", id, strings.Join(s.Tracker.Dependencies[id], ","))
	}
	for _, rec := range s.Tracker.Records {
		fmt.Fprintf(&buf, "RECORD:%s|%s|%s|%s|%s|%d|%d|%s|%t\n", rec.BattleID, rec.Territory, rec.Type, rec.Attacker, rec.Defender,
			rec.AttackerLostTUV, rec.DefenderLostTUV, rec.Result, rec.Finished)
	}

	// Battle and stack order matter.
	for _, env := range s.Battles {
		b, err := env.battle()
		if err != nil {
			fmt.Fprintf(&buf, "BATTLE:invalid|%s\n", env.Kind)
			continue
		}
		c := b.core()
		fmt.Fprintf(&buf, "BATTLE:%s|%s|%s|%s|%s|%s|%d|%t|%s|%s|%d|%d\n", c.BattleID, env.Kind, c.Site, c.BattleType,
			c.AttackingPlayer, c.DefendingPlayer, c.Round, c.Over, c.Outcome, c.Result, c.AttackerLostTUV, c.DefenderLostTUV)
		fmt.Fprintf(&buf, "  ATTACKERS:%s\n  DEFENDERS:%s\n", strings.Join(c.Attackers, ","), strings.Join(c.Defenders, ","))
		for i, step := range c.Stack.Steps {
			fmt.Fprintf(&buf, "  STEP:%d|%s|%t|%s|%s|%s\n", i, step.Kind, step.Defender, step.Group, step.AAType, step.Name)
		}
		if cur := c.Stack.Current; cur != nil {
			fmt.Fprintf(&buf, "  CURRENT:%s|%t|%s\n", cur.Kind, cur.Defender, cur.Name)
		}
		fires := make([]string, 0, len(c.Fires))
		for id := range c.Fires {
			fires = append(fires, id)
		}
		sort.Strings(fires)
		for _, id := range fires {
			f := c.Fires[id]
			fmt.Fprintf(&buf, "  FIRE:%s|%s|%t|%t|%d\n", id, f.StepName, f.Rolled, f.Selected, f.Roll.Hits)
		}
	}
	fmt.Fprintf(&buf, "CURRENT:%s\n", s.Current)
	return buf.String()
}

type snapshotHeader struct {
	Version  int
	Checksum string
}

// SaveSnapshot writes the snapshot gzip compressed, preceded by its checksum.
func SaveSnapshot(w io.Writer, s *Snapshot) (*SnapshotChecksum, error) {
	sum, err := s.ComputeChecksum()
	if err != nil {
		return nil, err
	}
	gz := gzip.NewWriter(w)
	enc := gob.NewEncoder(gz)
	if err := enc.Encode(&snapshotHeader{Version: s.Version, Checksum: sum.Hash}); err != nil {
		return nil, fmt.Errorf("failed to encode snapshot header: %w", err)
	}
	if err := enc.Encode(s); err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("failed to flush snapshot: %w", err)
	}
	return sum, nil
}

// LoadSnapshot reads a snapshot written by SaveSnapshot and verifies its checksum.
func LoadSnapshot(r io.Reader) (*Snapshot, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gz.Close()
	dec := gob.NewDecoder(gz)

	var header snapshotHeader
	if err := dec.Decode(&header); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot header: %w", err)
	}
	if header.Version != SnapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version: %d", header.Version)
	}
	var s Snapshot
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if s.State != nil && s.State.PUsLost == nil {
		s.State.PUsLost = make(map[string]int)
	}
	sum, err := s.ComputeChecksum()
	if err != nil {
		return nil, err
	}
	if sum.Hash != header.Checksum {
		return nil, fmt.Errorf("%w: saved=%s computed=%s", ErrSnapshotChecksum, header.Checksum, sum.Hash)
	}
	return &s, nil
}

// RestoreSnapshot loads a snapshot and rebuilds its delegate.
func RestoreSnapshot(r io.Reader, logger *zap.Logger) (*Snapshot, *BattleDelegate, error) {
	s, err := LoadSnapshot(r)
	if err != nil {
		return nil, nil, err
	}
	d, err := s.Restore(logger)
	if err != nil {
		return nil, nil, err
	}
	return s, d, nil
}

// MarshalSnapshot is SaveSnapshot into memory.
func MarshalSnapshot(s *Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := SaveSnapshot(&buf, s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalSnapshot is LoadSnapshot from memory.
func UnmarshalSnapshot(data []byte) (*Snapshot, error) {
	return LoadSnapshot(bytes.NewReader(data))
}
