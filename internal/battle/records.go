package battle

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// BattleRecord summarises one battle for statistics and the record repository.
type BattleRecord struct {
	BattleID        uuid.UUID
	Territory       string
	Type            BattleType
	Attacker        string
	Defender        string
	AttackerLostTUV int
	DefenderLostTUV int
	Result          ResultDescription
	Finished        bool
}

// BattleRecords keeps a record per attacker and battle for the current combat phase.
type BattleRecords struct {
	mu         sync.Mutex
	ByAttacker map[string]map[uuid.UUID]*BattleRecord
}

// NewBattleRecords creates an empty record set.
func NewBattleRecords() *BattleRecords {
	return &BattleRecords{ByAttacker: make(map[string]map[uuid.UUID]*BattleRecord)}
}

// AddBattle opens a record for a new battle.
func (r *BattleRecords) AddBattle(attacker string, id uuid.UUID, territory string, typ BattleType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ByAttacker == nil {
		r.ByAttacker = make(map[string]map[uuid.UUID]*BattleRecord)
	}
	records := r.ByAttacker[attacker]
	if records == nil {
		records = make(map[uuid.UUID]*BattleRecord)
		r.ByAttacker[attacker] = records
	}
	if _, ok := records[id]; ok {
		return
	}
	records[id] = &BattleRecord{BattleID: id, Territory: territory, Type: typ, Attacker: attacker}
}

// AddResult closes a record with its outcome. Unknown battles are ignored.
func (r *BattleRecords) AddResult(attacker string, id uuid.UUID, defender string, attackerLost, defenderLost int, result ResultDescription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.ByAttacker[attacker][id]
	if rec == nil {
		return
	}
	rec.Defender = defender
	rec.AttackerLostTUV = attackerLost
	rec.DefenderLostTUV = defenderLost
	rec.Result = result
	rec.Finished = true
}

// RemoveBattle drops a record, e.g. when the attack was undone.
func (r *BattleRecords) RemoveBattle(attacker string, id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ByAttacker[attacker], id)
	if len(r.ByAttacker[attacker]) == 0 {
		delete(r.ByAttacker, attacker)
	}
}

// Record returns a copy of one record.
func (r *BattleRecords) Record(attacker string, id uuid.UUID) (BattleRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.ByAttacker[attacker][id]
	if rec == nil {
		return BattleRecord{}, false
	}
	return *rec, true
}

// All returns every record ordered by attacker, territory and type.
func (r *BattleRecords) All() []BattleRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []BattleRecord
	for _, records := range r.ByAttacker {
		for _, rec := range records {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Attacker != out[j].Attacker {
			return out[i].Attacker < out[j].Attacker
		}
		if out[i].Territory != out[j].Territory {
			return out[i].Territory < out[j].Territory
		}
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].BattleID.String() < out[j].BattleID.String()
	})
	return out
}

// Clear forgets every record.
func (r *BattleRecords) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ByAttacker = make(map[string]map[uuid.UUID]*BattleRecord)
}
