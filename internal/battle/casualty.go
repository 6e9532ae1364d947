package battle

import (
	"context"
	"sort"

	"github.com/magefree/battle-server-go/internal/world"
)

func totalHitPoints(st *world.State, targets []string) int {
	total := 0
	for _, id := range targets {
		if u := st.Unit(id); u != nil {
			total += u.HitPointsLeft(st.TypeOf(id))
		}
	}
	return total
}

// defaultCasualties spreads hits the way a careful player would: multi hit point units soak damage
// first (most expensive first), then the cheapest units die.
func defaultCasualties(st *world.State, targets []string, hits int) CasualtyDetails {
	var out CasualtyDetails
	if hits <= 0 || len(targets) == 0 {
		return out
	}
	if hits >= totalHitPoints(st, targets) {
		out.Killed = append(out.Killed, targets...)
		return out
	}

	byCost := append([]string(nil), targets...)
	sort.SliceStable(byCost, func(i, j int) bool {
		return st.TypeOf(byCost[i]).Cost < st.TypeOf(byCost[j]).Cost
	})

	soak := make(map[string]int)
	safe := 0
	for i := len(byCost) - 1; i >= 0; i-- {
		id := byCost[i]
		if left := st.Unit(id).HitPointsLeft(st.TypeOf(id)); left > 1 {
			soak[id] = left - 1
			safe += left - 1
		}
	}

	remaining := hits
	damage := make(map[string]int)
	for i := len(byCost) - 1; i >= 0 && remaining > 0; i-- {
		id := byCost[i]
		n := soak[id]
		if n > remaining {
			n = remaining
		}
		damage[id] = n
		remaining -= n
	}

	killed := make(map[string]bool)
	if kills := hits - safe; kills > 0 {
		for _, id := range byCost {
			if kills == 0 {
				break
			}
			killed[id] = true
			out.Killed = append(out.Killed, id)
			kills--
		}
	}
	for i := len(byCost) - 1; i >= 0; i-- {
		id := byCost[i]
		if killed[id] {
			continue
		}
		for n := 0; n < damage[id]; n++ {
			out.Damaged = append(out.Damaged, id)
		}
	}
	return out
}

// singleChoice reports whether any valid selection is equivalent: every target is the same
// one hit point type owned by one player.
func singleChoice(st *world.State, targets []string) bool {
	if len(targets) == 0 {
		return true
	}
	first := st.Unit(targets[0])
	for _, id := range targets {
		u := st.Unit(id)
		if u == nil || u.Type != first.Type || u.Owner != first.Owner || u.HitPointsLeft(st.TypeOf(id)) != 1 {
			return false
		}
	}
	return true
}

// selectCasualties resolves hits against the targets, asking the hit player only when there is a
// real choice. A selection that does not account for exactly min(hits, hit points) is fatal.
func selectCasualties(ctx context.Context, br Bridge, headless bool, req CasualtyRequest) (CasualtyDetails, error) {
	st := br.State()
	if req.Hits <= 0 || len(req.Targets) == 0 {
		return CasualtyDetails{AutoCalculated: true}, nil
	}
	defaults := defaultCasualties(st, req.Targets, req.Hits)
	if req.Hits >= totalHitPoints(st, req.Targets) || singleChoice(st, req.Targets) || headless {
		defaults.AutoCalculated = true
		return defaults, nil
	}

	req.Defaults = defaults
	var details CasualtyDetails
	err := callRemote(br, func() error {
		var err error
		details, err = remoteFor(br, req.Player).SelectCasualties(ctx, req)
		return err
	})
	if err != nil {
		return CasualtyDetails{}, err
	}
	details.AutoCalculated = false
	if err := validateCasualties(st, req.Targets, req.Hits, details); err != nil {
		return CasualtyDetails{}, err
	}
	return details, nil
}

func validateCasualties(st *world.State, targets []string, hits int, details CasualtyDetails) error {
	valid := make(map[string]bool, len(targets))
	for _, id := range targets {
		valid[id] = true
	}
	seen := make(map[string]bool)
	absorbed := 0
	for _, id := range details.Killed {
		if !valid[id] {
			return invariantf("casualty %s is not a valid target", id)
		}
		if seen[id] {
			return invariantf("casualty %s selected twice", id)
		}
		seen[id] = true
		absorbed += st.Unit(id).HitPointsLeft(st.TypeOf(id))
	}
	damage := make(map[string]int)
	for _, id := range details.Damaged {
		if !valid[id] {
			return invariantf("damaged unit %s is not a valid target", id)
		}
		if seen[id] {
			return invariantf("unit %s both killed and damaged", id)
		}
		damage[id]++
		if damage[id] >= st.Unit(id).HitPointsLeft(st.TypeOf(id)) {
			return invariantf("unit %s damaged beyond its hit points", id)
		}
		absorbed++
	}
	want := hits
	if total := totalHitPoints(st, targets); total < want {
		want = total
	}
	if absorbed != want {
		return invariantf("wrong number of casualties: selected %d hits, expected %d", absorbed, want)
	}
	return nil
}

// damageChange raises the hit counter of every damaged unit, once per entry.
func damageChange(st *world.State, damaged []string) world.Change {
	var change world.Change
	counts := make(map[string]int)
	var order []string
	for _, id := range damaged {
		if counts[id] == 0 {
			order = append(order, id)
		}
		counts[id]++
	}
	for _, id := range order {
		u := st.Unit(id)
		if u == nil {
			continue
		}
		change.Add(world.SetUnitInt(id, world.PropHits, u.Hits+counts[id]))
	}
	return change
}
