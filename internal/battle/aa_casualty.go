package battle

import "context"

// selectAACasualties kills min(hits, targets) units outright. Without the choose rule (or in a
// headless battle) the first units in target order are taken.
func selectAACasualties(ctx context.Context, br Bridge, headless bool, req CasualtyRequest) (CasualtyDetails, error) {
	count := req.Hits
	if count > len(req.Targets) {
		count = len(req.Targets)
	}
	if count <= 0 {
		return CasualtyDetails{AutoCalculated: true}, nil
	}
	if count == len(req.Targets) || !br.Rules().ChooseAACasualties || headless || singleChoice(br.State(), req.Targets) {
		return CasualtyDetails{Killed: append([]string(nil), req.Targets[:count]...), AutoCalculated: true}, nil
	}

	req.Hits = count
	req.Defaults = CasualtyDetails{Killed: append([]string(nil), req.Targets[:count]...)}
	var details CasualtyDetails
	err := callRemote(br, func() error {
		var err error
		details, err = remoteFor(br, req.Player).SelectCasualties(ctx, req)
		return err
	})
	if err != nil {
		return CasualtyDetails{}, err
	}
	if len(details.Damaged) > 0 {
		return CasualtyDetails{}, invariantf("aa casualties cannot be damaged")
	}
	valid := make(map[string]bool, len(req.Targets))
	for _, id := range req.Targets {
		valid[id] = true
	}
	seen := make(map[string]bool)
	for _, id := range details.Killed {
		if !valid[id] || seen[id] {
			return CasualtyDetails{}, invariantf("invalid aa casualty %s", id)
		}
		seen[id] = true
	}
	if len(details.Killed) != count {
		return CasualtyDetails{}, invariantf("wrong number of aa casualties: selected %d, expected %d", len(details.Killed), count)
	}
	details.AutoCalculated = false
	return details, nil
}
