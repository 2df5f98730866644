package correlate

// KillChainPhases orders the phases by attack progression. Correlation always
// reports the furthest phase reached by an incident's observed tactics.
var KillChainPhases = []string{
	"reconnaissance",
	"initial_access",
	"execution",
	"persistence",
	"privilege_escalation",
	"defense_evasion",
	"credential_access",
	"discovery",
	"lateral_movement",
	"collection",
	"command_and_control",
	"exfiltration",
	"impact",
}

var tacticToPhase = map[string]string{
	"Reconnaissance":       "reconnaissance",
	"Initial Access":       "initial_access",
	"Execution":            "execution",
	"Persistence":          "persistence",
	"Privilege Escalation": "privilege_escalation",
	"Defense Evasion":      "defense_evasion",
	"Credential Access":    "credential_access",
	"Discovery":            "discovery",
	"Lateral Movement":     "lateral_movement",
	"Collection":           "collection",
	"Command and Control":  "command_and_control",
	"Exfiltration":         "exfiltration",
	"Impact":               "impact",
}

var phaseOrdinal = func() map[string]int {
	m := make(map[string]int, len(KillChainPhases))
	for i, p := range KillChainPhases {
		m[p] = i
	}
	return m
}()

// DetermineKillChainPhase maps observed MITRE tactics to the furthest kill
// chain phase. Tactics with no mapping are ignored; with no mappable tactic
// at all the phase defaults to reconnaissance.
func DetermineKillChainPhase(tactics []string) string {
	best := -1
	phase := "reconnaissance"
	for _, tactic := range tactics {
		p, ok := tacticToPhase[tactic]
		if !ok {
			continue
		}
		if ord := phaseOrdinal[p]; ord > best {
			best = ord
			phase = p
		}
	}
	return phase
}

// PhaseOrdinal returns a phase's position in the kill chain, or -1 for
// unknown phases.
func PhaseOrdinal(phase string) int {
	if ord, ok := phaseOrdinal[phase]; ok {
		return ord
	}
	return -1
}
