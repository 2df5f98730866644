// Package mitre provides static MITRE ATT&CK reference data and the
// event-type to tactic/technique mapping used to backfill alert
// classification when a detection rule carries no mapping of its own.
package mitre

// Tactic is an ATT&CK enterprise tactic.
type Tactic struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Technique is an ATT&CK enterprise technique or sub-technique.
type Technique struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Tactic   string `json:"tactic"`
	TacticID string `json:"tactic_id"`
}

// Mapping is the (tactic, technique, technique-id) triple resolved for an
// event type. Unrecognized event types yield the zero value.
type Mapping struct {
	Tactic      string `json:"tactic"`
	Technique   string `json:"technique"`
	TechniqueID string `json:"technique_id"`
}

// tactics holds the enterprise tactic reference table keyed by tactic ID.
var tactics = map[string]Tactic{
	"TA0043": {ID: "TA0043", Name: "Reconnaissance", Description: "Gathering information to plan operations"},
	"TA0001": {ID: "TA0001", Name: "Initial Access", Description: "Gaining entry to the target network"},
	"TA0002": {ID: "TA0002", Name: "Execution", Description: "Running malicious code"},
	"TA0003": {ID: "TA0003", Name: "Persistence", Description: "Maintaining foothold"},
	"TA0004": {ID: "TA0004", Name: "Privilege Escalation", Description: "Gaining higher-level permissions"},
	"TA0005": {ID: "TA0005", Name: "Defense Evasion", Description: "Avoiding detection"},
	"TA0006": {ID: "TA0006", Name: "Credential Access", Description: "Stealing account credentials"},
	"TA0007": {ID: "TA0007", Name: "Discovery", Description: "Learning about the environment"},
	"TA0008": {ID: "TA0008", Name: "Lateral Movement", Description: "Moving through the network"},
	"TA0009": {ID: "TA0009", Name: "Collection", Description: "Gathering data of interest"},
	"TA0011": {ID: "TA0011", Name: "Command and Control", Description: "Communicating with compromised systems"},
	"TA0010": {ID: "TA0010", Name: "Exfiltration", Description: "Stealing data"},
	"TA0040": {ID: "TA0040", Name: "Impact", Description: "Disrupting availability or integrity"},
}

// techniques holds the technique reference table keyed by technique ID.
var techniques = map[string]Technique{
	"T1595":     {ID: "T1595", Name: "Active Scanning", Tactic: "Reconnaissance", TacticID: "TA0043"},
	"T1595.001": {ID: "T1595.001", Name: "Scanning IP Blocks", Tactic: "Reconnaissance", TacticID: "TA0043"},
	"T1595.002": {ID: "T1595.002", Name: "Vulnerability Scanning", Tactic: "Reconnaissance", TacticID: "TA0043"},
	"T1046":     {ID: "T1046", Name: "Network Service Discovery", Tactic: "Discovery", TacticID: "TA0007"},
	"T1110":     {ID: "T1110", Name: "Brute Force", Tactic: "Credential Access", TacticID: "TA0006"},
	"T1110.001": {ID: "T1110.001", Name: "Password Guessing", Tactic: "Credential Access", TacticID: "TA0006"},
	"T1110.003": {ID: "T1110.003", Name: "Password Spraying", Tactic: "Credential Access", TacticID: "TA0006"},
	"T1190":     {ID: "T1190", Name: "Exploit Public-Facing Application", Tactic: "Initial Access", TacticID: "TA0001"},
	"T1059":     {ID: "T1059", Name: "Command and Scripting Interpreter", Tactic: "Execution", TacticID: "TA0002"},
	"T1059.001": {ID: "T1059.001", Name: "PowerShell", Tactic: "Execution", TacticID: "TA0002"},
	"T1059.004": {ID: "T1059.004", Name: "Unix Shell", Tactic: "Execution", TacticID: "TA0002"},
	"T1071":     {ID: "T1071", Name: "Application Layer Protocol", Tactic: "Command and Control", TacticID: "TA0011"},
	"T1071.001": {ID: "T1071.001", Name: "Web Protocols", Tactic: "Command and Control", TacticID: "TA0011"},
	"T1571":     {ID: "T1571", Name: "Non-Standard Port", Tactic: "Command and Control", TacticID: "TA0011"},
	"T1573":     {ID: "T1573", Name: "Encrypted Channel", Tactic: "Command and Control", TacticID: "TA0011"},
	"T1095":     {ID: "T1095", Name: "Non-Application Layer Protocol", Tactic: "Command and Control", TacticID: "TA0011"},
	"T1021":     {ID: "T1021", Name: "Remote Services", Tactic: "Lateral Movement", TacticID: "TA0008"},
	"T1021.004": {ID: "T1021.004", Name: "SSH", Tactic: "Lateral Movement", TacticID: "TA0008"},
	"T1078":     {ID: "T1078", Name: "Valid Accounts", Tactic: "Persistence", TacticID: "TA0003"},
	"T1048":     {ID: "T1048", Name: "Exfiltration Over Alternative Protocol", Tactic: "Exfiltration", TacticID: "TA0010"},
	"T1041":     {ID: "T1041", Name: "Exfiltration Over C2 Channel", Tactic: "Exfiltration", TacticID: "TA0010"},
	"T1018":     {ID: "T1018", Name: "Remote System Discovery", Tactic: "Discovery", TacticID: "TA0007"},
	"T1082":     {ID: "T1082", Name: "System Information Discovery", Tactic: "Discovery", TacticID: "TA0007"},
	"T1090":     {ID: "T1090", Name: "Proxy", Tactic: "Command and Control", TacticID: "TA0011"},
	"T1105":     {ID: "T1105", Name: "Ingress Tool Transfer", Tactic: "Command and Control", TacticID: "TA0011"},
	"T1027":     {ID: "T1027", Name: "Obfuscated Files or Information", Tactic: "Defense Evasion", TacticID: "TA0005"},
	"T1070":     {ID: "T1070", Name: "Indicator Removal", Tactic: "Defense Evasion", TacticID: "TA0005"},
}

// eventTypeMappings resolves a normalized event-type tag to its ATT&CK
// classification.
var eventTypeMappings = map[string]Mapping{
	"port_scan":            {Tactic: "Reconnaissance", Technique: "Active Scanning", TechniqueID: "T1595"},
	"ssh_brute_force":      {Tactic: "Credential Access", Technique: "Brute Force", TechniqueID: "T1110"},
	"ssh_login_failed":     {Tactic: "Credential Access", Technique: "Password Guessing", TechniqueID: "T1110.001"},
	"ssh_login_success":    {Tactic: "Lateral Movement", Technique: "SSH", TechniqueID: "T1021.004"},
	"reverse_shell":        {Tactic: "Execution", Technique: "Unix Shell", TechniqueID: "T1059.004"},
	"c2_beacon":            {Tactic: "Command and Control", Technique: "Application Layer Protocol", TechniqueID: "T1071"},
	"c2_communication":     {Tactic: "Command and Control", Technique: "Web Protocols", TechniqueID: "T1071.001"},
	"web_exploit":          {Tactic: "Initial Access", Technique: "Exploit Public-Facing Application", TechniqueID: "T1190"},
	"sql_injection":        {Tactic: "Initial Access", Technique: "Exploit Public-Facing Application", TechniqueID: "T1190"},
	"xss_attempt":          {Tactic: "Initial Access", Technique: "Exploit Public-Facing Application", TechniqueID: "T1190"},
	"path_traversal":       {Tactic: "Initial Access", Technique: "Exploit Public-Facing Application", TechniqueID: "T1190"},
	"lateral_movement":     {Tactic: "Lateral Movement", Technique: "Remote Services", TechniqueID: "T1021"},
	"data_exfiltration":    {Tactic: "Exfiltration", Technique: "Exfiltration Over C2 Channel", TechniqueID: "T1041"},
	"dns_query":            {Tactic: "Discovery", Technique: "Remote System Discovery", TechniqueID: "T1018"},
	"process_execution":    {Tactic: "Execution", Technique: "Command and Scripting Interpreter", TechniqueID: "T1059"},
	"privilege_escalation": {Tactic: "Privilege Escalation", Technique: "Valid Accounts", TechniqueID: "T1078"},
	"credential_dump":      {Tactic: "Credential Access", Technique: "Brute Force", TechniqueID: "T1110"},
}

// MapEventType resolves an event-type tag to its ATT&CK mapping. Unknown
// tags return the zero Mapping rather than an error.
func MapEventType(eventType string) Mapping {
	return eventTypeMappings[eventType]
}

// GetTactic returns the tactic for an ID, or nil when unknown.
func GetTactic(id string) *Tactic {
	if t, ok := tactics[id]; ok {
		return &t
	}
	return nil
}

// GetTechnique returns the technique for an ID, or nil when unknown.
func GetTechnique(id string) *Technique {
	if t, ok := techniques[id]; ok {
		return &t
	}
	return nil
}

// AllTactics returns the full tactic reference table.
func AllTactics() []Tactic {
	out := make([]Tactic, 0, len(tactics))
	for _, t := range tactics {
		out = append(out, t)
	}
	return out
}

// AllTechniques returns the full technique reference table.
func AllTechniques() []Technique {
	out := make([]Technique, 0, len(techniques))
	for _, t := range techniques {
		out = append(out, t)
	}
	return out
}

// TechniqueCoverage describes detection coverage for one technique.
type TechniqueCoverage struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Detected bool   `json:"detected"`
}

// TacticCoverage groups technique coverage under one tactic.
type TacticCoverage struct {
	TacticID   string              `json:"tactic_id"`
	Techniques []TechniqueCoverage `json:"techniques"`
	Total      int                 `json:"total"`
	Detected   int                 `json:"detected"`
}

// CoverageMatrix builds per-tactic coverage from the set of technique IDs
// observed in generated alerts.
func CoverageMatrix(detectedTechniqueIDs []string) map[string]TacticCoverage {
	detected := make(map[string]struct{}, len(detectedTechniqueIDs))
	for _, id := range detectedTechniqueIDs {
		detected[id] = struct{}{}
	}

	coverage := make(map[string]TacticCoverage, len(tactics))
	for tacticID, tactic := range tactics {
		tc := TacticCoverage{TacticID: tacticID}
		for _, tech := range techniques {
			if tech.TacticID != tacticID {
				continue
			}
			_, hit := detected[tech.ID]
			tc.Techniques = append(tc.Techniques, TechniqueCoverage{ID: tech.ID, Name: tech.Name, Detected: hit})
			tc.Total++
			if hit {
				tc.Detected++
			}
		}
		coverage[tactic.Name] = tc
	}
	return coverage
}
