package simulate

import "fmt"

// Scenario identifiers.
const (
	ScenarioFullAttackChain = "full_attack_chain"
	ScenarioSSHBruteForce   = "ssh_brute_force"
	ScenarioPortScan        = "port_scan"
	ScenarioWebAttack       = "web_attack"
	ScenarioLateralMovement = "lateral_movement"
)

// ScenarioInfo describes one runnable scenario for the catalog endpoint.
type ScenarioInfo struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	Phases          []string `json:"phases"`
	EstimatedEvents string   `json:"estimated_events"`
	Severity        string   `json:"severity"`
}

// Scenarios returns the catalog of available attack scenarios.
func Scenarios() []ScenarioInfo {
	return []ScenarioInfo{
		{
			ID:              ScenarioFullAttackChain,
			Name:            "Full Attack Chain",
			Description:     "Complete kill chain: Recon → Brute Force → Reverse Shell → C2 → Lateral Movement → Exfiltration",
			Phases:          []string{"Reconnaissance", "Initial Access", "Execution", "C2", "Lateral Movement", "Exfiltration"},
			EstimatedEvents: "80-200",
			Severity:        "critical",
		},
		{
			ID:              ScenarioSSHBruteForce,
			Name:            "SSH Brute Force",
			Description:     "Multiple failed SSH login attempts from a single attacker IP",
			Phases:          []string{"Credential Access"},
			EstimatedEvents: "15-60",
			Severity:        "high",
		},
		{
			ID:              ScenarioPortScan,
			Name:            "Port Scan",
			Description:     "Network reconnaissance via port scanning activity",
			Phases:          []string{"Reconnaissance"},
			EstimatedEvents: "30-120",
			Severity:        "medium",
		},
		{
			ID:              ScenarioWebAttack,
			Name:            "Web Application Attack",
			Description:     "SQL injection, XSS, and path traversal attempts",
			Phases:          []string{"Initial Access"},
			EstimatedEvents: "12-50",
			Severity:        "high",
		},
		{
			ID:              ScenarioLateralMovement,
			Name:            "Lateral Movement",
			Description:     "Internal pivoting from compromised host to other systems",
			Phases:          []string{"Lateral Movement", "Discovery"},
			EstimatedEvents: "5-20",
			Severity:        "high",
		},
	}
}

// IsValidScenario reports whether the ID names a known scenario.
func IsValidScenario(id string) bool {
	for _, s := range Scenarios() {
		if s.ID == id {
			return true
		}
	}
	return false
}

// Address and identity pools the generators draw from. Documentation ranges
// (RFC 5737) for external traffic, a private /24 for the simulated network.
var (
	internalIPs = ipRange("10.0.1.%d", 10, 60)
	externalIPs = append(ipRange("203.0.113.%d", 1, 20), ipRange("198.51.100.%d", 1, 10)...)
	attackerIPs = []string{"45.33.32.156", "185.220.101.42", "91.219.236.222", "192.241.193.115"}
	c2Servers   = []string{"198.51.100.50", "203.0.113.99", "91.219.236.200"}

	commonPorts   = []int{22, 80, 443, 8080, 3306, 5432, 6379, 8443, 9200}
	uncommonPorts = []int{4444, 5555, 1337, 31337, 9001, 8888, 6667, 12345}

	usernames = []string{"admin", "root", "user", "deploy", "jenkins", "postgres", "www-data"}
	hostnames = []string{
		"web-srv-1", "web-srv-2", "web-srv-3", "web-srv-4",
		"db-srv-1", "db-srv-2", "jump-host", "bastion-01",
	}
)

type benignTemplate struct {
	eventType string
	action    string
	severity  string
}

var benignTemplates = []benignTemplate{
	{"http_request", "allowed", "info"},
	{"dns_query", "success", "info"},
	{"ssh_login_success", "success", "info"},
	{"file_access", "allowed", "info"},
	{"process_execution", "success", "info"},
}

type webPayload struct {
	attackType string
	payload    string
	rawLog     string
}

var webPayloads = []webPayload{
	{"sql_injection", "' OR 1=1 --", "GET /login?user=' OR 1=1 --"},
	{"sql_injection", "'; DROP TABLE users; --", `POST /api/search body={"q": "'; DROP TABLE users; --"}`},
	{"xss_attempt", "<script>alert('xss')</script>", "GET /search?q=<script>alert('xss')</script>"},
	{"path_traversal", "../../etc/passwd", "GET /files?path=../../etc/passwd"},
	{"web_exploit", "eval(base64_decode(...))", "POST /upload with eval() in body"},
}

func ipRange(format string, from, to int) []string {
	ips := make([]string, 0, to-from)
	for i := from; i < to; i++ {
		ips = append(ips, fmt.Sprintf(format, i))
	}
	return ips
}
