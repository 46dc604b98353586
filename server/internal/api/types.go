package api

import "github.com/cardiosense/cardiosense/pkg/risk"

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status   string `json:"status"`
	RuleSet  string `json:"rule_set"`
	Readings int    `json:"readings"`
	Firing   int    `json:"firing_alerts"`
}

// RuleSetResponse is the payload for GET /api/v1/rules and
// GET /api/v1/rules/{name}.
type RuleSetResponse struct {
	Name       string             `json:"name"`
	Version    int                `json:"version"`
	ID         string             `json:"id"`
	Thresholds ThresholdsResponse `json:"thresholds"`
	Rules      []RuleResponse     `json:"rules"`
}

// ThresholdsResponse mirrors risk.Thresholds.
type ThresholdsResponse struct {
	Moderate int `json:"moderate"`
	High     int `json:"high"`
	Critical int `json:"critical"`
}

// RuleResponse is one rule of a RuleSetResponse.
type RuleResponse struct {
	Name      string     `json:"name"`
	Channel   string     `json:"channel"`
	Match     risk.Match `json:"match"`
	When      []string   `json:"when"`
	Delta     int        `json:"delta"`
	Emergency bool       `json:"emergency"`
}

// ClearResponse is the payload for DELETE /api/v1/history.
type ClearResponse struct {
	Message string `json:"message"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}

func toRuleSetResponse(rs *risk.RuleSet) RuleSetResponse {
	th := rs.Thresholds()
	rules := rs.Rules()
	out := RuleSetResponse{
		Name:    rs.Name(),
		Version: rs.Version(),
		ID:      rs.ID(),
		Thresholds: ThresholdsResponse{
			Moderate: th.Moderate,
			High:     th.High,
			Critical: th.Critical,
		},
		Rules: make([]RuleResponse, 0, len(rules)),
	}
	for _, r := range rules {
		when := make([]string, 0, len(r.Conditions))
		for _, c := range r.Conditions {
			when = append(when, c.String())
		}
		out.Rules = append(out.Rules, RuleResponse{
			Name:      r.Name,
			Channel:   r.Channel,
			Match:     r.Match,
			When:      when,
			Delta:     r.Delta,
			Emergency: r.Emergency,
		})
	}
	return out
}
