package pow

import (
	"encoding/hex"
	"encoding/json"

	"proxy-pow-filter/internal/response"
)

// probeLevel is the fixed difficulty level reported by the debug route,
// matching the constant the original demo used — an operator-facing
// probe, not a client-issued challenge.
const probeLevel = 1_000_000

// DifficultyProbePath is the literal path handled before routing, an
// operator diagnostic route separate from the rate-limited traffic path.
const DifficultyProbePath = "/api/difficulty"

// DifficultyProbe answers a GET on DifficultyProbePath with the current
// chain head and the target for probeLevel, letting an operator inspect
// current difficulty without spending any CPU.
func DifficultyProbe(c Chain) (response.Response, bool) {
	current, ok := c.GetLatestHash()
	if !ok {
		return response.Response{}, false
	}
	target := GetDifficulty(probeLevel)
	body, _ := json.Marshal(struct {
		Current    string `json:"current"`
		Difficulty string `json:"difficulty"`
	}{current.String(), hex.EncodeToString(target[:])})
	return response.Response{
		Code:    200,
		Headers: []response.Header{{Name: "Content-Type", Value: "application/json"}},
		Body:    body,
	}, true
}
