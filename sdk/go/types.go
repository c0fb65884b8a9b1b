package sdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// User mirrors the public JSON surface of engine.UserView.
type User struct {
	UUID         string `json:"uuid"`
	Name         string `json:"name"`
	DisplayName  string `json:"displayName"`
	Level        int64  `json:"level"`
	Exp          string `json:"exp"`
	RequiredExp  string `json:"requiredExp"`
	RemainingExp string `json:"remainingExp"`
	Percent      string `json:"percent"`
	ProgressBar  string `json:"progressBar"`
	Position     int    `json:"position"`
}

// Result mirrors the outcome of an experience or level operation.
type Result struct {
	Level        int64   `json:"level"`
	Exp          string  `json:"exp"`
	LevelsGained int64   `json:"levelsGained,omitempty"`
	LevelsLost   int64   `json:"levelsLost,omitempty"`
	Display      string  `json:"display,omitempty"`
	RewardLevels []int64 `json:"rewardLevels,omitempty"`
}

// BoardEntry is one leaderboard row.
type BoardEntry struct {
	Position int    `json:"position"`
	UUID     string `json:"uuid"`
	Name     string `json:"name"`
	Level    int64  `json:"level"`
	Exp      string `json:"exp"`
}

// HealthStatus describes the /healthz response.
type HealthStatus struct {
	Status string                 `json:"status"`
	Checks map[string]interface{} `json:"checks"`
}

// APIError is a structured error response from the server.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Code, e.Message)
}

func decodeJSON(resp *http.Response, target any) error {
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		if json.Unmarshal(body, apiErr) != nil || apiErr.Code == "" {
			return fmt.Errorf("request failed: status %d", resp.StatusCode)
		}
		return apiErr
	}
	if target == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

// ErrEmptyUserID is returned when user id is empty.
var ErrEmptyUserID = errors.New("user id is required")
