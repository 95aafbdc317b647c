// Package geofence turns raw position samples into semantic proximity events:
// reached, near (with deduplicated alerts) and far.
package geofence

import (
	"fmt"

	"github.com/fieldquest/fieldtrack/internal/geo"
)

// Kind classifies what a geofence unlocks when visited.
type Kind string

const (
	KindCheckpoint Kind = "checkpoint"
	KindChallenge  Kind = "challenge"
	KindReward     Kind = "reward"
	KindClue       Kind = "clue"
)

// Definition is a circular geographic region tied to a mission. Definitions
// are owned by the cache: they are read-only at runtime and superseded, never
// mutated, when a fresher set arrives from the remote API.
type Definition struct {
	ID             string  `json:"id"`
	MissionID      string  `json:"missionId"`
	StageID        string  `json:"stageId,omitempty"`
	Name           string  `json:"name"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	RadiusMeters   float64 `json:"radius"`
	Kind           Kind    `json:"type"`
	RequiredAction string  `json:"requiredAction,omitempty"`
}

// Contains reports whether the sample falls inside the geofence radius.
func (d Definition) Contains(s geo.PositionSample) bool {
	return s.DistanceTo(d.Latitude, d.Longitude) <= d.RadiusMeters
}

// Alert is an ephemeral notification that a geofence is nearby but not yet
// entered. Alerts are non-authoritative: nothing is persisted for them.
type Alert struct {
	GeofenceID     string  `json:"geofenceId"`
	MissionID      string  `json:"missionId"`
	Name           string  `json:"name"`
	DistanceMeters float64 `json:"distance"`
	Kind           Kind    `json:"type"`
	Message        string  `json:"message"`
}

func alertMessage(d Definition, distance float64) string {
	dist := fmt.Sprintf("%.0fm", distance)
	if distance >= 1000 {
		dist = fmt.Sprintf("%.1fkm", distance/1000)
	}

	switch d.Kind {
	case KindCheckpoint:
		return fmt.Sprintf("Mission checkpoint nearby! %s is %s away.", d.Name, dist)
	case KindChallenge:
		return fmt.Sprintf("Challenge location detected! %s is %s away.", d.Name, dist)
	case KindReward:
		return fmt.Sprintf("Reward location nearby! %s is %s away.", d.Name, dist)
	case KindClue:
		return fmt.Sprintf("Clue location detected! %s is %s away.", d.Name, dist)
	default:
		return fmt.Sprintf("Mission location nearby: %s (%s)", d.Name, dist)
	}
}
