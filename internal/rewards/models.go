// Package rewards computes sustainability rewards for completed routes and
// dispatches them to the gamification pipeline.
package rewards

import (
	"time"

	"github.com/vanroute/vanroute/internal/routing"
)

// emissionsKGPerKM is the estimated CO2 output per passenger-kilometre for
// each mode. Car is the comparison baseline for savings.
var emissionsKGPerKM = map[routing.TransportMode]float64{
	routing.ModeWalk:         0.0,
	routing.ModeBike:         0.0,
	routing.ModeScooter:      0.02,
	routing.ModeBus:          0.05,
	routing.ModeRail:         0.03,
	routing.ModeFerry:        0.05,
	routing.ModeCommuterRail: 0.03,
	routing.ModeCar:          0.12,
}

// Bonus multipliers applied to a route's base sustainability points.
const (
	multiModalBonus = 1.1 // more than one sustainable mode used
	carFreeBonus    = 1.3 // no car leg anywhere on the route
)

// Reward is the computed outcome for one completed route.
type Reward struct {
	Points     int     `json:"points"`
	CO2SavedKG float64 `json:"co2_saved_kg"`
}

// Completion is the event published when a rider finishes a route.
type Completion struct {
	RequestID       string                  `json:"request_id"`
	RouteID         string                  `json:"route_id"`
	Modes           []routing.TransportMode `json:"modes"`
	DistanceMeters  float64                 `json:"distance_meters"`
	DurationSeconds int                     `json:"duration_seconds"`
	Reward          Reward                  `json:"reward"`
	CompletedAt     time.Time               `json:"completed_at"`
}

// ComputeReward derives the reward for a route: its accumulated
// sustainability points scaled by the mode-mix bonuses, plus the CO2 saved
// against driving the same legs.
func ComputeReward(route *routing.Route) Reward {
	multiplier := 1.0

	sustainable := make(map[routing.TransportMode]struct{})
	usedCar := false
	for i := range route.Steps {
		mode := route.Steps[i].Mode
		if mode == routing.ModeCar {
			usedCar = true
			continue
		}
		if mode.IsActive() || mode.IsTransit() {
			sustainable[mode] = struct{}{}
		}
	}
	if len(sustainable) > 1 {
		multiplier *= multiModalBonus
	}
	if !usedCar {
		multiplier *= carFreeBonus
	}

	return Reward{
		Points:     int(float64(route.SustainabilityPoints) * multiplier),
		CO2SavedKG: co2Savings(route),
	}
}

// co2Savings sums, per step, the emissions a car would have produced over
// the same distance minus the chosen mode's emissions. Legs dirtier than a
// car contribute zero, never negative.
func co2Savings(route *routing.Route) float64 {
	total := 0.0
	for i := range route.Steps {
		step := &route.Steps[i]
		km := step.DistanceMeters / 1000
		saved := km*emissionsKGPerKM[routing.ModeCar] - km*emissionsKGPerKM[step.Mode]
		if saved > 0 {
			total += saved
		}
	}
	return total
}
