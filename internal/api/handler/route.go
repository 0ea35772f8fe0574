package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/vanroute/vanroute/internal/api/models"
	"github.com/vanroute/vanroute/internal/api/response"
	"github.com/vanroute/vanroute/internal/routing"
	"github.com/vanroute/vanroute/pkg/geo"
)

// RouteComputer runs the routing pipeline for one request. Implemented by
// routing.Orchestrator.
type RouteComputer interface {
	ComputeRoutes(ctx context.Context, req routing.Request) (*routing.Response, error)
}

// RouteHandler handles routing endpoints.
type RouteHandler struct {
	orchestrator RouteComputer
}

// NewRouteHandler creates a new RouteHandler.
func NewRouteHandler(orchestrator RouteComputer) *RouteHandler {
	return &RouteHandler{orchestrator: orchestrator}
}

// ComputeRoutes handles POST /v1/routes:compute - compute route options.
func (h *RouteHandler) ComputeRoutes(w http.ResponseWriter, r *http.Request) {
	var input models.RouteComputeRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	if input.Origin == nil || input.Destination == nil {
		response.BadRequest(w, r, "origin and destination are required", []models.FieldError{
			{Field: "origin", Message: "required"},
			{Field: "destination", Message: "required"},
		})
		return
	}

	req := toRoutingRequest(&input)

	resp, err := h.orchestrator.ComputeRoutes(r.Context(), req)
	if err != nil {
		writeRoutingError(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", "private, max-age=60")
	response.JSON(w, r, http.StatusOK, toComputeResponse(resp))
}

func toRoutingRequest(input *models.RouteComputeRequest) routing.Request {
	req := routing.Request{
		Origin:             geo.Point{Lat: input.Origin.Lat, Lng: input.Origin.Lng},
		Destination:        geo.Point{Lat: input.Destination.Lat, Lng: input.Destination.Lng},
		MaxWalkingDistance: input.MaxWalkingDistance,
		AvoidHighways:      input.AvoidHighways,
	}
	for _, p := range input.Preferences {
		req.Preferences = append(req.Preferences, routing.Preference(p))
	}
	for _, m := range input.TransportModes {
		req.Modes = append(req.Modes, routing.TransportMode(m))
	}
	if input.DepartureTime != nil {
		t := input.DepartureTime.Time()
		req.DepartureTime = &t
	}
	return req
}

func writeRoutingError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *routing.ValidationError
	switch {
	case errors.As(err, &validationErr):
		fieldErrs := make([]models.FieldError, len(validationErr.Fields))
		for i, f := range validationErr.Fields {
			fieldErrs[i] = models.FieldError{Field: f.Field, Message: f.Message}
		}
		response.BadRequest(w, r, "route request validation failed", fieldErrs)
	case errors.Is(err, routing.ErrNoRouteFound):
		response.NotFound(w, r, "no route found between the given points")
	case errors.Is(err, routing.ErrProviderUnavailable), errors.Is(err, routing.ErrRateLimitExceeded):
		response.ServiceUnavailable(w, r, "directions provider temporarily unavailable")
	default:
		response.InternalError(w, r, "route computation failed")
	}
}

func toComputeResponse(resp *routing.Response) models.RouteComputeResponse {
	out := models.RouteComputeResponse{
		RequestID:        resp.RequestID,
		GeneratedAt:      models.Timestamp(time.Now()),
		TopRoutes:        make(map[string]models.RouteOption, len(resp.TopRoutes)),
		ProcessingTimeMS: resp.ProcessingTime.Milliseconds(),
		DataSources:      resp.DataSources,
		Warnings:         resp.Warnings,
	}
	for pref, route := range resp.TopRoutes {
		out.TopRoutes[string(pref)] = toRouteOption(route)
	}
	for _, route := range resp.Alternatives {
		out.Alternatives = append(out.Alternatives, toRouteOption(route))
	}
	return out
}

func toRouteOption(route *routing.Route) models.RouteOption {
	opt := models.RouteOption{
		ID:                   route.ID,
		Preference:           string(route.Preference),
		DurationSeconds:      route.TotalDurationSeconds,
		DistanceMeters:       route.TotalDistanceMeters,
		SustainabilityPoints: route.SustainabilityPoints,
		Scores: models.AttributeScores{
			Safety: route.Scores.Safety,
			Energy: route.Scores.Energy,
			Scenic: route.Scores.Scenic,
			Health: route.Scores.Health,
			Cost:   route.Scores.Cost,
		},
		Steps: make([]models.RouteStep, 0, len(route.Steps)),
	}
	for i := range route.Steps {
		opt.Steps = append(opt.Steps, toRouteStep(&route.Steps[i]))
	}
	return opt
}

func toRouteStep(step *routing.RouteStep) models.RouteStep {
	out := models.RouteStep{
		Mode:            string(step.Mode),
		DistanceMeters:  step.DistanceMeters,
		DurationSeconds: step.DurationSeconds,
		Start:           models.Point{Lat: step.Start.Lat, Lng: step.Start.Lng},
		End:             models.Point{Lat: step.End.Lat, Lng: step.End.Lng},
		Polyline:        step.Polyline,
		Instruction:     step.Instruction,
		Effort:          string(step.Effort),
	}
	if td := step.Transit; td != nil {
		leg := &models.TransitLeg{
			RouteShortName:  td.RouteShortName,
			RouteLongName:   td.RouteLongName,
			VehicleKind:     td.VehicleKind,
			Headsign:        td.Headsign,
			DepartureStop:   td.DepartureStop,
			DepartureStopID: td.DepartureStopID,
			ArrivalStop:     td.ArrivalStop,
			StopCount:       td.StopCount,
			DelaySeconds:    td.DelaySeconds,
			IsDelayed:       td.IsDelayed,
		}
		if !td.ScheduledDeparture.IsZero() {
			ts := models.Timestamp(td.ScheduledDeparture)
			leg.ScheduledDeparture = &ts
		}
		if !td.ScheduledArrival.IsZero() {
			ts := models.Timestamp(td.ScheduledArrival)
			leg.ScheduledArrival = &ts
		}
		if !td.RealtimeDeparture.IsZero() {
			ts := models.Timestamp(td.RealtimeDeparture)
			leg.RealtimeDeparture = &ts
		}
		for _, alert := range td.Alerts {
			leg.Alerts = append(leg.Alerts, models.TransitAlert{
				Header:      alert.Header,
				Description: alert.Description,
				Effect:      string(alert.Effect),
			})
		}
		out.Transit = leg
	}
	return out
}
