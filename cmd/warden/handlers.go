package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/horizon-devs/warden/automod/engine"
	"github.com/horizon-devs/warden/automod/event"
	"github.com/horizon-devs/warden/automod/promote"
	"github.com/horizon-devs/warden/automod/schedule"

	"github.com/carlmjohnson/versioninfo"
	"github.com/labstack/echo/v4"
)

type GenericError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type GenericStatus struct {
	Daemon  string `json:"daemon"`
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Message string `json:"message,omitempty"`
}

func (srv *Server) errorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	var errorMessage string
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		errorMessage = fmt.Sprintf("%s", he.Message)
	}
	if code >= 500 {
		srv.logger.Warn("warden-http-internal-error", "err", err)
	}
	c.JSON(code, GenericStatus{Status: "error", Daemon: "warden", Message: errorMessage})
}

// Maps engine errors to HTTP responses: malformed requests are 400, failed platform actions 502.
func errorResponse(c echo.Context, op string, err error) error {
	var verr *schedule.ValidationError
	switch {
	case errors.As(err, &verr):
		adminRequests.WithLabelValues(op, "invalid").Inc()
		return c.JSON(http.StatusBadRequest, GenericError{
			Error:   "InvalidRequest",
			Message: verr.Error(),
		})
	case errors.Is(err, engine.ErrActionFailed):
		adminRequests.WithLabelValues(op, "action-failed").Inc()
		return c.JSON(http.StatusBadGateway, GenericError{
			Error:   "ActionFailed",
			Message: err.Error(),
		})
	default:
		adminRequests.WithLabelValues(op, "error").Inc()
		return c.JSON(http.StatusInternalServerError, GenericError{
			Error:   "InternalError",
			Message: err.Error(),
		})
	}
}

func badRequest(c echo.Context, op, format string, args ...any) error {
	adminRequests.WithLabelValues(op, "invalid").Inc()
	return c.JSON(http.StatusBadRequest, GenericError{
		Error:   "InvalidRequest",
		Message: fmt.Sprintf(format, args...),
	})
}

func (srv *Server) HandleHealthCheck(c echo.Context) error {
	if srv.rdb != nil {
		if err := srv.rdb.Ping(c.Request().Context()).Err(); err != nil {
			srv.logger.Error("health check: redis ping failed", "err", err)
			return c.JSON(http.StatusServiceUnavailable, GenericStatus{Status: "error", Daemon: "warden", Message: "redis unavailable"})
		}
	}
	return c.JSON(http.StatusOK, GenericStatus{Status: "ok", Daemon: "warden", Version: versioninfo.Short()})
}

type ActorRequest struct {
	Community string `json:"community"`
	User      string `json:"user"`
}

func (r ActorRequest) Actor() event.ActorKey {
	return event.ActorKey{Community: r.Community, User: r.User}
}

type ActivityRequest struct {
	ActorRequest
	Text string `json:"text"`
	// optional; needed for removal and notices
	Channel string `json:"channel,omitempty"`
	Message string `json:"message,omitempty"`
}

type ActivityResponse struct {
	Burst         bool     `json:"burst"`
	Flagged       []string `json:"flagged,omitempty"`
	Restricted    bool     `json:"restricted"`
	ExpiryID      string   `json:"expiryId,omitempty"`
	BlockedPhrase string   `json:"blockedPhrase,omitempty"`
	Removed       bool     `json:"removed"`
}

// Injects a single activity event, as if it had arrived from the chat platform.
func (srv *Server) HandleActivity(c echo.Context) error {
	ctx := c.Request().Context()
	var req ActivityRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "activity", "invalid body: %s", err)
	}
	evt := event.ActivityEvent{
		Actor: req.Actor(),
		Text:  req.Text,
	}
	if req.Channel != "" && req.Message != "" {
		evt.Message = &event.MessageRef{Community: req.Community, Channel: req.Channel, Message: req.Message}
	}
	res, err := srv.Engine.OnActivityEvent(ctx, evt)
	if err != nil {
		return badRequest(c, "activity", "%s", err)
	}
	adminRequests.WithLabelValues("activity", "ok").Inc()
	return c.JSON(http.StatusOK, ActivityResponse{
		Burst:         res.Burst,
		Flagged:       res.Flagged,
		Restricted:    res.Restricted,
		ExpiryID:      res.ExpiryID,
		BlockedPhrase: res.BlockedPhrase,
		Removed:       res.Removed,
	})
}

type VoteRequest struct {
	Content   string `json:"content"`
	Voter     string `json:"voter"`
	Direction string `json:"direction"`
	// withdraw a previous vote instead of casting one
	Retract bool `json:"retract,omitempty"`
}

type TallyResponse struct {
	Content  string `json:"content"`
	Up       int    `json:"up"`
	Down     int    `json:"down"`
	Promoted bool   `json:"promoted"`
}

func tallyResponse(content event.ContentID, t promote.Tally, promoted bool) TallyResponse {
	return TallyResponse{Content: string(content), Up: t.Up, Down: t.Down, Promoted: promoted}
}

func (srv *Server) HandleVote(c echo.Context) error {
	ctx := c.Request().Context()
	var req VoteRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "vote", "invalid body: %s", err)
	}
	dir, err := event.ParseDirection(req.Direction)
	if err != nil {
		return badRequest(c, "vote", "%s", err)
	}
	evt := event.VoteEvent{Content: event.ContentID(req.Content), Voter: req.Voter, Direction: dir}

	if req.Retract {
		tally, err := srv.Engine.OnVoteRetract(ctx, evt)
		if err != nil {
			return badRequest(c, "vote", "%s", err)
		}
		adminRequests.WithLabelValues("vote", "ok").Inc()
		return c.JSON(http.StatusOK, tallyResponse(evt.Content, tally, srv.Engine.Gate.Promoted(evt.Content)))
	}

	res, err := srv.Engine.OnVote(ctx, evt)
	if err != nil {
		return badRequest(c, "vote", "%s", err)
	}
	adminRequests.WithLabelValues("vote", "ok").Inc()
	return c.JSON(http.StatusOK, tallyResponse(evt.Content, res.Tally, srv.Engine.Gate.Promoted(evt.Content)))
}

func (srv *Server) HandleTally(c echo.Context) error {
	content := event.ContentID(c.QueryParam("content"))
	if content == "" {
		return badRequest(c, "tally", "content parameter required")
	}
	adminRequests.WithLabelValues("tally", "ok").Inc()
	return c.JSON(http.StatusOK, tallyResponse(content, srv.Engine.Gate.Tally(content), srv.Engine.Gate.Promoted(content)))
}

type ScheduledAction struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	Due         time.Time `json:"due"`
	Actor       string    `json:"actor"`
	Restriction string    `json:"restriction,omitempty"`
	Destination string    `json:"destination,omitempty"`
}

func scheduledAction(act schedule.Action) ScheduledAction {
	return ScheduledAction{
		ID:          act.ID,
		Kind:        string(act.Kind),
		Due:         act.Due,
		Actor:       act.Payload.Actor.String(),
		Restriction: string(act.Payload.Restriction),
		Destination: act.Payload.Destination,
	}
}

// Lists pending actions, soonest first. Optionally filtered by "actor" ("community/user").
func (srv *Server) HandleListScheduled(c echo.Context) error {
	match := func(schedule.Action) bool { return true }
	if raw := c.QueryParam("actor"); raw != "" {
		actor, err := event.ParseActorKey(raw)
		if err != nil {
			return badRequest(c, "list-scheduled", "%s", err)
		}
		match = func(act schedule.Action) bool { return act.Payload.Actor == actor }
	}
	acts := srv.Engine.Scheduler.Find(match)
	out := make([]ScheduledAction, 0, len(acts))
	for _, act := range acts {
		out = append(out, scheduledAction(act))
	}
	adminRequests.WithLabelValues("list-scheduled", "ok").Inc()
	return c.JSON(http.StatusOK, out)
}

type RestrictionRequest struct {
	ActorRequest
	Restriction string `json:"restriction"`
	// eg, "10m" or "2h"
	Delay  string `json:"delay"`
	Reason string `json:"reason"`
}

type ScheduleResponse struct {
	ID  string    `json:"id"`
	Due time.Time `json:"due"`
}

func (srv *Server) scheduled(c echo.Context, op, id string) error {
	act, ok := srv.Engine.Scheduler.Get(id)
	if !ok {
		// executed (or cancelled) before we got here
		adminRequests.WithLabelValues(op, "ok").Inc()
		return c.JSON(http.StatusOK, ScheduleResponse{ID: id})
	}
	adminRequests.WithLabelValues(op, "ok").Inc()
	return c.JSON(http.StatusOK, ScheduleResponse{ID: id, Due: act.Due})
}

// Restricts an actor now, and schedules the restriction to be lifted after the delay.
func (srv *Server) HandleScheduleRestriction(c echo.Context) error {
	ctx := c.Request().Context()
	var req RestrictionRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "schedule-restriction", "invalid body: %s", err)
	}
	delay, err := schedule.ParseDelay(req.Delay)
	if err != nil {
		return errorResponse(c, "schedule-restriction", err)
	}
	id, err := srv.Engine.OnScheduleRequest(ctx, engine.ScheduleRequest{
		Kind:        schedule.RestrictionExpiry,
		Delay:       delay,
		Actor:       req.Actor(),
		Restriction: schedule.RestrictionType(req.Restriction),
		Reason:      req.Reason,
	})
	if err != nil {
		return errorResponse(c, "schedule-restriction", err)
	}
	return srv.scheduled(c, "schedule-restriction", id)
}

type ReminderRequest struct {
	ActorRequest
	Destination string `json:"destination"`
	Text        string `json:"text"`
	// relative ("30m") or absolute ("2024-03-01 15:04")
	When string `json:"when"`
}

func (srv *Server) HandleScheduleReminder(c echo.Context) error {
	ctx := c.Request().Context()
	var req ReminderRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "schedule-reminder", "invalid body: %s", err)
	}
	delay, err := schedule.ParseWhen(req.When, srv.Engine.Clock.Now())
	if err != nil {
		return errorResponse(c, "schedule-reminder", err)
	}
	id, err := srv.Engine.OnScheduleRequest(ctx, engine.ScheduleRequest{
		Kind:        schedule.ReminderDelivery,
		Delay:       delay,
		Actor:       req.Actor(),
		Destination: req.Destination,
		Text:        req.Text,
	})
	if err != nil {
		return errorResponse(c, "schedule-reminder", err)
	}
	return srv.scheduled(c, "schedule-reminder", id)
}

type CancelResponse struct {
	ID        string `json:"id"`
	Cancelled bool   `json:"cancelled"`
}

// Cancelling an unknown or already-executed action is not an error; the response says whether anything was cancelled.
func (srv *Server) HandleCancel(c echo.Context) error {
	id := c.Param("id")
	ok := srv.Engine.OnCancelRequest(c.Request().Context(), id)
	adminRequests.WithLabelValues("cancel", "ok").Inc()
	return c.JSON(http.StatusOK, CancelResponse{ID: id, Cancelled: ok})
}

type LiftRequest struct {
	ActorRequest
	Restriction string `json:"restriction"`
}

type LiftResponse struct {
	Cancelled int `json:"cancelled"`
}

func (srv *Server) HandleLift(c echo.Context) error {
	ctx := c.Request().Context()
	var req LiftRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "lift", "invalid body: %s", err)
	}
	n, err := srv.Engine.LiftRestriction(ctx, req.Actor(), schedule.RestrictionType(req.Restriction))
	if errors.Is(err, engine.ErrActionFailed) {
		return errorResponse(c, "lift", err)
	} else if err != nil {
		return badRequest(c, "lift", "%s", err)
	}
	adminRequests.WithLabelValues("lift", "ok").Inc()
	return c.JSON(http.StatusOK, LiftResponse{Cancelled: n})
}

type FlagsResponse struct {
	Actor string   `json:"actor"`
	Flags []string `json:"flags"`
	// flag name to the start of its active cooldown (RFC 3339)
	CoolingDown map[string]string `json:"coolingDown,omitempty"`
}

func (srv *Server) flagsResponse(ctx context.Context, actor event.ActorKey, flags []string) (FlagsResponse, error) {
	resp := FlagsResponse{Actor: actor.String(), Flags: flags}
	for _, flag := range flags {
		since, active, err := srv.Engine.FlagCooldownSince(ctx, actor, flag)
		if err != nil {
			return resp, err
		}
		if !active {
			continue
		}
		if resp.CoolingDown == nil {
			resp.CoolingDown = make(map[string]string)
		}
		resp.CoolingDown[flag] = since.Format(time.RFC3339)
	}
	return resp, nil
}

func (srv *Server) HandleGetFlags(c echo.Context) error {
	ctx := c.Request().Context()
	actor, err := event.ParseActorKey(c.QueryParam("actor"))
	if err != nil {
		return badRequest(c, "get-flags", "%s", err)
	}
	flags, err := srv.Flags.Get(ctx, actor)
	if err != nil {
		return errorResponse(c, "get-flags", err)
	}
	resp, err := srv.flagsResponse(ctx, actor, flags)
	if err != nil {
		return errorResponse(c, "get-flags", err)
	}
	adminRequests.WithLabelValues("get-flags", "ok").Inc()
	return c.JSON(http.StatusOK, resp)
}

// Clears a single flag ("flag" parameter) from an actor, eg after moderator review, and ends its cooldown.
func (srv *Server) HandleClearFlag(c echo.Context) error {
	ctx := c.Request().Context()
	actor, err := event.ParseActorKey(c.QueryParam("actor"))
	if err != nil {
		return badRequest(c, "clear-flag", "%s", err)
	}
	flag := c.QueryParam("flag")
	if flag == "" {
		return badRequest(c, "clear-flag", "flag parameter required")
	}
	if err := srv.Flags.Remove(ctx, actor, flag); err != nil {
		return errorResponse(c, "clear-flag", err)
	}
	if err := srv.Engine.ResetFlagCooldown(ctx, actor, flag); err != nil {
		return errorResponse(c, "clear-flag", err)
	}
	flags, err := srv.Flags.Get(ctx, actor)
	if err != nil {
		return errorResponse(c, "clear-flag", err)
	}
	resp, err := srv.flagsResponse(ctx, actor, flags)
	if err != nil {
		return errorResponse(c, "clear-flag", err)
	}
	adminRequests.WithLabelValues("clear-flag", "ok").Inc()
	return c.JSON(http.StatusOK, resp)
}

type FlaggedResponse struct {
	Community string   `json:"community"`
	Users     []string `json:"users"`
}

// Lists the users in a community holding any flag.
func (srv *Server) HandleFlagged(c echo.Context) error {
	community := c.QueryParam("community")
	if community == "" {
		return badRequest(c, "flagged", "community parameter required")
	}
	actors, err := srv.Flags.Flagged(c.Request().Context(), community)
	if err != nil {
		return errorResponse(c, "flagged", err)
	}
	users := make([]string, 0, len(actors))
	for _, a := range actors {
		users = append(users, a.User)
	}
	adminRequests.WithLabelValues("flagged", "ok").Inc()
	return c.JSON(http.StatusOK, FlaggedResponse{Community: community, Users: users})
}

type RecentActivityResponse struct {
	Actor     string `json:"actor"`
	Count     int    `json:"count"`
	Threshold int    `json:"threshold"`
	Window    string `json:"window"`
}

// Reports how many events the actor has inside the current rate window.
func (srv *Server) HandleRecentActivity(c echo.Context) error {
	actor, err := event.ParseActorKey(c.QueryParam("actor"))
	if err != nil {
		return badRequest(c, "recent-activity", "%s", err)
	}
	adminRequests.WithLabelValues("recent-activity", "ok").Inc()
	return c.JSON(http.StatusOK, RecentActivityResponse{
		Actor:     actor.String(),
		Count:     srv.Engine.RecentActivity(actor),
		Threshold: srv.Engine.Limiter.Threshold(),
		Window:    srv.Engine.Limiter.Window().String(),
	})
}
