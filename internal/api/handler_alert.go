package api

import (
	"errors"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/google/uuid"

	"github.com/agenttrace/agenttrace/internal/apperrors"
	"github.com/agenttrace/agenttrace/internal/models"
)

var errAlertingNotConfigured = errors.New("alert evaluator not configured")

// listAlertRulesHandler handles GET /api/v1/alerts/rules.
func (s *Server) listAlertRulesHandler(c *echo.Context) error {
	enabledOnly := c.QueryParam("enabled") == "true"
	rules, err := s.store.ListRules(c.Request().Context(), enabledOnly)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, rules)
}

// createAlertRuleHandler handles POST /api/v1/alerts/rules.
func (s *Server) createAlertRuleHandler(c *echo.Context) error {
	var in models.AlertRuleInput
	if err := c.Bind(&in); err != nil {
		return mapError(apperrors.NewValidationError("body", "invalid request body"))
	}
	if err := validateAlertRuleInput(in); err != nil {
		return mapError(err)
	}

	rule := in.ToRule(time.Now().UTC())
	if err := s.store.CreateRule(c.Request().Context(), rule); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, rule)
}

func validateAlertRuleInput(in models.AlertRuleInput) error {
	if in.Name == "" {
		return apperrors.NewValidationError("name", "name is required")
	}
	if !models.ValidMetrics[in.Metric] {
		return apperrors.NewValidationError("metric", "unknown metric")
	}
	switch in.Operator {
	case models.OpGt, models.OpLt, models.OpEq, models.OpGte, models.OpLte, models.OpNe:
	default:
		return apperrors.NewValidationError("operator", "unknown operator")
	}
	if in.Threshold == nil {
		return apperrors.NewValidationError("threshold", "threshold is required")
	}
	return nil
}

// getAlertRuleHandler handles GET /api/v1/alerts/rules/:id.
func (s *Server) getAlertRuleHandler(c *echo.Context) error {
	id, err := parseUUID(c, "id")
	if err != nil {
		return mapError(err)
	}
	rule, err := s.store.GetRule(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, rule)
}

// updateAlertRuleHandler handles PUT /api/v1/alerts/rules/:id.
func (s *Server) updateAlertRuleHandler(c *echo.Context) error {
	id, err := parseUUID(c, "id")
	if err != nil {
		return mapError(err)
	}
	existing, err := s.store.GetRule(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}

	var in models.AlertRuleInput
	if err := c.Bind(&in); err != nil {
		return mapError(apperrors.NewValidationError("body", "invalid request body"))
	}
	if err := validateAlertRuleInput(in); err != nil {
		return mapError(err)
	}

	updated := in.ToRule(time.Now().UTC())
	updated.ID = existing.ID
	updated.CreatedAt = existing.CreatedAt
	updated.CreatedBy = existing.CreatedBy
	updated.LastEvaluatedAt = existing.LastEvaluatedAt
	updated.LastTriggeredAt = existing.LastTriggeredAt

	if err := s.store.UpdateRule(c.Request().Context(), updated); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, updated)
}

// deleteAlertRuleHandler handles DELETE /api/v1/alerts/rules/:id.
func (s *Server) deleteAlertRuleHandler(c *echo.Context) error {
	id, err := parseUUID(c, "id")
	if err != nil {
		return mapError(err)
	}
	if err := s.store.DeleteRule(c.Request().Context(), id); err != nil {
		return mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// testAlertRuleHandler handles POST /api/v1/alerts/rules/:id/test, dry-running
// evaluation against the current window without persisting or notifying.
func (s *Server) testAlertRuleHandler(c *echo.Context) error {
	id, err := parseUUID(c, "id")
	if err != nil {
		return mapError(err)
	}
	rule, err := s.store.GetRule(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	if s.evaluator == nil {
		return mapError(apperrors.NewInternalError(errAlertingNotConfigured))
	}

	event, err := s.evaluator.TestRule(c.Request().Context(), rule)
	if err != nil {
		return mapError(err)
	}
	if event == nil {
		return c.JSON(http.StatusOK, map[string]any{"would_trigger": false})
	}
	return c.JSON(http.StatusOK, map[string]any{"would_trigger": true, "event": event})
}

// listAlertEventsHandler handles GET /api/v1/alerts/events.
func (s *Server) listAlertEventsHandler(c *echo.Context) error {
	var ruleID *uuid.UUID
	if v := c.QueryParam("rule_id"); v != "" {
		parsed, err := uuid.Parse(v)
		if err != nil {
			return mapError(apperrors.NewValidationError("rule_id", "invalid uuid"))
		}
		ruleID = &parsed
	}
	events, err := s.store.ListEvents(c.Request().Context(), ruleID, queryInt(c, "limit", 100))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, events)
}

// acknowledgeAlertEventHandler handles POST /api/v1/alerts/events/:id/acknowledge.
func (s *Server) acknowledgeAlertEventHandler(c *echo.Context) error {
	id, err := parseUUID(c, "id")
	if err != nil {
		return mapError(err)
	}
	if err := s.store.AcknowledgeEvent(c.Request().Context(), id); err != nil {
		return mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func parseUUID(c *echo.Context, param string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		return uuid.UUID{}, apperrors.NewValidationError(param, "invalid uuid")
	}
	return id, nil
}
