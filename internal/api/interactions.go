package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/querydesk/querydesk/internal/auth"
	"github.com/querydesk/querydesk/internal/intake"
	"github.com/querydesk/querydesk/internal/interaction"
	"github.com/querydesk/querydesk/internal/modelclient"
	"github.com/querydesk/querydesk/internal/pipeline"
)

type askRequest struct {
	Question    string `json:"question"`
	RequesterID string `json:"requester_id"`
}

type askResponse struct {
	Answer        string `json:"answer"`
	InteractionID string `json:"interaction_id"`
	Query         string `json:"query"`
	Degraded      bool   `json:"degraded"`
	Rows          int    `json:"rows"`
}

type interactionResponse struct {
	InteractionID  string     `json:"interaction_id"`
	RequesterID    string     `json:"requester_id"`
	QuestionText   string     `json:"question_text"`
	RoleContext    string     `json:"role_context"`
	AnswerText     *string    `json:"answer_text"`
	QueryText      *string    `json:"query_text"`
	Status         string     `json:"status"`
	FailureStage   *string    `json:"failure_stage,omitempty"`
	FailureMessage *string    `json:"failure_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	CompletedAt    *time.Time `json:"completed_at"`
}

func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Interactions == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "INTAKE_NOT_CONFIGURED", "interaction intake is not configured", false, nil)
		return
	}
	if err := auth.RequireRole(r.Context(), auth.RoleInteractionWriter); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request askRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid interaction request body", false, map[string]any{"details": err.Error()})
		return
	}

	response, err := deps.Interactions.Ask(r.Context(), intake.Request{
		Question:    request.Question,
		RequesterID: request.RequesterID,
	})
	if err != nil {
		writeIntakeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, askResponse{
		Answer:        response.Answer,
		InteractionID: response.InteractionID.String(),
		Query:         response.QueryText,
		Degraded:      response.Degraded,
		Rows:          response.Rows,
	})
}

func handleGetInteraction(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Interactions == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "INTAKE_NOT_CONFIGURED", "interaction intake is not configured", false, nil)
		return
	}
	if err := auth.RequireRole(r.Context(), auth.RoleInteractionReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	item, err := deps.Interactions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeIntakeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toInteractionResponse(item))
}

func handleListInteractions(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Interactions == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "INTAKE_NOT_CONFIGURED", "interaction intake is not configured", false, nil)
		return
	}
	if err := auth.RequireRole(r.Context(), auth.RoleInteractionReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	values := r.URL.Query()
	request := intake.ListRequest{
		RequesterID: values.Get("requester_id"),
		Status:      values.Get("status"),
	}
	if raw := strings.TrimSpace(values.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			writeError(r.Context(), w, http.StatusBadRequest, "VALIDATION_FAILED", "limit must be an integer", false, map[string]any{"field": "limit"})
			return
		}
		request.Limit = limit
	}

	items, err := deps.Interactions.List(r.Context(), request)
	if err != nil {
		writeIntakeError(w, r, err)
		return
	}
	out := make([]interactionResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toInteractionResponse(item))
	}
	writeJSON(w, http.StatusOK, map[string]any{"interactions": out})
}

func writeIntakeError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *intake.ValidationError
	if errors.As(err, &validationErr) {
		writeError(r.Context(), w, http.StatusBadRequest, "VALIDATION_FAILED", validationErr.Error(), false, map[string]any{"field": validationErr.Field})
		return
	}

	var notFoundErr *intake.NotFoundError
	if errors.As(err, &notFoundErr) {
		code := "INTERACTION_NOT_FOUND"
		if notFoundErr.Resource == intake.ResourceRequester {
			code = "REQUESTER_NOT_FOUND"
		}
		writeError(r.Context(), w, http.StatusNotFound, code, notFoundErr.Error(), false, map[string]any{"id": notFoundErr.ID})
		return
	}

	var pipelineErr *pipeline.Error
	if errors.As(err, &pipelineErr) {
		writeError(r.Context(), w, http.StatusInternalServerError, "PIPELINE_FAILED", pipelineErr.Error(),
			errors.Is(err, modelclient.ErrGenerationUnavailable),
			map[string]any{"stage": string(pipelineErr.Stage)},
		)
		return
	}

	writeError(r.Context(), w, http.StatusInternalServerError, "STORE_ERROR", "interaction store failed", true, map[string]any{"details": err.Error()})
}

func toInteractionResponse(item interaction.Interaction) interactionResponse {
	return interactionResponse{
		InteractionID:  item.ID.String(),
		RequesterID:    item.RequesterID.String(),
		QuestionText:   item.QuestionText,
		RoleContext:    item.RoleContext,
		AnswerText:     item.AnswerText,
		QueryText:      item.QueryText,
		Status:         string(item.Status),
		FailureStage:   item.FailureStage,
		FailureMessage: item.FailureMessage,
		CreatedAt:      item.CreatedAt,
		CompletedAt:    item.CompletedAt,
	}
}
