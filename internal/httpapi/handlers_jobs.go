// Copyright 2025 James Ross
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/gwbischof/starq/internal/queuecore"
	"github.com/gwbischof/starq/internal/queueerr"
)

type jobSubmitBody struct {
	Payload  map[string]interface{} `json:"payload"`
	Priority int                    `json:"priority"`
}

// submitBody accepts either a single job object or a batch envelope
// {jobs:[...]} on the same endpoint, normalizing both to a job list.
type submitBody struct {
	Jobs []jobSubmitBody `json:"jobs"`
}

func (b *submitBody) UnmarshalJSON(data []byte) error {
	var batch struct {
		Jobs []jobSubmitBody `json:"jobs"`
	}
	if err := json.Unmarshal(data, &batch); err == nil && batch.Jobs != nil {
		b.Jobs = batch.Jobs
		return nil
	}
	var single jobSubmitBody
	if err := json.Unmarshal(data, &single); err != nil {
		return err
	}
	b.Jobs = []jobSubmitBody{single}
	return nil
}

func (h *handlers) submitJobs(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	var body submitBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Jobs) == 0 {
		writeError(w, http.StatusUnprocessableEntity, string(queueerr.CodeValidation), "invalid job submission body")
		return
	}
	if max := h.cfg.Queue.SubmitBatchMax; max > 0 && len(body.Jobs) > max {
		writeError(w, http.StatusUnprocessableEntity, string(queueerr.CodeValidation), "batch exceeds submit_batch_max")
		return
	}

	jobs := make([]queuecore.JobSubmission, len(body.Jobs))
	for i, j := range body.Jobs {
		jobs[i] = queuecore.JobSubmission{Payload: j.Payload, Priority: j.Priority}
	}

	result, err := h.store.Submit(r.Context(), name, jobs)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":      result.Accepted,
		"submitted": result.Submitted,
		"skipped":   result.Skipped,
	})
}

type jobClaimBody struct {
	Count   *int `json:"count"`
	BlockMs int  `json:"block_ms"`
}

func (h *handlers) claimJobs(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	var body jobClaimBody
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusUnprocessableEntity, string(queueerr.CodeValidation), "invalid claim body")
			return
		}
	}
	count := 1
	if body.Count != nil {
		count = *body.Count
	}

	jobs, err := h.store.Claim(r.Context(), name, count, body.BlockMs)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs})
}

type jobCompleteBody struct {
	Result map[string]interface{} `json:"result"`
}

func (h *handlers) completeJob(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	name, jobID := vars["name"], vars["job_id"]

	var body jobCompleteBody
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusUnprocessableEntity, string(queueerr.CodeValidation), "invalid complete body")
			return
		}
	}

	if err := h.store.Complete(r.Context(), name, jobID, body.Result); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "completed", "job_id": jobID})
}

type jobFailBody struct {
	Error string `json:"error"`
}

func (h *handlers) failJob(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	name, jobID := vars["name"], vars["job_id"]

	var body jobFailBody
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusUnprocessableEntity, string(queueerr.CodeValidation), "invalid fail body")
			return
		}
	}

	retries, err := h.store.Fail(r.Context(), name, jobID, body.Error)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "failed", "job_id": jobID, "retries": retries})
}

func (h *handlers) listJobs(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	q := r.URL.Query()

	status := q.Get("status")
	count := 50
	if c := q.Get("count"); c != "" {
		if parsed, err := strconv.Atoi(c); err == nil {
			count = parsed
		}
	}
	cursor := q.Get("cursor")

	result, err := h.store.ListJobs(r.Context(), name, status, count, cursor)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
