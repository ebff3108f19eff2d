package service

import (
	"context"

	"github.com/google/uuid"
)

// UpdateSubject is the NATS subject model update requests are served on.
const UpdateSubject = "routes.model.update"

// Update job statuses.
const (
	StatusDone   = "done"
	StatusFailed = "failed"
)

// UpdateRequest asks for a model update of one agent type.
type UpdateRequest struct {
	JobID     string `json:"job_id"`
	AgentType string `json:"agent_type"`
	Rebuild   bool   `json:"rebuild"`
}

// UpdateReply reports the outcome of an UpdateRequest.
type UpdateReply struct {
	JobID  string        `json:"job_id"`
	Status string        `json:"status"`
	Result *UpdateResult `json:"result,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// HandleUpdate runs req and wraps the outcome in a reply. A request
// without a job id gets one.
func (s *Service) HandleUpdate(ctx context.Context, req UpdateRequest) UpdateReply {
	if req.JobID == "" {
		req.JobID = uuid.NewString()
	}
	log := s.log.With("job_id", req.JobID, "agent_type", req.AgentType)
	log.Info("model update requested", "rebuild", req.Rebuild)

	res, err := s.RequestModelUpdate(ctx, req.AgentType, req.Rebuild)
	if err != nil {
		return UpdateReply{JobID: req.JobID, Status: StatusFailed, Error: err.Error()}
	}
	return UpdateReply{JobID: req.JobID, Status: StatusDone, Result: &res}
}
