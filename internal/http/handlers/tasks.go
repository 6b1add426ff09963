package handlers

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/nekorec/blivec/internal/bili"
	"github.com/nekorec/blivec/internal/config"
	"github.com/nekorec/blivec/internal/task"
)

// TasksHandler exposes the per-room task control surface named by spec.md
// §6's core contracts, grounded on blrec's web/routers/tasks.py.
type TasksHandler struct {
	manager *task.Manager
}

// NewTasksHandler constructs a TasksHandler backed by manager.
func NewTasksHandler(manager *task.Manager) *TasksHandler {
	return &TasksHandler{manager: manager}
}

// Register registers the tasks routes with the API.
func (h *TasksHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listTasks",
		Method:      "GET",
		Path:        "/api/v1/tasks",
		Summary:     "List task statuses",
		Description: "Returns a status snapshot for every ready task",
		Tags:        []string{"Tasks"},
	}, h.ListTasks)

	huma.Register(api, huma.Operation{
		OperationID: "getTaskData",
		Method:      "GET",
		Path:        "/api/v1/tasks/{room_id}/data",
		Summary:     "Get one task's status",
		Description: "Returns a status snapshot for the given room",
		Tags:        []string{"Tasks"},
	}, h.GetTaskData)

	huma.Register(api, huma.Operation{
		OperationID: "startTask",
		Method:      "POST",
		Path:        "/api/v1/tasks/{room_id}/start",
		Summary:     "Start a task",
		Description: "Refreshes room info and enables monitor and recorder",
		Tags:        []string{"Tasks"},
	}, h.StartTask)

	huma.Register(api, huma.Operation{
		OperationID: "stopTask",
		Method:      "POST",
		Path:        "/api/v1/tasks/{room_id}/stop",
		Summary:     "Stop a task",
		Description: "Disables recorder then monitor",
		Tags:        []string{"Tasks"},
	}, h.StopTask)

	huma.Register(api, huma.Operation{
		OperationID: "cutTaskStream",
		Method:      "POST",
		Path:        "/api/v1/tasks/{room_id}/cut",
		Summary:     "Cut the current recording",
		Description: "Requests a file boundary at the next keyframe of the current recording session",
		Tags:        []string{"Tasks"},
	}, h.CutTask)

	huma.Register(api, huma.Operation{
		OperationID: "enableTaskRecorder",
		Method:      "POST",
		Path:        "/api/v1/tasks/{room_id}/recorder/enable",
		Summary:     "Arm a task's recorder",
		Tags:        []string{"Tasks"},
	}, h.EnableRecorder)

	huma.Register(api, huma.Operation{
		OperationID: "disableTaskRecorder",
		Method:      "POST",
		Path:        "/api/v1/tasks/{room_id}/recorder/disable",
		Summary:     "Disarm a task's recorder",
		Tags:        []string{"Tasks"},
	}, h.DisableRecorder)

	huma.Register(api, huma.Operation{
		OperationID: "addTask",
		Method:      "POST",
		Path:        "/api/v1/tasks",
		Summary:     "Add a room task",
		Description: "Constructs, sets up, and registers a task for a new room",
		Tags:        []string{"Tasks"},
	}, h.AddTask)

	huma.Register(api, huma.Operation{
		OperationID: "removeTask",
		Method:      "DELETE",
		Path:        "/api/v1/tasks/{room_id}",
		Summary:     "Remove a room task",
		Description: "Forcibly disables and removes the task",
		Tags:        []string{"Tasks"},
	}, h.RemoveTask)
}

func taskError(err error) error {
	var notFound *task.NotFoundError
	if errors.As(err, &notFound) {
		return huma.Error404NotFound(err.Error())
	}
	return huma.Error500InternalServerError(err.Error())
}

// TaskStatusResponse is the wire representation of task.Status.
type TaskStatusResponse struct {
	RoomID          int64          `json:"room_id"`
	MonitorEnabled  bool           `json:"monitor_enabled"`
	RecorderEnabled bool           `json:"recorder_enabled"`
	Running         string         `json:"running"`
	RoomInfo        *bili.RoomInfo `json:"room_info,omitempty"`
}

func statusResponse(s task.Status) TaskStatusResponse {
	return TaskStatusResponse{
		RoomID:          s.RoomID,
		MonitorEnabled:  s.MonitorEnabled,
		RecorderEnabled: s.RecorderEnabled,
		Running:         string(s.Running),
		RoomInfo:        s.RoomInfo,
	}
}

// ListTasksInput is the input for listing tasks.
type ListTasksInput struct{}

// ListTasksOutput is the output for listing tasks.
type ListTasksOutput struct {
	Body struct {
		Tasks []TaskStatusResponse `json:"tasks"`
	}
}

// ListTasks returns every ready task's status.
func (h *TasksHandler) ListTasks(ctx context.Context, input *ListTasksInput) (*ListTasksOutput, error) {
	resp := &ListTasksOutput{}
	for _, s := range h.manager.ListTaskStatuses() {
		resp.Body.Tasks = append(resp.Body.Tasks, statusResponse(s))
	}
	return resp, nil
}

// RoomIDInput is the shared path-parameter input for single-room operations.
type RoomIDInput struct {
	RoomID int64 `path:"room_id" doc:"Room id"`
}

// GetTaskDataOutput is the output for fetching one task's status.
type GetTaskDataOutput struct {
	Body TaskStatusResponse
}

// GetTaskData returns one room's status snapshot.
func (h *TasksHandler) GetTaskData(ctx context.Context, input *RoomIDInput) (*GetTaskDataOutput, error) {
	status, err := h.manager.GetTaskStatus(input.RoomID)
	if err != nil {
		return nil, taskError(err)
	}
	return &GetTaskDataOutput{Body: statusResponse(status)}, nil
}

// TaskActionOutput is the response envelope for simple task actions.
type TaskActionOutput struct {
	Body struct {
		Success bool `json:"success"`
	}
}

func taskActionOK() *TaskActionOutput {
	resp := &TaskActionOutput{}
	resp.Body.Success = true
	return resp
}

// StartTask refreshes room info then enables monitor and recorder.
func (h *TasksHandler) StartTask(ctx context.Context, input *RoomIDInput) (*TaskActionOutput, error) {
	if err := h.manager.StartTask(ctx, input.RoomID); err != nil {
		return nil, taskError(err)
	}
	return taskActionOK(), nil
}

// StopTaskInput allows a forced stop, per spec.md §6.
type StopTaskInput struct {
	RoomID int64 `path:"room_id"`
	Body   struct {
		Force bool `json:"force,omitempty" doc:"Stop immediately without waiting for the current segment to finish"`
	}
}

// StopTask disables recorder then monitor.
func (h *TasksHandler) StopTask(ctx context.Context, input *StopTaskInput) (*TaskActionOutput, error) {
	if err := h.manager.StopTask(input.RoomID, input.Body.Force); err != nil {
		return nil, taskError(err)
	}
	return taskActionOK(), nil
}

// CutTask requests a manual file boundary for the room's current recording.
func (h *TasksHandler) CutTask(ctx context.Context, input *RoomIDInput) (*TaskActionOutput, error) {
	if err := h.manager.CutTask(input.RoomID); err != nil {
		return nil, huma.Error409Conflict(err.Error())
	}
	return taskActionOK(), nil
}

// EnableRecorder arms the room's recorder.
func (h *TasksHandler) EnableRecorder(ctx context.Context, input *RoomIDInput) (*TaskActionOutput, error) {
	if err := h.manager.EnableTaskRecorder(input.RoomID); err != nil {
		return nil, taskError(err)
	}
	return taskActionOK(), nil
}

// DisableRecorderInput allows a forced disable, matching StopTaskInput.
type DisableRecorderInput struct {
	RoomID int64 `path:"room_id"`
	Body   struct {
		Force bool `json:"force,omitempty"`
	}
}

// DisableRecorder disarms the room's recorder.
func (h *TasksHandler) DisableRecorder(ctx context.Context, input *DisableRecorderInput) (*TaskActionOutput, error) {
	if err := h.manager.DisableTaskRecorder(input.RoomID, input.Body.Force); err != nil {
		return nil, taskError(err)
	}
	return taskActionOK(), nil
}

// AddTaskInput is the request body for registering a new room task.
type AddTaskInput struct {
	Body struct {
		RoomID          int64                     `json:"room_id" doc:"Room id to watch"`
		MonitorEnabled  bool                      `json:"monitor_enabled,omitempty"`
		RecorderEnabled bool                      `json:"recorder_enabled,omitempty"`
		Output          *config.OutputConfig      `json:"output,omitempty"`
		Header          *config.HeaderConfig      `json:"header,omitempty"`
		Danmaku         *config.DanmakuConfig     `json:"danmaku,omitempty"`
		Recorder        *config.RecorderConfig    `json:"recorder,omitempty"`
		Postprocess     *config.PostprocessConfig `json:"postprocessing,omitempty"`
	}
}

// AddTask constructs and registers a task for a new room.
func (h *TasksHandler) AddTask(ctx context.Context, input *AddTaskInput) (*TaskActionOutput, error) {
	cfg := config.TaskConfig{
		RoomID:          input.Body.RoomID,
		MonitorEnabled:  input.Body.MonitorEnabled,
		RecorderEnabled: input.Body.RecorderEnabled,
		Output:          input.Body.Output,
		Header:          input.Body.Header,
		Danmaku:         input.Body.Danmaku,
		Recorder:        input.Body.Recorder,
		Postprocess:     input.Body.Postprocess,
	}
	if err := h.manager.AddTask(ctx, cfg); err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	return taskActionOK(), nil
}

// RemoveTask forcibly disables and removes a room's task.
func (h *TasksHandler) RemoveTask(ctx context.Context, input *RoomIDInput) (*TaskActionOutput, error) {
	if err := h.manager.RemoveTask(input.RoomID); err != nil {
		return nil, taskError(err)
	}
	return taskActionOK(), nil
}
