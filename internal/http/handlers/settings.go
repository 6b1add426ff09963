package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/nekorec/blivec/internal/config"
	"github.com/nekorec/blivec/internal/task"
)

// SettingsHandler exposes the global and per-room hot-settings surface named
// by spec.md §6, grounded on blrec's web/routers/settings.py.
type SettingsHandler struct {
	manager *task.Manager
	global  *config.Config
}

// NewSettingsHandler constructs a SettingsHandler. global is mutated in place
// as PATCH requests are applied, then re-read by GetSettings.
func NewSettingsHandler(manager *task.Manager, global *config.Config) *SettingsHandler {
	return &SettingsHandler{manager: manager, global: global}
}

// Register registers the settings routes with the API.
func (h *SettingsHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getSettings",
		Method:      "GET",
		Path:        "/api/v1/settings",
		Summary:     "Get global settings",
		Description: "Returns the process-wide defaults applied to newly added rooms",
		Tags:        []string{"Settings"},
	}, h.GetSettings)

	huma.Register(api, huma.Operation{
		OperationID: "updateSettings",
		Method:      "PATCH",
		Path:        "/api/v1/settings",
		Summary:     "Update global settings",
		Description: "Updates the process-wide defaults; does not affect already-running rooms",
		Tags:        []string{"Settings"},
	}, h.UpdateSettings)

	huma.Register(api, huma.Operation{
		OperationID: "getTaskSettings",
		Method:      "GET",
		Path:        "/api/v1/settings/tasks/{room_id}",
		Summary:     "Get a room's settings",
		Tags:        []string{"Settings"},
	}, h.GetTaskSettings)

	huma.Register(api, huma.Operation{
		OperationID: "updateTaskSettings",
		Method:      "PATCH",
		Path:        "/api/v1/settings/tasks/{room_id}",
		Summary:     "Hot-apply a room's settings",
		Description: "Applies the given sections to the running task immediately",
		Tags:        []string{"Settings"},
	}, h.UpdateTaskSettings)
}

// GetSettingsInput is the input for getting global settings.
type GetSettingsInput struct{}

// GlobalSettings is the wire representation of the process-wide defaults.
type GlobalSettings struct {
	Output      config.OutputConfig      `json:"output"`
	Header      config.HeaderConfig      `json:"header"`
	Danmaku     config.DanmakuConfig     `json:"danmaku"`
	Recorder    config.RecorderConfig    `json:"recorder"`
	Postprocess config.PostprocessConfig `json:"postprocessing"`
	Space       config.SpaceConfig       `json:"space"`
}

// GetSettingsOutput is the output for getting global settings.
type GetSettingsOutput struct {
	Body GlobalSettings
}

// GetSettings returns the current process-wide defaults.
func (h *SettingsHandler) GetSettings(ctx context.Context, input *GetSettingsInput) (*GetSettingsOutput, error) {
	return &GetSettingsOutput{Body: GlobalSettings{
		Output:      h.global.Output,
		Header:      h.global.Header,
		Danmaku:     h.global.Danmaku,
		Recorder:    h.global.Recorder,
		Postprocess: h.global.Postprocess,
		Space:       h.global.Space,
	}}, nil
}

// UpdateSettingsInput is the input for updating global settings.
type UpdateSettingsInput struct {
	Body struct {
		Output      *config.OutputConfig      `json:"output,omitempty"`
		Header      *config.HeaderConfig      `json:"header,omitempty"`
		Danmaku     *config.DanmakuConfig     `json:"danmaku,omitempty"`
		Recorder    *config.RecorderConfig    `json:"recorder,omitempty"`
		Postprocess *config.PostprocessConfig `json:"postprocessing,omitempty"`
		Space       *config.SpaceConfig       `json:"space,omitempty"`
	}
}

// UpdateSettingsOutput is the output for updating global settings.
type UpdateSettingsOutput struct {
	Body GlobalSettings
}

// UpdateSettings merges the given sections into the process-wide defaults.
// These defaults only take effect for rooms added after the call; existing
// tasks must be patched individually via UpdateTaskSettings.
func (h *SettingsHandler) UpdateSettings(ctx context.Context, input *UpdateSettingsInput) (*UpdateSettingsOutput, error) {
	if input.Body.Output != nil {
		h.global.Output = *input.Body.Output
	}
	if input.Body.Header != nil {
		h.global.Header = *input.Body.Header
	}
	if input.Body.Danmaku != nil {
		h.global.Danmaku = *input.Body.Danmaku
	}
	if input.Body.Recorder != nil {
		h.global.Recorder = *input.Body.Recorder
	}
	if input.Body.Postprocess != nil {
		h.global.Postprocess = *input.Body.Postprocess
	}
	if input.Body.Space != nil {
		h.global.Space = *input.Body.Space
	}
	return h.GetSettings(ctx, &GetSettingsInput{})
}

// GetTaskSettingsOutput is the output for getting a room's settings.
type GetTaskSettingsOutput struct {
	Body task.Settings
}

// GetTaskSettings returns a room's currently-applied settings snapshot.
func (h *SettingsHandler) GetTaskSettings(ctx context.Context, input *RoomIDInput) (*GetTaskSettingsOutput, error) {
	settings, err := h.manager.GetTaskSettings(input.RoomID)
	if err != nil {
		return nil, taskError(err)
	}
	return &GetTaskSettingsOutput{Body: settings}, nil
}

// UpdateTaskSettingsInput is the input for hot-applying a room's settings.
type UpdateTaskSettingsInput struct {
	RoomID int64 `path:"room_id"`
	Body   struct {
		Output      *config.OutputConfig      `json:"output,omitempty"`
		Header      *config.HeaderConfig      `json:"header,omitempty"`
		Danmaku     *config.DanmakuConfig     `json:"danmaku,omitempty"`
		Recorder    *config.RecorderConfig    `json:"recorder,omitempty"`
		Postprocess *config.PostprocessConfig `json:"postprocessing,omitempty"`
	}
}

// UpdateTaskSettings applies each given section to the running task
// immediately, matching RecordTaskManager's per-section apply_* methods.
func (h *SettingsHandler) UpdateTaskSettings(ctx context.Context, input *UpdateTaskSettingsInput) (*TaskActionOutput, error) {
	if input.Body.Header != nil {
		if err := h.manager.ApplyHeaderSettings(input.RoomID, *input.Body.Header); err != nil {
			return nil, taskError(err)
		}
	}
	if input.Body.Output != nil {
		if err := h.manager.ApplyOutputSettings(input.RoomID, *input.Body.Output); err != nil {
			return nil, taskError(err)
		}
	}
	if input.Body.Danmaku != nil {
		if err := h.manager.ApplyDanmakuSettings(input.RoomID, *input.Body.Danmaku); err != nil {
			return nil, taskError(err)
		}
	}
	if input.Body.Recorder != nil {
		if err := h.manager.ApplyRecorderSettings(input.RoomID, *input.Body.Recorder); err != nil {
			return nil, taskError(err)
		}
	}
	if input.Body.Postprocess != nil {
		if err := h.manager.ApplyPostprocessSettings(input.RoomID, *input.Body.Postprocess); err != nil {
			return nil, taskError(err)
		}
	}
	return taskActionOK(), nil
}
