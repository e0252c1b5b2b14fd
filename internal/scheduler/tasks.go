package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	TaskHotspotExpire  = "hotspots.expire"
	TaskHotspotSweep   = "hotspots.sweep"
	TaskStatsRecompute = "profiles.recompute_stats"
)

type HotspotExpirePayload struct {
	HotspotID string `json:"hotspotId"`
}

// StatsRecomputePayload targets one user. An empty UserID recomputes everyone.
type StatsRecomputePayload struct {
	UserID string `json:"userId,omitempty"`
	Role   string `json:"role,omitempty"`
}

func NewHotspotExpireTask(payload HotspotExpirePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskHotspotExpire, data), nil
}

func ParseHotspotExpirePayload(task *asynq.Task) (HotspotExpirePayload, error) {
	var payload HotspotExpirePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return HotspotExpirePayload{}, err
	}
	return payload, nil
}

func NewHotspotSweepTask() *asynq.Task {
	return asynq.NewTask(TaskHotspotSweep, nil)
}

func NewStatsRecomputeTask(payload StatsRecomputePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStatsRecompute, data), nil
}

func ParseStatsRecomputePayload(task *asynq.Task) (StatsRecomputePayload, error) {
	var payload StatsRecomputePayload
	if len(task.Payload()) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return StatsRecomputePayload{}, err
	}
	return payload, nil
}
