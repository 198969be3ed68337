package client

import (
	"encoding/json"
	"net/url"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/charlie0129/statsval/pkg/config"
	"github.com/charlie0129/statsval/pkg/types"
	"github.com/charlie0129/statsval/pkg/validation"
)

func (c *Client) GetConfig() (*config.RawFileConfig, error) {
	ret, err := c.Get("/config")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get config")
	}

	var conf config.RawFileConfig
	if err := json.Unmarshal([]byte(ret), &conf); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal config")
	}

	return &conf, nil
}

func (c *Client) GetVersion() (string, error) {
	ret, err := c.Get("/version")
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to get version")
	}
	var v string
	if err := json.Unmarshal([]byte(ret), &v); err != nil {
		return "", pkgerrors.Wrapf(err, "failed to unmarshal version")
	}
	return v, nil
}

func (c *Client) GetChecks() ([]validation.Check, error) {
	ret, err := c.Get("/checks")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get checks")
	}
	var checks []validation.Check
	if err := json.Unmarshal([]byte(ret), &checks); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal checks")
	}
	return checks, nil
}

// TriggerRun starts a run of checks, or of every check when empty. It
// returns ErrBusy if a run is in progress.
func (c *Client) TriggerRun(checks []string) (string, error) {
	b, err := json.Marshal(types.TriggerRequest{Checks: checks})
	if err != nil {
		return "", err
	}
	ret, err := c.Post("/runs", string(b))
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to trigger run")
	}
	var resp types.TriggerResponse
	if err := json.Unmarshal([]byte(ret), &resp); err != nil {
		return "", pkgerrors.Wrapf(err, "failed to unmarshal trigger response")
	}
	return resp.RunID, nil
}

func (c *Client) GetRuns() ([]types.Run, error) {
	ret, err := c.Get("/runs")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get runs")
	}
	var runs []types.Run
	if err := json.Unmarshal([]byte(ret), &runs); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal runs")
	}
	return runs, nil
}

// GetRun returns the run with id, or the latest run when id is empty.
func (c *Client) GetRun(id string) (*types.Run, error) {
	path := "/runs/latest"
	if id != "" {
		path = "/runs/" + url.PathEscape(id)
	}
	ret, err := c.Get(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get run")
	}
	var run types.Run
	if err := json.Unmarshal([]byte(ret), &run); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal run")
	}
	return &run, nil
}

func (c *Client) GetSchedule() (*types.ScheduleStatus, error) {
	ret, err := c.Get("/schedule")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get schedule")
	}
	var st types.ScheduleStatus
	if err := json.Unmarshal([]byte(ret), &st); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal schedule")
	}
	return &st, nil
}

func (c *Client) SetSchedule(cronExpr string) (*types.ScheduleStatus, error) {
	b, err := json.Marshal(cronExpr)
	if err != nil {
		return nil, err
	}
	ret, err := c.Put("/schedule", string(b))
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to set schedule")
	}
	var st types.ScheduleStatus
	if err := json.Unmarshal([]byte(ret), &st); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal schedule")
	}
	return &st, nil
}

func (c *Client) DisableSchedule() (string, error) {
	return c.Delete("/schedule")
}

// PostponeSchedule delays the next scheduled run by d.
func (c *Client) PostponeSchedule(d time.Duration) (string, error) {
	b, err := json.Marshal(d.String())
	if err != nil {
		return "", err
	}
	return c.Post("/schedule/postpone", string(b))
}

func (c *Client) SkipSchedule() (string, error) {
	return c.Post("/schedule/skip", "")
}
