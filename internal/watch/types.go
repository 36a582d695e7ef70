// Package watch holds the values urlwatch hands to the hooks for one check
// cycle of one job.
package watch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// UnknownJobName is shown wherever a job has no name.
const UnknownJobName = "Unknown"

// Job is one configured monitoring target.
type Job struct {
	Name       string `json:"name,omitempty"`
	URL        string `json:"url,omitempty"`
	Screenshot bool   `json:"screenshot,omitempty"`

	// Extra keeps the remaining job keys so a job can be handed back to the
	// host unchanged.
	Extra map[string]json.RawMessage `json:"-"`

	// present records which known keys the host sent, zero values included.
	present map[string]bool
}

var knownJobKeys = []string{"name", "url", "screenshot"}

// DisplayName returns the job name, or UnknownJobName when it is empty.
func (j Job) DisplayName() string {
	if j.Name == "" {
		return UnknownJobName
	}
	return j.Name
}

// UnmarshalJSON decodes the known job keys and stashes the rest in Extra.
func (j *Job) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	type plain Job
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	for _, k := range knownJobKeys {
		if _, ok := raw[k]; ok {
			if p.present == nil {
				p.present = make(map[string]bool, len(knownJobKeys))
			}
			p.present[k] = true
			delete(raw, k)
		}
	}
	if len(raw) > 0 {
		p.Extra = raw
	}
	*j = Job(p)
	return nil
}

// MarshalJSON writes the known keys merged with Extra. A known key is written
// when it was decoded or holds a non-zero value.
func (j Job) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(j.Extra)+len(knownJobKeys))
	for k, v := range j.Extra {
		out[k] = v
	}
	if j.Name != "" || j.present["name"] {
		out["name"] = j.Name
	}
	if j.URL != "" || j.present["url"] {
		out["url"] = j.URL
	}
	if j.Screenshot || j.present["screenshot"] {
		out["screenshot"] = j.Screenshot
	}
	return json.Marshal(out)
}

// JobState is the host's per-job state. The hooks pass it through untouched.
type JobState map[string]any

// Report is the outcome of one check of a job.
type Report struct {
	Error   string `json:"error,omitempty"`
	Changed bool   `json:"changed"`
	Diff    string `json:"diff,omitempty"`
}

// UnmarshalJSON accepts the error as a string, null, false, or any other
// JSON value. Other values are kept as their compact JSON text.
func (r *Report) UnmarshalJSON(b []byte) error {
	var aux struct {
		Error   json.RawMessage `json:"error"`
		Changed bool            `json:"changed"`
		Diff    string          `json:"diff"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*r = Report{Changed: aux.Changed, Diff: aux.Diff}
	msg, err := errorText(aux.Error)
	if err != nil {
		return fmt.Errorf("report error field: %w", err)
	}
	r.Error = msg
	return nil
}

func errorText(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) || bytes.Equal(raw, []byte("false")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Failed reports whether the check ended in an error.
func (r Report) Failed() bool { return r.Error != "" }

// DecodeJob reads a Job from r.
func DecodeJob(r io.Reader) (Job, error) {
	var j Job
	if err := json.NewDecoder(r).Decode(&j); err != nil {
		return Job{}, fmt.Errorf("decode job: %w", err)
	}
	return j, nil
}

// DecodeReport reads a Report from r.
func DecodeReport(r io.Reader) (Report, error) {
	var rep Report
	if err := json.NewDecoder(r).Decode(&rep); err != nil {
		return Report{}, fmt.Errorf("decode report: %w", err)
	}
	return rep, nil
}

// DecodeJobState reads a JobState from r.
func DecodeJobState(r io.Reader) (JobState, error) {
	var s JobState
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode job state: %w", err)
	}
	return s, nil
}
