package dialogue

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// stateVersion is bumped whenever the persisted layout changes shape.
const stateVersion = 1

// ErrCorruptState marks a persisted record that failed decoding or its
// invariant checks. The engine discards such records defensively.
var ErrCorruptState = errors.New("corrupt dialogue state")

// State is the persisted snapshot of one active dialogue run. It is the
// only thing that survives between events; the engine itself holds no
// per-user memory.
type State struct {
	Version              int               `json:"v"`
	Name                 string            `json:"name"`
	UserID               int64             `json:"user_id"`
	ChatID               int64             `json:"chat_id"`
	Step                 int               `json:"step"`
	MaxAttempts          int               `json:"max_attempts"`
	TotalAttempts        int               `json:"total_attempts"`
	CancelTimeoutSeconds int               `json:"cancel_timeout_seconds"`
	CancelCommand        string            `json:"cancel_command"`
	Answers              map[string]string `json:"answers"`
	WaitingForAnswer     bool              `json:"waiting_for_answer"`
	StartedAt            int64             `json:"started_at"`
	Complete             bool              `json:"complete"`
	ForgetOnComplete     bool              `json:"forget_on_complete"`
}

// expired reports whether the answer deadline for the current question has
// passed. A non-positive timeout disables expiry.
func (s *State) expired(now time.Time) bool {
	if s.CancelTimeoutSeconds <= 0 {
		return false
	}
	return now.Unix() > s.StartedAt+int64(s.CancelTimeoutSeconds)
}

func encodeState(st *State) ([]byte, error) {
	data, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("encode dialogue state: %w", err)
	}
	return data, nil
}

// decodeState parses a persisted record strictly. Unknown fields, version
// mismatches and impossible field combinations all surface as
// ErrCorruptState so the caller can discard the record.
func decodeState(data []byte) (*State, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var st State
	if err := dec.Decode(&st); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	if st.Version != stateVersion {
		return nil, fmt.Errorf("%w: version %d", ErrCorruptState, st.Version)
	}
	if st.Name == "" {
		return nil, fmt.Errorf("%w: missing definition name", ErrCorruptState)
	}
	if st.Step < 0 || st.TotalAttempts < 0 || st.MaxAttempts <= 0 {
		return nil, fmt.Errorf("%w: negative counters", ErrCorruptState)
	}
	if st.Answers == nil {
		st.Answers = map[string]string{}
	}
	return &st, nil
}
