package progress

import "encoding/json"

// Status is the lifecycle stage of a single download.
type Status string

const (
	StatusStarting    Status = "starting"
	StatusDownloading Status = "downloading"
	StatusConverting  Status = "converting"
	StatusRetrying    Status = "retrying"
	StatusFinished    Status = "finished"
	StatusError       Status = "error"
)

// IsTerminal reports whether no further transitions are expected after s.
func (s Status) IsTerminal() bool {
	return s == StatusFinished || s == StatusError
}

// State is the latest known snapshot of a download. It is a comparable value type, so two
// snapshots can be compared with ==.
type State struct {
	Progress float64
	Status   Status
	// Title is empty until the extractor reports one.
	Title string
}

// Starting is the state every download begins in.
func Starting() State {
	return State{Progress: 0, Status: StatusStarting}
}

type stateJSON struct {
	Progress float64 `json:"progress"`
	Status   Status  `json:"status"`
	Title    *string `json:"title"`
}

// MarshalJSON renders an unknown title as null.
func (s State) MarshalJSON() ([]byte, error) {
	out := stateJSON{Progress: s.Progress, Status: s.Status}
	if s.Title != "" {
		title := s.Title
		out.Title = &title
	}

	return json.Marshal(out)
}

func (s *State) UnmarshalJSON(data []byte) error {
	var in stateJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	s.Progress = in.Progress
	s.Status = in.Status
	s.Title = ""

	if in.Title != nil {
		s.Title = *in.Title
	}

	return nil
}
