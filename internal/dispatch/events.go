package dispatch

import "github.com/banshee-data/raceplay.report/internal/session"

// Event type tags for the text JSON status messages of spec.md §6.
const (
	eventLoadingProgress = "loading_progress"
	eventLoadingComplete = "loading_complete"
	eventLoadingError    = "loading_error"
)

type loadingProgressEvent struct {
	Type           string  `json:"type"`
	Progress       int     `json:"progress"`
	Message        string  `json:"message"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}

type loadingCompleteEvent struct {
	Type            string   `json:"type"`
	Frames          int      `json:"frames"`
	LoadTimeSeconds float64  `json:"load_time_seconds"`
	Metadata        metadata `json:"metadata"`
}

type loadingErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// metadata is the loading_complete payload described in spec.md §6:
// everything a client needs to render a session besides the frames
// themselves, which arrive one at a time as binary messages.
type metadata struct {
	Year          int               `json:"year"`
	Round         int               `json:"round"`
	SessionType   string            `json:"session_type"`
	TotalFrames   int               `json:"total_frames"`
	TotalLaps     int               `json:"total_laps"`
	DriverColors  map[string][3]int `json:"driver_colors"`
	DriverNumbers map[string]int    `json:"driver_numbers"`
	DriverTeams   map[string]string `json:"driver_teams"`
	TrackGeometry [][2]float32      `json:"track_geometry"`
	TrackStatuses []statusEvent     `json:"track_statuses"`
	RaceStartTime int64             `json:"race_start_time"`
	Error         *string           `json:"error"`
}

type statusEvent struct {
	T      float64 `json:"t"`
	Status string  `json:"status"`
}

func buildMetadata(key session.Key, sess *session.Session) metadata {
	colors := make(map[string][3]int, len(sess.DriverColors))
	for code, c := range sess.DriverColors {
		colors[code] = [3]int{int(c.R), int(c.G), int(c.B)}
	}
	geom := make([][2]float32, len(sess.TrackGeometry))
	for i, p := range sess.TrackGeometry {
		geom[i] = [2]float32{p.X, p.Y}
	}
	statuses := make([]statusEvent, len(sess.TrackStatuses))
	for i, s := range sess.TrackStatuses {
		statuses[i] = statusEvent{T: s.T, Status: s.Status.String()}
	}
	return metadata{
		Year:          key.Year,
		Round:         key.Round,
		SessionType:   string(key.SessionType),
		TotalFrames:   len(sess.Frames),
		TotalLaps:     sess.TotalLaps,
		DriverColors:  colors,
		DriverNumbers: sess.DriverNumbers,
		DriverTeams:   sess.DriverTeams,
		TrackGeometry: geom,
		TrackStatuses: statuses,
		RaceStartTime: sess.RaceStartEpoch,
	}
}
