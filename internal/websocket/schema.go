package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionStart       Action = "start"
	ActionSelect      Action = "select"
	ActionNext        Action = "next"
	ActionPrevious    Action = "previous"
	ActionJump        Action = "jump"
	ActionSubmit      Action = "submit"
	ActionRetryCamera Action = "retry_camera"
	ActionCamera      Action = "camera"
	ActionPing        Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action" binding:"required"`
}

// SelectRequest records an answer. An empty ans clears it.
type SelectRequest struct {
	Action Action `json:"action"`
	QID    string `json:"q_id" binding:"required,max=128"`
	Answer string `json:"ans" binding:"max=20000"`
}

// JumpRequest moves to a question by zero-based index.
type JumpRequest struct {
	Action Action `json:"action"`
	Index  *int   `json:"index" binding:"required,min=0"`
}

// Camera reply statuses.
const (
	CameraGranted     = "granted"
	CameraDenied      = "denied"
	CameraUnavailable = "unavailable"
	CameraEnded       = "ended"
)

// CameraRequest is the browser's answer to a camera_request event, or an
// unsolicited "ended" notice when a track stops on its own.
type CameraRequest struct {
	Action Action   `json:"action"`
	Status string   `json:"status" binding:"required,oneof=granted denied unavailable ended"`
	Tracks []string `json:"tracks" binding:"max=8,dive,required,max=128"`
	Reason string   `json:"reason" binding:"max=512"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventSnapshot      Event = "snapshot"
	EventCameraRequest Event = "camera_request"
	EventCameraStop    Event = "camera_stop"
	EventError         Event = "error"
	EventPong          Event = "pong"
)

// SnapshotEvent carries the full read-only session state.
type SnapshotEvent struct {
	Event Event       `json:"event"`
	Data  interface{} `json:"data"`
}

// CameraConstraints mirrors getUserMedia constraints.
type CameraConstraints struct {
	FacingMode string `json:"facing_mode"`
	Video      bool   `json:"video"`
	Audio      bool   `json:"audio"`
}

// CameraRequestEvent asks the browser to open the camera.
type CameraRequestEvent struct {
	Event       Event             `json:"event"`
	Constraints CameraConstraints `json:"constraints"`
}

// CameraStopEvent asks the browser to stop the listed tracks.
type CameraStopEvent struct {
	Event  Event    `json:"event"`
	Tracks []string `json:"tracks"`
}

type ErrorResponse struct {
	Event  Event             `json:"event"`
	Action Action            `json:"action,omitempty"`
	Code   string            `json:"code"`
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
