package http

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"interview-monitor/pkg/capture"
	"interview-monitor/pkg/correlation"
	"interview-monitor/pkg/errors"
	"interview-monitor/pkg/metrics"
	"interview-monitor/pkg/monitor"
	"interview-monitor/pkg/perception"
	"interview-monitor/pkg/ratelimit"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Binary ingest frames carry a one-byte kind prefix
const (
	BinaryRecorderChunk byte = 0x01
	BinaryPCMAudio      byte = 0x02
)

const maxIngestMessage = 8 << 20

// Ingest message types
const (
	IngestFrame       = "frame"
	IngestTranscript  = "transcript"
	IngestPerception  = "perception"
	IngestModelStatus = "model_status"
	IngestDevice      = "device"
)

// MediaProvider resolves the client-fed media of a monitor
type MediaProvider interface {
	Media(id string) (*monitor.Media, error)
}

// TranscriptPublisher receives transcript fragments recognised in the browser
type TranscriptPublisher interface {
	PublishTranscription(streamID string, transcription string, isFinal bool, metadata map[string]interface{})
}

// AudioSink receives raw PCM for server-side speech-to-text
type AudioSink interface {
	Write(streamID string, pcm []byte) (bool, error)
	Close(streamID string)
}

// IngestMessage is one JSON message from the monitored browser
type IngestMessage struct {
	Type string `json:"type"`

	// frame: base64 JPEG
	Data string `json:"data,omitempty"`

	// transcript
	Text    string `json:"text,omitempty"`
	IsFinal bool   `json:"is_final,omitempty"`

	// perception
	Keypoints []perception.Keypoint `json:"keypoints,omitempty"`
	Faces     []perception.FaceBox  `json:"faces,omitempty"`

	// model_status: "loaded" or "failed"
	Status string `json:"status,omitempty"`
	Model  string `json:"model,omitempty"`
	Error  string `json:"error,omitempty"`

	// device
	Device *capture.DeviceStatus `json:"device,omitempty"`
}

type ingestReply struct {
	Type  string `json:"type"`
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
}

// IngestHandler accepts the media websocket of a monitored browser
type IngestHandler struct {
	logger      *logrus.Logger
	media       MediaProvider
	transcripts TranscriptPublisher
	audio       AudioSink
	upgrader    websocket.Upgrader
	frames      *ratelimit.Limiter
	now         func() time.Time
}

// NewIngestHandler creates the ingest handler. transcripts and audio may be nil.
func NewIngestHandler(logger *logrus.Logger, media MediaProvider, transcripts TranscriptPublisher, audio AudioSink, allowedOrigins []string) *IngestHandler {
	return &IngestHandler{
		logger:      logger,
		media:       media,
		transcripts: transcripts,
		audio:       audio,
		upgrader:    newUpgrader(allowedOrigins),
		now:         time.Now,
	}
}

// WithFrameLimit drops frames beyond the limiter's per-monitor budget. nil disables throttling.
func (h *IngestHandler) WithFrameLimit(frames *ratelimit.Limiter) *IngestHandler {
	h.frames = frames
	return h
}

// ServeHTTP resolves the monitor before upgrading, so unknown IDs get a JSON 404
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	media, err := h.media.Media(id)
	if err != nil {
		errors.WriteError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).WithField("monitor_id", id).Warn("Failed to upgrade media ingest connection")
		return
	}
	conn.SetReadLimit(maxIngestMessage)

	logger := correlation.LoggerFromContext(r.Context(), h.logger).WithField("monitor_id", id)
	logger.Info("Media ingest connected")

	defer func() {
		media.Source.SetStatus(capture.DeviceStatus{Connected: false, Detail: "ingest disconnected"})
		if h.audio != nil {
			h.audio.Close(id)
		}
		if h.frames != nil {
			h.frames.Forget(id)
		}
		conn.Close()
		logger.Info("Media ingest disconnected")
	}()

	for {
		kind, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.WithError(err).Warn("Media ingest closed unexpectedly")
			}
			return
		}

		var handleErr error
		switch kind {
		case websocket.TextMessage:
			handleErr = h.handleText(id, media, payload)
		case websocket.BinaryMessage:
			handleErr = h.handleBinary(id, media, payload)
		}

		if handleErr != nil {
			logger.WithError(handleErr).Debug("Rejected ingest message")
			reply := ingestReply{Type: "error", Error: handleErr.Error(), Code: errors.GetErrorCode(handleErr)}
			conn.SetWriteDeadline(h.now().Add(writeWait))
			if err := conn.WriteJSON(reply); err != nil {
				return
			}
		}
	}
}

func (h *IngestHandler) handleText(id string, media *monitor.Media, payload []byte) error {
	var msg IngestMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return errors.NewInvalidInput("malformed ingest message").WithField("cause", err.Error())
	}

	switch msg.Type {
	case IngestFrame:
		if h.frames != nil && !h.frames.Allow(id) {
			metrics.RecordRateLimited("ingest_frame")
			return nil
		}
		data, err := base64.StdEncoding.DecodeString(msg.Data)
		if err != nil {
			return errors.NewInvalidFrame("frame is not valid base64")
		}
		return media.Source.PushJPEG(data)

	case IngestTranscript:
		if h.transcripts != nil {
			h.transcripts.PublishTranscription(id, msg.Text, msg.IsFinal, map[string]interface{}{"provider": "browser"})
		}
		return nil

	case IngestPerception:
		media.Detector.Report(perception.Snapshot{
			Keypoints:  msg.Keypoints,
			Faces:      msg.Faces,
			CapturedAt: h.now(),
		})
		return nil

	case IngestModelStatus:
		switch msg.Status {
		case "loaded":
			media.Detector.SetLoaded()
		case "failed":
			media.Detector.SetLoadFailed(msg.Model, msg.Error)
		default:
			return errors.NewInvalidInput("unknown model status").WithField("status", msg.Status)
		}
		return nil

	case IngestDevice:
		if msg.Device == nil {
			return errors.NewInvalidInput("device message without status")
		}
		media.Source.SetStatus(*msg.Device)
		return nil
	}

	return errors.NewInvalidInput("unknown ingest message type").WithField("type", msg.Type)
}

func (h *IngestHandler) handleBinary(id string, media *monitor.Media, payload []byte) error {
	if len(payload) < 2 {
		return errors.NewInvalidInput("binary ingest message too short")
	}

	switch payload[0] {
	case BinaryRecorderChunk:
		media.Capture.WriteChunk(payload[1:])
		return nil
	case BinaryPCMAudio:
		if h.audio == nil {
			return nil
		}
		_, err := h.audio.Write(id, payload[1:])
		return err
	}
	return errors.NewInvalidInput("unknown binary ingest kind").WithField("kind", int(payload[0]))
}
