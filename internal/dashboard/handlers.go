package dashboard

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Wadanator/museum-system-sub000/internal/history"
	"github.com/Wadanator/museum-system-sub000/internal/mqttcoord"
	"github.com/Wadanator/museum-system-sub000/internal/show"
)

// loginRequest authenticates the operator against the shared controller
// secret itself. There is no user table: whoever holds the secret is the
// operator, consistent with a single console per room.
type loginRequest struct {
	Secret string `json:"secret"`
}

type loginResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in_seconds"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	if subtle.ConstantTimeCompare([]byte(req.Secret), []byte(s.secret)) != 1 {
		writeUnauthorized(w, "invalid credentials")
		return
	}

	ttl := time.Duration(s.security.JWT.AccessTokenTTL) * time.Minute
	token, err := generateToken(s.roomID, s.secret, ttl)
	if err != nil {
		s.log.Error("failed to issue operator token", "error", err)
		writeInternalError(w, "failed to issue token")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresIn: int(ttl.Seconds())})
}

// statusResponse is the dashboard's status surface per the controller's
// status(), scene_running, is_mqtt_connected, uptime, connected_devices,
// progress_info, log_buffer contract.
type statusResponse struct {
	RoomID           string                   `json:"room_id"`
	SceneRunning     bool                     `json:"scene_running"`
	IsMQTTConnected  bool                     `json:"is_mqtt_connected"`
	UptimeSeconds    float64                  `json:"uptime_seconds"`
	ConnectedDevices []mqttcoord.DeviceRecord `json:"connected_devices"`
	Progress         show.Progress            `json:"progress_info"`
}

func (s *Server) buildStatus() statusResponse {
	resp := statusResponse{
		RoomID:        s.roomID,
		SceneRunning:  s.runner.IsRunning(),
		UptimeSeconds: time.Since(s.startedAt).Seconds(),
		Progress:      s.runner.Progress(),
	}
	if s.mqtt != nil {
		resp.IsMQTTConnected = s.mqtt.IsConnected()
	}
	if s.devices != nil {
		resp.ConnectedDevices = []mqttcoord.DeviceRecord{}
		for _, d := range s.devices.GetAllDevices() {
			if d.Status == "online" {
				resp.ConnectedDevices = append(resp.ConnectedDevices, d)
			}
		}
	}
	return resp
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.buildStatus())
}

func (s *Server) handleLogBuffer(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"lines": s.logBuf.Lines()})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := history.Filter{
		RoomID:  s.roomID,
		SceneID: q.Get("scene_id"),
		Status:  q.Get("status"),
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil && limit > 0 {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(q.Get("offset")); err == nil && offset > 0 {
		filter.Offset = offset
	}

	result, err := s.history.List(r.Context(), filter)
	if err != nil {
		s.log.Error("failed to list scene history", "error", err)
		writeInternalError(w, "failed to list history")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleStartScene(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	scene, err := s.loader.LoadScene(name)
	if err != nil {
		if errors.Is(err, show.ErrSceneNotFound) {
			writeNotFound(w, "scene not found: "+name)
			return
		}
		writeBadRequest(w, err.Error())
		return
	}

	if err := s.runner.StartScene(r.Context(), scene, s.transitions, "dashboard"); err != nil {
		if errors.Is(err, show.ErrSceneRunning) {
			writeConflict(w, "a scene is already running")
			return
		}
		writeInternalError(w, err.Error())
		return
	}

	s.hub.Broadcast("scene_started", map[string]string{"scene_id": scene.SceneID})
	writeJSON(w, http.StatusAccepted, map[string]string{"scene_id": scene.SceneID, "status": "started"})
}

func (s *Server) handleStopScene(w http.ResponseWriter, _ *http.Request) {
	s.runner.Stop()
	s.hub.Broadcast("scene_stopped", nil)
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (s *Server) handleRunCommand(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	bundle, err := s.loader.LoadCommand(name)
	if err != nil {
		if errors.Is(err, show.ErrSceneNotFound) {
			writeNotFound(w, "command not found: "+name)
			return
		}
		writeBadRequest(w, err.Error())
		return
	}

	s.executor.ExecuteAll(bundle.Actions)
	writeJSON(w, http.StatusOK, map[string]string{"command": name, "status": "executed"})
}

// publishRequest is a raw MQTT publish, gated by mqttcoord.ValidatePublish
// the same way any other outbound command is.
type publishRequest struct {
	Topic    string `json:"topic"`
	Payload  string `json:"payload"`
	QoS      byte   `json:"qos"`
	Retained bool   `json:"retained"`
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	if err := mqttcoord.ValidatePublish(req.Topic, req.Payload); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	if s.mqtt == nil {
		writeInternalError(w, "mqtt client not configured")
		return
	}

	if err := s.mqtt.Publish(req.Topic, []byte(req.Payload), req.QoS, req.Retained); err != nil {
		s.log.Error("dashboard publish failed", "topic", req.Topic, "error", err)
		writeInternalError(w, "publish failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "published"})
}
