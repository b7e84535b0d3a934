package api

import (
	"encoding/json"

	"github.com/gin-gonic/gin"

	"github.com/videoforge/videoforge/internal/pushbus"
)

// handleConversionHub upgrades the request to the realtime channel
// described by spec §4.7, identifying the client by the same header
// the chunked-upload handlers use for ownership.
func (s *Server) handleConversionHub(c *gin.Context) {
	clientID := ownerID(c)
	if clientID == "" {
		clientID = c.Query("clientId")
	}
	if err := s.hub.Serve(c.Writer, c.Request, clientID); err != nil {
		s.logger.Error("upgrade conversion hub connection", err)
	}
}

type taskGroupPayload struct {
	TaskID string `json:"taskId"`
}

type batchGroupPayload struct {
	BatchID string `json:"batchId"`
}

// handleHubInbound implements the client->server invocations of spec
// §4.7 (join/leave group, status query, cancel), wired into the hub as
// its InboundHandler at construction time.
func (s *Server) handleHubInbound(client *pushbus.Client, method string, payload json.RawMessage) {
	switch method {
	case "JoinTaskGroup":
		var p taskGroupPayload
		if json.Unmarshal(payload, &p) == nil && p.TaskID != "" {
			client.Join(pushbus.TaskTopic(p.TaskID))
		}

	case "LeaveTaskGroup":
		var p taskGroupPayload
		if json.Unmarshal(payload, &p) == nil && p.TaskID != "" {
			client.Leave(pushbus.TaskTopic(p.TaskID))
		}

	case "JoinSpaceMonitoring":
		client.Join(pushbus.TopicSpace)

	case "JoinBatchTaskGroup":
		var p batchGroupPayload
		if json.Unmarshal(payload, &p) == nil && p.BatchID != "" {
			client.Join(pushbus.BatchTopic(p.BatchID))
		}

	case "GetTaskStatus":
		var p taskGroupPayload
		if json.Unmarshal(payload, &p) != nil || p.TaskID == "" {
			return
		}
		t, err := s.engine.GetStatus(p.TaskID)
		if err != nil {
			client.Reply(pushbus.Event{
				Type: pushbus.EventSystemNotification,
				Data: pushbus.SystemNotification{Message: "task not found", Level: "error"},
			})
			return
		}
		client.Reply(pushbus.Event{
			Type: pushbus.EventStatusUpdate,
			Data: pushbus.StatusUpdate{TaskID: t.ID, Status: string(t.Status)},
		})

	case "CancelTask":
		var p taskGroupPayload
		if json.Unmarshal(payload, &p) != nil || p.TaskID == "" {
			return
		}
		ok, err := s.engine.Cancel(p.TaskID)
		if err != nil || !ok {
			client.Reply(pushbus.Event{
				Type: pushbus.EventSystemNotification,
				Data: pushbus.SystemNotification{Message: "task could not be cancelled", Level: "warn"},
			})
		}
	}
}
