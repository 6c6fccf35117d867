package websocket

import (
	"encoding/json"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"clinical-dss-be/internal/constant"
	"clinical-dss-be/internal/dto"
	"clinical-dss-be/internal/entity"
	"clinical-dss-be/internal/pkg/apperr"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 * 1024
)

// QueryHandler is the service surface a client dispatches into.
type QueryHandler interface {
	HandleQuery(sessionId string, req dto.ClinicalQueryRequest) error
	LiteratureSearch(sessionId, query string, maxResults int) ([]entity.EvidenceDocument, error)
	Cancel(sessionId string, runId uuid.UUID) error
	Touch(sessionId string)
}

// Client is a middleman between one websocket connection and the hub.
type Client struct {
	Hub *Hub

	Conn *websocket.Conn

	// SessionId identifies this connection in the registry.
	SessionId string

	// Buffered channel of outbound messages.
	Send chan []byte

	handler QueryHandler
}

// dispatch routes one inbound message by type. Unknown types get an error
// reply rather than a dropped connection.
func (c *Client) dispatch(raw []byte) {
	var msg dto.InboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.sendError("", apperr.New(apperr.KindValidation, "malformed message"))
		return
	}

	switch msg.Type {
	case constant.MessageTypeClinicalQuery:
		c.handleClinicalQuery(msg)
	case constant.MessageTypeLiteratureSearch:
		c.handleLiteratureSearch(msg)
	case constant.MessageTypeCancel:
		c.handleCancel(msg)
	case constant.MessageTypePing:
		c.handlePing()
	default:
		c.sendError("", apperr.New(apperr.KindValidation, "unknown message type: "+msg.Type))
	}
}

func (c *Client) handleClinicalQuery(msg dto.InboundMessage) {
	req := dto.ClinicalQueryRequest{
		Query:          msg.Query,
		PatientContext: msg.PatientContext,
	}
	if err := c.handler.HandleQuery(c.SessionId, req); err != nil {
		c.sendError("", err)
	}
}

// handleLiteratureSearch serves a standalone retrieval on this connection,
// outside any run's event stream.
func (c *Client) handleLiteratureSearch(msg dto.InboundMessage) {
	started, _ := json.Marshal(map[string]interface{}{
		"type":      constant.EventTypeLiteratureSearchStarted,
		"timestamp": time.Now().UTC(),
	})
	select {
	case c.Send <- started:
	default:
	}

	docs, err := c.handler.LiteratureSearch(c.SessionId, msg.SearchQuery, msg.MaxResults)
	if err != nil {
		c.sendError("", err)
		return
	}

	results := make([]dto.SourceDTO, len(docs))
	for i, doc := range docs {
		results[i] = dto.SourceDTO{
			ExternalId:  doc.ExternalId,
			Title:       doc.Title,
			Authors:     doc.Authors,
			Journal:     doc.Journal,
			PublishedAt: doc.PublishedAt,
		}
	}
	payload, _ := json.Marshal(dto.LiteratureSearchResults{
		Type:        constant.EventTypeLiteratureSearchResults,
		SearchQuery: msg.SearchQuery,
		TotalFound:  len(results),
		Results:     results,
		Timestamp:   time.Now().UTC(),
	})
	select {
	case c.Send <- payload:
	default:
	}
}

func (c *Client) handleCancel(msg dto.InboundMessage) {
	runId, err := uuid.Parse(msg.RunId)
	if err != nil {
		c.sendError(msg.RunId, apperr.New(apperr.KindValidation, "invalid run_id"))
		return
	}
	if err := c.handler.Cancel(c.SessionId, runId); err != nil {
		c.sendError(msg.RunId, err)
	}
}

func (c *Client) handlePing() {
	c.handler.Touch(c.SessionId)
	pong, _ := json.Marshal(map[string]interface{}{
		"type":      constant.EventTypePong,
		"timestamp": time.Now().UTC(),
	})
	select {
	case c.Send <- pong:
	default:
	}
}

func (c *Client) sendError(runId string, err error) {
	payload, _ := json.Marshal(map[string]interface{}{
		"type":    constant.EventTypeError,
		"run_id":  runId,
		"kind":    string(apperr.KindOf(err)),
		"message": apperr.ClientMessage(err),
	})
	select {
	case c.Send <- payload:
	default:
	}
}

// readPump pumps messages from the websocket connection into the dispatch
// table.
func (c *Client) readPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Warn("WebSocket", "Unexpected close", map[string]interface{}{
					"session_id": c.SessionId,
					"error":      err.Error(),
				})
			}
			break
		}
		c.dispatch(raw)
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
